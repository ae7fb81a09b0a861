package conversation

import (
	"context"
	"fmt"
	"log/slog"

	"github.com/cafepentagon/concierge/pkg/logging"
)

// Knowledge-base namespaces.
const (
	NamespaceMenu = "menu"
	NamespaceFAQ  = "faq"
	NamespaceJobs = "jobs"
)

// retrievalSkipThreshold: below this intent confidence the gate does not
// spend an embedding call at all.
const retrievalSkipThreshold = 0.30

// retrievalScoreThreshold: hits at or below this similarity are discarded.
const retrievalScoreThreshold = 0.40

// RetrievalResult carries the kept documents and the binary relevance signal
// the synthesizer keys its grounding prompt on.
type RetrievalResult struct {
	Documents []Document
	Relevance float64
	Namespace string
}

// RetrievalGate decides whether a turn is worth a knowledge-base query,
// routes it to the right namespace, and filters weak hits.
type RetrievalGate struct {
	searcher VectorSearcher
	logger   *logging.Logger
}

func NewRetrievalGate(searcher VectorSearcher, logger *logging.Logger) *RetrievalGate {
	if searcher == nil {
		panic("conversation: retrieval gate requires a searcher")
	}
	if logger == nil {
		logger = logging.Default()
	}
	return &RetrievalGate{searcher: searcher, logger: logger}
}

// namespaceFor maps an intent to its namespace and result budget. Menu
// queries fan wider than the rest.
func namespaceFor(intent string) (namespace string, topK int) {
	switch intent {
	case IntentMenuBrowse:
		return NamespaceMenu, 10
	case IntentJobApplication:
		return NamespaceJobs, 5
	default:
		return NamespaceFAQ, 5
	}
}

// Retrieve runs the gated knowledge-base lookup for one turn. A skipped or
// empty retrieval is not an error: the result simply carries relevance 0.
func (g *RetrievalGate) Retrieve(ctx context.Context, query string, intent IntentResult) (RetrievalResult, error) {
	if intent.Confidence < retrievalSkipThreshold {
		g.logger.Debug("retrieval skipped",
			slog.String("intent", intent.Intent),
			slog.Float64("confidence", intent.Confidence))
		return RetrievalResult{}, nil
	}

	namespace, topK := namespaceFor(intent.Intent)

	docs, err := g.searcher.Query(ctx, namespace, query, topK)
	if err != nil {
		return RetrievalResult{}, fmt.Errorf("conversation: knowledge query in %q: %w", namespace, err)
	}

	kept := docs[:0]
	for _, doc := range docs {
		if doc.Score > retrievalScoreThreshold {
			kept = append(kept, doc)
		}
	}

	result := RetrievalResult{Documents: kept, Namespace: namespace}
	if len(kept) > 0 {
		result.Relevance = 0.9
	}

	g.logger.Debug("retrieval complete",
		slog.String("namespace", namespace),
		slog.Int("hits", len(docs)),
		slog.Int("kept", len(kept)),
		slog.Float64("relevance", result.Relevance))
	return result, nil
}
