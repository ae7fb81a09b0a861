package handlers

import (
	"encoding/json"
	"net/http"
	"strings"

	"github.com/cafepentagon/concierge/internal/conversation"
	"github.com/cafepentagon/concierge/pkg/logging"
)

var knownNamespaces = map[string]bool{
	conversation.NamespaceMenu: true,
	conversation.NamespaceFAQ:  true,
	conversation.NamespaceJobs: true,
}

// AdminKnowledgeHandler ingests knowledge-base documents.
type AdminKnowledgeHandler struct {
	ingestor conversation.KnowledgeIngestor
	logger   *logging.Logger
}

// NewAdminKnowledgeHandler creates the handler.
func NewAdminKnowledgeHandler(ingestor conversation.KnowledgeIngestor, logger *logging.Logger) *AdminKnowledgeHandler {
	if ingestor == nil {
		panic("handlers: admin knowledge handler requires an ingestor")
	}
	if logger == nil {
		logger = logging.Default()
	}
	return &AdminKnowledgeHandler{ingestor: ingestor, logger: logger}
}

// IngestRequest is the body of POST /admin/knowledge.
type IngestRequest struct {
	Namespace string           `json:"namespace"`
	Documents []IngestDocument `json:"documents"`
}

// IngestDocument is one knowledge-base entry to embed and store.
type IngestDocument struct {
	Content  string            `json:"content"`
	Metadata map[string]string `json:"metadata,omitempty"`
}

// HandleIngest embeds the submitted documents into the requested namespace.
// POST /admin/knowledge
func (h *AdminKnowledgeHandler) HandleIngest(w http.ResponseWriter, r *http.Request) {
	var req IngestRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		http.Error(w, "invalid request body", http.StatusBadRequest)
		return
	}

	namespace := strings.TrimSpace(req.Namespace)
	if !knownNamespaces[namespace] {
		http.Error(w, "unknown namespace", http.StatusBadRequest)
		return
	}

	contents := make([]string, 0, len(req.Documents))
	metadata := make([]map[string]string, 0, len(req.Documents))
	for _, doc := range req.Documents {
		if strings.TrimSpace(doc.Content) == "" {
			continue
		}
		contents = append(contents, doc.Content)
		metadata = append(metadata, doc.Metadata)
	}
	if len(contents) == 0 {
		http.Error(w, "no documents to ingest", http.StatusBadRequest)
		return
	}

	if err := h.ingestor.AddDocuments(r.Context(), namespace, contents, metadata); err != nil {
		h.logger.Error("knowledge ingestion failed", "namespace", namespace, "error", err)
		http.Error(w, "failed to ingest documents", http.StatusInternalServerError)
		return
	}

	writeJSON(w, http.StatusOK, map[string]any{
		"namespace": namespace,
		"ingested":  len(contents),
	})
}
