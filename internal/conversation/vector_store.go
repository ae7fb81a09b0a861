package conversation

import (
	"context"
	"errors"
	"math"
	"sort"
	"sync"

	openai "github.com/sashabaranov/go-openai"

	"github.com/cafepentagon/concierge/pkg/logging"
)

type embeddingClient interface {
	CreateEmbeddings(ctx context.Context, request openai.EmbeddingRequestConverter) (openai.EmbeddingResponse, error)
}

// Document is one scored knowledge-base hit.
type Document struct {
	Content  string
	Score    float64
	Metadata map[string]string
}

// VectorSearcher exposes the query capability the retrieval gate needs.
type VectorSearcher interface {
	Query(ctx context.Context, namespace string, query string, topK int) ([]Document, error)
}

// KnowledgeIngestor describes how knowledge-base content is ingested.
type KnowledgeIngestor interface {
	AddDocuments(ctx context.Context, namespace string, contents []string, metadata []map[string]string) error
}

// MemoryVectorStore keeps embeddings in memory, partitioned by namespace,
// and answers queries with cosine similarity.
type MemoryVectorStore struct {
	client embeddingClient
	model  string
	logger *logging.Logger

	mu        sync.RWMutex
	documents map[string][]storedDocument // keyed by namespace
}

type storedDocument struct {
	content   string
	metadata  map[string]string
	embedding []float32
}

// NewMemoryVectorStore creates an in-memory store.
func NewMemoryVectorStore(client embeddingClient, model string, logger *logging.Logger) *MemoryVectorStore {
	if client == nil {
		panic("conversation: embedding client cannot be nil")
	}
	if model == "" {
		model = "text-embedding-3-small"
	}
	if logger == nil {
		logger = logging.Default()
	}

	return &MemoryVectorStore{
		client:    client,
		model:     model,
		logger:    logger,
		documents: make(map[string][]storedDocument),
	}
}

var (
	_ VectorSearcher    = (*MemoryVectorStore)(nil)
	_ KnowledgeIngestor = (*MemoryVectorStore)(nil)
)

// AddDocuments embeds and stores the provided contents under a namespace.
// metadata may be nil or shorter than contents; missing entries store empty
// metadata.
func (s *MemoryVectorStore) AddDocuments(ctx context.Context, namespace string, contents []string, metadata []map[string]string) error {
	if len(contents) == 0 {
		return nil
	}

	req := &openai.EmbeddingRequest{
		Model: openai.EmbeddingModel(s.model),
		Input: contents,
	}

	resp, err := s.client.CreateEmbeddings(ctx, req)
	if err != nil {
		return err
	}
	if len(resp.Data) != len(contents) {
		return errors.New("conversation: embedding response size mismatch")
	}

	s.mu.Lock()
	defer s.mu.Unlock()
	for i, item := range resp.Data {
		doc := storedDocument{
			content:   contents[i],
			embedding: item.Embedding,
		}
		if i < len(metadata) {
			doc.metadata = metadata[i]
		}
		s.documents[namespace] = append(s.documents[namespace], doc)
	}
	return nil
}

// Query returns the topK most similar documents from a namespace, best first.
func (s *MemoryVectorStore) Query(ctx context.Context, namespace string, query string, topK int) ([]Document, error) {
	if topK <= 0 {
		topK = 3
	}

	// An empty namespace answers nothing, so skip the embedding spend.
	s.mu.RLock()
	empty := len(s.documents[namespace]) == 0
	s.mu.RUnlock()
	if empty {
		return nil, nil
	}

	req := &openai.EmbeddingRequest{
		Model: openai.EmbeddingModel(s.model),
		Input: []string{query},
	}
	resp, err := s.client.CreateEmbeddings(ctx, req)
	if err != nil {
		return nil, err
	}
	if len(resp.Data) == 0 {
		return nil, nil
	}

	queryVec := resp.Data[0].Embedding

	s.mu.RLock()
	defer s.mu.RUnlock()
	candidates := s.documents[namespace]
	if len(candidates) == 0 {
		return nil, nil
	}

	results := make([]Document, 0, len(candidates))
	for _, doc := range candidates {
		results = append(results, Document{
			Content:  doc.content,
			Score:    cosineSimilarity(queryVec, doc.embedding),
			Metadata: doc.metadata,
		})
	}

	sort.Slice(results, func(i, j int) bool {
		return results[i].Score > results[j].Score
	})

	if len(results) > topK {
		results = results[:topK]
	}
	return results, nil
}

func cosineSimilarity(a, b []float32) float64 {
	if len(a) == 0 || len(a) != len(b) {
		return 0
	}
	var dot float64
	var normA float64
	var normB float64
	for i := range a {
		dot += float64(a[i] * b[i])
		normA += float64(a[i] * a[i])
		normB += float64(b[i] * b[i])
	}
	if normA == 0 || normB == 0 {
		return 0
	}
	return dot / (math.Sqrt(normA) * math.Sqrt(normB))
}
