package handlers

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/cafepentagon/concierge/internal/conversation"
	"github.com/cafepentagon/concierge/pkg/logging"
)

type fakeIngestor struct {
	namespace string
	contents  []string
	metadata  []map[string]string
	err       error
}

func (f *fakeIngestor) AddDocuments(_ context.Context, namespace string, contents []string, metadata []map[string]string) error {
	f.namespace = namespace
	f.contents = contents
	f.metadata = metadata
	return f.err
}

func TestHandleIngest(t *testing.T) {
	ingestor := &fakeIngestor{}
	handler := NewAdminKnowledgeHandler(ingestor, logging.Default())

	body, _ := json.Marshal(IngestRequest{
		Namespace: conversation.NamespaceMenu,
		Documents: []IngestDocument{
			{Content: "Classic burger with fries - 12000 MMK", Metadata: map[string]string{"category": "mains"}},
			{Content: "   "},
			{Content: "Iced latte - 4500 MMK"},
		},
	})
	rec := httptest.NewRecorder()
	handler.HandleIngest(rec, httptest.NewRequest(http.MethodPost, "/admin/knowledge", bytes.NewReader(body)))

	if rec.Code != http.StatusOK {
		t.Fatalf("expected 200, got %d body=%s", rec.Code, rec.Body.String())
	}
	if ingestor.namespace != conversation.NamespaceMenu {
		t.Fatalf("expected menu namespace, got %q", ingestor.namespace)
	}
	if len(ingestor.contents) != 2 {
		t.Fatalf("expected blank document skipped, got %d contents", len(ingestor.contents))
	}
	if ingestor.metadata[0]["category"] != "mains" {
		t.Fatalf("expected metadata preserved, got %+v", ingestor.metadata)
	}

	var resp struct {
		Namespace string `json:"namespace"`
		Ingested  int    `json:"ingested"`
	}
	if err := json.Unmarshal(rec.Body.Bytes(), &resp); err != nil {
		t.Fatalf("decode response: %v", err)
	}
	if resp.Ingested != 2 {
		t.Fatalf("expected ingested=2, got %d", resp.Ingested)
	}
}

func TestHandleIngestRejectsUnknownNamespace(t *testing.T) {
	handler := NewAdminKnowledgeHandler(&fakeIngestor{}, logging.Default())

	body, _ := json.Marshal(IngestRequest{
		Namespace: "secrets",
		Documents: []IngestDocument{{Content: "hello"}},
	})
	rec := httptest.NewRecorder()
	handler.HandleIngest(rec, httptest.NewRequest(http.MethodPost, "/admin/knowledge", bytes.NewReader(body)))

	if rec.Code != http.StatusBadRequest {
		t.Fatalf("expected 400, got %d", rec.Code)
	}
}

func TestHandleIngestEmptyBatch(t *testing.T) {
	handler := NewAdminKnowledgeHandler(&fakeIngestor{}, logging.Default())

	body, _ := json.Marshal(IngestRequest{Namespace: conversation.NamespaceFAQ})
	rec := httptest.NewRecorder()
	handler.HandleIngest(rec, httptest.NewRequest(http.MethodPost, "/admin/knowledge", bytes.NewReader(body)))

	if rec.Code != http.StatusBadRequest {
		t.Fatalf("expected 400, got %d", rec.Code)
	}
}

func TestHandleIngestStoreFailure(t *testing.T) {
	handler := NewAdminKnowledgeHandler(&fakeIngestor{err: errors.New("embeddings unavailable")}, logging.Default())

	body, _ := json.Marshal(IngestRequest{
		Namespace: conversation.NamespaceJobs,
		Documents: []IngestDocument{{Content: "Line cook, full time"}},
	})
	rec := httptest.NewRecorder()
	handler.HandleIngest(rec, httptest.NewRequest(http.MethodPost, "/admin/knowledge", bytes.NewReader(body)))

	if rec.Code != http.StatusInternalServerError {
		t.Fatalf("expected 500, got %d", rec.Code)
	}
}
