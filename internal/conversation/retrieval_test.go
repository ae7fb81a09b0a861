package conversation

import (
	"context"
	"errors"
	"testing"
)

type stubSearcher struct {
	docs      []Document
	err       error
	calls     int
	namespace string
	topK      int
}

func (s *stubSearcher) Query(_ context.Context, namespace, _ string, topK int) ([]Document, error) {
	s.calls++
	s.namespace = namespace
	s.topK = topK
	return s.docs, s.err
}

func TestRetrieveSkipsLowConfidence(t *testing.T) {
	searcher := &stubSearcher{}
	gate := NewRetrievalGate(searcher, nil)

	got, err := gate.Retrieve(context.Background(), "anything", IntentResult{Intent: IntentFAQ, Confidence: 0.2})
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if searcher.calls != 0 {
		t.Fatalf("searcher called %d times, want 0", searcher.calls)
	}
	if got.Relevance != 0 || len(got.Documents) != 0 {
		t.Fatalf("expected empty result, got %+v", got)
	}
}

func TestRetrieveNamespaceAndBudget(t *testing.T) {
	cases := []struct {
		intent    string
		namespace string
		topK      int
	}{
		{IntentMenuBrowse, NamespaceMenu, 10},
		{IntentJobApplication, NamespaceJobs, 5},
		{IntentFAQ, NamespaceFAQ, 5},
		{IntentEvents, NamespaceFAQ, 5},
		{IntentComplaint, NamespaceFAQ, 5},
		{IntentUnknown, NamespaceFAQ, 5},
	}

	for _, tc := range cases {
		searcher := &stubSearcher{}
		gate := NewRetrievalGate(searcher, nil)

		if _, err := gate.Retrieve(context.Background(), "q", IntentResult{Intent: tc.intent, Confidence: 0.8}); err != nil {
			t.Fatalf("intent %s: unexpected error: %v", tc.intent, err)
		}
		if searcher.namespace != tc.namespace {
			t.Fatalf("intent %s: namespace = %q, want %q", tc.intent, searcher.namespace, tc.namespace)
		}
		if searcher.topK != tc.topK {
			t.Fatalf("intent %s: topK = %d, want %d", tc.intent, searcher.topK, tc.topK)
		}
	}
}

func TestRetrieveFiltersWeakHits(t *testing.T) {
	searcher := &stubSearcher{docs: []Document{
		{Content: "strong", Score: 0.81},
		{Content: "borderline", Score: 0.40},
		{Content: "weak", Score: 0.12},
	}}
	gate := NewRetrievalGate(searcher, nil)

	got, err := gate.Retrieve(context.Background(), "q", IntentResult{Intent: IntentFAQ, Confidence: 0.9})
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if len(got.Documents) != 1 || got.Documents[0].Content != "strong" {
		t.Fatalf("kept docs = %+v, want only the strong hit", got.Documents)
	}
	if got.Relevance != 0.9 {
		t.Fatalf("relevance = %v, want 0.9", got.Relevance)
	}
}

func TestRetrieveNoHitsMeansZeroRelevance(t *testing.T) {
	searcher := &stubSearcher{docs: []Document{{Content: "weak", Score: 0.2}}}
	gate := NewRetrievalGate(searcher, nil)

	got, err := gate.Retrieve(context.Background(), "q", IntentResult{Intent: IntentMenuBrowse, Confidence: 0.9})
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if got.Relevance != 0 {
		t.Fatalf("relevance = %v, want 0", got.Relevance)
	}
}

func TestRetrievePropagatesSearchErrors(t *testing.T) {
	searcher := &stubSearcher{err: errors.New("index offline")}
	gate := NewRetrievalGate(searcher, nil)

	if _, err := gate.Retrieve(context.Background(), "q", IntentResult{Intent: IntentFAQ, Confidence: 0.9}); err == nil {
		t.Fatal("expected error from failing searcher")
	}
}
