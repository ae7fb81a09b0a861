package conversation

import (
	"context"
	"errors"
	"sync"
)

var errTest = errors.New("test failure")

// stubLLMClient returns canned responses for tests and records every request.
type stubLLMClient struct {
	mu        sync.Mutex
	responses []LLMResponse
	err       error
	requests  []LLMRequest
}

func (s *stubLLMClient) Complete(_ context.Context, req LLMRequest) (LLMResponse, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	s.requests = append(s.requests, req)
	if s.err != nil {
		return LLMResponse{}, s.err
	}
	if len(s.responses) == 0 {
		return LLMResponse{}, errors.New("stub: no responses queued")
	}
	resp := s.responses[0]
	if len(s.responses) > 1 {
		s.responses = s.responses[1:]
	}
	return resp, nil
}

func (s *stubLLMClient) lastRequest() LLMRequest {
	s.mu.Lock()
	defer s.mu.Unlock()
	if len(s.requests) == 0 {
		return LLMRequest{}
	}
	return s.requests[len(s.requests)-1]
}
