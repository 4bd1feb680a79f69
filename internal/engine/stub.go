package engine

import (
	"context"
	"sync"
)

// StubClient returns canned replies. `serve --stub-llm` uses it so the API can
// be exercised without any LLM endpoint.
type StubClient struct {
	Reply string
	Err   error

	mu    sync.Mutex
	calls []string
}

// Complete records prompt and returns the canned reply, "OK" by default.
func (s *StubClient) Complete(_ context.Context, prompt string) (string, error) {
	s.mu.Lock()
	s.calls = append(s.calls, prompt)
	s.mu.Unlock()
	if s.Err != nil {
		return "", s.Err
	}
	if s.Reply == "" {
		return "OK", nil
	}
	return s.Reply, nil
}

// Calls returns the prompts received so far.
func (s *StubClient) Calls() []string {
	s.mu.Lock()
	defer s.mu.Unlock()
	return append([]string(nil), s.calls...)
}
