package reasoner

import (
	"context"
	"sync"

	"github.com/bookseekers/bookflow/core"
)

// Mock is a scripted reasoner for tests. It implements both Provider and
// core.Reasoner so tests can exercise either layer, and records every
// request it receives.
type Mock struct {
	mu sync.Mutex

	// Handler produces the response for each call. When nil the mock
	// echoes the prompt.
	Handler func(req core.ReasonRequest) (string, error)

	calls []core.ReasonRequest
}

// NewMock builds a scripted reasoner.
func NewMock(handler func(req core.ReasonRequest) (string, error)) *Mock {
	return &Mock{Handler: handler}
}

// Invoke implements core.Reasoner.
func (m *Mock) Invoke(ctx context.Context, req core.ReasonRequest) (string, error) {
	return m.Complete(ctx, req)
}

// Complete implements Provider.
func (m *Mock) Complete(ctx context.Context, req core.ReasonRequest) (string, error) {
	m.mu.Lock()
	m.calls = append(m.calls, req)
	handler := m.Handler
	m.mu.Unlock()

	if err := ctx.Err(); err != nil {
		return "", err
	}
	if handler == nil {
		return req.Prompt, nil
	}
	return handler(req)
}

// Info implements Provider.
func (m *Mock) Info() string { return "mock" }

// Calls returns a copy of the recorded requests.
func (m *Mock) Calls() []core.ReasonRequest {
	m.mu.Lock()
	defer m.mu.Unlock()
	out := make([]core.ReasonRequest, len(m.calls))
	copy(out, m.calls)
	return out
}

// CallCount returns how many requests the mock received.
func (m *Mock) CallCount() int {
	m.mu.Lock()
	defer m.mu.Unlock()
	return len(m.calls)
}
