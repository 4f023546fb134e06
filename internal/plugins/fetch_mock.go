package plugins

import (
	"context"
	"sync"
)

// MockResponse is one queued reply of a MockRequestHandler.
type MockResponse struct {
	Payload Payload
	Err     error
}

// MockRequestHandler implements RequestHandler with a queue of replies and a
// call log. Once the queue is drained the last reply is repeated.
type MockRequestHandler struct {
	mu        sync.Mutex
	responses []MockResponse
	last      MockResponse
	calls     []RequestArgs
	onRequest func(RequestArgs)
}

// NewMockRequestHandler creates a MockRequestHandler replying with responses
// in order.
func NewMockRequestHandler(responses ...MockResponse) *MockRequestHandler {
	return &MockRequestHandler{responses: responses}
}

// NewMockDataHandler returns a MockRequestHandler that always replies with data.
func NewMockDataHandler(data map[string]any) *MockRequestHandler {
	return NewMockRequestHandler(MockResponse{Payload: Payload{Data: data}})
}

// OnRequest registers fn to run inside every Request before it replies.
func (m *MockRequestHandler) OnRequest(fn func(RequestArgs)) {
	m.mu.Lock()
	m.onRequest = fn
	m.mu.Unlock()
}

func (m *MockRequestHandler) Request(ctx context.Context, args RequestArgs) (Payload, error) {
	m.mu.Lock()
	m.calls = append(m.calls, args)
	if len(m.responses) > 0 {
		m.last = m.responses[0]
		m.responses = m.responses[1:]
	}
	resp := m.last
	hook := m.onRequest
	m.mu.Unlock()
	if hook != nil {
		hook(args)
	}
	return resp.Payload, resp.Err
}

// GetCalls returns a copy of the call log.
func (m *MockRequestHandler) GetCalls() []RequestArgs {
	m.mu.Lock()
	defer m.mu.Unlock()
	return append([]RequestArgs(nil), m.calls...)
}

// CallCount returns the number of Request calls so far.
func (m *MockRequestHandler) CallCount() int {
	m.mu.Lock()
	defer m.mu.Unlock()
	return len(m.calls)
}
