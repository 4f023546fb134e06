package plugins

import (
	"context"
	"sync"
)

// MockSubscriptionClient implements SubscriptionClient in memory. Tests drive
// open streams with Emit.
type MockSubscriptionClient struct {
	mu      sync.Mutex
	calls   []FetchParams
	sinks   map[int]func(Payload)
	seq     int
	stopped int
	err     error
}

// NewMockSubscriptionClient creates a MockSubscriptionClient. A non-nil err is
// returned from every Subscribe.
func NewMockSubscriptionClient(err error) *MockSubscriptionClient {
	return &MockSubscriptionClient{sinks: map[int]func(Payload){}, err: err}
}

func (m *MockSubscriptionClient) Subscribe(ctx context.Context, params FetchParams, sink func(Payload)) (func(), error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.calls = append(m.calls, params)
	if m.err != nil {
		return nil, m.err
	}
	m.seq++
	id := m.seq
	m.sinks[id] = sink
	var once sync.Once
	return func() {
		once.Do(func() {
			m.mu.Lock()
			delete(m.sinks, id)
			m.stopped++
			m.mu.Unlock()
		})
	}, nil
}

// Emit delivers p to every open stream.
func (m *MockSubscriptionClient) Emit(p Payload) {
	m.mu.Lock()
	sinks := make([]func(Payload), 0, len(m.sinks))
	for _, sink := range m.sinks {
		sinks = append(sinks, sink)
	}
	m.mu.Unlock()
	for _, sink := range sinks {
		sink(p)
	}
}

// GetCalls returns the parameters of every Subscribe call.
func (m *MockSubscriptionClient) GetCalls() []FetchParams {
	m.mu.Lock()
	defer m.mu.Unlock()
	return append([]FetchParams(nil), m.calls...)
}

// Open returns the number of streams not yet stopped.
func (m *MockSubscriptionClient) Open() int {
	m.mu.Lock()
	defer m.mu.Unlock()
	return len(m.sinks)
}

// Stopped returns the number of streams stopped so far.
func (m *MockSubscriptionClient) Stopped() int {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.stopped
}
