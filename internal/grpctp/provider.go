package grpctp

import (
	"context"
	"slices"
	"sync"
)

// Wildcard is the StaticEndpoints key used for services without their own
// entry.
const Wildcard = "*"

// EndpointProvider lists reachable endpoints (host:port) of a gRPC service
// such as "graphql.v1.Gateway". It must be safe for concurrent use and return
// at least one endpoint or an error.
type EndpointProvider interface {
	Endpoints(ctx context.Context, service string) ([]string, error)
}

// StaticEndpoints is a provider backed by an in-memory map from service name
// to endpoints. Entries can be replaced while requests are in flight.
type StaticEndpoints struct {
	mu   sync.RWMutex
	data map[string][]string
}

func NewStaticEndpoints(m map[string][]string) *StaticEndpoints {
	s := &StaticEndpoints{data: make(map[string][]string, len(m))}
	for svc, eps := range m {
		s.data[svc] = slices.Clone(eps)
	}
	return s
}

// Set replaces the endpoints of service. No endpoints removes the entry.
func (s *StaticEndpoints) Set(service string, endpoints ...string) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if len(endpoints) == 0 {
		delete(s.data, service)
		return
	}
	s.data[service] = slices.Clone(endpoints)
}

func (s *StaticEndpoints) Endpoints(_ context.Context, service string) ([]string, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	eps := s.data[service]
	if len(eps) == 0 {
		eps = s.data[Wildcard]
	}
	if len(eps) == 0 {
		return nil, ErrNoEndpoints
	}
	return slices.Clone(eps), nil
}
