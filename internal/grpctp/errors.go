package grpctp

import "errors"

var (
	// ErrNoEndpoints indicates the provider returned no endpoints for a service.
	ErrNoEndpoints = errors.New("grpctp: no endpoints available")
	// ErrClosed is returned by requests made after Close.
	ErrClosed = errors.New("grpctp: closed")
	// ErrNoProvider is returned when no EndpointProvider was configured.
	ErrNoProvider = errors.New("grpctp: provider not configured")
)
