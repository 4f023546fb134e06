package grpctp

import (
	"time"

	"google.golang.org/grpc"

	"github.com/hanpama/graphstore/internal/eventbus"
)

// Options configures the gRPC transport behavior.
//
// Defaults:
// - MaxConnsPerEndpoint: 2
// - RPCTimeout:          3s (used only if incoming context has no deadline)
// - DialOptions:         insecure credentials
// - Service:             graphql.v1.Gateway
//
// EndpointProvider must be provided (use StaticEndpoints or a custom implementation).
// If Provider is nil, the transport will error on calls.
//
// All options are safe to leave zero-valued to use defaults.

type Options struct {
	Provider EndpointProvider
	Service  string

	MaxConnsPerEndpoint int
	RPCTimeout          time.Duration

	DialOptions []grpc.DialOption
	Bus         *eventbus.Bus
}

// Option mutates Options
//
// Use WithX helpers below.

type Option func(*Options)

func defaultOptions() *Options {
	return &Options{
		Service:             DefaultService,
		MaxConnsPerEndpoint: 2,
		RPCTimeout:          3 * time.Second,
	}
}

func WithProvider(p EndpointProvider) Option { return func(o *Options) { o.Provider = p } }
func WithService(name string) Option         { return func(o *Options) { o.Service = name } }
func WithMaxConnsPerEndpoint(n int) Option   { return func(o *Options) { o.MaxConnsPerEndpoint = n } }
func WithRPCTimeout(d time.Duration) Option  { return func(o *Options) { o.RPCTimeout = d } }
func WithBus(b *eventbus.Bus) Option         { return func(o *Options) { o.Bus = b } }
func WithDialOptions(opts ...grpc.DialOption) Option {
	return func(o *Options) { o.DialOptions = opts }
}
