package grpctp

import (
	"context"
	"encoding/json"
	"fmt"
	"strings"
	"sync"
	"sync/atomic"
	"time"

	"google.golang.org/grpc"
	"google.golang.org/grpc/backoff"
	"google.golang.org/grpc/credentials/insecure"
	"google.golang.org/grpc/metadata"
	"google.golang.org/grpc/status"
	"google.golang.org/protobuf/encoding/protojson"
	"google.golang.org/protobuf/types/known/structpb"

	"github.com/hanpama/graphstore/internal/eventbus"
	"github.com/hanpama/graphstore/internal/events"
	"github.com/hanpama/graphstore/internal/plugins"
)

// DefaultService is the gateway service documents are executed on. Its
// Execute method takes and returns a google.protobuf.Struct shaped like a
// GraphQL-over-HTTP request and response body.
const DefaultService = "graphql.v1.Gateway"

const executeMethod = "Execute"

// Transport is a real gRPC transport with connection pooling and deadline
// propagation. It integrates with an EndpointProvider for service discovery.

type Transport struct {
	opts *Options

	mu     sync.RWMutex
	pools  map[string]*connPool // key: endpoint
	next   atomic.Uint64        // round-robin cursor
	closed atomic.Bool
}

func New(opts ...Option) *Transport {
	o := defaultOptions()
	for _, f := range opts {
		f(o)
	}
	if len(o.DialOptions) == 0 {
		o.DialOptions = []grpc.DialOption{
			grpc.WithTransportCredentials(insecure.NewCredentials()),
			grpc.WithConnectParams(grpc.ConnectParams{Backoff: backoff.DefaultConfig}),
		}
	}
	return &Transport{
		opts:  o,
		pools: make(map[string]*connPool),
	}
}

var _ plugins.RequestHandler = (*Transport)(nil)

// Request executes a document on the gateway service.
func (t *Transport) Request(ctx context.Context, args plugins.RequestArgs) (resp plugins.Payload, err error) {
	if t.closed.Load() {
		err = ErrClosed
		return
	}
	if t.opts.Provider == nil {
		err = ErrNoProvider
		return
	}
	service := t.opts.Service
	mthFull := fmt.Sprintf("/%s/%s", service, executeMethod)

	// Determine deadline
	if _, ok := ctx.Deadline(); !ok {
		// apply default if provided
		if t.opts.RPCTimeout > 0 {
			var cancel context.CancelFunc
			ctx, cancel = context.WithTimeout(ctx, t.opts.RPCTimeout)
			defer cancel()
		}
	}

	pairs := []string{"x-graphstore-document", args.Name}
	for k, v := range plugins.SessionHeaders(args.Session) {
		pairs = append(pairs, strings.ToLower(k), v)
	}
	ctx = metadata.AppendToOutgoingContext(ctx, pairs...)

	req, err := encodeRequest(args)
	if err != nil {
		return
	}

	// get endpoints from provider
	endpoints, err := t.opts.Provider.Endpoints(ctx, service)
	if err != nil {
		return
	}
	endpoint := endpoints[int(t.next.Add(1)-1)%len(endpoints)]

	cc, err := t.getConn(ctx, endpoint)
	if err != nil {
		return
	}
	defer t.returnConn(endpoint, cc)

	start := time.Now()
	eventbus.Publish(t.opts.Bus, ctx, events.NetworkStart{Transport: "grpc", Target: endpoint, Document: args.Name})
	out := &structpb.Struct{}
	err = cc.Invoke(ctx, mthFull, req, out)
	eventbus.Publish(t.opts.Bus, ctx, events.NetworkFinish{
		Transport: "grpc",
		Target:    endpoint,
		Document:  args.Name,
		Status:    status.Code(err).String(),
		Err:       err,
		Duration:  time.Since(start),
	})
	if err != nil {
		return
	}
	return decodeResponse(out)
}

func encodeRequest(args plugins.RequestArgs) (*structpb.Struct, error) {
	body := map[string]any{
		"query":         args.Text,
		"operationName": args.Name,
	}
	if args.Variables != nil {
		body["variables"] = args.Variables
	}
	if args.Hash != "" {
		body["extensions"] = map[string]any{
			"persistedQuery": map[string]any{"version": 1, "sha256Hash": args.Hash},
		}
	}
	// JSON first so variables of any encodable type map onto Struct values.
	raw, err := json.Marshal(body)
	if err != nil {
		return nil, fmt.Errorf("grpctp: encode request: %w", err)
	}
	req := &structpb.Struct{}
	if err := protojson.Unmarshal(raw, req); err != nil {
		return nil, fmt.Errorf("grpctp: encode request: %w", err)
	}
	return req, nil
}

func decodeResponse(out *structpb.Struct) (plugins.Payload, error) {
	m := out.AsMap()
	var p plugins.Payload
	p.Data, _ = m["data"].(map[string]any)
	if raw, ok := m["errors"]; ok && raw != nil {
		b, err := json.Marshal(raw)
		if err != nil {
			return plugins.Payload{}, fmt.Errorf("grpctp: decode errors: %w", err)
		}
		if err := json.Unmarshal(b, &p.Errors); err != nil {
			return plugins.Payload{}, fmt.Errorf("grpctp: decode errors: %w", err)
		}
	}
	return p, nil
}

func (t *Transport) Close() error {
	if t.closed.Swap(true) {
		return nil
	}
	t.mu.Lock()
	defer t.mu.Unlock()
	for _, p := range t.pools {
		p.close()
	}
	t.pools = map[string]*connPool{}
	return nil
}

// ---------------- internals ----------------

type connPool struct {
	endpoint string
	opts     *Options
	conns    chan *grpc.ClientConn
	closed   atomic.Bool
}

func newConnPool(endpoint string, opts *Options) *connPool {
	n := opts.MaxConnsPerEndpoint
	if n <= 0 {
		n = 2
	}
	return &connPool{
		endpoint: endpoint,
		opts:     opts,
		conns:    make(chan *grpc.ClientConn, n),
	}
}

func (p *connPool) get(ctx context.Context) (*grpc.ClientConn, error) {
	if p.closed.Load() {
		return nil, fmt.Errorf("grpctp: pool closed")
	}
	select {
	case cc := <-p.conns:
		return cc, nil
	default:
		// create new
		cc, err := grpc.DialContext(ctx, p.endpoint, p.opts.DialOptions...)
		if err != nil {
			return nil, err
		}
		return cc, nil
	}
}

func (p *connPool) put(cc *grpc.ClientConn) {
	if cc == nil || p.closed.Load() {
		if cc != nil {
			_ = cc.Close()
		}
		return
	}
	select {
	case p.conns <- cc:
	default:
		_ = cc.Close()
	}
}

func (p *connPool) close() {
	if p.closed.Swap(true) {
		return
	}
	close(p.conns)
	for cc := range p.conns {
		_ = cc.Close()
	}
}

func (t *Transport) getConn(ctx context.Context, endpoint string) (*grpc.ClientConn, error) {
	t.mu.RLock()
	pool := t.pools[endpoint]
	t.mu.RUnlock()
	if pool == nil {
		t.mu.Lock()
		pool = t.pools[endpoint]
		if pool == nil {
			pool = newConnPool(endpoint, t.opts)
			t.pools[endpoint] = pool
		}
		t.mu.Unlock()
	}
	return pool.get(ctx)
}

func (t *Transport) returnConn(endpoint string, cc *grpc.ClientConn) {
	t.mu.RLock()
	pool := t.pools[endpoint]
	t.mu.RUnlock()
	if pool != nil {
		pool.put(cc)
		return
	}
	_ = cc.Close()
}
