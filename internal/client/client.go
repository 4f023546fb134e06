// Package client binds artifacts, the plugin pipeline and the normalized cache
// into document observers.
package client

import (
	"errors"
	"log/slog"
	"net/http"
	"sync"

	"github.com/hanpama/graphstore/internal/artifact"
	"github.com/hanpama/graphstore/internal/cache"
	"github.com/hanpama/graphstore/internal/eventbus"
	"github.com/hanpama/graphstore/internal/pipeline"
	"github.com/hanpama/graphstore/internal/plugins"
)

var (
	ErrNoRequestHandler = errors.New("client: a request handler is required")
	ErrNotSendable      = errors.New("client: fragments cannot be sent")
	ErrInvalidPolicy    = errors.New("client: invalid cache policy")
	ErrClosed           = errors.New("client: closed")
)

// Client owns one cache and creates observers that share it.
type Client struct {
	cache   *cache.Cache
	plugins []pipeline.Plugin
	logger  *slog.Logger
	bus     *eventbus.Bus
	fetch   *http.Client
	gc      *gcScheduler

	mu        sync.Mutex
	closed    bool
	observers map[*Observer]struct{}
}

// New creates a Client. WithRequestHandler is required.
func New(opts ...Option) (*Client, error) {
	o := options{}
	for _, opt := range opts {
		opt(&o)
	}
	if o.handler == nil {
		return nil, ErrNoRequestHandler
	}
	if o.logger == nil {
		o.logger = slog.Default()
	}
	if o.fetch == nil {
		o.fetch = http.DefaultClient
	}
	if o.cache == nil {
		o.cache = cache.New(cache.Options{KeyFields: o.keyFields, Logger: o.logger, Bus: o.bus})
	}
	c := &Client{
		cache:     o.cache,
		logger:    o.logger,
		bus:       o.bus,
		fetch:     o.fetch,
		gc:        newGCScheduler(o.cache, o.gcDelay, o.logger),
		observers: map[*Observer]struct{}{},
	}
	c.plugins = append(c.plugins,
		plugins.CachePolicy(c.cache, c.gc),
		plugins.Query(c.cache),
		plugins.Mutation(c.cache),
	)
	c.plugins = append(c.plugins, o.plugins...)
	c.plugins = append(c.plugins,
		plugins.Subscription(o.subscriptions, c.cache),
		plugins.Fetch(o.handler),
	)
	return c, nil
}

// Cache returns the client's cache.
func (c *Client) Cache() *cache.Cache { return c.cache }

// CollectGarbage runs a collection pass now.
func (c *Client) CollectGarbage() cache.GCStats { return c.gc.collect() }

// Observe creates an observer for a. Each observer gets its own plugin
// instances.
func (c *Client) Observe(a *artifact.Artifact) (*Observer, error) {
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.closed {
		return nil, ErrClosed
	}
	instances := make([]pipeline.Instance, len(c.plugins))
	for i, p := range c.plugins {
		instances[i] = p()
	}
	engine, err := pipeline.New(instances...)
	if err != nil {
		return nil, err
	}
	o := &Observer{client: c, artifact: a, engine: engine, instances: instances}
	c.observers[o] = struct{}{}
	return o, nil
}

func (c *Client) forget(o *Observer) {
	c.mu.Lock()
	delete(c.observers, o)
	c.mu.Unlock()
}

// Close cleans up every observer and waits for scheduled collection passes.
func (c *Client) Close() {
	c.mu.Lock()
	c.closed = true
	observers := make([]*Observer, 0, len(c.observers))
	for o := range c.observers {
		observers = append(observers, o)
	}
	c.mu.Unlock()
	for _, o := range observers {
		o.Cleanup()
	}
	c.gc.Close()
}
