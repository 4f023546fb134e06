package client

import (
	"log/slog"
	"net/http"
	"time"

	"github.com/hanpama/graphstore/internal/cache"
	"github.com/hanpama/graphstore/internal/eventbus"
	"github.com/hanpama/graphstore/internal/pipeline"
	"github.com/hanpama/graphstore/internal/plugins"
)

type options struct {
	handler       plugins.RequestHandler
	subscriptions plugins.SubscriptionClient
	plugins       []pipeline.Plugin
	cache         *cache.Cache
	keyFields     map[string][]string
	logger        *slog.Logger
	bus           *eventbus.Bus
	fetch         *http.Client
	gcDelay       time.Duration
}

// Option configures a Client.
type Option func(*options)

// WithRequestHandler sets the transport used for queries and mutations.
func WithRequestHandler(h plugins.RequestHandler) Option {
	return func(o *options) { o.handler = h }
}

// WithSubscriptionClient sets the transport used for subscriptions.
func WithSubscriptionClient(s plugins.SubscriptionClient) Option {
	return func(o *options) { o.subscriptions = s }
}

// WithPlugins appends caller plugins. They run after the built-in query and
// mutation plugins and before subscription and network dispatch.
func WithPlugins(p ...pipeline.Plugin) Option {
	return func(o *options) { o.plugins = append(o.plugins, p...) }
}

// WithCache makes the client use c instead of creating its own cache.
func WithCache(c *cache.Cache) Option {
	return func(o *options) { o.cache = c }
}

// WithKeyFields sets the identity fields per type of the client's cache.
// It is ignored when WithCache is used.
func WithKeyFields(fields map[string][]string) Option {
	return func(o *options) { o.keyFields = fields }
}

// WithLogger sets the logger. Defaults to slog.Default().
func WithLogger(l *slog.Logger) Option {
	return func(o *options) { o.logger = l }
}

// WithBus sets the event bus SendStart, SendFinish and cache events are
// published on.
func WithBus(b *eventbus.Bus) Option {
	return func(o *options) { o.bus = b }
}

// WithFetch sets the HTTP client handed to transports. Defaults to
// http.DefaultClient.
func WithFetch(c *http.Client) Option {
	return func(o *options) { o.fetch = c }
}

// WithGCDelay delays scheduled garbage collection passes by d.
func WithGCDelay(d time.Duration) Option {
	return func(o *options) { o.gcDelay = d }
}
