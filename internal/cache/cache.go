package cache

import (
	"context"
	"log/slog"
	"sort"
	"sync"

	"github.com/hanpama/graphstore/internal/artifact"
	"github.com/hanpama/graphstore/internal/eventbus"
	"github.com/hanpama/graphstore/internal/events"
)

// Options configure a Cache.
type Options struct {
	// KeyFields lists the identity fields per type name. Types not listed
	// use DefaultKeyFields.
	KeyFields map[string][]string
	Logger    *slog.Logger
	Bus       *eventbus.Bus
}

// Cache is the normalized record store.
type Cache struct {
	mu      sync.RWMutex
	records map[string]Record
	subs    map[uint64]Subscription
	subSeq  uint64

	keyFields map[string][]string
	logger    *slog.Logger
	bus       *eventbus.Bus
}

// New returns an empty cache.
func New(opts Options) *Cache {
	logger := opts.Logger
	if logger == nil {
		logger = slog.Default()
	}
	keyFields := make(map[string][]string, len(opts.KeyFields))
	for typename, fields := range opts.KeyFields {
		keyFields[typename] = append([]string(nil), fields...)
	}
	return &Cache{
		records:   map[string]Record{RootID: {}},
		subs:      map[uint64]Subscription{},
		keyFields: keyFields,
		logger:    logger,
		bus:       opts.Bus,
	}
}

type options struct {
	parent       string
	applyUpdates []artifact.UpdateMode
}

// Option adjusts a single Read or Write.
type Option func(*options)

// WithParent scopes a Read or Write to the record id instead of the root.
// Fragments are read and written this way.
func WithParent(id string) Option {
	return func(o *options) { o.parent = id }
}

// WithApplyUpdates lets a Write merge paginated lists with the first of modes
// the field declares. Without it every list is replaced.
func WithApplyUpdates(modes ...artifact.UpdateMode) Option {
	return func(o *options) { o.applyUpdates = append(o.applyUpdates, modes...) }
}

func buildOptions(opts []Option) options {
	o := options{parent: RootID}
	for _, opt := range opts {
		opt(&o)
	}
	if o.parent == "" {
		o.parent = RootID
	}
	return o
}

// Record returns a copy of the record stored under id.
func (c *Cache) Record(id string) (Record, bool) {
	c.mu.RLock()
	defer c.mu.RUnlock()
	rec, ok := c.records[id]
	if !ok {
		return nil, false
	}
	return rec.clone(), true
}

// Has reports whether a record is stored under id.
func (c *Cache) Has(id string) bool {
	c.mu.RLock()
	defer c.mu.RUnlock()
	_, ok := c.records[id]
	return ok
}

// Len returns the number of stored records, the root included.
func (c *Cache) Len() int {
	c.mu.RLock()
	defer c.mu.RUnlock()
	return len(c.records)
}

// IDs returns the identity keys of every stored record in lexical order.
func (c *Cache) IDs() []string {
	c.mu.RLock()
	ids := make([]string, 0, len(c.records))
	for id := range c.records {
		ids = append(ids, id)
	}
	c.mu.RUnlock()
	sort.Strings(ids)
	return ids
}

// Evict removes the record stored under id. The root record is emptied
// instead of removed. Links pointing at an evicted record read as missing.
func (c *Cache) Evict(id string) bool {
	c.mu.Lock()
	defer c.mu.Unlock()
	if id == RootID {
		c.records[RootID] = Record{}
		return true
	}
	if _, ok := c.records[id]; !ok {
		return false
	}
	delete(c.records, id)
	return true
}

func (c *Cache) publishWrite(ids []string, optimistic bool) {
	if len(ids) == 0 {
		return
	}
	eventbus.Publish(c.bus, context.Background(), events.CacheWrite{Records: ids, Optimistic: optimistic})
}
