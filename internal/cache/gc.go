package cache

import (
	"context"
	"slices"
	"sync"
	"time"

	"github.com/hanpama/graphstore/internal/artifact"
	"github.com/hanpama/graphstore/internal/eventbus"
	"github.com/hanpama/graphstore/internal/events"
)

// Subscription is an active observer of cached data. Its selection, read from
// Parent (the root record when empty) with Variables, is a root of garbage
// collection.
type Subscription struct {
	ID        string
	Parent    string
	Selection *artifact.Selection
	Variables map[string]any
}

// Subscribe registers s as a collection root until the returned function is
// called.
func (c *Cache) Subscribe(s Subscription) (unsubscribe func()) {
	c.mu.Lock()
	c.subSeq++
	token := c.subSeq
	c.subs[token] = s
	c.mu.Unlock()
	var once sync.Once
	return func() {
		once.Do(func() {
			c.mu.Lock()
			delete(c.subs, token)
			c.mu.Unlock()
		})
	}
}

// Subscriptions returns the active subscriptions in registration order.
func (c *Cache) Subscriptions() []Subscription {
	c.mu.RLock()
	defer c.mu.RUnlock()
	tokens := make([]uint64, 0, len(c.subs))
	for token := range c.subs {
		tokens = append(tokens, token)
	}
	slices.Sort(tokens)
	out := make([]Subscription, len(tokens))
	for i, token := range tokens {
		out[i] = c.subs[token]
	}
	return out
}

// GCStats describes one collection pass.
type GCStats struct {
	Marked   int
	Evicted  int
	Duration time.Duration
}

// CollectGarbage evicts every record not reachable from an active
// subscription. The reachable set is computed from scratch on each call.
//
// Marking starts at each subscription's selection on its parent record and
// then follows every link of every marked record, so a record linked from a
// reachable one is never evicted. Root fields linking to evicted records are
// dropped so later reads report them as missing.
func (c *Cache) CollectGarbage() GCStats {
	start := time.Now()
	c.mu.Lock()
	marked := map[string]bool{RootID: true}
	var queue []string
	mark := func(id string) {
		if id == "" || marked[id] {
			return
		}
		if _, ok := c.records[id]; !ok {
			return
		}
		marked[id] = true
		queue = append(queue, id)
	}
	for _, s := range c.subs {
		if s.Parent != "" && s.Parent != RootID {
			mark(s.Parent)
			continue
		}
		c.markRootSelection(s, mark)
	}
	for len(queue) > 0 {
		id := queue[len(queue)-1]
		queue = queue[:len(queue)-1]
		for _, v := range c.records[id] {
			eachLink(v, func(link Link) { mark(string(link)) })
		}
	}

	evicted := 0
	for id := range c.records {
		if !marked[id] {
			delete(c.records, id)
			evicted++
		}
	}
	if evicted > 0 {
		root := c.records[RootID]
		for key, v := range root {
			if dangling(c.records, v) {
				delete(root, key)
			}
		}
	}
	c.mu.Unlock()

	stats := GCStats{Marked: len(marked), Evicted: evicted, Duration: time.Since(start)}
	recordGC(stats)
	c.logger.Debug("cache: garbage collected", "marked", stats.Marked, "evicted", stats.Evicted, "duration", stats.Duration)
	eventbus.Publish(c.bus, context.Background(), events.GarbageCollect{
		Marked:   stats.Marked,
		Evicted:  stats.Evicted,
		Duration: stats.Duration,
	})
	return stats
}

// markRootSelection marks the records linked from the root fields s selects.
// The root record itself links every query's data, so only selected fields
// are followed from it.
func (c *Cache) markRootSelection(s Subscription, mark func(string)) {
	if s.Selection == nil {
		return
	}
	root := c.records[RootID]
	for name, field := range s.Selection.Fields {
		if field.Selection == nil {
			continue
		}
		key := artifact.EvaluateKey(field.KeyRaw, s.Variables)
		if key == "" {
			key = name
		}
		eachLink(root[key], func(link Link) { mark(string(link)) })
	}
}

func dangling(records map[string]Record, v any) bool {
	missing := false
	eachLink(v, func(link Link) {
		if _, ok := records[string(link)]; !ok {
			missing = true
		}
	})
	return missing
}
