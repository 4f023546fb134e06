package events

import "time"

// CacheWrite is emitted after a write has been applied to the cache.
type CacheWrite struct {
	Records    []string
	Optimistic bool
}

// GarbageCollect is emitted after a collection pass.
type GarbageCollect struct {
	Marked   int
	Evicted  int
	Duration time.Duration
}
