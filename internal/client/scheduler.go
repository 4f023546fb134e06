package client

import (
	"log/slog"
	"sync"
	"time"

	"golang.org/x/sync/singleflight"

	"github.com/hanpama/graphstore/internal/cache"
)

// gcScheduler runs collection passes off the caller's goroutine. Requests
// that arrive while a pass is running share that pass.
type gcScheduler struct {
	cache  *cache.Cache
	delay  time.Duration
	logger *slog.Logger
	group  singleflight.Group

	mu     sync.Mutex
	closed bool
	stop   chan struct{}
	wg     sync.WaitGroup
}

func newGCScheduler(c *cache.Cache, delay time.Duration, logger *slog.Logger) *gcScheduler {
	return &gcScheduler{cache: c, delay: delay, logger: logger, stop: make(chan struct{})}
}

// ScheduleGC starts a pass in the background. It does nothing once the
// scheduler is closed.
func (s *gcScheduler) ScheduleGC() {
	s.mu.Lock()
	if s.closed {
		s.mu.Unlock()
		return
	}
	s.wg.Add(1)
	s.mu.Unlock()

	go func() {
		defer s.wg.Done()
		if s.delay > 0 {
			timer := time.NewTimer(s.delay)
			select {
			case <-timer.C:
			case <-s.stop:
				timer.Stop()
				return
			}
		}
		s.collect()
	}()
}

func (s *gcScheduler) collect() cache.GCStats {
	v, _, shared := s.group.Do("gc", func() (any, error) {
		return s.cache.CollectGarbage(), nil
	})
	if shared {
		s.logger.Debug("client: garbage collection coalesced")
	}
	return v.(cache.GCStats)
}

// Close cancels delayed passes and waits for running ones.
func (s *gcScheduler) Close() {
	s.mu.Lock()
	if !s.closed {
		s.closed = true
		close(s.stop)
	}
	s.mu.Unlock()
	s.wg.Wait()
}
