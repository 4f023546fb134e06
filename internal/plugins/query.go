package plugins

import (
	"maps"
	"sync"

	"github.com/google/uuid"

	"github.com/hanpama/graphstore/internal/artifact"
	"github.com/hanpama/graphstore/internal/cache"
	"github.com/hanpama/graphstore/internal/pipeline"
)

// Query keeps the document's data alive in c. Each execution of a query
// registers a cache subscription for the selection with the execution's
// variables, replacing the one registered by the previous execution.
// Cleanup releases it.
func Query(c *cache.Cache) pipeline.Plugin {
	return func() pipeline.Instance {
		q := &queryRoot{cache: c, id: uuid.NewString()}
		return pipeline.Instance{
			Name: "query",
			Phases: []pipeline.PhaseHooks{{
				Phase: pipeline.PhaseSetup,
				Enter: func(ctx *pipeline.Context, ctl pipeline.EnterControl) error {
					if ctx.Artifact.Kind == artifact.KindQuery {
						q.retain(ctx.Artifact.Selection, ctx.Variables)
					}
					ctl.Next()
					return nil
				},
			}},
			Cleanup: q.release,
		}
	}
}

type queryRoot struct {
	cache *cache.Cache
	id    string

	mu          sync.Mutex
	unsubscribe func()
}

func (q *queryRoot) retain(sel *artifact.Selection, variables map[string]any) {
	unsubscribe := q.cache.Subscribe(cache.Subscription{
		ID:        q.id,
		Selection: sel,
		Variables: maps.Clone(variables),
	})
	q.mu.Lock()
	prev := q.unsubscribe
	q.unsubscribe = unsubscribe
	q.mu.Unlock()
	if prev != nil {
		prev()
	}
}

func (q *queryRoot) release() {
	q.mu.Lock()
	prev := q.unsubscribe
	q.unsubscribe = nil
	q.mu.Unlock()
	if prev != nil {
		prev()
	}
}
