package plugins

import (
	"github.com/hanpama/graphstore/internal/artifact"
	"github.com/hanpama/graphstore/internal/cache"
	"github.com/hanpama/graphstore/internal/pipeline"
)

// MetadataOptimisticResponse is the metadata key holding the response a
// mutation is expected to return.
const MetadataOptimisticResponse = "optimisticResponse"

const stuffRollback = "mutation.rollback"

// Mutation writes the optimistic response of a mutation to c before it is
// dispatched and reverts it once the mutation returns. A successful response
// is then written by CachePolicy, which unwinds after this plugin.
func Mutation(c *cache.Cache) pipeline.Plugin {
	return func() pipeline.Instance {
		return pipeline.Instance{
			Name: "mutation",
			Phases: []pipeline.PhaseHooks{{
				Phase: pipeline.PhaseNetwork,
				Enter: func(ctx *pipeline.Context, ctl pipeline.EnterControl) error {
					if ctx.Artifact.Kind != artifact.KindMutation {
						ctl.Next()
						return nil
					}
					if optimistic, ok := ctx.Metadata[MetadataOptimisticResponse].(map[string]any); ok {
						_, rollback := c.WriteOptimistic(ctx.Artifact.Selection, optimistic, ctx.Variables)
						ctx.Stuff[stuffRollback] = rollback
					}
					ctl.Next()
					return nil
				},
				Exit: func(ctx *pipeline.Context, ctl pipeline.ExitControl) error {
					if rollback, ok := ctx.Stuff[stuffRollback].(func()); ok {
						rollback()
						delete(ctx.Stuff, stuffRollback)
					}
					ctl.Resolve()
					return nil
				},
			}},
		}
	}
}
