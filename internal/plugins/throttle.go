package plugins

import (
	"github.com/vektah/gqlparser/v2/gqlerror"
	"golang.org/x/time/rate"

	language "github.com/hanpama/graphstore/internal/language"
	"github.com/hanpama/graphstore/internal/pipeline"
)

// Throttle delays network dispatch until limiter grants a token. Executions
// resolved from the cache never reach it. A wait that fails, because the
// context ends or the wait can never succeed, resolves with an error.
func Throttle(limiter *rate.Limiter) pipeline.Plugin {
	return func() pipeline.Instance {
		return pipeline.Instance{
			Name: "throttle",
			Phases: []pipeline.PhaseHooks{{
				Phase: pipeline.PhaseNetwork,
				Enter: func(ctx *pipeline.Context, ctl pipeline.EnterControl) error {
					if err := limiter.Wait(ctx.Ctx); err != nil {
						ctl.Resolve(pipeline.Result{
							Errors:    gqlerror.List{language.WrapError(err)},
							Variables: ctx.Variables,
							Source:    pipeline.SourceNetwork,
						})
						return nil
					}
					ctl.Next()
					return nil
				},
			}},
		}
	}
}
