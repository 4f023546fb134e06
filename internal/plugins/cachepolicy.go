package plugins

import (
	"github.com/hanpama/graphstore/internal/artifact"
	"github.com/hanpama/graphstore/internal/cache"
	"github.com/hanpama/graphstore/internal/pipeline"
)

// MetadataApplyUpdates is the metadata key holding the []artifact.UpdateMode
// a network result should be written with, for example when loading the next
// page of a paginated field.
const MetadataApplyUpdates = "applyUpdates"

// GCScheduler arranges for a garbage-collection pass to run later.
type GCScheduler interface {
	ScheduleGC()
}

// ResolvePolicy returns the effective cache policy of a document execution.
// Only queries may use the cache; requested overrides the artifact's default.
func ResolvePolicy(a *artifact.Artifact, requested artifact.CachePolicy) artifact.CachePolicy {
	if a.Kind != artifact.KindQuery {
		return artifact.NetworkOnly
	}
	if requested != "" {
		return requested
	}
	if a.Policy != "" {
		return a.Policy
	}
	return artifact.DefaultPolicy
}

// CachePolicy enforces the cache policy of each execution against c.
//
// In the network phase it reads the cache for queries and resolves from it
// when the policy allows; otherwise the execution continues to the network.
// On the way back, successful network results are written to c and, for
// queries, a collection pass is scheduled on gc.
func CachePolicy(c *cache.Cache, gc GCScheduler) pipeline.Plugin {
	return func() pipeline.Instance {
		return pipeline.Instance{
			Name: "cachePolicy",
			Phases: []pipeline.PhaseHooks{
				{
					Phase: pipeline.PhaseSetup,
					Enter: func(ctx *pipeline.Context, ctl pipeline.EnterControl) error {
						ctx.Policy = ResolvePolicy(ctx.Artifact, ctx.Policy)
						ctl.Next()
						return nil
					},
				},
				{
					Phase: pipeline.PhaseNetwork,
					Enter: func(ctx *pipeline.Context, ctl pipeline.EnterControl) error {
						if ctx.Artifact.Kind != artifact.KindQuery || ctx.Policy == artifact.NetworkOnly {
							ctl.Next()
							return nil
						}
						read := c.Read(ctx.Artifact.Selection, ctx.Variables)
						acceptable := read.Data != nil && (!read.Partial || ctx.Artifact.Partial)
						cached := pipeline.Result{
							Data:      read.Data,
							Partial:   read.Partial,
							Variables: ctx.Variables,
							Source:    pipeline.SourceCache,
						}
						switch ctx.Policy {
						case artifact.CacheOnly:
							if !acceptable {
								cached = pipeline.Result{Variables: ctx.Variables, Source: pipeline.SourceCache}
							}
							ctl.Resolve(cached)
							return nil
						case artifact.CacheOrNetwork:
							if acceptable {
								ctl.Resolve(cached)
								return nil
							}
						case artifact.CacheAndNetwork:
							if acceptable {
								cached.Fetching = true
								ctx.Push(cached)
							}
						}
						ctl.Next()
						return nil
					},
					Exit: func(ctx *pipeline.Context, ctl pipeline.ExitControl) error {
						res := ctx.Result
						if res != nil && res.Source != pipeline.SourceCache && res.OK() {
							var opts []cache.Option
							if modes, ok := ctx.Metadata[MetadataApplyUpdates].([]artifact.UpdateMode); ok {
								opts = append(opts, cache.WithApplyUpdates(modes...))
							}
							c.Write(ctx.Artifact.Selection, res.Data, ctx.Variables, opts...)
							if ctx.Artifact.Kind == artifact.KindQuery && gc != nil {
								gc.ScheduleGC()
							}
						}
						ctl.Resolve()
						return nil
					},
				},
			},
		}
	}
}
