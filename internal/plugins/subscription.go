package plugins

import (
	"context"
	"errors"
	"sync"

	"github.com/google/uuid"
	"github.com/vektah/gqlparser/v2/gqlerror"

	"github.com/hanpama/graphstore/internal/artifact"
	"github.com/hanpama/graphstore/internal/cache"
	language "github.com/hanpama/graphstore/internal/language"
	"github.com/hanpama/graphstore/internal/pipeline"
)

// ErrNoSubscriptionClient is returned when a subscription document is sent
// by a client configured without a SubscriptionClient.
var ErrNoSubscriptionClient = errors.New("plugins: no subscription client configured")

// SubscriptionClient starts long-lived streams. sink is called for every
// payload until stop is called.
type SubscriptionClient interface {
	Subscribe(ctx context.Context, params FetchParams, sink func(Payload)) (stop func(), err error)
}

// Subscription starts a stream for subscription documents. The execution
// resolves immediately with Fetching set; every later payload is written to c
// and delivered through the context's Push. Sending again replaces the
// stream, and Cleanup stops it. While a stream is open its selection is a
// cache subscription, so collection keeps the streamed data.
func Subscription(client SubscriptionClient, c *cache.Cache) pipeline.Plugin {
	return func() pipeline.Instance {
		s := &stream{root: &queryRoot{cache: c, id: uuid.NewString()}}
		return pipeline.Instance{
			Name: "subscription",
			Phases: []pipeline.PhaseHooks{{
				Phase: pipeline.PhaseNetwork,
				Enter: func(ctx *pipeline.Context, ctl pipeline.EnterControl) error {
					if ctx.Artifact.Kind != artifact.KindSubscription {
						ctl.Next()
						return nil
					}
					if client == nil {
						return ErrNoSubscriptionClient
					}
					sel := ctx.Artifact.Selection
					variables := ctx.Variables
					push := ctx.Push
					sink := func(p Payload) {
						res := pipeline.Result{
							Data:      p.Data,
							Errors:    p.Errors,
							Variables: variables,
							Source:    pipeline.SourceNetwork,
						}
						if res.OK() {
							c.Write(sel, p.Data, variables)
						}
						push(res)
					}
					s.stop()
					s.root.retain(sel, variables)
					stop, err := client.Subscribe(context.WithoutCancel(ctx.Ctx), ParamsFor(ctx.Artifact, variables), sink)
					if err != nil {
						s.root.release()
						ctl.Resolve(pipeline.Result{
							Errors:    gqlerror.List{language.WrapError(err)},
							Variables: variables,
							Source:    pipeline.SourceNetwork,
						})
						return nil
					}
					s.set(stop)
					ctl.Resolve(pipeline.Result{Fetching: true, Variables: variables, Source: pipeline.SourceNetwork})
					return nil
				},
			}},
			Cleanup: s.stop,
		}
	}
}

type stream struct {
	root *queryRoot

	mu     sync.Mutex
	cancel func()
}

func (s *stream) set(stop func()) {
	s.mu.Lock()
	s.cancel = stop
	s.mu.Unlock()
}

func (s *stream) stop() {
	s.mu.Lock()
	cancel := s.cancel
	s.cancel = nil
	s.mu.Unlock()
	if cancel != nil {
		cancel()
	}
	s.root.release()
}
