package client

import (
	"context"
	"fmt"
	"maps"
	"sync"
	"time"

	"github.com/vektah/gqlparser/v2/gqlerror"

	"github.com/hanpama/graphstore/internal/artifact"
	"github.com/hanpama/graphstore/internal/eventbus"
	"github.com/hanpama/graphstore/internal/events"
	"github.com/hanpama/graphstore/internal/pipeline"
	"github.com/hanpama/graphstore/internal/plugins"
	reqid "github.com/hanpama/graphstore/internal/reqid"
)

// SendOptions are the per-call inputs of Send.
type SendOptions struct {
	Variables map[string]any
	// Policy overrides the artifact's cache policy for queries.
	Policy   artifact.CachePolicy
	Session  map[string]any
	Metadata map[string]any
}

type listener struct {
	id int
	fn func(pipeline.Result)
}

// Observer executes one artifact and remembers its latest result.
type Observer struct {
	client    *Client
	artifact  *artifact.Artifact
	engine    *pipeline.Engine
	instances []pipeline.Instance

	mu        sync.Mutex
	last      pipeline.Result
	listeners []listener
	seq       int
	cleanup   sync.Once
}

// Artifact returns the observed artifact.
func (o *Observer) Artifact() *artifact.Artifact { return o.artifact }

// Send executes the artifact once, stores the result as the latest one and
// notifies every listener. Concurrent sends run independently; the one that
// completes last determines State.
func (o *Observer) Send(ctx context.Context, opts SendOptions) (pipeline.Result, error) {
	if o.artifact.Kind == artifact.KindFragment {
		return pipeline.Result{}, ErrNotSendable
	}
	if opts.Policy != "" && !opts.Policy.Valid() {
		return pipeline.Result{}, fmt.Errorf("%w: %q", ErrInvalidPolicy, opts.Policy)
	}
	ctx, rid := reqid.NewContext(ctx)

	pc := pipeline.NewContext(ctx, o.artifact, maps.Clone(opts.Variables))
	pc.Fetch = o.client.fetch
	pc.Policy = opts.Policy
	if opts.Session != nil {
		pc.Session = opts.Session
	}
	if opts.Metadata != nil {
		pc.Metadata = maps.Clone(opts.Metadata)
	}
	pc.Push = func(r pipeline.Result) { o.publish(r) }

	bus := o.client.bus
	start := time.Now()
	eventbus.Publish(bus, ctx, events.SendStart{
		Document: o.artifact.Name,
		Kind:     string(o.artifact.Kind),
		Policy:   string(plugins.ResolvePolicy(o.artifact, opts.Policy)),
	})
	res, err := o.engine.Run(pc)
	finish := events.SendFinish{
		Document: o.artifact.Name,
		Kind:     string(o.artifact.Kind),
		Source:   string(res.Source),
		Partial:  res.Partial,
		Errors:   len(res.Errors),
		Err:      err,
		Duration: time.Since(start),
	}
	eventbus.Publish(bus, ctx, finish)
	if err != nil {
		o.client.logger.Error("client: send failed", "document", o.artifact.Name, "call", rid, "error", err)
		return pipeline.Result{}, err
	}
	o.client.logger.Debug("client: send finished", "document", o.artifact.Name, "call", rid, "source", res.Source, "duration", finish.Duration)
	return o.publish(res), nil
}

// publish records r as the latest result and notifies listeners.
func (o *Observer) publish(r pipeline.Result) pipeline.Result {
	if r.Errors == nil {
		r.Errors = gqlerror.List{}
	}
	o.mu.Lock()
	o.last = r
	fns := make([]func(pipeline.Result), len(o.listeners))
	for i, l := range o.listeners {
		fns[i] = l.fn
	}
	o.mu.Unlock()
	for _, fn := range fns {
		fn(r)
	}
	return r
}

// Subscribe registers fn to receive every future result. Unsubscribing stops
// notification only; it does not cancel sends in flight. Listeners do not
// affect garbage collection: data the observer has loaded stays retained from
// its first Send until Cleanup, whether or not anyone is subscribed.
func (o *Observer) Subscribe(fn func(pipeline.Result)) (unsubscribe func()) {
	o.mu.Lock()
	o.seq++
	id := o.seq
	o.listeners = append(o.listeners, listener{id: id, fn: fn})
	o.mu.Unlock()
	return func() {
		o.mu.Lock()
		defer o.mu.Unlock()
		for i, l := range o.listeners {
			if l.id == id {
				o.listeners = append(o.listeners[:i:i], o.listeners[i+1:]...)
				return
			}
		}
	}
}

// State returns the latest result.
func (o *Observer) State() pipeline.Result {
	o.mu.Lock()
	defer o.mu.Unlock()
	return o.last
}

// Cleanup releases the plugin instances' resources, such as cache
// subscriptions and open streams. It is safe to call more than once.
func (o *Observer) Cleanup() {
	o.cleanup.Do(func() {
		for _, inst := range o.instances {
			if inst.Cleanup != nil {
				inst.Cleanup()
			}
		}
		o.client.forget(o)
	})
}
