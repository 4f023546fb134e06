package pipeline

import (
	"context"
	"net/http"

	"github.com/hanpama/graphstore/internal/artifact"
)

// Context is the state of one execution. It is created per send and is never
// shared between concurrent executions.
type Context struct {
	// Ctx carries cancellation and request-scoped values for blocking work
	// done by hooks, such as transport calls.
	Ctx context.Context

	Artifact  *artifact.Artifact
	Variables map[string]any
	// Fetch is the HTTP client transports should use.
	Fetch    *http.Client
	Session  map[string]any
	Metadata map[string]any
	Policy   artifact.CachePolicy

	// Result is set once a hook resolves.
	Result  *Result
	Partial bool
	Source  Source

	// Stuff is scratch space plugins use to pass values between their own
	// enter and exit hooks.
	Stuff map[string]any

	// Push delivers a result to the document's listeners outside the normal
	// return path. Long-lived plugins use it for follow-up payloads.
	Push func(Result)
}

// NewContext returns a Context for executing a.
func NewContext(ctx context.Context, a *artifact.Artifact, variables map[string]any) *Context {
	if ctx == nil {
		ctx = context.Background()
	}
	if variables == nil {
		variables = map[string]any{}
	}
	return &Context{
		Ctx:       ctx,
		Artifact:  a,
		Variables: variables,
		Session:   map[string]any{},
		Metadata:  map[string]any{},
		Stuff:     map[string]any{},
		Push:      func(Result) {},
	}
}

func (c *Context) setResult(r Result) {
	if r.Variables == nil {
		r.Variables = c.Variables
	}
	c.Result = &r
	c.Partial = r.Partial
	c.Source = r.Source
}
