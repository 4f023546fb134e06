package plugins

import (
	"context"
	"net/http"

	"github.com/vektah/gqlparser/v2/gqlerror"

	"github.com/hanpama/graphstore/internal/artifact"
	language "github.com/hanpama/graphstore/internal/language"
	"github.com/hanpama/graphstore/internal/pipeline"
)

// FetchParams describe the document a transport should execute.
type FetchParams struct {
	Text      string
	Hash      string
	Name      string
	Variables map[string]any
}

// RequestArgs is everything a transport receives for one dispatch.
type RequestArgs struct {
	FetchParams
	Fetch    *http.Client
	Session  map[string]any
	Metadata map[string]any
}

// Payload is a response as returned by a transport. SSR marks payloads that
// were fetched ahead of time.
type Payload struct {
	Data   map[string]any `json:"data"`
	Errors gqlerror.List  `json:"errors,omitempty"`
	SSR    bool           `json:"-"`
}

// RequestHandler executes one document over some transport.
type RequestHandler interface {
	Request(ctx context.Context, args RequestArgs) (Payload, error)
}

// RequestHandlerFunc adapts a function to RequestHandler.
type RequestHandlerFunc func(ctx context.Context, args RequestArgs) (Payload, error)

func (f RequestHandlerFunc) Request(ctx context.Context, args RequestArgs) (Payload, error) {
	return f(ctx, args)
}

// ParamsFor returns the fetch parameters of a document execution.
func ParamsFor(a *artifact.Artifact, variables map[string]any) FetchParams {
	return FetchParams{Text: a.Raw, Hash: a.Hash, Name: a.Name, Variables: variables}
}

// Fetch dispatches the document through handler and resolves with the
// response. Transport failures become result errors; they are never returned
// as hook errors.
func Fetch(handler RequestHandler) pipeline.Plugin {
	return func() pipeline.Instance {
		return pipeline.Instance{
			Name: "fetch",
			Phases: []pipeline.PhaseHooks{{
				Phase: pipeline.PhaseNetwork,
				Enter: func(c *pipeline.Context, ctl pipeline.EnterControl) error {
					payload, err := handler.Request(c.Ctx, RequestArgs{
						FetchParams: ParamsFor(c.Artifact, c.Variables),
						Fetch:       c.Fetch,
						Session:     c.Session,
						Metadata:    c.Metadata,
					})
					ctl.Resolve(resultFor(c, payload, err))
					return nil
				},
			}},
		}
	}
}

func resultFor(c *pipeline.Context, payload Payload, err error) pipeline.Result {
	res := pipeline.Result{Variables: c.Variables, Source: pipeline.SourceNetwork}
	if err != nil {
		res.Errors = gqlerror.List{language.WrapError(err)}
		return res
	}
	res.Data = payload.Data
	res.Errors = payload.Errors
	if payload.SSR {
		res.Source = pipeline.SourceSSR
	}
	return res
}

// SessionKeyHeaders is the session key transports read extra request headers
// (or metadata) from. Its value is a map[string]string or a map[string]any of
// strings.
const SessionKeyHeaders = "headers"

// SessionHeaders returns the headers stored in a session.
func SessionHeaders(session map[string]any) map[string]string {
	switch h := session[SessionKeyHeaders].(type) {
	case map[string]string:
		return h
	case map[string]any:
		out := make(map[string]string, len(h))
		for k, v := range h {
			if s, ok := v.(string); ok {
				out[k] = s
			}
		}
		return out
	}
	return nil
}
