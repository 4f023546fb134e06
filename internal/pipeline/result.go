package pipeline

import (
	"github.com/vektah/gqlparser/v2/gqlerror"
)

// Source tags where a result's data came from.
type Source string

const (
	SourceCache   Source = "cache"
	SourceNetwork Source = "network"
	// SourceSSR marks data fetched on the network before the client started,
	// for example during server-side rendering.
	SourceSSR Source = "ssr"
)

// Result is what a document execution produces for its caller and listeners.
type Result struct {
	Data      map[string]any `json:"data"`
	Errors    gqlerror.List  `json:"errors"`
	Partial   bool           `json:"partial"`
	Fetching  bool           `json:"fetching"`
	Variables map[string]any `json:"variables"`
	Source    Source         `json:"source"`
}

// OK reports whether the result carries data and no errors.
func (r Result) OK() bool {
	return r.Data != nil && len(r.Errors) == 0
}
