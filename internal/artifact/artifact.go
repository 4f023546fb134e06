// Package artifact describes compiled documents: the immutable selection trees
// and metadata the runtime consumes for each query, mutation, subscription or
// fragment. Artifacts are produced by an external compiler; this package only
// models and decodes them.
package artifact

import "sort"

type Kind string

const (
	KindQuery        Kind = "Query"
	KindMutation     Kind = "Mutation"
	KindSubscription Kind = "Subscription"
	KindFragment     Kind = "Fragment"
)

// CachePolicy governs whether a document's data may or must come from the
// cache rather than the network.
type CachePolicy string

const (
	NetworkOnly     CachePolicy = "NetworkOnly"
	CacheOnly       CachePolicy = "CacheOnly"
	CacheOrNetwork  CachePolicy = "CacheOrNetwork"
	CacheAndNetwork CachePolicy = "CacheAndNetwork"
)

// DefaultPolicy applies to queries whose artifact declares no policy.
const DefaultPolicy = CacheOrNetwork

func (p CachePolicy) Valid() bool {
	switch p {
	case NetworkOnly, CacheOnly, CacheOrNetwork, CacheAndNetwork:
		return true
	}
	return false
}

// UpdateMode is the list-update strategy applied when writing a paginated field.
type UpdateMode string

const (
	UpdateReplace UpdateMode = "replace"
	UpdateAppend  UpdateMode = "append"
	UpdatePrepend UpdateMode = "prepend"
)

// Artifact is the compiled description of one document.
type Artifact struct {
	Kind      Kind        `json:"kind"`
	Hash      string      `json:"hash"`
	Raw       string      `json:"raw"`
	Name      string      `json:"name"`
	RootType  string      `json:"rootType"`
	Selection *Selection  `json:"selection"`
	Input     *Input      `json:"input,omitempty"`
	Policy    CachePolicy `json:"policy,omitempty"`
	Partial   bool        `json:"partial,omitempty"`
}

// Input lists the declared variables of a document and the shape of any input
// object types they reference.
type Input struct {
	Fields map[string]string            `json:"fields"`
	Types  map[string]map[string]string `json:"types"`
}

// Selection is one level of a document's selection tree. Fields are keyed by
// response name (alias or field name).
type Selection struct {
	Fields   map[string]*Field  `json:"fields,omitempty"`
	Abstract *AbstractSelection `json:"abstractFields,omitempty"`
}

// AbstractSelection holds the per-concrete-type fields of an interface or
// union selection. TypeMap redirects a concrete type to the entry in Fields
// that applies to it.
type AbstractSelection struct {
	Fields  map[string]map[string]*Field `json:"fields"`
	TypeMap map[string]string            `json:"typeMap,omitempty"`
}

type Field struct {
	Type       string       `json:"type"`
	KeyRaw     string       `json:"keyRaw"`
	Nullable   bool         `json:"nullable,omitempty"`
	List       *ListInfo    `json:"listInfo,omitempty"`
	Selection  *Selection   `json:"selection,omitempty"`
	Abstract   bool         `json:"abstract,omitempty"`
	Directives []Directive  `json:"directives,omitempty"`
	Updates    []UpdateMode `json:"updates,omitempty"`
}

type ListInfo struct {
	NullableElement bool `json:"nullableElement"`
}

type Directive struct {
	Name      string         `json:"name"`
	Arguments map[string]any `json:"arguments,omitempty"`
}

// Paginated reports whether writes to the field may merge lists instead of
// replacing them.
func (f *Field) Paginated() bool {
	if len(f.Updates) > 0 {
		return true
	}
	for _, d := range f.Directives {
		if d.Name == "paginate" {
			return true
		}
	}
	return false
}

// Allows reports whether mode is one of the field's declared updates.
func (f *Field) Allows(mode UpdateMode) bool {
	for _, u := range f.Updates {
		if u == mode {
			return true
		}
	}
	return false
}

// FieldsFor returns the fields that apply to an object of the given concrete
// type: the common fields plus any abstract fields selected for typename.
func (s *Selection) FieldsFor(typename string) map[string]*Field {
	if s == nil {
		return nil
	}
	if s.Abstract == nil || typename == "" {
		return s.Fields
	}
	target := typename
	if mapped, ok := s.Abstract.TypeMap[typename]; ok {
		target = mapped
	}
	specific, ok := s.Abstract.Fields[target]
	if !ok || len(specific) == 0 {
		return s.Fields
	}
	merged := make(map[string]*Field, len(s.Fields)+len(specific))
	for name, f := range s.Fields {
		merged[name] = f
	}
	for name, f := range specific {
		merged[name] = f
	}
	return merged
}

// SortedNames returns the response names of fields in lexical order.
func SortedNames(fields map[string]*Field) []string {
	names := make([]string, 0, len(fields))
	for name := range fields {
		names = append(names, name)
	}
	sort.Strings(names)
	return names
}
