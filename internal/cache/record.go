package cache

import "reflect"

// RootID is the identity of the record holding the root fields of queries.
const RootID = "_ROOT_"

// Link references another record by identity key.
type Link string

// LinkList is the stored form of a list of objects. Null elements are "".
type LinkList []Link

// NestedLinks is the stored form of a list whose elements are lists of
// objects, such as [[User]]. Each element is nil, a Link, or a NestedLinks
// for the next level.
type NestedLinks []any

// Record holds the stored fields of one object keyed by evaluated raw key.
type Record map[string]any

func (r Record) clone() Record {
	out := make(Record, len(r))
	for k, v := range r {
		out[k] = cloneValue(v)
	}
	return out
}

// cloneValue copies the mutable containers that may appear in a stored value
// so callers never alias cache memory.
func cloneValue(v any) any {
	switch val := v.(type) {
	case LinkList:
		return append(LinkList(nil), val...)
	case NestedLinks:
		out := make(NestedLinks, len(val))
		for i, item := range val {
			out[i] = cloneValue(item)
		}
		return out
	case []any:
		out := make([]any, len(val))
		for i, item := range val {
			out[i] = cloneValue(item)
		}
		return out
	case map[string]any:
		out := make(map[string]any, len(val))
		for k, item := range val {
			out[k] = cloneValue(item)
		}
		return out
	default:
		return v
	}
}

// eachLink calls fn for every non-null link held by a stored value.
func eachLink(v any, fn func(Link)) {
	switch val := v.(type) {
	case Link:
		if val != "" {
			fn(val)
		}
	case LinkList:
		for _, link := range val {
			if link != "" {
				fn(link)
			}
		}
	case NestedLinks:
		for _, item := range val {
			eachLink(item, fn)
		}
	}
}

// asList returns the elements of a list value as decoded from JSON or built
// in Go.
func asList(v any) ([]any, bool) {
	switch val := v.(type) {
	case []any:
		return val, true
	case []map[string]any:
		out := make([]any, len(val))
		for i, item := range val {
			out[i] = item
		}
		return out, true
	}
	return nil, false
}

// objectList is asList for fields with a selection. It also accepts Go slices
// of lists such as [][]map[string]any.
func objectList(v any) ([]any, bool) {
	if items, ok := asList(v); ok {
		return items, true
	}
	rv := reflect.ValueOf(v)
	if v == nil || rv.Kind() != reflect.Slice {
		return nil, false
	}
	out := make([]any, rv.Len())
	for i := range out {
		out[i] = rv.Index(i).Interface()
	}
	return out, true
}
