package cache

import (
	"github.com/hanpama/graphstore/internal/artifact"
)

// ReadResult is the outcome of a Read. Data is nil when none of the selected
// root fields is stored. Partial is set when some selected value was found
// and some other selected value, or a record it links to, was not.
type ReadResult struct {
	Data    map[string]any
	Partial bool
}

// Read assembles the data selected by sel from the stored records. Missing
// values are reported through Partial and read as null.
func (c *Cache) Read(sel *artifact.Selection, variables map[string]any, opts ...Option) ReadResult {
	o := buildOptions(opts)
	r := reader{c: c, variables: variables}
	c.mu.RLock()
	data, found := r.object(o.parent, sel)
	c.mu.RUnlock()

	res := ReadResult{}
	if found {
		res.Data = data
		res.Partial = r.partial
	}
	recordRead(res)
	return res
}

type reader struct {
	c         *Cache
	variables map[string]any
	partial   bool
}

// object reads sel from the record id. The second result reports whether any
// selected field was stored on the record.
func (r *reader) object(id string, sel *artifact.Selection) (map[string]any, bool) {
	rec, ok := r.c.records[id]
	if !ok {
		r.partial = true
		return nil, false
	}
	typename, _ := rec["__typename"].(string)
	fields := sel.FieldsFor(typename)
	out := make(map[string]any, len(fields))
	found := false
	for name, field := range fields {
		key := artifact.EvaluateKey(field.KeyRaw, r.variables)
		if key == "" {
			key = name
		}
		v, ok := rec[key]
		if !ok {
			r.partial = true
			out[name] = nil
			continue
		}
		found = true
		switch val := v.(type) {
		case Link:
			out[name] = r.linked(string(val), field.Selection)
		case LinkList:
			items := make([]any, len(val))
			for i, link := range val {
				if link == "" {
					continue
				}
				items[i] = r.linked(string(link), field.Selection)
			}
			out[name] = items
		case NestedLinks:
			out[name] = r.nested(val, field.Selection)
		default:
			out[name] = cloneValue(val)
		}
	}
	return out, found
}

func (r *reader) nested(links NestedLinks, sel *artifact.Selection) []any {
	items := make([]any, len(links))
	for i, item := range links {
		switch v := item.(type) {
		case Link:
			items[i] = r.linked(string(v), sel)
		case NestedLinks:
			items[i] = r.nested(v, sel)
		}
	}
	return items
}

func (r *reader) linked(id string, sel *artifact.Selection) any {
	obj, _ := r.object(id, sel)
	if obj == nil {
		return nil
	}
	return obj
}
