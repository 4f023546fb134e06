package cache

import (
	"fmt"
)

// Snapshot is a JSON-friendly copy of the store keyed by identity. Links are
// encoded as {"__link": id} and link lists as {"__links": [id or null, ...]}.
type Snapshot map[string]map[string]any

const (
	linkTag  = "__link"
	linksTag = "__links"
)

// Snapshot exports every record.
func (c *Cache) Snapshot() Snapshot {
	c.mu.RLock()
	defer c.mu.RUnlock()
	out := make(Snapshot, len(c.records))
	for id, rec := range c.records {
		out[id] = EncodeRecord(rec)
	}
	return out
}

// Hydrate merges s into the store field by field, as a Write would.
func (c *Cache) Hydrate(s Snapshot) error {
	decoded := make(map[string]Record, len(s))
	for id, fields := range s {
		rec, err := DecodeRecord(fields)
		if err != nil {
			return fmt.Errorf("cache: hydrate %s: %w", id, err)
		}
		decoded[id] = rec
	}
	c.mu.Lock()
	ids := make([]string, 0, len(decoded))
	for id, rec := range decoded {
		cur, ok := c.records[id]
		if !ok {
			cur = Record{}
			c.records[id] = cur
		}
		for k, v := range rec {
			cur[k] = v
		}
		ids = append(ids, id)
	}
	c.mu.Unlock()
	c.publishWrite(ids, false)
	return nil
}

// EncodeRecord converts r to its snapshot form.
func EncodeRecord(r Record) map[string]any {
	out := make(map[string]any, len(r))
	for k, v := range r {
		switch val := v.(type) {
		case Link:
			out[k] = map[string]any{linkTag: string(val)}
		case LinkList:
			links := make([]any, len(val))
			for i, link := range val {
				if link != "" {
					links[i] = string(link)
				}
			}
			out[k] = map[string]any{linksTag: links}
		case NestedLinks:
			out[k] = map[string]any{linksTag: encodeNested(val)}
		default:
			out[k] = cloneValue(val)
		}
	}
	return out
}

// DecodeRecord converts the snapshot form of a record back to a Record.
func DecodeRecord(fields map[string]any) (Record, error) {
	rec := make(Record, len(fields))
	for k, v := range fields {
		obj, ok := v.(map[string]any)
		if !ok || len(obj) != 1 {
			rec[k] = cloneValue(v)
			continue
		}
		if raw, ok := obj[linkTag]; ok {
			id, ok := raw.(string)
			if !ok {
				return nil, fmt.Errorf("field %s: link is %T, want string", k, raw)
			}
			rec[k] = Link(id)
			continue
		}
		if raw, ok := obj[linksTag]; ok {
			items, ok := raw.([]any)
			if !ok {
				return nil, fmt.Errorf("field %s: link list is %T, want array", k, raw)
			}
			if hasNestedList(items) {
				nested, err := decodeNested(items)
				if err != nil {
					return nil, fmt.Errorf("field %s%w", k, err)
				}
				rec[k] = nested
				continue
			}
			links := make(LinkList, len(items))
			for i, item := range items {
				switch id := item.(type) {
				case nil:
				case string:
					links[i] = Link(id)
				default:
					return nil, fmt.Errorf("field %s[%d]: link is %T, want string", k, i, item)
				}
			}
			rec[k] = links
			continue
		}
		rec[k] = cloneValue(v)
	}
	return rec, nil
}

func encodeNested(links NestedLinks) []any {
	out := make([]any, len(links))
	for i, item := range links {
		switch v := item.(type) {
		case Link:
			out[i] = string(v)
		case NestedLinks:
			out[i] = encodeNested(v)
		}
	}
	return out
}

// decodeNested reverses encodeNested. Errors are prefixed with the index path
// of the offending element.
func decodeNested(items []any) (NestedLinks, error) {
	out := make(NestedLinks, len(items))
	for i, item := range items {
		switch v := item.(type) {
		case nil:
		case string:
			out[i] = Link(v)
		case []any:
			inner, err := decodeNested(v)
			if err != nil {
				return nil, fmt.Errorf("[%d]%w", i, err)
			}
			out[i] = inner
		default:
			return nil, fmt.Errorf("[%d]: link is %T, want string", i, item)
		}
	}
	return out, nil
}
