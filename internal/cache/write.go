package cache

import (
	"github.com/hanpama/graphstore/internal/artifact"
)

// Write stores data, shaped by sel, into the cache and returns the identity
// keys of the records it touched. Objects are merged field by field into any
// existing record of the same identity.
func (c *Cache) Write(sel *artifact.Selection, data map[string]any, variables map[string]any, opts ...Option) []string {
	o := buildOptions(opts)
	c.mu.Lock()
	w := c.newWriter(variables, o, nil)
	w.writeObject(o.parent, "", sel, data)
	c.mu.Unlock()

	recordWrite(len(w.order))
	c.publishWrite(w.order, false)
	return w.order
}

// WriteOptimistic behaves like Write and also returns a function that undoes
// exactly the field changes it made, deleting records it created. Changes
// made to the same fields by later writes are overwritten by the rollback.
func (c *Cache) WriteOptimistic(sel *artifact.Selection, data map[string]any, variables map[string]any, opts ...Option) (ids []string, rollback func()) {
	o := buildOptions(opts)
	j := &journal{}
	c.mu.Lock()
	w := c.newWriter(variables, o, j)
	w.writeObject(o.parent, "", sel, data)
	c.mu.Unlock()

	recordWrite(len(w.order))
	c.publishWrite(w.order, true)
	return w.order, func() { c.rollback(j) }
}

type fieldChange struct {
	id   string
	key  string
	prev any
	had  bool
}

type journal struct {
	done    bool
	created []string
	changes []fieldChange
}

func (c *Cache) rollback(j *journal) {
	c.mu.Lock()
	if j.done {
		c.mu.Unlock()
		return
	}
	j.done = true
	touched := map[string]struct{}{}
	for i := len(j.changes) - 1; i >= 0; i-- {
		ch := j.changes[i]
		rec, ok := c.records[ch.id]
		if !ok {
			continue
		}
		if ch.had {
			rec[ch.key] = ch.prev
		} else {
			delete(rec, ch.key)
		}
		touched[ch.id] = struct{}{}
	}
	for _, id := range j.created {
		delete(c.records, id)
		touched[id] = struct{}{}
	}
	c.mu.Unlock()

	ids := make([]string, 0, len(touched))
	for id := range touched {
		ids = append(ids, id)
	}
	c.publishWrite(ids, true)
}

// writer applies one Write. It runs with c.mu held.
type writer struct {
	c         *Cache
	variables map[string]any
	apply     []artifact.UpdateMode
	journal   *journal
	seen      map[string]struct{}
	order     []string
}

func (c *Cache) newWriter(variables map[string]any, o options, j *journal) *writer {
	return &writer{
		c:         c,
		variables: variables,
		apply:     o.applyUpdates,
		journal:   j,
		seen:      map[string]struct{}{},
	}
}

func (w *writer) record(id string) Record {
	rec, ok := w.c.records[id]
	if !ok {
		rec = Record{}
		w.c.records[id] = rec
		if w.journal != nil {
			w.journal.created = append(w.journal.created, id)
		}
	}
	if _, ok := w.seen[id]; !ok {
		w.seen[id] = struct{}{}
		w.order = append(w.order, id)
	}
	return rec
}

func (w *writer) set(id, key string, v any) {
	rec := w.record(id)
	if w.journal != nil {
		prev, had := rec[key]
		w.journal.changes = append(w.journal.changes, fieldChange{id: id, key: key, prev: prev, had: had})
	}
	rec[key] = v
}

func (w *writer) writeObject(id, typename string, sel *artifact.Selection, data map[string]any) {
	rec := w.record(id)
	if typename == "" {
		typename, _ = data["__typename"].(string)
	}
	if typename == "" {
		typename, _ = rec["__typename"].(string)
	}
	if typename != "" && id != RootID {
		if cur, ok := rec["__typename"]; !ok || cur != typename {
			w.set(id, "__typename", typename)
		}
	}
	if sel == nil {
		return
	}
	fields := sel.FieldsFor(typename)
	for _, name := range artifact.SortedNames(fields) {
		value, ok := data[name]
		if !ok {
			continue
		}
		field := fields[name]
		key := artifact.EvaluateKey(field.KeyRaw, w.variables)
		if key == "" {
			key = name
		}
		if field.Selection == nil {
			w.writeScalar(id, key, field, value)
			continue
		}
		if value == nil {
			w.set(id, key, nil)
			continue
		}
		if items, ok := objectList(value); ok {
			w.writeLinks(id, key, field, items)
			continue
		}
		obj, ok := value.(map[string]any)
		if !ok {
			w.set(id, key, nil)
			continue
		}
		w.set(id, key, Link(w.writeChild(field, obj, pathKey(id, key))))
	}
}

// writeChild stores obj and returns its identity key, falling back to path
// when the object has no usable identity.
func (w *writer) writeChild(field *artifact.Field, obj map[string]any, path string) string {
	typename := typenameOf(field, obj)
	childID, ok := w.c.IdentityOf(typename, obj)
	if !ok {
		childID = path
		w.c.logger.Debug("cache: path-scoped identity", "id", childID, "type", typename)
	}
	w.writeObject(childID, typename, field.Selection, obj)
	return childID
}

func (w *writer) writeLinks(id, key string, field *artifact.Field, items []any) {
	if hasNestedList(items) {
		// Update modes apply to flat lists only; nested lists are replaced.
		w.set(id, key, w.nestedLinks(field, items, pathKey(id, key)))
		return
	}
	mode := w.mode(field)
	existing, _ := w.c.records[id][key].(LinkList)
	offset := 0
	if mode == artifact.UpdateAppend {
		offset = len(existing)
	}
	links := make(LinkList, len(items))
	for i, item := range items {
		obj, ok := item.(map[string]any)
		if !ok {
			// Null elements are stored as null.
			continue
		}
		links[i] = Link(w.writeChild(field, obj, indexKey(id, key, offset+i)))
	}
	switch mode {
	case artifact.UpdateAppend:
		merged := make(LinkList, 0, len(existing)+len(links))
		links = append(append(merged, existing...), links...)
	case artifact.UpdatePrepend:
		merged := make(LinkList, 0, len(existing)+len(links))
		links = append(append(merged, links...), existing...)
	}
	w.set(id, key, links)
}

// nestedLinks stores each object of a multi-level list under a path-scoped
// fallback key that carries every index, for example "_ROOT_.grid[0][1]".
func (w *writer) nestedLinks(field *artifact.Field, items []any, path string) NestedLinks {
	out := make(NestedLinks, len(items))
	for i, item := range items {
		at := elemKey(path, i)
		if obj, ok := item.(map[string]any); ok {
			out[i] = Link(w.writeChild(field, obj, at))
			continue
		}
		if inner, ok := objectList(item); ok {
			out[i] = w.nestedLinks(field, inner, at)
		}
	}
	return out
}

func hasNestedList(items []any) bool {
	for _, item := range items {
		if _, ok := objectList(item); ok {
			return true
		}
	}
	return false
}

func (w *writer) writeScalar(id, key string, field *artifact.Field, value any) {
	items, isList := asList(value)
	if !isList {
		w.set(id, key, cloneValue(value))
		return
	}
	items = cloneValue(items).([]any)
	existing, _ := w.c.records[id][key].([]any)
	switch w.mode(field) {
	case artifact.UpdateAppend:
		merged := make([]any, 0, len(existing)+len(items))
		items = append(append(merged, existing...), items...)
	case artifact.UpdatePrepend:
		merged := make([]any, 0, len(existing)+len(items))
		items = append(append(merged, items...), existing...)
	}
	w.set(id, key, items)
}

// mode picks the list update for field. Lists are replaced unless the write
// asked for an update the field declares.
func (w *writer) mode(field *artifact.Field) artifact.UpdateMode {
	if len(w.apply) == 0 || !field.Paginated() {
		return artifact.UpdateReplace
	}
	for _, m := range w.apply {
		if field.Allows(m) {
			return m
		}
	}
	return artifact.UpdateReplace
}
