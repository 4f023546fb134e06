package cache

import (
	"fmt"
	"strconv"
	"strings"

	"github.com/hanpama/graphstore/internal/artifact"
)

// DefaultKeyFields identify an object when its type declares no key fields.
var DefaultKeyFields = []string{"id"}

func (c *Cache) keyFieldsFor(typename string) []string {
	if fields, ok := c.keyFields[typename]; ok {
		return fields
	}
	return DefaultKeyFields
}

// IdentityOf returns the identity key for an object of type typename, or
// false when any key field is missing or null.
func (c *Cache) IdentityOf(typename string, obj map[string]any) (string, bool) {
	if typename == "" {
		return "", false
	}
	fields := c.keyFieldsFor(typename)
	if len(fields) == 0 {
		return "", false
	}
	var b strings.Builder
	b.WriteString(typename)
	for _, name := range fields {
		v, ok := obj[name]
		if !ok || v == nil {
			return "", false
		}
		b.WriteByte(':')
		b.WriteString(keyValue(v))
	}
	return b.String(), true
}

func keyValue(v any) string {
	switch val := v.(type) {
	case string:
		return val
	case float64:
		return strconv.FormatFloat(val, 'f', -1, 64)
	default:
		return fmt.Sprint(val)
	}
}

// typenameOf returns the concrete type of obj for field. Abstract fields rely
// on __typename in the payload.
func typenameOf(field *artifact.Field, obj map[string]any) string {
	if name, ok := obj["__typename"].(string); ok && name != "" {
		return name
	}
	if field != nil && !field.Abstract {
		return field.Type
	}
	return ""
}

func pathKey(parent, key string) string {
	return parent + "." + key
}

func indexKey(parent, key string, i int) string {
	return elemKey(pathKey(parent, key), i)
}

func elemKey(path string, i int) string {
	return path + "[" + strconv.Itoa(i) + "]"
}
