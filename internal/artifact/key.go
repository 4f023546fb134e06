package artifact

import (
	"encoding/json"
	"fmt"
	"strings"
)

// EvaluateKey binds the variable references in a raw key. A reference is a '$'
// followed by a GraphQL name; it is replaced with the JSON form of the
// variable's value, or null when the variable is not set. Two invocations of a
// field with different arguments therefore map to different store slots.
func EvaluateKey(keyRaw string, variables map[string]any) string {
	if !strings.Contains(keyRaw, "$") {
		return keyRaw
	}
	var b strings.Builder
	b.Grow(len(keyRaw))
	for i := 0; i < len(keyRaw); {
		c := keyRaw[i]
		if c != '$' {
			b.WriteByte(c)
			i++
			continue
		}
		j := i + 1
		for j < len(keyRaw) && isNameByte(keyRaw[j]) {
			j++
		}
		if j == i+1 {
			b.WriteByte(c)
			i++
			continue
		}
		b.WriteString(serializeValue(variables[keyRaw[i+1:j]]))
		i = j
	}
	return b.String()
}

func isNameByte(c byte) bool {
	return c == '_' || (c >= 'a' && c <= 'z') || (c >= 'A' && c <= 'Z') || (c >= '0' && c <= '9')
}

func serializeValue(v any) string {
	out, err := json.Marshal(v)
	if err != nil {
		return fmt.Sprint(v)
	}
	return string(out)
}
