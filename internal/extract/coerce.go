package extract

import (
	"encoding/json"
	"strconv"
	"strings"
)

// Clamp01 bounds x to [0,1].
func Clamp01(x float64) float64 {
	if x < 0 {
		return 0
	}
	if x > 1 {
		return 1
	}
	return x
}

// Float coerces a decoded JSON value to float64. Numeric strings are accepted.
func Float(v any) (float64, bool) {
	switch n := v.(type) {
	case float64:
		return n, true
	case float32:
		return float64(n), true
	case int:
		return float64(n), true
	case int64:
		return float64(n), true
	case json.Number:
		f, err := n.Float64()
		return f, err == nil
	case string:
		f, err := strconv.ParseFloat(strings.TrimSpace(n), 64)
		return f, err == nil
	}
	return 0, false
}

// String returns v trimmed when it is a string, else "".
func String(v any) string {
	s, ok := v.(string)
	if !ok {
		return ""
	}
	return strings.TrimSpace(s)
}

// Truncate cuts s to at most n runes.
func Truncate(s string, n int) string {
	if n <= 0 {
		return ""
	}
	if len(s) <= n {
		return s
	}
	r := []rune(s)
	if len(r) <= n {
		return s
	}
	return string(r[:n])
}

// StringList reads a JSON array of strings. Only the first maxItems entries
// are examined; non-strings and blank entries are dropped, the rest trimmed
// and truncated to maxLen runes.
func StringList(v any, maxItems, maxLen int) []string {
	arr, ok := v.([]any)
	if !ok {
		return []string{}
	}
	if len(arr) > maxItems {
		arr = arr[:maxItems]
	}
	out := make([]string, 0, len(arr))
	for _, x := range arr {
		s := String(x)
		if s == "" {
			continue
		}
		out = append(out, Truncate(s, maxLen))
	}
	return out
}

// Objects reads a JSON array of objects, keeping at most max of the raw entries.
func Objects(v any, max int) []map[string]any {
	arr, ok := v.([]any)
	if !ok {
		return nil
	}
	if len(arr) > max {
		arr = arr[:max]
	}
	out := make([]map[string]any, 0, len(arr))
	for _, x := range arr {
		if m, ok := x.(map[string]any); ok {
			out = append(out, m)
		}
	}
	return out
}
