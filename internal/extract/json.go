// Package extract turns untrusted model output into validated candidates.
//
// Model backends are free to wrap JSON in prose, code fences or trailing
// commentary. JSONObject recovers the first usable object; the Validate*
// functions then drop every candidate that violates its schema.
package extract

import (
	"encoding/json"
	"strings"
)

// JSONObject recovers a JSON object from noisy model text.
//
// Tried in order: a fenced ```json block, every balanced {...} span from
// left to right, and finally the text between the first '{' and the last '}'.
// Only objects are accepted; arrays and scalars report false.
func JSONObject(text string) (map[string]any, bool) {
	text = strings.TrimSpace(text)
	if text == "" {
		return nil, false
	}

	var candidates []string
	if block := fencedBlock(text); block != "" {
		candidates = append(candidates, block)
	}
	candidates = append(candidates, balancedObjects(text)...)
	if i, j := strings.Index(text, "{"), strings.LastIndex(text, "}"); i >= 0 && j > i {
		candidates = append(candidates, text[i:j+1])
	}

	for _, c := range candidates {
		var obj map[string]any
		if err := json.Unmarshal([]byte(c), &obj); err == nil && obj != nil {
			return obj, true
		}
	}
	return nil, false
}

// fencedBlock returns the body of the first ``` fence, preferring one tagged json.
func fencedBlock(s string) string {
	start := strings.Index(s, "```json")
	skip := len("```json")
	if start == -1 {
		start = strings.Index(s, "```")
		skip = len("```")
		if start == -1 {
			return ""
		}
	}
	body := s[start+skip:]
	end := strings.Index(body, "```")
	if end == -1 {
		return ""
	}
	return strings.TrimSpace(body[:end])
}

// balancedObjects returns each top-level {...} span whose braces balance.
// Braces inside JSON strings are ignored.
func balancedObjects(s string) []string {
	var out []string
	for start := strings.IndexByte(s, '{'); start >= 0; {
		from := start + 1
		if end := matchBrace(s, start); end >= 0 {
			out = append(out, s[start:end+1])
			from = end + 1
		}
		next := strings.IndexByte(s[from:], '{')
		if next < 0 {
			break
		}
		start = from + next
	}
	return out
}

func matchBrace(s string, start int) int {
	depth := 0
	inString := false
	escaped := false
	for i := start; i < len(s); i++ {
		c := s[i]
		if inString {
			switch {
			case escaped:
				escaped = false
			case c == '\\':
				escaped = true
			case c == '"':
				inString = false
			}
			continue
		}
		switch c {
		case '"':
			inString = true
		case '{':
			depth++
		case '}':
			depth--
			if depth == 0 {
				return i
			}
		}
	}
	return -1
}
