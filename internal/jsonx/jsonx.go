// Package jsonx extracts JSON values from model output that may be wrapped
// in markdown fences or surrounded by prose.
package jsonx

import (
	"encoding/json"
	"strings"
)

// Extract returns the first well-formed JSON object or array found in raw.
// Precedence: direct parse, fence-stripped parse, first balanced-bracket
// substring. The bool is false when nothing parseable was found.
func Extract(raw string) (json.RawMessage, bool) {
	s := strings.TrimSpace(raw)
	if s == "" {
		return nil, false
	}
	if isValid(s) {
		return json.RawMessage(s), true
	}
	if stripped := stripFences(s); stripped != s && isValid(stripped) {
		return json.RawMessage(stripped), true
	}
	if sub := firstBalanced(s); sub != "" && isValid(sub) {
		return json.RawMessage(sub), true
	}
	return nil, false
}

// Decode extracts JSON from raw and unmarshals it into out.
func Decode(raw string, out any) bool {
	msg, ok := Extract(raw)
	if !ok {
		return false
	}
	return json.Unmarshal(msg, out) == nil
}

func isValid(s string) bool {
	if len(s) == 0 || (s[0] != '{' && s[0] != '[') {
		return false
	}
	return json.Valid([]byte(s))
}

// stripFences removes a leading ```json (or bare ```) fence and its closing
// fence, returning the inner text. Nested fences are handled by stripping
// repeatedly from the outside in.
func stripFences(s string) string {
	for {
		t := strings.TrimSpace(s)
		if !strings.HasPrefix(t, "```") {
			return t
		}
		nl := strings.IndexByte(t, '\n')
		if nl < 0 {
			return t
		}
		t = t[nl+1:]
		if end := strings.LastIndex(t, "```"); end >= 0 {
			t = t[:end]
		}
		s = t
	}
}

// firstBalanced scans for the first '{' or '[' and returns the substring up
// to its matching close bracket. String literals and escapes are respected so
// that brackets inside strings do not unbalance the scan. Truncated input
// (depth never returns to zero) yields "".
func firstBalanced(s string) string {
	start := -1
	var open, close byte
	for i := 0; i < len(s); i++ {
		if s[i] == '{' {
			start, open, close = i, '{', '}'
			break
		}
		if s[i] == '[' {
			start, open, close = i, '[', ']'
			break
		}
	}
	if start < 0 {
		return ""
	}
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
		case open:
			depth++
		case close:
			depth--
			if depth == 0 {
				return s[start : i+1]
			}
		}
	}
	return ""
}
