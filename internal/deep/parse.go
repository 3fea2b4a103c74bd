// Package deep implements the expensive enrichment stage. Escalated segments
// are analyzed by a large model whose structured verdict replaces the
// shallow flag that triggered it.
package deep

import (
	"encoding/json"
	"regexp"
	"strconv"
	"strings"

	"earmark/internal/segment"
)

var fencePattern = regexp.MustCompile("(?i)^```(?:json)?\n?|```$")

// DecodeObject extracts a JSON value from model output that may be wrapped
// in markdown fences, surrounded by commentary, double-encoded, or written
// with single quotes. It tries progressively more forgiving interpretations
// before giving up.
func DecodeObject(raw string) (any, error) {
	stripped := fencePattern.ReplaceAllString(strings.TrimSpace(raw), "")
	stripped = strings.TrimSpace(stripped)

	var value any
	if err := json.Unmarshal([]byte(stripped), &value); err == nil {
		// Some models double-encode: the payload is a JSON string holding JSON.
		if inner, ok := value.(string); ok {
			var nested any
			if json.Unmarshal([]byte(inner), &nested) == nil {
				return nested, nil
			}
		}
		return value, nil
	}

	// Commentary around the payload: take the first balanced object or array.
	candidate := stripped
	if start := strings.IndexAny(stripped, "{["); start > 0 {
		candidate = stripped[start:]
	}
	if end := balancedEnd(candidate); end > 0 {
		candidate = candidate[:end]
	}
	err := json.Unmarshal([]byte(candidate), &value)
	if err == nil {
		return value, nil
	}

	// Python-style single quotes.
	requoted := strings.ReplaceAll(candidate, "'", `"`)
	if json.Unmarshal([]byte(requoted), &value) == nil {
		return value, nil
	}
	return nil, err
}

// balancedEnd returns the index just past the close of the first balanced
// JSON object or array in s, or 0 when the structure never closes.
func balancedEnd(s string) int {
	if s == "" {
		return 0
	}
	var opener, closer byte
	switch s[0] {
	case '{':
		opener, closer = '{', '}'
	case '[':
		opener, closer = '[', ']'
	default:
		return 0
	}
	depth := 0
	inString := false
	escaped := false
	for i := 0; i < len(s); i++ {
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
		case opener:
			depth++
		case closer:
			depth--
			if depth == 0 {
				return i + 1
			}
		}
	}
	return 0
}

// ParseResponse converts a model verdict into a flag. ok is false when no
// usable claim could be extracted; the caller drops the result in that case.
func ParseResponse(raw, prompt, segmentID string) (segment.Flag, bool) {
	var empty segment.Flag

	value, err := DecodeObject(raw)
	if err != nil {
		return empty, false
	}

	var items []map[string]any
	switch v := value.(type) {
	case map[string]any:
		items = []map[string]any{v}
	case []any:
		for _, item := range v {
			if obj, ok := item.(map[string]any); ok {
				items = append(items, obj)
			}
		}
	default:
		return empty, false
	}

	var entry map[string]any
	for _, item := range items {
		if _, ok := item["claim"].(string); ok {
			entry = item
			break
		}
	}
	if entry == nil {
		return empty, false
	}

	claim := entry["claim"].(string)
	var matches []string
	for _, part := range strings.Split(claim, "|") {
		part = strings.TrimSpace(part)
		if part != "" {
			matches = append(matches, part)
		}
	}
	if len(matches) == 0 {
		return empty, false
	}

	return segment.Flag{
		ID:              segmentID + "_deep",
		Matches:         matches,
		Source:          segment.SourceDeep,
		Severity:        toFloat(entry["severity"]),
		Summary:         toString(entry["headline"]),
		Text:            toString(entry["analysis"]),
		SemanticSummary: toString(entry["semantic_summary"]),
		SourcePrompt:    prompt,
		ExitReason:      segment.ParseExitReason(toString(entry["exit_reason"])),
	}, true
}

func toString(v any) string {
	s, _ := v.(string)
	return s
}

func toFloat(v any) float64 {
	switch n := v.(type) {
	case float64:
		return n
	case string:
		if f, err := strconv.ParseFloat(strings.TrimSpace(n), 64); err == nil {
			return f
		}
	}
	return 0
}
