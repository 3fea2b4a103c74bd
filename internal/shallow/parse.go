// Package shallow implements the fast first-pass extraction stage. A small
// local model scans each finalized segment for notable claims, producing a
// flag with match phrases and a one-line semantic summary used by the
// deduplication cache.
package shallow

import (
	"encoding/json"
	"regexp"
	"strings"
)

var (
	flagsPattern  = regexp.MustCompile(`(?i)flags\s*[:：]\s*(\[[^\]]*\])`)
	quotedSummary = regexp.MustCompile(`(?i)semanticsummary\s*[:：]\s*['"](.+?)['"]`)
	bareSummary   = regexp.MustCompile(`(?i)summary\s*[:：]\s*(.+)`)
	sentenceSplit = regexp.MustCompile(`[.!?]\s+`)
)

// ParseOutput extracts match phrases and a semantic summary from a model
// response. Small models drift from the requested format constantly, so
// parsing is layered and never fails: a malformed response degrades to no
// flags and a best-effort summary rather than an error.
func ParseOutput(raw string) (matches []string, summary string) {
	raw = strings.TrimSpace(raw)
	if raw == "" {
		return nil, ""
	}
	return parseFlags(raw), parseSummary(raw)
}

func parseFlags(raw string) []string {
	m := flagsPattern.FindStringSubmatch(raw)
	if m == nil {
		return nil
	}
	body := m[1]

	var parsed []string
	if err := json.Unmarshal([]byte(body), &parsed); err == nil {
		return cleanMatches(parsed)
	}

	// Models emit single quotes or unquoted entries; split naively.
	inner := strings.Trim(body, "[]")
	return cleanMatches(strings.Split(inner, ","))
}

func cleanMatches(items []string) []string {
	var out []string
	for _, item := range items {
		item = strings.TrimSpace(item)
		item = strings.Trim(item, `'"`)
		item = strings.TrimSpace(item)
		if item != "" {
			out = append(out, item)
		}
	}
	return out
}

func parseSummary(raw string) string {
	if m := quotedSummary.FindStringSubmatch(raw); m != nil {
		return strings.TrimSpace(m[1])
	}
	if m := bareSummary.FindStringSubmatch(raw); m != nil {
		line := m[1]
		if idx := strings.IndexByte(line, '\n'); idx >= 0 {
			line = line[:idx]
		}
		return strings.Trim(strings.TrimSpace(line), `'"`)
	}

	// Last resort: the final sentence of the response.
	sentences := sentenceSplit.Split(raw, -1)
	last := strings.TrimSpace(sentences[len(sentences)-1])
	return strings.Trim(last, `'"`)
}
