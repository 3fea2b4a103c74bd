package deep

import (
	"encoding/json"
	"fmt"
	"strings"

	"earmark/internal/segment"
)

const promptTemplate = `You are an assistant providing fast, factual analysis of a topic in a live conversation.

Context (past %d lines):
%s

Last utterance:
%s

These topics have already been analyzed recently. Unless they are clearly referenced again in a new way, do not repeat analysis:
%s

Topic to analyze:
%s

TASK:
- Focus only on the topic's content, never on the speaker or delivery.
- You may use context to resolve vague references or pronouns.
- Write a short headline and a brief, factual analysis.
- Score the severity from 0-10 based on factual accuracy, not emotional or moral intensity:
  0-3 = accurate and neutral
  4-6 = vague, potentially misleading, or unclear
  7-10 = factually false, misleading, or highly deceptive

EXIT CONDITIONS:
If the topic cannot be meaningfully analyzed, still return a JSON object with an empty string for "analysis" and "headline" and a valid "exit_reason".

Valid exit_reason values:
- "NONE" — proceeded with a valid analysis
- "DUPLICATE" — topic has already been evaluated
- "CONFUSING" — statement is unclear or hard to interpret
- "INSUBSTANTIAL" — topic is too vague, generic, or lacks content

Output one JSON object only, no commentary, no formatting:
{
  "claim": %s,
  "severity": 0-10,
  "analysis": "...",
  "headline": "...",
  "exit_reason": "NONE" | "DUPLICATE" | "CONFUSING" | "INSUBSTANTIAL"
}`

// BuildPrompt renders the analysis prompt for an escalated segment. The
// claim the shallow stage produced is echoed in the requested output so the
// model's answer can be matched back to the flag it refines.
func BuildPrompt(sc segment.Context, recentSummaries []string) string {
	contextJSON := mustJSON(sc.WindowTexts())
	utteranceJSON := mustJSON(currentText(sc))
	recentJSON := mustJSON(recentSummaries)

	matches := shallowMatches(sc.Current)
	matchesJSON := mustJSON(matches)
	composite := strings.Join(matches, " | ")

	return fmt.Sprintf(promptTemplate,
		len(sc.Window), contextJSON, utteranceJSON, recentJSON, matchesJSON, mustJSON(composite))
}

func currentText(sc segment.Context) string {
	if sc.Current == nil {
		return ""
	}
	return sc.Current.Text
}

func shallowMatches(seg *segment.Segment) []string {
	if seg == nil {
		return nil
	}
	for _, flag := range seg.Flags {
		if flag.Source == segment.SourceShallow {
			return flag.Matches
		}
	}
	return nil
}

func mustJSON(v any) string {
	encoded, err := json.Marshal(v)
	if err != nil {
		return "null"
	}
	return string(encoded)
}
