package deep

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"earmark/internal/segment"
)

const verdict = `{
  "claim": "secret experiments | government funding",
  "severity": 7.5,
  "analysis": "No public record supports this.",
  "headline": "Unsupported program claim",
  "exit_reason": "NONE"
}`

func TestParseWellFormedVerdict(t *testing.T) {
	flag, ok := ParseResponse(verdict, "the-prompt", "seg-1")
	require.True(t, ok)
	assert.Equal(t, "seg-1_deep", flag.ID)
	assert.Equal(t, []string{"secret experiments", "government funding"}, flag.Matches)
	assert.Equal(t, segment.SourceDeep, flag.Source)
	assert.Equal(t, 7.5, flag.Severity)
	assert.Equal(t, "Unsupported program claim", flag.Summary)
	assert.Equal(t, "No public record supports this.", flag.Text)
	assert.Equal(t, "the-prompt", flag.SourcePrompt)
	assert.Equal(t, segment.ExitNone, flag.ExitReason)
}

func TestParseFencedVerdict(t *testing.T) {
	flag, ok := ParseResponse("```json\n"+verdict+"\n```", "p", "s")
	require.True(t, ok)
	assert.Equal(t, 7.5, flag.Severity)
}

func TestParseVerdictWithCommentary(t *testing.T) {
	raw := "Here is the analysis you asked for:\n" + verdict + "\nLet me know if you need more."
	flag, ok := ParseResponse(raw, "p", "s")
	require.True(t, ok)
	assert.Equal(t, "Unsupported program claim", flag.Summary)
}

func TestParseDoubleEncoded(t *testing.T) {
	raw := `"{\"claim\": \"x\", \"severity\": 2, \"headline\": \"h\", \"exit_reason\": \"NONE\"}"`
	flag, ok := ParseResponse(raw, "p", "s")
	require.True(t, ok)
	assert.Equal(t, []string{"x"}, flag.Matches)
	assert.Equal(t, 2.0, flag.Severity)
}

func TestParseSingleQuoted(t *testing.T) {
	raw := `{'claim': 'x', 'severity': 3, 'exit_reason': 'CONFUSING'}`
	flag, ok := ParseResponse(raw, "p", "s")
	require.True(t, ok)
	assert.Equal(t, segment.ExitConfusing, flag.ExitReason)
}

func TestParseArrayTakesFirstClaim(t *testing.T) {
	raw := `[{"note": "ignored"}, {"claim": "a", "severity": 1}, {"claim": "b"}]`
	flag, ok := ParseResponse(raw, "p", "s")
	require.True(t, ok)
	assert.Equal(t, []string{"a"}, flag.Matches)
}

func TestParseSeverityAsString(t *testing.T) {
	raw := `{"claim": "x", "severity": "8"}`
	flag, ok := ParseResponse(raw, "p", "s")
	require.True(t, ok)
	assert.Equal(t, 8.0, flag.Severity)
}

func TestParseUnknownExitReasonCollapses(t *testing.T) {
	raw := `{"claim": "x", "exit_reason": "WHATEVER"}`
	flag, ok := ParseResponse(raw, "p", "s")
	require.True(t, ok)
	assert.Equal(t, segment.ExitNone, flag.ExitReason)
}

func TestParseRejectsGarbage(t *testing.T) {
	for _, raw := range []string{
		"",
		"no json here at all",
		`{"severity": 5}`,
		`{"claim": 42}`,
		`{"claim": " | "}`,
		`"just a plain string"`,
	} {
		_, ok := ParseResponse(raw, "p", "s")
		assert.False(t, ok, "raw=%q", raw)
	}
}

func TestBuildPromptEchoesClaimAndContext(t *testing.T) {
	seg := segment.New("s1", "they funded it in secret", 10, 12, 0)
	seg.SetFlags([]segment.Flag{{
		ID:      "f1",
		Source:  segment.SourceShallow,
		Matches: []string{"secret funding", "no oversight"},
	}})
	prior := segment.New("s0", "earlier line", 8, 10, 0)

	prompt := BuildPrompt(segment.Context{
		Current: seg,
		Window:  []*segment.Segment{prior},
	}, []string{"old topic"})

	assert.Contains(t, prompt, `"secret funding | no oversight"`)
	assert.Contains(t, prompt, `["secret funding","no oversight"]`)
	assert.Contains(t, prompt, "earlier line")
	assert.Contains(t, prompt, "they funded it in secret")
	assert.Contains(t, prompt, "old topic")
}
