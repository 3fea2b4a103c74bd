package shallow

import (
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestParseWellFormed(t *testing.T) {
	raw := `Flags: ["secret experiments", "government funding"]
SemanticSummary: 'covert government research program'`
	matches, summary := ParseOutput(raw)
	assert.Equal(t, []string{"secret experiments", "government funding"}, matches)
	assert.Equal(t, "covert government research program", summary)
}

func TestParseSingleQuotedFlags(t *testing.T) {
	raw := `Flags: ['moon landing', 'staged footage']
SemanticSummary: 'moon landing authenticity'`
	matches, _ := ParseOutput(raw)
	assert.Equal(t, []string{"moon landing", "staged footage"}, matches)
}

func TestParseUnquotedFlags(t *testing.T) {
	raw := `flags: [first claim, second claim]`
	matches, _ := ParseOutput(raw)
	assert.Equal(t, []string{"first claim", "second claim"}, matches)
}

func TestParseEmptyFlags(t *testing.T) {
	matches, summary := ParseOutput("Flags: []\nSemanticSummary: ''")
	assert.Empty(t, matches)
	assert.Empty(t, summary)
}

func TestParseFullWidthColon(t *testing.T) {
	raw := "Flags： [\"a claim\"]\nSemanticSummary： 'the topic'"
	matches, summary := ParseOutput(raw)
	assert.Equal(t, []string{"a claim"}, matches)
	assert.Equal(t, "the topic", summary)
}

func TestParseBareSummaryFallback(t *testing.T) {
	raw := `Flags: ["x"]
Summary: the topic without quotes
trailing line`
	_, summary := ParseOutput(raw)
	assert.Equal(t, "the topic without quotes", summary)
}

func TestParseLastSentenceFallback(t *testing.T) {
	raw := "No structured output here. The speaker discussed budget overruns."
	matches, summary := ParseOutput(raw)
	assert.Empty(t, matches)
	assert.Equal(t, "The speaker discussed budget overruns.", summary)
}

func TestParseEmptyResponse(t *testing.T) {
	matches, summary := ParseOutput("   ")
	assert.Empty(t, matches)
	assert.Empty(t, summary)
}

func TestParseChatterAroundFormat(t *testing.T) {
	raw := `Sure! Here is my analysis.
Flags: ["disputed statistic"]
SemanticSummary: "unemployment numbers dispute"
Hope that helps!`
	matches, summary := ParseOutput(raw)
	assert.Equal(t, []string{"disputed statistic"}, matches)
	assert.Equal(t, "unemployment numbers dispute", summary)
}
