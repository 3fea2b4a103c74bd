package segment

import (
	"slices"
	"strings"
	"time"
)

// Status represents the enrichment lifecycle of a transcript segment.
// Transitions only move forward: in_progress -> flagged -> complete, or
// in_progress -> complete when nothing was flagged.
type Status string

const (
	StatusInProgress Status = "in_progress"
	StatusFlagged    Status = "flagged"
	StatusComplete   Status = "complete"
)

var statusRank = map[Status]int{
	StatusInProgress: 0,
	StatusFlagged:    1,
	StatusComplete:   2,
}

// ParseStatus converts a string into a known Status.
func ParseStatus(value string) (Status, bool) {
	normalized := Status(strings.ToLower(strings.TrimSpace(value)))
	_, ok := statusRank[normalized]
	return normalized, ok
}

// CanAdvanceTo reports whether moving from s to next is a forward transition.
func (s Status) CanAdvanceTo(next Status) bool {
	from, okFrom := statusRank[s]
	to, okTo := statusRank[next]
	return okFrom && okTo && to > from
}

// FlagSource identifies which stage produced a flag.
type FlagSource string

const (
	SourceShallow FlagSource = "shallow"
	SourceDeep    FlagSource = "deep"
	SourceUser    FlagSource = "user"
)

// ExitReason records why a flag stopped progressing through the pipeline.
type ExitReason string

const (
	ExitNone          ExitReason = "none"
	ExitDuplicate     ExitReason = "duplicate"
	ExitConfusing     ExitReason = "confusing"
	ExitInsubstantial ExitReason = "insubstantial"
)

var exitReasons = map[ExitReason]struct{}{
	ExitNone:          {},
	ExitDuplicate:     {},
	ExitConfusing:     {},
	ExitInsubstantial: {},
}

// ParseExitReason normalizes a model-supplied exit reason. Anything
// unrecognized collapses to ExitNone rather than failing the parse.
func ParseExitReason(value string) ExitReason {
	normalized := ExitReason(strings.ToLower(strings.TrimSpace(value)))
	if _, ok := exitReasons[normalized]; ok {
		return normalized
	}
	return ExitNone
}

// RawWord is a single word with chunk-relative timing, produced by the
// transcription backend. Immutable once created.
type RawWord struct {
	Start      float64 `json:"start"`
	End        float64 `json:"end"`
	Text       string  `json:"text"`
	Confidence float64 `json:"confidence,omitempty"`
}

// RawSegment is one backend transcription unit for an audio chunk.
// Consumed exactly once by the merge stage.
type RawSegment struct {
	Start      float64   `json:"start"`
	End        float64   `json:"end"`
	Text       string    `json:"text"`
	Words      []RawWord `json:"words,omitempty"`
	Confidence float64   `json:"confidence,omitempty"`
	Language   string    `json:"language,omitempty"`
}

// Flag is a single enrichment result attached to a segment.
type Flag struct {
	ID              string     `json:"id"`
	Matches         []string   `json:"matches"`
	Source          FlagSource `json:"source"`
	Severity        float64    `json:"severity"`
	Category        string     `json:"category,omitempty"`
	ExitReason      ExitReason `json:"exit_reason,omitempty"`
	SourcePrompt    string     `json:"source_prompt,omitempty"`
	Summary         string     `json:"summary,omitempty"`
	Text            string     `json:"text,omitempty"`
	SemanticSummary string     `json:"semantic_summary,omitempty"`
	DeepSearch      string     `json:"deep_search,omitempty"`
}

// MatchesEqual compares two match lists as unordered sets.
func (f Flag) MatchesEqual(other Flag) bool {
	if len(f.Matches) != len(other.Matches) {
		return false
	}
	set := make(map[string]struct{}, len(f.Matches))
	for _, m := range f.Matches {
		set[m] = struct{}{}
	}
	for _, m := range other.Matches {
		if _, ok := set[m]; !ok {
			return false
		}
	}
	return true
}

// Clone returns a deep copy of the flag.
func (f Flag) Clone() Flag {
	cp := f
	cp.Matches = slices.Clone(f.Matches)
	return cp
}

func flagsEqual(a, b []Flag) bool {
	if len(a) != len(b) {
		return false
	}
	for i := range a {
		if a[i].ID != b[i].ID ||
			a[i].Source != b[i].Source ||
			a[i].Severity != b[i].Severity ||
			a[i].Category != b[i].Category ||
			a[i].ExitReason != b[i].ExitReason ||
			a[i].SourcePrompt != b[i].SourcePrompt ||
			a[i].Summary != b[i].Summary ||
			a[i].Text != b[i].Text ||
			a[i].SemanticSummary != b[i].SemanticSummary ||
			a[i].DeepSearch != b[i].DeepSearch ||
			!slices.Equal(a[i].Matches, b[i].Matches) {
			return false
		}
	}
	return true
}

// Segment is one finalized utterance of transcript text with timing and
// enrichment state. The shallow and deep stages are its only mutators, and
// always through SetStatus/SetFlags so LastUpdated stamping stays accurate.
type Segment struct {
	ID                string  `json:"id"`
	Text              string  `json:"text"`
	Start             float64 `json:"start"`
	End               float64 `json:"end"`
	Flags             []Flag  `json:"flags,omitempty"`
	CreatedAt         float64 `json:"created_at"`
	PipelineStartedAt float64 `json:"pipeline_started_at"`
	Status            Status  `json:"status"`
	LastUpdated       float64 `json:"last_updated"`
}

// Now returns the current time as unix seconds, the timestamp unit used
// throughout the segment model and the emission payloads.
func Now() float64 {
	return float64(time.Now().UnixNano()) / float64(time.Second)
}

// New constructs an in-progress segment stamped with the current time.
func New(id, text string, start, end, pipelineStartedAt float64) *Segment {
	now := Now()
	return &Segment{
		ID:                id,
		Text:              text,
		Start:             start,
		End:               end,
		CreatedAt:         now,
		PipelineStartedAt: pipelineStartedAt,
		Status:            StatusInProgress,
		LastUpdated:       now,
	}
}

// SetStatus advances the segment status, stamping LastUpdated only when the
// value actually changes. Backward transitions are ignored.
func (s *Segment) SetStatus(next Status) bool {
	return s.SetStatusAt(next, Now())
}

// SetStatusAt is SetStatus with an explicit clock, for tests.
func (s *Segment) SetStatusAt(next Status, now float64) bool {
	if next == s.Status || !s.Status.CanAdvanceTo(next) {
		return false
	}
	s.Status = next
	s.LastUpdated = now
	return true
}

// SetFlags replaces the flag list, stamping LastUpdated only when the list
// actually changes value.
func (s *Segment) SetFlags(flags []Flag) bool {
	return s.SetFlagsAt(flags, Now())
}

// SetFlagsAt is SetFlags with an explicit clock, for tests.
func (s *Segment) SetFlagsAt(flags []Flag, now float64) bool {
	if flagsEqual(s.Flags, flags) {
		return false
	}
	s.Flags = flags
	s.LastUpdated = now
	return true
}

// Clone returns a deep copy safe to hand to another stage or subscriber.
func (s *Segment) Clone() *Segment {
	if s == nil {
		return nil
	}
	cp := *s
	if s.Flags != nil {
		cp.Flags = make([]Flag, len(s.Flags))
		for i, f := range s.Flags {
			cp.Flags[i] = f.Clone()
		}
	}
	return &cp
}
