package segment

import (
	"testing"

	"github.com/stretchr/testify/require"
)

func TestStatusTransitions(t *testing.T) {
	tests := []struct {
		name string
		from Status
		to   Status
		want bool
	}{
		{"in_progress to flagged", StatusInProgress, StatusFlagged, true},
		{"in_progress to complete", StatusInProgress, StatusComplete, true},
		{"flagged to complete", StatusFlagged, StatusComplete, true},
		{"flagged to in_progress", StatusFlagged, StatusInProgress, false},
		{"complete to flagged", StatusComplete, StatusFlagged, false},
		{"complete to in_progress", StatusComplete, StatusInProgress, false},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if got := tt.from.CanAdvanceTo(tt.to); got != tt.want {
				t.Errorf("CanAdvanceTo(%s -> %s) = %v, want %v", tt.from, tt.to, got, tt.want)
			}
		})
	}
}

func TestSetStatusNeverRegresses(t *testing.T) {
	seg := New("s1", "hello", 0, 1, 0)
	require.True(t, seg.SetStatusAt(StatusFlagged, 10))
	require.True(t, seg.SetStatusAt(StatusComplete, 20))
	require.False(t, seg.SetStatusAt(StatusFlagged, 30))
	require.False(t, seg.SetStatusAt(StatusInProgress, 40))
	require.Equal(t, StatusComplete, seg.Status)
	require.Equal(t, float64(20), seg.LastUpdated)
}

func TestLastUpdatedStampsOnlyOnChange(t *testing.T) {
	seg := New("s1", "hello", 0, 1, 0)
	seg.LastUpdated = 5

	// Writing the current value leaves the stamp alone.
	require.False(t, seg.SetStatusAt(StatusInProgress, 100))
	require.Equal(t, float64(5), seg.LastUpdated)

	require.False(t, seg.SetFlagsAt(nil, 100))
	require.Equal(t, float64(5), seg.LastUpdated)

	flag := Flag{ID: "f1", Matches: []string{"CIA"}, Source: SourceShallow}
	require.True(t, seg.SetFlagsAt([]Flag{flag}, 100))
	require.Equal(t, float64(100), seg.LastUpdated)

	// Same flags again: no stamp.
	require.False(t, seg.SetFlagsAt([]Flag{flag.Clone()}, 200))
	require.Equal(t, float64(100), seg.LastUpdated)

	// Mutating a field within a flag counts as a change.
	updated := flag.Clone()
	updated.ExitReason = ExitDuplicate
	require.True(t, seg.SetFlagsAt([]Flag{updated}, 300))
	require.Equal(t, float64(300), seg.LastUpdated)
}

func TestMatchesEqualUnordered(t *testing.T) {
	a := Flag{Matches: []string{"A", "B"}}
	b := Flag{Matches: []string{"B", "A"}}
	c := Flag{Matches: []string{"A", "B", "C"}}
	require.True(t, a.MatchesEqual(b))
	require.True(t, b.MatchesEqual(a))
	require.False(t, a.MatchesEqual(c))
	require.False(t, a.MatchesEqual(Flag{}))
}

func TestParseExitReason(t *testing.T) {
	tests := []struct {
		in   string
		want ExitReason
	}{
		{"NONE", ExitNone},
		{"duplicate", ExitDuplicate},
		{" Confusing ", ExitConfusing},
		{"INSUBSTANTIAL", ExitInsubstantial},
		{"garbage", ExitNone},
		{"", ExitNone},
	}
	for _, tt := range tests {
		if got := ParseExitReason(tt.in); got != tt.want {
			t.Errorf("ParseExitReason(%q) = %q, want %q", tt.in, got, tt.want)
		}
	}
}

func TestCloneIsDeep(t *testing.T) {
	seg := New("s1", "hello", 0, 1, 0)
	seg.SetFlags([]Flag{{ID: "f1", Matches: []string{"A"}, Source: SourceShallow}})

	cp := seg.Clone()
	cp.Flags[0].Matches[0] = "B"
	cp.Flags[0].Severity = 9

	require.Equal(t, "A", seg.Flags[0].Matches[0])
	require.Equal(t, float64(0), seg.Flags[0].Severity)
}

func TestWindowEviction(t *testing.T) {
	w := NewWindow(2)
	a := New("a", "one", 0, 1, 0)
	b := New("b", "two", 1, 2, 0)
	c := New("c", "three", 2, 3, 0)
	w.Append(a)
	w.Append(b)
	w.Append(c)

	snap := w.Snapshot()
	require.Len(t, snap, 2)
	require.Equal(t, "b", snap[0].ID)
	require.Equal(t, "c", snap[1].ID)

	// Snapshot must not alias the live buffer.
	snap[0] = nil
	require.Equal(t, "b", w.Snapshot()[0].ID)
}
