package segment

import "sync"

// Context is the ephemeral per-segment view handed between enrichment stages:
// the segment being enriched plus a snapshot of the prior-segment window that
// feeds the prompt. It references segments, it never owns them.
type Context struct {
	Current *Segment
	Window  []*Segment
}

// Start returns the current segment's start time, or 0 when unset.
func (c Context) Start() float64 {
	if c.Current == nil {
		return 0
	}
	return c.Current.Start
}

// End returns the current segment's end time, or 0 when unset.
func (c Context) End() float64 {
	if c.Current == nil {
		return 0
	}
	return c.Current.End
}

// WindowTexts returns the text of each window segment, oldest first.
func (c Context) WindowTexts() []string {
	texts := make([]string, 0, len(c.Window))
	for _, seg := range c.Window {
		if seg != nil {
			texts = append(texts, seg.Text)
		}
	}
	return texts
}

// Window is a bounded FIFO of prior segments used as conversational memory
// for prompts. A single stage owns each window; Snapshot copies the backing
// slice so readers never alias the live buffer.
type Window struct {
	mu    sync.Mutex
	limit int
	segs  []*Segment
}

// NewWindow creates a window holding at most limit segments.
func NewWindow(limit int) *Window {
	if limit < 1 {
		limit = 1
	}
	return &Window{limit: limit}
}

// Append adds a segment, evicting the oldest when the window is full.
func (w *Window) Append(seg *Segment) {
	if seg == nil {
		return
	}
	w.mu.Lock()
	defer w.mu.Unlock()
	w.segs = append(w.segs, seg)
	if len(w.segs) > w.limit {
		w.segs = w.segs[len(w.segs)-w.limit:]
	}
}

// Snapshot returns a copy of the window contents, oldest first.
func (w *Window) Snapshot() []*Segment {
	w.mu.Lock()
	defer w.mu.Unlock()
	out := make([]*Segment, len(w.segs))
	copy(out, w.segs)
	return out
}

// Len returns the number of segments currently held.
func (w *Window) Len() int {
	w.mu.Lock()
	defer w.mu.Unlock()
	return len(w.segs)
}
