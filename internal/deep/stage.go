package deep

import (
	"context"
	"log/slog"
	"sync"
	"time"

	"earmark/internal/clients"
	"earmark/internal/logging"
	"earmark/internal/queue"
	"earmark/internal/segment"
)

// Stage runs the deep analysis loop. Concurrency is capped by maxInFlight
// workers sharing one input queue; the default of one keeps a single request
// outstanding against the expensive backend while escalations buffer behind
// it.
type Stage struct {
	model       clients.DeepModel
	in          *queue.FIFO[segment.Context]
	results     *queue.FIFO[*segment.Segment]
	logger      *slog.Logger
	pollTimeout time.Duration
	maxInFlight int

	recent *summaryWindow
}

// NewStage wires a deep stage.
func NewStage(
	model clients.DeepModel,
	in *queue.FIFO[segment.Context],
	results *queue.FIFO[*segment.Segment],
	pollTimeout time.Duration,
	maxInFlight, recentLimit int,
	logger *slog.Logger,
) *Stage {
	if maxInFlight < 1 {
		maxInFlight = 1
	}
	return &Stage{
		model:       model,
		in:          in,
		results:     results,
		logger:      logging.NewComponentLogger(logger, "deep"),
		pollTimeout: pollTimeout,
		maxInFlight: maxInFlight,
		recent:      newSummaryWindow(recentLimit),
	}
}

// Run starts the worker pool and blocks until ctx is cancelled and all
// workers have returned. The caller's WaitGroup tracks the stage as a whole.
func (s *Stage) Run(ctx context.Context, wg *sync.WaitGroup) {
	defer wg.Done()
	var workers sync.WaitGroup
	for i := 0; i < s.maxInFlight; i++ {
		workers.Add(1)
		go func() {
			defer workers.Done()
			for {
				if ctx.Err() != nil {
					return
				}
				sc, ok := s.in.Get(ctx, s.pollTimeout)
				if !ok {
					continue
				}
				s.process(ctx, sc)
			}
		}()
	}
	workers.Wait()
}

func (s *Stage) process(ctx context.Context, sc segment.Context) {
	if sc.Current == nil {
		return
	}
	prompt := BuildPrompt(sc, s.recent.snapshot())

	started := time.Now()
	raw, err := s.model.Send(ctx, prompt)
	if err != nil {
		s.logger.Warn("deep model failed, segment stays flagged",
			logging.String(logging.FieldSegmentID, sc.Current.ID),
			logging.Error(err))
		return
	}

	flag, ok := ParseResponse(raw, prompt, sc.Current.ID)
	if !ok {
		// An unusable verdict is dropped on the floor: the segment keeps its
		// shallow flag and never completes.
		s.logger.Warn("unparsable deep response dropped",
			logging.String(logging.FieldSegmentID, sc.Current.ID))
		return
	}

	// Capture the topic before merge replaces the shallow flag.
	s.rememberSummary(sc.Current, flag)
	s.merge(sc.Current, flag)

	if err := s.results.Put(ctx, sc.Current.Clone()); err != nil {
		return
	}
	s.logger.Debug("deep analysis complete",
		logging.String(logging.FieldSegmentID, sc.Current.ID),
		logging.Float64("severity", flag.Severity),
		logging.Duration("elapsed", time.Since(started)))
}

// merge replaces the shallow flag whose matches the verdict echoes back, or
// appends when the model answered about something else entirely.
func (s *Stage) merge(seg *segment.Segment, flag segment.Flag) {
	flags := make([]segment.Flag, len(seg.Flags))
	for i, f := range seg.Flags {
		flags[i] = f.Clone()
	}

	replaced := false
	for i, f := range flags {
		if f.Source == segment.SourceShallow && f.MatchesEqual(flag) {
			flags[i] = flag
			replaced = true
			break
		}
	}
	if !replaced {
		flags = append(flags, flag)
	}

	seg.SetFlags(flags)
	seg.SetStatus(segment.StatusComplete)
}

// rememberSummary feeds the repeat-analysis guard in later prompts. The deep
// verdict rarely carries its own semantic summary, so the shallow one that
// triggered the escalation stands in.
func (s *Stage) rememberSummary(seg *segment.Segment, flag segment.Flag) {
	summary := flag.SemanticSummary
	if summary == "" {
		for _, f := range seg.Flags {
			if f.Source == segment.SourceShallow && f.SemanticSummary != "" {
				summary = f.SemanticSummary
				break
			}
		}
	}
	if summary != "" {
		s.recent.append(summary)
	}
}

// summaryWindow is a bounded ring of recent analysis topics shared by the
// worker pool.
type summaryWindow struct {
	mu        sync.Mutex
	limit     int
	summaries []string
}

func newSummaryWindow(limit int) *summaryWindow {
	if limit < 1 {
		limit = 1
	}
	return &summaryWindow{limit: limit}
}

func (w *summaryWindow) append(summary string) {
	w.mu.Lock()
	defer w.mu.Unlock()
	w.summaries = append(w.summaries, summary)
	if len(w.summaries) > w.limit {
		w.summaries = w.summaries[len(w.summaries)-w.limit:]
	}
}

func (w *summaryWindow) snapshot() []string {
	w.mu.Lock()
	defer w.mu.Unlock()
	out := make([]string, len(w.summaries))
	copy(out, w.summaries)
	return out
}
