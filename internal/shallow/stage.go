package shallow

import (
	"context"
	"log/slog"
	"sync"
	"time"

	"github.com/google/uuid"

	"earmark/internal/clients"
	"earmark/internal/logging"
	"earmark/internal/queue"
	"earmark/internal/segment"
	"earmark/internal/semantic"
)

// Stage runs the first-pass extraction loop. For each incoming segment it
// immediately emits an in-progress snapshot so subscribers see text without
// waiting on any model, then screens the segment and routes it: unflagged
// segments complete, flagged duplicates retire, and novel flagged segments
// continue to the deep stage.
type Stage struct {
	model       clients.ShallowModel
	filter      *semantic.Filter
	in          *queue.FIFO[*segment.Segment]
	deepOut     *queue.FIFO[segment.Context]
	results     *queue.FIFO[*segment.Segment]
	window      *segment.Window
	deepWindow  *segment.Window
	logger      *slog.Logger
	pollTimeout time.Duration
}

// NewStage wires a shallow stage. window feeds this stage's own prompts;
// deepWindow is the larger context handed to the deep stage alongside each
// escalated segment.
func NewStage(
	model clients.ShallowModel,
	filter *semantic.Filter,
	in *queue.FIFO[*segment.Segment],
	deepOut *queue.FIFO[segment.Context],
	results *queue.FIFO[*segment.Segment],
	window, deepWindow *segment.Window,
	pollTimeout time.Duration,
	logger *slog.Logger,
) *Stage {
	return &Stage{
		model:       model,
		filter:      filter,
		in:          in,
		deepOut:     deepOut,
		results:     results,
		window:      window,
		deepWindow:  deepWindow,
		logger:      logging.NewComponentLogger(logger, "shallow"),
		pollTimeout: pollTimeout,
	}
}

// Run processes segments until ctx is cancelled.
func (s *Stage) Run(ctx context.Context, wg *sync.WaitGroup) {
	defer wg.Done()
	for {
		if ctx.Err() != nil {
			return
		}
		seg, ok := s.in.Get(ctx, s.pollTimeout)
		if !ok {
			continue
		}
		s.process(ctx, seg)
	}
}

func (s *Stage) process(ctx context.Context, seg *segment.Segment) {
	// Subscribers see the raw text right away; enrichment catches up later.
	s.emit(ctx, seg)

	prompt := BuildPrompt(seg.Text, windowTexts(s.window))

	// The segment joins both context windows regardless of routing so later
	// prompts can reference it.
	defer func() {
		s.window.Append(seg)
		s.deepWindow.Append(seg)
	}()

	reply, err := s.model.Generate(ctx, prompt)
	if err != nil {
		s.logger.Warn("shallow model failed, segment completes unflagged",
			logging.String(logging.FieldSegmentID, seg.ID),
			logging.Error(err))
		seg.SetStatus(segment.StatusComplete)
		s.emit(ctx, seg)
		return
	}

	matches, summary := ParseOutput(reply)
	if len(matches) == 0 {
		seg.SetStatus(segment.StatusComplete)
		s.emit(ctx, seg)
		return
	}

	flag := segment.Flag{
		ID:              uuid.NewString(),
		Matches:         matches,
		Source:          segment.SourceShallow,
		ExitReason:      segment.ExitNone,
		SourcePrompt:    prompt,
		Text:            seg.Text,
		SemanticSummary: summary,
	}
	seg.SetFlags(append(seg.Flags, flag))
	seg.SetStatus(segment.StatusFlagged)
	// The flagged snapshot goes out before the dedup check so subscribers
	// see the flag even when the topic is then retired as a duplicate.
	s.emit(ctx, seg)

	dup, err := s.filter.IsDuplicate(ctx, summary, segment.Now())
	if err == nil && dup {
		flags := make([]segment.Flag, len(seg.Flags))
		for i, f := range seg.Flags {
			flags[i] = f.Clone()
		}
		flags[len(flags)-1].ExitReason = segment.ExitDuplicate
		seg.SetFlags(flags)
		seg.SetStatus(segment.StatusComplete)
		s.logger.Debug("flag retired as duplicate topic",
			logging.String(logging.FieldSegmentID, seg.ID),
			logging.String("summary", summary))
		s.emit(ctx, seg)
		return
	}

	if err := s.deepOut.Put(ctx, segment.Context{
		Current: seg,
		Window:  s.deepWindow.Snapshot(),
	}); err != nil {
		return
	}
	s.logger.Debug("segment escalated",
		logging.String(logging.FieldSegmentID, seg.ID),
		logging.Int("matches", len(matches)))
}

func (s *Stage) emit(ctx context.Context, seg *segment.Segment) {
	if err := s.results.Put(ctx, seg.Clone()); err != nil {
		s.logger.Warn("result emission dropped",
			logging.String(logging.FieldSegmentID, seg.ID),
			logging.Error(err))
	}
}

func windowTexts(w *segment.Window) []string {
	snapshot := w.Snapshot()
	texts := make([]string, 0, len(snapshot))
	for _, seg := range snapshot {
		texts = append(texts, seg.Text)
	}
	return texts
}
