package transcribe

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
	"earmark/internal/textutil"
)

// Chunk is one captured slice of audio awaiting transcription. CapturedAt is
// carried through to the segment as its pipeline start time so emission
// latency measures the full path from capture.
type Chunk struct {
	Audio      []byte
	Offset     float64
	CapturedAt float64
}

// Stage consumes audio chunks and produces finalized segments. A single
// worker runs the loop; ordering within the stream depends on chunks being
// transcribed one at a time.
type Stage struct {
	transcriber  clients.Transcriber
	in           *queue.FIFO[Chunk]
	out          *queue.FIFO[*segment.Segment]
	logger       *slog.Logger
	pollTimeout  time.Duration
	nearDupRatio float64

	lastEnd  float64
	prevText string
}

// NewStage creates a transcription stage reading chunks from in and writing
// finalized segments to out.
func NewStage(
	transcriber clients.Transcriber,
	in *queue.FIFO[Chunk],
	out *queue.FIFO[*segment.Segment],
	pollTimeout time.Duration,
	nearDupRatio float64,
	logger *slog.Logger,
) *Stage {
	return &Stage{
		transcriber:  transcriber,
		in:           in,
		out:          out,
		logger:       logging.NewComponentLogger(logger, "transcribe"),
		pollTimeout:  pollTimeout,
		nearDupRatio: nearDupRatio,
	}
}

// Run processes chunks until ctx is cancelled.
func (s *Stage) Run(ctx context.Context, wg *sync.WaitGroup) {
	defer wg.Done()
	for {
		if ctx.Err() != nil {
			return
		}
		chunk, ok := s.in.Get(ctx, s.pollTimeout)
		if !ok {
			continue
		}
		s.process(ctx, chunk)
	}
}

func (s *Stage) process(ctx context.Context, chunk Chunk) {
	raws, err := s.transcriber.Transcribe(ctx, chunk.Audio, chunk.Offset)
	if err != nil {
		s.logger.Warn("transcription failed, chunk dropped", logging.Error(err))
		return
	}

	start, end, text, ok := MergeWords(raws, s.lastEnd)
	if !ok {
		return
	}

	// Overlapping chunks can re-transcribe the same speech with slightly
	// different wording, which the cutoff alone cannot catch. The cutoff
	// itself only tracks emitted segments, so a discarded duplicate leaves
	// it untouched.
	if s.prevText != "" {
		ratio := textutil.Ratio(textutil.Normalize(text), textutil.Normalize(s.prevText))
		if ratio >= s.nearDupRatio {
			s.logger.Debug("near-duplicate segment dropped",
				logging.Float64("ratio", ratio),
				logging.String("text", text))
			return
		}
	}

	startedAt := chunk.CapturedAt
	if startedAt == 0 {
		startedAt = segment.Now()
	}
	seg := segment.New(uuid.NewString(), text, start, end, startedAt)

	s.lastEnd = end
	s.prevText = text

	if err := s.out.Put(ctx, seg); err != nil {
		return
	}
	s.logger.Debug("segment finalized",
		logging.String(logging.FieldSegmentID, seg.ID),
		logging.Float64("start", start),
		logging.Float64("end", end))
}
