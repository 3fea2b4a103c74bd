package transcribe

import (
	"context"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"earmark/internal/logging"
	"earmark/internal/queue"
	"earmark/internal/segment"
)

type scriptedTranscriber struct {
	mu      sync.Mutex
	results [][]segment.RawSegment
	err     error
}

func (s *scriptedTranscriber) Transcribe(_ context.Context, _ []byte, _ float64) ([]segment.RawSegment, error) {
	if s.err != nil {
		return nil, s.err
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	if len(s.results) == 0 {
		return nil, nil
	}
	next := s.results[0]
	s.results = s.results[1:]
	return next, nil
}

func runStage(t *testing.T, tr *scriptedTranscriber, chunks []Chunk) []*segment.Segment {
	t.Helper()
	in := queue.New[Chunk]("chunks", 16, queue.PolicyBlock)
	out := queue.New[*segment.Segment]("segments", 16, queue.PolicyBlock)
	stage := NewStage(tr, in, out, 10*time.Millisecond, 0.85, logging.NewNop())

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()
	for _, chunk := range chunks {
		require.NoError(t, in.Put(ctx, chunk))
	}

	var wg sync.WaitGroup
	wg.Add(1)
	go stage.Run(ctx, &wg)

	deadline := time.After(2 * time.Second)
	for in.Len() > 0 {
		select {
		case <-deadline:
			t.Fatal("stage did not drain input")
		case <-time.After(5 * time.Millisecond):
		}
	}
	time.Sleep(20 * time.Millisecond)
	cancel()
	wg.Wait()
	return out.Drain()
}

func TestStageProducesSegment(t *testing.T) {
	tr := &scriptedTranscriber{results: [][]segment.RawSegment{
		{wordSeg(word("hello", 0.0, 0.4), word("there", 0.4, 0.9))},
	}}
	segs := runStage(t, tr, []Chunk{{Audio: []byte{1}, CapturedAt: 123}})

	require.Len(t, segs, 1)
	assert.Equal(t, "hello there", segs[0].Text)
	assert.Equal(t, segment.StatusInProgress, segs[0].Status)
	assert.Equal(t, 123.0, segs[0].PipelineStartedAt)
	assert.NotEmpty(t, segs[0].ID)
}

func TestStageCutoffSpansChunks(t *testing.T) {
	tr := &scriptedTranscriber{results: [][]segment.RawSegment{
		{wordSeg(word("first", 0.0, 0.5), word("part", 0.5, 1.0))},
		// The overlapping second chunk re-hears the tail of the first.
		{wordSeg(word("part", 0.5, 1.0), word("second", 1.0, 1.5), word("bit", 1.5, 2.0))},
	}}
	segs := runStage(t, tr, []Chunk{{Audio: []byte{1}}, {Audio: []byte{2}}})

	require.Len(t, segs, 2)
	assert.Equal(t, "first part", segs[0].Text)
	assert.Equal(t, "second bit", segs[1].Text)
	assert.Equal(t, 1.0, segs[1].Start)
}

func TestStageDropsNearDuplicate(t *testing.T) {
	tr := &scriptedTranscriber{results: [][]segment.RawSegment{
		{wordSeg(word("they", 0.0, 0.3), word("ran", 0.3, 0.6), word("experiments", 0.6, 1.2))},
		// Same speech re-transcribed with later timings, so the cutoff
		// does not remove it.
		{wordSeg(word("they", 1.3, 1.6), word("ran", 1.6, 1.9), word("experiments", 1.9, 2.5))},
	}}
	segs := runStage(t, tr, []Chunk{{Audio: []byte{1}}, {Audio: []byte{2}}})

	require.Len(t, segs, 1)
	assert.Equal(t, "they ran experiments", segs[0].Text)
}

func TestDiscardedDuplicateDoesNotAdvanceCutoff(t *testing.T) {
	tr := &scriptedTranscriber{results: [][]segment.RawSegment{
		{wordSeg(word("they", 0.0, 0.5), word("ran", 0.5, 1.0))},
		// Re-hears the first chunk at later timings; discarded as a
		// near-duplicate without counting as emitted speech.
		{wordSeg(word("they", 1.2, 1.7), word("ran", 1.7, 2.2))},
		// New speech ending before the discarded duplicate's end must
		// still come through.
		{wordSeg(word("brand", 1.3, 1.7), word("new", 1.7, 2.1))},
	}}
	segs := runStage(t, tr, []Chunk{{Audio: []byte{1}}, {Audio: []byte{2}}, {Audio: []byte{3}}})

	require.Len(t, segs, 2)
	assert.Equal(t, "they ran", segs[0].Text)
	assert.Equal(t, "brand new", segs[1].Text)
}

func TestStageSurvivesBackendError(t *testing.T) {
	tr := &scriptedTranscriber{err: assert.AnError}
	segs := runStage(t, tr, []Chunk{{Audio: []byte{1}}})
	assert.Empty(t, segs)
}
