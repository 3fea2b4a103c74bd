package pipeline

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"earmark/internal/archive"
	"earmark/internal/logging"
	"earmark/internal/metrics"
	"earmark/internal/pubsub"
	"earmark/internal/segment"
	"earmark/internal/testsupport"
	"earmark/internal/transcribe"
)

type fixture struct {
	pipeline *Pipeline
	store    *archive.Store
	hub      *pubsub.Hub[archive.StreamView]
}

func newFixture(t *testing.T, set *testsupportSet) *fixture {
	t.Helper()
	cfg := testsupport.NewConfig(t)
	require.NoError(t, cfg.EnsureDirectories())

	logger := logging.NewNop()
	store, err := archive.NewStore(cfg.ArchivePath(), logger)
	require.NoError(t, err)
	hub := pubsub.NewHub[archive.StreamView](cfg.Pipeline.SubscriberMailbox)

	p := New(cfg, testsupport.ClientSet(set.tr, set.sh, set.dp, set.em),
		store, hub, metrics.New(), logger)
	return &fixture{pipeline: p, store: store, hub: hub}
}

type testsupportSet struct {
	tr *testsupport.FakeTranscriber
	sh *testsupport.FakeShallow
	dp *testsupport.FakeDeep
	em *testsupport.FakeEmbedder
}

func defaultSet() *testsupportSet {
	return &testsupportSet{
		tr: &testsupport.FakeTranscriber{},
		sh: &testsupport.FakeShallow{},
		dp: &testsupport.FakeDeep{},
		em: &testsupport.FakeEmbedder{},
	}
}

func waitFor(t *testing.T, cond func() bool) {
	t.Helper()
	deadline := time.After(3 * time.Second)
	for !cond() {
		select {
		case <-deadline:
			t.Fatal("condition not reached in time")
		case <-time.After(10 * time.Millisecond):
		}
	}
}

func TestIngestRefusedWhilePausedOrStopped(t *testing.T) {
	fix := newFixture(t, defaultSet())
	ctx := context.Background()
	chunk := transcribe.Chunk{Audio: []byte{1}}

	assert.ErrorIs(t, fix.pipeline.Ingest(ctx, chunk), ErrNotRunning)
	assert.Equal(t, StateStopped, fix.pipeline.CurrentState())

	fix.pipeline.Start(ctx)
	defer fix.pipeline.Stop()
	assert.Equal(t, StatePaused, fix.pipeline.CurrentState())
	assert.ErrorIs(t, fix.pipeline.Ingest(ctx, chunk), ErrPaused)

	fix.pipeline.Resume()
	assert.Equal(t, StateRunning, fix.pipeline.CurrentState())
	assert.NoError(t, fix.pipeline.Ingest(ctx, chunk))

	fix.pipeline.Pause()
	assert.ErrorIs(t, fix.pipeline.Ingest(ctx, chunk), ErrPaused)
}

func TestEndToEndDeepEnrichment(t *testing.T) {
	set := defaultSet()
	set.tr.Scripts = [][]segment.RawSegment{
		{testsupport.Words(0, "they", "ran", "secret", "experiments", "on", "civilians")},
	}
	set.sh.Replies = []string{
		"Flags: [\"secret experiments on civilians\"]\nSemanticSummary: 'covert human experimentation claim'",
	}
	set.dp.Replies = []string{
		`{"claim": "secret experiments on civilians", "severity": 8, "headline": "Documented program", "analysis": "Records confirm such a program existed.", "exit_reason": "NONE"}`,
	}
	fix := newFixture(t, set)
	sub := fix.hub.Subscribe()
	defer fix.hub.Unsubscribe(sub)

	ctx := context.Background()
	fix.pipeline.Start(ctx)
	defer fix.pipeline.Stop()
	fix.pipeline.Resume()
	require.NoError(t, fix.pipeline.Ingest(ctx, transcribe.Chunk{Audio: []byte{1}}))

	waitFor(t, func() bool {
		all := fix.store.All()
		return len(all) == 1 && all[0].Status == segment.StatusComplete
	})

	all := fix.store.All()
	seg := all[0]
	assert.Equal(t, "they ran secret experiments on civilians", seg.Text)
	require.Len(t, seg.Flags, 1)
	assert.Equal(t, segment.SourceDeep, seg.Flags[0].Source)
	assert.Equal(t, 8.0, seg.Flags[0].Severity)
	assert.Equal(t, "Documented program", seg.Flags[0].Summary)

	// Subscribers saw the raw text before enrichment finished.
	first := <-sub.C
	assert.Equal(t, segment.StatusInProgress, first.Status)
	assert.Equal(t, "they ran secret experiments on civilians", first.Transcript)
}

func TestUnparsableDeepResponseLeavesSegmentFlagged(t *testing.T) {
	set := defaultSet()
	set.tr.Scripts = [][]segment.RawSegment{
		{testsupport.Words(0, "a", "bold", "claim")},
	}
	set.sh.Replies = []string{
		"Flags: [\"bold claim\"]\nSemanticSummary: 'a bold claim'",
	}
	set.dp.Replies = []string{"not json at all"}
	fix := newFixture(t, set)

	ctx := context.Background()
	fix.pipeline.Start(ctx)
	fix.pipeline.Resume()
	require.NoError(t, fix.pipeline.Ingest(ctx, transcribe.Chunk{Audio: []byte{1}}))

	waitFor(t, func() bool {
		all := fix.store.All()
		return len(all) == 1 && all[0].Status == segment.StatusFlagged
	})

	// Give the deep stage time to finish; the verdict is dropped, so the
	// segment never completes.
	time.Sleep(100 * time.Millisecond)
	fix.pipeline.Stop()

	all := fix.store.All()
	require.Len(t, all, 1)
	assert.Equal(t, segment.StatusFlagged, all[0].Status)
	require.Len(t, all[0].Flags, 1)
	assert.Equal(t, segment.SourceShallow, all[0].Flags[0].Source)
}

func TestRepeatTopicRetiredAsDuplicate(t *testing.T) {
	set := defaultSet()
	set.tr.Scripts = [][]segment.RawSegment{
		{testsupport.Words(0, "first", "mention", "of", "the", "program")},
		{testsupport.Words(5, "they", "brought", "that", "operation", "up", "once", "more")},
	}
	reply := "Flags: [\"the program\"]\nSemanticSummary: 'the program topic'"
	set.sh.Replies = []string{reply, reply}
	set.dp.Replies = []string{`{"claim": "the program", "severity": 2}`}
	fix := newFixture(t, set)

	ctx := context.Background()
	fix.pipeline.Start(ctx)
	defer fix.pipeline.Stop()
	fix.pipeline.Resume()
	require.NoError(t, fix.pipeline.Ingest(ctx, transcribe.Chunk{Audio: []byte{1}}))
	require.NoError(t, fix.pipeline.Ingest(ctx, transcribe.Chunk{Audio: []byte{2}}))

	waitFor(t, func() bool {
		all := fix.store.All()
		if len(all) != 2 {
			return false
		}
		return all[0].Status == segment.StatusComplete && all[1].Status == segment.StatusComplete
	})

	all := fix.store.All()
	// Both mentions share a semantic summary, so the second retires.
	require.Len(t, all[1].Flags, 1)
	assert.Equal(t, segment.ExitDuplicate, all[1].Flags[0].ExitReason)
	assert.Equal(t, segment.SourceShallow, all[1].Flags[0].Source)
	assert.Equal(t, segment.SourceDeep, all[0].Flags[0].Source)
}

func TestQueueDepthsExposed(t *testing.T) {
	fix := newFixture(t, defaultSet())
	depths := fix.pipeline.QueueDepths()
	for _, name := range []string{"chunks", "shallow", "deep", "shallow-results", "deep-results"} {
		_, ok := depths[name]
		assert.True(t, ok, "missing queue %s", name)
	}
}
