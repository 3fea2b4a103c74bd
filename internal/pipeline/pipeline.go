// Package pipeline assembles the enrichment stages into one runnable unit:
// transcription, shallow screening, semantic dedup, deep analysis, and
// archive emission, connected by bounded queues.
package pipeline

import (
	"context"
	"errors"
	"log/slog"
	"sync"
	"sync/atomic"
	"time"

	"earmark/internal/archive"
	"earmark/internal/clients"
	"earmark/internal/config"
	"earmark/internal/deep"
	"earmark/internal/logging"
	"earmark/internal/metrics"
	"earmark/internal/pubsub"
	"earmark/internal/queue"
	"earmark/internal/segment"
	"earmark/internal/semantic"
	"earmark/internal/shallow"
	"earmark/internal/transcribe"
)

// ErrPaused is returned by Ingest while ingestion is paused.
var ErrPaused = errors.New("pipeline paused")

// ErrNotRunning is returned by Ingest before Start or after Stop.
var ErrNotRunning = errors.New("pipeline not running")

// State describes the pipeline's ingestion posture.
type State string

const (
	StateStopped State = "stopped"
	StatePaused  State = "paused"
	StateRunning State = "running"
)

// Pipeline owns the stage workers and the queues between them. Ingestion
// starts paused; a client must explicitly start the stream.
type Pipeline struct {
	cfg     *config.Config
	logger  *slog.Logger
	store   *archive.Store
	hub     *pubsub.Hub[archive.StreamView]
	metrics *metrics.Metrics

	chunks         *queue.FIFO[transcribe.Chunk]
	shallowIn      *queue.FIFO[*segment.Segment]
	deepIn         *queue.FIFO[segment.Context]
	shallowResults *queue.FIFO[*segment.Segment]
	deepResults    *queue.FIFO[*segment.Segment]

	transcribeStage *transcribe.Stage
	shallowStage    *shallow.Stage
	deepStage       *deep.Stage
	emitter         *archive.Emitter

	paused  atomic.Bool
	running atomic.Bool
	cancel  context.CancelFunc
	wg      sync.WaitGroup
}

// New wires a pipeline from configuration, backends, and shared services.
func New(
	cfg *config.Config,
	set *clients.Set,
	store *archive.Store,
	hub *pubsub.Hub[archive.StreamView],
	m *metrics.Metrics,
	logger *slog.Logger,
) *Pipeline {
	policy := queue.Policy(cfg.Pipeline.OverflowPolicy)
	capacity := cfg.Pipeline.QueueCapacity
	pollTimeout := time.Duration(cfg.Pipeline.QueuePollTimeoutMS) * time.Millisecond

	p := &Pipeline{
		cfg:     cfg,
		logger:  logging.NewComponentLogger(logger, "pipeline"),
		store:   store,
		hub:     hub,
		metrics: m,

		chunks:         queue.New[transcribe.Chunk]("chunks", capacity, policy),
		shallowIn:      queue.New[*segment.Segment]("shallow", capacity, policy),
		deepIn:         queue.New[segment.Context]("deep", capacity, policy),
		shallowResults: queue.New[*segment.Segment]("shallow-results", capacity, policy),
		deepResults:    queue.New[*segment.Segment]("deep-results", capacity, policy),
	}
	p.paused.Store(true)

	filter := semantic.NewFilter(set.Embedder,
		cfg.Semantic.SimilarityThreshold,
		cfg.Semantic.ContextMinutes,
		cfg.Semantic.ContextLimit,
		logger)

	p.transcribeStage = transcribe.NewStage(set.Transcriber,
		p.chunks, p.shallowIn, pollTimeout,
		cfg.Pipeline.NearDuplicateThreshold, logger)

	shallowModel := set.Shallow
	deepModel := set.Deep
	if m != nil {
		shallowModel = timedShallow{inner: shallowModel, metrics: m}
		deepModel = timedDeep{inner: deepModel, metrics: m}
	}

	p.shallowStage = shallow.NewStage(shallowModel, filter,
		p.shallowIn, p.deepIn, p.shallowResults,
		segment.NewWindow(cfg.Shallow.ContextWindow),
		segment.NewWindow(cfg.Deep.ContextWindow),
		pollTimeout, logger)

	p.deepStage = deep.NewStage(deepModel,
		p.deepIn, p.deepResults, pollTimeout,
		cfg.Deep.MaxInFlight, cfg.Deep.RecentFlagLimit, logger)

	p.emitter = archive.NewEmitter(p.shallowResults, p.deepResults,
		store, hub,
		time.Duration(cfg.Pipeline.EmitIntervalMS)*time.Millisecond,
		logger)

	if m != nil {
		p.emitter.OnFlush(m.ObserveEmit)
		m.RegisterQueueDepth(p.chunks.Name(), p.chunks.Len)
		m.RegisterQueueDepth(p.shallowIn.Name(), p.shallowIn.Len)
		m.RegisterQueueDepth(p.deepIn.Name(), p.deepIn.Len)
		m.RegisterQueueDepth(p.shallowResults.Name(), p.shallowResults.Len)
		m.RegisterQueueDepth(p.deepResults.Name(), p.deepResults.Len)
		m.RegisterArchiveSize(store.Len)
	}
	return p
}

// timedShallow and timedDeep record model round-trip latency per stage.
type timedShallow struct {
	inner   clients.ShallowModel
	metrics *metrics.Metrics
}

func (t timedShallow) Generate(ctx context.Context, prompt string) (string, error) {
	start := time.Now()
	out, err := t.inner.Generate(ctx, prompt)
	t.metrics.ObserveModelCall("shallow", time.Since(start).Seconds())
	return out, err
}

type timedDeep struct {
	inner   clients.DeepModel
	metrics *metrics.Metrics
}

func (t timedDeep) Send(ctx context.Context, prompt string) (string, error) {
	start := time.Now()
	out, err := t.inner.Send(ctx, prompt)
	t.metrics.ObserveModelCall("deep", time.Since(start).Seconds())
	return out, err
}

// Start launches the stage workers. Ingestion remains paused until Resume.
func (p *Pipeline) Start(ctx context.Context) {
	if !p.running.CompareAndSwap(false, true) {
		return
	}
	runCtx, cancel := context.WithCancel(ctx)
	p.cancel = cancel

	p.wg.Add(4)
	go p.transcribeStage.Run(runCtx, &p.wg)
	go p.shallowStage.Run(runCtx, &p.wg)
	go p.deepStage.Run(runCtx, &p.wg)
	go p.emitter.Run(runCtx, &p.wg)

	p.logger.Info("pipeline started",
		logging.Int("queue_capacity", p.cfg.Pipeline.QueueCapacity),
		logging.String("overflow_policy", p.cfg.Pipeline.OverflowPolicy))
}

// Stop cancels the workers and waits up to the configured shutdown timeout
// for them to drain. Workers still running after the deadline are abandoned.
func (p *Pipeline) Stop() {
	if !p.running.CompareAndSwap(true, false) {
		return
	}
	p.cancel()

	done := make(chan struct{})
	go func() {
		p.wg.Wait()
		close(done)
	}()

	timeout := time.Duration(p.cfg.Pipeline.ShutdownTimeoutSeconds) * time.Second
	select {
	case <-done:
		p.logger.Info("pipeline stopped")
	case <-time.After(timeout):
		p.logger.Warn("pipeline shutdown timed out, workers abandoned",
			logging.Duration("timeout", timeout))
	}
}

// Ingest accepts one audio chunk for transcription. Returns ErrPaused while
// the stream is paused and ErrNotRunning outside Start/Stop.
func (p *Pipeline) Ingest(ctx context.Context, chunk transcribe.Chunk) error {
	if !p.running.Load() {
		return ErrNotRunning
	}
	if p.paused.Load() {
		if p.metrics != nil {
			p.metrics.ChunksRejected.Inc()
		}
		return ErrPaused
	}
	if chunk.CapturedAt == 0 {
		chunk.CapturedAt = segment.Now()
	}
	if err := p.chunks.Put(ctx, chunk); err != nil {
		return err
	}
	if p.metrics != nil {
		p.metrics.ChunksIngested.Inc()
	}
	return nil
}

// Resume opens ingestion.
func (p *Pipeline) Resume() {
	if p.paused.CompareAndSwap(true, false) {
		p.logger.Info("ingestion resumed")
	}
}

// Pause closes ingestion. Segments already in flight keep flowing; only new
// chunks are refused.
func (p *Pipeline) Pause() {
	if p.paused.CompareAndSwap(false, true) {
		p.logger.Info("ingestion paused")
	}
}

// CurrentState reports the ingestion posture.
func (p *Pipeline) CurrentState() State {
	if !p.running.Load() {
		return StateStopped
	}
	if p.paused.Load() {
		return StatePaused
	}
	return StateRunning
}

// QueueDepths reports the buffered item count per queue.
func (p *Pipeline) QueueDepths() map[string]int {
	return map[string]int{
		p.chunks.Name():         p.chunks.Len(),
		p.shallowIn.Name():      p.shallowIn.Len(),
		p.deepIn.Name():         p.deepIn.Len(),
		p.shallowResults.Name(): p.shallowResults.Len(),
		p.deepResults.Name():    p.deepResults.Len(),
	}
}
