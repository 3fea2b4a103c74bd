package archive

import (
	"context"
	"log/slog"
	"sort"
	"sync"
	"time"

	"earmark/internal/logging"
	"earmark/internal/pubsub"
	"earmark/internal/queue"
	"earmark/internal/segment"
)

// Emitter merges the shallow and deep result streams into the archive and
// the subscriber hub. Results from both stages are drained together each
// tick and replayed in start-time order so a deep update never reaches
// subscribers before the shallow emission of a later segment it followed.
type Emitter struct {
	shallow  *queue.FIFO[*segment.Segment]
	deep     *queue.FIFO[*segment.Segment]
	store    *Store
	hub      *pubsub.Hub[StreamView]
	interval time.Duration
	logger   *slog.Logger
	onFlush  func(updates int)
}

// OnFlush registers a callback invoked with the size of each non-empty
// emitted batch. Set before Run.
func (e *Emitter) OnFlush(fn func(updates int)) {
	e.onFlush = fn
}

// NewEmitter wires an emitter draining the two result queues.
func NewEmitter(
	shallow, deep *queue.FIFO[*segment.Segment],
	store *Store,
	hub *pubsub.Hub[StreamView],
	interval time.Duration,
	logger *slog.Logger,
) *Emitter {
	return &Emitter{
		shallow:  shallow,
		deep:     deep,
		store:    store,
		hub:      hub,
		interval: interval,
		logger:   logging.NewComponentLogger(logger, "emit"),
	}
}

// Run drains and emits on a fixed interval until ctx is cancelled, then
// performs one final drain so nothing queued at shutdown is lost.
func (e *Emitter) Run(ctx context.Context, wg *sync.WaitGroup) {
	defer wg.Done()
	ticker := time.NewTicker(e.interval)
	defer ticker.Stop()
	for {
		select {
		case <-ticker.C:
			e.Flush()
		case <-ctx.Done():
			e.Flush()
			return
		}
	}
}

// Flush drains both result queues and emits everything found, in start-time
// order. It returns the number of updates emitted.
func (e *Emitter) Flush() int {
	batch := e.shallow.Drain()
	batch = append(batch, e.deep.Drain()...)
	if len(batch) == 0 {
		return 0
	}

	sort.SliceStable(batch, func(i, j int) bool {
		return batch[i].Start < batch[j].Start
	})

	now := segment.Now()
	for _, seg := range batch {
		if err := e.store.Upsert(seg); err != nil {
			e.logger.Error("segment not archived",
				logging.String(logging.FieldSegmentID, seg.ID),
				logging.Error(err))
		}
		e.hub.Publish(NewStreamView(seg, now))
	}
	e.logger.Debug("batch emitted", logging.Int("updates", len(batch)))
	if e.onFlush != nil {
		e.onFlush(len(batch))
	}
	return len(batch)
}
