// Package semantic implements the embedding-backed topic deduplication cache.
// Each candidate flag summary is embedded and compared against recently
// cached vectors; a close match means the topic was already surfaced and the
// new flag should be retired as a duplicate.
package semantic

import (
	"context"
	"log/slog"
	"math"
	"sync"

	"earmark/internal/clients"
	"earmark/internal/logging"
)

type entry struct {
	vector   []float32
	cachedAt float64
}

// Filter is a bounded, time-windowed cache of embedding vectors. Safe for
// concurrent use; the embedding call happens outside the lock so slow
// backends never serialize unrelated callers.
type Filter struct {
	embedder  clients.Embedder
	logger    *slog.Logger
	threshold float64
	windowSec float64
	limit     int

	mu      sync.Mutex
	entries []entry
}

// NewFilter creates a Filter. threshold is the cosine similarity above which
// two summaries count as the same topic, windowMinutes bounds how far back
// comparisons reach, and limit caps the number of cached vectors.
func NewFilter(embedder clients.Embedder, threshold float64, windowMinutes, limit int, logger *slog.Logger) *Filter {
	if limit < 1 {
		limit = 1
	}
	return &Filter{
		embedder:  embedder,
		logger:    logging.NewComponentLogger(logger, "semantic"),
		threshold: threshold,
		windowSec: float64(windowMinutes) * 60,
		limit:     limit,
	}
}

// IsDuplicate reports whether text is semantically close to a recently seen
// summary. When it is not, the embedding is cached so later summaries compare
// against it. The check and insert happen under one lock acquisition, so two
// concurrent near-identical summaries cannot both pass.
//
// An embedding failure is treated as not-duplicate: the pipeline degrades to
// occasionally repeating a topic rather than dropping flags.
func (f *Filter) IsDuplicate(ctx context.Context, text string, now float64) (bool, error) {
	if text == "" {
		return false, nil
	}

	vector, err := f.embedder.Embed(ctx, text)
	if err != nil {
		f.logger.Warn("embedding failed, treating as new topic", logging.Error(err))
		return false, err
	}

	f.mu.Lock()
	defer f.mu.Unlock()

	// An entry is fresh while strictly less than the window old. Timestamps
	// are caller-supplied and not assumed monotone, so stale entries are
	// pruned with a full pass rather than an ordered scan.
	cutoff := now - f.windowSec
	kept := f.entries[:0]
	for _, e := range f.entries {
		if e.cachedAt > cutoff {
			kept = append(kept, e)
		}
	}
	f.entries = kept

	for i := len(f.entries) - 1; i >= 0; i-- {
		if Cosine(vector, f.entries[i].vector) > f.threshold {
			return true, nil
		}
	}

	f.entries = append(f.entries, entry{vector: vector, cachedAt: now})
	if len(f.entries) > f.limit {
		f.entries = f.entries[len(f.entries)-f.limit:]
	}
	return false, nil
}

// Len returns the number of cached embeddings.
func (f *Filter) Len() int {
	f.mu.Lock()
	defer f.mu.Unlock()
	return len(f.entries)
}

// Cosine computes cosine similarity between two vectors. Mismatched lengths
// and zero vectors yield 0.
func Cosine(a, b []float32) float64 {
	if len(a) == 0 || len(a) != len(b) {
		return 0
	}
	var dot, normA, normB float64
	for i := range a {
		dot += float64(a[i]) * float64(b[i])
		normA += float64(a[i]) * float64(a[i])
		normB += float64(b[i]) * float64(b[i])
	}
	if normA == 0 || normB == 0 {
		return 0
	}
	return dot / (math.Sqrt(normA) * math.Sqrt(normB))
}
