// Package archive maintains the full record of every emitted segment: an
// in-memory map for API reads plus a JSON document on disk that is rewritten
// whole on each update, so a crash never leaves a partially applied state.
package archive

import (
	"encoding/json"
	"errors"
	"fmt"
	"io/fs"
	"log/slog"
	"os"
	"path/filepath"
	"sort"
	"sync"
	"time"

	"github.com/cenkalti/backoff/v4"

	"earmark/internal/logging"
	"earmark/internal/segment"
)

// ErrNotFound indicates the requested segment is not archived.
var ErrNotFound = errors.New("segment not found")

// Store is the archive. Safe for concurrent use; every mutation persists
// before the lock is released, so readers never observe unwritten state.
type Store struct {
	mu       sync.Mutex
	path     string
	segments map[string]*segment.Segment
	logger   *slog.Logger
}

// NewStore opens the archive at path, loading any existing document.
func NewStore(path string, logger *slog.Logger) (*Store, error) {
	store := &Store{
		path:     path,
		segments: make(map[string]*segment.Segment),
		logger:   logging.NewComponentLogger(logger, "archive"),
	}
	if err := store.load(); err != nil {
		return nil, err
	}
	return store, nil
}

func (s *Store) load() error {
	data, err := os.ReadFile(s.path)
	if err != nil {
		if errors.Is(err, fs.ErrNotExist) {
			return nil
		}
		return fmt.Errorf("read archive: %w", err)
	}
	var segments []*segment.Segment
	if err := json.Unmarshal(data, &segments); err != nil {
		return fmt.Errorf("parse archive %s: %w", s.path, err)
	}
	for _, seg := range segments {
		if seg != nil && seg.ID != "" {
			s.segments[seg.ID] = seg
		}
	}
	s.logger.Info("archive loaded", logging.Int("segments", len(s.segments)))
	return nil
}

// Upsert stores a snapshot of seg and persists the archive.
func (s *Store) Upsert(seg *segment.Segment) error {
	if seg == nil || seg.ID == "" {
		return errors.New("archive: segment without id")
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	s.segments[seg.ID] = seg.Clone()
	return s.persistLocked()
}

// Apply mutates the archived segment with id under the store lock and
// persists the result. fn receives the live archived copy.
func (s *Store) Apply(id string, fn func(*segment.Segment) error) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	seg, ok := s.segments[id]
	if !ok {
		return fmt.Errorf("archive: %w: %s", ErrNotFound, id)
	}
	if err := fn(seg); err != nil {
		return err
	}
	return s.persistLocked()
}

// Get returns a copy of the archived segment with id.
func (s *Store) Get(id string) (*segment.Segment, bool) {
	s.mu.Lock()
	defer s.mu.Unlock()
	seg, ok := s.segments[id]
	if !ok {
		return nil, false
	}
	return seg.Clone(), true
}

// All returns copies of every archived segment ordered by start time.
func (s *Store) All() []*segment.Segment {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.sortedLocked(true)
}

// Len returns the number of archived segments.
func (s *Store) Len() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return len(s.segments)
}

func (s *Store) sortedLocked(clone bool) []*segment.Segment {
	out := make([]*segment.Segment, 0, len(s.segments))
	for _, seg := range s.segments {
		if clone {
			out = append(out, seg.Clone())
		} else {
			out = append(out, seg)
		}
	}
	sort.SliceStable(out, func(i, j int) bool {
		if out[i].Start != out[j].Start {
			return out[i].Start < out[j].Start
		}
		return out[i].CreatedAt < out[j].CreatedAt
	})
	return out
}

// persistLocked rewrites the archive document atomically via a sibling temp
// file. Transient filesystem errors are retried briefly; a persistent
// failure is surfaced so the caller can decide whether to keep running.
func (s *Store) persistLocked() error {
	data, err := json.MarshalIndent(s.sortedLocked(false), "", "  ")
	if err != nil {
		return fmt.Errorf("encode archive: %w", err)
	}

	write := func() error {
		tmp := s.path + ".tmp"
		if err := os.MkdirAll(filepath.Dir(s.path), 0o755); err != nil {
			return err
		}
		if err := os.WriteFile(tmp, data, 0o644); err != nil {
			return err
		}
		return os.Rename(tmp, s.path)
	}

	policy := backoff.WithMaxRetries(backoff.NewConstantBackOff(50*time.Millisecond), 3)
	if err := backoff.Retry(write, policy); err != nil {
		s.logger.Error("archive write failed", logging.Error(err))
		return fmt.Errorf("persist archive: %w", err)
	}
	return nil
}
