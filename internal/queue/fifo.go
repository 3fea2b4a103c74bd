// Package queue provides the bounded FIFO hand-off used between pipeline
// stages. A queue is a thin wrapper over a channel that adds a configurable
// overflow policy and timeout-based polling so stage workers can interleave
// work with shutdown checks.
package queue

import (
	"context"
	"sync/atomic"
	"time"
)

// Policy controls behavior when a queue is full.
type Policy string

const (
	// PolicyBlock makes Put wait for space, applying backpressure upstream.
	PolicyBlock Policy = "block"
	// PolicyDropOldest makes Put evict the oldest queued item to admit the new one.
	PolicyDropOldest Policy = "drop_oldest"
)

// FIFO is a bounded first-in-first-out queue safe for concurrent use.
type FIFO[T any] struct {
	name    string
	items   chan T
	policy  Policy
	dropped atomic.Int64
}

// New returns a FIFO with the given capacity and overflow policy. The name is
// used in logs and metrics.
func New[T any](name string, capacity int, policy Policy) *FIFO[T] {
	if capacity < 1 {
		capacity = 1
	}
	return &FIFO[T]{
		name:   name,
		items:  make(chan T, capacity),
		policy: policy,
	}
}

// Name returns the queue's identifier.
func (q *FIFO[T]) Name() string { return q.name }

// Len returns the current number of queued items.
func (q *FIFO[T]) Len() int { return len(q.items) }

// Cap returns the queue capacity.
func (q *FIFO[T]) Cap() int { return cap(q.items) }

// Dropped returns the number of items evicted under PolicyDropOldest.
func (q *FIFO[T]) Dropped() int64 { return q.dropped.Load() }

// Put enqueues an item. Under PolicyBlock it waits for space or context
// cancellation; under PolicyDropOldest it evicts the oldest item instead of
// waiting. The returned error is non-nil only when ctx ends first.
func (q *FIFO[T]) Put(ctx context.Context, item T) error {
	if q.policy == PolicyBlock {
		select {
		case q.items <- item:
			return nil
		case <-ctx.Done():
			return ctx.Err()
		}
	}
	for {
		select {
		case q.items <- item:
			return nil
		case <-ctx.Done():
			return ctx.Err()
		default:
		}
		select {
		case <-q.items:
			q.dropped.Add(1)
		default:
		}
	}
}

// Get waits up to timeout for an item. The second return is false when the
// timeout elapsed or ctx ended with nothing available.
func (q *FIFO[T]) Get(ctx context.Context, timeout time.Duration) (T, bool) {
	var zero T
	select {
	case item := <-q.items:
		return item, true
	default:
	}
	timer := time.NewTimer(timeout)
	defer timer.Stop()
	select {
	case item := <-q.items:
		return item, true
	case <-timer.C:
		return zero, false
	case <-ctx.Done():
		return zero, false
	}
}

// TryGet returns an item immediately if one is available.
func (q *FIFO[T]) TryGet() (T, bool) {
	var zero T
	select {
	case item := <-q.items:
		return item, true
	default:
		return zero, false
	}
}

// Drain removes and returns all currently queued items without waiting.
func (q *FIFO[T]) Drain() []T {
	var out []T
	for {
		select {
		case item := <-q.items:
			out = append(out, item)
		default:
			return out
		}
	}
}
