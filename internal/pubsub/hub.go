// Package pubsub provides the fan-out used to push emitted segments and
// pipeline state to API subscribers. Delivery is best-effort: a subscriber
// that stops draining its mailbox is evicted rather than allowed to stall
// the publisher.
package pubsub

import (
	"sync"
)

// Subscriber receives published values on C until closed or evicted.
type Subscriber[T any] struct {
	C  chan T
	id uint64
}

// Hub is a broadcast channel with bounded per-subscriber mailboxes.
type Hub[T any] struct {
	mu      sync.Mutex
	nextID  uint64
	mailbox int
	subs    map[uint64]*Subscriber[T]
	closed  bool
}

// NewHub creates a hub whose subscribers buffer up to mailbox values.
func NewHub[T any](mailbox int) *Hub[T] {
	if mailbox < 1 {
		mailbox = 1
	}
	return &Hub[T]{
		mailbox: mailbox,
		subs:    make(map[uint64]*Subscriber[T]),
	}
}

// Subscribe registers a new subscriber. The caller must eventually call
// Unsubscribe or the mailbox leaks until the hub closes.
func (h *Hub[T]) Subscribe() *Subscriber[T] {
	h.mu.Lock()
	defer h.mu.Unlock()
	sub := &Subscriber[T]{
		C:  make(chan T, h.mailbox),
		id: h.nextID,
	}
	h.nextID++
	if h.closed {
		close(sub.C)
		return sub
	}
	h.subs[sub.id] = sub
	return sub
}

// Unsubscribe removes a subscriber and closes its mailbox.
func (h *Hub[T]) Unsubscribe(sub *Subscriber[T]) {
	if sub == nil {
		return
	}
	h.mu.Lock()
	defer h.mu.Unlock()
	if _, ok := h.subs[sub.id]; ok {
		delete(h.subs, sub.id)
		close(sub.C)
	}
}

// Publish delivers value to every subscriber without blocking. Subscribers
// whose mailboxes are full are evicted; a consumer that cannot keep up with
// the live stream is better cut off than silently lagging further behind.
func (h *Hub[T]) Publish(value T) {
	h.mu.Lock()
	defer h.mu.Unlock()
	if h.closed {
		return
	}
	for id, sub := range h.subs {
		select {
		case sub.C <- value:
		default:
			delete(h.subs, id)
			close(sub.C)
		}
	}
}

// Close evicts all subscribers and rejects further publishes.
func (h *Hub[T]) Close() {
	h.mu.Lock()
	defer h.mu.Unlock()
	if h.closed {
		return
	}
	h.closed = true
	for id, sub := range h.subs {
		delete(h.subs, id)
		close(sub.C)
	}
}

// Len returns the current subscriber count.
func (h *Hub[T]) Len() int {
	h.mu.Lock()
	defer h.mu.Unlock()
	return len(h.subs)
}
