// Package broadcast implements a bounded multi-producer, multi-consumer
// fan-out channel.
//
// Every published value receives a global sequence number and is stored in a
// fixed-size ring. Each Subscription keeps its own cursor into that sequence,
// so subscribers progress independently and never block publishers. When a
// subscriber falls more than Cap() values behind, its next receive reports a
// *LaggedError and the cursor jumps to the oldest value still retained.
package broadcast

import (
	"context"
	"sync"
	"sync/atomic"
)

// DefaultCapacity is the ring size used by the relay when none is configured.
const DefaultCapacity = 1024

// Channel is a broadcast channel holding the last Cap() published values.
// All methods are safe for concurrent use.
type Channel[T any] struct {
	mu     sync.RWMutex
	ring   []T
	next   uint64 // sequence number of the next published value
	closed bool

	// wake is closed and replaced on every Publish and on Close. Receivers
	// that find nothing to read park on the current value.
	wake chan struct{}

	subscribers atomic.Int64
}

// New creates a Channel retaining up to capacity values. A capacity below
// one is treated as one.
func New[T any](capacity int) *Channel[T] {
	if capacity < 1 {
		capacity = 1
	}
	return &Channel[T]{
		ring: make([]T, capacity),
		wake: make(chan struct{}),
	}
}

// Publish appends v, overwriting the oldest value if the ring is full, and
// wakes every blocked receiver. It returns the number of subscriptions that
// were active at the time; zero is not an error. After Close it returns
// ErrClosed.
func (c *Channel[T]) Publish(v T) (int, error) {
	c.mu.Lock()
	if c.closed {
		c.mu.Unlock()
		return 0, ErrClosed
	}

	c.ring[c.next%uint64(len(c.ring))] = v
	c.next++
	wake := c.wake
	c.wake = make(chan struct{})
	n := int(c.subscribers.Load())
	c.mu.Unlock()

	close(wake)
	return n, nil
}

// Subscribe registers a new cursor positioned at the current write sequence.
// Values published before the call are never delivered to it.
func (c *Channel[T]) Subscribe() *Subscription[T] {
	c.mu.Lock()
	defer c.mu.Unlock()

	c.subscribers.Add(1)
	return &Subscription[T]{ch: c, cursor: c.next}
}

// Close marks the channel closed and wakes all receivers. Subscriptions still
// drain what is buffered ahead of their cursor before reporting ErrClosed.
// Close is idempotent.
func (c *Channel[T]) Close() {
	c.mu.Lock()
	if c.closed {
		c.mu.Unlock()
		return
	}
	c.closed = true
	wake := c.wake
	c.mu.Unlock()

	close(wake)
}

// Subscribers returns the number of open subscriptions.
func (c *Channel[T]) Subscribers() int {
	return int(c.subscribers.Load())
}

// Len returns the number of values currently retained in the ring.
func (c *Channel[T]) Len() int {
	c.mu.RLock()
	defer c.mu.RUnlock()

	if c.next < uint64(len(c.ring)) {
		return int(c.next)
	}
	return len(c.ring)
}

// Cap returns the ring capacity.
func (c *Channel[T]) Cap() int {
	return len(c.ring)
}

// oldest returns the sequence number of the oldest retained value.
// Must be called with c.mu held.
func (c *Channel[T]) oldest() uint64 {
	size := uint64(len(c.ring))
	if c.next <= size {
		return 0
	}
	return c.next - size
}

// Subscription is one consumer's cursor into a Channel. A Subscription must
// be used by a single goroutine at a time.
type Subscription[T any] struct {
	ch       *Channel[T]
	cursor   uint64 // sequence number of the next value to read
	released atomic.Bool
}

// Recv blocks until the next value is available and returns it.
//
// It returns a *LaggedError if values were overwritten before they could be
// read, ErrClosed once the channel is closed and drained, or ctx.Err() when
// ctx is done. A done context takes precedence over a ready value.
func (s *Subscription[T]) Recv(ctx context.Context) (T, error) {
	for {
		if err := ctx.Err(); err != nil {
			var zero T
			return zero, err
		}

		v, wake, err := s.poll()
		if err != ErrEmpty {
			return v, err
		}

		select {
		case <-wake:
		case <-ctx.Done():
			var zero T
			return zero, ctx.Err()
		}
	}
}

// TryRecv is the non-blocking form of Recv. It returns ErrEmpty when no value
// is ready.
func (s *Subscription[T]) TryRecv() (T, error) {
	v, _, err := s.poll()
	return v, err
}

// poll reads at most one value. When nothing is ready it returns ErrEmpty
// and the wake channel to park on.
func (s *Subscription[T]) poll() (T, <-chan struct{}, error) {
	var zero T
	c := s.ch

	c.mu.RLock()
	defer c.mu.RUnlock()

	if s.cursor < c.next {
		if oldest := c.oldest(); s.cursor < oldest {
			skipped := oldest - s.cursor
			s.cursor = oldest
			return zero, nil, &LaggedError{Skipped: skipped}
		}
		v := c.ring[s.cursor%uint64(len(c.ring))]
		s.cursor++
		return v, nil, nil
	}

	if c.closed {
		return zero, nil, ErrClosed
	}
	return zero, c.wake, ErrEmpty
}

// Close releases the subscription. It is safe to call more than once.
func (s *Subscription[T]) Close() {
	if s.released.CompareAndSwap(false, true) {
		s.ch.subscribers.Add(-1)
	}
}
