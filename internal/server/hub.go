// Package server coordinates message publication, subscriber streams, and
// shutdown for the relay via the Hub type.
package server

import (
	"context"
	"log/slog"
	"sync"
	"time"

	"github.com/Tyrowin/relay/internal/broadcast"
	"github.com/Tyrowin/relay/internal/logger"
)

// Hub owns the relay's broadcast channel and the shutdown signal observed by
// every subscriber stream. One Hub is created at startup and shared by all
// handlers.
type Hub struct {
	channel   *broadcast.Channel[Message]
	log       *slog.Logger
	keepAlive time.Duration

	ctx    context.Context
	cancel context.CancelFunc

	mu       sync.Mutex
	stopping bool
	streams  sync.WaitGroup
}

// HubOption configures a Hub.
type HubOption func(*Hub)

// WithLogger sets the logger used by the hub and its streams.
func WithLogger(log *slog.Logger) HubOption {
	return func(h *Hub) {
		h.log = log
	}
}

// WithKeepAlive sets how long a stream may stay idle before its sink is
// pinged. Zero disables keep-alives.
func WithKeepAlive(d time.Duration) HubOption {
	return func(h *Hub) {
		h.keepAlive = d
	}
}

// NewHub creates a Hub whose channel retains capacity messages.
func NewHub(capacity int, opts ...HubOption) *Hub {
	ctx, cancel := context.WithCancel(context.Background())
	h := &Hub{
		channel: broadcast.New[Message](capacity),
		log:     logger.Discard(),
		ctx:     ctx,
		cancel:  cancel,
	}

	for _, opt := range opts {
		opt(h)
	}
	h.log = h.log.With(logger.Component("hub"))

	return h
}

// Publish hands msg to the broadcast channel and returns how many streams
// were subscribed. Having no subscribers is not an error.
func (h *Hub) Publish(msg Message) (int, error) {
	n, err := h.channel.Publish(msg)
	if err != nil {
		return 0, ErrShuttingDown
	}
	h.log.Debug("message published",
		logger.Count("subscribers", n),
		slog.String("room", msg.Room),
	)
	return n, nil
}

// Done is closed when shutdown begins.
func (h *Hub) Done() <-chan struct{} {
	return h.ctx.Done()
}

// Subscribers returns the number of open subscriptions.
func (h *Hub) Subscribers() int {
	return h.channel.Subscribers()
}

// Buffered returns the number of messages retained in the ring.
func (h *Hub) Buffered() int {
	return h.channel.Len()
}

// Capacity returns the ring size.
func (h *Hub) Capacity() int {
	return h.channel.Cap()
}

// track registers a stream unless shutdown already started.
func (h *Hub) track() bool {
	h.mu.Lock()
	defer h.mu.Unlock()

	if h.stopping {
		return false
	}
	h.streams.Add(1)
	return true
}

// Shutdown signals every stream to stop, closes the channel, and waits up to
// timeout for the streams to return. It may be called more than once; every
// call waits.
func (h *Hub) Shutdown(timeout time.Duration) error {
	h.mu.Lock()
	first := !h.stopping
	h.stopping = true
	h.mu.Unlock()

	if first {
		h.log.Info("initiating hub shutdown", logger.Count("subscribers", h.channel.Subscribers()))
		// Cancel before closing so streams report shutdown, not closure.
		h.cancel()
		h.channel.Close()
	}

	done := make(chan struct{})
	go func() {
		h.streams.Wait()
		close(done)
	}()

	select {
	case <-done:
		if first {
			h.log.Info("hub shutdown completed successfully")
		}
		return nil
	case <-time.After(timeout):
		h.log.Warn("hub shutdown timeout reached, some streams may still be running")
		return context.DeadlineExceeded
	}
}
