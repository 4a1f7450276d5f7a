package server

import (
	"context"
	"errors"
	"log/slog"

	"github.com/Tyrowin/relay/internal/broadcast"
	"github.com/Tyrowin/relay/internal/logger"
)

// Sink is the push side of one client connection.
type Sink interface {
	// Send delivers one message to the client.
	Send(Message) error
	// Ping keeps an idle connection alive.
	Ping() error
}

// opener is implemented by sinks that tell the client the stream is live.
// Open is called once the subscription exists, so anything published after
// the client sees it is delivered.
type opener interface {
	Open() error
}

// StreamEnd reports why a stream stopped.
type StreamEnd int

const (
	// EndClosed means the broadcast channel was closed.
	EndClosed StreamEnd = iota
	// EndShutdown means the hub began shutting down.
	EndShutdown
	// EndDisconnected means the caller's context ended, usually because the
	// client went away.
	EndDisconnected
	// EndWriteFailed means the sink returned an error.
	EndWriteFailed
)

func (e StreamEnd) String() string {
	switch e {
	case EndClosed:
		return "closed"
	case EndShutdown:
		return "shutdown"
	case EndDisconnected:
		return "disconnected"
	case EndWriteFailed:
		return "write_failed"
	default:
		return "unknown"
	}
}

var errIdle = errors.New("stream idle")

// Stream subscribes to the hub and pushes every message published from now on
// into sink until the channel closes, the hub shuts down, ctx ends, or the
// sink fails. Messages lost to lag are skipped without notice to the client.
func (h *Hub) Stream(ctx context.Context, sink Sink) StreamEnd {
	return h.stream(ctx, sink, h.log)
}

func (h *Hub) stream(ctx context.Context, sink Sink, log *slog.Logger) StreamEnd {
	if !h.track() {
		return EndShutdown
	}
	defer h.streams.Done()

	ctx, cancel := context.WithCancel(ctx)
	defer cancel()
	stop := context.AfterFunc(h.ctx, cancel)
	defer stop()

	sub := h.channel.Subscribe()
	defer sub.Close()

	if o, ok := sink.(opener); ok {
		if err := o.Open(); err != nil {
			log.Debug("failed to open stream", logger.Error(err))
			return EndWriteFailed
		}
	}

	for {
		if h.ctx.Err() != nil {
			return EndShutdown
		}

		msg, err := h.recv(ctx, sub)
		switch {
		case err == nil:
			if err := sink.Send(msg); err != nil {
				log.Debug("failed to deliver message", logger.Error(err))
				return EndWriteFailed
			}

		case errors.Is(err, errIdle):
			if err := sink.Ping(); err != nil {
				log.Debug("failed to send keep-alive", logger.Error(err))
				return EndWriteFailed
			}

		case errors.Is(err, broadcast.ErrLagged):
			var lagged *broadcast.LaggedError
			if errors.As(err, &lagged) {
				log.Debug("stream lagged, skipping messages", slog.Uint64("skipped", lagged.Skipped))
			}

		case errors.Is(err, broadcast.ErrClosed):
			if h.ctx.Err() != nil {
				return EndShutdown
			}
			return EndClosed

		default:
			if h.ctx.Err() != nil {
				return EndShutdown
			}
			return EndDisconnected
		}
	}
}

// recv waits for the next message, turning a keep-alive period without
// traffic into errIdle.
func (h *Hub) recv(ctx context.Context, sub *broadcast.Subscription[Message]) (Message, error) {
	if h.keepAlive <= 0 {
		return sub.Recv(ctx)
	}

	rctx, cancel := context.WithTimeoutCause(ctx, h.keepAlive, errIdle)
	defer cancel()

	msg, err := sub.Recv(rctx)
	if err != nil && ctx.Err() == nil && errors.Is(context.Cause(rctx), errIdle) {
		return Message{}, errIdle
	}
	return msg, err
}
