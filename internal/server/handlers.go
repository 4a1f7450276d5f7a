// Package server exposes HTTP handlers: message publication, the SSE and
// WebSocket subscriber streams, and health checks.
package server

import (
	"encoding/json"
	"fmt"
	"log/slog"
	"net/http"
	"time"

	"github.com/google/uuid"
	"github.com/gorilla/websocket"

	"github.com/Tyrowin/relay/internal/logger"
)

// Handlers holds dependencies for HTTP handlers.
type Handlers struct {
	hub      *Hub
	log      *slog.Logger
	maxBody  int64
	upgrader websocket.Upgrader
}

// NewHandlers creates the relay's HTTP handlers around hub.
func NewHandlers(hub *Hub, cfg Config, log *slog.Logger) *Handlers {
	origins := newOriginPolicy(cfg.AllowedOrigins, log)

	return &Handlers{
		hub:     hub,
		log:     log,
		maxBody: cfg.MaxBodyBytes,
		upgrader: websocket.Upgrader{
			ReadBufferSize:  1024,
			WriteBufferSize: 1024,
			CheckOrigin:     origins.checkOrigin,
		},
	}
}

// PublishMessage accepts one message and hands it to the hub. The response
// does not wait for any subscriber.
func (h *Handlers) PublishMessage(w http.ResponseWriter, r *http.Request) {
	if h.maxBody > 0 {
		r.Body = http.MaxBytesReader(w, r.Body, h.maxBody)
	}

	msg, err := bindMessage(r)
	if err == nil {
		err = msg.Validate()
	}
	if err != nil {
		h.log.Debug("rejected publish request", logger.Remote(r.RemoteAddr), logger.Error(err))
		writeError(w, h.log, err)
		return
	}

	if _, err := h.hub.Publish(msg); err != nil {
		writeError(w, h.log, err)
		return
	}

	w.WriteHeader(http.StatusOK)
}

// Events streams every message published after the request arrived as
// Server-Sent Events.
func (h *Handlers) Events(w http.ResponseWriter, r *http.Request) {
	flusher, ok := w.(http.Flusher)
	if !ok {
		http.Error(w, "Streaming unsupported", http.StatusInternalServerError)
		return
	}

	// The stream outlives the server's WriteTimeout.
	if err := http.NewResponseController(w).SetWriteDeadline(time.Time{}); err != nil {
		h.log.Debug("could not clear write deadline", logger.Error(err))
	}

	w.Header().Set("Content-Type", "text/event-stream")
	w.Header().Set("Cache-Control", "no-cache")
	w.Header().Set("Connection", "keep-alive")
	w.Header().Set("X-Accel-Buffering", "no")
	w.WriteHeader(http.StatusOK)

	sink := &sseSink{w: w, flusher: flusher}

	log := h.streamLogger("sse", r)
	log.Info("stream opened")
	start := time.Now()

	end := h.hub.stream(r.Context(), sink, log)
	if end == EndShutdown {
		_ = sink.comment("server shutting down")
	}

	log.Info("stream ended", slog.String("reason", end.String()), logger.Duration(time.Since(start)))
}

// WebSocket upgrades the connection and streams messages as JSON text frames.
func (h *Handlers) WebSocket(w http.ResponseWriter, r *http.Request) {
	conn, err := h.upgrader.Upgrade(w, r, nil)
	if err != nil {
		h.log.Warn("websocket upgrade failed", logger.Remote(r.RemoteAddr), logger.Error(err))
		return
	}

	log := h.streamLogger("websocket", r)
	log.Info("stream opened")
	start := time.Now()

	end := NewClient(conn, h.hub, r.RemoteAddr, log).Serve(r.Context())

	log.Info("stream ended", slog.String("reason", end.String()), logger.Duration(time.Since(start)))
}

func (h *Handlers) streamLogger(transport string, r *http.Request) *slog.Logger {
	return h.log.With(
		logger.Component("stream"),
		logger.Transport(transport),
		logger.StreamID(uuid.NewString()),
		logger.Remote(r.RemoteAddr),
	)
}

type healthResponse struct {
	Status      string `json:"status"`
	Subscribers int    `json:"subscribers"`
	Buffered    int    `json:"buffered"`
	Capacity    int    `json:"capacity"`
}

// Health reports relay status and channel occupancy.
func (h *Handlers) Health(w http.ResponseWriter, _ *http.Request) {
	resp := healthResponse{
		Status:      "ok",
		Subscribers: h.hub.Subscribers(),
		Buffered:    h.hub.Buffered(),
		Capacity:    h.hub.Capacity(),
	}

	status := http.StatusOK
	select {
	case <-h.hub.Done():
		resp.Status = "shutting_down"
		status = http.StatusServiceUnavailable
	default:
	}

	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	if err := json.NewEncoder(w).Encode(resp); err != nil {
		h.log.Debug("error writing health response", logger.Error(err))
	}
}

// World is the relay's hello-world probe.
func World(w http.ResponseWriter, _ *http.Request) {
	w.Header().Set("Content-Type", "text/plain; charset=utf-8")
	_, _ = fmt.Fprint(w, "Hello World!")
}
