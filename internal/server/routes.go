// Package server wires HTTP handlers into a chi router for the relay.
package server

import (
	"log/slog"
	"net/http"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"
)

// SetupRoutes configures and returns the relay's router: publication,
// the two subscriber transports, probes, and static assets at the root.
func SetupRoutes(cfg Config, hub *Hub, log *slog.Logger) http.Handler {
	h := NewHandlers(hub, cfg, log)
	limiter := newRateLimiter(cfg.RateLimit, log)

	// No RealIP: forwarding headers are client-controlled and the rate
	// limiter keys on the transport peer address.
	r := chi.NewRouter()
	r.Use(middleware.RequestID)
	r.Use(middleware.RequestLogger(&middleware.DefaultLogFormatter{
		Logger:  slog.NewLogLogger(log.Handler(), slog.LevelDebug),
		NoColor: true,
	}))
	r.Use(middleware.Recoverer)

	r.Get("/world", World)
	r.Get("/healthz", h.Health)

	r.With(limiter.Middleware).Post("/message", h.PublishMessage)
	r.Get("/events", h.Events)
	r.Get("/ws", h.WebSocket)

	r.Handle("/*", StaticHandler(cfg.StaticDir))

	return r
}
