// Package server constructs and runs the relay's HTTP service with helpers
// that apply sensible production defaults.
package server

import (
	"context"
	"errors"
	"log/slog"
	"net/http"
	"time"

	"github.com/Tyrowin/relay/internal/logger"
)

// CreateServer creates and configures an HTTP server with the specified port and handler.
// It sets reasonable timeout values for production use. Streaming handlers
// lift the write deadline for their own connection.
func CreateServer(port string, handler http.Handler) *http.Server {
	return &http.Server{
		Addr:              port,
		Handler:           handler,
		ReadHeaderTimeout: 5 * time.Second,
		ReadTimeout:       15 * time.Second,
		WriteTimeout:      15 * time.Second,
		IdleTimeout:       60 * time.Second,
	}
}

// StartServer starts the HTTP server and begins listening for connections.
// It returns http.ErrServerClosed after a graceful shutdown.
func StartServer(server *http.Server, log *slog.Logger) error {
	log.Info("server listening", slog.String("addr", server.Addr))
	return server.ListenAndServe()
}

// ShutdownServer gracefully shuts down the HTTP server without interrupting active connections.
// It waits for active connections to close or until the timeout is reached.
func ShutdownServer(server *http.Server, timeout time.Duration, log *slog.Logger) error {
	log.Info("shutting down HTTP server", logger.Duration(timeout))

	ctx, cancel := context.WithTimeout(context.Background(), timeout)
	defer cancel()

	if err := server.Shutdown(ctx); err != nil {
		log.Error("HTTP server shutdown error", logger.Error(err))
		return err
	}

	log.Info("HTTP server shutdown completed")
	return nil
}

// Run returns a function suitable for errgroup.Group.Go. It serves until ctx
// is cancelled, then stops the hub's streams and shuts the server down.
func Run(ctx context.Context, server *http.Server, hub *Hub, timeout time.Duration, log *slog.Logger) func() error {
	return func() error {
		// Long-lived streams would otherwise keep Shutdown waiting.
		server.RegisterOnShutdown(func() {
			_ = hub.Shutdown(timeout)
		})

		errCh := make(chan error, 1)
		go func() {
			errCh <- StartServer(server, log)
		}()

		select {
		case err := <-errCh:
			if errors.Is(err, http.ErrServerClosed) {
				return nil
			}
			return err
		case <-ctx.Done():
			shutdownErr := ShutdownServer(server, timeout, log)
			if err := hub.Shutdown(timeout); err != nil && shutdownErr == nil {
				shutdownErr = err
			}
			if err := <-errCh; err != nil && !errors.Is(err, http.ErrServerClosed) {
				return err
			}
			return shutdownErr
		}
	}
}
