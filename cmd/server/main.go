package main

import (
	"context"
	"fmt"
	"os"
	"os/signal"
	"syscall"

	"golang.org/x/sync/errgroup"

	"github.com/Tyrowin/relay/internal/logger"
	"github.com/Tyrowin/relay/internal/server"
)

func main() {
	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	config, err := server.LoadConfig()
	if err != nil {
		fmt.Fprintf(os.Stderr, "config: %v\n", err)
		os.Exit(1)
	}

	log := logger.New(config.LogLevel, config.LogFormat, os.Stdout)
	log.Info("starting relay",
		logger.Count("capacity", config.Capacity),
		logger.Duration(config.KeepAlive),
	)

	hub := server.NewHub(config.Capacity,
		server.WithLogger(log),
		server.WithKeepAlive(config.KeepAlive),
	)

	mux := server.SetupRoutes(*config, hub, log)
	httpServer := server.CreateServer(config.Port, mux)

	eg, ctx := errgroup.WithContext(ctx)
	eg.Go(server.Run(ctx, httpServer, hub, config.ShutdownTimeout, log))

	if err := eg.Wait(); err != nil {
		log.Error("server stopped with error", logger.Error(err))
		os.Exit(1)
	}

	log.Info("relay stopped")
}
