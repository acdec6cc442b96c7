package main

import (
	"context"
	"fmt"
	"net"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/Netflix/go-env"
	"github.com/joho/godotenv"
	"github.com/mama165/sdk-go/logs"

	"pulse-chat/hub"
	"pulse-chat/identity"
	"pulse-chat/internal"
	"pulse-chat/observability"
	"pulse-chat/workers"
)

func main() {
	if err := run(); err != nil {
		fmt.Fprintf(os.Stderr, "Fatal error: %v\n", err)
		os.Exit(1)
	}
}

// run initializes all components, manages the server lifecycle, and centralizes error reporting.
// This pattern ensures all 'defer' statements are executed before the program exits and keeps
// the initialization logic testable, decoupled from the main entry point.
func run() error {
	// 1. Configuration & Logger
	_ = godotenv.Load()
	var config internal.ServerConfig
	if _, err := env.UnmarshalFromEnviron(&config); err != nil {
		return fmt.Errorf("config error: %w", err)
	}
	log := logs.GetLoggerFromString(config.LogLevel)

	// 2. Hub wiring
	stats := observability.NewStats()
	registry := hub.NewRegistry()
	h := hub.NewHub(log, registry, stats, config.RelayQueueSize, config.ConnectionBufferSize)
	directory := identity.NewDirectory()
	server := hub.NewServer(log, h, stats, directory, []byte(config.JWTSecret), config.TokenLifetime)

	// 3. Supervision
	sup := workers.NewSupervisor(log, config.RestartInterval)
	sup.Add(hub.NewFanoutWorker(log, h))
	sup.Add(workers.NewHeartbeatWorker(log, stats, config.HeartbeatInterval))

	// 4. Context & Signals
	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	go sup.Run(ctx)

	// 5. HTTP Server
	address := fmt.Sprintf("%s:%d", config.Host, config.Port)
	listener, err := net.Listen("tcp", address)
	if err != nil {
		return fmt.Errorf("failed to listen on %s: %w", address, err)
	}

	httpServer := &http.Server{Handler: server.Routes()}
	errChan := make(chan error, 1)
	go func() {
		log.Info("Starting hub", "address", address, "at", time.Now().UTC())
		if err := httpServer.Serve(listener); err != nil && err != http.ErrServerClosed {
			errChan <- fmt.Errorf("http server error: %w", err)
		}
	}()

	// 6. Wait for Stop or Error
	select {
	case <-ctx.Done():
		log.Info("Shutting down gracefully...")
	case err := <-errChan:
		return err
	}

	// 7. Final Cleanup
	shutdownCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	_ = httpServer.Shutdown(shutdownCtx)
	sup.Stop()
	log.Info("Program stopped cleanly")

	return nil
}
