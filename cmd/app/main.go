package main

import (
	"context"
	"errors"
	"flag"
	"log/slog"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"metals_go/internal/api"
	"metals_go/internal/app"

	_ "net/http/pprof" // For pprof profiling
)

func main() {
	configPath := flag.String("config", "configs/config.yaml", "path to configuration file")
	flag.Parse()

	// 1. Pprof Server (for performance profiling)
	go func() {
		// Localhost only for security
		slog.Info("🕵️ Pprof server started on localhost:6060")
		if err := http.ListenAndServe("localhost:6060", nil); err != nil {
			slog.Error("Pprof server failed", slog.Any("error", err))
		}
	}()

	// 2. System Bootstrapping
	bootstrap := app.NewBootstrap()
	if err := bootstrap.Initialize(*configPath); err != nil {
		slog.Error("❌ Bootstrapping failed", slog.Any("error", err))
		os.Exit(1)
	}

	// 3. Graceful Shutdown Context
	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	// 4. Sync scheduler (runs a startup refresh if the store is cold)
	if err := bootstrap.Scheduler.Start(ctx); err != nil {
		slog.Error("❌ Failed to start sync scheduler", slog.Any("error", err))
		os.Exit(1)
	}
	defer bootstrap.Scheduler.Stop()

	// 5. Broadcaster refresh loop
	go bootstrap.Broadcaster.Run(ctx)
	slog.InfoContext(ctx, "✅ Broadcaster started")

	// 6. HTTP API + WebSocket endpoint
	server := api.NewServer(bootstrap.Aggregator, bootstrap.Scheduler, bootstrap.Hub.HandleWS)
	httpServer := &http.Server{
		Addr:              bootstrap.Config.Server.Addr,
		Handler:           server.Router(),
		ReadHeaderTimeout: 5 * time.Second,
	}

	serverErrCh := make(chan error, 1)
	go func() {
		if err := httpServer.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			serverErrCh <- err
		}
	}()
	slog.InfoContext(ctx, "✨ Metals price core fully operational",
		slog.String("addr", bootstrap.Config.Server.Addr))

	// Wait for shutdown signal or server failure
	select {
	case <-ctx.Done():
		slog.InfoContext(ctx, "👋 Shutting down gracefully...")
	case err := <-serverErrCh:
		slog.Error("HTTP server terminated unexpectedly", slog.Any("error", err))
	}

	shutdownCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	if err := httpServer.Shutdown(shutdownCtx); err != nil {
		slog.Error("graceful shutdown failed", slog.Any("error", err))
	}
}
