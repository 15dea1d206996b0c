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

	"limit_chaser/internal/app"

	"github.com/prometheus/client_golang/prometheus/promhttp"

	_ "net/http/pprof" // For pprof profiling
)

func main() {
	configPath := flag.String("config", "configs/config.yaml", "path to the YAML configuration")
	flag.Parse()

	// 1. System Bootstrapping
	bootstrap := app.NewBootstrap(*configPath)
	if err := bootstrap.Initialize(); err != nil {
		slog.Error("❌ Bootstrapping failed", slog.Any("error", err))
		os.Exit(1)
	}
	cfg := bootstrap.Config
	logger := bootstrap.Logger

	// 2. Graceful Shutdown Context
	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	// 3. Pprof + metrics server (localhost only by default)
	http.Handle("/metrics", promhttp.HandlerFor(bootstrap.Registry, promhttp.HandlerOpts{}))
	go func() {
		logger.Info("🕵️ Metrics/pprof server started", slog.String("addr", cfg.HTTP.MetricsAddr))
		if err := http.ListenAndServe(cfg.HTTP.MetricsAddr, nil); err != nil {
			logger.Error("Metrics server failed", slog.Any("error", err))
		}
	}()

	// 4. Background workers
	if err := bootstrap.Run(ctx); err != nil {
		logger.Error("❌ Startup failed", slog.Any("error", err))
		os.Exit(1)
	}

	// 5. Control API
	srv := &http.Server{
		Addr:              cfg.HTTP.Addr,
		Handler:           bootstrap.API.Routes(),
		ReadHeaderTimeout: 5 * time.Second,
	}
	go func() {
		if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			logger.Error("API server failed", slog.Any("error", err))
			stop()
		}
	}()

	logger.InfoContext(ctx, "✨ limit_chaser operational. Press Ctrl+C to exit.",
		slog.String("api", cfg.HTTP.Addr),
		slog.String("mode", cfg.Mode))

	// Wait for shutdown signal
	<-ctx.Done()
	logger.Info("👋 Shutting down gracefully...")

	shutdownCtx, cancel := context.WithTimeout(context.Background(), 15*time.Second)
	defer cancel()
	if err := srv.Shutdown(shutdownCtx); err != nil {
		logger.Warn("API shutdown", slog.Any("error", err))
	}
	if err := bootstrap.Close(shutdownCtx); err != nil {
		logger.Error("Shutdown incomplete", slog.Any("error", err))
		os.Exit(1)
	}
}
