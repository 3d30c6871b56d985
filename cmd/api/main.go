package main

import (
	"context"
	"log/slog"
	"os"
	"os/signal"
	"syscall"

	"lwa-query-web/internal/config"
	httpapi "lwa-query-web/internal/http"
	"lwa-query-web/internal/logging"
)

var version = "dev"

func main() {
	cfg, err := config.FromEnv()
	if err != nil {
		slog.Error("failed to load config", "err", err)
		os.Exit(1)
	}
	logger := logging.New(cfg.LogLevel, cfg.LogJSON)
	slog.SetDefault(logger)

	srv, err := httpapi.NewServer(cfg, logger)
	if err != nil {
		logger.Error("failed to initialize server", "err", err)
		os.Exit(1)
	}

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	errCh := make(chan error, 1)
	go func() {
		logger.Info("starting API server", "version", version, "addr", cfg.ListenAddr, "prefix", cfg.URLPrefix, "db_enabled", cfg.DBEnabled)
		errCh <- srv.ListenAndServe()
	}()

	select {
	case err := <-errCh:
		if err != nil {
			logger.Error("server stopped", "err", err)
			os.Exit(1)
		}
		return
	case <-ctx.Done():
		logger.Info("shutdown signal received")
	}

	shutdownCtx, cancel := context.WithTimeout(context.Background(), cfg.ShutdownTimeout)
	defer cancel()
	if err := srv.Shutdown(shutdownCtx); err != nil {
		logger.Error("graceful shutdown failed", "err", err)
		os.Exit(1)
	}
}
