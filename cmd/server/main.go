package main

import (
	"context"
	"errors"
	"log/slog"
	"net/http"
	"os"
	"os/signal"
	"syscall"

	"github.com/JonMunkholm/sheetsync/internal/config"
	"github.com/JonMunkholm/sheetsync/internal/core"
	"github.com/JonMunkholm/sheetsync/internal/logging"
	"github.com/JonMunkholm/sheetsync/internal/web"
	"github.com/joho/godotenv"
)

func main() {
	// Load .env file if it exists (Overload overwrites existing env vars)
	if err := godotenv.Overload(); err != nil {
		slog.Info("no .env file found, using environment variables")
	} else {
		slog.Info("loaded .env file (overwriting existing env vars)")
	}

	// Load and validate configuration
	cfg, err := config.Load()
	if err != nil {
		slog.Error("failed to load configuration", "error", err)
		os.Exit(1)
	}

	// Setup structured logging based on config
	logging.Setup(cfg.Logging.Level, cfg.Logging.Format)

	slog.Info("configuration loaded",
		"port", cfg.Server.Port,
		"store", cfg.Store.Driver,
		"upload_max_concurrent", cfg.Upload.MaxConcurrent,
		"goals_period", cfg.Goals.Period,
		"rate_limit_enabled", cfg.Rate.Enabled,
	)
	slog.Debug("configuration", "config", cfg.String())

	// Connect the store once; it is handed to the service and closed on exit.
	ctx := context.Background()
	st, err := openStore(ctx, cfg.Store)
	if err != nil {
		slog.Error("failed to open store", "driver", cfg.Store.Driver, "error", err)
		os.Exit(1)
	}

	service, err := core.NewService(st, cfg)
	if err != nil {
		slog.Error("failed to create service", "error", err)
		st.Close(ctx)
		os.Exit(1)
	}

	server := web.NewServer(service, cfg)

	// Retention sweep runs until shutdown; it is a no-op when UPLOAD_RETENTION is 0.
	cleanupCtx, stopCleanup := context.WithCancel(ctx)
	defer stopCleanup()
	go service.StartCleanupScheduler(cleanupCtx, core.CleanupConfig{
		MaxAge:   cfg.Upload.Retention,
		Interval: cfg.Upload.CleanupInterval,
	})

	// Graceful shutdown
	stopped := make(chan struct{})
	go func() {
		defer close(stopped)
		sigCh := make(chan os.Signal, 1)
		signal.Notify(sigCh, syscall.SIGINT, syscall.SIGTERM)
		<-sigCh

		slog.Info("shutting down...")
		stopCleanup()

		shutdownCtx, cancel := context.WithTimeout(context.Background(), cfg.Server.ShutdownTimeout)
		defer cancel()

		// Wait for active uploads to complete (with timeout)
		uploadStatus := service.UploadLimiterStatus()
		if uploadStatus.Active > 0 {
			slog.Info("waiting for uploads to complete", "active", uploadStatus.Active)
			if err := service.WaitForUploads(shutdownCtx); err != nil {
				slog.Warn("uploads did not complete in time", "error", err)
			} else {
				slog.Info("all uploads completed")
			}
		}

		if err := server.Shutdown(shutdownCtx); err != nil {
			slog.Error("shutdown error", "error", err)
		}
		if err := st.Close(shutdownCtx); err != nil {
			slog.Error("store close error", "error", err)
		}
	}()

	if err := server.Start(cfg.Server.Addr()); err != nil && !errors.Is(err, http.ErrServerClosed) {
		slog.Error("server failed", "error", err)
		st.Close(ctx)
		os.Exit(1)
	}
	<-stopped
	slog.Info("server stopped")
}
