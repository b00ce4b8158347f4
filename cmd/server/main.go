// Command server starts the DTQ HTTP API.
package main

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	httpserver "github.com/fairyhunter13/dtq/internal/adapter/httpserver"
	"github.com/fairyhunter13/dtq/internal/adapter/observability"
	"github.com/fairyhunter13/dtq/internal/adapter/redisq"
	"github.com/fairyhunter13/dtq/internal/app"
	"github.com/fairyhunter13/dtq/internal/config"
	"github.com/fairyhunter13/dtq/internal/usecase"
)

func main() {
	cfg, err := config.Load()
	if err != nil {
		slog.Error("config load failed", slog.Any("error", err))
		os.Exit(1)
	}

	observability.SetupLogger(cfg)
	observability.InitMetrics()

	store, err := redisq.New(cfg.RedisURL, redisq.Streams{
		Jobs:   cfg.JobStream,
		DLQ:    cfg.DLQStream,
		Events: cfg.JobEventsStream,
		Group:  cfg.ConsumerGroup,
	})
	if err != nil {
		slog.Error("redis connect failed", slog.Any("error", err))
		os.Exit(1)
	}
	defer func() {
		if err := store.Close(); err != nil {
			slog.Error("failed to close redis client", slog.Any("error", err))
		}
	}()

	ctx := context.Background()
	if err := store.Ping(ctx); err != nil {
		slog.Error("redis ping failed", slog.Any("error", err))
		os.Exit(1)
	}
	// Create the consumer group eagerly so jobs enqueued before the first
	// worker comes up are still delivered.
	if err := store.EnsureGroup(ctx); err != nil {
		slog.Error("consumer group setup failed", slog.Any("error", err))
		os.Exit(1)
	}

	svc := usecase.NewService(cfg, store)
	handler := app.BuildRouter(cfg, httpserver.NewServer(cfg, svc))

	srvHTTP := &http.Server{
		Addr:              fmt.Sprintf(":%d", cfg.Port),
		Handler:           handler,
		ReadTimeout:       cfg.HTTPReadTimeout,
		WriteTimeout:      cfg.HTTPWriteTimeout,
		IdleTimeout:       cfg.HTTPIdleTimeout,
		ReadHeaderTimeout: 10 * time.Second,
	}

	// Graceful shutdown
	errCh := make(chan error, 1)
	go func() {
		slog.Info("http server starting", slog.Int("port", cfg.Port))
		errCh <- srvHTTP.ListenAndServe()
	}()

	sigCh := make(chan os.Signal, 1)
	signal.Notify(sigCh, syscall.SIGINT, syscall.SIGTERM)

	select {
	case sig := <-sigCh:
		slog.Info("shutdown signal received", slog.String("signal", sig.String()))
	case err := <-errCh:
		if err != nil && !errors.Is(err, http.ErrServerClosed) {
			slog.Error("server error", slog.Any("error", err))
		}
	}

	shutdownCtx, cancel := context.WithTimeout(context.Background(), cfg.ServerShutdownTimeout)
	defer cancel()
	_ = srvHTTP.Shutdown(shutdownCtx)
}
