// Command worker consumes the job stream and executes task handlers.
package main

import (
	"context"
	"fmt"
	"log/slog"
	"net/http"
	"os"
	"os/signal"
	"syscall"

	"github.com/google/uuid"
	"github.com/prometheus/client_golang/prometheus/promhttp"

	"github.com/fairyhunter13/dtq/internal/adapter/observability"
	"github.com/fairyhunter13/dtq/internal/adapter/queue/redisstream"
	"github.com/fairyhunter13/dtq/internal/adapter/redisq"
	"github.com/fairyhunter13/dtq/internal/config"
)

func main() {
	cfg, err := config.Load()
	if err != nil {
		slog.Error("config load failed", slog.Any("error", err))
		os.Exit(1)
	}

	observability.SetupLogger(cfg)

	// Expose job-queue metrics on a dedicated endpoint so Prometheus can
	// scrape the worker process separately from the API.
	observability.InitMetrics()
	go func() {
		mux := http.NewServeMux()
		mux.Handle("/metrics", promhttp.Handler())
		if err := http.ListenAndServe(cfg.MetricsAddr, mux); err != nil {
			slog.Error("worker metrics server error", slog.Any("error", err))
		}
	}()

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

	hostname, _ := os.Hostname()
	consumer := fmt.Sprintf("worker-%s-%s", hostname, uuid.NewString()[:8])

	worker := redisstream.New(store, cfg, redisstream.NewRegistry(), consumer)

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	errCh := make(chan error, 1)
	go func() { errCh <- worker.Run(ctx) }()

	slog.Info("worker started", slog.String("consumer", consumer))
	sigCh := make(chan os.Signal, 1)
	signal.Notify(sigCh, syscall.SIGTERM, syscall.SIGINT)

	select {
	case sig := <-sigCh:
		slog.Info("signal received, shutting down", slog.String("signal", sig.String()))
		cancel()
		<-errCh
	case err := <-errCh:
		if err != nil {
			slog.Error("worker error", slog.Any("error", err))
			os.Exit(1)
		}
	}
	slog.Info("worker stopped")
}
