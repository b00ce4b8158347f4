// Package redisstream runs the worker side of the queue: a consumer-group
// loop over the job stream that drives each message through lease
// acquisition, handler dispatch, and the retry or dead-letter outcome.
package redisstream

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"strconv"
	"time"

	"github.com/redis/go-redis/v9"

	"github.com/fairyhunter13/dtq/internal/adapter/observability"
	"github.com/fairyhunter13/dtq/internal/adapter/redisq"
	"github.com/fairyhunter13/dtq/internal/config"
	"github.com/fairyhunter13/dtq/internal/domain"
)

// Worker consumes the job stream on behalf of one named consumer within the
// shared group. Run as many Workers as desired; the lease protocol keeps each
// job single-writer regardless of redelivery.
type Worker struct {
	store    *redisq.Client
	cfg      config.Config
	reg      *Registry
	consumer string
	backoff  domain.BackoffPolicy
}

// New constructs a Worker with a unique consumer name.
func New(store *redisq.Client, cfg config.Config, reg *Registry, consumer string) *Worker {
	return &Worker{
		store:    store,
		cfg:      cfg,
		reg:      reg,
		consumer: consumer,
		backoff:  cfg.Backoff(),
	}
}

// Run blocks consuming the job stream until ctx is cancelled. Messages that
// fail processing for unexpected reasons are logged and acked anyway: the job
// hash stays inspectable and an operator can requeue it, whereas a poison
// message redelivered forever would stall the consumer.
func (w *Worker) Run(ctx context.Context) error {
	if err := w.store.EnsureGroup(ctx); err != nil {
		return fmt.Errorf("op=redisstream.Run: %w", err)
	}
	slog.Info("worker loop started",
		slog.String("consumer", w.consumer),
		slog.String("group", w.cfg.ConsumerGroup),
		slog.String("stream", w.cfg.JobStream))

	for {
		select {
		case <-ctx.Done():
			return nil
		default:
		}

		msgs, err := w.store.ReadGroup(ctx, w.consumer, w.cfg.ReadBatch, w.cfg.ReadBlock)
		if err != nil {
			if ctx.Err() != nil {
				return nil
			}
			slog.Error("job stream read failed", slog.Any("error", err))
			select {
			case <-ctx.Done():
				return nil
			case <-time.After(time.Second):
			}
			continue
		}

		for _, msg := range msgs {
			if err := w.ProcessMessage(ctx, msg); err != nil {
				slog.Error("job processing failed",
					slog.String("msg_id", msg.ID),
					slog.Any("error", err))
				if ackErr := w.store.Ack(ctx, msg.ID); ackErr != nil {
					slog.Warn("ack failed", slog.String("msg_id", msg.ID), slog.Any("error", ackErr))
				}
			}
		}
	}
}

// ProcessMessage drives a single stream entry through the pipeline. Malformed
// entries, jobs already cancelled or terminal, and lease losses are drained
// with an ack and no status change.
func (w *Worker) ProcessMessage(ctx context.Context, msg redis.XMessage) error {
	jobID, _ := msg.Values["job_id"].(string)
	if jobID == "" {
		slog.Warn("stream entry missing job_id", slog.String("msg_id", msg.ID))
		return w.store.Ack(ctx, msg.ID)
	}
	log := slog.With(slog.String("job_id", jobID), slog.String("consumer", w.consumer))

	j, err := w.store.GetJob(ctx, jobID)
	if err != nil {
		if errors.Is(err, domain.ErrNotFound) {
			log.Warn("stream entry references missing job hash")
			return w.store.Ack(ctx, msg.ID)
		}
		return err
	}

	if j.Status == domain.JobCancelled {
		log.Info("skipping cancelled job")
		return w.store.Ack(ctx, msg.ID)
	}
	if j.Status.Terminal() {
		log.Info("skipping terminal job", slog.String("status", string(j.Status)))
		return w.store.Ack(ctx, msg.ID)
	}

	granted, err := w.store.AcquireLease(ctx, jobID, w.consumer, w.cfg.LeaseTTL)
	if err != nil {
		return err
	}
	if !granted {
		log.Info("lease held elsewhere, skipping")
		return w.store.Ack(ctx, msg.ID)
	}

	attempt := j.Attempts + 1
	now := time.Now().UTC()
	err = w.store.UpdateJob(ctx, jobID, map[string]any{
		"status":     string(domain.JobRunning),
		"updated_at": now.Format(time.RFC3339Nano),
		"attempts":   strconv.Itoa(attempt),
	})
	if err != nil {
		return err
	}
	w.appendEvent(ctx, jobID, domain.EventStarted, domain.JobRunning, map[string]any{
		"worker_id": w.consumer,
		"attempt":   attempt,
	})

	var payload domain.JobPayload
	if uerr := json.Unmarshal([]byte(j.PayloadJSON), &payload); uerr != nil || payload.TaskType == "" {
		return w.failCorrupt(ctx, msg.ID, jobID, log)
	}

	observability.StartProcessingJob(payload.TaskType)
	start := time.Now()
	result, handlerErr := w.invoke(ctx, payload)
	dur := time.Since(start)

	if handlerErr == nil {
		observability.FinishProcessingJob(payload.TaskType, "succeeded", dur)
		return w.succeed(ctx, msg.ID, jobID, payload.TaskType, attempt, result, log)
	}
	observability.FinishProcessingJob(payload.TaskType, "failed", dur)
	return w.fail(ctx, msg.ID, j, payload.TaskType, attempt, handlerErr, log)
}

// invoke runs the handler, converting a panic into a handler error so one bad
// task cannot take the loop down.
func (w *Worker) invoke(ctx context.Context, payload domain.JobPayload) (result map[string]any, err error) {
	defer func() {
		if r := recover(); r != nil {
			err = fmt.Errorf("handler panic: %v", r)
		}
	}()
	return w.reg.Resolve(payload.TaskType)(ctx, payload)
}

// failCorrupt parks a job whose stored payload cannot be parsed. Retrying
// would re-read the same bytes, so the job fails exactly once.
func (w *Worker) failCorrupt(ctx context.Context, msgID, jobID string, log *slog.Logger) error {
	log.Error("job payload corrupt, failing without retry")
	err := w.store.UpdateJob(ctx, jobID, map[string]any{
		"status":     string(domain.JobFailed),
		"updated_at": time.Now().UTC().Format(time.RFC3339Nano),
	})
	if err != nil {
		return err
	}
	w.appendEvent(ctx, jobID, domain.EventFailed, domain.JobFailed, map[string]any{
		"worker_id":       w.consumer,
		"error":           "payload corrupt",
		"payload_corrupt": true,
	})
	if err := w.store.ReleaseLease(ctx, jobID, w.consumer); err != nil {
		log.Warn("lease release failed", slog.Any("error", err))
	}
	return w.store.Ack(ctx, msgID)
}

func (w *Worker) succeed(ctx context.Context, msgID, jobID, taskType string, attempt int, result map[string]any, log *slog.Logger) error {
	resultJSON, err := json.Marshal(result)
	if err != nil {
		resultJSON = []byte(`{}`)
	}
	err = w.store.UpdateJob(ctx, jobID, map[string]any{
		"status":     string(domain.JobSucceeded),
		"updated_at": time.Now().UTC().Format(time.RFC3339Nano),
		"result":     string(resultJSON),
	})
	if err != nil {
		return err
	}
	w.appendEvent(ctx, jobID, domain.EventSucceeded, domain.JobSucceeded, map[string]any{
		"worker_id": w.consumer,
		"attempt":   attempt,
		"result":    result,
	})
	if err := w.store.IncrJobsCompleted(ctx); err != nil {
		log.Warn("jobs_completed_total increment failed", slog.Any("error", err))
	}
	if err := w.store.ReleaseLease(ctx, jobID, w.consumer); err != nil {
		log.Warn("lease release failed", slog.Any("error", err))
	}
	log.Info("job succeeded", slog.String("task_type", taskType), slog.Int("attempt", attempt))
	return w.store.Ack(ctx, msgID)
}

// fail records the failed attempt and either schedules a retry or routes the
// job to the dead letter queue once attempts reach the cap.
func (w *Worker) fail(ctx context.Context, msgID string, j domain.Job, taskType string, attempt int, handlerErr error, log *slog.Logger) error {
	log.Warn("job attempt failed",
		slog.String("task_type", taskType),
		slog.Int("attempt", attempt),
		slog.Any("error", handlerErr))
	w.appendEvent(ctx, j.ID, domain.EventFailed, domain.JobFailed, map[string]any{
		"worker_id": w.consumer,
		"attempt":   attempt,
		"error":     handlerErr.Error(),
	})

	if attempt >= w.cfg.MaxRetries {
		err := w.store.UpdateJob(ctx, j.ID, map[string]any{
			"status":     string(domain.JobDeadLettered),
			"updated_at": time.Now().UTC().Format(time.RFC3339Nano),
		})
		if err != nil {
			return err
		}
		w.appendEvent(ctx, j.ID, domain.EventDeadLettered, domain.JobDeadLettered, map[string]any{
			"worker_id":     w.consumer,
			"final_attempt": attempt,
			"error":         handlerErr.Error(),
		})
		err = w.store.AppendDLQ(ctx, domain.DLQRecord{
			JobID:       j.ID,
			TaskType:    taskType,
			PayloadJSON: j.PayloadJSON,
			Error:       handlerErr.Error(),
			Attempts:    attempt,
		})
		if err != nil {
			log.Error("dead letter append failed", slog.Any("error", err))
		}
		observability.DeadLetterJob(taskType)
		if err := w.store.ReleaseLease(ctx, j.ID, w.consumer); err != nil {
			log.Warn("lease release failed", slog.Any("error", err))
		}
		log.Error("job dead lettered", slog.Int("final_attempt", attempt))
		return w.store.Ack(ctx, msgID)
	}

	next := w.backoff.NextAttemptAt(time.Now().UTC(), attempt)
	err := w.store.UpdateJob(ctx, j.ID, map[string]any{
		"status":          string(domain.JobPending),
		"updated_at":      time.Now().UTC().Format(time.RFC3339Nano),
		"next_attempt_at": next.Format(time.RFC3339Nano),
	})
	if err != nil {
		return err
	}
	w.appendEvent(ctx, j.ID, domain.EventRetried, domain.JobPending, map[string]any{
		"worker_id":       w.consumer,
		"attempt":         attempt,
		"next_attempt_at": next.Format(time.RFC3339Nano),
	})
	if err := w.store.ReleaseLease(ctx, j.ID, w.consumer); err != nil {
		log.Warn("lease release failed", slog.Any("error", err))
	}
	j.Status = domain.JobPending
	if _, err := w.store.EnqueueJob(ctx, j, true); err != nil {
		return err
	}
	observability.EnqueueJob(taskType)
	log.Info("job scheduled for retry",
		slog.Int("attempt", attempt),
		slog.Time("next_attempt_at", next))
	return w.store.Ack(ctx, msgID)
}

func (w *Worker) appendEvent(ctx context.Context, jobID string, et domain.EventType, st domain.JobStatus, details map[string]any) {
	if err := w.store.AppendEvent(ctx, jobID, et, st, details); err != nil {
		slog.Warn("event append failed",
			slog.String("job_id", jobID),
			slog.String("event_type", string(et)),
			slog.Any("error", err))
	}
}
