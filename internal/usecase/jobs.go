// Package usecase implements the job service: ingestion, validated status
// transitions, cancellation, requeue, and the read-side queries used by the
// HTTP surface.
package usecase

import (
	"context"
	"encoding/json"
	"fmt"
	"log/slog"
	"time"

	"github.com/google/uuid"

	"github.com/fairyhunter13/dtq/internal/adapter/observability"
	"github.com/fairyhunter13/dtq/internal/adapter/redisq"
	"github.com/fairyhunter13/dtq/internal/config"
	"github.com/fairyhunter13/dtq/internal/domain"
)

// Actors recorded on audit fields.
const (
	ActorSystem = "system"
	ActorUser   = "user"
	ActorUI     = "ui"
)

// Service orchestrates job lifecycle operations over the substrate.
type Service struct {
	Cfg   config.Config
	Store *redisq.Client
}

// NewService constructs the job service.
func NewService(cfg config.Config, store *redisq.Client) *Service {
	return &Service{Cfg: cfg, Store: store}
}

// Create persists a new PENDING job, enqueues it on the job stream, bumps the
// creation counter, and emits CREATED and ENQUEUED. The hash write precedes
// the stream append so a consumer observing the message always finds the
// hash; event emission trails best-effort.
func (s *Service) Create(ctx context.Context, payload domain.JobPayload, partitionKey string) (domain.Job, error) {
	if payload.TaskType == "" {
		return domain.Job{}, fmt.Errorf("%w: task_type is required", domain.ErrInvalidArgument)
	}
	payloadJSON, err := json.Marshal(payload)
	if err != nil {
		return domain.Job{}, fmt.Errorf("%w: payload not serializable", domain.ErrInvalidArgument)
	}

	now := time.Now().UTC()
	j := domain.Job{
		ID:           uuid.NewString(),
		Status:       domain.JobPending,
		CreatedAt:    now,
		UpdatedAt:    now,
		Attempts:     0,
		PartitionKey: partitionKey,
		TaskType:     payload.TaskType,
		PayloadJSON:  string(payloadJSON),
	}

	if err := s.Store.SaveJob(ctx, j); err != nil {
		return domain.Job{}, err
	}
	if _, err := s.Store.EnqueueJob(ctx, j, false); err != nil {
		return domain.Job{}, err
	}
	observability.EnqueueJob(j.TaskType)
	if err := s.Store.IncrJobsCreated(ctx); err != nil {
		slog.Warn("jobs_created_total increment failed", slog.String("job_id", j.ID), slog.Any("error", err))
	}
	if err := s.Store.AppendEvent(ctx, j.ID, domain.EventCreated, domain.JobPending, nil); err != nil {
		slog.Warn("event append failed", slog.String("job_id", j.ID), slog.Any("error", err))
	}
	if err := s.Store.AppendEvent(ctx, j.ID, domain.EventEnqueued, domain.JobPending, nil); err != nil {
		slog.Warn("event append failed", slog.String("job_id", j.ID), slog.Any("error", err))
	}
	return j, nil
}

// Get loads a job by id.
func (s *Service) Get(ctx context.Context, id string) (domain.Job, error) {
	return s.Store.GetJob(ctx, id)
}

// List returns jobs paginated over the lexicographically sorted id space.
// Unreadable entries are skipped silently.
func (s *Service) List(ctx context.Context, limit, offset int) ([]domain.Job, error) {
	ids, err := s.Store.JobIDs(ctx)
	if err != nil {
		return nil, err
	}
	if offset >= len(ids) {
		return []domain.Job{}, nil
	}
	end := offset + limit
	if end > len(ids) {
		end = len(ids)
	}
	jobs := make([]domain.Job, 0, end-offset)
	for _, id := range ids[offset:end] {
		j, err := s.Store.GetJob(ctx, id)
		if err != nil {
			continue
		}
		jobs = append(jobs, j)
	}
	return jobs, nil
}

// Events returns the per-job event trail. A job with no events and no hash is
// reported as not found.
func (s *Service) Events(ctx context.Context, id string) ([]domain.Event, error) {
	events, err := s.Store.JobEvents(ctx, id)
	if err != nil {
		return nil, err
	}
	if len(events) == 0 {
		if _, err := s.Store.GetJob(ctx, id); err != nil {
			return nil, err
		}
	}
	return events, nil
}

// Cancel unconditionally parks the job in CANCELLED, regardless of the
// transition table: the user-initiated kill path must always succeed. The
// worker drains queued stream entries for cancelled jobs without running
// the handler.
func (s *Service) Cancel(ctx context.Context, id, actor, reason string) (domain.Job, error) {
	if _, err := s.Store.GetJob(ctx, id); err != nil {
		return domain.Job{}, err
	}
	now := time.Now().UTC()
	err := s.Store.UpdateJob(ctx, id, map[string]any{
		"status":                    string(domain.JobCancelled),
		"updated_at":                now.Format(time.RFC3339Nano),
		"last_status_change_reason": reason,
		"last_status_actor":         actor,
	})
	if err != nil {
		return domain.Job{}, err
	}
	details := map[string]any{"actor": actor}
	if reason != "" {
		details["reason"] = reason
	}
	if err := s.Store.AppendEvent(ctx, id, domain.EventCancelled, domain.JobCancelled, details); err != nil {
		slog.Warn("event append failed", slog.String("job_id", id), slog.Any("error", err))
	}
	return s.Store.GetJob(ctx, id)
}

// Transition drives a validated status change. Edges must be admitted by the
// transition table, with two privileged exceptions handled here: any state
// may move to CANCELLED, and CANCELLED may requeue to PENDING. A transition
// into PENDING re-enqueues the job so a worker picks it up again.
func (s *Service) Transition(ctx context.Context, id string, to domain.JobStatus, reason, actor string) (domain.Job, error) {
	j, err := s.Store.GetJob(ctx, id)
	if err != nil {
		return domain.Job{}, err
	}

	switch {
	case to == domain.JobCancelled:
		return s.Cancel(ctx, id, actor, reason)
	case j.Status == domain.JobCancelled && to == domain.JobPending:
		// requeue from cancelled; the only non-table edge the service accepts
	case !domain.CanTransition(j.Status, to):
		return domain.Job{}, domain.InvalidTransition(j.Status, to)
	}

	now := time.Now().UTC()
	fields := map[string]any{
		"status":            string(to),
		"updated_at":        now.Format(time.RFC3339Nano),
		"last_status_actor": actor,
	}
	if reason != "" {
		fields["last_status_change_reason"] = reason
	}
	if err := s.Store.UpdateJob(ctx, id, fields); err != nil {
		return domain.Job{}, err
	}

	details := map[string]any{"actor": actor}
	if reason != "" {
		details["reason"] = reason
	}
	if err := s.Store.AppendEvent(ctx, id, domain.EventStatusChange, to, details); err != nil {
		slog.Warn("event append failed", slog.String("job_id", id), slog.Any("error", err))
	}

	if to == domain.JobPending {
		j.Status = domain.JobPending
		if _, err := s.Store.EnqueueJob(ctx, j, true); err != nil {
			return domain.Job{}, err
		}
		observability.EnqueueJob(j.TaskType)
		if err := s.Store.AppendEvent(ctx, id, domain.EventEnqueued, domain.JobPending, map[string]any{"actor": actor}); err != nil {
			slog.Warn("event append failed", slog.String("job_id", id), slog.Any("error", err))
		}
	}
	return s.Store.GetJob(ctx, id)
}

// TransitionFromUI enforces the operator-facing transition policy before
// delegating to Transition. Worker-reserved edges are denied even when the
// table would admit them.
func (s *Service) TransitionFromUI(ctx context.Context, id string, to domain.JobStatus, reason string) (domain.Job, error) {
	j, err := s.Store.GetJob(ctx, id)
	if err != nil {
		return domain.Job{}, err
	}
	if !domain.UIAllowed(j.Status, to) {
		return domain.Job{}, fmt.Errorf("%w: from %s to %s", domain.ErrTransitionDenied, j.Status, to)
	}
	return s.Transition(ctx, id, to, reason, ActorUI)
}

// Metrics is the aggregate view served by GET /metrics.
type Metrics struct {
	JobCounts          map[domain.JobStatus]int `json:"job_counts"`
	DLQDepth           int64                    `json:"dlq_depth"`
	TotalJobs          int                      `json:"total_jobs"`
	JobsCreatedTotal   int64                    `json:"jobs_created_total"`
	JobsCompletedTotal int64                    `json:"jobs_completed_total"`
}

// GetMetrics counts jobs per status, the DLQ depth, and the throughput
// counters. Read-only; O(N) over the job keyspace.
func (s *Service) GetMetrics(ctx context.Context) (Metrics, error) {
	m := Metrics{JobCounts: make(map[domain.JobStatus]int, len(domain.Statuses))}
	for _, st := range domain.Statuses {
		m.JobCounts[st] = 0
	}

	ids, err := s.Store.JobIDs(ctx)
	if err != nil {
		return Metrics{}, err
	}
	for _, id := range ids {
		j, err := s.Store.GetJob(ctx, id)
		if err != nil {
			continue
		}
		m.JobCounts[j.Status]++
		m.TotalJobs++
	}

	if m.DLQDepth, err = s.Store.DLQDepth(ctx); err != nil {
		return Metrics{}, err
	}
	if m.JobsCreatedTotal, m.JobsCompletedTotal, err = s.Store.Counters(ctx); err != nil {
		return Metrics{}, err
	}
	return m, nil
}
