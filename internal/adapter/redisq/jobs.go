package redisq

import (
	"context"
	"errors"
	"fmt"
	"sort"
	"strconv"
	"strings"
	"time"

	"github.com/redis/go-redis/v9"

	"github.com/fairyhunter13/dtq/internal/domain"
)

const (
	counterJobsCreated   = "metrics:jobs_created_total"
	counterJobsCompleted = "metrics:jobs_completed_total"
)

// SaveJob writes the full job hash. Ingestion calls this before the stream
// append so that any reader observing a stream message finds the hash.
func (c *Client) SaveJob(ctx context.Context, j domain.Job) error {
	if err := c.rdb.HSet(ctx, jobKey(j.ID), jobToHash(j)).Err(); err != nil {
		return fmt.Errorf("op=redisq.SaveJob: %w", err)
	}
	return nil
}

// UpdateJob writes a partial set of hash fields. Callers must include
// updated_at so the per-job clock advances on every write.
func (c *Client) UpdateJob(ctx context.Context, id string, fields map[string]any) error {
	if err := c.rdb.HSet(ctx, jobKey(id), fields).Err(); err != nil {
		return fmt.Errorf("op=redisq.UpdateJob: %w", err)
	}
	return nil
}

// GetJob loads a job hash, or domain.ErrNotFound if it is absent.
func (c *Client) GetJob(ctx context.Context, id string) (domain.Job, error) {
	h, err := c.rdb.HGetAll(ctx, jobKey(id)).Result()
	if err != nil {
		return domain.Job{}, fmt.Errorf("op=redisq.GetJob: %w", err)
	}
	if len(h) == 0 {
		return domain.Job{}, fmt.Errorf("op=redisq.GetJob: job %s: %w", id, domain.ErrNotFound)
	}
	return jobFromHash(h), nil
}

// JobIDs enumerates all job ids, sorted lexicographically for stable
// pagination. O(N) over the keyspace; acceptable for the operator UI.
func (c *Client) JobIDs(ctx context.Context) ([]string, error) {
	keys, err := c.rdb.Keys(ctx, "job:*").Result()
	if err != nil {
		return nil, fmt.Errorf("op=redisq.JobIDs: %w", err)
	}
	ids := make([]string, 0, len(keys))
	for _, k := range keys {
		if strings.HasSuffix(k, ":events") {
			continue
		}
		ids = append(ids, strings.TrimPrefix(k, "job:"))
	}
	sort.Strings(ids)
	return ids, nil
}

// EnqueueJob appends a job reference to the job stream and returns the
// substrate-assigned stream id. Retried jobs carry a retry marker.
func (c *Client) EnqueueJob(ctx context.Context, j domain.Job, retry bool) (string, error) {
	fields := map[string]any{
		"job_id":        j.ID,
		"partition_key": j.PartitionKey,
		"task_type":     j.TaskType,
		"payload_json":  j.PayloadJSON,
	}
	if retry {
		fields["retry"] = "true"
	}
	id, err := c.rdb.XAdd(ctx, &redis.XAddArgs{Stream: c.streams.Jobs, Values: fields}).Result()
	if err != nil {
		return "", fmt.Errorf("op=redisq.EnqueueJob: %w", err)
	}
	return id, nil
}

// AppendDLQ parks a permanently failed job on the dead-letter stream.
func (c *Client) AppendDLQ(ctx context.Context, rec domain.DLQRecord) error {
	fields := map[string]any{
		"job_id":       rec.JobID,
		"task_type":    rec.TaskType,
		"payload_json": rec.PayloadJSON,
		"error":        rec.Error,
		"attempts":     strconv.Itoa(rec.Attempts),
	}
	if err := c.rdb.XAdd(ctx, &redis.XAddArgs{Stream: c.streams.DLQ, Values: fields}).Err(); err != nil {
		return fmt.Errorf("op=redisq.AppendDLQ: %w", err)
	}
	return nil
}

// DLQDepth returns the length of the dead-letter stream.
func (c *Client) DLQDepth(ctx context.Context) (int64, error) {
	n, err := c.rdb.XLen(ctx, c.streams.DLQ).Result()
	if err != nil {
		return 0, fmt.Errorf("op=redisq.DLQDepth: %w", err)
	}
	return n, nil
}

// IncrJobsCreated bumps the monotonic creation counter.
func (c *Client) IncrJobsCreated(ctx context.Context) error {
	return c.rdb.Incr(ctx, counterJobsCreated).Err()
}

// IncrJobsCompleted bumps the monotonic completion counter.
func (c *Client) IncrJobsCompleted(ctx context.Context) error {
	return c.rdb.Incr(ctx, counterJobsCompleted).Err()
}

// Counters returns the created/completed totals, treating absent keys as zero.
func (c *Client) Counters(ctx context.Context) (created, completed int64, err error) {
	created, err = c.counter(ctx, counterJobsCreated)
	if err != nil {
		return 0, 0, err
	}
	completed, err = c.counter(ctx, counterJobsCompleted)
	if err != nil {
		return 0, 0, err
	}
	return created, completed, nil
}

func (c *Client) counter(ctx context.Context, key string) (int64, error) {
	s, err := c.rdb.Get(ctx, key).Result()
	if err != nil {
		if errors.Is(err, redis.Nil) {
			return 0, nil
		}
		return 0, fmt.Errorf("op=redisq.counter: %w", err)
	}
	n, _ := strconv.ParseInt(s, 10, 64)
	return n, nil
}

// Hash field encoding. Timestamps are RFC3339Nano UTC except
// lease_expires_at, which is unix seconds so the lease script can compare it
// numerically.

func jobToHash(j domain.Job) map[string]any {
	h := map[string]any{
		"job_id":        j.ID,
		"status":        string(j.Status),
		"created_at":    j.CreatedAt.UTC().Format(time.RFC3339Nano),
		"updated_at":    j.UpdatedAt.UTC().Format(time.RFC3339Nano),
		"attempts":      strconv.Itoa(j.Attempts),
		"partition_key": j.PartitionKey,
		"task_type":     j.TaskType,
		"payload_json":  j.PayloadJSON,
	}
	if j.Result != "" {
		h["result"] = j.Result
	}
	if j.LeaseOwner != "" {
		h["lease_owner"] = j.LeaseOwner
		h["lease_expires_at"] = formatLeaseExpiry(j.LeaseExpiresAt)
	}
	if !j.NextAttemptAt.IsZero() {
		h["next_attempt_at"] = j.NextAttemptAt.UTC().Format(time.RFC3339Nano)
	}
	if j.LastStatusChangeReason != "" {
		h["last_status_change_reason"] = j.LastStatusChangeReason
	}
	if j.LastStatusActor != "" {
		h["last_status_actor"] = j.LastStatusActor
	}
	return h
}

func jobFromHash(h map[string]string) domain.Job {
	j := domain.Job{
		ID:                     h["job_id"],
		PartitionKey:           h["partition_key"],
		TaskType:               h["task_type"],
		PayloadJSON:            h["payload_json"],
		Result:                 h["result"],
		LeaseOwner:             h["lease_owner"],
		LastStatusChangeReason: h["last_status_change_reason"],
		LastStatusActor:        h["last_status_actor"],
	}
	if st, err := domain.ParseJobStatus(h["status"]); err == nil {
		j.Status = st
	} else {
		j.Status = domain.JobPending
	}
	j.CreatedAt = parseTime(h["created_at"])
	j.UpdatedAt = parseTime(h["updated_at"])
	j.NextAttemptAt = parseTime(h["next_attempt_at"])
	if n, err := strconv.Atoi(h["attempts"]); err == nil {
		j.Attempts = n
	}
	if f, err := strconv.ParseFloat(h["lease_expires_at"], 64); err == nil {
		sec := int64(f)
		nsec := int64((f - float64(sec)) * 1e9)
		j.LeaseExpiresAt = time.Unix(sec, nsec).UTC()
	}
	return j
}

func parseTime(s string) time.Time {
	if s == "" {
		return time.Time{}
	}
	t, err := time.Parse(time.RFC3339Nano, s)
	if err != nil {
		return time.Time{}
	}
	return t
}

func formatLeaseExpiry(t time.Time) string {
	return strconv.FormatFloat(float64(t.UnixNano())/1e9, 'f', 6, 64)
}
