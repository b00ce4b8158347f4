package redisq

import (
	"context"
	"encoding/json"
	"fmt"
	"sort"
	"time"

	"github.com/redis/go-redis/v9"

	"github.com/fairyhunter13/dtq/internal/domain"
)

const (
	// eventStreamMaxLen bounds the global event stream; older entries evict.
	eventStreamMaxLen = 100_000
	// jobEventsTTL bounds the per-job event list.
	jobEventsTTL = 7 * 24 * time.Hour
)

// AppendEvent records a lifecycle event in the bounded global stream and the
// per-job list, refreshing the list TTL. Event emission is best-effort with
// respect to the state write that preceded it: a crash in between costs audit
// detail, not correctness.
func (c *Client) AppendEvent(ctx context.Context, jobID string, et domain.EventType, status domain.JobStatus, details map[string]any) error {
	ev := domain.Event{
		JobID:     jobID,
		EventType: et,
		Status:    status,
		Timestamp: time.Now().UTC(),
		Details:   details,
	}

	fields := map[string]any{
		"job_id":     ev.JobID,
		"event_type": string(ev.EventType),
		"status":     string(ev.Status),
		"timestamp":  ev.Timestamp.Format(time.RFC3339Nano),
	}
	if len(details) > 0 {
		b, err := json.Marshal(details)
		if err != nil {
			return fmt.Errorf("op=redisq.AppendEvent: marshal details: %w", err)
		}
		fields["details"] = string(b)
	}
	err := c.rdb.XAdd(ctx, &redis.XAddArgs{
		Stream: c.streams.Events,
		MaxLen: eventStreamMaxLen,
		Approx: true,
		Values: fields,
	}).Err()
	if err != nil {
		return fmt.Errorf("op=redisq.AppendEvent: stream: %w", err)
	}

	b, err := json.Marshal(ev)
	if err != nil {
		return fmt.Errorf("op=redisq.AppendEvent: marshal event: %w", err)
	}
	key := jobEventsKey(jobID)
	if err := c.rdb.RPush(ctx, key, string(b)).Err(); err != nil {
		return fmt.Errorf("op=redisq.AppendEvent: list: %w", err)
	}
	if err := c.rdb.Expire(ctx, key, jobEventsTTL).Err(); err != nil {
		return fmt.Errorf("op=redisq.AppendEvent: expire: %w", err)
	}
	return nil
}

// JobEvents returns the per-job event list sorted ascending by timestamp.
// Malformed entries are skipped. Appends can interleave under contention
// before the lease serializes writers, so list order alone is not trusted.
func (c *Client) JobEvents(ctx context.Context, jobID string) ([]domain.Event, error) {
	raw, err := c.rdb.LRange(ctx, jobEventsKey(jobID), 0, -1).Result()
	if err != nil {
		return nil, fmt.Errorf("op=redisq.JobEvents: %w", err)
	}
	events := make([]domain.Event, 0, len(raw))
	for _, s := range raw {
		var ev domain.Event
		if err := json.Unmarshal([]byte(s), &ev); err != nil {
			continue
		}
		events = append(events, ev)
	}
	sort.SliceStable(events, func(i, k int) bool {
		return events[i].Timestamp.Before(events[k].Timestamp)
	})
	return events, nil
}
