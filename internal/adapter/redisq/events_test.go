package redisq

import (
	"context"
	"testing"
	"time"

	"github.com/redis/go-redis/v9"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/fairyhunter13/dtq/internal/domain"
)

func TestAppendAndReadEvents(t *testing.T) {
	c, mr := newTestClient(t)
	ctx := context.Background()

	require.NoError(t, c.AppendEvent(ctx, "j1", domain.EventCreated, domain.JobPending, nil))
	require.NoError(t, c.AppendEvent(ctx, "j1", domain.EventEnqueued, domain.JobPending, nil))
	require.NoError(t, c.AppendEvent(ctx, "j1", domain.EventStarted, domain.JobRunning, map[string]any{"worker_id": "worker-1"}))

	events, err := c.JobEvents(ctx, "j1")
	require.NoError(t, err)
	require.Len(t, events, 3)
	assert.Equal(t, domain.EventCreated, events[0].EventType)
	assert.Equal(t, domain.EventEnqueued, events[1].EventType)
	assert.Equal(t, domain.EventStarted, events[2].EventType)
	assert.Equal(t, domain.JobRunning, events[2].Status)
	assert.Equal(t, "worker-1", events[2].Details["worker_id"])
	for i := 1; i < len(events); i++ {
		assert.False(t, events[i].Timestamp.Before(events[i-1].Timestamp))
	}

	// the per-job list carries a TTL
	ttl := mr.TTL("job:j1:events")
	assert.Greater(t, ttl, 6*24*time.Hour)

	// and the global stream received one entry per event
	rdb := redis.NewClient(&redis.Options{Addr: mr.Addr()})
	defer func() { _ = rdb.Close() }()
	n, err := rdb.XLen(ctx, "dtq:job-events").Result()
	require.NoError(t, err)
	assert.EqualValues(t, 3, n)
}

func TestJobEventsSkipsMalformed(t *testing.T) {
	c, mr := newTestClient(t)
	ctx := context.Background()

	require.NoError(t, c.AppendEvent(ctx, "j1", domain.EventCreated, domain.JobPending, nil))
	_, err := mr.Push("job:j1:events", "{not json")
	require.NoError(t, err)
	require.NoError(t, c.AppendEvent(ctx, "j1", domain.EventCancelled, domain.JobCancelled, map[string]any{"actor": "user"}))

	events, err := c.JobEvents(ctx, "j1")
	require.NoError(t, err)
	require.Len(t, events, 2)
	assert.Equal(t, domain.EventCreated, events[0].EventType)
	assert.Equal(t, domain.EventCancelled, events[1].EventType)
}

func TestJobEventsEmpty(t *testing.T) {
	c, _ := newTestClient(t)
	events, err := c.JobEvents(context.Background(), "missing")
	require.NoError(t, err)
	assert.Empty(t, events)
}
