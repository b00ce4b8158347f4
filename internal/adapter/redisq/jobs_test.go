package redisq

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/fairyhunter13/dtq/internal/domain"
)

func TestSaveGetJobRoundTrip(t *testing.T) {
	c, _ := newTestClient(t)
	ctx := context.Background()
	now := time.Now().UTC()

	j := domain.Job{
		ID:           "j1",
		Status:       domain.JobPending,
		CreatedAt:    now,
		UpdatedAt:    now,
		Attempts:     0,
		PartitionKey: "tenant-7",
		TaskType:     "echo",
		PayloadJSON:  `{"task_type":"echo","data":{"message":"hi"}}`,
	}
	require.NoError(t, c.SaveJob(ctx, j))

	got, err := c.GetJob(ctx, "j1")
	require.NoError(t, err)
	assert.Equal(t, j.ID, got.ID)
	assert.Equal(t, domain.JobPending, got.Status)
	assert.Equal(t, 0, got.Attempts)
	assert.Equal(t, "tenant-7", got.PartitionKey)
	assert.Equal(t, "echo", got.TaskType)
	assert.Equal(t, j.PayloadJSON, got.PayloadJSON)
	assert.True(t, got.CreatedAt.Equal(now))
	assert.True(t, got.UpdatedAt.Equal(now))
	assert.Empty(t, got.Result)
	assert.Empty(t, got.LeaseOwner)
	assert.True(t, got.NextAttemptAt.IsZero())
}

func TestGetJobNotFound(t *testing.T) {
	c, _ := newTestClient(t)
	_, err := c.GetJob(context.Background(), "missing")
	require.Error(t, err)
	assert.True(t, errors.Is(err, domain.ErrNotFound))
}

func TestUpdateJobAdvancesFields(t *testing.T) {
	c, _ := newTestClient(t)
	ctx := context.Background()
	seedJob(t, c, "j1")

	later := time.Now().UTC().Add(time.Second)
	require.NoError(t, c.UpdateJob(ctx, "j1", map[string]any{
		"status":     string(domain.JobRunning),
		"updated_at": later.Format(time.RFC3339Nano),
		"attempts":   "1",
	}))

	got, err := c.GetJob(ctx, "j1")
	require.NoError(t, err)
	assert.Equal(t, domain.JobRunning, got.Status)
	assert.Equal(t, 1, got.Attempts)
	assert.True(t, got.UpdatedAt.Equal(later))
}

func TestJobIDsExcludesEventLists(t *testing.T) {
	c, _ := newTestClient(t)
	ctx := context.Background()
	seedJob(t, c, "b-job")
	seedJob(t, c, "a-job")
	require.NoError(t, c.AppendEvent(ctx, "a-job", domain.EventCreated, domain.JobPending, nil))

	ids, err := c.JobIDs(ctx)
	require.NoError(t, err)
	assert.Equal(t, []string{"a-job", "b-job"}, ids)
}

func TestEnqueueAndReadGroup(t *testing.T) {
	c, _ := newTestClient(t)
	ctx := context.Background()
	j := seedJob(t, c, "j1")

	require.NoError(t, c.EnsureGroup(ctx))
	// EnsureGroup twice must tolerate BUSYGROUP
	require.NoError(t, c.EnsureGroup(ctx))

	_, err := c.EnqueueJob(ctx, j, false)
	require.NoError(t, err)

	msgs, err := c.ReadGroup(ctx, "worker-test", 10, 10*time.Millisecond)
	require.NoError(t, err)
	require.Len(t, msgs, 1)
	assert.Equal(t, "j1", msgs[0].Values["job_id"])
	assert.Equal(t, "echo", msgs[0].Values["task_type"])
	_, hasRetry := msgs[0].Values["retry"]
	assert.False(t, hasRetry)

	require.NoError(t, c.Ack(ctx, msgs[0].ID))

	// nothing new after the ack
	msgs, err = c.ReadGroup(ctx, "worker-test", 10, 10*time.Millisecond)
	require.NoError(t, err)
	assert.Empty(t, msgs)
}

func TestEnqueueRetryMarker(t *testing.T) {
	c, _ := newTestClient(t)
	ctx := context.Background()
	j := seedJob(t, c, "j1")

	require.NoError(t, c.EnsureGroup(ctx))
	_, err := c.EnqueueJob(ctx, j, true)
	require.NoError(t, err)

	msgs, err := c.ReadGroup(ctx, "worker-test", 10, 10*time.Millisecond)
	require.NoError(t, err)
	require.Len(t, msgs, 1)
	assert.Equal(t, "true", msgs[0].Values["retry"])
}

func TestDLQ(t *testing.T) {
	c, _ := newTestClient(t)
	ctx := context.Background()

	depth, err := c.DLQDepth(ctx)
	require.NoError(t, err)
	assert.EqualValues(t, 0, depth)

	require.NoError(t, c.AppendDLQ(ctx, domain.DLQRecord{
		JobID:       "j1",
		TaskType:    "echo",
		PayloadJSON: "{}",
		Error:       "boom",
		Attempts:    3,
	}))

	depth, err = c.DLQDepth(ctx)
	require.NoError(t, err)
	assert.EqualValues(t, 1, depth)
}

func TestCounters(t *testing.T) {
	c, _ := newTestClient(t)
	ctx := context.Background()

	created, completed, err := c.Counters(ctx)
	require.NoError(t, err)
	assert.EqualValues(t, 0, created)
	assert.EqualValues(t, 0, completed)

	require.NoError(t, c.IncrJobsCreated(ctx))
	require.NoError(t, c.IncrJobsCreated(ctx))
	require.NoError(t, c.IncrJobsCompleted(ctx))

	created, completed, err = c.Counters(ctx)
	require.NoError(t, err)
	assert.EqualValues(t, 2, created)
	assert.EqualValues(t, 1, completed)
}

func TestLeaseExpiryHashEncoding(t *testing.T) {
	c, _ := newTestClient(t)
	ctx := context.Background()
	now := time.Now().UTC().Truncate(time.Microsecond)

	j := seedJob(t, c, "j1")
	j.LeaseOwner = "worker-a"
	j.LeaseExpiresAt = now.Add(30 * time.Second)
	require.NoError(t, c.SaveJob(ctx, j))

	got, err := c.GetJob(ctx, "j1")
	require.NoError(t, err)
	assert.Equal(t, "worker-a", got.LeaseOwner)
	// unix-seconds round trip keeps microsecond precision
	assert.WithinDuration(t, j.LeaseExpiresAt, got.LeaseExpiresAt, time.Millisecond)
}
