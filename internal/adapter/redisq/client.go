// Package redisq implements the durable substrate for the task queue on top
// of Redis: job hashes, the job/DLQ/event streams with consumer groups,
// per-job event lists, monotonic counters, and the scripted atomic region
// used for lease acquisition.
package redisq

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/redis/go-redis/v9"
)

// Streams names the substrate keys shared by the server and the workers.
type Streams struct {
	Jobs   string
	DLQ    string
	Events string
	Group  string
}

// Client wraps a Redis connection with the substrate operations the pipeline
// needs. It is safe for concurrent use.
type Client struct {
	rdb     *redis.Client
	streams Streams
}

// New connects to Redis using a redis:// URL.
func New(redisURL string, s Streams) (*Client, error) {
	opt, err := redis.ParseURL(redisURL)
	if err != nil {
		return nil, fmt.Errorf("op=redisq.New: %w", err)
	}
	return NewWithClient(redis.NewClient(opt), s), nil
}

// NewWithClient wraps an existing connection; used by tests with miniredis.
func NewWithClient(rdb *redis.Client, s Streams) *Client {
	return &Client{rdb: rdb, streams: s}
}

// Ping verifies connectivity; used by the readiness probe.
func (c *Client) Ping(ctx context.Context) error { return c.rdb.Ping(ctx).Err() }

// Close releases the underlying connection.
func (c *Client) Close() error { return c.rdb.Close() }

func jobKey(id string) string       { return "job:" + id }
func jobEventsKey(id string) string { return "job:" + id + ":events" }

// EnsureGroup creates the worker consumer group on the job stream, creating
// the stream if needed. An existing group is not an error.
func (c *Client) EnsureGroup(ctx context.Context) error {
	err := c.rdb.XGroupCreateMkStream(ctx, c.streams.Jobs, c.streams.Group, "$").Err()
	if err != nil && !strings.Contains(err.Error(), "BUSYGROUP") {
		return fmt.Errorf("op=redisq.EnsureGroup: %w", err)
	}
	return nil
}

// ReadGroup blocks up to block for up to count messages not yet delivered to
// the group, on behalf of the named consumer. Returns nil on timeout.
func (c *Client) ReadGroup(ctx context.Context, consumer string, count int64, block time.Duration) ([]redis.XMessage, error) {
	res, err := c.rdb.XReadGroup(ctx, &redis.XReadGroupArgs{
		Group:    c.streams.Group,
		Consumer: consumer,
		Streams:  []string{c.streams.Jobs, ">"},
		Count:    count,
		Block:    block,
	}).Result()
	if err != nil {
		if errors.Is(err, redis.Nil) {
			return nil, nil
		}
		return nil, fmt.Errorf("op=redisq.ReadGroup: %w", err)
	}
	var msgs []redis.XMessage
	for _, stream := range res {
		msgs = append(msgs, stream.Messages...)
	}
	return msgs, nil
}

// Ack acknowledges a job stream message for the worker group.
func (c *Client) Ack(ctx context.Context, msgID string) error {
	if err := c.rdb.XAck(ctx, c.streams.Jobs, c.streams.Group, msgID).Err(); err != nil {
		return fmt.Errorf("op=redisq.Ack: %w", err)
	}
	return nil
}
