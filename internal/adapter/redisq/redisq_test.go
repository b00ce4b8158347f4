package redisq

import (
	"testing"

	miniredis "github.com/alicebob/miniredis/v2"
	"github.com/redis/go-redis/v9"
)

func newTestClient(t *testing.T) (*Client, *miniredis.Miniredis) {
	t.Helper()
	mr, err := miniredis.Run()
	if err != nil {
		t.Fatalf("failed to start miniredis: %v", err)
	}
	rdb := redis.NewClient(&redis.Options{Addr: mr.Addr()})
	c := NewWithClient(rdb, Streams{
		Jobs:   "dtq:jobs",
		DLQ:    "dtq:dlq",
		Events: "dtq:job-events",
		Group:  "dtq:workers",
	})
	t.Cleanup(func() {
		_ = rdb.Close()
		mr.Close()
	})
	return c, mr
}
