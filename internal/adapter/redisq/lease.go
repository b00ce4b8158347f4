package redisq

import (
	"context"
	"fmt"
	"time"

	"github.com/redis/go-redis/v9"

	"github.com/fairyhunter13/dtq/internal/domain"
)

// leaseAcquireScript is the one compare-and-swap the system needs: grant the
// lease iff the job exists and is either unleased or holds an expired lease.
// Expiry is compared numerically against the caller-supplied clock so the
// script stays deterministic under replication.
var leaseAcquireScript = redis.NewScript(`
local job_key = KEYS[1]
local worker_id = ARGV[1]
local now = tonumber(ARGV[2])
local expires_at = ARGV[3]

if redis.call('EXISTS', job_key) == 0 then
  return 0
end

local current_owner = redis.call('HGET', job_key, 'lease_owner')
local current_expires = redis.call('HGET', job_key, 'lease_expires_at')

local can_acquire = false
if not current_owner or current_owner == '' then
  can_acquire = true
elseif current_expires and current_expires ~= '' then
  local expires_num = tonumber(current_expires)
  if expires_num and expires_num < now then
    can_acquire = true
  end
end

if can_acquire then
  redis.call('HSET', job_key, 'lease_owner', worker_id, 'lease_expires_at', expires_at)
  return 1
end
return 0
`)

// AcquireLease atomically claims the single-writer lease on a job for ttl.
// On a grant it emits a LEASED event; the event status is the pre-transition
// PENDING because the status write happens after dispatch. Returns false when
// the job is absent or another worker holds a live lease.
func (c *Client) AcquireLease(ctx context.Context, jobID, workerID string, ttl time.Duration) (bool, error) {
	now := time.Now().UTC()
	expiresAt := now.Add(ttl)
	res, err := leaseAcquireScript.Run(ctx, c.rdb,
		[]string{jobKey(jobID)},
		workerID,
		fmt.Sprintf("%f", float64(now.UnixNano())/1e9),
		formatLeaseExpiry(expiresAt),
	).Int()
	if err != nil {
		return false, fmt.Errorf("op=redisq.AcquireLease: %w", err)
	}
	if res != 1 {
		return false, nil
	}
	err = c.AppendEvent(ctx, jobID, domain.EventLeased, domain.JobPending, map[string]any{
		"worker_id":         workerID,
		"lease_ttl_seconds": int(ttl.Seconds()),
	})
	if err != nil {
		return true, err
	}
	return true, nil
}

// ReleaseLease clears the lease fields iff workerID still owns them. A lease
// already expired or taken over by another worker is left untouched.
func (c *Client) ReleaseLease(ctx context.Context, jobID, workerID string) error {
	owner, err := c.rdb.HGet(ctx, jobKey(jobID), "lease_owner").Result()
	if err != nil {
		if err == redis.Nil {
			return nil
		}
		return fmt.Errorf("op=redisq.ReleaseLease: %w", err)
	}
	if owner != workerID {
		return nil
	}
	err = c.rdb.HSet(ctx, jobKey(jobID), map[string]any{
		"lease_owner":      "",
		"lease_expires_at": "",
	}).Err()
	if err != nil {
		return fmt.Errorf("op=redisq.ReleaseLease: %w", err)
	}
	return nil
}
