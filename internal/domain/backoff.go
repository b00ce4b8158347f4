package domain

import "time"

// BackoffPolicy computes the deterministic delay before a retry attempt.
// No jitter: retries are re-enqueued immediately and the delay is advisory,
// so determinism keeps the audit trail reproducible.
type BackoffPolicy struct {
	// Initial is the delay before the first retry.
	Initial time.Duration
	// Max caps the exponential growth.
	Max time.Duration
}

// DefaultBackoffPolicy mirrors the configuration defaults: 1s initial, 5m cap.
func DefaultBackoffPolicy() BackoffPolicy {
	return BackoffPolicy{Initial: time.Second, Max: 5 * time.Minute}
}

// Delay returns Initial * 2^(attempt-1) clamped to [Initial, Max].
// Attempts below 1 are treated as 1.
func (p BackoffPolicy) Delay(attempt int) time.Duration {
	if attempt < 1 {
		attempt = 1
	}
	d := p.Initial
	for i := 1; i < attempt; i++ {
		d *= 2
		if d >= p.Max || d < 0 { // overflow guard
			return p.Max
		}
	}
	if d < p.Initial {
		return p.Initial
	}
	if d > p.Max {
		return p.Max
	}
	return d
}

// NextAttemptAt returns the advisory instant of the next retry.
func (p BackoffPolicy) NextAttemptAt(now time.Time, attempt int) time.Time {
	return now.Add(p.Delay(attempt))
}
