// Package domain defines the core entities of the task queue: jobs, lifecycle
// events, the status state machine, and the error taxonomy shared by the HTTP
// layer and the worker.
package domain

import (
	"errors"
	"fmt"
	"time"
)

// Error taxonomy (sentinels)
var (
	ErrInvalidArgument   = errors.New("invalid argument")
	ErrNotFound          = errors.New("not found")
	ErrInvalidTransition = errors.New("invalid transition")
	ErrTransitionDenied  = errors.New("transition denied")
	ErrForbidden         = errors.New("forbidden")
	ErrPayloadCorrupt    = errors.New("payload corrupt")
	ErrInternal          = errors.New("internal error")
)

// JobStatus enumerates the lifecycle states of a job. CANCELLED is a
// first-class member of the enum and is reported uniformly on every response
// path, even though it is not an edge of the transition table.
type JobStatus string

const (
	JobPending      JobStatus = "PENDING"
	JobRunning      JobStatus = "RUNNING"
	JobSucceeded    JobStatus = "SUCCEEDED"
	JobFailed       JobStatus = "FAILED"
	JobDeadLettered JobStatus = "DEAD_LETTERED"
	JobCancelled    JobStatus = "CANCELLED"
)

// Statuses lists every job status in canonical order.
var Statuses = []JobStatus{JobPending, JobRunning, JobSucceeded, JobFailed, JobDeadLettered, JobCancelled}

// ParseJobStatus converts a wire string into a JobStatus.
func ParseJobStatus(s string) (JobStatus, error) {
	for _, st := range Statuses {
		if string(st) == s {
			return st, nil
		}
	}
	return "", fmt.Errorf("%w: unknown status %q", ErrInvalidArgument, s)
}

// Terminal reports whether no outbound transitions exist for the status.
func (s JobStatus) Terminal() bool {
	return s == JobSucceeded || s == JobDeadLettered
}

// JobPayload is the task-typed payload submitted by producers. Data is opaque
// to the pipeline; only the registered handler interprets it.
type JobPayload struct {
	TaskType string         `json:"task_type" validate:"required"`
	Data     map[string]any `json:"data"`
}

// Job is the central entity. The hash in Redis is the source of truth; the
// job stream carries only wake-up references.
//
// Invariants: Attempts is monotonically non-decreasing and increments only on
// worker dispatch; Result is set iff the job has reached SUCCEEDED; at most
// one worker holds a live lease (LeaseOwner non-empty and LeaseExpiresAt in
// the future) at any instant.
type Job struct {
	ID           string
	Status       JobStatus
	CreatedAt    time.Time
	UpdatedAt    time.Time
	Attempts     int
	PartitionKey string
	TaskType     string
	PayloadJSON  string
	// Result holds the serialized handler output once the job succeeds.
	Result string
	// Lease metadata; zero values when unleased.
	LeaseOwner     string
	LeaseExpiresAt time.Time
	// NextAttemptAt is advisory: retries are re-enqueued immediately and the
	// delay is not enforced at dequeue time.
	NextAttemptAt          time.Time
	LastStatusChangeReason string
	LastStatusActor        string
}

// Leased reports whether the job carries a live lease at instant t.
func (j Job) Leased(t time.Time) bool {
	return j.LeaseOwner != "" && j.LeaseExpiresAt.After(t)
}

// EventType enumerates lifecycle event kinds.
type EventType string

const (
	EventCreated      EventType = "CREATED"
	EventEnqueued     EventType = "ENQUEUED"
	EventLeased       EventType = "LEASED"
	EventStarted      EventType = "STARTED"
	EventSucceeded    EventType = "SUCCEEDED"
	EventFailed       EventType = "FAILED"
	EventRetried      EventType = "RETRIED"
	EventDeadLettered EventType = "DEAD_LETTERED"
	EventCancelled    EventType = "CANCELLED"
	EventStatusChange EventType = "STATUS_CHANGED"
)

// Event is an immutable record of one lifecycle step. Status is the job
// status at/after the event.
type Event struct {
	JobID     string         `json:"job_id"`
	EventType EventType      `json:"event_type"`
	Status    JobStatus      `json:"status"`
	Timestamp time.Time      `json:"timestamp"`
	Details   map[string]any `json:"details,omitempty"`
}

// DLQRecord is the entry appended to the dead-letter stream when a job
// exhausts its retry budget.
type DLQRecord struct {
	JobID       string
	TaskType    string
	PayloadJSON string
	Error       string
	Attempts    int
}
