package domain

import "fmt"

// allowedTransitions is the authoritative rulebook for worker-driven status
// changes. CANCELLED is deliberately absent: cancellation is a privileged
// escape hatch handled by the service layer, and requeue from CANCELLED back
// to PENDING is the only non-table transition it accepts.
var allowedTransitions = map[JobStatus][]JobStatus{
	JobPending:      {JobRunning},
	JobRunning:      {JobSucceeded, JobFailed},
	JobFailed:       {JobPending, JobDeadLettered},
	JobSucceeded:    {},
	JobDeadLettered: {},
}

// CanTransition reports whether the edge from -> to is in the table.
func CanTransition(from, to JobStatus) bool {
	for _, t := range allowedTransitions[from] {
		if t == to {
			return true
		}
	}
	return false
}

// InvalidTransition wraps ErrInvalidTransition with the offending edge.
func InvalidTransition(from, to JobStatus) error {
	return fmt.Errorf("%w: from %s to %s", ErrInvalidTransition, from, to)
}

// uiTransition is an edge the HTTP transition endpoint may drive. Everything
// else is reserved for the worker and rejected with ErrTransitionDenied.
type uiTransition struct{ from, to JobStatus }

var allowedUITransitions = map[uiTransition]struct{}{
	{JobPending, JobCancelled}:    {}, // cancel
	{JobFailed, JobPending}:       {}, // retry
	{JobDeadLettered, JobPending}: {}, // requeue
	{JobCancelled, JobPending}:    {}, // requeue from cancelled
}

// UIAllowed reports whether the edge from -> to may be driven from the UI.
func UIAllowed(from, to JobStatus) bool {
	_, ok := allowedUITransitions[uiTransition{from, to}]
	return ok
}
