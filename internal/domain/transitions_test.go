package domain

import "testing"

func TestCanTransition(t *testing.T) {
	tests := []struct {
		from, to JobStatus
		want     bool
	}{
		{JobPending, JobRunning, true},
		{JobRunning, JobSucceeded, true},
		{JobRunning, JobFailed, true},
		{JobFailed, JobPending, true},
		{JobFailed, JobDeadLettered, true},
		// terminal states have no outbound edges
		{JobSucceeded, JobPending, false},
		{JobSucceeded, JobRunning, false},
		{JobDeadLettered, JobPending, false},
		{JobDeadLettered, JobRunning, false},
		// cancellation is not a table edge
		{JobPending, JobCancelled, false},
		{JobRunning, JobCancelled, false},
		{JobCancelled, JobPending, false},
		// assorted illegal edges
		{JobPending, JobSucceeded, false},
		{JobPending, JobFailed, false},
		{JobRunning, JobPending, false},
		{JobFailed, JobSucceeded, false},
	}
	for _, tt := range tests {
		if got := CanTransition(tt.from, tt.to); got != tt.want {
			t.Errorf("CanTransition(%s, %s) = %v, want %v", tt.from, tt.to, got, tt.want)
		}
	}
}

func TestTerminalStatuses(t *testing.T) {
	for _, st := range Statuses {
		terminal := st == JobSucceeded || st == JobDeadLettered
		if st.Terminal() != terminal {
			t.Errorf("%s.Terminal() = %v, want %v", st, st.Terminal(), terminal)
		}
		if terminal && len(allowedTransitions[st]) != 0 {
			t.Errorf("terminal status %s has outbound edges %v", st, allowedTransitions[st])
		}
	}
}

func TestUIAllowed(t *testing.T) {
	tests := []struct {
		from, to JobStatus
		want     bool
	}{
		{JobPending, JobCancelled, true},
		{JobFailed, JobPending, true},
		{JobDeadLettered, JobPending, true},
		{JobCancelled, JobPending, true},
		// worker-reserved edges are denied to the UI
		{JobPending, JobRunning, false},
		{JobPending, JobSucceeded, false},
		{JobRunning, JobSucceeded, false},
		{JobRunning, JobFailed, false},
		{JobFailed, JobDeadLettered, false},
		{JobSucceeded, JobPending, false},
	}
	for _, tt := range tests {
		if got := UIAllowed(tt.from, tt.to); got != tt.want {
			t.Errorf("UIAllowed(%s, %s) = %v, want %v", tt.from, tt.to, got, tt.want)
		}
	}
}

func TestParseJobStatus(t *testing.T) {
	for _, st := range Statuses {
		got, err := ParseJobStatus(string(st))
		if err != nil {
			t.Fatalf("ParseJobStatus(%s): %v", st, err)
		}
		if got != st {
			t.Errorf("ParseJobStatus(%s) = %s", st, got)
		}
	}
	if _, err := ParseJobStatus("bogus"); err == nil {
		t.Fatalf("expected error for unknown status")
	}
	if _, err := ParseJobStatus("pending"); err == nil {
		t.Fatalf("statuses are case sensitive on the wire")
	}
}
