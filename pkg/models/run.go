package models

import "time"

// RunStatus is the state of a run.
// A run starts running and makes exactly one transition to a terminal state.
type RunStatus string

const (
	// RunRunning is the initial state.
	RunRunning RunStatus = "running"
	// RunCompleted means the executor returned output.
	RunCompleted RunStatus = "completed"
	// RunFailed means the executor returned an error.
	RunFailed RunStatus = "failed"
	// RunTimeout means the run's own timer fired first.
	RunTimeout RunStatus = "timeout"
	// RunCancelled means a caller cancelled the run.
	RunCancelled RunStatus = "cancelled"
)

// Valid returns true if the status is a known value.
func (s RunStatus) Valid() bool {
	switch s {
	case RunRunning, RunCompleted, RunFailed, RunTimeout, RunCancelled:
		return true
	default:
		return false
	}
}

// IsTerminal reports whether no further transition can occur.
func (s RunStatus) IsTerminal() bool {
	return s.Valid() && s != RunRunning
}

// RunSnapshot is a point-in-time copy of a run.
type RunSnapshot struct {
	RunID     string    `json:"run_id"`
	AgentName string    `json:"agent"`
	TaskID    string    `json:"task_id,omitempty"`
	TaskText  string    `json:"task_text"`
	Status    RunStatus `json:"status"`
	Output    string    `json:"output,omitempty"`
	Error     string    `json:"error,omitempty"`
	StartedAt time.Time `json:"started_at"`
	// EndedAt is zero while the run is still running.
	EndedAt    time.Time `json:"ended_at,omitempty"`
	DurationMs int64     `json:"duration_ms"`
	TimeoutMs  int64     `json:"timeout_ms"`
	Cancelled  bool      `json:"cancelled"`
	// WaitTimedOut is set on snapshots returned by a wait that gave up
	// before the run finished. The run itself is unaffected.
	WaitTimedOut bool `json:"wait_timed_out,omitempty"`
}
