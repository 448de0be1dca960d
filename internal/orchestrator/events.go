package orchestrator

import (
	"time"

	"github.com/ShayCichocki/conductor/pkg/models"
)

// EventType represents the type of orchestrator event.
type EventType string

const (
	// EventRunSpawned indicates a task was handed to the lifecycle manager.
	EventRunSpawned EventType = "run_spawned"
	// EventRunFinished indicates a run reached a terminal state.
	EventRunFinished EventType = "run_finished"
	// EventTaskSkipped indicates a task was not run because a prerequisite failed.
	EventTaskSkipped EventType = "task_skipped"
	// EventRegistryReloaded indicates the agent registry swapped in a new snapshot.
	EventRegistryReloaded EventType = "registry_reloaded"
	// EventReplyReady indicates the aggregated reply for a message is available.
	EventReplyReady EventType = "reply_ready"
)

// Event represents an event emitted by the orchestrator.
type Event struct {
	// Type is the kind of event.
	Type EventType
	// RunID is the ID of the related run, if applicable.
	RunID string
	// TaskID is the ID of the related task, if applicable.
	TaskID string
	// AgentName is the related agent, if applicable.
	AgentName string
	// Status is the run status for run events.
	Status models.RunStatus
	// Message provides additional context about the event.
	Message string
	// Error contains error details for failure events.
	Error string
	// Timestamp is when the event occurred.
	Timestamp time.Time
	// Duration is the elapsed time for finished runs and replies.
	Duration time.Duration
}
