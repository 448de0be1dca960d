package models

// DecompositionKind says whether a message produced one task or several.
type DecompositionKind string

const (
	// KindSimple is a single-task decomposition.
	KindSimple DecompositionKind = "simple"
	// KindCompound is a multi-task decomposition.
	KindCompound DecompositionKind = "compound"
)

// ExecutionMode describes how the tasks of a decomposition relate.
type ExecutionMode string

const (
	// ModeParallel means tasks are independent.
	ModeParallel ExecutionMode = "parallel"
	// ModeSequential means each task depends on its predecessor.
	ModeSequential ExecutionMode = "sequential"
	// ModeMixed is a parallel split that contains at least one memory task.
	ModeMixed ExecutionMode = "mixed"
)

// Valid returns true if the mode is a known value.
func (m ExecutionMode) Valid() bool {
	switch m {
	case ModeParallel, ModeSequential, ModeMixed:
		return true
	default:
		return false
	}
}

// Task is one unit of work assigned to an agent.
type Task struct {
	// ID is unique within a decomposition (task-1, task-2, ...).
	ID string `json:"id"`
	// AgentName is the agent the task was routed to.
	AgentName string `json:"agent"`
	// Text is the instruction handed to the agent.
	Text string `json:"text"`
	// Priority is the 1-based position of the task.
	Priority int `json:"priority"`
	// DependsOn lists task IDs that must finish before this task runs.
	DependsOn []string `json:"depends_on,omitempty"`
}

// HasDependencies reports whether the task waits on any other task.
func (t Task) HasDependencies() bool {
	return len(t.DependsOn) > 0
}

// DecompositionResult is the task graph produced for one incoming message.
// It is treated as immutable once returned.
type DecompositionResult struct {
	Kind          DecompositionKind `json:"kind"`
	Tasks         []Task            `json:"tasks"`
	ExecutionMode ExecutionMode     `json:"execution_mode"`
}

// TaskByID returns the task with the given id.
func (d DecompositionResult) TaskByID(id string) (Task, bool) {
	for _, t := range d.Tasks {
		if t.ID == id {
			return t, true
		}
	}
	return Task{}, false
}
