package lifecycle

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"sync"
	"time"

	"github.com/ShayCichocki/conductor/pkg/models"
)

// DefaultMockDelay is how long the mock path sleeps when nothing else is configured.
const DefaultMockDelay = 300 * time.Millisecond

// FailMarker in a task's text makes the mock path fail.
const FailMarker = "[fail]"

// ErrSimulatedFailure is returned by the mock path for tasks containing FailMarker.
var ErrSimulatedFailure = errors.New("simulated failure")

// ExecOptions are passed to an Executor for one run.
type ExecOptions struct {
	RunID string
	// MockDelay overrides the agent's and the executor's mock delay when positive.
	MockDelay time.Duration
	// Upstream is the output of the task this one depends on, if any.
	Upstream string
}

// Executor performs the work of one run.
// The context is cancelled once the run reaches a terminal state;
// anything returned after that is ignored.
type Executor interface {
	Execute(ctx context.Context, agent *models.AgentDefinition, task models.Task, opts ExecOptions) (string, error)
}

// ExecutorFunc adapts a function to the Executor interface.
type ExecutorFunc func(ctx context.Context, agent *models.AgentDefinition, task models.Task, opts ExecOptions) (string, error)

// Execute calls f.
func (f ExecutorFunc) Execute(ctx context.Context, agent *models.AgentDefinition, task models.Task, opts ExecOptions) (string, error) {
	return f(ctx, agent, task, opts)
}

// HandlerOptions are passed to a Handler.
type HandlerOptions struct {
	RunID    string
	Agent    *models.AgentDefinition
	Upstream string
}

// Handler implements a specialized agent behavior.
type Handler interface {
	Handle(ctx context.Context, task string, opts HandlerOptions) (string, error)
}

// HandlerFunc adapts a function to the Handler interface.
type HandlerFunc func(ctx context.Context, task string, opts HandlerOptions) (string, error)

// Handle calls f.
func (f HandlerFunc) Handle(ctx context.Context, task string, opts HandlerOptions) (string, error) {
	return f(ctx, task, opts)
}

// DefaultExecutor dispatches to handlers registered by agent name and otherwise
// simulates work: it sleeps a mock delay and echoes the task.
type DefaultExecutor struct {
	mu        sync.RWMutex
	handlers  map[string]Handler
	mockDelay time.Duration
}

// NewDefaultExecutor creates an executor whose mock path sleeps mockDelay.
// Zero selects DefaultMockDelay; use a negative value for no delay.
func NewDefaultExecutor(mockDelay time.Duration) *DefaultExecutor {
	if mockDelay == 0 {
		mockDelay = DefaultMockDelay
	}
	if mockDelay < 0 {
		mockDelay = 0
	}
	return &DefaultExecutor{
		handlers:  make(map[string]Handler),
		mockDelay: mockDelay,
	}
}

// Register installs h for the named agent, replacing any previous handler.
func (e *DefaultExecutor) Register(agentName string, h Handler) {
	e.mu.Lock()
	defer e.mu.Unlock()
	e.handlers[agentName] = h
}

// Handler returns the handler registered for agentName.
func (e *DefaultExecutor) Handler(agentName string) (Handler, bool) {
	e.mu.RLock()
	defer e.mu.RUnlock()
	h, ok := e.handlers[agentName]
	return h, ok
}

// Execute implements Executor.
func (e *DefaultExecutor) Execute(ctx context.Context, agent *models.AgentDefinition, task models.Task, opts ExecOptions) (string, error) {
	if h, ok := e.Handler(agent.Name); ok {
		return h.Handle(ctx, task.Text, HandlerOptions{
			RunID:    opts.RunID,
			Agent:    agent,
			Upstream: opts.Upstream,
		})
	}

	delay := e.mockDelay
	switch {
	case opts.MockDelay > 0:
		delay = opts.MockDelay
	case agent.Limits.MockDelayMs > 0:
		delay = time.Duration(agent.Limits.MockDelayMs) * time.Millisecond
	}

	if delay > 0 {
		t := time.NewTimer(delay)
		defer t.Stop()
		select {
		case <-ctx.Done():
			return "", ctx.Err()
		case <-t.C:
		}
	}

	if strings.Contains(task.Text, FailMarker) {
		return "", ErrSimulatedFailure
	}
	return fmt.Sprintf("[%s] %s", agent.DisplayName(), task.Text), nil
}
