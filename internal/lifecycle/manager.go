// Package lifecycle runs tasks against agents as time-bounded asynchronous runs.
//
// Every run starts in running and makes exactly one terminal transition:
// completed, failed, timeout, or cancelled. The executor, the run's timer,
// and CancelAgent race for that transition; the first one wins and later
// arrivals are ignored.
package lifecycle

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"sort"
	"sync"
	"time"

	"github.com/google/uuid"
	"go.opentelemetry.io/otel/trace"
	"golang.org/x/sync/errgroup"

	"github.com/ShayCichocki/conductor/internal/logging"
	"github.com/ShayCichocki/conductor/internal/tracing"
	"github.com/ShayCichocki/conductor/pkg/models"
)

// DefaultTimeout bounds a run when neither the caller nor the agent sets a timeout.
const DefaultTimeout = 60 * time.Second

// CancelledMessage is the error recorded on cancelled runs.
const CancelledMessage = "cancelled by caller"

// Cancel outcomes.
const (
	CancelNotFound  = "not-found"
	CancelCancelled = "cancelled"
)

// Options configures a Manager.
type Options struct {
	// DefaultTimeout defaults to DefaultTimeout.
	DefaultTimeout time.Duration
	Logger         *slog.Logger
	// OnTransition is called with the terminal snapshot of every run, outside any lock.
	OnTransition func(models.RunSnapshot)
}

// SpawnOptions configures one run.
type SpawnOptions struct {
	// Timeout overrides the agent's limits.timeout_seconds when positive.
	Timeout time.Duration
	// MockDelay is passed to the executor.
	MockDelay time.Duration
	// Upstream is passed to the executor.
	Upstream string
}

// CancelResult reports the outcome of CancelAgent.
type CancelResult struct {
	OK     bool   `json:"ok"`
	Reason string `json:"reason"`
}

// Manager owns a table of runs. Managers are independent of each other.
type Manager struct {
	exec   Executor
	opts   Options
	logger *slog.Logger

	mu   sync.RWMutex
	runs map[string]*run
	seq  uint64
}

// run is the live, mutable state of one run. Only the manager touches it.
type run struct {
	mu     sync.Mutex
	seq    uint64
	state  models.RunSnapshot
	timer  *time.Timer
	cancel context.CancelFunc
	span   trace.Span
	done   chan struct{}
}

// NewManager creates a manager that runs tasks with exec.
func NewManager(exec Executor, opts Options) *Manager {
	if opts.DefaultTimeout <= 0 {
		opts.DefaultTimeout = DefaultTimeout
	}
	return &Manager{
		exec:   exec,
		opts:   opts,
		logger: logging.OrDiscard(opts.Logger).With("component", "lifecycle"),
		runs:   make(map[string]*run),
	}
}

// Spawn starts a run of task on agent and returns its id immediately.
// The run outlives ctx; ctx only contributes values such as the trace span.
func (m *Manager) Spawn(ctx context.Context, agent *models.AgentDefinition, task models.Task, opts SpawnOptions) string {
	if agent == nil {
		agent = &models.AgentDefinition{Name: task.AgentName, Label: task.AgentName}
	}
	timeout := m.resolveTimeout(agent, opts.Timeout)
	id := uuid.NewString()

	runCtx, span := tracing.StartSpan(context.WithoutCancel(ctx), "lifecycle.run",
		tracing.String("run_id", id),
		tracing.String("agent", agent.Name),
		tracing.String("task_id", task.ID),
	)
	execCtx, cancel := context.WithCancel(runCtx)

	r := &run{
		state: models.RunSnapshot{
			RunID:     id,
			AgentName: agent.Name,
			TaskID:    task.ID,
			TaskText:  task.Text,
			Status:    models.RunRunning,
			StartedAt: time.Now(),
			TimeoutMs: timeout.Milliseconds(),
		},
		cancel: cancel,
		span:   span,
		done:   make(chan struct{}),
	}

	m.mu.Lock()
	m.seq++
	r.seq = m.seq
	m.runs[id] = r
	m.mu.Unlock()

	m.logger.Info("run spawned", "run_id", id, "agent", agent.Name, "task_id", task.ID, "timeout", timeout)

	// Hold the run lock so the timer cannot fire before it is recorded.
	r.mu.Lock()
	r.timer = time.AfterFunc(timeout, func() {
		m.finish(r, models.RunTimeout, "", fmt.Sprintf("agent %s timed out after %s", agent.Name, timeout))
	})
	r.mu.Unlock()

	go m.execute(execCtx, r, agent, task, ExecOptions{
		RunID:     id,
		MockDelay: opts.MockDelay,
		Upstream:  opts.Upstream,
	})

	return id
}

func (m *Manager) resolveTimeout(agent *models.AgentDefinition, explicit time.Duration) time.Duration {
	switch {
	case explicit > 0:
		return explicit
	case agent.Limits.TimeoutSeconds > 0:
		return time.Duration(agent.Limits.TimeoutSeconds) * time.Second
	default:
		return m.opts.DefaultTimeout
	}
}

func (m *Manager) execute(ctx context.Context, r *run, agent *models.AgentDefinition, task models.Task, opts ExecOptions) {
	defer func() {
		if p := recover(); p != nil {
			m.finish(r, models.RunFailed, "", fmt.Sprintf("executor panic: %v", p))
		}
	}()

	out, err := m.exec.Execute(ctx, agent, task, opts)
	if err != nil {
		m.finish(r, models.RunFailed, "", err.Error())
		return
	}
	m.finish(r, models.RunCompleted, out, "")
}

// finish applies a terminal transition if the run is still running.
// It returns the run's status after the call and whether this call made the transition.
func (m *Manager) finish(r *run, status models.RunStatus, output, errMsg string) (models.RunStatus, bool) {
	r.mu.Lock()
	if r.state.Status != models.RunRunning {
		current := r.state.Status
		r.mu.Unlock()
		return current, false
	}

	now := time.Now()
	r.state.Status = status
	r.state.Output = output
	r.state.Error = errMsg
	r.state.EndedAt = now
	r.state.DurationMs = now.Sub(r.state.StartedAt).Milliseconds()
	r.state.Cancelled = status == models.RunCancelled
	if r.timer != nil {
		r.timer.Stop()
	}
	snap := r.state
	r.mu.Unlock()

	r.cancel()
	close(r.done)

	r.span.SetAttributes(tracing.String("status", string(status)))
	var spanErr error
	if errMsg != "" {
		spanErr = errors.New(errMsg)
	}
	tracing.End(r.span, spanErr)

	m.logger.Info("run finished",
		"run_id", snap.RunID,
		"agent", snap.AgentName,
		"status", snap.Status,
		"duration_ms", snap.DurationMs,
		"error", snap.Error,
	)

	if m.opts.OnTransition != nil {
		m.opts.OnTransition(snap)
	}
	return status, true
}

func (m *Manager) get(id string) *run {
	m.mu.RLock()
	defer m.mu.RUnlock()
	return m.runs[id]
}

func (r *run) snapshot() models.RunSnapshot {
	r.mu.Lock()
	defer r.mu.Unlock()
	s := r.state
	if s.Status == models.RunRunning {
		s.DurationMs = time.Since(s.StartedAt).Milliseconds()
	}
	return s
}

// GetStatus returns a snapshot of the run without blocking on it.
func (m *Manager) GetStatus(id string) (models.RunSnapshot, bool) {
	r := m.get(id)
	if r == nil {
		return models.RunSnapshot{}, false
	}
	return r.snapshot(), true
}

// List returns snapshots of every run, oldest first.
func (m *Manager) List() []models.RunSnapshot {
	m.mu.RLock()
	runs := make([]*run, 0, len(m.runs))
	for _, r := range m.runs {
		runs = append(runs, r)
	}
	m.mu.RUnlock()

	sort.Slice(runs, func(i, j int) bool { return runs[i].seq < runs[j].seq })

	out := make([]models.RunSnapshot, len(runs))
	for i, r := range runs {
		out[i] = r.snapshot()
	}
	return out
}

// WaitForAgent blocks until the run finishes, ctx is done, or timeout elapses.
// A zero timeout waits for the run unconditionally.
//
// When the timeout wins, the current snapshot is returned with WaitTimedOut set
// together with a *WaitTimeoutError. The run is not modified.
func (m *Manager) WaitForAgent(ctx context.Context, id string, timeout time.Duration) (models.RunSnapshot, error) {
	r := m.get(id)
	if r == nil {
		return models.RunSnapshot{}, unknownRun(id)
	}

	var expired <-chan time.Time
	if timeout > 0 {
		t := time.NewTimer(timeout)
		defer t.Stop()
		expired = t.C
	}

	select {
	case <-r.done:
		return r.snapshot(), nil
	case <-expired:
		snap := r.snapshot()
		if snap.Status.IsTerminal() {
			return snap, nil
		}
		werr := &WaitTimeoutError{RunID: id, Timeout: timeout}
		snap.WaitTimedOut = true
		snap.Error = werr.Error()
		return snap, werr
	case <-ctx.Done():
		return r.snapshot(), ctx.Err()
	}
}

// WaitForAll waits for every run concurrently, each with its own timeout.
// Snapshots are returned in the order of ids. The error joins every per-run
// error, including wait timeouts; the snapshots are valid either way.
func (m *Manager) WaitForAll(ctx context.Context, ids []string, timeout time.Duration) ([]models.RunSnapshot, error) {
	snaps := make([]models.RunSnapshot, len(ids))
	errs := make([]error, len(ids))

	var g errgroup.Group
	for i, id := range ids {
		g.Go(func() error {
			snap, err := m.WaitForAgent(ctx, id, timeout)
			if errors.Is(err, ErrUnknownRun) {
				snap.RunID = id
			}
			snaps[i] = snap
			errs[i] = err
			return nil
		})
	}
	_ = g.Wait()

	return snaps, errors.Join(errs...)
}

// CancelAgent moves a running run to cancelled. The executor is asked to stop
// through its context but is not interrupted; its late result is ignored.
func (m *Manager) CancelAgent(id string) CancelResult {
	r := m.get(id)
	if r == nil {
		return CancelResult{OK: false, Reason: CancelNotFound}
	}
	status, ok := m.finish(r, models.RunCancelled, "", CancelledMessage)
	if !ok {
		return CancelResult{OK: false, Reason: "already-" + string(status)}
	}
	return CancelResult{OK: true, Reason: CancelCancelled}
}
