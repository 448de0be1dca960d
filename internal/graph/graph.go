// Package graph schedules decomposed tasks by their dependencies.
package graph

import (
	"errors"
	"fmt"
	"log/slog"
	"sync"

	"github.com/ShayCichocki/conductor/internal/logging"
	"github.com/ShayCichocki/conductor/pkg/models"
)

// ErrCycleDetected is returned by Build when tasks depend on each other in a loop.
var ErrCycleDetected = errors.New("task dependencies form a cycle")

type nodeState int

const (
	statePending nodeState = iota
	stateStarted
	stateDone
	stateFailed
)

func (s nodeState) String() string {
	switch s {
	case stateStarted:
		return "started"
	case stateDone:
		return "done"
	case stateFailed:
		return "failed"
	default:
		return "pending"
	}
}

// DependencyGraph tracks which tasks may run. A task may run once every task
// it depends on is done; it can never run once one of them has failed.
// Methods that list tasks return them in the order given to Build.
type DependencyGraph struct {
	mu     sync.RWMutex
	logger *slog.Logger

	ids   []string
	tasks map[string]models.Task
	deps  map[string][]string
	state map[string]nodeState
}

// New returns an empty graph.
func New() *DependencyGraph {
	return &DependencyGraph{
		logger: logging.Discard(),
		tasks:  make(map[string]models.Task),
		deps:   make(map[string][]string),
		state:  make(map[string]nodeState),
	}
}

// SetLogger routes scheduling debug output to l.
func (g *DependencyGraph) SetLogger(l *slog.Logger) {
	g.logger = logging.OrDiscard(l)
}

// Build loads tasks into the graph. Task ids must be unique and every
// dependency must name another task in the set.
func (g *DependencyGraph) Build(tasks []models.Task) error {
	g.mu.Lock()
	defer g.mu.Unlock()

	for _, t := range tasks {
		if _, seen := g.tasks[t.ID]; seen {
			return fmt.Errorf("duplicate task id %s", t.ID)
		}
		g.ids = append(g.ids, t.ID)
		g.tasks[t.ID] = t
		g.state[t.ID] = statePending
	}

	for _, t := range tasks {
		for _, dep := range t.DependsOn {
			if _, known := g.tasks[dep]; !known {
				return fmt.Errorf("task %s: dependency %s is not a task", t.ID, dep)
			}
		}
		g.deps[t.ID] = append([]string(nil), t.DependsOn...)
	}

	if _, ok := g.sorted(); !ok {
		return ErrCycleDetected
	}

	g.logger.Debug("graph built", "tasks", len(g.ids))
	return nil
}

// HasCycle reports whether the loaded tasks contain a dependency loop.
func (g *DependencyGraph) HasCycle() bool {
	g.mu.RLock()
	defer g.mu.RUnlock()
	_, ok := g.sorted()
	return !ok
}

// TopologicalSort returns the task ids ordered so that dependencies precede
// the tasks that need them. Ties keep build order.
func (g *DependencyGraph) TopologicalSort() ([]string, error) {
	g.mu.RLock()
	defer g.mu.RUnlock()
	order, ok := g.sorted()
	if !ok {
		return nil, ErrCycleDetected
	}
	return order, nil
}

// sorted runs Kahn's algorithm over build order. ok is false when some task
// is never released, which only happens on a cycle.
func (g *DependencyGraph) sorted() (order []string, ok bool) {
	waiting := make(map[string]int, len(g.ids))
	for _, id := range g.ids {
		waiting[id] = len(g.deps[id])
	}

	order = make([]string, 0, len(g.ids))
	placed := make(map[string]bool, len(g.ids))
	for len(order) < len(g.ids) {
		progressed := false
		for _, id := range g.ids {
			if placed[id] || waiting[id] > 0 {
				continue
			}
			placed[id] = true
			order = append(order, id)
			progressed = true
			for _, other := range g.ids {
				for _, dep := range g.deps[other] {
					if dep == id {
						waiting[other]--
					}
				}
			}
		}
		if !progressed {
			return nil, false
		}
	}
	return order, true
}

// Ready returns the pending tasks whose dependencies are all done.
func (g *DependencyGraph) Ready() []models.Task {
	g.mu.RLock()
	defer g.mu.RUnlock()

	var out []models.Task
	for _, id := range g.ids {
		if g.state[id] == statePending && g.depsDone(id) {
			out = append(out, g.tasks[id])
		}
	}
	return out
}

func (g *DependencyGraph) depsDone(id string) bool {
	for _, dep := range g.deps[id] {
		if g.state[dep] != stateDone {
			return false
		}
	}
	return true
}

// MarkStarted records that a task was handed off for execution.
func (g *DependencyGraph) MarkStarted(id string) { g.transition(id, stateStarted) }

// MarkDone records a successful task.
func (g *DependencyGraph) MarkDone(id string) { g.transition(id, stateDone) }

// MarkFailed records a task that will not produce output. Nothing that
// depends on it, directly or not, becomes ready afterwards.
func (g *DependencyGraph) MarkFailed(id string) { g.transition(id, stateFailed) }

func (g *DependencyGraph) transition(id string, to nodeState) {
	g.mu.Lock()
	defer g.mu.Unlock()
	if _, ok := g.tasks[id]; !ok {
		return
	}
	g.logger.Debug("task state", "task_id", id, "from", g.state[id].String(), "to", to.String())
	g.state[id] = to
}

// Blocked maps every pending task that can no longer run to the dependency
// responsible: the direct dependency that failed or is itself blocked.
func (g *DependencyGraph) Blocked() map[string]string {
	g.mu.RLock()
	defer g.mu.RUnlock()

	lost := make(map[string]bool, len(g.ids))
	blocked := make(map[string]string)
	// Dependencies come first in topological order, so one pass settles every task.
	order, _ := g.sorted()
	for _, id := range order {
		switch g.state[id] {
		case stateFailed:
			lost[id] = true
		case statePending:
			for _, dep := range g.deps[id] {
				if lost[dep] {
					lost[id] = true
					blocked[id] = dep
					break
				}
			}
		}
	}
	return blocked
}

// Settled reports whether every task has finished, either way.
func (g *DependencyGraph) Settled() bool {
	g.mu.RLock()
	defer g.mu.RUnlock()
	for _, id := range g.ids {
		if s := g.state[id]; s != stateDone && s != stateFailed {
			return false
		}
	}
	return true
}

// Task looks up a task by id.
func (g *DependencyGraph) Task(id string) (models.Task, bool) {
	g.mu.RLock()
	defer g.mu.RUnlock()
	t, ok := g.tasks[id]
	return t, ok
}

// Len is the number of tasks loaded.
func (g *DependencyGraph) Len() int {
	g.mu.RLock()
	defer g.mu.RUnlock()
	return len(g.ids)
}

// Dependencies returns a copy of the ids the task waits on.
func (g *DependencyGraph) Dependencies(id string) []string {
	g.mu.RLock()
	defer g.mu.RUnlock()
	return append([]string(nil), g.deps[id]...)
}

// Dependents returns the ids of tasks that wait directly on id.
func (g *DependencyGraph) Dependents(id string) []string {
	g.mu.RLock()
	defer g.mu.RUnlock()

	var out []string
	for _, other := range g.ids {
		for _, dep := range g.deps[other] {
			if dep == id {
				out = append(out, other)
				break
			}
		}
	}
	return out
}
