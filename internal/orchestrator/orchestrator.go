package orchestrator

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"strings"
	"time"
	"unicode/utf8"

	"github.com/ShayCichocki/conductor/internal/aggregate"
	"github.com/ShayCichocki/conductor/internal/graph"
	"github.com/ShayCichocki/conductor/internal/lifecycle"
	"github.com/ShayCichocki/conductor/internal/logging"
	"github.com/ShayCichocki/conductor/internal/tracing"
	"github.com/ShayCichocki/conductor/pkg/models"
)

// skippedFormat is the error recorded on tasks whose prerequisite failed.
const skippedFormat = "skipped: dependency %s did not complete"

// Reply is the outcome of handling one message.
type Reply struct {
	// Text is the aggregated answer.
	Text          string                     `json:"text"`
	Decomposition models.DecompositionResult `json:"decomposition"`
	// Runs holds one snapshot per task, in task order. Skipped tasks have no RunID.
	Runs     []models.RunSnapshot `json:"runs"`
	Recalled []Memory             `json:"recalled,omitempty"`
	Duration time.Duration        `json:"duration"`
}

// Orchestrator coordinates decomposition, execution, and aggregation.
type Orchestrator struct {
	agents     AgentSource
	decomposer Analyzer
	manager    *lifecycle.Manager
	opts       orchestratorOptions
	logger     *slog.Logger
}

// New creates an Orchestrator.
func New(cfg RequiredConfig, options ...Option) *Orchestrator {
	var opts orchestratorOptions
	for _, apply := range options {
		apply(&opts)
	}
	return &Orchestrator{
		agents:     cfg.Agents,
		decomposer: cfg.Decomposer,
		manager:    cfg.Manager,
		opts:       opts,
		logger:     logging.OrDiscard(opts.logger).With("component", "orchestrator"),
	}
}

// Manager returns the lifecycle manager runs are spawned on.
func (o *Orchestrator) Manager() *lifecycle.Manager {
	return o.manager
}

// Emitter returns the configured event emitter, or nil.
func (o *Orchestrator) Emitter() *EventEmitter {
	return o.opts.emitter
}

// Handle runs message end to end and returns the merged reply.
// Run failures are part of the reply; an error is returned only when the task
// graph is invalid or ctx ends first, in which case in-flight runs are cancelled.
func (o *Orchestrator) Handle(ctx context.Context, message string) (reply Reply, err error) {
	start := time.Now()
	ctx, span := tracing.StartSpan(ctx, "orchestrator.handle",
		tracing.Int("message_runes", utf8.RuneCountInString(message)),
	)
	defer func() { tracing.End(span, err) }()

	if err = ctx.Err(); err != nil {
		return Reply{}, err
	}

	memories, prefix := o.recall(ctx, message)

	result := o.decomposer.Analyze(ctx, message)
	span.SetAttributes(
		tracing.String("kind", string(result.Kind)),
		tracing.String("mode", string(result.ExecutionMode)),
		tracing.Int("tasks", len(result.Tasks)),
	)
	o.logger.Debug("message decomposed", "kind", result.Kind, "mode", result.ExecutionMode, "tasks", len(result.Tasks))

	snaps, err := o.execute(ctx, result.Tasks, prefix)
	if err != nil {
		return Reply{}, err
	}

	reply = Reply{
		Text:          aggregate.Aggregate(result.Tasks, aggregate.FromSnapshots(snaps), message),
		Decomposition: result,
		Runs:          snaps,
		Recalled:      memories,
		Duration:      time.Since(start),
	}

	o.opts.emitter.Emit(Event{
		Type:     EventReplyReady,
		Message:  models.Summarize(reply.Text),
		Duration: reply.Duration,
	})
	o.logger.Info("reply ready", "tasks", len(result.Tasks), "mode", result.ExecutionMode, "duration", reply.Duration)
	return reply, nil
}

func (o *Orchestrator) recall(ctx context.Context, message string) ([]Memory, string) {
	if o.opts.recaller == nil || strings.TrimSpace(message) == "" {
		return nil, ""
	}
	memories, err := o.opts.recaller.Search(ctx, message, o.opts.searchOptions)
	if err != nil {
		o.logger.Warn("recall failed", "error", err)
		return nil, ""
	}
	return memories, recallPrefix(memories, o.opts.searchOptions)
}

type waitResult struct {
	runID  string
	taskID string
	snap   models.RunSnapshot
	err    error
}

// execute spawns tasks as their prerequisites complete and returns one
// snapshot per task in task order.
func (o *Orchestrator) execute(ctx context.Context, tasks []models.Task, prefix string) ([]models.RunSnapshot, error) {
	g := graph.New()
	g.SetLogger(o.logger)
	if err := g.Build(tasks); err != nil {
		return nil, fmt.Errorf("schedule tasks: %w", err)
	}

	snaps := make(map[string]models.RunSnapshot, len(tasks))
	results := make(chan waitResult, len(tasks))
	inflight := make(map[string]bool)

	for !g.Settled() {
		o.skipBlocked(g, tasks, snaps)

		for _, task := range g.Ready() {
			g.MarkStarted(task.ID)
			id := o.spawn(ctx, task, prefix, snaps)
			inflight[id] = true
			go func() {
				snap, err := o.manager.WaitForAgent(ctx, id, o.opts.waitTimeout)
				results <- waitResult{runID: id, taskID: task.ID, snap: snap, err: err}
			}()
		}

		if len(inflight) == 0 {
			break
		}

		res := <-results
		delete(inflight, res.runID)

		if res.err != nil && !errors.Is(res.err, lifecycle.ErrWaitTimeout) {
			o.manager.CancelAgent(res.runID)
			for id := range inflight {
				o.manager.CancelAgent(id)
			}
			return nil, res.err
		}

		snaps[res.taskID] = res.snap
		if res.snap.Status == models.RunCompleted {
			g.MarkDone(res.taskID)
		} else {
			g.MarkFailed(res.taskID)
		}
	}

	out := make([]models.RunSnapshot, 0, len(tasks))
	for _, t := range tasks {
		out = append(out, snaps[t.ID])
	}
	return out, nil
}

func (o *Orchestrator) spawn(ctx context.Context, task models.Task, prefix string, snaps map[string]models.RunSnapshot) string {
	run := task
	run.Text = prefix + task.Text

	opts := o.opts.spawn
	opts.Upstream = upstream(task, snaps)

	id := o.manager.Spawn(ctx, o.agents.GetAgent(task.AgentName), run, opts)
	o.opts.emitter.Emit(Event{
		Type:      EventRunSpawned,
		RunID:     id,
		TaskID:    task.ID,
		AgentName: task.AgentName,
		Status:    models.RunRunning,
	})
	return id
}

// skipBlocked fails every task whose prerequisite can no longer complete.
func (o *Orchestrator) skipBlocked(g *graph.DependencyGraph, tasks []models.Task, snaps map[string]models.RunSnapshot) {
	blocked := g.Blocked()
	if len(blocked) == 0 {
		return
	}
	for _, t := range tasks {
		dep, ok := blocked[t.ID]
		if !ok {
			continue
		}
		g.MarkFailed(t.ID)
		msg := fmt.Sprintf(skippedFormat, dep)
		snaps[t.ID] = models.RunSnapshot{
			AgentName: t.AgentName,
			TaskID:    t.ID,
			TaskText:  t.Text,
			Status:    models.RunFailed,
			Error:     msg,
		}
		o.logger.Info("task skipped", "task_id", t.ID, "dependency", dep)
		o.opts.emitter.Emit(Event{
			Type:      EventTaskSkipped,
			TaskID:    t.ID,
			AgentName: t.AgentName,
			Status:    models.RunFailed,
			Error:     msg,
		})
	}
}

// upstream joins the outputs of a task's prerequisites.
func upstream(task models.Task, snaps map[string]models.RunSnapshot) string {
	var parts []string
	for _, dep := range task.DependsOn {
		if out := strings.TrimSpace(snaps[dep].Output); out != "" {
			parts = append(parts, out)
		}
	}
	return strings.Join(parts, "\n\n")
}

func msDuration(ms int64) time.Duration {
	return time.Duration(ms) * time.Millisecond
}
