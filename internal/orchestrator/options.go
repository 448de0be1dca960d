package orchestrator

import (
	"context"
	"log/slog"
	"time"

	"github.com/ShayCichocki/conductor/internal/lifecycle"
	"github.com/ShayCichocki/conductor/pkg/models"
)

// Analyzer turns a message into a task graph.
type Analyzer interface {
	Analyze(ctx context.Context, message string) models.DecompositionResult
}

// AgentSource resolves agent names to definitions.
type AgentSource interface {
	GetAgent(name string) *models.AgentDefinition
}

// RequiredConfig contains the minimal required configuration for an Orchestrator.
// All fields are required and have no defaults.
type RequiredConfig struct {
	// Agents resolves the agent of each task. Unknown agents run with a
	// definition synthesized from the name.
	Agents AgentSource
	// Decomposer builds the task graph for a message.
	Decomposer Analyzer
	// Manager runs the tasks.
	Manager *lifecycle.Manager
}

// Option configures an Orchestrator. Use With* functions to create Options.
type Option func(*orchestratorOptions)

// orchestratorOptions holds all optional configuration.
type orchestratorOptions struct {
	recaller      Recaller
	searchOptions SearchOptions
	emitter       *EventEmitter
	logger        *slog.Logger
	waitTimeout   time.Duration
	spawn         lifecycle.SpawnOptions
}

// WithRecaller enables memory recall before decomposition.
func WithRecaller(r Recaller, opts SearchOptions) Option {
	return func(o *orchestratorOptions) {
		o.recaller = r
		o.searchOptions = opts
	}
}

// WithEmitter sets the event emitter.
func WithEmitter(e *EventEmitter) Option {
	return func(o *orchestratorOptions) { o.emitter = e }
}

// WithLogger sets the logger.
func WithLogger(l *slog.Logger) Option {
	return func(o *orchestratorOptions) { o.logger = l }
}

// WithWaitTimeout bounds each wait on a run. Zero waits until the run finishes.
func WithWaitTimeout(d time.Duration) Option {
	return func(o *orchestratorOptions) { o.waitTimeout = d }
}

// WithSpawnOptions sets the timeout and mock delay used for every run.
// Upstream is always filled in per task.
func WithSpawnOptions(opts lifecycle.SpawnOptions) Option {
	return func(o *orchestratorOptions) { o.spawn = opts }
}
