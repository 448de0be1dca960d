// Package decompose splits a user message into a small task graph.
package decompose

import (
	"context"
	"fmt"
	"log/slog"
	"regexp"
	"strings"

	"github.com/ShayCichocki/conductor/internal/logging"
	"github.com/ShayCichocki/conductor/internal/tracing"
	"github.com/ShayCichocki/conductor/pkg/models"
)

// Agent names the heuristics assign directly.
const (
	AgentMemory    = "memory"
	AgentVision    = "vision"
	AgentTechnical = "technical"
)

// Router resolves a clause to an agent.
type Router interface {
	Route(ctx context.Context, message string) models.RouteDecision
	FallbackAgent() string
}

var (
	memoryPattern     = regexp.MustCompile(`记住|记得|存储|回忆|记忆`)
	visionPattern     = regexp.MustCompile(`(?i)截图|图片|照片|图像|看图|\b(screenshot|image|photo|picture)s?\b`)
	technicalPattern  = regexp.MustCompile(`(?i)报错|错误|异常|崩溃|闪退|\b(bug|error|exception|traceback|stack ?trace|panic|crash)(es|s)?\b`)
	sequentialPattern = regexp.MustCompile(`先(.+?)[，,。\s]+然后(.+)`)
	parallelSplit     = regexp.MustCompile(`顺便|另外|同时|并且|以及`)

	// leadingParticles are connectives stripped from the start of a clause.
	leadingParticles = []string{"再", "就", "接着", "然后", "之后", "最后"}
)

// clauseTrim is the punctuation and space trimmed around clauses.
const clauseTrim = " \t\r\n，,。；;、！!？?"

// strategy is one heuristic. apply reports false when it does not handle the message.
type strategy struct {
	name  string
	apply func(ctx context.Context, message string) (models.DecompositionResult, bool)
}

// Decomposer turns messages into task graphs using an ordered list of heuristics.
// The first heuristic that handles a message wins.
type Decomposer struct {
	router     Router
	logger     *slog.Logger
	strategies []strategy
}

// New creates a decomposer that routes clauses through router.
func New(router Router, logger *slog.Logger) *Decomposer {
	d := &Decomposer{
		router: router,
		logger: logging.OrDiscard(logger).With("component", "decompose"),
	}
	d.strategies = []strategy{
		{"empty", d.empty},
		{"vision_technical", d.visionTechnical},
		{"sequential", d.sequential},
		{"parallel", d.parallel},
		{"simple", d.simple},
	}
	return d
}

// Analyze decomposes message. It always returns at least one task.
func (d *Decomposer) Analyze(ctx context.Context, message string) models.DecompositionResult {
	ctx, span := tracing.StartSpan(ctx, "decompose.Analyze")
	defer span.End()

	for _, s := range d.strategies {
		result, ok := s.apply(ctx, message)
		if !ok {
			continue
		}
		span.SetAttributes(
			tracing.String("strategy", s.name),
			tracing.Int("tasks", len(result.Tasks)),
			tracing.String("mode", string(result.ExecutionMode)),
		)
		d.logger.Debug("decomposed", "strategy", s.name, "tasks", len(result.Tasks), "mode", result.ExecutionMode)
		return result
	}

	// simple always applies; this is unreachable with the default strategies
	return d.single(ctx, message)
}

func (d *Decomposer) empty(_ context.Context, message string) (models.DecompositionResult, bool) {
	if strings.TrimSpace(message) != "" {
		return models.DecompositionResult{}, false
	}
	return models.DecompositionResult{
		Kind:          models.KindSimple,
		Tasks:         []models.Task{newTask(1, d.router.FallbackAgent(), "", nil)},
		ExecutionMode: models.ModeParallel,
	}, true
}

func (d *Decomposer) visionTechnical(_ context.Context, message string) (models.DecompositionResult, bool) {
	if !visionPattern.MatchString(message) || !technicalPattern.MatchString(message) {
		return models.DecompositionResult{}, false
	}
	text := strings.TrimSpace(message)
	first := newTask(1, AgentVision, text, nil)
	return models.DecompositionResult{
		Kind: models.KindCompound,
		Tasks: []models.Task{
			first,
			newTask(2, AgentTechnical, text, []string{first.ID}),
		},
		ExecutionMode: models.ModeSequential,
	}, true
}

func (d *Decomposer) sequential(ctx context.Context, message string) (models.DecompositionResult, bool) {
	m := sequentialPattern.FindStringSubmatch(message)
	if m == nil {
		return models.DecompositionResult{}, false
	}
	clauses := nonEmpty([]string{cleanClause(m[1]), cleanClause(m[2])})
	if len(clauses) < 2 {
		return models.DecompositionResult{}, false
	}

	tasks := make([]models.Task, 0, len(clauses))
	for i, clause := range clauses {
		var deps []string
		if i > 0 {
			deps = []string{tasks[i-1].ID}
		}
		tasks = append(tasks, newTask(i+1, d.assign(ctx, clause), clause, deps))
	}
	return models.DecompositionResult{
		Kind:          models.KindCompound,
		Tasks:         tasks,
		ExecutionMode: models.ModeSequential,
	}, true
}

func (d *Decomposer) parallel(ctx context.Context, message string) (models.DecompositionResult, bool) {
	parts := parallelSplit.Split(message, -1)
	for i := range parts {
		parts[i] = cleanClause(parts[i])
	}
	segments := nonEmpty(parts)
	if len(segments) < 2 {
		return models.DecompositionResult{}, false
	}

	mode := models.ModeParallel
	tasks := make([]models.Task, 0, len(segments))
	for i, seg := range segments {
		agent := d.assign(ctx, seg)
		if agent == AgentMemory {
			mode = models.ModeMixed
		}
		tasks = append(tasks, newTask(i+1, agent, seg, nil))
	}
	return models.DecompositionResult{
		Kind:          models.KindCompound,
		Tasks:         tasks,
		ExecutionMode: mode,
	}, true
}

func (d *Decomposer) simple(ctx context.Context, message string) (models.DecompositionResult, bool) {
	return d.single(ctx, message), true
}

func (d *Decomposer) single(ctx context.Context, message string) models.DecompositionResult {
	text := strings.TrimSpace(message)
	return models.DecompositionResult{
		Kind:          models.KindSimple,
		Tasks:         []models.Task{newTask(1, d.assign(ctx, text), text, nil)},
		ExecutionMode: models.ModeParallel,
	}
}

// assign picks the agent for a clause. Memorization phrasing always goes to memory.
func (d *Decomposer) assign(ctx context.Context, clause string) string {
	if memoryPattern.MatchString(clause) {
		return AgentMemory
	}
	return d.router.Route(ctx, clause).AgentName
}

func newTask(n int, agent, text string, deps []string) models.Task {
	return models.Task{
		ID:        fmt.Sprintf("task-%d", n),
		AgentName: agent,
		Text:      text,
		Priority:  n,
		DependsOn: deps,
	}
}

// cleanClause trims punctuation and strips leading connective particles.
func cleanClause(s string) string {
	s = strings.Trim(s, clauseTrim)
	for {
		stripped := false
		for _, p := range leadingParticles {
			if strings.HasPrefix(s, p) {
				s = strings.Trim(strings.TrimPrefix(s, p), clauseTrim)
				stripped = true
			}
		}
		if !stripped {
			return s
		}
	}
}

func nonEmpty(in []string) []string {
	out := make([]string, 0, len(in))
	for _, s := range in {
		if s != "" {
			out = append(out, s)
		}
	}
	return out
}
