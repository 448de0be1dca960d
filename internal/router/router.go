// Package router resolves a message to a single agent using three tiers:
// registry keywords, then a classifier, then a generic fallback agent.
package router

import (
	"context"
	"log/slog"
	"strings"
	"time"

	"github.com/ShayCichocki/conductor/internal/logging"
	"github.com/ShayCichocki/conductor/internal/registry"
	"github.com/ShayCichocki/conductor/internal/tracing"
	"github.com/ShayCichocki/conductor/pkg/models"
)

// DefaultConfidenceThreshold is the minimum classifier confidence for a level-2 route.
const DefaultConfidenceThreshold = 0.6

// Fallback reasons.
const (
	ReasonBelowThreshold = "below_threshold"
	ReasonNotRegistered  = "agent_not_registered"
)

// Options configures a Router.
type Options struct {
	// AgentsDir is discovered before every route. Empty uses the registry as is.
	AgentsDir string
	// Watch asks the registry to hot reload AgentsDir.
	Watch bool
	// ConfidenceThreshold defaults to DefaultConfidenceThreshold when zero.
	ConfidenceThreshold float64
	// Classifier replaces the rule classifier. Its errors fall back to the rules.
	Classifier Classifier
	// FallbackAgent defaults to "orchestrator".
	FallbackAgent string
	// Logger defaults to a discarding logger.
	Logger *slog.Logger
}

// Router routes messages against a registry.
type Router struct {
	reg    *registry.Registry
	opts   Options
	rules  *RuleClassifier
	logger *slog.Logger
}

// New creates a router over reg.
func New(reg *registry.Registry, opts Options) *Router {
	if opts.ConfidenceThreshold <= 0 {
		opts.ConfidenceThreshold = DefaultConfidenceThreshold
	}
	if strings.TrimSpace(opts.FallbackAgent) == "" {
		opts.FallbackAgent = DefaultFallback
	}
	rules := NewRuleClassifier(nil)
	rules.fallback = opts.FallbackAgent
	return &Router{
		reg:    reg,
		opts:   opts,
		rules:  rules,
		logger: logging.OrDiscard(opts.Logger).With("component", "router"),
	}
}

// Registry returns the registry the router reads from.
func (r *Router) Registry() *registry.Registry {
	return r.reg
}

// FallbackAgent returns the generic agent name used at level 3.
func (r *Router) FallbackAgent() string {
	return r.opts.FallbackAgent
}

// Route resolves message to an agent. It always returns a decision.
func (r *Router) Route(ctx context.Context, message string) models.RouteDecision {
	start := time.Now()
	ctx, span := tracing.StartSpan(ctx, "router.Route")

	decision := r.resolve(ctx, message)
	decision.Confidence = clamp01(decision.Confidence)
	decision.MessageSummary = models.Summarize(message)
	decision.Latency = time.Since(start)

	span.SetAttributes(
		tracing.String("agent", decision.AgentName),
		tracing.Int("level", int(decision.ResolutionLevel)),
		tracing.Float("confidence", decision.Confidence),
		tracing.String("reason", decision.Reason),
	)
	tracing.End(span, nil)

	r.logger.Debug("routed",
		"agent", decision.AgentName,
		"level", decision.ResolutionLevel.String(),
		"confidence", decision.Confidence,
		"reason", decision.Reason,
		"latency", decision.Latency,
	)
	return decision
}

func (r *Router) resolve(ctx context.Context, message string) models.RouteDecision {
	if r.opts.AgentsDir != "" {
		if _, err := r.reg.Discover(ctx, r.opts.AgentsDir, registry.DiscoverOptions{Watch: r.opts.Watch}); err != nil {
			r.logger.Warn("agent discovery failed, routing with current snapshot", "dir", r.opts.AgentsDir, "error", err)
		}
	}
	snap := r.reg.Snapshot()

	if hit, ok := snap.MatchKeyword(message); ok {
		return models.RouteDecision{
			AgentName:       hit.AgentName,
			ResolutionLevel: models.LevelKeyword,
			Confidence:      1.0,
			Reason:          "keyword:" + hit.Keyword,
		}
	}

	cls := r.Classify(ctx, message)
	conf := clamp01(cls.Confidence)

	switch {
	case cls.Agent == r.opts.FallbackAgent || cls.Agent == "":
		// classifier itself chose the fallback; keep its reason
	case conf < r.opts.ConfidenceThreshold:
		cls.Reason = ReasonBelowThreshold
	case !snap.Has(cls.Agent):
		cls.Reason = ReasonNotRegistered
	default:
		return models.RouteDecision{
			AgentName:       cls.Agent,
			ResolutionLevel: models.LevelClassifier,
			Confidence:      conf,
			Reason:          cls.Reason,
		}
	}

	return models.RouteDecision{
		AgentName:       r.opts.FallbackAgent,
		ResolutionLevel: models.LevelFallback,
		Confidence:      conf,
		Reason:          cls.Reason,
	}
}

// Classify runs the configured classifier, degrading to the rule classifier on error.
// Empty messages short-circuit to confidence 0.
func (r *Router) Classify(ctx context.Context, message string) Classification {
	if strings.TrimSpace(message) == "" || r.opts.Classifier == nil {
		return r.rules.classify(message)
	}

	cls, err := r.opts.Classifier.Classify(ctx, message)
	if err != nil {
		r.logger.Warn("classifier failed, using rules", "error", err)
		return r.rules.classify(message)
	}
	cls.Confidence = clamp01(cls.Confidence)
	return cls
}
