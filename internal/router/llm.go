package router

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"strings"
	"time"

	"github.com/patrickmn/go-cache"

	"github.com/ShayCichocki/conductor/internal/logging"
	"github.com/ShayCichocki/conductor/pkg/models"
)

// Completer sends a single-turn prompt to a language model.
type Completer interface {
	Complete(ctx context.Context, system, prompt string) (string, error)
}

// AgentLister supplies the agents the LLM may choose from.
type AgentLister interface {
	ListAgents() []*models.AgentDefinition
}

// LLMOptions configures an LLMClassifier.
type LLMOptions struct {
	// CacheTTL is how long a classification is reused for the same message.
	CacheTTL time.Duration
	// FallbackAgent is the generic agent name the model may answer with.
	FallbackAgent string
	Logger        *slog.Logger
}

// LLMClassifier asks a language model to classify messages.
// Any model or parse failure degrades to the rule classifier.
type LLMClassifier struct {
	llm      Completer
	agents   AgentLister
	rules    *RuleClassifier
	cache    *cache.Cache
	fallback string
	logger   *slog.Logger
}

// NewLLMClassifier creates an LLM-backed classifier.
func NewLLMClassifier(llm Completer, agents AgentLister, opts LLMOptions) *LLMClassifier {
	ttl := opts.CacheTTL
	if ttl <= 0 {
		ttl = 10 * time.Minute
	}
	fallback := opts.FallbackAgent
	if fallback == "" {
		fallback = DefaultFallback
	}
	rules := NewRuleClassifier(nil)
	rules.fallback = fallback
	return &LLMClassifier{
		llm:      llm,
		agents:   agents,
		rules:    rules,
		cache:    cache.New(ttl, 2*ttl),
		fallback: fallback,
		logger:   logging.OrDiscard(opts.Logger).With("component", "llm_classifier"),
	}
}

const classifySystemPrompt = `You route user requests to agents.
Reply with a single JSON object and nothing else:
{"intent": "<short lowercase intent>", "agent": "<agent name>", "confidence": <0..1>, "reason": "<few words>"}
Only use agent names from the list. If none fits, use the fallback agent with low confidence.`

// Classify implements Classifier.
func (c *LLMClassifier) Classify(ctx context.Context, message string) (Classification, error) {
	key := cacheKey(message)
	if key == "" {
		return c.rules.classify(message), nil
	}
	if hit, ok := c.cache.Get(key); ok {
		return hit.(Classification), nil
	}

	cls, err := c.ask(ctx, message)
	if err != nil {
		c.logger.Warn("llm classification failed, using rules", "error", err)
		return c.rules.classify(message), nil
	}
	c.cache.SetDefault(key, cls)
	return cls, nil
}

func (c *LLMClassifier) ask(ctx context.Context, message string) (Classification, error) {
	reply, err := c.llm.Complete(ctx, classifySystemPrompt, c.buildPrompt(message))
	if err != nil {
		return Classification{}, err
	}
	cls, err := parseClassification(reply)
	if err != nil {
		return Classification{}, err
	}
	cls.Confidence = clamp01(cls.Confidence)
	if cls.Reason == "" {
		cls.Reason = "llm"
	} else {
		cls.Reason = "llm:" + cls.Reason
	}
	return cls, nil
}

func (c *LLMClassifier) buildPrompt(message string) string {
	var b strings.Builder
	b.WriteString("Agents:\n")
	for _, a := range c.agents.ListAgents() {
		fmt.Fprintf(&b, "- %s", a.Name)
		if a.Description != "" {
			fmt.Fprintf(&b, ": %s", a.Description)
		}
		if len(a.Triggers.Intents) > 0 {
			fmt.Fprintf(&b, " (intents: %s)", strings.Join(a.Triggers.Intents, ", "))
		}
		b.WriteString("\n")
	}
	fmt.Fprintf(&b, "Fallback agent: %s\n\nRequest:\n%s\n", c.fallback, message)
	return b.String()
}

// parseClassification extracts the first JSON object from a model reply.
func parseClassification(reply string) (Classification, error) {
	start := strings.Index(reply, "{")
	end := strings.LastIndex(reply, "}")
	if start < 0 || end < start {
		return Classification{}, errors.New("no JSON object in reply")
	}

	var cls Classification
	if err := json.Unmarshal([]byte(reply[start:end+1]), &cls); err != nil {
		return Classification{}, fmt.Errorf("decode classification: %w", err)
	}
	cls.Agent = strings.TrimSpace(cls.Agent)
	cls.Intent = strings.ToLower(strings.TrimSpace(cls.Intent))
	if cls.Agent == "" {
		return Classification{}, errors.New("classification has no agent")
	}
	if cls.Intent == "" {
		cls.Intent = UnknownIntent
	}
	return cls, nil
}

func cacheKey(message string) string {
	return strings.ToLower(strings.Join(strings.Fields(message), " "))
}
