package router

import (
	"context"
	"math"
	"regexp"
	"strings"
)

// Rule classifier outcomes.
const (
	ruleConfidence     = 0.82
	noMatchConfidence  = 0.35
	UnknownIntent      = "unknown"
	DefaultFallback    = "orchestrator"
	ReasonEmptyMessage = "empty_message"
	ReasonNoRule       = "no_rule_matched"
)

// Classification is a classifier's guess at what a message wants.
type Classification struct {
	Intent     string  `json:"intent"`
	Agent      string  `json:"agent"`
	Confidence float64 `json:"confidence"`
	Reason     string  `json:"reason"`
}

// Classifier maps a message to an intent and a candidate agent.
type Classifier interface {
	Classify(ctx context.Context, message string) (Classification, error)
}

// ClassifierFunc adapts a function to the Classifier interface.
type ClassifierFunc func(ctx context.Context, message string) (Classification, error)

// Classify calls f.
func (f ClassifierFunc) Classify(ctx context.Context, message string) (Classification, error) {
	return f(ctx, message)
}

// Rule maps a pattern to an intent and the agent that handles it.
type Rule struct {
	Pattern *regexp.Regexp
	Intent  string
	Agent   string
}

// DefaultRules returns the built-in intent rules, in precedence order.
func DefaultRules() []Rule {
	return []Rule{
		{regexp.MustCompile(`(?i)记住|记得|存储|回忆|记忆|\b(remember|recall)\b`), "memory", "memory"},
		{regexp.MustCompile(`(?i)截图|图片|照片|看图|\b(image|screenshot|photo|picture)\b`), "vision", "vision"},
		{regexp.MustCompile(`(?i)报错|错误|异常|崩溃|\b(error|exception|panic|stack ?trace|crash)\b`), "technical", "technical"},
		{regexp.MustCompile(`(?i)打电话|电话|通话|\b(call|phone)\b`), "voice", "voice"},
		{regexp.MustCompile(`(?i)代码|编程|脚本|部署|\b(code|script|deploy|refactor)\b`), "code", "coder"},
		{regexp.MustCompile(`(?i)天气|新闻|搜索|查一下|\b(weather|news|search)\b`), "research", "research"},
	}
}

// RuleClassifier classifies with an ordered list of regex rules. First match wins.
type RuleClassifier struct {
	rules    []Rule
	fallback string
}

// NewRuleClassifier creates a rule classifier. Nil rules selects DefaultRules.
func NewRuleClassifier(rules []Rule) *RuleClassifier {
	if rules == nil {
		rules = DefaultRules()
	}
	return &RuleClassifier{rules: rules, fallback: DefaultFallback}
}

// Classify never returns an error.
func (c *RuleClassifier) Classify(_ context.Context, message string) (Classification, error) {
	return c.classify(message), nil
}

func (c *RuleClassifier) classify(message string) Classification {
	if strings.TrimSpace(message) == "" {
		return Classification{Intent: UnknownIntent, Agent: c.fallback, Confidence: 0, Reason: ReasonEmptyMessage}
	}
	for _, r := range c.rules {
		if r.Pattern.MatchString(message) {
			return Classification{
				Intent:     r.Intent,
				Agent:      r.Agent,
				Confidence: ruleConfidence,
				Reason:     "rule:" + r.Intent,
			}
		}
	}
	return Classification{Intent: UnknownIntent, Agent: c.fallback, Confidence: noMatchConfidence, Reason: ReasonNoRule}
}

func clamp01(f float64) float64 {
	switch {
	case math.IsNaN(f):
		return 0
	case f < 0:
		return 0
	case f > 1:
		return 1
	default:
		return f
	}
}
