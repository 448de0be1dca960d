package models

import "time"

// ResolutionLevel identifies which routing tier produced a decision.
type ResolutionLevel int

const (
	// LevelKeyword is a direct keyword hit in the registry.
	LevelKeyword ResolutionLevel = 1
	// LevelClassifier is an accepted classifier result.
	LevelClassifier ResolutionLevel = 2
	// LevelFallback is the generic fallback agent.
	LevelFallback ResolutionLevel = 3
)

// Valid returns true if the level is a known value.
func (l ResolutionLevel) Valid() bool {
	switch l {
	case LevelKeyword, LevelClassifier, LevelFallback:
		return true
	default:
		return false
	}
}

// String returns the tier name.
func (l ResolutionLevel) String() string {
	switch l {
	case LevelKeyword:
		return "keyword"
	case LevelClassifier:
		return "classifier"
	case LevelFallback:
		return "fallback"
	default:
		return "unknown"
	}
}

// RouteDecision is the outcome of routing one message.
type RouteDecision struct {
	AgentName       string          `json:"agent"`
	ResolutionLevel ResolutionLevel `json:"resolution_level"`
	Confidence      float64         `json:"confidence"`
	Reason          string          `json:"reason"`
	Latency         time.Duration   `json:"latency"`
	MessageSummary  string          `json:"message_summary"`
}

// summaryRunes is the number of runes kept by Summarize.
const summaryRunes = 40

// Summarize truncates a message to a short single-line preview.
func Summarize(message string) string {
	r := []rune(message)
	if len(r) <= summaryRunes {
		return message
	}
	return string(r[:summaryRunes]) + "…"
}
