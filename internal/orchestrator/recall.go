package orchestrator

import (
	"context"
	"strings"
)

// Memory is one recalled fact.
type Memory struct {
	ID    string  `json:"id,omitempty"`
	Text  string  `json:"text"`
	Score float64 `json:"score,omitempty"`
}

// SearchOptions narrows a recall query.
type SearchOptions struct {
	// Limit caps the number of memories. Zero means the store's default.
	Limit int
	// MinScore drops weaker matches.
	MinScore float64
}

// Recaller searches a semantic memory store.
type Recaller interface {
	Search(ctx context.Context, query string, opts SearchOptions) ([]Memory, error)
}

// RecallerFunc adapts a function to the Recaller interface.
type RecallerFunc func(ctx context.Context, query string, opts SearchOptions) ([]Memory, error)

// Search calls f.
func (f RecallerFunc) Search(ctx context.Context, query string, opts SearchOptions) ([]Memory, error) {
	return f(ctx, query, opts)
}

// recallPrefix joins memories into plain text placed before each task.
// It returns "" when there is nothing to add.
func recallPrefix(memories []Memory, opts SearchOptions) string {
	var lines []string
	for _, m := range memories {
		text := strings.TrimSpace(m.Text)
		if text == "" || (opts.MinScore > 0 && m.Score < opts.MinScore) {
			continue
		}
		lines = append(lines, text)
		if opts.Limit > 0 && len(lines) == opts.Limit {
			break
		}
	}
	if len(lines) == 0 {
		return ""
	}
	return strings.Join(lines, "\n") + "\n\n"
}
