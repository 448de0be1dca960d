package main

import (
	"encoding/json"
	"fmt"
	"io"
	"strings"

	"github.com/fatih/color"

	"github.com/ShayCichocki/conductor/pkg/models"
)

// printStatus prints a colored status line
func printStatus(w io.Writer, symbol, message string, colorAttr color.Attribute) {
	c := color.New(colorAttr)
	fmt.Fprintf(w, "%s %s\n", c.Sprint(symbol), message)
}

// printJSON writes v as indented JSON.
func printJSON(w io.Writer, v any) error {
	enc := json.NewEncoder(w)
	enc.SetIndent("", "  ")
	enc.SetEscapeHTML(false)
	return enc.Encode(v)
}

// statusColor maps run statuses to terminal colors.
func statusColor(s models.RunStatus) color.Attribute {
	switch s {
	case models.RunCompleted:
		return color.FgGreen
	case models.RunRunning:
		return color.FgCyan
	case models.RunCancelled:
		return color.FgYellow
	default:
		return color.FgRed
	}
}

func statusSymbol(s models.RunStatus) string {
	switch s {
	case models.RunCompleted:
		return "✓"
	case models.RunRunning:
		return "…"
	case models.RunCancelled:
		return "⊘"
	default:
		return "✗"
	}
}

// printDecision writes a route decision in human form.
func printDecision(w io.Writer, d models.RouteDecision) {
	fmt.Fprintf(w, "%s %s\n", color.New(color.Bold).Sprint("agent:"), d.AgentName)
	fmt.Fprintf(w, "  level:      %d (%s)\n", d.ResolutionLevel, d.ResolutionLevel)
	fmt.Fprintf(w, "  confidence: %.2f\n", d.Confidence)
	fmt.Fprintf(w, "  reason:     %s\n", d.Reason)
	fmt.Fprintf(w, "  latency:    %s\n", d.Latency)
	fmt.Fprintf(w, "  message:    %s\n", d.MessageSummary)
}

// printDecomposition writes a task graph in human form.
func printDecomposition(w io.Writer, r models.DecompositionResult) {
	fmt.Fprintf(w, "%s %s, %s, %d task(s)\n",
		color.New(color.Bold).Sprint("plan:"), r.Kind, r.ExecutionMode, len(r.Tasks))
	for _, t := range r.Tasks {
		deps := ""
		if t.HasDependencies() {
			deps = color.New(color.Faint).Sprintf(" (after %s)", strings.Join(t.DependsOn, ", "))
		}
		fmt.Fprintf(w, "  %d. %s %s%s\n", t.Priority, color.CyanString("["+t.AgentName+"]"), t.Text, deps)
	}
}

// printRun writes one run snapshot as a status line.
func printRun(w io.Writer, s models.RunSnapshot) {
	msg := fmt.Sprintf("%s %s %s", s.TaskID, s.AgentName, s.Status)
	if s.DurationMs > 0 {
		msg += fmt.Sprintf(" %dms", s.DurationMs)
	}
	if s.Error != "" {
		msg += ": " + s.Error
	}
	printStatus(w, statusSymbol(s.Status), msg, statusColor(s.Status))
}
