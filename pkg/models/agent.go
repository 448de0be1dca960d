package models

// AgentTriggers lists the intents and keywords an agent declares.
type AgentTriggers struct {
	// Intents are lowercase-normalized intent names, in declaration order.
	Intents []string `json:"intents" yaml:"intents"`
	// Keywords keep their declared case for display; matching is case-insensitive.
	Keywords []string `json:"keywords" yaml:"keywords"`
}

// AgentLimits holds per-agent execution limits.
type AgentLimits struct {
	// TimeoutSeconds bounds a single run of this agent. Zero means unset.
	TimeoutSeconds int `json:"timeout_seconds,omitempty" yaml:"timeout_seconds"`
	// MockDelayMs is how long the mock executor sleeps for this agent. Zero means unset.
	MockDelayMs int `json:"mock_delay_ms,omitempty" yaml:"mock_delay_ms"`
}

// AgentDefinition describes one declared agent capability.
type AgentDefinition struct {
	// Name is the unique identifier of the agent within a registry snapshot.
	Name string `json:"name"`
	// Description is a human readable summary of what the agent does.
	Description string `json:"description,omitempty"`
	// Label is the display name. Defaults to Name.
	Label string `json:"label"`
	// Model is passed through to executors untouched.
	Model map[string]any `json:"model"`
	// Triggers are used by the router to resolve messages to this agent.
	Triggers AgentTriggers `json:"triggers"`
	// Limits are optional execution limits.
	Limits AgentLimits `json:"limits"`
	// SourcePath is the document the definition was loaded from.
	SourcePath string `json:"source_path,omitempty"`
}

// DisplayName returns Label, falling back to Name.
func (a *AgentDefinition) DisplayName() string {
	if a == nil {
		return ""
	}
	if a.Label != "" {
		return a.Label
	}
	return a.Name
}

// HasIntent reports whether the agent declares the given lowercase intent.
func (a *AgentDefinition) HasIntent(intent string) bool {
	for _, i := range a.Triggers.Intents {
		if i == intent {
			return true
		}
	}
	return false
}
