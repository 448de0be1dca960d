package router

import (
	"context"
	"errors"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/ShayCichocki/conductor/pkg/models"
)

type fakeCompleter struct {
	reply  string
	err    error
	calls  int
	prompt string
}

func (f *fakeCompleter) Complete(_ context.Context, _, prompt string) (string, error) {
	f.calls++
	f.prompt = prompt
	return f.reply, f.err
}

type staticAgents []*models.AgentDefinition

func (s staticAgents) ListAgents() []*models.AgentDefinition { return s }

var testAgents = staticAgents{
	{Name: "vision", Description: "looks at images", Triggers: models.AgentTriggers{Intents: []string{"vision"}}},
	{Name: "coder"},
}

func TestLLMClassifier(t *testing.T) {
	llm := &fakeCompleter{reply: "Sure:\n{\"intent\": \"Vision\", \"agent\": \"vision\", \"confidence\": 0.91, \"reason\": \"image attached\"}"}
	c := NewLLMClassifier(llm, testAgents, LLMOptions{})

	got, err := c.Classify(context.Background(), "what is in this picture")
	require.NoError(t, err)
	assert.Equal(t, "vision", got.Intent)
	assert.Equal(t, "vision", got.Agent)
	assert.InDelta(t, 0.91, got.Confidence, 1e-9)
	assert.Equal(t, "llm:image attached", got.Reason)

	assert.Contains(t, llm.prompt, "- vision: looks at images (intents: vision)")
	assert.Contains(t, llm.prompt, "Fallback agent: orchestrator")
	assert.Contains(t, llm.prompt, "what is in this picture")
}

func TestLLMClassifierCaches(t *testing.T) {
	llm := &fakeCompleter{reply: `{"intent":"code","agent":"coder","confidence":0.8}`}
	c := NewLLMClassifier(llm, testAgents, LLMOptions{})

	_, err := c.Classify(context.Background(), "Fix   my code")
	require.NoError(t, err)
	got, err := c.Classify(context.Background(), "fix my code")
	require.NoError(t, err)

	assert.Equal(t, 1, llm.calls)
	assert.Equal(t, "coder", got.Agent)
	assert.Equal(t, "llm", got.Reason)
}

func TestLLMClassifierFallsBackToRules(t *testing.T) {
	tests := []struct {
		name string
		llm  *fakeCompleter
	}{
		{"api error", &fakeCompleter{err: errors.New("529 overloaded")}},
		{"no json", &fakeCompleter{reply: "I think vision"}},
		{"no agent", &fakeCompleter{reply: `{"intent":"x","confidence":0.9}`}},
		{"bad json", &fakeCompleter{reply: `{"agent": }`}},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			c := NewLLMClassifier(tt.llm, testAgents, LLMOptions{})
			got, err := c.Classify(context.Background(), "记住我喜欢咖啡")
			require.NoError(t, err)
			assert.Equal(t, "memory", got.Agent)
			assert.Equal(t, "rule:memory", got.Reason)
		})
	}
}

func TestLLMClassifierEmptyMessage(t *testing.T) {
	llm := &fakeCompleter{}
	c := NewLLMClassifier(llm, testAgents, LLMOptions{FallbackAgent: "generalist"})

	got, err := c.Classify(context.Background(), "  ")
	require.NoError(t, err)
	assert.Equal(t, 0, llm.calls)
	assert.Equal(t, "generalist", got.Agent)
	assert.Equal(t, ReasonEmptyMessage, got.Reason)
}
