package lifecycle

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/ShayCichocki/conductor/pkg/models"
)

func TestDefaultExecutorDispatchesHandlers(t *testing.T) {
	e := NewDefaultExecutor(time.Hour)
	var got HandlerOptions
	e.Register("voice", HandlerFunc(func(_ context.Context, text string, opts HandlerOptions) (string, error) {
		got = opts
		return "calling: " + text, nil
	}))

	voice := &models.AgentDefinition{Name: "voice"}
	out, err := e.Execute(context.Background(), voice, models.Task{Text: "mom"}, ExecOptions{RunID: "r1", Upstream: "number is 123"})
	require.NoError(t, err)
	assert.Equal(t, "calling: mom", out)
	assert.Equal(t, "r1", got.RunID)
	assert.Equal(t, "number is 123", got.Upstream)
	assert.Same(t, voice, got.Agent)

	_, ok := e.Handler("vision")
	assert.False(t, ok)
}

func TestDefaultExecutorMockDelayPrecedence(t *testing.T) {
	tests := []struct {
		name  string
		exec  time.Duration
		agent int
		opt   time.Duration
	}{
		{"option beats agent", time.Hour, 3_600_000, 5 * time.Millisecond},
		{"agent beats executor default", time.Hour, 5, 0},
		{"executor default", 5 * time.Millisecond, 0, 0},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			e := NewDefaultExecutor(tt.exec)
			agent := &models.AgentDefinition{Name: "a", Limits: models.AgentLimits{MockDelayMs: tt.agent}}

			ctx, cancel := context.WithTimeout(context.Background(), time.Second)
			defer cancel()

			out, err := e.Execute(ctx, agent, models.Task{Text: "go"}, ExecOptions{MockDelay: tt.opt})
			require.NoError(t, err)
			assert.Equal(t, "[a] go", out)
		})
	}
}

func TestDefaultExecutorHonoursCancellation(t *testing.T) {
	e := NewDefaultExecutor(time.Hour)
	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	_, err := e.Execute(ctx, &models.AgentDefinition{Name: "a"}, models.Task{Text: "x"}, ExecOptions{})
	assert.ErrorIs(t, err, context.Canceled)
}

func TestDefaultExecutorFailMarker(t *testing.T) {
	e := NewDefaultExecutor(-1)
	_, err := e.Execute(context.Background(), &models.AgentDefinition{Name: "a"}, models.Task{Text: "x [fail]"}, ExecOptions{})
	assert.ErrorIs(t, err, ErrSimulatedFailure)
}
