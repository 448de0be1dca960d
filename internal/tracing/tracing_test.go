package tracing

import (
	"context"
	"errors"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/ShayCichocki/conductor/internal/config"
)

func TestSetup_Disabled(t *testing.T) {
	shutdown, err := Setup(context.Background(), config.TracingConfig{Enabled: false})
	require.NoError(t, err)
	assert.NoError(t, shutdown(context.Background()))
}

func TestSetup_NoopExporter(t *testing.T) {
	shutdown, err := Setup(context.Background(), config.TracingConfig{Enabled: true, Exporter: "noop"})
	require.NoError(t, err)
	assert.NoError(t, shutdown(context.Background()))
}

func TestSetup_UnknownExporter(t *testing.T) {
	_, err := Setup(context.Background(), config.TracingConfig{Enabled: true, Exporter: "jaeger"})
	require.Error(t, err)
	assert.Contains(t, err.Error(), "unsupported exporter")
}

func TestStartSpanAndEnd(t *testing.T) {
	_, err := Setup(context.Background(), config.TracingConfig{})
	require.NoError(t, err)

	ctx, span := StartSpan(context.Background(), "route", String("agent", "vision"), Int("level", 1), Float("confidence", 1))
	require.NotNil(t, ctx)
	End(span, nil)

	_, span = StartSpan(context.Background(), "run")
	End(span, errors.New("boom"))
}
