package tracing

import (
	"bytes"
	"context"
	"errors"
	"testing"

	"github.com/rs/zerolog"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestContextValues(t *testing.T) {
	ctx := context.Background()
	assert.Empty(t, GetTraceID(ctx))
	assert.Empty(t, GetAgentID(ctx))
	assert.Empty(t, GetTaskID(ctx))

	ctx = WithTraceID(ctx, "trace-1")
	ctx = WithAgentID(ctx, "agent-1")
	ctx = WithTaskID(ctx, "task-1")

	assert.Equal(t, "trace-1", GetTraceID(ctx))
	assert.Equal(t, "agent-1", GetAgentID(ctx))
	assert.Equal(t, "task-1", GetTaskID(ctx))
}

func TestLoggerFromContext(t *testing.T) {
	buf := &bytes.Buffer{}
	base := zerolog.New(buf)

	ctx := WithTaskID(WithAgentID(context.Background(), "agent-1"), "task-1")
	logger := LoggerFromContext(ctx, base)
	logger.Info().Msg("rendering")

	out := buf.String()
	assert.Contains(t, out, `"agent_id":"agent-1"`)
	assert.Contains(t, out, `"task_id":"task-1"`)
	assert.NotContains(t, out, "trace_id")
}

func TestStartSpan(t *testing.T) {
	require.NoError(t, InitOpenTelemetry("monet-agent-test", "agent-1"))
	require.NoError(t, InitOpenTelemetry("monet-agent-test", "agent-1"))

	ctx := WithTaskID(context.Background(), "task-1")
	ctx, span := StartSpan(ctx, "process")
	assert.True(t, span.SpanContext().IsValid())
	assert.Equal(t, span.SpanContext().TraceID().String(), GetTraceID(ctx))

	_, child := StartSpan(ctx, "render")
	assert.Equal(t, span.SpanContext().TraceID(), child.SpanContext().TraceID())

	EndSpan(child, errors.New("renderer exited with code 1"))
	EndSpan(span, nil)

	require.NoError(t, ShutdownOpenTelemetry(context.Background()))
}
