package logging

import (
	"bytes"
	"context"
	"log/slog"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestContextIDs(t *testing.T) {
	ctx := context.Background()
	assert.Empty(t, SessionID(ctx))
	assert.Empty(t, Workflow(ctx))
	assert.Empty(t, Step(ctx))

	ctx = WithIDs(ctx, "sess-1", "task-loop", "implement")
	assert.Equal(t, "sess-1", SessionID(ctx))
	assert.Equal(t, "task-loop", Workflow(ctx))
	assert.Equal(t, "implement", Step(ctx))
}

func TestCorrelationHandler_InjectsIDs(t *testing.T) {
	var buf bytes.Buffer
	logger := slog.New(NewCorrelationHandler(slog.NewTextHandler(&buf, nil)))

	ctx := WithIDs(context.Background(), "sess-9", "review", "triage")
	logger.InfoContext(ctx, "evaluating event")

	out := buf.String()
	assert.Contains(t, out, "session_id=sess-9")
	assert.Contains(t, out, "workflow=review")
	assert.Contains(t, out, "step=triage")
}

func TestCorrelationHandler_SkipsEmptyIDs(t *testing.T) {
	var buf bytes.Buffer
	logger := slog.New(NewCorrelationHandler(slog.NewTextHandler(&buf, nil)))

	ctx := WithSessionID(context.Background(), "sess-2")
	logger.InfoContext(ctx, "partial correlation")

	out := buf.String()
	assert.Contains(t, out, "session_id=sess-2")
	assert.NotContains(t, out, "workflow=")
	assert.NotContains(t, out, "step=")
}

func TestLogWith(t *testing.T) {
	var buf bytes.Buffer
	base := slog.New(slog.NewTextHandler(&buf, nil))

	ctx := WithIDs(context.Background(), "sess-3", "deploy", "")
	LogWith(ctx, base).Info("enriched")

	out := buf.String()
	require.Contains(t, out, "session_id=sess-3")
	assert.Contains(t, out, "workflow=deploy")
	assert.NotContains(t, out, "step=")
}
