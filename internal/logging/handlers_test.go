package logging

import (
	"bytes"
	"context"
	"log/slog"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestMultiHandler_FansOut(t *testing.T) {
	t.Parallel()

	var a, b bytes.Buffer
	h := NewMultiHandler(
		slog.NewTextHandler(&a, nil),
		slog.NewJSONHandler(&b, nil),
	)
	logger := slog.New(h)

	logger.Info("hello", "k", "v")

	assert.Contains(t, a.String(), "hello")
	assert.Contains(t, a.String(), "k=v")
	assert.Contains(t, b.String(), `"msg":"hello"`)
	assert.Contains(t, b.String(), `"k":"v"`)
}

func TestMultiHandler_EnabledIfAnyIs(t *testing.T) {
	t.Parallel()

	var buf bytes.Buffer
	info := slog.NewTextHandler(&buf, &slog.HandlerOptions{Level: slog.LevelInfo})
	errOnly := slog.NewTextHandler(&buf, &slog.HandlerOptions{Level: slog.LevelError})

	h := NewMultiHandler(info, errOnly)
	ctx := context.Background()
	assert.True(t, h.Enabled(ctx, slog.LevelInfo))
	assert.False(t, h.Enabled(ctx, slog.LevelDebug))
}

func TestMultiHandler_RespectsPerHandlerLevels(t *testing.T) {
	t.Parallel()

	var verbose, quiet bytes.Buffer
	h := NewMultiHandler(
		slog.NewTextHandler(&verbose, &slog.HandlerOptions{Level: slog.LevelDebug}),
		slog.NewTextHandler(&quiet, &slog.HandlerOptions{Level: slog.LevelError}),
	)
	logger := slog.New(h)

	logger.Debug("noise")
	logger.Error("boom")

	assert.Contains(t, verbose.String(), "noise")
	assert.Contains(t, verbose.String(), "boom")
	assert.NotContains(t, quiet.String(), "noise")
	assert.Contains(t, quiet.String(), "boom")
}

func TestMultiHandler_WithAttrs(t *testing.T) {
	t.Parallel()

	var a, b bytes.Buffer
	h := NewMultiHandler(
		slog.NewTextHandler(&a, nil),
		slog.NewTextHandler(&b, nil),
	)
	logger := slog.New(h).With("request_id", "r1")

	logger.Info("tagged")

	assert.Contains(t, a.String(), "request_id=r1")
	assert.Contains(t, b.String(), "request_id=r1")
}

func TestLevelFilter(t *testing.T) {
	t.Parallel()

	var buf bytes.Buffer
	// The wrapped handler accepts everything; the filter is the gate.
	inner := slog.NewTextHandler(&buf, &slog.HandlerOptions{Level: slog.LevelDebug})
	logger := slog.New(NewLevelFilter(inner, slog.LevelWarn))

	logger.Debug("dropped")
	logger.Info("dropped too")
	logger.Warn("kept")
	logger.Error("kept too")

	out := buf.String()
	assert.NotContains(t, out, "dropped")
	assert.Contains(t, out, "kept")
	assert.Contains(t, out, "kept too")

	require.False(t, NewLevelFilter(inner, slog.LevelWarn).Enabled(context.Background(), slog.LevelInfo))
}
