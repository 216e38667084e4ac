package logging

import (
	"bytes"
	"context"
	"encoding/json"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"
	"go.uber.org/zap/zapcore"
)

func TestNewLogger(t *testing.T) {
	logger, err := NewLogger(NewDefaultConfig(), nil)
	require.NoError(t, err)
	require.NotNil(t, logger)
	assert.True(t, logger.Enabled(zapcore.InfoLevel))
	assert.False(t, logger.Enabled(zapcore.DebugLevel))
}

func TestNewLogger_InvalidConfig(t *testing.T) {
	cfg := NewDefaultConfig()
	cfg.Format = "xml"

	_, err := NewLogger(cfg, nil)
	require.Error(t, err)
	assert.Contains(t, err.Error(), "invalid config")
}

func TestLogger_WritesJSONWithContextFields(t *testing.T) {
	var buf bytes.Buffer
	logger, err := newLogger(NewDefaultConfig(), &buf, nil)
	require.NoError(t, err)

	ctx := WithRunID(context.Background(), "run-1")
	ctx = WithCheckID(ctx, "lint")
	logger.Info(ctx, "check finished", zap.Int("duration_ms", 12))

	var entry map[string]interface{}
	require.NoError(t, json.Unmarshal(buf.Bytes(), &entry))
	assert.Equal(t, "check finished", entry["msg"])
	assert.Equal(t, "run-1", entry["run.id"])
	assert.Equal(t, "lint", entry["check.id"])
	assert.Equal(t, "prove", entry["service"])
}

func TestLogger_RedactsSensitiveFields(t *testing.T) {
	var buf bytes.Buffer
	logger, err := newLogger(NewDefaultConfig(), &buf, nil)
	require.NoError(t, err)

	logger.Info(context.Background(), "github lookup",
		zap.String("token", "abc123"),
		zap.String("header", "Bearer abc.def"),
		zap.String("repo", "acme/web"),
	)

	out := buf.String()
	assert.NotContains(t, out, "abc123")
	assert.NotContains(t, out, "abc.def")
	assert.Contains(t, out, "acme/web")
}

func TestLogger_ConsoleFormat(t *testing.T) {
	var buf bytes.Buffer
	cfg := NewDefaultConfig()
	cfg.Format = "console"
	logger, err := newLogger(cfg, &buf, nil)
	require.NoError(t, err)

	logger.Warn(context.Background(), "ambiguous coverage path")
	assert.True(t, strings.Contains(buf.String(), "ambiguous coverage path"))
}

func TestLevelFromString(t *testing.T) {
	lvl, err := LevelFromString("trace")
	require.NoError(t, err)
	assert.Equal(t, TraceLevel, lvl)

	lvl, err = LevelFromString("warn")
	require.NoError(t, err)
	assert.Equal(t, zapcore.WarnLevel, lvl)

	_, err = LevelFromString("loud")
	assert.Error(t, err)
}

func TestFromContext(t *testing.T) {
	assert.NotNil(t, FromContext(context.Background()))

	tl := NewTestLogger()
	ctx := WithLogger(context.Background(), tl.Logger)
	FromContext(ctx).Info(ctx, "hello")
	tl.AssertLogged(t, zapcore.InfoLevel, "hello")
}

func TestTestLogger_AssertField(t *testing.T) {
	tl := NewTestLogger()
	ctx := WithTaskID(context.Background(), "task-7")
	tl.Warn(ctx, "phase sequence violation", zap.String("missing", "red"))

	tl.AssertField(t, "sequence", "missing", "red")
	tl.AssertField(t, "sequence", "task.id", "task-7")
	tl.AssertNotLogged(t, zapcore.ErrorLevel, "sequence")
	tl.Reset()
	assert.Empty(t, tl.All())
}

func TestSampling_ErrorsNeverDropped(t *testing.T) {
	var buf bytes.Buffer
	cfg := NewDefaultConfig()
	cfg.Sampling.Enabled = true
	cfg.Sampling.Initial = 1
	cfg.Sampling.Thereafter = 0
	logger, err := newLogger(cfg, &buf, nil)
	require.NoError(t, err)

	for i := 0; i < 5; i++ {
		logger.Error(context.Background(), "boom")
	}
	assert.Equal(t, 5, strings.Count(buf.String(), "boom"))
}
