package logging

import (
	"bytes"
	"context"
	"encoding/json"
	"path/filepath"
	"testing"
	"time"

	"github.com/rs/zerolog"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestDefaultLogConfig_HasSaneDefaults(t *testing.T) {
	cfg := DefaultLogConfig()
	assert.Equal(t, "info", cfg.Level)
	assert.True(t, cfg.Console)
	assert.True(t, cfg.File)
	assert.Equal(t, 100, cfg.MaxSize)
	assert.Equal(t, 7, cfg.MaxBackups)
	assert.Equal(t, 30, cfg.MaxAge)
}

func TestNewLoggerWithConfig_CreatesLogFileWhenFileEnabled(t *testing.T) {
	dir := t.TempDir()
	cfg := LogConfig{
		Level:    "debug",
		Console:  false,
		File:     true,
		FilePath: filepath.Join(dir, "nested", "orchestrator.log"),
		MaxSize:  1,
	}

	logger := NewLoggerWithConfig(cfg)
	logger.Info().Msg("hello")

	matches, err := filepath.Glob(filepath.Join(dir, "nested", "*"))
	require.NoError(t, err)
	assert.Len(t, matches, 1)
}

func TestWithLoggerAndFromContext_RoundTrips(t *testing.T) {
	var buf bytes.Buffer
	base := zerolog.New(&buf)

	ctx := WithLogger(context.Background(), base)
	got := FromContext(ctx)
	got.Info().Msg("via context")

	assert.Contains(t, buf.String(), "via context")
}

func TestFromContext_ReturnsNopLoggerWhenAbsent(t *testing.T) {
	logger := FromContext(context.Background())
	assert.Equal(t, zerolog.Nop(), logger)
}

func TestWithSymbolAgentOrderIDOperation_AddFields(t *testing.T) {
	var buf bytes.Buffer
	base := zerolog.New(&buf)

	logger := WithAgent(WithSymbol(WithOrderID(WithOperation(base, "tick"), "ord-1"), "GC"), "agent-1")
	logger.Info().Msg("enriched")

	var fields map[string]interface{}
	require.NoError(t, json.Unmarshal(buf.Bytes(), &fields))
	assert.Equal(t, "tick", fields["operation"])
	assert.Equal(t, "ord-1", fields["order_id"])
	assert.Equal(t, "GC", fields["symbol"])
	assert.Equal(t, "agent-1", fields["agent"])
}

func TestLogDecision_WritesExpectedFields(t *testing.T) {
	var buf bytes.Buffer
	logger := zerolog.New(&buf)

	LogDecision(logger, "agent-1", "GC", "buy_to_enter", 0.8, "llm", "trend confirmed")

	var fields map[string]interface{}
	require.NoError(t, json.Unmarshal(buf.Bytes(), &fields))
	assert.Equal(t, "decision", fields["event"])
	assert.Equal(t, "buy_to_enter", fields["action"])
	assert.Equal(t, 0.8, fields["confidence"])
	assert.Equal(t, "llm", fields["source"])
}

func TestLogVeto_WritesWarnLevelWithVetoReason(t *testing.T) {
	var buf bytes.Buffer
	logger := zerolog.New(&buf)

	LogVeto(logger, "agent-1", "GC", "max_leverage_exceeded", "shrunk to limit")

	var fields map[string]interface{}
	require.NoError(t, json.Unmarshal(buf.Bytes(), &fields))
	assert.Equal(t, "warn", fields["level"])
	assert.Equal(t, "max_leverage_exceeded", fields["veto"])
}

func TestLogHalt_WritesErrorLevelWithReason(t *testing.T) {
	var buf bytes.Buffer
	logger := zerolog.New(&buf)

	LogHalt(logger, "drawdown kill-switch")

	var fields map[string]interface{}
	require.NoError(t, json.Unmarshal(buf.Bytes(), &fields))
	assert.Equal(t, "error", fields["level"])
	assert.Equal(t, "drawdown kill-switch", fields["reason"])
}

func TestLogOrder_WritesExpectedFields(t *testing.T) {
	var buf bytes.Buffer
	logger := zerolog.New(&buf)

	LogOrder(logger, "ord-1", "GC", "buy_to_enter", "filled")

	var fields map[string]interface{}
	require.NoError(t, json.Unmarshal(buf.Bytes(), &fields))
	assert.Equal(t, "order", fields["event"])
	assert.Equal(t, "filled", fields["status"])
}

func TestLogAPICall_LogsErrorMessageWhenErrPresent(t *testing.T) {
	prevLevel := zerolog.GlobalLevel()
	zerolog.SetGlobalLevel(zerolog.DebugLevel)
	defer zerolog.SetGlobalLevel(prevLevel)

	var buf bytes.Buffer
	logger := zerolog.New(&buf)

	LogAPICall(logger, "GET", "/healthz", 5*time.Millisecond, assert.AnError)

	var fields map[string]interface{}
	require.NoError(t, json.Unmarshal(buf.Bytes(), &fields))
	assert.Equal(t, "api_call", fields["event"])
	assert.Contains(t, fields["message"], "failed")
}

func TestSetDebugLevelAndSetInfoLevel_ChangeGlobalLevel(t *testing.T) {
	SetDebugLevel()
	assert.Equal(t, zerolog.DebugLevel, zerolog.GlobalLevel())

	SetInfoLevel()
	assert.Equal(t, zerolog.InfoLevel, zerolog.GlobalLevel())
}
