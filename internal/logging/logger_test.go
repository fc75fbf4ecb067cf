package logging

import (
	"bytes"
	"context"
	"encoding/json"
	"log/slog"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestParseLevel(t *testing.T) {
	assert.Equal(t, slog.LevelDebug, ParseLevel("debug"))
	assert.Equal(t, slog.LevelWarn, ParseLevel("WARN"))
	assert.Equal(t, slog.LevelError, ParseLevel(" error "))
	assert.Equal(t, slog.LevelInfo, ParseLevel("verbose"))
	assert.Equal(t, slog.LevelInfo, ParseLevel(""))
}

func TestNewLogger_JSONWithRequestID(t *testing.T) {
	var buf bytes.Buffer
	logger := NewLogger(Config{Level: "info", Format: "json", Output: &buf})

	logger.Debug("hidden")
	logger.WithRequestID("req-1").Info("query executed", slog.String("entity", "payment"))

	var record map[string]any
	require.NoError(t, json.Unmarshal(buf.Bytes(), &record))
	assert.Equal(t, "query executed", record["msg"])
	assert.Equal(t, "req-1", record["request_id"])
	assert.Equal(t, "payment", record["entity"])
}

func TestNewLogger_Text(t *testing.T) {
	var buf bytes.Buffer
	NewLogger(Config{Format: "text", Output: &buf}).WithFields("table", "store").Warn("skipped")

	assert.Contains(t, buf.String(), "level=WARN")
	assert.Contains(t, buf.String(), "table=store")
}

func TestFanout(t *testing.T) {
	var info, debug bytes.Buffer
	h := fanout{
		slog.NewTextHandler(&info, &slog.HandlerOptions{Level: slog.LevelInfo}),
		slog.NewTextHandler(&debug, &slog.HandlerOptions{Level: slog.LevelDebug}),
	}
	logger := slog.New(h).With("k", "v")

	logger.Debug("fine")
	logger.Info("coarse")

	assert.NotContains(t, info.String(), "fine")
	assert.Contains(t, info.String(), "coarse")
	assert.Contains(t, debug.String(), "fine")
	assert.Contains(t, debug.String(), "k=v")
}

func TestContextHelpers(t *testing.T) {
	ctx := context.Background()
	assert.NotNil(t, FromContext(ctx).Logger)
	assert.Empty(t, GetRequestID(ctx))

	logger := NewLogger(Config{})
	ctx = WithLogger(WithRequestIDContext(ctx, "abc"), logger)
	assert.Same(t, logger, FromContext(ctx))
	assert.Equal(t, "abc", GetRequestID(ctx))
}
