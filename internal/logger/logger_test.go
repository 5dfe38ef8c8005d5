package logger

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
	level, err := ParseLevel("WARN")
	require.NoError(t, err)
	assert.Equal(t, slog.LevelWarn, level)

	level, err = ParseLevel("")
	require.NoError(t, err)
	assert.Equal(t, slog.LevelInfo, level)

	_, err = ParseLevel("loud")
	assert.Error(t, err)
}

func TestNewJSONHandler(t *testing.T) {
	var buf bytes.Buffer
	log := slog.New(New(&buf, slog.LevelInfo, "json"))

	log.Debug("hidden")
	log.Info("token refreshed", "waiters", 3)

	var line map[string]any
	require.NoError(t, json.Unmarshal(buf.Bytes(), &line))
	assert.Equal(t, "token refreshed", line["msg"])
	assert.Equal(t, float64(3), line["waiters"])
	assert.Contains(t, line, "timestamp")
}

func TestPrettyHandlerWritesAttrs(t *testing.T) {
	var buf bytes.Buffer
	log := slog.New(New(&buf, slog.LevelDebug, "pretty")).With("session", "abcd1234")

	log.Warn("probe rejected", "role", "admin")

	out := buf.String()
	assert.Contains(t, out, "probe rejected")
	assert.Contains(t, out, "session")
	assert.Contains(t, out, "abcd1234")
	assert.Contains(t, out, "admin")
}

func TestRequestAttrs(t *testing.T) {
	ctx := WithRequestAttrs(context.Background())
	AddAttrs(ctx, "session", "abc")
	AddAttrs(ctx, "role", "user")
	assert.Equal(t, []any{"session", "abc", "role", "user"}, RequestAttrs(ctx))

	bare := context.Background()
	AddAttrs(bare, "ignored", true)
	assert.Nil(t, RequestAttrs(bare))
}
