package logger

import (
	"bytes"
	"context"
	"encoding/json"
	"testing"

	"github.com/rs/zerolog"
	"github.com/rs/zerolog/log"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func captureJSON(t *testing.T, level zerolog.Level) *bytes.Buffer {
	t.Helper()
	prev := log.Logger
	t.Cleanup(func() {
		log.Logger = prev
		zerolog.SetGlobalLevel(zerolog.TraceLevel)
	})

	var buf bytes.Buffer
	cfg := DefaultConfig()
	cfg.Format = "json"
	require.NoError(t, SetupWriter(cfg, level, &buf))
	return &buf
}

func TestWithComponent(t *testing.T) {
	buf := captureJSON(t, zerolog.DebugLevel)

	l := WithComponent("gateway")
	l.Info().Msg("hello")

	var entry map[string]any
	require.NoError(t, json.Unmarshal(buf.Bytes(), &entry))
	assert.Equal(t, "gateway", entry["component"])
	assert.Equal(t, "hello", entry["message"])
	assert.Equal(t, "info", entry["level"])
}

func TestWithRequestID(t *testing.T) {
	buf := captureJSON(t, zerolog.InfoLevel)

	l := WithRequestID(GetLogger(), "req-1")
	l.Info().Msg("x")

	assert.Contains(t, buf.String(), `"request_id":"req-1"`)
	assert.NotContains(t, buf.String(), `"component"`)
}

func TestGlobalLevelFilters(t *testing.T) {
	buf := captureJSON(t, zerolog.WarnLevel)

	l := WithComponent("test")
	l.Info().Msg("dropped")
	assert.Zero(t, buf.Len())

	l.Warn().Msg("kept")
	assert.Contains(t, buf.String(), "kept")
}

func TestWithContext(t *testing.T) {
	buf := captureJSON(t, zerolog.InfoLevel)

	// No logger attached: falls back to the global one
	WithContext(context.Background()).Info().Msg("global")
	assert.Contains(t, buf.String(), "global")

	buf.Reset()
	scoped := WithRequestID(GetLogger(), "abc")
	ctx := scoped.WithContext(context.Background())
	WithContext(ctx).Info().Msg("scoped")
	assert.Contains(t, buf.String(), `"request_id":"abc"`)
}

func TestSetup_InvalidLevel(t *testing.T) {
	cfg := DefaultConfig()
	cfg.Level = "loud"
	assert.Error(t, Setup(cfg))
}
