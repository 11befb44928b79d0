package main

import (
	"bytes"
	"encoding/json"
	"log/slog"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestParseLogLevel(t *testing.T) {
	for in, want := range map[string]LogLevel{
		"debug":   LogLevelDebug,
		"INFO":    LogLevelInfo,
		"warn":    LogLevelWarn,
		"Warning": LogLevelWarn,
		"error":   LogLevelError,
	} {
		got, err := parseLogLevel(in)
		require.NoError(t, err, in)
		assert.Equal(t, want, got, in)
	}

	_, err := parseLogLevel("trace")
	assert.Error(t, err)
}

func TestSetupLogger(t *testing.T) {
	var buf bytes.Buffer
	logger := setupLogger(LogLevelWarn, "json", &buf)

	logger.Info("hidden")
	logger.Warn("shown", "action", ActionOK)

	var rec map[string]any
	require.NoError(t, json.Unmarshal(buf.Bytes(), &rec))
	assert.Equal(t, "shown", rec["msg"])
	assert.Equal(t, "OK", rec["action"])
	assert.Equal(t, slog.LevelWarn.String(), rec["level"])

	buf.Reset()
	setupLogger(LogLevelDebug, "text", &buf).Debug("plain")
	assert.Contains(t, buf.String(), "msg=plain")
}
