package logging

import (
	"encoding/json"
	"os"
	"path/filepath"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"
	"go.uber.org/zap/zapcore"

	"github.com/flightlink/copter-actor/internal/config"
)

func TestParseLevel(t *testing.T) {
	tests := []struct {
		in   string
		want zapcore.Level
	}{
		{in: "debug", want: zapcore.DebugLevel},
		{in: "INFO", want: zapcore.InfoLevel},
		{in: "Warn", want: zapcore.WarnLevel},
		{in: "error", want: zapcore.ErrorLevel},
	}
	for _, tt := range tests {
		got, err := ParseLevel(tt.in)
		require.NoError(t, err, tt.in)
		assert.Equal(t, tt.want, got)
	}

	_, err := ParseLevel("verbose")
	assert.Error(t, err)
}

func TestNewRejectsBadLevel(t *testing.T) {
	cfg := config.Default().Logging
	cfg.Level = "loud"
	_, _, err := New(cfg)
	assert.Error(t, err)
}

func TestNewWritesRotatedFile(t *testing.T) {
	path := filepath.Join(t.TempDir(), "actor.log")
	cfg := config.Default().Logging
	cfg.Level = "info"
	cfg.Format = "console"
	cfg.File = path

	logger, closeLogs, err := New(cfg)
	require.NoError(t, err)

	logger.Debug("filtered out")
	logger.Info("Drone connected", zap.String("component", "supervisor"))
	closeLogs()

	data, err := os.ReadFile(path)
	require.NoError(t, err)
	lines := strings.Split(strings.TrimSpace(string(data)), "\n")
	require.Len(t, lines, 1)

	var entry map[string]interface{}
	require.NoError(t, json.Unmarshal([]byte(lines[0]), &entry), "file sink is JSON regardless of format")
	assert.Equal(t, "Drone connected", entry["msg"])
	assert.Equal(t, "supervisor", entry["component"])
	assert.Equal(t, "info", entry["level"])
	assert.Contains(t, entry, "timestamp")
}

func TestNewWithoutFile(t *testing.T) {
	logger, closeLogs, err := New(config.Default().Logging)
	require.NoError(t, err)
	assert.NotNil(t, logger)
	assert.True(t, logger.Core().Enabled(zapcore.InfoLevel))
	assert.False(t, logger.Core().Enabled(zapcore.DebugLevel))
	closeLogs()
}
