package logger

import (
	"bytes"
	"encoding/json"
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"
	"go.uber.org/zap/zapcore"
)

func TestParseLevel(t *testing.T) {
	cases := map[string]zapcore.Level{
		"DEBUG":    zapcore.DebugLevel,
		"info":     zapcore.InfoLevel,
		"WARNING":  zapcore.WarnLevel,
		"warn":     zapcore.WarnLevel,
		"ERROR":    zapcore.ErrorLevel,
		"CRITICAL": zapcore.ErrorLevel,
		"":         zapcore.InfoLevel,
	}
	for in, want := range cases {
		got, err := ParseLevel(in)
		require.NoError(t, err, in)
		assert.Equal(t, want, got, in)
	}

	_, err := ParseLevel("loud")
	assert.Error(t, err)
}

func TestNewJSONOutput(t *testing.T) {
	var buf bytes.Buffer
	log, err := New(Config{Level: "INFO", Format: "json", Output: &buf})
	require.NoError(t, err)

	log.WithComponent("engine").WithRunID("run-1").Info("Anonymization complete", zap.Int("matches", 2))
	log.Debug("hidden")
	require.NoError(t, log.Sync())

	var entry map[string]any
	require.NoError(t, json.Unmarshal(bytes.TrimSpace(buf.Bytes()), &entry))
	assert.Equal(t, "Anonymization complete", entry["msg"])
	assert.Equal(t, "engine", entry["component"])
	assert.Equal(t, "run-1", entry["run_id"])
	assert.EqualValues(t, 2, entry["matches"])
	assert.Contains(t, entry, "timestamp")
}

func TestNewWithRotatedFile(t *testing.T) {
	path := filepath.Join(t.TempDir(), "logs", "anonymizer.log")

	log, err := New(Config{
		Level:  "debug",
		Format: "console",
		Output: &bytes.Buffer{},
		File:   &FileConfig{Enabled: true, Path: path, MaxSize: 1, MaxBackups: 1},
	})
	require.NoError(t, err)

	log.Warn("Invalid date format encountered", zap.String("date", "9999-99-99"))
	require.NoError(t, log.Sync())

	data, err := os.ReadFile(path)
	require.NoError(t, err)
	assert.Contains(t, string(data), "9999-99-99")
}

func TestNewRejectsBadLevel(t *testing.T) {
	_, err := New(Config{Level: "verbose"})
	assert.Error(t, err)
}
