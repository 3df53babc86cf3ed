package logger

import (
	"bytes"
	"context"
	"encoding/json"
	"log/slog"
	"os"
	"path/filepath"
	"strings"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func newTestLogger(t *testing.T, console *bytes.Buffer, level slog.Level) *Logger {
	t.Helper()
	log, err := New(Options{
		Dir:          t.TempDir(),
		ConsoleLevel: level,
		Console:      console,
		Now:          func() time.Time { return time.Date(2024, 5, 14, 9, 30, 0, 0, time.UTC) },
	})
	require.NoError(t, err)
	t.Cleanup(func() { _ = log.Close() })
	return log
}

func TestNewCreatesTimestampedRunLog(t *testing.T) {
	var console bytes.Buffer
	log := newTestLogger(t, &console, slog.LevelInfo)

	assert.Equal(t, "deckhand_20240514_093000.log", filepath.Base(log.Path()))
	_, err := os.Stat(log.Path())
	require.NoError(t, err)
	assert.NotEmpty(t, log.RunID())
}

func TestRecordsReachConsoleAndFile(t *testing.T) {
	var console bytes.Buffer
	log := newTestLogger(t, &console, slog.LevelInfo)

	log.Info("source synchronized", "branch", "main")
	require.NoError(t, log.Close())

	assert.Contains(t, console.String(), "source synchronized")
	assert.Contains(t, console.String(), "run_id=")

	data, err := os.ReadFile(log.Path())
	require.NoError(t, err)
	var entry map[string]any
	require.NoError(t, json.Unmarshal(bytes.TrimSpace(data), &entry))
	assert.Equal(t, "source synchronized", entry["msg"])
	assert.Equal(t, log.RunID(), entry["run_id"])
}

func TestFileKeepsDebugWhenConsoleFilters(t *testing.T) {
	var console bytes.Buffer
	log := newTestLogger(t, &console, slog.LevelInfo)

	log.Debug("remote command", "cmd", "echo ok")
	require.NoError(t, log.Close())

	assert.NotContains(t, console.String(), "remote command")
	data, err := os.ReadFile(log.Path())
	require.NoError(t, err)
	assert.Contains(t, string(data), "remote command")
}

func TestSuccessLevelRendering(t *testing.T) {
	var console bytes.Buffer
	log := newTestLogger(t, &console, slog.LevelInfo)

	Success(context.Background(), log.Logger, "DEPLOYMENT COMPLETED SUCCESSFULLY", "url", "http://203.0.113.10")
	require.NoError(t, log.Close())

	assert.Contains(t, console.String(), "level=SUCCESS")
	assert.Contains(t, console.String(), "DEPLOYMENT COMPLETED SUCCESSFULLY")

	data, err := os.ReadFile(log.Path())
	require.NoError(t, err)
	line := strings.TrimSpace(string(data))
	var entry map[string]any
	require.NoError(t, json.Unmarshal([]byte(line), &entry))
	assert.Equal(t, "SUCCESS", entry["level"])
}

func TestSuccessSurvivesInfoFilterButNotWarn(t *testing.T) {
	var console bytes.Buffer
	log := newTestLogger(t, &console, slog.LevelWarn)

	Success(context.Background(), log.Logger, "stage done")
	assert.NotContains(t, console.String(), "stage done")

	data, err := os.ReadFile(log.Path())
	require.NoError(t, err)
	assert.Contains(t, string(data), "stage done")
}
