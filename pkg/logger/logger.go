package logger

import (
	"context"
	"fmt"
	"io"
	"log/slog"
	"os"
	"path/filepath"
	"time"

	"github.com/google/uuid"
)

// LevelSuccess marks stage completions. It sits between Info and Warn so
// success entries survive an Info-level console filter.
const LevelSuccess = slog.Level(slog.LevelInfo + 2)

// Options configure New.
type Options struct {
	// Dir is where the run log file is created. Defaults to ".".
	Dir string
	// ConsoleLevel filters the console handler; the run log always
	// records debug detail.
	ConsoleLevel slog.Level
	// Console defaults to os.Stderr.
	Console io.Writer
	// Now is overridable for tests.
	Now func() time.Time
}

// Logger couples the slog handle with the append-only run log file it
// writes to. The file name is fixed once at construction and shared by
// every stage of the run.
type Logger struct {
	*slog.Logger

	runID string
	path  string
	file  *os.File
}

// New builds a logger that fans every record out to a human-readable
// console handler and a JSON handler appending to a timestamped run log
// file. Each record carries the run's unique id.
func New(opts Options) (*Logger, error) {
	if opts.Console == nil {
		opts.Console = os.Stderr
	}
	if opts.Now == nil {
		opts.Now = time.Now
	}
	if opts.Dir == "" {
		opts.Dir = "."
	}
	if err := os.MkdirAll(opts.Dir, 0o755); err != nil {
		return nil, fmt.Errorf("create log directory: %w", err)
	}

	path := filepath.Join(opts.Dir, fmt.Sprintf("deckhand_%s.log", opts.Now().Format("20060102_150405")))
	file, err := os.OpenFile(path, os.O_CREATE|os.O_WRONLY|os.O_APPEND, 0o644)
	if err != nil {
		return nil, fmt.Errorf("open run log: %w", err)
	}

	console := slog.NewTextHandler(opts.Console, &slog.HandlerOptions{
		Level:       opts.ConsoleLevel,
		ReplaceAttr: renameCustomLevels,
	})
	record := slog.NewJSONHandler(file, &slog.HandlerOptions{
		Level:       slog.LevelDebug,
		ReplaceAttr: renameCustomLevels,
	})

	runID := uuid.NewString()
	return &Logger{
		Logger: slog.New(newFanout(console, record)).With("run_id", runID),
		runID:  runID,
		path:   path,
		file:   file,
	}, nil
}

// Path returns the run log file location.
func (l *Logger) Path() string { return l.path }

// RunID returns the id attached to every record of this run.
func (l *Logger) RunID() string { return l.runID }

// Close flushes and closes the run log file.
func (l *Logger) Close() error { return l.file.Close() }

// Success logs msg at the SUCCESS level.
func Success(ctx context.Context, log *slog.Logger, msg string, args ...any) {
	log.Log(ctx, LevelSuccess, msg, args...)
}

func renameCustomLevels(_ []string, a slog.Attr) slog.Attr {
	if a.Key != slog.LevelKey {
		return a
	}
	if level, ok := a.Value.Any().(slog.Level); ok && level == LevelSuccess {
		a.Value = slog.StringValue("SUCCESS")
	}
	return a
}
