// Package logging builds the process logger.
package logging

import (
	"io"
	"log/slog"
	"os"
	"path/filepath"
	"strings"
	"time"

	"github.com/lmittmann/tint"
	"gopkg.in/natefinch/lumberjack.v2"

	"github.com/JohnPlummer/jobpilot/config"
)

// New returns a logger for cfg. Without a log file it writes colourised text to
// stderr; with one it writes JSON or text to a rotating file.
// The returned closer releases the file and is never nil.
func New(cfg config.LoggingConfig, debug bool) (*slog.Logger, io.Closer, error) {
	level := parseLevel(cfg.Level)
	if debug {
		level = slog.LevelDebug
	}

	path := strings.TrimSpace(cfg.File)
	if path == "" {
		return newConsole(os.Stderr, level), nopCloser{}, nil
	}

	if err := os.MkdirAll(filepath.Dir(path), 0o700); err != nil {
		// Fall back to the console so the failure itself is visible
		return newConsole(os.Stderr, level), nopCloser{}, err
	}

	writer := &lumberjack.Logger{
		Filename:   path,
		MaxSize:    cfg.MaxSizeMB,
		MaxBackups: cfg.MaxBackups,
		MaxAge:     cfg.MaxAgeDays,
		Compress:   true,
	}
	return slog.New(newHandler(cfg.Format, writer, &slog.HandlerOptions{Level: level})), writer, nil
}

func newConsole(w io.Writer, level slog.Level) *slog.Logger {
	return slog.New(tint.NewHandler(w, &tint.Options{
		Level:      level,
		TimeFormat: time.RFC3339,
	}))
}

func parseLevel(level string) slog.Level {
	switch strings.ToLower(strings.TrimSpace(level)) {
	case "debug":
		return slog.LevelDebug
	case "warn", "warning":
		return slog.LevelWarn
	case "error":
		return slog.LevelError
	default:
		return slog.LevelInfo
	}
}

func newHandler(format string, out io.Writer, opts *slog.HandlerOptions) slog.Handler {
	if strings.EqualFold(strings.TrimSpace(format), "json") {
		return slog.NewJSONHandler(out, opts)
	}
	return slog.NewTextHandler(out, opts)
}

type nopCloser struct{}

func (nopCloser) Close() error { return nil }
