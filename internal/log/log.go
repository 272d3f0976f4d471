// Package log builds the process logger from the logging config.
package log

import (
	"fmt"
	"io"
	"log/slog"
	"os"
	"path/filepath"
	"strings"

	"github.com/mmcdole/lectio/internal/config"
)

// Stderr as the log file writes to standard error instead of a file.
const Stderr = "-"

// Setup opens the configured log destination and returns a logger carrying
// attrs on every record, plus a func that closes the destination.
// Format is "json" (default) or "text".
func Setup(cfg *config.LoggingConfig, attrs ...any) (*slog.Logger, func() error, error) {
	w, closeFn, err := open(cfg.File)
	if err != nil {
		return nil, nil, err
	}

	opts := &slog.HandlerOptions{Level: ParseLevel(cfg.Level)}
	var handler slog.Handler
	switch strings.ToLower(cfg.Format) {
	case "", "json":
		handler = slog.NewJSONHandler(w, opts)
	case "text":
		handler = slog.NewTextHandler(w, opts)
	default:
		closeFn()
		return nil, nil, fmt.Errorf("unknown log format %q", cfg.Format)
	}
	return slog.New(handler).With(attrs...), closeFn, nil
}

func open(path string) (io.Writer, func() error, error) {
	if path == "" || path == Stderr {
		return os.Stderr, func() error { return nil }, nil
	}
	if rest, ok := strings.CutPrefix(path, "~"); ok {
		home, err := os.UserHomeDir()
		if err != nil {
			return nil, nil, fmt.Errorf("failed to get home directory: %w", err)
		}
		path = filepath.Join(home, rest)
	}
	if err := os.MkdirAll(filepath.Dir(path), 0755); err != nil {
		return nil, nil, fmt.Errorf("failed to create log directory: %w", err)
	}
	f, err := os.OpenFile(path, os.O_CREATE|os.O_APPEND|os.O_WRONLY, 0644)
	if err != nil {
		return nil, nil, fmt.Errorf("failed to open log file: %w", err)
	}
	return f, f.Close, nil
}

// ParseLevel maps a level name to slog.Level; unknown names are INFO.
func ParseLevel(level string) slog.Level {
	var l slog.Level
	if err := l.UnmarshalText([]byte(strings.TrimSpace(level))); err == nil {
		return l
	}
	if strings.EqualFold(level, "warning") {
		return slog.LevelWarn
	}
	return slog.LevelInfo
}

func NullLogger() *slog.Logger {
	return slog.New(slog.DiscardHandler)
}
