// Package logging builds the file-backed slog logger. The TUI owns the
// terminal, so nothing here ever writes to stdout or stderr.
package logging

import (
	"fmt"
	"io"
	"log/slog"
	"os"
	"path/filepath"
	"strings"
)

type FileLogger struct {
	Logger  *slog.Logger
	Close   func() error
	Path    string
	Enabled bool
}

func Nop() *slog.Logger {
	return slog.New(slog.NewTextHandler(io.Discard, &slog.HandlerOptions{Level: slog.LevelInfo}))
}

func disabled() FileLogger {
	return FileLogger{Logger: Nop(), Close: func() error { return nil }, Enabled: false}
}

// ParseLevel maps debug, info, warn and error onto slog levels.
func ParseLevel(level string) (slog.Level, error) {
	switch strings.ToLower(strings.TrimSpace(level)) {
	case "debug":
		return slog.LevelDebug, nil
	case "", "info":
		return slog.LevelInfo, nil
	case "warn", "warning":
		return slog.LevelWarn, nil
	case "error":
		return slog.LevelError, nil
	default:
		return slog.LevelInfo, fmt.Errorf("unknown log level %q", level)
	}
}

// NewFileLogger opens path for appending and returns a JSON logger writing to
// it. An empty path yields a disabled logger.
func NewFileLogger(path, level string) (FileLogger, error) {
	if strings.TrimSpace(path) == "" {
		return disabled(), nil
	}
	lvl, err := ParseLevel(level)
	if err != nil {
		return disabled(), err
	}
	if err := os.MkdirAll(filepath.Dir(path), 0o755); err != nil {
		return disabled(), err
	}
	file, err := os.OpenFile(path, os.O_CREATE|os.O_APPEND|os.O_WRONLY, 0o600)
	if err != nil {
		return disabled(), err
	}
	handler := slog.NewJSONHandler(file, &slog.HandlerOptions{
		Level:     lvl,
		AddSource: true,
	})
	logger := slog.New(handler).With(slog.Int("pid", os.Getpid()))
	return FileLogger{
		Logger:  logger,
		Close:   file.Close,
		Path:    path,
		Enabled: true,
	}, nil
}
