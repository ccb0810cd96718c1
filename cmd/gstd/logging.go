package main

import (
	"log/slog"
	"os"
	"strings"
)

// setupLogger builds the process-wide log/slog.Logger, configured once at
// process start: text for a TTY-style default and JSON when asked for, with
// component-scoped fields carried by every subsystem logger derived from it.
func setupLogger(level, format string) *slog.Logger {
	var logLevel slog.Level
	switch strings.ToLower(level) {
	case "debug":
		logLevel = slog.LevelDebug
	case "warn":
		logLevel = slog.LevelWarn
	case "error":
		logLevel = slog.LevelError
	default:
		logLevel = slog.LevelInfo
	}

	opts := &slog.HandlerOptions{Level: logLevel, AddSource: level == "debug"}

	var handler slog.Handler
	switch strings.ToLower(format) {
	case "json":
		handler = slog.NewJSONHandler(os.Stdout, opts)
	default:
		handler = slog.NewTextHandler(os.Stdout, opts)
	}

	return slog.New(handler).With("service", "gstd", "pid", os.Getpid())
}
