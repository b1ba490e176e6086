package config

import (
	"io"
	"log/slog"
)

// NewLogger builds the process logger. Production writes JSON at info level;
// everything else writes text at debug level, with source in development.
// Every line carries the service name so terminal and authority logs can
// share a collector.
func NewLogger(w io.Writer, env, service string) *slog.Logger {
	opts := &slog.HandlerOptions{Level: slog.LevelDebug}

	var handler slog.Handler
	switch env {
	case "production":
		opts.Level = slog.LevelInfo
		handler = slog.NewJSONHandler(w, opts)
	case "development":
		opts.AddSource = true
		handler = slog.NewTextHandler(w, opts)
	default:
		handler = slog.NewTextHandler(w, opts)
	}

	return slog.New(handler).With(slog.String("service", service))
}
