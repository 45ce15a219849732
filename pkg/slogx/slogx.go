// Package slogx builds the service-wide structured logger and carries
// request-scoped loggers through context.
package slogx

import (
	"log/slog"
	"os"
	"strings"
)

type Config struct {
	Service string
	Version string
	Env     string // "dev", "staging", "prod"
	Level   string // "debug", "info", "warn", "error"
	Format  string // "json", "text"
}

// New returns a configured slog.Logger and installs it as the default.
func New(cfg Config) *slog.Logger {
	opts := &slog.HandlerOptions{
		AddSource: cfg.Env == "dev",
		Level:     parseLevel(cfg.Level),
	}

	var handler slog.Handler
	switch strings.ToLower(cfg.Format) {
	case "text":
		handler = slog.NewTextHandler(os.Stdout, opts)
	default:
		handler = slog.NewJSONHandler(os.Stdout, opts)
	}

	logger := slog.New(handler).With(
		"service", cfg.Service,
		"version", cfg.Version,
		"env", cfg.Env,
	)

	slog.SetDefault(logger)
	return logger
}

func parseLevel(lvl string) slog.Level {
	switch strings.ToLower(lvl) {
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
