package main

import (
	"log/slog"
	"os"
	"strings"

	"github.com/c360/robobridge/config"
)

// setupLogger builds the process logger from the logging section. The
// -debug flag wins over the configured level.
func setupLogger(cfg config.LoggingConfig, debug bool) *slog.Logger {
	level := cfg.LogLevel()
	if debug {
		level = slog.LevelDebug
	}

	opts := &slog.HandlerOptions{
		Level:     level,
		AddSource: level == slog.LevelDebug,
	}

	var handler slog.Handler
	switch strings.ToLower(cfg.Format) {
	case "text":
		handler = slog.NewTextHandler(os.Stdout, opts)
	default:
		handler = slog.NewJSONHandler(os.Stdout, opts)
	}

	return slog.New(handler).With(
		"service", appName,
		"version", Version,
		"pid", os.Getpid(),
	)
}
