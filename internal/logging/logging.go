// Package logging configures the process-wide slog logger.
package logging

import (
	"io"
	"log"
	"log/slog"

	"github.com/famish99/jackbridge/internal/config"
)

// New builds a logger writing to w in the configured level and format.
func New(w io.Writer, cfg config.LoggingConfig) (*slog.Logger, error) {
	level, err := config.ParseLevel(cfg.Level)
	if err != nil {
		return nil, err
	}
	opts := &slog.HandlerOptions{Level: level}
	var h slog.Handler
	if cfg.Format == "json" {
		h = slog.NewJSONHandler(w, opts)
	} else {
		h = slog.NewTextHandler(w, opts)
	}
	return slog.New(h), nil
}

// Setup installs the logger as the slog default. Output of the standard
// log package is routed through it at info level.
func Setup(w io.Writer, cfg config.LoggingConfig) (*slog.Logger, error) {
	logger, err := New(w, cfg)
	if err != nil {
		return nil, err
	}
	slog.SetDefault(logger)
	log.SetFlags(0)
	return logger, nil
}
