package config

import (
	"io"
	"log/slog"
	"strings"
)

// NewLogger builds a logger writing to w in the configured format.
// Unknown levels fall back to info.
func NewLogger(cfg LoggerConfig, w io.Writer) *slog.Logger {
	var level slog.Level
	if err := level.UnmarshalText([]byte(strings.ToUpper(cfg.Level))); err != nil {
		level = slog.LevelInfo
	}
	opts := &slog.HandlerOptions{Level: level}

	var handler slog.Handler
	if cfg.JSON {
		handler = slog.NewJSONHandler(w, opts)
	} else {
		handler = slog.NewTextHandler(w, opts)
	}
	return slog.New(handler)
}

// InitLogger installs NewLogger's result as the slog default and returns it.
func InitLogger(cfg LoggerConfig, w io.Writer, service string) *slog.Logger {
	logger := NewLogger(cfg, w).With("service", service)
	slog.SetDefault(logger)
	logger.Debug("logger initialized", "level", cfg.Level, "json", cfg.JSON)
	return logger
}
