// Package logging builds slog loggers with console and rotating-file
// handlers from configuration.
package logging

import (
	"fmt"
	"io"
	"log/slog"
	"os"
	"path/filepath"

	"gopkg.in/natefinch/lumberjack.v2"
)

// Config describes logger output.
type Config struct {
	Console  ConsoleConfig  `yaml:"console" json:"console"`
	File     FileConfig     `yaml:"file" json:"file"`
	Rotation RotationConfig `yaml:"rotation" json:"rotation"`
}

// ConsoleConfig configures the stdout handler.
type ConsoleConfig struct {
	Enabled bool   `yaml:"enabled" json:"enabled"`
	Level   string `yaml:"level" json:"level"`
	Format  string `yaml:"format" json:"format"` // "text" or "json"
}

// FileConfig configures the rotating log file.
type FileConfig struct {
	Enabled bool   `yaml:"enabled" json:"enabled"`
	Path    string `yaml:"path" json:"path"`
	Level   string `yaml:"level" json:"level"`
	Format  string `yaml:"format" json:"format"`
}

// RotationConfig configures log file rotation.
type RotationConfig struct {
	MaxSize    int  `yaml:"max_size" json:"max_size"` // megabytes
	MaxBackups int  `yaml:"max_backups" json:"max_backups"`
	MaxAge     int  `yaml:"max_age" json:"max_age"` // days
	Compress   bool `yaml:"compress" json:"compress"`
}

// DefaultConfig logs text to stdout at info level.
func DefaultConfig() Config {
	return Config{
		Console: ConsoleConfig{Enabled: true, Level: "info", Format: "text"},
	}
}

// NewLogger builds a logger from cfg. With no output enabled it returns a
// logger that discards everything.
func NewLogger(cfg Config) (*slog.Logger, error) {
	var handlers []slog.Handler

	if cfg.Console.Enabled {
		handlers = append(handlers, newHandler(os.Stdout, cfg.Console.Format, parseLevel(cfg.Console.Level)))
	}

	if cfg.File.Enabled {
		if cfg.File.Path == "" {
			return nil, fmt.Errorf("logging: file output enabled without a path")
		}
		if err := os.MkdirAll(filepath.Dir(cfg.File.Path), 0755); err != nil {
			return nil, fmt.Errorf("logging: create log directory: %w", err)
		}
		out := &lumberjack.Logger{
			Filename:   cfg.File.Path,
			MaxSize:    cfg.Rotation.MaxSize,
			MaxBackups: cfg.Rotation.MaxBackups,
			MaxAge:     cfg.Rotation.MaxAge,
			Compress:   cfg.Rotation.Compress,
		}
		level := parseLevel(cfg.File.Level)
		handlers = append(handlers, NewLevelFilter(newHandler(out, cfg.File.Format, level), level))
	}

	switch len(handlers) {
	case 0:
		return slog.New(slog.NewTextHandler(io.Discard, nil)), nil
	case 1:
		return slog.New(handlers[0]), nil
	default:
		return slog.New(NewMultiHandler(handlers...)), nil
	}
}

// Initialize builds a logger from cfg and installs it as the process default.
func Initialize(cfg Config) error {
	logger, err := NewLogger(cfg)
	if err != nil {
		return err
	}
	slog.SetDefault(logger)
	return nil
}

func parseLevel(level string) slog.Level {
	switch level {
	case "debug":
		return slog.LevelDebug
	case "info", "":
		return slog.LevelInfo
	case "warn":
		return slog.LevelWarn
	case "error":
		return slog.LevelError
	default:
		return slog.LevelInfo
	}
}

func newHandler(w io.Writer, format string, level slog.Level) slog.Handler {
	opts := &slog.HandlerOptions{Level: level}
	if format == "json" {
		return slog.NewJSONHandler(w, opts)
	}
	return slog.NewTextHandler(w, opts)
}
