// Package logger provides structured logging for conduit and conduitd
// using log/slog.
package logger

import (
	"fmt"
	"io"
	"log/slog"
	"os"
	"strings"

	"gopkg.in/natefinch/lumberjack.v2"

	"conduit/internal/config"
)

// Logger wraps slog.Logger with level control and writer ownership.
type Logger struct {
	*slog.Logger
	level  *slog.LevelVar
	closer io.Closer
}

// New creates a Logger from the given configuration.
func New(cfg config.LogConfig) (*Logger, error) {
	writers, closer, err := buildWriters(cfg)
	if err != nil {
		return nil, fmt.Errorf("failed to build log writers: %w", err)
	}

	level := new(slog.LevelVar)
	if err := setLevel(level, cfg.Level); err != nil {
		if closer != nil {
			closer.Close()
		}
		return nil, err
	}

	var handler slog.Handler
	switch strings.ToLower(cfg.Format) {
	case "json":
		handler = slog.NewJSONHandler(writers, &slog.HandlerOptions{Level: level})
	case "pretty":
		handler = NewConsoleHandler(writers, &ConsoleHandlerOptions{
			Level:   level,
			NoColor: cfg.NoColor,
		})
	default: // "text" or anything else
		handler = slog.NewTextHandler(writers, &slog.HandlerOptions{Level: level})
	}

	return &Logger{
		Logger: slog.New(handler),
		level:  level,
		closer: closer,
	}, nil
}

// SetLevel changes the minimum level at runtime. Used by the config
// watcher for live reloads.
func (l *Logger) SetLevel(level string) error {
	return setLevel(l.level, level)
}

// Close closes any open file handles.
func (l *Logger) Close() error {
	if l.closer != nil {
		return l.closer.Close()
	}
	return nil
}

// With returns a new Logger with the given attributes.
func (l *Logger) With(attrs ...any) *Logger {
	return &Logger{
		Logger: l.Logger.With(attrs...),
		level:  l.level,
		closer: nil, // Don't transfer ownership of closer
	}
}

func setLevel(v *slog.LevelVar, s string) error {
	switch strings.ToLower(s) {
	case "debug":
		v.Set(slog.LevelDebug)
	case "info", "":
		v.Set(slog.LevelInfo)
	case "warn", "warning":
		v.Set(slog.LevelWarn)
	case "error":
		v.Set(slog.LevelError)
	default:
		return fmt.Errorf("invalid log level: %q", s)
	}
	return nil
}

// buildWriters creates the appropriate io.Writer based on configuration.
func buildWriters(cfg config.LogConfig) (io.Writer, io.Closer, error) {
	var writers []io.Writer
	var closers []io.Closer

	switch strings.ToLower(cfg.Output) {
	case "stdout":
		writers = append(writers, os.Stdout)
	case "stderr", "":
		writers = append(writers, os.Stderr)
	default:
		// Treat as a file path.
		lj := newLumberjack(cfg.Output, cfg)
		writers = append(writers, lj)
		closers = append(closers, lj)
	}

	// Additional file output if configured.
	if cfg.FilePath != "" {
		lj := newLumberjack(cfg.FilePath, cfg)
		writers = append(writers, lj)
		closers = append(closers, lj)
	}

	var w io.Writer
	switch len(writers) {
	case 1:
		w = writers[0]
	default:
		w = io.MultiWriter(writers...)
	}

	var c io.Closer
	if len(closers) == 1 {
		c = closers[0]
	} else if len(closers) > 1 {
		c = multiCloser(closers)
	}

	return w, c, nil
}

func newLumberjack(path string, cfg config.LogConfig) *lumberjack.Logger {
	return &lumberjack.Logger{
		Filename:   path,
		MaxSize:    cfg.MaxSizeMB,
		MaxBackups: cfg.MaxBackups,
		MaxAge:     cfg.MaxAgeDays,
		Compress:   true,
	}
}

type multiCloser []io.Closer

func (m multiCloser) Close() error {
	var first error
	for _, c := range m {
		if err := c.Close(); err != nil && first == nil {
			first = err
		}
	}
	return first
}
