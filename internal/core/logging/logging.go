// Package logging provides the process-wide structured logger.
// Logs rotate through lumberjack; before Init runs (and in tests)
// everything is discarded.
package logging

import (
	"context"
	"io"
	"log/slog"
	"path/filepath"
	"sync"

	"gopkg.in/natefinch/lumberjack.v2"
)

// Config holds logging configuration.
type Config struct {
	// LogDir is the directory for log files. Empty discards logs.
	LogDir string

	// Level is the minimum level: "debug", "info", "warn", "error".
	Level string

	// Format is "json" (default) or "text".
	Format string

	// MaxSizeMB before rotation (default 10), MaxBackups rotated
	// files kept (default 3).
	MaxSizeMB  int
	MaxBackups int
}

var (
	mu          sync.RWMutex
	root        *slog.Logger
	lumberjackW *lumberjack.Logger
)

// Init configures the global logger. Safe to call once at startup.
func Init(cfg Config) {
	mu.Lock()
	defer mu.Unlock()

	if cfg.MaxSizeMB <= 0 {
		cfg.MaxSizeMB = 10
	}
	if cfg.MaxBackups <= 0 {
		cfg.MaxBackups = 3
	}

	level := slog.LevelInfo
	switch cfg.Level {
	case "debug":
		level = slog.LevelDebug
	case "warn":
		level = slog.LevelWarn
	case "error":
		level = slog.LevelError
	}

	var w io.Writer = io.Discard
	if cfg.LogDir != "" {
		lumberjackW = &lumberjack.Logger{
			Filename:   filepath.Join(cfg.LogDir, "cchistory.log"),
			MaxSize:    cfg.MaxSizeMB,
			MaxBackups: cfg.MaxBackups,
		}
		w = lumberjackW
	}

	opts := &slog.HandlerOptions{Level: level}
	if cfg.Format == "text" {
		root = slog.New(slog.NewTextHandler(w, opts))
	} else {
		root = slog.New(slog.NewJSONHandler(w, opts))
	}
}

// Logger returns the global logger, or a discard logger before Init.
func Logger() *slog.Logger {
	mu.RLock()
	defer mu.RUnlock()
	if root == nil {
		return slog.New(slog.NewJSONHandler(io.Discard, nil))
	}
	return root
}

// ForComponent returns a sub-logger tagged with the component name.
// The handler is resolved at log time so loggers created before Init
// pick up the real destination.
func ForComponent(name string) *slog.Logger {
	return slog.New(&lateHandler{component: name})
}

// Shutdown closes the rotating writer.
func Shutdown() {
	mu.Lock()
	defer mu.Unlock()
	if lumberjackW != nil {
		_ = lumberjackW.Close()
		lumberjackW = nil
	}
	root = nil
}

// lateHandler delegates to the current global handler at log time.
type lateHandler struct {
	component string
	attrs     []slog.Attr
	group     string
}

func (h *lateHandler) Enabled(ctx context.Context, level slog.Level) bool {
	return Logger().Handler().Enabled(ctx, level)
}

func (h *lateHandler) Handle(ctx context.Context, r slog.Record) error {
	handler := Logger().Handler().WithAttrs([]slog.Attr{slog.String("component", h.component)})
	if len(h.attrs) > 0 {
		handler = handler.WithAttrs(h.attrs)
	}
	if h.group != "" {
		handler = handler.WithGroup(h.group)
	}
	return handler.Handle(ctx, r)
}

func (h *lateHandler) WithAttrs(attrs []slog.Attr) slog.Handler {
	merged := make([]slog.Attr, 0, len(h.attrs)+len(attrs))
	merged = append(merged, h.attrs...)
	merged = append(merged, attrs...)
	return &lateHandler{component: h.component, attrs: merged, group: h.group}
}

func (h *lateHandler) WithGroup(name string) slog.Handler {
	return &lateHandler{component: h.component, attrs: h.attrs, group: name}
}
