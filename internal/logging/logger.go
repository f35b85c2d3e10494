// Package logging builds the slog logger used by chatbox. The TUI owns the
// terminal, so records go to a file or nowhere.
package logging

import (
	"io"
	"log/slog"
	"os"
	"path/filepath"
	"strings"

	"github.com/diogo/chatbox/internal/config"
)

// New returns a logger writing to w at the given level. "off" discards.
func New(w io.Writer, level string, json bool) *slog.Logger {
	lvl, enabled := parseLevel(level)
	if !enabled || w == nil {
		return slog.New(slog.DiscardHandler)
	}

	opts := &slog.HandlerOptions{Level: lvl}
	var handler slog.Handler
	if json {
		handler = slog.NewJSONHandler(w, opts)
	} else {
		handler = slog.NewTextHandler(w, opts)
	}
	return slog.New(handler)
}

// Open builds the logger described by cfg. The returned closer must be
// called on exit.
func Open(cfg config.Config) (*slog.Logger, io.Closer, error) {
	if _, enabled := parseLevel(cfg.LogLevel); !enabled {
		return New(nil, "off", false), nopCloser{}, nil
	}

	path, err := config.GetLogPath(cfg)
	if err != nil {
		return nil, nil, err
	}
	if err := os.MkdirAll(filepath.Dir(path), 0o700); err != nil {
		return nil, nil, err
	}

	f, err := os.OpenFile(path, os.O_CREATE|os.O_WRONLY|os.O_APPEND, 0o600)
	if err != nil {
		return nil, nil, err
	}

	return New(f, cfg.LogLevel, false), f, nil
}

func parseLevel(s string) (slog.Level, bool) {
	switch strings.ToLower(s) {
	case "", "off", "none":
		return 0, false
	case "debug":
		return slog.LevelDebug, true
	case "warn":
		return slog.LevelWarn, true
	case "error":
		return slog.LevelError, true
	default:
		return slog.LevelInfo, true
	}
}

type nopCloser struct{}

func (nopCloser) Close() error { return nil }
