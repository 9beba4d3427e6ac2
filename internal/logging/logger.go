// Package logging configures the runtime JSONL log and the optional console log.
package logging

import (
	"context"
	"errors"
	"io"
	"log/slog"
	"os"
	"path/filepath"
	"strings"

	"github.com/adrg/xdg"
	charmlog "github.com/charmbracelet/log"
)

// Runtime bundles the configured logger and its open file handle lifecycle.
type Runtime struct {
	Logger *slog.Logger
	Path   string
	closer io.Closer
}

// Close flushes and closes the logger output sink.
func (r Runtime) Close() error {
	if r.closer == nil {
		return nil
	}
	return r.closer.Close()
}

// Options selects the log file and console behavior.
type Options struct {
	// Path overrides the default $XDG_STATE_HOME/voxd/log.jsonl.
	Path string
	// Console receives human-readable logs when non-nil.
	Console io.Writer
	Verbose bool
}

// New builds a JSONL logger rooted at the resolved state path, fanned out to the console when requested.
func New(opts Options) (Runtime, error) {
	path := strings.TrimSpace(opts.Path)
	if path == "" {
		path = DefaultPath()
	}
	if err := os.MkdirAll(filepath.Dir(path), 0o700); err != nil {
		return Runtime{}, err
	}

	f, err := os.OpenFile(path, os.O_APPEND|os.O_CREATE|os.O_WRONLY, 0o600)
	if err != nil {
		return Runtime{}, err
	}

	level := slog.LevelInfo
	if opts.Verbose {
		level = slog.LevelDebug
	}
	handlers := []slog.Handler{slog.NewJSONHandler(f, &slog.HandlerOptions{Level: level})}
	if opts.Console != nil {
		consoleLevel := charmlog.InfoLevel
		if opts.Verbose {
			consoleLevel = charmlog.DebugLevel
		}
		handlers = append(handlers, charmlog.NewWithOptions(opts.Console, charmlog.Options{
			Level:           consoleLevel,
			ReportTimestamp: true,
			Prefix:          "voxd",
		}))
	}

	return Runtime{Logger: slog.New(fanout(handlers)), Path: path, closer: f}, nil
}

// DefaultPath returns the runtime log location.
func DefaultPath() string {
	return filepath.Join(xdg.StateHome, "voxd", "log.jsonl")
}

func fanout(handlers []slog.Handler) slog.Handler {
	if len(handlers) == 1 {
		return handlers[0]
	}
	return multiHandler(handlers)
}

// multiHandler sends each record to every handler that accepts its level.
type multiHandler []slog.Handler

func (m multiHandler) Enabled(ctx context.Context, level slog.Level) bool {
	for _, h := range m {
		if h.Enabled(ctx, level) {
			return true
		}
	}
	return false
}

func (m multiHandler) Handle(ctx context.Context, rec slog.Record) error {
	var errs []error
	for _, h := range m {
		if !h.Enabled(ctx, rec.Level) {
			continue
		}
		if err := h.Handle(ctx, rec.Clone()); err != nil {
			errs = append(errs, err)
		}
	}
	return errors.Join(errs...)
}

func (m multiHandler) WithAttrs(attrs []slog.Attr) slog.Handler {
	out := make(multiHandler, len(m))
	for i, h := range m {
		out[i] = h.WithAttrs(attrs)
	}
	return out
}

func (m multiHandler) WithGroup(name string) slog.Handler {
	out := make(multiHandler, len(m))
	for i, h := range m {
		out[i] = h.WithGroup(name)
	}
	return out
}
