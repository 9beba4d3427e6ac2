// Package notes persists note-mode output as timestamped markdown entries.
package notes

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"os"
	"path/filepath"
	"strings"
	"sync"
	"time"

	"github.com/cenkalti/backoff/v5"
	"github.com/spf13/afero"
)

// ErrEmptyNote rejects whitespace-only notes.
var ErrEmptyNote = errors.New("note is empty")

// FileSink appends notes to one markdown file.
type FileSink struct {
	fs   afero.Fs
	path string
	now  func() time.Time

	mu sync.Mutex
}

// NewFileSink writes to path on fs. A nil fs uses the OS filesystem.
func NewFileSink(fs afero.Fs, path string) *FileSink {
	if fs == nil {
		fs = afero.NewOsFs()
	}
	return &FileSink{fs: fs, path: path, now: time.Now}
}

// Path returns the file notes are appended to.
func (s *FileSink) Path() string { return s.path }

// Append writes one entry and returns the file path.
func (s *FileSink) Append(ctx context.Context, text string) (string, error) {
	text = strings.TrimSpace(text)
	if text == "" {
		return "", ErrEmptyNote
	}
	if err := ctx.Err(); err != nil {
		return "", err
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	if err := s.fs.MkdirAll(filepath.Dir(s.path), 0o700); err != nil {
		return "", fmt.Errorf("create notes dir: %w", err)
	}
	f, err := s.fs.OpenFile(s.path, os.O_CREATE|os.O_APPEND|os.O_WRONLY, 0o600)
	if err != nil {
		return "", fmt.Errorf("open notes %q: %w", s.path, err)
	}

	entry := formatEntry(s.now(), text)
	if _, err := f.Write([]byte(entry)); err != nil {
		_ = f.Close()
		return "", fmt.Errorf("append note: %w", err)
	}
	if err := f.Close(); err != nil {
		return "", fmt.Errorf("close notes %q: %w", s.path, err)
	}
	return s.path, nil
}

func formatEntry(at time.Time, text string) string {
	return fmt.Sprintf("## %s\n\n%s\n\n", at.Format("2006-01-02 15:04"), text)
}

// Appender is anything that stores a note and reports where.
type Appender interface {
	Append(ctx context.Context, text string) (string, error)
}

// RetryingSink retries a flaky Appender with exponential backoff.
type RetryingSink struct {
	next     Appender
	maxTries uint
	initial  time.Duration
	logger   *slog.Logger
}

// NewRetryingSink wraps next. maxTries below 1 means 3.
func NewRetryingSink(next Appender, maxTries uint, initial time.Duration, logger *slog.Logger) *RetryingSink {
	if maxTries == 0 {
		maxTries = 3
	}
	if initial <= 0 {
		initial = 100 * time.Millisecond
	}
	return &RetryingSink{next: next, maxTries: maxTries, initial: initial, logger: logger}
}

// Append retries next until it succeeds, the tries run out, or ctx ends.
func (s *RetryingSink) Append(ctx context.Context, text string) (string, error) {
	policy := backoff.NewExponentialBackOff()
	policy.InitialInterval = s.initial

	return backoff.Retry(ctx, func() (string, error) {
		path, err := s.next.Append(ctx, text)
		if errors.Is(err, ErrEmptyNote) {
			return "", backoff.Permanent(err)
		}
		return path, err
	},
		backoff.WithBackOff(policy),
		backoff.WithMaxTries(s.maxTries),
		backoff.WithNotify(func(err error, delay time.Duration) {
			if s.logger != nil {
				s.logger.Warn("note append failed; retrying", "error", err.Error(), "delay_ms", delay.Milliseconds())
			}
		}),
	)
}
