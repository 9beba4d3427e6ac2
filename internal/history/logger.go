package history

import (
	"context"
	"errors"
	"log/slog"
	"sync"
	"time"

	"github.com/google/uuid"
)

const writeTimeout = 5 * time.Second

// ErrClosed is returned by Shutdown on a logger that already stopped.
var ErrClosed = errors.New("history logger closed")

// Store persists gated records.
type Store interface {
	Save(ctx context.Context, rec Record) error
}

// Sampler receives one timing sample per persisted record.
type Sampler interface {
	Append(sample Sample) error
}

// Logger queues records and writes them from one goroutine.
type Logger struct {
	store   Store
	sampler Sampler
	logger  *slog.Logger

	mu       sync.Mutex
	settings Settings
	queue    []Record
	closing  bool
	signal   chan struct{}
	done     chan struct{}
}

// NewLogger starts the writer goroutine. sampler may be nil.
func NewLogger(store Store, sampler Sampler, settings Settings, logger *slog.Logger) *Logger {
	l := &Logger{
		store:    store,
		sampler:  sampler,
		logger:   logger,
		settings: settings,
		signal:   make(chan struct{}, 1),
		done:     make(chan struct{}),
	}
	go l.run()
	return l
}

// Settings returns the active privacy settings.
func (l *Logger) Settings() Settings {
	l.mu.Lock()
	defer l.mu.Unlock()
	return l.settings
}

// SetSettings applies to records enqueued after the call.
func (l *Logger) SetSettings(s Settings) {
	l.mu.Lock()
	defer l.mu.Unlock()
	l.settings = s
}

// Pending reports queued records not yet handed to the store.
func (l *Logger) Pending() int {
	l.mu.Lock()
	defer l.mu.Unlock()
	return len(l.queue)
}

// Enqueue gates rec through the privacy settings and queues it. It never blocks on I/O.
func (l *Logger) Enqueue(rec Record) {
	l.mu.Lock()
	if l.closing {
		l.mu.Unlock()
		l.logWarn("history record dropped after shutdown", "session_id", rec.SessionID)
		return
	}
	gated, ok := l.settings.apply(rec)
	if !ok {
		l.mu.Unlock()
		return
	}
	if gated.ID == "" {
		gated.ID = uuid.NewString()
	}
	l.queue = append(l.queue, gated)
	l.mu.Unlock()

	l.wake()
}

// Shutdown waits until every record enqueued before the call is written.
func (l *Logger) Shutdown(ctx context.Context) error {
	l.mu.Lock()
	if l.closing {
		l.mu.Unlock()
		select {
		case <-l.done:
			return nil
		case <-ctx.Done():
			return ctx.Err()
		}
	}
	l.closing = true
	l.mu.Unlock()
	l.wake()

	select {
	case <-l.done:
		return nil
	case <-ctx.Done():
		return ctx.Err()
	}
}

func (l *Logger) wake() {
	select {
	case l.signal <- struct{}{}:
	default:
	}
}

func (l *Logger) run() {
	defer close(l.done)
	for {
		rec, ok, closing := l.next()
		if ok {
			l.write(rec)
			continue
		}
		if closing {
			return
		}
		<-l.signal
	}
}

func (l *Logger) next() (Record, bool, bool) {
	l.mu.Lock()
	defer l.mu.Unlock()
	if len(l.queue) == 0 {
		return Record{}, false, l.closing
	}
	rec := l.queue[0]
	l.queue[0] = Record{}
	l.queue = l.queue[1:]
	return rec, true, l.closing
}

func (l *Logger) write(rec Record) {
	ctx, cancel := context.WithTimeout(context.Background(), writeTimeout)
	defer cancel()

	if l.store != nil {
		if err := l.store.Save(ctx, rec); err != nil {
			perr := &PersistenceError{Op: "save", Err: err}
			l.logWarn("history write failed", "session_id", rec.SessionID, "error", perr.Error())
		}
	}
	if l.sampler != nil {
		if err := l.sampler.Append(sampleOf(rec)); err != nil {
			perr := &PersistenceError{Op: "metrics", Err: err}
			l.logWarn("metrics append failed", "session_id", rec.SessionID, "error", perr.Error())
		}
	}
}

func (l *Logger) logWarn(msg string, args ...any) {
	if l.logger == nil {
		return
	}
	l.logger.Warn(msg, args...)
}
