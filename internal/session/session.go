// Package session owns the pipeline state machine and the in-flight session it gates.
package session

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"sync"
	"time"

	"github.com/google/uuid"

	"github.com/rbright/voxd/internal/fsm"
)

var (
	// ErrMicrophoneMuted blocks entry into capture without moving to the error state.
	ErrMicrophoneMuted = errors.New("microphone is muted")
	// ErrStaleSession indicates a session was superseded by a reset.
	ErrStaleSession = errors.New("session is no longer active")
)

// BusyError reports a start attempt while another session or warmup holds the pipeline.
type BusyError struct {
	State fsm.State
}

func (e *BusyError) Error() string {
	return fmt.Sprintf("pipeline busy: %s", e.State)
}

// Session is one in-flight pipeline execution.
type Session struct {
	ID        string
	Mode      Mode
	DeviceID  string
	StartedAt time.Time

	// Fields below are written by the owning pipeline worker only.
	CapturedInput   string
	RawText         string
	TransformedText string
	LastError       error

	mu      sync.Mutex
	timings map[string]time.Duration
}

// Record stores the duration of one named stage.
func (s *Session) Record(stage string, d time.Duration) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.timings == nil {
		s.timings = make(map[string]time.Duration)
	}
	s.timings[stage] = d
}

// Timings returns a copy of the recorded stage durations.
func (s *Session) Timings() map[string]time.Duration {
	s.mu.Lock()
	defer s.mu.Unlock()
	out := make(map[string]time.Duration, len(s.timings))
	for k, v := range s.timings {
		out[k] = v
	}
	return out
}

// Change describes one applied state transition.
type Change struct {
	From      fsm.State
	To        fsm.State
	SessionID string
	Mode      Mode
	Activity  uint64
	At        time.Time
}

// Notifier receives state changes synchronously, in transition order.
// Implementations must not call back into the Machine.
type Notifier interface {
	StateChanged(Change)
}

// NotifierFunc adapts a function to the Notifier interface.
type NotifierFunc func(Change)

func (f NotifierFunc) StateChanged(c Change) {
	f(c)
}

// MuteProbe reports whether the capture device is muted.
type MuteProbe interface {
	Muted(ctx context.Context, deviceID string) (bool, error)
}

type noopNotifier struct{}

func (noopNotifier) StateChanged(Change) {}

// Machine is the single source of truth for pipeline state.
type Machine struct {
	logger   *slog.Logger
	notifier Notifier
	mute     MuteProbe

	mu       sync.RWMutex
	state    fsm.State
	current  *Session
	activity uint64
}

// NewMachine constructs an idle state machine.
func NewMachine(logger *slog.Logger, notifier Notifier, mute MuteProbe) *Machine {
	if notifier == nil {
		notifier = noopNotifier{}
	}
	return &Machine{
		logger:   logger,
		notifier: notifier,
		mute:     mute,
		state:    fsm.StateIdle,
	}
}

// State returns the current state snapshot.
func (m *Machine) State() fsm.State {
	m.mu.RLock()
	defer m.mu.RUnlock()
	return m.state
}

// Activity returns how many sessions have left idle since startup.
func (m *Machine) Activity() uint64 {
	m.mu.RLock()
	defer m.mu.RUnlock()
	return m.activity
}

// Current returns the in-flight session, if any.
func (m *Machine) Current() *Session {
	m.mu.RLock()
	defer m.mu.RUnlock()
	return m.current
}

// Begin starts a new session when the pipeline is idle or recovering from error.
func (m *Machine) Begin(ctx context.Context, mode Mode, deviceID string) (*Session, error) {
	if state := m.State(); !fsm.CanStart(state) {
		return nil, &BusyError{State: state}
	}

	if m.mute != nil {
		muted, err := m.mute.Muted(ctx, deviceID)
		if err != nil {
			m.logWarn("mute probe failed", "error", err.Error())
		} else if muted {
			return nil, ErrMicrophoneMuted
		}
	}

	m.mu.Lock()
	defer m.mu.Unlock()

	if !fsm.CanStart(m.state) {
		return nil, &BusyError{State: m.state}
	}

	target := fsm.StateCapturing
	if mode == ModeNote {
		target = fsm.StateNote
	}

	sess := &Session{
		ID:        uuid.NewString(),
		Mode:      mode,
		DeviceID:  deviceID,
		StartedAt: time.Now(),
	}
	prev := m.current
	m.current = sess
	if err := m.transitionLocked(target); err != nil {
		m.current = prev
		return nil, err
	}
	return sess, nil
}

// Stop ends capture and hands the session to the pipeline.
// Stopping while not capturing is a no-op that reports ok=false without error.
func (m *Machine) Stop() (*Session, bool, error) {
	m.mu.Lock()
	defer m.mu.Unlock()

	if !fsm.IsCapturing(m.state) {
		return nil, false, nil
	}
	sess := m.current
	if err := m.transitionLocked(fsm.StateTransforming); err != nil {
		return nil, false, err
	}
	return sess, true, nil
}

// Cancel discards a capturing session and returns to idle.
func (m *Machine) Cancel() (*Session, bool) {
	m.mu.Lock()
	defer m.mu.Unlock()

	if !fsm.IsCapturing(m.state) {
		return nil, false
	}
	sess := m.current
	_ = m.transitionLocked(fsm.StateIdle)
	return sess, true
}

// Advance moves sess through the pipeline; terminal states release it.
func (m *Machine) Advance(sess *Session, to fsm.State) error {
	m.mu.Lock()
	defer m.mu.Unlock()

	if sess == nil || m.current != sess {
		return ErrStaleSession
	}
	return m.transitionLocked(to)
}

// Reset forces the pipeline back to idle and returns any abandoned session.
func (m *Machine) Reset() *Session {
	m.mu.Lock()
	defer m.mu.Unlock()

	abandoned := m.current
	if m.state != fsm.StateIdle {
		_ = m.transitionLocked(fsm.StateIdle)
	}
	m.current = nil
	return abandoned
}

// BeginWarmup enters the warmup state from idle.
func (m *Machine) BeginWarmup() error {
	m.mu.Lock()
	defer m.mu.Unlock()

	if m.state != fsm.StateIdle {
		return &BusyError{State: m.state}
	}
	return m.transitionLocked(fsm.StateWarmup)
}

// EndWarmup leaves warmup for idle, or error when warmup failed.
func (m *Machine) EndWarmup(warmErr error) {
	m.mu.Lock()
	defer m.mu.Unlock()

	if m.state != fsm.StateWarmup {
		return
	}
	if warmErr != nil {
		_ = m.transitionLocked(fsm.StateError)
		return
	}
	_ = m.transitionLocked(fsm.StateIdle)
}

// transitionLocked applies one edge, updates activity, and notifies. Caller holds mu.
func (m *Machine) transitionLocked(to fsm.State) error {
	from := m.state
	next, err := fsm.Transition(from, to)
	if err != nil {
		return err
	}
	m.state = next
	if from == fsm.StateIdle && next != fsm.StateWarmup {
		m.activity++
	}

	change := Change{
		From:     from,
		To:       next,
		Activity: m.activity,
		At:       time.Now(),
	}
	if m.current != nil {
		change.SessionID = m.current.ID
		change.Mode = m.current.Mode
	}
	if next == fsm.StateIdle || next == fsm.StateError {
		m.current = nil
	}

	m.notifier.StateChanged(change)
	return nil
}

func (m *Machine) logWarn(msg string, args ...any) {
	if m.logger == nil {
		return
	}
	m.logger.Warn(msg, args...)
}
