package session

import (
	"context"
	"errors"
	"sync"
	"sync/atomic"
	"testing"

	"github.com/rbright/voxd/internal/fsm"
	"github.com/stretchr/testify/require"
)

type recordingNotifier struct {
	mu      sync.Mutex
	changes []Change
}

func (r *recordingNotifier) StateChanged(c Change) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.changes = append(r.changes, c)
}

func (r *recordingNotifier) states() []fsm.State {
	r.mu.Lock()
	defer r.mu.Unlock()
	out := make([]fsm.State, 0, len(r.changes))
	for _, c := range r.changes {
		out = append(out, c.To)
	}
	return out
}

type fakeMute struct {
	muted bool
	err   error
	calls atomic.Int32
}

func (f *fakeMute) Muted(context.Context, string) (bool, error) {
	f.calls.Add(1)
	return f.muted, f.err
}

func TestBeginEntersCapturingAndNotifies(t *testing.T) {
	notifier := &recordingNotifier{}
	m := NewMachine(nil, notifier, nil)

	sess, err := m.Begin(context.Background(), ModeStandard, "")
	require.NoError(t, err)
	require.NotEmpty(t, sess.ID)
	require.Equal(t, fsm.StateCapturing, m.State())
	require.Same(t, sess, m.Current())
	require.Equal(t, []fsm.State{fsm.StateCapturing}, notifier.states())
	require.Equal(t, sess.ID, notifier.changes[0].SessionID)
	require.Equal(t, uint64(1), notifier.changes[0].Activity)
}

func TestBeginNoteModeEntersNoteState(t *testing.T) {
	m := NewMachine(nil, nil, nil)

	_, err := m.Begin(context.Background(), ModeNote, "")
	require.NoError(t, err)
	require.Equal(t, fsm.StateNote, m.State())
}

func TestBeginWhileBusyReturnsBusyError(t *testing.T) {
	m := NewMachine(nil, nil, nil)
	_, err := m.Begin(context.Background(), ModeStandard, "")
	require.NoError(t, err)

	_, err = m.Begin(context.Background(), ModeQuestion, "")
	var busy *BusyError
	require.ErrorAs(t, err, &busy)
	require.Equal(t, fsm.StateCapturing, busy.State)
}

func TestBeginMutedDoesNotEnterError(t *testing.T) {
	notifier := &recordingNotifier{}
	m := NewMachine(nil, notifier, &fakeMute{muted: true})

	_, err := m.Begin(context.Background(), ModeStandard, "")
	require.ErrorIs(t, err, ErrMicrophoneMuted)
	require.Equal(t, fsm.StateIdle, m.State())
	require.Empty(t, notifier.states())
	require.Zero(t, m.Activity())
}

func TestBeginMuteProbeErrorIsNotFatal(t *testing.T) {
	m := NewMachine(nil, nil, &fakeMute{err: errors.New("pulse unavailable")})

	_, err := m.Begin(context.Background(), ModeStandard, "")
	require.NoError(t, err)
	require.Equal(t, fsm.StateCapturing, m.State())
}

func TestBeginFromErrorIsAllowed(t *testing.T) {
	m := NewMachine(nil, nil, nil)
	sess, err := m.Begin(context.Background(), ModeStandard, "")
	require.NoError(t, err)
	_, _, err = m.Stop()
	require.NoError(t, err)
	require.NoError(t, m.Advance(sess, fsm.StateError))
	require.Nil(t, m.Current())

	_, err = m.Begin(context.Background(), ModeStandard, "")
	require.NoError(t, err)
	require.Equal(t, fsm.StateCapturing, m.State())
	require.Equal(t, uint64(1), m.Activity(), "error -> capturing does not leave idle")
}

func TestStopWhenNotCapturingIsIdempotent(t *testing.T) {
	notifier := &recordingNotifier{}
	m := NewMachine(nil, notifier, nil)

	for i := 0; i < 3; i++ {
		sess, stopped, err := m.Stop()
		require.NoError(t, err)
		require.False(t, stopped)
		require.Nil(t, sess)
	}
	require.Equal(t, fsm.StateIdle, m.State())
	require.Empty(t, notifier.states())
}

func TestStopHandsSessionToPipeline(t *testing.T) {
	m := NewMachine(nil, nil, nil)
	started, err := m.Begin(context.Background(), ModeStandard, "")
	require.NoError(t, err)

	sess, stopped, err := m.Stop()
	require.NoError(t, err)
	require.True(t, stopped)
	require.Same(t, started, sess)
	require.Equal(t, fsm.StateTransforming, m.State())

	_, stopped, err = m.Stop()
	require.NoError(t, err)
	require.False(t, stopped, "duplicate stop is tolerated")
}

func TestCancelReturnsToIdle(t *testing.T) {
	m := NewMachine(nil, nil, nil)
	started, err := m.Begin(context.Background(), ModeStandard, "")
	require.NoError(t, err)

	sess, ok := m.Cancel()
	require.True(t, ok)
	require.Same(t, started, sess)
	require.Equal(t, fsm.StateIdle, m.State())
	require.Nil(t, m.Current())

	_, ok = m.Cancel()
	require.False(t, ok)
}

func TestAdvanceRejectsStaleSession(t *testing.T) {
	m := NewMachine(nil, nil, nil)
	sess, err := m.Begin(context.Background(), ModeStandard, "")
	require.NoError(t, err)
	_, _, err = m.Stop()
	require.NoError(t, err)

	abandoned := m.Reset()
	require.Same(t, sess, abandoned)
	require.Equal(t, fsm.StateIdle, m.State())

	require.ErrorIs(t, m.Advance(sess, fsm.StateDelivering), ErrStaleSession)
	require.Equal(t, fsm.StateIdle, m.State())
}

func TestActivityCountsOnlyLeavingIdleForSessions(t *testing.T) {
	m := NewMachine(nil, nil, nil)

	require.NoError(t, m.BeginWarmup())
	m.EndWarmup(nil)
	require.Zero(t, m.Activity())

	for i := 0; i < 3; i++ {
		sess, err := m.Begin(context.Background(), ModeStandard, "")
		require.NoError(t, err)
		_, _, err = m.Stop()
		require.NoError(t, err)
		require.NoError(t, m.Advance(sess, fsm.StateDelivering))
		require.NoError(t, m.Advance(sess, fsm.StateIdle))
	}
	require.Equal(t, uint64(3), m.Activity())
}

func TestWarmupTransitions(t *testing.T) {
	notifier := &recordingNotifier{}
	m := NewMachine(nil, notifier, nil)

	require.NoError(t, m.BeginWarmup())
	require.Equal(t, fsm.StateWarmup, m.State())

	_, err := m.Begin(context.Background(), ModeStandard, "")
	var busy *BusyError
	require.ErrorAs(t, err, &busy)
	require.Equal(t, fsm.StateWarmup, busy.State)

	m.EndWarmup(errors.New("model load failed"))
	require.Equal(t, fsm.StateError, m.State())

	err = m.BeginWarmup()
	require.ErrorAs(t, err, &busy)

	require.Equal(t, []fsm.State{fsm.StateWarmup, fsm.StateError}, notifier.states())
}

func TestConcurrentBeginKeepsSingleFlight(t *testing.T) {
	m := NewMachine(nil, nil, nil)

	var (
		wg      sync.WaitGroup
		started atomic.Int32
	)
	for i := 0; i < 32; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			if _, err := m.Begin(context.Background(), ModeStandard, ""); err == nil {
				started.Add(1)
			}
		}()
	}
	wg.Wait()

	require.Equal(t, int32(1), started.Load())
	require.Equal(t, fsm.StateCapturing, m.State())
}

func TestRandomStartStopSequencesNeverOverlap(t *testing.T) {
	m := NewMachine(nil, nil, nil)

	var (
		wg     sync.WaitGroup
		active atomic.Int32
		peak   atomic.Int32
	)
	for worker := 0; worker < 8; worker++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			for i := 0; i < 50; i++ {
				sess, err := m.Begin(context.Background(), ModeStandard, "")
				if err != nil {
					_, _, _ = m.Stop()
					continue
				}
				n := active.Add(1)
				for {
					p := peak.Load()
					if n <= p || peak.CompareAndSwap(p, n) {
						break
					}
				}
				active.Add(-1)
				if stopped, ok, _ := m.Stop(); ok {
					_ = m.Advance(stopped, fsm.StateIdle)
				} else {
					_ = m.Advance(sess, fsm.StateIdle)
				}
			}
		}()
	}
	wg.Wait()

	require.Equal(t, int32(1), peak.Load())
}

func TestParseMode(t *testing.T) {
	mode, err := ParseMode("")
	require.NoError(t, err)
	require.Equal(t, ModeStandard, mode)

	mode, err = ParseMode("QA")
	require.NoError(t, err)
	require.Equal(t, ModeQuestion, mode)

	mode, err = ParseMode("refine_by_instruction")
	require.NoError(t, err)
	require.Equal(t, ModeRefineInstruction, mode)

	_, err = ParseMode("karaoke")
	require.Error(t, err)
}

func TestSessionTimingsAreCopied(t *testing.T) {
	sess := &Session{}
	sess.Record("transcribe", 5)
	timings := sess.Timings()
	timings["transcribe"] = 99
	require.EqualValues(t, 5, sess.Timings()["transcribe"])
}
