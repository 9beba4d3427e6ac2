// Package pipeline runs captured sessions through transcription, transformation, and delivery.
package pipeline

import (
	"context"
	"errors"
	"fmt"
	"io/fs"
	"log/slog"
	"runtime/debug"
	"strings"
	"sync"
	"sync/atomic"
	"time"

	"github.com/spf13/afero"

	"github.com/rbright/voxd/internal/backend"
	"github.com/rbright/voxd/internal/fsm"
	"github.com/rbright/voxd/internal/history"
	"github.com/rbright/voxd/internal/protocol"
	"github.com/rbright/voxd/internal/router"
	"github.com/rbright/voxd/internal/session"
)

// Stage names recorded in session timings.
const (
	StageCapture    = "capture"
	StageTranscribe = "transcribe"
	StageSelection  = "selection"
	StageTransform  = "transform"
	StageTranslate  = "translate"
	StageDeliver    = "deliver"
	StageNote       = "note"
	StageWarmup     = "warmup"
	stageInternal   = "internal"
)

const (
	DefaultSelectionTimeout = 750 * time.Millisecond
	warmupTimeout           = 2 * time.Minute
)

// ErrEmptyText rejects blank injected text.
var ErrEmptyText = errors.New("text is empty")

// Deps are the collaborators a Runner drives. Selection, Notes, Recorder, and Events may be nil.
type Deps struct {
	Machine     *session.Machine
	Capture     Capturer
	Transcriber Transcriber
	Router      Router
	Deliverer   Deliverer
	Selection   SelectionReader
	Notes       NoteSink
	Recorder    Recorder
	Events      Events
}

// Options tune a Runner.
type Options struct {
	SelectionTimeout time.Duration
	// Language is the translate-mode target.
	Language string
	// FS removes capture artifacts. Defaults to the OS filesystem.
	FS     afero.Fs
	Logger *slog.Logger
}

// Runner owns pipeline goroutines and the consecutive transform failure counter.
type Runner struct {
	deps   Deps
	opts   Options
	logger *slog.Logger
	base   context.Context

	failures atomic.Int64
	wg       sync.WaitGroup
}

// NewRunner builds a Runner whose pipelines outlive ctx cancellation but keep its values.
func NewRunner(ctx context.Context, deps Deps, opts Options) *Runner {
	if opts.SelectionTimeout <= 0 {
		opts.SelectionTimeout = DefaultSelectionTimeout
	}
	if opts.FS == nil {
		opts.FS = afero.NewOsFs()
	}
	return &Runner{
		deps:   deps,
		opts:   opts,
		logger: opts.Logger,
		base:   context.WithoutCancel(ctx),
	}
}

// ConsecutiveFailures reports transform failures since the last success.
func (r *Runner) ConsecutiveFailures() int64 {
	return r.failures.Load()
}

// Start begins a capture session.
func (r *Runner) Start(ctx context.Context, mode session.Mode, deviceID string) (*session.Session, error) {
	sess, err := r.deps.Machine.Begin(ctx, mode, deviceID)
	if err != nil {
		return nil, err
	}

	if err := r.deps.Capture.Start(r.base, sess.ID, deviceID); err != nil {
		derr := &DeviceError{Op: "start", Err: err}
		r.logWarn("capture start failed", "session_id", sess.ID, "error", derr.Error())
		_ = r.deps.Machine.Advance(sess, fsm.StateIdle)
		return nil, derr
	}

	r.logInfo("recording started", "session_id", sess.ID, "mode", mode, "device", deviceID)
	r.emit(protocol.EventRecordingStarted, RecordingStarted{
		SessionID: sess.ID,
		Mode:      string(mode),
		DeviceID:  deviceID,
	})
	return sess, nil
}

// Stop ends capture and runs the session on its own goroutine.
// ok is false when nothing was capturing.
func (r *Runner) Stop() (*session.Session, bool, error) {
	sess, ok, err := r.deps.Machine.Stop()
	if err != nil || !ok {
		return nil, false, err
	}

	r.wg.Add(1)
	go r.run(sess)
	return sess, true, nil
}

// Cancel discards the capturing session, if any.
func (r *Runner) Cancel() bool {
	sess, ok := r.deps.Machine.Cancel()
	if !ok {
		return false
	}
	r.deps.Capture.Cancel()
	r.record(sess, &result{outcome: history.OutcomeCancelled})
	r.logInfo("recording cancelled", "session_id", sess.ID)
	return true
}

// Reset forces the state machine to idle and abandons any capture in progress.
// A session already past capture finishes on its goroutine without further transitions.
func (r *Runner) Reset() {
	capturing := fsm.IsCapturing(r.deps.Machine.State())
	abandoned := r.deps.Machine.Reset()
	if capturing && abandoned != nil {
		r.deps.Capture.Cancel()
		r.record(abandoned, &result{outcome: history.OutcomeCancelled})
	}
	r.logInfo("pipeline reset", "abandoned", abandoned != nil)
}

// Warmup loads the standard-mode adapter in the background through the warmup state.
func (r *Runner) Warmup() error {
	if err := r.deps.Machine.BeginWarmup(); err != nil {
		return err
	}

	r.wg.Add(1)
	go func() {
		defer r.wg.Done()

		var (
			provider string
			err      error
		)
		defer func() {
			if p := recover(); p != nil {
				err = fmt.Errorf("warmup panic: %v", p)
				r.logError("warmup panic", "panic", fmt.Sprint(p))
			}
			r.deps.Machine.EndWarmup(err)
			payload := WarmupComplete{OK: err == nil, Provider: provider}
			if err != nil {
				payload.Error = err.Error()
			}
			r.emit(protocol.EventWarmupComplete, payload)
		}()

		var adapter backend.Adapter
		adapter, provider, err = r.deps.Router.Adapter(session.ModeStandard)
		if err != nil {
			return
		}
		ctx, cancel := context.WithTimeout(r.base, warmupTimeout)
		defer cancel()
		started := time.Now()
		err = adapter.Warm(ctx)
		r.logInfo("warmup finished", "provider", provider, "duration_ms", time.Since(started).Milliseconds(), "ok", err == nil)
	}()
	return nil
}

// Inject delivers text directly, outside any session.
func (r *Runner) Inject(ctx context.Context, text string) error {
	if strings.TrimSpace(text) == "" {
		return ErrEmptyText
	}
	return r.deps.Deliverer.Deliver(ctx, text)
}

// Wait blocks until every pipeline and warmup goroutine has returned.
func (r *Runner) Wait(ctx context.Context) error {
	done := make(chan struct{})
	go func() {
		r.wg.Wait()
		close(done)
	}()
	select {
	case <-done:
		return nil
	case <-ctx.Done():
		return ctx.Err()
	}
}

// result accumulates the outcome of one session.
type result struct {
	outcome     history.Outcome
	provider    string
	text        string
	err         error
	fallbackErr error
	code        string
	stage       string
}

func (res *result) fail(stage string, code string, err error) {
	res.stage = stage
	res.code = code
	res.err = err
	res.outcome = history.OutcomeFailed
	if errors.Is(err, session.ErrStaleSession) {
		res.outcome = history.OutcomeCancelled
	}
}

func (r *Runner) run(sess *session.Session) {
	defer r.wg.Done()

	res := &result{}
	defer func() {
		if p := recover(); p != nil {
			r.logError("pipeline panic",
				"session_id", sess.ID,
				"panic", fmt.Sprint(p),
				"stack", string(debug.Stack()),
			)
			res.fail(stageInternal, protocol.CodeInternal, fmt.Errorf("pipeline panic: %v", p))
		}
		r.finish(sess, res)
	}()

	r.execute(r.base, sess, res)
}

func (r *Runner) execute(ctx context.Context, sess *session.Session, res *result) {
	artifact, err := r.deps.Capture.Stop(ctx)
	sess.CapturedInput = artifact
	sess.Record(StageCapture, time.Since(sess.StartedAt))
	if err != nil {
		res.fail(StageCapture, protocol.CodeDeviceError, &DeviceError{Op: "stop", Err: err})
		return
	}

	started := time.Now()
	raw, err := r.deps.Transcriber.Transcribe(ctx, artifact)
	sess.Record(StageTranscribe, time.Since(started))
	if err != nil {
		res.fail(StageTranscribe, protocol.CodeTranscriptionFailed, fmt.Errorf("transcribe: %w", err))
		return
	}
	sess.RawText = raw

	switch sess.Mode {
	case session.ModeQuestion:
		r.runQuestion(ctx, sess, res)
	case session.ModeRefineInstruction:
		r.runInstruction(ctx, sess, res)
	case session.ModeRefineSelection:
		r.runRefineSelection(ctx, sess, res)
	case session.ModeNote:
		r.runNote(ctx, sess, res)
	default:
		r.runStandard(ctx, sess, res)
	}
}

// finish leaves the busy state, removes the artifact, and records the session.
func (r *Runner) finish(sess *session.Session, res *result) {
	if res.err != nil {
		sess.LastError = res.err
		if !errors.Is(res.err, session.ErrStaleSession) {
			r.logWarn("pipeline failed",
				"session_id", sess.ID,
				"mode", sess.Mode,
				"stage", res.stage,
				"code", res.code,
				"error", res.err.Error(),
			)
			r.emit(protocol.EventPipelineError, PipelineError{
				SessionID: sess.ID,
				Code:      res.code,
				Message:   res.err.Error(),
				Stage:     res.stage,
			})
		}
		r.advance(sess, fsm.StateError)
	} else {
		r.advance(sess, fsm.StateIdle)
	}

	r.removeArtifact(sess.CapturedInput)
	r.record(sess, res)
}

func (r *Runner) advance(sess *session.Session, to fsm.State) error {
	err := r.deps.Machine.Advance(sess, to)
	if err != nil && !errors.Is(err, session.ErrStaleSession) {
		r.logWarn("state transition rejected", "session_id", sess.ID, "to", to, "error", err.Error())
	}
	return err
}

func (r *Runner) removeArtifact(path string) {
	if strings.TrimSpace(path) == "" {
		return
	}
	if err := r.opts.FS.Remove(path); err != nil && !errors.Is(err, fs.ErrNotExist) {
		r.logWarn("capture artifact cleanup failed", "path", path, "error", err.Error())
	}
}

func (r *Runner) record(sess *session.Session, res *result) {
	if r.deps.Recorder == nil {
		return
	}
	outcome := res.outcome
	if outcome == "" {
		outcome = history.OutcomeFailed
	}
	rec := history.Record{
		SessionID: sess.ID,
		Mode:      string(sess.Mode),
		Provider:  res.provider,
		Outcome:   outcome,
		StartedAt: sess.StartedAt,
		TimingsMS: timingsMS(sess.Timings()),
		TotalMS:   time.Since(sess.StartedAt).Milliseconds(),
		ErrorCode: res.code,
	}
	if sess.RawText != "" {
		rec.Input = history.Text(sess.RawText)
	}
	if res.text != "" {
		rec.Output = history.Text(res.text)
	}
	if err := errors.Join(res.err, res.fallbackErr); err != nil {
		rec.Error = history.Text(err.Error())
	}
	r.deps.Recorder.Enqueue(rec)
}

func (r *Runner) emit(event string, payload any) {
	if r.deps.Events == nil {
		return
	}
	r.deps.Events.Emit(event, payload)
}

func timingsMS(timings map[string]time.Duration) map[string]int64 {
	out := make(map[string]int64, len(timings))
	for stage, d := range timings {
		out[stage] = d.Milliseconds()
	}
	return out
}

// backendCode maps a transform failure to its wire error code.
func backendCode(err error) string {
	switch {
	case errors.Is(err, router.ErrConfiguration):
		return protocol.CodeConfigurationError
	case backend.IsTransient(err):
		return protocol.CodeBackendTransient
	case backend.IsPermanent(err):
		return protocol.CodeBackendPermanent
	default:
		return protocol.CodeInternal
	}
}

func isBlank(text string) bool {
	return strings.TrimSpace(text) == ""
}

func (r *Runner) logInfo(msg string, args ...any) {
	if r.logger == nil {
		return
	}
	r.logger.Info(msg, args...)
}

func (r *Runner) logWarn(msg string, args ...any) {
	if r.logger == nil {
		return
	}
	r.logger.Warn(msg, args...)
}

func (r *Runner) logError(msg string, args ...any) {
	if r.logger == nil {
		return
	}
	r.logger.Error(msg, args...)
}
