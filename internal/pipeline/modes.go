package pipeline

import (
	"context"
	"strings"
	"time"

	"github.com/rbright/voxd/internal/backend"
	"github.com/rbright/voxd/internal/fsm"
	"github.com/rbright/voxd/internal/history"
	"github.com/rbright/voxd/internal/protocol"
	"github.com/rbright/voxd/internal/router"
	"github.com/rbright/voxd/internal/session"
)

// runStandard rewrites the transcription, optionally translates it, and delivers.
// Transform failures deliver the best text so far instead of failing the session.
func (r *Runner) runStandard(ctx context.Context, sess *session.Session, res *result) {
	raw := sess.RawText
	if isBlank(raw) {
		res.outcome = history.OutcomeEmpty
		return
	}

	text := raw
	if r.deps.Router.Flavor() != router.FlavorRaw {
		out, key, err := r.transform(ctx, sess, StageTransform, backend.Input{Text: raw})
		res.provider = key
		if err != nil {
			r.fallback(sess, res, err, true)
		} else {
			text = out
		}
	}

	if sess.Mode == session.ModeTranslate && res.fallbackErr == nil {
		out, key, err := r.transform(ctx, sess, StageTranslate, backend.Input{
			Text:     text,
			Prompt:   r.deps.Router.ModePrompt(session.ModeTranslate),
			Language: r.opts.Language,
		})
		if res.provider == "" {
			res.provider = key
		}
		if err != nil {
			r.fallback(sess, res, err, text == raw)
		} else {
			text = out
		}
	}

	sess.TransformedText = text
	r.deliver(ctx, sess, res, text)
}

// runQuestion answers the transcription. Failures are terminal.
func (r *Runner) runQuestion(ctx context.Context, sess *session.Session, res *result) {
	if isBlank(sess.RawText) {
		res.outcome = history.OutcomeEmpty
		return
	}
	r.answer(ctx, sess, res, sess.RawText)
}

// runInstruction applies the spoken instruction to the current selection.
// With nothing selected the instruction is answered as a question.
func (r *Runner) runInstruction(ctx context.Context, sess *session.Session, res *result) {
	instruction := sess.RawText
	if isBlank(instruction) {
		res.outcome = history.OutcomeEmpty
		return
	}

	selection := r.readSelection(ctx, sess)
	if isBlank(selection) {
		r.answer(ctx, sess, res, instruction)
		return
	}

	out, key, err := r.transform(ctx, sess, StageTransform, backend.Input{
		Text:        selection,
		Selection:   selection,
		Instruction: strings.TrimSpace(instruction),
		Prompt:      r.deps.Router.ModePrompt(session.ModeRefineInstruction),
	})
	res.provider = key
	if err != nil {
		res.fail(StageTransform, backendCode(err), err)
		return
	}
	sess.TransformedText = out
	r.deliver(ctx, sess, res, out)
}

// runRefineSelection rewrites the current selection, or behaves like standard when nothing is selected.
func (r *Runner) runRefineSelection(ctx context.Context, sess *session.Session, res *result) {
	selection := r.readSelection(ctx, sess)
	if isBlank(selection) {
		r.runStandard(ctx, sess, res)
		return
	}

	out, key, err := r.transform(ctx, sess, StageTransform, backend.Input{
		Text:        selection,
		Selection:   selection,
		Instruction: strings.TrimSpace(sess.RawText),
		Prompt:      r.deps.Router.ModePrompt(session.ModeRefineSelection),
	})
	res.provider = key
	if err != nil {
		res.fail(StageTransform, backendCode(err), err)
		return
	}
	sess.TransformedText = out
	r.deliver(ctx, sess, res, out)
}

// runNote tidies the transcription when possible and appends it to the note sink.
func (r *Runner) runNote(ctx context.Context, sess *session.Session, res *result) {
	raw := sess.RawText
	if isBlank(raw) {
		res.outcome = history.OutcomeEmpty
		return
	}

	text := raw
	if r.deps.Router.Flavor() != router.FlavorRaw {
		out, key, err := r.transform(ctx, sess, StageTransform, backend.Input{
			Text:   raw,
			Prompt: r.deps.Router.ModePrompt(session.ModeNote),
		})
		res.provider = key
		if err != nil {
			res.fallbackErr = err
			res.code = backendCode(err)
			r.logWarn("note transform failed; saving raw text", "session_id", sess.ID, "error", err.Error())
		} else {
			text = out
		}
	}
	sess.TransformedText = text

	if err := r.advance(sess, fsm.StateDelivering); err != nil {
		res.fail(StageNote, protocol.CodeInternal, err)
		return
	}
	if r.deps.Notes == nil {
		res.fail(StageNote, protocol.CodeConfigurationError, errNoNoteSink)
		return
	}

	started := time.Now()
	path, err := r.deps.Notes.Append(ctx, text)
	sess.Record(StageNote, time.Since(started))
	if err != nil {
		res.fail(StageNote, protocol.CodeDeliveryFailed, err)
		return
	}

	res.outcome = history.OutcomeNoted
	res.text = text
	r.emit(protocol.EventNoteSaved, NoteSaved{Path: path})
	r.complete(sess, res)
}

// answer asks the backend a question and returns the reply as an event.
func (r *Runner) answer(ctx context.Context, sess *session.Session, res *result, question string) {
	out, key, err := r.transform(ctx, sess, StageTransform, backend.Input{
		Text:        question,
		Instruction: question,
		Prompt:      r.deps.Router.ModePrompt(session.ModeQuestion),
	})
	res.provider = key
	if err != nil {
		res.fail(StageTransform, backendCode(err), err)
		return
	}

	sess.TransformedText = out
	res.outcome = history.OutcomeAnswered
	res.text = out
	r.emit(protocol.EventAnswer, Answer{Question: question, Answer: out})
	r.complete(sess, res)
}

// transform runs one adapter call and resets the failure counter on success.
func (r *Runner) transform(ctx context.Context, sess *session.Session, stage string, in backend.Input) (string, string, error) {
	started := time.Now()
	defer func() { sess.Record(stage, time.Since(started)) }()

	adapter, key, err := r.deps.Router.Adapter(sess.Mode)
	if err != nil {
		return "", "", err
	}
	out, err := adapter.Process(ctx, in)
	if err != nil {
		return "", key, err
	}
	r.failures.Store(0)
	return out, key, nil
}

// fallback counts one failed transform and announces the substitute text.
func (r *Runner) fallback(sess *session.Session, res *result, err error, usingRaw bool) {
	n := r.failures.Add(1)
	res.outcome = history.OutcomeFallback
	res.fallbackErr = err
	res.code = backendCode(err)

	r.logWarn("transform failed; delivering fallback text",
		"session_id", sess.ID,
		"mode", sess.Mode,
		"using_raw", usingRaw,
		"consecutive_failures", n,
		"error", err.Error(),
	)
	r.emit(protocol.EventProcessorFallback, ProcessorFallback{
		UsingRaw:            usingRaw,
		ConsecutiveFailures: n,
		Error:               err.Error(),
	})
}

func (r *Runner) deliver(ctx context.Context, sess *session.Session, res *result, text string) {
	if err := r.advance(sess, fsm.StateDelivering); err != nil {
		res.fail(StageDeliver, protocol.CodeInternal, err)
		return
	}

	started := time.Now()
	err := r.deps.Deliverer.Deliver(ctx, text)
	sess.Record(StageDeliver, time.Since(started))
	if err != nil {
		res.fail(StageDeliver, protocol.CodeDeliveryFailed, err)
		return
	}

	if res.outcome != history.OutcomeFallback {
		res.outcome = history.OutcomeDelivered
	}
	res.text = text
	r.complete(sess, res)
}

func (r *Runner) complete(sess *session.Session, res *result) {
	r.emit(protocol.EventProcessingComplete, ProcessingComplete{
		SessionID: sess.ID,
		Mode:      string(sess.Mode),
		RawText:   sess.RawText,
		Text:      res.text,
		TimingsMS: timingsMS(sess.Timings()),
		TotalMS:   time.Since(sess.StartedAt).Milliseconds(),
		Provider:  res.provider,
	})
}

// readSelection returns "" on error or when the reader exceeds its timeout.
func (r *Runner) readSelection(ctx context.Context, sess *session.Session) string {
	if r.deps.Selection == nil {
		return ""
	}
	ctx, cancel := context.WithTimeout(ctx, r.opts.SelectionTimeout)
	defer cancel()

	type reply struct {
		text string
		err  error
	}
	ch := make(chan reply, 1)
	started := time.Now()
	go func() {
		text, err := r.deps.Selection.Selection(ctx)
		ch <- reply{text: text, err: err}
	}()

	var out reply
	select {
	case out = <-ch:
	case <-ctx.Done():
		out.err = ctx.Err()
	}
	sess.Record(StageSelection, time.Since(started))

	if out.err != nil {
		r.logWarn("selection read failed; continuing without selection", "session_id", sess.ID, "error", out.err.Error())
		return ""
	}
	return out.text
}
