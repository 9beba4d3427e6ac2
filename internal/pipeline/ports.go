package pipeline

import (
	"context"
	"errors"
	"fmt"

	"github.com/rbright/voxd/internal/backend"
	"github.com/rbright/voxd/internal/history"
	"github.com/rbright/voxd/internal/router"
	"github.com/rbright/voxd/internal/session"
)

// Capturer records audio for one session into a file artifact.
type Capturer interface {
	Start(ctx context.Context, sessionID string, deviceID string) error
	// Stop ends capture and returns the artifact path.
	Stop(ctx context.Context) (string, error)
	// Cancel ends capture and discards the artifact.
	Cancel()
}

// Transcriber turns a capture artifact into text.
type Transcriber interface {
	Transcribe(ctx context.Context, artifact string) (string, error)
}

// Router resolves the adapter and prompts for a mode.
type Router interface {
	Adapter(mode session.Mode) (backend.Adapter, string, error)
	Flavor() router.Flavor
	ModePrompt(mode session.Mode) string
}

// Deliverer hands final text to the requesting environment.
type Deliverer interface {
	Deliver(ctx context.Context, text string) error
}

// SelectionReader returns the text currently selected by the user.
type SelectionReader interface {
	Selection(ctx context.Context) (string, error)
}

// NoteSink appends one note and returns where it was written.
type NoteSink interface {
	Append(ctx context.Context, text string) (string, error)
}

// Recorder receives exactly one history record per session.
type Recorder interface {
	Enqueue(rec history.Record)
}

// Events publishes pipeline events to the command channel.
type Events interface {
	Emit(event string, payload any)
}

// DeviceError reports a capture device failure.
type DeviceError struct {
	Op  string
	Err error
}

func (e *DeviceError) Error() string {
	return fmt.Sprintf("capture %s: %v", e.Op, e.Err)
}

func (e *DeviceError) Unwrap() error { return e.Err }

var errNoNoteSink = errors.New("note sink is not configured")
