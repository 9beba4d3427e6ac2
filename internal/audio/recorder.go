package audio

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"os"
	"path/filepath"
	"strings"
	"sync"

	"github.com/spf13/afero"
)

// ErrCaptureActive rejects a second concurrent capture.
var ErrCaptureActive = errors.New("capture already running")

// ErrNoCapture is returned by Stop when nothing is recording.
var ErrNoCapture = errors.New("no capture running")

type source interface {
	Stop() error
	RawPCM() []byte
	Device() Device
	Limited() bool
}

type starter func(ctx context.Context, device Device) (source, error)

func startPulse(ctx context.Context, device Device) (source, error) {
	return StartCapture(ctx, device)
}

// RecorderConfig configures a Recorder.
type RecorderConfig struct {
	// Dir receives one WAV artifact per session.
	Dir      string
	Input    string
	Fallback string
	FS       afero.Fs
	Logger   *slog.Logger
}

// Recorder captures one session at a time into a WAV artifact.
type Recorder struct {
	cfg   RecorderConfig
	list  Lister
	start starter

	mu        sync.Mutex
	active    source
	sessionID string
}

func NewRecorder(cfg RecorderConfig) *Recorder {
	if cfg.FS == nil {
		cfg.FS = afero.NewOsFs()
	}
	if strings.TrimSpace(cfg.Dir) == "" {
		cfg.Dir = filepath.Join(os.TempDir(), "voxd")
	}
	return &Recorder{cfg: cfg, list: ListDevices, start: startPulse}
}

// Start selects a device (deviceID overrides the configured input) and begins capture.
func (r *Recorder) Start(ctx context.Context, sessionID string, deviceID string) error {
	r.mu.Lock()
	defer r.mu.Unlock()

	if r.active != nil {
		return ErrCaptureActive
	}

	input := r.cfg.Input
	if strings.TrimSpace(deviceID) != "" {
		input = deviceID
	}
	selection, err := SelectDevice(ctx, r.list, input, r.cfg.Fallback)
	if err != nil {
		return err
	}
	if selection.Warning != "" {
		r.logWarn(selection.Warning)
	}

	src, err := r.start(ctx, selection.Device)
	if err != nil {
		return err
	}
	r.active = src
	r.sessionID = sessionID
	r.logDebug("capture started", "session_id", sessionID, "device", describeDevice(selection.Device))
	return nil
}

// Stop ends capture and writes the WAV artifact, returning its path.
func (r *Recorder) Stop(_ context.Context) (string, error) {
	src, sessionID := r.take()
	if src == nil {
		return "", ErrNoCapture
	}
	_ = src.Stop()
	if src.Limited() {
		r.logWarn("capture truncated at length limit", "session_id", sessionID)
	}

	if err := r.cfg.FS.MkdirAll(r.cfg.Dir, 0o700); err != nil {
		return "", fmt.Errorf("create capture dir: %w", err)
	}
	path := filepath.Join(r.cfg.Dir, sessionID+".wav")
	file, err := r.cfg.FS.OpenFile(path, os.O_CREATE|os.O_WRONLY|os.O_TRUNC, 0o600)
	if err != nil {
		return "", fmt.Errorf("open capture artifact: %w", err)
	}
	defer file.Close()

	if err := writePCM16WAV(file, src.RawPCM(), SampleRate, 1); err != nil {
		return "", fmt.Errorf("write capture artifact: %w", err)
	}
	return path, nil
}

// Cancel ends capture without writing anything.
func (r *Recorder) Cancel() {
	src, sessionID := r.take()
	if src == nil {
		return
	}
	_ = src.Stop()
	r.logDebug("capture cancelled", "session_id", sessionID)
}

func (r *Recorder) take() (source, string) {
	r.mu.Lock()
	defer r.mu.Unlock()
	src, id := r.active, r.sessionID
	r.active, r.sessionID = nil, ""
	return src, id
}

// describeDevice formats device metadata for logs.
func describeDevice(device Device) string {
	description := strings.TrimSpace(device.Description)
	id := strings.TrimSpace(device.ID)
	if description == "" {
		return id
	}
	if id == "" {
		return description
	}
	return fmt.Sprintf("%s (%s)", description, id)
}

func (r *Recorder) logWarn(msg string, args ...any) {
	if r.cfg.Logger == nil {
		return
	}
	r.cfg.Logger.Warn(msg, args...)
}

func (r *Recorder) logDebug(msg string, args ...any) {
	if r.cfg.Logger == nil {
		return
	}
	r.cfg.Logger.Debug(msg, args...)
}
