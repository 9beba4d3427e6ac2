package audio

import (
	"context"
	"errors"
	"fmt"
	"io"
	"sync"
	"sync/atomic"

	"github.com/jfreymuth/pulse"
	pulseproto "github.com/jfreymuth/pulse/proto"
)

const (
	SampleRate     = 16000
	fragmentBytes  = 640 // 20ms @ 16kHz mono s16
	maxCaptureSecs = 10 * 60
	maxCaptureSize = SampleRate * 2 * maxCaptureSecs
)

// ErrCaptureLimit is reported once capture exceeds its maximum length.
var ErrCaptureLimit = errors.New("capture length limit reached")

// Capture buffers PCM from one Pulse source until stopped.
type Capture struct {
	device Device

	client *pulse.Client
	stream *pulse.RecordStream

	mu      sync.Mutex
	rawPCM  []byte
	stopped bool
	limited bool

	inflight sync.WaitGroup
	bytes    atomic.Int64
}

// StartCapture opens a 16kHz mono s16 record stream on selected.
func StartCapture(_ context.Context, selected Device) (*Capture, error) {
	client, err := newClient()
	if err != nil {
		return nil, err
	}

	source, err := client.SourceByID(selected.ID)
	if err != nil {
		client.Close()
		return nil, fmt.Errorf("resolve source %q: %w", selected.ID, err)
	}

	capture := &Capture{device: selected, client: client}
	writer := pulse.NewWriter(writerFunc(capture.onPCM), pulseproto.FormatInt16LE)
	stream, err := client.NewRecord(
		writer,
		pulse.RecordSource(source),
		pulse.RecordMono,
		pulse.RecordSampleRate(SampleRate),
		pulse.RecordBufferFragmentSize(fragmentBytes),
		pulse.RecordMediaName("voxd dictation"),
	)
	if err != nil {
		_ = capture.Stop()
		return nil, fmt.Errorf("create pulse record stream: %w", err)
	}

	capture.stream = stream
	stream.Start()
	return capture, nil
}

func (c *Capture) Device() Device {
	return c.device
}

// BytesCaptured reports total PCM bytes accepted.
func (c *Capture) BytesCaptured() int64 {
	return c.bytes.Load()
}

// Limited reports whether capture stopped accepting audio at the length limit.
func (c *Capture) Limited() bool {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.limited
}

// RawPCM returns a copy of the captured PCM.
func (c *Capture) RawPCM() []byte {
	c.mu.Lock()
	defer c.mu.Unlock()
	return append([]byte(nil), c.rawPCM...)
}

// Stop halts the stream and waits for in-flight writes. It is idempotent.
func (c *Capture) Stop() error {
	c.mu.Lock()
	if c.stopped {
		c.mu.Unlock()
		return nil
	}
	c.stopped = true
	c.mu.Unlock()

	if c.stream != nil {
		c.stream.Stop()
		c.stream.Close()
	}
	if c.client != nil {
		c.client.Close()
	}
	c.inflight.Wait()
	return nil
}

// onPCM appends one Pulse buffer. It returns io.EOF once stopped.
func (c *Capture) onPCM(buffer []byte) (int, error) {
	if len(buffer) == 0 {
		return 0, nil
	}

	c.mu.Lock()
	if c.stopped {
		c.mu.Unlock()
		return 0, io.EOF
	}
	// Add under the same mutex as stopped so Stop's Wait cannot race it.
	c.inflight.Add(1)
	defer c.inflight.Done()

	room := maxCaptureSize - len(c.rawPCM)
	accepted := buffer
	if room < len(accepted) {
		accepted = accepted[:max(room, 0)]
		c.limited = true
	}
	c.rawPCM = append(c.rawPCM, accepted...)
	c.mu.Unlock()

	c.bytes.Add(int64(len(accepted)))
	return len(buffer), nil
}

// writerFunc adapts a function to io.Writer for pulse.NewWriter.
type writerFunc func([]byte) (int, error)

func (f writerFunc) Write(b []byte) (int, error) {
	return f(b)
}
