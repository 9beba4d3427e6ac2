package protocol

import (
	"encoding/json"
	"fmt"
	"io"
	"log/slog"
	"sync"
)

// Emitter serializes responses and events onto one writer.
type Emitter struct {
	logger *slog.Logger

	mu sync.Mutex
	w  io.Writer
}

func NewEmitter(w io.Writer, logger *slog.Logger) *Emitter {
	return &Emitter{w: w, logger: logger}
}

// Respond writes one response line.
func (e *Emitter) Respond(resp Response) error {
	data, err := json.Marshal(resp)
	if err != nil {
		return fmt.Errorf("encode response: %w", err)
	}
	return e.writeLine(data)
}

// Emit writes one event line with payload fields flattened next to "event".
func (e *Emitter) Emit(event string, payload any) {
	data, err := encodeEvent(event, payload)
	if err != nil {
		e.logWarn("event encode failed", "event", event, "error", err.Error())
		return
	}
	if err := e.writeLine(data); err != nil {
		e.logWarn("event write failed", "event", event, "error", err.Error())
	}
}

func encodeEvent(event string, payload any) ([]byte, error) {
	fields := map[string]json.RawMessage{}
	if payload != nil {
		data, err := json.Marshal(payload)
		if err != nil {
			return nil, err
		}
		if err := json.Unmarshal(data, &fields); err != nil {
			return nil, fmt.Errorf("event payload must be an object: %w", err)
		}
	}
	name, _ := json.Marshal(event)
	fields["event"] = name
	return json.Marshal(fields)
}

func (e *Emitter) writeLine(data []byte) error {
	e.mu.Lock()
	defer e.mu.Unlock()
	data = append(data, '\n')
	_, err := e.w.Write(data)
	return err
}

func (e *Emitter) logWarn(msg string, args ...any) {
	if e.logger == nil {
		return
	}
	e.logger.Warn(msg, args...)
}
