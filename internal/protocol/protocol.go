// Package protocol implements the line-delimited JSON command channel.
package protocol

import (
	"encoding/json"
	"errors"
	"fmt"
)

// Request is one inbound command. Params are flat siblings of id and command.
type Request struct {
	ID      string
	Command string
	raw     json.RawMessage
}

// ParseRequest decodes one line. Lines without a command are protocol errors.
func ParseRequest(line []byte) (Request, error) {
	var head struct {
		ID      json.RawMessage `json:"id"`
		Command string          `json:"command"`
	}
	if err := json.Unmarshal(line, &head); err != nil {
		return Request{}, fmt.Errorf("decode request: %w", err)
	}
	req := Request{
		ID:      idString(head.ID),
		Command: head.Command,
		raw:     append(json.RawMessage(nil), line...),
	}
	if req.Command == "" {
		return req, Errorf(CodeProtocolError, "missing command")
	}
	return req, nil
}

// idString accepts string or numeric ids.
func idString(raw json.RawMessage) string {
	if len(raw) == 0 || string(raw) == "null" {
		return ""
	}
	var s string
	if err := json.Unmarshal(raw, &s); err == nil {
		return s
	}
	return string(raw)
}

// Decode unmarshals the request params into v.
func (r Request) Decode(v any) error {
	if len(r.raw) == 0 {
		return nil
	}
	if err := json.Unmarshal(r.raw, v); err != nil {
		return Errorf(CodeInvalidParams, "invalid params for %s: %v", r.Command, err)
	}
	return nil
}

// Error is the machine-readable error body of a failed response.
type Error struct {
	Code    string `json:"code"`
	Message string `json:"message"`
}

func (e *Error) Error() string {
	return e.Code + ": " + e.Message
}

// Errorf builds an Error with a formatted message.
func Errorf(code string, format string, args ...any) *Error {
	return &Error{Code: code, Message: fmt.Sprintf(format, args...)}
}

// AsError converts any error into a protocol Error, defaulting to INTERNAL.
func AsError(err error) *Error {
	if err == nil {
		return nil
	}
	var pe *Error
	if errors.As(err, &pe) {
		return pe
	}
	return &Error{Code: CodeInternal, Message: err.Error()}
}

// Response answers one Request.
type Response struct {
	ID      string `json:"id"`
	Success bool   `json:"success"`
	Data    any    `json:"data,omitempty"`
	Error   *Error `json:"error,omitempty"`
}
