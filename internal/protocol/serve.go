package protocol

import (
	"bufio"
	"bytes"
	"context"
	"errors"
	"fmt"
	"io"
	"log/slog"
)

const maxLineBytes = 1 << 20

// ErrShutdown is returned by a handler to stop Serve after its response is written.
var ErrShutdown = errors.New("shutdown requested")

// Handler evaluates one command and returns response data or an error.
type Handler interface {
	Handle(context.Context, Request) (any, error)
}

// HandlerFunc adapts a function to the Handler interface.
type HandlerFunc func(context.Context, Request) (any, error)

func (f HandlerFunc) Handle(ctx context.Context, req Request) (any, error) {
	return f(ctx, req)
}

// Serve reads commands from r until EOF, context cancellation, or ErrShutdown.
// Commands are handled one at a time on the calling goroutine.
func Serve(ctx context.Context, r io.Reader, out *Emitter, handler Handler, logger *slog.Logger) error {
	ctx, cancel := context.WithCancel(ctx)
	defer cancel()

	lines := make(chan []byte)
	readErr := make(chan error, 1)

	go func() {
		scanner := bufio.NewScanner(r)
		scanner.Buffer(make([]byte, 0, 64*1024), maxLineBytes)
		for scanner.Scan() {
			line := append([]byte(nil), scanner.Bytes()...)
			select {
			case lines <- line:
			case <-ctx.Done():
				return
			}
		}
		readErr <- scanner.Err()
	}()

	for {
		select {
		case <-ctx.Done():
			return nil
		case err := <-readErr:
			if err != nil {
				return fmt.Errorf("read command channel: %w", err)
			}
			return nil
		case line := <-lines:
			line = bytes.TrimSpace(line)
			if len(line) == 0 {
				continue
			}
			if stop := handleLine(ctx, line, out, handler, logger); stop {
				return nil
			}
		}
	}
}

func handleLine(ctx context.Context, line []byte, out *Emitter, handler Handler, logger *slog.Logger) bool {
	req, err := ParseRequest(line)
	if err != nil {
		var pe *Error
		if !errors.As(err, &pe) || req.ID == "" {
			if logger != nil {
				logger.Warn("malformed command line skipped", "error", err.Error(), "bytes", len(line))
			}
			return false
		}
		_ = out.Respond(Response{ID: req.ID, Error: pe})
		return false
	}

	data, err := handler.Handle(ctx, req)
	stop := errors.Is(err, ErrShutdown)
	resp := Response{ID: req.ID, Success: err == nil || stop, Data: data}
	if err != nil && !stop {
		resp.Error = AsError(err)
		resp.Data = nil
	}
	if werr := out.Respond(resp); werr != nil && logger != nil {
		logger.Warn("response write failed", "command", req.Command, "error", werr.Error())
	}
	return stop
}
