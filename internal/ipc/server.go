package ipc

import (
	"bufio"
	"context"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"net"
	"strings"
	"sync"
	"time"
)

const (
	maxRequestBytes = 4096
	readTimeout     = 2 * time.Second
)

// Handler processes one authenticated control request and returns the reply line.
type Handler interface {
	Handle(context.Context, Request) string
}

// HandlerFunc adapts a function to the Handler interface.
type HandlerFunc func(context.Context, Request) string

func (f HandlerFunc) Handle(ctx context.Context, req Request) string {
	return f(ctx, req)
}

// Server authenticates requests before handing them to a Handler.
type Server struct {
	token   string
	handler Handler
	logger  *slog.Logger
}

// NewServer builds a server. An empty token rejects every request.
func NewServer(token string, handler Handler, logger *slog.Logger) *Server {
	return &Server{token: token, handler: handler, logger: logger}
}

// Serve accepts unix-socket clients until context cancellation or listener close.
func (s *Server) Serve(ctx context.Context, listener net.Listener) error {
	var wg sync.WaitGroup

	go func() {
		<-ctx.Done()
		_ = listener.Close()
	}()

	for {
		conn, err := listener.Accept()
		if err != nil {
			if errors.Is(err, net.ErrClosed) || ctx.Err() != nil {
				wg.Wait()
				return nil
			}
			return fmt.Errorf("accept control connection: %w", err)
		}

		wg.Add(1)
		go func(c net.Conn) {
			defer wg.Done()
			defer c.Close()
			_, _ = io.WriteString(c, s.reply(ctx, c)+"\n")
		}(conn)
	}
}

func (s *Server) reply(ctx context.Context, c net.Conn) string {
	_ = c.SetReadDeadline(time.Now().Add(readTimeout))
	line, err := bufio.NewReader(io.LimitReader(c, maxRequestBytes)).ReadString('\n')
	if err != nil && !(errors.Is(err, io.EOF) && line != "") {
		s.logWarn("control request unreadable", "error", err.Error())
		return Fail(ReasonMalformed)
	}

	req, err := ParseRequest(line)
	if err != nil {
		s.logWarn("control request malformed")
		return Fail(ReasonMalformed)
	}
	if !Authorized(req, s.token) {
		s.logWarn("control request rejected", "command", string(req.Command), "reason", strings.ToLower(ReasonInvalidToken))
		return Fail(ReasonInvalidToken)
	}
	if !req.Known() {
		s.logWarn("control request unknown", "command", string(req.Command))
		return Fail(ReasonUnknownCommand)
	}
	return s.handler.Handle(ctx, req)
}

func (s *Server) logWarn(msg string, args ...any) {
	if s.logger == nil {
		return
	}
	s.logger.Warn(msg, args...)
}
