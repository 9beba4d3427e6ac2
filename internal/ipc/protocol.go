// Package ipc implements the authenticated plain-text control socket.
//
// A request is one line "COMMAND:TOKEN". The reply is one line: OK, PONG,
// a state name, "BUSY: <state>", or "FAIL: <reason>".
package ipc

import (
	"crypto/subtle"
	"errors"
	"fmt"
	"strings"
)

type Command string

const (
	CommandStart  Command = "START"
	CommandStop   Command = "STOP"
	CommandStatus Command = "STATUS"
	CommandPing   Command = "PING"
	CommandReset  Command = "RESET"
)

// Commands lists every accepted command.
var Commands = []Command{CommandStart, CommandStop, CommandStatus, CommandPing, CommandReset}

const (
	ResponseOK   = "OK"
	ResponsePong = "PONG"

	ReasonInvalidToken   = "INVALID_TOKEN"
	ReasonUnknownCommand = "UNKNOWN_COMMAND"
	ReasonMalformed      = "MALFORMED_REQUEST"
)

// ErrMalformedRequest is returned for lines without a COMMAND:TOKEN shape.
var ErrMalformedRequest = errors.New("malformed control request")

// Request is one parsed control line.
type Request struct {
	Command Command
	Token   string
}

// ParseRequest splits line on the first colon. The command is case-insensitive.
func ParseRequest(line string) (Request, error) {
	line = strings.TrimRight(line, "\r\n")
	command, token, ok := strings.Cut(line, ":")
	command = strings.ToUpper(strings.TrimSpace(command))
	if !ok || command == "" {
		return Request{}, ErrMalformedRequest
	}
	return Request{Command: Command(command), Token: strings.TrimSpace(token)}, nil
}

func (r Request) String() string {
	return string(r.Command) + ":" + r.Token
}

// Known reports whether the command is one the server dispatches.
func (r Request) Known() bool {
	for _, c := range Commands {
		if r.Command == c {
			return true
		}
	}
	return false
}

// Authorized compares the request token with want in constant time.
// An empty want rejects every request.
func Authorized(req Request, want string) bool {
	if want == "" || req.Token == "" {
		return false
	}
	return subtle.ConstantTimeCompare([]byte(req.Token), []byte(want)) == 1
}

// Fail formats a failure reply.
func Fail(reason string) string {
	return "FAIL: " + reason
}

// Busy formats a busy reply for the current state.
func Busy(state string) string {
	return "BUSY: " + state
}

// ReplyError converts a FAIL or BUSY reply into an error. Other replies are nil.
func ReplyError(reply string) error {
	switch {
	case strings.HasPrefix(reply, "FAIL:"):
		return fmt.Errorf("daemon refused: %s", strings.TrimSpace(strings.TrimPrefix(reply, "FAIL:")))
	case strings.HasPrefix(reply, "BUSY:"):
		return fmt.Errorf("daemon busy: %s", strings.TrimSpace(strings.TrimPrefix(reply, "BUSY:")))
	default:
		return nil
	}
}
