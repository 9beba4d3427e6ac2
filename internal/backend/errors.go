package backend

import (
	"context"
	"errors"
	"fmt"
	"io"
	"net"
	"net/http"
	"strings"
	"syscall"
)

// Kind separates retryable backend failures from ones that need caller action.
type Kind int

const (
	KindTransient Kind = iota + 1
	KindPermanent
)

func (k Kind) String() string {
	switch k {
	case KindTransient:
		return "transient"
	case KindPermanent:
		return "permanent"
	default:
		return "unknown"
	}
}

// Error is the classified failure returned by every adapter.
type Error struct {
	Kind     Kind
	Provider Provider
	Status   int
	Code     string
	Err      error
}

func (e *Error) Error() string {
	var b strings.Builder
	fmt.Fprintf(&b, "%s backend %s error", e.Provider, e.Kind)
	switch {
	case e.Status > 0 && e.Code != "":
		fmt.Fprintf(&b, " (HTTP %d, %s)", e.Status, e.Code)
	case e.Status > 0:
		fmt.Fprintf(&b, " (HTTP %d)", e.Status)
	case e.Code != "":
		fmt.Fprintf(&b, " (%s)", e.Code)
	}
	if e.Err != nil {
		b.WriteString(": ")
		b.WriteString(e.Err.Error())
	}
	return b.String()
}

func (e *Error) Unwrap() error { return e.Err }

// IsTransient reports whether err is a retryable backend failure.
func IsTransient(err error) bool {
	var be *Error
	return errors.As(err, &be) && be.Kind == KindTransient
}

// IsPermanent reports whether err is a backend failure that retrying cannot fix.
func IsPermanent(err error) bool {
	var be *Error
	return errors.As(err, &be) && be.Kind == KindPermanent
}

// permanentCodes are provider error codes that mean credentials or account state are unusable.
var permanentCodes = map[string]struct{}{
	"invalid_api_key":       {},
	"authentication_error":  {},
	"permission_error":      {},
	"insufficient_quota":    {},
	"account_deactivated":   {},
	"model_not_found":       {},
	"not_found_error":       {},
	"invalid_request_error": {},
}

// classifyHTTP maps an HTTP status plus provider error code onto a Kind.
func classifyHTTP(provider Provider, status int, code string, message string) *Error {
	kind := KindPermanent
	switch {
	case isPermanentCode(code):
		kind = KindPermanent
	case status == http.StatusUnauthorized || status == http.StatusForbidden:
		kind = KindPermanent
	case status == http.StatusRequestTimeout || status == http.StatusTooManyRequests || status >= 500:
		kind = KindTransient
	}

	var cause error
	if message = strings.TrimSpace(message); message != "" {
		cause = errors.New(message)
	} else {
		cause = errors.New(http.StatusText(status))
	}
	return &Error{Kind: kind, Provider: provider, Status: status, Code: code, Err: cause}
}

func isPermanentCode(code string) bool {
	_, ok := permanentCodes[strings.ToLower(strings.TrimSpace(code))]
	return ok
}

// classifyTransport maps client-side request failures onto a Kind.
func classifyTransport(provider Provider, err error) *Error {
	var be *Error
	if errors.As(err, &be) {
		return be
	}
	if errors.Is(err, context.Canceled) {
		return &Error{Kind: KindPermanent, Provider: provider, Code: "canceled", Err: err}
	}

	kind := KindTransient
	code := "network"
	var netErr net.Error
	switch {
	case errors.Is(err, context.DeadlineExceeded):
		code = "timeout"
	case errors.As(err, &netErr) && netErr.Timeout():
		code = "timeout"
	case errors.Is(err, syscall.ECONNREFUSED) || strings.Contains(err.Error(), "connection refused"):
		code = "connection_refused"
	case errors.Is(err, syscall.ECONNRESET), errors.Is(err, io.ErrUnexpectedEOF), errors.Is(err, io.EOF):
		code = "connection_reset"
	}
	return &Error{Kind: kind, Provider: provider, Code: code, Err: err}
}
