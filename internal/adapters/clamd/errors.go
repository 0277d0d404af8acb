package clamd

import (
	"errors"
	"fmt"

	"github.com/bft-labs/virusscan/internal/domain"
)

// Kind classifies client failures.
type Kind int

const (
	// KindTransport covers dial, read and write failures, including reading the input.
	KindTransport Kind = iota
	// KindProtocol covers daemon responses that are not a success line.
	KindProtocol
)

// Error is returned by all client operations.
type Error struct {
	Kind Kind
	// Op names the step that failed, e.g. "dial", "write frame", "read response".
	Op string
	// Response holds the daemon's reply for protocol errors.
	Response string
	// Session is the 1-based session number the failure occurred in, or 0.
	Session int
	Cause   error
}

func (e *Error) Error() string {
	prefix := "clamd " + e.Op
	if e.Session > 0 {
		prefix = fmt.Sprintf("%s (session %d)", prefix, e.Session)
	}
	if e.Kind == KindProtocol {
		return fmt.Sprintf("%s: unexpected response %q", prefix, e.Response)
	}
	if e.Cause != nil {
		return fmt.Sprintf("%s: %v", prefix, e.Cause)
	}
	return prefix
}

// Unwrap returns the underlying cause for use with errors.Is and errors.As.
func (e *Error) Unwrap() error {
	return e.Cause
}

// Is links the error to domain.ErrTransport or domain.ErrProtocol.
func (e *Error) Is(target error) bool {
	switch target {
	case domain.ErrTransport:
		return e.Kind == KindTransport
	case domain.ErrProtocol:
		return e.Kind == KindProtocol
	}
	return false
}

func transportError(op string, session int, cause error) *Error {
	return &Error{Kind: KindTransport, Op: op, Session: session, Cause: cause}
}

func protocolError(op string, session int, response string) *Error {
	return &Error{Kind: KindProtocol, Op: op, Session: session, Response: response}
}

// IsTransportError reports whether err is or wraps a transport error.
func IsTransportError(err error) bool {
	var e *Error
	return errors.As(err, &e) && e.Kind == KindTransport
}

// IsProtocolError reports whether err is or wraps a protocol error.
func IsProtocolError(err error) bool {
	var e *Error
	return errors.As(err, &e) && e.Kind == KindProtocol
}
