package live

import (
	"errors"
	"fmt"
)

// Sentinel errors returned by the Client.
var (
	ErrAlreadyConnected = errors.New("live: session already connecting or active")
	ErrClientClosed     = errors.New("live: client closed")
	ErrDisconnected     = errors.New("live: disconnected while connecting")
	ErrUnknownProvider  = errors.New("live: unknown provider")
)

// Kind classifies failures by how far they propagate.
type Kind string

const (
	// KindAcquisition is a camera or device failure. The session never starts.
	KindAcquisition Kind = "acquisition"

	// KindTransport is a connect or mid-session transport failure, or an error
	// reported by the remote service. The session closes; nothing retries.
	KindTransport Kind = "transport"

	// KindEncode is a per-frame capture, encode or conversion failure. It is
	// absorbed by the capture loop and never reaches the state sink.
	KindEncode Kind = "encode"

	// KindProtocol is a malformed or unrecognized inbound message. The channel
	// can no longer be trusted, so the session closes.
	KindProtocol Kind = "protocol"
)

// Error is a classified failure. Reason is the user-facing text.
type Error struct {
	Kind   Kind
	Op     string
	Reason string
	Err    error
}

func (e *Error) Error() string {
	if e.Op == "" {
		return fmt.Sprintf("live: %s: %s", e.Kind, e.Reason)
	}
	return fmt.Sprintf("live: %s %s: %s", e.Kind, e.Op, e.Reason)
}

func (e *Error) Unwrap() error {
	return e.Err
}

// NewError classifies err. An err that already carries a *Error is returned
// as is so the innermost classification wins.
func NewError(kind Kind, op string, err error) *Error {
	var le *Error
	if errors.As(err, &le) {
		return le
	}
	reason := "unknown error"
	if err != nil {
		reason = err.Error()
	}
	return &Error{Kind: kind, Op: op, Reason: reason, Err: err}
}

// Errorf builds a classified error from a format string.
func Errorf(kind Kind, op, format string, args ...any) *Error {
	return &Error{Kind: kind, Op: op, Reason: fmt.Sprintf(format, args...)}
}

// Reason returns the user-facing reason for err.
func Reason(err error) string {
	if err == nil {
		return ""
	}
	var le *Error
	if errors.As(err, &le) {
		return le.Reason
	}
	return err.Error()
}

// KindOf returns the classification of err, or "" if it has none.
func KindOf(err error) Kind {
	var le *Error
	if errors.As(err, &le) {
		return le.Kind
	}
	return ""
}

// IsKind reports whether err is classified as kind.
func IsKind(err error, kind Kind) bool {
	return err != nil && KindOf(err) == kind
}
