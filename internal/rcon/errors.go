package rcon

import (
	"errors"
	"fmt"
	"net"
)

// ErrAuthFailed is returned when the server rejects the RCON password,
// signaled on the wire by a response carrying request id -1.
var ErrAuthFailed = errors.New("rcon: authentication rejected")

// ErrClosed is returned when an operation is attempted on a closed client.
var ErrClosed = errors.New("rcon: connection closed")

// TransportError wraps socket-level failures: refused connections, broken
// pipes, and request timeouts.
type TransportError struct {
	Err error
	Op  string
}

func (e *TransportError) Error() string {
	return fmt.Sprintf("rcon: %s: %v", e.Op, e.Err)
}

func (e *TransportError) Unwrap() error {
	return e.Err
}

// Timeout reports whether the underlying failure was a deadline expiry.
func (e *TransportError) Timeout() bool {
	var nerr net.Error
	if errors.As(e.Err, &nerr) {
		return nerr.Timeout()
	}

	return false
}

// ProtocolError reports a malformed or unexpected packet: bad length prefix,
// an identifier that matches no outstanding request, or a truncated frame.
type ProtocolError struct {
	Reason string
}

func (e *ProtocolError) Error() string {
	return "rcon: protocol error: " + e.Reason
}
