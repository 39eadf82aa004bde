package repl

import (
	"errors"
	"fmt"
)

var (
	// ErrArgument indicates caller misuse, rejected before any I/O.
	ErrArgument = errors.New("invalid argument")
	// ErrConnection indicates the channel could not be opened or the
	// remote did not enter raw mode.
	ErrConnection = errors.New("connection failure")
	// ErrProtocol indicates an unexpected byte at a negotiation or
	// confirmation point.
	ErrProtocol = errors.New("protocol violation")
	// ErrTimeout indicates no byte was observed within a bound.
	ErrTimeout = errors.New("timeout")
	// ErrResponseTooLarge indicates a response section exceeded the cap.
	ErrResponseTooLarge = errors.New("response too large")
	// ErrNotConnected is returned by operations requiring a connection.
	ErrNotConnected = &ConnectionError{Op: "session", Err: errors.New("not connected")}
)

// ConnectionError wraps failures opening or establishing the session.
type ConnectionError struct {
	Op  string
	Err error
}

// Error implements error.
func (e *ConnectionError) Error() string {
	if e.Err == nil {
		return fmt.Sprintf("%s: connection failure", e.Op)
	}
	return fmt.Sprintf("%s: connection failure: %v", e.Op, e.Err)
}

// Unwrap returns the underlying error.
func (e *ConnectionError) Unwrap() error { return e.Err }

// Is matches ErrConnection.
func (e *ConnectionError) Is(target error) bool { return target == ErrConnection }

// ProtocolError reports the bytes received where something else was expected.
type ProtocolError struct {
	Stage string
	Got   []byte
}

// Error implements error.
func (e *ProtocolError) Error() string {
	return fmt.Sprintf("%s: protocol violation: unexpected %q", e.Stage, e.Got)
}

// Is matches ErrProtocol.
func (e *ProtocolError) Is(target error) bool { return target == ErrProtocol }

// TimeoutError reports the stage that waited in vain.
type TimeoutError struct {
	Stage string
}

// Error implements error.
func (e *TimeoutError) Error() string {
	return fmt.Sprintf("%s: timeout", e.Stage)
}

// Timeout implements the net.Error style timeout probe.
func (e *TimeoutError) Timeout() bool { return true }

// Is matches ErrTimeout.
func (e *TimeoutError) Is(target error) bool { return target == ErrTimeout }

// RemoteError carries the error section printed by the remote interpreter,
// usually a traceback.
type RemoteError struct {
	Text string
}

// Error implements error. The message is the remote text, unmodified.
func (e *RemoteError) Error() string { return e.Text }

func argumentError(format string, args ...interface{}) error {
	return fmt.Errorf("%w: "+format, append([]interface{}{ErrArgument}, args...)...)
}

func tooLarge(stage string, limit int) error {
	return fmt.Errorf("%s: %w (over %d bytes)", stage, ErrResponseTooLarge, limit)
}

// negotiationError is recovered locally by falling back to plain raw mode.
type negotiationError struct {
	reply []byte
}

func (e *negotiationError) Error() string {
	return fmt.Sprintf("raw-paste not available (reply %q)", e.reply)
}
