package radio

import (
	"errors"
	"fmt"
)

var (
	// ErrNoDialer is returned when a Session is constructed without a Dialer.
	//
	// This indicates a configuration error. A Dialer is required in order to
	// establish a connection to the radio.
	ErrNoDialer = errors.New("no dialer configured")

	// ErrInvalidConfig wraps every other configuration validation failure.
	ErrInvalidConfig = errors.New("invalid radio config")

	// ErrNotInitialized is returned when the Dialer produced no Transport.
	ErrNotInitialized = errors.New("radio not initialized")

	// ErrAlreadyClosed is returned when Close is called on a Session that has
	// already been closed.
	ErrAlreadyClosed = errors.New("radio session already closed")

	// ErrDisconnected is returned by operations on a Session that has reached
	// the Disconnected state. The session cannot be revived; the caller has
	// to create a new one.
	ErrDisconnected = errors.New("radio session disconnected")

	// ErrNotReady is returned when a transmission is requested while the
	// session is still initializing.
	ErrNotReady = errors.New("radio session not ready")

	// ErrChannelBroken is returned by Channel.Send after a previous write
	// failed. A broken channel is never reused.
	ErrChannelBroken = errors.New("command channel broken")

	// ErrResponseTimeout is returned in acknowledgement mode when the radio
	// does not answer a command in time.
	ErrResponseTimeout = errors.New("no response from radio")

	// ErrLineTooLong is returned when a radio response line exceeds the
	// maximum allowed length.
	//
	// This typically indicates a wrong baud rate, unexpected binary data,
	// or a protocol framing error.
	ErrLineTooLong = errors.New("response line too long")

	// ErrPayloadTooLarge is returned when a payload exceeds the configured
	// maximum. The session stays usable.
	ErrPayloadTooLarge = errors.New("payload too large")
)

// TransportError reports an I/O failure on the connection. It is always
// fatal to the session.
type TransportError struct {
	// Command is the command being written, empty for read failures.
	Command string
	Err     error
}

func (e *TransportError) Error() string {
	if e.Command == "" {
		return fmt.Sprintf("radio transport: %v", e.Err)
	}
	return fmt.Sprintf("radio transport: write command %q: %v", e.Command, e.Err)
}

func (e *TransportError) Unwrap() error { return e.Err }

// ProtocolError reports a response the controller cannot accept: an error
// token answering a command, or no answer at all in acknowledgement mode.
type ProtocolError struct {
	Command  string
	Response string
	// Err is set when there was no usable response, e.g. ErrResponseTimeout.
	Err error
}

func (e *ProtocolError) Error() string {
	if e.Err != nil {
		return fmt.Sprintf("radio protocol: command %q: %v", e.Command, e.Err)
	}
	return fmt.Sprintf("radio protocol: command %q answered %q", e.Command, e.Response)
}

func (e *ProtocolError) Unwrap() error { return e.Err }

// PartialTransmitError reports a transmit step that failed after the control
// pin was asserted. The pin state on the module is unknown, so the session
// is torn down.
type PartialTransmitError struct {
	// Step is the sequence step that failed (3 for the radio tx command,
	// 5 for the pin deassert).
	Step         int
	Command      string
	LastResponse string
	PinAsserted  bool
	Err          error
}

func (e *PartialTransmitError) Error() string {
	return fmt.Sprintf("radio transmit step %d (%q) failed, control pin asserted=%t, last response %q: %v",
		e.Step, e.Command, e.PinAsserted, e.LastResponse, e.Err)
}

func (e *PartialTransmitError) Unwrap() error { return e.Err }
