package stream

import (
	"errors"
	"fmt"
)

var (
	// ErrNotConnected is returned by Run before a successful Connect.
	ErrNotConnected = errors.New("stream: dispatcher is not connected")
	// ErrInvalidState is returned when an operation does not apply to the
	// dispatcher's current state, such as connecting twice.
	ErrInvalidState = errors.New("stream: invalid dispatcher state")
)

// EndpointError reports a subscription URL that does not parse.
type EndpointError struct {
	URL string
	Err error
}

func (e *EndpointError) Error() string {
	return fmt.Sprintf("stream: bad endpoint %q: %v", e.URL, e.Err)
}

func (e *EndpointError) Unwrap() error { return e.Err }

// HandshakeError reports a transport that could not be established.
type HandshakeError struct {
	URL string
	Err error
}

func (e *HandshakeError) Error() string {
	return fmt.Sprintf("stream: handshake with %s failed: %v", e.URL, e.Err)
}

func (e *HandshakeError) Unwrap() error { return e.Err }

// TransportError reports a read failure that terminated Run.
type TransportError struct {
	Err error
}

func (e *TransportError) Error() string {
	return fmt.Sprintf("stream: transport read failed: %v", e.Err)
}

func (e *TransportError) Unwrap() error { return e.Err }

// DecodeError reports a classified frame whose payload did not match the
// schema of its kind. The frame is dropped.
type DecodeError struct {
	Kind Kind
	Err  error
}

func (e *DecodeError) Error() string {
	return fmt.Sprintf("stream: decode %s: %v", e.Kind, e.Err)
}

func (e *DecodeError) Unwrap() error { return e.Err }

// UnknownFrameError reports a frame matching no discriminator token.
type UnknownFrameError struct {
	Frame []byte
}

func (e *UnknownFrameError) Error() string {
	const limit = 64
	frame := e.Frame
	if len(frame) > limit {
		return fmt.Sprintf("stream: unknown frame %q...", frame[:limit])
	}
	return fmt.Sprintf("stream: unknown frame %q", frame)
}
