package tdrs

import (
	"errors"
	"fmt"
)

// Error kinds. Every error returned by a Transport wraps one of them.
var (
	// ErrConfiguration indicates misuse of the session configuration.
	ErrConfiguration = errors.New("configuration error")

	// ErrTransport indicates a socket could not be created.
	ErrTransport = errors.New("transport error")

	// ErrCodec indicates a payload could not be encoded or decoded.
	ErrCodec = errors.New("codec error")

	// ErrProtocol indicates a reply or cache state that violates the
	// delivery protocol.
	ErrProtocol = errors.New("protocol error")

	// ErrNoActiveConnection is returned by Send when no ready connection
	// appeared within the send timeout.
	ErrNoActiveConnection = errors.New("no active connection")

	// ErrSendFailed is returned by Send when the request socket refused
	// the frame or the write timed out.
	ErrSendFailed = errors.New("send failed")

	// ErrEmptyPayload is returned by Send for a nil or empty payload. The
	// relay rejects empty frames, so such a packet could never be delivered.
	ErrEmptyPayload = errors.New("empty payload")

	// ErrClosed is returned by operations on a closed transport.
	ErrClosed = errors.New("transport closed")
)

// Configuration errors.
var (
	ErrNoLinks          = fmt.Errorf("%w: no links configured", ErrConfiguration)
	ErrAlreadyConnected = fmt.Errorf("%w: already connected", ErrConfiguration)
)
