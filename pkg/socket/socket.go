package socket

import (
	"errors"
	"fmt"
	"net"
	"net/url"
	"time"
)

// Socket errors.
var (
	// ErrNotConnected is returned by Send while the socket has no connection.
	ErrNotConnected = errors.New("socket not connected")

	// ErrNotSupported is returned by Send on a Subscriber socket.
	ErrNotSupported = errors.New("operation not supported by socket kind")

	// ErrClosed is returned by operations on a closed socket.
	ErrClosed = errors.New("socket closed")

	// ErrInvalidAddress indicates an address that cannot be parsed.
	ErrInvalidAddress = errors.New("invalid socket address")

	// ErrUnsupportedScheme indicates an address scheme no dialer handles.
	ErrUnsupportedScheme = errors.New("unsupported address scheme")
)

// Address schemes.
const (
	SchemeTCP       = "tcp"
	SchemeWebSocket = "ws"
)

// Kind selects the client socket role.
type Kind uint8

const (
	// Subscriber receives every frame broadcast by a publisher endpoint.
	Subscriber Kind = iota

	// Requester sends frames to a receiver endpoint and receives replies.
	Requester
)

// String returns the kind name.
func (k Kind) String() string {
	switch k {
	case Subscriber:
		return "subscriber"
	case Requester:
		return "requester"
	default:
		return "unknown"
	}
}

// EventKind identifies a socket event.
type EventKind uint8

const (
	EventConnect EventKind = iota
	EventConnectDelay
	EventConnectRetry
	EventDisconnect
	EventClose
	EventCloseError
	EventMonitorError
	EventMessage
)

// String returns the event name.
func (k EventKind) String() string {
	switch k {
	case EventConnect:
		return "connect"
	case EventConnectDelay:
		return "connect_delay"
	case EventConnectRetry:
		return "connect_retry"
	case EventDisconnect:
		return "disconnect"
	case EventClose:
		return "close"
	case EventCloseError:
		return "close_error"
	case EventMonitorError:
		return "monitor_error"
	case EventMessage:
		return "message"
	default:
		return "unknown"
	}
}

// Event is a socket lifecycle or data event.
type Event struct {
	Kind EventKind

	// Address is the address the socket was dialed with.
	Address string

	// Data is the frame for EventMessage.
	Data []byte

	// Err is the cause for delay, disconnect, close_error and monitor_error.
	Err error

	// Delay is the scheduled wait for EventConnectDelay.
	Delay time.Duration
}

// Handler receives socket events. Events of one socket are delivered in
// order from a single goroutine, never from the goroutine that called Dial.
type Handler func(Event)

// Socket is a client socket.
type Socket interface {
	// Send transmits one frame. It fails with ErrNotConnected while the
	// socket is between connections.
	Send(data []byte) error

	// Address returns the address the socket was dialed with.
	Address() string

	// Close stops the socket. It does not wait for the handler to observe
	// the close event and is safe to call from inside the handler.
	Close() error
}

// Dialer creates client sockets.
type Dialer interface {
	// Dial creates a socket and starts connecting in the background. An
	// error means the socket could not be created at all.
	Dial(kind Kind, address string, handler Handler) (Socket, error)
}

// Peer is the server side of an accepted client connection.
type Peer interface {
	// ID uniquely identifies the connection.
	ID() string

	// RemoteAddr describes the remote side.
	RemoteAddr() string

	// Send transmits one frame to the client.
	Send(data []byte) error

	// Close drops the connection.
	Close() error
}

// ListenConfig holds the callbacks of a listener.
type ListenConfig struct {
	// OnConnect is called when a client connects.
	OnConnect func(p Peer)

	// OnMessage is called for each frame a client sends.
	OnMessage func(p Peer, data []byte)

	// OnDisconnect is called when a client connection ends.
	OnDisconnect func(p Peer)

	// OnError is called for accept and read failures.
	OnError func(p Peer, err error)
}

// Listener is a bound server endpoint.
type Listener interface {
	// Address returns the bound address, with the actual port.
	Address() string

	// Close stops accepting and drops all peers.
	Close() error
}

// Binder creates listeners.
type Binder interface {
	Listen(address string, cfg ListenConfig) (Listener, error)
}

// Address is a parsed socket address.
type Address struct {
	Scheme string
	Host   string
	Path   string
}

// String renders the address.
func (a Address) String() string {
	return a.Scheme + "://" + a.Host + a.Path
}

// ParseAddress parses "<scheme>://<host>:<port>[/path]".
func ParseAddress(s string) (Address, error) {
	u, err := url.Parse(s)
	if err != nil {
		return Address{}, fmt.Errorf("%w: %q: %v", ErrInvalidAddress, s, err)
	}
	if u.Host == "" {
		return Address{}, fmt.Errorf("%w: %q: missing host", ErrInvalidAddress, s)
	}

	switch u.Scheme {
	case SchemeTCP:
		if u.Path != "" {
			return Address{}, fmt.Errorf("%w: %q: tcp address with path", ErrInvalidAddress, s)
		}
	case SchemeWebSocket:
	default:
		return Address{}, fmt.Errorf("%w: %q", ErrUnsupportedScheme, u.Scheme)
	}

	if _, _, err := net.SplitHostPort(u.Host); err != nil {
		return Address{}, fmt.Errorf("%w: %q: %v", ErrInvalidAddress, s, err)
	}

	return Address{Scheme: u.Scheme, Host: u.Host, Path: u.Path}, nil
}
