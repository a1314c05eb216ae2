package log

import (
	"time"
)

// Event represents a protocol log event captured at any layer.
// CBOR encoding uses integer keys for compactness.
type Event struct {
	// Timestamp when the event occurred (nanosecond precision).
	Timestamp time.Time `cbor:"1,keyasint"`

	// ConnectionID identifies the capturing socket or transport.
	ConnectionID string `cbor:"2,keyasint"`

	// Direction indicates message flow.
	Direction Direction `cbor:"3,keyasint"`

	// Layer where the event was captured.
	Layer Layer `cbor:"4,keyasint"`

	// Category classifies the event type.
	Category Category `cbor:"5,keyasint"`

	// Channel is the link channel the event belongs to.
	Channel Channel `cbor:"6,keyasint,omitempty"`

	// RemoteAddr is the peer address.
	RemoteAddr string `cbor:"7,keyasint,omitempty"`

	// LinkID is the link identifier (may be empty for static links).
	LinkID string `cbor:"8,keyasint,omitempty"`

	// Type-specific payload (one of these will be set).
	Frame       *FrameEvent       `cbor:"10,keyasint,omitempty"` // Socket layer
	Packet      *PacketEvent      `cbor:"11,keyasint,omitempty"` // Transport layer
	StateChange *StateChangeEvent `cbor:"12,keyasint,omitempty"` // Channel/link state
	ControlMsg  *ControlMsgEvent  `cbor:"13,keyasint,omitempty"` // TERMINATE/PEER/OOK/NOK
	Error       *ErrorEventData   `cbor:"14,keyasint,omitempty"` // Errors at any layer
}

// Direction indicates the direction of message flow.
type Direction uint8

const (
	// DirectionIn indicates an incoming message.
	DirectionIn Direction = 0
	// DirectionOut indicates an outgoing message.
	DirectionOut Direction = 1
)

// String returns the direction name.
func (d Direction) String() string {
	switch d {
	case DirectionIn:
		return "IN"
	case DirectionOut:
		return "OUT"
	default:
		return "UNKNOWN"
	}
}

// Layer indicates which layer captured the event.
type Layer uint8

const (
	// LayerSocket is the socket fabric (raw frames).
	LayerSocket Layer = 0
	// LayerCodec is the compression/encryption pipeline.
	LayerCodec Layer = 1
	// LayerTransport is the transport core (pool, cache, dispatch).
	LayerTransport Layer = 2
	// LayerRelay is the relay server.
	LayerRelay Layer = 3
)

// String returns the layer name.
func (l Layer) String() string {
	switch l {
	case LayerSocket:
		return "SOCKET"
	case LayerCodec:
		return "CODEC"
	case LayerTransport:
		return "TRANSPORT"
	case LayerRelay:
		return "RELAY"
	default:
		return "UNKNOWN"
	}
}

// Category classifies the event type.
type Category uint8

const (
	// CategoryMessage indicates a data frame or packet.
	CategoryMessage Category = 0
	// CategoryControl indicates a control frame.
	CategoryControl Category = 1
	// CategoryState indicates a state change.
	CategoryState Category = 2
	// CategoryError indicates an error event.
	CategoryError Category = 3
)

// String returns the category name.
func (c Category) String() string {
	switch c {
	case CategoryMessage:
		return "MESSAGE"
	case CategoryControl:
		return "CONTROL"
	case CategoryState:
		return "STATE"
	case CategoryError:
		return "ERROR"
	default:
		return "UNKNOWN"
	}
}

// Channel identifies one of a link's two channels.
type Channel uint8

const (
	// ChannelNone is used for events not bound to a channel.
	ChannelNone Channel = 0
	// ChannelPublisher is the broadcast channel.
	ChannelPublisher Channel = 1
	// ChannelReceiver is the request channel.
	ChannelReceiver Channel = 2
)

// String returns the channel name.
func (c Channel) String() string {
	switch c {
	case ChannelNone:
		return "NONE"
	case ChannelPublisher:
		return "PUBLISHER"
	case ChannelReceiver:
		return "RECEIVER"
	default:
		return "UNKNOWN"
	}
}

// FrameEvent captures raw frame data at the socket layer.
type FrameEvent struct {
	// Size is the frame size in bytes (including any length prefix).
	Size int `cbor:"1,keyasint"`

	// Data is the raw frame bytes (may be truncated for large frames).
	Data []byte `cbor:"2,keyasint,omitempty"`

	// Truncated indicates if Data was truncated.
	Truncated bool `cbor:"3,keyasint,omitempty"`
}

// PacketEvent captures delivery tracking of one data packet.
type PacketEvent struct {
	// Hash is the packet's content hash.
	Hash string `cbor:"1,keyasint"`

	// Status is the packet's delivery status after the event.
	Status string `cbor:"2,keyasint,omitempty"`

	// Size is the wire-encoded size in bytes.
	Size int `cbor:"3,keyasint,omitempty"`

	// Echo is set when the packet was confirmed by its own echo.
	Echo bool `cbor:"4,keyasint,omitempty"`
}

// StateChangeEvent captures channel and link lifecycle events.
type StateChangeEvent struct {
	// Entity being changed.
	Entity StateEntity `cbor:"1,keyasint"`

	// OldState is the previous state (may be empty).
	OldState string `cbor:"2,keyasint,omitempty"`

	// NewState is the new state.
	NewState string `cbor:"3,keyasint"`

	// Reason for the change (if available).
	Reason string `cbor:"4,keyasint,omitempty"`
}

// StateEntity indicates what entity changed state.
type StateEntity uint8

const (
	// StateEntityChannel indicates a channel state change.
	StateEntityChannel StateEntity = 0
	// StateEntityLink indicates a link activation change.
	StateEntityLink StateEntity = 1
	// StateEntityRelay indicates a relay lifecycle change.
	StateEntityRelay StateEntity = 2
)

// String returns the state entity name.
func (s StateEntity) String() string {
	switch s {
	case StateEntityChannel:
		return "CHANNEL"
	case StateEntityLink:
		return "LINK"
	case StateEntityRelay:
		return "RELAY"
	default:
		return "UNKNOWN"
	}
}

// ControlMsgEvent captures control frames.
type ControlMsgEvent struct {
	// Type of control message.
	Type ControlMsgType `cbor:"1,keyasint"`

	// Hash is the referenced packet for OOK/NOK.
	Hash string `cbor:"2,keyasint,omitempty"`

	// PeerID is the peer for PEER frames.
	PeerID string `cbor:"3,keyasint,omitempty"`
}

// ControlMsgType indicates the type of control message.
type ControlMsgType uint8

const (
	// ControlMsgTerminate indicates a TERMINATE frame.
	ControlMsgTerminate ControlMsgType = 0
	// ControlMsgPeerEnter indicates a PEER:ENTER frame.
	ControlMsgPeerEnter ControlMsgType = 1
	// ControlMsgPeerExit indicates a PEER:EXIT frame.
	ControlMsgPeerExit ControlMsgType = 2
	// ControlMsgAccepted indicates an OOK reply.
	ControlMsgAccepted ControlMsgType = 3
	// ControlMsgRejected indicates a NOK reply.
	ControlMsgRejected ControlMsgType = 4
)

// String returns the control message type name.
func (c ControlMsgType) String() string {
	switch c {
	case ControlMsgTerminate:
		return "TERMINATE"
	case ControlMsgPeerEnter:
		return "PEER_ENTER"
	case ControlMsgPeerExit:
		return "PEER_EXIT"
	case ControlMsgAccepted:
		return "OOK"
	case ControlMsgRejected:
		return "NOK"
	default:
		return "UNKNOWN"
	}
}

// ErrorEventData captures errors at any layer.
type ErrorEventData struct {
	// Layer where the error occurred.
	Layer Layer `cbor:"1,keyasint"`

	// Message is the error message.
	Message string `cbor:"2,keyasint"`

	// Fatal marks protocol inconsistencies.
	Fatal bool `cbor:"3,keyasint,omitempty"`

	// Context describes what operation was being performed.
	Context string `cbor:"4,keyasint,omitempty"`
}
