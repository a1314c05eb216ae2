package control

import (
	"regexp"
	"strings"
)

// Peer events.
const (
	PeerEnter = "ENTER"
	PeerExit  = "EXIT"
)

// Wildcard marks an unknown protocol, host or port.
const Wildcard = "*"

var peerPattern = regexp.MustCompile(
	`^(?i:PEER):([A-Za-z]+):([A-Za-z0-9._-]+):` +
		`([A-Za-z0-9+]+|\*):([^:\s]+):([0-9]*|\*):` +
		`([A-Za-z0-9+]+|\*):([^:\s]+):([0-9]*|\*)$`)

// Endpoint is one side of a peer announcement.
type Endpoint struct {
	Protocol string
	Host     string
	Port     string
}

// Address renders the endpoint as "<proto>://<host>[:<port>]".
func (e Endpoint) Address() string {
	addr := orWildcard(e.Protocol) + "://" + orWildcard(e.Host)
	if e.Port != "" && e.Port != Wildcard {
		addr += ":" + e.Port
	}
	return addr
}

// PeerMessage is a parsed peer presence notification.
type PeerMessage struct {
	// Event is the uppercased event name (ENTER, EXIT or anything else).
	Event string

	// ID identifies the peer.
	ID string

	// Publisher is the peer's broadcast endpoint.
	Publisher Endpoint

	// Receiver is the peer's request endpoint.
	Receiver Endpoint
}

// PublisherAddress returns the publisher endpoint address.
func (m *PeerMessage) PublisherAddress() string {
	return m.Publisher.Address()
}

// ReceiverAddress returns the receiver endpoint address.
func (m *PeerMessage) ReceiverAddress() string {
	return m.Receiver.Address()
}

// ParsePeer parses a peer frame. It returns nil when the frame is not a
// well-formed peer message.
func ParsePeer(frame string) *PeerMessage {
	m := peerPattern.FindStringSubmatch(strings.TrimSpace(frame))
	if m == nil {
		return nil
	}
	return &PeerMessage{
		Event: strings.ToUpper(m[1]),
		ID:    m[2],
		Publisher: Endpoint{
			Protocol: m[3],
			Host:     m[4],
			Port:     m[5],
		},
		Receiver: Endpoint{
			Protocol: m[6],
			Host:     m[7],
			Port:     m[8],
		},
	}
}

// FormatPeer renders a peer frame. Empty fields become the wildcard.
func FormatPeer(m PeerMessage) string {
	fields := []string{
		"PEER",
		strings.ToUpper(m.Event),
		m.ID,
		orWildcard(m.Publisher.Protocol),
		orWildcard(m.Publisher.Host),
		orWildcard(m.Publisher.Port),
		orWildcard(m.Receiver.Protocol),
		orWildcard(m.Receiver.Host),
		orWildcard(m.Receiver.Port),
	}
	return strings.Join(fields, ":")
}

func orWildcard(s string) string {
	if s == "" {
		return Wildcard
	}
	return s
}
