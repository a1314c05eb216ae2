package control

import (
	"errors"
	"fmt"
	"strings"
)

// Reply statuses.
const (
	ReplyAccepted = "OOK"
	ReplyRejected = "NOK"
)

// Reply layout.
const (
	ReplyStatusLength = 3
	ReplyHashOffset   = 4
)

// ErrMalformedReply indicates a reply frame without a known status.
var ErrMalformedReply = errors.New("malformed reply")

// Reply is a parsed relay reply.
type Reply struct {
	// Status is ReplyAccepted or ReplyRejected.
	Status string

	// Hash identifies the packet the reply refers to (may be empty).
	Hash string
}

// Accepted reports whether the relay accepted the packet.
func (r Reply) Accepted() bool {
	return r.Status == ReplyAccepted
}

// ParseReply parses a reply frame. Parsing is case-insensitive and the hash is
// returned uppercased.
func ParseReply(frame []byte) (Reply, error) {
	msg := strings.ToUpper(string(frame))
	if len(msg) < ReplyStatusLength {
		return Reply{}, fmt.Errorf("%w: %q", ErrMalformedReply, msg)
	}

	status := msg[:ReplyStatusLength]
	if status != ReplyAccepted && status != ReplyRejected {
		return Reply{}, fmt.Errorf("%w: status %q", ErrMalformedReply, status)
	}

	r := Reply{Status: status}
	if len(msg) > ReplyHashOffset {
		r.Hash = msg[ReplyHashOffset:]
	}
	return r, nil
}

// FormatReply renders a reply frame.
func FormatReply(status, hash string) []byte {
	return []byte(status + ":" + hash)
}
