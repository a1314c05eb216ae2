package control

import (
	"bytes"
)

// Terminate is the terminate control literal.
const Terminate = "TERMINATE"

// PeerPrefix starts every peer presence frame.
const PeerPrefix = "PEER:"

// Kind classifies a broadcast channel frame.
type Kind uint8

const (
	// KindData is an application data frame.
	KindData Kind = iota

	// KindTerminate is the terminate signal.
	KindTerminate

	// KindPeer is a peer presence notification.
	KindPeer
)

// String returns the kind name.
func (k Kind) String() string {
	switch k {
	case KindData:
		return "DATA"
	case KindTerminate:
		return "TERMINATE"
	case KindPeer:
		return "PEER"
	default:
		return "UNKNOWN"
	}
}

// Classify determines the kind of a broadcast frame without decoding it.
func Classify(frame []byte) Kind {
	if IsTerminate(frame) {
		return KindTerminate
	}
	if len(frame) >= len(PeerPrefix) && bytes.EqualFold(frame[:len(PeerPrefix)], []byte(PeerPrefix)) {
		return KindPeer
	}
	return KindData
}

// IsTerminate reports whether frame is the terminate literal in any casing.
func IsTerminate(frame []byte) bool {
	return bytes.EqualFold(frame, []byte(Terminate))
}
