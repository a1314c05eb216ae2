package log

import (
	"errors"
	"fmt"
	"os"
	"time"

	"github.com/fxamacker/cbor/v2"
)

// Capture streams are CBOR sequences. Every writer session starts with a
// SessionHeader, followed by its Events. Appending to a file starts a new
// session, so one file may hold several.

// CaptureVersion is the capture format version written by this package.
const CaptureVersion = 1

const captureMagic = "tdrs-capture"

// ErrUnsupportedCapture is returned for capture streams written by a newer format.
var ErrUnsupportedCapture = errors.New("unsupported capture format")

// SessionHeader opens one capture session. It uses text keys so it can never
// be mistaken for an integer-keyed Event.
type SessionHeader struct {
	Magic   string    `cbor:"magic"`
	Version int       `cbor:"version"`
	Started time.Time `cbor:"started"`
	Host    string    `cbor:"host,omitempty"`
	PID     int       `cbor:"pid,omitempty"`
}

func newSessionHeader() SessionHeader {
	host, _ := os.Hostname()
	return SessionHeader{
		Magic:   captureMagic,
		Version: CaptureVersion,
		Started: time.Now().UTC(),
		Host:    host,
		PID:     os.Getpid(),
	}
}

var (
	encMode = mustEncMode()
	decMode = mustDecMode()
)

// Deterministic encoding with nanosecond timestamps.
func mustEncMode() cbor.EncMode {
	mode, err := cbor.EncOptions{
		Sort:          cbor.SortCoreDeterministic,
		IndefLength:   cbor.IndefLengthForbidden,
		NilContainers: cbor.NilContainerAsNull,
		Time:          cbor.TimeRFC3339Nano,
	}.EncMode()
	if err != nil {
		panic(fmt.Sprintf("log: capture encoder mode: %v", err))
	}
	return mode
}

func mustDecMode() cbor.DecMode {
	mode, err := cbor.DecOptions{
		DupMapKey:   cbor.DupMapKeyQuiet,
		IndefLength: cbor.IndefLengthAllowed,
	}.DecMode()
	if err != nil {
		panic(fmt.Sprintf("log: capture decoder mode: %v", err))
	}
	return mode
}

// EncodeEvent encodes a single event.
func EncodeEvent(event Event) ([]byte, error) {
	return encMode.Marshal(event)
}

// DecodeEvent decodes a single event.
func DecodeEvent(data []byte) (Event, error) {
	var event Event
	if err := decMode.Unmarshal(data, &event); err != nil {
		return Event{}, err
	}
	return event, nil
}

// decodeRecord decodes one record of a capture stream. header is non-nil
// when the record opens a session.
func decodeRecord(raw cbor.RawMessage) (header *SessionHeader, event Event, err error) {
	var head struct {
		Magic string `cbor:"magic"`
	}
	if decMode.Unmarshal(raw, &head) == nil && head.Magic == captureMagic {
		var h SessionHeader
		if err := decMode.Unmarshal(raw, &h); err != nil {
			return nil, Event{}, fmt.Errorf("session header: %w", err)
		}
		if h.Version > CaptureVersion {
			return nil, Event{}, fmt.Errorf("%w: version %d", ErrUnsupportedCapture, h.Version)
		}
		return &h, Event{}, nil
	}
	event, err = DecodeEvent(raw)
	return nil, event, err
}
