package log

import (
	"io"
	"os"
	"time"

	"github.com/fxamacker/cbor/v2"
)

// Filter specifies criteria for filtering log events.
// Empty/nil fields match all events for that criterion.
type Filter struct {
	// ConnectionID filters by exact connection ID match.
	ConnectionID string

	// Direction filters by message direction.
	Direction *Direction

	// Layer filters by protocol layer.
	Layer *Layer

	// Category filters by event category.
	Category *Category

	// TimeStart filters events at or after this time.
	TimeStart *time.Time

	// TimeEnd filters events before this time.
	TimeEnd *time.Time

	// Channel filters by link channel.
	Channel *Channel

	// LinkID filters by link ID.
	LinkID string
}

// matches returns true if the event matches all filter criteria.
func (f *Filter) matches(event Event) bool {
	if f.ConnectionID != "" && event.ConnectionID != f.ConnectionID {
		return false
	}
	if f.Direction != nil && event.Direction != *f.Direction {
		return false
	}
	if f.Layer != nil && event.Layer != *f.Layer {
		return false
	}
	if f.Category != nil && event.Category != *f.Category {
		return false
	}
	if f.TimeStart != nil && event.Timestamp.Before(*f.TimeStart) {
		return false
	}
	if f.TimeEnd != nil && !event.Timestamp.Before(*f.TimeEnd) {
		return false
	}
	if f.Channel != nil && event.Channel != *f.Channel {
		return false
	}
	if f.LinkID != "" && event.LinkID != f.LinkID {
		return false
	}
	return true
}

// Reader iterates over the events of a capture stream, skipping session
// headers. Session reports the header of the session being read.
type Reader struct {
	closer   io.Closer
	decoder  *cbor.Decoder
	filter   Filter
	session  *SessionHeader
	sessions int
}

// NewReader creates a Reader that reads all events from the specified capture file.
func NewReader(path string) (*Reader, error) {
	return NewFilteredReader(path, Filter{})
}

// NewFilteredReader creates a Reader that reads events matching the filter.
func NewFilteredReader(path string, filter Filter) (*Reader, error) {
	f, err := os.Open(path)
	if err != nil {
		return nil, err
	}
	return &Reader{
		closer:  f,
		decoder: decMode.NewDecoder(f),
		filter:  filter,
	}, nil
}

// NewStreamReader reads events matching the filter from r.
func NewStreamReader(r io.Reader, filter Filter) *Reader {
	return &Reader{
		decoder: decMode.NewDecoder(r),
		filter:  filter,
	}
}

// Next returns the next event that matches the filter.
// Returns io.EOF when no more events are available.
func (r *Reader) Next() (Event, error) {
	for {
		var raw cbor.RawMessage
		if err := r.decoder.Decode(&raw); err != nil {
			return Event{}, err
		}

		header, event, err := decodeRecord(raw)
		if err != nil {
			return Event{}, err
		}
		if header != nil {
			r.session = header
			r.sessions++
			continue
		}
		if r.filter.matches(event) {
			return event, nil
		}
	}
}

// Session returns the header of the current session, or nil for streams
// without one.
func (r *Reader) Session() *SessionHeader {
	return r.session
}

// Sessions returns how many session headers have been read so far.
func (r *Reader) Sessions() int {
	return r.sessions
}

// Close closes the underlying file, if any.
func (r *Reader) Close() error {
	if r.closer == nil {
		return nil
	}
	return r.closer.Close()
}
