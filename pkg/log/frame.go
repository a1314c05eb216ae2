package log

import "time"

// MaxFrameDataSize is the maximum frame data size included in capture events.
// Larger frames are truncated.
const MaxFrameDataSize = 4096

// NewFrameEvent builds a socket-layer frame event. overhead is the number of
// framing bytes added on the wire.
func NewFrameEvent(connID string, dir Direction, data []byte, overhead int) Event {
	frameData := data
	truncated := false
	if len(data) > MaxFrameDataSize {
		frameData = data[:MaxFrameDataSize]
		truncated = true
	}

	return Event{
		Timestamp:    time.Now(),
		ConnectionID: connID,
		Direction:    dir,
		Layer:        LayerSocket,
		Category:     CategoryMessage,
		Frame: &FrameEvent{
			Size:      len(data) + overhead,
			Data:      frameData,
			Truncated: truncated,
		},
	}
}
