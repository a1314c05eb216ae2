package socket

import (
	"encoding/binary"
	"errors"
	"fmt"
	"io"
	"sync"

	"github.com/tdrs-protocol/tdrs-go/pkg/log"
)

// Framing constants.
const (
	// LengthPrefixSize is the size of the length prefix in bytes.
	LengthPrefixSize = 4

	// DefaultMaxFrameSize is the default maximum frame payload size (1 MiB).
	DefaultMaxFrameSize = 1 << 20
)

// Heartbeat prefixes. A heartbeat is a bare length prefix with no payload;
// neither value is a valid data frame length.
const (
	pingPrefix uint32 = 0
	pongPrefix uint32 = 0xFFFFFFFF
)

// Framing errors.
var (
	// ErrFrameTooLarge indicates the frame exceeds the maximum size.
	ErrFrameTooLarge = errors.New("frame too large")

	// ErrFrameEmpty indicates an empty frame.
	ErrFrameEmpty = errors.New("frame is empty")

	// ErrFrameTruncated indicates the frame was truncated.
	ErrFrameTruncated = errors.New("frame truncated")
)

// FrameWriter writes length-prefixed frames to an underlying writer.
type FrameWriter struct {
	w            io.Writer
	maxFrameSize uint32
	mu           sync.Mutex

	logger log.Logger
	connID string
}

// NewFrameWriter creates a frame writer. A maxSize of 0 means DefaultMaxFrameSize.
func NewFrameWriter(w io.Writer, maxSize uint32) *FrameWriter {
	if maxSize == 0 {
		maxSize = DefaultMaxFrameSize
	}
	return &FrameWriter{
		w:            w,
		maxFrameSize: maxSize,
	}
}

// SetLogger configures capture for this writer.
// Pass nil to disable it.
func (fw *FrameWriter) SetLogger(logger log.Logger, connID string) {
	fw.logger = logger
	fw.connID = connID
}

// WriteFrame writes a length-prefixed frame.
// Thread-safe: can be called from multiple goroutines.
func (fw *FrameWriter) WriteFrame(data []byte) error {
	if len(data) == 0 {
		return ErrFrameEmpty
	}
	if uint32(len(data)) > fw.maxFrameSize {
		return fmt.Errorf("%w: %d > %d", ErrFrameTooLarge, len(data), fw.maxFrameSize)
	}

	fw.mu.Lock()
	defer fw.mu.Unlock()

	// Prefix and payload go out in one write so concurrent readers never see
	// a partial header.
	buf := make([]byte, LengthPrefixSize+len(data))
	binary.BigEndian.PutUint32(buf, uint32(len(data)))
	copy(buf[LengthPrefixSize:], data)

	if _, err := fw.w.Write(buf); err != nil {
		return fmt.Errorf("write frame: %w", err)
	}

	if fw.logger != nil {
		fw.logger.Log(log.NewFrameEvent(fw.connID, log.DirectionOut, data, LengthPrefixSize))
	}

	return nil
}

// WriteHeartbeat writes a ping or pong heartbeat.
func (fw *FrameWriter) WriteHeartbeat(ping bool) error {
	prefix := pongPrefix
	if ping {
		prefix = pingPrefix
	}

	var buf [LengthPrefixSize]byte
	binary.BigEndian.PutUint32(buf[:], prefix)

	fw.mu.Lock()
	defer fw.mu.Unlock()
	if _, err := fw.w.Write(buf[:]); err != nil {
		return fmt.Errorf("write heartbeat: %w", err)
	}
	return nil
}

// HeartbeatHandler is called for every heartbeat read. ping is false for a pong.
type HeartbeatHandler func(ping bool) error

// FrameReader reads length-prefixed frames from an underlying reader.
type FrameReader struct {
	r            io.Reader
	maxFrameSize uint32
	lengthBuf    [LengthPrefixSize]byte
	onHeartbeat  HeartbeatHandler

	logger log.Logger
	connID string
}

// NewFrameReader creates a frame reader. A maxSize of 0 means DefaultMaxFrameSize.
func NewFrameReader(r io.Reader, maxSize uint32) *FrameReader {
	if maxSize == 0 {
		maxSize = DefaultMaxFrameSize
	}
	return &FrameReader{
		r:            r,
		maxFrameSize: maxSize,
	}
}

// SetLogger configures capture for this reader.
// Pass nil to disable it.
func (fr *FrameReader) SetLogger(logger log.Logger, connID string) {
	fr.logger = logger
	fr.connID = connID
}

// SetHeartbeatHandler makes ReadFrame consume heartbeats and report them to h.
// Without a handler a ping reads as ErrFrameEmpty and a pong as
// ErrFrameTooLarge.
func (fr *FrameReader) SetHeartbeatHandler(h HeartbeatHandler) {
	fr.onHeartbeat = h
}

// ReadFrame reads a length-prefixed frame.
// Returns the frame payload (without the length prefix).
func (fr *FrameReader) ReadFrame() ([]byte, error) {
	for {
		payload, heartbeat, err := fr.readFrame()
		if err != nil {
			return nil, err
		}
		if heartbeat == nil {
			return payload, nil
		}
		if err := fr.onHeartbeat(*heartbeat); err != nil {
			return nil, err
		}
	}
}

func (fr *FrameReader) readFrame() ([]byte, *bool, error) {
	if _, err := io.ReadFull(fr.r, fr.lengthBuf[:]); err != nil {
		if err == io.EOF {
			return nil, nil, err
		}
		if errors.Is(err, io.ErrUnexpectedEOF) {
			return nil, nil, ErrFrameTruncated
		}
		return nil, nil, fmt.Errorf("read length prefix: %w", err)
	}

	length := binary.BigEndian.Uint32(fr.lengthBuf[:])
	if fr.onHeartbeat != nil && (length == pingPrefix || length == pongPrefix) {
		ping := length == pingPrefix
		return nil, &ping, nil
	}
	if length == 0 {
		return nil, nil, ErrFrameEmpty
	}
	if length > fr.maxFrameSize {
		return nil, nil, fmt.Errorf("%w: %d > %d", ErrFrameTooLarge, length, fr.maxFrameSize)
	}

	payload := make([]byte, length)
	if _, err := io.ReadFull(fr.r, payload); err != nil {
		if errors.Is(err, io.ErrUnexpectedEOF) || err == io.EOF {
			return nil, nil, ErrFrameTruncated
		}
		return nil, nil, fmt.Errorf("read payload: %w", err)
	}

	if fr.logger != nil {
		fr.logger.Log(log.NewFrameEvent(fr.connID, log.DirectionIn, payload, LengthPrefixSize))
	}

	return payload, nil, nil
}

// Framer combines frame reading and writing.
type Framer struct {
	*FrameReader
	*FrameWriter
}

// NewFramer creates a framer for bidirectional communication.
func NewFramer(rw io.ReadWriter, maxSize uint32) *Framer {
	return &Framer{
		FrameReader: NewFrameReader(rw, maxSize),
		FrameWriter: NewFrameWriter(rw, maxSize),
	}
}

// SetLogger configures capture for both reader and writer.
func (f *Framer) SetLogger(logger log.Logger, connID string) {
	f.FrameReader.SetLogger(logger, connID)
	f.FrameWriter.SetLogger(logger, connID)
}
