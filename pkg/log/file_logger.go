package log

import (
	"io"
	"os"
	"sync"
	"sync/atomic"
)

// StreamLogger writes one capture session to w. Events that fail to encode
// or write are counted and dropped.
type StreamLogger struct {
	mu      sync.Mutex
	w       io.Writer
	started bool
	dropped atomic.Uint64
}

// NewStreamLogger creates a StreamLogger. The session header is written
// with the first event.
func NewStreamLogger(w io.Writer) *StreamLogger {
	return &StreamLogger{w: w}
}

// Log appends event to the stream.
func (l *StreamLogger) Log(event Event) {
	data, err := EncodeEvent(event)
	if err != nil {
		l.dropped.Add(1)
		return
	}

	l.mu.Lock()
	defer l.mu.Unlock()
	if l.w == nil {
		return
	}
	if !l.started {
		header, err := encMode.Marshal(newSessionHeader())
		if err != nil {
			l.dropped.Add(1)
			return
		}
		if _, err := l.w.Write(header); err != nil {
			l.dropped.Add(1)
			return
		}
		l.started = true
	}
	if _, err := l.w.Write(data); err != nil {
		l.dropped.Add(1)
	}
}

// Dropped reports how many events could not be written.
func (l *StreamLogger) Dropped() uint64 {
	return l.dropped.Load()
}

func (l *StreamLogger) detach() io.Writer {
	l.mu.Lock()
	defer l.mu.Unlock()
	w := l.w
	l.w = nil
	return w
}

// FileLogger appends capture sessions to a .tlog file.
type FileLogger struct {
	*StreamLogger
	file *os.File
	once sync.Once
	err  error
}

// NewFileLogger opens path for appending, creating it with mode 0644.
func NewFileLogger(path string) (*FileLogger, error) {
	f, err := os.OpenFile(path, os.O_CREATE|os.O_APPEND|os.O_WRONLY, 0o644)
	if err != nil {
		return nil, err
	}
	return &FileLogger{StreamLogger: NewStreamLogger(f), file: f}, nil
}

// Close flushes and closes the file. Later events are ignored.
func (l *FileLogger) Close() error {
	l.once.Do(func() {
		l.detach()
		if err := l.file.Sync(); err != nil {
			l.err = err
		}
		if err := l.file.Close(); err != nil && l.err == nil {
			l.err = err
		}
	})
	return l.err
}

var (
	_ Logger    = (*StreamLogger)(nil)
	_ Logger    = (*FileLogger)(nil)
	_ io.Closer = (*FileLogger)(nil)
)
