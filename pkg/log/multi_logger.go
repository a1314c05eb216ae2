package log

import (
	"io"

	"go.uber.org/multierr"
)

// MultiLogger fans events out to several sinks.
type MultiLogger struct {
	loggers []Logger
}

// NewMultiLogger combines loggers. nil and NoopLogger entries are dropped
// and nested MultiLoggers are flattened.
func NewMultiLogger(loggers ...Logger) *MultiLogger {
	m := &MultiLogger{}
	for _, l := range loggers {
		switch l := l.(type) {
		case nil, NoopLogger:
		case *MultiLogger:
			m.loggers = append(m.loggers, l.loggers...)
		default:
			m.loggers = append(m.loggers, l)
		}
	}
	return m
}

// Log sends the event to every sink.
func (m *MultiLogger) Log(event Event) {
	for _, l := range m.loggers {
		l.Log(event)
	}
}

// Len returns the number of sinks.
func (m *MultiLogger) Len() int {
	return len(m.loggers)
}

// Close closes every sink that is an io.Closer.
func (m *MultiLogger) Close() error {
	var err error
	for _, l := range m.loggers {
		if c, ok := l.(io.Closer); ok {
			err = multierr.Append(err, c.Close())
		}
	}
	return err
}

var (
	_ Logger    = (*MultiLogger)(nil)
	_ io.Closer = (*MultiLogger)(nil)
)
