package log

// Logger receives protocol capture events. Log is called from socket and
// transport goroutines concurrently and must not block for long.
type Logger interface {
	Log(event Event)
}

// LoggerFunc adapts a function to Logger.
type LoggerFunc func(Event)

// Log calls f(event).
func (f LoggerFunc) Log(event Event) { f(event) }

// NoopLogger discards all events.
type NoopLogger struct{}

// Log discards the event.
func (NoopLogger) Log(Event) {}

var (
	_ Logger = LoggerFunc(nil)
	_ Logger = NoopLogger{}
)
