package log

// Logger receives the protocol events emitted by the transport, the
// dispatcher and the device service. Log is called on the request path, so
// implementations must be safe for concurrent use and must not block.
type Logger interface {
	Log(event Event)
}

// NoopLogger drops every event. The zero value is ready to use.
type NoopLogger struct{}

// Log does nothing.
func (NoopLogger) Log(Event) {}

// MultiLogger fans events out to several loggers in order, e.g. the console
// SlogAdapter and a FileLogger.
type MultiLogger struct {
	loggers []Logger
}

// NewMultiLogger returns a logger that forwards to every non-nil logger.
func NewMultiLogger(loggers ...Logger) *MultiLogger {
	m := &MultiLogger{}
	for _, l := range loggers {
		if l != nil {
			m.loggers = append(m.loggers, l)
		}
	}
	return m
}

// Log forwards event.
func (m *MultiLogger) Log(event Event) {
	for _, l := range m.loggers {
		l.Log(event)
	}
}

var (
	_ Logger = NoopLogger{}
	_ Logger = (*MultiLogger)(nil)
)
