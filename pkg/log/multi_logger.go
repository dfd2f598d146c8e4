package log

// MultiLogger fans one event stream out to several sinks, typically a
// ZerologAdapter console next to a FileLogger trace.
type MultiLogger struct {
	sinks []Logger
}

// NewMultiLogger combines sinks into one Logger. Nil sinks are skipped.
func NewMultiLogger(sinks ...Logger) *MultiLogger {
	kept := make([]Logger, 0, len(sinks))
	for _, s := range sinks {
		if s != nil {
			kept = append(kept, s)
		}
	}
	return &MultiLogger{sinks: kept}
}

// Log forwards the event to every sink in registration order.
func (m *MultiLogger) Log(event Event) {
	for _, s := range m.sinks {
		s.Log(event)
	}
}

var _ Logger = (*MultiLogger)(nil)
