package log

import (
	"os"
	"time"

	"github.com/rs/zerolog"
)

// ZerologAdapter writes device events to a zerolog.Logger.
// Useful for development when you want to see device events in console.
type ZerologAdapter struct {
	logger zerolog.Logger
}

// NewZerologAdapter creates an adapter with human-readable console output
// on stderr.
func NewZerologAdapter() *ZerologAdapter {
	output := zerolog.ConsoleWriter{
		Out:        os.Stderr,
		TimeFormat: time.RFC3339,
	}
	logger := zerolog.New(output).With().Timestamp().Logger()
	return &ZerologAdapter{logger: logger}
}

// NewZerologAdapterWithLogger creates an adapter wrapping an existing
// zerolog.Logger.
func NewZerologAdapterWithLogger(logger zerolog.Logger) *ZerologAdapter {
	return &ZerologAdapter{logger: logger}
}

// Log writes the event to the zerolog logger. Error events are logged at
// error level, everything else at debug level.
func (a *ZerologAdapter) Log(event Event) {
	ev := a.logger.Debug()
	if event.Category == CategoryError {
		ev = a.logger.Error()
	}

	ev = ev.Str("category", event.Category.String())
	if event.Device != "" {
		ev = ev.Str("device", event.Device)
	}
	if event.PV != "" {
		ev = ev.Str("pv", event.PV)
	}

	// Add type-specific attributes
	switch {
	case event.Setpoint != nil:
		ev = ev.Float64("value", event.Setpoint.Value)
	case event.Motion != nil:
		ev = ev.Str("phase", event.Motion.Phase.String()).
			Float64("target", event.Motion.Target)
		if event.Motion.Elapsed != nil {
			ev = ev.Dur("elapsed", *event.Motion.Elapsed)
		}
	case event.Monitor != nil:
		ev = ev.Float64("value", event.Monitor.Value)
		if event.Monitor.MonitorID != 0 {
			ev = ev.Uint32("monitor_id", event.Monitor.MonitorID)
		}
	case event.Wire != nil:
		ev = ev.Str("direction", event.Wire.Direction.String()).
			Uint32("msg_id", event.Wire.MessageID)
		if event.Wire.ConnectionID != "" {
			ev = ev.Str("conn_id", event.Wire.ConnectionID)
		}
		if event.Wire.Operation != nil {
			ev = ev.Str("operation", event.Wire.Operation.String())
		}
		if event.Wire.Status != nil {
			ev = ev.Str("status", event.Wire.Status.String())
		}
		if event.Wire.FrameSize != 0 {
			ev = ev.Int("frame_size", event.Wire.FrameSize)
		}
	case event.Connection != nil:
		ev = ev.Str("new_state", event.Connection.NewState)
		if event.Connection.OldState != "" {
			ev = ev.Str("old_state", event.Connection.OldState)
		}
		if event.Connection.RemoteAddr != "" {
			ev = ev.Str("remote", event.Connection.RemoteAddr)
		}
		if event.Connection.Reason != "" {
			ev = ev.Str("reason", event.Connection.Reason)
		}
	case event.Error != nil:
		ev = ev.Str("error", event.Error.Message)
		if event.Error.Context != "" {
			ev = ev.Str("context", event.Error.Context)
		}
	}

	ev.Msg("device event")
}

// Logger returns the underlying zerolog.Logger.
func (a *ZerologAdapter) Logger() zerolog.Logger {
	return a.logger
}

// Compile-time interface satisfaction check.
var _ Logger = (*ZerologAdapter)(nil)
