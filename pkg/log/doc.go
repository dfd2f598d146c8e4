// Package log provides structured device-event logging.
//
// This package defines the Logger interface and Event types for capturing
// device-level events (setpoint writes, motion lifecycle, monitor updates,
// gateway traffic). It is separate from operational logging - event capture
// provides a complete machine-readable trace for debugging a beamline
// session after the fact.
//
// # Basic Usage
//
// Applications configure logging by providing a Logger implementation:
//
//	// For development: log to console via zerolog
//	cfg.EventLogger = log.NewZerologAdapter()
//
//	// For production: write to binary file
//	cfg.EventLogger, _ = log.NewFileLogger("/var/log/slits/hx2.trace")
//
//	// Both: use MultiLogger
//	cfg.EventLogger = log.NewMultiLogger(
//	    log.NewZerologAdapter(),
//	    fileLogger,
//	)
//
// # Event Types
//
// Events carry one category-specific payload:
//   - Setpoint: a value written to a setpoint PV
//   - Motion: move started / completed / stopped
//   - Monitor: a monitor update dispatched or received
//   - Wire: a gateway message sent or received
//   - Connection: connection state changes
//   - Error: failures at any layer
//
// # File Format
//
// Event files use CBOR encoding with .trace extension. The slit-trace CLI
// tool provides viewing and filtering.
package log
