package log

import (
	"time"

	"github.com/photon-controls/slits-go/pkg/wire"
)

// Event represents a device log event captured at any layer.
// CBOR encoding uses integer keys for compactness.
type Event struct {
	// Timestamp when the event occurred (nanosecond precision).
	Timestamp time.Time `cbor:"1,keyasint"`

	// Device is the display name of the device involved, if any.
	Device string `cbor:"2,keyasint,omitempty"`

	// PV is the process variable involved, if the event is channel-scoped.
	PV string `cbor:"3,keyasint,omitempty"`

	// Category classifies the event type.
	Category Category `cbor:"4,keyasint"`

	// Type-specific payload (one of these will be set).
	Setpoint   *SetpointEvent   `cbor:"5,keyasint,omitempty"`  // Setpoint writes
	Motion     *MotionEvent     `cbor:"6,keyasint,omitempty"`  // Move lifecycle
	Monitor    *MonitorEvent    `cbor:"7,keyasint,omitempty"`  // Monitor updates
	Wire       *WireEvent       `cbor:"8,keyasint,omitempty"`  // Gateway traffic
	Connection *ConnectionEvent `cbor:"9,keyasint,omitempty"`  // Connection state
	Error      *ErrorEventData  `cbor:"10,keyasint,omitempty"` // Errors at any layer
}

// Category classifies the event type.
type Category uint8

const (
	// CategorySetpoint indicates a value written to a setpoint PV.
	CategorySetpoint Category = 0
	// CategoryMotion indicates a move lifecycle event.
	CategoryMotion Category = 1
	// CategoryMonitor indicates a monitor update.
	CategoryMonitor Category = 2
	// CategoryWire indicates a gateway protocol message.
	CategoryWire Category = 3
	// CategoryConnection indicates a connection state change.
	CategoryConnection Category = 4
	// CategoryError indicates an error event.
	CategoryError Category = 5
)

// String returns the category name.
func (c Category) String() string {
	switch c {
	case CategorySetpoint:
		return "SETPOINT"
	case CategoryMotion:
		return "MOTION"
	case CategoryMonitor:
		return "MONITOR"
	case CategoryWire:
		return "WIRE"
	case CategoryConnection:
		return "CONNECTION"
	case CategoryError:
		return "ERROR"
	default:
		return "UNKNOWN"
	}
}

// ParseCategory maps a category name (as produced by String) back to the
// category. Used by the trace viewer's filter flags.
func ParseCategory(name string) (Category, bool) {
	switch name {
	case "SETPOINT":
		return CategorySetpoint, true
	case "MOTION":
		return CategoryMotion, true
	case "MONITOR":
		return CategoryMonitor, true
	case "WIRE":
		return CategoryWire, true
	case "CONNECTION":
		return CategoryConnection, true
	case "ERROR":
		return CategoryError, true
	default:
		return 0, false
	}
}

// SetpointEvent captures a value written to a setpoint PV.
type SetpointEvent struct {
	// Value is the requested value.
	Value float64 `cbor:"1,keyasint"`
}

// MotionEvent captures the lifecycle of a commanded move.
type MotionEvent struct {
	// Phase of the move.
	Phase MotionPhase `cbor:"1,keyasint"`

	// Target position of the move.
	Target float64 `cbor:"2,keyasint,omitempty"`

	// Elapsed is the time from command to completion (completion phases only).
	// Stored as nanoseconds.
	Elapsed *time.Duration `cbor:"3,keyasint,omitempty"`
}

// MotionPhase indicates where in its lifecycle a move is.
type MotionPhase uint8

const (
	// MotionStart indicates a move was commanded.
	MotionStart MotionPhase = 0
	// MotionComplete indicates a move finished successfully.
	MotionComplete MotionPhase = 1
	// MotionStopped indicates a move was halted before completion.
	MotionStopped MotionPhase = 2
	// MotionFailed indicates a move settled with an error.
	MotionFailed MotionPhase = 3
)

// String returns the motion phase name.
func (p MotionPhase) String() string {
	switch p {
	case MotionStart:
		return "START"
	case MotionComplete:
		return "COMPLETE"
	case MotionStopped:
		return "STOPPED"
	case MotionFailed:
		return "FAILED"
	default:
		return "UNKNOWN"
	}
}

// MonitorEvent captures a monitor update dispatched or received.
type MonitorEvent struct {
	// MonitorID identifies the monitor (0 for local in-process monitors).
	MonitorID uint32 `cbor:"1,keyasint,omitempty"`

	// Value carried by the update.
	Value float64 `cbor:"2,keyasint"`
}

// WireEvent captures a gateway protocol message.
type WireEvent struct {
	// ConnectionID uniquely identifies the connection (UUID).
	ConnectionID string `cbor:"1,keyasint,omitempty"`

	// Direction indicates message flow.
	Direction Direction `cbor:"2,keyasint"`

	// MessageID correlates request/response pairs (0 for updates).
	MessageID uint32 `cbor:"3,keyasint,omitempty"`

	// For requests: the operation being performed.
	Operation *wire.Operation `cbor:"4,keyasint,omitempty"`

	// For responses: the status code.
	Status *wire.Status `cbor:"5,keyasint,omitempty"`

	// FrameSize is the encoded frame size in bytes, if known.
	FrameSize int `cbor:"6,keyasint,omitempty"`
}

// Direction indicates the direction of message flow.
type Direction uint8

const (
	// DirectionIn indicates an incoming message.
	DirectionIn Direction = 0
	// DirectionOut indicates an outgoing message.
	DirectionOut Direction = 1
)

// String returns the direction name.
func (d Direction) String() string {
	switch d {
	case DirectionIn:
		return "IN"
	case DirectionOut:
		return "OUT"
	default:
		return "UNKNOWN"
	}
}

// ConnectionEvent captures connection lifecycle changes.
type ConnectionEvent struct {
	// RemoteAddr is the peer address (IP:port).
	RemoteAddr string `cbor:"1,keyasint,omitempty"`

	// OldState is the previous state (may be empty).
	OldState string `cbor:"2,keyasint,omitempty"`

	// NewState is the new state.
	NewState string `cbor:"3,keyasint"`

	// Reason for the change (if available).
	Reason string `cbor:"4,keyasint,omitempty"`
}

// ErrorEventData captures errors at any layer.
type ErrorEventData struct {
	// Message is the error message.
	Message string `cbor:"1,keyasint"`

	// Context describes what operation was being performed.
	Context string `cbor:"2,keyasint,omitempty"`
}
