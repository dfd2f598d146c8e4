package pv

import (
	"errors"
	"fmt"
	"time"
)

// PV errors.
var (
	// ErrNotConnected indicates the channel is offline. Wrapped in a
	// ConnectionError carrying the PV name.
	ErrNotConnected = errors.New("pv not connected")

	// ErrReadOnly indicates a write to a read-only channel.
	ErrReadOnly = errors.New("pv is read-only")

	// ErrUnknownMonitor indicates an Unmonitor call with an ID that was
	// never issued or was already cancelled.
	ErrUnknownMonitor = errors.New("unknown monitor id")

	// ErrNotFound indicates a name no registry entry matches.
	ErrNotFound = errors.New("pv not found")

	// ErrDuplicate indicates a registry Add with an already-registered name.
	ErrDuplicate = errors.New("pv already registered")
)

// ConnectionError reports a failed channel operation on a disconnected PV.
type ConnectionError struct {
	// PV is the channel name.
	PV string

	// Err is the underlying cause, usually ErrNotConnected.
	Err error
}

// Error returns the error message.
func (e *ConnectionError) Error() string {
	return fmt.Sprintf("pv %s: %v", e.PV, e.Err)
}

// Unwrap returns the underlying cause.
func (e *ConnectionError) Unwrap() error {
	return e.Err
}

// Limits describes a channel's control range.
type Limits struct {
	Low  float64
	High float64
}

// Event is a monitor update from a channel.
type Event struct {
	// PV is the channel name.
	PV string

	// Value is the channel value at the time of the event.
	Value float64

	// Timestamp is when the value was recorded.
	Timestamp time.Time
}

// EventFunc receives monitor updates. Callbacks run synchronously on the
// goroutine that changed the value and must not block.
type EventFunc func(Event)

// PV is a named scalar channel.
type PV interface {
	// Name returns the channel name.
	Name() string

	// Get returns the current value. Returns a ConnectionError if the
	// channel is offline.
	Get() (float64, error)

	// Put writes a value. The write is accepted as soon as the channel
	// takes it; any resulting motion completes asynchronously.
	Put(value float64) error

	// Units returns the engineering units, which may be empty.
	Units() (string, error)

	// ControlLimits returns the control range and whether the channel
	// defines one.
	ControlLimits() (Limits, bool, error)

	// Monitor registers fn for value updates and returns a monitor ID.
	// When fireCurrent is true and a value is available, fn is invoked
	// once with the current value before Monitor returns.
	Monitor(fn EventFunc, fireCurrent bool) (int, error)

	// Unmonitor cancels a monitor by ID.
	Unmonitor(id int) error

	// Connected reports whether the channel is online.
	Connected() bool
}

// Connector resolves PV names to channels. A Registry connects to its own
// entries; the gateway client connects to channels served remotely.
type Connector interface {
	Connect(name string) (PV, error)
}
