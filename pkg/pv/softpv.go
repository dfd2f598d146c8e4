package pv

import (
	"fmt"
	"sync"
	"time"
)

// SoftPV is an in-memory channel. The simulator hosts slit records as soft
// PVs, and tests use them as the stand-in for real hardware channels.
// It is safe for concurrent use.
type SoftPV struct {
	name string

	mu            sync.RWMutex
	value         float64
	timestamp     time.Time
	units         string
	limits        Limits
	hasLimits     bool
	readOnly      bool
	alwaysNotify  bool
	connected     bool
	monitors      map[int]EventFunc
	nextMonitorID int
}

// SoftOption configures a SoftPV at construction.
type SoftOption func(*SoftPV)

// WithValue sets the initial value.
func WithValue(value float64) SoftOption {
	return func(p *SoftPV) { p.value = value }
}

// WithUnits sets the engineering units.
func WithUnits(units string) SoftOption {
	return func(p *SoftPV) { p.units = units }
}

// WithLimits sets the control range.
func WithLimits(low, high float64) SoftOption {
	return func(p *SoftPV) {
		p.limits = Limits{Low: low, High: high}
		p.hasLimits = true
	}
}

// WithReadOnly rejects Put; the owner updates the value with SetInternal.
// Readback and done-flag records are read-only.
func WithReadOnly() SoftOption {
	return func(p *SoftPV) { p.readOnly = true }
}

// WithAlwaysNotify makes every accepted Put fire monitors, even when the
// value did not change. Request records behave this way: the hardware
// processes each commanded move, including a move to the current position.
func WithAlwaysNotify() SoftOption {
	return func(p *SoftPV) { p.alwaysNotify = true }
}

// WithDisconnected starts the channel offline.
func WithDisconnected() SoftOption {
	return func(p *SoftPV) { p.connected = false }
}

// NewSoftPV creates a connected soft channel with the given name.
func NewSoftPV(name string, opts ...SoftOption) *SoftPV {
	p := &SoftPV{
		name:      name,
		timestamp: time.Now(),
		connected: true,
		monitors:  make(map[int]EventFunc),
	}
	for _, opt := range opts {
		opt(p)
	}
	return p
}

// Name returns the channel name.
func (p *SoftPV) Name() string {
	return p.name
}

// Get returns the current value.
func (p *SoftPV) Get() (float64, error) {
	p.mu.RLock()
	defer p.mu.RUnlock()

	if !p.connected {
		return 0, &ConnectionError{PV: p.name, Err: ErrNotConnected}
	}
	return p.value, nil
}

// Timestamp returns when the value last changed.
func (p *SoftPV) Timestamp() time.Time {
	p.mu.RLock()
	defer p.mu.RUnlock()
	return p.timestamp
}

// Put writes a value. Monitors fire when the value changes, or on every
// accepted write for channels built with WithAlwaysNotify.
func (p *SoftPV) Put(value float64) error {
	p.mu.Lock()
	if !p.connected {
		p.mu.Unlock()
		return &ConnectionError{PV: p.name, Err: ErrNotConnected}
	}
	if p.readOnly {
		p.mu.Unlock()
		return fmt.Errorf("put %s: %w", p.name, ErrReadOnly)
	}
	p.setLocked(value)
	return nil
}

// SetInternal sets the value without checking write access. The simulator
// uses it to animate read-only readback and done-flag records.
func (p *SoftPV) SetInternal(value float64) {
	p.mu.Lock()
	p.setLocked(value)
}

// setLocked stores the value and dispatches monitors. Called with p.mu
// held; unlocks before invoking callbacks.
func (p *SoftPV) setLocked(value float64) {
	changed := value != p.value
	if changed {
		p.value = value
		p.timestamp = time.Now()
	}

	if !changed && !p.alwaysNotify {
		p.mu.Unlock()
		return
	}

	event := Event{PV: p.name, Value: p.value, Timestamp: p.timestamp}
	fns := make([]EventFunc, 0, len(p.monitors))
	for _, fn := range p.monitors {
		fns = append(fns, fn)
	}
	p.mu.Unlock()

	for _, fn := range fns {
		fn(event)
	}
}

// Units returns the engineering units.
func (p *SoftPV) Units() (string, error) {
	p.mu.RLock()
	defer p.mu.RUnlock()

	if !p.connected {
		return "", &ConnectionError{PV: p.name, Err: ErrNotConnected}
	}
	return p.units, nil
}

// ControlLimits returns the control range and whether one is defined.
func (p *SoftPV) ControlLimits() (Limits, bool, error) {
	p.mu.RLock()
	defer p.mu.RUnlock()

	if !p.connected {
		return Limits{}, false, &ConnectionError{PV: p.name, Err: ErrNotConnected}
	}
	return p.limits, p.hasLimits, nil
}

// Monitor registers fn for value updates.
func (p *SoftPV) Monitor(fn EventFunc, fireCurrent bool) (int, error) {
	p.mu.Lock()
	id := p.nextMonitorID
	p.nextMonitorID++
	p.monitors[id] = fn

	var current Event
	if fireCurrent && p.connected {
		current = Event{PV: p.name, Value: p.value, Timestamp: p.timestamp}
	} else {
		fireCurrent = false
	}
	p.mu.Unlock()

	if fireCurrent {
		fn(current)
	}
	return id, nil
}

// Unmonitor cancels a monitor by ID.
func (p *SoftPV) Unmonitor(id int) error {
	p.mu.Lock()
	defer p.mu.Unlock()

	if _, ok := p.monitors[id]; !ok {
		return fmt.Errorf("pv %s: %w: %d", p.name, ErrUnknownMonitor, id)
	}
	delete(p.monitors, id)
	return nil
}

// Connected reports whether the channel is online.
func (p *SoftPV) Connected() bool {
	p.mu.RLock()
	defer p.mu.RUnlock()
	return p.connected
}

// SetConnected flips the channel online or offline. Tests use it to
// exercise disconnection handling.
func (p *SoftPV) SetConnected(connected bool) {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.connected = connected
}

// Compile-time interface satisfaction check.
var _ PV = (*SoftPV)(nil)
