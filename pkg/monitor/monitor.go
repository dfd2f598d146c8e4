package monitor

import (
	"errors"
	"sync"
	"time"
)

// Monitor errors.
var (
	ErrInvalidInterval   = errors.New("invalid monitor interval")
	ErrResourceExhausted = errors.New("maximum monitors reached")
	ErrMonitorNotFound   = errors.New("monitor not found")
)

// Default monitor limits.
const (
	// DefaultMinInterval applies no coalescing: updates go out at the
	// pump rate.
	DefaultMinInterval = 0 * time.Second

	// DefaultMaxInterval is the heartbeat period.
	DefaultMaxInterval = 10 * time.Second

	// DefaultMaxMonitors is the per-manager monitor cap.
	DefaultMaxMonitors = 256
)

// Update is an outbound monitor notification.
type Update struct {
	// MonitorID identifies the monitor.
	MonitorID uint32

	// PV is the monitored channel.
	PV string

	// Value is the channel value being reported.
	Value float64

	// Timestamp is when the value was recorded: the change time for
	// value updates, the dispatch time for heartbeats.
	Timestamp time.Time

	// IsHeartbeat marks a quiet-channel replay rather than a change.
	IsHeartbeat bool
}

// Monitor is one active monitor on one process variable.
type Monitor struct {
	mu sync.Mutex

	// ID is the unique monitor identifier, scoped to its manager.
	ID uint32

	// PV is the monitored channel name.
	PV string

	// MinInterval is the coalescing window: changes inside it collapse
	// to the latest value.
	MinInterval time.Duration

	// MaxInterval is the maximum quiet time before a heartbeat.
	MaxInterval time.Duration

	// lastNotified is when the last update or heartbeat went out.
	lastNotified time.Time

	// lastValue is the last reported value, replayed by heartbeats.
	lastValue float64

	// pendingValue is the latest recorded change, not yet dispatched.
	pendingValue float64

	// pendingStamp is when pendingValue was recorded at the channel.
	pendingStamp time.Time

	// windowStart is when the first change of the current window arrived.
	windowStart time.Time

	// hasPending indicates an undispatched change exists.
	hasPending bool

	// active indicates the monitor is live.
	active bool
}

// NewMonitor creates a monitor seeded with the channel's current value.
// The seed feeds heartbeats sent before any change arrives.
func NewMonitor(id uint32, pvName string, minInterval, maxInterval time.Duration, current float64) *Monitor {
	return &Monitor{
		ID:           id,
		PV:           pvName,
		MinInterval:  minInterval,
		MaxInterval:  maxInterval,
		lastNotified: time.Now(),
		lastValue:    current,
		active:       true,
	}
}

// IsActive returns whether the monitor is live.
func (m *Monitor) IsActive() bool {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.active
}

// Deactivate marks the monitor dead. Pending changes are dropped.
func (m *Monitor) Deactivate() {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.active = false
	m.hasPending = false
}

// RecordChange records a channel change. Changes inside the coalescing
// window overwrite each other: only the latest value is dispatched.
func (m *Monitor) RecordChange(value float64, stamp time.Time) {
	m.mu.Lock()
	defer m.mu.Unlock()

	if !m.active {
		return
	}
	if !m.hasPending {
		m.windowStart = time.Now()
	}
	m.pendingValue = value
	m.pendingStamp = stamp
	m.hasPending = true
}

// ReadyForUpdate reports whether a pending change has cleared the
// coalescing window.
func (m *Monitor) ReadyForUpdate() bool {
	m.mu.Lock()
	defer m.mu.Unlock()

	if !m.active || !m.hasPending {
		return false
	}
	return time.Since(m.windowStart) >= m.MinInterval
}

// TakePending consumes the pending change and returns it as an update.
// The second return is false when nothing is pending.
func (m *Monitor) TakePending() (Update, bool) {
	m.mu.Lock()
	defer m.mu.Unlock()

	if !m.active || !m.hasPending {
		return Update{}, false
	}

	upd := Update{
		MonitorID: m.ID,
		PV:        m.PV,
		Value:     m.pendingValue,
		Timestamp: m.pendingStamp,
	}
	m.lastValue = m.pendingValue
	m.lastNotified = time.Now()
	m.hasPending = false
	return upd, true
}

// NeedsHeartbeat reports whether the channel has been quiet for the
// monitor's max interval.
func (m *Monitor) NeedsHeartbeat() bool {
	m.mu.Lock()
	defer m.mu.Unlock()

	if !m.active {
		return false
	}
	return time.Since(m.lastNotified) >= m.MaxInterval
}

// Heartbeat returns a replay of the last reported value and resets the
// quiet timer.
func (m *Monitor) Heartbeat() Update {
	m.mu.Lock()
	defer m.mu.Unlock()

	m.lastNotified = time.Now()
	return Update{
		MonitorID:   m.ID,
		PV:          m.PV,
		Value:       m.lastValue,
		Timestamp:   time.Now(),
		IsHeartbeat: true,
	}
}

// TimeSinceLastUpdate returns the time since the last dispatched
// update or heartbeat.
func (m *Monitor) TimeSinceLastUpdate() time.Duration {
	m.mu.Lock()
	defer m.mu.Unlock()
	return time.Since(m.lastNotified)
}
