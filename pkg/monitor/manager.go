package monitor

import (
	"sync"
	"sync/atomic"
	"time"

	"golang.org/x/time/rate"
)

// Config holds monitor manager configuration.
type Config struct {
	// MaxMonitors is the maximum number of monitors allowed.
	MaxMonitors int

	// DispatchRate caps update dispatch across all monitors, in
	// updates per second (default: 500).
	DispatchRate rate.Limit

	// DispatchBurst is the token bucket depth (default: 64).
	DispatchBurst int
}

// DefaultConfig returns the default manager configuration.
func DefaultConfig() Config {
	return Config{
		MaxMonitors:   DefaultMaxMonitors,
		DispatchRate:  500,
		DispatchBurst: 64,
	}
}

// Manager tracks the monitors of one gateway connection.
type Manager struct {
	mu sync.RWMutex

	config Config

	// Active monitors by ID.
	monitors map[uint32]*Monitor

	// Index by PV name for change dispatch.
	pvIndex map[string][]*Monitor

	onUpdate func(Update)

	limiter *rate.Limiter
	nextID  atomic.Uint32
}

// NewManager creates a manager with default configuration.
func NewManager() *Manager {
	return NewManagerWithConfig(DefaultConfig())
}

// NewManagerWithConfig creates a manager with custom configuration.
func NewManagerWithConfig(config Config) *Manager {
	if config.MaxMonitors <= 0 {
		config.MaxMonitors = DefaultMaxMonitors
	}
	if config.DispatchRate <= 0 {
		config.DispatchRate = DefaultConfig().DispatchRate
	}
	if config.DispatchBurst <= 0 {
		config.DispatchBurst = DefaultConfig().DispatchBurst
	}

	return &Manager{
		config:   config,
		monitors: make(map[uint32]*Monitor),
		pvIndex:  make(map[string][]*Monitor),
		limiter:  rate.NewLimiter(config.DispatchRate, config.DispatchBurst),
	}
}

// Add creates a monitor on pvName seeded with its current value and
// returns the monitor ID. Interval zero values select the defaults;
// negative intervals and min above max are rejected.
func (m *Manager) Add(pvName string, minInterval, maxInterval time.Duration, current float64) (uint32, error) {
	if minInterval < 0 || maxInterval < 0 {
		return 0, ErrInvalidInterval
	}
	if maxInterval == 0 {
		maxInterval = DefaultMaxInterval
	}
	if minInterval > maxInterval {
		return 0, ErrInvalidInterval
	}

	m.mu.Lock()
	defer m.mu.Unlock()

	if len(m.monitors) >= m.config.MaxMonitors {
		return 0, ErrResourceExhausted
	}

	id := m.nextID.Add(1)
	mon := NewMonitor(id, pvName, minInterval, maxInterval, current)

	m.monitors[id] = mon
	m.pvIndex[pvName] = append(m.pvIndex[pvName], mon)

	return id, nil
}

// Remove deactivates and drops a monitor.
func (m *Manager) Remove(id uint32) error {
	m.mu.Lock()
	defer m.mu.Unlock()

	mon, exists := m.monitors[id]
	if !exists {
		return ErrMonitorNotFound
	}

	mon.Deactivate()
	delete(m.monitors, id)

	mons := m.pvIndex[mon.PV]
	for i, entry := range mons {
		if entry.ID == id {
			m.pvIndex[mon.PV] = append(mons[:i], mons[i+1:]...)
			break
		}
	}
	if len(m.pvIndex[mon.PV]) == 0 {
		delete(m.pvIndex, mon.PV)
	}

	return nil
}

// RemoveAll drops every monitor, e.g. on connection teardown.
func (m *Manager) RemoveAll() {
	m.mu.Lock()
	defer m.mu.Unlock()

	for _, mon := range m.monitors {
		mon.Deactivate()
	}
	m.monitors = make(map[uint32]*Monitor)
	m.pvIndex = make(map[string][]*Monitor)
}

// NotifyChange records a channel change for every monitor on pvName.
// Dispatch happens later, on the pump.
func (m *Manager) NotifyChange(pvName string, value float64, stamp time.Time) {
	m.mu.RLock()
	mons := m.pvIndex[pvName]
	m.mu.RUnlock()

	for _, mon := range mons {
		mon.RecordChange(value, stamp)
	}
}

// ProcessNotifications dispatches ready updates and due heartbeats
// through the OnUpdate callback. Call it periodically; the tick bounds
// added update latency. Updates denied by the rate limiter stay
// pending for a later pump.
func (m *Manager) ProcessNotifications() {
	m.mu.RLock()
	mons := make([]*Monitor, 0, len(m.monitors))
	for _, mon := range m.monitors {
		mons = append(mons, mon)
	}
	onUpdate := m.onUpdate
	m.mu.RUnlock()

	if onUpdate == nil {
		return
	}

	for _, mon := range mons {
		if mon.ReadyForUpdate() && m.limiter.Allow() {
			if upd, ok := mon.TakePending(); ok {
				onUpdate(upd)
			}
		}

		if mon.NeedsHeartbeat() && m.limiter.Allow() {
			onUpdate(mon.Heartbeat())
		}
	}
}

// Count returns the number of active monitors.
func (m *Manager) Count() int {
	m.mu.RLock()
	defer m.mu.RUnlock()
	return len(m.monitors)
}

// Get returns a monitor by ID.
func (m *Manager) Get(id uint32) (*Monitor, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()

	mon, exists := m.monitors[id]
	if !exists {
		return nil, ErrMonitorNotFound
	}
	return mon, nil
}

// OnUpdate sets the callback updates leave through.
func (m *Manager) OnUpdate(fn func(Update)) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.onUpdate = fn
}
