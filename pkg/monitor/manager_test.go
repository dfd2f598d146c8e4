package monitor

import (
	"errors"
	"sync"
	"testing"
	"time"
)

// updateCapture collects dispatched updates under a lock.
type updateCapture struct {
	mu      sync.Mutex
	updates []Update
}

func (c *updateCapture) fn(upd Update) {
	c.mu.Lock()
	c.updates = append(c.updates, upd)
	c.mu.Unlock()
}

func (c *updateCapture) count() int {
	c.mu.Lock()
	defer c.mu.Unlock()
	return len(c.updates)
}

func (c *updateCapture) snapshot() []Update {
	c.mu.Lock()
	defer c.mu.Unlock()
	return append([]Update(nil), c.updates...)
}

func TestManagerAddRemove(t *testing.T) {
	m := NewManager()

	id, err := m.Add("TST:PV", 0, time.Second, 1.0)
	if err != nil {
		t.Fatalf("Add() error = %v", err)
	}
	if m.Count() != 1 {
		t.Errorf("Count() = %d, want 1", m.Count())
	}

	mon, err := m.Get(id)
	if err != nil {
		t.Fatalf("Get() error = %v", err)
	}
	if mon.PV != "TST:PV" {
		t.Errorf("monitor PV = %q", mon.PV)
	}

	if err := m.Remove(id); err != nil {
		t.Fatalf("Remove() error = %v", err)
	}
	if m.Count() != 0 {
		t.Errorf("Count() = %d after remove, want 0", m.Count())
	}

	if err := m.Remove(id); !errors.Is(err, ErrMonitorNotFound) {
		t.Errorf("Remove() twice error = %v, want ErrMonitorNotFound", err)
	}
	if _, err := m.Get(id); !errors.Is(err, ErrMonitorNotFound) {
		t.Errorf("Get() after remove error = %v, want ErrMonitorNotFound", err)
	}
}

func TestManagerIntervalValidation(t *testing.T) {
	m := NewManager()

	if _, err := m.Add("TST:PV", -time.Second, time.Second, 0); !errors.Is(err, ErrInvalidInterval) {
		t.Errorf("Add() negative min error = %v, want ErrInvalidInterval", err)
	}
	if _, err := m.Add("TST:PV", 2*time.Second, time.Second, 0); !errors.Is(err, ErrInvalidInterval) {
		t.Errorf("Add() min > max error = %v, want ErrInvalidInterval", err)
	}

	// Zero max selects the default heartbeat period.
	id, err := m.Add("TST:PV", 0, 0, 0)
	if err != nil {
		t.Fatalf("Add() with zero max error = %v", err)
	}
	mon, err := m.Get(id)
	if err != nil {
		t.Fatalf("Get() error = %v", err)
	}
	if mon.MaxInterval != DefaultMaxInterval {
		t.Errorf("MaxInterval = %v, want default %v", mon.MaxInterval, DefaultMaxInterval)
	}
}

func TestManagerMonitorLimit(t *testing.T) {
	m := NewManagerWithConfig(Config{MaxMonitors: 2})

	if _, err := m.Add("TST:A", 0, time.Second, 0); err != nil {
		t.Fatalf("Add() error = %v", err)
	}
	if _, err := m.Add("TST:B", 0, time.Second, 0); err != nil {
		t.Fatalf("Add() error = %v", err)
	}
	if _, err := m.Add("TST:C", 0, time.Second, 0); !errors.Is(err, ErrResourceExhausted) {
		t.Errorf("Add() over limit error = %v, want ErrResourceExhausted", err)
	}
}

func TestManagerChangeDispatch(t *testing.T) {
	m := NewManager()
	var got updateCapture
	m.OnUpdate(got.fn)

	id, err := m.Add("TST:PV", 0, time.Minute, 1.0)
	if err != nil {
		t.Fatalf("Add() error = %v", err)
	}

	stamp := time.Now()
	m.NotifyChange("TST:PV", 3.5, stamp)
	m.ProcessNotifications()

	if got.count() != 1 {
		t.Fatalf("dispatched %d updates, want 1", got.count())
	}
	upd := got.snapshot()[0]
	if upd.MonitorID != id {
		t.Errorf("update monitor id = %d, want %d", upd.MonitorID, id)
	}
	if upd.PV != "TST:PV" || upd.Value != 3.5 {
		t.Errorf("update = %+v, want TST:PV 3.5", upd)
	}
	if !upd.Timestamp.Equal(stamp) {
		t.Errorf("update timestamp = %v, want change stamp %v", upd.Timestamp, stamp)
	}

	// No change, no second update.
	m.ProcessNotifications()
	if got.count() != 1 {
		t.Errorf("dispatched %d updates after idle pump, want 1", got.count())
	}
}

func TestManagerChangeForUnmonitoredPV(t *testing.T) {
	m := NewManager()
	var got updateCapture
	m.OnUpdate(got.fn)

	if _, err := m.Add("TST:A", 0, time.Minute, 0); err != nil {
		t.Fatalf("Add() error = %v", err)
	}

	m.NotifyChange("TST:OTHER", 9.0, time.Now())
	m.ProcessNotifications()

	if got.count() != 0 {
		t.Errorf("dispatched %d updates for unmonitored PV, want 0", got.count())
	}
}

func TestManagerSharedPV(t *testing.T) {
	m := NewManager()
	var got updateCapture
	m.OnUpdate(got.fn)

	a, err := m.Add("TST:PV", 0, time.Minute, 0)
	if err != nil {
		t.Fatalf("Add() error = %v", err)
	}
	b, err := m.Add("TST:PV", 0, time.Minute, 0)
	if err != nil {
		t.Fatalf("Add() error = %v", err)
	}

	m.NotifyChange("TST:PV", 2.0, time.Now())
	m.ProcessNotifications()

	if got.count() != 2 {
		t.Fatalf("dispatched %d updates, want one per monitor", got.count())
	}
	seen := map[uint32]bool{}
	for _, upd := range got.snapshot() {
		seen[upd.MonitorID] = true
	}
	if !seen[a] || !seen[b] {
		t.Errorf("updates reached %v, want both %d and %d", seen, a, b)
	}
}

func TestManagerHeartbeatDispatch(t *testing.T) {
	m := NewManager()
	var got updateCapture
	m.OnUpdate(got.fn)

	if _, err := m.Add("TST:PV", 0, 50*time.Millisecond, 6.0); err != nil {
		t.Fatalf("Add() error = %v", err)
	}

	time.Sleep(80 * time.Millisecond)
	m.ProcessNotifications()

	if got.count() != 1 {
		t.Fatalf("dispatched %d updates, want 1 heartbeat", got.count())
	}
	hb := got.snapshot()[0]
	if !hb.IsHeartbeat {
		t.Error("update not flagged as heartbeat")
	}
	if hb.Value != 6.0 {
		t.Errorf("heartbeat value = %v, want seeded 6.0", hb.Value)
	}
}

func TestManagerRateLimitKeepsPending(t *testing.T) {
	// Burst of one: the first update drains the bucket, the second
	// stays pending until tokens refill.
	m := NewManagerWithConfig(Config{DispatchRate: 1000, DispatchBurst: 1})
	var got updateCapture
	m.OnUpdate(got.fn)

	if _, err := m.Add("TST:A", 0, time.Minute, 0); err != nil {
		t.Fatalf("Add() error = %v", err)
	}
	if _, err := m.Add("TST:B", 0, time.Minute, 0); err != nil {
		t.Fatalf("Add() error = %v", err)
	}

	m.NotifyChange("TST:A", 1.0, time.Now())
	m.NotifyChange("TST:B", 2.0, time.Now())
	m.ProcessNotifications()

	if got.count() != 1 {
		t.Fatalf("dispatched %d updates under rate limit, want 1", got.count())
	}

	// Tokens refill at 1000/s: the held update goes out on a later pump.
	time.Sleep(10 * time.Millisecond)
	m.ProcessNotifications()

	if got.count() != 2 {
		t.Errorf("dispatched %d updates after refill, want 2", got.count())
	}
}

func TestManagerRemoveAll(t *testing.T) {
	m := NewManager()
	var got updateCapture
	m.OnUpdate(got.fn)

	if _, err := m.Add("TST:A", 0, time.Minute, 0); err != nil {
		t.Fatalf("Add() error = %v", err)
	}
	if _, err := m.Add("TST:B", 0, time.Minute, 0); err != nil {
		t.Fatalf("Add() error = %v", err)
	}

	m.RemoveAll()

	if m.Count() != 0 {
		t.Errorf("Count() = %d after RemoveAll, want 0", m.Count())
	}

	m.NotifyChange("TST:A", 1.0, time.Now())
	m.ProcessNotifications()
	if got.count() != 0 {
		t.Errorf("dispatched %d updates after RemoveAll, want 0", got.count())
	}
}
