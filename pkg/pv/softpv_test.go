package pv

import (
	"errors"
	"sync"
	"testing"
)

func TestSoftPVGetPut(t *testing.T) {
	p := NewSoftPV("TST:VALUE", WithValue(1.5), WithUnits("mm"), WithLimits(-1, 11))

	if p.Name() != "TST:VALUE" {
		t.Errorf("Name = %q, want TST:VALUE", p.Name())
	}

	value, err := p.Get()
	if err != nil {
		t.Fatalf("Get failed: %v", err)
	}
	if value != 1.5 {
		t.Errorf("initial value = %v, want 1.5", value)
	}

	if err := p.Put(3.25); err != nil {
		t.Fatalf("Put failed: %v", err)
	}
	value, err = p.Get()
	if err != nil {
		t.Fatalf("Get failed: %v", err)
	}
	if value != 3.25 {
		t.Errorf("value after Put = %v, want 3.25", value)
	}

	units, err := p.Units()
	if err != nil {
		t.Fatalf("Units failed: %v", err)
	}
	if units != "mm" {
		t.Errorf("Units = %q, want mm", units)
	}

	limits, ok, err := p.ControlLimits()
	if err != nil {
		t.Fatalf("ControlLimits failed: %v", err)
	}
	if !ok || limits.Low != -1 || limits.High != 11 {
		t.Errorf("ControlLimits = %+v (ok=%v), want {-1 11}", limits, ok)
	}
}

func TestSoftPVDisconnected(t *testing.T) {
	p := NewSoftPV("TST:VALUE", WithDisconnected())

	if p.Connected() {
		t.Errorf("Connected should be false")
	}

	_, err := p.Get()
	if err == nil {
		t.Fatalf("Get on disconnected PV should fail")
	}
	if !errors.Is(err, ErrNotConnected) {
		t.Errorf("Get error should wrap ErrNotConnected, got %v", err)
	}

	var connErr *ConnectionError
	if !errors.As(err, &connErr) {
		t.Fatalf("Get error should be a *ConnectionError, got %T", err)
	}
	if connErr.PV != "TST:VALUE" {
		t.Errorf("ConnectionError.PV = %q, want TST:VALUE", connErr.PV)
	}

	if err := p.Put(1); !errors.Is(err, ErrNotConnected) {
		t.Errorf("Put error should wrap ErrNotConnected, got %v", err)
	}
	if _, err := p.Units(); !errors.Is(err, ErrNotConnected) {
		t.Errorf("Units error should wrap ErrNotConnected, got %v", err)
	}
	if _, _, err := p.ControlLimits(); !errors.Is(err, ErrNotConnected) {
		t.Errorf("ControlLimits error should wrap ErrNotConnected, got %v", err)
	}

	// Reconnect restores access
	p.SetConnected(true)
	if _, err := p.Get(); err != nil {
		t.Errorf("Get after reconnect failed: %v", err)
	}
}

func TestSoftPVReadOnly(t *testing.T) {
	p := NewSoftPV("TST:ACTUAL", WithReadOnly(), WithValue(2))

	err := p.Put(5)
	if !errors.Is(err, ErrReadOnly) {
		t.Fatalf("Put on read-only PV should fail with ErrReadOnly, got %v", err)
	}

	// Owner-side writes still work and notify
	var got []float64
	if _, err := p.Monitor(func(e Event) { got = append(got, e.Value) }, false); err != nil {
		t.Fatalf("Monitor failed: %v", err)
	}

	p.SetInternal(5)
	value, _ := p.Get()
	if value != 5 {
		t.Errorf("value after SetInternal = %v, want 5", value)
	}
	if len(got) != 1 || got[0] != 5 {
		t.Errorf("monitor events = %v, want [5]", got)
	}
}

func TestSoftPVMonitorNotifiesOnChange(t *testing.T) {
	p := NewSoftPV("TST:VALUE", WithValue(1))

	var events []Event
	id, err := p.Monitor(func(e Event) { events = append(events, e) }, false)
	if err != nil {
		t.Fatalf("Monitor failed: %v", err)
	}

	p.Put(2)
	p.Put(2) // identical value, suppressed
	p.Put(3)

	if len(events) != 2 {
		t.Fatalf("got %d events, want 2 (identical put suppressed)", len(events))
	}
	if events[0].Value != 2 || events[1].Value != 3 {
		t.Errorf("event values = %v, %v; want 2, 3", events[0].Value, events[1].Value)
	}
	if events[0].PV != "TST:VALUE" {
		t.Errorf("event PV = %q, want TST:VALUE", events[0].PV)
	}

	// After Unmonitor no more events arrive
	if err := p.Unmonitor(id); err != nil {
		t.Fatalf("Unmonitor failed: %v", err)
	}
	p.Put(4)
	if len(events) != 2 {
		t.Errorf("got %d events after Unmonitor, want 2", len(events))
	}

	if err := p.Unmonitor(id); !errors.Is(err, ErrUnknownMonitor) {
		t.Errorf("second Unmonitor should fail with ErrUnknownMonitor, got %v", err)
	}
}

func TestSoftPVAlwaysNotify(t *testing.T) {
	// Request records process every commanded write, including a move to
	// the current position.
	p := NewSoftPV("TST:XWID_REQ", WithValue(5), WithAlwaysNotify())

	var count int
	p.Monitor(func(Event) { count++ }, false)

	p.Put(5) // same value still notifies
	p.Put(5)

	if count != 2 {
		t.Errorf("got %d events, want 2", count)
	}
}

func TestSoftPVMonitorFireCurrent(t *testing.T) {
	p := NewSoftPV("TST:VALUE", WithValue(7))

	t.Run("fireCurrent true invokes immediately", func(t *testing.T) {
		var events []Event
		if _, err := p.Monitor(func(e Event) { events = append(events, e) }, true); err != nil {
			t.Fatalf("Monitor failed: %v", err)
		}
		if len(events) != 1 || events[0].Value != 7 {
			t.Fatalf("immediate callback events = %+v, want one event with value 7", events)
		}
	})

	t.Run("fireCurrent false suppresses immediate callback", func(t *testing.T) {
		var events []Event
		if _, err := p.Monitor(func(e Event) { events = append(events, e) }, false); err != nil {
			t.Fatalf("Monitor failed: %v", err)
		}
		if len(events) != 0 {
			t.Fatalf("suppressed callback still fired: %+v", events)
		}
	})
}

func TestSoftPVConcurrentPuts(t *testing.T) {
	p := NewSoftPV("TST:VALUE")

	var mu sync.Mutex
	count := 0
	p.Monitor(func(Event) {
		mu.Lock()
		count++
		mu.Unlock()
	}, false)

	var wg sync.WaitGroup
	for g := 0; g < 8; g++ {
		wg.Add(1)
		go func(base int) {
			defer wg.Done()
			for i := 0; i < 50; i++ {
				p.Put(float64(base*1000 + i))
			}
		}(g + 1)
	}
	wg.Wait()

	if _, err := p.Get(); err != nil {
		t.Fatalf("Get after concurrent puts failed: %v", err)
	}
	mu.Lock()
	defer mu.Unlock()
	if count == 0 {
		t.Errorf("monitors never fired")
	}
}
