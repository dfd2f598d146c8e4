package slits

import (
	"errors"
	"fmt"
	"time"

	"github.com/photon-controls/slits-go/pkg/pv"
)

// ErrUnknownObserver indicates an Unsubscribe call with an id that was
// never issued or was already removed.
var ErrUnknownObserver = errors.New("unknown observer id")

// Event is the device-level change notification. Whichever width axis
// moved, observers see the same shape: the slit name and the full
// aperture at dispatch time.
type Event struct {
	// Device is the slit display name.
	Device string

	// Aperture is the opening at dispatch time.
	Aperture Aperture

	// Timestamp is when the underlying channel changed.
	Timestamp time.Time
}

// EventFunc receives device events.
type EventFunc func(Event)

// SubscribeOptions controls Subscribe.
type SubscribeOptions struct {
	// Run fires the new callback immediately with the current state.
	// Best effort: skipped when the readbacks are unavailable.
	Run bool
}

// Subscribe registers fn for aperture change events and returns an
// observer id for Unsubscribe.
//
// The first call attaches one internal monitor to each width readback;
// every later call reuses that attachment, so a device never carries
// duplicate channel monitors however many observers it has. The
// attachment lives for the rest of the device's lifetime.
func (s *Slits) Subscribe(fn EventFunc, opts SubscribeOptions) (int, error) {
	s.mu.Lock()
	if !s.hasSubscribed {
		if err := s.attachLocked(); err != nil {
			s.mu.Unlock()
			return 0, err
		}
		s.hasSubscribed = true
	}
	id := s.nextObserver
	s.nextObserver++
	s.observers[id] = fn
	s.mu.Unlock()

	if opts.Run {
		cur, err := s.CurrentAperture()
		if err == nil {
			fn(Event{Device: s.name, Aperture: cur, Timestamp: time.Now()})
		}
	}
	return id, nil
}

// Unsubscribe removes an observer. The channel monitors stay attached.
func (s *Slits) Unsubscribe(id int) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if _, ok := s.observers[id]; !ok {
		return fmt.Errorf("unsubscribe %s: %w", s.name, ErrUnknownObserver)
	}
	delete(s.observers, id)
	return nil
}

// attachLocked wires the width readbacks into the dispatch path.
// Called with s.mu held, once per device.
func (s *Slits) attachLocked() error {
	// The relay drops the child channel's identity: observers get a
	// normalized device-level event, not the raw axis event.
	relay := func(ev pv.Event) {
		s.dispatch(ev.Timestamp)
	}

	xid, err := s.xwidth.MonitorReadback(relay, false)
	if err != nil {
		return fmt.Errorf("subscribe %s: %w", s.name, err)
	}
	if _, err := s.ywidth.MonitorReadback(relay, false); err != nil {
		_ = s.xwidth.UnmonitorReadback(xid)
		return fmt.Errorf("subscribe %s: %w", s.name, err)
	}
	return nil
}

// dispatch rebuilds the device event and fans it out to every
// observer. Callbacks run outside the lock.
func (s *Slits) dispatch(ts time.Time) {
	cur, err := s.CurrentAperture()
	if err != nil {
		return
	}
	ev := Event{Device: s.name, Aperture: cur, Timestamp: ts}

	s.mu.Lock()
	fns := make([]EventFunc, 0, len(s.observers))
	for _, fn := range s.observers {
		fns = append(fns, fn)
	}
	s.mu.Unlock()

	for _, fn := range fns {
		fn(ev)
	}
}
