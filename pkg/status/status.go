// Package status provides completion tracking for commanded moves.
//
// A MoveStatus settles exactly once, either successfully or with an
// error, and fans out to waiters and callbacks. Join combines several
// statuses into one that succeeds when all succeed and fails with the
// first failure observed.
package status

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"time"
)

// ErrTimeout indicates a move did not settle within its timeout.
var ErrTimeout = errors.New("motion timed out")

// MoveStatus tracks one commanded move from dispatch to completion.
// It settles exactly once; later completion attempts are ignored.
// All methods are safe for concurrent use.
type MoveStatus struct {
	target string

	mu        sync.Mutex
	done      bool
	err       error
	doneCh    chan struct{}
	callbacks []func()
	stoppers  []func()
	timer     *time.Timer
}

// New creates a pending status for the named target. A positive timeout
// arms a timer that settles the status with ErrTimeout if nothing else
// settles it first; zero disables the timer.
func New(target string, timeout time.Duration) *MoveStatus {
	s := &MoveStatus{
		target: target,
		doneCh: make(chan struct{}),
	}
	if timeout > 0 {
		s.timer = time.AfterFunc(timeout, func() {
			s.Complete(fmt.Errorf("%w: %s after %s", ErrTimeout, target, timeout))
		})
	}
	return s
}

// Target returns the label of the move being tracked.
func (s *MoveStatus) Target() string {
	return s.target
}

// Done reports whether the status has settled.
func (s *MoveStatus) Done() bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.done
}

// Err returns the settlement error. It is nil while the status is
// pending and nil after a successful settlement.
func (s *MoveStatus) Err() error {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.err
}

// Complete settles the status. The first call wins; it reports whether
// this call was the one that settled. Callbacks run on the calling
// goroutine, outside the status lock.
func (s *MoveStatus) Complete(err error) bool {
	s.mu.Lock()
	if s.done {
		s.mu.Unlock()
		return false
	}
	s.done = true
	s.err = err
	if s.timer != nil {
		s.timer.Stop()
		s.timer = nil
	}
	callbacks := s.callbacks
	s.callbacks = nil
	close(s.doneCh)
	s.mu.Unlock()

	for _, fn := range callbacks {
		fn()
	}
	return true
}

// AddCallback registers fn to run once when the status settles. If the
// status has already settled, fn runs immediately on the calling
// goroutine.
func (s *MoveStatus) AddCallback(fn func()) {
	s.mu.Lock()
	if !s.done {
		s.callbacks = append(s.callbacks, fn)
		s.mu.Unlock()
		return
	}
	s.mu.Unlock()
	fn()
}

// OnStop registers fn to run when Stop is called. The motion layer
// registers the halt action of the axis driving this status.
func (s *MoveStatus) OnStop(fn func()) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.stoppers = append(s.stoppers, fn)
}

// Stop invokes the registered stop actions. It does not settle the
// status; the halted hardware settles it through its done flag.
func (s *MoveStatus) Stop() {
	s.mu.Lock()
	stoppers := make([]func(), len(s.stoppers))
	copy(stoppers, s.stoppers)
	s.mu.Unlock()

	for _, fn := range stoppers {
		fn()
	}
}

// Wait blocks until the status settles or ctx is cancelled. It returns
// the settlement error, or the ctx error on cancellation. Cancellation
// does not stop the underlying motion; callers that need that pair Wait
// with Stop.
func (s *MoveStatus) Wait(ctx context.Context) error {
	select {
	case <-s.doneCh:
		return s.Err()
	case <-ctx.Done():
		return ctx.Err()
	}
}
