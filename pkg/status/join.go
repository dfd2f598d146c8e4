package status

import (
	"strings"
	"sync/atomic"
)

// Join combines statuses into one that succeeds when every constituent
// succeeds and fails as soon as any constituent fails, carrying that
// first failure. Stopping the joint status stops every constituent.
// Joining nothing yields an immediately successful status.
func Join(statuses ...*MoveStatus) *MoveStatus {
	targets := make([]string, len(statuses))
	for i, cs := range statuses {
		targets[i] = cs.Target()
	}
	joint := New(strings.Join(targets, "&"), 0)

	if len(statuses) == 0 {
		joint.Complete(nil)
		return joint
	}

	for _, cs := range statuses {
		joint.OnStop(cs.Stop)
	}

	// Settling one constituent never settles the joint by itself: the
	// joint succeeds only when the last success arrives, and fails the
	// moment the first failure arrives.
	var remaining atomic.Int32
	remaining.Store(int32(len(statuses)))

	for _, cs := range statuses {
		cs := cs
		cs.AddCallback(func() {
			if err := cs.Err(); err != nil {
				joint.Complete(err)
				return
			}
			if remaining.Add(-1) == 0 {
				joint.Complete(nil)
			}
		})
	}

	return joint
}
