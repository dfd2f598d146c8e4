package gateway

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"time"

	"github.com/photon-controls/slits-go/pkg/pv"
)

// Connect resolves a channel name served by the gateway, satisfying
// pv.Connector. The name is probed so typos fail at construction time
// rather than on first use; offline channels still resolve.
func (c *Client) Connect(name string) (pv.PV, error) {
	if _, _, err := c.Get(context.Background(), name); err != nil {
		switch {
		case errors.Is(err, pv.ErrNotFound):
			return nil, err
		case errors.Is(err, pv.ErrNotConnected):
			// Exists but offline; devices may still construct against it.
		default:
			return nil, fmt.Errorf("connect %s: %w", name, err)
		}
	}

	return &RemotePV{
		name:     name,
		client:   c,
		monitors: make(map[int]uint32),
	}, nil
}

// RemotePV is a channel served by a gateway. It satisfies pv.PV, so
// devices built over a Connector work unchanged whether their channels
// are local soft records or remote ones.
type RemotePV struct {
	name   string
	client *Client

	mu       sync.Mutex
	monitors map[int]uint32
	nextID   int
}

// Name returns the channel name.
func (r *RemotePV) Name() string {
	return r.name
}

// Get reads the channel's current value through the gateway.
func (r *RemotePV) Get() (float64, error) {
	value, _, err := r.client.Get(context.Background(), r.name)
	return value, err
}

// Put writes a value through the gateway.
func (r *RemotePV) Put(value float64) error {
	return r.client.Put(context.Background(), r.name, value)
}

// Units returns the channel's engineering units.
func (r *RemotePV) Units() (string, error) {
	info, err := r.client.Info(context.Background(), r.name)
	if err != nil {
		return "", err
	}
	return info.Units, nil
}

// ControlLimits returns the channel's control range.
func (r *RemotePV) ControlLimits() (pv.Limits, bool, error) {
	info, err := r.client.Info(context.Background(), r.name)
	if err != nil {
		return pv.Limits{}, false, err
	}
	if !info.HasLimits {
		return pv.Limits{}, false, nil
	}
	return pv.Limits{Low: info.LimitLow, High: info.LimitHigh}, true, nil
}

// Monitor registers fn for value updates. Updates arrive on the client's
// dispatch goroutine. When fireCurrent is true, fn is invoked once with
// the registration-time value before Monitor returns.
func (r *RemotePV) Monitor(fn pv.EventFunc, fireCurrent bool) (int, error) {
	gatewayID, current, err := r.client.Monitor(context.Background(), r.name, fn, 0, 0)
	if err != nil {
		return 0, err
	}

	r.mu.Lock()
	r.nextID++
	id := r.nextID
	r.monitors[id] = gatewayID
	r.mu.Unlock()

	if fireCurrent {
		fn(pv.Event{PV: r.name, Value: current, Timestamp: time.Now()})
	}
	return id, nil
}

// Unmonitor cancels a monitor by ID.
func (r *RemotePV) Unmonitor(id int) error {
	r.mu.Lock()
	gatewayID, ok := r.monitors[id]
	delete(r.monitors, id)
	r.mu.Unlock()

	if !ok {
		return fmt.Errorf("%w: %d", pv.ErrUnknownMonitor, id)
	}
	return r.client.Unmonitor(context.Background(), gatewayID)
}

// Connected reports whether the channel can currently be read: both the
// gateway link and the remote channel must be up.
func (r *RemotePV) Connected() bool {
	if !r.client.Connected() {
		return false
	}
	_, err := r.Get()
	return err == nil
}

// Compile-time interface satisfaction checks.
var (
	_ pv.PV        = (*RemotePV)(nil)
	_ pv.Connector = (*Client)(nil)
)
