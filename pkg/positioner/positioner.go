package positioner

import (
	"context"
	"fmt"
	"time"

	"github.com/photon-controls/slits-go/pkg/log"
	"github.com/photon-controls/slits-go/pkg/pv"
	"github.com/photon-controls/slits-go/pkg/status"
)

// DefaultTimeout is the motion timeout applied when neither the
// positioner config nor the move options carry one.
const DefaultTimeout = 30 * time.Second

// Config configures a single slit axis.
type Config struct {
	// Name is the display name used in events (default: the readback
	// PV name).
	Name string

	// Prefix is the slit record prefix, e.g. "HXR:SLIT1".
	Prefix string

	// Kind selects which of the four slit axes this positioner drives.
	Kind AxisKind

	// Limits optionally overrides the control limits reported by the
	// setpoint channel.
	Limits *pv.Limits

	// EGU optionally overrides the engineering units reported by the
	// readback channel.
	EGU string

	// Timeout is the default motion timeout (default: 30s).
	Timeout time.Duration

	// Logger receives setpoint and motion events (default: no-op).
	Logger log.Logger
}

// MoveOptions controls a single Move call.
type MoveOptions struct {
	// Wait blocks the calling goroutine until the motion settles.
	Wait bool

	// Ctx interrupts a blocking wait. Cancellation stops the axis
	// before the context error is returned. Only used with Wait.
	Ctx context.Context

	// Timeout overrides the positioner's default motion timeout.
	// Zero selects the default, negative disables the timeout.
	Timeout time.Duration
}

// Positioner drives one slit axis over its setpoint, readback and
// done-flag process variables.
type Positioner struct {
	name string
	kind AxisKind

	setpoint pv.PV
	readback pv.PV
	done     pv.PV

	limits  *pv.Limits
	egu     string
	timeout time.Duration
	logger  log.Logger
}

// New resolves the axis PV names from the config and connects them
// through conn.
func New(cfg Config, conn pv.Connector) (*Positioner, error) {
	if cfg.Prefix == "" {
		return nil, fmt.Errorf("positioner prefix is required")
	}
	if !cfg.Kind.IsValid() {
		return nil, fmt.Errorf("invalid axis kind %d", cfg.Kind)
	}
	if cfg.Timeout == 0 {
		cfg.Timeout = DefaultTimeout
	}

	spName, rbName, dmName := AxisAddress(cfg.Prefix, cfg.Kind)
	if cfg.Name == "" {
		cfg.Name = rbName
	}

	sp, err := conn.Connect(spName)
	if err != nil {
		return nil, fmt.Errorf("connect %s: %w", spName, err)
	}
	rb, err := conn.Connect(rbName)
	if err != nil {
		return nil, fmt.Errorf("connect %s: %w", rbName, err)
	}
	dm, err := conn.Connect(dmName)
	if err != nil {
		return nil, fmt.Errorf("connect %s: %w", dmName, err)
	}

	return &Positioner{
		name:     cfg.Name,
		kind:     cfg.Kind,
		setpoint: sp,
		readback: rb,
		done:     dm,
		limits:   cfg.Limits,
		egu:      cfg.EGU,
		timeout:  cfg.Timeout,
		logger:   log.OrNoop(cfg.Logger),
	}, nil
}

// Name returns the display name of the axis.
func (p *Positioner) Name() string {
	return p.name
}

// Kind returns which slit axis this positioner drives.
func (p *Positioner) Kind() AxisKind {
	return p.kind
}

// SetpointName returns the setpoint PV name.
func (p *Positioner) SetpointName() string {
	return p.setpoint.Name()
}

// ReadbackName returns the readback PV name.
func (p *Positioner) ReadbackName() string {
	return p.readback.Name()
}

// Connected reports whether all three channels are connected.
func (p *Positioner) Connected() bool {
	return p.setpoint.Connected() && p.readback.Connected() && p.done.Connected()
}

// Move writes the target to the setpoint channel without blocking and
// returns a status that settles on the next done-flag pulse. The write
// is dispatched before this call returns, so two axes can be commanded
// back to back and travel in parallel.
//
// With opts.Wait the call blocks until the status settles or opts.Ctx
// is cancelled. Cancellation stops the axis before the context error
// is returned; the motion itself keeps running on a plain timeout or
// when Wait is not requested.
//
// The returned error mirrors the status: nil while the motion is in
// flight or after success, the settlement error otherwise.
func (p *Positioner) Move(target float64, opts MoveOptions) (*status.MoveStatus, error) {
	timeout := opts.Timeout
	if timeout == 0 {
		timeout = p.timeout
	}
	if timeout < 0 {
		timeout = 0
	}

	st := status.New(p.setpoint.Name(), timeout)
	st.OnStop(p.Stop)

	now := time.Now()
	p.logger.Log(log.Event{
		Timestamp: now,
		Device:    p.name,
		PV:        p.setpoint.Name(),
		Category:  log.CategorySetpoint,
		Setpoint:  &log.SetpointEvent{Value: target},
	})
	p.logger.Log(log.Event{
		Timestamp: now,
		Device:    p.name,
		PV:        p.setpoint.Name(),
		Category:  log.CategoryMotion,
		Motion:    &log.MotionEvent{Phase: log.MotionStart, Target: target},
	})

	start := time.Now()
	st.AddCallback(func() {
		elapsed := time.Since(start)
		phase := log.MotionComplete
		if st.Err() != nil {
			phase = log.MotionFailed
		}
		p.logger.Log(log.Event{
			Timestamp: time.Now(),
			Device:    p.name,
			PV:        p.setpoint.Name(),
			Category:  log.CategoryMotion,
			Motion:    &log.MotionEvent{Phase: phase, Target: target, Elapsed: &elapsed},
		})
	})

	// Watch the done flag before the request goes out so the
	// completion pulse cannot slip past between write and attach.
	// The record layer pulses the flag once per commanded move, and
	// change suppression means a true event is always a transition.
	monID, err := p.done.Monitor(func(ev pv.Event) {
		if ev.Value != 0 {
			st.Complete(nil)
		}
	}, false)
	if err != nil {
		st.Complete(fmt.Errorf("move %s: %w", p.name, err))
		return st, st.Err()
	}
	st.AddCallback(func() {
		_ = p.done.Unmonitor(monID)
	})

	if err := p.setpoint.Put(target); err != nil {
		st.Complete(fmt.Errorf("move %s: %w", p.name, err))
		return st, st.Err()
	}

	if opts.Wait {
		ctx := opts.Ctx
		if ctx == nil {
			ctx = context.Background()
		}
		if err := st.Wait(ctx); err != nil {
			if !st.Done() {
				st.Stop()
			}
			return st, err
		}
		return st, nil
	}

	return st, st.Err()
}

// Stop withdraws any in-flight motion request by rewriting the
// setpoint to the current readback. Best effort: errors are ignored
// and no particular axis state is guaranteed afterward.
func (p *Positioner) Stop() {
	cur, err := p.readback.Get()
	if err != nil {
		return
	}
	_ = p.setpoint.Put(cur)
	p.logger.Log(log.Event{
		Timestamp: time.Now(),
		Device:    p.name,
		PV:        p.setpoint.Name(),
		Category:  log.CategoryMotion,
		Motion:    &log.MotionEvent{Phase: log.MotionStopped, Target: cur},
	})
}

// Request writes a raw setpoint without tracking completion. Used for
// restoring staged values.
func (p *Positioner) Request(value float64) error {
	p.logger.Log(log.Event{
		Timestamp: time.Now(),
		Device:    p.name,
		PV:        p.setpoint.Name(),
		Category:  log.CategorySetpoint,
		Setpoint:  &log.SetpointEvent{Value: value},
	})
	return p.setpoint.Put(value)
}

// Position returns the current readback value.
func (p *Positioner) Position() (float64, error) {
	return p.readback.Get()
}

// Setpoint returns the last requested target.
func (p *Positioner) Setpoint() (float64, error) {
	return p.setpoint.Get()
}

// Done reports whether the slit is idle. The done record is shared,
// so this is false while any axis of the slit is in motion.
func (p *Positioner) Done() (bool, error) {
	v, err := p.done.Get()
	if err != nil {
		return false, err
	}
	return v != 0, nil
}

// EGU returns the engineering units for the axis: the configured
// override if set, else whatever the readback channel reports at call
// time. Hardware metadata may be unavailable until connection is
// established, so units are never cached at construction. Returns the
// empty string when unavailable.
func (p *Positioner) EGU() string {
	if p.egu != "" {
		return p.egu
	}
	units, err := p.readback.Units()
	if err != nil {
		return ""
	}
	return units
}

// Limits returns the control limits for the axis: the configured
// override if set, else the limits reported by the setpoint channel.
// The bool is false when neither is available.
func (p *Positioner) Limits() (pv.Limits, bool) {
	if p.limits != nil {
		return *p.limits, true
	}
	lim, ok, err := p.setpoint.ControlLimits()
	if err != nil || !ok {
		return pv.Limits{}, false
	}
	return lim, true
}

// MonitorReadback attaches fn to the readback channel. The returned id
// is only valid for UnmonitorReadback.
func (p *Positioner) MonitorReadback(fn pv.EventFunc, fireCurrent bool) (int, error) {
	return p.readback.Monitor(fn, fireCurrent)
}

// UnmonitorReadback detaches a readback monitor.
func (p *Positioner) UnmonitorReadback(id int) error {
	return p.readback.Unmonitor(id)
}
