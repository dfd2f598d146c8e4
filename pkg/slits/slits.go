package slits

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"time"

	"github.com/photon-controls/slits-go/pkg/log"
	"github.com/photon-controls/slits-go/pkg/positioner"
	"github.com/photon-controls/slits-go/pkg/pv"
	"github.com/photon-controls/slits-go/pkg/status"
)

// DefaultNominal is the nominal aperture assumed when the config
// carries none.
var DefaultNominal = Aperture{Width: 5.0, Height: 5.0}

// ErrNominalZero indicates a transmission query against a slit whose
// nominal dimension is zero.
var ErrNominalZero = errors.New("nominal aperture dimension is zero")

// Config configures one slit device.
type Config struct {
	// Name is the display name used in events (default: the prefix).
	Name string

	// Prefix is the slit record prefix, e.g. "HXR:SLIT1".
	Prefix string

	// Nominal is the fully-removed aperture. Beam transmission and
	// insertion state are judged against it (default: 5.0 x 5.0).
	Nominal Aperture

	// Timeout is the default motion timeout for all four axes.
	Timeout time.Duration

	// Logger receives device events (default: no-op).
	Logger log.Logger
}

// MoveOptions controls a device-level move.
type MoveOptions struct {
	// Wait blocks the calling goroutine until both width axes settle.
	Wait bool

	// Ctx interrupts a blocking wait. Cancellation stops both width
	// axes before the context error is returned. Only used with Wait.
	Ctx context.Context

	// Timeout overrides the device's default motion timeout.
	// Zero selects the default, negative disables the timeout.
	Timeout time.Duration

	// OnComplete is attached to the joint status and invoked with no
	// arguments when it settles, regardless of outcome.
	OnComplete func()
}

// Slits is a four-blade slit assembly addressed through one record
// prefix.
type Slits struct {
	name    string
	prefix  string
	nominal Aperture

	xwidth  *positioner.Positioner
	ywidth  *positioner.Positioner
	xcenter *positioner.Positioner
	ycenter *positioner.Positioner

	openCmd  pv.PV
	closeCmd pv.PV
	blockCmd pv.PV
	blocked  pv.PV

	logger log.Logger

	mu            sync.Mutex
	observers     map[int]EventFunc
	nextObserver  int
	hasSubscribed bool
	staged        map[string]float64
}

// New connects the four axes and the discrete command records through
// conn.
func New(cfg Config, conn pv.Connector) (*Slits, error) {
	if cfg.Prefix == "" {
		return nil, fmt.Errorf("slit prefix is required")
	}
	if cfg.Name == "" {
		cfg.Name = cfg.Prefix
	}
	if cfg.Nominal.IsZero() {
		cfg.Nominal = DefaultNominal
	}
	logger := log.OrNoop(cfg.Logger)

	s := &Slits{
		name:      cfg.Name,
		prefix:    cfg.Prefix,
		nominal:   cfg.Nominal,
		logger:    logger,
		observers: make(map[int]EventFunc),
	}

	axes := []struct {
		kind   positioner.AxisKind
		suffix string
		dst    **positioner.Positioner
	}{
		{positioner.XWidth, "xwidth", &s.xwidth},
		{positioner.YWidth, "ywidth", &s.ywidth},
		{positioner.XCenter, "xcenter", &s.xcenter},
		{positioner.YCenter, "ycenter", &s.ycenter},
	}
	for _, ax := range axes {
		p, err := positioner.New(positioner.Config{
			Name:    cfg.Name + "_" + ax.suffix,
			Prefix:  cfg.Prefix,
			Kind:    ax.kind,
			Timeout: cfg.Timeout,
			Logger:  logger,
		}, conn)
		if err != nil {
			return nil, err
		}
		*ax.dst = p
	}

	cmds := []struct {
		suffix string
		dst    *pv.PV
	}{
		{":OPEN", &s.openCmd},
		{":CLOSE", &s.closeCmd},
		{":BLOCK", &s.blockCmd},
		{":BLOCKED", &s.blocked},
	}
	for _, c := range cmds {
		ch, err := conn.Connect(cfg.Prefix + c.suffix)
		if err != nil {
			return nil, fmt.Errorf("connect %s: %w", cfg.Prefix+c.suffix, err)
		}
		*c.dst = ch
	}

	return s, nil
}

// Name returns the display name of the slit.
func (s *Slits) Name() string {
	return s.name
}

// Prefix returns the record prefix.
func (s *Slits) Prefix() string {
	return s.prefix
}

// Nominal returns the fully-removed aperture.
func (s *Slits) Nominal() Aperture {
	return s.nominal
}

// XWidth returns the horizontal gap axis.
func (s *Slits) XWidth() *positioner.Positioner { return s.xwidth }

// YWidth returns the vertical gap axis.
func (s *Slits) YWidth() *positioner.Positioner { return s.ywidth }

// XCenter returns the horizontal offset axis.
func (s *Slits) XCenter() *positioner.Positioner { return s.xcenter }

// YCenter returns the vertical offset axis.
func (s *Slits) YCenter() *positioner.Positioner { return s.ycenter }

// Move requests the aperture ap. Both width requests are dispatched
// before either is awaited, and the returned joint status settles when
// both axes have settled. Either axis failing fails the joint with the
// first failure.
//
// With opts.Wait the call blocks until the joint settles or opts.Ctx
// is cancelled; cancellation stops both width axes before the context
// error is returned. The joint status is returned in all cases so
// callers can inspect or re-await it.
func (s *Slits) Move(ap Aperture, opts MoveOptions) (*status.MoveStatus, error) {
	axisOpts := positioner.MoveOptions{Timeout: opts.Timeout}

	// Fan out: both requests leave before either is awaited, so the
	// axes travel in parallel rather than sequentially.
	wst, _ := s.xwidth.Move(ap.Width, axisOpts)
	hst, _ := s.ywidth.Move(ap.Height, axisOpts)

	joint := status.Join(wst, hst)
	if opts.OnComplete != nil {
		joint.AddCallback(opts.OnComplete)
	}

	if opts.Wait {
		ctx := opts.Ctx
		if ctx == nil {
			ctx = context.Background()
		}
		if err := joint.Wait(ctx); err != nil {
			if !joint.Done() {
				// Operator interrupt: halt both axes, never leave
				// partial motion running.
				joint.Stop()
			}
			return joint, err
		}
		return joint, nil
	}

	return joint, joint.Err()
}

// MoveSquare requests a square aperture of the given size.
func (s *Slits) MoveSquare(size float64, opts MoveOptions) (*status.MoveStatus, error) {
	return s.Move(Square(size), opts)
}

// Remove drives the slit to its nominal aperture, taking it out of
// the beam.
func (s *Slits) Remove(opts MoveOptions) (*status.MoveStatus, error) {
	return s.Move(s.nominal, opts)
}

// RemoveTo drives the slit to an explicit removal aperture.
func (s *Slits) RemoveTo(ap Aperture, opts MoveOptions) (*status.MoveStatus, error) {
	return s.Move(ap, opts)
}

// Set requests ap without blocking and returns the joint status. Scan
// frameworks settle on the status rather than the call.
func (s *Slits) Set(ap Aperture) *status.MoveStatus {
	st, _ := s.Move(ap, MoveOptions{})
	return st
}

// Stop halts all four axes.
func (s *Slits) Stop() {
	s.xwidth.Stop()
	s.ywidth.Stop()
	s.xcenter.Stop()
	s.ycenter.Stop()
}

// Open triggers the discrete open command. Fire and forget: the record
// layer drives the blades, no completion is tracked.
func (s *Slits) Open() error {
	return s.command(s.openCmd)
}

// Close triggers the discrete close command.
func (s *Slits) Close() error {
	return s.command(s.closeCmd)
}

// Block triggers the discrete block command, overlapping the blades to
// cut the beam.
func (s *Slits) Block() error {
	return s.command(s.blockCmd)
}

func (s *Slits) command(ch pv.PV) error {
	s.logger.Log(log.Event{
		Timestamp: time.Now(),
		Device:    s.name,
		PV:        ch.Name(),
		Category:  log.CategorySetpoint,
		Setpoint:  &log.SetpointEvent{Value: 1},
	})
	if err := ch.Put(1); err != nil {
		return fmt.Errorf("command %s: %w", ch.Name(), err)
	}
	return nil
}

// Blocked reads the blocked flag. The flag is reported, not enforced:
// a blocked slit still accepts moves.
func (s *Slits) Blocked() (bool, error) {
	v, err := s.blocked.Get()
	if err != nil {
		return false, err
	}
	return v != 0, nil
}

// CurrentAperture reads the two width readbacks.
func (s *Slits) CurrentAperture() (Aperture, error) {
	w, err := s.xwidth.Position()
	if err != nil {
		return Aperture{}, err
	}
	h, err := s.ywidth.Position()
	if err != nil {
		return Aperture{}, err
	}
	return Aperture{Width: w, Height: h}, nil
}

// Position is an alias for CurrentAperture.
func (s *Slits) Position() (Aperture, error) {
	return s.CurrentAperture()
}

// Inserted reports whether the slit cuts into the beam: both current
// dimensions strictly smaller than nominal. Partial closure on one
// axis only does not count.
func (s *Slits) Inserted() (bool, error) {
	cur, err := s.CurrentAperture()
	if err != nil {
		return false, err
	}
	return cur.Width < s.nominal.Width && cur.Height < s.nominal.Height, nil
}

// Removed reports whether the slit is out of the beam.
func (s *Slits) Removed() (bool, error) {
	ins, err := s.Inserted()
	if err != nil {
		return false, err
	}
	return !ins, nil
}

// Transmission estimates the fraction of the beam passed by the slit.
// The dimension with the smaller current opening dominates: its
// current value is divided by its own nominal value, capped at 1.0.
// Width wins when the two dimensions tie.
func (s *Slits) Transmission() (float64, error) {
	cur, err := s.CurrentAperture()
	if err != nil {
		return 0, err
	}

	current, nominal := cur.Width, s.nominal.Width
	if cur.Height < cur.Width {
		current, nominal = cur.Height, s.nominal.Height
	}
	if nominal == 0 {
		return 0, fmt.Errorf("transmission %s: %w", s.name, ErrNominalZero)
	}

	t := current / nominal
	if t > 1.0 {
		t = 1.0
	}
	return t, nil
}

// Hints returns the readback PV names a live display should follow:
// the two width readbacks.
func (s *Slits) Hints() []string {
	return []string{s.xwidth.ReadbackName(), s.ywidth.ReadbackName()}
}

// Stage snapshots the two width readbacks keyed by their setpoint
// channels. Unstage writes the snapshot back, returning the slit to
// its pre-scan opening. A second Stage replaces the snapshot.
func (s *Slits) Stage() error {
	w, err := s.xwidth.Position()
	if err != nil {
		return fmt.Errorf("stage %s: %w", s.name, err)
	}
	h, err := s.ywidth.Position()
	if err != nil {
		return fmt.Errorf("stage %s: %w", s.name, err)
	}

	s.mu.Lock()
	s.staged = map[string]float64{
		s.xwidth.SetpointName(): w,
		s.ywidth.SetpointName(): h,
	}
	s.mu.Unlock()
	return nil
}

// Unstage restores the staged setpoints and clears the snapshot. A
// no-op when the slit was never staged.
func (s *Slits) Unstage() error {
	s.mu.Lock()
	staged := s.staged
	s.staged = nil
	s.mu.Unlock()

	if staged == nil {
		return nil
	}
	if v, ok := staged[s.xwidth.SetpointName()]; ok {
		if err := s.xwidth.Request(v); err != nil {
			return fmt.Errorf("unstage %s: %w", s.name, err)
		}
	}
	if v, ok := staged[s.ywidth.SetpointName()]; ok {
		if err := s.ywidth.Request(v); err != nil {
			return fmt.Errorf("unstage %s: %w", s.name, err)
		}
	}
	return nil
}

// Staged returns a copy of the current stage snapshot, nil when not
// staged.
func (s *Slits) Staged() map[string]float64 {
	s.mu.Lock()
	defer s.mu.Unlock()

	if s.staged == nil {
		return nil
	}
	out := make(map[string]float64, len(s.staged))
	for k, v := range s.staged {
		out[k] = v
	}
	return out
}
