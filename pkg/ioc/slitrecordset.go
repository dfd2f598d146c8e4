package ioc

import (
	"fmt"
	"math"
	"sync"
	"time"

	"github.com/photon-controls/slits-go/pkg/log"
	"github.com/photon-controls/slits-go/pkg/positioner"
	"github.com/photon-controls/slits-go/pkg/pv"
)

// Simulation defaults.
const (
	// DefaultVelocity is the axis travel speed in units per second.
	DefaultVelocity = 5.0

	// DefaultTick is the motion step period.
	DefaultTick = 5 * time.Millisecond

	// DefaultOpenSize is the width both axes travel to on OPEN.
	DefaultOpenSize = 10.0

	// DefaultBlockOverlap is how far past closed the blades travel on
	// BLOCK. The resulting width is its negation.
	DefaultBlockOverlap = 1.0

	// DefaultInitialWidth is the starting aperture of a fresh slit.
	DefaultInitialWidth = 5.0
)

// DefaultLimits is the control range advertised on the setpoint records.
var DefaultLimits = pv.Limits{Low: -5, High: 25}

// SlitConfig holds the configuration for one simulated slit.
type SlitConfig struct {
	// Prefix is the record name prefix (e.g. "HXR:SLIT1"). Required.
	Prefix string

	// InitialWidth and InitialHeight are the starting aperture
	// (default: DefaultInitialWidth each). Centers start at zero.
	InitialWidth  float64
	InitialHeight float64

	// Velocity is the travel speed in units per second
	// (default: DefaultVelocity).
	Velocity float64

	// Tick is the motion step period (default: DefaultTick).
	Tick time.Duration

	// OpenSize is the width OPEN drives both axes to
	// (default: DefaultOpenSize).
	OpenSize float64

	// BlockOverlap is how far the blades overlap on BLOCK
	// (default: DefaultBlockOverlap).
	BlockOverlap float64

	// Limits is the control range advertised on the setpoint records
	// (default: DefaultLimits).
	Limits *pv.Limits

	// Units is the engineering unit on every axis record (default: "mm").
	Units string

	// Logger receives motion and command events.
	Logger log.Logger
}

// slitAxis is the simulation state of one axis. Fields other than the
// records are guarded by the record set mutex.
type slitAxis struct {
	kind   positioner.AxisKind
	req    *pv.SoftPV
	actual *pv.SoftPV

	position   float64
	moving     bool
	generation uint64
}

// recordWrite is a queued record update. The done-sync goroutine applies
// queued writes in order, which keeps the final readback write ahead of
// the done-flag rise it triggers.
type recordWrite struct {
	record *pv.SoftPV
	value  float64
}

// SlitRecordSet is the full record set for one slit prefix.
type SlitRecordSet struct {
	config SlitConfig
	logger log.Logger

	axes    map[positioner.AxisKind]*slitAxis
	dmov    *pv.SoftPV
	opener  *pv.SoftPV
	closer  *pv.SoftPV
	blocker *pv.SoftPV
	blocked *pv.SoftPV

	mu          sync.Mutex
	movingCount int
	queue       []recordWrite
	stopped     bool

	syncCh    chan struct{}
	closed    chan struct{}
	closeOnce sync.Once
	wg        sync.WaitGroup
}

// NewSlitRecordSet builds the records for one slit and starts its
// simulation. Call Close to stop it.
func NewSlitRecordSet(config SlitConfig) (*SlitRecordSet, error) {
	if config.Prefix == "" {
		return nil, fmt.Errorf("prefix is required")
	}
	if config.InitialWidth == 0 {
		config.InitialWidth = DefaultInitialWidth
	}
	if config.InitialHeight == 0 {
		config.InitialHeight = DefaultInitialWidth
	}
	if config.Velocity <= 0 {
		config.Velocity = DefaultVelocity
	}
	if config.Tick <= 0 {
		config.Tick = DefaultTick
	}
	if config.OpenSize == 0 {
		config.OpenSize = DefaultOpenSize
	}
	if config.BlockOverlap == 0 {
		config.BlockOverlap = DefaultBlockOverlap
	}
	if config.Limits == nil {
		limits := DefaultLimits
		config.Limits = &limits
	}
	if config.Units == "" {
		config.Units = "mm"
	}

	rs := &SlitRecordSet{
		config: config,
		logger: log.OrNoop(config.Logger),
		axes:   make(map[positioner.AxisKind]*slitAxis),
		syncCh: make(chan struct{}, 1),
		closed: make(chan struct{}),
	}

	initial := map[positioner.AxisKind]float64{
		positioner.XWidth:  config.InitialWidth,
		positioner.YWidth:  config.InitialHeight,
		positioner.XCenter: 0,
		positioner.YCenter: 0,
	}

	var doneName string
	for _, kind := range []positioner.AxisKind{
		positioner.XWidth, positioner.YWidth, positioner.XCenter, positioner.YCenter,
	} {
		setpoint, readback, done := positioner.AxisAddress(config.Prefix, kind)
		doneName = done

		a := &slitAxis{
			kind:     kind,
			position: initial[kind],
			req: pv.NewSoftPV(setpoint,
				pv.WithValue(initial[kind]),
				pv.WithAlwaysNotify(),
				pv.WithLimits(config.Limits.Low, config.Limits.High),
				pv.WithUnits(config.Units)),
			actual: pv.NewSoftPV(readback,
				pv.WithValue(initial[kind]),
				pv.WithReadOnly(),
				pv.WithUnits(config.Units)),
		}
		rs.axes[kind] = a

		// Every setpoint write commands a move, repeats included.
		if _, err := a.req.Monitor(func(ev pv.Event) {
			rs.startMove(a, ev.Value)
		}, false); err != nil {
			return nil, fmt.Errorf("attach %s: %w", setpoint, err)
		}
	}

	rs.dmov = pv.NewSoftPV(doneName, pv.WithValue(1), pv.WithReadOnly())
	rs.blocked = pv.NewSoftPV(config.Prefix+":BLOCKED", pv.WithValue(0), pv.WithReadOnly())

	commands := []struct {
		suffix string
		dst    **pv.SoftPV
		fn     func()
	}{
		{":OPEN", &rs.opener, rs.openBlades},
		{":CLOSE", &rs.closer, rs.closeBlades},
		{":BLOCK", &rs.blocker, rs.blockBlades},
	}
	for _, cmd := range commands {
		cmd := cmd // pin for per-iteration capture under pre-1.22 loop semantics
		record := pv.NewSoftPV(config.Prefix+cmd.suffix, pv.WithAlwaysNotify())
		*cmd.dst = record

		if _, err := record.Monitor(func(ev pv.Event) {
			if ev.Value != 0 {
				cmd.fn()
			}
		}, false); err != nil {
			return nil, fmt.Errorf("attach %s: %w", record.Name(), err)
		}
	}

	rs.wg.Add(1)
	go rs.applyLoop()

	return rs, nil
}

// Prefix returns the record name prefix.
func (rs *SlitRecordSet) Prefix() string {
	return rs.config.Prefix
}

// Register adds every record to the registry.
func (rs *SlitRecordSet) Register(reg *pv.Registry) error {
	records := []*pv.SoftPV{rs.dmov, rs.opener, rs.closer, rs.blocker, rs.blocked}
	for _, a := range rs.axes {
		records = append(records, a.req, a.actual)
	}
	for _, record := range records {
		if err := reg.Add(record); err != nil {
			return fmt.Errorf("register %s: %w", record.Name(), err)
		}
	}
	return nil
}

// Close stops the simulation and waits for its goroutines to finish.
// The records stay readable; motion commands are ignored afterwards.
func (rs *SlitRecordSet) Close() {
	rs.closeOnce.Do(func() {
		rs.mu.Lock()
		rs.stopped = true
		rs.mu.Unlock()
		close(rs.closed)
	})
	rs.wg.Wait()
}

// startMove commands an axis toward target, superseding any motion in
// progress on that axis.
func (rs *SlitRecordSet) startMove(a *slitAxis, target float64) {
	rs.mu.Lock()
	if rs.stopped {
		rs.mu.Unlock()
		return
	}

	a.generation++
	gen := a.generation
	if !a.moving {
		a.moving = true
		rs.movingCount++
		if rs.movingCount == 1 {
			rs.enqueueLocked(rs.dmov, 0)
		}
	}
	// Add under the lock so Close cannot begin waiting between the
	// stopped check and the spawn.
	rs.wg.Add(1)
	rs.mu.Unlock()

	rs.logger.Log(log.Event{
		Timestamp: time.Now(),
		Device:    rs.config.Prefix,
		PV:        a.req.Name(),
		Category:  log.CategoryMotion,
		Motion:    &log.MotionEvent{Phase: log.MotionStart, Target: target},
	})

	go rs.runMotion(a, gen, target)
}

// runMotion steps one axis toward its target. It exits when the axis
// arrives, when a newer command supersedes it, or when the record set
// closes.
func (rs *SlitRecordSet) runMotion(a *slitAxis, gen uint64, target float64) {
	defer rs.wg.Done()

	ticker := time.NewTicker(rs.config.Tick)
	defer ticker.Stop()

	step := rs.config.Velocity * rs.config.Tick.Seconds()

	for {
		rs.mu.Lock()
		if rs.stopped || a.generation != gen {
			rs.mu.Unlock()
			return
		}

		delta := target - a.position
		arrived := math.Abs(delta) <= step
		if arrived {
			a.position = target
			a.moving = false
			rs.movingCount--
			rs.enqueueLocked(a.actual, target)
			if rs.movingCount == 0 {
				rs.enqueueLocked(rs.dmov, 1)
			}
		} else {
			a.position += math.Copysign(step, delta)
			rs.enqueueLocked(a.actual, a.position)
		}
		rs.mu.Unlock()

		if arrived {
			rs.logger.Log(log.Event{
				Timestamp: time.Now(),
				Device:    rs.config.Prefix,
				PV:        a.req.Name(),
				Category:  log.CategoryMotion,
				Motion:    &log.MotionEvent{Phase: log.MotionComplete, Target: target},
			})
			return
		}

		select {
		case <-rs.closed:
			return
		case <-ticker.C:
		}
	}
}

// enqueueLocked queues a record write for the apply loop. Callers hold
// the record set mutex, which fixes the application order: an axis
// arrival's readback write always precedes the done-flag rise.
func (rs *SlitRecordSet) enqueueLocked(record *pv.SoftPV, value float64) {
	rs.queue = append(rs.queue, recordWrite{record: record, value: value})
	select {
	case rs.syncCh <- struct{}{}:
	default:
	}
}

// applyLoop drains queued record writes. Running them on a single
// goroutine keeps monitor callbacks off the motion loops and lets a
// callback command a new move without deadlocking.
func (rs *SlitRecordSet) applyLoop() {
	defer rs.wg.Done()

	for {
		select {
		case <-rs.closed:
			return
		case <-rs.syncCh:
		}

		for {
			rs.mu.Lock()
			if len(rs.queue) == 0 {
				rs.mu.Unlock()
				break
			}
			w := rs.queue[0]
			rs.queue = rs.queue[1:]
			rs.mu.Unlock()

			w.record.SetInternal(w.value)
		}
	}
}

// openBlades drives both width axes to the open size.
func (rs *SlitRecordSet) openBlades() {
	rs.logCommand(rs.opener.Name())
	rs.blocked.SetInternal(0)
	rs.retargetWidths(rs.config.OpenSize)
}

// closeBlades drives both width axes to zero.
func (rs *SlitRecordSet) closeBlades() {
	rs.logCommand(rs.closer.Name())
	rs.blocked.SetInternal(0)
	rs.retargetWidths(0)
}

// blockBlades overlaps the blades and raises the blocked flag.
func (rs *SlitRecordSet) blockBlades() {
	rs.logCommand(rs.blocker.Name())
	rs.blocked.SetInternal(1)
	rs.retargetWidths(-rs.config.BlockOverlap)
}

// retargetWidths rewrites both width setpoints, which commands the moves
// through the usual setpoint path.
func (rs *SlitRecordSet) retargetWidths(target float64) {
	rs.axes[positioner.XWidth].req.SetInternal(target)
	rs.axes[positioner.YWidth].req.SetInternal(target)
}

func (rs *SlitRecordSet) logCommand(name string) {
	rs.logger.Log(log.Event{
		Timestamp: time.Now(),
		Device:    rs.config.Prefix,
		PV:        name,
		Category:  log.CategorySetpoint,
		Setpoint:  &log.SetpointEvent{Value: 1},
	})
}
