package gateway

import (
	"context"
	"errors"
	"fmt"
	"net"
	"sync"
	"sync/atomic"
	"time"

	"github.com/google/uuid"

	"github.com/photon-controls/slits-go/pkg/log"
	"github.com/photon-controls/slits-go/pkg/monitor"
	"github.com/photon-controls/slits-go/pkg/pv"
	"github.com/photon-controls/slits-go/pkg/version"
	"github.com/photon-controls/slits-go/pkg/wire"
)

const (
	// DefaultAddress is the default gateway listen address.
	DefaultAddress = ":5815"

	// DefaultPumpInterval is how often pending monitor updates are
	// dispatched to each connection.
	DefaultPumpInterval = 20 * time.Millisecond
)

// ServerConfig holds the gateway server configuration.
type ServerConfig struct {
	// Address to listen on (default: DefaultAddress).
	Address string

	// Registry holds the channels the gateway serves. Required.
	Registry *pv.Registry

	// MaxMessageSize caps frame payloads in bytes (default:
	// DefaultMaxMessageSize).
	MaxMessageSize uint32

	// Monitors configures each connection's monitor manager.
	// Zero values select the manager defaults.
	Monitors monitor.Config

	// PumpInterval is the monitor dispatch period (default:
	// DefaultPumpInterval).
	PumpInterval time.Duration

	// Logger receives wire, connection and error events.
	Logger log.Logger
}

// Server accepts gateway connections and serves registry channels.
type Server struct {
	config ServerConfig
	logger log.Logger

	listener net.Listener
	running  atomic.Bool
	ctx      context.Context
	cancel   context.CancelFunc
	wg       sync.WaitGroup

	connsMu sync.RWMutex
	conns   map[string]*serverConn
}

// NewServer creates a gateway server. Call Start to begin accepting
// connections.
func NewServer(config ServerConfig) (*Server, error) {
	if config.Registry == nil {
		return nil, fmt.Errorf("registry is required")
	}
	if config.Address == "" {
		config.Address = DefaultAddress
	}
	if config.MaxMessageSize == 0 {
		config.MaxMessageSize = DefaultMaxMessageSize
	}
	if config.PumpInterval <= 0 {
		config.PumpInterval = DefaultPumpInterval
	}

	return &Server{
		config: config,
		logger: log.OrNoop(config.Logger),
		conns:  make(map[string]*serverConn),
	}, nil
}

// Start begins listening and accepting connections. The context bounds
// the server's lifetime; cancelling it is equivalent to calling Stop.
func (s *Server) Start(ctx context.Context) error {
	if !s.running.CompareAndSwap(false, true) {
		return fmt.Errorf("server already running")
	}

	listener, err := net.Listen("tcp", s.config.Address)
	if err != nil {
		s.running.Store(false)
		return fmt.Errorf("listen on %s: %w", s.config.Address, err)
	}
	s.listener = listener
	s.ctx, s.cancel = context.WithCancel(ctx)

	s.wg.Add(1)
	go s.acceptLoop()
	return nil
}

// Stop closes the listener and all active connections, then waits for
// the connection handlers to finish.
func (s *Server) Stop() error {
	if !s.running.CompareAndSwap(true, false) {
		return nil
	}

	s.cancel()
	if s.listener != nil {
		s.listener.Close()
	}

	s.connsMu.Lock()
	for _, sc := range s.conns {
		sc.close()
	}
	s.connsMu.Unlock()

	s.wg.Wait()
	return nil
}

// Addr returns the listener address, or nil before Start.
func (s *Server) Addr() net.Addr {
	if s.listener == nil {
		return nil
	}
	return s.listener.Addr()
}

// ConnectionCount returns the number of active connections.
func (s *Server) ConnectionCount() int {
	s.connsMu.RLock()
	defer s.connsMu.RUnlock()
	return len(s.conns)
}

func (s *Server) acceptLoop() {
	defer s.wg.Done()

	for {
		conn, err := s.listener.Accept()
		if err != nil {
			if !s.running.Load() {
				return
			}
			select {
			case <-s.ctx.Done():
				return
			default:
			}
			continue
		}

		s.wg.Add(1)
		go s.handleConnection(conn)
	}
}

func (s *Server) handleConnection(conn net.Conn) {
	defer s.wg.Done()

	sc := newServerConn(s, conn)

	s.connsMu.Lock()
	s.conns[sc.id] = sc
	s.connsMu.Unlock()

	s.logger.Log(log.Event{
		Timestamp: time.Now(),
		Category:  log.CategoryConnection,
		Connection: &log.ConnectionEvent{
			RemoteAddr: conn.RemoteAddr().String(),
			NewState:   "CONNECTED",
		},
	})

	sc.run(s.ctx)

	s.connsMu.Lock()
	delete(s.conns, sc.id)
	s.connsMu.Unlock()

	s.logger.Log(log.Event{
		Timestamp: time.Now(),
		Category:  log.CategoryConnection,
		Connection: &log.ConnectionEvent{
			RemoteAddr: conn.RemoteAddr().String(),
			OldState:   "CONNECTED",
			NewState:   "DISCONNECTED",
		},
	})
}

// serverConn is one client connection together with its connection-scoped
// monitor state.
type serverConn struct {
	id     string
	server *Server
	conn   net.Conn
	framer *Framer
	logger log.Logger

	monitors *monitor.Manager

	// attachMu guards the underlying channel attachments. One channel
	// monitor feeds all of the connection's monitors on that channel.
	attachMu  sync.Mutex
	attached  map[string]*channelAttachment
	byMonitor map[uint32]string

	closeOnce sync.Once
	done      chan struct{}
}

// channelAttachment is a refcounted channel monitor feeding the
// connection's monitor manager.
type channelAttachment struct {
	ch    pv.PV
	monID int
	refs  int
}

func newServerConn(s *Server, conn net.Conn) *serverConn {
	sc := &serverConn{
		id:        uuid.New().String(),
		server:    s,
		conn:      conn,
		framer:    NewFramerWithMaxSize(conn, s.config.MaxMessageSize),
		logger:    s.logger,
		monitors:  monitor.NewManagerWithConfig(s.config.Monitors),
		attached:  make(map[string]*channelAttachment),
		byMonitor: make(map[uint32]string),
		done:      make(chan struct{}),
	}
	sc.monitors.OnUpdate(sc.sendUpdate)
	return sc
}

func (sc *serverConn) run(ctx context.Context) {
	var wg sync.WaitGroup
	wg.Add(1)
	go func() {
		defer wg.Done()
		sc.pumpLoop(ctx)
	}()

	sc.readLoop()

	sc.close()
	wg.Wait()
}

func (sc *serverConn) close() {
	sc.closeOnce.Do(func() {
		close(sc.done)
		sc.conn.Close()
		sc.releaseAll()
	})
}

// pumpLoop periodically dispatches pending monitor updates.
func (sc *serverConn) pumpLoop(ctx context.Context) {
	ticker := time.NewTicker(sc.server.config.PumpInterval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return
		case <-sc.done:
			return
		case <-ticker.C:
			sc.monitors.ProcessNotifications()
		}
	}
}

func (sc *serverConn) readLoop() {
	for {
		data, err := sc.framer.ReadFrame()
		if err != nil {
			return
		}
		sc.handleFrame(data)
	}
}

func (sc *serverConn) handleFrame(data []byte) {
	req, err := wire.DecodeRequest(data)
	if err != nil {
		// No message ID to correlate a reply with; the client's
		// request will time out.
		sc.logError(err, "decode request")
		return
	}

	sc.logger.Log(log.Event{
		Timestamp: time.Now(),
		PV:        req.PV,
		Category:  log.CategoryWire,
		Wire: &log.WireEvent{
			ConnectionID: sc.id,
			Direction:    log.DirectionIn,
			MessageID:    req.MessageID,
			Operation:    &req.Operation,
			FrameSize:    FrameSize(len(data)),
		},
	})

	sc.sendResponse(sc.dispatch(req))
}

func (sc *serverConn) dispatch(req *wire.Request) *wire.Response {
	switch req.Operation {
	case wire.OpGet:
		return sc.handleGet(req)
	case wire.OpPut:
		return sc.handlePut(req)
	case wire.OpInfo:
		return sc.handleInfo(req)
	case wire.OpMonitor:
		return sc.handleMonitor(req)
	case wire.OpUnmonitor:
		return sc.handleUnmonitor(req)
	case wire.OpList:
		return sc.handleList(req)
	case wire.OpHello:
		return sc.handleHello(req)
	default:
		return errorResponse(req.MessageID, wire.StatusBadRequest,
			fmt.Sprintf("unsupported operation %d", req.Operation))
	}
}

func (sc *serverConn) handleGet(req *wire.Request) *wire.Response {
	ch, errResp := sc.lookup(req)
	if errResp != nil {
		return errResp
	}

	value, err := ch.Get()
	if err != nil {
		return errorResponse(req.MessageID, statusFor(err), err.Error())
	}

	return &wire.Response{
		MessageID: req.MessageID,
		Status:    wire.StatusSuccess,
		Payload: &wire.GetResponsePayload{
			Value:     value,
			Timestamp: stampFor(ch).UnixNano(),
		},
	}
}

func (sc *serverConn) handlePut(req *wire.Request) *wire.Response {
	ch, errResp := sc.lookup(req)
	if errResp != nil {
		return errResp
	}

	value, ok := wire.ExtractPutValue(req.Payload)
	if !ok {
		return errorResponse(req.MessageID, wire.StatusBadRequest, "put payload missing value")
	}

	if err := ch.Put(value); err != nil {
		return errorResponse(req.MessageID, statusFor(err), err.Error())
	}

	return &wire.Response{MessageID: req.MessageID, Status: wire.StatusSuccess}
}

func (sc *serverConn) handleInfo(req *wire.Request) *wire.Response {
	ch, errResp := sc.lookup(req)
	if errResp != nil {
		return errResp
	}

	units, err := ch.Units()
	if err != nil {
		return errorResponse(req.MessageID, statusFor(err), err.Error())
	}
	limits, hasLimits, err := ch.ControlLimits()
	if err != nil {
		return errorResponse(req.MessageID, statusFor(err), err.Error())
	}

	payload := &wire.InfoResponsePayload{Units: units, HasLimits: hasLimits}
	if hasLimits {
		payload.LimitLow = limits.Low
		payload.LimitHigh = limits.High
	}

	return &wire.Response{
		MessageID: req.MessageID,
		Status:    wire.StatusSuccess,
		Payload:   payload,
	}
}

func (sc *serverConn) handleMonitor(req *wire.Request) *wire.Response {
	ch, errResp := sc.lookup(req)
	if errResp != nil {
		return errResp
	}

	current, err := ch.Get()
	if err != nil {
		return errorResponse(req.MessageID, statusFor(err), err.Error())
	}

	mp := wire.ExtractMonitorPayload(req.Payload)
	minInterval := time.Duration(mp.MinInterval) * time.Millisecond
	maxInterval := time.Duration(mp.MaxInterval) * time.Millisecond

	id, err := sc.monitors.Add(req.PV, minInterval, maxInterval, current)
	if err != nil {
		return errorResponse(req.MessageID, statusFor(err), err.Error())
	}

	if err := sc.retain(ch); err != nil {
		_ = sc.monitors.Remove(id)
		return errorResponse(req.MessageID, statusFor(err), err.Error())
	}

	sc.attachMu.Lock()
	sc.byMonitor[id] = req.PV
	sc.attachMu.Unlock()

	return &wire.Response{
		MessageID: req.MessageID,
		Status:    wire.StatusSuccess,
		Payload:   &wire.MonitorResponsePayload{MonitorID: id, Current: current},
	}
}

func (sc *serverConn) handleUnmonitor(req *wire.Request) *wire.Response {
	id, ok := wire.ExtractMonitorID(req.Payload)
	if !ok {
		return errorResponse(req.MessageID, wire.StatusBadRequest, "unmonitor payload missing monitor id")
	}

	if err := sc.monitors.Remove(id); err != nil {
		return errorResponse(req.MessageID, wire.StatusNotFound, err.Error())
	}

	sc.attachMu.Lock()
	name, tracked := sc.byMonitor[id]
	delete(sc.byMonitor, id)
	sc.attachMu.Unlock()
	if tracked {
		sc.release(name)
	}

	return &wire.Response{MessageID: req.MessageID, Status: wire.StatusSuccess}
}

func (sc *serverConn) handleList(req *wire.Request) *wire.Response {
	return &wire.Response{
		MessageID: req.MessageID,
		Status:    wire.StatusSuccess,
		Payload:   &wire.ListResponsePayload{PVs: sc.server.config.Registry.Names()},
	}
}

func (sc *serverConn) handleHello(req *wire.Request) *wire.Response {
	announced, ok := wire.ExtractHelloVersion(req.Payload)
	if !ok {
		return errorResponse(req.MessageID, wire.StatusBadRequest, "hello payload missing version")
	}
	theirs, err := version.Parse(announced)
	if err != nil {
		return errorResponse(req.MessageID, wire.StatusBadRequest, err.Error())
	}
	ours, _ := version.Parse(version.Current)
	if !ours.Compatible(theirs) {
		return errorResponse(req.MessageID, wire.StatusBadRequest,
			fmt.Sprintf("unsupported protocol version %s (serving %s)", announced, version.Current))
	}
	return &wire.Response{
		MessageID: req.MessageID,
		Status:    wire.StatusSuccess,
		Payload:   &wire.HelloPayload{Version: version.Current},
	}
}

func (sc *serverConn) lookup(req *wire.Request) (pv.PV, *wire.Response) {
	ch, ok := sc.server.config.Registry.Lookup(req.PV)
	if !ok {
		return nil, errorResponse(req.MessageID, wire.StatusNotFound,
			fmt.Sprintf("no such pv: %s", req.PV))
	}
	return ch, nil
}

// retain attaches a channel monitor feeding the manager, or bumps the
// refcount when one is already attached.
func (sc *serverConn) retain(ch pv.PV) error {
	sc.attachMu.Lock()
	defer sc.attachMu.Unlock()

	name := ch.Name()
	if att, ok := sc.attached[name]; ok {
		att.refs++
		return nil
	}

	monID, err := ch.Monitor(func(ev pv.Event) {
		sc.monitors.NotifyChange(ev.PV, ev.Value, ev.Timestamp)
	}, false)
	if err != nil {
		return err
	}

	sc.attached[name] = &channelAttachment{ch: ch, monID: monID, refs: 1}
	return nil
}

// release drops one reference to a channel attachment, detaching the
// channel monitor when the last reference goes.
func (sc *serverConn) release(name string) {
	sc.attachMu.Lock()
	defer sc.attachMu.Unlock()

	att, ok := sc.attached[name]
	if !ok {
		return
	}
	att.refs--
	if att.refs > 0 {
		return
	}

	_ = att.ch.Unmonitor(att.monID)
	delete(sc.attached, name)
}

func (sc *serverConn) releaseAll() {
	sc.attachMu.Lock()
	defer sc.attachMu.Unlock()

	for _, att := range sc.attached {
		_ = att.ch.Unmonitor(att.monID)
	}
	sc.attached = make(map[string]*channelAttachment)
	sc.byMonitor = make(map[uint32]string)
	sc.monitors.RemoveAll()
}

func (sc *serverConn) sendResponse(resp *wire.Response) {
	data, err := wire.EncodeResponse(resp)
	if err != nil {
		sc.logError(err, "encode response")
		return
	}

	sc.logger.Log(log.Event{
		Timestamp: time.Now(),
		Category:  log.CategoryWire,
		Wire: &log.WireEvent{
			ConnectionID: sc.id,
			Direction:    log.DirectionOut,
			MessageID:    resp.MessageID,
			Status:       &resp.Status,
			FrameSize:    FrameSize(len(data)),
		},
	})

	if err := sc.framer.WriteFrame(data); err != nil {
		sc.logError(err, "write response")
	}
}

// sendUpdate pushes a monitor update to the client. Runs on the pump
// goroutine.
func (sc *serverConn) sendUpdate(upd monitor.Update) {
	data, err := wire.EncodeUpdate(&wire.Update{
		MonitorID: upd.MonitorID,
		PV:        upd.PV,
		Value:     upd.Value,
		Timestamp: upd.Timestamp.UnixNano(),
	})
	if err != nil {
		sc.logError(err, "encode update")
		return
	}

	sc.logger.Log(log.Event{
		Timestamp: time.Now(),
		PV:        upd.PV,
		Category:  log.CategoryWire,
		Wire: &log.WireEvent{
			ConnectionID: sc.id,
			Direction:    log.DirectionOut,
			FrameSize:    FrameSize(len(data)),
		},
	})

	if err := sc.framer.WriteFrame(data); err != nil {
		sc.logError(err, "write update")
	}
}

func (sc *serverConn) logError(err error, context string) {
	sc.logger.Log(log.Event{
		Timestamp: time.Now(),
		Category:  log.CategoryError,
		Error: &log.ErrorEventData{
			Message: err.Error(),
			Context: fmt.Sprintf("connection %s: %s", sc.id, context),
		},
	})
}

func errorResponse(id uint32, status wire.Status, message string) *wire.Response {
	return &wire.Response{
		MessageID: id,
		Status:    status,
		Payload:   &wire.ErrorPayload{Message: message},
	}
}

// statusFor maps channel errors onto wire statuses.
func statusFor(err error) wire.Status {
	switch {
	case errors.Is(err, pv.ErrNotConnected):
		return wire.StatusDisconnected
	case errors.Is(err, pv.ErrReadOnly):
		return wire.StatusReadOnly
	case errors.Is(err, pv.ErrNotFound):
		return wire.StatusNotFound
	default:
		return wire.StatusInternal
	}
}

// stampFor returns the channel's value timestamp when it exposes one,
// the server clock otherwise.
func stampFor(ch pv.PV) time.Time {
	if ts, ok := ch.(interface{ Timestamp() time.Time }); ok {
		return ts.Timestamp()
	}
	return time.Now()
}
