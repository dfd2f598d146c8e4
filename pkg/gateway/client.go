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
	"github.com/photon-controls/slits-go/pkg/pv"
	"github.com/photon-controls/slits-go/pkg/version"
	"github.com/photon-controls/slits-go/pkg/wire"
)

// Client errors.
var (
	// ErrClientClosed indicates an operation on a closed client.
	ErrClientClosed = errors.New("gateway client closed")

	// ErrRequestTimeout indicates a request got no response in time.
	ErrRequestTimeout = errors.New("gateway request timed out")
)

const (
	// DefaultConnectTimeout bounds the TCP dial.
	DefaultConnectTimeout = 10 * time.Second

	// DefaultRequestTimeout bounds each request awaiting its response.
	DefaultRequestTimeout = 5 * time.Second

	// updateQueueSize is the dispatch queue depth between the read loop
	// and the update dispatcher.
	updateQueueSize = 256
)

// ClientConfig holds the gateway client configuration.
type ClientConfig struct {
	// Address of the gateway server (host:port). Required.
	Address string

	// ConnectTimeout bounds the TCP dial (default: DefaultConnectTimeout).
	ConnectTimeout time.Duration

	// RequestTimeout bounds each request awaiting its response
	// (default: DefaultRequestTimeout).
	RequestTimeout time.Duration

	// MaxMessageSize caps frame payloads in bytes (default:
	// DefaultMaxMessageSize).
	MaxMessageSize uint32

	// Logger receives wire, connection and error events.
	Logger log.Logger
}

// clientMonitor is the client-side record of a server monitor.
type clientMonitor struct {
	pv string
	fn pv.EventFunc
}

// Client is a connection to a gateway server. It satisfies pv.Connector,
// so device constructors take a Client exactly as they take a Registry.
//
// Monitor callbacks run on a dedicated dispatch goroutine, never on the
// read loop: a callback is free to issue requests (including Unmonitor)
// without stalling response handling.
type Client struct {
	config ClientConfig
	logger log.Logger
	conn   net.Conn
	framer *Framer
	id     string

	pendingMu sync.Mutex
	pending   map[uint32]chan *wire.Response
	nextID    atomic.Uint32

	monitorsMu sync.Mutex
	monitors   map[uint32]*clientMonitor

	updates chan *wire.Update

	closed    atomic.Bool
	closeOnce sync.Once
	closeErr  error
	done      chan struct{}
	wg        sync.WaitGroup

	// serverVersion is written once during Dial's hello exchange.
	serverVersion string
}

// Dial connects to a gateway server.
func Dial(config ClientConfig) (*Client, error) {
	if config.Address == "" {
		return nil, fmt.Errorf("address is required")
	}
	if config.ConnectTimeout <= 0 {
		config.ConnectTimeout = DefaultConnectTimeout
	}
	if config.RequestTimeout <= 0 {
		config.RequestTimeout = DefaultRequestTimeout
	}
	if config.MaxMessageSize == 0 {
		config.MaxMessageSize = DefaultMaxMessageSize
	}

	conn, err := net.DialTimeout("tcp", config.Address, config.ConnectTimeout)
	if err != nil {
		return nil, fmt.Errorf("dial %s: %w", config.Address, err)
	}

	c := &Client{
		config:   config,
		logger:   log.OrNoop(config.Logger),
		conn:     conn,
		framer:   NewFramerWithMaxSize(conn, config.MaxMessageSize),
		id:       uuid.New().String(),
		pending:  make(map[uint32]chan *wire.Response),
		monitors: make(map[uint32]*clientMonitor),
		updates:  make(chan *wire.Update, updateQueueSize),
		done:     make(chan struct{}),
	}

	c.logger.Log(log.Event{
		Timestamp: time.Now(),
		Category:  log.CategoryConnection,
		Connection: &log.ConnectionEvent{
			RemoteAddr: conn.RemoteAddr().String(),
			NewState:   "CONNECTED",
		},
	})

	c.wg.Add(2)
	go c.readLoop()
	go c.dispatchLoop()

	if err := c.hello(); err != nil {
		c.shutdown(err)
		c.wg.Wait()
		return nil, err
	}
	return c, nil
}

// hello announces this client's protocol version and verifies the
// server speaks a compatible one.
func (c *Client) hello() error {
	resp, err := c.Call(context.Background(), &wire.Request{
		Operation: wire.OpHello,
		Payload:   &wire.HelloPayload{Version: version.Current},
	})
	if err != nil {
		return fmt.Errorf("hello: %w", err)
	}
	if resp.Status.IsError() {
		return fmt.Errorf("hello: gateway refused: %s", wire.ExtractErrorMessage(resp.Payload))
	}

	announced, ok := wire.ExtractHelloVersion(resp.Payload)
	if !ok {
		return fmt.Errorf("hello: malformed response payload")
	}
	theirs, err := version.Parse(announced)
	if err != nil {
		return fmt.Errorf("hello: %w", err)
	}
	ours, _ := version.Parse(version.Current)
	if !ours.Compatible(theirs) {
		return fmt.Errorf("hello: incompatible gateway protocol %s (speaking %s)",
			announced, version.Current)
	}
	c.serverVersion = announced
	return nil
}

// ServerVersion returns the protocol version the gateway announced
// during the connection hello.
func (c *Client) ServerVersion() string {
	return c.serverVersion
}

// Close shuts the connection down and waits for the client goroutines
// to finish. Safe to call more than once.
func (c *Client) Close() error {
	c.shutdown(nil)
	c.wg.Wait()
	return nil
}

// Connected reports whether the connection is up.
func (c *Client) Connected() bool {
	return !c.closed.Load()
}

// Done returns a channel that is closed when the connection shuts down,
// whether by Close or by a transport failure.
func (c *Client) Done() <-chan struct{} {
	return c.done
}

// Err returns the error that shut the connection down, or nil for a
// clean Close. Meaningful only after Done is closed.
func (c *Client) Err() error {
	if !c.closed.Load() {
		return nil
	}
	return c.closeErr
}

func (c *Client) shutdown(reason error) {
	c.closeOnce.Do(func() {
		c.closeErr = reason
		c.closed.Store(true)
		close(c.done)
		c.conn.Close()

		why := "closed"
		if reason != nil {
			why = reason.Error()
		}
		c.logger.Log(log.Event{
			Timestamp: time.Now(),
			Category:  log.CategoryConnection,
			Connection: &log.ConnectionEvent{
				RemoteAddr: c.conn.RemoteAddr().String(),
				OldState:   "CONNECTED",
				NewState:   "DISCONNECTED",
				Reason:     why,
			},
		})
	})
}

func (c *Client) closedErr() error {
	if c.closeErr != nil {
		return fmt.Errorf("%w: %v", ErrClientClosed, c.closeErr)
	}
	return ErrClientClosed
}

// Call sends a request and waits for its response. The message ID is
// assigned here; any ID already on the request is overwritten.
func (c *Client) Call(ctx context.Context, req *wire.Request) (*wire.Response, error) {
	if c.closed.Load() {
		return nil, c.closedErr()
	}
	if ctx == nil {
		ctx = context.Background()
	}

	req.MessageID = c.nextID.Add(1)
	respCh := make(chan *wire.Response, 1)

	c.pendingMu.Lock()
	c.pending[req.MessageID] = respCh
	c.pendingMu.Unlock()
	defer func() {
		c.pendingMu.Lock()
		delete(c.pending, req.MessageID)
		c.pendingMu.Unlock()
	}()

	data, err := wire.EncodeRequest(req)
	if err != nil {
		return nil, fmt.Errorf("encode request: %w", err)
	}

	c.logWire(log.DirectionOut, req.MessageID, &req.Operation, nil, len(data), req.PV)

	if err := c.framer.WriteFrame(data); err != nil {
		return nil, fmt.Errorf("send request: %w", err)
	}

	timer := time.NewTimer(c.config.RequestTimeout)
	defer timer.Stop()

	select {
	case resp := <-respCh:
		return resp, nil
	case <-timer.C:
		return nil, fmt.Errorf("%w: %s %s", ErrRequestTimeout, req.Operation, req.PV)
	case <-ctx.Done():
		return nil, ctx.Err()
	case <-c.done:
		return nil, c.closedErr()
	}
}

// Get reads a channel's current value and its timestamp.
func (c *Client) Get(ctx context.Context, pvName string) (float64, time.Time, error) {
	resp, err := c.Call(ctx, &wire.Request{Operation: wire.OpGet, PV: pvName})
	if err != nil {
		return 0, time.Time{}, err
	}
	if resp.Status.IsError() {
		return 0, time.Time{}, responseError(pvName, resp)
	}

	payload, ok := wire.ExtractGetResponse(resp.Payload)
	if !ok {
		return 0, time.Time{}, fmt.Errorf("get %s: malformed response payload", pvName)
	}

	var stamp time.Time
	if payload.Timestamp != 0 {
		stamp = time.Unix(0, payload.Timestamp)
	}
	return payload.Value, stamp, nil
}

// Put writes a value to a channel. The write is acknowledged when the
// gateway has accepted it; any resulting motion completes asynchronously.
func (c *Client) Put(ctx context.Context, pvName string, value float64) error {
	resp, err := c.Call(ctx, &wire.Request{
		Operation: wire.OpPut,
		PV:        pvName,
		Payload:   &wire.PutPayload{Value: value},
	})
	if err != nil {
		return err
	}
	if resp.Status.IsError() {
		return responseError(pvName, resp)
	}
	return nil
}

// Info reads a channel's metadata.
func (c *Client) Info(ctx context.Context, pvName string) (wire.InfoResponsePayload, error) {
	resp, err := c.Call(ctx, &wire.Request{Operation: wire.OpInfo, PV: pvName})
	if err != nil {
		return wire.InfoResponsePayload{}, err
	}
	if resp.Status.IsError() {
		return wire.InfoResponsePayload{}, responseError(pvName, resp)
	}

	payload, ok := wire.ExtractInfoResponse(resp.Payload)
	if !ok {
		return wire.InfoResponsePayload{}, fmt.Errorf("info %s: malformed response payload", pvName)
	}
	return payload, nil
}

// Monitor registers a server-side monitor and returns its ID together
// with the value current at registration time. Zero intervals select the
// server defaults.
func (c *Client) Monitor(ctx context.Context, pvName string, fn pv.EventFunc, minInterval, maxInterval time.Duration) (uint32, float64, error) {
	resp, err := c.Call(ctx, &wire.Request{
		Operation: wire.OpMonitor,
		PV:        pvName,
		Payload: &wire.MonitorPayload{
			MinInterval: uint32(minInterval / time.Millisecond),
			MaxInterval: uint32(maxInterval / time.Millisecond),
		},
	})
	if err != nil {
		return 0, 0, err
	}
	if resp.Status.IsError() {
		return 0, 0, responseError(pvName, resp)
	}

	payload, ok := wire.ExtractMonitorResponse(resp.Payload)
	if !ok {
		return 0, 0, fmt.Errorf("monitor %s: malformed response payload", pvName)
	}

	c.monitorsMu.Lock()
	c.monitors[payload.MonitorID] = &clientMonitor{pv: pvName, fn: fn}
	c.monitorsMu.Unlock()

	return payload.MonitorID, payload.Current, nil
}

// Unmonitor cancels a server-side monitor.
func (c *Client) Unmonitor(ctx context.Context, monitorID uint32) error {
	c.monitorsMu.Lock()
	entry := c.monitors[monitorID]
	delete(c.monitors, monitorID)
	c.monitorsMu.Unlock()

	if entry == nil {
		return fmt.Errorf("%w: %d", pv.ErrUnknownMonitor, monitorID)
	}

	resp, err := c.Call(ctx, &wire.Request{
		Operation: wire.OpUnmonitor,
		PV:        entry.pv,
		Payload:   &wire.UnmonitorPayload{MonitorID: monitorID},
	})
	if err != nil {
		return err
	}
	if resp.Status.IsError() {
		return responseError(entry.pv, resp)
	}
	return nil
}

// ListPVs enumerates the channel names the gateway serves.
func (c *Client) ListPVs(ctx context.Context) ([]string, error) {
	resp, err := c.Call(ctx, &wire.Request{Operation: wire.OpList})
	if err != nil {
		return nil, err
	}
	if resp.Status.IsError() {
		return nil, responseError("", resp)
	}
	return wire.ExtractPVList(resp.Payload), nil
}

func (c *Client) readLoop() {
	defer c.wg.Done()

	for {
		data, err := c.framer.ReadFrame()
		if err != nil {
			c.shutdown(err)
			return
		}
		c.handleFrame(data)
	}
}

func (c *Client) handleFrame(data []byte) {
	msgType, err := wire.PeekMessageType(data)
	if err != nil {
		c.logError(err, "peek message")
		return
	}

	switch msgType {
	case wire.MessageTypeUpdate:
		upd, err := wire.DecodeUpdate(data)
		if err != nil {
			c.logError(err, "decode update")
			return
		}
		c.logWire(log.DirectionIn, 0, nil, nil, len(data), upd.PV)
		c.enqueueUpdate(upd)

	case wire.MessageTypeResponse:
		resp, err := wire.DecodeResponse(data)
		if err != nil {
			c.logError(err, "decode response")
			return
		}
		c.logWire(log.DirectionIn, resp.MessageID, nil, &resp.Status, len(data), "")

		c.pendingMu.Lock()
		respCh := c.pending[resp.MessageID]
		c.pendingMu.Unlock()
		if respCh != nil {
			respCh <- resp
		}

	default:
		c.logError(fmt.Errorf("unexpected message type %d", msgType), "read frame")
	}
}

// enqueueUpdate hands an update to the dispatcher without ever blocking
// the read loop. When the queue is full the oldest update is dropped:
// monitors promise the latest value, not every value.
func (c *Client) enqueueUpdate(upd *wire.Update) {
	select {
	case c.updates <- upd:
		return
	default:
	}

	select {
	case old := <-c.updates:
		c.logError(fmt.Errorf("update queue full, dropped %s", old.PV), "dispatch update")
	default:
	}
	select {
	case c.updates <- upd:
	default:
	}
}

func (c *Client) dispatchLoop() {
	defer c.wg.Done()

	for {
		select {
		case <-c.done:
			return
		case upd := <-c.updates:
			c.dispatchUpdate(upd)
		}
	}
}

func (c *Client) dispatchUpdate(upd *wire.Update) {
	c.monitorsMu.Lock()
	entry := c.monitors[upd.MonitorID]
	c.monitorsMu.Unlock()
	if entry == nil {
		// Cancelled while the update was in flight.
		return
	}

	stamp := time.Now()
	if upd.Timestamp != 0 {
		stamp = time.Unix(0, upd.Timestamp)
	}
	entry.fn(pv.Event{PV: upd.PV, Value: upd.Value, Timestamp: stamp})
}

func (c *Client) logWire(dir log.Direction, messageID uint32, op *wire.Operation, status *wire.Status, size int, pvName string) {
	c.logger.Log(log.Event{
		Timestamp: time.Now(),
		PV:        pvName,
		Category:  log.CategoryWire,
		Wire: &log.WireEvent{
			ConnectionID: c.id,
			Direction:    dir,
			MessageID:    messageID,
			Operation:    op,
			Status:       status,
			FrameSize:    FrameSize(size),
		},
	})
}

func (c *Client) logError(err error, context string) {
	c.logger.Log(log.Event{
		Timestamp: time.Now(),
		Category:  log.CategoryError,
		Error: &log.ErrorEventData{
			Message: err.Error(),
			Context: fmt.Sprintf("connection %s: %s", c.id, context),
		},
	})
}

// StatusError reports a gateway response status that does not map onto
// one of the channel error sentinels.
type StatusError struct {
	PV      string
	Status  wire.Status
	Message string
}

func (e *StatusError) Error() string {
	message := e.Message
	if message == "" {
		message = e.Status.String()
	}
	if e.PV == "" {
		return fmt.Sprintf("gateway %s: %s", e.Status, message)
	}
	return fmt.Sprintf("gateway %s: %s: %s", e.Status, e.PV, message)
}

// responseError converts an error response into a client error, mapping
// gateway statuses onto the channel error sentinels so errors.Is checks
// work identically for local and remote channels.
func responseError(pvName string, resp *wire.Response) error {
	switch resp.Status {
	case wire.StatusNotFound:
		return fmt.Errorf("%w: %s", pv.ErrNotFound, pvName)
	case wire.StatusDisconnected:
		return &pv.ConnectionError{PV: pvName, Err: pv.ErrNotConnected}
	case wire.StatusReadOnly:
		return fmt.Errorf("%w: %s", pv.ErrReadOnly, pvName)
	default:
		return &StatusError{
			PV:      pvName,
			Status:  resp.Status,
			Message: wire.ExtractErrorMessage(resp.Payload),
		}
	}
}
