package desk

import (
	"context"
	"sync"
	"sync/atomic"
	"time"

	"github.com/sirupsen/logrus"
	orderedmap "github.com/wk8/go-ordered-map/v2"

	"github.com/srg/deskctl/internal/linak"
)

// Options configures a Driver. Zero fields take the documented defaults.
type Options struct {
	// Address of the already-paired desk.
	Address string
	// ConnectTimeout bounds each connect attempt. Default 30s.
	ConnectTimeout time.Duration
	// Backoff drives the reconnect schedule. Default 1s initial, 30s max.
	Backoff Backoff
	// Controller tunes the move state machine.
	Controller ControllerConfig
	// Clock overrides the time source; tests inject a deterministic clock
	// here. Nil means time.Now.
	Clock func() time.Time
	// Logger receives the driver's structured log output. Nil means a
	// default logrus logger.
	Logger *logrus.Logger
}

func (o Options) withDefaults() Options {
	if o.ConnectTimeout <= 0 {
		o.ConnectTimeout = 30 * time.Second
	}
	if o.Backoff.Initial <= 0 {
		o.Backoff.Initial = time.Second
	}
	if o.Backoff.Max <= 0 {
		o.Backoff.Max = 30 * time.Second
	}
	c := &o.Controller
	if c.ToleranceMM <= 0 {
		c.ToleranceMM = 2
	}
	if c.NoiseMM <= 0 {
		c.NoiseMM = 0.5
	}
	if c.StallTimeout <= 0 {
		c.StallTimeout = 5 * time.Second
	}
	if c.ZeroSpeedDebounce <= 0 {
		c.ZeroSpeedDebounce = 300 * time.Millisecond
	}
	if c.KeepaliveInterval <= 0 {
		c.KeepaliveInterval = 500 * time.Millisecond
	}
	if c.FlipWindow <= 0 {
		c.FlipWindow = 2 * time.Second
	}
	if o.Clock == nil {
		o.Clock = time.Now
	}
	if o.Logger == nil {
		o.Logger = logrus.New()
	}
	return o
}

// Driver is the single entry point for controlling one desk: connection
// lifecycle, state queries, move commands and event subscriptions. All
// methods are safe for concurrent use.
type Driver struct {
	logger     *logrus.Logger
	clock      func() time.Time
	session    *Session
	stream     *Stream
	controller *Controller

	subMu   sync.Mutex
	subs    *orderedmap.OrderedMap[uint64, func(Event)]
	nextSub uint64

	closed atomic.Bool
}

// NewDriver assembles a driver on top of the given transport. The returned
// driver is disconnected; call Connect to establish the link.
func NewDriver(transport Transport, opts Options) *Driver {
	opts = opts.withDefaults()

	d := &Driver{
		logger: opts.Logger,
		clock:  opts.Clock,
		subs:   orderedmap.New[uint64, func(Event)](),
	}

	d.stream = NewStream(opts.Logger, opts.Clock)
	d.session = NewSession(transport, SessionConfig{
		Address:        opts.Address,
		ConnectTimeout: opts.ConnectTimeout,
		Backoff:        opts.Backoff,
	}, opts.Logger)
	d.session.OnFrame = d.stream.HandleFrame
	d.session.OnConnected = d.stream.HandleConnected
	d.session.OnDisconnected = d.stream.HandleDisconnected

	// The controller registers its sink first so it reacts to a sample
	// before external subscribers observe it.
	d.controller = NewController(d.session, d.stream, opts.Controller, opts.Logger, opts.Clock)
	d.stream.AddSink(d.fanout)
	d.controller.Start()
	return d
}

// Connect establishes the link to the desk. Already connected is a no-op.
func (d *Driver) Connect(ctx context.Context) error {
	if d.closed.Load() {
		return ErrClosed
	}
	return d.session.Connect(ctx)
}

// Connected reports whether the link is currently live.
func (d *Driver) Connected() bool {
	return d.session.Connected()
}

// MoveUp starts a relative upward move that continues until stopped or the
// desk reaches its travel limit.
func (d *Driver) MoveUp() error {
	return d.submit(moveRequest{kind: reqUp})
}

// MoveDown starts a relative downward move.
func (d *Driver) MoveDown() error {
	return d.submit(moveRequest{kind: reqDown})
}

// Stop halts any active move. Idempotent: stopping an idle desk does
// nothing and writes no command.
func (d *Driver) Stop() error {
	return d.submit(moveRequest{kind: reqStop})
}

// MoveTo starts a move to the absolute height in millimetres. A target
// outside the physical range is rejected synchronously with *linak.RangeError
// before any command is issued; an active move is preempted.
func (d *Driver) MoveTo(heightMM float64) error {
	if d.closed.Load() {
		return ErrClosed
	}
	if _, err := linak.EncodeTarget(heightMM); err != nil {
		return err
	}
	return d.submit(moveRequest{kind: reqTarget, targetMM: heightMM})
}

// CurrentState returns the latest cached state snapshot without touching
// the device.
func (d *Driver) CurrentState() State {
	return d.stream.CurrentState()
}

// MoveState returns the controller's current position in the move state
// machine.
func (d *Driver) MoveState() MoveState {
	return d.controller.State()
}

// Refresh reads the height characteristic directly and feeds the result
// through the normal decode path, updating the cached state.
func (d *Driver) Refresh() error {
	if d.closed.Load() {
		return ErrClosed
	}
	frame, err := d.session.Read(linak.HeightCharUUID)
	if err != nil {
		return err
	}
	d.stream.HandleFrame(frame)
	return nil
}

// Subscribe registers a callback for state-change events. Callbacks are
// invoked synchronously in registration order and must not block. The
// returned function removes the subscription; calling it more than once is
// harmless.
func (d *Driver) Subscribe(fn func(Event)) func() {
	d.subMu.Lock()
	id := d.nextSub
	d.nextSub++
	d.subs.Set(id, fn)
	d.subMu.Unlock()

	return func() {
		d.subMu.Lock()
		d.subs.Delete(id)
		d.subMu.Unlock()
	}
}

// Close stops the controller (issuing a final stop if a move is active) and
// tears the session down. Idempotent.
func (d *Driver) Close() error {
	if !d.closed.CompareAndSwap(false, true) {
		return nil
	}
	d.controller.Close()
	return d.session.Close()
}

func (d *Driver) submit(req moveRequest) error {
	if d.closed.Load() {
		return ErrClosed
	}
	req.issuedAt = d.clock()
	d.controller.Submit(req)
	return nil
}

func (d *Driver) fanout(ev Event) {
	d.subMu.Lock()
	fns := make([]func(Event), 0, d.subs.Len())
	for pair := d.subs.Oldest(); pair != nil; pair = pair.Next() {
		fns = append(fns, pair.Value)
	}
	d.subMu.Unlock()

	for _, fn := range fns {
		fn(ev)
	}
}
