package desk

import (
	"math"
	"sync"
	"time"

	"github.com/sirupsen/logrus"

	"github.com/srg/deskctl/internal/linak"
	"github.com/srg/deskctl/internal/ringchan"
)

// MoveState is the controller's position in its move state machine.
type MoveState int

const (
	// Idle: no move in progress. The controller's terminal state on
	// teardown and the only state that accepts a new move directly.
	Idle MoveState = iota
	// MovingUp / MovingDown: a relative move is being held.
	MovingUp
	MovingDown
	// Seeking: a move-to-target is converging on a height.
	Seeking
	// Stopping: a stop has been issued and the controller is settling.
	Stopping
)

func (s MoveState) String() string {
	switch s {
	case Idle:
		return "idle"
	case MovingUp:
		return "moving_up"
	case MovingDown:
		return "moving_down"
	case Seeking:
		return "seeking"
	case Stopping:
		return "stopping"
	default:
		return "unknown"
	}
}

// ControllerConfig tunes the move state machine. Zero fields are filled with
// defaults by the driver.
type ControllerConfig struct {
	// ToleranceMM is the acceptable deviation from a target height before
	// it counts as reached.
	ToleranceMM float64
	// NoiseMM is the height-change threshold below which a sample does not
	// count as movement progress.
	NoiseMM float64
	// StallTimeout aborts a move when no progress beyond NoiseMM is
	// observed for this long.
	StallTimeout time.Duration
	// ZeroSpeedDebounce settles a relative move to idle after the device
	// reports zero speed for this long (hard limit reached).
	ZeroSpeedDebounce time.Duration
	// KeepaliveInterval re-issues the active direction command; the
	// controller firmware halts movement when commands stop arriving.
	KeepaliveInterval time.Duration
	// FlipWindow: two direction flips within this window mean overshoot
	// oscillation; the tolerance is widened once to stop the flapping.
	FlipWindow time.Duration
}

type moveKind int

const (
	reqStop moveKind = iota
	reqUp
	reqDown
	reqTarget
)

func (k moveKind) String() string {
	switch k {
	case reqStop:
		return "stop"
	case reqUp:
		return "up"
	case reqDown:
		return "down"
	case reqTarget:
		return "move_to"
	default:
		return "unknown"
	}
}

type moveRequest struct {
	kind     moveKind
	targetMM float64
	issuedAt time.Time
}

type direction int

const (
	dirNone direction = 0
	dirUp   direction = 1
	dirDown direction = -1
)

// Controller is the move-to-target state machine. It consumes the stream's
// event sequence and issues raw move commands through the session, deciding
// when a target is reached, when a move has stalled, and when a stop is
// required.
//
// A single goroutine owns all transitions, so command writes are naturally
// serialized: a new command is never issued while a prior write is pending.
// At most one move is active at a time; a new request preempts the current
// one by forcing a stop first.
type Controller struct {
	session *Session
	stream  *Stream
	cfg     ControllerConfig
	logger  *logrus.Logger
	now     func() time.Time

	events   *ringchan.RingChannel[Event]
	requests chan moveRequest
	done     chan struct{}
	stopped  chan struct{}
	stopOnce sync.Once

	stateMu sync.RWMutex
	state   MoveState

	// Move bookkeeping below is owned by the run goroutine.
	targetMM       float64
	tolMM          float64
	widened        bool
	lastDir        direction
	flipAt         time.Time
	lastCommandAt  time.Time
	progressHeight float64
	progressAt     time.Time
	zeroSince      time.Time
}

// NewController wires a controller to the stream's event sequence. Start
// must be called before submitting requests.
func NewController(session *Session, stream *Stream, cfg ControllerConfig, logger *logrus.Logger, clock func() time.Time) *Controller {
	if logger == nil {
		logger = logrus.New()
	}
	if clock == nil {
		clock = time.Now
	}
	c := &Controller{
		session:  session,
		stream:   stream,
		cfg:      cfg,
		logger:   logger,
		now:      clock,
		events:   ringchan.New[Event](64),
		requests: make(chan moveRequest, 1),
		done:     make(chan struct{}),
		stopped:  make(chan struct{}),
		state:    Idle,
	}
	stream.AddSink(c.events.Send)
	return c
}

// Start launches the controller's event loop.
func (c *Controller) Start() {
	go c.run()
}

// Close stops the event loop, issuing a final stop if a move is active.
// The controller ends in Idle.
func (c *Controller) Close() {
	c.stopOnce.Do(func() { close(c.done) })
	<-c.stopped
}

// State returns the current move state.
func (c *Controller) State() MoveState {
	c.stateMu.RLock()
	defer c.stateMu.RUnlock()
	return c.state
}

// Submit enqueues a move request, preempting any request that has not been
// picked up yet. The request preempting an in-flight move happens inside the
// event loop.
func (c *Controller) Submit(req moveRequest) {
	select {
	case <-c.requests:
	default:
	}
	select {
	case c.requests <- req:
	case <-c.done:
	}
}

func (c *Controller) run() {
	defer close(c.stopped)

	ticker := time.NewTicker(c.cfg.KeepaliveInterval)
	defer ticker.Stop()

	for {
		select {
		case <-c.done:
			if c.State() != Idle {
				c.writeStop()
				c.settle("teardown")
			}
			return
		case req := <-c.requests:
			c.handleRequest(req)
		case ev := <-c.events.C():
			c.handleEvent(ev)
		case <-ticker.C:
			c.handleTick()
		}
	}
}

func (c *Controller) setState(s MoveState) {
	c.stateMu.Lock()
	prev := c.state
	c.state = s
	c.stateMu.Unlock()

	if prev != s {
		c.logger.WithFields(logrus.Fields{
			"from": prev.String(),
			"to":   s.String(),
		}).Debug("Move state transition")
	}
}

func (c *Controller) handleRequest(req moveRequest) {
	c.logger.WithFields(logrus.Fields{
		"request": req.kind.String(),
		"state":   c.State().String(),
	}).Debug("Handling move request")

	switch req.kind {
	case reqStop:
		if c.State() == Idle {
			// Idempotent: no command is written.
			c.logger.Debug("Stop requested while idle, nothing to do")
			return
		}
		c.setState(Stopping)
		c.writeStop()
		c.settle("stop requested")

	case reqUp, reqDown:
		c.preempt()
		c.beginRelative(req.kind)

	case reqTarget:
		c.preempt()
		c.beginSeek(req.targetMM)
	}
}

// preempt cancels an in-flight move so a new request can start from Idle.
// The cancellation is satisfied once the stop write completes (the write is
// acknowledged) or the connection drops.
func (c *Controller) preempt() {
	if c.State() == Idle {
		return
	}
	c.logger.Info("Preempting active move")
	c.setState(Stopping)
	c.writeStop()
	c.settle("preempted")
}

func (c *Controller) beginRelative(kind moveKind) {
	cmd := linak.CommandUp
	next := MovingUp
	if kind == reqDown {
		cmd = linak.CommandDown
		next = MovingDown
	}

	if err := c.session.Write(linak.CommandCharUUID, cmd); err != nil {
		c.logger.WithError(err).Warn("Move command rejected, staying idle")
		return
	}

	t := c.now()
	st := c.stream.CurrentState()
	c.lastCommandAt = t
	c.progressHeight = st.HeightMM
	c.progressAt = t
	c.zeroSince = time.Time{}
	c.setState(next)
}

func (c *Controller) beginSeek(targetMM float64) {
	st := c.stream.CurrentState()
	t := c.now()

	c.targetMM = targetMM
	c.tolMM = c.cfg.ToleranceMM
	c.widened = false
	c.lastDir = dirNone
	c.flipAt = time.Time{}
	c.zeroSince = time.Time{}
	c.progressHeight = st.HeightMM
	c.progressAt = t
	c.setState(Seeking)

	c.logger.WithFields(logrus.Fields{
		"target_mm": targetMM,
		"height_mm": st.HeightMM,
	}).Info("Seeking target height")

	if st.Connected {
		c.evaluateSeek(st.HeightMM, t)
	}
}

func (c *Controller) handleEvent(ev Event) {
	switch ev.Kind {
	case EventDisconnected:
		if c.State() != Idle {
			// No auto-resume: the move is abandoned, reconnect brings the
			// controller back in Idle.
			c.logger.Warn("Link lost during move, aborting")
			c.settle("link lost")
		}
	case EventState:
		switch c.State() {
		case MovingUp, MovingDown:
			c.evaluateRelative(ev.State)
		case Seeking:
			c.evaluateSeek(ev.State.HeightMM, ev.State.UpdatedAt)
		}
	}
}

// handleTick is the wall-clock backstop for moves that receive no further
// notifications: keepalive re-issue, zero-speed settling, stall detection.
func (c *Controller) handleTick() {
	t := c.now()

	switch c.State() {
	case MovingUp, MovingDown:
		if !c.zeroSince.IsZero() && t.Sub(c.zeroSince) >= c.cfg.ZeroSpeedDebounce {
			c.logger.Info("Movement ceased, settling to idle")
			c.settle("movement ceased")
			return
		}
		if c.stalledAt(t) {
			c.stall(c.progressHeight, t)
			return
		}
		c.keepalive(c.relativeCommand(), t)

	case Seeking:
		if c.stalledAt(t) {
			c.stall(c.progressHeight, t)
			return
		}
		if c.lastDir != dirNone {
			c.keepalive(c.directionCommand(c.lastDir), t)
		}
	}
}

func (c *Controller) evaluateRelative(st State) {
	t := st.UpdatedAt
	c.trackProgress(st.HeightMM, t)

	if st.SpeedMMS == 0 {
		if c.zeroSince.IsZero() {
			c.zeroSince = t
		} else if t.Sub(c.zeroSince) >= c.cfg.ZeroSpeedDebounce {
			// The desk stopped on its own, e.g. a hard travel limit.
			// Recovered condition, not an error.
			c.logger.WithField("height_mm", st.HeightMM).Info("Movement ceased, settling to idle")
			c.settle("movement ceased")
			return
		}
	} else {
		c.zeroSince = time.Time{}
	}

	if c.stalledAt(t) {
		c.stall(st.HeightMM, t)
		return
	}
	c.keepalive(c.relativeCommand(), t)
}

// evaluateSeek re-evaluates the required correction for every height sample
// while seeking.
func (c *Controller) evaluateSeek(heightMM float64, t time.Time) {
	c.trackProgress(heightMM, t)
	if c.stalledAt(t) {
		c.stall(heightMM, t)
		return
	}

	diff := c.targetMM - heightMM
	if math.Abs(diff) <= c.tolMM {
		c.logger.WithFields(logrus.Fields{
			"height_mm": heightMM,
			"target_mm": c.targetMM,
		}).Info("Target height reached")
		c.setState(Stopping)
		c.writeStop()
		c.settle("target reached")
		return
	}

	dir := dirUp
	if diff < 0 {
		dir = dirDown
	}

	if c.lastDir != dirNone && dir != c.lastDir {
		// Overshoot: the sign of the required correction flipped. Two flips
		// inside the window widen the tolerance once to stop the flapping.
		if !c.flipAt.IsZero() && t.Sub(c.flipAt) <= c.cfg.FlipWindow && !c.widened {
			c.tolMM *= 2
			c.widened = true
			c.logger.WithField("tolerance_mm", c.tolMM).Debug("Oscillation detected, widening tolerance")
			if math.Abs(diff) <= c.tolMM {
				c.setState(Stopping)
				c.writeStop()
				c.settle("target reached")
				return
			}
		}
		c.flipAt = t
	}

	if dir != c.lastDir {
		if err := c.session.Write(linak.CommandCharUUID, c.directionCommand(dir)); err != nil {
			c.logger.WithError(err).Warn("Seek command rejected, aborting move")
			c.settle("write failed")
			return
		}
		c.lastDir = dir
		c.lastCommandAt = t
		return
	}
	c.keepalive(c.directionCommand(dir), t)
}

// trackProgress records height samples that moved beyond the noise
// threshold since the last recorded progress.
func (c *Controller) trackProgress(heightMM float64, t time.Time) {
	if math.Abs(heightMM-c.progressHeight) > c.cfg.NoiseMM {
		c.progressHeight = heightMM
		c.progressAt = t
	}
}

func (c *Controller) stalledAt(t time.Time) bool {
	return !c.progressAt.IsZero() && t.Sub(c.progressAt) >= c.cfg.StallTimeout
}

// stall aborts a move that produced no height change: stop is written
// exactly once, the controller returns to Idle and the stall surfaces to
// subscribers as an event.
func (c *Controller) stall(heightMM float64, t time.Time) {
	err := &StallError{
		TargetMM: c.targetMM,
		HeightMM: heightMM,
		Elapsed:  t.Sub(c.progressAt),
	}
	c.logger.WithFields(logrus.Fields{
		"height_mm": heightMM,
		"target_mm": c.targetMM,
	}).Warn("Move stalled, stopping desk")

	c.writeStop()
	c.settle("stalled")
	c.stream.PublishStall(err)
}

// keepalive re-issues the active direction command when the last write is
// old enough; the firmware halts movement when commands stop arriving.
func (c *Controller) keepalive(cmd []byte, t time.Time) {
	if t.Sub(c.lastCommandAt) < c.cfg.KeepaliveInterval {
		return
	}
	if err := c.session.Write(linak.CommandCharUUID, cmd); err != nil {
		c.logger.WithError(err).Warn("Keepalive command rejected, aborting move")
		c.settle("write failed")
		return
	}
	c.lastCommandAt = t
}

// writeStop issues the stop opcode and the reference-input stop frame.
// Write errors are logged only: a failed stop means the link dropped, which
// halts the desk anyway.
func (c *Controller) writeStop() {
	if err := c.session.Write(linak.CommandCharUUID, linak.CommandStop); err != nil {
		c.logger.WithError(err).Warn("Stop command write failed")
		return
	}
	if err := c.session.Write(linak.ReferenceInputCharUUID, linak.ReferenceInputStop); err != nil {
		c.logger.WithError(err).Warn("Reference input stop write failed")
	}
}

// settle resets the move bookkeeping and returns to Idle.
func (c *Controller) settle(reason string) {
	c.targetMM = 0
	c.tolMM = 0
	c.widened = false
	c.lastDir = dirNone
	c.flipAt = time.Time{}
	c.lastCommandAt = time.Time{}
	c.progressHeight = 0
	c.progressAt = time.Time{}
	c.zeroSince = time.Time{}

	c.logger.WithField("reason", reason).Debug("Move settled")
	c.setState(Idle)
}

func (c *Controller) relativeCommand() []byte {
	if c.State() == MovingDown {
		return linak.CommandDown
	}
	return linak.CommandUp
}

func (c *Controller) directionCommand(d direction) []byte {
	if d == dirDown {
		return linak.CommandDown
	}
	return linak.CommandUp
}
