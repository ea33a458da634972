package desk

import (
	"encoding/hex"
	"sync"
	"time"

	"github.com/sirupsen/logrus"

	"github.com/srg/deskctl/internal/linak"
)

// Stream turns the raw notification frames of one session into a typed
// state-event sequence. It owns the cached State snapshot and fans events
// out to its sinks in arrival order, without deduplication - the device
// repeating an identical height is forwarded and serves as the heartbeat
// for stall detection.
//
// Malformed frames are dropped with a warning and never terminate the
// stream; the current sequence ends only with EventDisconnected, and a fresh
// one begins after reconnect with EventConnected.
type Stream struct {
	logger *logrus.Logger
	now    func() time.Time

	mu    sync.RWMutex
	state State
	sinks []func(Event)
}

// NewStream creates a stream. clock may be nil, in which case time.Now is
// used.
func NewStream(logger *logrus.Logger, clock func() time.Time) *Stream {
	if logger == nil {
		logger = logrus.New()
	}
	if clock == nil {
		clock = time.Now
	}
	return &Stream{logger: logger, now: clock}
}

// AddSink registers a consumer for the event sequence. Sinks are fixed
// wiring, registered before the session connects; they are invoked
// synchronously in registration order and must not block.
func (s *Stream) AddSink(fn func(Event)) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.sinks = append(s.sinks, fn)
}

// CurrentState returns the latest cached snapshot. Non-blocking; the
// snapshot may be stale when Connected is false.
func (s *Stream) CurrentState() State {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.state
}

// HandleFrame decodes a raw notification frame and publishes the resulting
// state sample. Invoked by the session for every frame, in arrival order.
func (s *Stream) HandleFrame(payload []byte) {
	heightMM, speedMMS, err := linak.DecodeState(payload)
	if err != nil {
		s.logger.WithFields(logrus.Fields{
			"len":   len(payload),
			"data":  hex.EncodeToString(payload),
			"error": err,
		}).Warn("Dropping malformed notification frame")
		return
	}

	s.mu.Lock()
	s.state = State{
		HeightMM:  heightMM,
		SpeedMMS:  speedMMS,
		Connected: true,
		UpdatedAt: s.now(),
	}
	st := s.state
	s.mu.Unlock()

	s.emit(Event{Kind: EventState, State: st})
}

// HandleConnected marks the link live. Height and speed keep their previous
// values until the first frame arrives.
func (s *Stream) HandleConnected() {
	s.mu.Lock()
	s.state.Connected = true
	s.state.UpdatedAt = s.now()
	st := s.state
	s.mu.Unlock()

	s.emit(Event{Kind: EventConnected, State: st})
}

// HandleDisconnected marks the cached height/speed stale and emits the
// terminal event of the current notification sequence.
func (s *Stream) HandleDisconnected() {
	s.mu.Lock()
	s.state.Connected = false
	s.state.UpdatedAt = s.now()
	st := s.state
	s.mu.Unlock()

	s.emit(Event{Kind: EventDisconnected, State: st})
}

// PublishStall surfaces an aborted move to subscribers as a state-change
// event carrying the stall error.
func (s *Stream) PublishStall(err error) {
	s.mu.RLock()
	st := s.state
	s.mu.RUnlock()

	s.emit(Event{Kind: EventMoveStalled, State: st, Err: err})
}

func (s *Stream) emit(ev Event) {
	s.mu.RLock()
	sinks := s.sinks
	s.mu.RUnlock()

	for _, fn := range sinks {
		fn(ev)
	}
}
