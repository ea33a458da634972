package desk

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"time"

	"github.com/sirupsen/logrus"

	"github.com/srg/deskctl/internal/linak"
)

// SessionConfig configures the link lifecycle to one paired device.
type SessionConfig struct {
	Address        string
	ConnectTimeout time.Duration
	Backoff        Backoff
}

// Session maintains exactly one logical link to a specific paired desk:
// connect, disconnect, and the auto-reconnect policy. All characteristic
// writes funnel through the session so no two components ever issue
// concurrent raw BLE operations.
//
// The OnFrame/OnConnected/OnDisconnected callbacks must be assigned before
// the first Connect and not changed afterwards.
type Session struct {
	transport Transport
	cfg       SessionConfig
	logger    *logrus.Logger

	// OnFrame receives raw notification frames from the height
	// characteristic. OnConnected/OnDisconnected report link transitions.
	OnFrame        func(payload []byte)
	OnConnected    func()
	OnDisconnected func()

	mu         sync.Mutex
	conn       Conn
	closed     bool
	generation int // incremented whenever the active conn is dropped

	writeMu sync.Mutex // serializes characteristic writes

	ctx    context.Context
	cancel context.CancelFunc
	wg     sync.WaitGroup
}

// NewSession creates a session for the given paired device address.
func NewSession(transport Transport, cfg SessionConfig, logger *logrus.Logger) *Session {
	if logger == nil {
		logger = logrus.New()
	}
	ctx, cancel := context.WithCancel(context.Background())
	return &Session{
		transport: transport,
		cfg:       cfg,
		logger:    logger,
		ctx:       ctx,
		cancel:    cancel,
	}
}

// Connect establishes the link and subscribes to the height/speed
// characteristic. A failure to establish the link is reported as
// ErrDeviceUnreachable and is not retried by this call - only unexpected
// loss of an established link triggers the reconnect schedule. Calling
// Connect while already connected is a no-op.
func (s *Session) Connect(ctx context.Context) error {
	s.mu.Lock()
	if s.closed {
		s.mu.Unlock()
		return ErrClosed
	}
	if s.conn != nil {
		s.mu.Unlock()
		s.logger.Debug("Already connected")
		return nil
	}
	s.mu.Unlock()

	s.logger.WithField("address", s.cfg.Address).Info("Connecting to desk...")

	dialCtx := ctx
	if s.cfg.ConnectTimeout > 0 {
		var cancel context.CancelFunc
		dialCtx, cancel = context.WithTimeout(ctx, s.cfg.ConnectTimeout)
		defer cancel()
	}

	conn, err := s.transport.Connect(dialCtx, s.cfg.Address)
	if err != nil {
		return fmt.Errorf("%w: %v", ErrDeviceUnreachable, err)
	}

	if err := conn.Subscribe(linak.HeightCharUUID, s.dispatchFrame); err != nil {
		_ = conn.Close()
		return fmt.Errorf("%w: subscribe height characteristic: %v", ErrDeviceUnreachable, err)
	}

	s.mu.Lock()
	if s.closed {
		s.mu.Unlock()
		_ = conn.Close()
		return ErrClosed
	}
	if s.conn != nil {
		// Lost a connect race; keep the existing link.
		s.mu.Unlock()
		_ = conn.Close()
		return nil
	}
	s.conn = conn
	gen := s.generation
	s.mu.Unlock()

	conn.OnDisconnect(func() { s.linkLost(gen) })

	s.logger.WithField("address", s.cfg.Address).Info("Desk connected")
	s.notifyConnected()
	return nil
}

// Write writes payload to the characteristic, serialized against all other
// writes on this session. A rejected write is retried once immediately; a
// second failure drops the link and is reported as ErrConnectionLost.
func (s *Session) Write(uuid string, payload []byte) error {
	s.writeMu.Lock()
	defer s.writeMu.Unlock()

	s.mu.Lock()
	conn := s.conn
	gen := s.generation
	s.mu.Unlock()

	if conn == nil {
		return fmt.Errorf("%w: not connected", ErrConnectionLost)
	}

	err := conn.Write(uuid, payload)
	if err == nil {
		return nil
	}

	s.logger.WithFields(logrus.Fields{
		"uuid":  uuid,
		"error": err,
	}).Warn("Characteristic write rejected, retrying once")

	if err = conn.Write(uuid, payload); err == nil {
		return nil
	}

	// Still failing: treat the link as lost and let the reconnect schedule
	// recover it.
	s.linkLost(gen)
	return fmt.Errorf("%w: write %s failed twice: %v", ErrConnectionLost, uuid, err)
}

// Read reads the current value of the characteristic.
func (s *Session) Read(uuid string) ([]byte, error) {
	s.mu.Lock()
	conn := s.conn
	s.mu.Unlock()

	if conn == nil {
		return nil, fmt.Errorf("%w: not connected", ErrConnectionLost)
	}
	return conn.Read(uuid)
}

// Connected reports whether a live link is currently held.
func (s *Session) Connected() bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.conn != nil
}

// Close tears the session down: releases the link and cancels any pending
// reconnect attempts. Idempotent, safe to call when already disconnected.
func (s *Session) Close() error {
	s.mu.Lock()
	if s.closed {
		s.mu.Unlock()
		return nil
	}
	s.closed = true
	s.generation++
	conn := s.conn
	s.conn = nil
	s.mu.Unlock()

	s.cancel()

	var err error
	if conn != nil {
		err = conn.Close()
		s.notifyDisconnected()
	}
	s.wg.Wait()
	s.logger.Info("Desk session closed")
	return err
}

func (s *Session) dispatchFrame(payload []byte) {
	if fn := s.OnFrame; fn != nil {
		fn(payload)
	}
}

func (s *Session) notifyConnected() {
	if fn := s.OnConnected; fn != nil {
		fn()
	}
}

func (s *Session) notifyDisconnected() {
	if fn := s.OnDisconnected; fn != nil {
		fn()
	}
}

// linkLost drops the conn installed at generation gen and starts the
// reconnect loop. Stale invocations (a disconnect callback firing after the
// conn was already replaced) are ignored.
func (s *Session) linkLost(gen int) {
	s.mu.Lock()
	if s.closed || s.conn == nil || s.generation != gen {
		s.mu.Unlock()
		return
	}
	conn := s.conn
	s.conn = nil
	s.generation++
	s.mu.Unlock()

	_ = conn.Close()

	s.logger.WithField("address", s.cfg.Address).Warn("Desk link lost")
	s.notifyDisconnected()

	s.wg.Add(1)
	go s.reconnectLoop()
}

// reconnectLoop retries the link with exponential backoff until it succeeds
// or the session is closed. Each attempt failure is a transient condition,
// reported as a connectivity state change only.
func (s *Session) reconnectLoop() {
	defer s.wg.Done()

	for attempt := 0; ; attempt++ {
		delay := s.cfg.Backoff.Delay(attempt)
		s.logger.WithFields(logrus.Fields{
			"attempt": attempt + 1,
			"delay":   delay,
		}).Info("Scheduling reconnect attempt")

		select {
		case <-s.ctx.Done():
			return
		case <-time.After(delay):
		}

		err := s.Connect(s.ctx)
		if err == nil {
			s.logger.WithField("attempt", attempt+1).Info("Desk reconnected")
			return
		}
		if errors.Is(err, ErrClosed) {
			return
		}

		s.logger.WithFields(logrus.Fields{
			"attempt": attempt + 1,
			"error":   err,
		}).Warn("Reconnect attempt failed")
		s.notifyDisconnected()
	}
}
