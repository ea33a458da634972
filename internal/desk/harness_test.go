package desk

import (
	"context"
	"encoding/binary"
	"fmt"
	"io"
	"sync"
	"time"

	"github.com/sirupsen/logrus"

	"github.com/srg/deskctl/internal/linak"
)

// fakeClock is a manually advanced time source shared by the driver and the
// test body so no test ever sleeps through real stall or debounce windows.
type fakeClock struct {
	mu sync.Mutex
	t  time.Time
}

func newFakeClock() *fakeClock {
	return &fakeClock{t: time.Date(2025, 6, 1, 12, 0, 0, 0, time.UTC)}
}

func (c *fakeClock) Now() time.Time {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.t
}

func (c *fakeClock) Advance(d time.Duration) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.t = c.t.Add(d)
}

// writeRecord is one attempted characteristic write.
type writeRecord struct {
	uuid    string
	payload []byte
	ok      bool
}

// fakeConn implements Conn in memory: it records writes, lets the test push
// notification frames, and can simulate write failures and link loss.
type fakeConn struct {
	mu           sync.Mutex
	writes       []writeRecord
	notify       func([]byte)
	onDisconnect func()
	linkDown     bool
	failWrites   int
	readFrame    []byte
	closed       bool
}

func (c *fakeConn) Write(uuid string, payload []byte) error {
	c.mu.Lock()
	defer c.mu.Unlock()

	if c.linkDown || c.closed {
		c.writes = append(c.writes, writeRecord{uuid: uuid, payload: payload, ok: false})
		return fmt.Errorf("link down")
	}
	if c.failWrites > 0 {
		c.failWrites--
		c.writes = append(c.writes, writeRecord{uuid: uuid, payload: payload, ok: false})
		return fmt.Errorf("write rejected")
	}
	cp := make([]byte, len(payload))
	copy(cp, payload)
	c.writes = append(c.writes, writeRecord{uuid: uuid, payload: cp, ok: true})
	return nil
}

func (c *fakeConn) Read(uuid string) ([]byte, error) {
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.readFrame == nil {
		return nil, fmt.Errorf("no value")
	}
	return c.readFrame, nil
}

func (c *fakeConn) Subscribe(uuid string, fn func(payload []byte)) error {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.notify = fn
	return nil
}

func (c *fakeConn) OnDisconnect(cb func()) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.onDisconnect = cb
}

func (c *fakeConn) Close() error {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.closed = true
	return nil
}

// Notify pushes a raw notification frame, as the BLE stack would.
func (c *fakeConn) Notify(frame []byte) {
	c.mu.Lock()
	fn := c.notify
	c.mu.Unlock()
	if fn != nil {
		fn(frame)
	}
}

// DropLink simulates unexpected link loss reported by the BLE stack.
func (c *fakeConn) DropLink() {
	c.mu.Lock()
	c.linkDown = true
	cb := c.onDisconnect
	c.mu.Unlock()
	if cb != nil {
		cb()
	}
}

// FailNextWrites makes the next n writes fail.
func (c *fakeConn) FailNextWrites(n int) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.failWrites = n
}

// successfulWritesTo returns the payloads successfully written to uuid, in
// order.
func (c *fakeConn) successfulWritesTo(uuid string) [][]byte {
	c.mu.Lock()
	defer c.mu.Unlock()
	var out [][]byte
	for _, w := range c.writes {
		if w.uuid == uuid && w.ok {
			out = append(out, w.payload)
		}
	}
	return out
}

// attemptsTo counts all write attempts to uuid, failed ones included.
func (c *fakeConn) attemptsTo(uuid string) int {
	c.mu.Lock()
	defer c.mu.Unlock()
	n := 0
	for _, w := range c.writes {
		if w.uuid == uuid {
			n++
		}
	}
	return n
}

// fakeTransport hands out fakeConns and records dial attempts.
type fakeTransport struct {
	mu           sync.Mutex
	conns        []*fakeConn
	dials        int
	failConnects int
}

func (t *fakeTransport) Connect(ctx context.Context, address string) (Conn, error) {
	t.mu.Lock()
	defer t.mu.Unlock()
	t.dials++
	if t.failConnects > 0 {
		t.failConnects--
		return nil, fmt.Errorf("device not in range")
	}
	conn := &fakeConn{}
	t.conns = append(t.conns, conn)
	return conn, nil
}

func (t *fakeTransport) dialCount() int {
	t.mu.Lock()
	defer t.mu.Unlock()
	return t.dials
}

func (t *fakeTransport) conn(i int) *fakeConn {
	t.mu.Lock()
	defer t.mu.Unlock()
	return t.conns[i]
}

func (t *fakeTransport) connCount() int {
	t.mu.Lock()
	defer t.mu.Unlock()
	return len(t.conns)
}

// heightFrame builds a raw notification frame for the given absolute height
// and speed counts.
func heightFrame(heightMM float64, speedCounts int16) []byte {
	frame := make([]byte, linak.FrameSize)
	binary.LittleEndian.PutUint16(frame[0:2], uint16((heightMM-linak.BaseHeightMM)*10))
	binary.LittleEndian.PutUint16(frame[2:4], uint16(speedCounts))
	return frame
}

// eventRecorder collects driver events from subscriber callbacks.
type eventRecorder struct {
	mu     sync.Mutex
	events []Event
}

func (r *eventRecorder) record(ev Event) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.events = append(r.events, ev)
}

func (r *eventRecorder) kinds() []EventKind {
	r.mu.Lock()
	defer r.mu.Unlock()
	out := make([]EventKind, len(r.events))
	for i, ev := range r.events {
		out[i] = ev.Kind
	}
	return out
}

func (r *eventRecorder) count(kind EventKind) int {
	r.mu.Lock()
	defer r.mu.Unlock()
	n := 0
	for _, ev := range r.events {
		if ev.Kind == kind {
			n++
		}
	}
	return n
}

func (r *eventRecorder) first(kind EventKind) (Event, bool) {
	r.mu.Lock()
	defer r.mu.Unlock()
	for _, ev := range r.events {
		if ev.Kind == kind {
			return ev, true
		}
	}
	return Event{}, false
}

func quietLogger() *logrus.Logger {
	logger := logrus.New()
	logger.SetOutput(io.Discard)
	return logger
}
