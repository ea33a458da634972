package desk

import (
	"context"
	"sync/atomic"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func newTestSession(transport *fakeTransport) *Session {
	return NewSession(transport, SessionConfig{
		Address:        "F0:11:22:33:44:55",
		ConnectTimeout: time.Second,
		Backoff:        Backoff{Initial: 5 * time.Millisecond, Max: 20 * time.Millisecond},
	}, quietLogger())
}

func TestSession_ConnectFailureIsUnreachable(t *testing.T) {
	// GOAL: Verify a failed initial connect reports ErrDeviceUnreachable
	// and is not retried - only loss of an established link reconnects

	transport := &fakeTransport{failConnects: 1}
	s := newTestSession(transport)
	defer s.Close()

	err := s.Connect(context.Background())
	require.Error(t, err)
	assert.ErrorIs(t, err, ErrDeviceUnreachable)
	assert.False(t, s.Connected())

	time.Sleep(30 * time.Millisecond)
	assert.Equal(t, 1, transport.dialCount(), "a failed connect must not be retried")
}

func TestSession_ConnectIsIdempotent(t *testing.T) {
	transport := &fakeTransport{}
	s := newTestSession(transport)
	defer s.Close()

	require.NoError(t, s.Connect(context.Background()))
	require.NoError(t, s.Connect(context.Background()), "connecting while connected is a no-op")
	assert.Equal(t, 1, transport.dialCount())
}

func TestSession_ReconnectRetriesWithBackoffUntilSuccess(t *testing.T) {
	// GOAL: Verify unexpected link loss triggers the reconnect schedule:
	// failed attempts keep retrying, success re-establishes the link

	transport := &fakeTransport{}
	s := newTestSession(transport)
	defer s.Close()

	var disconnects atomic.Int32
	s.OnDisconnected = func() { disconnects.Add(1) }

	require.NoError(t, s.Connect(context.Background()))

	transport.mu.Lock()
	transport.failConnects = 3
	transport.mu.Unlock()

	transport.conn(0).DropLink()

	require.Eventually(t, s.Connected, 2*time.Second, 2*time.Millisecond, "session MUST reconnect")
	// 1 initial + 3 failed attempts + 1 success
	assert.Equal(t, 5, transport.dialCount())
	assert.GreaterOrEqual(t, int(disconnects.Load()), 1)
}

func TestSession_CloseCancelsReconnect(t *testing.T) {
	// GOAL: Verify Close stops a reconnect loop that is still retrying

	transport := &fakeTransport{}
	s := newTestSession(transport)

	require.NoError(t, s.Connect(context.Background()))

	transport.mu.Lock()
	transport.failConnects = 1 << 20
	transport.mu.Unlock()

	transport.conn(0).DropLink()
	require.Eventually(t, func() bool { return transport.dialCount() >= 2 }, 2*time.Second, 2*time.Millisecond,
		"reconnect attempts MUST start")

	require.NoError(t, s.Close())
	dials := transport.dialCount()
	time.Sleep(50 * time.Millisecond)
	assert.Equal(t, dials, transport.dialCount(), "no reconnect attempt may run after Close")

	assert.ErrorIs(t, s.Connect(context.Background()), ErrClosed)
}

func TestSession_StaleDisconnectCallbackIgnored(t *testing.T) {
	// GOAL: Verify a disconnect callback firing for an already-replaced
	// conn does not drop the new link

	transport := &fakeTransport{}
	s := newTestSession(transport)
	defer s.Close()

	require.NoError(t, s.Connect(context.Background()))
	old := transport.conn(0)

	old.DropLink()
	require.Eventually(t, s.Connected, 2*time.Second, 2*time.Millisecond, "session MUST reconnect")

	// The stale conn reporting loss again must not disturb the new link.
	old.DropLink()
	time.Sleep(20 * time.Millisecond)
	assert.True(t, s.Connected())
	assert.Equal(t, 2, transport.dialCount())
}
