package ringchan

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestRingChannel_SendReceive(t *testing.T) {
	rc := New[int](4)
	defer rc.Close()

	rc.Send(1)
	rc.Send(2)

	assert.Equal(t, 2, rc.Len())
	assert.Equal(t, 4, rc.Cap())

	v, ok := rc.TryReceive()
	require.True(t, ok)
	assert.Equal(t, 1, v)

	v = <-rc.C()
	assert.Equal(t, 2, v)

	_, ok = rc.TryReceive()
	assert.False(t, ok)
}

func TestRingChannel_DropsOldestWhenFull(t *testing.T) {
	rc := New[int](2)
	defer rc.Close()

	rc.Send(1)
	rc.Send(2)
	rc.Send(3) // evicts 1

	v, ok := rc.TryReceive()
	require.True(t, ok)
	assert.Equal(t, 2, v, "oldest element MUST be evicted first")

	v, ok = rc.TryReceive()
	require.True(t, ok)
	assert.Equal(t, 3, v)

	stats := rc.Stats()
	assert.Equal(t, int64(3), stats.Written)
	assert.Equal(t, int64(1), stats.Overwritten)
}

func TestRingChannel_SendAfterCloseIsNoop(t *testing.T) {
	rc := New[string](2)
	rc.Send("kept")
	rc.Close()

	assert.NotPanics(t, func() { rc.Send("dropped") })

	v, ok := <-rc.C()
	require.True(t, ok)
	assert.Equal(t, "kept", v)

	_, ok = <-rc.C()
	assert.False(t, ok, "channel MUST be closed after drain")
}
