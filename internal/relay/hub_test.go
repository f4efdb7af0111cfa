package relay

import (
	"testing"

	"pellicule/internal/observability"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func newTestHub() *Hub {
	return NewHub(observability.DiscardLogger())
}

func TestHub_BroadcastSkipsSender(t *testing.T) {
	h := newTestHub()
	a, err := h.Register("u1", nil)
	require.NoError(t, err)
	b, err := h.Register("u2", nil)
	require.NoError(t, err)

	h.Broadcast(a, []byte("hello"))

	assert.Len(t, a.Send, 0)
	require.Len(t, b.Send, 1)
	assert.Equal(t, "hello", string(<-b.Send))
}

func TestHub_BroadcastNilSenderReachesEveryone(t *testing.T) {
	h := newTestHub()
	a, _ := h.Register("u1", nil)
	b, _ := h.Register("", nil)

	h.Broadcast(nil, []byte("x"))

	assert.Len(t, a.Send, 1)
	assert.Len(t, b.Send, 1)
}

func TestHub_Limits(t *testing.T) {
	h := newTestHub()
	h.maxPerUser = 2
	h.maxTotal = 3

	_, err := h.Register("u1", nil)
	require.NoError(t, err)
	_, err = h.Register("u1", nil)
	require.NoError(t, err)
	_, err = h.Register("u1", nil)
	assert.ErrorIs(t, err, ErrUserFull)

	// anonymous clients only count toward the total
	_, err = h.Register("", nil)
	require.NoError(t, err)
	_, err = h.Register("", nil)
	assert.ErrorIs(t, err, ErrServerFull)
	assert.Equal(t, 3, h.Count())
}

func TestHub_UnregisterTwice(t *testing.T) {
	h := newTestHub()
	c, _ := h.Register("u1", nil)

	h.UnregisterClient(c)
	assert.NotPanics(t, func() { h.UnregisterClient(c) })
	assert.Equal(t, 0, h.Count())

	_, ok := <-c.Send
	assert.False(t, ok, "send buffer closed")

	// the per-user slot is released
	h.maxPerUser = 1
	_, err := h.Register("u1", nil)
	assert.NoError(t, err)
}

func TestClient_TrySendDropsWhenFullOrClosed(t *testing.T) {
	h := newTestHub()
	c, _ := h.Register("u1", nil)
	for i := 0; i < sendBuffer; i++ {
		c.TrySend([]byte("m"))
	}
	assert.NotPanics(t, func() { c.TrySend([]byte("overflow")) })
	assert.Len(t, c.Send, sendBuffer)

	h.UnregisterClient(c)
	assert.NotPanics(t, func() { c.TrySend([]byte("late")) })
}

func TestHub_Shutdown(t *testing.T) {
	h := newTestHub()
	a, _ := h.Register("u1", nil)
	b, _ := h.Register("u2", nil)

	require.NoError(t, h.Shutdown(t.Context()))
	assert.Equal(t, 0, h.Count())
	for _, c := range []*Client{a, b} {
		for range c.Send {
		}
	}
	// unregister after shutdown is a no-op
	assert.NotPanics(t, func() { h.UnregisterClient(a) })
}
