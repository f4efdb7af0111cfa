package relay

import (
	"errors"
	"sync"
	"testing"
	"time"

	"pellicule/internal/realtime"

	"github.com/gofiber/websocket/v2"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type frame struct {
	kind int
	data []byte
}

// fakeConn feeds queued frames to the reader and records every write.
type fakeConn struct {
	inbound chan frame
	closed  chan struct{}
	once    sync.Once

	mu     sync.Mutex
	writes []frame
}

func newFakeConn() *fakeConn {
	return &fakeConn{inbound: make(chan frame, 16), closed: make(chan struct{})}
}

func (f *fakeConn) ReadMessage() (int, []byte, error) {
	select {
	case fr, ok := <-f.inbound:
		if !ok {
			return 0, nil, errors.New("peer gone")
		}
		return fr.kind, fr.data, nil
	case <-f.closed:
		return 0, nil, errors.New("use of closed connection")
	}
}

func (f *fakeConn) WriteMessage(kind int, data []byte) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.writes = append(f.writes, frame{kind, append([]byte(nil), data...)})
	return nil
}

func (f *fakeConn) SetReadDeadline(time.Time) error   { return nil }
func (f *fakeConn) SetWriteDeadline(time.Time) error  { return nil }
func (f *fakeConn) SetReadLimit(int64)                {}
func (f *fakeConn) SetPongHandler(func(string) error) {}
func (f *fakeConn) Close() error                      { f.once.Do(func() { close(f.closed) }); return nil }
func (f *fakeConn) isClosed() bool {
	select {
	case <-f.closed:
		return true
	default:
		return false
	}
}

func (f *fakeConn) written() []frame {
	f.mu.Lock()
	defer f.mu.Unlock()
	return append([]frame(nil), f.writes...)
}

func TestClient_ServeDecodesAndDropsInvalidFrames(t *testing.T) {
	h := newTestHub()
	conn := newFakeConn()
	c, err := h.Register("u1", conn)
	require.NoError(t, err)

	_, valid, err := realtime.Encode(realtime.LikeAdded{PhotoID: "p1", UserID: "u1"})
	require.NoError(t, err)
	conn.inbound <- frame{websocket.TextMessage, []byte(`{"type":"likeAdded"}`)}
	conn.inbound <- frame{websocket.BinaryMessage, valid}
	conn.inbound <- frame{websocket.TextMessage, valid}
	close(conn.inbound)

	var got []realtime.Message
	c.Serve(func(from *Client, msg realtime.Message, raw []byte) {
		assert.Same(t, c, from)
		assert.Equal(t, valid, raw)
		got = append(got, msg)
	})

	require.Len(t, got, 1)
	assert.Equal(t, realtime.LikeAdded{PhotoID: "p1", UserID: "u1"}, got[0].Event)
	assert.Equal(t, 0, h.Count(), "client unregistered once the peer is gone")
	assert.True(t, conn.isClosed())
}

func TestClient_WritesQueuedEnvelopesThenGoingAway(t *testing.T) {
	h := newTestHub()
	conn := newFakeConn()
	c, err := h.Register("u1", conn)
	require.NoError(t, err)

	done := make(chan struct{})
	go func() {
		c.Serve(func(*Client, realtime.Message, []byte) {})
		close(done)
	}()

	c.TrySend([]byte(`{"id":"1"}`))
	require.Eventually(t, func() bool { return len(conn.written()) == 1 }, time.Second, 5*time.Millisecond)

	require.NoError(t, h.Shutdown(t.Context()))
	<-done

	require.Eventually(t, func() bool { return len(conn.written()) == 2 }, time.Second, 5*time.Millisecond)
	writes := conn.written()
	assert.Equal(t, websocket.TextMessage, writes[0].kind)
	assert.Equal(t, `{"id":"1"}`, string(writes[0].data))
	assert.Equal(t, websocket.CloseMessage, writes[1].kind)
	assert.Equal(t, websocket.FormatCloseMessage(websocket.CloseGoingAway, "relay closed"), writes[1].data)
}

func TestReject_SendsPolicyViolation(t *testing.T) {
	conn := newFakeConn()
	reject(conn, ErrUserFull.Error())

	writes := conn.written()
	require.Len(t, writes, 1)
	assert.Equal(t, websocket.CloseMessage, writes[0].kind)
	assert.Equal(t, websocket.FormatCloseMessage(websocket.ClosePolicyViolation, ErrUserFull.Error()), writes[0].data)
	assert.True(t, conn.isClosed())
}
