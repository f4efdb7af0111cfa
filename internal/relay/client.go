package relay

import (
	"context"
	"errors"
	"time"

	"pellicule/internal/observability"
	"pellicule/internal/realtime"

	"github.com/gofiber/websocket/v2"
)

const (
	writeTimeout = 10 * time.Second
	// A peer that sends nothing, not even a pong, for idleTimeout is dropped.
	idleTimeout  = 60 * time.Second
	pingInterval = idleTimeout * 9 / 10

	// Largest event frame accepted; a comment envelope is well below it.
	maxFrameBytes = 16 << 10

	sendBuffer = 256
)

var errNotText = errors.New("relay: non-text frame")

// Conn is the part of a websocket connection a relay client drives.
// *websocket.Conn satisfies it.
type Conn interface {
	ReadMessage() (messageType int, p []byte, err error)
	WriteMessage(messageType int, data []byte) error
	SetReadDeadline(t time.Time) error
	SetWriteDeadline(t time.Time) error
	SetReadLimit(limit int64)
	SetPongHandler(h func(appData string) error)
	Close() error
}

// FrameHandler receives every inbound frame that decodes as a valid event.
type FrameHandler func(from *Client, msg realtime.Message, raw []byte)

// Client is one connected pellicule client as seen by the relay.
type Client struct {
	hub  *Hub
	conn Conn
	ctx  context.Context

	// Send queues encoded envelopes for this client. The hub closes it on unregister.
	Send chan []byte

	// UserID is the token subject, or "" when the relay runs without auth.
	UserID string
}

func newClient(hub *Hub, conn Conn, userID string) *Client {
	return &Client{
		hub:    hub,
		conn:   conn,
		ctx:    observability.WithCorrelationID(context.Background(), observability.GenerateCorrelationID()),
		Send:   make(chan []byte, sendBuffer),
		UserID: userID,
	}
}

// Context carries the connection's correlation id.
func (c *Client) Context() context.Context { return c.ctx }

// Serve writes queued envelopes on its own goroutine and reads frames until the
// peer goes away, then unregisters the client.
func (c *Client) Serve(handle FrameHandler) {
	go c.writeLoop()
	c.readLoop(handle)
}

func (c *Client) readLoop(handle FrameHandler) {
	defer func() {
		c.hub.UnregisterClient(c)
		_ = c.conn.Close()
	}()

	c.conn.SetReadLimit(maxFrameBytes)
	c.extendIdle()
	c.conn.SetPongHandler(func(string) error {
		c.extendIdle()
		return nil
	})

	for {
		kind, raw, err := c.conn.ReadMessage()
		if err != nil {
			if websocket.IsUnexpectedCloseError(err, websocket.CloseGoingAway, websocket.CloseNormalClosure, websocket.CloseNoStatusReceived) {
				c.hub.log.LogError(c.ctx, "read", err)
			}
			return
		}
		c.extendIdle()

		if kind != websocket.TextMessage {
			observability.RecordDrop("binary")
			c.hub.log.LogDrop(c.ctx, "binary", errNotText)
			continue
		}
		msg, err := realtime.Decode(raw)
		if err != nil {
			observability.RecordDrop("invalid")
			c.hub.log.LogDrop(c.ctx, "invalid", err)
			continue
		}
		handle(c, msg, raw)
	}
}

func (c *Client) extendIdle() {
	_ = c.conn.SetReadDeadline(time.Now().Add(idleTimeout))
}

func (c *Client) writeLoop() {
	keepalive := time.NewTicker(pingInterval)
	defer func() {
		keepalive.Stop()
		_ = c.conn.Close()
	}()

	for {
		select {
		case envelope, open := <-c.Send:
			if !open {
				_ = c.write(websocket.CloseMessage, websocket.FormatCloseMessage(websocket.CloseGoingAway, "relay closed"))
				return
			}
			if err := c.write(websocket.TextMessage, envelope); err != nil {
				c.hub.log.LogError(c.ctx, "write", err)
				return
			}
		case <-keepalive.C:
			if err := c.write(websocket.PingMessage, nil); err != nil {
				return
			}
		}
	}
}

func (c *Client) write(kind int, data []byte) error {
	_ = c.conn.SetWriteDeadline(time.Now().Add(writeTimeout))
	return c.conn.WriteMessage(kind, data)
}

// TrySend queues envelope without blocking. A full or closed buffer drops it.
func (c *Client) TrySend(envelope []byte) {
	defer func() {
		if r := recover(); r != nil {
			observability.RelayBackpressureDrops.WithLabelValues("closed").Inc()
		}
	}()

	select {
	case c.Send <- envelope:
	default:
		observability.RelayBackpressureDrops.WithLabelValues("full").Inc()
		c.hub.log.LogDrop(c.ctx, "buffer_full", nil)
	}
}

// reject refuses a connection the hub could not admit.
func reject(conn Conn, reason string) {
	_ = conn.SetWriteDeadline(time.Now().Add(writeTimeout))
	_ = conn.WriteMessage(websocket.CloseMessage, websocket.FormatCloseMessage(websocket.ClosePolicyViolation, reason))
	_ = conn.Close()
}
