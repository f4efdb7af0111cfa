package realtime

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"sync"
	"time"

	"github.com/gorilla/websocket"
)

// ErrConnClosed is returned by reads and writes on a closed connection.
var ErrConnClosed = errors.New("realtime: connection closed")

// Conn is one established transport connection. ReadMessage blocks until a
// message arrives or the connection is closed. WriteMessage is safe for
// concurrent use.
type Conn interface {
	ReadMessage() ([]byte, error)
	WriteMessage(msg []byte) error
	Close() error
}

// Dialer opens connections.
type Dialer interface {
	Dial(ctx context.Context) (Conn, error)
	Endpoint() string
}

const writeWait = 10 * time.Second

// WebSocketDialer connects to the relay over a websocket.
type WebSocketDialer struct {
	URL string
	// Token, when set, supplies the bearer token sent with the handshake.
	Token  func() string
	Dialer *websocket.Dialer
}

// Endpoint returns the websocket URL.
func (d *WebSocketDialer) Endpoint() string { return d.URL }

// Dial performs the websocket handshake.
func (d *WebSocketDialer) Dial(ctx context.Context) (Conn, error) {
	dialer := d.Dialer
	if dialer == nil {
		dialer = websocket.DefaultDialer
	}
	header := http.Header{}
	if d.Token != nil {
		if tok := d.Token(); tok != "" {
			header.Set("Authorization", "Bearer "+tok)
		}
	}
	ws, resp, err := dialer.DialContext(ctx, d.URL, header)
	if resp != nil && resp.Body != nil {
		_ = resp.Body.Close()
	}
	if err != nil {
		if resp != nil {
			return nil, fmt.Errorf("dial %s: %s: %w", d.URL, resp.Status, err)
		}
		return nil, fmt.Errorf("dial %s: %w", d.URL, err)
	}
	return &wsConn{ws: ws}, nil
}

type wsConn struct {
	ws      *websocket.Conn
	writeMu sync.Mutex
}

func (c *wsConn) ReadMessage() ([]byte, error) {
	for {
		mt, msg, err := c.ws.ReadMessage()
		if err != nil {
			return nil, err
		}
		if mt == websocket.TextMessage || mt == websocket.BinaryMessage {
			return msg, nil
		}
	}
}

func (c *wsConn) WriteMessage(msg []byte) error {
	c.writeMu.Lock()
	defer c.writeMu.Unlock()
	if err := c.ws.SetWriteDeadline(time.Now().Add(writeWait)); err != nil {
		return err
	}
	return c.ws.WriteMessage(websocket.TextMessage, msg)
}

func (c *wsConn) Close() error {
	c.writeMu.Lock()
	_ = c.ws.WriteControl(websocket.CloseMessage,
		websocket.FormatCloseMessage(websocket.CloseNormalClosure, ""),
		time.Now().Add(time.Second))
	c.writeMu.Unlock()
	return c.ws.Close()
}

// MemoryBus is an in-process relay. A message written on one connection is
// delivered to every other open connection of the same bus.
type MemoryBus struct {
	mu    sync.Mutex
	conns map[*memConn]struct{}
	dials int
}

// NewMemoryBus returns an empty bus.
func NewMemoryBus() *MemoryBus {
	return &MemoryBus{conns: make(map[*memConn]struct{})}
}

// Endpoint names the bus for logs.
func (b *MemoryBus) Endpoint() string { return "memory" }

// Dial opens a new connection on the bus.
func (b *MemoryBus) Dial(ctx context.Context) (Conn, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	c := &memConn{bus: b, inbox: make(chan []byte, 64), closed: make(chan struct{})}
	b.mu.Lock()
	b.conns[c] = struct{}{}
	b.dials++
	b.mu.Unlock()
	return c, nil
}

// Publish delivers msg to every open connection, as a server push would.
func (b *MemoryBus) Publish(msg []byte) {
	b.deliver(nil, msg)
}

// Open reports the number of open connections.
func (b *MemoryBus) Open() int {
	b.mu.Lock()
	defer b.mu.Unlock()
	return len(b.conns)
}

// Dials reports how many connections were ever opened.
func (b *MemoryBus) Dials() int {
	b.mu.Lock()
	defer b.mu.Unlock()
	return b.dials
}

func (b *MemoryBus) deliver(from *memConn, msg []byte) {
	b.mu.Lock()
	targets := make([]*memConn, 0, len(b.conns))
	for c := range b.conns {
		if c != from {
			targets = append(targets, c)
		}
	}
	b.mu.Unlock()

	for _, c := range targets {
		cp := append([]byte(nil), msg...)
		select {
		case c.inbox <- cp:
		case <-c.closed:
		default:
			// Slow reader; drop like a congested socket would.
		}
	}
}

type memConn struct {
	bus       *MemoryBus
	inbox     chan []byte
	closed    chan struct{}
	closeOnce sync.Once
}

func (c *memConn) ReadMessage() ([]byte, error) {
	select {
	case msg := <-c.inbox:
		return msg, nil
	case <-c.closed:
		return nil, ErrConnClosed
	}
}

func (c *memConn) WriteMessage(msg []byte) error {
	select {
	case <-c.closed:
		return ErrConnClosed
	default:
	}
	c.bus.deliver(c, msg)
	return nil
}

func (c *memConn) Close() error {
	c.closeOnce.Do(func() {
		c.bus.mu.Lock()
		delete(c.bus.conns, c)
		c.bus.mu.Unlock()
		close(c.closed)
	})
	return nil
}
