package realtime

import (
	"context"
	"errors"
	"fmt"
	"sync"

	"pellicule/internal/observability"
)

// ErrNotConnected is returned by Emit when no subscription holds the connection open.
// Local subscribers still receive the event.
var ErrNotConnected = errors.New("realtime: not connected")

// Handler receives events. Handlers of one channel are never called concurrently.
type Handler func(ev Event)

const defaultDedupeWindow = 512

// Channel is the process-wide realtime connection. The first Subscribe dials and
// the last Subscription.Close disconnects.
type Channel struct {
	dialer Dialer
	log    *observability.ChannelLogger
	seen   *window

	mu     sync.Mutex
	conn   Conn
	subs   map[uint64]*Subscription
	nextID uint64

	dispatchMu sync.Mutex
}

// Option configures a Channel.
type Option func(*Channel)

// WithLogger sets the channel logger.
func WithLogger(l *observability.Logger) Option {
	return func(c *Channel) { c.log = observability.NewChannelLogger("realtime", l) }
}

// WithDedupeWindow sets how many recent event ids are remembered.
func WithDedupeWindow(n int) Option {
	return func(c *Channel) {
		if n > 0 {
			c.seen = newWindow(n)
		}
	}
}

// NewChannel returns a disconnected channel using dialer.
func NewChannel(dialer Dialer, opts ...Option) *Channel {
	c := &Channel{
		dialer: dialer,
		log:    observability.NewChannelLogger("realtime", nil),
		seen:   newWindow(defaultDedupeWindow),
		subs:   make(map[uint64]*Subscription),
	}
	for _, opt := range opts {
		opt(c)
	}
	return c
}

// Subscription is one registered handler.
type Subscription struct {
	id      uint64
	ch      *Channel
	handler Handler
	once    sync.Once
}

// Subscribe registers h, dialing if this is the first live subscription.
func (c *Channel) Subscribe(ctx context.Context, h Handler) (*Subscription, error) {
	c.mu.Lock()
	defer c.mu.Unlock()

	if c.conn == nil {
		conn, err := c.dialer.Dial(ctx)
		if err != nil {
			c.log.LogError(ctx, "dial", err)
			return nil, fmt.Errorf("realtime subscribe: %w", err)
		}
		c.conn = conn
		c.log.LogConnect(ctx, c.dialer.Endpoint())
		go c.readLoop(conn)
	}

	sub := &Subscription{id: c.nextID, ch: c, handler: h}
	c.nextID++
	c.subs[sub.id] = sub
	observability.RealtimeSubscribers.Inc()
	return sub, nil
}

// Redial swaps the open connection for a fresh dial, so credentials that changed
// since the first Subscribe take effect. Without subscribers it does nothing.
func (c *Channel) Redial(ctx context.Context) error {
	c.mu.Lock()
	defer c.mu.Unlock()
	if len(c.subs) == 0 {
		return nil
	}

	if old := c.conn; old != nil {
		c.conn = nil
		_ = old.Close()
		c.log.LogDisconnect(ctx, "redial")
	}
	conn, err := c.dialer.Dial(ctx)
	if err != nil {
		c.log.LogError(ctx, "redial", err)
		return fmt.Errorf("realtime redial: %w", err)
	}
	c.conn = conn
	c.log.LogConnect(ctx, c.dialer.Endpoint())
	go c.readLoop(conn)
	return nil
}

// Connected reports whether the channel holds an open connection.
func (c *Channel) Connected() bool {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.conn != nil
}

// Subscribers reports the number of live subscriptions.
func (c *Channel) Subscribers() int {
	c.mu.Lock()
	defer c.mu.Unlock()
	return len(c.subs)
}

// Close deregisters the subscription. Closing the last one disconnects the channel.
// Close is idempotent.
func (s *Subscription) Close() {
	s.once.Do(func() {
		c := s.ch
		c.mu.Lock()
		delete(c.subs, s.id)
		observability.RealtimeSubscribers.Dec()
		var conn Conn
		if len(c.subs) == 0 && c.conn != nil {
			conn = c.conn
			c.conn = nil
		}
		c.mu.Unlock()

		if conn != nil {
			_ = conn.Close()
			c.log.LogDisconnect(context.Background(), "last subscriber closed")
		}
	})
}

// Emit broadcasts ev to peers and to every other subscriber of this channel.
func (s *Subscription) Emit(ctx context.Context, ev Event) error {
	return s.ch.emit(ctx, ev, s.id, true)
}

// Emit broadcasts ev to peers and to every subscriber of this channel.
func (c *Channel) Emit(ctx context.Context, ev Event) error {
	return c.emit(ctx, ev, 0, false)
}

func (c *Channel) emit(ctx context.Context, ev Event, skip uint64, hasSkip bool) error {
	msg, raw, err := Encode(ev)
	if err != nil {
		return err
	}
	span, ctx := observability.StartEmitSpan(ctx, string(ev.Kind()), msg.ID)
	defer span.End()

	// Remember our own id so an echo from the relay is ignored.
	c.seen.Add(msg.ID)

	c.mu.Lock()
	conn := c.conn
	c.mu.Unlock()

	var sendErr error
	if conn == nil {
		sendErr = ErrNotConnected
	} else if err := conn.WriteMessage(raw); err != nil {
		sendErr = fmt.Errorf("realtime emit %s: %w", ev.Kind(), err)
		c.log.LogError(ctx, "write", err)
	} else {
		observability.RecordEvent(string(ev.Kind()), "out")
		c.log.LogEvent(ctx, "out", string(ev.Kind()), msg.ID)
	}
	if sendErr != nil {
		span.SetError(sendErr)
	}

	c.dispatch(msg, skip, hasSkip, "local")
	return sendErr
}

func (c *Channel) readLoop(conn Conn) {
	for {
		raw, err := conn.ReadMessage()
		if err != nil {
			c.mu.Lock()
			lost := c.conn == conn
			if lost {
				c.conn = nil
			}
			c.mu.Unlock()
			if lost {
				_ = conn.Close()
				c.log.LogDisconnect(context.Background(), err.Error())
			}
			return
		}

		msg, err := Decode(raw)
		if err != nil {
			observability.RecordDrop("invalid")
			c.log.LogDrop(context.Background(), "invalid", err)
			continue
		}
		if !c.seen.Add(msg.ID) {
			observability.RecordDrop("duplicate")
			c.log.LogDrop(context.Background(), "duplicate", nil)
			continue
		}
		c.dispatch(msg, 0, false, "in")
	}
}

func (c *Channel) dispatch(msg Message, skip uint64, hasSkip bool, direction string) {
	c.mu.Lock()
	handlers := make([]Handler, 0, len(c.subs))
	for id, sub := range c.subs {
		if hasSkip && id == skip {
			continue
		}
		handlers = append(handlers, sub.handler)
	}
	c.mu.Unlock()

	observability.RecordEvent(string(msg.Event.Kind()), direction)
	if direction == "in" {
		c.log.LogEvent(context.Background(), direction, string(msg.Event.Kind()), msg.ID)
	}

	c.dispatchMu.Lock()
	defer c.dispatchMu.Unlock()
	for _, h := range handlers {
		h(msg.Event)
	}
}

// window remembers the most recent ids in insertion order.
type window struct {
	mu   sync.Mutex
	ids  map[string]struct{}
	ring []string
	next int
}

func newWindow(size int) *window {
	return &window{ids: make(map[string]struct{}, size), ring: make([]string, size)}
}

// Add records id and reports whether it was new.
func (w *window) Add(id string) bool {
	w.mu.Lock()
	defer w.mu.Unlock()
	if _, ok := w.ids[id]; ok {
		return false
	}
	if old := w.ring[w.next]; old != "" {
		delete(w.ids, old)
	}
	w.ring[w.next] = id
	w.ids[id] = struct{}{}
	w.next = (w.next + 1) % len(w.ring)
	return true
}
