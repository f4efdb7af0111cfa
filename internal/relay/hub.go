// Package relay is the server end of the realtime channel: it forwards every
// event a client sends to all other connected clients.
package relay

import (
	"context"
	"errors"
	"sync"

	"pellicule/internal/observability"
)

const (
	// Max connections per user
	maxConnsPerUser = 12
	// Max total connections
	maxTotalConns = 10000
)

// Connection limit errors.
var (
	ErrServerFull = errors.New("server connection limit reached")
	ErrUserFull   = errors.New("user connection limit reached")
)

// Hub tracks connected clients.
type Hub struct {
	mu      sync.RWMutex
	clients map[*Client]struct{}
	perUser map[string]int
	log     *observability.ChannelLogger

	maxPerUser int
	maxTotal   int
}

// NewHub creates an empty Hub.
func NewHub(l *observability.Logger) *Hub {
	return &Hub{
		clients:    make(map[*Client]struct{}),
		perUser:    make(map[string]int),
		log:        observability.NewChannelLogger("relay hub", l),
		maxPerUser: maxConnsPerUser,
		maxTotal:   maxTotalConns,
	}
}

// Name returns a human-readable identifier for this hub.
func (h *Hub) Name() string { return "relay hub" }

// Register adds a connection for userID. Anonymous clients ("") are only
// bounded by the total limit.
func (h *Hub) Register(userID string, conn Conn) (*Client, error) {
	h.mu.Lock()
	defer h.mu.Unlock()

	if len(h.clients) >= h.maxTotal {
		return nil, ErrServerFull
	}
	if userID != "" && h.perUser[userID] >= h.maxPerUser {
		return nil, ErrUserFull
	}

	client := newClient(h, conn, userID)
	h.clients[client] = struct{}{}
	if userID != "" {
		h.perUser[userID]++
	}
	observability.RelayConnections.Inc()
	return client, nil
}

// UnregisterClient removes client and closes its send buffer. It is safe to call twice.
func (h *Hub) UnregisterClient(client *Client) {
	h.mu.Lock()
	defer h.mu.Unlock()
	if _, ok := h.clients[client]; !ok {
		return
	}
	delete(h.clients, client)
	if client.UserID != "" {
		if h.perUser[client.UserID]--; h.perUser[client.UserID] <= 0 {
			delete(h.perUser, client.UserID)
		}
	}
	close(client.Send)
	observability.RelayConnections.Dec()
}

// Broadcast queues message for every client except sender. A nil sender
// reaches everyone.
func (h *Hub) Broadcast(sender *Client, message []byte) {
	h.mu.RLock()
	defer h.mu.RUnlock()
	for c := range h.clients {
		if c != sender {
			c.TrySend(message)
		}
	}
}

// Count returns the number of connected clients.
func (h *Hub) Count() int {
	h.mu.RLock()
	defer h.mu.RUnlock()
	return len(h.clients)
}

// Shutdown closes every send buffer; each client then sends a going-away close
// frame and drops its connection.
func (h *Hub) Shutdown(_ context.Context) error {
	h.mu.Lock()
	defer h.mu.Unlock()
	for client := range h.clients {
		close(client.Send)
		observability.RelayConnections.Dec()
	}
	h.clients = make(map[*Client]struct{})
	h.perUser = make(map[string]int)
	return nil
}
