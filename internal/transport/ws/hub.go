package ws

import (
	"encoding/json"
	"sync"

	"go.uber.org/zap"

	"live-poll-service/internal/domain"
)

// Hub tracks live connections and implements app.Gateway.
// Sends never block: a client whose buffer is full misses the message.
type Hub struct {
	mu      sync.RWMutex
	clients map[string]*Client
	log     *zap.Logger
}

func NewHub(log *zap.Logger) *Hub {
	if log == nil {
		log = zap.NewNop()
	}
	return &Hub{clients: make(map[string]*Client), log: log}
}

// Register adds a client.
func (h *Hub) Register(c *Client) {
	h.mu.Lock()
	h.clients[c.id] = c
	n := len(h.clients)
	h.mu.Unlock()
	h.log.Debug("client connected", zap.String("conn_id", c.id), zap.Int("clients", n))
}

// Unregister removes a client and closes its queue. Safe to call twice.
func (h *Hub) Unregister(c *Client) {
	h.mu.Lock()
	defer h.mu.Unlock()
	if existing, ok := h.clients[c.id]; ok && existing == c {
		delete(h.clients, c.id)
		close(c.send)
		h.log.Debug("client disconnected", zap.String("conn_id", c.id), zap.Int("clients", len(h.clients)))
	}
}

// Broadcast queues event for every connected client.
func (h *Hub) Broadcast(event domain.Event) {
	data, err := json.Marshal(event)
	if err != nil {
		h.log.Error("marshal event", zap.String("type", string(event.Type)), zap.Error(err))
		return
	}
	h.mu.RLock()
	defer h.mu.RUnlock()
	for _, c := range h.clients {
		h.enqueueLocked(c, data)
	}
}

// Send queues event for a single connection. Unknown connections are ignored.
func (h *Hub) Send(connID string, event domain.Event) {
	data, err := json.Marshal(event)
	if err != nil {
		h.log.Error("marshal event", zap.String("type", string(event.Type)), zap.Error(err))
		return
	}
	h.mu.RLock()
	defer h.mu.RUnlock()
	if c, ok := h.clients[connID]; ok {
		h.enqueueLocked(c, data)
	}
}

// Disconnect closes a connection after its queued messages are flushed.
func (h *Hub) Disconnect(connID string) {
	h.mu.Lock()
	defer h.mu.Unlock()
	if c, ok := h.clients[connID]; ok {
		delete(h.clients, connID)
		close(c.send)
	}
}

// Count returns the number of live connections.
func (h *Hub) Count() int {
	h.mu.RLock()
	defer h.mu.RUnlock()
	return len(h.clients)
}

// Close disconnects every client; used on shutdown.
func (h *Hub) Close() {
	h.mu.Lock()
	defer h.mu.Unlock()
	for id, c := range h.clients {
		delete(h.clients, id)
		close(c.send)
	}
}

func (h *Hub) enqueueLocked(c *Client, data []byte) {
	select {
	case c.send <- data:
	default:
		h.log.Warn("send buffer full, message dropped", zap.String("conn_id", c.id))
	}
}
