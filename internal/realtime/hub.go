// Package realtime pushes slot and lot events to websocket clients.
package realtime

import (
	"encoding/json"
	"errors"
	"log/slog"
	"sync"

	"github.com/mynul56/smart-parking-ai/internal/logging"
)

var ErrUnknownConnection = errors.New("unknown connection")

// Frame is the envelope of every websocket message in both directions.
type Frame struct {
	Event string `json:"event"`
	Data  any    `json:"data,omitempty"`
}

// Hub tracks live connections and delivers frames to them. Delivery is
// best effort: a client whose send buffer is full is disconnected instead of
// slowing everybody else down.
type Hub struct {
	registry Registry

	mu      sync.RWMutex
	clients map[string]*Client
}

func NewHub(registry Registry) *Hub {
	return &Hub{registry: registry, clients: make(map[string]*Client)}
}

func (h *Hub) register(c *Client) {
	h.mu.Lock()
	h.clients[c.id] = c
	n := len(h.clients)
	h.mu.Unlock()
	logging.Info(c.ctx, "websocket client connected",
		slog.String("conn_id", c.id),
		slog.Int("user_id", c.principal.UserID),
		slog.Int("connections", n),
	)
}

// unregister is idempotent; it closes the client's send channel, which
// makes the write pump close the socket.
func (h *Hub) unregister(c *Client) {
	h.mu.Lock()
	_, ok := h.clients[c.id]
	if ok {
		delete(h.clients, c.id)
		close(c.send)
	}
	n := len(h.clients)
	h.mu.Unlock()
	if !ok {
		return
	}
	h.registry.RemoveConn(c.id)
	logging.Info(c.ctx, "websocket client disconnected",
		slog.String("conn_id", c.id),
		slog.Int("connections", n),
	)
}

// Subscribe holds h.mu while adding so that unregister, which takes the
// write lock, cannot remove the connection in between.
func (h *Hub) Subscribe(connID string, lotID int) error {
	h.mu.RLock()
	defer h.mu.RUnlock()
	if _, ok := h.clients[connID]; !ok {
		return ErrUnknownConnection
	}
	h.registry.Add(connID, lotID)
	return nil
}

func (h *Hub) Unsubscribe(connID string, lotID int) {
	h.registry.Remove(connID, lotID)
}

// Publish sends a frame to the connections subscribed to lotID.
func (h *Hub) Publish(lotID int, event string, data any) {
	msg, ok := encode(event, data)
	if !ok {
		return
	}
	h.deliver(h.registry.Subscribers(lotID), msg)
}

// Broadcast sends a frame to every connection.
func (h *Hub) Broadcast(event string, data any) {
	msg, ok := encode(event, data)
	if !ok {
		return
	}
	h.deliver(nil, msg)
}

// deliver sends msg to ids, or to everyone when ids is nil.
func (h *Hub) deliver(ids []string, msg []byte) {
	var slow []*Client
	h.mu.RLock()
	if ids == nil {
		for _, c := range h.clients {
			if !c.trySend(msg) {
				slow = append(slow, c)
			}
		}
	} else {
		for _, id := range ids {
			if c, ok := h.clients[id]; ok && !c.trySend(msg) {
				slow = append(slow, c)
			}
		}
	}
	h.mu.RUnlock()

	for _, c := range slow {
		logging.Warn(c.ctx, "dropping slow websocket client", slog.String("conn_id", c.id))
		h.unregister(c)
	}
}

func (h *Hub) ConnectionCount() int {
	h.mu.RLock()
	defer h.mu.RUnlock()
	return len(h.clients)
}

func encode(event string, data any) ([]byte, bool) {
	msg, err := json.Marshal(Frame{Event: event, Data: data})
	if err != nil {
		slog.Error("could not encode websocket frame", slog.String("event", event), logging.Err(err))
		return nil, false
	}
	return msg, true
}
