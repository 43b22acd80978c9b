package realtime

import (
	"context"
	"encoding/json"
	"fmt"
	"log/slog"
	"time"

	"github.com/gorilla/websocket"

	"github.com/mynul56/smart-parking-ai/internal/domain"
	"github.com/mynul56/smart-parking-ai/internal/logging"
)

const (
	writeWait      = 10 * time.Second
	maxMessageSize = 4096
)

// Client events sent by browsers.
const (
	eventSubscribe   = "subscribe"
	eventUnsubscribe = "unsubscribe"
	eventPing        = "ping"
)

// Replies sent by the server.
const (
	eventSubscribed   = "subscribed"
	eventUnsubscribed = "unsubscribed"
	eventPong         = "pong"
	eventError        = "error"
)

type inboundFrame struct {
	Event string          `json:"event"`
	Data  json.RawMessage `json:"data"`
}

// Subscription names the channel a client joins; only "lot" exists today.
type Subscription struct {
	Type string `json:"type"`
	ID   int    `json:"id"`
}

type LotChecker interface {
	FindByID(ctx context.Context, id int) (*domain.ParkingLot, error)
}

type Client struct {
	id        string
	principal domain.Principal
	hub       *Hub
	conn      *websocket.Conn
	send      chan []byte
	lots      LotChecker
	ctx       context.Context

	pingInterval time.Duration
}

func (c *Client) trySend(msg []byte) bool {
	select {
	case c.send <- msg:
		return true
	default:
		return false
	}
}

func (c *Client) reply(event string, data any) {
	msg, ok := encode(event, data)
	if !ok {
		return
	}
	c.hub.mu.RLock()
	defer c.hub.mu.RUnlock()
	if _, live := c.hub.clients[c.id]; live {
		c.trySend(msg)
	}
}

func (c *Client) replyError(msg string) {
	c.reply(eventError, map[string]string{"message": msg})
}

// readPump handles client frames until the socket fails, then unregisters.
func (c *Client) readPump() {
	defer func() {
		c.hub.unregister(c)
		c.conn.Close()
	}()

	pongWait := c.pingInterval * 2
	c.conn.SetReadLimit(maxMessageSize)
	_ = c.conn.SetReadDeadline(time.Now().Add(pongWait))
	c.conn.SetPongHandler(func(string) error {
		return c.conn.SetReadDeadline(time.Now().Add(pongWait))
	})

	for {
		_, raw, err := c.conn.ReadMessage()
		if err != nil {
			if websocket.IsUnexpectedCloseError(err, websocket.CloseGoingAway, websocket.CloseNormalClosure, websocket.CloseAbnormalClosure) {
				logging.Warn(c.ctx, "websocket read failed", slog.String("conn_id", c.id), logging.Err(err))
			}
			return
		}
		_ = c.conn.SetReadDeadline(time.Now().Add(pongWait))
		c.handle(raw)
	}
}

func (c *Client) handle(raw []byte) {
	var in inboundFrame
	if err := json.Unmarshal(raw, &in); err != nil {
		c.replyError("malformed frame")
		return
	}

	switch in.Event {
	case eventPing:
		c.reply(eventPong, map[string]time.Time{"timestamp": time.Now().UTC()})
	case eventSubscribe, eventUnsubscribe:
		sub, err := c.parseSubscription(in.Data)
		if err != nil {
			c.replyError(err.Error())
			return
		}
		if in.Event == eventUnsubscribe {
			c.hub.Unsubscribe(c.id, sub.ID)
			c.reply(eventUnsubscribed, sub)
			return
		}
		if c.lots != nil {
			if _, err := c.lots.FindByID(c.ctx, sub.ID); err != nil {
				c.replyError(fmt.Sprintf("lot %d not found", sub.ID))
				return
			}
		}
		if err := c.hub.Subscribe(c.id, sub.ID); err != nil {
			return
		}
		c.reply(eventSubscribed, sub)
	default:
		c.replyError(fmt.Sprintf("unknown event %q", in.Event))
	}
}

func (c *Client) parseSubscription(data json.RawMessage) (Subscription, error) {
	var sub Subscription
	if err := json.Unmarshal(data, &sub); err != nil {
		return sub, fmt.Errorf("malformed subscription")
	}
	if sub.Type != "lot" {
		return sub, fmt.Errorf("unsupported subscription type %q", sub.Type)
	}
	if sub.ID <= 0 {
		return sub, fmt.Errorf("subscription id must be positive")
	}
	return sub, nil
}

// writePump is the only writer on the socket. It exits when the hub closes
// the send channel or a write fails.
func (c *Client) writePump() {
	ticker := time.NewTicker(c.pingInterval)
	defer func() {
		ticker.Stop()
		c.conn.Close()
	}()

	for {
		select {
		case msg, ok := <-c.send:
			_ = c.conn.SetWriteDeadline(time.Now().Add(writeWait))
			if !ok {
				_ = c.conn.WriteMessage(websocket.CloseMessage, []byte{})
				return
			}
			if err := c.conn.WriteMessage(websocket.TextMessage, msg); err != nil {
				return
			}
		case <-ticker.C:
			_ = c.conn.SetWriteDeadline(time.Now().Add(writeWait))
			if err := c.conn.WriteMessage(websocket.PingMessage, nil); err != nil {
				return
			}
		}
	}
}
