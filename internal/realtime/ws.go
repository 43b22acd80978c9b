package realtime

import (
	"context"
	"net/http"
	"strings"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/google/uuid"
	"github.com/gorilla/websocket"

	"github.com/mynul56/smart-parking-ai/internal/domain"
	"github.com/mynul56/smart-parking-ai/internal/logging"
)

var upgrader = websocket.Upgrader{
	ReadBufferSize:  1024,
	WriteBufferSize: 1024,
	CheckOrigin: func(r *http.Request) bool {
		return true
	},
}

type TokenValidator interface {
	ValidateToken(token string) (*domain.Principal, error)
}

type HandlerOptions struct {
	SendBuffer   int
	PingInterval time.Duration
	// Lots, when set, rejects subscriptions to lots that do not exist.
	Lots LotChecker
}

type Handler struct {
	hub  *Hub
	auth TokenValidator
	opts HandlerOptions
}

func NewHandler(hub *Hub, auth TokenValidator, opts HandlerOptions) *Handler {
	if opts.SendBuffer <= 0 {
		opts.SendBuffer = 64
	}
	if opts.PingInterval <= 0 {
		opts.PingInterval = 30 * time.Second
	}
	return &Handler{hub: hub, auth: auth, opts: opts}
}

// ServeWS authenticates the request and upgrades it. The token is read from
// the "token" query parameter, which browsers can set, or a bearer header.
func (h *Handler) ServeWS(c *gin.Context) {
	token := c.Query("token")
	if token == "" {
		fields := strings.Fields(c.GetHeader("Authorization"))
		if len(fields) == 2 && strings.EqualFold(fields[0], "Bearer") {
			token = fields[1]
		}
	}
	if token == "" {
		c.AbortWithStatusJSON(http.StatusUnauthorized, gin.H{"error": "missing access token"})
		return
	}
	principal, err := h.auth.ValidateToken(token)
	if err != nil {
		c.AbortWithStatusJSON(http.StatusUnauthorized, gin.H{"error": "invalid or expired token"})
		return
	}

	conn, err := upgrader.Upgrade(c.Writer, c.Request, nil)
	if err != nil {
		logging.Warn(c.Request.Context(), "websocket upgrade failed", logging.Err(err))
		return
	}

	client := &Client{
		id:           uuid.NewString(),
		principal:    *principal,
		hub:          h.hub,
		conn:         conn,
		send:         make(chan []byte, h.opts.SendBuffer),
		lots:         h.opts.Lots,
		ctx:          context.WithoutCancel(c.Request.Context()),
		pingInterval: h.opts.PingInterval,
	}
	h.hub.register(client)

	go client.writePump()
	go client.readPump()
}
