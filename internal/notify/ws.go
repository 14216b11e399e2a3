package notify

import (
	"encoding/json"
	"net/http"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/gorilla/websocket"
	"go.uber.org/zap"
)

const readTimeout = 5 * time.Minute

// Frame is the JSON notification pushed on a live channel.
type Frame struct {
	Type      string    `json:"type"`
	TaskTitle string    `json:"task_title,omitempty"`
	FireAt    time.Time `json:"fire_at,omitempty"`
	Message   string    `json:"message,omitempty"`
	Timestamp time.Time `json:"timestamp"`
}

// WSHandler upgrades client sessions into live delivery channels.
type WSHandler struct {
	registry *Registry
	secret   string
	logger   *zap.Logger
	upgrader websocket.Upgrader
}

func NewWSHandler(registry *Registry, jwtSecret string, logger *zap.Logger) *WSHandler {
	return &WSHandler{
		registry: registry,
		secret:   jwtSecret,
		logger:   logger,
		upgrader: websocket.Upgrader{
			ReadBufferSize:  1024,
			WriteBufferSize: 1024,
			CheckOrigin:     func(r *http.Request) bool { return true },
		},
	}
}

func (h *WSHandler) Register(r *gin.Engine) {
	r.GET("/ws", h.Serve)
}

// Serve authenticates the client, registers the connection and runs the
// read loop until the client goes away. The server has no required
// client-initiated verbs beyond liveness pings, which get a pong frame.
func (h *WSHandler) Serve(c *gin.Context) {
	token := extractToken(c.Request)
	if token == "" {
		c.JSON(401, gin.H{"error": "missing token"})
		return
	}

	userID, err := parseJWT(token, h.secret)
	if err != nil {
		h.logger.Warn("Rejected live channel: invalid token", zap.Error(err))
		c.JSON(401, gin.H{"error": "invalid token"})
		return
	}

	ws, err := h.upgrader.Upgrade(c.Writer, c.Request, nil)
	if err != nil {
		h.logger.Error("WebSocket upgrade failed",
			zap.Int64("user_id", userID),
			zap.Error(err),
		)
		return
	}

	conn := newConn(userID, ws, h.registry, h.logger)
	h.registry.Add(userID, conn)
	go conn.writePump()

	defer conn.close()
	for {
		_ = ws.SetReadDeadline(time.Now().Add(readTimeout))
		if _, _, err := ws.ReadMessage(); err != nil {
			return
		}
		// Any client message is treated as a liveness ping.
		pong, _ := json.Marshal(Frame{Type: "pong", Timestamp: time.Now().UTC()})
		conn.Enqueue(pong)
	}
}
