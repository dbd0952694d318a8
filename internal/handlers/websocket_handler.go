package handlers

import (
	"net/http"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/gorilla/websocket"
	"github.com/sirupsen/logrus"

	"relay-backend/internal/services"
)

var upgrader = websocket.Upgrader{
	ReadBufferSize:  1024,
	WriteBufferSize: 1024,
	// Browser clients connect from the frontend origin; CORS is enforced
	// at the HTTP layer before the upgrade.
	CheckOrigin: func(r *http.Request) bool { return true },
}

// WebSocketHandler upgrades clients onto the user operation status stream.
type WebSocketHandler struct {
	push   *services.PushService
	logger *logrus.Logger
}

func NewWebSocketHandler(push *services.PushService, logger *logrus.Logger) *WebSocketHandler {
	return &WebSocketHandler{
		push:   push,
		logger: logger,
	}
}

// StreamHandler GET /ws/userops
func (h *WebSocketHandler) StreamHandler(c *gin.Context) {
	conn, err := upgrader.Upgrade(c.Writer, c.Request, nil)
	if err != nil {
		h.logger.WithError(err).Warn("WebSocket upgrade failed")
		return
	}

	h.push.Register(conn)

	// Reader loop: we only care about close and pong frames, but a reader
	// must drain the connection for the close handshake to work.
	go func() {
		defer h.push.Unregister(conn)

		conn.SetReadLimit(1024)
		conn.SetReadDeadline(time.Now().Add(120 * time.Second))
		conn.SetPongHandler(func(string) error {
			conn.SetReadDeadline(time.Now().Add(120 * time.Second))
			return nil
		})

		for {
			if _, _, err := conn.ReadMessage(); err != nil {
				return
			}
		}
	}()
}
