package services

import (
	"encoding/json"
	"log"
	"sync"

	"github.com/gorilla/websocket"

	"relay-backend/internal/events"
	"relay-backend/internal/metrics"
)

// PushService fans user operation status transitions out to connected
// websocket clients.
type PushService struct {
	mu      sync.Mutex
	clients map[*websocket.Conn]struct{}
}

func NewPushService() *PushService {
	return &PushService{
		clients: make(map[*websocket.Conn]struct{}),
	}
}

// Register adds a websocket connection to the broadcast set.
func (s *PushService) Register(conn *websocket.Conn) {
	s.mu.Lock()
	s.clients[conn] = struct{}{}
	count := len(s.clients)
	s.mu.Unlock()

	metrics.WebSocketConnections.Set(float64(count))
	log.Printf("🔌 WebSocket client connected (%d active)", count)
}

// Unregister removes a connection and closes it.
func (s *PushService) Unregister(conn *websocket.Conn) {
	s.mu.Lock()
	delete(s.clients, conn)
	count := len(s.clients)
	s.mu.Unlock()

	conn.Close()
	metrics.WebSocketConnections.Set(float64(count))
	log.Printf("🔌 WebSocket client disconnected (%d active)", count)
}

// PushUserOpStatus broadcasts a status transition to every client. Clients
// whose write fails are dropped.
func (s *PushService) PushUserOpStatus(evt events.UserOpStatusEvent) {
	payload, err := json.Marshal(map[string]interface{}{
		"type": "userop_status",
		"data": evt,
	})
	if err != nil {
		log.Printf("⚠️ Failed to encode push payload: %v", err)
		return
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	for conn := range s.clients {
		if err := conn.WriteMessage(websocket.TextMessage, payload); err != nil {
			delete(s.clients, conn)
			conn.Close()
		}
	}
	metrics.WebSocketConnections.Set(float64(len(s.clients)))
}

// Count returns the number of connected clients.
func (s *PushService) Count() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return len(s.clients)
}
