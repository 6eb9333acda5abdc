package websocket

import (
	"encoding/json"
	"net/http"
	"sync"
	"time"

	"github.com/gorilla/websocket"
	"go.uber.org/zap"
)

const writeWait = 10 * time.Second

// WebSocketManager manages WebSocket connections for real-time job updates.
// Each connection belongs to one authenticated user.
type WebSocketManager struct {
	connections map[*websocket.Conn]*client
	mutex       sync.RWMutex
	upgrader    websocket.Upgrader
	logger      *zap.Logger
}

type client struct {
	userID string
	// gorilla connections support one concurrent writer
	writeMu sync.Mutex
}

// WSMessage represents a WebSocket message
type WSMessage struct {
	Type      string      `json:"type"`
	Timestamp time.Time   `json:"timestamp"`
	Data      interface{} `json:"data"`
	ID        string      `json:"id,omitempty"`
}

// NewWebSocketManager creates a new WebSocket manager. allowedOrigin "*"
// accepts any origin.
func NewWebSocketManager(allowedOrigin string, logger *zap.Logger) *WebSocketManager {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &WebSocketManager{
		connections: make(map[*websocket.Conn]*client),
		upgrader: websocket.Upgrader{
			CheckOrigin: func(r *http.Request) bool {
				origin := r.Header.Get("Origin")
				return allowedOrigin == "*" || origin == "" || origin == allowedOrigin
			},
		},
		logger: logger.Named("websocket"),
	}
}

// HandleConnection upgrades the request and serves the connection until the
// client goes away.
func (wsm *WebSocketManager) HandleConnection(w http.ResponseWriter, r *http.Request, userID string) {
	conn, err := wsm.upgrader.Upgrade(w, r, nil)
	if err != nil {
		wsm.logger.Warn("failed to upgrade connection", zap.Error(err))
		return
	}
	defer conn.Close()
	// Clear the deadline inherited from the HTTP server's read timeout.
	conn.SetReadDeadline(time.Time{})

	c := &client{userID: userID}
	wsm.mutex.Lock()
	wsm.connections[conn] = c
	wsm.mutex.Unlock()
	wsm.logger.Debug("client connected", zap.String("user_id", userID))

	wsm.sendMessage(conn, c, WSMessage{
		Type:      "connected",
		Timestamp: time.Now(),
		Data:      map[string]interface{}{"user_id": userID},
	})

	for {
		_, message, err := conn.ReadMessage()
		if err != nil {
			if websocket.IsUnexpectedCloseError(err, websocket.CloseGoingAway, websocket.CloseAbnormalClosure) {
				wsm.logger.Warn("websocket error", zap.Error(err))
			}
			break
		}

		var data map[string]interface{}
		if err := json.Unmarshal(message, &data); err != nil {
			continue
		}
		if msgType, _ := data["type"].(string); msgType == "ping" {
			wsm.sendMessage(conn, c, WSMessage{
				Type:      "pong",
				Timestamp: time.Now(),
				Data:      map[string]interface{}{"status": "ok"},
			})
		}
	}

	wsm.mutex.Lock()
	delete(wsm.connections, conn)
	wsm.mutex.Unlock()
	wsm.logger.Debug("client disconnected", zap.String("user_id", userID))
}

// BroadcastMessage broadcasts a message to all connected clients
func (wsm *WebSocketManager) BroadcastMessage(msgType string, data interface{}) {
	wsm.deliver(func(*client) bool { return true }, msgType, data)
}

// SendToUser sends a message to every connection of one user
func (wsm *WebSocketManager) SendToUser(userID, msgType string, data interface{}) {
	wsm.deliver(func(c *client) bool { return c.userID == userID }, msgType, data)
}

func (wsm *WebSocketManager) deliver(match func(*client) bool, msgType string, data interface{}) {
	type target struct {
		conn *websocket.Conn
		c    *client
	}
	wsm.mutex.RLock()
	targets := make([]target, 0, len(wsm.connections))
	for conn, c := range wsm.connections {
		if match(c) {
			targets = append(targets, target{conn, c})
		}
	}
	wsm.mutex.RUnlock()

	message := WSMessage{Type: msgType, Timestamp: time.Now(), Data: data}
	for _, t := range targets {
		wsm.sendMessage(t.conn, t.c, message)
	}
}

// sendMessage sends a message to a specific connection
func (wsm *WebSocketManager) sendMessage(conn *websocket.Conn, c *client, message WSMessage) {
	data, err := json.Marshal(message)
	if err != nil {
		wsm.logger.Error("failed to marshal websocket message", zap.Error(err))
		return
	}

	c.writeMu.Lock()
	conn.SetWriteDeadline(time.Now().Add(writeWait))
	err = conn.WriteMessage(websocket.TextMessage, data)
	c.writeMu.Unlock()
	if err != nil {
		wsm.logger.Debug("failed to send websocket message", zap.Error(err))
		wsm.mutex.Lock()
		delete(wsm.connections, conn)
		wsm.mutex.Unlock()
	}
}

// GetConnectionCount returns the number of active connections
func (wsm *WebSocketManager) GetConnectionCount() int {
	wsm.mutex.RLock()
	defer wsm.mutex.RUnlock()
	return len(wsm.connections)
}

// CloseAll closes every connection, used on shutdown
func (wsm *WebSocketManager) CloseAll() {
	wsm.mutex.Lock()
	defer wsm.mutex.Unlock()
	for conn := range wsm.connections {
		conn.WriteControl(websocket.CloseMessage,
			websocket.FormatCloseMessage(websocket.CloseGoingAway, "server shutting down"),
			time.Now().Add(time.Second))
		conn.Close()
		delete(wsm.connections, conn)
	}
}
