package api

import (
	"context"
	"encoding/json"
	"net/http"
	"sync"
	"time"

	"github.com/gorilla/websocket"

	"github.com/Kalashnok/fire-alarm/internal/infrastructure/logging"
	"github.com/Kalashnok/fire-alarm/internal/monitor"
)

// WebSocket constants.
const (
	WSTypeEvent = "event"
	WSTypePing  = "ping"
	WSTypePong  = "pong"

	// wsSendBufferSize is the per-client outbound message buffer size.
	wsSendBufferSize = 64

	// wsWriteTimeout bounds a single write to a client.
	wsWriteTimeout = 10 * time.Second

	// wsPongWait is how long to wait for a pong before dropping the client.
	wsPongWait = 60 * time.Second
)

// WSMessage represents a message sent to/from a WebSocket client.
type WSMessage struct {
	Type      string `json:"type"`
	EventType string `json:"event_type,omitempty"`
	Timestamp string `json:"timestamp,omitempty"`
	Payload   any    `json:"payload,omitempty"`
}

// Hub manages WebSocket connections and broadcasts alarm notifications.
// It implements monitor.Notifier.
type Hub struct {
	logger  *logging.Logger
	clients map[*wsClient]struct{}
	mu      sync.RWMutex
}

// wsClient represents a connected WebSocket client.
type wsClient struct {
	hub  *Hub
	conn *websocket.Conn
	send chan []byte
}

// upgrader configures the WebSocket upgrader.
var upgrader = websocket.Upgrader{
	ReadBufferSize:  1024,
	WriteBufferSize: 1024,
	CheckOrigin: func(_ *http.Request) bool {
		// Origin checking is handled by CORS middleware
		return true
	},
}

// NewHub creates a new WebSocket hub.
func NewHub(logger *logging.Logger) *Hub {
	return &Hub{
		logger:  logger,
		clients: make(map[*wsClient]struct{}),
	}
}

// Run blocks until the context is cancelled, then closes all clients.
func (h *Hub) Run(ctx context.Context) {
	<-ctx.Done()
	h.closeAll()
}

// Notify broadcasts a new alarm notification to every connected client.
// Satisfies monitor.Notifier; invoked by the session after state commit.
func (h *Hub) Notify(n monitor.Notification) {
	h.Broadcast("alarm", n)
}

// Broadcast sends an event to all connected clients. A client whose send
// buffer is full is skipped rather than blocking the broadcast.
func (h *Hub) Broadcast(eventType string, payload any) {
	msg := WSMessage{
		Type:      WSTypeEvent,
		EventType: eventType,
		Timestamp: time.Now().UTC().Format(time.RFC3339),
		Payload:   payload,
	}

	data, err := json.Marshal(msg)
	if err != nil {
		h.logger.Error("failed to marshal broadcast message", "error", err)
		return
	}

	h.mu.RLock()
	clients := make([]*wsClient, 0, len(h.clients))
	for client := range h.clients {
		clients = append(clients, client)
	}
	h.mu.RUnlock()

	for _, client := range clients {
		select {
		case client.send <- data:
		default:
			h.logger.Warn("websocket client send buffer full, dropping event")
		}
	}
}

// ClientCount returns the number of connected clients.
func (h *Hub) ClientCount() int {
	h.mu.RLock()
	defer h.mu.RUnlock()
	return len(h.clients)
}

// register adds a client to the hub.
func (h *Hub) register(client *wsClient) {
	h.mu.Lock()
	h.clients[client] = struct{}{}
	h.mu.Unlock()
	h.logger.Debug("websocket client connected", "clients", h.ClientCount())
}

// unregister removes a client from the hub.
// Only the goroutine that removes the client from the map closes the send
// channel, preventing double-close panics during shutdown.
func (h *Hub) unregister(client *wsClient) {
	h.mu.Lock()
	_, existed := h.clients[client]
	delete(h.clients, client)
	h.mu.Unlock()

	if existed {
		close(client.send)
	}
	h.logger.Debug("websocket client disconnected", "clients", h.ClientCount())
}

// closeAll disconnects every client.
func (h *Hub) closeAll() {
	h.mu.Lock()
	clients := make([]*wsClient, 0, len(h.clients))
	for client := range h.clients {
		clients = append(clients, client)
	}
	h.clients = make(map[*wsClient]struct{})
	h.mu.Unlock()

	for _, client := range clients {
		close(client.send)
		client.conn.Close() //nolint:errcheck // Already shutting down
	}
}

// handleWebSocket upgrades the connection and starts the client pumps.
func (s *Server) handleWebSocket(w http.ResponseWriter, r *http.Request) {
	conn, err := upgrader.Upgrade(w, r, nil)
	if err != nil {
		s.logger.Warn("websocket upgrade failed", "error", err)
		return
	}

	client := &wsClient{
		hub:  s.hub,
		conn: conn,
		send: make(chan []byte, wsSendBufferSize),
	}
	s.hub.register(client)

	go client.writePump()
	go client.readPump()
}

// readPump consumes client messages. Clients only send ping keepalives;
// everything else is ignored. Exit unregisters the client.
func (c *wsClient) readPump() {
	defer func() {
		c.hub.unregister(c)
		c.conn.Close() //nolint:errcheck // Connection teardown
	}()

	c.conn.SetReadLimit(maxRequestBodySize)
	_ = c.conn.SetReadDeadline(time.Now().Add(wsPongWait))

	for {
		_, data, err := c.conn.ReadMessage()
		if err != nil {
			return
		}
		_ = c.conn.SetReadDeadline(time.Now().Add(wsPongWait))

		var msg WSMessage
		if err := json.Unmarshal(data, &msg); err != nil {
			continue
		}
		if msg.Type == WSTypePing {
			pong, _ := json.Marshal(WSMessage{Type: WSTypePong})
			select {
			case c.send <- pong:
			default:
			}
		}
	}
}

// writePump pushes queued messages to the client connection.
func (c *wsClient) writePump() {
	for data := range c.send {
		_ = c.conn.SetWriteDeadline(time.Now().Add(wsWriteTimeout))
		if err := c.conn.WriteMessage(websocket.TextMessage, data); err != nil {
			return
		}
	}
	// Send channel closed: hub is dropping this client.
	_ = c.conn.WriteControl(websocket.CloseMessage,
		websocket.FormatCloseMessage(websocket.CloseNormalClosure, ""),
		time.Now().Add(wsWriteTimeout))
}
