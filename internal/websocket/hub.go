package websocket

import (
	"encoding/base64"
	"encoding/json"
	"fmt"
	"net/http"
	"strings"
	"sync"
	"time"

	ws "github.com/gorilla/websocket"
	"go.uber.org/zap"

	"github.com/caresight/docguard/internal/logger"
)

const (
	writeWait = 10 * time.Second
	pongWait  = 60 * time.Second
	// Must be less than pongWait.
	pingPeriod     = (pongWait * 9) / 10
	maxMessageSize = 512
)

var upgrader = ws.Upgrader{
	ReadBufferSize:  1024,
	WriteBufferSize: 1024,
	CheckOrigin: func(r *http.Request) bool {
		// Connections are gated by basic auth, not origin.
		return true
	},
}

// HubConfig controls which event types are broadcast and how monitoring
// clients authenticate.
type HubConfig struct {
	Enabled             bool   `yaml:"enabled" mapstructure:"enabled"`
	BroadcastDetections bool   `yaml:"broadcast_detections" mapstructure:"broadcast_detections"`
	BroadcastRouting    bool   `yaml:"broadcast_routing" mapstructure:"broadcast_routing"`
	BroadcastSystem     bool   `yaml:"broadcast_system" mapstructure:"broadcast_system"`
	BroadcastConnection bool   `yaml:"broadcast_connections" mapstructure:"broadcast_connections"`
	Username            string `yaml:"username" mapstructure:"username"`
	Password            string `yaml:"password" mapstructure:"password"`
}

// Hub maintains the set of monitoring clients and broadcasts privacy-safe
// events to them.
type Hub struct {
	clients    map[*Client]bool
	broadcast  chan Event
	register   chan *Client
	unregister chan *Client
	config     *HubConfig
	logger     *logger.Logger
	mu         sync.RWMutex
	stats      *HubStats
}

// HubStats tracks hub activity.
type HubStats struct {
	TotalConnections  int64
	ActiveConnections int64
	TotalMessages     int64
	TotalBroadcasts   int64
	LastBroadcastTime time.Time
}

// NewHub creates a hub. Call Run in a goroutine to start it.
func NewHub(config *HubConfig, log *logger.Logger) *Hub {
	return &Hub{
		clients:    make(map[*Client]bool),
		broadcast:  make(chan Event, 256),
		register:   make(chan *Client),
		unregister: make(chan *Client),
		config:     config,
		logger:     log,
		stats:      &HubStats{},
	}
}

// Run dispatches registration and broadcast traffic until the process exits.
func (h *Hub) Run() {
	h.logger.Info("Starting WebSocket hub")

	for {
		select {
		case client := <-h.register:
			h.registerClient(client)
		case client := <-h.unregister:
			h.unregisterClient(client)
		case event := <-h.broadcast:
			h.broadcastEvent(event)
		}
	}
}

func (h *Hub) registerClient(client *Client) {
	h.mu.Lock()
	defer h.mu.Unlock()

	h.clients[client] = true
	h.stats.TotalConnections++
	h.stats.ActiveConnections++

	h.logger.Info("Monitoring client connected",
		zap.String("client_id", client.ID),
		zap.Int64("active_connections", h.stats.ActiveConnections))

	h.BroadcastEvent(Event{
		Type:      EventTypeConnection,
		Timestamp: time.Now(),
		Data: ConnectionEvent{
			Action:   "connected",
			ClientID: client.ID,
		},
	})
}

func (h *Hub) unregisterClient(client *Client) {
	h.mu.Lock()
	defer h.mu.Unlock()

	if _, ok := h.clients[client]; ok {
		delete(h.clients, client)
		close(client.Send)
		h.stats.ActiveConnections--

		h.logger.Info("Monitoring client disconnected",
			zap.String("client_id", client.ID),
			zap.Int64("active_connections", h.stats.ActiveConnections))

		h.BroadcastEvent(Event{
			Type:      EventTypeConnection,
			Timestamp: time.Now(),
			Data: ConnectionEvent{
				Action:   "disconnected",
				ClientID: client.ID,
			},
		})
	}
}

func (h *Hub) broadcastEvent(event Event) {
	h.mu.Lock()
	defer h.mu.Unlock()

	h.stats.TotalBroadcasts++
	h.stats.LastBroadcastTime = time.Now()

	for client := range h.clients {
		if !h.shouldSendToClient(client, event) {
			continue
		}
		select {
		case client.Send <- event:
			h.stats.TotalMessages++
		default:
			h.logger.Warn("Client send channel full, closing connection",
				zap.String("client_id", client.ID))
			delete(h.clients, client)
			close(client.Send)
			h.stats.ActiveConnections--
		}
	}
}

func (h *Hub) shouldSendToClient(client *Client, event Event) bool {
	if client.Subscription == nil {
		return true
	}
	for _, eventType := range client.Subscription.Events {
		if eventType == event.Type {
			return true
		}
	}
	return false
}

// BroadcastEvent queues an event for all clients, subject to configuration.
// A full queue drops the event rather than blocking the request path.
func (h *Hub) BroadcastEvent(event Event) {
	if !h.shouldBroadcastEvent(event.Type) {
		return
	}

	select {
	case h.broadcast <- event:
	default:
		h.logger.Warn("Broadcast channel full, dropping event",
			zap.String("event_type", string(event.Type)))
	}
}

func (h *Hub) shouldBroadcastEvent(eventType EventType) bool {
	if h.config == nil || !h.config.Enabled {
		return false
	}

	switch eventType {
	case EventTypeDetection:
		return h.config.BroadcastDetections
	case EventTypeRouting:
		return h.config.BroadcastRouting
	case EventTypeSystemStatus:
		return h.config.BroadcastSystem
	case EventTypeConnection:
		return h.config.BroadcastConnection
	default:
		return false
	}
}

// HandleWebSocket upgrades an HTTP request into a monitoring session.
func (h *Hub) HandleWebSocket(w http.ResponseWriter, r *http.Request) {
	if h.config == nil {
		http.Error(w, "Monitoring disabled", http.StatusForbidden)
		return
	}
	auth := r.Header.Get("Authorization")
	if auth == "" {
		http.Error(w, "Unauthorized", http.StatusUnauthorized)
		return
	}
	typ, data, err := parseBasicAuth(auth)
	if err != nil || typ != "Basic" {
		http.Error(w, "Invalid auth", http.StatusUnauthorized)
		return
	}
	user, pass, ok := parseCredentials(data)
	if !ok || user != h.config.Username || pass != h.config.Password {
		http.Error(w, "Invalid credentials", http.StatusUnauthorized)
		return
	}

	conn, err := upgrader.Upgrade(w, r, nil)
	if err != nil {
		h.logger.Error("Failed to upgrade WebSocket connection", zap.Error(err))
		return
	}

	client := &Client{
		ID:          generateClientID(),
		Conn:        conn,
		Send:        make(chan Event, 256),
		ConnectedAt: time.Now(),
		LastPing:    time.Now(),
		IP:          clientIP(r),
		UserAgent:   r.UserAgent(),
	}

	h.register <- client

	go h.writePump(client)
	go h.readPump(client)
}

func (h *Hub) writePump(client *Client) {
	ticker := time.NewTicker(pingPeriod)
	defer func() {
		ticker.Stop()
		client.Conn.Close()
	}()

	for {
		select {
		case event, ok := <-client.Send:
			client.Conn.SetWriteDeadline(time.Now().Add(writeWait))
			if !ok {
				client.Conn.WriteMessage(ws.CloseMessage, []byte{})
				return
			}
			if err := client.Conn.WriteJSON(event); err != nil {
				h.logger.Error("Failed to write WebSocket message",
					zap.String("client_id", client.ID),
					zap.Error(err))
				return
			}

		case <-ticker.C:
			client.Conn.SetWriteDeadline(time.Now().Add(writeWait))
			if err := client.Conn.WriteMessage(ws.PingMessage, nil); err != nil {
				return
			}
		}
	}
}

func (h *Hub) readPump(client *Client) {
	defer func() {
		h.unregister <- client
		client.Conn.Close()
	}()

	client.Conn.SetReadLimit(maxMessageSize)
	client.Conn.SetReadDeadline(time.Now().Add(pongWait))
	client.Conn.SetPongHandler(func(string) error {
		client.LastPing = time.Now()
		client.Conn.SetReadDeadline(time.Now().Add(pongWait))
		return nil
	})

	for {
		var msg ClientMessage
		if err := client.Conn.ReadJSON(&msg); err != nil {
			if ws.IsUnexpectedCloseError(err, ws.CloseGoingAway, ws.CloseAbnormalClosure) {
				h.logger.Error("WebSocket error",
					zap.String("client_id", client.ID),
					zap.Error(err))
			}
			break
		}
		h.handleClientMessage(client, msg)
	}
}

func (h *Hub) handleClientMessage(client *Client, msg ClientMessage) {
	switch msg.Type {
	case "subscribe":
		data, ok := msg.Data.(map[string]interface{})
		if !ok {
			return
		}
		jsonData, _ := json.Marshal(data)
		var subscription SubscriptionRequest
		if err := json.Unmarshal(jsonData, &subscription); err == nil {
			client.Subscription = &subscription
			h.logger.Info("Client subscription updated",
				zap.String("client_id", client.ID))
		}
	case "ping":
		pong := Event{
			Type:      "pong",
			Timestamp: time.Now(),
			Data:      map[string]string{"message": "pong"},
		}
		select {
		case client.Send <- pong:
		default:
		}
	}
}

// GetStats returns current hub statistics.
func (h *Hub) GetStats() HubStats {
	h.mu.RLock()
	defer h.mu.RUnlock()

	stats := *h.stats
	stats.ActiveConnections = int64(len(h.clients))
	return stats
}

func generateClientID() string {
	return fmt.Sprintf("client_%d", time.Now().UnixNano())
}

func clientIP(r *http.Request) string {
	if xff := r.Header.Get("X-Forwarded-For"); xff != "" {
		return xff
	}
	if xri := r.Header.Get("X-Real-IP"); xri != "" {
		return xri
	}
	return r.RemoteAddr
}

func parseBasicAuth(auth string) (typ string, data string, err error) {
	parts := strings.SplitN(auth, " ", 2)
	if len(parts) != 2 {
		return "", "", fmt.Errorf("invalid auth format")
	}
	return parts[0], parts[1], nil
}

func parseCredentials(data string) (string, string, bool) {
	decoded, err := base64.StdEncoding.DecodeString(data)
	if err != nil {
		return "", "", false
	}
	parts := strings.SplitN(string(decoded), ":", 2)
	if len(parts) != 2 {
		return "", "", false
	}
	return parts[0], parts[1], true
}
