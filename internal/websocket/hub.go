// Package websocket is the realtime change-feed: one hub keyed by profile id
// that fans call, message, friendship and notification events out to every
// connection a profile has open.
package websocket

import (
	"context"
	"encoding/json"
	"fmt"
	"sync"
	"sync/atomic"

	"github.com/orkutrevival/backend/internal/logger"
	"github.com/orkutrevival/backend/internal/metrics"
	"go.uber.org/zap"
)

// Hub maintains the set of active clients and routes messages to them
type Hub struct {
	clients    map[string]map[*Client]struct{}
	allClients map[*Client]struct{}

	register   chan *Client
	unregister chan *Client
	unicast    chan *UnicastMessage

	mu sync.RWMutex

	metrics *Metrics

	ctx    context.Context
	cancel context.CancelFunc
	done   chan struct{}

	handlers map[string]MessageHandler

	rateLimitConfig RateLimitConfig

	// Called from the hub loop when a profile's first connection opens or
	// its last one closes
	onOnline  func(userID string)
	onOffline func(userID string)
}

// Metrics tracks WebSocket statistics
type Metrics struct {
	TotalConnections   atomic.Int64
	ActiveConnections  atomic.Int64
	MessagesReceived   atomic.Int64
	MessagesSent       atomic.Int64
	Errors             atomic.Int64
	ConnectionsDropped atomic.Int64
}

// RateLimitConfig bounds inbound frames per connection
type RateLimitConfig struct {
	MaxMessagesPerSecond int
	BurstSize            int
}

// DefaultRateLimitConfig allows 10 frames/s with bursts of 20
func DefaultRateLimitConfig() RateLimitConfig {
	return RateLimitConfig{
		MaxMessagesPerSecond: 10,
		BurstSize:            20,
	}
}

// UnicastMessage is a message targeted at a specific profile
type UnicastMessage struct {
	UserID  string
	Message *Message
}

// MessageHandler processes inbound messages of one type
type MessageHandler func(client *Client, message *Message) error

// NewHub creates a hub. Call Run in its own goroutine.
func NewHub() *Hub {
	ctx, cancel := context.WithCancel(context.Background())
	return &Hub{
		clients:         make(map[string]map[*Client]struct{}),
		allClients:      make(map[*Client]struct{}),
		register:        make(chan *Client, 256),
		unregister:      make(chan *Client, 256),
		unicast:         make(chan *UnicastMessage, 256),
		metrics:         &Metrics{},
		ctx:             ctx,
		cancel:          cancel,
		done:            make(chan struct{}),
		handlers:        make(map[string]MessageHandler),
		rateLimitConfig: DefaultRateLimitConfig(),
	}
}

// RegisterHandler routes inbound messages of msgType to handler
func (h *Hub) RegisterHandler(msgType string, handler MessageHandler) {
	h.mu.Lock()
	defer h.mu.Unlock()
	h.handlers[msgType] = handler
	logger.Log.Debug("Registered websocket handler", zap.String("type", msgType))
}

// GetHandler returns the handler for a message type
func (h *Hub) GetHandler(msgType string) (MessageHandler, bool) {
	h.mu.RLock()
	defer h.mu.RUnlock()
	handler, ok := h.handlers[msgType]
	return handler, ok
}

// SetPresenceHooks installs the online/offline callbacks. The hooks run on
// their own goroutine so they may block on the database.
func (h *Hub) SetPresenceHooks(online, offline func(userID string)) {
	h.mu.Lock()
	defer h.mu.Unlock()
	h.onOnline = online
	h.onOffline = offline
}

// Run is the hub's event loop
func (h *Hub) Run() {
	logger.Log.Info("WebSocket hub starting")
	defer close(h.done)

	for {
		select {
		case <-h.ctx.Done():
			h.shutdown()
			return

		case client := <-h.register:
			h.registerClient(client)

		case client := <-h.unregister:
			h.unregisterClient(client)

		case unicast := <-h.unicast:
			h.sendToUser(unicast.UserID, unicast.Message)
		}
	}
}

func (h *Hub) registerClient(client *Client) {
	h.mu.Lock()
	first := len(h.clients[client.UserID]) == 0
	if h.clients[client.UserID] == nil {
		h.clients[client.UserID] = make(map[*Client]struct{})
	}
	h.clients[client.UserID][client] = struct{}{}
	h.allClients[client] = struct{}{}
	hook := h.onOnline
	h.mu.Unlock()

	h.metrics.TotalConnections.Add(1)
	h.metrics.ActiveConnections.Add(1)
	metrics.Get().WebSocketConnections.Inc()

	logger.Log.Info("WebSocket client connected",
		logger.WithUserID(client.UserID),
		zap.Int64("active", h.metrics.ActiveConnections.Load()))

	if first && hook != nil {
		go hook(client.UserID)
	}
}

func (h *Hub) unregisterClient(client *Client) {
	h.mu.Lock()
	if _, ok := h.allClients[client]; !ok {
		h.mu.Unlock()
		return
	}
	delete(h.allClients, client)

	last := false
	if clients, ok := h.clients[client.UserID]; ok {
		delete(clients, client)
		if len(clients) == 0 {
			delete(h.clients, client.UserID)
			last = true
		}
	}
	client.closeSend()
	hook := h.onOffline
	h.mu.Unlock()

	h.metrics.ActiveConnections.Add(-1)
	metrics.Get().WebSocketConnections.Dec()

	logger.Log.Info("WebSocket client disconnected",
		logger.WithUserID(client.UserID),
		zap.Int64("active", h.metrics.ActiveConnections.Load()))

	if last && hook != nil {
		go hook(client.UserID)
	}
}

// sendToUser writes to every connection of userID. A connection whose buffer
// is full is dropped rather than stalling the hub.
func (h *Hub) sendToUser(userID string, message *Message) {
	data, err := json.Marshal(message)
	if err != nil {
		logger.Log.Error("Failed to marshal websocket message",
			zap.String("type", message.Type), zap.Error(err))
		return
	}

	h.mu.RLock()
	defer h.mu.RUnlock()

	clients, ok := h.clients[userID]
	if !ok || len(clients) == 0 {
		return
	}

	for client := range clients {
		select {
		case client.send <- data:
			h.metrics.MessagesSent.Add(1)
			metrics.Get().WebSocketMessagesSent.WithLabelValues(message.Type).Inc()
		default:
			h.metrics.ConnectionsDropped.Add(1)
			go h.Unregister(client)
		}
	}
}

// SendToUser queues message for every connection of userID
func (h *Hub) SendToUser(userID string, message *Message) {
	select {
	case h.unicast <- &UnicastMessage{UserID: userID, Message: message}:
	case <-h.ctx.Done():
	}
}

// Notify pushes an event to a profile. It is the hook other packages use to
// publish state changes.
func (h *Hub) Notify(userID, eventType string, payload interface{}) {
	if userID == "" {
		return
	}
	h.SendToUser(userID, NewMessage(eventType, payload))
}

// Register adds a client to the hub
func (h *Hub) Register(client *Client) {
	select {
	case h.register <- client:
	case <-h.ctx.Done():
	}
}

// Unregister removes a client from the hub
func (h *Hub) Unregister(client *Client) {
	select {
	case h.unregister <- client:
	case <-h.ctx.Done():
	}
}

// IsUserOnline reports whether userID has any open connection
func (h *Hub) IsUserOnline(userID string) bool {
	h.mu.RLock()
	defer h.mu.RUnlock()
	return len(h.clients[userID]) > 0
}

// GetUserConnectionCount returns the number of connections for a profile
func (h *Hub) GetUserConnectionCount(userID string) int {
	h.mu.RLock()
	defer h.mu.RUnlock()
	return len(h.clients[userID])
}

// GetOnlineUsers lists every connected profile id
func (h *Hub) GetOnlineUsers() []string {
	h.mu.RLock()
	defer h.mu.RUnlock()

	users := make([]string, 0, len(h.clients))
	for userID := range h.clients {
		users = append(users, userID)
	}
	return users
}

// GetMetrics returns current WebSocket metrics
func (h *Hub) GetMetrics() MetricsSnapshot {
	return MetricsSnapshot{
		TotalConnections:   h.metrics.TotalConnections.Load(),
		ActiveConnections:  h.metrics.ActiveConnections.Load(),
		MessagesReceived:   h.metrics.MessagesReceived.Load(),
		MessagesSent:       h.metrics.MessagesSent.Load(),
		Errors:             h.metrics.Errors.Load(),
		ConnectionsDropped: h.metrics.ConnectionsDropped.Load(),
	}
}

// MetricsSnapshot is a point-in-time copy of Metrics
type MetricsSnapshot struct {
	TotalConnections   int64 `json:"total_connections"`
	ActiveConnections  int64 `json:"active_connections"`
	MessagesReceived   int64 `json:"messages_received"`
	MessagesSent       int64 `json:"messages_sent"`
	Errors             int64 `json:"errors"`
	ConnectionsDropped int64 `json:"connections_dropped"`
}

func (m MetricsSnapshot) String() string {
	return fmt.Sprintf(
		"connections=%d/%d messages=rx:%d/tx:%d errors=%d dropped=%d",
		m.ActiveConnections, m.TotalConnections,
		m.MessagesReceived, m.MessagesSent,
		m.Errors, m.ConnectionsDropped,
	)
}

// Shutdown stops the loop and closes every connection
func (h *Hub) Shutdown(ctx context.Context) error {
	logger.Log.Info("Initiating WebSocket hub shutdown")
	h.cancel()

	select {
	case <-h.done:
		logger.Log.Info("WebSocket hub shutdown complete")
		return nil
	case <-ctx.Done():
		return fmt.Errorf("shutdown timeout: %w", ctx.Err())
	}
}

func (h *Hub) shutdown() {
	h.mu.Lock()
	defer h.mu.Unlock()

	data, _ := json.Marshal(NewMessage(MessageTypeSystem, SystemPayload{Event: "server_shutdown"}))
	for client := range h.allClients {
		select {
		case client.send <- data:
		default:
		}
		client.closeSend()
	}

	closed := len(h.allClients)
	h.clients = make(map[string]map[*Client]struct{})
	h.allClients = make(map[*Client]struct{})
	h.metrics.ActiveConnections.Store(0)
	metrics.Get().WebSocketConnections.Set(0)

	logger.Log.Info("Closed websocket connections during shutdown", zap.Int("count", closed))
}

// SetRateLimitConfig changes the limit applied to new connections
func (h *Hub) SetRateLimitConfig(config RateLimitConfig) {
	h.mu.Lock()
	defer h.mu.Unlock()
	h.rateLimitConfig = config
}

// GetRateLimitConfig returns the current rate limit configuration
func (h *Hub) GetRateLimitConfig() RateLimitConfig {
	h.mu.RLock()
	defer h.mu.RUnlock()
	return h.rateLimitConfig
}
