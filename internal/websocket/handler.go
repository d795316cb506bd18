package websocket

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"strings"
	"time"

	"github.com/coder/websocket"
	"github.com/gin-gonic/gin"
	"github.com/orkutrevival/backend/internal/auth"
	apierrors "github.com/orkutrevival/backend/internal/errors"
	"github.com/orkutrevival/backend/internal/logger"
	"github.com/orkutrevival/backend/internal/util"
	"go.uber.org/zap"
)

// TokenParser decodes bearer tokens
type TokenParser interface {
	ParseToken(token string) (*auth.Claims, error)
}

// SignalRouter resolves the other participant of a live call. Signalling
// frames are only relayed between the two parties of a ringing or
// connected call.
type SignalRouter interface {
	PeerFor(ctx context.Context, callID, userID string) (string, error)
}

// Handler upgrades HTTP requests and wires inbound message handlers
type Handler struct {
	hub            *Hub
	tokens         TokenParser
	signals        SignalRouter
	originPatterns []string
}

// NewHandler creates a handler. originPatterns are host patterns accepted
// for cross-origin upgrades; empty or "*" accepts any origin.
func NewHandler(hub *Hub, tokens TokenParser, originPatterns []string) *Handler {
	return &Handler{
		hub:            hub,
		tokens:         tokens,
		originPatterns: originPatterns,
	}
}

// SetSignalRouter enables call signalling relay
func (h *Handler) SetSignalRouter(router SignalRouter) {
	h.signals = router
	for _, msgType := range []string{MessageTypeCallOffer, MessageTypeCallAnswer, MessageTypeICECandidate} {
		h.hub.RegisterHandler(msgType, h.relaySignal)
	}
}

// HandleWebSocket upgrades GET /api/ws?token=...
func (h *Handler) HandleWebSocket(c *gin.Context) {
	claims, err := h.authenticate(c)
	if err != nil {
		logger.Log.Debug("WebSocket auth failed", zap.Error(err), logger.WithIP(c.ClientIP()))
		util.RespondUnauthorized(c, err.Error())
		return
	}

	conn, err := websocket.Accept(upgradeWriter(c), c.Request, h.acceptOptions())
	if err != nil {
		logger.Log.Warn("WebSocket upgrade failed", logger.WithUserID(claims.UserID), zap.Error(err))
		return
	}

	client := NewClient(h.hub, conn, claims.UserID, claims.Username)
	client.RemoteAddr = c.ClientIP()
	client.UserAgent = c.GetHeader("User-Agent")

	h.hub.Register(client)

	_ = client.Send(NewMessage(MessageTypeSystem, SystemPayload{
		Event: "connected",
		Data: map[string]interface{}{
			"user_id":     claims.UserID,
			"username":    claims.Username,
			"server_time": time.Now().UTC().UnixMilli(),
		},
	}))

	go client.WritePump()
	client.ReadPump()
}

// upgradeWriter returns the writer under gin's. Accept writes the 101 header
// before hijacking and gin refuses to hijack once its own writer has written.
func upgradeWriter(c *gin.Context) http.ResponseWriter {
	if u, ok := c.Writer.(interface{ Unwrap() http.ResponseWriter }); ok {
		return u.Unwrap()
	}
	return c.Writer
}

func (h *Handler) acceptOptions() *websocket.AcceptOptions {
	opts := &websocket.AcceptOptions{CompressionMode: websocket.CompressionContextTakeover}
	if len(h.originPatterns) == 0 {
		opts.InsecureSkipVerify = true
		return opts
	}
	for _, p := range h.originPatterns {
		if p == "*" {
			opts.InsecureSkipVerify = true
			return opts
		}
		// cors origins carry a scheme, origin patterns match host only
		p = strings.TrimPrefix(strings.TrimPrefix(p, "https://"), "http://")
		opts.OriginPatterns = append(opts.OriginPatterns, p)
	}
	return opts
}

func (h *Handler) authenticate(c *gin.Context) (*auth.Claims, error) {
	token := c.Query("token")
	if header := c.GetHeader("Authorization"); strings.HasPrefix(header, "Bearer ") {
		token = strings.TrimSpace(strings.TrimPrefix(header, "Bearer "))
	}
	if token == "" {
		return nil, errors.New("no authentication token provided")
	}

	claims, err := h.tokens.ParseToken(token)
	if err != nil {
		return nil, errors.New("invalid or expired token")
	}
	if claims.Scope != auth.ScopeUser {
		return nil, errors.New("a profile token is required")
	}
	return claims, nil
}

// relaySignal forwards an offer, answer or ICE candidate to the call peer
func (h *Handler) relaySignal(client *Client, msg *Message) error {
	var signal SignalPayload
	if err := msg.ParsePayload(&signal); err != nil {
		return fmt.Errorf("invalid signal payload: %w", err)
	}
	if signal.CallID == "" {
		return errors.New("call_id is required")
	}

	ctx, cancel := context.WithTimeout(client.ctx, 5*time.Second)
	defer cancel()

	peerID, err := h.signals.PeerFor(ctx, signal.CallID, client.UserID)
	if err != nil {
		return err
	}

	signal.FromID = client.UserID
	h.hub.Notify(peerID, msg.Type, signal)
	return nil
}

// HandleMetrics returns hub counters, GET /api/ws/metrics
func (h *Handler) HandleMetrics(c *gin.Context) {
	c.JSON(http.StatusOK, gin.H{
		"websocket":    h.hub.GetMetrics(),
		"online_users": len(h.hub.GetOnlineUsers()),
		"timestamp":    time.Now().UTC(),
	})
}

// HandleOnlineStatus answers POST /api/ws/online {user_ids}
func (h *Handler) HandleOnlineStatus(c *gin.Context) {
	var req struct {
		UserIDs []string `json:"user_ids" binding:"required"`
	}
	if err := c.ShouldBindJSON(&req); err != nil {
		util.RespondWithAPIError(c, apierrors.ValidationError("user_ids", "user_ids is required"))
		return
	}

	statuses := make(map[string]bool, len(req.UserIDs))
	for _, userID := range req.UserIDs {
		statuses[userID] = h.hub.IsUserOnline(userID)
	}

	c.JSON(http.StatusOK, gin.H{
		"success":   true,
		"statuses":  statuses,
		"timestamp": time.Now().UTC(),
	})
}

// Shutdown closes every connection
func (h *Handler) Shutdown(ctx context.Context) error {
	return h.hub.Shutdown(ctx)
}

// Hub returns the underlying hub
func (h *Handler) Hub() *Hub {
	return h.hub
}
