package websocket

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"net/http/httptest"
	"os"
	"strings"
	"sync/atomic"
	"testing"
	"time"

	"github.com/coder/websocket"
	"github.com/coder/websocket/wsjson"
	"github.com/gin-gonic/gin"
	"github.com/orkutrevival/backend/internal/auth"
	"github.com/orkutrevival/backend/internal/logger"
	"github.com/orkutrevival/backend/internal/models"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestMain(m *testing.M) {
	gin.SetMode(gin.TestMode)
	_ = logger.Initialize("error", "")
	os.Exit(m.Run())
}

func newTestClient(hub *Hub, userID string) *Client {
	ctx, cancel := context.WithCancel(context.Background())
	return &Client{
		hub:         hub,
		UserID:      userID,
		send:        make(chan []byte, 8),
		rateLimiter: NewRateLimiter(10, 20),
		ctx:         ctx,
		cancel:      cancel,
	}
}

func startHub(t *testing.T) *Hub {
	hub := NewHub()
	go hub.Run()
	t.Cleanup(func() {
		ctx, cancel := context.WithTimeout(context.Background(), time.Second)
		defer cancel()
		_ = hub.Shutdown(ctx)
	})
	return hub
}

func receive(t *testing.T, c *Client) *Message {
	t.Helper()
	select {
	case data, ok := <-c.send:
		require.True(t, ok, "send channel closed")
		var msg Message
		require.NoError(t, json.Unmarshal(data, &msg))
		return &msg
	case <-time.After(time.Second):
		t.Fatal("timed out waiting for message")
		return nil
	}
}

func TestRateLimiter(t *testing.T) {
	rl := NewRateLimiter(5, 10)

	for i := 0; i < 10; i++ {
		assert.True(t, rl.Allow(), "request %d should be allowed", i+1)
	}
	assert.False(t, rl.Allow(), "burst exhausted")

	time.Sleep(300 * time.Millisecond)
	assert.True(t, rl.Allow(), "tokens refill over time")
}

func TestFlexibleTime(t *testing.T) {
	var ms FlexibleTime
	require.NoError(t, json.Unmarshal([]byte(`1700000000000`), &ms))
	assert.Equal(t, int64(1700000000000), ms.UnixMilli())

	var rfc FlexibleTime
	require.NoError(t, json.Unmarshal([]byte(`"2024-01-02T03:04:05Z"`), &rfc))
	assert.Equal(t, 2024, rfc.Year())

	var bad FlexibleTime
	assert.Error(t, json.Unmarshal([]byte(`{}`), &bad))
}

func TestNewReplyAndError(t *testing.T) {
	original := &Message{Type: MessageTypePing, ID: "abc"}
	reply := NewReply(original, MessageTypePong, nil)
	assert.Equal(t, "abc", reply.ReplyTo)
	assert.False(t, reply.Timestamp.IsZero())

	errMsg := NewErrorMessage("bad", "nope")
	payload, ok := errMsg.Payload.(ErrorPayload)
	require.True(t, ok)
	assert.Equal(t, "bad", payload.Code)
}

func TestHubNotifyReachesEveryConnection(t *testing.T) {
	hub := startHub(t)

	phone := newTestClient(hub, "user-1")
	laptop := newTestClient(hub, "user-1")
	other := newTestClient(hub, "user-2")
	hub.Register(phone)
	hub.Register(laptop)
	hub.Register(other)

	require.Eventually(t, func() bool { return hub.GetUserConnectionCount("user-1") == 2 },
		time.Second, 10*time.Millisecond)

	hub.Notify("user-1", MessageTypeCallIncoming, map[string]string{"call_id": "c1"})

	for _, c := range []*Client{phone, laptop} {
		msg := receive(t, c)
		assert.Equal(t, MessageTypeCallIncoming, msg.Type)
	}
	select {
	case <-other.send:
		t.Fatal("unrelated profile received the event")
	case <-time.After(50 * time.Millisecond):
	}
}

func TestHubPresenceHooks(t *testing.T) {
	hub := startHub(t)

	var online, offline atomic.Int32
	hub.SetPresenceHooks(
		func(string) { online.Add(1) },
		func(string) { offline.Add(1) },
	)

	first := newTestClient(hub, "user-1")
	second := newTestClient(hub, "user-1")
	hub.Register(first)
	hub.Register(second)
	require.Eventually(t, func() bool { return online.Load() == 1 }, time.Second, 10*time.Millisecond)

	hub.Unregister(first)
	require.Eventually(t, func() bool { return hub.GetUserConnectionCount("user-1") == 1 },
		time.Second, 10*time.Millisecond)
	assert.Equal(t, int32(0), offline.Load())

	hub.Unregister(second)
	require.Eventually(t, func() bool { return offline.Load() == 1 }, time.Second, 10*time.Millisecond)
	assert.False(t, hub.IsUserOnline("user-1"))
	assert.Equal(t, int32(1), online.Load())

	assert.ErrorIs(t, first.Send(NewMessage(MessageTypePing, nil)), errClientClosed)
}

type fakeRouter struct {
	peers map[string]map[string]string
}

func (f *fakeRouter) PeerFor(_ context.Context, callID, userID string) (string, error) {
	peer, ok := f.peers[callID][userID]
	if !ok {
		return "", errors.New("not a participant of a live call")
	}
	return peer, nil
}

type wsFixture struct {
	hub    *Hub
	server *httptest.Server
	tokens *auth.Service
}

func newFixture(t *testing.T) *wsFixture {
	hub := startHub(t)
	tokens := auth.NewService([]byte("test-secret"), time.Hour, auth.NewAdminRegistry(nil, ""))

	handler := NewHandler(hub, tokens, nil)
	handler.SetSignalRouter(&fakeRouter{peers: map[string]map[string]string{
		"call_video_alice_bob_1": {"alice": "bob", "bob": "alice"},
	}})
	NewPresenceManager(hub, nil)

	router := gin.New()
	router.GET("/api/ws", handler.HandleWebSocket)
	router.GET("/api/ws/metrics", handler.HandleMetrics)

	server := httptest.NewServer(router)
	t.Cleanup(server.Close)
	return &wsFixture{hub: hub, server: server, tokens: tokens}
}

func (f *wsFixture) dial(t *testing.T, userID string) *websocket.Conn {
	t.Helper()
	resp, err := f.tokens.GenerateTokenForProfile(&models.Profile{ID: userID, Username: userID})
	require.NoError(t, err)

	ctx, cancel := context.WithTimeout(context.Background(), 2*time.Second)
	defer cancel()

	url := "ws" + strings.TrimPrefix(f.server.URL, "http") + "/api/ws?token=" + resp.Token
	conn, _, err := websocket.Dial(ctx, url, nil)
	require.NoError(t, err)
	t.Cleanup(func() { _ = conn.Close(websocket.StatusNormalClosure, "") })

	welcome := readFrame(t, conn)
	assert.Equal(t, MessageTypeSystem, welcome.Type)

	require.Eventually(t, func() bool { return f.hub.IsUserOnline(userID) }, time.Second, 10*time.Millisecond)
	return conn
}

func readFrame(t *testing.T, conn *websocket.Conn) *Message {
	t.Helper()
	ctx, cancel := context.WithTimeout(context.Background(), 2*time.Second)
	defer cancel()
	var msg Message
	require.NoError(t, wsjson.Read(ctx, conn, &msg))
	return &msg
}

func writeFrame(t *testing.T, conn *websocket.Conn, msg *Message) {
	t.Helper()
	ctx, cancel := context.WithTimeout(context.Background(), 2*time.Second)
	defer cancel()
	require.NoError(t, wsjson.Write(ctx, conn, msg))
}

func TestWebSocketRejectsMissingToken(t *testing.T) {
	f := newFixture(t)

	ctx, cancel := context.WithTimeout(context.Background(), 2*time.Second)
	defer cancel()

	url := "ws" + strings.TrimPrefix(f.server.URL, "http") + "/api/ws"
	_, resp, err := websocket.Dial(ctx, url, nil)
	require.Error(t, err)
	require.NotNil(t, resp)
	assert.Equal(t, http.StatusUnauthorized, resp.StatusCode)
}

func TestWebSocketRelaysSignalToPeer(t *testing.T) {
	f := newFixture(t)
	alice := f.dial(t, "alice")
	bob := f.dial(t, "bob")

	writeFrame(t, alice, NewMessage(MessageTypeCallOffer, map[string]interface{}{
		"call_id": "call_video_alice_bob_1",
		"data":    map[string]string{"sdp": "v=0"},
	}))

	got := readFrame(t, bob)
	assert.Equal(t, MessageTypeCallOffer, got.Type)

	var signal SignalPayload
	require.NoError(t, got.ParsePayload(&signal))
	assert.Equal(t, "alice", signal.FromID)
	assert.Equal(t, "call_video_alice_bob_1", signal.CallID)
	assert.JSONEq(t, `{"sdp":"v=0"}`, string(signal.Data))
}

func TestWebSocketSignalForUnknownCallIsRejected(t *testing.T) {
	f := newFixture(t)
	alice := f.dial(t, "alice")

	writeFrame(t, alice, NewMessage(MessageTypeICECandidate, map[string]interface{}{
		"call_id": "call_audio_x_y_1",
		"data":    map[string]string{"candidate": "c"},
	}))

	got := readFrame(t, alice)
	assert.Equal(t, MessageTypeError, got.Type)
}

func TestWebSocketPresenceQueryAndPing(t *testing.T) {
	f := newFixture(t)
	alice := f.dial(t, "alice")
	f.dial(t, "bob")

	query := NewMessage(MessageTypePresence, PresenceQuery{UserIDs: []string{"bob", "carol"}})
	query.ID = "q1"
	writeFrame(t, alice, query)

	got := readFrame(t, alice)
	assert.Equal(t, MessageTypePresence, got.Type)
	assert.Equal(t, "q1", got.ReplyTo)

	var result PresenceResult
	require.NoError(t, got.ParsePayload(&result))
	assert.True(t, result.Statuses["bob"])
	assert.False(t, result.Statuses["carol"])

	writeFrame(t, alice, NewMessage(MessageTypePing, PingPayload{ClientTime: time.Now().UnixMilli()}))
	pong := readFrame(t, alice)
	assert.Equal(t, MessageTypePong, pong.Type)
}
