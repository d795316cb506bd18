package websocket

import (
	"encoding/json"
	"fmt"
	"time"
)

// FlexibleTime accepts Unix millisecond timestamps and RFC3339 strings
type FlexibleTime struct {
	time.Time
}

// UnmarshalJSON implements json.Unmarshaler
func (ft *FlexibleTime) UnmarshalJSON(b []byte) error {
	if string(b) == "null" {
		return nil
	}

	var ms int64
	if err := json.Unmarshal(b, &ms); err == nil {
		ft.Time = time.UnixMilli(ms).UTC()
		return nil
	}

	var str string
	if err := json.Unmarshal(b, &str); err != nil {
		return fmt.Errorf("timestamp must be unix milliseconds or an RFC3339 string")
	}
	t, err := time.Parse(time.RFC3339, str)
	if err != nil {
		return err
	}
	ft.Time = t
	return nil
}

// MarshalJSON always writes RFC3339
func (ft FlexibleTime) MarshalJSON() ([]byte, error) {
	return json.Marshal(ft.Time)
}

// Event types pushed to or received from clients
const (
	MessageTypeSystem = "system"
	MessageTypePing   = "ping"
	MessageTypePong   = "pong"
	MessageTypeError  = "error"

	// Call lifecycle, server to client
	MessageTypeCallIncoming = "call_incoming"
	MessageTypeCallStarted  = "call_started"
	MessageTypeCallAccepted = "call_accepted"
	MessageTypeCallDeclined = "call_declined"
	MessageTypeCallEnded    = "call_ended"
	MessageTypeCallMissed   = "call_missed"

	// Call signalling, relayed between the two participants
	MessageTypeCallOffer    = "call_offer"
	MessageTypeCallAnswer   = "call_answer"
	MessageTypeICECandidate = "ice_candidate"

	// Direct messages
	MessageTypeMessageNew  = "message_new"
	MessageTypeMessageRead = "message_read"

	// Social graph
	MessageTypeFriendRequest  = "friend_request"
	MessageTypeFriendAccepted = "friend_accepted"

	MessageTypeNotification = "notification"

	// Presence query (client) and online/offline changes (server)
	MessageTypePresence = "presence"
)

// Message is the envelope for every frame on the connection
type Message struct {
	Type      string       `json:"type"`
	Payload   interface{}  `json:"payload,omitempty"`
	ID        string       `json:"id,omitempty"`
	ReplyTo   string       `json:"reply_to,omitempty"`
	Timestamp FlexibleTime `json:"timestamp"`
}

// NewMessage stamps a message with the current time
func NewMessage(msgType string, payload interface{}) *Message {
	return &Message{
		Type:      msgType,
		Payload:   payload,
		Timestamp: FlexibleTime{Time: time.Now().UTC()},
	}
}

// NewReply creates a message answering original
func NewReply(original *Message, msgType string, payload interface{}) *Message {
	msg := NewMessage(msgType, payload)
	msg.ReplyTo = original.ID
	return msg
}

// NewErrorMessage creates an error frame
func NewErrorMessage(code string, message string) *Message {
	return NewMessage(MessageTypeError, ErrorPayload{Code: code, Message: message})
}

// ParsePayload decodes the generic payload into target
func (m *Message) ParsePayload(target interface{}) error {
	if m.Payload == nil {
		return nil
	}
	data, err := json.Marshal(m.Payload)
	if err != nil {
		return err
	}
	return json.Unmarshal(data, target)
}

type ErrorPayload struct {
	Code    string `json:"code"`
	Message string `json:"message"`
}

type PingPayload struct {
	ClientTime int64 `json:"client_time"`
}

type PongPayload struct {
	ClientTime int64 `json:"client_time"`
	ServerTime int64 `json:"server_time"`
	Latency    int64 `json:"latency_ms"`
}

// SystemPayload carries connection lifecycle events
type SystemPayload struct {
	Event   string                 `json:"event"`
	Message string                 `json:"message,omitempty"`
	Data    map[string]interface{} `json:"data,omitempty"`
}

// PresencePayload is pushed to friends when a profile comes online or goes away
type PresencePayload struct {
	UserID     string     `json:"user_id"`
	Online     bool       `json:"online"`
	LastSeenAt *time.Time `json:"last_seen_at,omitempty"`
}

// PresenceQuery asks which of the given profiles are connected
type PresenceQuery struct {
	UserIDs []string `json:"user_ids"`
}

// PresenceResult answers a PresenceQuery
type PresenceResult struct {
	Statuses map[string]bool `json:"statuses"`
}

// SignalPayload wraps a WebRTC offer, answer or ICE candidate. The server
// only routes it and never inspects Data.
type SignalPayload struct {
	CallID string          `json:"call_id"`
	FromID string          `json:"from_id,omitempty"`
	Data   json.RawMessage `json:"data"`
}
