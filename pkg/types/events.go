package types

import (
	"encoding/json"
	"fmt"
)

// Client-to-server event names. TypingStart/TypingStop have legacy
// aliases that older UI builds still emit; the dispatcher accepts both.
const (
	EventJoinUser    = "join-user"
	EventSendMessage = "send-message"
	EventTypingStart = "typing-start"
	EventTyping      = "typing"
	EventTypingStop  = "typing-stop"
	EventStopTyping  = "stop-typing"
)

// Server-to-client event names.
const (
	EventOnlineUsers    = "online-users"
	EventUserOnline     = "user-online"
	EventUserOffline    = "user-offline"
	EventReceiveMessage = "receive-message"
	EventMessageSent    = "message-sent"
	EventMessagePending = "message-pending"
	EventUserTyping     = "user-typing"
	EventUserStopTyping = "user-stop-typing"
)

// ClientEvent is the tagged wire form of every client-to-server event.
// Data stays raw until the event kind selects the payload type.
type ClientEvent struct {
	Event string          `json:"event"`
	Data  json.RawMessage `json:"data"`
}

// ServerEvent is the tagged wire form of every server-to-client event.
type ServerEvent struct {
	Event string `json:"event"`
	Data  any    `json:"data"`
}

// DecodeClientEvent parses a raw frame into a tagged event.
func DecodeClientEvent(data []byte) (*ClientEvent, error) {
	var ev ClientEvent
	if err := json.Unmarshal(data, &ev); err != nil {
		return nil, fmt.Errorf("malformed event frame: %w", err)
	}
	if ev.Event == "" {
		return nil, ErrUnknownEvent
	}
	return &ev, nil
}

// JoinUserPayload registers an identity on the connection that sent it.
// All fields are required; a partial registration is rejected without
// side effects.
type JoinUserPayload struct {
	UserID string `json:"userId" validate:"required"`
	Role   string `json:"role" validate:"required,oneof=vendor client"`
	Name   string `json:"name" validate:"required"`
}

// SendMessagePayload asks the relay to deliver one message. SenderID is
// advisory: the dispatcher always stamps the envelope with the sending
// connection's registered identity.
type SendMessagePayload struct {
	ChatID      string `json:"chatId" validate:"required"`
	SenderID    string `json:"senderId"`
	RecipientID string `json:"recipientId" validate:"required"`
	Message     string `json:"message" validate:"required"`
}

// TypingPayload carries a start or stop typing signal. UserName is
// optional; the dispatcher falls back to the connection's display name.
type TypingPayload struct {
	ChatID      string `json:"chatId" validate:"required"`
	UserID      string `json:"userId"`
	UserName    string `json:"userName"`
	RecipientID string `json:"recipientId" validate:"required"`
}

// TypingNotice is the recipient-side shape of a typing signal.
type TypingNotice struct {
	ChatID string `json:"chatId"`
	UserID string `json:"userId"`
	Name   string `json:"name,omitempty"`
}
