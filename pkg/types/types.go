package types

import (
	"time"
)

// Roles a chat participant can hold. Every registered connection carries
// exactly one of these; routing and unread accounting key off it.
const (
	RoleVendor = "vendor"
	RoleClient = "client"
)

// PresenceRecord is the registry's view of one currently-online user.
// It is keyed by user ID and identifies the connection that owns the
// user's presence slot. Rebuilt from zero on process restart.
type PresenceRecord struct {
	UserID       string `json:"userId"`
	ConnectionID string `json:"connectionId"`
	Role         string `json:"role"`
	DisplayName  string `json:"displayName"`
}

// OnlineUser is the presence projection sent to clients in snapshots
// and online/offline broadcasts.
type OnlineUser struct {
	UserID string `json:"userId"`
	Name   string `json:"name"`
	Role   string `json:"role"`
	Online bool   `json:"online"`
}

// MessageEnvelope is the relay's in-transit representation of a chat
// message. It is constructed per send and never read back: the durable
// record lives in the chat store, written by the HTTP layer.
type MessageEnvelope struct {
	ID          string    `json:"id"`
	ChatID      string    `json:"chatId"`
	SenderID    string    `json:"senderId"`
	SenderName  string    `json:"senderName"`
	SenderRole  string    `json:"senderRole"`
	RecipientID string    `json:"recipientId"`
	Message     string    `json:"message"`
	Timestamp   time.Time `json:"timestamp"`
}

// PendingNotice tells a sender that the recipient had no live connection
// at send time. The relay does not track the message afterwards; the
// client reconciles by re-fetching persisted history.
type PendingNotice struct {
	MessageID string    `json:"messageId"`
	Timestamp time.Time `json:"timestamp"`
}

// ChatSession is a persisted vendor/client conversation with per-role
// unread counters.
type ChatSession struct {
	ID              string     `json:"id" db:"id"`
	VendorID        string     `json:"vendorId" db:"vendor_id"`
	VendorName      string     `json:"vendorName" db:"vendor_name"`
	ClientID        string     `json:"clientId" db:"client_id"`
	ClientName      string     `json:"clientName" db:"client_name"`
	LastMessage     string     `json:"lastMessage,omitempty" db:"last_message"`
	LastMessageTime *time.Time `json:"lastMessageTime,omitempty" db:"last_message_time"`
	VendorUnread    int        `json:"vendorUnread" db:"vendor_unread"`
	ClientUnread    int        `json:"clientUnread" db:"client_unread"`
	CreatedAt       time.Time  `json:"createdAt" db:"created_at"`
	UpdatedAt       time.Time  `json:"updatedAt" db:"updated_at"`
}

// ParticipantID returns the session participant holding the given role.
func (s *ChatSession) ParticipantID(role string) string {
	if role == RoleVendor {
		return s.VendorID
	}
	return s.ClientID
}

// CounterpartID returns the other participant of the session, or ""
// when userID is not a participant.
func (s *ChatSession) CounterpartID(userID string) string {
	switch userID {
	case s.VendorID:
		return s.ClientID
	case s.ClientID:
		return s.VendorID
	}
	return ""
}

// IsParticipant reports whether userID belongs to the session.
func (s *ChatSession) IsParticipant(userID string) bool {
	return userID == s.VendorID || userID == s.ClientID
}

// ChatMessage is the persisted form of one chat message.
type ChatMessage struct {
	ID          string    `json:"id" db:"id"`
	ChatID      string    `json:"chatId" db:"chat_id"`
	SenderID    string    `json:"senderId" db:"sender_id"`
	SenderRole  string    `json:"senderRole" db:"sender_role"`
	RecipientID string    `json:"recipientId" db:"recipient_id"`
	Message     string    `json:"message" db:"message"`
	Read        bool      `json:"read" db:"read"`
	Timestamp   time.Time `json:"timestamp" db:"timestamp"`
}
