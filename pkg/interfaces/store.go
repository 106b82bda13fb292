package interfaces

import (
	"context"

	"marketchat/pkg/types"
)

// ChatStore is the durable side of the chat system: sessions, message
// history, and unread counters. Only the HTTP layer talks to it; the
// real-time relay never reads or writes persisted state.
type ChatStore interface {
	// CreateSession persists a new session. The caller supplies the ID.
	CreateSession(ctx context.Context, session *types.ChatSession) error

	// GetSession returns a session by ID, or ErrChatNotFound.
	GetSession(ctx context.Context, chatID string) (*types.ChatSession, error)

	// FindSessionByParticipants returns the session for a vendor/client
	// pair, or ErrChatNotFound.
	FindSessionByParticipants(ctx context.Context, vendorID, clientID string) (*types.ChatSession, error)

	// ListSessionsForUser returns every session the user participates
	// in, most recently updated first.
	ListSessionsForUser(ctx context.Context, userID string) ([]*types.ChatSession, error)

	// AppendMessage persists a message, updates the session's last
	// message, and increments the recipient role's unread counter.
	AppendMessage(ctx context.Context, msg *types.ChatMessage) error

	// GetHistory returns the session's messages in timestamp order.
	GetHistory(ctx context.Context, chatID string) ([]*types.ChatMessage, error)

	// MarkRead flags every message addressed to readerID in the
	// session as read and resets that reader's unread counter.
	MarkRead(ctx context.Context, chatID, readerID string) error

	// Close releases the underlying storage.
	Close() error
}
