// Package session orchestrates chat sessions over the durable store:
// vendor/client pairing, participant checks, history access with read
// reconciliation. This is the HTTP layer's path to everything the
// real-time relay deliberately does not guarantee.
package session

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"

	"marketchat/pkg/interfaces"
	"marketchat/pkg/types"
)

// Manager wraps a ChatStore with the invariants the HTTP handlers rely
// on: one session per vendor/client pair, participant-only access.
type Manager struct {
	store interfaces.ChatStore
}

// NewManager creates a session manager over the given store.
func NewManager(store interfaces.ChatStore) *Manager {
	return &Manager{store: store}
}

// FindOrCreateSession returns the existing session for the pair or
// creates one. Names are captured at creation time; the chat UI shows
// them without another user lookup.
func (m *Manager) FindOrCreateSession(ctx context.Context, vendorID, vendorName, clientID, clientName string) (*types.ChatSession, error) {
	if !types.IsValidUserID(vendorID) || !types.IsValidUserID(clientID) {
		return nil, ErrInvalidParticipant
	}
	if vendorID == clientID {
		return nil, ErrSameParticipant
	}

	existing, err := m.store.FindSessionByParticipants(ctx, vendorID, clientID)
	if err == nil {
		return existing, nil
	}
	if !errors.Is(err, interfaces.ErrChatNotFound) {
		return nil, fmt.Errorf("session lookup failed: %w", err)
	}

	now := time.Now()
	session := &types.ChatSession{
		ID:         uuid.NewString(),
		VendorID:   vendorID,
		VendorName: vendorName,
		ClientID:   clientID,
		ClientName: clientName,
		CreatedAt:  now,
		UpdatedAt:  now,
	}
	if err := m.store.CreateSession(ctx, session); err != nil {
		return nil, fmt.Errorf("session creation failed: %w", err)
	}
	return session, nil
}

// ListSessions returns the user's sessions with unread counters.
func (m *Manager) ListSessions(ctx context.Context, userID string) ([]*types.ChatSession, error) {
	if !types.IsValidUserID(userID) {
		return nil, ErrInvalidParticipant
	}
	return m.store.ListSessionsForUser(ctx, userID)
}

// GetHistory returns the session and its messages for a participant,
// marking the caller's incoming messages read and resetting their
// unread counter. This is the reconciliation step for anything the
// relay reported pending or never confirmed.
func (m *Manager) GetHistory(ctx context.Context, chatID, userID string) (*types.ChatSession, []*types.ChatMessage, error) {
	session, err := m.store.GetSession(ctx, chatID)
	if err != nil {
		return nil, nil, err
	}
	if !session.IsParticipant(userID) {
		return nil, nil, ErrNotParticipant
	}

	messages, err := m.store.GetHistory(ctx, chatID)
	if err != nil {
		return nil, nil, fmt.Errorf("history load failed: %w", err)
	}
	if err := m.store.MarkRead(ctx, chatID, userID); err != nil {
		return nil, nil, fmt.Errorf("read reconciliation failed: %w", err)
	}

	// Reflect the reset in the returned snapshot without a re-read.
	switch userID {
	case session.VendorID:
		session.VendorUnread = 0
	case session.ClientID:
		session.ClientUnread = 0
	}
	for _, msg := range messages {
		if msg.RecipientID == userID {
			msg.Read = true
		}
	}
	return session, messages, nil
}

// PostMessage persists a message from a participant to the session's
// other side and returns the stored record. Persistence here is
// independent of relay delivery: the live notification may or may not
// have reached anyone.
func (m *Manager) PostMessage(ctx context.Context, chatID, senderID, body string) (*types.ChatMessage, error) {
	if !types.IsValidMessage(body) {
		return nil, types.ErrInvalidMessage
	}

	session, err := m.store.GetSession(ctx, chatID)
	if err != nil {
		return nil, err
	}
	if !session.IsParticipant(senderID) {
		return nil, ErrNotParticipant
	}

	senderRole := types.RoleClient
	if senderID == session.VendorID {
		senderRole = types.RoleVendor
	}

	msg := &types.ChatMessage{
		ID:          uuid.NewString(),
		ChatID:      chatID,
		SenderID:    senderID,
		SenderRole:  senderRole,
		RecipientID: session.CounterpartID(senderID),
		Message:     body,
		Timestamp:   time.Now(),
	}
	if err := m.store.AppendMessage(ctx, msg); err != nil {
		return nil, fmt.Errorf("message persistence failed: %w", err)
	}
	return msg, nil
}
