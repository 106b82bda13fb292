package database

import (
	"context"
	"errors"
	"path/filepath"
	"testing"
	"time"

	"github.com/google/uuid"

	"marketchat/pkg/interfaces"
	"marketchat/pkg/types"
)

var (
	_ interfaces.ChatStore = (*Manager)(nil)
	_ interfaces.ChatStore = (*FallbackStore)(nil)
)

// eachStore runs the same suite against both ChatStore implementations.
func eachStore(t *testing.T, fn func(t *testing.T, store interfaces.ChatStore)) {
	t.Helper()

	t.Run("sqlite", func(t *testing.T) {
		store, err := NewManager(filepath.Join(t.TempDir(), "chat.db"), time.Second)
		if err != nil {
			t.Fatalf("open sqlite store: %v", err)
		}
		t.Cleanup(func() { _ = store.Close() })
		fn(t, store)
	})

	t.Run("bolt", func(t *testing.T) {
		store, err := NewFallbackStore(filepath.Join(t.TempDir(), "chat.bolt"))
		if err != nil {
			t.Fatalf("open bolt store: %v", err)
		}
		t.Cleanup(func() { _ = store.Close() })
		fn(t, store)
	})
}

func newSession(vendorID, clientID string) *types.ChatSession {
	now := time.Now().UTC().Truncate(time.Millisecond)
	return &types.ChatSession{
		ID:         uuid.NewString(),
		VendorID:   vendorID,
		VendorName: "Vendor " + vendorID,
		ClientID:   clientID,
		ClientName: "Client " + clientID,
		CreatedAt:  now,
		UpdatedAt:  now,
	}
}

func newMessage(session *types.ChatSession, senderID, body string) *types.ChatMessage {
	senderRole := types.RoleClient
	if senderID == session.VendorID {
		senderRole = types.RoleVendor
	}
	return &types.ChatMessage{
		ID:          uuid.NewString(),
		ChatID:      session.ID,
		SenderID:    senderID,
		SenderRole:  senderRole,
		RecipientID: session.CounterpartID(senderID),
		Message:     body,
		Timestamp:   time.Now().UTC().Truncate(time.Millisecond),
	}
}

func TestStore_CreateAndFindSession(t *testing.T) {
	eachStore(t, func(t *testing.T, store interfaces.ChatStore) {
		ctx := context.Background()
		session := newSession("v1", "c1")
		if err := store.CreateSession(ctx, session); err != nil {
			t.Fatalf("create session: %v", err)
		}

		got, err := store.GetSession(ctx, session.ID)
		if err != nil {
			t.Fatalf("get session: %v", err)
		}
		if got.VendorID != "v1" || got.ClientID != "c1" || got.VendorUnread != 0 {
			t.Errorf("unexpected session: %+v", got)
		}

		byPair, err := store.FindSessionByParticipants(ctx, "v1", "c1")
		if err != nil {
			t.Fatalf("find by participants: %v", err)
		}
		if byPair.ID != session.ID {
			t.Errorf("participant lookup returned %s, want %s", byPair.ID, session.ID)
		}

		if _, err := store.GetSession(ctx, "missing"); !errors.Is(err, interfaces.ErrChatNotFound) {
			t.Errorf("missing session: expected ErrChatNotFound, got %v", err)
		}
		if _, err := store.FindSessionByParticipants(ctx, "v1", "c2"); !errors.Is(err, interfaces.ErrChatNotFound) {
			t.Errorf("missing pair: expected ErrChatNotFound, got %v", err)
		}
	})
}

func TestStore_AppendUpdatesSession(t *testing.T) {
	eachStore(t, func(t *testing.T, store interfaces.ChatStore) {
		ctx := context.Background()
		session := newSession("v1", "c1")
		if err := store.CreateSession(ctx, session); err != nil {
			t.Fatalf("create session: %v", err)
		}

		for _, body := range []string{"first", "second"} {
			if err := store.AppendMessage(ctx, newMessage(session, "c1", body)); err != nil {
				t.Fatalf("append %q: %v", body, err)
			}
		}

		got, err := store.GetSession(ctx, session.ID)
		if err != nil {
			t.Fatalf("get session: %v", err)
		}
		if got.LastMessage != "second" {
			t.Errorf("last message = %q, want %q", got.LastMessage, "second")
		}
		if got.LastMessageTime == nil {
			t.Error("last message time should be set")
		}
		if got.VendorUnread != 2 {
			t.Errorf("vendor unread = %d, want 2", got.VendorUnread)
		}
		if got.ClientUnread != 0 {
			t.Errorf("client unread = %d, want 0", got.ClientUnread)
		}

		if err := store.AppendMessage(ctx, newMessage(session, "v1", "reply")); err != nil {
			t.Fatalf("append reply: %v", err)
		}
		got, _ = store.GetSession(ctx, session.ID)
		if got.ClientUnread != 1 || got.VendorUnread != 2 {
			t.Errorf("after reply: vendor=%d client=%d, want 2/1", got.VendorUnread, got.ClientUnread)
		}
	})
}

func TestStore_AppendToMissingChat(t *testing.T) {
	eachStore(t, func(t *testing.T, store interfaces.ChatStore) {
		msg := newMessage(newSession("v1", "c1"), "c1", "lost")
		if err := store.AppendMessage(context.Background(), msg); !errors.Is(err, interfaces.ErrChatNotFound) {
			t.Errorf("expected ErrChatNotFound, got %v", err)
		}
	})
}

func TestStore_HistoryPreservesOrder(t *testing.T) {
	eachStore(t, func(t *testing.T, store interfaces.ChatStore) {
		ctx := context.Background()
		session := newSession("v1", "c1")
		if err := store.CreateSession(ctx, session); err != nil {
			t.Fatalf("create session: %v", err)
		}

		bodies := []string{"one", "two", "three"}
		for _, body := range bodies {
			if err := store.AppendMessage(ctx, newMessage(session, "c1", body)); err != nil {
				t.Fatalf("append %q: %v", body, err)
			}
		}

		history, err := store.GetHistory(ctx, session.ID)
		if err != nil {
			t.Fatalf("get history: %v", err)
		}
		if len(history) != len(bodies) {
			t.Fatalf("history length = %d, want %d", len(history), len(bodies))
		}
		for i, body := range bodies {
			if history[i].Message != body {
				t.Errorf("history[%d] = %q, want %q", i, history[i].Message, body)
			}
			if history[i].Read {
				t.Errorf("history[%d] should start unread", i)
			}
		}
	})
}

func TestStore_MarkReadResetsReaderSideOnly(t *testing.T) {
	eachStore(t, func(t *testing.T, store interfaces.ChatStore) {
		ctx := context.Background()
		session := newSession("v1", "c1")
		if err := store.CreateSession(ctx, session); err != nil {
			t.Fatalf("create session: %v", err)
		}
		if err := store.AppendMessage(ctx, newMessage(session, "c1", "to vendor")); err != nil {
			t.Fatalf("append: %v", err)
		}
		if err := store.AppendMessage(ctx, newMessage(session, "v1", "to client")); err != nil {
			t.Fatalf("append: %v", err)
		}

		if err := store.MarkRead(ctx, session.ID, "v1"); err != nil {
			t.Fatalf("mark read: %v", err)
		}

		got, err := store.GetSession(ctx, session.ID)
		if err != nil {
			t.Fatalf("get session: %v", err)
		}
		if got.VendorUnread != 0 {
			t.Errorf("vendor unread = %d, want 0 after read", got.VendorUnread)
		}
		if got.ClientUnread != 1 {
			t.Errorf("client unread = %d, want 1 untouched", got.ClientUnread)
		}

		history, err := store.GetHistory(ctx, session.ID)
		if err != nil {
			t.Fatalf("get history: %v", err)
		}
		for _, msg := range history {
			wantRead := msg.RecipientID == "v1"
			if msg.Read != wantRead {
				t.Errorf("message %q read=%v, want %v", msg.Message, msg.Read, wantRead)
			}
		}
	})
}

func TestStore_ListSessionsNewestActivityFirst(t *testing.T) {
	eachStore(t, func(t *testing.T, store interfaces.ChatStore) {
		ctx := context.Background()

		older := newSession("v1", "c1")
		newer := newSession("v1", "c2")
		unrelated := newSession("v2", "c3")
		for _, s := range []*types.ChatSession{older, newer, unrelated} {
			if err := store.CreateSession(ctx, s); err != nil {
				t.Fatalf("create session: %v", err)
			}
		}

		// A message in the older session bumps it to the top.
		msg := newMessage(older, "c1", "bump")
		msg.Timestamp = time.Now().UTC().Add(time.Minute).Truncate(time.Millisecond)
		if err := store.AppendMessage(ctx, msg); err != nil {
			t.Fatalf("append: %v", err)
		}

		sessions, err := store.ListSessionsForUser(ctx, "v1")
		if err != nil {
			t.Fatalf("list sessions: %v", err)
		}
		if len(sessions) != 2 {
			t.Fatalf("expected v1's 2 sessions, got %d", len(sessions))
		}
		if sessions[0].ID != older.ID {
			t.Errorf("most recently active session should come first")
		}
		for _, s := range sessions {
			if s.ID == unrelated.ID {
				t.Error("list must not leak other users' sessions")
			}
		}
	})
}
