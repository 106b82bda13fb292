package database

import (
	"bytes"
	"context"
	"encoding/binary"
	"encoding/json"
	"fmt"
	"sort"
	"time"

	bolt "go.etcd.io/bbolt"

	"marketchat/pkg/interfaces"
	"marketchat/pkg/types"
)

var (
	bucketSessions     = []byte("sessions")
	bucketParticipants = []byte("participants")
	bucketMessages     = []byte("messages")
)

// FallbackStore is a file-backed key-value implementation of ChatStore
// on bbolt. It mirrors the SQLite manager's behaviour and steps in when
// the primary database cannot be opened, or when configured explicitly.
type FallbackStore struct {
	db *bolt.DB
}

// NewFallbackStore opens (and if needed creates) the bolt file at path.
func NewFallbackStore(path string) (*FallbackStore, error) {
	db, err := bolt.Open(path, 0o600, &bolt.Options{Timeout: 5 * time.Second})
	if err != nil {
		return nil, fmt.Errorf("failed to open fallback store: %w", err)
	}

	err = db.Update(func(tx *bolt.Tx) error {
		for _, name := range [][]byte{bucketSessions, bucketParticipants, bucketMessages} {
			if _, err := tx.CreateBucketIfNotExists(name); err != nil {
				return err
			}
		}
		return nil
	})
	if err != nil {
		_ = db.Close()
		return nil, fmt.Errorf("failed to initialize fallback store: %w", err)
	}
	return &FallbackStore{db: db}, nil
}

// Close closes the underlying bolt file.
func (f *FallbackStore) Close() error {
	return f.db.Close()
}

func participantKey(vendorID, clientID string) []byte {
	var buf bytes.Buffer
	buf.WriteString(vendorID)
	buf.WriteByte(0)
	buf.WriteString(clientID)
	return buf.Bytes()
}

func putSession(tx *bolt.Tx, session *types.ChatSession) error {
	data, err := json.Marshal(session)
	if err != nil {
		return err
	}
	return tx.Bucket(bucketSessions).Put([]byte(session.ID), data)
}

func getSession(tx *bolt.Tx, chatID string) (*types.ChatSession, error) {
	data := tx.Bucket(bucketSessions).Get([]byte(chatID))
	if data == nil {
		return nil, interfaces.ErrChatNotFound
	}
	var s types.ChatSession
	if err := json.Unmarshal(data, &s); err != nil {
		return nil, fmt.Errorf("corrupt session record %s: %w", chatID, err)
	}
	return &s, nil
}

// CreateSession persists a new session and its participant index entry.
func (f *FallbackStore) CreateSession(_ context.Context, session *types.ChatSession) error {
	return f.db.Update(func(tx *bolt.Tx) error {
		if err := putSession(tx, session); err != nil {
			return err
		}
		return tx.Bucket(bucketParticipants).Put(
			participantKey(session.VendorID, session.ClientID), []byte(session.ID))
	})
}

// GetSession returns a session by ID.
func (f *FallbackStore) GetSession(_ context.Context, chatID string) (*types.ChatSession, error) {
	var session *types.ChatSession
	err := f.db.View(func(tx *bolt.Tx) error {
		s, err := getSession(tx, chatID)
		if err != nil {
			return err
		}
		session = s
		return nil
	})
	return session, err
}

// FindSessionByParticipants returns the session for a vendor/client pair.
func (f *FallbackStore) FindSessionByParticipants(_ context.Context, vendorID, clientID string) (*types.ChatSession, error) {
	var session *types.ChatSession
	err := f.db.View(func(tx *bolt.Tx) error {
		id := tx.Bucket(bucketParticipants).Get(participantKey(vendorID, clientID))
		if id == nil {
			return interfaces.ErrChatNotFound
		}
		s, err := getSession(tx, string(id))
		if err != nil {
			return err
		}
		session = s
		return nil
	})
	return session, err
}

// ListSessionsForUser scans all sessions for the user's, newest
// activity first. Linear scan is acceptable at fallback-store scale.
func (f *FallbackStore) ListSessionsForUser(_ context.Context, userID string) ([]*types.ChatSession, error) {
	var sessions []*types.ChatSession
	err := f.db.View(func(tx *bolt.Tx) error {
		return tx.Bucket(bucketSessions).ForEach(func(_, data []byte) error {
			var s types.ChatSession
			if err := json.Unmarshal(data, &s); err != nil {
				return fmt.Errorf("corrupt session record: %w", err)
			}
			if s.IsParticipant(userID) {
				sessions = append(sessions, &s)
			}
			return nil
		})
	})
	if err != nil {
		return nil, err
	}
	sort.Slice(sessions, func(i, j int) bool {
		return sessions[i].UpdatedAt.After(sessions[j].UpdatedAt)
	})
	return sessions, nil
}

// AppendMessage stores the message under the chat's message bucket and
// updates the session's last message and unread counter.
func (f *FallbackStore) AppendMessage(_ context.Context, msg *types.ChatMessage) error {
	return f.db.Update(func(tx *bolt.Tx) error {
		session, err := getSession(tx, msg.ChatID)
		if err != nil {
			return err
		}

		chatBucket, err := tx.Bucket(bucketMessages).CreateBucketIfNotExists([]byte(msg.ChatID))
		if err != nil {
			return err
		}
		seq, err := chatBucket.NextSequence()
		if err != nil {
			return err
		}
		key := make([]byte, 8)
		binary.BigEndian.PutUint64(key, seq)
		data, err := json.Marshal(msg)
		if err != nil {
			return err
		}
		if err := chatBucket.Put(key, data); err != nil {
			return err
		}

		session.LastMessage = msg.Message
		t := msg.Timestamp
		session.LastMessageTime = &t
		session.UpdatedAt = msg.Timestamp
		switch msg.RecipientID {
		case session.VendorID:
			session.VendorUnread++
		case session.ClientID:
			session.ClientUnread++
		}
		return putSession(tx, session)
	})
}

// GetHistory returns the chat's messages in append order, which the
// sequence keys preserve.
func (f *FallbackStore) GetHistory(_ context.Context, chatID string) ([]*types.ChatMessage, error) {
	var messages []*types.ChatMessage
	err := f.db.View(func(tx *bolt.Tx) error {
		chatBucket := tx.Bucket(bucketMessages).Bucket([]byte(chatID))
		if chatBucket == nil {
			return nil
		}
		return chatBucket.ForEach(func(_, data []byte) error {
			var msg types.ChatMessage
			if err := json.Unmarshal(data, &msg); err != nil {
				return fmt.Errorf("corrupt message record: %w", err)
			}
			messages = append(messages, &msg)
			return nil
		})
	})
	return messages, err
}

// MarkRead rewrites the reader's incoming messages as read and resets
// the reader side's unread counter.
func (f *FallbackStore) MarkRead(_ context.Context, chatID, readerID string) error {
	return f.db.Update(func(tx *bolt.Tx) error {
		session, err := getSession(tx, chatID)
		if err != nil {
			return err
		}

		// Mutating a bucket invalidates its cursors, so collect the
		// rewrites first and apply them after the scan.
		if chatBucket := tx.Bucket(bucketMessages).Bucket([]byte(chatID)); chatBucket != nil {
			updates := make(map[string][]byte)
			cursor := chatBucket.Cursor()
			for k, data := cursor.First(); k != nil; k, data = cursor.Next() {
				var msg types.ChatMessage
				if err := json.Unmarshal(data, &msg); err != nil {
					return fmt.Errorf("corrupt message record: %w", err)
				}
				if msg.RecipientID != readerID || msg.Read {
					continue
				}
				msg.Read = true
				updated, err := json.Marshal(&msg)
				if err != nil {
					return err
				}
				updates[string(k)] = updated
			}
			for k, data := range updates {
				if err := chatBucket.Put([]byte(k), data); err != nil {
					return err
				}
			}
		}

		switch readerID {
		case session.VendorID:
			session.VendorUnread = 0
		case session.ClientID:
			session.ClientUnread = 0
		}
		return putSession(tx, session)
	})
}
