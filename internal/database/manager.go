// Package database provides the durable chat store behind the HTTP
// layer: a SQLite implementation and a bbolt fallback, both satisfying
// interfaces.ChatStore.
package database

import (
	"context"
	"database/sql"
	"fmt"
	"log"
	"sync"
	"time"

	_ "github.com/mattn/go-sqlite3"

	"marketchat/pkg/interfaces"
	"marketchat/pkg/types"
)

// Manager is the SQLite-backed chat store. Reads go straight to the
// pool; writes are funneled through a single goroutine, which is how
// SQLite wants to be written to under concurrency.
type Manager struct {
	db      *sql.DB
	writeCh chan writeOperation
	done    chan struct{}
	wg      sync.WaitGroup
	closed  bool
	mu      sync.RWMutex
}

type writeOperation struct {
	op     func(*sql.DB) error
	result chan error
}

// NewManager opens (and if needed creates) the SQLite database at path.
func NewManager(path string, busyTimeout time.Duration) (*Manager, error) {
	if busyTimeout <= 0 {
		busyTimeout = 5 * time.Second
	}
	dsn := fmt.Sprintf("%s?_busy_timeout=%d&_journal_mode=WAL&_foreign_keys=on",
		path, busyTimeout.Milliseconds())

	db, err := sql.Open("sqlite3", dsn)
	if err != nil {
		return nil, fmt.Errorf("failed to open database: %w", err)
	}
	db.SetMaxOpenConns(10)

	if err := createSchema(db); err != nil {
		_ = db.Close()
		return nil, err
	}
	if err := validateSchema(db); err != nil {
		_ = db.Close()
		return nil, err
	}

	m := &Manager{
		db:      db,
		writeCh: make(chan writeOperation, 100),
		done:    make(chan struct{}),
	}
	m.wg.Add(1)
	go m.writeLoop()
	return m, nil
}

func (m *Manager) writeLoop() {
	defer m.wg.Done()
	for {
		select {
		case op := <-m.writeCh:
			err := op.op(m.db)
			if err != nil {
				log.Printf("database write failed, retrying: %v", err)
				time.Sleep(time.Second)
				err = op.op(m.db)
			}
			op.result <- err
		case <-m.done:
			return
		}
	}
}

func (m *Manager) executeWrite(ctx context.Context, op func(*sql.DB) error) error {
	m.mu.RLock()
	if m.closed {
		m.mu.RUnlock()
		return interfaces.ErrStoreClosed
	}
	m.mu.RUnlock()

	wo := writeOperation{op: op, result: make(chan error, 1)}
	select {
	case m.writeCh <- wo:
	case <-ctx.Done():
		return ctx.Err()
	}
	select {
	case err := <-wo.result:
		return err
	case <-ctx.Done():
		return ctx.Err()
	}
}

// Close stops the writer goroutine and closes the database.
func (m *Manager) Close() error {
	m.mu.Lock()
	if m.closed {
		m.mu.Unlock()
		return nil
	}
	m.closed = true
	m.mu.Unlock()

	close(m.done)
	m.wg.Wait()
	return m.db.Close()
}

// CreateSession persists a new vendor/client session.
func (m *Manager) CreateSession(ctx context.Context, session *types.ChatSession) error {
	return m.executeWrite(ctx, func(db *sql.DB) error {
		_, err := db.Exec(
			`INSERT INTO chat_sessions
				(id, vendor_id, vendor_name, client_id, client_name,
				 last_message, vendor_unread, client_unread, created_at, updated_at)
			 VALUES (?, ?, ?, ?, ?, '', 0, 0, ?, ?)`,
			session.ID, session.VendorID, session.VendorName,
			session.ClientID, session.ClientName,
			session.CreatedAt, session.UpdatedAt,
		)
		return err
	})
}

const sessionColumns = `id, vendor_id, vendor_name, client_id, client_name,
	last_message, last_message_time, vendor_unread, client_unread, created_at, updated_at`

func scanSession(row interface{ Scan(...any) error }) (*types.ChatSession, error) {
	var s types.ChatSession
	var lastTime sql.NullTime
	err := row.Scan(&s.ID, &s.VendorID, &s.VendorName, &s.ClientID, &s.ClientName,
		&s.LastMessage, &lastTime, &s.VendorUnread, &s.ClientUnread,
		&s.CreatedAt, &s.UpdatedAt)
	if err != nil {
		return nil, err
	}
	if lastTime.Valid {
		t := lastTime.Time
		s.LastMessageTime = &t
	}
	return &s, nil
}

// GetSession returns a session by ID.
func (m *Manager) GetSession(ctx context.Context, chatID string) (*types.ChatSession, error) {
	row := m.db.QueryRowContext(ctx,
		`SELECT `+sessionColumns+` FROM chat_sessions WHERE id = ?`, chatID)
	s, err := scanSession(row)
	if err == sql.ErrNoRows {
		return nil, interfaces.ErrChatNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("failed to load session %s: %w", chatID, err)
	}
	return s, nil
}

// FindSessionByParticipants returns the session for a vendor/client pair.
func (m *Manager) FindSessionByParticipants(ctx context.Context, vendorID, clientID string) (*types.ChatSession, error) {
	row := m.db.QueryRowContext(ctx,
		`SELECT `+sessionColumns+` FROM chat_sessions WHERE vendor_id = ? AND client_id = ?`,
		vendorID, clientID)
	s, err := scanSession(row)
	if err == sql.ErrNoRows {
		return nil, interfaces.ErrChatNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("failed to find session: %w", err)
	}
	return s, nil
}

// ListSessionsForUser returns the user's sessions, newest activity first.
func (m *Manager) ListSessionsForUser(ctx context.Context, userID string) ([]*types.ChatSession, error) {
	rows, err := m.db.QueryContext(ctx,
		`SELECT `+sessionColumns+` FROM chat_sessions
		 WHERE vendor_id = ? OR client_id = ?
		 ORDER BY updated_at DESC`, userID, userID)
	if err != nil {
		return nil, fmt.Errorf("failed to list sessions: %w", err)
	}
	defer rows.Close()

	var sessions []*types.ChatSession
	for rows.Next() {
		s, err := scanSession(rows)
		if err != nil {
			return nil, fmt.Errorf("failed to scan session: %w", err)
		}
		sessions = append(sessions, s)
	}
	return sessions, rows.Err()
}

// AppendMessage stores the message and updates the session's last
// message and the recipient side's unread counter in one transaction.
func (m *Manager) AppendMessage(ctx context.Context, msg *types.ChatMessage) error {
	return m.executeWrite(ctx, func(db *sql.DB) error {
		tx, err := db.Begin()
		if err != nil {
			return err
		}
		defer func() { _ = tx.Rollback() }()

		res, err := tx.Exec(
			`UPDATE chat_sessions SET
				last_message = ?, last_message_time = ?, updated_at = ?,
				vendor_unread = vendor_unread + CASE WHEN vendor_id = ? THEN 1 ELSE 0 END,
				client_unread = client_unread + CASE WHEN client_id = ? THEN 1 ELSE 0 END
			 WHERE id = ?`,
			msg.Message, msg.Timestamp, msg.Timestamp,
			msg.RecipientID, msg.RecipientID, msg.ChatID,
		)
		if err != nil {
			return err
		}
		affected, err := res.RowsAffected()
		if err != nil {
			return err
		}
		if affected == 0 {
			return interfaces.ErrChatNotFound
		}

		if _, err := tx.Exec(
			`INSERT INTO chat_messages
				(id, chat_id, sender_id, sender_role, recipient_id, message, read, timestamp)
			 VALUES (?, ?, ?, ?, ?, ?, ?, ?)`,
			msg.ID, msg.ChatID, msg.SenderID, msg.SenderRole,
			msg.RecipientID, msg.Message, msg.Read, msg.Timestamp,
		); err != nil {
			return err
		}
		return tx.Commit()
	})
}

// GetHistory returns the session's messages in timestamp order.
func (m *Manager) GetHistory(ctx context.Context, chatID string) ([]*types.ChatMessage, error) {
	rows, err := m.db.QueryContext(ctx,
		`SELECT id, chat_id, sender_id, sender_role, recipient_id, message, read, timestamp
		 FROM chat_messages WHERE chat_id = ? ORDER BY timestamp ASC`, chatID)
	if err != nil {
		return nil, fmt.Errorf("failed to load history: %w", err)
	}
	defer rows.Close()

	var messages []*types.ChatMessage
	for rows.Next() {
		var msg types.ChatMessage
		if err := rows.Scan(&msg.ID, &msg.ChatID, &msg.SenderID, &msg.SenderRole,
			&msg.RecipientID, &msg.Message, &msg.Read, &msg.Timestamp); err != nil {
			return nil, fmt.Errorf("failed to scan message: %w", err)
		}
		messages = append(messages, &msg)
	}
	return messages, rows.Err()
}

// MarkRead flags the reader's incoming messages as read and zeroes the
// reader side's unread counter.
func (m *Manager) MarkRead(ctx context.Context, chatID, readerID string) error {
	return m.executeWrite(ctx, func(db *sql.DB) error {
		tx, err := db.Begin()
		if err != nil {
			return err
		}
		defer func() { _ = tx.Rollback() }()

		if _, err := tx.Exec(
			`UPDATE chat_messages SET read = 1
			 WHERE chat_id = ? AND recipient_id = ? AND read = 0`,
			chatID, readerID,
		); err != nil {
			return err
		}

		res, err := tx.Exec(
			`UPDATE chat_sessions SET
				vendor_unread = CASE WHEN vendor_id = ? THEN 0 ELSE vendor_unread END,
				client_unread = CASE WHEN client_id = ? THEN 0 ELSE client_unread END
			 WHERE id = ?`,
			readerID, readerID, chatID,
		)
		if err != nil {
			return err
		}
		affected, err := res.RowsAffected()
		if err != nil {
			return err
		}
		if affected == 0 {
			return interfaces.ErrChatNotFound
		}
		return tx.Commit()
	})
}
