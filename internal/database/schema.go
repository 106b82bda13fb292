package database

import (
	"database/sql"
	"fmt"
)

const schemaSQL = `
CREATE TABLE IF NOT EXISTS chat_sessions (
	id                TEXT PRIMARY KEY,
	vendor_id         TEXT NOT NULL,
	vendor_name       TEXT NOT NULL,
	client_id         TEXT NOT NULL,
	client_name       TEXT NOT NULL,
	last_message      TEXT NOT NULL DEFAULT '',
	last_message_time DATETIME,
	vendor_unread     INTEGER NOT NULL DEFAULT 0,
	client_unread     INTEGER NOT NULL DEFAULT 0,
	created_at        DATETIME NOT NULL,
	updated_at        DATETIME NOT NULL,
	UNIQUE (vendor_id, client_id)
);

CREATE TABLE IF NOT EXISTS chat_messages (
	id           TEXT PRIMARY KEY,
	chat_id      TEXT NOT NULL REFERENCES chat_sessions(id),
	sender_id    TEXT NOT NULL,
	sender_role  TEXT NOT NULL,
	recipient_id TEXT NOT NULL,
	message      TEXT NOT NULL,
	read         INTEGER NOT NULL DEFAULT 0,
	timestamp    DATETIME NOT NULL
);

CREATE INDEX IF NOT EXISTS idx_chat_messages_chat_time
	ON chat_messages (chat_id, timestamp);
CREATE INDEX IF NOT EXISTS idx_chat_sessions_vendor ON chat_sessions (vendor_id);
CREATE INDEX IF NOT EXISTS idx_chat_sessions_client ON chat_sessions (client_id);
`

// createSchema creates tables and indexes when missing.
func createSchema(db *sql.DB) error {
	if _, err := db.Exec(schemaSQL); err != nil {
		return fmt.Errorf("failed to create schema: %w", err)
	}
	return nil
}

// validateSchema verifies the tables this store depends on actually
// exist, so a corrupt or foreign database file fails at open rather
// than on the first query.
func validateSchema(db *sql.DB) error {
	for _, table := range []string{"chat_sessions", "chat_messages"} {
		var name string
		err := db.QueryRow(
			`SELECT name FROM sqlite_master WHERE type='table' AND name=?`, table,
		).Scan(&name)
		if err == sql.ErrNoRows {
			return fmt.Errorf("required table %s does not exist", table)
		}
		if err != nil {
			return fmt.Errorf("error checking table %s: %w", table, err)
		}
	}
	return nil
}
