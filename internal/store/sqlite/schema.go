package sqlite

import (
	"context"
	"database/sql"
	"fmt"
)

// EnsureSchema creates the companion tables if they do not exist.
// Timestamps are stored as unix milliseconds.
func EnsureSchema(ctx context.Context, db *sql.DB) error {
	stmts := []string{
		`CREATE TABLE IF NOT EXISTS sessions (
			id TEXT PRIMARY KEY,
			persona_id TEXT NOT NULL,
			created_at_ms INTEGER NOT NULL
		)`,
		`CREATE TABLE IF NOT EXISTS messages (
			seq INTEGER PRIMARY KEY AUTOINCREMENT,
			id TEXT NOT NULL UNIQUE,
			session_id TEXT NOT NULL REFERENCES sessions(id) ON DELETE CASCADE,
			role TEXT NOT NULL CHECK (role IN ('user','assistant')),
			content TEXT NOT NULL,
			created_at_ms INTEGER NOT NULL
		)`,
		`CREATE INDEX IF NOT EXISTS idx_messages_session ON messages(session_id, seq)`,
		`CREATE TABLE IF NOT EXISTS memory_items (
			id TEXT PRIMARY KEY,
			scope TEXT NOT NULL CHECK (scope IN ('global','session')),
			session_id TEXT REFERENCES sessions(id) ON DELETE CASCADE,
			session_slot TEXT NOT NULL DEFAULT '',
			key TEXT NOT NULL,
			value TEXT NOT NULL,
			confidence REAL NOT NULL,
			source_message_id TEXT,
			created_at_ms INTEGER NOT NULL,
			updated_at_ms INTEGER NOT NULL,
			CHECK ((scope = 'global' AND session_id IS NULL) OR (scope = 'session' AND session_id IS NOT NULL)),
			UNIQUE (scope, session_slot, key)
		)`,
		`CREATE TABLE IF NOT EXISTS session_summaries (
			session_id TEXT PRIMARY KEY REFERENCES sessions(id) ON DELETE CASCADE,
			summary TEXT NOT NULL,
			open_loops TEXT NOT NULL DEFAULT '[]',
			updated_at_ms INTEGER NOT NULL
		)`,
		`CREATE TABLE IF NOT EXISTS alerts (
			id TEXT PRIMARY KEY,
			scope TEXT NOT NULL CHECK (scope IN ('global','session')),
			session_id TEXT REFERENCES sessions(id) ON DELETE CASCADE,
			title TEXT NOT NULL,
			body TEXT NOT NULL DEFAULT '',
			due_at_ms INTEGER NOT NULL,
			repeat_rule TEXT CHECK (repeat_rule IS NULL OR repeat_rule IN ('DAILY','WEEKLY')),
			status TEXT NOT NULL CHECK (status IN ('active','done','cancelled')),
			confidence REAL NOT NULL,
			source_message_id TEXT,
			created_at_ms INTEGER NOT NULL,
			updated_at_ms INTEGER NOT NULL,
			CHECK ((scope = 'global' AND session_id IS NULL) OR (scope = 'session' AND session_id IS NOT NULL))
		)`,
		`CREATE INDEX IF NOT EXISTS idx_alerts_due ON alerts(status, due_at_ms)`,
		`CREATE TABLE IF NOT EXISTS tool_settings (
			id TEXT PRIMARY KEY,
			scope TEXT NOT NULL CHECK (scope IN ('global','session')),
			session_id TEXT REFERENCES sessions(id) ON DELETE CASCADE,
			session_slot TEXT NOT NULL DEFAULT '',
			tool_id TEXT NOT NULL,
			enabled INTEGER NOT NULL CHECK (enabled IN (0,1)),
			created_at_ms INTEGER NOT NULL,
			updated_at_ms INTEGER NOT NULL,
			CHECK ((scope = 'global' AND session_id IS NULL) OR (scope = 'session' AND session_id IS NOT NULL)),
			UNIQUE (scope, session_slot, tool_id)
		)`,
	}
	for _, s := range stmts {
		if _, err := db.ExecContext(ctx, s); err != nil {
			return fmt.Errorf("ensure sqlite schema: %w", err)
		}
	}
	return nil
}
