package postgres

import (
	"context"
	"database/sql"
	"fmt"
)

// EnsureSchema creates the companion tables if they do not exist.
func EnsureSchema(ctx context.Context, db *sql.DB) error {
	stmts := []string{
		`CREATE TABLE IF NOT EXISTS sessions (
			id TEXT PRIMARY KEY,
			persona_id TEXT NOT NULL,
			created_at TIMESTAMPTZ NOT NULL DEFAULT now()
		)`,
		`CREATE TABLE IF NOT EXISTS messages (
			seq BIGSERIAL PRIMARY KEY,
			id TEXT NOT NULL UNIQUE,
			session_id TEXT NOT NULL REFERENCES sessions(id) ON DELETE CASCADE,
			role TEXT NOT NULL CHECK (role IN ('user','assistant')),
			content TEXT NOT NULL,
			created_at TIMESTAMPTZ NOT NULL DEFAULT now()
		)`,
		`CREATE INDEX IF NOT EXISTS idx_messages_session ON messages(session_id, seq)`,
		`CREATE TABLE IF NOT EXISTS memory_items (
			id TEXT PRIMARY KEY,
			scope TEXT NOT NULL CHECK (scope IN ('global','session')),
			session_id TEXT REFERENCES sessions(id) ON DELETE CASCADE,
			session_slot TEXT NOT NULL DEFAULT '',
			key TEXT NOT NULL,
			value TEXT NOT NULL,
			confidence DOUBLE PRECISION NOT NULL,
			source_message_id TEXT,
			created_at TIMESTAMPTZ NOT NULL DEFAULT now(),
			updated_at TIMESTAMPTZ NOT NULL DEFAULT now(),
			CHECK ((scope = 'global' AND session_id IS NULL) OR (scope = 'session' AND session_id IS NOT NULL)),
			UNIQUE (scope, session_slot, key)
		)`,
		`CREATE TABLE IF NOT EXISTS session_summaries (
			session_id TEXT PRIMARY KEY REFERENCES sessions(id) ON DELETE CASCADE,
			summary TEXT NOT NULL,
			open_loops JSONB NOT NULL DEFAULT '[]'::jsonb,
			updated_at TIMESTAMPTZ NOT NULL DEFAULT now()
		)`,
		`CREATE TABLE IF NOT EXISTS alerts (
			id TEXT PRIMARY KEY,
			scope TEXT NOT NULL CHECK (scope IN ('global','session')),
			session_id TEXT REFERENCES sessions(id) ON DELETE CASCADE,
			title TEXT NOT NULL,
			body TEXT NOT NULL DEFAULT '',
			due_at TIMESTAMPTZ NOT NULL,
			repeat_rule TEXT CHECK (repeat_rule IS NULL OR repeat_rule IN ('DAILY','WEEKLY')),
			status TEXT NOT NULL CHECK (status IN ('active','done','cancelled')),
			confidence DOUBLE PRECISION NOT NULL,
			source_message_id TEXT,
			created_at TIMESTAMPTZ NOT NULL DEFAULT now(),
			updated_at TIMESTAMPTZ NOT NULL DEFAULT now(),
			CHECK ((scope = 'global' AND session_id IS NULL) OR (scope = 'session' AND session_id IS NOT NULL))
		)`,
		`CREATE INDEX IF NOT EXISTS idx_alerts_due ON alerts(status, due_at)`,
		`CREATE TABLE IF NOT EXISTS tool_settings (
			id TEXT PRIMARY KEY,
			scope TEXT NOT NULL CHECK (scope IN ('global','session')),
			session_id TEXT REFERENCES sessions(id) ON DELETE CASCADE,
			session_slot TEXT NOT NULL DEFAULT '',
			tool_id TEXT NOT NULL,
			enabled BOOLEAN NOT NULL,
			created_at TIMESTAMPTZ NOT NULL DEFAULT now(),
			updated_at TIMESTAMPTZ NOT NULL DEFAULT now(),
			CHECK ((scope = 'global' AND session_id IS NULL) OR (scope = 'session' AND session_id IS NOT NULL)),
			UNIQUE (scope, session_slot, tool_id)
		)`,
	}
	for _, s := range stmts {
		if _, err := db.ExecContext(ctx, s); err != nil {
			return fmt.Errorf("ensure postgres schema: %w", err)
		}
	}
	return nil
}
