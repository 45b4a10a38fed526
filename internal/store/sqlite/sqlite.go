package sqlite

import (
	"context"
	"database/sql"
	"encoding/json"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/google/uuid"

	"github.com/companionos/companion/internal/model"
	"github.com/companionos/companion/internal/store"
)

// New opens the database at path, ensures the schema and returns a store.
func New(ctx context.Context, path string) (*Store, error) {
	db, err := Open(path)
	if err != nil {
		return nil, err
	}
	if err := EnsureSchema(ctx, db); err != nil {
		_ = db.Close()
		return nil, err
	}
	return NewWithDB(db), nil
}

// NewWithDB wraps an existing connection. The schema must already exist.
func NewWithDB(db *sql.DB) *Store { return &Store{db: db} }

// Store implements store.Store on SQLite.
type Store struct{ db *sql.DB }

var _ store.Store = (*Store)(nil)

func (s *Store) Sessions() store.Sessions         { return &sessions{db: s.db} }
func (s *Store) Messages() store.Messages         { return &messages{db: s.db} }
func (s *Store) MemoryItems() store.MemoryItems   { return &memoryItems{db: s.db} }
func (s *Store) Summaries() store.Summaries       { return &summaries{db: s.db} }
func (s *Store) Alerts() store.Alerts             { return &alerts{db: s.db} }
func (s *Store) ToolSettings() store.ToolSettings { return &toolSettings{db: s.db} }

// HealthPing implements health.HealthPinger.
func (s *Store) HealthPing(ctx context.Context) error { return s.db.PingContext(ctx) }

// DB exposes the underlying connection (tests and local tooling).
func (s *Store) DB() *sql.DB { return s.db }

func (s *Store) Close() error { return s.db.Close() }

func now() time.Time { return time.Now().UTC().Truncate(time.Millisecond) }
func fromMS(ms int64) time.Time { return time.UnixMilli(ms).UTC() }

func nullable(p *string) any {
	if p == nil {
		return nil
	}
	return *p
}

func boolInt(b bool) int {
	if b {
		return 1
	}
	return 0
}

func ptr(ns sql.NullString) *string {
	if !ns.Valid {
		return nil
	}
	v := ns.String
	return &v
}

func notFound(what, id string, err error) error {
	if errors.Is(err, sql.ErrNoRows) {
		return fmt.Errorf("%s %s: %w", what, id, model.ErrNotFound)
	}
	return err
}

// --- Sessions ---
type sessions struct{ db *sql.DB }

func (r *sessions) Create(ctx context.Context, personaID string) (*model.Session, error) {
	if strings.TrimSpace(personaID) == "" {
		return nil, model.NewValidationError("personaId", "is required")
	}
	out := &model.Session{SessionID: uuid.New().String(), PersonaID: personaID, CreatedAt: now()}
	_, err := r.db.ExecContext(ctx, `INSERT INTO sessions (id, persona_id, created_at_ms) VALUES (?,?,?)`,
		out.SessionID, out.PersonaID, out.CreatedAt.UnixMilli())
	if err != nil {
		return nil, err
	}
	return out, nil
}

func (r *sessions) Get(ctx context.Context, sessionID string) (*model.Session, error) {
	var out model.Session
	var created int64
	row := r.db.QueryRowContext(ctx, `SELECT id, persona_id, created_at_ms FROM sessions WHERE id = ?`, sessionID)
	if err := row.Scan(&out.SessionID, &out.PersonaID, &created); err != nil {
		return nil, notFound("session", sessionID, err)
	}
	out.CreatedAt = fromMS(created)
	return &out, nil
}

func (r *sessions) List(ctx context.Context, limit int) ([]*model.Session, error) {
	rows, err := r.db.QueryContext(ctx, `SELECT id, persona_id, created_at_ms FROM sessions ORDER BY created_at_ms DESC, id LIMIT ?`,
		store.ClampLimit(limit))
	if err != nil {
		return nil, err
	}
	defer func() { _ = rows.Close() }()
	var out []*model.Session
	for rows.Next() {
		var s model.Session
		var created int64
		if err := rows.Scan(&s.SessionID, &s.PersonaID, &created); err != nil {
			return nil, err
		}
		s.CreatedAt = fromMS(created)
		out = append(out, &s)
	}
	return out, rows.Err()
}

// --- Messages ---
type messages struct{ db *sql.DB }

func (r *messages) Append(ctx context.Context, sessionID string, role model.Role, content string) (*model.Message, error) {
	if role != model.RoleUser && role != model.RoleAssistant {
		return nil, model.NewValidationError("role", "must be user or assistant")
	}
	out := &model.Message{MessageID: uuid.New().String(), SessionID: sessionID, Role: role, Content: content, CreatedAt: now()}
	res, err := r.db.ExecContext(ctx, `
		INSERT INTO messages (id, session_id, role, content, created_at_ms)
		SELECT ?, ?, ?, ?, ? WHERE EXISTS (SELECT 1 FROM sessions WHERE id = ?)`,
		out.MessageID, sessionID, string(role), content, out.CreatedAt.UnixMilli(), sessionID)
	if err != nil {
		return nil, err
	}
	if n, _ := res.RowsAffected(); n == 0 {
		return nil, fmt.Errorf("session %s: %w", sessionID, model.ErrNotFound)
	}
	return out, nil
}

const messageCols = `id, session_id, role, content, created_at_ms`

func scanMessages(rows *sql.Rows) ([]*model.Message, error) {
	defer func() { _ = rows.Close() }()
	var out []*model.Message
	for rows.Next() {
		var m model.Message
		var role string
		var created int64
		if err := rows.Scan(&m.MessageID, &m.SessionID, &role, &m.Content, &created); err != nil {
			return nil, err
		}
		m.Role = model.Role(role)
		m.CreatedAt = fromMS(created)
		out = append(out, &m)
	}
	return out, rows.Err()
}

func (r *messages) List(ctx context.Context, sessionID string, limit int) ([]*model.Message, error) {
	rows, err := r.db.QueryContext(ctx, `SELECT `+messageCols+` FROM messages WHERE session_id = ? ORDER BY seq ASC LIMIT ?`,
		sessionID, store.ClampLimit(limit))
	if err != nil {
		return nil, err
	}
	return scanMessages(rows)
}

func (r *messages) Recent(ctx context.Context, sessionID string, n int) ([]*model.Message, error) {
	rows, err := r.db.QueryContext(ctx, `
		SELECT `+messageCols+` FROM (
			SELECT seq, `+messageCols+` FROM messages WHERE session_id = ? ORDER BY seq DESC LIMIT ?
		) ORDER BY seq ASC`, sessionID, store.ClampLimit(n))
	if err != nil {
		return nil, err
	}
	return scanMessages(rows)
}

func (r *messages) Count(ctx context.Context, sessionID string) (int, error) {
	var n int
	err := r.db.QueryRowContext(ctx, `SELECT COUNT(*) FROM messages WHERE session_id = ?`, sessionID).Scan(&n)
	return n, err
}

// --- Memory items ---
type memoryItems struct{ db *sql.DB }

func (r *memoryItems) Upsert(ctx context.Context, m *model.MemoryItem) (*model.MemoryItem, error) {
	if err := store.ValidateMemoryItem(m); err != nil {
		return nil, err
	}
	out := *m
	out.UpdatedAt = now()
	var created int64
	row := r.db.QueryRowContext(ctx, `
		INSERT INTO memory_items (id, scope, session_id, session_slot, key, value, confidence, source_message_id, created_at_ms, updated_at_ms)
		VALUES (?,?,?,?,?,?,?,?,?,?)
		ON CONFLICT (scope, session_slot, key) DO UPDATE SET
			value = excluded.value,
			confidence = excluded.confidence,
			source_message_id = excluded.source_message_id,
			updated_at_ms = excluded.updated_at_ms
		RETURNING id, created_at_ms`,
		uuid.New().String(), string(m.Scope), nullable(m.SessionID), store.SessionSlot(m.Scope, m.SessionID),
		m.Key, m.Value, m.Confidence, nullable(m.SourceMessageID), out.UpdatedAt.UnixMilli(), out.UpdatedAt.UnixMilli())
	if err := row.Scan(&out.ItemID, &created); err != nil {
		return nil, err
	}
	out.CreatedAt = fromMS(created)
	return &out, nil
}

func (r *memoryItems) List(ctx context.Context, scope model.Scope, sessionID string, limit int) ([]*model.MemoryItem, error) {
	var rows *sql.Rows
	var err error
	const cols = `id, scope, session_id, key, value, confidence, source_message_id, created_at_ms, updated_at_ms`
	switch scope {
	case model.ScopeGlobal:
		rows, err = r.db.QueryContext(ctx, `SELECT `+cols+` FROM memory_items WHERE scope = 'global' ORDER BY updated_at_ms DESC, id LIMIT ?`,
			store.ClampLimit(limit))
	case model.ScopeSession:
		if sessionID == "" {
			return nil, model.NewValidationError("sessionId", "required for session scope")
		}
		rows, err = r.db.QueryContext(ctx, `SELECT `+cols+` FROM memory_items WHERE scope = 'session' AND session_id = ? ORDER BY updated_at_ms DESC, id LIMIT ?`,
			sessionID, store.ClampLimit(limit))
	default:
		return nil, model.NewValidationError("scope", "must be 'global' or 'session'")
	}
	if err != nil {
		return nil, err
	}
	defer func() { _ = rows.Close() }()

	var out []*model.MemoryItem
	for rows.Next() {
		var m model.MemoryItem
		var scopeStr string
		var sid, src sql.NullString
		var created, updated int64
		if err := rows.Scan(&m.ItemID, &scopeStr, &sid, &m.Key, &m.Value, &m.Confidence, &src, &created, &updated); err != nil {
			return nil, err
		}
		m.Scope = model.Scope(scopeStr)
		m.SessionID = ptr(sid)
		m.SourceMessageID = ptr(src)
		m.CreatedAt = fromMS(created)
		m.UpdatedAt = fromMS(updated)
		out = append(out, &m)
	}
	return out, rows.Err()
}

func (r *memoryItems) Delete(ctx context.Context, itemID string) error {
	res, err := r.db.ExecContext(ctx, `DELETE FROM memory_items WHERE id = ?`, itemID)
	if err != nil {
		return err
	}
	if n, _ := res.RowsAffected(); n == 0 {
		return fmt.Errorf("memory item %s: %w", itemID, model.ErrNotFound)
	}
	return nil
}

// --- Summaries ---
type summaries struct{ db *sql.DB }

func (r *summaries) Get(ctx context.Context, sessionID string) (*model.SessionSummary, error) {
	var out model.SessionSummary
	var loops string
	var updated int64
	row := r.db.QueryRowContext(ctx, `SELECT session_id, summary, open_loops, updated_at_ms FROM session_summaries WHERE session_id = ?`, sessionID)
	if err := row.Scan(&out.SessionID, &out.Summary, &loops, &updated); err != nil {
		return nil, notFound("summary", sessionID, err)
	}
	if err := json.Unmarshal([]byte(loops), &out.OpenLoops); err != nil || out.OpenLoops == nil {
		out.OpenLoops = []string{}
	}
	out.UpdatedAt = fromMS(updated)
	return &out, nil
}

func (r *summaries) Upsert(ctx context.Context, s *model.SessionSummary) (*model.SessionSummary, error) {
	if s == nil || s.SessionID == "" {
		return nil, model.NewValidationError("sessionId", "is required")
	}
	out := *s
	out.OpenLoops = store.CapOpenLoops(s.OpenLoops)
	out.UpdatedAt = now()
	loops, err := json.Marshal(out.OpenLoops)
	if err != nil {
		return nil, err
	}
	_, err = r.db.ExecContext(ctx, `
		INSERT INTO session_summaries (session_id, summary, open_loops, updated_at_ms)
		VALUES (?,?,?,?)
		ON CONFLICT (session_id) DO UPDATE SET
			summary = excluded.summary,
			open_loops = excluded.open_loops,
			updated_at_ms = excluded.updated_at_ms`,
		out.SessionID, out.Summary, string(loops), out.UpdatedAt.UnixMilli())
	if err != nil {
		return nil, err
	}
	return &out, nil
}

// --- Alerts ---
type alerts struct{ db *sql.DB }

const alertCols = `id, scope, session_id, title, body, due_at_ms, repeat_rule, status, confidence, source_message_id, created_at_ms, updated_at_ms`

type scanner interface{ Scan(dest ...any) error }

func scanAlert(sc scanner) (*model.Alert, error) {
	var a model.Alert
	var scope, status string
	var sid, repeat, src sql.NullString
	var due, created, updated int64
	if err := sc.Scan(&a.AlertID, &scope, &sid, &a.Title, &a.Body, &due, &repeat, &status, &a.Confidence, &src, &created, &updated); err != nil {
		return nil, err
	}
	a.Scope = model.Scope(scope)
	a.Status = model.AlertStatus(status)
	a.SessionID = ptr(sid)
	a.RepeatRule = ptr(repeat)
	a.SourceMessageID = ptr(src)
	a.DueAt = fromMS(due)
	a.CreatedAt = fromMS(created)
	a.UpdatedAt = fromMS(updated)
	return &a, nil
}

func scanAlerts(rows *sql.Rows) ([]*model.Alert, error) {
	defer func() { _ = rows.Close() }()
	var out []*model.Alert
	for rows.Next() {
		a, err := scanAlert(rows)
		if err != nil {
			return nil, err
		}
		out = append(out, a)
	}
	return out, rows.Err()
}

func (r *alerts) Create(ctx context.Context, a *model.Alert) (*model.Alert, error) {
	if err := store.ValidateAlert(a); err != nil {
		return nil, err
	}
	out := *a
	out.AlertID = uuid.New().String()
	out.Status = model.AlertActive
	out.DueAt = a.DueAt.UTC().Truncate(time.Millisecond)
	out.CreatedAt = now()
	out.UpdatedAt = out.CreatedAt
	_, err := r.db.ExecContext(ctx, `INSERT INTO alerts (`+alertCols+`) VALUES (?,?,?,?,?,?,?,?,?,?,?,?)`,
		out.AlertID, string(out.Scope), nullable(out.SessionID), out.Title, out.Body, out.DueAt.UnixMilli(),
		nullable(out.RepeatRule), string(out.Status), out.Confidence, nullable(out.SourceMessageID),
		out.CreatedAt.UnixMilli(), out.UpdatedAt.UnixMilli())
	if err != nil {
		return nil, err
	}
	return &out, nil
}

func (r *alerts) Get(ctx context.Context, alertID string) (*model.Alert, error) {
	a, err := scanAlert(r.db.QueryRowContext(ctx, `SELECT `+alertCols+` FROM alerts WHERE id = ?`, alertID))
	if err != nil {
		return nil, notFound("alert", alertID, err)
	}
	return a, nil
}

func (r *alerts) List(ctx context.Context, f model.AlertFilter) ([]*model.Alert, error) {
	var where []string
	var args []any
	if f.Scope != "" {
		if !f.Scope.Valid() {
			return nil, model.NewValidationError("scope", "must be 'global' or 'session'")
		}
		where = append(where, "scope = ?")
		args = append(args, string(f.Scope))
	}
	if f.SessionID != "" {
		where = append(where, "session_id = ?")
		args = append(args, f.SessionID)
	}
	if f.Status != "" {
		where = append(where, "status = ?")
		args = append(args, string(f.Status))
	}
	q := `SELECT ` + alertCols + ` FROM alerts`
	if len(where) > 0 {
		q += ` WHERE ` + strings.Join(where, " AND ")
	}
	q += ` ORDER BY updated_at_ms DESC, id LIMIT ?`
	args = append(args, store.ClampLimit(f.Limit))

	rows, err := r.db.QueryContext(ctx, q, args...)
	if err != nil {
		return nil, err
	}
	return scanAlerts(rows)
}

func (r *alerts) Due(ctx context.Context, sessionID string, at time.Time, limit int) ([]*model.Alert, error) {
	q := `SELECT ` + alertCols + ` FROM alerts WHERE status = 'active' AND due_at_ms <= ?`
	args := []any{at.UnixMilli()}
	if sessionID != "" {
		q += ` AND session_id = ?`
		args = append(args, sessionID)
	}
	q += ` ORDER BY due_at_ms ASC, id LIMIT ?`
	args = append(args, store.ClampLimit(limit))

	rows, err := r.db.QueryContext(ctx, q, args...)
	if err != nil {
		return nil, err
	}
	return scanAlerts(rows)
}

func (r *alerts) UpdateStatus(ctx context.Context, alertID string, status model.AlertStatus) (*model.Alert, error) {
	if err := store.CheckTransition(model.AlertActive, status); err != nil {
		return nil, err
	}
	res, err := r.db.ExecContext(ctx, `UPDATE alerts SET status = ?, updated_at_ms = ? WHERE id = ? AND status = 'active'`,
		string(status), now().UnixMilli(), alertID)
	if err != nil {
		return nil, err
	}
	n, _ := res.RowsAffected()
	cur, err := r.Get(ctx, alertID)
	if err != nil {
		return nil, err
	}
	if n == 0 {
		if err := store.CheckTransition(cur.Status, status); err != nil {
			return nil, err
		}
		return nil, fmt.Errorf("alert %s changed concurrently: %w", alertID, model.ErrConflict)
	}
	return cur, nil
}

// --- Tool settings ---
type toolSettings struct{ db *sql.DB }

func (r *toolSettings) Upsert(ctx context.Context, s *model.ToolSetting) (*model.ToolSetting, error) {
	if err := store.ValidateToolSetting(s); err != nil {
		return nil, err
	}
	out := *s
	out.UpdatedAt = now()
	var created int64
	row := r.db.QueryRowContext(ctx, `
		INSERT INTO tool_settings (id, scope, session_id, session_slot, tool_id, enabled, created_at_ms, updated_at_ms)
		VALUES (?,?,?,?,?,?,?,?)
		ON CONFLICT (scope, session_slot, tool_id) DO UPDATE SET
			enabled = excluded.enabled,
			updated_at_ms = excluded.updated_at_ms
		RETURNING id, created_at_ms`,
		uuid.New().String(), string(s.Scope), nullable(s.SessionID), store.SessionSlot(s.Scope, s.SessionID),
		s.ToolID, boolInt(s.Enabled), out.UpdatedAt.UnixMilli(), out.UpdatedAt.UnixMilli())
	if err := row.Scan(&out.SettingID, &created); err != nil {
		return nil, err
	}
	out.CreatedAt = fromMS(created)
	return &out, nil
}

func (r *toolSettings) List(ctx context.Context, scope model.Scope, sessionID string) ([]*model.ToolSetting, error) {
	const cols = `id, scope, session_id, tool_id, enabled, created_at_ms, updated_at_ms`
	var rows *sql.Rows
	var err error
	switch scope {
	case model.ScopeGlobal:
		rows, err = r.db.QueryContext(ctx, `SELECT `+cols+` FROM tool_settings WHERE scope = 'global' ORDER BY updated_at_ms DESC, id`)
	case model.ScopeSession:
		if sessionID == "" {
			return nil, model.NewValidationError("sessionId", "required for session scope")
		}
		rows, err = r.db.QueryContext(ctx, `SELECT `+cols+` FROM tool_settings WHERE scope = 'session' AND session_id = ? ORDER BY updated_at_ms DESC, id`, sessionID)
	default:
		return nil, model.NewValidationError("scope", "must be 'global' or 'session'")
	}
	if err != nil {
		return nil, err
	}
	defer func() { _ = rows.Close() }()

	var out []*model.ToolSetting
	for rows.Next() {
		var t model.ToolSetting
		var scopeStr string
		var sid sql.NullString
		var created, updated int64
		if err := rows.Scan(&t.SettingID, &scopeStr, &sid, &t.ToolID, &t.Enabled, &created, &updated); err != nil {
			return nil, err
		}
		t.Scope = model.Scope(scopeStr)
		t.SessionID = ptr(sid)
		t.CreatedAt = fromMS(created)
		t.UpdatedAt = fromMS(updated)
		out = append(out, &t)
	}
	return out, rows.Err()
}

func (r *toolSettings) Effective(ctx context.Context, sessionID string, toolIDs []string) (map[string]bool, error) {
	rows, err := r.db.QueryContext(ctx, `
		SELECT scope, tool_id, enabled FROM tool_settings
		WHERE scope = 'global' OR (scope = 'session' AND session_id = ?)`, sessionID)
	if err != nil {
		return nil, err
	}
	defer func() { _ = rows.Close() }()

	global := map[string]bool{}
	session := map[string]bool{}
	for rows.Next() {
		var scope, toolID string
		var enabled bool
		if err := rows.Scan(&scope, &toolID, &enabled); err != nil {
			return nil, err
		}
		if model.Scope(scope) == model.ScopeSession {
			session[toolID] = enabled
		} else {
			global[toolID] = enabled
		}
	}
	if err := rows.Err(); err != nil {
		return nil, err
	}
	return store.Resolve(toolIDs, global, session), nil
}
