package postgres

import (
	"context"
	"database/sql"
	"encoding/json"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/google/uuid"
	_ "github.com/jackc/pgx/v5/stdlib"

	"github.com/companionos/companion/internal/model"
	"github.com/companionos/companion/internal/store"
)

// Open opens a PostgreSQL connection using the pgx stdlib driver and verifies connectivity.
func Open(ctx context.Context, dsn string) (*sql.DB, error) {
	if dsn == "" {
		return nil, fmt.Errorf("postgres DSN is empty")
	}
	db, err := sql.Open("pgx", dsn)
	if err != nil {
		return nil, err
	}
	if err := db.PingContext(ctx); err != nil {
		_ = db.Close()
		return nil, err
	}
	return db, nil
}

// New opens dsn, ensures the schema and returns a store.
func New(ctx context.Context, dsn string) (*Store, error) {
	db, err := Open(ctx, dsn)
	if err != nil {
		return nil, err
	}
	if err := EnsureSchema(ctx, db); err != nil {
		_ = db.Close()
		return nil, err
	}
	return NewWithDB(db), nil
}

// NewWithDB constructs a native Postgres store backed directly by database/sql.
func NewWithDB(db *sql.DB) *Store { return &Store{db: db} }

// Store implements store.Store on PostgreSQL.
type Store struct{ db *sql.DB }

var _ store.Store = (*Store)(nil)

func (s *Store) Sessions() store.Sessions         { return &sessions{db: s.db} }
func (s *Store) Messages() store.Messages         { return &messages{db: s.db} }
func (s *Store) MemoryItems() store.MemoryItems   { return &memoryItems{db: s.db} }
func (s *Store) Summaries() store.Summaries       { return &summaries{db: s.db} }
func (s *Store) Alerts() store.Alerts             { return &alerts{db: s.db} }
func (s *Store) ToolSettings() store.ToolSettings { return &toolSettings{db: s.db} }

// HealthPing implements health.HealthPinger for Postgres-backed store.
func (s *Store) HealthPing(ctx context.Context) error {
	return s.db.PingContext(ctx)
}

func (s *Store) Close() error { return s.db.Close() }

func now() time.Time { return time.Now().UTC().Truncate(time.Millisecond) }

func nullable(p *string) any {
	if p == nil {
		return nil
	}
	return *p
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
	_, err := r.db.ExecContext(ctx, `INSERT INTO sessions (id, persona_id, created_at) VALUES ($1,$2,$3)`,
		out.SessionID, out.PersonaID, out.CreatedAt)
	if err != nil {
		return nil, err
	}
	return out, nil
}

func (r *sessions) Get(ctx context.Context, sessionID string) (*model.Session, error) {
	var out model.Session
	row := r.db.QueryRowContext(ctx, `SELECT id, persona_id, created_at FROM sessions WHERE id=$1`, sessionID)
	if err := row.Scan(&out.SessionID, &out.PersonaID, &out.CreatedAt); err != nil {
		return nil, notFound("session", sessionID, err)
	}
	out.CreatedAt = out.CreatedAt.UTC()
	return &out, nil
}

func (r *sessions) List(ctx context.Context, limit int) ([]*model.Session, error) {
	rows, err := r.db.QueryContext(ctx, `SELECT id, persona_id, created_at FROM sessions ORDER BY created_at DESC, id LIMIT $1`,
		store.ClampLimit(limit))
	if err != nil {
		return nil, err
	}
	defer func() { _ = rows.Close() }()
	var out []*model.Session
	for rows.Next() {
		var s model.Session
		if err := rows.Scan(&s.SessionID, &s.PersonaID, &s.CreatedAt); err != nil {
			return nil, err
		}
		s.CreatedAt = s.CreatedAt.UTC()
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
        INSERT INTO messages (id, session_id, role, content, created_at)
        SELECT $1, $2, $3, $4, $5 WHERE EXISTS (SELECT 1 FROM sessions WHERE id=$2)
    `, out.MessageID, sessionID, string(role), content, out.CreatedAt)
	if err != nil {
		return nil, err
	}
	if n, _ := res.RowsAffected(); n == 0 {
		return nil, fmt.Errorf("session %s: %w", sessionID, model.ErrNotFound)
	}
	return out, nil
}

const messageCols = `id, session_id, role, content, created_at`

func scanMessages(rows *sql.Rows) ([]*model.Message, error) {
	defer func() { _ = rows.Close() }()
	var out []*model.Message
	for rows.Next() {
		var m model.Message
		var role string
		if err := rows.Scan(&m.MessageID, &m.SessionID, &role, &m.Content, &m.CreatedAt); err != nil {
			return nil, err
		}
		m.Role = model.Role(role)
		m.CreatedAt = m.CreatedAt.UTC()
		out = append(out, &m)
	}
	return out, rows.Err()
}

func (r *messages) List(ctx context.Context, sessionID string, limit int) ([]*model.Message, error) {
	rows, err := r.db.QueryContext(ctx, `SELECT `+messageCols+` FROM messages WHERE session_id=$1 ORDER BY seq ASC LIMIT $2`,
		sessionID, store.ClampLimit(limit))
	if err != nil {
		return nil, err
	}
	return scanMessages(rows)
}

func (r *messages) Recent(ctx context.Context, sessionID string, n int) ([]*model.Message, error) {
	rows, err := r.db.QueryContext(ctx, `
        SELECT `+messageCols+` FROM (
            SELECT seq, `+messageCols+` FROM messages WHERE session_id=$1 ORDER BY seq DESC LIMIT $2
        ) recent ORDER BY seq ASC
    `, sessionID, store.ClampLimit(n))
	if err != nil {
		return nil, err
	}
	return scanMessages(rows)
}

func (r *messages) Count(ctx context.Context, sessionID string) (int, error) {
	var n int
	err := r.db.QueryRowContext(ctx, `SELECT COUNT(*) FROM messages WHERE session_id=$1`, sessionID).Scan(&n)
	return n, err
}

// --- Memory items ---
type memoryItems struct{ db *sql.DB }

const memoryCols = `id, scope, session_id, key, value, confidence, source_message_id, created_at, updated_at`

func (r *memoryItems) Upsert(ctx context.Context, m *model.MemoryItem) (*model.MemoryItem, error) {
	if err := store.ValidateMemoryItem(m); err != nil {
		return nil, err
	}
	out := *m
	out.UpdatedAt = now()
	row := r.db.QueryRowContext(ctx, `
        INSERT INTO memory_items (id, scope, session_id, session_slot, key, value, confidence, source_message_id, created_at, updated_at)
        VALUES ($1,$2,$3,$4,$5,$6,$7,$8,$9,$9)
        ON CONFLICT (scope, session_slot, key) DO UPDATE SET
            value = EXCLUDED.value,
            confidence = EXCLUDED.confidence,
            source_message_id = EXCLUDED.source_message_id,
            updated_at = EXCLUDED.updated_at
        RETURNING id, created_at
    `, uuid.New().String(), string(m.Scope), nullable(m.SessionID), store.SessionSlot(m.Scope, m.SessionID),
		m.Key, m.Value, m.Confidence, nullable(m.SourceMessageID), out.UpdatedAt)
	if err := row.Scan(&out.ItemID, &out.CreatedAt); err != nil {
		return nil, err
	}
	out.CreatedAt = out.CreatedAt.UTC()
	return &out, nil
}

func (r *memoryItems) List(ctx context.Context, scope model.Scope, sessionID string, limit int) ([]*model.MemoryItem, error) {
	var rows *sql.Rows
	var err error
	switch scope {
	case model.ScopeGlobal:
		rows, err = r.db.QueryContext(ctx, `SELECT `+memoryCols+` FROM memory_items WHERE scope='global' ORDER BY updated_at DESC, id LIMIT $1`,
			store.ClampLimit(limit))
	case model.ScopeSession:
		if sessionID == "" {
			return nil, model.NewValidationError("sessionId", "required for session scope")
		}
		rows, err = r.db.QueryContext(ctx, `SELECT `+memoryCols+` FROM memory_items WHERE scope='session' AND session_id=$1 ORDER BY updated_at DESC, id LIMIT $2`,
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
		if err := rows.Scan(&m.ItemID, &scopeStr, &sid, &m.Key, &m.Value, &m.Confidence, &src, &m.CreatedAt, &m.UpdatedAt); err != nil {
			return nil, err
		}
		m.Scope = model.Scope(scopeStr)
		m.SessionID = ptr(sid)
		m.SourceMessageID = ptr(src)
		m.CreatedAt = m.CreatedAt.UTC()
		m.UpdatedAt = m.UpdatedAt.UTC()
		out = append(out, &m)
	}
	return out, rows.Err()
}

func (r *memoryItems) Delete(ctx context.Context, itemID string) error {
	res, err := r.db.ExecContext(ctx, `DELETE FROM memory_items WHERE id=$1`, itemID)
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
	var loops []byte
	row := r.db.QueryRowContext(ctx, `SELECT session_id, summary, open_loops, updated_at FROM session_summaries WHERE session_id=$1`, sessionID)
	if err := row.Scan(&out.SessionID, &out.Summary, &loops, &out.UpdatedAt); err != nil {
		return nil, notFound("summary", sessionID, err)
	}
	if err := json.Unmarshal(loops, &out.OpenLoops); err != nil || out.OpenLoops == nil {
		out.OpenLoops = []string{}
	}
	out.UpdatedAt = out.UpdatedAt.UTC()
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
        INSERT INTO session_summaries (session_id, summary, open_loops, updated_at)
        VALUES ($1,$2,$3::jsonb,$4)
        ON CONFLICT (session_id) DO UPDATE SET
            summary = EXCLUDED.summary,
            open_loops = EXCLUDED.open_loops,
            updated_at = EXCLUDED.updated_at
    `, out.SessionID, out.Summary, string(loops), out.UpdatedAt)
	if err != nil {
		return nil, err
	}
	return &out, nil
}

// --- Alerts ---
type alerts struct{ db *sql.DB }

const alertCols = `id, scope, session_id, title, body, due_at, repeat_rule, status, confidence, source_message_id, created_at, updated_at`

type scanner interface{ Scan(dest ...any) error }

func scanAlert(sc scanner) (*model.Alert, error) {
	var a model.Alert
	var scope, status string
	var sid, repeat, src sql.NullString
	if err := sc.Scan(&a.AlertID, &scope, &sid, &a.Title, &a.Body, &a.DueAt, &repeat, &status, &a.Confidence, &src, &a.CreatedAt, &a.UpdatedAt); err != nil {
		return nil, err
	}
	a.Scope = model.Scope(scope)
	a.Status = model.AlertStatus(status)
	a.SessionID = ptr(sid)
	a.RepeatRule = ptr(repeat)
	a.SourceMessageID = ptr(src)
	a.DueAt = a.DueAt.UTC()
	a.CreatedAt = a.CreatedAt.UTC()
	a.UpdatedAt = a.UpdatedAt.UTC()
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
	_, err := r.db.ExecContext(ctx, `INSERT INTO alerts (`+alertCols+`) VALUES ($1,$2,$3,$4,$5,$6,$7,$8,$9,$10,$11,$12)`,
		out.AlertID, string(out.Scope), nullable(out.SessionID), out.Title, out.Body, out.DueAt,
		nullable(out.RepeatRule), string(out.Status), out.Confidence, nullable(out.SourceMessageID),
		out.CreatedAt, out.UpdatedAt)
	if err != nil {
		return nil, err
	}
	return &out, nil
}

func (r *alerts) Get(ctx context.Context, alertID string) (*model.Alert, error) {
	a, err := scanAlert(r.db.QueryRowContext(ctx, `SELECT `+alertCols+` FROM alerts WHERE id=$1`, alertID))
	if err != nil {
		return nil, notFound("alert", alertID, err)
	}
	return a, nil
}

func (r *alerts) List(ctx context.Context, f model.AlertFilter) ([]*model.Alert, error) {
	var where []string
	var args []any
	arg := func(v any) string {
		args = append(args, v)
		return fmt.Sprintf("$%d", len(args))
	}
	if f.Scope != "" {
		if !f.Scope.Valid() {
			return nil, model.NewValidationError("scope", "must be 'global' or 'session'")
		}
		where = append(where, "scope="+arg(string(f.Scope)))
	}
	if f.SessionID != "" {
		where = append(where, "session_id="+arg(f.SessionID))
	}
	if f.Status != "" {
		where = append(where, "status="+arg(string(f.Status)))
	}
	q := `SELECT ` + alertCols + ` FROM alerts`
	if len(where) > 0 {
		q += ` WHERE ` + strings.Join(where, " AND ")
	}
	q += ` ORDER BY updated_at DESC, id LIMIT ` + arg(store.ClampLimit(f.Limit))

	rows, err := r.db.QueryContext(ctx, q, args...)
	if err != nil {
		return nil, err
	}
	return scanAlerts(rows)
}

func (r *alerts) Due(ctx context.Context, sessionID string, at time.Time, limit int) ([]*model.Alert, error) {
	q := `SELECT ` + alertCols + ` FROM alerts WHERE status='active' AND due_at <= $1`
	args := []any{at.UTC()}
	if sessionID != "" {
		q += ` AND session_id=$2 ORDER BY due_at ASC, id LIMIT $3`
		args = append(args, sessionID, store.ClampLimit(limit))
	} else {
		q += ` ORDER BY due_at ASC, id LIMIT $2`
		args = append(args, store.ClampLimit(limit))
	}
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
	a, err := scanAlert(r.db.QueryRowContext(ctx, `
        UPDATE alerts SET status=$1, updated_at=$2 WHERE id=$3 AND status='active'
        RETURNING `+alertCols, string(status), now(), alertID))
	if err == nil {
		return a, nil
	}
	if !errors.Is(err, sql.ErrNoRows) {
		return nil, err
	}
	cur, err := r.Get(ctx, alertID)
	if err != nil {
		return nil, err
	}
	if err := store.CheckTransition(cur.Status, status); err != nil {
		return nil, err
	}
	return nil, fmt.Errorf("alert %s changed concurrently: %w", alertID, model.ErrConflict)
}

// --- Tool settings ---
type toolSettings struct{ db *sql.DB }

func (r *toolSettings) Upsert(ctx context.Context, s *model.ToolSetting) (*model.ToolSetting, error) {
	if err := store.ValidateToolSetting(s); err != nil {
		return nil, err
	}
	out := *s
	out.UpdatedAt = now()
	row := r.db.QueryRowContext(ctx, `
        INSERT INTO tool_settings (id, scope, session_id, session_slot, tool_id, enabled, created_at, updated_at)
        VALUES ($1,$2,$3,$4,$5,$6,$7,$7)
        ON CONFLICT (scope, session_slot, tool_id) DO UPDATE SET
            enabled = EXCLUDED.enabled,
            updated_at = EXCLUDED.updated_at
        RETURNING id, created_at
    `, uuid.New().String(), string(s.Scope), nullable(s.SessionID), store.SessionSlot(s.Scope, s.SessionID),
		s.ToolID, s.Enabled, out.UpdatedAt)
	if err := row.Scan(&out.SettingID, &out.CreatedAt); err != nil {
		return nil, err
	}
	out.CreatedAt = out.CreatedAt.UTC()
	return &out, nil
}

func (r *toolSettings) List(ctx context.Context, scope model.Scope, sessionID string) ([]*model.ToolSetting, error) {
	const cols = `id, scope, session_id, tool_id, enabled, created_at, updated_at`
	var rows *sql.Rows
	var err error
	switch scope {
	case model.ScopeGlobal:
		rows, err = r.db.QueryContext(ctx, `SELECT `+cols+` FROM tool_settings WHERE scope='global' ORDER BY updated_at DESC, id`)
	case model.ScopeSession:
		if sessionID == "" {
			return nil, model.NewValidationError("sessionId", "required for session scope")
		}
		rows, err = r.db.QueryContext(ctx, `SELECT `+cols+` FROM tool_settings WHERE scope='session' AND session_id=$1 ORDER BY updated_at DESC, id`, sessionID)
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
		if err := rows.Scan(&t.SettingID, &scopeStr, &sid, &t.ToolID, &t.Enabled, &t.CreatedAt, &t.UpdatedAt); err != nil {
			return nil, err
		}
		t.Scope = model.Scope(scopeStr)
		t.SessionID = ptr(sid)
		t.CreatedAt = t.CreatedAt.UTC()
		t.UpdatedAt = t.UpdatedAt.UTC()
		out = append(out, &t)
	}
	return out, rows.Err()
}

func (r *toolSettings) Effective(ctx context.Context, sessionID string, toolIDs []string) (map[string]bool, error) {
	rows, err := r.db.QueryContext(ctx, `
        SELECT scope, tool_id, enabled FROM tool_settings
        WHERE scope='global' OR (scope='session' AND session_id=$1)
    `, sessionID)
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
