package store

import (
	"context"
	"time"

	"github.com/companionos/companion/internal/model"
)

// Store exposes persistence operations required by services.
// Implementations live under internal/store/<driver>/ (sqlite, postgres).
//
// Drivers enforce the single-slot rule for memory items, summaries and tool
// settings with one INSERT ... ON CONFLICT statement per write, so concurrent
// upserts of the same key are last-writer-wins and never produce two rows.
type Store interface {
	Sessions() Sessions
	Messages() Messages
	MemoryItems() MemoryItems
	Summaries() Summaries
	Alerts() Alerts
	ToolSettings() ToolSettings
}

type Sessions interface {
	Create(ctx context.Context, personaID string) (*model.Session, error)
	Get(ctx context.Context, sessionID string) (*model.Session, error)
	List(ctx context.Context, limit int) ([]*model.Session, error)
}

type Messages interface {
	Append(ctx context.Context, sessionID string, role model.Role, content string) (*model.Message, error)
	// List returns the first limit messages, oldest first.
	List(ctx context.Context, sessionID string, limit int) ([]*model.Message, error)
	// Recent returns the last n messages, oldest first.
	Recent(ctx context.Context, sessionID string, n int) ([]*model.Message, error)
	Count(ctx context.Context, sessionID string) (int, error)
}

type MemoryItems interface {
	// Upsert writes the single live item for (Scope, SessionID, Key).
	Upsert(ctx context.Context, m *model.MemoryItem) (*model.MemoryItem, error)
	// List returns items of scope; sessionID is ignored for global scope.
	List(ctx context.Context, scope model.Scope, sessionID string, limit int) ([]*model.MemoryItem, error)
	Delete(ctx context.Context, itemID string) error
}

type Summaries interface {
	Get(ctx context.Context, sessionID string) (*model.SessionSummary, error)
	Upsert(ctx context.Context, s *model.SessionSummary) (*model.SessionSummary, error)
}

type Alerts interface {
	Create(ctx context.Context, a *model.Alert) (*model.Alert, error)
	Get(ctx context.Context, alertID string) (*model.Alert, error)
	List(ctx context.Context, f model.AlertFilter) ([]*model.Alert, error)
	// Due returns active alerts with DueAt <= now, soonest first. An empty
	// sessionID matches every session.
	Due(ctx context.Context, sessionID string, now time.Time, limit int) ([]*model.Alert, error)
	// UpdateStatus moves an active alert to a terminal status. Anything else
	// is model.ErrConflict; an unknown id is model.ErrNotFound.
	UpdateStatus(ctx context.Context, alertID string, status model.AlertStatus) (*model.Alert, error)
}

type ToolSettings interface {
	Upsert(ctx context.Context, s *model.ToolSetting) (*model.ToolSetting, error)
	List(ctx context.Context, scope model.Scope, sessionID string) ([]*model.ToolSetting, error)
	// Effective resolves enabled state per tool id: session override, then
	// global override, then true.
	Effective(ctx context.Context, sessionID string, toolIDs []string) (map[string]bool, error)
}
