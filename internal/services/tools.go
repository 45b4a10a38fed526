package services

import (
	"context"

	"github.com/companionos/companion/internal/model"
	"github.com/companionos/companion/internal/store"
	"github.com/companionos/companion/internal/tools"
)

// ToolInfo describes a registered tool.
type ToolInfo struct {
	ToolID      string `json:"toolId"`
	Name        string `json:"name"`
	Description string `json:"description"`
}

// ToolService lists tools and manages their enable/disable overrides.
type ToolService struct {
	store    store.Store
	registry *tools.Registry
}

func NewToolService(s store.Store, reg *tools.Registry) *ToolService {
	return &ToolService{store: s, registry: reg}
}

func (s *ToolService) ListTools() []ToolInfo {
	out := make([]ToolInfo, 0)
	for _, t := range s.registry.List() {
		out = append(out, ToolInfo{ToolID: t.ID(), Name: t.Name(), Description: t.Description()})
	}
	return out
}

func (s *ToolService) ListSettings(ctx context.Context, scope model.Scope, sessionID string) ([]*model.ToolSetting, error) {
	if !scope.Valid() {
		return nil, model.NewValidationError("scope", "must be global or session")
	}
	if scope == model.ScopeSession && sessionID == "" {
		return nil, model.NewValidationError("sessionId", "required for session scope")
	}
	return s.store.ToolSettings().List(ctx, scope, sessionID)
}

func (s *ToolService) PutSetting(ctx context.Context, ts *model.ToolSetting) (*model.ToolSetting, error) {
	ts.SessionID = store.NormalizeSessionID(ts.SessionID)
	if ts.Scope == model.ScopeSession && ts.SessionID != nil {
		if _, err := s.store.Sessions().Get(ctx, *ts.SessionID); err != nil {
			return nil, err
		}
	}
	return s.store.ToolSettings().Upsert(ctx, ts)
}

// Effective resolves the enabled state of every registered tool for a session.
func (s *ToolService) Effective(ctx context.Context, sessionID string) (map[string]bool, error) {
	return s.store.ToolSettings().Effective(ctx, sessionID, s.registry.IDs())
}
