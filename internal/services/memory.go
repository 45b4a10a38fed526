package services

import (
	"context"

	"github.com/companionos/companion/internal/model"
	"github.com/companionos/companion/internal/store"
)

// MemoryService exposes manual memory management.
type MemoryService struct {
	store store.Store
}

func NewMemoryService(s store.Store) *MemoryService { return &MemoryService{store: s} }

func (s *MemoryService) ListMemory(ctx context.Context, scope model.Scope, sessionID string, limit int) ([]*model.MemoryItem, error) {
	if !scope.Valid() {
		return nil, model.NewValidationError("scope", "must be global or session")
	}
	if scope == model.ScopeSession && sessionID == "" {
		return nil, model.NewValidationError("sessionId", "required for session scope")
	}
	return s.store.MemoryItems().List(ctx, scope, sessionID, limit)
}

// UpsertMemory writes the live item for (scope, session, key). Session-scoped
// writes require an existing session.
func (s *MemoryService) UpsertMemory(ctx context.Context, m *model.MemoryItem) (*model.MemoryItem, error) {
	m.SessionID = store.NormalizeSessionID(m.SessionID)
	if m.Scope == model.ScopeSession && m.SessionID != nil {
		if _, err := s.store.Sessions().Get(ctx, *m.SessionID); err != nil {
			return nil, err
		}
	}
	return s.store.MemoryItems().Upsert(ctx, m)
}

func (s *MemoryService) DeleteMemory(ctx context.Context, itemID string) error {
	return s.store.MemoryItems().Delete(ctx, itemID)
}
