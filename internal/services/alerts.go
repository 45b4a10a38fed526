package services

import (
	"context"
	"time"

	"github.com/companionos/companion/internal/model"
	"github.com/companionos/companion/internal/store"
)

// DefaultDueLimit is the page size of due-alert queries.
const DefaultDueLimit = 10

// AlertService lists alerts and moves them through their lifecycle.
type AlertService struct {
	store store.Store
	now   func() time.Time
}

func NewAlertService(s store.Store) *AlertService { return &AlertService{store: s, now: time.Now} }

func (s *AlertService) ListAlerts(ctx context.Context, f model.AlertFilter) ([]*model.Alert, error) {
	if f.Scope != "" && !f.Scope.Valid() {
		return nil, model.NewValidationError("scope", "must be global or session")
	}
	switch f.Status {
	case "", model.AlertActive, model.AlertDone, model.AlertCancelled:
	default:
		return nil, model.NewValidationError("status", "must be active, done or cancelled")
	}
	return s.store.Alerts().List(ctx, f)
}

// DueAlerts returns active alerts due now, soonest first.
func (s *AlertService) DueAlerts(ctx context.Context, sessionID string, limit int) ([]*model.Alert, error) {
	if limit <= 0 {
		limit = DefaultDueLimit
	}
	return s.store.Alerts().Due(ctx, sessionID, s.now(), limit)
}

func (s *AlertService) MarkDone(ctx context.Context, alertID string) (*model.Alert, error) {
	return s.store.Alerts().UpdateStatus(ctx, alertID, model.AlertDone)
}

func (s *AlertService) Cancel(ctx context.Context, alertID string) (*model.Alert, error) {
	return s.store.Alerts().UpdateStatus(ctx, alertID, model.AlertCancelled)
}
