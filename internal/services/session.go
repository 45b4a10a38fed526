package services

import (
	"context"
	"errors"

	"github.com/companionos/companion/internal/model"
	"github.com/companionos/companion/internal/persona"
	"github.com/companionos/companion/internal/pipeline"
	"github.com/companionos/companion/internal/store"
)

// SessionService manages sessions and their read-only views.
type SessionService struct {
	store    store.Store
	personas *persona.Catalog
	cadence  int
}

func NewSessionService(s store.Store, personas *persona.Catalog, cadence int) *SessionService {
	if cadence <= 0 {
		cadence = 6
	}
	return &SessionService{store: s, personas: personas, cadence: cadence}
}

// SummaryDebug explains where a session sits relative to the summary cadence.
type SummaryDebug struct {
	MessageCount       int  `json:"messageCount"`
	Cadence            int  `json:"cadence"`
	ShouldUpdateAtNext bool `json:"shouldUpdateAtNext"`
	NextUpdateAt       int  `json:"nextUpdateAt"`
}

// SummaryView is the summary of a session; Summary is nil until the first write.
type SummaryView struct {
	Session *model.Session        `json:"session"`
	Summary *model.SessionSummary `json:"summary"`
	Debug   SummaryDebug          `json:"debug"`
}

func (s *SessionService) CreateSession(ctx context.Context, personaID string) (*model.Session, error) {
	if _, ok := s.personas.Get(personaID); !ok {
		return nil, model.NewValidationError("personaId", "unknown persona "+personaID)
	}
	return s.store.Sessions().Create(ctx, personaID)
}

func (s *SessionService) GetSession(ctx context.Context, sessionID string) (*model.Session, error) {
	return s.store.Sessions().Get(ctx, sessionID)
}

func (s *SessionService) ListSessions(ctx context.Context, limit int) ([]*model.Session, error) {
	return s.store.Sessions().List(ctx, limit)
}

// Messages returns the session with its first limit messages, oldest first.
func (s *SessionService) Messages(ctx context.Context, sessionID string, limit int) (*model.Session, []*model.Message, error) {
	sess, err := s.store.Sessions().Get(ctx, sessionID)
	if err != nil {
		return nil, nil, err
	}
	msgs, err := s.store.Messages().List(ctx, sessionID, limit)
	if err != nil {
		return nil, nil, err
	}
	return sess, msgs, nil
}

func (s *SessionService) Summary(ctx context.Context, sessionID string) (*SummaryView, error) {
	sess, err := s.store.Sessions().Get(ctx, sessionID)
	if err != nil {
		return nil, err
	}
	sum, err := s.store.Summaries().Get(ctx, sessionID)
	if err != nil && !errors.Is(err, model.ErrNotFound) {
		return nil, err
	}
	count, err := s.store.Messages().Count(ctx, sessionID)
	if err != nil {
		return nil, err
	}
	return &SummaryView{
		Session: sess,
		Summary: sum,
		Debug: SummaryDebug{
			MessageCount:       count,
			Cadence:            s.cadence,
			ShouldUpdateAtNext: pipeline.ShouldUpdate(count, s.cadence),
			NextUpdateAt:       pipeline.NextUpdateAt(count, s.cadence),
		},
	}, nil
}
