// Package alerts is the reminder tool: it turns reminder requests in the
// conversation into persisted alerts.
package alerts

import (
	"context"
	"fmt"
	"strings"
	"time"

	"github.com/rs/zerolog"

	"github.com/companionos/companion/internal/extract"
	"github.com/companionos/companion/internal/llm"
	"github.com/companionos/companion/internal/model"
	"github.com/companionos/companion/internal/store"
	"github.com/companionos/companion/internal/tools"
)

const (
	ToolID = "alerts"

	// KindCreated is the event kind emitted when at least one alert was saved.
	KindCreated = "alert_created"

	description = "WORKING alert/reminder system. When user asks to set a reminder, CONFIRM you will do it. " +
		"The alert is saved and will appear in their Alerts Panel. Say: 'Done! I've set a reminder for [time].' " +
		"Do NOT say you cannot set alerts."
)

// Config for the alerts tool.
type Config struct {
	Model    string
	Timeout  time.Duration
	Location *time.Location
}

// Tool implements tools.Tool.
type Tool struct {
	alerts  store.Alerts
	backend llm.Backend
	cfg     Config
	log     zerolog.Logger
}

var _ tools.Tool = (*Tool)(nil)

func New(alerts store.Alerts, backend llm.Backend, cfg Config, log zerolog.Logger) *Tool {
	if cfg.Location == nil {
		cfg.Location = time.UTC
	}
	return &Tool{alerts: alerts, backend: backend, cfg: cfg, log: log.With().Str("tool_id", ToolID).Logger()}
}

func (t *Tool) ID() string          { return ToolID }
func (t *Tool) Name() string        { return "Alerts" }
func (t *Tool) Description() string { return description }

// ShouldRun always holds; the model decides whether anything is due.
func (t *Tool) ShouldRun(tools.Context) bool { return true }

// Run never fails the turn. Extraction and persistence problems are logged and
// yield no event.
func (t *Tool) Run(ctx context.Context, tc tools.Context) ([]tools.Event, error) {
	now := tc.Now
	if now.IsZero() {
		now = time.Now()
	}
	now = now.In(t.cfg.Location)

	candidates, err := t.extract(ctx, tc, now)
	if err != nil {
		t.log.Warn().Err(err).Str("session_id", tc.SessionID).Msg("alert extraction failed")
		return nil, nil
	}
	if len(candidates) == 0 {
		return nil, nil
	}

	items := make([]map[string]any, 0, len(candidates))
	for _, c := range candidates {
		a, err := t.alerts.Create(ctx, &model.Alert{
			Scope:           model.ScopeSession,
			SessionID:       model.StringPtr(tc.SessionID),
			Title:           c.Title,
			Body:            c.Body,
			DueAt:           c.DueAt,
			RepeatRule:      c.RepeatRule,
			Confidence:      c.Confidence,
			SourceMessageID: model.StringPtr(tc.UserMessageID),
		})
		if err != nil {
			t.log.Error().Err(err).Str("session_id", tc.SessionID).Str("title", c.Title).Msg("alert create failed")
			continue
		}
		t.log.Info().Str("alert_id", a.AlertID).Str("session_id", tc.SessionID).Time("due_at", a.DueAt).Msg("alert created")
		items = append(items, map[string]any{
			"alertId":    a.AlertID,
			"title":      a.Title,
			"dueAt":      a.DueAt.In(t.cfg.Location).Format(time.RFC3339),
			"repeatRule": a.RepeatRule,
			"status":     string(a.Status),
			"scope":      string(a.Scope),
		})
	}
	if len(items) == 0 {
		return nil, nil
	}
	return []tools.Event{{
		ToolID:  ToolID,
		Kind:    KindCreated,
		Title:   "Reminder set",
		Message: fmt.Sprintf("Created %d alert(s).", len(items)),
		Data:    map[string]any{"count": len(items), "items": items},
	}}, nil
}

func (t *Tool) extract(ctx context.Context, tc tools.Context, now time.Time) ([]extract.AlertCandidate, error) {
	if t.cfg.Timeout > 0 {
		var cancel context.CancelFunc
		ctx, cancel = context.WithTimeout(ctx, t.cfg.Timeout)
		defer cancel()
	}
	raw, err := t.backend.Chat(ctx, llm.Request{
		Class:  llm.ClassAlert,
		Model:  t.cfg.Model,
		System: systemPrompt,
		Prompt: buildUserPrompt(tc, now),
	})
	if err != nil {
		return nil, err
	}
	obj, ok := extract.JSONObject(raw)
	if !ok {
		return nil, fmt.Errorf("no JSON object in model output: %q", extract.Truncate(strings.TrimSpace(raw), 200))
	}
	return extract.ValidateAlerts(obj, extract.AlertRules{Location: t.cfg.Location}), nil
}
