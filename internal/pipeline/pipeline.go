// Package pipeline mines durable facts and a rolling session summary from the
// conversation after each turn.
package pipeline

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/rs/zerolog"

	"github.com/companionos/companion/internal/extract"
	"github.com/companionos/companion/internal/llm"
	"github.com/companionos/companion/internal/metrics"
	"github.com/companionos/companion/internal/model"
	"github.com/companionos/companion/internal/persona"
	"github.com/companionos/companion/internal/store"
)

// Summary sources reported in Report.SummarySource.
const (
	SourceModel     = "model"
	SourceFallback  = "fallback"
	SourceEmergency = "emergency"
)

// Config controls extraction and the summary cadence.
type Config struct {
	RecentMessages int
	Threshold      float64
	Cadence        int
	AllowGlobal    bool
	Model          string
	Timeout        time.Duration
}

// Report describes one pipeline run. It is returned to API callers as diagnostics.
type Report struct {
	SessionID           string   `json:"sessionId"`
	MessageCount        int      `json:"messageCount"`
	ShouldUpdateSummary bool     `json:"shouldUpdateSummary"`
	MemoryItemsUpserted int      `json:"memoryItemsUpserted"`
	MemoryItemsSkipped  int      `json:"memoryItemsSkipped"`
	SummaryUpdated      bool     `json:"summaryUpdated"`
	SummaryLen          int      `json:"summaryLen"`
	SummarySource       string   `json:"summarySource,omitempty"`
	Errors              []string `json:"errors"`
}

// Pipeline runs after the user and assistant messages of a turn are persisted.
type Pipeline struct {
	store   store.Store
	backend llm.Backend
	cfg     Config
	log     zerolog.Logger
}

func New(st store.Store, backend llm.Backend, cfg Config, log zerolog.Logger) *Pipeline {
	if cfg.Cadence <= 0 {
		cfg.Cadence = 6
	}
	if cfg.RecentMessages <= 0 {
		cfg.RecentMessages = 10
	}
	return &Pipeline{store: st, backend: backend, cfg: cfg, log: log.With().Str("component", "pipeline").Logger()}
}

// ShouldUpdate reports whether a session with count messages is on a summary boundary.
func ShouldUpdate(count, cadence int) bool {
	return cadence > 0 && count%cadence == 0
}

// NextUpdateAt is the smallest message count above count that refreshes the summary.
func NextUpdateAt(count, cadence int) int {
	return (count/cadence + 1) * cadence
}

// Run never returns an error; failures are collected in Report.Errors.
func (p *Pipeline) Run(ctx context.Context, sessionID string, per persona.Persona) (rep Report) {
	rep = Report{SessionID: sessionID, Errors: []string{}}
	defer func() {
		if r := recover(); r != nil {
			p.fail(ctx, &rep, fmt.Errorf("panic: %v", r))
		}
	}()

	recent, err := p.store.Messages().Recent(ctx, sessionID, p.cfg.RecentMessages)
	if err != nil {
		p.fail(ctx, &rep, fmt.Errorf("load recent messages: %w", err))
		return rep
	}
	count, err := p.store.Messages().Count(ctx, sessionID)
	if err != nil {
		p.fail(ctx, &rep, fmt.Errorf("count messages: %w", err))
		return rep
	}
	rep.MessageCount = count
	rep.ShouldUpdateSummary = ShouldUpdate(count, p.cfg.Cadence)

	current, err := p.store.Summaries().Get(ctx, sessionID)
	if err != nil && !errors.Is(err, model.ErrNotFound) {
		p.fail(ctx, &rep, fmt.Errorf("load summary: %w", err))
		return rep
	}

	facts, patch, err := p.extract(ctx, per, current, recent)
	if err != nil {
		// Treated as an empty extraction: no facts and no summary patch.
		rep.Errors = append(rep.Errors, "extraction_failed: "+err.Error())
		p.log.Warn().Err(err).Str("session_id", sessionID).Msg("memory extraction failed")
	}

	if !per.MemoryPolicy.Enabled {
		rep.MemoryItemsSkipped = len(facts)
	} else {
		source := latestUserMessageID(recent)
		for _, f := range facts {
			item := &model.MemoryItem{
				Scope:           f.Scope,
				Key:             f.Key,
				Value:           f.Value,
				Confidence:      f.Confidence,
				SourceMessageID: source,
			}
			if f.Scope == model.ScopeSession {
				item.SessionID = model.StringPtr(sessionID)
			}
			if _, err := p.store.MemoryItems().Upsert(ctx, item); err != nil {
				p.fail(ctx, &rep, fmt.Errorf("upsert memory %s: %w", f.Key, err))
				return rep
			}
			rep.MemoryItemsUpserted++
			metrics.MemoryUpserts.WithLabelValues(string(f.Scope)).Inc()
		}
	}

	if !rep.ShouldUpdateSummary {
		return rep
	}

	text, src := patch.Summary, SourceModel
	if text == "" {
		text, src = FallbackSummary(recent, count), SourceFallback
		rep.Errors = append(rep.Errors, "extraction returned empty summary at cadence; used fallback summary")
		p.log.Warn().Str("session_id", sessionID).Msg("empty summary at cadence; using fallback")
	}
	if _, err := p.store.Summaries().Upsert(ctx, &model.SessionSummary{SessionID: sessionID, Summary: text, OpenLoops: patch.OpenLoops}); err != nil {
		p.fail(ctx, &rep, fmt.Errorf("upsert summary: %w", err))
		return rep
	}
	p.summaryWritten(&rep, text, src)
	p.log.Info().Str("session_id", sessionID).Str("source", src).Int("summary_len", rep.SummaryLen).Msg("session summary updated")
	return rep
}

func (p *Pipeline) extract(ctx context.Context, per persona.Persona, current *model.SessionSummary, recent []*model.Message) ([]extract.FactCandidate, extract.SummaryPatch, error) {
	rules := extract.FactRules{Threshold: p.cfg.Threshold, AllowGlobal: p.cfg.AllowGlobal}
	empty := extract.SummaryPatch{OpenLoops: []string{}}

	if p.cfg.Timeout > 0 {
		var cancel context.CancelFunc
		ctx, cancel = context.WithTimeout(ctx, p.cfg.Timeout)
		defer cancel()
	}
	raw, err := p.backend.Chat(ctx, llm.Request{
		Class:  llm.ClassExtract,
		Model:  p.cfg.Model,
		System: extractSystem,
		Prompt: buildExtractPrompt(per, current, recent, rules.AllowedScopes()),
	})
	if err != nil {
		return nil, empty, err
	}
	obj, ok := extract.JSONObject(raw)
	if !ok {
		return nil, empty, fmt.Errorf("no JSON object in model output: %q", extract.Truncate(strings.TrimSpace(raw), 200))
	}
	facts, patch := extract.ValidateFacts(obj, rules)
	return facts, patch, nil
}

// fail records an unexpected failure and, on a cadence boundary, writes the
// emergency summary so the slot is never left stale.
func (p *Pipeline) fail(ctx context.Context, rep *Report, err error) {
	rep.Errors = append(rep.Errors, "pipeline_error: "+err.Error())
	p.log.Error().Stack().Err(err).Str("session_id", rep.SessionID).Msg("post-turn pipeline failed")

	count, cErr := p.store.Messages().Count(ctx, rep.SessionID)
	if cErr != nil {
		rep.Errors = append(rep.Errors, "emergency_summary_failed: "+cErr.Error())
		return
	}
	if !ShouldUpdate(count, p.cfg.Cadence) {
		return
	}
	text := EmergencySummary(count)
	if _, uErr := p.store.Summaries().Upsert(ctx, &model.SessionSummary{SessionID: rep.SessionID, Summary: text, OpenLoops: []string{}}); uErr != nil {
		rep.Errors = append(rep.Errors, "emergency_summary_failed: "+uErr.Error())
		p.log.Error().Err(uErr).Str("session_id", rep.SessionID).Msg("emergency summary failed")
		return
	}
	rep.MessageCount = count
	rep.ShouldUpdateSummary = true
	p.summaryWritten(rep, text, SourceEmergency)
	rep.Errors = append(rep.Errors, "extraction failed at cadence; wrote emergency summary")
}

func (p *Pipeline) summaryWritten(rep *Report, text, source string) {
	rep.SummaryUpdated = true
	rep.SummaryLen = len([]rune(text))
	rep.SummarySource = source
	metrics.SummaryWrites.WithLabelValues(source).Inc()
}

func latestUserMessageID(recent []*model.Message) *string {
	for i := len(recent) - 1; i >= 0; i-- {
		if recent[i].Role == model.RoleUser {
			return model.StringPtr(recent[i].MessageID)
		}
	}
	return nil
}

// FallbackSummary is the deterministic summary written when extraction
// produced none on a cadence boundary.
func FallbackSummary(recent []*model.Message, count int) string {
	if len(recent) == 0 {
		return fmt.Sprintf("Session with %d messages.", count)
	}
	tail := recent
	if len(tail) > 4 {
		tail = tail[len(tail)-4:]
	}
	var snippets []string
	for _, m := range tail {
		content := strings.ReplaceAll(strings.TrimSpace(m.Content), "\n", " ")
		if content == "" {
			continue
		}
		snippets = append(snippets, fmt.Sprintf("%s: %s", m.Role, extract.Truncate(content, 80)))
	}
	if len(snippets) > 3 {
		snippets = snippets[:3]
	}
	return fmt.Sprintf("Session with %d messages. Recent: %s", count, strings.Join(snippets, " | "))
}

// EmergencySummary is written when the pipeline fails on a cadence boundary.
func EmergencySummary(count int) string {
	return fmt.Sprintf("Session with %d messages. Summary temporarily unavailable.", count)
}
