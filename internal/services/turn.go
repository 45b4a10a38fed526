package services

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/rs/zerolog"

	"github.com/companionos/companion/internal/judge"
	"github.com/companionos/companion/internal/llm"
	"github.com/companionos/companion/internal/metrics"
	"github.com/companionos/companion/internal/model"
	"github.com/companionos/companion/internal/persona"
	"github.com/companionos/companion/internal/pipeline"
	"github.com/companionos/companion/internal/store"
	"github.com/companionos/companion/internal/tools"
)

const (
	// MaxMessageLen bounds an incoming user message, in runes.
	MaxMessageLen = 4000

	// RefusalText is sent when the judge blocks a draft without a replacement.
	RefusalText = "I cannot answer that."

	historyLimit     = 50
	memoryReadLimit  = 50
	toolRecentWindow = 10

	correctiveFormat = "Your previous response was rejected. Feedback: %s. Rewrite it following these instructions."
)

// TurnConfig controls draft generation.
type TurnConfig struct {
	Model           string
	GenerateTimeout time.Duration
	MaxAttempts     int
}

// JudgeOutcome is the caller-visible judge result of a turn.
type JudgeOutcome struct {
	Verdict  judge.Kind `json:"verdict"`
	Reason   string     `json:"reason"`
	RiskTags []string   `json:"riskTags"`
}

// TurnResult aggregates everything a turn produced.
type TurnResult struct {
	SessionID  string          `json:"sessionId"`
	PersonaID  string          `json:"personaId"`
	Assistant  string          `json:"assistant"`
	Judge      JudgeOutcome    `json:"judge"`
	Attempts   int             `json:"attempts"`
	Pipeline   pipeline.Report `json:"pipeline"`
	ToolEvents []tools.Event   `json:"toolEvents"`
}

// TurnService runs one user message through generate, judge, persist,
// memory extraction and tools.
type TurnService struct {
	store    store.Store
	personas *persona.Catalog
	backend  llm.Backend
	gate     *judge.Gate
	pipeline *pipeline.Pipeline
	registry *tools.Registry
	runner   *tools.Runner
	cfg      TurnConfig
	log      zerolog.Logger
	now      func() time.Time
}

func NewTurnService(st store.Store, personas *persona.Catalog, backend llm.Backend, gate *judge.Gate, pipe *pipeline.Pipeline, reg *tools.Registry, cfg TurnConfig, log zerolog.Logger) *TurnService {
	if cfg.MaxAttempts <= 0 || cfg.MaxAttempts > 3 {
		cfg.MaxAttempts = 3
	}
	return &TurnService{
		store:    st,
		personas: personas,
		backend:  backend,
		gate:     gate,
		pipeline: pipe,
		registry: reg,
		runner:   tools.NewRunner(reg, log),
		cfg:      cfg,
		log:      log.With().Str("component", "turn").Logger(),
		now:      time.Now,
	}
}

// ValidateMessage checks an incoming user message.
func ValidateMessage(message string) error {
	n := len([]rune(message))
	if strings.TrimSpace(message) == "" || n > MaxMessageLen {
		return model.NewValidationError("message", fmt.Sprintf("must be 1-%d characters", MaxMessageLen))
	}
	return nil
}

// Process runs a full turn. Only an unknown session, an invalid message, a
// storage failure or a draft generation failure (model.ErrUpstream) is
// returned as an error. The turn is not cancelled when ctx is.
func (s *TurnService) Process(ctx context.Context, sessionID, message string) (*TurnResult, error) {
	ctx = context.WithoutCancel(ctx)
	start := time.Now()

	if err := ValidateMessage(message); err != nil {
		return nil, err
	}
	sess, err := s.store.Sessions().Get(ctx, sessionID)
	if err != nil {
		return nil, err
	}
	p, ok := s.personas.Get(sess.PersonaID)
	if !ok {
		return nil, fmt.Errorf("session %s references missing persona %q", sessionID, sess.PersonaID)
	}

	res, err := s.process(ctx, sess, p, message)
	if err != nil {
		metrics.TurnFailures.Inc()
		s.log.Error().Err(err).Str("session_id", sessionID).Msg("turn failed")
		return nil, err
	}
	metrics.TurnsTotal.WithLabelValues(string(res.Judge.Verdict)).Inc()
	metrics.TurnAttempts.Observe(float64(res.Attempts))
	s.log.Info().
		Str("session_id", sessionID).
		Str("persona_id", p.ID).
		Str("verdict", string(res.Judge.Verdict)).
		Int("attempts", res.Attempts).
		Int("tool_events", len(res.ToolEvents)).
		Dur("elapsed", time.Since(start)).
		Msg("turn completed")
	return res, nil
}

func (s *TurnService) process(ctx context.Context, sess *model.Session, p persona.Persona, message string) (*TurnResult, error) {
	sessionID := sess.SessionID

	memory, err := s.readMemory(ctx, sessionID, p)
	if err != nil {
		return nil, fmt.Errorf("read memory: %w", err)
	}
	prior, err := s.store.Messages().Recent(ctx, sessionID, historyLimit)
	if err != nil {
		return nil, fmt.Errorf("load history: %w", err)
	}
	enabled, err := s.store.ToolSettings().Effective(ctx, sessionID, s.registry.IDs())
	if err != nil {
		return nil, fmt.Errorf("resolve tools: %w", err)
	}

	userMsg, err := s.store.Messages().Append(ctx, sessionID, model.RoleUser, message)
	if err != nil {
		return nil, fmt.Errorf("persist user message: %w", err)
	}

	system := persona.SystemPrompt(p, memory, s.registry.Capabilities(enabled))
	history := make([]llm.Message, 0, len(prior)+2)
	for _, m := range prior {
		history = append(history, llm.Message{Role: m.Role, Content: m.Content})
	}

	final, verdict, attempts, err := s.draftLoop(ctx, p, system, history, message, memory)
	if err != nil {
		return nil, err
	}

	if _, err := s.store.Messages().Append(ctx, sessionID, model.RoleAssistant, final); err != nil {
		return nil, fmt.Errorf("persist assistant message: %w", err)
	}

	report := s.pipeline.Run(ctx, sessionID, p)

	recent, err := s.store.Messages().Recent(ctx, sessionID, toolRecentWindow)
	if err != nil {
		s.log.Warn().Err(err).Str("session_id", sessionID).Msg("load recent messages for tools")
	}
	summary, err := s.store.Summaries().Get(ctx, sessionID)
	if err != nil && !errors.Is(err, model.ErrNotFound) {
		s.log.Warn().Err(err).Str("session_id", sessionID).Msg("load summary for tools")
	}

	events := s.runner.Run(ctx, tools.Context{
		SessionID:      sessionID,
		Persona:        p,
		Memory:         memory,
		Summary:        summary,
		Recent:         recent,
		UserMessage:    message,
		UserMessageID:  userMsg.MessageID,
		AssistantFinal: final,
		Now:            s.now(),
	}, enabled)

	riskTags := verdict.RiskTags
	if riskTags == nil {
		riskTags = []string{}
	}
	return &TurnResult{
		SessionID:  sessionID,
		PersonaID:  p.ID,
		Assistant:  final,
		Judge:      JudgeOutcome{Verdict: verdict.Kind, Reason: verdict.Reason, RiskTags: riskTags},
		Attempts:   attempts,
		Pipeline:   report,
		ToolEvents: events,
	}, nil
}

// draftLoop drives generate and judge for at most MaxAttempts drafts. Only
// the latest rejected draft and its feedback are carried into the next
// attempt. The returned verdict is already normalised for the caller.
func (s *TurnService) draftLoop(ctx context.Context, p persona.Persona, system string, history []llm.Message, message string, memory []model.MemoryItem) (string, judge.Verdict, int, error) {
	var (
		draft, final string
		verdict      judge.Verdict
		corrective   []llm.Message
		attempts     int
	)
	for attempts = 1; attempts <= s.cfg.MaxAttempts; attempts++ {
		ctxHistory := append(history[:len(history):len(history)], corrective...)
		d, err := s.generate(ctx, system, ctxHistory, message)
		if err != nil {
			return "", judge.Verdict{}, attempts, fmt.Errorf("generate draft (attempt %d): %w: %w", attempts, model.ErrUpstream, err)
		}
		draft = d
		verdict = s.gate.Evaluate(ctx, p, message, draft, memory)

		var retry bool
		final, retry = resolve(verdict, draft, attempts < s.cfg.MaxAttempts)
		if !retry {
			break
		}
		corrective = []llm.Message{
			{Role: model.RoleAssistant, Content: draft},
			{Role: model.RoleSystem, Content: fmt.Sprintf(correctiveFormat, verdict.Feedback)},
		}
		s.log.Debug().Int("attempt", attempts).Str("feedback", verdict.Feedback).Msg("draft rejected; retrying")
	}
	if attempts > s.cfg.MaxAttempts {
		attempts = s.cfg.MaxAttempts
	}
	if final == "" {
		final = draft
	}
	if verdict.Kind == judge.Rewrite && final != "" {
		verdict.Kind = judge.Pass
	}
	return final, verdict, attempts, nil
}

// resolve maps a verdict on draft to a final reply, or asks for another attempt.
func resolve(v judge.Verdict, draft string, attemptsLeft bool) (final string, retry bool) {
	switch v.Kind {
	case judge.Rewrite:
		if v.Feedback != "" && attemptsLeft {
			return "", true
		}
		if v.Rewritten != "" {
			return v.Rewritten, false
		}
		return draft, false
	case judge.Block:
		if v.Rewritten != "" {
			return v.Rewritten, false
		}
		return RefusalText, false
	default:
		return draft, false
	}
}

func (s *TurnService) generate(ctx context.Context, system string, history []llm.Message, prompt string) (string, error) {
	if s.cfg.GenerateTimeout > 0 {
		var cancel context.CancelFunc
		ctx, cancel = context.WithTimeout(ctx, s.cfg.GenerateTimeout)
		defer cancel()
	}
	draft, err := s.backend.Chat(ctx, llm.Request{
		Class:   llm.ClassGenerate,
		Model:   s.cfg.Model,
		System:  system,
		History: history,
		Prompt:  prompt,
	})
	if err != nil {
		return "", err
	}
	// A blank generation is no reply at all.
	if strings.TrimSpace(draft) == "" {
		return "", llm.ErrEmptyResponse
	}
	return draft, nil
}

// readMemory applies the persona memory policy: disabled reads nothing, global
// scope reads global items, session scope reads global then session items.
func (s *TurnService) readMemory(ctx context.Context, sessionID string, p persona.Persona) ([]model.MemoryItem, error) {
	if !p.MemoryPolicy.Enabled {
		return nil, nil
	}
	global, err := s.store.MemoryItems().List(ctx, model.ScopeGlobal, "", memoryReadLimit)
	if err != nil {
		return nil, err
	}
	items := global
	if p.MemoryScope() == model.ScopeSession {
		session, err := s.store.MemoryItems().List(ctx, model.ScopeSession, sessionID, memoryReadLimit)
		if err != nil {
			return nil, err
		}
		items = append(items, session...)
	}
	out := make([]model.MemoryItem, 0, len(items))
	for _, m := range items {
		out = append(out, *m)
	}
	return out, nil
}
