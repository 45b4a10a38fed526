// Package judge reviews assistant drafts before they reach the user.
//
// The gate never fails a turn: every backend or parse problem degrades to a
// PASS verdict tagged judge_error.
package judge

import (
	"context"
	"fmt"
	"strings"
	"time"

	"github.com/rs/zerolog"

	"github.com/companionos/companion/internal/extract"
	"github.com/companionos/companion/internal/llm"
	"github.com/companionos/companion/internal/metrics"
	"github.com/companionos/companion/internal/model"
	"github.com/companionos/companion/internal/persona"
)

// Kind is the judge decision.
type Kind string

const (
	Pass    Kind = "PASS"
	Rewrite Kind = "REWRITE"
	Block   Kind = "BLOCK"
)

const (
	maxReasonLen = 200
	maxTagLen    = 40
	maxTags      = 10

	// ErrorTag marks verdicts produced because the judge itself failed.
	ErrorTag = "judge_error"
)

// Verdict is the normalised judge output. Feedback and Rewritten are always
// empty for PASS.
type Verdict struct {
	Kind      Kind     `json:"verdict"`
	Feedback  string   `json:"feedback,omitempty"`
	Rewritten string   `json:"rewritten_response,omitempty"`
	Reason    string   `json:"reason"`
	RiskTags  []string `json:"risk_tags"`
}

// Config controls the gate.
type Config struct {
	Enabled   bool
	Model     string
	MaxTokens int
	Timeout   time.Duration
}

// Gate evaluates drafts with a model backend.
type Gate struct {
	backend llm.Backend
	cfg     Config
	log     zerolog.Logger
}

// New creates a gate. A disabled gate never calls backend.
func New(backend llm.Backend, cfg Config, log zerolog.Logger) *Gate {
	return &Gate{backend: backend, cfg: cfg, log: log.With().Str("component", "judge").Logger()}
}

// Enabled reports whether the gate calls the backend.
func (g *Gate) Enabled() bool { return g.cfg.Enabled }

// Evaluate reviews draft as a reply to userMessage. It always returns a verdict.
func (g *Gate) Evaluate(ctx context.Context, p persona.Persona, userMessage, draft string, memory []model.MemoryItem) Verdict {
	if !g.cfg.Enabled {
		metrics.JudgeVerdicts.WithLabelValues("disabled").Inc()
		return Verdict{Kind: Pass, Reason: "judge_disabled", RiskTags: []string{}}
	}

	if g.cfg.Timeout > 0 {
		var cancel context.CancelFunc
		ctx, cancel = context.WithTimeout(ctx, g.cfg.Timeout)
		defer cancel()
	}

	raw, err := g.backend.Chat(ctx, llm.Request{
		Class:     llm.ClassJudge,
		Model:     g.cfg.Model,
		System:    systemPrompt,
		Prompt:    buildUserPrompt(p, userMessage, draft, memory),
		MaxTokens: g.cfg.MaxTokens,
	})
	if err != nil {
		return g.failed(err)
	}

	obj, ok := extract.JSONObject(raw)
	if !ok {
		return g.failed(fmt.Errorf("judge did not return JSON: %s", extract.Truncate(strings.TrimSpace(raw), 200)))
	}
	v := Parse(obj)
	metrics.JudgeVerdicts.WithLabelValues(string(v.Kind)).Inc()
	if v.Kind != Pass {
		g.log.Info().Str("verdict", string(v.Kind)).Str("reason", v.Reason).Strs("risk_tags", v.RiskTags).Msg("draft flagged")
	}
	return v
}

func (g *Gate) failed(err error) Verdict {
	metrics.JudgeVerdicts.WithLabelValues("error").Inc()
	g.log.Warn().Err(err).Msg("judge failed; passing draft")
	return Verdict{
		Kind:     Pass,
		Reason:   extract.Truncate("judge_failed:"+err.Error(), maxReasonLen),
		RiskTags: []string{ErrorTag},
	}
}

// Parse normalises a decoded judge object.
func Parse(obj map[string]any) Verdict {
	v := Verdict{
		Kind:      Kind(strings.ToUpper(extract.String(obj["verdict"]))),
		Feedback:  extract.String(obj["feedback"]),
		Rewritten: extract.String(obj["rewritten_response"]),
		Reason:    extract.Truncate(extract.String(obj["reason"]), maxReasonLen),
		RiskTags:  extract.StringList(obj["risk_tags"], maxTags, maxTagLen),
	}
	switch v.Kind {
	case Pass, Block:
	case Rewrite:
		if v.Feedback == "" && v.Rewritten == "" {
			v.Kind = Pass
		}
	default:
		v.Kind = Pass
	}
	if v.Kind == Pass {
		v.Feedback = ""
		v.Rewritten = ""
	}
	return v
}
