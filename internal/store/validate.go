package store

import (
	"fmt"
	"strings"

	"github.com/companionos/companion/internal/model"
)

// Default and maximum page sizes for list operations.
const (
	DefaultLimit = 50
	MaxLimit     = 500
)

// ClampLimit maps non-positive limits to DefaultLimit and caps at MaxLimit.
func ClampLimit(n int) int {
	if n <= 0 {
		return DefaultLimit
	}
	if n > MaxLimit {
		return MaxLimit
	}
	return n
}

// SessionSlot is the unique-index column for scoped rows: the session id for
// session rows, "" for global rows. The session_id column itself stays NULL
// for global rows.
func SessionSlot(scope model.Scope, sessionID *string) string {
	if scope == model.ScopeSession {
		return model.Deref(sessionID)
	}
	return ""
}

// NormalizeSessionID drops an empty session id so global rows store NULL.
func NormalizeSessionID(sessionID *string) *string {
	return model.StringPtr(strings.TrimSpace(model.Deref(sessionID)))
}

// ValidateMemoryItem checks a memory item before it is written.
func ValidateMemoryItem(m *model.MemoryItem) error {
	if m == nil {
		return model.NewValidationError("memory", "item is required")
	}
	m.SessionID = NormalizeSessionID(m.SessionID)
	if err := model.ValidateScopedSession(m.Scope, m.SessionID); err != nil {
		return err
	}
	if strings.TrimSpace(m.Key) == "" || len(m.Key) > 64 {
		return model.NewValidationError("key", "must be 1-64 characters")
	}
	if strings.TrimSpace(m.Value) == "" || len([]rune(m.Value)) > 400 {
		return model.NewValidationError("value", "must be 1-400 characters")
	}
	if m.Confidence < 0 || m.Confidence > 1 {
		return model.NewValidationError("confidence", "must be within [0,1]")
	}
	return nil
}

// ValidateToolSetting checks a tool setting before it is written.
func ValidateToolSetting(s *model.ToolSetting) error {
	if s == nil {
		return model.NewValidationError("tool_setting", "setting is required")
	}
	s.SessionID = NormalizeSessionID(s.SessionID)
	if err := model.ValidateScopedSession(s.Scope, s.SessionID); err != nil {
		return err
	}
	if strings.TrimSpace(s.ToolID) == "" || len(s.ToolID) > 64 {
		return model.NewValidationError("tool_id", "must be 1-64 characters")
	}
	return nil
}

// ValidateAlert checks an alert before it is created.
func ValidateAlert(a *model.Alert) error {
	if a == nil {
		return model.NewValidationError("alert", "alert is required")
	}
	a.SessionID = NormalizeSessionID(a.SessionID)
	if err := model.ValidateScopedSession(a.Scope, a.SessionID); err != nil {
		return err
	}
	if strings.TrimSpace(a.Title) == "" {
		return model.NewValidationError("title", "is required")
	}
	if a.DueAt.IsZero() {
		return model.NewValidationError("due_at", "is required")
	}
	if a.Confidence < 0 || a.Confidence > 1 {
		return model.NewValidationError("confidence", "must be within [0,1]")
	}
	return nil
}

// CapOpenLoops trims, drops blanks and caps a summary's open loops.
func CapOpenLoops(loops []string) []string {
	out := make([]string, 0, len(loops))
	for _, l := range loops {
		if l = strings.TrimSpace(l); l != "" {
			out = append(out, l)
		}
		if len(out) == model.MaxOpenLoops {
			break
		}
	}
	return out
}

// CheckTransition reports whether an alert may move from cur to next.
func CheckTransition(cur, next model.AlertStatus) error {
	if !next.Terminal() {
		return model.NewValidationError("status", fmt.Sprintf("unsupported target status %q", next))
	}
	if cur != model.AlertActive {
		return fmt.Errorf("alert is %s: %w", cur, model.ErrConflict)
	}
	return nil
}

// Resolve applies tool enable precedence: session override, then global
// override, then enabled.
func Resolve(toolIDs []string, global, session map[string]bool) map[string]bool {
	out := make(map[string]bool, len(toolIDs))
	for _, id := range toolIDs {
		enabled := true
		if v, ok := global[id]; ok {
			enabled = v
		}
		if v, ok := session[id]; ok {
			enabled = v
		}
		out[id] = enabled
	}
	return out
}
