// Package validate checks HTTP request input before it reaches the services.
// Every failure is a model.ValidationError so handlers answer 400.
package validate

import (
	"fmt"
	"regexp"
	"strconv"
	"strings"
	"unicode/utf8"

	"github.com/companionos/companion/internal/model"
)

const (
	MaxKeyLen    = 64
	MaxValueLen  = 400
	MaxToolIDLen = 64
	MaxLimit     = 500

	// DefaultConfidence applies to manual memory writes that omit one.
	DefaultConfidence = 0.8
)

// toolIDRx allows lowercase letters, digits, underscore, hyphen and dot.
var toolIDRx = regexp.MustCompile(`^[a-z0-9_.\-]{1,64}$`)

func invalid(field, format string, args ...any) error {
	return model.NewValidationError(field, fmt.Sprintf(format, args...))
}

// Limit parses a page size, returning def when raw is empty.
func Limit(raw string, def int) (int, error) {
	if raw == "" {
		return def, nil
	}
	n, err := strconv.Atoi(raw)
	if err != nil || n < 1 || n > MaxLimit {
		return 0, invalid("limit", "must be an integer in 1-%d", MaxLimit)
	}
	return n, nil
}

// Scope parses a scope, returning def when raw is empty.
func Scope(raw string, def model.Scope) (model.Scope, error) {
	if raw == "" {
		return def, nil
	}
	s := model.Scope(strings.ToLower(raw))
	if !s.Valid() {
		return "", invalid("scope", "must be global or session")
	}
	return s, nil
}

// AlertStatus parses an optional alert status filter.
func AlertStatus(raw string) (model.AlertStatus, error) {
	switch s := model.AlertStatus(strings.ToLower(raw)); s {
	case "", model.AlertActive, model.AlertDone, model.AlertCancelled:
		return s, nil
	}
	return "", invalid("status", "must be active, done or cancelled")
}

func NonEmpty(field, v string) error {
	if strings.TrimSpace(v) == "" {
		return invalid(field, "is required")
	}
	return nil
}

// ScopedSession requires a session id exactly when scope is session.
func ScopedSession(scope model.Scope, sessionID string) error {
	if scope == model.ScopeSession && strings.TrimSpace(sessionID) == "" {
		return invalid("sessionId", "required for session scope")
	}
	if scope == model.ScopeGlobal && strings.TrimSpace(sessionID) != "" {
		return invalid("sessionId", "must be empty for global scope")
	}
	return nil
}

// -------- Request specific helpers ----------

// MemoryWrite validates a manual memory upsert.
func MemoryWrite(scope model.Scope, sessionID, key, value string, confidence float64) error {
	if err := ScopedSession(scope, sessionID); err != nil {
		return err
	}
	if n := utf8.RuneCountInString(strings.TrimSpace(key)); n < 1 || n > MaxKeyLen {
		return invalid("key", "must be 1-%d characters", MaxKeyLen)
	}
	if n := utf8.RuneCountInString(strings.TrimSpace(value)); n < 1 || n > MaxValueLen {
		return invalid("value", "must be 1-%d characters", MaxValueLen)
	}
	if confidence < 0 || confidence > 1 {
		return invalid("confidence", "must be within [0,1]")
	}
	return nil
}

// ToolSetting validates a tool enable/disable override.
func ToolSetting(scope model.Scope, sessionID, toolID string) error {
	if err := ScopedSession(scope, sessionID); err != nil {
		return err
	}
	if !toolIDRx.MatchString(toolID) {
		return invalid("toolId", "must match %s", toolIDRx.String())
	}
	return nil
}
