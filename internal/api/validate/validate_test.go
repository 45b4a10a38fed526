package validate

import (
	"strings"
	"testing"

	"github.com/companionos/companion/internal/model"
)

func TestLimit(t *testing.T) {
	if n, err := Limit("", 50); err != nil || n != 50 {
		t.Fatalf("default: got %d, %v", n, err)
	}
	if n, err := Limit("10", 50); err != nil || n != 10 {
		t.Fatalf("explicit: got %d, %v", n, err)
	}
	for _, raw := range []string{"0", "-1", "501", "ten"} {
		if _, err := Limit(raw, 50); !model.IsValidationError(err) {
			t.Fatalf("expected validation error for %q, got %v", raw, err)
		}
	}
}

func TestScope(t *testing.T) {
	if s, err := Scope("", model.ScopeGlobal); err != nil || s != model.ScopeGlobal {
		t.Fatalf("default: got %q, %v", s, err)
	}
	if s, err := Scope("SESSION", model.ScopeGlobal); err != nil || s != model.ScopeSession {
		t.Fatalf("case-insensitive: got %q, %v", s, err)
	}
	if _, err := Scope("user", model.ScopeGlobal); !model.IsValidationError(err) {
		t.Fatalf("expected validation error, got %v", err)
	}
}

func TestAlertStatus(t *testing.T) {
	if s, err := AlertStatus("Done"); err != nil || s != model.AlertDone {
		t.Fatalf("got %q, %v", s, err)
	}
	if _, err := AlertStatus("snoozed"); err == nil {
		t.Fatalf("expected error for unknown status")
	}
}

func TestMemoryWrite(t *testing.T) {
	tests := []struct {
		name       string
		scope      model.Scope
		session    string
		key, value string
		confidence float64
		wantErr    string
	}{
		{"valid global", model.ScopeGlobal, "", "name", "Sam", 0.8, ""},
		{"valid session", model.ScopeSession, "s1", "mood", "calm", 1, ""},
		{"session scope without id", model.ScopeSession, "", "mood", "calm", 0.8, "sessionId"},
		{"global scope with id", model.ScopeGlobal, "s1", "name", "Sam", 0.8, "sessionId"},
		{"empty key", model.ScopeGlobal, "", " ", "Sam", 0.8, "key"},
		{"long key", model.ScopeGlobal, "", strings.Repeat("k", 65), "Sam", 0.8, "key"},
		{"long value", model.ScopeGlobal, "", "bio", strings.Repeat("é", 401), 0.8, "value"},
		{"confidence above one", model.ScopeGlobal, "", "name", "Sam", 1.2, "confidence"},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			err := MemoryWrite(tt.scope, tt.session, tt.key, tt.value, tt.confidence)
			if tt.wantErr == "" {
				if err != nil {
					t.Fatalf("unexpected error: %v", err)
				}
				return
			}
			if err == nil || !strings.Contains(err.Error(), tt.wantErr) {
				t.Fatalf("expected %s error, got %v", tt.wantErr, err)
			}
		})
	}
}

func TestToolSetting(t *testing.T) {
	if err := ToolSetting(model.ScopeGlobal, "", "alerts"); err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if err := ToolSetting(model.ScopeGlobal, "", "Alerts Tool"); err == nil {
		t.Fatalf("expected error for invalid tool id")
	}
	if err := ToolSetting(model.ScopeSession, "", "alerts"); err == nil {
		t.Fatalf("expected error for missing session id")
	}
}
