package model

import "time"

// Scope tells whether a piece of state applies to every session or to one.
type Scope string

const (
	ScopeGlobal  Scope = "global"
	ScopeSession Scope = "session"
)

// Valid reports whether s is a known scope.
func (s Scope) Valid() bool { return s == ScopeGlobal || s == ScopeSession }

// Role of a conversation message.
type Role string

const (
	RoleUser      Role = "user"
	RoleAssistant Role = "assistant"
	RoleSystem    Role = "system"
)

// AlertStatus is the lifecycle state of an alert. Only active alerts may change state.
type AlertStatus string

const (
	AlertActive    AlertStatus = "active"
	AlertDone      AlertStatus = "done"
	AlertCancelled AlertStatus = "cancelled"
)

// Terminal reports whether no further transition is allowed from s.
func (s AlertStatus) Terminal() bool { return s == AlertDone || s == AlertCancelled }

// Session is an immutable conversation container bound to one persona.
type Session struct {
	SessionID string    `json:"sessionId"`
	PersonaID string    `json:"personaId"`
	CreatedAt time.Time `json:"createdAt"`
}

// Message is an append-only conversation record.
type Message struct {
	MessageID string    `json:"messageId"`
	SessionID string    `json:"sessionId"`
	Role      Role      `json:"role"`
	Content   string    `json:"content"`
	CreatedAt time.Time `json:"createdAt"`
}

// MemoryItem is a durable fact. There is at most one live item per
// (Scope, SessionID, Key); global items always carry a nil SessionID.
type MemoryItem struct {
	ItemID          string    `json:"itemId"`
	Scope           Scope     `json:"scope"`
	SessionID       *string   `json:"sessionId,omitempty"`
	Key             string    `json:"key"`
	Value           string    `json:"value"`
	Confidence      float64   `json:"confidence"`
	SourceMessageID *string   `json:"sourceMessageId,omitempty"`
	CreatedAt       time.Time `json:"createdAt"`
	UpdatedAt       time.Time `json:"updatedAt"`
}

// SessionSummary is the rolling summary of one session.
type SessionSummary struct {
	SessionID string    `json:"sessionId"`
	Summary   string    `json:"summary"`
	OpenLoops []string  `json:"openLoops"`
	UpdatedAt time.Time `json:"updatedAt"`
}

// MaxOpenLoops caps SessionSummary.OpenLoops.
const MaxOpenLoops = 10

// Alert is a scheduled notification created by the alerts tool or the API.
type Alert struct {
	AlertID         string      `json:"alertId"`
	Scope           Scope       `json:"scope"`
	SessionID       *string     `json:"sessionId,omitempty"`
	Title           string      `json:"title"`
	Body            string      `json:"body"`
	DueAt           time.Time   `json:"dueAt"`
	RepeatRule      *string     `json:"repeatRule,omitempty"`
	Status          AlertStatus `json:"status"`
	Confidence      float64     `json:"confidence"`
	SourceMessageID *string     `json:"sourceMessageId,omitempty"`
	CreatedAt       time.Time   `json:"createdAt"`
	UpdatedAt       time.Time   `json:"updatedAt"`
}

// ToolSetting overrides the enabled state of a tool globally or for one session.
type ToolSetting struct {
	SettingID string    `json:"settingId"`
	Scope     Scope     `json:"scope"`
	SessionID *string   `json:"sessionId,omitempty"`
	ToolID    string    `json:"toolId"`
	Enabled   bool      `json:"enabled"`
	CreatedAt time.Time `json:"createdAt"`
	UpdatedAt time.Time `json:"updatedAt"`
}

// AlertFilter narrows Alerts().List.
type AlertFilter struct {
	Scope     Scope
	SessionID string
	Status    AlertStatus
	Limit     int
}

// StringPtr returns a pointer to s, or nil when s is empty.
func StringPtr(s string) *string {
	if s == "" {
		return nil
	}
	return &s
}

// Deref returns the value behind p or "".
func Deref(p *string) string {
	if p == nil {
		return ""
	}
	return *p
}
