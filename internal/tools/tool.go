// Package tools runs side-effecting capabilities after a turn completes.
// Each tool is isolated: a failing tool yields an error event and its
// siblings still run.
package tools

import (
	"context"
	"time"

	"github.com/companionos/companion/internal/model"
	"github.com/companionos/companion/internal/persona"
)

// Event kinds emitted by the runner itself. Tools define their own kinds.
const (
	KindSkipped = "skipped"
	KindError   = "error"
)

// Event is a UI-facing record of what a tool did.
type Event struct {
	ToolID  string         `json:"toolId"`
	Kind    string         `json:"event"`
	Title   string         `json:"title"`
	Message string         `json:"message"`
	Data    map[string]any `json:"data"`
}

// Context is the read-only view of a completed turn handed to every tool.
type Context struct {
	SessionID      string
	Persona        persona.Persona
	Memory         []model.MemoryItem
	Summary        *model.SessionSummary
	Recent         []*model.Message
	UserMessage    string
	UserMessageID  string
	AssistantFinal string
	Now            time.Time
}

// Tool is a pluggable capability.
type Tool interface {
	ID() string
	Name() string
	// Description is shown to the model so it can tell the user what it can do.
	Description() string
	ShouldRun(tc Context) bool
	Run(ctx context.Context, tc Context) ([]Event, error)
}
