// Package llm is the client side of the model backend contract.
package llm

import (
	"context"
	"errors"

	"github.com/companionos/companion/internal/model"
)

// Call classes. Each class has its own timeout and metrics label.
const (
	ClassGenerate = "generate"
	ClassJudge    = "judge"
	ClassExtract  = "extract"
	ClassAlert    = "alert"
)

// ErrEmptyResponse is returned when the backend answers without a message.
var ErrEmptyResponse = errors.New("model backend returned no message")

// Message is one turn of prior context sent to the backend.
type Message struct {
	Role    model.Role `json:"role"`
	Content string     `json:"content"`
}

// Request is a single chat completion request.
type Request struct {
	// Class labels the call for metrics and logs (generate|judge|extract|alert).
	Class string
	// Model overrides the client's default model when set.
	Model     string
	System    string
	History   []Message
	Prompt    string
	MaxTokens int
}

// Backend produces free-form text for a request. Implementations must honour
// ctx cancellation; callers apply the per-class timeout.
type Backend interface {
	Chat(ctx context.Context, req Request) (string, error)
}

// BackendFunc adapts a function to Backend.
type BackendFunc func(ctx context.Context, req Request) (string, error)

func (f BackendFunc) Chat(ctx context.Context, req Request) (string, error) { return f(ctx, req) }
