package tools

import (
	"context"
	"fmt"
	"runtime/debug"

	"github.com/rs/zerolog"

	"github.com/companionos/companion/internal/metrics"
)

// Runner executes every registered tool for a turn.
type Runner struct {
	reg *Registry
	log zerolog.Logger
}

func NewRunner(reg *Registry, log zerolog.Logger) *Runner {
	return &Runner{reg: reg, log: log.With().Str("component", "tools").Logger()}
}

// Run invokes each tool in registry order. Tools disabled in enabled get one
// skipped event; tools missing from enabled are treated as enabled.
func (r *Runner) Run(ctx context.Context, tc Context, enabled map[string]bool) []Event {
	events := []Event{}
	for _, t := range r.reg.List() {
		id := t.ID()
		if on, ok := enabled[id]; ok && !on {
			events = append(events, Event{
				ToolID:  id,
				Kind:    KindSkipped,
				Title:   "Tool disabled",
				Message: fmt.Sprintf("%s is disabled for this session.", id),
				Data:    map[string]any{},
			})
			metrics.ToolEvents.WithLabelValues(id, KindSkipped).Inc()
			continue
		}
		out, ran, err := r.runOne(ctx, t, tc)
		if !ran {
			continue
		}
		if err != nil {
			r.log.Error().Err(err).Str("tool_id", id).Str("session_id", tc.SessionID).Msg("tool failed")
			events = append(events, Event{
				ToolID:  id,
				Kind:    KindError,
				Title:   "Tool failed",
				Message: err.Error(),
				Data:    map[string]any{},
			})
			metrics.ToolEvents.WithLabelValues(id, KindError).Inc()
			continue
		}
		for _, e := range out {
			if e.ToolID == "" {
				e.ToolID = id
			}
			if e.Data == nil {
				e.Data = map[string]any{}
			}
			events = append(events, e)
			metrics.ToolEvents.WithLabelValues(id, e.Kind).Inc()
		}
	}
	return events
}

// runOne asks t whether to run and runs it. A panic in either ShouldRun or
// Run is reported as err with ran set, so the caller emits one error event.
func (r *Runner) runOne(ctx context.Context, t Tool, tc Context) (events []Event, ran bool, err error) {
	defer func() {
		if rec := recover(); rec != nil {
			r.log.Error().Str("tool_id", t.ID()).Str("stack", string(debug.Stack())).Msg("tool panicked")
			events, ran, err = nil, true, fmt.Errorf("panic: %v", rec)
		}
	}()
	if !t.ShouldRun(tc) {
		return nil, false, nil
	}
	events, err = t.Run(ctx, tc)
	return events, true, err
}
