package health

import (
	"context"
	"sort"
	"sync/atomic"
	"time"

	"github.com/rs/zerolog"
)

// HealthChecker is implemented by component-level checkers (store, model backend).
type HealthChecker interface {
	Name() string
	IsHealthy() bool
	Start(ctx context.Context, interval time.Duration)
}

// Snapshot is one evaluation of every component.
type Snapshot struct {
	Components map[string]bool
	// Down lists failing components in name order.
	Down []string
	// Healthy is true when every component is up.
	Healthy bool
	// Ready is true when every required component is up.
	Ready bool
}

// ServiceHealthChecker periodically snapshots its components. Components
// marked optional count towards Healthy but never block Ready.
type ServiceHealthChecker struct {
	deps     []HealthChecker
	optional map[string]bool
	state    atomic.Pointer[Snapshot]
	log      zerolog.Logger
}

func NewServiceHealthChecker(log zerolog.Logger, deps ...HealthChecker) *ServiceHealthChecker {
	return &ServiceHealthChecker{deps: deps, optional: map[string]bool{}, log: log}
}

// WithOptional marks the named components as not required for readiness.
func (h *ServiceHealthChecker) WithOptional(names ...string) *ServiceHealthChecker {
	for _, n := range names {
		h.optional[n] = true
	}
	return h
}

// Snapshot evaluates every component now.
func (h *ServiceHealthChecker) Snapshot() Snapshot {
	s := Snapshot{Components: make(map[string]bool, len(h.deps)), Healthy: true, Ready: true}
	for _, c := range h.deps {
		up := c.IsHealthy()
		s.Components[c.Name()] = up
		if up {
			continue
		}
		s.Down = append(s.Down, c.Name())
		s.Healthy = false
		if !h.optional[c.Name()] {
			s.Ready = false
		}
	}
	sort.Strings(s.Down)
	return s
}

func (h *ServiceHealthChecker) last() *Snapshot { return h.state.Load() }

// IsHealthy reports the cached result; false until the first evaluation.
func (h *ServiceHealthChecker) IsHealthy() bool {
	s := h.last()
	return s != nil && s.Healthy
}

// IsReady reports whether every required component was up at the last evaluation.
func (h *ServiceHealthChecker) IsReady() bool {
	s := h.last()
	return s != nil && s.Ready
}

// Components reports the cached state of each component by name.
func (h *ServiceHealthChecker) Components() map[string]bool {
	s := h.last()
	if s == nil {
		return h.Snapshot().Components
	}
	out := make(map[string]bool, len(s.Components))
	for k, v := range s.Components {
		out[k] = v
	}
	return out
}

// Start re-evaluates every interval and logs health transitions.
func (h *ServiceHealthChecker) Start(ctx context.Context, interval time.Duration) {
	ticker := time.NewTicker(interval)
	defer ticker.Stop()

	eval := func() {
		next := h.Snapshot()
		prev := h.state.Swap(&next)
		if prev != nil && prev.Healthy == next.Healthy && prev.Ready == next.Ready {
			return
		}
		switch {
		case next.Healthy:
			h.log.Info().Msg("service health: UP")
		case next.Ready:
			h.log.Warn().Strs("down", next.Down).Msg("service health: DEGRADED")
		default:
			h.log.Error().Strs("down", next.Down).Msg("service health: DOWN")
		}
	}

	eval()
	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			eval()
		}
	}
}
