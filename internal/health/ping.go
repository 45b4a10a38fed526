package health

import (
	"context"
	"sync/atomic"
	"time"

	"github.com/rs/zerolog"

	"github.com/companionos/companion/internal/metrics"
)

// HealthPinger can be implemented by components to expose a specialized
// health check. HealthPing must return nil when the component is healthy.
type HealthPinger interface {
	HealthPing(ctx context.Context) error
}

// PingChecker probes a HealthPinger on an interval and caches the result.
type PingChecker struct {
	name         string
	pinger       HealthPinger
	healthy      atomic.Int32
	probed       atomic.Bool
	log          zerolog.Logger
	probeTimeout time.Duration
}

// NewPingChecker creates a checker that starts unhealthy until the first successful probe.
func NewPingChecker(name string, p HealthPinger, log zerolog.Logger, probeTimeout time.Duration) *PingChecker {
	hc := &PingChecker{name: name, pinger: p, log: log, probeTimeout: probeTimeout}
	hc.healthy.Store(0)
	return hc
}

func (c *PingChecker) Name() string    { return c.name }
func (c *PingChecker) IsHealthy() bool { return c.healthy.Load() == 1 }

// Start begins periodic health checking.
func (c *PingChecker) Start(ctx context.Context, interval time.Duration) {
	ticker := time.NewTicker(interval)
	defer ticker.Stop()

	c.Probe(ctx)
	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			c.Probe(ctx)
		}
	}
}

// Probe runs one check and stores the outcome.
func (c *PingChecker) Probe(ctx context.Context) bool {
	to := c.probeTimeout
	if to <= 0 {
		to = 2 * time.Second
	}
	checkCtx, cancel := context.WithTimeout(ctx, to)
	defer cancel()

	first := !c.probed.Swap(true)
	up := metrics.ComponentUp.WithLabelValues(c.name)
	if err := c.pinger.HealthPing(checkCtx); err != nil {
		// Only transitions and the first failure are logged at error level.
		if c.healthy.Swap(0) == 1 || first {
			c.log.Error().Stack().Str("checker", c.name).Err(err).Msg("health check failed")
		} else {
			c.log.Debug().Str("checker", c.name).Err(err).Msg("health check still failing")
		}
		up.Set(0)
		return false
	}
	c.healthy.Store(1)
	up.Set(1)
	return true
}
