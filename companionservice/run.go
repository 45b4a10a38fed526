// Package companionservice wires configuration, storage, the model backend
// and the HTTP API into a runnable server.
package companionservice

import (
	"context"
	"errors"
	"fmt"
	"net"
	"net/http"
	"os/signal"
	"syscall"
	"time"

	"github.com/rs/zerolog"
	"golang.org/x/sync/errgroup"

	"github.com/companionos/companion/internal/api"
	"github.com/companionos/companion/internal/config"
	"github.com/companionos/companion/internal/factory"
	"github.com/companionos/companion/internal/health"
	"github.com/companionos/companion/internal/judge"
	"github.com/companionos/companion/internal/llm"
	"github.com/companionos/companion/internal/logger"
	"github.com/companionos/companion/internal/persona"
	"github.com/companionos/companion/internal/pipeline"
	"github.com/companionos/companion/internal/services"
	"github.com/companionos/companion/internal/tools"
	"github.com/companionos/companion/internal/tools/alerts"
)

const shutdownTimeout = 10 * time.Second

// Run starts the companion HTTP server and blocks until shutdown or error.
// buildTarget overrides COMPANION_BUILD_TARGET when non-empty.
func Run(buildTarget string) error {
	log := logger.New("companion-service")

	cfg, err := config.New()
	if err != nil {
		log.Error().Err(err).Msg("Failed to load configuration")
		return err
	}
	if buildTarget != "" && buildTarget != cfg.BuildTarget {
		cfg.BuildTarget = buildTarget
		cfg.DBDriver = "auto"
		if err := cfg.ResolveDefaults(); err != nil {
			log.Error().Err(err).Msg("Invalid build target")
			return err
		}
	}

	log.Info().
		Str("build_target", cfg.BuildTarget).
		Str("db_driver", cfg.DBDriver).
		Int("http_port", cfg.HTTPPort).
		Str("ollama_url", cfg.OllamaURL).
		Str("model", cfg.OllamaModel).
		Bool("judge_enabled", cfg.JudgeEnabled).
		Str("personas_dir", cfg.PersonasDir).
		Msg("Companion service starting")

	ctx, stop := newServerContext()
	defer stop()

	a, err := newApp(ctx, cfg, log)
	if err != nil {
		return err
	}
	defer a.close()

	if err := waitUntilHealthy(ctx, cfg, a.health); err != nil {
		log.Error().Stack().Err(err).Msg("startup health check failed")
		return err
	}

	return serve(ctx, newHTTPServer(ctx, cfg, a.handler), log)
}

// app holds the constructed dependency graph.
type app struct {
	handler http.Handler
	health  *health.ServiceHealthChecker
	close   func()
}

// newApp constructs every dependency and starts health probing.
func newApp(ctx context.Context, cfg *config.Config, log zerolog.Logger) (*app, error) {
	st, err := factory.NewStore(ctx, cfg, log)
	if err != nil {
		log.Error().Stack().Err(err).Msg("Store unavailable")
		return nil, err
	}
	closeStore := func() {
		if err := st.Close(); err != nil {
			log.Warn().Err(err).Msg("close store")
		}
	}

	personas, err := persona.LoadDir(cfg.PersonasDir, log)
	if err != nil {
		closeStore()
		return nil, fmt.Errorf("load personas: %w", err)
	}

	backend := factory.NewModelBackend(ctx, cfg, log)

	registry, err := newToolRegistry(cfg, st, backend, log)
	if err != nil {
		closeStore()
		return nil, err
	}

	gate := judge.New(backend, judge.Config{
		Enabled:   cfg.JudgeEnabled,
		Model:     cfg.JudgeModel,
		MaxTokens: cfg.JudgeMaxTokens,
		Timeout:   cfg.JudgeTimeout(),
	}, log)
	pipe := pipeline.New(st, backend, pipeline.Config{
		RecentMessages: cfg.RecentMessages,
		Threshold:      cfg.ConfidenceThreshold,
		Cadence:        cfg.SummaryCadence,
		AllowGlobal:    cfg.AllowGlobalWrite,
		Model:          cfg.OllamaModel,
		Timeout:        cfg.ExtractTimeout(),
	}, log)
	turns := services.NewTurnService(st, personas, backend, gate, pipe, registry, services.TurnConfig{
		Model:           cfg.OllamaModel,
		GenerateTimeout: cfg.GenerateTimeout(),
		MaxAttempts:     cfg.MaxAttempts,
	}, log)

	svcHealth := startHealthCheckers(ctx, cfg, log, st, backend)

	router := api.NewRouter(api.Deps{
		Sessions:     services.NewSessionService(st, personas, cfg.SummaryCadence),
		Turns:        turns,
		Memory:       services.NewMemoryService(st),
		Alerts:       services.NewAlertService(st),
		Tools:        services.NewToolService(st, registry),
		Personas:     personas,
		Health:       svcHealth,
		Backend:      backend,
		BackendModel: cfg.OllamaModel,
	}, log)

	return &app{handler: router, health: svcHealth, close: closeStore}, nil
}

func newToolRegistry(cfg *config.Config, st factory.Store, backend llm.Backend, log zerolog.Logger) (*tools.Registry, error) {
	alertTool := alerts.New(st.Alerts(), backend, alerts.Config{
		Model:    cfg.OllamaModel,
		Timeout:  cfg.AlertTimeout(),
		Location: cfg.AlertLocation(),
	}, log)
	reg, err := tools.Bootstrap(cfg.DisabledTools, alertTool)
	if err != nil {
		return nil, fmt.Errorf("bootstrap tools: %w", err)
	}
	log.Info().Strs("tools", reg.IDs()).Strs("disabled", cfg.DisabledTools).Msg("tools registered")
	return reg, nil
}

// startHealthCheckers probes the store and the model backend. Only the store
// is required for readiness.
func startHealthCheckers(ctx context.Context, cfg *config.Config, log zerolog.Logger, st health.HealthPinger, backend health.HealthPinger) *health.ServiceHealthChecker {
	probeTimeout := time.Duration(cfg.HealthProbeTimeoutSeconds) * time.Second
	interval := time.Duration(cfg.HealthIntervalSeconds) * time.Second

	storeChecker := health.NewPingChecker("store", st, log, probeTimeout)
	go storeChecker.Start(ctx, interval)

	backendChecker := health.NewPingChecker("model_backend", backend, log, probeTimeout)
	go backendChecker.Start(ctx, interval)

	svcHealth := health.NewServiceHealthChecker(log, storeChecker, backendChecker).WithOptional(backendChecker.Name())
	go svcHealth.Start(ctx, interval)
	return svcHealth
}

func newHTTPServer(ctx context.Context, cfg *config.Config, handler http.Handler) *http.Server {
	return &http.Server{
		Addr:              cfg.GetHTTPAddr(),
		Handler:           handler,
		ReadTimeout:       15 * time.Second,
		ReadHeaderTimeout: 10 * time.Second,
		// Turns may run three drafts plus judging and extraction.
		WriteTimeout: 5 * time.Minute,
		IdleTimeout:  60 * time.Second,
		BaseContext:  func(net.Listener) context.Context { return ctx },
	}
}

// serve runs server until ctx is cancelled, then shuts it down gracefully.
func serve(ctx context.Context, server *http.Server, log zerolog.Logger) error {
	g, gctx := errgroup.WithContext(ctx)

	g.Go(func() error {
		log.Info().Str("addr", server.Addr).Msg("HTTP server starting")
		if err := server.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			log.Error().Stack().Err(err).Msg("HTTP server failed")
			return err
		}
		return nil
	})
	g.Go(func() error {
		<-gctx.Done()
		log.Info().Msg("Shutting down server")
		shutdownCtx, cancel := context.WithTimeout(context.Background(), shutdownTimeout)
		defer cancel()
		if err := server.Shutdown(shutdownCtx); err != nil {
			log.Error().Stack().Err(err).Msg("Server forced to shutdown")
			return err
		}
		log.Info().Msg("Server exited")
		return nil
	})
	return g.Wait()
}

// calculateStartupHealthTimeout returns interval*2 seconds, at least 60.
func calculateStartupHealthTimeout(healthIntervalSeconds int) int {
	timeout := healthIntervalSeconds * 2
	if timeout < 60 {
		return 60
	}
	return timeout
}

type readiness interface{ IsReady() bool }

// waitUntilHealthy blocks until h reports ready or the startup window expires.
func waitUntilHealthy(ctx context.Context, cfg *config.Config, h readiness) error {
	timeoutSeconds := calculateStartupHealthTimeout(cfg.HealthIntervalSeconds)
	deadline := time.Now().Add(time.Duration(timeoutSeconds) * time.Second)
	ticker := time.NewTicker(250 * time.Millisecond)
	defer ticker.Stop()
	for {
		if h.IsReady() {
			return nil
		}
		if time.Now().After(deadline) {
			return fmt.Errorf("startup aborted: dependencies not healthy within %d seconds", timeoutSeconds)
		}
		select {
		case <-ctx.Done():
			return ctx.Err()
		case <-ticker.C:
		}
	}
}

// newServerContext returns a context cancelled on SIGINT or SIGTERM.
func newServerContext() (context.Context, context.CancelFunc) {
	return signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
}
