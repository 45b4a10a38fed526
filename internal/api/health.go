package api

import (
	"context"
	"fmt"
	"net/http"
	"strings"
	"time"

	"github.com/rs/zerolog"

	"github.com/companionos/companion/internal/api/respond"
	"github.com/companionos/companion/internal/model"
)

// PullTimeout bounds a background model download.
const PullTimeout = 30 * time.Minute

// HealthReporter is satisfied by health.ServiceHealthChecker.
type HealthReporter interface {
	IsHealthy() bool
	Components() map[string]bool
}

// HealthHandler handles health check endpoints
type HealthHandler struct {
	health HealthReporter
}

func NewHealthHandler(h HealthReporter) *HealthHandler { return &HealthHandler{health: h} }

// CheckHealth handles GET /api/health
// Always returns 200; body reports healthy/unhealthy. 500 indicates handler failure only.
func (h *HealthHandler) CheckHealth(w http.ResponseWriter, r *http.Request) {
	status := "unhealthy"
	components := map[string]bool{}
	if h.health != nil {
		if h.health.IsHealthy() {
			status = "healthy"
		}
		components = h.health.Components()
	}
	respond.WriteJSON(w, http.StatusOK, map[string]interface{}{
		"status":     status,
		"components": components,
		"timestamp":  time.Now().Format(time.RFC3339),
	})
}

// ModelLister is satisfied by llm.OllamaClient.
type ModelLister interface {
	Models(ctx context.Context) ([]string, error)
}

// ModelPuller is satisfied by llm.OllamaClient.
type ModelPuller interface {
	Pull(ctx context.Context, name string) error
}

// BackendHandler reports model backend reachability and manages models.
type BackendHandler struct {
	backend ModelLister
	model   string
	log     zerolog.Logger
}

func NewBackendHandler(b ModelLister, model string, log zerolog.Logger) *BackendHandler {
	return &BackendHandler{backend: b, model: model, log: log}
}

// CanPull reports whether the backend supports model downloads.
func (h *BackendHandler) CanPull() bool {
	_, ok := h.backend.(ModelPuller)
	return ok
}

// Tags GET /api/backend/tags
func (h *BackendHandler) Tags(w http.ResponseWriter, r *http.Request) {
	ctx, cancel := context.WithTimeout(r.Context(), 5*time.Second)
	defer cancel()

	models, err := h.backend.Models(ctx)
	if err != nil {
		respond.WriteServiceError(w, fmt.Errorf("%w: %w", model.ErrUpstream, err))
		return
	}
	respond.WriteJSON(w, http.StatusOK, map[string]interface{}{"models": models, "count": len(models)})
}

// Pull POST /api/backend/pull
// Starts downloading the configured model and answers 202 without waiting.
func (h *BackendHandler) Pull(w http.ResponseWriter, r *http.Request) {
	puller, ok := h.backend.(ModelPuller)
	if !ok {
		respond.WriteError(w, http.StatusNotImplemented, "backend does not support pulling models")
		return
	}
	name := h.model
	go func() {
		ctx, cancel := context.WithTimeout(context.WithoutCancel(r.Context()), PullTimeout)
		defer cancel()
		start := time.Now()
		if err := puller.Pull(ctx, name); err != nil {
			h.log.Error().Err(err).Str("model", name).Msg("model pull failed")
			return
		}
		h.log.Info().Str("model", name).Dur("elapsed", time.Since(start)).Msg("model pulled")
	}()
	respond.WriteJSON(w, http.StatusAccepted, map[string]interface{}{"status": "pull_started", "model": name})
}

// Status GET /api/backend/status
func (h *BackendHandler) Status(w http.ResponseWriter, r *http.Request) {
	ctx, cancel := context.WithTimeout(r.Context(), 5*time.Second)
	defer cancel()

	resp := map[string]interface{}{
		"reachable":    false,
		"model":        h.model,
		"modelPresent": false,
	}
	models, err := h.backend.Models(ctx)
	if err != nil {
		resp["error"] = err.Error()
		respond.WriteJSON(w, http.StatusOK, resp)
		return
	}
	resp["reachable"] = true
	resp["models"] = models
	resp["modelPresent"] = hasModel(models, h.model)
	respond.WriteJSON(w, http.StatusOK, resp)
}

// hasModel treats "name" and "name:latest" as the same model.
func hasModel(models []string, want string) bool {
	norm := func(s string) string { return strings.TrimSuffix(s, ":latest") }
	for _, m := range models {
		if norm(m) == norm(want) {
			return true
		}
	}
	return false
}
