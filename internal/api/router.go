// Package api is the HTTP transport over the companion services.
package api

import (
	"github.com/gorilla/mux"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"github.com/rs/zerolog"

	"github.com/companionos/companion/internal/api/recovery"
	"github.com/companionos/companion/internal/persona"
	"github.com/companionos/companion/internal/services"
)

// Deps are the collaborators the router wires into handlers.
type Deps struct {
	Sessions *services.SessionService
	Turns    *services.TurnService
	Memory   *services.MemoryService
	Alerts   *services.AlertService
	Tools    *services.ToolService
	Personas *persona.Catalog

	Health HealthReporter
	// Backend is optional; without it the /api/backend routes are not registered.
	// Pulling is only offered when Backend also implements ModelPuller.
	Backend      ModelLister
	BackendModel string
}

// NewRouter registers every route under /api plus /metrics.
func NewRouter(d Deps, log zerolog.Logger) *mux.Router {
	router := mux.NewRouter()
	router.Use(recovery.Middleware(log))

	sessionHandler := NewSessionHandler(d.Sessions)
	chatHandler := NewChatHandler(d.Turns)
	personaHandler := NewPersonaHandler(d.Personas)
	memoryHandler := NewMemoryHandler(d.Memory)
	alertHandler := NewAlertHandler(d.Alerts)
	toolHandler := NewToolHandler(d.Tools)
	healthHandler := NewHealthHandler(d.Health)

	router.Handle("/metrics", promhttp.Handler()).Methods("GET")
	router.HandleFunc("/api/health", healthHandler.CheckHealth).Methods("GET")
	if d.Backend != nil {
		backendHandler := NewBackendHandler(d.Backend, d.BackendModel, log)
		router.HandleFunc("/api/backend/status", backendHandler.Status).Methods("GET")
		router.HandleFunc("/api/backend/tags", backendHandler.Tags).Methods("GET")
		if backendHandler.CanPull() {
			router.HandleFunc("/api/backend/pull", backendHandler.Pull).Methods("POST")
		}
	}

	// Personas
	router.HandleFunc("/api/personas", personaHandler.ListPersonas).Methods("GET")
	router.HandleFunc("/api/personas/{personaId}", personaHandler.GetPersona).Methods("GET")

	// Sessions
	router.HandleFunc("/api/sessions", sessionHandler.CreateSession).Methods("POST")
	router.HandleFunc("/api/sessions", sessionHandler.ListSessions).Methods("GET")
	router.HandleFunc("/api/sessions/{sessionId}", sessionHandler.GetSession).Methods("GET")
	router.HandleFunc("/api/sessions/{sessionId}/messages", sessionHandler.ListMessages).Methods("GET")
	router.HandleFunc("/api/sessions/{sessionId}/summary", sessionHandler.GetSummary).Methods("GET")

	// Chat
	router.HandleFunc("/api/chat/send", chatHandler.Send).Methods("POST")

	// Memory
	router.HandleFunc("/api/memory", memoryHandler.ListMemory).Methods("GET")
	router.HandleFunc("/api/memory", memoryHandler.UpsertMemory).Methods("POST")
	router.HandleFunc("/api/memory/{itemId}", memoryHandler.DeleteMemory).Methods("DELETE")

	// Alerts; /due is registered before /{alertId} routes
	router.HandleFunc("/api/alerts", alertHandler.ListAlerts).Methods("GET")
	router.HandleFunc("/api/alerts/due", alertHandler.DueAlerts).Methods("GET")
	router.HandleFunc("/api/alerts/{alertId}/done", alertHandler.MarkDone).Methods("POST")
	router.HandleFunc("/api/alerts/{alertId}/cancel", alertHandler.Cancel).Methods("POST")

	// Tools
	router.HandleFunc("/api/tools", toolHandler.ListTools).Methods("GET")
	router.HandleFunc("/api/tools/settings", toolHandler.ListSettings).Methods("GET")
	router.HandleFunc("/api/tools/settings", toolHandler.PutSetting).Methods("PUT")

	return router
}
