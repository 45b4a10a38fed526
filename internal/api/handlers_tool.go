package api

import (
	"encoding/json"
	"net/http"
	"strings"

	"github.com/companionos/companion/internal/api/respond"
	"github.com/companionos/companion/internal/api/validate"
	"github.com/companionos/companion/internal/model"
	"github.com/companionos/companion/internal/services"
)

type ToolHandler struct {
	svc *services.ToolService
}

func NewToolHandler(svc *services.ToolService) *ToolHandler { return &ToolHandler{svc: svc} }

// ListTools GET /api/tools
func (h *ToolHandler) ListTools(w http.ResponseWriter, r *http.Request) {
	list := h.svc.ListTools()
	respond.WriteJSON(w, http.StatusOK, map[string]interface{}{"tools": list, "count": len(list)})
}

// ListSettings GET /api/tools/settings?scope=&sessionId=
// The response also carries the effective enabled map for that scope.
func (h *ToolHandler) ListSettings(w http.ResponseWriter, r *http.Request) {
	q := r.URL.Query()
	scope, err := validate.Scope(q.Get("scope"), model.ScopeGlobal)
	if err != nil {
		respond.WriteServiceError(w, err)
		return
	}
	sessionID := strings.TrimSpace(q.Get("sessionId"))
	if err := validate.ScopedSession(scope, sessionID); err != nil {
		respond.WriteServiceError(w, err)
		return
	}
	settings, err := h.svc.ListSettings(r.Context(), scope, sessionID)
	if err != nil {
		respond.WriteServiceError(w, err)
		return
	}
	effective, err := h.svc.Effective(r.Context(), sessionID)
	if err != nil {
		respond.WriteServiceError(w, err)
		return
	}
	if settings == nil {
		settings = []*model.ToolSetting{}
	}
	respond.WriteJSON(w, http.StatusOK, map[string]interface{}{
		"scope":     scope,
		"sessionId": sessionID,
		"settings":  settings,
		"effective": effective,
	})
}

// PutSetting PUT /api/tools/settings
func (h *ToolHandler) PutSetting(w http.ResponseWriter, r *http.Request) {
	var req struct {
		Scope     string `json:"scope"`
		SessionID string `json:"sessionId"`
		ToolID    string `json:"toolId"`
		Enabled   *bool  `json:"enabled"`
	}
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		respond.WriteBadRequest(w, "Invalid JSON")
		return
	}
	scope, err := validate.Scope(req.Scope, model.ScopeGlobal)
	if err != nil {
		respond.WriteServiceError(w, err)
		return
	}
	if err := validate.ToolSetting(scope, req.SessionID, req.ToolID); err != nil {
		respond.WriteServiceError(w, err)
		return
	}
	if req.Enabled == nil {
		respond.WriteBadRequest(w, "enabled is required")
		return
	}
	out, err := h.svc.PutSetting(r.Context(), &model.ToolSetting{
		Scope:     scope,
		SessionID: model.StringPtr(strings.TrimSpace(req.SessionID)),
		ToolID:    req.ToolID,
		Enabled:   *req.Enabled,
	})
	if err != nil {
		respond.WriteServiceError(w, err)
		return
	}
	respond.WriteJSON(w, http.StatusOK, out)
}
