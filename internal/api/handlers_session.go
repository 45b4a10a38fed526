package api

import (
	"encoding/json"
	"net/http"

	"github.com/gorilla/mux"

	"github.com/companionos/companion/internal/api/respond"
	"github.com/companionos/companion/internal/api/validate"
	"github.com/companionos/companion/internal/model"
	"github.com/companionos/companion/internal/services"
	"github.com/companionos/companion/internal/store"
)

// SessionHandler is a thin HTTP transport over SessionService.
type SessionHandler struct {
	svc *services.SessionService
}

func NewSessionHandler(svc *services.SessionService) *SessionHandler {
	return &SessionHandler{svc: svc}
}

// CreateSession POST /api/sessions
func (h *SessionHandler) CreateSession(w http.ResponseWriter, r *http.Request) {
	var req struct {
		PersonaID string `json:"personaId"`
	}
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		respond.WriteBadRequest(w, "Invalid JSON")
		return
	}
	if err := validate.NonEmpty("personaId", req.PersonaID); err != nil {
		respond.WriteServiceError(w, err)
		return
	}
	sess, err := h.svc.CreateSession(r.Context(), req.PersonaID)
	if err != nil {
		respond.WriteServiceError(w, err)
		return
	}
	respond.WriteJSON(w, http.StatusCreated, sess)
}

// ListSessions GET /api/sessions
func (h *SessionHandler) ListSessions(w http.ResponseWriter, r *http.Request) {
	limit, err := validate.Limit(r.URL.Query().Get("limit"), store.DefaultLimit)
	if err != nil {
		respond.WriteServiceError(w, err)
		return
	}
	list, err := h.svc.ListSessions(r.Context(), limit)
	if err != nil {
		respond.WriteServiceError(w, err)
		return
	}
	if list == nil {
		list = []*model.Session{}
	}
	respond.WriteJSON(w, http.StatusOK, map[string]interface{}{"sessions": list, "count": len(list)})
}

// GetSession GET /api/sessions/{sessionId}
func (h *SessionHandler) GetSession(w http.ResponseWriter, r *http.Request) {
	sess, err := h.svc.GetSession(r.Context(), mux.Vars(r)["sessionId"])
	if err != nil {
		respond.WriteServiceError(w, err)
		return
	}
	respond.WriteJSON(w, http.StatusOK, sess)
}

// ListMessages GET /api/sessions/{sessionId}/messages
func (h *SessionHandler) ListMessages(w http.ResponseWriter, r *http.Request) {
	limit, err := validate.Limit(r.URL.Query().Get("limit"), store.DefaultLimit)
	if err != nil {
		respond.WriteServiceError(w, err)
		return
	}
	sess, msgs, err := h.svc.Messages(r.Context(), mux.Vars(r)["sessionId"], limit)
	if err != nil {
		respond.WriteServiceError(w, err)
		return
	}
	if msgs == nil {
		msgs = []*model.Message{}
	}
	respond.WriteJSON(w, http.StatusOK, map[string]interface{}{"session": sess, "messages": msgs, "count": len(msgs)})
}

// GetSummary GET /api/sessions/{sessionId}/summary
func (h *SessionHandler) GetSummary(w http.ResponseWriter, r *http.Request) {
	view, err := h.svc.Summary(r.Context(), mux.Vars(r)["sessionId"])
	if err != nil {
		respond.WriteServiceError(w, err)
		return
	}
	respond.WriteJSON(w, http.StatusOK, view)
}
