package api

import (
	"encoding/json"
	"net/http"
	"strings"

	"github.com/gorilla/mux"

	"github.com/companionos/companion/internal/api/respond"
	"github.com/companionos/companion/internal/api/validate"
	"github.com/companionos/companion/internal/model"
	"github.com/companionos/companion/internal/services"
	"github.com/companionos/companion/internal/store"
)

type MemoryHandler struct {
	svc *services.MemoryService
}

func NewMemoryHandler(svc *services.MemoryService) *MemoryHandler { return &MemoryHandler{svc: svc} }

// ListMemory GET /api/memory?scope=&sessionId=&limit=
func (h *MemoryHandler) ListMemory(w http.ResponseWriter, r *http.Request) {
	q := r.URL.Query()
	scope, err := validate.Scope(q.Get("scope"), model.ScopeGlobal)
	if err != nil {
		respond.WriteServiceError(w, err)
		return
	}
	limit, err := validate.Limit(q.Get("limit"), store.DefaultLimit)
	if err != nil {
		respond.WriteServiceError(w, err)
		return
	}
	items, err := h.svc.ListMemory(r.Context(), scope, q.Get("sessionId"), limit)
	if err != nil {
		respond.WriteServiceError(w, err)
		return
	}
	if items == nil {
		items = []*model.MemoryItem{}
	}
	respond.WriteJSON(w, http.StatusOK, map[string]interface{}{"items": items, "count": len(items)})
}

// UpsertMemory POST /api/memory
func (h *MemoryHandler) UpsertMemory(w http.ResponseWriter, r *http.Request) {
	var req struct {
		Scope      string   `json:"scope"`
		SessionID  string   `json:"sessionId"`
		Key        string   `json:"key"`
		Value      string   `json:"value"`
		Confidence *float64 `json:"confidence,omitempty"`
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
	conf := validate.DefaultConfidence
	if req.Confidence != nil {
		conf = *req.Confidence
	}
	key, value := strings.TrimSpace(req.Key), strings.TrimSpace(req.Value)
	if err := validate.MemoryWrite(scope, req.SessionID, key, value, conf); err != nil {
		respond.WriteServiceError(w, err)
		return
	}
	out, err := h.svc.UpsertMemory(r.Context(), &model.MemoryItem{
		Scope:      scope,
		SessionID:  model.StringPtr(strings.TrimSpace(req.SessionID)),
		Key:        key,
		Value:      value,
		Confidence: conf,
	})
	if err != nil {
		respond.WriteServiceError(w, err)
		return
	}
	respond.WriteJSON(w, http.StatusOK, out)
}

// DeleteMemory DELETE /api/memory/{itemId}
func (h *MemoryHandler) DeleteMemory(w http.ResponseWriter, r *http.Request) {
	if err := h.svc.DeleteMemory(r.Context(), mux.Vars(r)["itemId"]); err != nil {
		respond.WriteServiceError(w, err)
		return
	}
	w.WriteHeader(http.StatusNoContent)
}
