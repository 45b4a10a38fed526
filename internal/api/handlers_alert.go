package api

import (
	"net/http"

	"github.com/gorilla/mux"

	"github.com/companionos/companion/internal/api/respond"
	"github.com/companionos/companion/internal/api/validate"
	"github.com/companionos/companion/internal/model"
	"github.com/companionos/companion/internal/services"
	"github.com/companionos/companion/internal/store"
)

type AlertHandler struct {
	svc *services.AlertService
}

func NewAlertHandler(svc *services.AlertService) *AlertHandler { return &AlertHandler{svc: svc} }

// ListAlerts GET /api/alerts?scope=&sessionId=&status=&limit=
func (h *AlertHandler) ListAlerts(w http.ResponseWriter, r *http.Request) {
	q := r.URL.Query()
	scope, err := validate.Scope(q.Get("scope"), "")
	if err != nil {
		respond.WriteServiceError(w, err)
		return
	}
	status, err := validate.AlertStatus(q.Get("status"))
	if err != nil {
		respond.WriteServiceError(w, err)
		return
	}
	limit, err := validate.Limit(q.Get("limit"), store.DefaultLimit)
	if err != nil {
		respond.WriteServiceError(w, err)
		return
	}
	list, err := h.svc.ListAlerts(r.Context(), model.AlertFilter{
		Scope:     scope,
		SessionID: q.Get("sessionId"),
		Status:    status,
		Limit:     limit,
	})
	if err != nil {
		respond.WriteServiceError(w, err)
		return
	}
	writeAlerts(w, list)
}

// DueAlerts GET /api/alerts/due?sessionId=&limit=
func (h *AlertHandler) DueAlerts(w http.ResponseWriter, r *http.Request) {
	q := r.URL.Query()
	limit, err := validate.Limit(q.Get("limit"), services.DefaultDueLimit)
	if err != nil {
		respond.WriteServiceError(w, err)
		return
	}
	list, err := h.svc.DueAlerts(r.Context(), q.Get("sessionId"), limit)
	if err != nil {
		respond.WriteServiceError(w, err)
		return
	}
	writeAlerts(w, list)
}

// MarkDone POST /api/alerts/{alertId}/done
func (h *AlertHandler) MarkDone(w http.ResponseWriter, r *http.Request) {
	a, err := h.svc.MarkDone(r.Context(), mux.Vars(r)["alertId"])
	if err != nil {
		respond.WriteServiceError(w, err)
		return
	}
	respond.WriteJSON(w, http.StatusOK, a)
}

// Cancel POST /api/alerts/{alertId}/cancel
func (h *AlertHandler) Cancel(w http.ResponseWriter, r *http.Request) {
	a, err := h.svc.Cancel(r.Context(), mux.Vars(r)["alertId"])
	if err != nil {
		respond.WriteServiceError(w, err)
		return
	}
	respond.WriteJSON(w, http.StatusOK, a)
}

func writeAlerts(w http.ResponseWriter, list []*model.Alert) {
	if list == nil {
		list = []*model.Alert{}
	}
	respond.WriteJSON(w, http.StatusOK, map[string]interface{}{"alerts": list, "count": len(list)})
}
