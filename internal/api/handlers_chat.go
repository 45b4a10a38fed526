package api

import (
	"encoding/json"
	"net/http"

	"github.com/companionos/companion/internal/api/respond"
	"github.com/companionos/companion/internal/api/validate"
	"github.com/companionos/companion/internal/services"
)

type ChatHandler struct {
	turns *services.TurnService
}

func NewChatHandler(turns *services.TurnService) *ChatHandler { return &ChatHandler{turns: turns} }

// Send POST /api/chat/send
func (h *ChatHandler) Send(w http.ResponseWriter, r *http.Request) {
	var req struct {
		SessionID string `json:"sessionId"`
		Message   string `json:"message"`
	}
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		respond.WriteBadRequest(w, "Invalid JSON")
		return
	}
	if err := validate.NonEmpty("sessionId", req.SessionID); err != nil {
		respond.WriteServiceError(w, err)
		return
	}
	if err := services.ValidateMessage(req.Message); err != nil {
		respond.WriteServiceError(w, err)
		return
	}
	res, err := h.turns.Process(r.Context(), req.SessionID, req.Message)
	if err != nil {
		respond.WriteServiceError(w, err)
		return
	}
	respond.WriteJSON(w, http.StatusOK, res)
}
