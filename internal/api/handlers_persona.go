package api

import (
	"net/http"

	"github.com/gorilla/mux"

	"github.com/companionos/companion/internal/api/respond"
	"github.com/companionos/companion/internal/persona"
)

type PersonaHandler struct {
	catalog *persona.Catalog
}

func NewPersonaHandler(c *persona.Catalog) *PersonaHandler { return &PersonaHandler{catalog: c} }

// ListPersonas GET /api/personas
func (h *PersonaHandler) ListPersonas(w http.ResponseWriter, r *http.Request) {
	list := h.catalog.List()
	respond.WriteJSON(w, http.StatusOK, map[string]interface{}{"personas": list, "count": len(list)})
}

// GetPersona GET /api/personas/{personaId}
func (h *PersonaHandler) GetPersona(w http.ResponseWriter, r *http.Request) {
	id := mux.Vars(r)["personaId"]
	p, ok := h.catalog.Get(id)
	if !ok {
		respond.WriteNotFound(w, "persona not found: "+id)
		return
	}
	respond.WriteJSON(w, http.StatusOK, p)
}
