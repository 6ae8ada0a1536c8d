package access

import (
	"encoding/json"
	"errors"
	"net/http"

	"github.com/MrWong99/voxcast/pkg/types"
)

// Handler exposes the policy over HTTP:
//
//	GET /admin/v1/access                        list overrides
//	PUT /admin/v1/access/global/{spell}         body {"enabled": bool}
//	PUT /admin/v1/access/actors/{actor}/{spell} body {"enabled": bool}
type Handler struct {
	policy *Policy
}

// NewHandler returns a handler for policy.
func NewHandler(policy *Policy) *Handler {
	return &Handler{policy: policy}
}

// Register adds the admin routes to mux.
func (h *Handler) Register(mux *http.ServeMux) {
	mux.HandleFunc("GET /admin/v1/access", h.handleList)
	mux.HandleFunc("PUT /admin/v1/access/global/{spell}", h.handleSetGlobal)
	mux.HandleFunc("PUT /admin/v1/access/actors/{actor}/{spell}", h.handleSetActor)
}

type listResponse struct {
	Overrides []Override `json:"overrides"`
}

type setRequest struct {
	Enabled *bool `json:"enabled"`
}

func (h *Handler) handleList(w http.ResponseWriter, _ *http.Request) {
	writeJSON(w, http.StatusOK, listResponse{Overrides: h.policy.List()})
}

func (h *Handler) handleSetGlobal(w http.ResponseWriter, r *http.Request) {
	enabled, ok := decodeEnabled(w, r)
	if !ok {
		return
	}
	spell := r.PathValue("spell")
	h.respond(w, h.policy.SetGlobal(r.Context(), spell, enabled), Override{Spell: normalizeSpell(spell), Enabled: enabled})
}

func (h *Handler) handleSetActor(w http.ResponseWriter, r *http.Request) {
	enabled, ok := decodeEnabled(w, r)
	if !ok {
		return
	}
	actor := types.ActorID(r.PathValue("actor"))
	spell := r.PathValue("spell")
	h.respond(w, h.policy.SetActor(r.Context(), actor, spell, enabled), Override{Actor: actor, Spell: normalizeSpell(spell), Enabled: enabled})
}

func (h *Handler) respond(w http.ResponseWriter, err error, o Override) {
	switch {
	case errors.Is(err, ErrUnknownSpell):
		http.Error(w, err.Error(), http.StatusNotFound)
	case err != nil:
		http.Error(w, err.Error(), http.StatusInternalServerError)
	default:
		writeJSON(w, http.StatusOK, o)
	}
}

func decodeEnabled(w http.ResponseWriter, r *http.Request) (bool, bool) {
	var req setRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil || req.Enabled == nil {
		http.Error(w, `body must be {"enabled": true|false}`, http.StatusBadRequest)
		return false, false
	}
	return *req.Enabled, true
}

func writeJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json; charset=utf-8")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(v)
}
