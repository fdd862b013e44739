// Package api declares HTTP contracts and route registration helpers.
package api

import (
	"encoding/json"
	"net/http"
	"strings"

	"github.com/patinalabs/patina/internal/domain/types"
)

// ItemsHandler handles item registration and per-item score requests.
type ItemsHandler struct {
	deps Dependencies
}

// NewItemsHandler creates a new items handler.
func NewItemsHandler(deps Dependencies) *ItemsHandler {
	return &ItemsHandler{deps: deps}
}

// createItemRequest mirrors POST /items.
type createItemRequest struct {
	ItemID string `json:"item_id"`
}

// HandleCreateItem handles POST /items requests.
func (h *ItemsHandler) HandleCreateItem(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodPost {
		http.NotFound(w, r)
		return
	}
	var req createItemRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeError(w, http.StatusBadRequest, "bad_request", err)
		return
	}
	if strings.TrimSpace(req.ItemID) == "" {
		writeError(w, http.StatusBadRequest, "bad_request", ErrBadRequest)
		return
	}
	if err := h.deps.RegisterItem(r.Context(), types.ItemID(req.ItemID)); err != nil {
		writeDomainError(w, err)
		return
	}
	writeJSON(w, http.StatusCreated, map[string]string{"item_id": req.ItemID})
}

// HandleItemSubpath routes /items/{id} and /items/{id}/score requests.
//
//	GET    /items/{id}/score  -> persisted score record
//	POST   /items/{id}/score  -> recompute and persist
//	DELETE /items/{id}        -> soft-retire
func (h *ItemsHandler) HandleItemSubpath(w http.ResponseWriter, r *http.Request) {
	path := strings.TrimPrefix(r.URL.Path, "/items/")
	if path == "" {
		writeError(w, http.StatusBadRequest, "bad_request", ErrBadRequest)
		return
	}

	if id, ok := strings.CutSuffix(path, "/score"); ok {
		h.handleScore(w, r, types.ItemID(id))
		return
	}
	if strings.Contains(path, "/") {
		http.NotFound(w, r)
		return
	}

	if r.Method != http.MethodDelete {
		http.NotFound(w, r)
		return
	}
	if err := h.deps.RetireItem(r.Context(), types.ItemID(path)); err != nil {
		writeDomainError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, map[string]string{"item_id": path, "status": "retired"})
}

func (h *ItemsHandler) handleScore(w http.ResponseWriter, r *http.Request, id types.ItemID) {
	if id == "" || strings.Contains(id.String(), "/") {
		writeError(w, http.StatusBadRequest, "bad_request", ErrBadRequest)
		return
	}
	switch r.Method {
	case http.MethodGet:
		rec, err := h.deps.ScoreRecord(r.Context(), id)
		if err != nil {
			writeDomainError(w, err)
			return
		}
		writeJSON(w, http.StatusOK, rec)
	case http.MethodPost:
		rec, err := h.deps.ComputeScore(r.Context(), id)
		if err != nil {
			writeDomainError(w, err)
			return
		}
		writeJSON(w, http.StatusOK, rec)
	default:
		http.NotFound(w, r)
	}
}
