// Package api declares HTTP contracts and route registration helpers.
package api

import (
	"encoding/json"
	"net/http"

	"github.com/patinalabs/patina/internal/backfill"
)

// BackfillHandler handles backfill trigger and status requests.
type BackfillHandler struct {
	deps Dependencies
}

// NewBackfillHandler creates a new backfill handler.
func NewBackfillHandler(deps Dependencies) *BackfillHandler {
	return &BackfillHandler{deps: deps}
}

// backfillRequest mirrors POST /backfill.
type backfillRequest struct {
	BatchSize     int  `json:"batch_size"`
	DryRun        bool `json:"dry_run"`
	PriorityFloor int  `json:"priority_floor"`
	Workers       int  `json:"workers"`
}

// backfillStatusResponse mirrors GET /backfill/status.
type backfillStatusResponse struct {
	Progress backfill.Progress `json:"progress"`
	Entries  []backfill.Entry  `json:"entries"`
}

// HandleRunBackfill handles POST /backfill requests. The run executes
// synchronously and returns the resulting progress snapshot; runs are
// repeatable and resumable.
func (h *BackfillHandler) HandleRunBackfill(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodPost {
		http.NotFound(w, r)
		return
	}
	var req backfillRequest
	if r.ContentLength != 0 {
		if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
			writeError(w, http.StatusBadRequest, "bad_request", err)
			return
		}
	}

	progress, err := h.deps.RunBackfill(r.Context(), backfill.Options{
		BatchSize:     req.BatchSize,
		DryRun:        req.DryRun,
		PriorityFloor: req.PriorityFloor,
		Workers:       req.Workers,
	})
	if err != nil {
		writeDomainError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, progress)
}

// HandleBackfillStatus handles GET /backfill/status requests, exposing the
// queue including parked FAILED entries for operator inspection.
func (h *BackfillHandler) HandleBackfillStatus(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodGet {
		http.NotFound(w, r)
		return
	}
	writeJSON(w, http.StatusOK, backfillStatusResponse{
		Progress: h.deps.BackfillProgress(),
		Entries:  h.deps.BackfillEntries(),
	})
}
