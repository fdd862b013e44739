// Package api declares HTTP contracts and route registration helpers.
package api

import (
	"encoding/json"
	"errors"
	"net/http"
	"strings"
	"time"

	"github.com/google/uuid"

	"github.com/patinalabs/patina/internal/domain/model"
	"github.com/patinalabs/patina/internal/domain/types"
)

// VotesHandler handles vote ingestion requests for all three signal
// streams.
type VotesHandler struct {
	deps Dependencies
}

// NewVotesHandler creates a new votes handler.
func NewVotesHandler(deps Dependencies) *VotesHandler {
	return &VotesHandler{deps: deps}
}

// comparisonRequest mirrors POST /votes/comparison.
type comparisonRequest struct {
	EventID  string `json:"event_id"`
	WinnerID string `json:"winner_id"`
	LoserID  string `json:"loser_id"`
	TS       string `json:"ts"`
}

// sliderRequest mirrors POST /votes/slider.
type sliderRequest struct {
	EventID string  `json:"event_id"`
	ItemID  string  `json:"item_id"`
	Voter   string  `json:"voter"`
	Value   float64 `json:"value"`
	TS      string  `json:"ts"`
}

// endorsementRequest mirrors POST /votes/endorsement.
type endorsementRequest struct {
	EventID string `json:"event_id"`
	ItemID  string `json:"item_id"`
	Voter   string `json:"voter"`
	TS      string `json:"ts"`
}

type ackResponse struct {
	Status    string `json:"status"`
	EventID   string `json:"event_id"`
	Duplicate bool   `json:"duplicate"`
}

// HandlePostComparison handles POST /votes/comparison requests.
func (h *VotesHandler) HandlePostComparison(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodPost {
		http.NotFound(w, r)
		return
	}
	var req comparisonRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeError(w, http.StatusBadRequest, "bad_request", err)
		return
	}
	ts, err := parseTS(req.TS)
	if err != nil {
		writeError(w, http.StatusBadRequest, "bad_request", err)
		return
	}
	event := model.PairwiseOutcome(orNewEventID(req.EventID), types.ItemID(req.WinnerID), types.ItemID(req.LoserID), ts)
	h.ingest(w, r, event)
}

// HandlePostSlider handles POST /votes/slider requests.
func (h *VotesHandler) HandlePostSlider(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodPost {
		http.NotFound(w, r)
		return
	}
	var req sliderRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeError(w, http.StatusBadRequest, "bad_request", err)
		return
	}
	ts, err := parseTS(req.TS)
	if err != nil {
		writeError(w, http.StatusBadRequest, "bad_request", err)
		return
	}
	event := model.SliderRating(orNewEventID(req.EventID), types.ItemID(req.ItemID), types.VoterID(req.Voter), req.Value, ts)
	h.ingest(w, r, event)
}

// HandlePostEndorsement handles POST /votes/endorsement requests.
func (h *VotesHandler) HandlePostEndorsement(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodPost {
		http.NotFound(w, r)
		return
	}
	var req endorsementRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeError(w, http.StatusBadRequest, "bad_request", err)
		return
	}
	ts, err := parseTS(req.TS)
	if err != nil {
		writeError(w, http.StatusBadRequest, "bad_request", err)
		return
	}
	event := model.Endorsement(orNewEventID(req.EventID), types.ItemID(req.ItemID), types.VoterID(req.Voter), ts)
	h.ingest(w, r, event)
}

// ingest validates, dedupes, and enqueues one vote event. Validation
// failures are rejected before any state mutates; a replayed event id is
// acknowledged as duplicate without reprocessing.
func (h *VotesHandler) ingest(w http.ResponseWriter, r *http.Request, event model.VoteEvent) {
	if err := event.Validate(); err != nil {
		writeDomainError(w, err)
		return
	}

	if h.deps.SeenAndRecord(r.Context(), event.EventID) {
		writeJSON(w, http.StatusOK, ackResponse{Status: "duplicate", EventID: event.EventID, Duplicate: true})
		return
	}

	if ok := h.deps.Enqueue(r.Context(), event); !ok {
		// Roll back the "seen" status so the event can be retried.
		h.deps.Unrecord(r.Context(), event.EventID)
		writeError(w, http.StatusTooManyRequests, "backpressure", ErrBackpressure)
		return
	}
	writeJSON(w, http.StatusAccepted, ackResponse{Status: "accepted", EventID: event.EventID})
}

// orNewEventID returns the client-supplied event id, or generates one when
// the client did not provide an idempotency key.
func orNewEventID(id string) string {
	if strings.TrimSpace(id) != "" {
		return id
	}
	return uuid.NewString()
}

// parseTS parses an optional RFC3339 timestamp, defaulting to now.
func parseTS(raw string) (time.Time, error) {
	if strings.TrimSpace(raw) == "" {
		return time.Now().UTC(), nil
	}
	ts, err := time.Parse(time.RFC3339, raw)
	if err != nil {
		return time.Time{}, errors.New("invalid ts; must be RFC3339")
	}
	return ts, nil
}
