// Package api declares HTTP contracts and route registration helpers.
package api

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"

	"github.com/patinalabs/patina/internal/adapters/repository"
	"github.com/patinalabs/patina/internal/backfill"
	"github.com/patinalabs/patina/internal/domain/model"
	"github.com/patinalabs/patina/internal/domain/scoring"
	"github.com/patinalabs/patina/internal/domain/types"
)

// Dependencies required by HTTP handlers. Using an interface bundle keeps
// the handler layer loosely coupled to implementations in other packages.
type Dependencies interface {
	// Vote ingestion and idempotency.
	SeenAndRecord(ctx context.Context, id string) bool
	Unrecord(ctx context.Context, id string)
	Enqueue(ctx context.Context, e model.VoteEvent) bool

	// Item lifecycle and scoring.
	RegisterItem(ctx context.Context, id types.ItemID) error
	RetireItem(ctx context.Context, id types.ItemID) error
	ComputeScore(ctx context.Context, id types.ItemID) (scoring.Record, error)
	ScoreRecord(ctx context.Context, id types.ItemID) (scoring.Record, error)

	// Read operations.
	Leaderboard(ctx context.Context, limit int, cursor string) ([]types.Entry, string, error)

	// Backfill control.
	RunBackfill(ctx context.Context, opts backfill.Options) (backfill.Progress, error)
	BackfillProgress() backfill.Progress
	BackfillEntries() []backfill.Entry
}

// Entry mirrors the read shape returned by leaderboard queries.
type Entry = types.Entry

// Server wires HTTP routes for the business API.
type Server struct {
	healthHandler      *HealthHandler
	statsHandler       *StatsHandler
	votesHandler       *VotesHandler
	itemsHandler       *ItemsHandler
	leaderboardHandler *LeaderboardHandler
	backfillHandler    *BackfillHandler
}

// NewServer creates a new API server with all handlers.
func NewServer(deps Dependencies, statsProvider StatsProvider, maxLeaderboardLimit int) *Server {
	return &Server{
		healthHandler:      NewHealthHandler(),
		statsHandler:       NewStatsHandler(statsProvider),
		votesHandler:       NewVotesHandler(deps),
		itemsHandler:       NewItemsHandler(deps),
		leaderboardHandler: NewLeaderboardHandler(deps, maxLeaderboardLimit),
		backfillHandler:    NewBackfillHandler(deps),
	}
}

// Register attaches all HTTP routes to mux.
func (s *Server) Register(ctx context.Context, mux *http.ServeMux) {
	mux.HandleFunc("/healthz", MetricsMiddleware(s.healthHandler.HandleHealth, "healthz"))
	mux.HandleFunc("/metrics", s.healthHandler.HandleMetrics)
	mux.HandleFunc("/stats", MetricsMiddleware(s.statsHandler.HandleStats, "stats"))
	mux.HandleFunc("/votes/comparison", MetricsMiddleware(s.votesHandler.HandlePostComparison, "votes_comparison"))
	mux.HandleFunc("/votes/slider", MetricsMiddleware(s.votesHandler.HandlePostSlider, "votes_slider"))
	mux.HandleFunc("/votes/endorsement", MetricsMiddleware(s.votesHandler.HandlePostEndorsement, "votes_endorsement"))
	mux.HandleFunc("/items", MetricsMiddleware(s.itemsHandler.HandleCreateItem, "items"))
	mux.HandleFunc("/items/", MetricsMiddleware(s.itemsHandler.HandleItemSubpath, "item"))
	mux.HandleFunc("/leaderboard", MetricsMiddleware(s.leaderboardHandler.HandleGetLeaderboard, "leaderboard"))
	mux.HandleFunc("/backfill", MetricsMiddleware(s.backfillHandler.HandleRunBackfill, "backfill"))
	mux.HandleFunc("/backfill/status", MetricsMiddleware(s.backfillHandler.HandleBackfillStatus, "backfill_status"))
}

type errorResponse struct {
	Code    string `json:"code"`
	Message string `json:"message"`
}

func writeJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json; charset=utf-8")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(v)
}

func writeError(w http.ResponseWriter, status int, code string, err error) {
	msg := http.StatusText(status)
	if err != nil {
		msg = err.Error()
	}
	writeJSON(w, status, errorResponse{Code: code, Message: msg})
}

// writeDomainError maps the domain error taxonomy onto HTTP statuses.
func writeDomainError(w http.ResponseWriter, err error) {
	switch {
	case errors.Is(err, model.ErrValidation), errors.Is(err, repository.ErrInvalidLimit):
		writeError(w, http.StatusBadRequest, "bad_request", err)
	case errors.Is(err, repository.ErrItemNotFound):
		writeError(w, http.StatusNotFound, "not_found", err)
	case errors.Is(err, repository.ErrScoreNotComputed):
		writeError(w, http.StatusNotFound, "score_not_computed", err)
	case errors.Is(err, repository.ErrItemExists):
		writeError(w, http.StatusConflict, "already_exists", err)
	case errors.Is(err, repository.ErrItemRetired):
		writeError(w, http.StatusGone, "retired", err)
	case errors.Is(err, backfill.ErrRunInProgress):
		writeError(w, http.StatusConflict, "run_in_progress", err)
	case errors.Is(err, repository.ErrConflict), errors.Is(err, repository.ErrTransient):
		writeError(w, http.StatusServiceUnavailable, "unavailable", err)
	default:
		writeError(w, http.StatusInternalServerError, "internal_error", err)
	}
}
