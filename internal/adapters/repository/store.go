// Package repository defines the rating store interface and errors.
package repository

import (
	"context"
	"time"

	"github.com/patinalabs/patina/internal/domain/scoring"
	"github.com/patinalabs/patina/internal/domain/types"
)

// Aggregates is the mutable per-item rating state. Invariant maintained by
// callers of Update/UpdatePair: Wins+Losses == ComparisonVotes.
type Aggregates struct {
	Elo              float64
	Wins             int
	Losses           int
	ComparisonVotes  int
	SliderSum        float64
	SliderCount      int
	EndorsementCount int
}

// Activity returns the total signal volume across all three streams, used
// for eligibility thresholds.
func (a Aggregates) Activity() int {
	return a.ComparisonVotes + a.SliderCount + a.EndorsementCount
}

// Scoring converts the store aggregates to the score engine's input shape.
func (a Aggregates) Scoring() scoring.Aggregates {
	return scoring.Aggregates{
		Elo:              a.Elo,
		ComparisonVotes:  a.ComparisonVotes,
		SliderSum:        a.SliderSum,
		SliderCount:      a.SliderCount,
		EndorsementCount: a.EndorsementCount,
	}
}

// Item is a point-in-time read snapshot of one ranked item. Version counts
// aggregate mutations and lets score records be checked for staleness.
type Item struct {
	ID        types.ItemID
	Agg       Aggregates
	Version   int64
	CreatedAt time.Time
	Retired   bool
}

// Mutable is the handle passed to update callbacks while the item's lock is
// held. Endorsement dedupe state is owned by the store, so callbacks record
// endorsements through Endorse rather than touching the counter directly.
// All mutations are staged and committed only when the callback succeeds.
type Mutable struct {
	Agg      *Aggregates
	endorsed map[types.VoterID]struct{}
	added    []types.VoterID
}

// Endorse records an endorsement from voter. It reports false without
// mutating anything when the voter has already endorsed this item.
func (m *Mutable) Endorse(voter types.VoterID) bool {
	if _, dup := m.endorsed[voter]; dup {
		return false
	}
	for _, pending := range m.added {
		if pending == voter {
			return false
		}
	}
	m.added = append(m.added, voter)
	m.Agg.EndorsementCount++
	return true
}

// Eligible is one item surfaced by the backfill eligibility scan.
type Eligible struct {
	ID       types.ItemID
	Activity int
}

// Store provides read/write access to per-item rating state, persisted score
// records, and the leaderboard read path.
type Store interface {
	// Create registers a new item with the baseline Elo rating.
	// Returns ErrItemExists if the id is already registered.
	Create(ctx context.Context, id types.ItemID) error

	// Get returns a snapshot of the item. Returns ErrItemNotFound for an
	// unknown id.
	Get(ctx context.Context, id types.ItemID) (Item, error)

	// Update runs fn under the item's lock. Concurrent updates to the same
	// item serialize; updates to disjoint items proceed independently.
	// The mutation is discarded if fn returns an error.
	Update(ctx context.Context, id types.ItemID, fn func(*Mutable) error) error

	// UpdatePair runs fn with both items locked. Locks are acquired in a
	// fixed global order by id, so concurrent pair updates sharing an item
	// cannot deadlock.
	UpdatePair(ctx context.Context, a, b types.ItemID, fn func(a, b *Mutable) error) error

	// Retire soft-retires an item, removing it from leaderboards and scans.
	Retire(ctx context.Context, id types.ItemID) error

	// PutScore overwrites the item's score record. asOfVersion is the item
	// version the record was computed from; readers of the old record are
	// never blocked and see either the old or new record.
	PutScore(ctx context.Context, id types.ItemID, rec scoring.Record, asOfVersion int64) error

	// GetScore returns the item's current score record. Returns
	// ErrScoreNotComputed when no record has been produced yet.
	GetScore(ctx context.Context, id types.ItemID) (scoring.Record, error)

	// ScanEligible returns non-retired items whose activity meets
	// minActivity and whose score record is missing or stale relative to
	// the current aggregates.
	ScanEligible(ctx context.Context, minActivity int) ([]Eligible, error)

	// Leaderboard returns one deterministically ordered page of scored
	// items plus the total number of ranked items. Ordering: endorsement
	// count desc, score desc, comparison votes desc, item id asc.
	Leaderboard(ctx context.Context, limit, offset int) ([]types.Entry, int, error)

	// Count returns the number of items tracked.
	Count(ctx context.Context) int
}
