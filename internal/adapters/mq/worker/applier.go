package worker

import (
	"context"
	"fmt"

	"github.com/patinalabs/patina/internal/adapters/repository"
	"github.com/patinalabs/patina/internal/domain/elo"
	"github.com/patinalabs/patina/internal/domain/model"
	"github.com/patinalabs/patina/pkg/metrics"
)

// Applier applies validated vote events to the rating store. It is the
// write path for all three signal streams: pairwise comparison outcomes
// (Elo updates), slider ratings, and endorsements.
type Applier struct {
	store repository.Store
	k     float64
}

// ApplierOption applies a configuration option to the Applier.
type ApplierOption func(*Applier)

// WithEloK sets the Elo K-factor.
func WithEloK(k float64) ApplierOption {
	return func(a *Applier) {
		if k > 0 {
			a.k = k
		}
	}
}

// NewApplier creates a vote applier backed by store.
func NewApplier(store repository.Store, opts ...ApplierOption) *Applier {
	a := &Applier{store: store, k: elo.DefaultK}
	for _, opt := range opts {
		opt(a)
	}
	return a
}

// Apply validates and applies one vote event. Malformed events are rejected
// with no state mutated; a duplicate endorsement from the same voter is an
// idempotent no-op, not an error.
func (a *Applier) Apply(ctx context.Context, e Event) error {
	if err := e.Validate(); err != nil {
		return err
	}
	switch e.Kind {
	case model.KindComparison:
		return a.applyComparison(ctx, e)
	case model.KindSlider:
		return a.applySlider(ctx, e)
	case model.KindEndorsement:
		return a.applyEndorsement(ctx, e)
	}
	return fmt.Errorf("%w: unknown vote kind %q", model.ErrValidation, e.Kind)
}

// applyComparison performs the paired Elo update and counter increments
// atomically for both participants.
func (a *Applier) applyComparison(ctx context.Context, e Event) error {
	err := a.store.UpdatePair(ctx, e.WinnerID, e.LoserID, func(winner, loser *repository.Mutable) error {
		winner.Agg.Elo, loser.Agg.Elo = elo.Pair(winner.Agg.Elo, loser.Agg.Elo, a.k)
		winner.Agg.Wins++
		winner.Agg.ComparisonVotes++
		loser.Agg.Losses++
		loser.Agg.ComparisonVotes++
		return nil
	})
	if err != nil {
		return fmt.Errorf("apply comparison %s: %w", e.EventID, err)
	}
	metrics.RecordVoteApplied(string(model.KindComparison))
	return nil
}

func (a *Applier) applySlider(ctx context.Context, e Event) error {
	err := a.store.Update(ctx, e.ItemID, func(m *repository.Mutable) error {
		m.Agg.SliderSum += e.Value
		m.Agg.SliderCount++
		return nil
	})
	if err != nil {
		return fmt.Errorf("apply slider %s: %w", e.EventID, err)
	}
	metrics.RecordVoteApplied(string(model.KindSlider))
	return nil
}

func (a *Applier) applyEndorsement(ctx context.Context, e Event) error {
	duplicate := false
	err := a.store.Update(ctx, e.ItemID, func(m *repository.Mutable) error {
		duplicate = !m.Endorse(e.Voter)
		return nil
	})
	if err != nil {
		return fmt.Errorf("apply endorsement %s: %w", e.EventID, err)
	}
	if duplicate {
		metrics.RecordEndorsementDuplicate()
		return nil
	}
	metrics.RecordVoteApplied(string(model.KindEndorsement))
	return nil
}
