// Package model contains domain models passed between layers.
package model

import (
	"fmt"
	"strings"
	"time"

	"github.com/patinalabs/patina/internal/domain/types"
)

// Kind tags the vote-event union.
type Kind string

// Vote event kinds.
const (
	KindComparison  Kind = "comparison"
	KindSlider      Kind = "slider"
	KindEndorsement Kind = "endorsement"
)

// Slider rating bounds.
const (
	SliderMin = 0.0
	SliderMax = 100.0
)

// VoteEvent is one immutable vote fact flowing through the ingestion
// pipeline. Exactly one of the three variants is populated, selected by Kind:
//
//   - comparison:  WinnerID, LoserID
//   - slider:      ItemID, Voter, Value
//   - endorsement: ItemID, Voter
//
// EventID is the idempotency key used to drop replays at the ingestion
// boundary.
type VoteEvent struct {
	EventID string
	Kind    Kind

	WinnerID types.ItemID
	LoserID  types.ItemID

	ItemID types.ItemID
	Voter  types.VoterID
	Value  float64

	TS time.Time
}

// PairwiseOutcome builds a comparison vote event.
func PairwiseOutcome(eventID string, winner, loser types.ItemID, ts time.Time) VoteEvent {
	return VoteEvent{EventID: eventID, Kind: KindComparison, WinnerID: winner, LoserID: loser, TS: ts}
}

// SliderRating builds an absolute-rating vote event.
func SliderRating(eventID string, item types.ItemID, voter types.VoterID, value float64, ts time.Time) VoteEvent {
	return VoteEvent{EventID: eventID, Kind: KindSlider, ItemID: item, Voter: voter, Value: value, TS: ts}
}

// Endorsement builds a binary strong-approval vote event.
func Endorsement(eventID string, item types.ItemID, voter types.VoterID, ts time.Time) VoteEvent {
	return VoteEvent{EventID: eventID, Kind: KindEndorsement, ItemID: item, Voter: voter, TS: ts}
}

// Validate checks structural validity of the event. Unknown-item checks are
// deferred to the rating store, which owns the item population.
func (e VoteEvent) Validate() error {
	if strings.TrimSpace(e.EventID) == "" {
		return fmt.Errorf("%w: missing event_id", ErrValidation)
	}
	switch e.Kind {
	case KindComparison:
		if e.WinnerID == "" || e.LoserID == "" {
			return fmt.Errorf("%w: comparison requires winner_id and loser_id", ErrValidation)
		}
		if e.WinnerID == e.LoserID {
			return fmt.Errorf("%w: self-comparison %q", ErrValidation, e.WinnerID)
		}
	case KindSlider:
		if e.ItemID == "" {
			return fmt.Errorf("%w: missing item_id", ErrValidation)
		}
		if e.Voter == "" {
			return fmt.Errorf("%w: missing voter", ErrValidation)
		}
		if e.Value < SliderMin || e.Value > SliderMax {
			return fmt.Errorf("%w: slider value %v outside [%v,%v]", ErrValidation, e.Value, SliderMin, SliderMax)
		}
	case KindEndorsement:
		if e.ItemID == "" {
			return fmt.Errorf("%w: missing item_id", ErrValidation)
		}
		if e.Voter == "" {
			return fmt.Errorf("%w: missing voter", ErrValidation)
		}
	default:
		return fmt.Errorf("%w: unknown vote kind %q", ErrValidation, e.Kind)
	}
	return nil
}

// Subjects returns the item ids the event touches.
func (e VoteEvent) Subjects() []types.ItemID {
	if e.Kind == KindComparison {
		return []types.ItemID{e.WinnerID, e.LoserID}
	}
	return []types.ItemID{e.ItemID}
}
