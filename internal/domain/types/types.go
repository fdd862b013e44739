// Package types contains common types used across the application
package types

// ItemID identifies a ranked item. It is a distinct type rather than a bare
// string so item identifiers cannot be confused with voter or event ids at
// compile time.
type ItemID string

// String returns the raw identifier.
func (id ItemID) String() string { return string(id) }

// VoterID identifies the validated voter behind a slider rating or an
// endorsement. Supplied by the external identity layer.
type VoterID string

// ConfidenceTier is the coarse evidence bucket behind a confidence value.
type ConfidenceTier string

// Confidence tiers, least to most evidenced.
const (
	TierVeryLow ConfidenceTier = "VERY_LOW"
	TierLow     ConfidenceTier = "LOW"
	TierMedium  ConfidenceTier = "MEDIUM"
	TierHigh    ConfidenceTier = "HIGH"
)

// ScoringMode selects how strictly confidence and leaderboard eligibility
// are applied. Bootstrap is for young deployments with sparse vote data.
type ScoringMode string

// Known scoring modes.
const (
	ModeBootstrap ScoringMode = "bootstrap"
	ModeFull      ScoringMode = "full"
)

// Valid reports whether the mode is one of the known values.
func (m ScoringMode) Valid() bool {
	return m == ModeBootstrap || m == ModeFull
}

// Entry represents a leaderboard entry.
type Entry struct {
	Rank            int     `json:"rank"`
	ItemID          ItemID  `json:"item_id"`
	Score           float64 `json:"score"`
	Confidence      float64 `json:"confidence"`
	Endorsements    int     `json:"endorsement_count"`
	ComparisonVotes int     `json:"total_comparison_votes"`
}
