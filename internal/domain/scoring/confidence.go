package scoring

import (
	"math"

	"github.com/patinalabs/patina/internal/domain/types"
)

// Tier thresholds. Ordered: the first tier whose requirements are met, from
// the top, wins.
const (
	highMinComparisons   = 10
	highMinSliders       = 3
	highMinEndorsements  = 1
	mediumMinComparisons = 5
	mediumMinSliders     = 2
	lowMinComparisons    = 3
	lowMinSliders        = 1
)

// Per-tier base confidence values on the 0-100 scale.
const (
	baseVeryLow = 10.0
	baseLow     = 40.0
	baseMedium  = 65.0
	baseHigh    = 90.0
)

// Evidence bonus weighting. The bonus is bounded so confidence stays
// monotone and capped.
const (
	bonusPerComparison  = 0.4
	bonusPerSlider      = 1.0
	bonusPerEndorsement = 2.0
	bonusCap            = 10.0
	confidenceCap       = 100.0
)

// Counts holds the accumulated vote counts a confidence estimate is derived
// from.
type Counts struct {
	ComparisonVotes  int
	SliderCount      int
	EndorsementCount int
}

// Tier returns the coarse confidence tier for the counts. Absence of data is
// a confidence signal, never an error. In bootstrap mode the tier is capped
// at MEDIUM until the deployment has accumulated enough population-wide
// evidence to trust HIGH.
func Tier(c Counts, mode types.ScoringMode) types.ConfidenceTier {
	tier := types.TierVeryLow
	switch {
	case c.ComparisonVotes >= highMinComparisons && c.SliderCount >= highMinSliders && c.EndorsementCount >= highMinEndorsements:
		tier = types.TierHigh
	case c.ComparisonVotes >= mediumMinComparisons && c.SliderCount >= mediumMinSliders:
		tier = types.TierMedium
	case c.ComparisonVotes >= lowMinComparisons || c.SliderCount >= lowMinSliders:
		tier = types.TierLow
	}
	if mode == types.ModeBootstrap && tier == types.TierHigh {
		tier = types.TierMedium
	}
	return tier
}

// Confidence maps counts to a 0-100 confidence value and its tier. The value
// is a tier base plus a bounded evidence bonus; both parts are monotonically
// non-decreasing in every count, so the sum is too.
func Confidence(c Counts, mode types.ScoringMode) (float64, types.ConfidenceTier) {
	tier := Tier(c, mode)

	base := baseVeryLow
	switch tier {
	case types.TierLow:
		base = baseLow
	case types.TierMedium:
		base = baseMedium
	case types.TierHigh:
		base = baseHigh
	case types.TierVeryLow:
	}

	bonus := bonusPerComparison*float64(c.ComparisonVotes) +
		bonusPerSlider*float64(c.SliderCount) +
		bonusPerEndorsement*float64(c.EndorsementCount)
	bonus = math.Min(bonus, bonusCap)

	return math.Min(base+bonus, confidenceCap), tier
}
