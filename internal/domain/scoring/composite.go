// Package scoring computes composite aesthetic scores and confidence levels
// from accumulated per-item vote aggregates.
//
// The engine is pure: the same aggregates always produce the same score,
// components, and confidence. Only the computed-at timestamp advances between
// runs, which is what makes batch recomputation idempotent and safe to
// re-run at any time.
package scoring

import (
	"fmt"
	"math"
	"strings"
	"time"

	"github.com/patinalabs/patina/internal/domain/types"
)

// Default engine configuration constants.
const (
	defaultEloWeight         = 0.45
	defaultSliderWeight      = 0.35
	defaultEndorsementWeight = 0.20

	// Elo normalization: clamp((elo-floor)/span) maps the working Elo range
	// onto 0-100 with the 1000 baseline landing at 50.
	defaultEloFloor = 600.0
	defaultEloSpan  = 800.0

	// Endorsement saturation: n/(n+half) gives diminishing returns so a
	// brigade of endorsements cannot inflate the score without bound.
	defaultEndorsementHalfSat = 3.0

	// Neutral slider value reported when no slider ratings were observed.
	neutralSlider = 50.0

	componentScale = 100.0
)

// Weights configures the relative contribution of each signal component.
type Weights struct {
	Elo         float64 `koanf:"elo"`
	Slider      float64 `koanf:"slider"`
	Endorsement float64 `koanf:"endorsement"`
}

// DefaultWeights returns the standard component weighting.
func DefaultWeights() Weights {
	return Weights{Elo: defaultEloWeight, Slider: defaultSliderWeight, Endorsement: defaultEndorsementWeight}
}

// Aggregates is the read snapshot of an item's rating state the engine
// scores from.
type Aggregates struct {
	Elo              float64
	ComparisonVotes  int
	SliderSum        float64
	SliderCount      int
	EndorsementCount int
}

// Counts extracts the vote counts for confidence estimation.
func (a Aggregates) Counts() Counts {
	return Counts{
		ComparisonVotes:  a.ComparisonVotes,
		SliderCount:      a.SliderCount,
		EndorsementCount: a.EndorsementCount,
	}
}

// SliderAverage returns the running slider mean, or the neutral midpoint when
// no slider ratings were observed.
func (a Aggregates) SliderAverage() float64 {
	if a.SliderCount == 0 {
		return neutralSlider
	}
	return a.SliderSum / float64(a.SliderCount)
}

// Components is the per-signal breakdown behind a composite score. Each
// component is on the 0-100 scale. A component for an absent signal is
// reported at its neutral or zero value and excluded from the weighted sum;
// the explanation records the omission.
type Components struct {
	Elo         float64 `json:"elo_component"`
	Slider      float64 `json:"slider_component"`
	Endorsement float64 `json:"endorsement_component"`
}

// Record is the persisted outcome of one composite score computation.
type Record struct {
	Score          float64              `json:"score"`
	Confidence     float64              `json:"confidence"`
	ConfidenceTier types.ConfidenceTier `json:"confidence_tier"`
	Components     Components           `json:"components"`
	Explanation    string               `json:"explanation"`
	ComputedAt     time.Time            `json:"computed_at"`
}

// Equivalent reports whether two records carry the same score outcome,
// ignoring the computed-at timestamp.
func (r Record) Equivalent(other Record) bool {
	return r.Score == other.Score &&
		r.Confidence == other.Confidence &&
		r.ConfidenceTier == other.ConfidenceTier &&
		r.Components == other.Components &&
		r.Explanation == other.Explanation
}

// Option applies a configuration option to the Engine.
type Option func(*Engine)

// WithWeights sets the component weights. Non-positive weight sets are
// ignored in favor of the defaults.
func WithWeights(w Weights) Option {
	return func(e *Engine) {
		if w.Elo > 0 && w.Slider > 0 && w.Endorsement > 0 {
			e.weights = w
		}
	}
}

// WithMode sets the scoring mode threaded into confidence estimation.
func WithMode(mode types.ScoringMode) Option {
	return func(e *Engine) {
		if mode.Valid() {
			e.mode = mode
		}
	}
}

// WithEloNormalization overrides the Elo reference scale.
func WithEloNormalization(floor, span float64) Option {
	return func(e *Engine) {
		if span > 0 {
			e.eloFloor = floor
			e.eloSpan = span
		}
	}
}

// WithClock overrides the time source for computed-at stamps.
func WithClock(now func() time.Time) Option {
	return func(e *Engine) {
		if now != nil {
			e.now = now
		}
	}
}

// Engine combines normalized signal components into one 0-100 composite
// score with a confidence estimate.
type Engine struct {
	weights Weights
	mode    types.ScoringMode

	eloFloor           float64
	eloSpan            float64
	endorsementHalfSat float64

	now func() time.Time
}

// NewEngine creates a composite score engine with configuration options.
func NewEngine(opts ...Option) *Engine {
	e := &Engine{
		weights:            DefaultWeights(),
		mode:               types.ModeFull,
		eloFloor:           defaultEloFloor,
		eloSpan:            defaultEloSpan,
		endorsementHalfSat: defaultEndorsementHalfSat,
		now:                time.Now,
	}
	for _, opt := range opts {
		opt(e)
	}
	return e
}

// Score computes the composite score record for the aggregates. It never
// fails: sparse data yields a low-confidence score, not an error. The
// weighted sum runs over the observed components only and is renormalized by
// the weights actually used, so an item is never penalized merely for a
// missing signal.
func (e *Engine) Score(agg Aggregates) Record {
	confidence, tier := Confidence(agg.Counts(), e.mode)

	comps := Components{
		Slider: agg.SliderAverage(),
	}

	var weighted, usedWeight float64
	var notes []string

	if agg.ComparisonVotes > 0 {
		comps.Elo = clamp((agg.Elo-e.eloFloor)/e.eloSpan*componentScale, 0, componentScale)
		weighted += comps.Elo * e.weights.Elo
		usedWeight += e.weights.Elo
		notes = append(notes, fmt.Sprintf("elo %.1f (weight %.2f)", comps.Elo, e.weights.Elo))
	} else {
		notes = append(notes, "head-to-head signal absent, omitted")
	}

	if agg.SliderCount > 0 {
		weighted += comps.Slider * e.weights.Slider
		usedWeight += e.weights.Slider
		notes = append(notes, fmt.Sprintf("slider %.1f over %d ratings (weight %.2f)", comps.Slider, agg.SliderCount, e.weights.Slider))
	} else {
		notes = append(notes, "slider unobserved, neutral 50 shown, omitted")
	}

	if agg.EndorsementCount > 0 {
		n := float64(agg.EndorsementCount)
		comps.Endorsement = componentScale * n / (n + e.endorsementHalfSat)
		weighted += comps.Endorsement * e.weights.Endorsement
		usedWeight += e.weights.Endorsement
		notes = append(notes, fmt.Sprintf("endorsement %.1f from %d voters (weight %.2f)", comps.Endorsement, agg.EndorsementCount, e.weights.Endorsement))
	} else {
		notes = append(notes, "endorsement signal absent, omitted")
	}

	score := neutralSlider // no observed signal at all
	if usedWeight > 0 {
		score = clamp(weighted/usedWeight, 0, componentScale)
	} else {
		notes = append(notes, "no observed signal, neutral score")
	}

	return Record{
		Score:          score,
		Confidence:     confidence,
		ConfidenceTier: tier,
		Components:     comps,
		Explanation:    fmt.Sprintf("score %.1f, confidence %s: %s", score, tier, strings.Join(notes, "; ")),
		ComputedAt:     e.now(),
	}
}

func clamp(x, lo, hi float64) float64 {
	return math.Max(lo, math.Min(hi, x))
}
