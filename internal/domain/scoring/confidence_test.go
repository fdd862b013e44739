package scoring_test

import (
	"testing"

	"github.com/patinalabs/patina/internal/domain/scoring"
	"github.com/patinalabs/patina/internal/domain/types"
	. "github.com/smartystreets/goconvey/convey"
)

func TestConfidenceTiers(t *testing.T) {
	Convey("Given tier threshold boundaries", t, func() {
		cases := []struct {
			name string
			c    scoring.Counts
			want types.ConfidenceTier
		}{
			{"no data at all", scoring.Counts{}, types.TierVeryLow},
			{"two comparisons only", scoring.Counts{ComparisonVotes: 2}, types.TierVeryLow},
			{"three comparisons", scoring.Counts{ComparisonVotes: 3}, types.TierLow},
			{"one slider only", scoring.Counts{SliderCount: 1}, types.TierLow},
			{"five comparisons but one slider", scoring.Counts{ComparisonVotes: 5, SliderCount: 1}, types.TierLow},
			{"five comparisons and two sliders", scoring.Counts{ComparisonVotes: 5, SliderCount: 2}, types.TierMedium},
			{"high counts without endorsement", scoring.Counts{ComparisonVotes: 10, SliderCount: 3}, types.TierMedium},
			{"full high tier evidence", scoring.Counts{ComparisonVotes: 10, SliderCount: 3, EndorsementCount: 1}, types.TierHigh},
			{"ample everything", scoring.Counts{ComparisonVotes: 50, SliderCount: 20, EndorsementCount: 8}, types.TierHigh},
		}

		for _, tc := range cases {
			Convey("When counts are "+tc.name, func() {
				So(scoring.Tier(tc.c, types.ModeFull), ShouldEqual, tc.want)
			})
		}
	})

	Convey("Given bootstrap mode", t, func() {
		c := scoring.Counts{ComparisonVotes: 10, SliderCount: 3, EndorsementCount: 1}

		Convey("Then the tier should be capped at MEDIUM", func() {
			So(scoring.Tier(c, types.ModeBootstrap), ShouldEqual, types.TierMedium)
		})

		Convey("And lower tiers should be unaffected", func() {
			So(scoring.Tier(scoring.Counts{ComparisonVotes: 3}, types.ModeBootstrap), ShouldEqual, types.TierLow)
			So(scoring.Tier(scoring.Counts{}, types.ModeBootstrap), ShouldEqual, types.TierVeryLow)
		})
	})
}

func TestConfidenceValue(t *testing.T) {
	Convey("Given the confidence value function", t, func() {
		Convey("When there is no data", func() {
			v, tier := scoring.Confidence(scoring.Counts{}, types.ModeFull)
			So(tier, ShouldEqual, types.TierVeryLow)
			So(v, ShouldEqual, 10.0)
		})

		Convey("When evidence grows inside one tier", func() {
			v1, _ := scoring.Confidence(scoring.Counts{ComparisonVotes: 3}, types.ModeFull)
			v2, _ := scoring.Confidence(scoring.Counts{ComparisonVotes: 4}, types.ModeFull)
			So(v2, ShouldBeGreaterThan, v1)
		})

		Convey("When the evidence bonus saturates", func() {
			v, tier := scoring.Confidence(scoring.Counts{ComparisonVotes: 1000, SliderCount: 500, EndorsementCount: 200}, types.ModeFull)
			So(tier, ShouldEqual, types.TierHigh)
			So(v, ShouldEqual, 100.0)
		})

		Convey("Then confidence should never exceed 100", func() {
			for cmp := 0; cmp <= 40; cmp += 5 {
				for sl := 0; sl <= 20; sl += 4 {
					for end := 0; end <= 10; end += 2 {
						v, _ := scoring.Confidence(scoring.Counts{ComparisonVotes: cmp, SliderCount: sl, EndorsementCount: end}, types.ModeFull)
						So(v, ShouldBeBetweenOrEqual, 0, 100)
					}
				}
			}
		})

		Convey("Then confidence should be monotone in every count", func() {
			base := scoring.Counts{ComparisonVotes: 4, SliderCount: 1, EndorsementCount: 0}
			v0, _ := scoring.Confidence(base, types.ModeFull)

			more := base
			for i := 0; i < 30; i++ {
				more.ComparisonVotes++
				v, _ := scoring.Confidence(more, types.ModeFull)
				So(v, ShouldBeGreaterThanOrEqualTo, v0)
				v0 = v
			}

			v0, _ = scoring.Confidence(base, types.ModeFull)
			more = base
			for i := 0; i < 15; i++ {
				more.SliderCount++
				v, _ := scoring.Confidence(more, types.ModeFull)
				So(v, ShouldBeGreaterThanOrEqualTo, v0)
				v0 = v
			}

			v0, _ = scoring.Confidence(base, types.ModeFull)
			more = base
			for i := 0; i < 10; i++ {
				more.EndorsementCount++
				v, _ := scoring.Confidence(more, types.ModeFull)
				So(v, ShouldBeGreaterThanOrEqualTo, v0)
				v0 = v
			}
		})
	})
}
