// Package elo implements the standard paired Elo rating update used for
// head-to-head comparison outcomes.
package elo

import "math"

// Default Elo parameters. K is tunable per deployment through configuration.
const (
	DefaultK        = 32.0
	DefaultBaseline = 1000.0

	logisticBase  = 10.0
	logisticScale = 400.0
)

// Expected returns the expected score of a player rated ra against one
// rated rb: 1/(1+10^((rb-ra)/400)).
func Expected(ra, rb float64) float64 {
	return 1.0 / (1.0 + math.Pow(logisticBase, (rb-ra)/logisticScale))
}

// Pair applies one pairwise outcome and returns the updated ratings. The two
// rating deltas always sum to zero (rating is conserved across the pair).
func Pair(winner, loser, k float64) (newWinner, newLoser float64) {
	expectedWin := Expected(winner, loser)
	delta := k * (1.0 - expectedWin)
	return winner + delta, loser - delta
}
