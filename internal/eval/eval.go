// Package eval converts engine scores into bar fractions and provides a
// static material evaluator for use when no engine is reachable.
package eval

import (
	"fmt"
	"math"
)

// MateScore is the pawn-unit value reported for a forced mate.
const MateScore = 99.0

// saturation is the absolute score at which a bar reading is pinned to an end.
const saturation = 98.0

// Epsilon bounds ToFraction away from 0 and 1.
const Epsilon = 1e-7

// ToFraction maps a pawn-unit score from the side's perspective into [0,1].
// A nil score (no data) maps to exactly 0.5. Scores at or beyond the mate
// saturation threshold are pinned to Epsilon or 1-Epsilon.
func ToFraction(score *float64) float64 {
	if score == nil {
		return 0.5
	}
	s := *score
	switch {
	case math.IsNaN(s):
		return 0.5
	case s >= saturation:
		return 1 - Epsilon
	case s <= -saturation:
		return Epsilon
	}
	f := (math.Tanh(s/2) + 1) / 2
	return math.Min(math.Max(f, Epsilon), 1-Epsilon)
}

// FormatScore renders a score for display: "+0.3", "-1.2", or "-" when there
// is no score.
func FormatScore(score *float64) string {
	if score == nil {
		return "-"
	}
	if math.Abs(*score) >= saturation {
		if *score > 0 {
			return "+M"
		}
		return "-M"
	}
	return fmt.Sprintf("%+.1f", *score)
}

// Score returns a pointer to v. It is a convenience for building optional
// scores.
func Score(v float64) *float64 { return &v }
