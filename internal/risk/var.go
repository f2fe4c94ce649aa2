package risk

import (
	"math"

	"github.com/montanaflynn/stats"
)

// ZScore returns the one-sided normal quantile for a confidence level, using
// the usual table values at 95% and 99%. Levels outside (0, 1) return 0.
func ZScore(confidence float64) float64 {
	switch {
	case confidence <= 0 || confidence >= 1 || math.IsNaN(confidence):
		return 0
	case confidence == 0.95:
		return 1.645
	case confidence == 0.99:
		return 2.326
	}
	return stats.NormPpf(confidence, 0, 1)
}

// ValueAtRisk is the parametric VaR |value| * vol * z(confidence).
func ValueAtRisk(value, vol, confidence float64) float64 {
	if vol <= 0 {
		return 0
	}
	return math.Abs(value) * vol * ZScore(confidence)
}
