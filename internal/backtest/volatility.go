package backtest

import (
	"math"

	"github.com/montanaflynn/stats"

	"nifty-options-lab/internal/strategy"
)

// TradingDays annualises daily statistics.
const TradingDays = 252

// RealizedVolatility is the annualised sample standard deviation of the log
// returns of closes. Fewer than two returns give 0.
func RealizedVolatility(closes []float64) float64 {
	if len(closes) < 3 {
		return 0
	}
	returns := make(stats.Float64Data, 0, len(closes)-1)
	for i := 1; i < len(closes); i++ {
		if closes[i-1] <= 0 || closes[i] <= 0 {
			return 0
		}
		returns = append(returns, math.Log(closes[i]/closes[i-1]))
	}
	sd, err := stats.StandardDeviationSample(returns)
	if err != nil || math.IsNaN(sd) {
		return 0
	}
	return sd * math.Sqrt(TradingDays)
}

// trendOf classifies the move across closes against threshold.
func trendOf(closes []float64, threshold float64) strategy.Trend {
	if len(closes) < 2 || closes[0] <= 0 || threshold <= 0 {
		return strategy.TrendNeutral
	}
	move := closes[len(closes)-1]/closes[0] - 1
	switch {
	case move > threshold:
		return strategy.TrendBullish
	case move < -threshold:
		return strategy.TrendBearish
	}
	return strategy.TrendNeutral
}
