package risk

import "math"

// Kelly sizing bounds.
const (
	MaxKellyFraction = 0.25
	MaxCapitalAtRisk = 0.10
)

// KellyFraction returns (p*avgWin - (1-p)*|avgLoss|) / avgWin clamped to
// [0, 0.25]. The loss is taken as a magnitude, so a signed average loss such
// as backtest.Result.AvgLoss sizes the same as its absolute value.
func KellyFraction(winRate, avgWin, avgLoss float64) float64 {
	if avgWin <= 0 || winRate < 0 || winRate > 1 {
		return 0
	}
	f := (winRate*avgWin - (1-winRate)*math.Abs(avgLoss)) / avgWin
	return math.Max(0, math.Min(f, MaxKellyFraction))
}

// PositionSize returns the number of contracts to trade: Kelly capital at
// risk divided by the maximum loss per contract, never more than 10% of
// capital per contract loss. Degenerate inputs size to zero.
func PositionSize(capital, winRate, avgWin, avgLoss, maxLossPerContract float64) int {
	if capital <= 0 || maxLossPerContract <= 0 {
		return 0
	}
	f := KellyFraction(winRate, avgWin, avgLoss)
	size := int(capital * f / maxLossPerContract)
	if limit := int(capital * MaxCapitalAtRisk / maxLossPerContract); size > limit {
		size = limit
	}
	if size < 0 {
		return 0
	}
	return size
}

// FixedRiskLots sizes a trade so that at most riskPct of capital is lost if
// every lot hits its maximum loss, capped at maxLots.
func FixedRiskLots(capital, riskPct, maxLossPerLot float64, maxLots int) int {
	if capital <= 0 || riskPct <= 0 || maxLossPerLot <= 0 {
		return 0
	}
	lots := int(capital * riskPct / maxLossPerLot)
	if maxLots > 0 && lots > maxLots {
		lots = maxLots
	}
	if lots < 0 {
		return 0
	}
	return lots
}
