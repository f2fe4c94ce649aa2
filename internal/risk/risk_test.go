package risk

import (
	"testing"
	"time"

	"github.com/leanovate/gopter"
	"github.com/leanovate/gopter/gen"
	"github.com/leanovate/gopter/prop"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"nifty-options-lab/internal/errors"
	"nifty-options-lab/internal/metrics"
	"nifty-options-lab/internal/models"
)

var asOf = time.Date(2024, 1, 10, 15, 30, 0, 0, time.UTC)

func callPosition() *models.Position {
	return &models.Position{
		ID:           "p1",
		Symbol:       "NIFTY18000CE",
		Type:         models.Call,
		Strike:       18000,
		Expiry:       asOf.AddDate(0, 0, 30),
		Direction:    models.Long,
		Quantity:     1,
		LotSize:      50,
		EntryPrice:   150,
		CurrentPrice: 150,
		Volatility:   0.2,
		EntryTime:    asOf,
		Strategy:     "straddle",
		State:        models.StateOpen,
	}
}

func TestEvaluateExit_StopLoss(t *testing.T) {
	m := NewManager(DefaultLimits())
	p := callPosition()

	stop, _ := m.ExitLevels(p)
	assert.InDelta(t, 147, stop, 1e-9)
	assert.Equal(t, models.StateStopLoss, m.EvaluateExit(p, 146, asOf))
}

func TestEvaluateExit_TakeProfit(t *testing.T) {
	m := NewManager(DefaultLimits())
	p := callPosition()

	_, target := m.ExitLevels(p)
	assert.InDelta(t, 157.5, target, 1e-9)
	assert.Equal(t, models.StateTakeProfit, m.EvaluateExit(p, 160, asOf))
	assert.Equal(t, models.StateOpen, m.EvaluateExit(p, 152, asOf))
}

func TestEvaluateExit_PutAndShortLevelsMirror(t *testing.T) {
	m := NewManager(DefaultLimits())

	put := callPosition()
	put.Type = models.Put
	stop, target := m.ExitLevels(put)
	assert.InDelta(t, 153, stop, 1e-9)
	assert.InDelta(t, 142.5, target, 1e-9)
	assert.Equal(t, models.StateStopLoss, m.EvaluateExit(put, 154, asOf))
	assert.Equal(t, models.StateTakeProfit, m.EvaluateExit(put, 140, asOf))

	short := callPosition()
	short.Direction = models.Short
	assert.Equal(t, models.StateStopLoss, m.EvaluateExit(short, 154, asOf))
	assert.Equal(t, models.StateTakeProfit, m.EvaluateExit(short, 140, asOf))
}

func TestEvaluateExit_TimeDecay(t *testing.T) {
	m := NewManager(DefaultLimits())
	p := callPosition()
	p.Expiry = asOf.AddDate(0, 0, 7)

	assert.Equal(t, models.StateTimeDecay, m.EvaluateExit(p, 151, asOf))
	assert.Equal(t, models.StateOpen, m.EvaluateExit(p, 151, asOf.AddDate(0, 0, -1)))
	// Price rules win over time decay.
	assert.Equal(t, models.StateStopLoss, m.EvaluateExit(p, 100, asOf))
}

func TestTransition(t *testing.T) {
	assert.Equal(t, models.StateClosed, Transition(models.StateStopLoss))
	assert.Equal(t, models.StateClosed, Transition(models.StateTakeProfit))
	assert.Equal(t, models.StateClosed, Transition(models.StateTimeDecay))
	assert.Equal(t, models.StateOpen, Transition(models.StateOpen))
	assert.Equal(t, models.StateClosed, Transition(models.StateClosed))
}

func TestProperty_ExitSignalIsDeterministicAndOrdered(t *testing.T) {
	parameters := gopter.DefaultTestParameters()
	parameters.MinSuccessfulTests = 200
	parameters.Rng.Seed(time.Now().UnixNano())
	properties := gopter.NewProperties(parameters)
	m := NewManager(DefaultLimits())

	properties.Property("a price through the stop always signals stop loss", prop.ForAll(
		func(entry, drop float64) bool {
			p := callPosition()
			p.EntryPrice = entry
			stop, _ := m.ExitLevels(p)
			return m.EvaluateExit(p, stop-drop, asOf) == models.StateStopLoss
		},
		gen.Float64Range(1, 1000),
		gen.Float64Range(0, 50),
	))

	properties.TestingRun(t)
}

func TestManager_AddRemove(t *testing.T) {
	m := NewManager(DefaultLimits())
	m.Add(callPosition())
	require.Equal(t, 1, m.Len())

	snapshot := m.Positions()
	require.NoError(t, m.Remove("p1"))
	assert.Equal(t, 0, m.Len())
	assert.Len(t, snapshot, 1)

	err := m.Remove("p1")
	assert.True(t, errors.Is(err, errors.ErrPositionNotFound))
}

func TestPortfolioGreeks_UsesSignedUnits(t *testing.T) {
	m := NewManager(DefaultLimits())
	marks := Marks{AsOf: asOf, Spot: 18000, RiskFreeRate: 0.05}

	long := callPosition()
	short := callPosition()
	short.ID = "p2"
	short.Direction = models.Short

	g, err := m.PortfolioGreeks([]*models.Position{long}, marks)
	require.NoError(t, err)
	assert.InDelta(t, 50*0.55, g.Delta, 3)
	assert.Greater(t, g.Gamma, 0.0)

	flat, err := m.PortfolioGreeks([]*models.Position{long, short}, marks)
	require.NoError(t, err)
	assert.InDelta(t, 0, flat.Delta, 1e-9)
	assert.InDelta(t, 0, flat.Vega, 1e-9)
}

func TestCheckLimits_OrderAndActions(t *testing.T) {
	limits := DefaultLimits()
	limits.MaxPositionSize = 1_000
	c := metrics.New()
	m := NewManager(limits, WithMetrics(c))
	m.SetDailyPnL(-60_000)

	p := callPosition()
	p.Quantity = 8 // 400 units of a ~550 call
	marks := Marks{AsOf: asOf, Spot: 18000, RiskFreeRate: 0.05, Prices: map[string]float64{"p1": 550}}

	alerts := m.CheckLimits([]*models.Position{p}, marks)
	kinds := make([]models.AlertKind, len(alerts))
	for i, a := range alerts {
		kinds[i] = a.Kind
	}
	assert.Equal(t, []models.AlertKind{
		models.AlertPositionSize,
		models.AlertDailyLoss,
		models.AlertDeltaExposure,
		models.AlertThetaDecay,
		models.AlertVaR,
	}, kinds)

	assert.Equal(t, models.SeverityCritical, alerts[0].Severity)
	assert.Equal(t, models.ActionReduce, alerts[0].Action)
	assert.Equal(t, models.ActionCloseAll, alerts[1].Action)
	assert.Equal(t, models.ActionHedgeDelta, alerts[2].Action)
	assert.Equal(t, models.ActionRoll, alerts[3].Action)
	assert.Equal(t, models.SeverityHigh, alerts[4].Severity)
	assert.Equal(t, asOf, alerts[0].Date)
}

func TestCheckLimits_QuietBook(t *testing.T) {
	m := NewManager(DefaultLimits())
	assert.Empty(t, m.CheckLimits(nil, Marks{AsOf: asOf, Spot: 18000}))
	assert.Empty(t, m.CheckLimits([]*models.Position{callPosition()}, Marks{AsOf: asOf, Spot: 18000, RiskFreeRate: 0.05}))
}

func TestValueAtRisk(t *testing.T) {
	assert.InDelta(t, 1_000_000*0.2*1.645, ValueAtRisk(1_000_000, 0.2, 0.95), 1e-6)
	assert.InDelta(t, 1_000_000*0.2*2.326, ValueAtRisk(-1_000_000, 0.2, 0.99), 1e-6)
	assert.InDelta(t, 1.2816, ZScore(0.90), 1e-3)
	assert.Equal(t, 0.0, ValueAtRisk(1_000_000, 0.2, 1.5))
	assert.Equal(t, 0.0, ValueAtRisk(1_000_000, 0, 0.95))
}

func TestPositionSize_Kelly(t *testing.T) {
	// f = (0.6*200 - 0.4*100)/200 = 0.4 -> clamped to 0.25, then capped at 10%.
	assert.Equal(t, 100, PositionSize(1_000_000, 0.6, 200, 100, 1000))

	// f = (0.55*100 - 0.45*100)/100 = 0.1 -> 100_000/1000 = 100 = 10% cap.
	assert.Equal(t, 100, PositionSize(1_000_000, 0.55, 100, 100, 1000))

	// f = (0.52*100 - 0.48*100)/100 = 0.04 -> 40_000/1000.
	assert.Equal(t, 40, PositionSize(1_000_000, 0.52, 100, 100, 1000))

	assert.Equal(t, 0, PositionSize(1_000_000, 0.3, 100, 100, 1000))
	assert.Equal(t, 0, PositionSize(1_000_000, 0.6, 0, 100, 1000))
	assert.Equal(t, 0, PositionSize(1_000_000, 0.6, 200, 100, 0))
	assert.Equal(t, 0, PositionSize(0, 0.6, 200, 100, 1000))
}

func TestKellyFraction_SignedLoss(t *testing.T) {
	// f = (0.4*1000 - 0.6*1000)/1000 < 0 whatever the sign of the loss.
	assert.Zero(t, KellyFraction(0.4, 1000, -1000))
	assert.Zero(t, PositionSize(1_000_000, 0.4, 1000, -1000, 5000))

	assert.Equal(t, KellyFraction(0.52, 100, 100), KellyFraction(0.52, 100, -100))
	assert.Equal(t, PositionSize(1_000_000, 0.52, 100, 100, 1000), PositionSize(1_000_000, 0.52, 100, -100, 1000))
}

func TestFixedRiskLots(t *testing.T) {
	assert.Equal(t, 4, FixedRiskLots(1_000_000, 0.02, 5000, 10))
	assert.Equal(t, 10, FixedRiskLots(1_000_000, 0.02, 100, 10))
	assert.Equal(t, 0, FixedRiskLots(1_000_000, 0.02, 0, 10))
}

func TestHedgeRecommendations(t *testing.T) {
	m := NewManager(DefaultLimits())

	hedges := m.HedgeRecommendations(models.OptionGreeks{Delta: 60_000, Gamma: 6_000, Theta: -600})
	require.Len(t, hedges, 3)
	assert.Equal(t, "buy_puts", hedges[0].Action)
	assert.Equal(t, 1200, hedges[0].Quantity)
	assert.Equal(t, 600, hedges[1].Quantity)
	assert.True(t, hedges[2].All)

	hedges = m.HedgeRecommendations(models.OptionGreeks{Delta: -60_000})
	require.Len(t, hedges, 1)
	assert.Equal(t, "buy_calls", hedges[0].Action)

	assert.Empty(t, m.HedgeRecommendations(models.OptionGreeks{Delta: 100}))
}

func TestAllocate_SharpeRanked(t *testing.T) {
	plan, err := Allocate([]Candidate{
		{Name: "iron_condor", ExpectedReturn: 0.15, Volatility: 0.10, MaxAllocation: 0.5},
		{Name: "straddle", ExpectedReturn: 0.25, Volatility: 0.40, MaxAllocation: 0.4},
		{Name: "loser", ExpectedReturn: 0.02, Volatility: 0.2},
	}, 1_000_000, 0.05)
	require.NoError(t, err)
	require.Len(t, plan.Allocations, 2)

	// Sharpe 1.0 and 0.5: weights 2/3 capped to 0.5, then 1/3.
	assert.Equal(t, "iron_condor", plan.Allocations[0].Name)
	assert.InDelta(t, 0.5, plan.Allocations[0].Weight, 1e-9)
	assert.InDelta(t, 500_000, plan.Allocations[0].Capital, 1e-6)
	assert.InDelta(t, 1.0/3, plan.Allocations[1].Weight, 1e-9)
	assert.LessOrEqual(t, plan.TotalWeight, 1.0)

	_, err = Allocate([]Candidate{{Name: "bad"}}, 1_000_000, 0.05)
	assert.Error(t, err)
}
