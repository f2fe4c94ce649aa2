package strategy

import (
	"testing"
	"time"

	"github.com/leanovate/gopter"
	"github.com/leanovate/gopter/gen"
	"github.com/leanovate/gopter/prop"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"nifty-options-lab/internal/errors"
	"nifty-options-lab/internal/models"
)

func niftyMarket() Market {
	return Market{Spot: 18000, TimeToExpiry: 30.0 / 365, RiskFreeRate: 0.05, Volatility: 0.25}
}

func TestIronCondor_KnownCredits(t *testing.T) {
	condor, err := NewIronCondor(17800, 17900, 18100, 18200)
	require.NoError(t, err)

	// Long 17800 PE, short 17900 PE, short 18100 CE, long 18200 CE.
	premiums := []float64{30, 45, 50, 32}
	net, err := NetPremium(condor, premiums)
	require.NoError(t, err)
	assert.InDelta(t, -33, net, 1e-9)

	assert.Equal(t, []float64{17867, 18133}, condor.Breakevens(net))
	maxProfit, maxLoss := condor.MaxProfitLoss(net)
	assert.Equal(t, Limited(33), maxProfit)
	assert.InDelta(t, 67, maxLoss.Value, 1e-9)
	assert.False(t, maxLoss.Unbounded)

	for _, be := range condor.Breakevens(net) {
		assert.InDelta(t, 0, Payoff(be, condor)-net, 1e-9)
	}
	assert.InDelta(t, -67, Payoff(17500, condor)-net, 1e-9)
	assert.InDelta(t, 33, Payoff(18000, condor)-net, 1e-9)
}

func TestIronCondor_RejectsUnorderedStrikes(t *testing.T) {
	_, err := NewIronCondor(17900, 17800, 18100, 18200)
	assert.True(t, errors.Is(err, errors.ErrInvalidInput))
}

func TestStraddle_Profile(t *testing.T) {
	s, err := NewStraddle(18000)
	require.NoError(t, err)

	assert.Equal(t, []float64{17800, 18200}, s.Breakevens(200))
	maxProfit, maxLoss := s.MaxProfitLoss(200)
	assert.True(t, maxProfit.Unbounded)
	assert.Equal(t, "unlimited", maxProfit.String())
	assert.Equal(t, 200.0, maxLoss.Value)

	assert.Equal(t, 0.0, Payoff(18000, s))
	assert.Equal(t, 500.0, Payoff(18500, s))
	assert.Equal(t, 500.0, Payoff(17500, s))
}

func TestStrangle_Profile(t *testing.T) {
	s, err := NewStrangle(17900, 18100)
	require.NoError(t, err)
	assert.Equal(t, []float64{17780, 18220}, s.Breakevens(120))
	assert.Equal(t, 0.0, Payoff(18000, s))
	assert.Equal(t, 100.0, Payoff(18200, s))

	_, err = NewStrangle(18100, 17900)
	assert.Error(t, err)
}

func TestButterfly_Profile(t *testing.T) {
	b, err := NewButterfly(17900, 18000, 18100)
	require.NoError(t, err)

	legs := b.Legs()
	require.Len(t, legs, 3)
	assert.Equal(t, 2, legs[1].Weight)
	assert.Equal(t, models.Short, legs[1].Direction)

	assert.Equal(t, []float64{17925, 18075}, b.Breakevens(25))
	maxProfit, maxLoss := b.MaxProfitLoss(25)
	assert.Equal(t, 75.0, maxProfit.Value)
	assert.Equal(t, 25.0, maxLoss.Value)

	assert.Equal(t, 100.0, Payoff(18000, b))
	assert.Equal(t, 0.0, Payoff(18300, b))
	assert.Equal(t, 0.0, Payoff(17700, b))
}

func TestProperty_PayoffLimits(t *testing.T) {
	parameters := gopter.DefaultTestParameters()
	parameters.MinSuccessfulTests = 200
	parameters.Rng.Seed(time.Now().UnixNano())
	properties := gopter.NewProperties(parameters)

	condor, _ := NewIronCondor(17800, 17900, 18100, 18200)
	fly, _ := NewButterfly(17900, 18000, 18100)

	properties.Property("condor expiry P&L stays within max profit and max loss", prop.ForAll(
		func(spot, credit float64) bool {
			maxProfit, maxLoss := condor.MaxProfitLoss(-credit)
			pnl := Payoff(spot, condor) + credit
			return pnl <= maxProfit.Value+1e-9 && pnl >= -maxLoss.Value-1e-9
		},
		gen.Float64Range(15000, 21000),
		gen.Float64Range(1, 90),
	))

	properties.Property("butterfly expiry P&L stays within max profit and max loss", prop.ForAll(
		func(spot, debit float64) bool {
			maxProfit, maxLoss := fly.MaxProfitLoss(debit)
			pnl := Payoff(spot, fly) - debit
			return pnl <= maxProfit.Value+1e-9 && pnl >= -maxLoss.Value-1e-9
		},
		gen.Float64Range(15000, 21000),
		gen.Float64Range(1, 90),
	))

	properties.TestingRun(t)
}

func TestNetPremium_LengthMismatch(t *testing.T) {
	s, _ := NewStraddle(18000)
	_, err := NetPremium(s, []float64{100})
	assert.True(t, errors.Is(err, errors.ErrInvalidInput))
}

func TestPriceAndGreeks_Straddle(t *testing.T) {
	s, _ := NewStraddle(18000)
	m := niftyMarket()

	debit, err := Price(s, m)
	require.NoError(t, err)
	assert.InDelta(t, 550+476, debit, 10)

	g, err := Greeks(s, m)
	require.NoError(t, err)
	assert.Greater(t, g.Gamma, 0.0)
	assert.Less(t, g.Theta, 0.0)
	assert.InDelta(t, 0, g.Delta, 0.1)

	// Shorter horizon means faster decay.
	near := m
	near.TimeToExpiry = 5.0 / 365
	gNear, err := Greeks(s, near)
	require.NoError(t, err)
	assert.Less(t, gNear.Theta, g.Theta)
}

func TestGreeks_InvalidMarket(t *testing.T) {
	s, _ := NewStraddle(18000)
	m := niftyMarket()
	m.Volatility = 0
	_, err := Greeks(s, m)
	assert.True(t, errors.Is(err, errors.ErrInvalidInput))
}

func TestBuild_StrikesAroundSpot(t *testing.T) {
	rules := DefaultStrikeRules()

	s, err := Build(KindStraddle, 18024, rules)
	require.NoError(t, err)
	assert.Equal(t, Straddle{Strike: 18000}, s)

	s, err = Build(KindStrangle, 18030, rules)
	require.NoError(t, err)
	assert.Equal(t, Strangle{PutStrike: 17950, CallStrike: 18150}, s)

	s, err = Build(KindIronCondor, 18000, rules)
	require.NoError(t, err)
	assert.Equal(t, IronCondor{K1: 17800, K2: 17900, K3: 18100, K4: 18200}, s)

	s, err = Build(KindButterfly, 17990, rules)
	require.NoError(t, err)
	assert.Equal(t, Butterfly{Lower: 17900, Middle: 18000, Upper: 18100}, s)

	_, err = Build(Kind("calendar"), 18000, rules)
	assert.True(t, errors.Is(err, errors.ErrUnknownStrategy))

	_, err = Build(KindStraddle, 0, rules)
	assert.Error(t, err)
}

func TestATMStrike(t *testing.T) {
	assert.Equal(t, 18000.0, ATMStrike(18024.9, 50))
	assert.Equal(t, 18050.0, ATMStrike(18025.1, 50))
	assert.Equal(t, 22100.0, ATMStrike(22080, 100))
}

func TestSelect_RuleTable(t *testing.T) {
	cases := []struct {
		name string
		f    Features
		want Kind
	}{
		{"high vol", Features{RealizedVol: 0.35}, KindStraddle},
		{"elevated vol", Features{RealizedVol: 0.27, Trend: TrendNeutral}, KindStrangle},
		{"low vol", Features{RealizedVol: 0.16}, KindIronCondor},
		{"mid band", Features{RealizedVol: 0.22}, KindButterfly},
		{"implied wins", Features{RealizedVol: 0.16, ImpliedVol: 0.32}, KindStraddle},
		{"trending", Features{RealizedVol: 0.16, Trend: TrendBullish}, KindStraddle},
	}
	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			assert.Equal(t, tc.want, Select(tc.f))
		})
	}
}

func TestParseKind(t *testing.T) {
	k, err := ParseKind("Iron-Condor")
	require.NoError(t, err)
	assert.Equal(t, KindIronCondor, k)

	_, err = ParseKind("collar")
	assert.True(t, errors.Is(err, errors.ErrUnknownStrategy))
}

func TestAnalyze_PricesMissingPremiums(t *testing.T) {
	condor, _ := NewIronCondor(17800, 17900, 18100, 18200)
	grid := SpotGrid(18000, 400, 100)
	require.Len(t, grid, 9)

	a, err := Analyze(condor, niftyMarket(), nil, grid)
	require.NoError(t, err)
	assert.Equal(t, KindIronCondor, a.Kind)
	assert.Len(t, a.Premiums, 4)
	assert.Less(t, a.NetPremium, 0.0)
	assert.Len(t, a.Payoffs, len(grid))

	credit := -a.NetPremium
	assert.InDelta(t, credit, a.MaxProfit.Value, 1e-9)
	assert.InDelta(t, 100-credit, a.MaxLoss.Value, 1e-9)
	assert.InDelta(t, 17900-credit, a.Breakevens[0], 1e-9)
	for i := range grid {
		assert.InDelta(t, a.Payoffs[i]-a.NetPremium, a.PnL[i], 1e-9)
	}
}

func TestAnalyze_UsesSuppliedPremiums(t *testing.T) {
	s, _ := NewStraddle(18000)
	a, err := Analyze(s, niftyMarket(), []float64{300, 250}, []float64{18000})
	require.NoError(t, err)
	assert.Equal(t, 550.0, a.NetPremium)
	assert.Equal(t, []float64{-550}, a.PnL)

	_, err = Analyze(nil, niftyMarket(), nil, nil)
	assert.Error(t, err)
}
