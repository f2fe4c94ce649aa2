package pricing

import (
	"math"
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

func niftyATM() models.OptionParams {
	return models.OptionParams{
		Spot:         18000,
		Strike:       18000,
		TimeToExpiry: 30.0 / 365,
		RiskFreeRate: 0.05,
		Volatility:   0.25,
	}
}

func TestBlackScholes_NiftyATM(t *testing.T) {
	p := niftyATM()
	call := BlackScholes(p, models.Call)
	put := BlackScholes(p, models.Put)

	assert.InDelta(t, 550, call, 5)
	assert.InDelta(t, 476, put, 5)

	parity := p.Spot - p.Strike*math.Exp(-p.RiskFreeRate*p.TimeToExpiry)
	assert.InDelta(t, parity, call-put, 1e-6)
}

func TestBlackScholes_ExpiredReturnsIntrinsic(t *testing.T) {
	p := niftyATM()
	p.TimeToExpiry = 0
	p.Spot = 18120

	assert.Equal(t, 120.0, BlackScholes(p, models.Call))
	assert.Equal(t, 0.0, BlackScholes(p, models.Put))
	assert.Equal(t, models.OptionGreeks{}, BlackScholesGreeks(p, models.Call))
}

func TestBlackScholes_FloorsAtMinTick(t *testing.T) {
	p := niftyATM()
	p.Strike = 25000
	p.TimeToExpiry = 2.0 / 365

	assert.Equal(t, MinTick, BlackScholes(p, models.Call))
	assert.Less(t, blackScholesRaw(p, models.Call), MinTick)
}

func TestBlackScholesGreeks_Relationships(t *testing.T) {
	p := niftyATM()
	p.DividendYield = 0.012
	call := BlackScholesGreeks(p, models.Call)
	put := BlackScholesGreeks(p, models.Put)

	assert.Greater(t, call.Delta, 0.0)
	assert.Less(t, call.Delta, 1.0)
	assert.InDelta(t, math.Exp(-p.DividendYield*p.TimeToExpiry), call.Delta-put.Delta, 1e-12)
	assert.InDelta(t, call.Gamma, put.Gamma, 1e-15)
	assert.InDelta(t, call.Vega, put.Vega, 1e-12)
	assert.Less(t, call.Theta, 0.0)
	assert.Greater(t, call.Rho, 0.0)
	assert.Less(t, put.Rho, 0.0)

	// Vega per vol point should match a one point bump of the price.
	bumped := BlackScholes(p.WithVolatility(p.Volatility+0.01), models.Call) - BlackScholes(p, models.Call)
	assert.InDelta(t, bumped, call.Vega, 0.05)
}

func TestProperty_PutCallParity(t *testing.T) {
	parameters := gopter.DefaultTestParameters()
	parameters.MinSuccessfulTests = 200
	parameters.Rng.Seed(time.Now().UnixNano())
	properties := gopter.NewProperties(parameters)

	properties.Property("call - put equals discounted forward minus discounted strike", prop.ForAll(
		func(spot, moneyness, T, r, vol, q float64) bool {
			p := models.OptionParams{
				Spot:          spot,
				Strike:        spot * moneyness,
				TimeToExpiry:  T,
				RiskFreeRate:  r,
				Volatility:    vol,
				DividendYield: q,
			}
			lhs := blackScholesRaw(p, models.Call) - blackScholesRaw(p, models.Put)
			rhs := p.Spot*math.Exp(-q*T) - p.Strike*math.Exp(-r*T)
			if math.Abs(lhs-rhs) > 1e-7*spot {
				t.Logf("parity broken for %+v: %f vs %f", p, lhs, rhs)
				return false
			}
			return true
		},
		gen.Float64Range(1000, 30000),
		gen.Float64Range(0.7, 1.3),
		gen.Float64Range(0.01, 2),
		gen.Float64Range(0, 0.1),
		gen.Float64Range(0.05, 1),
		gen.Float64Range(0, 0.05),
	))

	properties.TestingRun(t)
}

func TestBinomial_ConvergesToClosedForm(t *testing.T) {
	for _, strike := range []float64{17000, 18000, 19000} {
		for _, T := range []float64{0.25, 0.5, 1} {
			for _, vol := range []float64{0.2, 0.3} {
				for _, typ := range []models.OptionType{models.Call, models.Put} {
					p := models.OptionParams{Spot: 18000, Strike: strike, TimeToExpiry: T, RiskFreeRate: 0.06, Volatility: vol, DividendYield: 0.01}
					lattice, err := Binomial(p, typ, 500)
					require.NoError(t, err)
					closed := BlackScholes(p, typ)
					assert.Less(t, math.Abs(lattice-closed)/closed, 0.005, "K=%v T=%v vol=%v %s", strike, T, vol, typ)
				}
			}
		}
	}
}

func TestBinomial_RejectsBadSteps(t *testing.T) {
	_, err := Binomial(niftyATM(), models.Call, 0)
	assert.True(t, errors.Is(err, errors.ErrInvalidInput))
}

func TestMonteCarlo_WithinThreeStandardErrors(t *testing.T) {
	cases := []models.OptionParams{
		niftyATM(),
		{Spot: 18000, Strike: 18500, TimeToExpiry: 0.5, RiskFreeRate: 0.06, Volatility: 0.2, DividendYield: 0.01},
	}
	for _, p := range cases {
		for _, typ := range []models.OptionType{models.Call, models.Put} {
			res := MonteCarlo(p, typ, SimulationConfig{Paths: 100_000, Seed: 7, Workers: 4})
			closed := blackScholesRaw(p, typ)
			assert.Greater(t, res.StdError, 0.0)
			assert.LessOrEqual(t, math.Abs(res.Price-closed), 3*res.StdError, "%s %+v", typ, p)
		}
	}
}

func TestMonteCarlo_IndependentOfWorkerCount(t *testing.T) {
	p := niftyATM()
	serial := MonteCarlo(p, models.Put, SimulationConfig{Paths: 35_000, Seed: 99, Workers: 1})
	parallel := MonteCarlo(p, models.Put, SimulationConfig{Paths: 35_000, Seed: 99, Workers: 8})
	assert.Equal(t, serial, parallel)

	other := MonteCarlo(p, models.Put, SimulationConfig{Paths: 35_000, Seed: 100, Workers: 8})
	assert.NotEqual(t, serial.Price, other.Price)
}

func TestEngine_PriceMethods(t *testing.T) {
	m := metrics.New()
	engine := NewEngine(Config{LatticeSteps: 400, Paths: 20_000, Seed: 1, Workers: 2}, WithMetrics(m))
	p := niftyATM()

	closed, err := engine.Price(p, models.Call, ClosedForm)
	require.NoError(t, err)
	require.NotNil(t, closed.Greeks)
	assert.False(t, closed.HasStdError)

	lattice, err := engine.Price(p, models.Call, Lattice)
	require.NoError(t, err)
	assert.Nil(t, lattice.Greeks)
	assert.InDelta(t, closed.Price, lattice.Price, closed.Price*0.01)

	sim, err := engine.Price(p, models.Call, Simulation)
	require.NoError(t, err)
	assert.True(t, sim.HasStdError)
	assert.Greater(t, sim.StdError, 0.0)
}

func TestEngine_InvalidInputs(t *testing.T) {
	engine := NewEngine(DefaultConfig())
	base := niftyATM()

	bad := []models.OptionParams{
		func() models.OptionParams { p := base; p.Spot = 0; return p }(),
		func() models.OptionParams { p := base; p.Strike = -1; return p }(),
		func() models.OptionParams { p := base; p.Volatility = 0; return p }(),
		func() models.OptionParams { p := base; p.Volatility = math.NaN(); return p }(),
	}
	for _, p := range bad {
		_, err := engine.Price(p, models.Call, ClosedForm)
		assert.True(t, errors.Is(err, errors.ErrInvalidInput), "%+v", p)
	}

	_, err := engine.Price(base, models.OptionType("straddle"), ClosedForm)
	assert.True(t, errors.Is(err, errors.ErrInvalidInput))

	_, err = engine.Price(base, models.Call, Method("american"))
	assert.True(t, errors.Is(err, errors.ErrInvalidInput))
}

func TestParseMethod(t *testing.T) {
	m, err := ParseMethod("MC")
	require.NoError(t, err)
	assert.Equal(t, Simulation, m)

	_, err = ParseMethod("trinomial")
	assert.Error(t, err)
}

func TestImpliedVolatility_RoundTrip(t *testing.T) {
	for _, vol := range []float64{0.12, 0.25, 0.6, 1.4} {
		for _, typ := range []models.OptionType{models.Call, models.Put} {
			p := niftyATM().WithVolatility(vol)
			p.Strike = 18200
			price := blackScholesRaw(p, typ)
			iv, err := ImpliedVolatility(price, p, typ)
			require.NoError(t, err)
			assert.InDelta(t, vol, iv, 1e-3, "%s vol=%v", typ, vol)
		}
	}
}

func TestImpliedVolatility_NoSolution(t *testing.T) {
	p := niftyATM()

	_, err := ImpliedVolatility(0, p, models.Call)
	assert.ErrorIs(t, err, errors.ErrNoSolution)

	// Above the price of a 500% vol call.
	_, err = ImpliedVolatility(p.Spot*1.5, p, models.Call)
	assert.ErrorIs(t, err, errors.ErrNoSolution)

	// Below the forward intrinsic value.
	_, err = ImpliedVolatility(10, p, models.Call)
	assert.ErrorIs(t, err, errors.ErrNoSolution)

	expired := p
	expired.TimeToExpiry = 0
	_, err = ImpliedVolatility(100, expired, models.Call)
	assert.ErrorIs(t, err, errors.ErrNoSolution)
}

func TestPortfolioGreeks_WeightsByQuantity(t *testing.T) {
	p := niftyATM()
	single := BlackScholesGreeks(p, models.Call)

	total, err := PortfolioGreeks([]Holding{
		{Params: p, Type: models.Call, Quantity: 100},
		{Params: p, Type: models.Call, Quantity: -40},
	})
	require.NoError(t, err)
	assert.InDelta(t, single.Delta*60, total.Delta, 1e-9)
	assert.InDelta(t, single.Vega*60, total.Vega, 1e-9)

	_, err = PortfolioGreeks([]Holding{{Params: models.OptionParams{}, Type: models.Call, Quantity: 1}})
	assert.Error(t, err)
}

func TestSurface_Lookup(t *testing.T) {
	s := NewSurface()
	assert.Equal(t, DefaultSurfaceVol, s.Volatility(18000, 0.1))

	s.Set(18000, 0.1, 0.18)
	s.Set(18500, 0.1, 0.22)
	s.Set(18000, 0.25, 0.19)

	assert.Equal(t, 3, s.Len())
	assert.Equal(t, 0.22, s.Volatility(18500, 0.1))
	assert.Equal(t, 0.18, s.Volatility(18100, 0.08))
	assert.Equal(t, 0.19, s.Volatility(17900, 0.3))
	// Nearest strike 18500 and nearest expiry 0.25 were never set together.
	assert.Equal(t, DefaultSurfaceVol, s.Volatility(18600, 0.3))
}

func TestSurface_PointsOrdered(t *testing.T) {
	s := NewSurface()
	s.Set(18500, 0.25, 0.21)
	s.Set(18000, 0.25, 0.19)
	s.Set(18500, 0.1, 0.22)
	s.Set(18500, 0.1, 0.23)

	assert.Equal(t, []SurfacePoint{
		{Strike: 18500, Expiry: 0.1, IV: 0.23},
		{Strike: 18000, Expiry: 0.25, IV: 0.19},
		{Strike: 18500, Expiry: 0.25, IV: 0.21},
	}, s.Points())
	assert.Empty(t, NewSurface().Points())
}
