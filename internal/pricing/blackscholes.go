package pricing

import (
	"math"

	"github.com/montanaflynn/stats"

	"nifty-options-lab/internal/models"
)

func normCDF(x float64) float64 { return stats.NormCdf(x, 0, 1) }
func normPDF(x float64) float64 { return stats.NormPdf(x, 0, 1) }

func d1d2(p models.OptionParams) (float64, float64) {
	sqrtT := math.Sqrt(p.TimeToExpiry)
	d1 := (math.Log(p.Spot/p.Strike) + (p.RiskFreeRate-p.DividendYield+0.5*p.Volatility*p.Volatility)*p.TimeToExpiry) /
		(p.Volatility * sqrtT)
	return d1, d1 - p.Volatility*sqrtT
}

// blackScholesRaw is the unfloored Black-Scholes value. Expired options return intrinsic value.
func blackScholesRaw(p models.OptionParams, optType models.OptionType) float64 {
	if p.TimeToExpiry <= 0 {
		return optType.Intrinsic(p.Spot, p.Strike)
	}
	d1, d2 := d1d2(p)
	df := math.Exp(-p.RiskFreeRate * p.TimeToExpiry)
	qf := math.Exp(-p.DividendYield * p.TimeToExpiry)
	if optType == models.Call {
		return p.Spot*qf*normCDF(d1) - p.Strike*df*normCDF(d2)
	}
	return p.Strike*df*normCDF(-d2) - p.Spot*qf*normCDF(-d1)
}

// BlackScholes prices a European option with continuous dividend yield.
// Live options are floored at MinTick; expired ones return intrinsic value.
func BlackScholes(p models.OptionParams, optType models.OptionType) float64 {
	price := blackScholesRaw(p, optType)
	if p.TimeToExpiry <= 0 {
		return price
	}
	return math.Max(price, MinTick)
}

// BlackScholesGreeks returns delta, gamma, theta per calendar day, vega and rho
// per percentage point. All Greeks are zero once the option has expired.
func BlackScholesGreeks(p models.OptionParams, optType models.OptionType) models.OptionGreeks {
	if p.TimeToExpiry <= 0 {
		return models.OptionGreeks{}
	}
	T := p.TimeToExpiry
	sqrtT := math.Sqrt(T)
	d1, d2 := d1d2(p)
	df := math.Exp(-p.RiskFreeRate * T)
	qf := math.Exp(-p.DividendYield * T)
	pdf := normPDF(d1)

	g := models.OptionGreeks{
		Gamma: qf * pdf / (p.Spot * p.Volatility * sqrtT),
		Vega:  p.Spot * qf * pdf * sqrtT / 100,
	}
	decay := -p.Spot * qf * pdf * p.Volatility / (2 * sqrtT)
	if optType == models.Call {
		g.Delta = qf * normCDF(d1)
		g.Theta = (decay - p.RiskFreeRate*p.Strike*df*normCDF(d2) + p.DividendYield*p.Spot*qf*normCDF(d1)) / 365
		g.Rho = p.Strike * T * df * normCDF(d2) / 100
	} else {
		g.Delta = qf * (normCDF(d1) - 1)
		g.Theta = (decay + p.RiskFreeRate*p.Strike*df*normCDF(-d2) - p.DividendYield*p.Spot*qf*normCDF(-d1)) / 365
		g.Rho = -p.Strike * T * df * normCDF(-d2) / 100
	}
	return g
}

// Holding is a quantity of one option used for aggregate Greeks.
type Holding struct {
	Params   models.OptionParams
	Type     models.OptionType
	Quantity float64 // signed
}

// PortfolioGreeks sums quantity-weighted closed-form Greeks.
func PortfolioGreeks(holdings []Holding) (models.OptionGreeks, error) {
	var total models.OptionGreeks
	for _, h := range holdings {
		if err := Validate(h.Params, h.Type); err != nil {
			return models.OptionGreeks{}, err
		}
		total = total.Add(BlackScholesGreeks(h.Params, h.Type).Scale(h.Quantity))
	}
	return total, nil
}
