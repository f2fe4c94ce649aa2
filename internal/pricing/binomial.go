package pricing

import (
	"math"

	"nifty-options-lab/internal/errors"
	"nifty-options-lab/internal/models"
)

// Binomial prices a European option on a Cox-Ross-Rubinstein lattice.
func Binomial(p models.OptionParams, optType models.OptionType, steps int) (float64, error) {
	if steps <= 0 {
		return 0, errors.NewValidationError("steps", steps, "must be positive")
	}
	if p.TimeToExpiry <= 0 {
		return optType.Intrinsic(p.Spot, p.Strike), nil
	}

	dt := p.TimeToExpiry / float64(steps)
	u := math.Exp(p.Volatility * math.Sqrt(dt))
	d := 1 / u
	prob := (math.Exp((p.RiskFreeRate-p.DividendYield)*dt) - d) / (u - d)
	if prob < 0 || prob > 1 || math.IsNaN(prob) {
		return 0, errors.NewPricingError(string(Lattice), "risk-neutral probability outside [0,1], increase steps", nil)
	}
	disc := math.Exp(-p.RiskFreeRate * dt)

	values := make([]float64, steps+1)
	for j := 0; j <= steps; j++ {
		spot := p.Spot * math.Pow(u, float64(j)) * math.Pow(d, float64(steps-j))
		values[j] = optType.Intrinsic(spot, p.Strike)
	}
	for i := steps - 1; i >= 0; i-- {
		for j := 0; j <= i; j++ {
			values[j] = disc * (prob*values[j+1] + (1-prob)*values[j])
		}
	}
	return values[0], nil
}
