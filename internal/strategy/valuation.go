package strategy

import (
	"fmt"

	"nifty-options-lab/internal/errors"
	"nifty-options-lab/internal/models"
	"nifty-options-lab/internal/pricing"
)

// Market is the pricing environment shared by every leg. TimeToExpiry is in years.
type Market struct {
	Spot          float64 `json:"spot" yaml:"spot"`
	TimeToExpiry  float64 `json:"time_to_expiry" yaml:"time_to_expiry"`
	RiskFreeRate  float64 `json:"risk_free_rate" yaml:"risk_free_rate"`
	Volatility    float64 `json:"volatility" yaml:"volatility"`
	DividendYield float64 `json:"dividend_yield" yaml:"dividend_yield"`
}

// Params returns the option parameters of a leg struck at strike.
func (m Market) Params(strike float64) models.OptionParams {
	return models.OptionParams{
		Spot:          m.Spot,
		Strike:        strike,
		TimeToExpiry:  m.TimeToExpiry,
		RiskFreeRate:  m.RiskFreeRate,
		Volatility:    m.Volatility,
		DividendYield: m.DividendYield,
	}
}

// Payoff is the expiry value per unit of the whole strategy, excluding premium.
func Payoff(spot float64, s Strategy) float64 {
	var total float64
	for _, leg := range s.Legs() {
		total += leg.Payoff(spot)
	}
	return total
}

// Greeks sums direction- and weight-scaled closed-form Greeks of every leg.
func Greeks(s Strategy, m Market) (models.OptionGreeks, error) {
	legs := s.Legs()
	holdings := make([]pricing.Holding, len(legs))
	for i, leg := range legs {
		holdings[i] = pricing.Holding{Params: m.Params(leg.Strike), Type: leg.Type, Quantity: leg.Multiplier()}
	}
	return pricing.PortfolioGreeks(holdings)
}

// LegPremiums prices each leg with the closed form, in Legs order.
func LegPremiums(s Strategy, m Market) ([]float64, error) {
	legs := s.Legs()
	premiums := make([]float64, len(legs))
	for i, leg := range legs {
		p := m.Params(leg.Strike)
		if err := pricing.Validate(p, leg.Type); err != nil {
			return nil, err
		}
		premiums[i] = pricing.BlackScholes(p, leg.Type)
	}
	return premiums, nil
}

// NetPremium is the per-unit cash paid to open the strategy: positive for a
// debit, negative for a credit.
func NetPremium(s Strategy, premiums []float64) (float64, error) {
	legs := s.Legs()
	if len(premiums) != len(legs) {
		return 0, errors.NewValidationError("premiums", len(premiums), fmt.Sprintf("%s needs %d leg premiums", s.Kind(), len(legs)))
	}
	var net float64
	for i, leg := range legs {
		if premiums[i] < 0 {
			return 0, errors.NewValidationError("premiums", premiums[i], "leg premium cannot be negative")
		}
		net += leg.Multiplier() * premiums[i]
	}
	return net, nil
}

// Price returns the closed-form net premium of the strategy.
func Price(s Strategy, m Market) (float64, error) {
	premiums, err := LegPremiums(s, m)
	if err != nil {
		return 0, err
	}
	return NetPremium(s, premiums)
}
