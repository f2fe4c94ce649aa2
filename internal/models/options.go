package models

import (
	"fmt"
	"strings"
)

// OptionType is call or put.
type OptionType string

const (
	Call OptionType = "call"
	Put  OptionType = "put"
)

// ParseOptionType accepts call/put as well as the exchange suffixes CE/PE.
func ParseOptionType(s string) (OptionType, error) {
	switch strings.ToLower(strings.TrimSpace(s)) {
	case "call", "c", "ce":
		return Call, nil
	case "put", "p", "pe":
		return Put, nil
	}
	return "", fmt.Errorf("unknown option type %q", s)
}

// Suffix returns the NSE symbol suffix for the option type.
func (t OptionType) Suffix() string {
	if t == Put {
		return "PE"
	}
	return "CE"
}

// Intrinsic returns the exercise value of one unit at the given spot.
func (t OptionType) Intrinsic(spot, strike float64) float64 {
	if t == Call {
		if spot > strike {
			return spot - strike
		}
		return 0
	}
	if strike > spot {
		return strike - spot
	}
	return 0
}

// Direction is +1 for a long leg and -1 for a short leg.
type Direction int

const (
	Long  Direction = 1
	Short Direction = -1
)

func (d Direction) String() string {
	if d == Short {
		return "short"
	}
	return "long"
}

// Sign returns the direction as a float multiplier.
func (d Direction) Sign() float64 {
	return float64(d)
}

// Valid reports whether d is Long or Short.
func (d Direction) Valid() bool {
	return d == Long || d == Short
}

// OptionParams holds the inputs of a single pricing call.
type OptionParams struct {
	Spot          float64 `json:"spot" yaml:"spot"`
	Strike        float64 `json:"strike" yaml:"strike"`
	TimeToExpiry  float64 `json:"time_to_expiry" yaml:"time_to_expiry"` // years
	RiskFreeRate  float64 `json:"risk_free_rate" yaml:"risk_free_rate"`
	Volatility    float64 `json:"volatility" yaml:"volatility"`
	DividendYield float64 `json:"dividend_yield" yaml:"dividend_yield"`
}

// WithVolatility returns a copy of p using vol.
func (p OptionParams) WithVolatility(vol float64) OptionParams {
	p.Volatility = vol
	return p
}

// OptionGreeks represents option Greeks.
// Theta is per calendar day, Vega and Rho per percentage point.
type OptionGreeks struct {
	Delta float64 `json:"delta" yaml:"delta"`
	Gamma float64 `json:"gamma" yaml:"gamma"`
	Theta float64 `json:"theta" yaml:"theta"`
	Vega  float64 `json:"vega" yaml:"vega"`
	Rho   float64 `json:"rho" yaml:"rho"`
}

// Add returns g + o.
func (g OptionGreeks) Add(o OptionGreeks) OptionGreeks {
	return OptionGreeks{
		Delta: g.Delta + o.Delta,
		Gamma: g.Gamma + o.Gamma,
		Theta: g.Theta + o.Theta,
		Vega:  g.Vega + o.Vega,
		Rho:   g.Rho + o.Rho,
	}
}

// Scale returns g multiplied by k.
func (g OptionGreeks) Scale(k float64) OptionGreeks {
	return OptionGreeks{
		Delta: g.Delta * k,
		Gamma: g.Gamma * k,
		Theta: g.Theta * k,
		Vega:  g.Vega * k,
		Rho:   g.Rho * k,
	}
}

// Leg is one option of a multi-leg strategy.
type Leg struct {
	Strike    float64    `json:"strike" yaml:"strike"`
	Type      OptionType `json:"type" yaml:"type"`
	Direction Direction  `json:"direction" yaml:"direction"`
	Weight    int        `json:"weight" yaml:"weight"`
}

// Multiplier is direction times weight.
func (l Leg) Multiplier() float64 {
	return l.Direction.Sign() * float64(l.Weight)
}

// Payoff returns the signed expiry value of the leg.
func (l Leg) Payoff(spot float64) float64 {
	return l.Multiplier() * l.Type.Intrinsic(spot, l.Strike)
}
