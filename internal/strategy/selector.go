package strategy

// Trend is the directional view of the market.
type Trend string

const (
	TrendBullish Trend = "bullish"
	TrendBearish Trend = "bearish"
	TrendNeutral Trend = "neutral"
)

// Volatility regime thresholds of the rule table.
const (
	StraddleVol   = 0.30
	StrangleVol   = 0.25
	IronCondorVol = 0.20
)

// Features describe the market when a strategy is chosen.
type Features struct {
	Spot         float64 `json:"spot" yaml:"spot"`
	RealizedVol  float64 `json:"realized_vol" yaml:"realized_vol"`
	ImpliedVol   float64 `json:"implied_vol,omitempty" yaml:"implied_vol,omitempty"`
	Trend        Trend   `json:"trend" yaml:"trend"`
	DaysToExpiry int     `json:"days_to_expiry" yaml:"days_to_expiry"`
}

// Volatility prefers implied volatility when it is known.
func (f Features) Volatility() float64 {
	if f.ImpliedVol > 0 {
		return f.ImpliedVol
	}
	return f.RealizedVol
}

// Prediction is what an external model suggests.
type Prediction struct {
	Strategy   Kind    `json:"strategy" yaml:"strategy"`
	Volatility float64 `json:"predicted_volatility" yaml:"predicted_volatility"`
}

// Predictor is an optional model that may override Select.
type Predictor interface {
	Predict(f Features) (Prediction, error)
}

// Select maps the volatility regime to a strategy. Directional markets get a
// straddle since every other template is short movement.
func Select(f Features) Kind {
	if f.Trend != "" && f.Trend != TrendNeutral {
		return KindStraddle
	}
	vol := f.Volatility()
	switch {
	case vol > StraddleVol:
		return KindStraddle
	case vol > StrangleVol:
		return KindStrangle
	case vol < IronCondorVol:
		return KindIronCondor
	default:
		return KindButterfly
	}
}
