package strategy

import (
	"nifty-options-lab/internal/errors"
	"nifty-options-lab/internal/models"
)

// Analysis is the full profile of a strategy in one market.
type Analysis struct {
	Kind       Kind                `json:"strategy" yaml:"strategy"`
	Legs       []models.Leg        `json:"legs" yaml:"legs"`
	Premiums   []float64           `json:"premiums" yaml:"premiums"`
	NetPremium float64             `json:"net_premium" yaml:"net_premium"`
	Spots      []float64           `json:"spots" yaml:"spots"`
	Payoffs    []float64           `json:"payoffs" yaml:"payoffs"`
	PnL        []float64           `json:"pnl" yaml:"pnl"`
	Greeks     models.OptionGreeks `json:"greeks" yaml:"greeks"`
	Breakevens []float64           `json:"breakevens" yaml:"breakevens"`
	MaxProfit  Bound               `json:"max_profit" yaml:"max_profit"`
	MaxLoss    Bound               `json:"max_loss" yaml:"max_loss"`
}

// Analyze evaluates payoff and expiry P&L over spotGrid together with Greeks,
// breakevens and profit limits. Nil premiums are priced with the closed form.
func Analyze(s Strategy, m Market, premiums []float64, spotGrid []float64) (Analysis, error) {
	if s == nil {
		return Analysis{}, errors.NewValidationError("strategy", nil, "required")
	}
	greeks, err := Greeks(s, m)
	if err != nil {
		return Analysis{}, err
	}
	if premiums == nil {
		if premiums, err = LegPremiums(s, m); err != nil {
			return Analysis{}, err
		}
	}
	net, err := NetPremium(s, premiums)
	if err != nil {
		return Analysis{}, err
	}

	a := Analysis{
		Kind:       s.Kind(),
		Legs:       s.Legs(),
		Premiums:   premiums,
		NetPremium: net,
		Spots:      spotGrid,
		Payoffs:    make([]float64, len(spotGrid)),
		PnL:        make([]float64, len(spotGrid)),
		Greeks:     greeks,
		Breakevens: s.Breakevens(net),
	}
	a.MaxProfit, a.MaxLoss = s.MaxProfitLoss(net)
	for i, spot := range spotGrid {
		a.Payoffs[i] = Payoff(spot, s)
		a.PnL[i] = a.Payoffs[i] - net
	}
	return a, nil
}

// SpotGrid returns evenly spaced spots covering center ± width.
func SpotGrid(center, width, step float64) []float64 {
	if step <= 0 || width < 0 {
		return []float64{center}
	}
	n := int(2*width/step + 1e-9)
	grid := make([]float64, 0, n+1)
	for i := 0; i <= n; i++ {
		grid = append(grid, center-width+float64(i)*step)
	}
	return grid
}
