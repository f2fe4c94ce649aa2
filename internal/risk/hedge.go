package risk

import (
	"math"

	"nifty-options-lab/internal/models"
)

// Hedge is a suggested adjustment to the book.
type Hedge struct {
	Kind     string `json:"kind" yaml:"kind"`
	Action   string `json:"action" yaml:"action"`
	Quantity int    `json:"quantity" yaml:"quantity"` // lots, 0 with All
	All      bool   `json:"all,omitempty" yaml:"all,omitempty"`
	Reason   string `json:"reason" yaml:"reason"`
}

// HedgeRecommendations suggests trades that bring the book's Greeks back
// inside half the alert thresholds.
func (m *Manager) HedgeRecommendations(g models.OptionGreeks) []Hedge {
	var out []Hedge
	maxPos := m.limits.MaxPositionSize

	if math.Abs(g.Delta) > maxPos*deltaLimitFrac/2 {
		h := Hedge{Kind: "delta_hedge", Quantity: int(math.Abs(g.Delta)) / m.limits.LotSize}
		if g.Delta > 0 {
			h.Action, h.Reason = "buy_puts", "reduce positive delta exposure"
		} else {
			h.Action, h.Reason = "buy_calls", "reduce negative delta exposure"
		}
		out = append(out, h)
	}
	if math.Abs(g.Gamma) > maxPos*gammaLimitFrac/2 {
		out = append(out, Hedge{
			Kind:     "gamma_hedge",
			Action:   "reduce_position_size",
			Quantity: int(math.Abs(g.Gamma) / 10),
			Reason:   "reduce gamma exposure",
		})
	}
	if g.Theta < -maxPos*thetaLimitFrac/2 {
		out = append(out, Hedge{
			Kind:   "theta_hedge",
			Action: "roll_positions",
			All:    true,
			Reason: "reduce theta decay",
		})
	}
	return out
}
