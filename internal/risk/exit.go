package risk

import (
	"time"

	"nifty-options-lab/internal/models"
)

// side is +1 when a rising premium favours the holder and -1 otherwise.
// Calls and puts move opposite ways and a short leg flips both.
func side(optType models.OptionType, dir models.Direction) float64 {
	s := 1.0
	if optType == models.Put {
		s = -1
	}
	return s * dir.Sign()
}

// ExitLevels returns the stop-loss and take-profit prices for a position.
func (m *Manager) ExitLevels(p *models.Position) (stop, target float64) {
	s := side(p.Type, p.Direction)
	stop = p.EntryPrice * (1 - s*m.limits.StopLossPct)
	target = p.EntryPrice * (1 + s*m.limits.TakeProfitPct)
	return stop, target
}

// EvaluateExit returns the exit signal for p at price on asOf. Stop-loss is
// checked first, then take-profit, then days to expiry; otherwise the
// position stays open.
func (m *Manager) EvaluateExit(p *models.Position, price float64, asOf time.Time) models.PositionState {
	s := side(p.Type, p.Direction)
	stop, target := m.ExitLevels(p)

	switch {
	case s*(price-stop) <= 0:
		return models.StateStopLoss
	case s*(price-target) >= 0:
		return models.StateTakeProfit
	case p.DaysToExpiry(asOf) <= m.limits.TimeDecayDTE:
		return models.StateTimeDecay
	}
	return models.StateOpen
}

// Transition moves a position from an exit signal to closed. Open positions
// and closed ones are returned unchanged.
func Transition(state models.PositionState) models.PositionState {
	if state.Terminal() {
		return models.StateClosed
	}
	return state
}
