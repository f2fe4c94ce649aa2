// Package risk tracks the open book of a run and enforces its limits.
package risk

import (
	"fmt"
	"math"
	"time"

	"github.com/rs/zerolog"

	"nifty-options-lab/internal/errors"
	"nifty-options-lab/internal/logging"
	"nifty-options-lab/internal/metrics"
	"nifty-options-lab/internal/models"
	"nifty-options-lab/internal/pricing"
)

// Exposure thresholds as fractions of the maximum position size.
const (
	deltaLimitFrac = 0.10
	gammaLimitFrac = 0.01
	thetaLimitFrac = 0.001
	varLimitFrac   = 0.05
)

// DefaultVolatility is used for Greeks when a position carries no volatility.
const DefaultVolatility = 0.20

// Limits configures the risk manager.
type Limits struct {
	MaxPositionSize float64 `mapstructure:"max_position_size"`
	MaxDailyLoss    float64 `mapstructure:"max_daily_loss"`
	StopLossPct     float64 `mapstructure:"stop_loss_pct"`
	TakeProfitPct   float64 `mapstructure:"take_profit_pct"`
	TimeDecayDTE    int     `mapstructure:"time_decay_dte"`
	VaRVolatility   float64 `mapstructure:"var_volatility"`
	LotSize         int     `mapstructure:"lot_size"`
}

// DefaultLimits returns the default limits for NIFTY options.
func DefaultLimits() Limits {
	return Limits{
		MaxPositionSize: 1_000_000,
		MaxDailyLoss:    50_000,
		StopLossPct:     0.02,
		TakeProfitPct:   0.05,
		TimeDecayDTE:    7,
		VaRVolatility:   0.20,
		LotSize:         50,
	}
}

// Marks are the market observations used to value the book on one date.
// Prices are keyed by position ID; missing entries fall back to CurrentPrice.
type Marks struct {
	AsOf          time.Time
	Spot          float64
	RiskFreeRate  float64
	DividendYield float64
	Prices        map[string]float64
}

// Price returns the mark for p.
func (m Marks) Price(p *models.Position) float64 {
	if px, ok := m.Prices[p.ID]; ok {
		return px
	}
	return p.CurrentPrice
}

// Params returns the pricing inputs of p on the mark date.
func (m Marks) Params(p *models.Position) models.OptionParams {
	vol := p.Volatility
	if vol <= 0 {
		vol = DefaultVolatility
	}
	years := p.Expiry.Sub(m.AsOf).Hours() / 24 / 365
	return models.OptionParams{
		Spot:          m.Spot,
		Strike:        p.Strike,
		TimeToExpiry:  math.Max(years, 0),
		RiskFreeRate:  m.RiskFreeRate,
		Volatility:    vol,
		DividendYield: m.DividendYield,
	}
}

// PortfolioMetrics summarises the book.
type PortfolioMetrics struct {
	Value  float64             `json:"value" yaml:"value"`
	Greeks models.OptionGreeks `json:"greeks" yaml:"greeks"`
	VaR95  float64             `json:"var_95" yaml:"var_95"`
	VaR99  float64             `json:"var_99" yaml:"var_99"`
}

// Manager owns the open positions of a single run. It is not safe for
// concurrent use; a run drives it from one goroutine.
type Manager struct {
	limits    Limits
	positions []*models.Position
	dailyPnL  float64
	logger    zerolog.Logger
	metrics   *metrics.Collector
}

// Option configures a Manager.
type Option func(*Manager)

// WithLogger sets the manager logger.
func WithLogger(logger zerolog.Logger) Option {
	return func(m *Manager) {
		m.logger = logging.WithOperation(logger, "risk")
	}
}

// WithMetrics attaches a metrics collector.
func WithMetrics(c *metrics.Collector) Option {
	return func(m *Manager) {
		m.metrics = c
	}
}

// NewManager creates a risk manager with the given limits.
func NewManager(limits Limits, opts ...Option) *Manager {
	if limits.VaRVolatility <= 0 {
		limits.VaRVolatility = DefaultLimits().VaRVolatility
	}
	if limits.LotSize <= 0 {
		limits.LotSize = DefaultLimits().LotSize
	}
	m := &Manager{limits: limits, logger: zerolog.Nop()}
	for _, opt := range opts {
		opt(m)
	}
	return m
}

// Limits returns the configured limits.
func (m *Manager) Limits() Limits {
	return m.limits
}

// Add puts a position on the book.
func (m *Manager) Add(p *models.Position) {
	m.positions = append(m.positions, p)
	m.logger.Debug().Str("position", p.ID).Str("symbol", p.Symbol).Msg("Position added")
}

// Remove takes the position with the given ID off the book.
func (m *Manager) Remove(id string) error {
	for i, p := range m.positions {
		if p.ID == id {
			m.positions = append(m.positions[:i], m.positions[i+1:]...)
			return nil
		}
	}
	return fmt.Errorf("%w: %s", errors.ErrPositionNotFound, id)
}

// Positions returns a snapshot of the open positions.
func (m *Manager) Positions() []*models.Position {
	out := make([]*models.Position, len(m.positions))
	copy(out, m.positions)
	return out
}

// Len returns the number of open positions.
func (m *Manager) Len() int {
	return len(m.positions)
}

// SetDailyPnL records the current day's P&L for the daily loss limit.
func (m *Manager) SetDailyPnL(pnl float64) {
	m.dailyPnL = pnl
}

// DailyPnL returns the recorded daily P&L.
func (m *Manager) DailyPnL() float64 {
	return m.dailyPnL
}

// PortfolioGreeks sums closed-form Greeks of every position weighted by its signed units.
func (m *Manager) PortfolioGreeks(positions []*models.Position, marks Marks) (models.OptionGreeks, error) {
	holdings := make([]pricing.Holding, len(positions))
	for i, p := range positions {
		holdings[i] = pricing.Holding{Params: marks.Params(p), Type: p.Type, Quantity: p.SignedUnits()}
	}
	return pricing.PortfolioGreeks(holdings)
}

// Metrics values the book and its Greeks and VaR.
func (m *Manager) Metrics(positions []*models.Position, marks Marks) (PortfolioMetrics, error) {
	var pm PortfolioMetrics
	for _, p := range positions {
		pm.Value += p.SignedUnits() * marks.Price(p)
	}
	g, err := m.PortfolioGreeks(positions, marks)
	if err != nil {
		return pm, err
	}
	pm.Greeks = g
	pm.VaR95 = ValueAtRisk(pm.Value, m.limits.VaRVolatility, 0.95)
	pm.VaR99 = ValueAtRisk(pm.Value, m.limits.VaRVolatility, 0.99)
	return pm, nil
}

// CheckLimits returns one alert per breached limit in a fixed order: position
// size, daily loss, delta, gamma, theta, VaR.
func (m *Manager) CheckLimits(positions []*models.Position, marks Marks) []models.RiskAlert {
	var alerts []models.RiskAlert
	add := func(kind models.AlertKind, sev models.Severity, action models.RiskAction, current, limit float64, msg string) {
		alerts = append(alerts, models.RiskAlert{
			Kind:     kind,
			Severity: sev,
			Action:   action,
			Current:  current,
			Limit:    limit,
			Message:  msg,
			Date:     marks.AsOf,
		})
	}

	pm, err := m.Metrics(positions, marks)
	greeksOK := err == nil
	if err != nil {
		m.logger.Warn().Err(err).Msg("Skipping Greek limits")
	}
	maxPos := m.limits.MaxPositionSize

	if math.Abs(pm.Value) > maxPos {
		add(models.AlertPositionSize, models.SeverityCritical, models.ActionReduce, pm.Value, maxPos,
			fmt.Sprintf("portfolio value %.2f exceeds limit %.2f", pm.Value, maxPos))
	}
	if m.dailyPnL < -m.limits.MaxDailyLoss {
		add(models.AlertDailyLoss, models.SeverityCritical, models.ActionCloseAll, m.dailyPnL, -m.limits.MaxDailyLoss,
			fmt.Sprintf("daily loss %.2f exceeds limit %.2f", -m.dailyPnL, m.limits.MaxDailyLoss))
	}
	if greeksOK {
		g := pm.Greeks
		if limit := maxPos * deltaLimitFrac; math.Abs(g.Delta) > limit {
			add(models.AlertDeltaExposure, models.SeverityHigh, models.ActionHedgeDelta, g.Delta, limit,
				fmt.Sprintf("delta exposure %.2f is too high", g.Delta))
		}
		if limit := maxPos * gammaLimitFrac; math.Abs(g.Gamma) > limit {
			add(models.AlertGammaExposure, models.SeverityMedium, models.ActionReduce, g.Gamma, limit,
				fmt.Sprintf("gamma exposure %.4f is high", g.Gamma))
		}
		if limit := -maxPos * thetaLimitFrac; g.Theta < limit {
			add(models.AlertThetaDecay, models.SeverityMedium, models.ActionRoll, g.Theta, limit,
				fmt.Sprintf("theta decay %.2f per day", g.Theta))
		}
	}
	if limit := maxPos * varLimitFrac; pm.VaR95 > limit {
		add(models.AlertVaR, models.SeverityHigh, models.ActionReduce, pm.VaR95, limit,
			fmt.Sprintf("VaR 95%% %.2f exceeds limit %.2f", pm.VaR95, limit))
	}

	for _, a := range alerts {
		m.metrics.RiskAlert(string(a.Kind), string(a.Severity))
		logging.LogAlert(m.logger, string(a.Kind), string(a.Severity), string(a.Action), a.Current, a.Limit)
	}
	return alerts
}
