// Package backtest replays option strategies over a daily price series.
package backtest

import (
	"nifty-options-lab/internal/errors"
	"nifty-options-lab/internal/risk"
	"nifty-options-lab/internal/strategy"
)

// Config holds every option a run recognises.
type Config struct {
	Underlying      string    `mapstructure:"underlying"`
	InitialCapital  float64   `mapstructure:"initial_capital"`
	LotSize         int       `mapstructure:"lot_size"`
	StopLossPct     float64   `mapstructure:"stop_loss_pct"`
	TakeProfitPct   float64   `mapstructure:"take_profit_pct"`
	RiskPerTradePct float64   `mapstructure:"risk_per_trade_pct"`
	MaxPositionSize float64   `mapstructure:"max_position_size"`
	MaxDailyLoss    float64   `mapstructure:"max_daily_loss"`
	MinCapitalFloor float64   `mapstructure:"min_capital_floor"`
	VolatilityBand  []float64 `mapstructure:"volatility_band"`
	RiskFreeRate    float64   `mapstructure:"risk_free_rate"`
	DividendYield   float64   `mapstructure:"dividend_yield"`
	TargetDTE       int       `mapstructure:"target_dte"`
	TimeDecayDTE    int       `mapstructure:"time_decay_dte"`
	VolWindow       int       `mapstructure:"vol_window"`
	TrendThreshold  float64   `mapstructure:"trend_threshold"`
	MaxLots         int       `mapstructure:"max_lots"`
	FeePerLot       float64   `mapstructure:"fee_per_lot"`

	Strikes strategy.StrikeRules `mapstructure:"strikes"`
}

// DefaultConfig returns the default NIFTY backtest configuration.
func DefaultConfig() Config {
	return Config{
		Underlying:      "NIFTY",
		InitialCapital:  1_000_000,
		LotSize:         50,
		StopLossPct:     0.02,
		TakeProfitPct:   0.05,
		RiskPerTradePct: 0.02,
		MaxPositionSize: 1_000_000,
		MaxDailyLoss:    50_000,
		MinCapitalFloor: 100_000,
		VolatilityBand:  []float64{0.15, 0.50},
		RiskFreeRate:    0.05,
		TargetDTE:       30,
		TimeDecayDTE:    7,
		VolWindow:       20,
		TrendThreshold:  0.05,
		MaxLots:         10,
		FeePerLot:       20,
		Strikes:         strategy.DefaultStrikeRules(),
	}
}

// Validate checks the configuration.
func (c Config) Validate() error {
	switch {
	case c.InitialCapital <= 0:
		return errors.NewValidationError("initial_capital", c.InitialCapital, "must be positive")
	case c.LotSize <= 0:
		return errors.NewValidationError("lot_size", c.LotSize, "must be positive")
	case c.StopLossPct <= 0 || c.StopLossPct >= 1:
		return errors.NewValidationError("stop_loss_pct", c.StopLossPct, "must be between 0 and 1")
	case c.TakeProfitPct <= 0:
		return errors.NewValidationError("take_profit_pct", c.TakeProfitPct, "must be positive")
	case c.RiskPerTradePct <= 0 || c.RiskPerTradePct > 1:
		return errors.NewValidationError("risk_per_trade_pct", c.RiskPerTradePct, "must be between 0 and 1")
	case c.MaxPositionSize <= 0:
		return errors.NewValidationError("max_position_size", c.MaxPositionSize, "must be positive")
	case c.MaxDailyLoss <= 0:
		return errors.NewValidationError("max_daily_loss", c.MaxDailyLoss, "must be positive")
	case c.MinCapitalFloor < 0:
		return errors.NewValidationError("min_capital_floor", c.MinCapitalFloor, "cannot be negative")
	case len(c.VolatilityBand) != 2 || c.VolatilityBand[0] < 0 || c.VolatilityBand[0] >= c.VolatilityBand[1]:
		return errors.NewValidationError("volatility_band", c.VolatilityBand, "must be [low, high] with 0 <= low < high")
	case c.TargetDTE <= 0:
		return errors.NewValidationError("target_dte", c.TargetDTE, "must be positive")
	case c.TimeDecayDTE < 0:
		return errors.NewValidationError("time_decay_dte", c.TimeDecayDTE, "cannot be negative")
	case c.VolWindow < 2:
		return errors.NewValidationError("vol_window", c.VolWindow, "needs at least 2 bars")
	case c.MaxLots <= 0:
		return errors.NewValidationError("max_lots", c.MaxLots, "must be positive")
	case c.FeePerLot < 0:
		return errors.NewValidationError("fee_per_lot", c.FeePerLot, "cannot be negative")
	case c.Strikes.Increment <= 0:
		return errors.NewValidationError("strikes.strike_increment", c.Strikes.Increment, "must be positive")
	}
	return nil
}

// RiskLimits derives the risk manager limits from the configuration.
func (c Config) RiskLimits() risk.Limits {
	limits := risk.DefaultLimits()
	limits.MaxPositionSize = c.MaxPositionSize
	limits.MaxDailyLoss = c.MaxDailyLoss
	limits.StopLossPct = c.StopLossPct
	limits.TakeProfitPct = c.TakeProfitPct
	limits.TimeDecayDTE = c.TimeDecayDTE
	limits.LotSize = c.LotSize
	return limits
}
