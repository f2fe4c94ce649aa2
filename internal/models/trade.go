package models

import (
	"fmt"
	"time"
)

// PositionState tracks a position through the exit rules.
type PositionState string

const (
	StateOpen       PositionState = "open"
	StateStopLoss   PositionState = "stop_loss"
	StateTakeProfit PositionState = "take_profit"
	StateTimeDecay  PositionState = "time_decay"
	StateClosed     PositionState = "closed"
)

// Terminal reports whether the state requires the position to be closed.
func (s PositionState) Terminal() bool {
	return s == StateStopLoss || s == StateTakeProfit || s == StateTimeDecay
}

// Exit reasons that do not come from the per-position rules.
const (
	ExitEndOfRun  = "end_of_run"
	ExitRiskLimit = "risk_limit"
)

// Position is one open option leg.
type Position struct {
	ID           string
	Symbol       string
	Type         OptionType
	Strike       float64
	Expiry       time.Time
	Direction    Direction
	Quantity     int // lots
	LotSize      int
	EntryPrice   float64
	CurrentPrice float64
	Volatility   float64 // pricing vol fixed at entry
	EntryFees    float64
	EntryTime    time.Time
	Strategy     string
	State        PositionState
}

// OptionSymbol builds an NSE style contract symbol such as NIFTY18000CE.
func OptionSymbol(underlying string, strike float64, t OptionType) string {
	return fmt.Sprintf("%s%.0f%s", underlying, strike, t.Suffix())
}

// Units is the number of underlying units held, ignoring direction.
func (p *Position) Units() float64 {
	return float64(p.Quantity * p.LotSize)
}

// SignedUnits is direction times units.
func (p *Position) SignedUnits() float64 {
	return p.Direction.Sign() * p.Units()
}

// MarketValue is the mark-to-market value of the position.
func (p *Position) MarketValue() float64 {
	return p.SignedUnits() * p.CurrentPrice
}

// UnrealizedPnL is the P&L at the current mark.
func (p *Position) UnrealizedPnL() float64 {
	return p.SignedUnits() * (p.CurrentPrice - p.EntryPrice)
}

// DaysToExpiry counts whole calendar days from asOf to expiry.
func (p *Position) DaysToExpiry(asOf time.Time) int {
	return int(p.Expiry.Sub(asOf).Hours() / 24)
}

// Trade represents a closed position.
type Trade struct {
	EntryDate    time.Time     `json:"entry_date" yaml:"entry_date"`
	ExitDate     time.Time     `json:"exit_date" yaml:"exit_date"`
	Symbol       string        `json:"symbol" yaml:"symbol"`
	Strategy     string        `json:"strategy" yaml:"strategy"`
	Type         OptionType    `json:"type" yaml:"type"`
	Strike       float64       `json:"strike" yaml:"strike"`
	Direction    Direction     `json:"direction" yaml:"direction"`
	EntryPrice   float64       `json:"entry_price" yaml:"entry_price"`
	ExitPrice    float64       `json:"exit_price" yaml:"exit_price"`
	Quantity     int           `json:"quantity" yaml:"quantity"`
	LotSize      int           `json:"lot_size" yaml:"lot_size"`
	Fees         float64       `json:"fees" yaml:"fees"`
	PnL          float64       `json:"pnl" yaml:"pnl"`
	ReturnPct    float64       `json:"return_pct" yaml:"return_pct"`
	DurationDays int           `json:"duration_days" yaml:"duration_days"`
	ExitReason   string        `json:"exit_reason" yaml:"exit_reason"`
	HoldDuration time.Duration `json:"-" yaml:"-"`
}

// EquitySnapshot is one point of the equity curve.
type EquitySnapshot struct {
	Date          time.Time `json:"date" yaml:"date"`
	Capital       float64   `json:"capital" yaml:"capital"`
	MarkValue     float64   `json:"mark_value" yaml:"mark_value"`
	Equity        float64   `json:"equity" yaml:"equity"`
	OpenPositions int       `json:"open_positions" yaml:"open_positions"`
}
