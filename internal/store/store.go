// Package store persists price history and backtest runs.
package store

import (
	"context"
	"time"

	"nifty-options-lab/internal/backtest"
	"nifty-options-lab/internal/models"
	"nifty-options-lab/internal/strategy"
)

// DataStore defines the interface for data persistence.
type DataStore interface {
	// Candles
	SaveCandles(ctx context.Context, symbol, timeframe string, candles []models.Candle) error
	GetCandles(ctx context.Context, symbol, timeframe string, from, to time.Time) (models.Series, error)
	ListSymbols(ctx context.Context) ([]SymbolInfo, error)

	// Backtest runs
	SaveRun(ctx context.Context, rec *RunRecord) error
	GetRun(ctx context.Context, id string) (*RunRecord, error)
	ListRuns(ctx context.Context, filter RunFilter) ([]RunSummary, error)

	// Lifecycle
	Close() error
}

// SymbolInfo describes the stored history of one symbol and timeframe.
type SymbolInfo struct {
	Symbol    string    `json:"symbol" yaml:"symbol"`
	Timeframe string    `json:"timeframe" yaml:"timeframe"`
	Bars      int       `json:"bars" yaml:"bars"`
	First     time.Time `json:"first" yaml:"first"`
	Last      time.Time `json:"last" yaml:"last"`
}

// RunRecord is a stored backtest run.
type RunRecord struct {
	ID          string                  `json:"id" yaml:"id"`
	CreatedAt   time.Time               `json:"created_at" yaml:"created_at"`
	Underlying  string                  `json:"underlying" yaml:"underlying"`
	Start       time.Time               `json:"start" yaml:"start"`
	End         time.Time               `json:"end" yaml:"end"`
	Strategies  []string                `json:"strategies" yaml:"strategies"`
	Config      backtest.Config         `json:"config" yaml:"config"`
	Result      backtest.Result         `json:"result" yaml:"result"`
	Faults      int                     `json:"faults" yaml:"faults"`
	Trades      []models.Trade          `json:"trades" yaml:"trades"`
	EquityCurve []models.EquitySnapshot `json:"equity_curve" yaml:"equity_curve"`
}

// NewRunRecord converts a finished run for storage.
func NewRunRecord(run *backtest.Run) *RunRecord {
	strategies := make([]string, len(run.Strategies))
	for i, k := range run.Strategies {
		strategies[i] = string(k)
	}
	return &RunRecord{
		ID:          run.ID,
		CreatedAt:   time.Now().UTC(),
		Underlying:  run.Config.Underlying,
		Start:       run.Start,
		End:         run.End,
		Strategies:  strategies,
		Config:      run.Config,
		Result:      run.Result,
		Faults:      run.Faults,
		Trades:      run.Trades,
		EquityCurve: run.EquityCurve,
	}
}

// Run restores the run for reporting. Alerts are not stored.
func (r *RunRecord) Run() *backtest.Run {
	kinds := make([]strategy.Kind, len(r.Strategies))
	for i, name := range r.Strategies {
		kinds[i] = strategy.Kind(name)
	}
	return &backtest.Run{
		ID:          r.ID,
		Start:       r.Start,
		End:         r.End,
		Strategies:  kinds,
		Config:      r.Config,
		Result:      r.Result,
		Trades:      r.Trades,
		EquityCurve: r.EquityCurve,
		Faults:      r.Faults,
	}
}

// RunSummary is one row of the run listing.
type RunSummary struct {
	ID          string    `json:"id" yaml:"id"`
	CreatedAt   time.Time `json:"created_at" yaml:"created_at"`
	Underlying  string    `json:"underlying" yaml:"underlying"`
	Start       time.Time `json:"start" yaml:"start"`
	End         time.Time `json:"end" yaml:"end"`
	Strategies  []string  `json:"strategies" yaml:"strategies"`
	TotalReturn float64   `json:"total_return" yaml:"total_return"`
	SharpeRatio float64   `json:"sharpe_ratio" yaml:"sharpe_ratio"`
	MaxDrawdown float64   `json:"max_drawdown" yaml:"max_drawdown"`
	TotalTrades int       `json:"total_trades" yaml:"total_trades"`
}

// RunFilter represents filters for listing runs.
type RunFilter struct {
	Underlying string
	Since      time.Time
	Limit      int
}
