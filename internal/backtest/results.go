package backtest

import (
	"encoding/json"
	"fmt"
	"math"
	"strconv"

	"github.com/montanaflynn/stats"

	"nifty-options-lab/internal/models"
)

// ProfitFactor is |avg win / avg loss|. It is undefined when a run has no
// losing trade.
type ProfitFactor struct {
	Value   float64
	Defined bool
}

func (pf ProfitFactor) String() string {
	if !pf.Defined {
		return "undefined"
	}
	return strconv.FormatFloat(pf.Value, 'f', 2, 64)
}

// MarshalJSON encodes an undefined factor as the string "undefined".
func (pf ProfitFactor) MarshalJSON() ([]byte, error) {
	if !pf.Defined {
		return json.Marshal("undefined")
	}
	return json.Marshal(pf.Value)
}

// UnmarshalJSON accepts a number or the string "undefined".
func (pf *ProfitFactor) UnmarshalJSON(b []byte) error {
	var v float64
	if err := json.Unmarshal(b, &v); err == nil {
		*pf = ProfitFactor{Value: v, Defined: true}
		return nil
	}
	var s string
	if err := json.Unmarshal(b, &s); err != nil {
		return err
	}
	if s != "undefined" {
		return fmt.Errorf("profit factor: unexpected %q", s)
	}
	*pf = ProfitFactor{}
	return nil
}

// MarshalYAML mirrors MarshalJSON.
func (pf ProfitFactor) MarshalYAML() (interface{}, error) {
	if !pf.Defined {
		return "undefined", nil
	}
	return pf.Value, nil
}

// Result holds the performance statistics of a run. Returns and drawdown are
// fractions, not percentages.
type Result struct {
	InitialEquity    float64      `json:"initial_equity" yaml:"initial_equity"`
	FinalEquity      float64      `json:"final_equity" yaml:"final_equity"`
	TotalReturn      float64      `json:"total_return" yaml:"total_return"`
	AnnualizedReturn float64      `json:"annualized_return" yaml:"annualized_return"`
	Volatility       float64      `json:"volatility" yaml:"volatility"`
	SharpeRatio      float64      `json:"sharpe_ratio" yaml:"sharpe_ratio"`
	MaxDrawdown      float64      `json:"max_drawdown" yaml:"max_drawdown"`
	TotalTrades      int          `json:"total_trades" yaml:"total_trades"`
	WinningTrades    int          `json:"winning_trades" yaml:"winning_trades"`
	LosingTrades     int          `json:"losing_trades" yaml:"losing_trades"`
	WinRate          float64      `json:"win_rate" yaml:"win_rate"`
	AvgWin           float64      `json:"avg_win" yaml:"avg_win"`
	AvgLoss          float64      `json:"avg_loss" yaml:"avg_loss"`
	MaxWin           float64      `json:"max_win" yaml:"max_win"`
	MaxLoss          float64      `json:"max_loss" yaml:"max_loss"`
	ProfitFactor     ProfitFactor `json:"profit_factor" yaml:"profit_factor"`
	TotalPnL         float64      `json:"total_pnl" yaml:"total_pnl"`
	TotalFees        float64      `json:"total_fees" yaml:"total_fees"`
	Days             int          `json:"days" yaml:"days"`
}

// Aggregate computes run statistics from closed trades and the equity curve.
// Empty inputs give a zeroed result.
func Aggregate(trades []models.Trade, curve []models.EquitySnapshot, riskFreeRate float64) Result {
	var r Result
	aggregateTrades(&r, trades)
	if len(curve) == 0 {
		return r
	}

	first, last := curve[0], curve[len(curve)-1]
	r.InitialEquity = first.Equity
	r.FinalEquity = last.Equity
	r.Days = len(curve)
	if first.Equity > 0 {
		r.TotalReturn = (last.Equity - first.Equity) / first.Equity
	}
	if days := last.Date.Sub(first.Date).Hours() / 24; days > 0 {
		if growth := 1 + r.TotalReturn; growth > 0 {
			r.AnnualizedReturn = math.Pow(growth, 365/days) - 1
		} else {
			r.AnnualizedReturn = -1
		}
	}

	r.Volatility = equityVolatility(curve)
	if r.Volatility > 0 {
		r.SharpeRatio = (r.AnnualizedReturn - riskFreeRate) / r.Volatility
	}
	r.MaxDrawdown = MaxDrawdown(curve)
	return r
}

func aggregateTrades(r *Result, trades []models.Trade) {
	r.TotalTrades = len(trades)
	var wins, losses stats.Float64Data
	for _, t := range trades {
		r.TotalPnL += t.PnL
		r.TotalFees += t.Fees
		switch {
		case t.PnL > 0:
			wins = append(wins, t.PnL)
		case t.PnL < 0:
			losses = append(losses, t.PnL)
		}
	}
	r.WinningTrades = len(wins)
	r.LosingTrades = len(losses)
	if r.TotalTrades > 0 {
		r.WinRate = float64(r.WinningTrades) / float64(r.TotalTrades)
	}
	if len(wins) > 0 {
		r.AvgWin, _ = stats.Mean(wins)
		r.MaxWin, _ = stats.Max(wins)
	}
	if len(losses) > 0 {
		r.AvgLoss, _ = stats.Mean(losses)
		r.MaxLoss, _ = stats.Min(losses)
		r.ProfitFactor = ProfitFactor{Value: math.Abs(r.AvgWin / r.AvgLoss), Defined: true}
	}
}

// equityVolatility is the population standard deviation of daily equity
// returns, annualised.
func equityVolatility(curve []models.EquitySnapshot) float64 {
	if len(curve) < 2 {
		return 0
	}
	returns := make(stats.Float64Data, 0, len(curve)-1)
	for i := 1; i < len(curve); i++ {
		prev := curve[i-1].Equity
		if prev == 0 {
			continue
		}
		returns = append(returns, (curve[i].Equity-prev)/prev)
	}
	if len(returns) == 0 {
		return 0
	}
	sd, err := stats.StandardDeviationPopulation(returns)
	if err != nil || math.IsNaN(sd) {
		return 0
	}
	return sd * math.Sqrt(TradingDays)
}

// MaxDrawdown is the lowest (equity - running peak) / running peak. It is
// never positive and is 0 exactly when equity never falls.
func MaxDrawdown(curve []models.EquitySnapshot) float64 {
	if len(curve) == 0 {
		return 0
	}
	peak := curve[0].Equity
	var worst float64
	for _, s := range curve {
		if s.Equity > peak {
			peak = s.Equity
		}
		if peak <= 0 {
			continue
		}
		if dd := (s.Equity - peak) / peak; dd < worst {
			worst = dd
		}
	}
	return worst
}
