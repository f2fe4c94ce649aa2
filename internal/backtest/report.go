package backtest

import (
	"fmt"
	"sort"
	"strings"

	"nifty-options-lab/internal/models"
	"nifty-options-lab/pkg/utils"
)

// Comparison is one row of a strategy comparison.
type Comparison struct {
	Strategy         string       `json:"strategy" yaml:"strategy"`
	TotalReturn      float64      `json:"total_return" yaml:"total_return"`
	AnnualizedReturn float64      `json:"annualized_return" yaml:"annualized_return"`
	SharpeRatio      float64      `json:"sharpe_ratio" yaml:"sharpe_ratio"`
	MaxDrawdown      float64      `json:"max_drawdown" yaml:"max_drawdown"`
	WinRate          float64      `json:"win_rate" yaml:"win_rate"`
	TotalTrades      int          `json:"total_trades" yaml:"total_trades"`
	ProfitFactor     ProfitFactor `json:"profit_factor" yaml:"profit_factor"`
}

// Compare ranks results by Sharpe ratio, best first. Ties keep name order.
func Compare(results map[string]Result) []Comparison {
	out := make([]Comparison, 0, len(results))
	for name, r := range results {
		out = append(out, Comparison{
			Strategy:         name,
			TotalReturn:      r.TotalReturn,
			AnnualizedReturn: r.AnnualizedReturn,
			SharpeRatio:      r.SharpeRatio,
			MaxDrawdown:      r.MaxDrawdown,
			WinRate:          r.WinRate,
			TotalTrades:      r.TotalTrades,
			ProfitFactor:     r.ProfitFactor,
		})
	}
	sort.Slice(out, func(i, j int) bool {
		if out[i].SharpeRatio != out[j].SharpeRatio {
			return out[i].SharpeRatio > out[j].SharpeRatio
		}
		return out[i].Strategy < out[j].Strategy
	})
	return out
}

// EquityChartASCII draws the equity curve in a width x height box.
func EquityChartASCII(curve []models.EquitySnapshot, width, height int) string {
	if len(curve) == 0 || width <= 0 || height <= 0 {
		return "No data to display"
	}

	lo, hi := curve[0].Equity, curve[0].Equity
	for _, s := range curve {
		lo = min(lo, s.Equity)
		hi = max(hi, s.Equity)
	}
	span := hi - lo
	if span == 0 {
		span = 1
	}
	lo -= span * 0.05
	hi += span * 0.05
	span = hi - lo

	grid := make([][]rune, height)
	for i := range grid {
		grid[i] = []rune(strings.Repeat(" ", width))
	}

	// Spread the curve over the full width rather than truncating it.
	cols := min(width, len(curve))
	for x := 0; x < cols; x++ {
		idx := x * (len(curve) - 1) / max(cols-1, 1)
		y := int((curve[idx].Equity - lo) / span * float64(height-1))
		if y >= 0 && y < height {
			grid[height-1-y][x] = '█'
		}
	}

	var sb strings.Builder
	fmt.Fprintf(&sb, "Equity Curve (%s - %s)\n", utils.FormatCompact(lo), utils.FormatCompact(hi))
	sb.WriteString(strings.Repeat("─", width+2) + "\n")
	for _, row := range grid {
		sb.WriteRune('│')
		sb.WriteString(string(row))
		sb.WriteString("│\n")
	}
	sb.WriteString(strings.Repeat("─", width+2) + "\n")
	return sb.String()
}

// Report renders a plain text summary of a run.
func Report(run *Run) string {
	r := run.Result
	var sb strings.Builder

	fmt.Fprintf(&sb, "Backtest %s\n", run.ID)
	fmt.Fprintf(&sb, "Period:            %s to %s (%d bars)\n",
		run.Start.Format("2006-01-02"), run.End.Format("2006-01-02"), r.Days)
	fmt.Fprintf(&sb, "Strategies:        %s\n", joinKinds(run))
	sb.WriteString("\nPerformance\n")
	fmt.Fprintf(&sb, "  Initial equity:  %s\n", utils.FormatIndianCurrency(r.InitialEquity))
	fmt.Fprintf(&sb, "  Final equity:    %s\n", utils.FormatIndianCurrency(r.FinalEquity))
	fmt.Fprintf(&sb, "  Total return:    %s\n", utils.FormatPercent(r.TotalReturn))
	fmt.Fprintf(&sb, "  Annualized:      %s\n", utils.FormatPercent(r.AnnualizedReturn))
	fmt.Fprintf(&sb, "  Volatility:      %s\n", utils.FormatPercent(r.Volatility))
	fmt.Fprintf(&sb, "  Sharpe ratio:    %.2f\n", r.SharpeRatio)
	fmt.Fprintf(&sb, "  Max drawdown:    %s\n", utils.FormatPercent(r.MaxDrawdown))
	sb.WriteString("\nTrades\n")
	fmt.Fprintf(&sb, "  Total:           %d (%d won, %d lost)\n", r.TotalTrades, r.WinningTrades, r.LosingTrades)
	fmt.Fprintf(&sb, "  Win rate:        %s\n", utils.FormatPercent(r.WinRate))
	fmt.Fprintf(&sb, "  Avg win / loss:  %s / %s\n", utils.FormatPnL(r.AvgWin), utils.FormatPnL(r.AvgLoss))
	fmt.Fprintf(&sb, "  Best / worst:    %s / %s\n", utils.FormatPnL(r.MaxWin), utils.FormatPnL(r.MaxLoss))
	fmt.Fprintf(&sb, "  Profit factor:   %s\n", r.ProfitFactor)
	fmt.Fprintf(&sb, "  Net P&L:         %s\n", utils.FormatPnL(r.TotalPnL))
	fmt.Fprintf(&sb, "  Fees:            %s\n", utils.FormatIndianCurrency(r.TotalFees))

	if len(run.Alerts) > 0 || run.Faults > 0 {
		sb.WriteString("\nRisk\n")
		fmt.Fprintf(&sb, "  Alerts:          %d\n", len(run.Alerts))
		fmt.Fprintf(&sb, "  Day faults:      %d\n", run.Faults)
	}
	return sb.String()
}

func joinKinds(run *Run) string {
	names := make([]string, len(run.Strategies))
	for i, k := range run.Strategies {
		names[i] = string(k)
	}
	return strings.Join(names, ", ")
}
