package cli

import (
	"encoding/json"
	"fmt"
	"os"
	"time"

	"github.com/google/uuid"
	"github.com/spf13/cobra"

	"nifty-options-lab/internal/errors"
	"nifty-options-lab/internal/models"
	"nifty-options-lab/internal/risk"
	"nifty-options-lab/pkg/utils"
)

// positionInput is the JSON form of a book entry given to `risk check`.
type positionInput struct {
	ID           string  `json:"id"`
	Type         string  `json:"type"`
	Strike       float64 `json:"strike"`
	Expiry       string  `json:"expiry"`
	Direction    string  `json:"direction"`
	Quantity     int     `json:"quantity"`
	EntryPrice   float64 `json:"entry_price"`
	CurrentPrice float64 `json:"current_price"`
	Volatility   float64 `json:"volatility"`
}

func (in positionInput) toPosition(underlying string, lotSize int) (*models.Position, error) {
	t, err := models.ParseOptionType(in.Type)
	if err != nil {
		return nil, err
	}
	expiry, err := utils.ParseDate(in.Expiry)
	if err != nil {
		return nil, errors.NewValidationError("expiry", in.Expiry, "expected YYYY-MM-DD")
	}
	dir := models.Long
	switch in.Direction {
	case "", "long", "buy":
	case "short", "sell":
		dir = models.Short
	default:
		return nil, errors.NewValidationError("direction", in.Direction, "must be long or short")
	}
	if in.Quantity <= 0 || in.EntryPrice <= 0 {
		return nil, errors.NewValidationError("quantity", in.Quantity, "quantity and entry_price must be positive")
	}
	id := in.ID
	if id == "" {
		id = uuid.NewString()
	}
	current := in.CurrentPrice
	if current <= 0 {
		current = in.EntryPrice
	}
	return &models.Position{
		ID:           id,
		Symbol:       models.OptionSymbol(underlying, in.Strike, t),
		Type:         t,
		Strike:       in.Strike,
		Expiry:       expiry,
		Direction:    dir,
		Quantity:     in.Quantity,
		LotSize:      lotSize,
		EntryPrice:   in.EntryPrice,
		CurrentPrice: current,
		Volatility:   in.Volatility,
		State:        models.StateOpen,
	}, nil
}

func loadPositions(path, underlying string, lotSize int) ([]*models.Position, error) {
	raw, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("reading positions: %w", err)
	}
	var inputs []positionInput
	if err := json.Unmarshal(raw, &inputs); err != nil {
		return nil, errors.NewDataError("positions", path, "invalid JSON", err)
	}
	positions := make([]*models.Position, 0, len(inputs))
	for i, in := range inputs {
		p, err := in.toPosition(underlying, lotSize)
		if err != nil {
			return nil, errors.Wrapf(err, "position %d", i+1)
		}
		positions = append(positions, p)
	}
	return positions, nil
}

func newRiskCmd(app *App) *cobra.Command {
	cmd := &cobra.Command{
		Use:   "risk",
		Short: "Portfolio risk limits, sizing and VaR",
	}
	cmd.AddCommand(
		newRiskCheckCmd(app),
		newRiskSizeCmd(app),
		newRiskVaRCmd(app),
		newRiskAllocateCmd(app),
	)
	return cmd
}

// positionReport is one row of the `risk check` output.
type positionReport struct {
	ID        string               `json:"id" yaml:"id"`
	Symbol    string               `json:"symbol" yaml:"symbol"`
	Direction string               `json:"direction" yaml:"direction"`
	Quantity  int                  `json:"quantity" yaml:"quantity"`
	Mark      float64              `json:"mark" yaml:"mark"`
	PnL       float64              `json:"pnl" yaml:"pnl"`
	DTE       int                  `json:"dte" yaml:"dte"`
	State     models.PositionState `json:"state" yaml:"state"`
}

func newRiskCheckCmd(app *App) *cobra.Command {
	var (
		file     string
		spot     float64
		date     string
		dailyPnL float64
		strict   bool
	)
	cmd := &cobra.Command{
		Use:   "check",
		Short: "Check a book of positions against the risk limits",
		Long: `Load positions from a JSON array and report portfolio Greeks, VaR, limit
breaches, hedge suggestions and the exit signal of every position.

Each entry has: type, strike, expiry (YYYY-MM-DD), direction (long/short),
quantity (lots), entry_price and optionally id, current_price, volatility.

With --strict the command fails after reporting when a critical limit is breached.`,
		Example: `  optionslab risk check --positions book.json --spot 18050 --daily-pnl -12000
  optionslab risk check --positions book.json --spot 18050 --strict`,
		RunE: func(cmd *cobra.Command, args []string) error {
			output := NewOutput(cmd, app)
			bt := app.Config.Backtest
			positions, err := loadPositions(file, bt.Underlying, bt.LotSize)
			if err != nil {
				return err
			}
			asOf := time.Now().UTC().Truncate(24 * time.Hour)
			if date != "" {
				if asOf, err = utils.ParseDate(date); err != nil {
					return errors.NewValidationError("date", date, "expected YYYY-MM-DD")
				}
			}

			manager := risk.NewManager(bt.RiskLimits(),
				risk.WithLogger(app.Logger), risk.WithMetrics(app.Metrics))
			for _, p := range positions {
				manager.Add(p)
			}
			manager.SetDailyPnL(dailyPnL)
			marks := risk.Marks{
				AsOf:          asOf,
				Spot:          spot,
				RiskFreeRate:  app.Config.Pricing.RiskFreeRate,
				DividendYield: app.Config.Pricing.DividendYield,
			}

			pm, err := manager.Metrics(manager.Positions(), marks)
			if err != nil {
				return err
			}
			alerts := manager.CheckLimits(manager.Positions(), marks)
			hedges := manager.HedgeRecommendations(pm.Greeks)
			rows := make([]positionReport, 0, len(positions))
			for _, p := range manager.Positions() {
				rows = append(rows, positionReport{
					ID:        p.ID,
					Symbol:    p.Symbol,
					Direction: p.Direction.String(),
					Quantity:  p.Quantity,
					Mark:      p.CurrentPrice,
					PnL:       p.UnrealizedPnL(),
					DTE:       p.DaysToExpiry(asOf),
					State:     manager.EvaluateExit(p, p.CurrentPrice, asOf),
				})
			}

			if output.IsStructured() {
				if err := output.Structured(map[string]interface{}{
					"metrics":   pm,
					"alerts":    alerts,
					"hedges":    hedges,
					"positions": rows,
				}); err != nil {
					return err
				}
				return breach(strict, alerts)
			}

			output.Bold("Portfolio (%d positions)", len(rows))
			output.Printf("  Value:   %s\n", formatMoney(pm.Value))
			output.Printf("  Greeks:  Δ %.2f  Γ %.4f  Θ %.2f  V %.2f\n", pm.Greeks.Delta, pm.Greeks.Gamma, pm.Greeks.Theta, pm.Greeks.Vega)
			output.Printf("  VaR:     %s (95%%)  %s (99%%)\n", formatMoney(pm.VaR95), formatMoney(pm.VaR99))
			output.Println()

			table := NewTable(output, "Symbol", "Side", "Lots", "Mark", "P&L", "DTE", "Signal")
			for _, r := range rows {
				table.AddRow(r.Symbol, r.Direction, fmt.Sprint(r.Quantity), formatMoney(r.Mark),
					output.PnL(r.PnL), fmt.Sprint(r.DTE), string(r.State))
			}
			table.Render()
			output.Println()

			if len(alerts) == 0 {
				output.Success("✓ All risk limits respected")
			}
			for _, a := range alerts {
				output.Printf("%s %s: %s → %s\n", output.Severity(a.Severity), a.Kind, a.Message, a.Action)
			}
			for _, h := range hedges {
				qty := fmt.Sprint(h.Quantity)
				if h.All {
					qty = "all"
				}
				output.Info("Hedge: %s %s (%s)", h.Action, qty, h.Reason)
			}
			return breach(strict, alerts)
		},
	}
	cmd.Flags().StringVar(&file, "positions", "", "JSON file with the positions")
	cmd.Flags().Float64Var(&spot, "spot", 0, "underlying price")
	cmd.Flags().StringVar(&date, "date", "", "valuation date (default: today)")
	cmd.Flags().Float64Var(&dailyPnL, "daily-pnl", 0, "realized P&L so far today")
	cmd.Flags().BoolVar(&strict, "strict", false, "exit with an error on a critical breach")
	_ = cmd.MarkFlagRequired("positions")
	_ = cmd.MarkFlagRequired("spot")
	return cmd
}

// breach returns the first critical alert as a RiskError when strict is set.
func breach(strict bool, alerts []models.RiskAlert) error {
	if !strict {
		return nil
	}
	for _, a := range alerts {
		if a.Severity == models.SeverityCritical {
			return errors.NewRiskError(string(a.Kind), a.Current, a.Limit, a.Message)
		}
	}
	return nil
}

func newRiskSizeCmd(app *App) *cobra.Command {
	var (
		capital float64
		winRate float64
		avgWin  float64
		avgLoss float64
		maxLoss float64
		riskPct float64
		maxLots int
	)
	cmd := &cobra.Command{
		Use:     "size",
		Short:   "Kelly and fixed-risk position sizing",
		Example: `  optionslab risk size --win-rate 0.55 --avg-win 4000 --avg-loss 2500 --max-loss 5000`,
		RunE: func(cmd *cobra.Command, args []string) error {
			output := NewOutput(cmd, app)
			if maxLoss <= 0 {
				return errors.NewValidationError("max-loss", maxLoss, "must be positive")
			}
			kelly := risk.KellyFraction(winRate, avgWin, avgLoss)
			contracts := risk.PositionSize(capital, winRate, avgWin, avgLoss, maxLoss)
			lots := risk.FixedRiskLots(capital, riskPct, maxLoss, maxLots)
			if output.IsStructured() {
				return output.Structured(map[string]interface{}{
					"kelly_fraction":  kelly,
					"kelly_contracts": contracts,
					"fixed_risk_lots": lots,
				})
			}
			output.Printf("Kelly fraction:    %s\n", output.Percent(kelly))
			output.Printf("Kelly contracts:   %d\n", contracts)
			output.Printf("Fixed-risk lots:   %d (%.1f%% of %s, cap %d)\n", lots, riskPct*100, formatMoney(capital), maxLots)
			return nil
		},
	}
	bt := app.Config.Backtest
	cmd.Flags().Float64Var(&capital, "capital", bt.InitialCapital, "available capital")
	cmd.Flags().Float64Var(&winRate, "win-rate", 0.5, "historical win rate")
	cmd.Flags().Float64Var(&avgWin, "avg-win", 0, "average winning trade")
	cmd.Flags().Float64Var(&avgLoss, "avg-loss", 0, "average losing trade (sign ignored)")
	cmd.Flags().Float64Var(&maxLoss, "max-loss", 0, "maximum loss per contract or lot")
	cmd.Flags().Float64Var(&riskPct, "risk-pct", bt.RiskPerTradePct, "fraction of capital risked per trade")
	cmd.Flags().IntVar(&maxLots, "max-lots", bt.MaxLots, "lot cap")
	return cmd
}

func newRiskVaRCmd(app *App) *cobra.Command {
	var value, vol, confidence float64
	cmd := &cobra.Command{
		Use:     "var",
		Short:   "Parametric value at risk",
		Example: `  optionslab risk var --value 500000 --vol 0.2 --confidence 0.99`,
		RunE: func(cmd *cobra.Command, args []string) error {
			output := NewOutput(cmd, app)
			if confidence <= 0 || confidence >= 1 {
				return errors.NewValidationError("confidence", confidence, "must be between 0 and 1")
			}
			v := risk.ValueAtRisk(value, vol, confidence)
			if output.IsStructured() {
				return output.Structured(map[string]float64{"value": value, "confidence": confidence, "var": v})
			}
			output.Printf("VaR %.1f%%: %s\n", confidence*100, formatMoney(v))
			return nil
		},
	}
	cmd.Flags().Float64Var(&value, "value", 0, "portfolio value")
	cmd.Flags().Float64Var(&vol, "vol", risk.DefaultLimits().VaRVolatility, "annual volatility")
	cmd.Flags().Float64Var(&confidence, "confidence", 0.95, "confidence level")
	return cmd
}

func newRiskAllocateCmd(app *App) *cobra.Command {
	var (
		file    string
		capital float64
	)
	cmd := &cobra.Command{
		Use:   "allocate",
		Short: "Sharpe-ranked capital allocation across strategies",
		Long: `Allocate capital across candidates read from a JSON array of
{name, expected_return, volatility, max_allocation}.`,
		RunE: func(cmd *cobra.Command, args []string) error {
			output := NewOutput(cmd, app)
			raw, err := os.ReadFile(file)
			if err != nil {
				return fmt.Errorf("reading candidates: %w", err)
			}
			var candidates []risk.Candidate
			if err := json.Unmarshal(raw, &candidates); err != nil {
				return errors.NewDataError("candidates", file, "invalid JSON", err)
			}
			plan, err := risk.Allocate(candidates, capital, app.Config.Pricing.RiskFreeRate)
			if err != nil {
				return err
			}
			if output.IsStructured() {
				return output.Structured(plan)
			}
			table := NewTable(output, "Strategy", "Weight", "Capital", "Sharpe")
			for _, a := range plan.Allocations {
				table.AddRow(a.Name, output.Percent(a.Weight), formatMoney(a.Capital), fmt.Sprintf("%.2f", a.Sharpe))
			}
			table.Render()
			output.Printf("\nExpected return %s, volatility %s\n",
				output.Percent(plan.ExpectedReturn), output.Percent(plan.ExpectedVolatility))
			return nil
		},
	}
	cmd.Flags().StringVar(&file, "candidates", "", "JSON file with candidate strategies")
	cmd.Flags().Float64Var(&capital, "capital", app.Config.Backtest.InitialCapital, "capital to allocate")
	_ = cmd.MarkFlagRequired("candidates")
	return cmd
}
