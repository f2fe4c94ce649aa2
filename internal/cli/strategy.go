package cli

import (
	"fmt"
	"strconv"
	"strings"

	"github.com/spf13/cobra"

	"nifty-options-lab/internal/errors"
	"nifty-options-lab/internal/strategy"
)

func newStrategyCmd(app *App) *cobra.Command {
	cmd := &cobra.Command{
		Use:   "strategy",
		Short: "Analyse and select option strategies",
	}
	cmd.AddCommand(newStrategyAnalyzeCmd(app), newStrategySelectCmd(app))
	return cmd
}

func newStrategyAnalyzeCmd(app *App) *cobra.Command {
	var (
		market   marketFlags
		premiums string
		width    float64
		step     float64
	)
	cmd := &cobra.Command{
		Use:   "analyze <straddle|strangle|iron_condor|butterfly>",
		Short: "Payoff, Greeks and breakevens of a strategy struck around spot",
		Example: `  optionslab strategy analyze iron_condor --spot 18000 --days 30 --vol 0.18
  optionslab strategy analyze straddle --spot 18000 --premiums 320,290`,
		Args: cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			output := NewOutput(cmd, app)
			kind, err := strategy.ParseKind(args[0])
			if err != nil {
				return err
			}
			s, err := strategy.Build(kind, market.spot, app.Config.Backtest.Strikes)
			if err != nil {
				return err
			}
			prem, err := parseFloats(premiums)
			if err != nil {
				return err
			}
			m := strategy.Market{
				Spot:          market.spot,
				TimeToExpiry:  market.days / 365,
				RiskFreeRate:  market.rate,
				Volatility:    market.vol,
				DividendYield: market.dividend,
			}
			a, err := strategy.Analyze(s, m, prem, strategy.SpotGrid(market.spot, width, step))
			if err != nil {
				return err
			}
			if output.IsStructured() {
				return output.Structured(a)
			}
			showAnalysis(output, a)
			return nil
		},
	}
	market.register(cmd, app)
	cmd.Flags().StringVar(&premiums, "premiums", "", "comma-separated leg premiums (default: closed-form prices)")
	cmd.Flags().Float64Var(&width, "width", 500, "spot grid half width")
	cmd.Flags().Float64Var(&step, "step", 100, "spot grid step")
	return cmd
}

func showAnalysis(output *Output, a strategy.Analysis) {
	output.Bold("%s", strings.ToUpper(string(a.Kind)))
	legs := NewTable(output, "Leg", "Strike", "Type", "Side", "Qty", "Premium")
	for i, l := range a.Legs {
		legs.AddRow(strconv.Itoa(i+1), fmt.Sprintf("%.0f", l.Strike), string(l.Type),
			l.Direction.String(), strconv.Itoa(l.Weight), formatMoney(a.Premiums[i]))
	}
	legs.Render()
	output.Println()

	if a.NetPremium >= 0 {
		output.Printf("Net debit:    %s\n", formatMoney(a.NetPremium))
	} else {
		output.Printf("Net credit:   %s\n", formatMoney(-a.NetPremium))
	}
	output.Printf("Max profit:   %s\n", boundString(a.MaxProfit))
	output.Printf("Max loss:     %s\n", boundString(a.MaxLoss))
	be := make([]string, len(a.Breakevens))
	for i, b := range a.Breakevens {
		be[i] = fmt.Sprintf("%.2f", b)
	}
	output.Printf("Breakevens:   %s\n", strings.Join(be, ", "))
	g := a.Greeks
	output.Printf("Greeks:       Δ %.4f  Γ %.6f  Θ %.2f  V %.2f  ρ %.2f\n", g.Delta, g.Gamma, g.Theta, g.Vega, g.Rho)
	output.Println()

	grid := NewTable(output, "Spot", "Payoff", "P&L")
	for i, spot := range a.Spots {
		grid.AddRow(fmt.Sprintf("%.0f", spot), formatMoney(a.Payoffs[i]), output.PnL(a.PnL[i]))
	}
	grid.Render()
}

func boundString(b strategy.Bound) string {
	if b.Unbounded {
		return "unlimited"
	}
	return formatMoney(b.Value)
}

func newStrategySelectCmd(app *App) *cobra.Command {
	var f strategy.Features
	var trend string
	cmd := &cobra.Command{
		Use:     "select",
		Short:   "Pick a strategy for the volatility regime",
		Example: `  optionslab strategy select --realized-vol 0.22 --trend neutral`,
		RunE: func(cmd *cobra.Command, args []string) error {
			output := NewOutput(cmd, app)
			switch t := strategy.Trend(strings.ToLower(trend)); t {
			case strategy.TrendBullish, strategy.TrendBearish, strategy.TrendNeutral:
				f.Trend = t
			default:
				return errors.NewValidationError("trend", trend, "must be bullish, bearish or neutral")
			}
			if f.Volatility() <= 0 {
				return errors.NewValidationError("realized-vol", f.RealizedVol, "a positive realized or implied volatility is required")
			}
			kind := strategy.Select(f)
			if output.IsStructured() {
				return output.Structured(map[string]interface{}{"features": f, "strategy": kind})
			}
			output.Printf("Volatility %.1f%%, %s market: ", f.Volatility()*100, f.Trend)
			output.Success("%s", kind)
			return nil
		},
	}
	cmd.Flags().Float64Var(&f.Spot, "spot", 0, "underlying price")
	cmd.Flags().Float64Var(&f.RealizedVol, "realized-vol", 0, "annualised realized volatility")
	cmd.Flags().Float64Var(&f.ImpliedVol, "implied-vol", 0, "implied volatility, preferred when set")
	cmd.Flags().StringVar(&trend, "trend", "neutral", "bullish, bearish or neutral")
	cmd.Flags().IntVar(&f.DaysToExpiry, "days", 30, "days to expiry")
	return cmd
}

// parseFloats parses a comma-separated list; an empty string yields nil.
func parseFloats(s string) ([]float64, error) {
	if strings.TrimSpace(s) == "" {
		return nil, nil
	}
	parts := strings.Split(s, ",")
	out := make([]float64, 0, len(parts))
	for _, p := range parts {
		v, err := strconv.ParseFloat(strings.TrimSpace(p), 64)
		if err != nil {
			return nil, errors.NewValidationError("premiums", p, "not a number")
		}
		out = append(out, v)
	}
	return out, nil
}
