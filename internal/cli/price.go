package cli

import (
	"github.com/spf13/cobra"

	"nifty-options-lab/internal/errors"
	"nifty-options-lab/internal/models"
	"nifty-options-lab/internal/pricing"
)

func newPriceCmd(app *App) *cobra.Command {
	var (
		market  marketFlags
		strike  float64
		optType string
		method  string
	)
	cmd := &cobra.Command{
		Use:   "price",
		Short: "Price a European option",
		Long: `Price a European call or put with the closed form, the binomial lattice
or Monte Carlo simulation. Use --method all to compare the three.`,
		Example: `  optionslab price --spot 18000 --strike 18000 --days 30 --vol 0.25
  optionslab price --spot 18000 --strike 18200 --type put --method all`,
		RunE: func(cmd *cobra.Command, args []string) error {
			output := NewOutput(cmd, app)
			t, err := models.ParseOptionType(optType)
			if err != nil {
				return err
			}
			methods := []pricing.Method{pricing.ClosedForm, pricing.Lattice, pricing.Simulation}
			if method != "all" {
				m, err := pricing.ParseMethod(method)
				if err != nil {
					return err
				}
				methods = []pricing.Method{m}
			}

			params := market.params(strike)
			quotes := make([]pricing.Quote, 0, len(methods))
			for _, m := range methods {
				q, err := app.Pricer.Price(params, t, m)
				if err != nil {
					return err
				}
				quotes = append(quotes, q)
			}

			if output.IsStructured() {
				if len(quotes) == 1 {
					return output.Structured(quotes[0])
				}
				return output.Structured(quotes)
			}

			output.Bold("%s %.0f %s, %.0f days, vol %.1f%%", app.Config.Backtest.Underlying, strike, t.Suffix(), market.days, market.vol*100)
			table := NewTable(output, "Method", "Price", "Std error")
			for _, q := range quotes {
				se := "-"
				if q.HasStdError {
					se = formatMoney(q.StdError)
				}
				table.AddRow(string(q.Method), formatMoney(q.Price), se)
			}
			table.Render()
			for _, q := range quotes {
				if q.Greeks != nil {
					g := q.Greeks
					output.Println()
					output.Printf("Delta %.4f  Gamma %.6f  Theta %.2f/day  Vega %.2f  Rho %.2f\n",
						g.Delta, g.Gamma, g.Theta, g.Vega, g.Rho)
				}
			}
			return nil
		},
	}
	market.register(cmd, app)
	cmd.Flags().Float64Var(&strike, "strike", 0, "strike price")
	cmd.Flags().StringVar(&optType, "type", "call", "option type: call or put")
	cmd.Flags().StringVar(&method, "method", "closed_form", "closed_form, lattice, simulation or all")
	_ = cmd.MarkFlagRequired("strike")
	return cmd
}

func newIVCmd(app *App) *cobra.Command {
	var (
		market  marketFlags
		strike  float64
		price   float64
		optType string
		record  string
	)
	cmd := &cobra.Command{
		Use:     "iv",
		Short:   "Solve the implied volatility of an option price",
		Example: `  optionslab iv --spot 18000 --strike 18000 --days 30 --price 550
  optionslab iv --spot 18000 --strike 18500 --days 30 --price 320 --record surface.json`,
		RunE: func(cmd *cobra.Command, args []string) error {
			output := NewOutput(cmd, app)
			t, err := models.ParseOptionType(optType)
			if err != nil {
				return err
			}
			vol, err := pricing.ImpliedVolatility(price, market.params(strike), t)
			if errors.Is(err, errors.ErrNoSolution) {
				if output.IsStructured() {
					return output.Structured(map[string]interface{}{"solved": false, "price": price})
				}
				output.Warning("No volatility between %.0f%% and %.0f%% reproduces %s",
					pricing.MinImpliedVol*100, pricing.MaxImpliedVol*100, formatMoney(price))
				return err
			}
			if err != nil {
				return err
			}
			if record != "" {
				surface, err := loadSurface(record, true)
				if err != nil {
					return err
				}
				surface.Set(strike, market.days/365, vol)
				if err := saveSurface(record, surface); err != nil {
					return err
				}
			}
			if output.IsStructured() {
				return output.Structured(map[string]interface{}{"solved": true, "price": price, "implied_volatility": vol})
			}
			output.Printf("Implied volatility: %.2f%%\n", vol*100)
			if record != "" {
				output.Success("✓ Recorded in %s", record)
			}
			return nil
		},
	}
	market.register(cmd, app)
	cmd.Flags().Float64Var(&strike, "strike", 0, "strike price")
	cmd.Flags().Float64Var(&price, "price", 0, "observed option price")
	cmd.Flags().StringVar(&optType, "type", "call", "option type: call or put")
	cmd.Flags().StringVar(&record, "record", "", "add the solved point to this volatility surface file")
	_ = cmd.MarkFlagRequired("strike")
	_ = cmd.MarkFlagRequired("price")
	return cmd
}
