package cli

import (
	"context"
	"fmt"
	"os"
	"strings"
	"sync"
	"time"

	"github.com/sourcegraph/conc/pool"
	"github.com/spf13/cobra"

	"nifty-options-lab/internal/backtest"
	"nifty-options-lab/internal/errors"
	"nifty-options-lab/internal/models"
	"nifty-options-lab/internal/store"
	"nifty-options-lab/internal/strategy"
)

// seriesFlags select the price history a backtest replays and, optionally,
// the volatility surface its entries are priced off.
type seriesFlags struct {
	symbol    string
	timeframe string
	csvPath   string
	from      string
	to        string
	surface   string
}

func (f *seriesFlags) register(cmd *cobra.Command, app *App) {
	cmd.Flags().StringVar(&f.symbol, "symbol", app.Config.Backtest.Underlying, "symbol of the stored history")
	cmd.Flags().StringVar(&f.timeframe, "timeframe", app.Config.Data.Timeframe, "timeframe of the stored history")
	cmd.Flags().StringVar(&f.csvPath, "csv", "", "read bars from a CSV file instead of the store")
	cmd.Flags().StringVar(&f.from, "from", "", "first date (YYYY-MM-DD, default: first bar)")
	cmd.Flags().StringVar(&f.to, "to", "", "last date (YYYY-MM-DD, default: last bar)")
	cmd.Flags().StringVar(&f.surface, "surface", "", "price entries off this volatility surface file (see 'optionslab iv --record')")
}

// load returns the full history plus the requested window. History before
// the window is kept for the volatility warm-up.
func (f *seriesFlags) load(ctx context.Context, app *App) (models.Series, time.Time, time.Time, error) {
	start, err := parseOptionalDate(f.from)
	if err != nil {
		return nil, start, start, errors.NewValidationError("from", f.from, "expected YYYY-MM-DD")
	}
	end, err := parseOptionalDate(f.to)
	if err != nil {
		return nil, start, end, errors.NewValidationError("to", f.to, "expected YYYY-MM-DD")
	}

	var series models.Series
	if f.csvPath != "" {
		file, err := os.Open(f.csvPath)
		if err != nil {
			return nil, start, end, fmt.Errorf("opening %s: %w", f.csvPath, err)
		}
		defer file.Close()
		if series, err = store.ImportCandlesCSV(file); err != nil {
			return nil, start, end, err
		}
	} else {
		st, err := app.Store()
		if err != nil {
			return nil, start, end, err
		}
		if series, err = st.GetCandles(ctx, f.symbol, f.timeframe, time.Time{}, end); err != nil {
			return nil, start, end, err
		}
	}
	if len(series) == 0 {
		return nil, start, end, errors.NewDataError("candles", f.symbol, "no history; run 'optionslab data import' first", errors.ErrDataGap)
	}
	if start.IsZero() {
		start = series[0].Timestamp
	}
	if end.IsZero() {
		end = series[len(series)-1].Timestamp
	}
	return series, start, end, nil
}

// commandContext returns the context the command was executed with.
func commandContext(cmd *cobra.Command) context.Context {
	if ctx := cmd.Context(); ctx != nil {
		return ctx
	}
	return context.Background()
}

func parseKinds(s string) ([]strategy.Kind, error) {
	if strings.TrimSpace(s) == "" {
		return nil, nil
	}
	var kinds []strategy.Kind
	for _, name := range strings.Split(s, ",") {
		k, err := strategy.ParseKind(name)
		if err != nil {
			return nil, err
		}
		kinds = append(kinds, k)
	}
	return kinds, nil
}

// newBacktestEngine builds an engine from the config. A non-empty
// surfacePath prices entries off that volatility surface.
func (a *App) newBacktestEngine(surfacePath string) (*backtest.Engine, error) {
	opts := []backtest.Option{
		backtest.WithLogger(a.Logger),
		backtest.WithMetrics(a.Metrics),
		backtest.WithPricer(a.Pricer),
	}
	if surfacePath != "" {
		surface, err := loadSurface(surfacePath, false)
		if err != nil {
			return nil, err
		}
		opts = append(opts, backtest.WithSurface(surface))
	}
	return backtest.NewEngine(a.Config.Backtest, opts...)
}

func newBacktestCmd(app *App) *cobra.Command {
	cmd := &cobra.Command{
		Use:   "backtest",
		Short: "Backtest volatility-driven strategy selection",
	}
	cmd.AddCommand(
		newBacktestRunCmd(app),
		newBacktestCompareCmd(app),
		newBacktestShowCmd(app),
		newBacktestListCmd(app),
	)
	return cmd
}

func newBacktestRunCmd(app *App) *cobra.Command {
	var (
		series     seriesFlags
		strategies string
		save       bool
		chart      bool
	)
	cmd := &cobra.Command{
		Use:   "run",
		Short: "Run a backtest over daily history",
		Example: `  optionslab backtest run --from 2023-01-01 --to 2023-12-31
  optionslab backtest run --csv nifty.csv --strategies iron_condor,butterfly --save`,
		RunE: func(cmd *cobra.Command, args []string) error {
			output := NewOutput(cmd, app)
			ctx := commandContext(cmd)
			kinds, err := parseKinds(strategies)
			if err != nil {
				return err
			}
			bars, start, end, err := series.load(ctx, app)
			if err != nil {
				return err
			}
			engine, err := app.newBacktestEngine(series.surface)
			if err != nil {
				return err
			}

			run, runErr := engine.Run(ctx, bars, start, end, kinds)
			if run == nil {
				return runErr
			}
			if save {
				st, err := app.Store()
				if err != nil {
					return err
				}
				if err := st.SaveRun(ctx, store.NewRunRecord(run)); err != nil {
					return err
				}
			}

			if output.IsStructured() {
				if err := output.Structured(run); err != nil {
					return err
				}
				return runErr
			}
			output.Printf("%s", backtest.Report(run))
			if chart {
				output.Println()
				output.Println(backtest.EquityChartASCII(run.EquityCurve, 60, 12))
			}
			if runErr != nil {
				output.Warning("Run stopped early: %v", runErr)
			}
			if save {
				output.Success("✓ Saved run %s", run.ID)
			}
			return runErr
		},
	}
	series.register(cmd, app)
	cmd.Flags().StringVar(&strategies, "strategies", "", "comma-separated strategies to allow (default: all)")
	cmd.Flags().BoolVar(&save, "save", false, "store the run")
	cmd.Flags().BoolVar(&chart, "chart", true, "draw the equity curve")
	return cmd
}

func newBacktestCompareCmd(app *App) *cobra.Command {
	var (
		series     seriesFlags
		strategies string
	)
	cmd := &cobra.Command{
		Use:     "compare",
		Short:   "Backtest each strategy on its own and rank them",
		Example: `  optionslab backtest compare --from 2023-01-01 --to 2023-12-31`,
		RunE: func(cmd *cobra.Command, args []string) error {
			output := NewOutput(cmd, app)
			ctx := commandContext(cmd)
			kinds, err := parseKinds(strategies)
			if err != nil {
				return err
			}
			if len(kinds) == 0 {
				kinds = strategy.AllKinds()
			}
			bars, start, end, err := series.load(ctx, app)
			if err != nil {
				return err
			}
			engine, err := app.newBacktestEngine(series.surface)
			if err != nil {
				return err
			}

			var mu sync.Mutex
			results := make(map[string]backtest.Result, len(kinds))
			p := pool.New().WithErrors().WithContext(ctx)
			for _, k := range kinds {
				p.Go(func(ctx context.Context) error {
					run, err := engine.Run(ctx, bars, start, end, []strategy.Kind{k})
					if err != nil {
						return errors.Wrapf(err, "backtest %s", k)
					}
					mu.Lock()
					results[string(k)] = run.Result
					mu.Unlock()
					return nil
				})
			}
			if err := p.Wait(); err != nil {
				return err
			}

			ranked := backtest.Compare(results)
			if output.IsStructured() {
				return output.Structured(ranked)
			}
			table := NewTable(output, "Strategy", "Return", "Annualized", "Sharpe", "Max DD", "Win rate", "Trades", "PF")
			for _, c := range ranked {
				table.AddRow(c.Strategy, output.Percent(c.TotalReturn), output.Percent(c.AnnualizedReturn),
					fmt.Sprintf("%.2f", c.SharpeRatio), output.Percent(c.MaxDrawdown),
					fmt.Sprintf("%.1f%%", c.WinRate*100), fmt.Sprint(c.TotalTrades), c.ProfitFactor.String())
			}
			table.Render()
			return nil
		},
	}
	series.register(cmd, app)
	cmd.Flags().StringVar(&strategies, "strategies", "", "comma-separated strategies to compare (default: all)")
	return cmd
}

func newBacktestShowCmd(app *App) *cobra.Command {
	var (
		tradesCSV string
		chart     bool
	)
	cmd := &cobra.Command{
		Use:   "show <run-id>",
		Short: "Show a stored backtest run",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			output := NewOutput(cmd, app)
			st, err := app.Store()
			if err != nil {
				return err
			}
			rec, err := st.GetRun(commandContext(cmd), args[0])
			if err != nil {
				return err
			}
			if tradesCSV != "" {
				f, err := os.Create(tradesCSV)
				if err != nil {
					return fmt.Errorf("creating %s: %w", tradesCSV, err)
				}
				if err := store.ExportTradesCSV(f, rec.Trades); err != nil {
					f.Close()
					return err
				}
				if err := f.Close(); err != nil {
					return err
				}
			}
			if output.IsStructured() {
				return output.Structured(rec)
			}

			output.Printf("%s", backtest.Report(rec.Run()))
			if chart {
				output.Println()
				output.Println(backtest.EquityChartASCII(rec.EquityCurve, 60, 12))
			}
			if len(rec.Trades) > 0 {
				output.Println()
				table := NewTable(output, "Entry", "Exit", "Symbol", "Side", "Lots", "Entry px", "Exit px", "P&L", "Reason")
				for _, t := range rec.Trades {
					table.AddRow(t.EntryDate.Format("2006-01-02"), t.ExitDate.Format("2006-01-02"), t.Symbol,
						t.Direction.String(), fmt.Sprint(t.Quantity), formatMoney(t.EntryPrice),
						formatMoney(t.ExitPrice), output.PnL(t.PnL), t.ExitReason)
				}
				table.Render()
			}
			if tradesCSV != "" {
				output.Success("✓ Wrote %d trades to %s", len(rec.Trades), tradesCSV)
			}
			return nil
		},
	}
	cmd.Flags().StringVar(&tradesCSV, "trades-csv", "", "also export the trades to this CSV file")
	cmd.Flags().BoolVar(&chart, "chart", false, "draw the equity curve")
	return cmd
}

func newBacktestListCmd(app *App) *cobra.Command {
	var (
		underlying string
		limit      int
	)
	cmd := &cobra.Command{
		Use:   "list",
		Short: "List stored backtest runs",
		RunE: func(cmd *cobra.Command, args []string) error {
			output := NewOutput(cmd, app)
			st, err := app.Store()
			if err != nil {
				return err
			}
			runs, err := st.ListRuns(commandContext(cmd), store.RunFilter{Underlying: underlying, Limit: limit})
			if err != nil {
				return err
			}
			if output.IsStructured() {
				return output.Structured(runs)
			}
			if len(runs) == 0 {
				output.Info("No stored runs")
				return nil
			}
			table := NewTable(output, "ID", "Created", "Period", "Strategies", "Return", "Sharpe", "Max DD", "Trades")
			for _, r := range runs {
				table.AddRow(r.ID, r.CreatedAt.Local().Format("2006-01-02 15:04"),
					r.Start.Format("2006-01-02")+" → "+r.End.Format("2006-01-02"),
					strings.Join(r.Strategies, ","), output.Percent(r.TotalReturn),
					fmt.Sprintf("%.2f", r.SharpeRatio), output.Percent(r.MaxDrawdown), fmt.Sprint(r.TotalTrades))
			}
			table.Render()
			return nil
		},
	}
	cmd.Flags().StringVar(&underlying, "underlying", "", "only runs of this underlying")
	cmd.Flags().IntVar(&limit, "limit", 20, "maximum number of runs")
	return cmd
}
