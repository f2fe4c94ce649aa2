package cli

import (
	"fmt"
	"os"
	"strings"

	"github.com/spf13/cobra"

	"nifty-options-lab/internal/store"
)

func newDataCmd(app *App) *cobra.Command {
	cmd := &cobra.Command{
		Use:   "data",
		Short: "Manage stored price history",
	}
	cmd.AddCommand(newDataImportCmd(app), newDataListCmd(app))
	return cmd
}

func newDataImportCmd(app *App) *cobra.Command {
	var symbol, timeframe string
	cmd := &cobra.Command{
		Use:   "import <file.csv>",
		Short: "Import daily bars from a CSV file",
		Long: `Import daily bars into the local store. The file needs the header
date,open,high,low,close,volume with dates as YYYY-MM-DD. Existing bars for
the same dates are replaced.`,
		Example: `  optionslab data import nifty_2023.csv
  optionslab data import banknifty.csv --symbol BANKNIFTY`,
		Args: cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			output := NewOutput(cmd, app)
			f, err := os.Open(args[0])
			if err != nil {
				return fmt.Errorf("opening %s: %w", args[0], err)
			}
			defer f.Close()

			series, err := store.ImportCandlesCSV(f)
			if err != nil {
				return err
			}
			st, err := app.Store()
			if err != nil {
				return err
			}
			symbol = strings.ToUpper(symbol)
			if err := st.SaveCandles(commandContext(cmd), symbol, timeframe, series); err != nil {
				return err
			}
			app.Logger.Info().Str("symbol", symbol).Int("bars", len(series)).Msg("Candles imported")

			if output.IsStructured() {
				return output.Structured(map[string]interface{}{
					"symbol":    symbol,
					"timeframe": timeframe,
					"bars":      len(series),
				})
			}
			if len(series) == 0 {
				output.Warning("No bars in %s", args[0])
				return nil
			}
			output.Success("✓ Imported %d %s bars for %s (%s to %s)", len(series), timeframe, symbol,
				series[0].Timestamp.Format("2006-01-02"), series[len(series)-1].Timestamp.Format("2006-01-02"))
			return nil
		},
	}
	cmd.Flags().StringVar(&symbol, "symbol", app.Config.Backtest.Underlying, "symbol to store the bars under")
	cmd.Flags().StringVar(&timeframe, "timeframe", app.Config.Data.Timeframe, "timeframe of the bars")
	return cmd
}

func newDataListCmd(app *App) *cobra.Command {
	return &cobra.Command{
		Use:   "list",
		Short: "List stored symbols",
		RunE: func(cmd *cobra.Command, args []string) error {
			output := NewOutput(cmd, app)
			st, err := app.Store()
			if err != nil {
				return err
			}
			symbols, err := st.ListSymbols(commandContext(cmd))
			if err != nil {
				return err
			}
			if output.IsStructured() {
				return output.Structured(symbols)
			}
			if len(symbols) == 0 {
				output.Info("No stored history. Run 'optionslab data import <file.csv>'.")
				return nil
			}
			table := NewTable(output, "Symbol", "Timeframe", "Bars", "From", "To")
			for _, s := range symbols {
				table.AddRow(s.Symbol, s.Timeframe, fmt.Sprint(s.Bars),
					s.First.Format("2006-01-02"), s.Last.Format("2006-01-02"))
			}
			table.Render()
			return nil
		},
	}
}
