package cli

import (
	"fmt"
	"os"
	"path/filepath"

	"github.com/rs/zerolog"
	"github.com/spf13/cobra"

	"nifty-options-lab/internal/config"
	"nifty-options-lab/internal/logging"
	"nifty-options-lab/internal/metrics"
	"nifty-options-lab/internal/pricing"
	"nifty-options-lab/internal/store"
)

// Version information
const (
	Version   = "0.1.0"
	BuildDate = "2024-06-01"
)

// App holds the application dependencies.
type App struct {
	Config    *config.Config
	ConfigDir string
	Logger    zerolog.Logger
	Metrics   *metrics.Collector
	Pricer    *pricing.Engine

	store store.DataStore
}

// NewApp wires the shared dependencies of every command.
func NewApp(cfg *config.Config, configDir string, logger zerolog.Logger) *App {
	m := metrics.New()
	return &App{
		Config:    cfg,
		ConfigDir: configDir,
		Logger:    logger,
		Metrics:   m,
		Pricer:    pricing.NewEngine(cfg.Pricing.Config, pricing.WithLogger(logger), pricing.WithMetrics(m)),
	}
}

// Store opens the SQLite store on first use.
func (a *App) Store() (store.DataStore, error) {
	if a.store != nil {
		return a.store, nil
	}
	path := a.Config.Data.DBPath
	if err := os.MkdirAll(filepath.Dir(path), 0o755); err != nil {
		return nil, fmt.Errorf("creating data directory: %w", err)
	}
	s, err := store.NewSQLiteStore(path)
	if err != nil {
		return nil, err
	}
	a.Logger.Debug().Str("path", path).Msg("SQLite store initialized")
	a.store = s
	return s, nil
}

// Close releases the store if it was opened.
func (a *App) Close() error {
	if a.store == nil {
		return nil
	}
	err := a.store.Close()
	a.store = nil
	return err
}

// NewRootCmd creates the root command for the CLI.
func NewRootCmd(app *App) *cobra.Command {
	rootCmd := &cobra.Command{
		Use:   "optionslab",
		Short: "NIFTY options pricing, strategy analysis and backtesting",
		Long: `optionslab prices European index options, analyses multi-leg strategies,
checks portfolio risk limits and backtests volatility-driven strategy selection
over daily NIFTY history.

Use 'optionslab <command> --help' for more information about a command.`,
		SilenceUsage:  true,
		SilenceErrors: true,
		PersistentPreRunE: func(cmd *cobra.Command, args []string) error {
			if debug, _ := cmd.Flags().GetBool("debug"); debug {
				logging.SetDebugLevel()
				app.Logger = app.Logger.Level(zerolog.DebugLevel)
			}
			cmd.SetContext(logging.WithLogger(commandContext(cmd), app.Logger))
			return nil
		},
		PersistentPostRunE: func(cmd *cobra.Command, args []string) error {
			if dump, _ := cmd.Flags().GetBool("metrics"); dump {
				return app.Metrics.WriteText(cmd.ErrOrStderr())
			}
			return nil
		},
	}

	rootCmd.PersistentFlags().String("config", "", "config directory (default: ~/.config/nifty-options-lab)")
	rootCmd.PersistentFlags().Bool("json", false, "output in JSON format")
	rootCmd.PersistentFlags().Bool("yaml", false, "output in YAML format")
	rootCmd.PersistentFlags().Bool("debug", false, "enable debug logging")
	rootCmd.PersistentFlags().Bool("metrics", false, "print collected metrics to stderr after the command")

	rootCmd.AddCommand(
		newVersionCmd(app),
		newConfigCmd(app),
		newPriceCmd(app),
		newIVCmd(app),
		newStrategyCmd(app),
		newRiskCmd(app),
		newBacktestCmd(app),
		newDataCmd(app),
	)
	return rootCmd
}

func newVersionCmd(app *App) *cobra.Command {
	return &cobra.Command{
		Use:   "version",
		Short: "Print version information",
		RunE: func(cmd *cobra.Command, args []string) error {
			output := NewOutput(cmd, app)
			if output.IsStructured() {
				return output.Structured(map[string]string{
					"version":    Version,
					"build_date": BuildDate,
				})
			}
			output.Printf("optionslab v%s\n", Version)
			output.Dim("Build date: %s", BuildDate)
			return nil
		},
	}
}

func newConfigCmd(app *App) *cobra.Command {
	cmd := &cobra.Command{
		Use:   "config",
		Short: "Configuration management",
	}

	cmd.AddCommand(&cobra.Command{
		Use:   "show",
		Short: "Show current configuration",
		RunE: func(cmd *cobra.Command, args []string) error {
			output := NewOutput(cmd, app)
			if output.IsStructured() {
				return output.Structured(app.Config)
			}
			showConfig(output, app.Config)
			return nil
		},
	})

	cmd.AddCommand(&cobra.Command{
		Use:   "path",
		Short: "Show configuration file path",
		RunE: func(cmd *cobra.Command, args []string) error {
			output := NewOutput(cmd, app)
			path := config.Path(app.ConfigDir)
			if output.IsStructured() {
				return output.Structured(map[string]string{"path": path})
			}
			output.Println(path)
			return nil
		},
	})

	cmd.AddCommand(&cobra.Command{
		Use:   "validate",
		Short: "Validate the configuration",
		RunE: func(cmd *cobra.Command, args []string) error {
			output := NewOutput(cmd, app)
			if err := app.Config.Validate(); err != nil {
				output.Error("Configuration validation failed: %v", err)
				return err
			}
			if output.IsStructured() {
				return output.Structured(map[string]bool{"valid": true})
			}
			output.Success("✓ Configuration is valid")
			return nil
		},
	})

	return cmd
}

func showConfig(output *Output, cfg *config.Config) {
	bt := cfg.Backtest
	output.Bold("Backtest")
	output.Printf("  Underlying:        %s (lot size %d)\n", bt.Underlying, bt.LotSize)
	output.Printf("  Initial capital:   %s\n", formatMoney(bt.InitialCapital))
	output.Printf("  Stop / target:     %.1f%% / %.1f%%\n", bt.StopLossPct*100, bt.TakeProfitPct*100)
	output.Printf("  Risk per trade:    %.1f%%\n", bt.RiskPerTradePct*100)
	output.Printf("  Max position:      %s\n", formatMoney(bt.MaxPositionSize))
	output.Printf("  Max daily loss:    %s\n", formatMoney(bt.MaxDailyLoss))
	output.Printf("  Capital floor:     %s\n", formatMoney(bt.MinCapitalFloor))
	output.Printf("  Volatility band:   %.0f%% - %.0f%%\n", bt.VolatilityBand[0]*100, bt.VolatilityBand[1]*100)
	output.Printf("  Target DTE:        %d days (exit at %d)\n", bt.TargetDTE, bt.TimeDecayDTE)
	output.Printf("  Fee per lot:       %s\n", formatMoney(bt.FeePerLot))
	output.Println()

	p := cfg.Pricing
	output.Bold("Pricing")
	output.Printf("  Risk-free rate:    %.2f%%\n", p.RiskFreeRate*100)
	output.Printf("  Dividend yield:    %.2f%%\n", p.DividendYield*100)
	output.Printf("  Lattice steps:     %d\n", p.LatticeSteps)
	output.Printf("  Simulation:        %d paths, seed %d, %d workers\n", p.Paths, p.Seed, p.Workers)
	output.Println()

	output.Bold("Data")
	output.Printf("  Database:          %s\n", cfg.Data.DBPath)
	output.Printf("  Timeframe:         %s\n", cfg.Data.Timeframe)
	output.Printf("  Log level:         %s\n", cfg.Logging.Level)
}
