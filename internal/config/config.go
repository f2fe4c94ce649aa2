// Package config loads the options lab configuration from config.toml.
package config

import (
	"fmt"
	"os"
	"path/filepath"
	"strings"

	"github.com/spf13/viper"

	"nifty-options-lab/internal/backtest"
	"nifty-options-lab/internal/errors"
	"nifty-options-lab/internal/logging"
	"nifty-options-lab/internal/pricing"
)

// EnvPrefix prefixes environment overrides, e.g. OPTIONSLAB_BACKTEST_INITIAL_CAPITAL.
const EnvPrefix = "OPTIONSLAB"

// Config holds all application configuration.
type Config struct {
	Backtest backtest.Config   `mapstructure:"backtest"`
	Pricing  PricingConfig     `mapstructure:"pricing"`
	Data     DataConfig        `mapstructure:"data"`
	Logging  logging.LogConfig `mapstructure:"logging"`
	UI       UIConfig          `mapstructure:"ui"`
}

// PricingConfig holds the market rates and numerical method settings.
type PricingConfig struct {
	pricing.Config `mapstructure:",squash"`
	RiskFreeRate   float64 `mapstructure:"risk_free_rate"`
	DividendYield  float64 `mapstructure:"dividend_yield"`
}

// DataConfig locates the price history database.
type DataConfig struct {
	DBPath    string `mapstructure:"db_path"`
	Timeframe string `mapstructure:"timeframe"`
}

// UIConfig holds output preferences.
type UIConfig struct {
	ColorEnabled bool   `mapstructure:"color_enabled"`
	Output       string `mapstructure:"output"` // table, json, yaml
}

// DefaultConfigDir returns the default configuration directory.
func DefaultConfigDir() string {
	home, err := os.UserHomeDir()
	if err != nil {
		return filepath.Join(".config", "nifty-options-lab")
	}
	return filepath.Join(home, ".config", "nifty-options-lab")
}

// Path returns the config file path inside configDir.
func Path(configDir string) string {
	if configDir == "" {
		configDir = DefaultConfigDir()
	}
	return filepath.Join(configDir, "config.toml")
}

// Default returns the built-in configuration for configDir.
func Default(configDir string) *Config {
	if configDir == "" {
		configDir = DefaultConfigDir()
	}
	bt := backtest.DefaultConfig()
	logCfg := logging.DefaultLogConfig()
	logCfg.FilePath = filepath.Join(configDir, "logs", "optionslab.log")
	return &Config{
		Backtest: bt,
		Pricing: PricingConfig{
			Config:        pricing.DefaultConfig(),
			RiskFreeRate:  bt.RiskFreeRate,
			DividendYield: bt.DividendYield,
		},
		Data: DataConfig{
			DBPath:    filepath.Join(configDir, "optionslab.db"),
			Timeframe: "1day",
		},
		Logging: logCfg,
		UI:      UIConfig{ColorEnabled: true, Output: "table"},
	}
}

// Load reads config.toml from configDir, writing the template first if it
// does not exist. Environment variables override file values.
func Load(configDir string) (*Config, error) {
	if configDir == "" {
		configDir = DefaultConfigDir()
	}

	v := viper.New()
	v.SetConfigName("config")
	v.SetConfigType("toml")
	v.AddConfigPath(configDir)
	v.SetEnvPrefix(EnvPrefix)
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))
	v.AutomaticEnv()
	setDefaults(v, Default(configDir))

	if err := v.ReadInConfig(); err != nil {
		if _, ok := err.(viper.ConfigFileNotFoundError); !ok {
			return nil, fmt.Errorf("reading config.toml: %w", err)
		}
		if err := createTemplateConfig(configDir); err != nil {
			return nil, err
		}
	}

	cfg := &Config{}
	if err := v.Unmarshal(cfg); err != nil {
		return nil, fmt.Errorf("decoding config.toml: %w", err)
	}
	cfg.Backtest.RiskFreeRate = cfg.Pricing.RiskFreeRate
	cfg.Backtest.DividendYield = cfg.Pricing.DividendYield

	if err := cfg.Validate(); err != nil {
		return nil, fmt.Errorf("validating config: %w", err)
	}
	return cfg, nil
}

func setDefaults(v *viper.Viper, d *Config) {
	bt := d.Backtest
	v.SetDefault("backtest.underlying", bt.Underlying)
	v.SetDefault("backtest.initial_capital", bt.InitialCapital)
	v.SetDefault("backtest.lot_size", bt.LotSize)
	v.SetDefault("backtest.stop_loss_pct", bt.StopLossPct)
	v.SetDefault("backtest.take_profit_pct", bt.TakeProfitPct)
	v.SetDefault("backtest.risk_per_trade_pct", bt.RiskPerTradePct)
	v.SetDefault("backtest.max_position_size", bt.MaxPositionSize)
	v.SetDefault("backtest.max_daily_loss", bt.MaxDailyLoss)
	v.SetDefault("backtest.min_capital_floor", bt.MinCapitalFloor)
	v.SetDefault("backtest.volatility_band", bt.VolatilityBand)
	v.SetDefault("backtest.target_dte", bt.TargetDTE)
	v.SetDefault("backtest.time_decay_dte", bt.TimeDecayDTE)
	v.SetDefault("backtest.vol_window", bt.VolWindow)
	v.SetDefault("backtest.trend_threshold", bt.TrendThreshold)
	v.SetDefault("backtest.max_lots", bt.MaxLots)
	v.SetDefault("backtest.fee_per_lot", bt.FeePerLot)
	v.SetDefault("backtest.strikes.strike_increment", bt.Strikes.Increment)
	v.SetDefault("backtest.strikes.strangle_offset", bt.Strikes.StrangleOffset)
	v.SetDefault("backtest.strikes.condor_inner", bt.Strikes.CondorInner)
	v.SetDefault("backtest.strikes.condor_wing", bt.Strikes.CondorWing)
	v.SetDefault("backtest.strikes.butterfly_wing", bt.Strikes.ButterflyWing)

	v.SetDefault("pricing.risk_free_rate", d.Pricing.RiskFreeRate)
	v.SetDefault("pricing.dividend_yield", d.Pricing.DividendYield)
	v.SetDefault("pricing.lattice_steps", d.Pricing.LatticeSteps)
	v.SetDefault("pricing.mc_paths", d.Pricing.Paths)
	v.SetDefault("pricing.mc_seed", d.Pricing.Seed)
	v.SetDefault("pricing.mc_workers", d.Pricing.Workers)

	v.SetDefault("data.db_path", d.Data.DBPath)
	v.SetDefault("data.timeframe", d.Data.Timeframe)

	v.SetDefault("logging.level", d.Logging.Level)
	v.SetDefault("logging.console", d.Logging.Console)
	v.SetDefault("logging.file", d.Logging.File)
	v.SetDefault("logging.file_path", d.Logging.FilePath)
	v.SetDefault("logging.max_size", d.Logging.MaxSize)
	v.SetDefault("logging.max_backups", d.Logging.MaxBackups)
	v.SetDefault("logging.max_age", d.Logging.MaxAge)

	v.SetDefault("ui.color_enabled", d.UI.ColorEnabled)
	v.SetDefault("ui.output", d.UI.Output)
}

// Validate validates the configuration.
func (c *Config) Validate() error {
	if err := c.Backtest.Validate(); err != nil {
		return fmt.Errorf("%w: backtest: %v", errors.ErrConfigInvalid, err)
	}
	p := c.Pricing
	switch {
	case p.LatticeSteps <= 0:
		return fmt.Errorf("%w: pricing.lattice_steps must be positive", errors.ErrConfigInvalid)
	case p.Paths <= 0:
		return fmt.Errorf("%w: pricing.mc_paths must be positive", errors.ErrConfigInvalid)
	case p.Workers <= 0:
		return fmt.Errorf("%w: pricing.mc_workers must be positive", errors.ErrConfigInvalid)
	case p.DividendYield < 0:
		return fmt.Errorf("%w: pricing.dividend_yield cannot be negative", errors.ErrConfigInvalid)
	}
	if c.Data.DBPath == "" {
		return fmt.Errorf("%w: data.db_path is required", errors.ErrConfigInvalid)
	}
	switch c.UI.Output {
	case "", "table", "json", "yaml":
	default:
		return fmt.Errorf("%w: ui.output must be table, json or yaml", errors.ErrConfigInvalid)
	}
	return nil
}
