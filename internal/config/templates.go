package config

import (
	"fmt"
	"os"
	"path/filepath"
)

const configTemplate = `# NIFTY options lab configuration
# Every key can be overridden from the environment, e.g.
# OPTIONSLAB_BACKTEST_INITIAL_CAPITAL=500000

[backtest]
underlying = "NIFTY"
initial_capital = 1000000.0
lot_size = 50
# Exit rules as fractions of the entry premium
stop_loss_pct = 0.02
take_profit_pct = 0.05
# Fraction of capital at risk per trade
risk_per_trade_pct = 0.02
max_position_size = 1000000.0
max_daily_loss = 50000.0
# No new entries below this cash balance
min_capital_floor = 100000.0
# Entries only when trailing realized volatility is inside [low, high]
volatility_band = [0.15, 0.50]
target_dte = 30
time_decay_dte = 7
vol_window = 20
trend_threshold = 0.05
max_lots = 10
fee_per_lot = 20.0

[backtest.strikes]
strike_increment = 50.0
strangle_offset = 100.0
condor_inner = 100.0
condor_wing = 200.0
butterfly_wing = 100.0

[pricing]
risk_free_rate = 0.05
dividend_yield = 0.0
lattice_steps = 100
mc_paths = 100000
mc_seed = 42
mc_workers = 4

[data]
# db_path defaults to optionslab.db next to this file
timeframe = "1day"

[logging]
# debug, info, warn, error
level = "info"
console = true
file = false
max_size = 50
max_backups = 5
max_age = 30

[ui]
color_enabled = true
# table, json or yaml
output = "table"
`

func createTemplateConfig(configDir string) error {
	if err := os.MkdirAll(configDir, 0o755); err != nil {
		return fmt.Errorf("creating config directory: %w", err)
	}
	path := filepath.Join(configDir, "config.toml")
	if err := os.WriteFile(path, []byte(configTemplate), 0o644); err != nil {
		return fmt.Errorf("writing config template: %w", err)
	}
	return nil
}
