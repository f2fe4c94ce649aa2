package cli

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"math"
	"math/rand/v2"
	"os"
	"path/filepath"
	"strconv"
	"strings"
	"testing"
	"time"

	"github.com/rs/zerolog"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"nifty-options-lab/internal/backtest"
	"nifty-options-lab/internal/config"
	"nifty-options-lab/internal/errors"
	"nifty-options-lab/internal/models"
	"nifty-options-lab/internal/pricing"
	"nifty-options-lab/internal/store"
	"nifty-options-lab/internal/strategy"
)

func newTestApp(t *testing.T) *App {
	t.Helper()
	dir := t.TempDir()
	cfg := config.Default(dir)
	cfg.UI.ColorEnabled = false
	app := NewApp(cfg, dir, zerolog.Nop())
	t.Cleanup(func() { _ = app.Close() })
	return app
}

func execute(t *testing.T, app *App, args ...string) (string, error) {
	t.Helper()
	root := NewRootCmd(app)
	var buf bytes.Buffer
	root.SetOut(&buf)
	root.SetErr(&buf)
	root.SetArgs(args)
	err := root.ExecuteContext(context.Background())
	return buf.String(), err
}

// writeHistory writes n weekday bars of a seeded random walk as CSV.
func writeHistory(t *testing.T, n int) string {
	t.Helper()
	rng := rand.New(rand.NewPCG(7, 7))
	var sb strings.Builder
	sb.WriteString("date,open,high,low,close,volume\n")
	day := time.Date(2023, 1, 2, 0, 0, 0, 0, time.UTC)
	price := 18000.0
	for i := 0; i < n; i++ {
		for day.Weekday() == time.Saturday || day.Weekday() == time.Sunday {
			day = day.AddDate(0, 0, 1)
		}
		next := price * math.Exp(0.015*rng.NormFloat64())
		fmt.Fprintf(&sb, "%s,%.2f,%.2f,%.2f,%.2f,%d\n", day.Format("2006-01-02"),
			price, math.Max(price, next), math.Min(price, next), next, 100000+i)
		price = next
		day = day.AddDate(0, 0, 1)
	}
	path := filepath.Join(t.TempDir(), "nifty.csv")
	require.NoError(t, os.WriteFile(path, []byte(sb.String()), 0o644))
	return path
}

func TestVersionAndConfigPath(t *testing.T) {
	app := newTestApp(t)

	out, err := execute(t, app, "version", "--json")
	require.NoError(t, err)
	assert.Contains(t, out, Version)

	out, err = execute(t, app, "config", "path")
	require.NoError(t, err)
	assert.Equal(t, config.Path(app.ConfigDir)+"\n", out)

	_, err = execute(t, app, "config", "validate")
	assert.NoError(t, err)
}

func TestPriceCommand_ClosedForm(t *testing.T) {
	app := newTestApp(t)
	out, err := execute(t, app, "price", "--spot", "18000", "--strike", "18000",
		"--days", "30", "--vol", "0.2", "--json")
	require.NoError(t, err)

	var q pricing.Quote
	require.NoError(t, json.Unmarshal([]byte(out), &q))
	want := pricing.BlackScholes(models.OptionParams{
		Spot:         18000,
		Strike:       18000,
		TimeToExpiry: 30.0 / 365,
		RiskFreeRate: app.Config.Pricing.RiskFreeRate,
		Volatility:   0.2,
	}, models.Call)
	assert.Equal(t, pricing.ClosedForm, q.Method)
	assert.InDelta(t, want, q.Price, 1e-9)
	require.NotNil(t, q.Greeks)
	assert.Greater(t, q.Greeks.Delta, 0.5)
}

func TestPriceCommand_AllMethodsAndMetrics(t *testing.T) {
	app := newTestApp(t)
	app.Config.Pricing.Paths = 20_000
	app.Pricer = pricing.NewEngine(app.Config.Pricing.Config, pricing.WithMetrics(app.Metrics))

	out, err := execute(t, app, "price", "--spot", "18000", "--strike", "18200", "--type", "put",
		"--method", "all", "--metrics")
	require.NoError(t, err)
	for _, m := range []string{"closed_form", "lattice", "simulation"} {
		assert.Contains(t, out, m)
	}
	assert.Contains(t, out, "optionslab_pricing_requests_total")
}

func TestPriceCommand_RejectsBadInput(t *testing.T) {
	app := newTestApp(t)
	_, err := execute(t, app, "price", "--spot=-1", "--strike", "18000")
	assert.ErrorIs(t, err, errors.ErrInvalidInput)

	_, err = execute(t, app, "price", "--spot", "18000", "--strike", "18000", "--method", "magic")
	assert.Error(t, err)
}

func TestIVCommand(t *testing.T) {
	app := newTestApp(t)
	p := models.OptionParams{Spot: 18000, Strike: 18000, TimeToExpiry: 30.0 / 365,
		RiskFreeRate: app.Config.Pricing.RiskFreeRate, Volatility: 0.25}
	price := pricing.BlackScholes(p, models.Call)

	out, err := execute(t, app, "iv", "--spot", "18000", "--strike", "18000", "--days", "30",
		"--price", strconv.FormatFloat(price, 'f', -1, 64), "--json")
	require.NoError(t, err)
	var res struct {
		Solved bool    `json:"solved"`
		IV     float64 `json:"implied_volatility"`
	}
	require.NoError(t, json.Unmarshal([]byte(out), &res))
	assert.True(t, res.Solved)
	assert.InDelta(t, 0.25, res.IV, 1e-3)

	_, err = execute(t, app, "iv", "--spot", "18000", "--strike", "18000", "--days", "30", "--price", "0")
	assert.ErrorIs(t, err, errors.ErrNoSolution)
}

func TestIVRecordFeedsBacktestSurface(t *testing.T) {
	app := newTestApp(t)
	path := filepath.Join(t.TempDir(), "surface.json")
	for strike, vol := range map[float64]float64{18000: 0.25, 18500: 0.22} {
		p := models.OptionParams{Spot: 18000, Strike: strike, TimeToExpiry: 30.0 / 365,
			RiskFreeRate: app.Config.Pricing.RiskFreeRate, Volatility: vol}
		_, err := execute(t, app, "iv", "--spot", "18000", "--strike", strconv.FormatFloat(strike, 'f', -1, 64),
			"--days", "30", "--price", strconv.FormatFloat(pricing.BlackScholes(p, models.Call), 'f', -1, 64),
			"--record", path)
		require.NoError(t, err)
	}

	surface, err := loadSurface(path, false)
	require.NoError(t, err)
	assert.Equal(t, 2, surface.Len())
	assert.InDelta(t, 0.22, surface.Volatility(18500, 30.0/365), 1e-3)
	assert.InDelta(t, 0.25, surface.Volatility(17900, 30.0/365), 1e-3)

	out, err := execute(t, app, "backtest", "run", "--csv", writeHistory(t, 80),
		"--strategies", "butterfly", "--surface", path, "--json")
	require.NoError(t, err)
	var run backtest.Run
	require.NoError(t, json.Unmarshal([]byte(out), &run))
	assert.Len(t, run.EquityCurve, 80)

	_, err = execute(t, app, "backtest", "run", "--csv", writeHistory(t, 80),
		"--surface", filepath.Join(t.TempDir(), "missing.json"))
	assert.Error(t, err)

	bad := filepath.Join(t.TempDir(), "bad.json")
	require.NoError(t, os.WriteFile(bad, []byte(`[{"strike": 18000, "expiry_years": 0.1, "iv": 0}]`), 0o644))
	_, err = execute(t, app, "backtest", "run", "--csv", writeHistory(t, 80), "--surface", bad)
	assert.ErrorIs(t, err, errors.ErrInvalidInput)
}

func TestStrategySelectCommand(t *testing.T) {
	app := newTestApp(t)
	cases := []struct {
		args []string
		want strategy.Kind
	}{
		{[]string{"--realized-vol", "0.35"}, strategy.KindStraddle},
		{[]string{"--realized-vol", "0.27"}, strategy.KindStrangle},
		{[]string{"--realized-vol", "0.22"}, strategy.KindButterfly},
		{[]string{"--realized-vol", "0.12"}, strategy.KindIronCondor},
		{[]string{"--realized-vol", "0.12", "--trend", "bullish"}, strategy.KindStraddle},
		{[]string{"--realized-vol", "0.35", "--implied-vol", "0.12"}, strategy.KindIronCondor},
	}
	for _, tc := range cases {
		out, err := execute(t, app, append([]string{"strategy", "select", "--json"}, tc.args...)...)
		require.NoError(t, err, tc.args)
		var res struct {
			Strategy strategy.Kind `json:"strategy"`
		}
		require.NoError(t, json.Unmarshal([]byte(out), &res))
		assert.Equal(t, tc.want, res.Strategy, tc.args)
	}

	_, err := execute(t, app, "strategy", "select", "--realized-vol", "0.2", "--trend", "sideways")
	assert.ErrorIs(t, err, errors.ErrInvalidInput)
	_, err = execute(t, app, "strategy", "select")
	assert.ErrorIs(t, err, errors.ErrInvalidInput)
}

func TestStrategyAnalyzeCommand(t *testing.T) {
	app := newTestApp(t)
	out, err := execute(t, app, "strategy", "analyze", "iron_condor", "--spot", "18020",
		"--vol", "0.18", "--width", "400", "--step", "100", "--json")
	require.NoError(t, err)

	var a strategy.Analysis
	require.NoError(t, json.Unmarshal([]byte(out), &a))
	assert.Equal(t, strategy.KindIronCondor, a.Kind)
	require.Len(t, a.Legs, 4)
	assert.Equal(t, 17800.0, a.Legs[0].Strike)
	assert.Len(t, a.Spots, 9)
	assert.False(t, a.MaxLoss.Unbounded)
	assert.Less(t, a.NetPremium, 0.0)

	out, err = execute(t, app, "strategy", "analyze", "straddle", "--spot", "18000", "--premiums", "300,280")
	require.NoError(t, err)
	assert.Contains(t, out, "Net debit")
	assert.Contains(t, out, "unlimited")

	_, err = execute(t, app, "strategy", "analyze", "collar", "--spot", "18000")
	assert.ErrorIs(t, err, errors.ErrUnknownStrategy)
	_, err = execute(t, app, "strategy", "analyze", "straddle", "--spot", "18000", "--premiums", "1,x")
	assert.ErrorIs(t, err, errors.ErrInvalidInput)
}

func TestRiskCommands(t *testing.T) {
	app := newTestApp(t)

	out, err := execute(t, app, "risk", "var", "--value", "100000", "--vol", "0.2", "--json")
	require.NoError(t, err)
	var v map[string]float64
	require.NoError(t, json.Unmarshal([]byte(out), &v))
	assert.InDelta(t, 32_900, v["var"], 1e-6)

	out, err = execute(t, app, "risk", "size", "--win-rate", "0.6", "--avg-win", "100",
		"--avg-loss", "50", "--max-loss", "5000", "--capital", "1000000", "--json")
	require.NoError(t, err)
	var size struct {
		Kelly     float64 `json:"kelly_fraction"`
		Contracts int     `json:"kelly_contracts"`
		Lots      int     `json:"fixed_risk_lots"`
	}
	require.NoError(t, json.Unmarshal([]byte(out), &size))
	assert.InDelta(t, 0.25, size.Kelly, 1e-12)
	assert.Equal(t, 20, size.Contracts)
	assert.Equal(t, 4, size.Lots)
}

func TestRiskCheckCommand(t *testing.T) {
	app := newTestApp(t)
	book := `[
		{"id": "a", "type": "call", "strike": 18000, "expiry": "2023-02-23", "direction": "long",
		 "quantity": 1, "entry_price": 200, "current_price": 180, "volatility": 0.2},
		{"id": "b", "type": "put", "strike": 17800, "expiry": "2023-02-23", "direction": "short",
		 "quantity": 1, "entry_price": 100}
	]`
	path := filepath.Join(t.TempDir(), "book.json")
	require.NoError(t, os.WriteFile(path, []byte(book), 0o644))

	out, err := execute(t, app, "risk", "check", "--positions", path, "--spot", "18000",
		"--date", "2023-02-01", "--daily-pnl", "-60000", "--json")
	require.NoError(t, err)

	var res struct {
		Positions []positionReport   `json:"positions"`
		Alerts    []models.RiskAlert `json:"alerts"`
	}
	require.NoError(t, json.Unmarshal([]byte(out), &res))
	require.Len(t, res.Positions, 2)
	assert.Equal(t, models.StateStopLoss, res.Positions[0].State)
	assert.Equal(t, models.StateOpen, res.Positions[1].State)
	assert.Equal(t, "NIFTY17800PE", res.Positions[1].Symbol)

	var kinds []models.AlertKind
	for _, a := range res.Alerts {
		kinds = append(kinds, a.Kind)
	}
	assert.Contains(t, kinds, models.AlertDailyLoss)

	out, err = execute(t, app, "risk", "check", "--positions", path, "--spot", "18000",
		"--date", "2023-02-01", "--daily-pnl", "-60000", "--strict")
	assert.ErrorIs(t, err, errors.ErrRiskLimit)
	var riskErr *errors.RiskError
	require.True(t, errors.As(err, &riskErr))
	assert.Equal(t, string(models.AlertDailyLoss), riskErr.Rule)
	assert.Equal(t, -60000.0, riskErr.Current)
	assert.Contains(t, out, "NIFTY17800PE")

	_, err = execute(t, app, "risk", "check", "--positions", path, "--spot", "18000",
		"--date", "2023-02-01", "--strict")
	assert.NotErrorIs(t, err, errors.ErrRiskLimit)

	bad := filepath.Join(t.TempDir(), "bad.json")
	require.NoError(t, os.WriteFile(bad, []byte(`[{"type":"call","strike":1,"expiry":"soon","quantity":1,"entry_price":1}]`), 0o644))
	_, err = execute(t, app, "risk", "check", "--positions", bad, "--spot", "18000")
	assert.ErrorIs(t, err, errors.ErrInvalidInput)
}

func TestDataImportAndList(t *testing.T) {
	app := newTestApp(t)
	csvPath := writeHistory(t, 40)

	out, err := execute(t, app, "data", "import", csvPath, "--symbol", "nifty", "--json")
	require.NoError(t, err)
	assert.Contains(t, out, `"bars": 40`)

	out, err = execute(t, app, "data", "list", "--json")
	require.NoError(t, err)
	var symbols []store.SymbolInfo
	require.NoError(t, json.Unmarshal([]byte(out), &symbols))
	require.Len(t, symbols, 1)
	assert.Equal(t, "NIFTY", symbols[0].Symbol)
	assert.Equal(t, "1day", symbols[0].Timeframe)
	assert.Equal(t, 40, symbols[0].Bars)
}

func TestBacktestRunSaveShowList(t *testing.T) {
	app := newTestApp(t)
	var logs bytes.Buffer
	app.Logger = zerolog.New(&logs)
	csvPath := writeHistory(t, 120)
	_, err := execute(t, app, "data", "import", csvPath)
	require.NoError(t, err)

	out, err := execute(t, app, "backtest", "run", "--from", "2023-02-01",
		"--strategies", "iron_condor", "--save", "--json")
	require.NoError(t, err)
	var run backtest.Run
	require.NoError(t, json.Unmarshal([]byte(out), &run))
	require.NotEmpty(t, run.ID)
	assert.Equal(t, []strategy.Kind{strategy.KindIronCondor}, run.Strategies)
	require.NotEmpty(t, run.EquityCurve)

	var pnl float64
	for _, tr := range run.Trades {
		pnl += tr.PnL
	}
	assert.InDelta(t, app.Config.Backtest.InitialCapital+pnl, run.Result.FinalEquity, 1e-6)
	assert.Contains(t, logs.String(), `"run_id":"`+run.ID+`"`)
	assert.Contains(t, logs.String(), "Backtest run saved")

	out, err = execute(t, app, "backtest", "list", "--json")
	require.NoError(t, err)
	var runs []store.RunSummary
	require.NoError(t, json.Unmarshal([]byte(out), &runs))
	require.Len(t, runs, 1)
	assert.Equal(t, run.ID, runs[0].ID)

	tradesPath := filepath.Join(t.TempDir(), "trades.csv")
	out, err = execute(t, app, "backtest", "show", run.ID, "--trades-csv", tradesPath)
	require.NoError(t, err)
	assert.Contains(t, out, run.ID)
	raw, err := os.ReadFile(tradesPath)
	require.NoError(t, err)
	if len(run.Trades) > 0 {
		assert.True(t, strings.HasPrefix(string(raw), "entry_date,"))
		assert.Equal(t, len(run.Trades)+1, strings.Count(string(raw), "\n"))
	}

	_, err = execute(t, app, "backtest", "show", "missing")
	assert.ErrorIs(t, err, errors.ErrDataNotFound)
}

func TestBacktestRun_CSVWithChart(t *testing.T) {
	app := newTestApp(t)
	out, err := execute(t, app, "backtest", "run", "--csv", writeHistory(t, 80), "--strategies", "butterfly")
	require.NoError(t, err)
	assert.Contains(t, out, "Performance")
	assert.Contains(t, out, "Max drawdown")
	assert.Contains(t, out, "█")
}

func TestBacktestRun_NoHistory(t *testing.T) {
	app := newTestApp(t)
	_, err := execute(t, app, "backtest", "run")
	assert.ErrorIs(t, err, errors.ErrDataGap)

	_, err = execute(t, app, "backtest", "run", "--strategies", "collar")
	assert.ErrorIs(t, err, errors.ErrUnknownStrategy)
}

func TestBacktestCompare(t *testing.T) {
	app := newTestApp(t)
	out, err := execute(t, app, "backtest", "compare", "--csv", writeHistory(t, 100),
		"--strategies", "iron_condor,butterfly", "--json")
	require.NoError(t, err)

	var ranked []backtest.Comparison
	require.NoError(t, json.Unmarshal([]byte(out), &ranked))
	require.Len(t, ranked, 2)
	assert.ElementsMatch(t, []string{"iron_condor", "butterfly"}, []string{ranked[0].Strategy, ranked[1].Strategy})
	assert.GreaterOrEqual(t, ranked[0].SharpeRatio, ranked[1].SharpeRatio)
}
