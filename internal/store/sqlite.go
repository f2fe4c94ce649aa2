package store

import (
	"context"
	"database/sql"
	"encoding/json"
	"fmt"
	"strings"
	"time"

	"github.com/mattn/go-sqlite3"
	"github.com/shopspring/decimal"

	"nifty-options-lab/internal/errors"
	"nifty-options-lab/internal/logging"
	"nifty-options-lab/internal/models"
)

// SQLiteStore implements DataStore using SQLite.
type SQLiteStore struct {
	db *sql.DB
}

// NewSQLiteStore opens (creating if needed) the database at dbPath.
func NewSQLiteStore(dbPath string) (*SQLiteStore, error) {
	db, err := sql.Open("sqlite3", dbPath+"?_journal_mode=WAL&_busy_timeout=5000&_foreign_keys=on")
	if err != nil {
		return nil, dbError("open database", err)
	}

	db.SetMaxOpenConns(10)
	db.SetMaxIdleConns(5)
	db.SetConnMaxLifetime(time.Hour)

	store := &SQLiteStore{db: db}
	if err := store.initSchema(); err != nil {
		db.Close()
		return nil, dbError("initialize schema", err)
	}
	return store, nil
}

func (s *SQLiteStore) initSchema() error {
	schema := `
	CREATE TABLE IF NOT EXISTS candles (
		id INTEGER PRIMARY KEY AUTOINCREMENT,
		symbol TEXT NOT NULL,
		timeframe TEXT NOT NULL,
		timestamp DATETIME NOT NULL,
		open REAL NOT NULL,
		high REAL NOT NULL,
		low REAL NOT NULL,
		close REAL NOT NULL,
		volume INTEGER NOT NULL,
		created_at DATETIME DEFAULT CURRENT_TIMESTAMP,
		UNIQUE(symbol, timeframe, timestamp)
	);

	CREATE TABLE IF NOT EXISTS backtest_runs (
		id TEXT PRIMARY KEY,
		created_at DATETIME NOT NULL,
		underlying TEXT NOT NULL,
		start_date DATETIME,
		end_date DATETIME,
		strategies TEXT NOT NULL,
		total_return REAL NOT NULL,
		sharpe_ratio REAL NOT NULL,
		max_drawdown REAL NOT NULL,
		total_trades INTEGER NOT NULL,
		faults INTEGER NOT NULL DEFAULT 0,
		config TEXT NOT NULL,
		result TEXT NOT NULL
	);

	CREATE TABLE IF NOT EXISTS backtest_trades (
		run_id TEXT NOT NULL,
		seq INTEGER NOT NULL,
		entry_date DATETIME NOT NULL,
		exit_date DATETIME NOT NULL,
		symbol TEXT NOT NULL,
		strategy TEXT NOT NULL,
		option_type TEXT NOT NULL,
		strike REAL NOT NULL,
		direction INTEGER NOT NULL,
		entry_price REAL NOT NULL,
		exit_price REAL NOT NULL,
		quantity INTEGER NOT NULL,
		lot_size INTEGER NOT NULL,
		fees REAL NOT NULL,
		pnl REAL NOT NULL,
		return_pct REAL NOT NULL,
		duration_days INTEGER NOT NULL,
		exit_reason TEXT NOT NULL,
		PRIMARY KEY (run_id, seq),
		FOREIGN KEY (run_id) REFERENCES backtest_runs(id) ON DELETE CASCADE
	);

	CREATE TABLE IF NOT EXISTS backtest_equity (
		run_id TEXT NOT NULL,
		seq INTEGER NOT NULL,
		date DATETIME NOT NULL,
		capital REAL NOT NULL,
		mark_value REAL NOT NULL,
		equity REAL NOT NULL,
		open_positions INTEGER NOT NULL,
		PRIMARY KEY (run_id, seq),
		FOREIGN KEY (run_id) REFERENCES backtest_runs(id) ON DELETE CASCADE
	);

	CREATE INDEX IF NOT EXISTS idx_candles_symbol_tf ON candles(symbol, timeframe, timestamp);
	CREATE INDEX IF NOT EXISTS idx_runs_created ON backtest_runs(created_at);
	`
	_, err := s.db.Exec(schema)
	return err
}

// dbError tags a driver failure with ErrDatabaseError.
func dbError(op string, err error) error {
	return fmt.Errorf("%w: failed to %s: %w", errors.ErrDatabaseError, op, err)
}

// Close closes the database connection.
func (s *SQLiteStore) Close() error {
	return s.db.Close()
}

// money rounds a rupee amount to paise.
func money(v float64) float64 {
	return decimal.NewFromFloat(v).Round(2).InexactFloat64()
}

func parseTimestamp(v string) (time.Time, error) {
	v = strings.TrimSuffix(v, "Z")
	for _, layout := range sqlite3.SQLiteTimestampFormats {
		if t, err := time.ParseInLocation(layout, v, time.UTC); err == nil {
			return t, nil
		}
	}
	return time.Time{}, fmt.Errorf("unrecognised timestamp %q", v)
}

// ============================================================================
// Candles Methods
// ============================================================================

// SaveCandles upserts candles for symbol and timeframe.
func (s *SQLiteStore) SaveCandles(ctx context.Context, symbol, timeframe string, candles []models.Candle) error {
	if len(candles) == 0 {
		return nil
	}

	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return dbError("begin transaction", err)
	}
	defer tx.Rollback()

	stmt, err := tx.PrepareContext(ctx, `
		INSERT OR REPLACE INTO candles (symbol, timeframe, timestamp, open, high, low, close, volume)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?)
	`)
	if err != nil {
		return dbError("prepare statement", err)
	}
	defer stmt.Close()

	for _, c := range candles {
		_, err := stmt.ExecContext(ctx, symbol, timeframe, c.Timestamp.UTC(), c.Open, c.High, c.Low, c.Close, c.Volume)
		if err != nil {
			return dbError("insert candle", err)
		}
	}

	if err := tx.Commit(); err != nil {
		return dbError("commit transaction", err)
	}
	logger := logging.FromContext(ctx)
	logger.Debug().
		Str("symbol", symbol).
		Str("timeframe", timeframe).
		Int("bars", len(candles)).
		Msg("Candles saved")
	return nil
}

// GetCandles returns the candles in [from, to] in ascending order. A zero
// bound leaves that side open.
func (s *SQLiteStore) GetCandles(ctx context.Context, symbol, timeframe string, from, to time.Time) (models.Series, error) {
	query := `
		SELECT timestamp, open, high, low, close, volume
		FROM candles
		WHERE symbol = ? AND timeframe = ?`
	args := []interface{}{symbol, timeframe}
	if !from.IsZero() {
		query += " AND timestamp >= ?"
		args = append(args, from.UTC())
	}
	if !to.IsZero() {
		query += " AND timestamp <= ?"
		args = append(args, to.UTC())
	}
	query += " ORDER BY timestamp ASC"

	rows, err := s.db.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, dbError("query candles", err)
	}
	defer rows.Close()

	var candles models.Series
	for rows.Next() {
		var c models.Candle
		if err := rows.Scan(&c.Timestamp, &c.Open, &c.High, &c.Low, &c.Close, &c.Volume); err != nil {
			return nil, dbError("scan candle", err)
		}
		candles = append(candles, c)
	}
	if err := rows.Err(); err != nil {
		return nil, dbError("iterate candles", err)
	}
	return candles, nil
}

// ListSymbols summarises the stored candle history.
func (s *SQLiteStore) ListSymbols(ctx context.Context) ([]SymbolInfo, error) {
	rows, err := s.db.QueryContext(ctx, `
		SELECT symbol, timeframe, COUNT(*), MIN(timestamp), MAX(timestamp)
		FROM candles
		GROUP BY symbol, timeframe
		ORDER BY symbol, timeframe
	`)
	if err != nil {
		return nil, dbError("query symbols", err)
	}
	defer rows.Close()

	var out []SymbolInfo
	for rows.Next() {
		var (
			info        SymbolInfo
			first, last string
		)
		if err := rows.Scan(&info.Symbol, &info.Timeframe, &info.Bars, &first, &last); err != nil {
			return nil, dbError("scan symbol", err)
		}
		if info.First, err = parseTimestamp(first); err != nil {
			return nil, err
		}
		if info.Last, err = parseTimestamp(last); err != nil {
			return nil, err
		}
		out = append(out, info)
	}
	return out, rows.Err()
}

// ============================================================================
// Backtest Run Methods
// ============================================================================

// SaveRun stores a run with its trades and equity curve in one transaction.
// Saving an existing ID replaces it.
func (s *SQLiteStore) SaveRun(ctx context.Context, rec *RunRecord) error {
	if rec == nil || rec.ID == "" {
		return errors.NewValidationError("run.id", "", "is required")
	}
	cfg, err := json.Marshal(rec.Config)
	if err != nil {
		return fmt.Errorf("failed to encode config: %w", err)
	}
	result, err := json.Marshal(rec.Result)
	if err != nil {
		return fmt.Errorf("failed to encode result: %w", err)
	}

	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return dbError("begin transaction", err)
	}
	defer tx.Rollback()

	if _, err := tx.ExecContext(ctx, `DELETE FROM backtest_runs WHERE id = ?`, rec.ID); err != nil {
		return dbError("replace run", err)
	}
	_, err = tx.ExecContext(ctx, `
		INSERT INTO backtest_runs (id, created_at, underlying, start_date, end_date, strategies,
			total_return, sharpe_ratio, max_drawdown, total_trades, faults, config, result)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)
	`, rec.ID, rec.CreatedAt.UTC(), rec.Underlying, rec.Start.UTC(), rec.End.UTC(), strings.Join(rec.Strategies, ","),
		rec.Result.TotalReturn, rec.Result.SharpeRatio, rec.Result.MaxDrawdown, rec.Result.TotalTrades, rec.Faults,
		string(cfg), string(result))
	if err != nil {
		return dbError("insert run", err)
	}

	tradeStmt, err := tx.PrepareContext(ctx, `
		INSERT INTO backtest_trades (run_id, seq, entry_date, exit_date, symbol, strategy, option_type, strike,
			direction, entry_price, exit_price, quantity, lot_size, fees, pnl, return_pct, duration_days, exit_reason)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)
	`)
	if err != nil {
		return dbError("prepare statement", err)
	}
	defer tradeStmt.Close()
	for i, t := range rec.Trades {
		_, err := tradeStmt.ExecContext(ctx, rec.ID, i, t.EntryDate.UTC(), t.ExitDate.UTC(), t.Symbol, t.Strategy,
			string(t.Type), t.Strike, int(t.Direction), t.EntryPrice, t.ExitPrice, t.Quantity, t.LotSize,
			money(t.Fees), money(t.PnL), t.ReturnPct, t.DurationDays, t.ExitReason)
		if err != nil {
			return dbError("insert trade", err)
		}
	}

	equityStmt, err := tx.PrepareContext(ctx, `
		INSERT INTO backtest_equity (run_id, seq, date, capital, mark_value, equity, open_positions)
		VALUES (?, ?, ?, ?, ?, ?, ?)
	`)
	if err != nil {
		return dbError("prepare statement", err)
	}
	defer equityStmt.Close()
	for i, e := range rec.EquityCurve {
		_, err := equityStmt.ExecContext(ctx, rec.ID, i, e.Date.UTC(), money(e.Capital), money(e.MarkValue),
			money(e.Equity), e.OpenPositions)
		if err != nil {
			return dbError("insert equity point", err)
		}
	}

	if err := tx.Commit(); err != nil {
		return dbError("commit transaction", err)
	}
	logger := logging.FromContext(ctx)
	logger.Info().
		Str("run_id", rec.ID).
		Int("trades", len(rec.Trades)).
		Int("equity_points", len(rec.EquityCurve)).
		Msg("Backtest run saved")
	return nil
}

// GetRun loads a run with its trades and equity curve.
func (s *SQLiteStore) GetRun(ctx context.Context, id string) (*RunRecord, error) {
	var (
		rec         RunRecord
		strategies  string
		cfg, result string
		start, end  sql.NullTime
	)
	err := s.db.QueryRowContext(ctx, `
		SELECT id, created_at, underlying, start_date, end_date, strategies, faults, config, result
		FROM backtest_runs WHERE id = ?
	`, id).Scan(&rec.ID, &rec.CreatedAt, &rec.Underlying, &start, &end, &strategies, &rec.Faults, &cfg, &result)
	if err == sql.ErrNoRows {
		return nil, fmt.Errorf("%w: run %s", errors.ErrDataNotFound, id)
	}
	if err != nil {
		return nil, dbError("query run", err)
	}
	rec.Start, rec.End = start.Time, end.Time
	rec.Strategies = splitList(strategies)
	if err := json.Unmarshal([]byte(cfg), &rec.Config); err != nil {
		return nil, fmt.Errorf("failed to decode config: %w", err)
	}
	if err := json.Unmarshal([]byte(result), &rec.Result); err != nil {
		return nil, fmt.Errorf("failed to decode result: %w", err)
	}

	if rec.Trades, err = s.runTrades(ctx, id); err != nil {
		return nil, err
	}
	if rec.EquityCurve, err = s.runEquity(ctx, id); err != nil {
		return nil, err
	}
	return &rec, nil
}

func (s *SQLiteStore) runTrades(ctx context.Context, id string) ([]models.Trade, error) {
	rows, err := s.db.QueryContext(ctx, `
		SELECT entry_date, exit_date, symbol, strategy, option_type, strike, direction, entry_price, exit_price,
			quantity, lot_size, fees, pnl, return_pct, duration_days, exit_reason
		FROM backtest_trades WHERE run_id = ? ORDER BY seq
	`, id)
	if err != nil {
		return nil, dbError("query trades", err)
	}
	defer rows.Close()

	trades := []models.Trade{}
	for rows.Next() {
		var (
			t         models.Trade
			optType   string
			direction int
		)
		if err := rows.Scan(&t.EntryDate, &t.ExitDate, &t.Symbol, &t.Strategy, &optType, &t.Strike, &direction,
			&t.EntryPrice, &t.ExitPrice, &t.Quantity, &t.LotSize, &t.Fees, &t.PnL, &t.ReturnPct,
			&t.DurationDays, &t.ExitReason); err != nil {
			return nil, dbError("scan trade", err)
		}
		t.Type = models.OptionType(optType)
		t.Direction = models.Direction(direction)
		t.HoldDuration = t.ExitDate.Sub(t.EntryDate)
		trades = append(trades, t)
	}
	return trades, rows.Err()
}

func (s *SQLiteStore) runEquity(ctx context.Context, id string) ([]models.EquitySnapshot, error) {
	rows, err := s.db.QueryContext(ctx, `
		SELECT date, capital, mark_value, equity, open_positions
		FROM backtest_equity WHERE run_id = ? ORDER BY seq
	`, id)
	if err != nil {
		return nil, dbError("query equity curve", err)
	}
	defer rows.Close()

	curve := []models.EquitySnapshot{}
	for rows.Next() {
		var e models.EquitySnapshot
		if err := rows.Scan(&e.Date, &e.Capital, &e.MarkValue, &e.Equity, &e.OpenPositions); err != nil {
			return nil, dbError("scan equity point", err)
		}
		curve = append(curve, e)
	}
	return curve, rows.Err()
}

// ListRuns returns run summaries, newest first.
func (s *SQLiteStore) ListRuns(ctx context.Context, filter RunFilter) ([]RunSummary, error) {
	query := `
		SELECT id, created_at, underlying, start_date, end_date, strategies,
			total_return, sharpe_ratio, max_drawdown, total_trades
		FROM backtest_runs WHERE 1=1`
	var args []interface{}
	if filter.Underlying != "" {
		query += " AND underlying = ?"
		args = append(args, filter.Underlying)
	}
	if !filter.Since.IsZero() {
		query += " AND created_at >= ?"
		args = append(args, filter.Since.UTC())
	}
	query += " ORDER BY created_at DESC, id"
	if filter.Limit > 0 {
		query += fmt.Sprintf(" LIMIT %d", filter.Limit)
	}

	rows, err := s.db.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, dbError("query runs", err)
	}
	defer rows.Close()

	var out []RunSummary
	for rows.Next() {
		var (
			r          RunSummary
			start, end sql.NullTime
			strategies string
		)
		if err := rows.Scan(&r.ID, &r.CreatedAt, &r.Underlying, &start, &end, &strategies,
			&r.TotalReturn, &r.SharpeRatio, &r.MaxDrawdown, &r.TotalTrades); err != nil {
			return nil, dbError("scan run", err)
		}
		r.Start, r.End = start.Time, end.Time
		r.Strategies = splitList(strategies)
		out = append(out, r)
	}
	return out, rows.Err()
}

func splitList(s string) []string {
	if s == "" {
		return nil
	}
	return strings.Split(s, ",")
}
