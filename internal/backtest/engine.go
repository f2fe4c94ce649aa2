package backtest

import (
	"context"
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/rs/zerolog"

	"nifty-options-lab/internal/errors"
	"nifty-options-lab/internal/logging"
	"nifty-options-lab/internal/metrics"
	"nifty-options-lab/internal/models"
	"nifty-options-lab/internal/pricing"
	"nifty-options-lab/internal/risk"
	"nifty-options-lab/internal/strategy"
	"nifty-options-lab/pkg/utils"
)

// Run is the complete output of one backtest.
type Run struct {
	ID          string                  `json:"id" yaml:"id"`
	Start       time.Time               `json:"start" yaml:"start"`
	End         time.Time               `json:"end" yaml:"end"`
	Strategies  []strategy.Kind         `json:"strategies" yaml:"strategies"`
	Config      Config                  `json:"config" yaml:"config"`
	Result      Result                  `json:"result" yaml:"result"`
	Trades      []models.Trade          `json:"trades" yaml:"trades"`
	EquityCurve []models.EquitySnapshot `json:"equity_curve" yaml:"equity_curve"`
	Alerts      []models.RiskAlert      `json:"alerts" yaml:"alerts"`
	Faults      int                     `json:"faults" yaml:"faults"`
}

// Engine runs day-stepped backtests. Each Run owns its own book, so one
// Engine may serve several runs at once.
type Engine struct {
	cfg       Config
	pricer    *pricing.Engine
	predictor strategy.Predictor
	surface   *pricing.Surface
	logger    zerolog.Logger
	metrics   *metrics.Collector
}

// Option configures an Engine.
type Option func(*Engine)

// WithLogger sets the engine logger.
func WithLogger(logger zerolog.Logger) Option {
	return func(e *Engine) {
		e.logger = logging.WithOperation(logger, "backtest")
	}
}

// WithMetrics attaches a metrics collector.
func WithMetrics(m *metrics.Collector) Option {
	return func(e *Engine) {
		e.metrics = m
	}
}

// WithPredictor lets an external model override the strategy rule table.
func WithPredictor(p strategy.Predictor) Option {
	return func(e *Engine) {
		e.predictor = p
	}
}

// WithPricer sets the pricing engine used to mark positions.
func WithPricer(p *pricing.Engine) Option {
	return func(e *Engine) {
		e.pricer = p
	}
}

// WithSurface prices each entry leg at the surface volatility for its strike
// and expiry instead of the realized volatility. The realized volatility
// still gates entries. An empty surface is ignored.
func WithSurface(surface *pricing.Surface) Option {
	return func(e *Engine) {
		e.surface = surface
	}
}

// NewEngine validates cfg and creates a backtest engine.
func NewEngine(cfg Config, opts ...Option) (*Engine, error) {
	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	e := &Engine{cfg: cfg, logger: zerolog.Nop()}
	for _, opt := range opts {
		opt(e)
	}
	if e.pricer == nil {
		e.pricer = pricing.NewEngine(pricing.DefaultConfig(), pricing.WithLogger(e.logger), pricing.WithMetrics(e.metrics))
	}
	return e, nil
}

// Config returns the engine configuration.
func (e *Engine) Config() Config {
	return e.cfg
}

// Run replays series over [start, end]. Bars before start only feed the
// volatility window. Allowed restricts the strategies that may be opened;
// empty allows all. A range without bars yields an empty run and no error.
// Cancellation is observed between days; the partial run is returned with
// the context error after the book is flattened.
func (e *Engine) Run(ctx context.Context, series models.Series, start, end time.Time, allowed []strategy.Kind) (*Run, error) {
	if !series.IsSorted() {
		return nil, errors.NewValidationError("series", len(series), "must be ascending by date")
	}
	kinds, err := normalizeAllowed(allowed)
	if err != nil {
		return nil, err
	}

	run := &Run{
		ID:          uuid.NewString(),
		Start:       start,
		End:         end,
		Strategies:  kinds,
		Config:      e.cfg,
		Trades:      []models.Trade{},
		EquityCurve: []models.EquitySnapshot{},
		Alerts:      []models.RiskAlert{},
	}
	logger := logging.WithRun(e.logger, run.ID)

	window := series.Between(start, end)
	if len(window) == 0 {
		logger.Warn().Time("start", start).Time("end", end).Msg("No bars in range")
		run.Result = Aggregate(nil, nil, e.cfg.RiskFreeRate)
		return run, nil
	}
	first := series.IndexOf(window[0].Timestamp)
	last := first + len(window) - 1

	sim := &simulation{
		engine:     e,
		cfg:        e.cfg,
		run:        run,
		logger:     logger,
		series:     series,
		closes:     series.Closes(),
		book:       risk.NewManager(e.cfg.RiskLimits(), risk.WithLogger(logger), risk.WithMetrics(e.metrics)),
		cash:       e.cfg.InitialCapital,
		prevEquity: e.cfg.InitialCapital,
	}

	logger.Info().
		Int("bars", len(window)).
		Time("start", window[0].Timestamp).
		Time("end", window[len(window)-1].Timestamp).
		Msg("Backtest started")

	var runErr error
	for i := first; i <= last; i++ {
		if err := ctx.Err(); err != nil {
			runErr = errors.Wrap(err, "backtest cancelled")
			break
		}
		if err := sim.step(i); err != nil {
			run.Faults++
			e.metrics.DayFault()
			logger.Error().Err(err).Msg("Day skipped")
		}
		sim.snapshot(series[i].Timestamp)
	}
	sim.finish()

	run.Result = Aggregate(run.Trades, run.EquityCurve, e.cfg.RiskFreeRate)
	logger.Info().
		Int("trades", run.Result.TotalTrades).
		Float64("total_return", run.Result.TotalReturn).
		Float64("max_drawdown", run.Result.MaxDrawdown).
		Int("faults", run.Faults).
		Msg("Backtest finished")
	return run, runErr
}

// choose picks the strategy for a new entry: the predictor's choice when it
// is allowed, else the rule table, else the first allowed strategy.
func (e *Engine) choose(f strategy.Features, allowed []strategy.Kind, logger zerolog.Logger) strategy.Kind {
	if e.predictor != nil {
		pred, err := e.predictor.Predict(f)
		switch {
		case err != nil:
			logger.Warn().Err(err).Msg("Predictor failed, using rule table")
		case containsKind(allowed, pred.Strategy):
			return pred.Strategy
		case pred.Volatility > 0:
			f.ImpliedVol = pred.Volatility
		}
	}
	if kind := strategy.Select(f); containsKind(allowed, kind) {
		return kind
	}
	return allowed[0]
}

func normalizeAllowed(allowed []strategy.Kind) ([]strategy.Kind, error) {
	if len(allowed) == 0 {
		return strategy.AllKinds(), nil
	}
	out := make([]strategy.Kind, 0, len(allowed))
	for _, k := range allowed {
		kind, err := strategy.ParseKind(string(k))
		if err != nil {
			return nil, err
		}
		if !containsKind(out, kind) {
			out = append(out, kind)
		}
	}
	return out, nil
}

func containsKind(kinds []strategy.Kind, k strategy.Kind) bool {
	for _, x := range kinds {
		if x == k {
			return true
		}
	}
	return false
}

// simulation is the mutable state of one run.
type simulation struct {
	engine     *Engine
	cfg        Config
	run        *Run
	logger     zerolog.Logger
	series     models.Series
	closes     []float64
	book       *risk.Manager
	marks      risk.Marks
	cash       float64
	prevEquity float64
}

// step processes bar i: mark, exits, entry, risk limits. Panics are returned
// as faults so the caller can carry on with the next day.
func (s *simulation) step(i int) (err error) {
	bar := s.series[i]
	day := bar.Timestamp.Format("2006-01-02")
	defer func() {
		if r := recover(); r != nil {
			err = &errors.DayFault{Day: day, Err: fmt.Errorf("panic: %v", r)}
		}
	}()

	// Order is mark → exits → entry → risk: exits act on the day's close and a
	// new entry is checked against the limits before the day is snapshotted.
	if err := s.markAll(bar); err != nil {
		return &errors.DayFault{Day: day, Err: err}
	}
	s.processExits(bar.Timestamp)
	if err := s.maybeEnter(i); err != nil {
		return &errors.DayFault{Day: day, Err: err}
	}
	s.checkRisk(bar.Timestamp)
	return nil
}

// markAll revalues every open position at the bar's close.
func (s *simulation) markAll(bar models.Candle) error {
	s.marks = risk.Marks{
		AsOf:          bar.Timestamp,
		Spot:          bar.Close,
		RiskFreeRate:  s.cfg.RiskFreeRate,
		DividendYield: s.cfg.DividendYield,
	}
	for _, p := range s.book.Positions() {
		q, err := s.engine.pricer.Price(s.marks.Params(p), p.Type, pricing.ClosedForm)
		if err != nil {
			return errors.Wrapf(err, "mark %s", p.Symbol)
		}
		p.CurrentPrice = q.Price
	}
	return nil
}

// processExits collects every position with an exit signal, then closes them.
func (s *simulation) processExits(asOf time.Time) {
	var closing []*models.Position
	for _, p := range s.book.Positions() {
		if signal := s.book.EvaluateExit(p, p.CurrentPrice, asOf); signal.Terminal() {
			p.State = signal
			closing = append(closing, p)
		}
	}
	for _, p := range closing {
		s.close(p, asOf, string(p.State))
	}
}

func (s *simulation) maybeEnter(i int) error {
	if s.book.Len() > 0 || s.cash < s.cfg.MinCapitalFloor || i < s.cfg.VolWindow {
		return nil
	}
	closes := s.closes[i-s.cfg.VolWindow : i+1]
	vol := RealizedVolatility(closes)
	if vol < s.cfg.VolatilityBand[0] || vol > s.cfg.VolatilityBand[1] {
		return nil
	}

	bar := s.series[i]
	features := strategy.Features{
		Spot:         bar.Close,
		RealizedVol:  vol,
		Trend:        trendOf(closes, s.cfg.TrendThreshold),
		DaysToExpiry: s.cfg.TargetDTE,
	}
	kind := s.engine.choose(features, s.run.Strategies, s.logger)

	strat, err := strategy.Build(kind, bar.Close, s.cfg.Strikes)
	if err != nil {
		return err
	}
	expiry := utils.ExpiryOnOrAfter(bar.Timestamp.AddDate(0, 0, s.cfg.TargetDTE))
	market := strategy.Market{
		Spot:          bar.Close,
		TimeToExpiry:  utils.DaysBetween(bar.Timestamp, expiry) / 365,
		RiskFreeRate:  s.cfg.RiskFreeRate,
		Volatility:    vol,
		DividendYield: s.cfg.DividendYield,
	}
	premiums, vols, err := s.legPremiums(strat, market)
	if err != nil {
		return err
	}
	net, err := strategy.NetPremium(strat, premiums)
	if err != nil {
		return err
	}
	_, maxLoss := strat.MaxProfitLoss(net)
	if maxLoss.Unbounded || maxLoss.Value <= 0 {
		s.logger.Debug().Str("strategy", string(kind)).Float64("net_premium", net).Msg("No bounded loss, skipping entry")
		return nil
	}
	lots := risk.FixedRiskLots(s.cash, s.cfg.RiskPerTradePct, maxLoss.Value*float64(s.cfg.LotSize), s.cfg.MaxLots)
	if lots == 0 {
		s.logger.Debug().Str("strategy", string(kind)).Float64("max_loss", maxLoss.Value).Msg("Risk budget too small for one lot")
		return nil
	}

	for j, leg := range strat.Legs() {
		p := &models.Position{
			ID:           uuid.NewString(),
			Symbol:       models.OptionSymbol(s.cfg.Underlying, leg.Strike, leg.Type),
			Type:         leg.Type,
			Strike:       leg.Strike,
			Expiry:       expiry,
			Direction:    leg.Direction,
			Quantity:     lots * leg.Weight,
			LotSize:      s.cfg.LotSize,
			EntryPrice:   premiums[j],
			CurrentPrice: premiums[j],
			Volatility:   vols[j],
			EntryTime:    bar.Timestamp,
			Strategy:     string(kind),
			State:        models.StateOpen,
		}
		p.EntryFees = s.cfg.FeePerLot * float64(p.Quantity)
		s.cash -= p.SignedUnits()*p.EntryPrice + p.EntryFees
		s.book.Add(p)
	}

	s.logger.Info().
		Str("strategy", string(kind)).
		Float64("spot", bar.Close).
		Float64("vol", vol).
		Int("lots", lots).
		Float64("net_premium", net).
		Time("expiry", expiry).
		Msg("Entered strategy")
	return nil
}

// legPremiums prices the legs of strat at entry and returns the volatility
// each leg was priced at. Positions keep that volatility for their marks.
func (s *simulation) legPremiums(strat strategy.Strategy, market strategy.Market) ([]float64, []float64, error) {
	legs := strat.Legs()
	vols := make([]float64, len(legs))
	surface := s.engine.surface
	if surface == nil || surface.Len() == 0 {
		for j := range vols {
			vols[j] = market.Volatility
		}
		premiums, err := strategy.LegPremiums(strat, market)
		return premiums, vols, err
	}

	premiums := make([]float64, len(legs))
	for j, leg := range legs {
		m := market
		m.Volatility = surface.Volatility(leg.Strike, market.TimeToExpiry)
		p := m.Params(leg.Strike)
		if err := pricing.Validate(p, leg.Type); err != nil {
			return nil, nil, err
		}
		premiums[j] = pricing.BlackScholes(p, leg.Type)
		vols[j] = m.Volatility
	}
	return premiums, vols, nil
}

// checkRisk runs the limit checks and flattens the book on a close_all alert.
func (s *simulation) checkRisk(asOf time.Time) {
	s.book.SetDailyPnL(s.equity() - s.prevEquity)
	alerts := s.book.CheckLimits(s.book.Positions(), s.marks)
	s.run.Alerts = append(s.run.Alerts, alerts...)
	for _, a := range alerts {
		if a.Action == models.ActionCloseAll {
			s.closeAll(asOf, models.ExitRiskLimit)
			return
		}
	}
}

// close books the exit of p at its current mark.
func (s *simulation) close(p *models.Position, date time.Time, reason string) {
	fee := s.cfg.FeePerLot * float64(p.Quantity)
	s.cash += p.SignedUnits()*p.CurrentPrice - fee

	fees := p.EntryFees + fee
	trade := models.Trade{
		EntryDate:    p.EntryTime,
		ExitDate:     date,
		Symbol:       p.Symbol,
		Strategy:     p.Strategy,
		Type:         p.Type,
		Strike:       p.Strike,
		Direction:    p.Direction,
		EntryPrice:   p.EntryPrice,
		ExitPrice:    p.CurrentPrice,
		Quantity:     p.Quantity,
		LotSize:      p.LotSize,
		Fees:         fees,
		PnL:          p.SignedUnits()*(p.CurrentPrice-p.EntryPrice) - fees,
		DurationDays: int(date.Sub(p.EntryTime).Hours() / 24),
		ExitReason:   reason,
		HoldDuration: date.Sub(p.EntryTime),
	}
	if p.EntryPrice > 0 {
		trade.ReturnPct = p.Direction.Sign() * (p.CurrentPrice - p.EntryPrice) / p.EntryPrice
	}

	if p.State.Terminal() {
		p.State = risk.Transition(p.State)
	} else {
		p.State = models.StateClosed
	}
	if err := s.book.Remove(p.ID); err != nil {
		s.logger.Error().Err(err).Msg("Closed position missing from book")
	}
	s.run.Trades = append(s.run.Trades, trade)
	s.engine.metrics.TradeClosed(trade.Strategy, reason)
	logging.LogTrade(s.logger, trade.Symbol, trade.Strategy, reason, trade.Quantity, trade.PnL)
}

func (s *simulation) closeAll(date time.Time, reason string) {
	for _, p := range s.book.Positions() {
		s.close(p, date, reason)
	}
}

func (s *simulation) markValue() float64 {
	var mv float64
	for _, p := range s.book.Positions() {
		mv += p.MarketValue()
	}
	return mv
}

func (s *simulation) equity() float64 {
	return s.cash + s.markValue()
}

func (s *simulation) snapshot(date time.Time) {
	snap := s.currentSnapshot(date)
	s.run.EquityCurve = append(s.run.EquityCurve, snap)
	s.prevEquity = snap.Equity
	s.engine.metrics.SetEquity(snap.Equity)
}

func (s *simulation) currentSnapshot(date time.Time) models.EquitySnapshot {
	mv := s.markValue()
	return models.EquitySnapshot{
		Date:          date,
		Capital:       s.cash,
		MarkValue:     mv,
		Equity:        s.cash + mv,
		OpenPositions: s.book.Len(),
	}
}

// finish force-closes what is still open at the last marks and restates the
// final snapshot.
func (s *simulation) finish() {
	n := len(s.run.EquityCurve)
	if s.book.Len() == 0 || n == 0 {
		return
	}
	date := s.run.EquityCurve[n-1].Date
	s.closeAll(date, models.ExitEndOfRun)
	s.run.EquityCurve[n-1] = s.currentSnapshot(date)
	s.engine.metrics.SetEquity(s.run.EquityCurve[n-1].Equity)
}
