// Package pricing values European options on a single underlying.
package pricing

import (
	"fmt"
	"math"
	"strings"
	"time"

	"github.com/rs/zerolog"

	"nifty-options-lab/internal/errors"
	"nifty-options-lab/internal/logging"
	"nifty-options-lab/internal/metrics"
	"nifty-options-lab/internal/models"
)

// Method selects the numerical pricing method.
type Method string

const (
	ClosedForm Method = "closed_form"
	Lattice    Method = "lattice"
	Simulation Method = "simulation"
)

// ParseMethod accepts the method names plus the short aliases bs, binomial and mc.
func ParseMethod(s string) (Method, error) {
	switch strings.ToLower(strings.TrimSpace(s)) {
	case "closed_form", "bs", "black_scholes":
		return ClosedForm, nil
	case "lattice", "binomial", "crr":
		return Lattice, nil
	case "simulation", "mc", "monte_carlo":
		return Simulation, nil
	}
	return "", errors.NewValidationError("method", s, "must be closed_form, lattice or simulation")
}

// MinTick is the smallest price the closed form will return for a live option.
const MinTick = 0.05

const (
	DefaultLatticeSteps = 100
	DefaultPaths        = 100_000
	DefaultSeed         = 42
)

// Config controls the numerical methods.
type Config struct {
	LatticeSteps int    `mapstructure:"lattice_steps"`
	Paths        int    `mapstructure:"mc_paths"`
	Seed         uint64 `mapstructure:"mc_seed"`
	Workers      int    `mapstructure:"mc_workers"`
}

// DefaultConfig returns the default pricing configuration.
func DefaultConfig() Config {
	return Config{
		LatticeSteps: DefaultLatticeSteps,
		Paths:        DefaultPaths,
		Seed:         DefaultSeed,
		Workers:      4,
	}
}

// Quote is the result of one pricing call. Greeks are set by the closed form,
// the standard error by the simulation.
type Quote struct {
	Method      Method               `json:"method" yaml:"method"`
	Price       float64              `json:"price" yaml:"price"`
	Greeks      *models.OptionGreeks `json:"greeks,omitempty" yaml:"greeks,omitempty"`
	StdError    float64              `json:"std_error,omitempty" yaml:"std_error,omitempty"`
	HasStdError bool                 `json:"-" yaml:"-"`
}

// Engine prices options with any of the three methods. It holds no mutable
// state and is safe for concurrent use.
type Engine struct {
	cfg     Config
	logger  zerolog.Logger
	metrics *metrics.Collector
}

// Option configures an Engine.
type Option func(*Engine)

// WithLogger sets the engine logger.
func WithLogger(logger zerolog.Logger) Option {
	return func(e *Engine) {
		e.logger = logging.WithOperation(logger, "pricing")
	}
}

// WithMetrics attaches a metrics collector.
func WithMetrics(m *metrics.Collector) Option {
	return func(e *Engine) {
		e.metrics = m
	}
}

// NewEngine creates a pricing engine. Zero config fields take their defaults.
func NewEngine(cfg Config, opts ...Option) *Engine {
	def := DefaultConfig()
	if cfg.LatticeSteps <= 0 {
		cfg.LatticeSteps = def.LatticeSteps
	}
	if cfg.Paths <= 0 {
		cfg.Paths = def.Paths
	}
	if cfg.Workers <= 0 {
		cfg.Workers = 1
	}
	e := &Engine{cfg: cfg, logger: zerolog.Nop()}
	for _, opt := range opts {
		opt(e)
	}
	return e
}

// Config returns the effective configuration.
func (e *Engine) Config() Config {
	return e.cfg
}

// Price values one option with the requested method.
func (e *Engine) Price(params models.OptionParams, optType models.OptionType, method Method) (q Quote, err error) {
	start := time.Now()
	e.metrics.PricingRequest(string(method))
	defer func() {
		if r := recover(); r != nil {
			err = errors.NewPricingError(string(method), "internal failure", fmt.Errorf("%v", r))
		}
		if err != nil {
			e.metrics.PricingError(string(method))
		}
		logging.LogPricing(e.logger, string(method), string(optType), q.Price, time.Since(start), err)
	}()

	if err := Validate(params, optType); err != nil {
		return Quote{}, err
	}

	switch method {
	case ClosedForm:
		g := BlackScholesGreeks(params, optType)
		return Quote{Method: method, Price: BlackScholes(params, optType), Greeks: &g}, nil
	case Lattice:
		price, err := Binomial(params, optType, e.cfg.LatticeSteps)
		if err != nil {
			return Quote{}, err
		}
		return Quote{Method: method, Price: price}, nil
	case Simulation:
		res := MonteCarlo(params, optType, SimulationConfig{
			Paths:   e.cfg.Paths,
			Seed:    e.cfg.Seed,
			Workers: e.cfg.Workers,
		})
		return Quote{Method: method, Price: res.Price, StdError: res.StdError, HasStdError: true}, nil
	}
	return Quote{}, errors.NewValidationError("method", method, "unknown pricing method")
}

// Validate rejects parameters none of the methods can price.
func Validate(p models.OptionParams, optType models.OptionType) error {
	if optType != models.Call && optType != models.Put {
		return errors.NewValidationError("option_type", optType, "must be call or put")
	}
	checks := []struct {
		field string
		value float64
	}{
		{"spot", p.Spot},
		{"strike", p.Strike},
		{"volatility", p.Volatility},
	}
	for _, c := range checks {
		if math.IsNaN(c.value) || math.IsInf(c.value, 0) || c.value <= 0 {
			return errors.NewValidationError(c.field, c.value, "must be positive and finite")
		}
	}
	if math.IsNaN(p.TimeToExpiry) || math.IsInf(p.TimeToExpiry, 0) {
		return errors.NewValidationError("time_to_expiry", p.TimeToExpiry, "must be finite")
	}
	if math.IsNaN(p.RiskFreeRate) || math.IsNaN(p.DividendYield) {
		return errors.NewValidationError("rates", p.RiskFreeRate, "must be numbers")
	}
	return nil
}
