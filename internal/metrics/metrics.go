// Package metrics exposes Prometheus counters for pricing, backtests and risk checks.
package metrics

import (
	"io"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/common/expfmt"
)

const namespace = "optionslab"

// Collector owns a private registry so independent runs never share series.
// A nil *Collector is valid and records nothing.
type Collector struct {
	registry *prometheus.Registry

	pricingRequests *prometheus.CounterVec
	pricingErrors   *prometheus.CounterVec
	trades          *prometheus.CounterVec
	dayFaults       prometheus.Counter
	riskAlerts      *prometheus.CounterVec
	equity          prometheus.Gauge
}

// New creates a Collector with all series registered.
func New() *Collector {
	c := &Collector{
		registry: prometheus.NewRegistry(),
		pricingRequests: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "pricing_requests_total",
			Help:      "Option pricing requests by method.",
		}, []string{"method"}),
		pricingErrors: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "pricing_errors_total",
			Help:      "Option pricing requests rejected or failed, by method.",
		}, []string{"method"}),
		trades: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "backtest_trades_total",
			Help:      "Positions closed during backtests.",
		}, []string{"strategy", "reason"}),
		dayFaults: prometheus.NewCounter(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "backtest_day_faults_total",
			Help:      "Bars whose processing failed and was skipped.",
		}),
		riskAlerts: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "risk_alerts_total",
			Help:      "Risk alerts raised, by kind and severity.",
		}, []string{"kind", "severity"}),
		equity: prometheus.NewGauge(prometheus.GaugeOpts{
			Namespace: namespace,
			Name:      "backtest_equity",
			Help:      "Equity after the most recent simulated bar.",
		}),
	}
	c.registry.MustRegister(c.pricingRequests, c.pricingErrors, c.trades, c.dayFaults, c.riskAlerts, c.equity)
	return c
}

// Registry returns the underlying registry.
func (c *Collector) Registry() *prometheus.Registry {
	if c == nil {
		return nil
	}
	return c.registry
}

func (c *Collector) PricingRequest(method string) {
	if c == nil {
		return
	}
	c.pricingRequests.WithLabelValues(method).Inc()
}

func (c *Collector) PricingError(method string) {
	if c == nil {
		return
	}
	c.pricingErrors.WithLabelValues(method).Inc()
}

func (c *Collector) TradeClosed(strategy, reason string) {
	if c == nil {
		return
	}
	c.trades.WithLabelValues(strategy, reason).Inc()
}

func (c *Collector) DayFault() {
	if c == nil {
		return
	}
	c.dayFaults.Inc()
}

func (c *Collector) RiskAlert(kind, severity string) {
	if c == nil {
		return
	}
	c.riskAlerts.WithLabelValues(kind, severity).Inc()
}

func (c *Collector) SetEquity(v float64) {
	if c == nil {
		return
	}
	c.equity.Set(v)
}

// WriteText dumps every registered family in the Prometheus text format.
func (c *Collector) WriteText(w io.Writer) error {
	if c == nil {
		return nil
	}
	families, err := c.registry.Gather()
	if err != nil {
		return err
	}
	for _, mf := range families {
		if _, err := expfmt.MetricFamilyToText(w, mf); err != nil {
			return err
		}
	}
	return nil
}
