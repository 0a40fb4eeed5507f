// Package obs exposes the engine's Prometheus metrics and the HTTP endpoint
// that serves them.
package obs

import (
	"net/http"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"github.com/yanun0323/logs"
)

// Metrics groups the engine's instruments behind one registry so tests can
// run with an isolated instance.
type Metrics struct {
	registry *prometheus.Registry

	Signals       *prometheus.CounterVec // signal decisions by strategy and action
	Orders        *prometheus.CounterVec // orders by mode, side and status
	Blocks        *prometheus.CounterVec // blocked orders by check
	BrokerErrors  *prometheus.CounterVec // broker failures by kind
	Reconciles    *prometheus.CounterVec // reconciliation outcomes by reason
	EquityQuote   prometheus.Gauge
	DrawdownPct   prometheus.Gauge
	CycleDuration prometheus.Histogram
	CandlesPlayed prometheus.Counter
}

// NewMetrics builds and registers all instruments on a fresh registry.
func NewMetrics() *Metrics {
	m := &Metrics{
		registry: prometheus.NewRegistry(),
		Signals: prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "trader_signals_total",
			Help: "Signal decisions by strategy and action",
		}, []string{"strategy", "action"}),
		Orders: prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "trader_orders_total",
			Help: "Orders by mode, side and terminal status",
		}, []string{"mode", "side", "status"}),
		Blocks: prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "trader_blocked_orders_total",
			Help: "Orders denied before reaching a broker, by check",
		}, []string{"check"}),
		BrokerErrors: prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "trader_broker_errors_total",
			Help: "Broker call failures by classified kind",
		}, []string{"kind"}),
		Reconciles: prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "trader_reconciles_total",
			Help: "Reconciliation outcomes by reason",
		}, []string{"reason"}),
		EquityQuote: prometheus.NewGauge(prometheus.GaugeOpts{
			Name: "trader_equity_quote",
			Help: "Current equity in the quote currency",
		}),
		DrawdownPct: prometheus.NewGauge(prometheus.GaugeOpts{
			Name: "trader_drawdown_pct",
			Help: "Drawdown from the session peak equity, negative or zero",
		}),
		CycleDuration: prometheus.NewHistogram(prometheus.HistogramOpts{
			Name:    "trader_cycle_duration_seconds",
			Help:    "Wall time of one decision cycle",
			Buckets: prometheus.ExponentialBuckets(0.01, 2, 12),
		}),
		CandlesPlayed: prometheus.NewCounter(prometheus.CounterOpts{
			Name: "trader_candles_played_total",
			Help: "Candles consumed by decision cycles",
		}),
	}
	m.registry.MustRegister(
		m.Signals, m.Orders, m.Blocks, m.BrokerErrors, m.Reconciles,
		m.EquityQuote, m.DrawdownPct, m.CycleDuration, m.CandlesPlayed,
	)
	return m
}

// Handler returns the exposition handler for this registry.
func (m *Metrics) Handler() http.Handler {
	return promhttp.HandlerFor(m.registry, promhttp.HandlerOpts{})
}

// Serve exposes /metrics on addr in a background goroutine. A listen failure
// is logged, not fatal: metrics are optional.
func (m *Metrics) Serve(addr string) {
	if addr == "" {
		return
	}
	mux := http.NewServeMux()
	mux.Handle("/metrics", m.Handler())
	go func() {
		logs.Infof("metrics listening on %s", addr)
		if err := http.ListenAndServe(addr, mux); err != nil {
			logs.Errorf("metrics server: %+v", err)
		}
	}()
}
