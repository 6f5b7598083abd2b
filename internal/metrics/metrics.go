// Package metrics records rebalancer activity as Prometheus metrics.
package metrics

import (
	"net/http"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/collectors"
	"github.com/prometheus/client_golang/prometheus/promauto"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

// Recorder holds the rebalancer's Prometheus collectors.
// A nil *Recorder is valid and records nothing.
type Recorder struct {
	registry *prometheus.Registry

	cycles         *prometheus.CounterVec
	cycleDuration  prometheus.Histogram
	ordersTotal    *prometheus.CounterVec
	orderStatuses  *prometheus.CounterVec
	priceLookups   *prometheus.CounterVec
	targetSymbols  prometheus.Gauge
	portfolioValue prometheus.Gauge
	httpRequests   *prometheus.CounterVec
}

// New creates a recorder on its own registry
func New() *Recorder {
	reg := prometheus.NewRegistry()
	reg.MustRegister(
		collectors.NewGoCollector(),
		collectors.NewProcessCollector(collectors.ProcessCollectorOpts{}),
	)
	factory := promauto.With(reg)

	return &Recorder{
		registry: reg,
		cycles: factory.NewCounterVec(
			prometheus.CounterOpts{
				Name: "rebalancer_cycles_total",
				Help: "Total number of rebalance cycles by outcome",
			},
			[]string{"outcome"},
		),
		cycleDuration: factory.NewHistogram(
			prometheus.HistogramOpts{
				Name:    "rebalancer_cycle_duration_seconds",
				Help:    "Duration of rebalance cycles in seconds",
				Buckets: []float64{0.5, 1, 2.5, 5, 10, 30, 60, 120},
			},
		),
		ordersTotal: factory.NewCounterVec(
			prometheus.CounterOpts{
				Name: "rebalancer_orders_submitted_total",
				Help: "Total number of orders submitted by action",
			},
			[]string{"action"},
		),
		orderStatuses: factory.NewCounterVec(
			prometheus.CounterOpts{
				Name: "rebalancer_order_terminal_total",
				Help: "Total number of orders reaching a final status",
			},
			[]string{"status"},
		),
		priceLookups: factory.NewCounterVec(
			prometheus.CounterOpts{
				Name: "rebalancer_price_lookups_total",
				Help: "Total number of price lookups by result",
			},
			[]string{"result"},
		),
		targetSymbols: factory.NewGauge(
			prometheus.GaugeOpts{
				Name: "rebalancer_target_symbols",
				Help: "Number of symbols in the latest target allocation",
			},
		),
		portfolioValue: factory.NewGauge(
			prometheus.GaugeOpts{
				Name: "rebalancer_portfolio_market_value",
				Help: "Total market value of the latest position snapshot",
			},
		),
		httpRequests: factory.NewCounterVec(
			prometheus.CounterOpts{
				Name: "rebalancer_http_requests_total",
				Help: "Total number of HTTP requests",
			},
			[]string{"method", "status"},
		),
	}
}

// Registry returns the underlying registry
func (r *Recorder) Registry() *prometheus.Registry {
	if r == nil {
		return nil
	}
	return r.registry
}

// Handler serves the registry in the Prometheus exposition format
func (r *Recorder) Handler() http.Handler {
	if r == nil {
		return http.NotFoundHandler()
	}
	return promhttp.HandlerFor(r.registry, promhttp.HandlerOpts{})
}

// RecordCycle records one finished cycle
func (r *Recorder) RecordCycle(outcome string, d time.Duration) {
	if r == nil {
		return
	}
	r.cycles.WithLabelValues(outcome).Inc()
	r.cycleDuration.Observe(d.Seconds())
}

// RecordOrderSubmitted records one submitted order
func (r *Recorder) RecordOrderSubmitted(action string) {
	if r == nil {
		return
	}
	r.ordersTotal.WithLabelValues(action).Inc()
}

// RecordOrderTerminal records an order reaching a final status, including abandoned
func (r *Recorder) RecordOrderTerminal(status string) {
	if r == nil {
		return
	}
	r.orderStatuses.WithLabelValues(status).Inc()
}

// RecordPriceLookup records a price lookup result ("hit", "miss", "error")
func (r *Recorder) RecordPriceLookup(result string) {
	if r == nil {
		return
	}
	r.priceLookups.WithLabelValues(result).Inc()
}

// SetTargetSymbols records the size of the latest target allocation
func (r *Recorder) SetTargetSymbols(n int) {
	if r == nil {
		return
	}
	r.targetSymbols.Set(float64(n))
}

// SetPortfolioValue records the latest total market value
func (r *Recorder) SetPortfolioValue(v float64) {
	if r == nil {
		return
	}
	r.portfolioValue.Set(v)
}

// RecordHTTPRequest records one served HTTP request
func (r *Recorder) RecordHTTPRequest(method string, status int) {
	if r == nil {
		return
	}
	r.httpRequests.WithLabelValues(method, statusClass(status)).Inc()
}

func statusClass(status int) string {
	switch {
	case status >= 500:
		return "5xx"
	case status >= 400:
		return "4xx"
	case status >= 300:
		return "3xx"
	default:
		return "2xx"
	}
}
