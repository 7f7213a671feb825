// Package metrics exposes engine counters and latency distributions to
// Prometheus. Instrumentation is optional; the engine runs identically
// without it.
package metrics

import (
	"net/http"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

type EngineMetrics struct {
	registry *prometheus.Registry

	ordersSubmitted     prometheus.Counter
	fillsTotal          prometheus.Counter
	volumeTraded        prometheus.Counter
	selfTradesPrevented prometheus.Counter
	submitLatency       prometheus.Histogram
}

func New() *EngineMetrics {
	registry := prometheus.NewRegistry()
	factory := promauto.With(registry)

	return &EngineMetrics{
		registry: registry,
		ordersSubmitted: factory.NewCounter(prometheus.CounterOpts{
			Name: "matchbook_orders_submitted_total",
			Help: "Orders submitted to the matching engine.",
		}),
		fillsTotal: factory.NewCounter(prometheus.CounterOpts{
			Name: "matchbook_fills_total",
			Help: "Fills routed with account attribution.",
		}),
		volumeTraded: factory.NewCounter(prometheus.CounterOpts{
			Name: "matchbook_volume_traded_total",
			Help: "Total traded quantity.",
		}),
		selfTradesPrevented: factory.NewCounter(prometheus.CounterOpts{
			Name: "matchbook_self_trades_prevented_total",
			Help: "Fills rejected by self-trade prevention.",
		}),
		submitLatency: factory.NewHistogram(prometheus.HistogramOpts{
			Name:    "matchbook_submit_latency_seconds",
			Help:    "Wall-clock latency of a single submit.",
			Buckets: prometheus.ExponentialBuckets(1e-7, 4, 10),
		}),
	}
}

func (m *EngineMetrics) ObserveSubmit() {
	m.ordersSubmitted.Inc()
}

func (m *EngineMetrics) ObserveSubmitDuration(d time.Duration) {
	m.ordersSubmitted.Inc()
	m.submitLatency.Observe(d.Seconds())
}

func (m *EngineMetrics) ObserveFill(quantity int64) {
	m.fillsTotal.Inc()
	m.volumeTraded.Add(float64(quantity))
}

func (m *EngineMetrics) ObserveSelfTrade() {
	m.selfTradesPrevented.Inc()
}

// Handler serves the registry for scraping.
func (m *EngineMetrics) Handler() http.Handler {
	return promhttp.HandlerFor(m.registry, promhttp.HandlerOpts{})
}

// Registry exposes the underlying registry for tests.
func (m *EngineMetrics) Registry() *prometheus.Registry {
	return m.registry
}
