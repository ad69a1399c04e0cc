// Package metrics exposes engine counters and gauges via Prometheus.
package metrics

import (
	"net/http"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

// Set bundles the engine's collectors on one registry.
type Set struct {
	registry *prometheus.Registry

	SignalsGenerated *prometheus.CounterVec
	SignalsRejected  *prometheus.CounterVec
	PositionsOpened  *prometheus.CounterVec
	PositionsClosed  *prometheus.CounterVec
	OpenPositions    *prometheus.GaugeVec
	Equity           *prometheus.GaugeVec
	BotsRunning      prometheus.Gauge
	BarsProcessed    *prometheus.CounterVec
}

// NewSet creates and registers all collectors on a fresh registry.
func NewSet() *Set {
	reg := prometheus.NewRegistry()

	s := &Set{
		registry: reg,
		SignalsGenerated: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: "algotrader",
			Name:      "signals_generated_total",
			Help:      "Entry signals emitted by strategies.",
		}, []string{"bot", "strategy"}),
		SignalsRejected: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: "algotrader",
			Name:      "signals_rejected_total",
			Help:      "Signals rejected by the risk manager.",
		}, []string{"bot", "rule"}),
		PositionsOpened: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: "algotrader",
			Name:      "positions_opened_total",
			Help:      "Positions opened, including internal ladder fills.",
		}, []string{"bot"}),
		PositionsClosed: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: "algotrader",
			Name:      "positions_closed_total",
			Help:      "Positions closed, labeled by close reason.",
		}, []string{"bot", "reason"}),
		OpenPositions: prometheus.NewGaugeVec(prometheus.GaugeOpts{
			Namespace: "algotrader",
			Name:      "open_positions",
			Help:      "Currently open positions per bot.",
		}, []string{"bot"}),
		Equity: prometheus.NewGaugeVec(prometheus.GaugeOpts{
			Namespace: "algotrader",
			Name:      "equity",
			Help:      "Account equity per bot.",
		}, []string{"bot"}),
		BotsRunning: prometheus.NewGauge(prometheus.GaugeOpts{
			Namespace: "algotrader",
			Name:      "bots_running",
			Help:      "Bots currently in the running state.",
		}),
		BarsProcessed: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: "algotrader",
			Name:      "bars_processed_total",
			Help:      "Bars consumed per bot.",
		}, []string{"bot"}),
	}

	reg.MustRegister(
		s.SignalsGenerated,
		s.SignalsRejected,
		s.PositionsOpened,
		s.PositionsClosed,
		s.OpenPositions,
		s.Equity,
		s.BotsRunning,
		s.BarsProcessed,
	)
	return s
}

// Handler serves the registry in the Prometheus text format.
func (s *Set) Handler() http.Handler {
	return promhttp.HandlerFor(s.registry, promhttp.HandlerOpts{})
}
