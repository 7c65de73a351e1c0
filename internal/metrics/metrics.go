// Package metrics holds the Prometheus collectors updated by the cycle
// orchestrator, the trade event sink and the API middleware. They are registered on the default
// registry in init() and exposed at /metrics by the HTTP server.
package metrics

import (
	"net/http"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

var (
	CyclesTotal = prometheus.NewCounterVec(
		prometheus.CounterOpts{Name: "pairbot_cycles_total", Help: "Evaluation cycles run, by result (ok|halted|failed)"},
		[]string{"result"},
	)
	CycleDuration = prometheus.NewHistogram(
		prometheus.HistogramOpts{
			Name:    "pairbot_cycle_duration_seconds",
			Help:    "Wall time of one evaluation cycle",
			Buckets: prometheus.ExponentialBuckets(0.25, 2, 8),
		},
	)
	PairOutcomes = prometheus.NewCounterVec(
		prometheus.CounterOpts{Name: "pairbot_pair_outcomes_total", Help: "Per-pair cycle outcomes; reason is empty unless skipped"},
		[]string{"pair", "outcome", "reason"},
	)
	TradeEvents = prometheus.NewCounterVec(
		prometheus.CounterOpts{Name: "pairbot_trade_events_total", Help: "Trade events recorded, by type and side"},
		[]string{"pair", "type", "side"},
	)
	ExitReasons = prometheus.NewCounterVec(
		prometheus.CounterOpts{Name: "pairbot_exit_reasons_total", Help: "Exits split by reason"},
		[]string{"pair", "reason"},
	)
	SinkFailures = prometheus.NewCounterVec(
		prometheus.CounterOpts{Name: "pairbot_sink_failures_total", Help: "Trade event sink failures, by stage"},
		[]string{"stage"},
	)
	ZScore = prometheus.NewGaugeVec(
		prometheus.GaugeOpts{Name: "pairbot_zscore", Help: "Latest z-score of the log spread"},
		[]string{"pair"},
	)
	Lambda = prometheus.NewGaugeVec(
		prometheus.GaugeOpts{Name: "pairbot_lambda", Help: "Latest mean-reversion coefficient of the log spread"},
		[]string{"pair"},
	)
	PositionOpen = prometheus.NewGaugeVec(
		prometheus.GaugeOpts{Name: "pairbot_position_open", Help: "1 while the pair holds a position"},
		[]string{"pair", "side"},
	)
	RiskScore = prometheus.NewGauge(
		prometheus.GaugeOpts{Name: "pairbot_risk_score", Help: "Risk score read by the last cycle"},
	)
	CandleFetches = prometheus.NewCounterVec(
		prometheus.CounterOpts{Name: "pairbot_candle_fetches_total", Help: "Candle series lookups, by source (cache|exchange|miss)"},
		[]string{"source"},
	)
	HTTPRequests = prometheus.NewCounterVec(
		prometheus.CounterOpts{Name: "pairbot_http_requests_total", Help: "API requests by route pattern and status code"},
		[]string{"route", "code"},
	)
	HTTPDuration = prometheus.NewHistogramVec(
		prometheus.HistogramOpts{
			Name:    "pairbot_http_request_duration_seconds",
			Help:    "API request latency by route pattern",
			Buckets: prometheus.DefBuckets,
		},
		[]string{"route"},
	)
)

func init() {
	prometheus.MustRegister(
		CyclesTotal, CycleDuration, PairOutcomes,
		TradeEvents, ExitReasons, SinkFailures,
		ZScore, Lambda, PositionOpen, RiskScore, CandleFetches,
		HTTPRequests, HTTPDuration,
	)
}

// Handler serves the default registry in the Prometheus text format.
func Handler() http.Handler {
	return promhttp.Handler()
}

// SetPosition flips the open-position gauge for pair so exactly one side
// reads 1, or none when flat.
func SetPosition(pair, side string) {
	for _, s := range []string{"SHORT_A_LONG_B", "LONG_A_SHORT_B"} {
		v := 0.0
		if s == side {
			v = 1
		}
		PositionOpen.WithLabelValues(pair, s).Set(v)
	}
}
