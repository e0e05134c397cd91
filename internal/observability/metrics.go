// Package observability provides Prometheus metrics for monitoring.
package observability

import (
	"net/http"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

// DefaultNamespace prefixes every metric name.
const DefaultNamespace = "orderflow_lab"

// Metrics holds all Prometheus metrics for the application.
// Recording methods are safe on a nil *Metrics.
type Metrics struct {
	// Ingestion metrics
	TicksProcessed *prometheus.CounterVec
	TicksRejected  *prometheus.CounterVec
	QueueDepth     prometheus.Gauge

	// Detection metrics
	AnomaliesDetected *prometheus.CounterVec
	SignalsClassified *prometheus.CounterVec
	SignalsShifted    prometheus.Counter
	SignalsDropped    prometheus.Counter

	// Engine metrics
	TradesClosed  *prometheus.CounterVec
	OpenPositions prometheus.Gauge
	RealizedPnL   prometheus.Gauge

	// Pipeline metrics
	PipelineRunsTotal *prometheus.CounterVec
	PipelineDuration  *prometheus.HistogramVec

	// Database metrics
	DBQueryDuration *prometheus.HistogramVec
	DBQueryErrors   *prometheus.CounterVec
}

// NewMetrics creates a Metrics instance registered with reg.
// A nil reg uses a fresh registry, so tests never collide.
func NewMetrics(namespace string, reg prometheus.Registerer) *Metrics {
	if namespace == "" {
		namespace = DefaultNamespace
	}
	if reg == nil {
		reg = prometheus.NewRegistry()
	}
	factory := promauto.With(reg)

	return &Metrics{
		// Ingestion metrics
		TicksProcessed: factory.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Subsystem: "ingestion",
			Name:      "ticks_processed_total",
			Help:      "Total number of ticks processed by symbol",
		}, []string{"symbol"}),
		TicksRejected: factory.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Subsystem: "ingestion",
			Name:      "ticks_rejected_total",
			Help:      "Total number of ticks rejected at the boundary by reason",
		}, []string{"symbol", "reason"}),
		QueueDepth: factory.NewGauge(prometheus.GaugeOpts{
			Namespace: namespace,
			Subsystem: "ingestion",
			Name:      "queue_depth",
			Help:      "Current number of ticks waiting in the live input queue",
		}),

		// Detection metrics
		AnomaliesDetected: factory.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Subsystem: "detector",
			Name:      "anomalies_total",
			Help:      "Total number of volume anomalies by side",
		}, []string{"side"}),
		SignalsClassified: factory.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Subsystem: "absorption",
			Name:      "candidates_total",
			Help:      "Total number of finalized absorption candidates by outcome",
		}, []string{"outcome"}),
		SignalsShifted: factory.NewCounter(prometheus.CounterOpts{
			Namespace: namespace,
			Subsystem: "shift",
			Name:      "signals_shifted_total",
			Help:      "Total number of signals re-stamped to a causal time",
		}),
		SignalsDropped: factory.NewCounter(prometheus.CounterOpts{
			Namespace: namespace,
			Subsystem: "shift",
			Name:      "signals_dropped_total",
			Help:      "Total number of signals dropped for lack of data after the shift target",
		}),

		// Engine metrics
		TradesClosed: factory.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Subsystem: "engine",
			Name:      "trades_closed_total",
			Help:      "Total number of closed trades by exit reason",
		}, []string{"exit_reason"}),
		OpenPositions: factory.NewGauge(prometheus.GaugeOpts{
			Namespace: namespace,
			Subsystem: "engine",
			Name:      "open_positions",
			Help:      "Current number of open positions",
		}),
		RealizedPnL: factory.NewGauge(prometheus.GaugeOpts{
			Namespace: namespace,
			Subsystem: "engine",
			Name:      "realized_pnl_dollars",
			Help:      "Realized profit in dollars over closed trades",
		}),

		// Pipeline metrics
		PipelineRunsTotal: factory.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Subsystem: "pipeline",
			Name:      "runs_total",
			Help:      "Total number of pipeline runs by status",
		}, []string{"mode", "status"}),
		PipelineDuration: factory.NewHistogramVec(prometheus.HistogramOpts{
			Namespace: namespace,
			Subsystem: "pipeline",
			Name:      "duration_seconds",
			Help:      "Pipeline execution duration in seconds",
			Buckets:   []float64{0.1, 0.5, 1, 5, 10, 30, 60, 120, 300},
		}, []string{"mode"}),

		// Database metrics
		DBQueryDuration: factory.NewHistogramVec(prometheus.HistogramOpts{
			Namespace: namespace,
			Subsystem: "database",
			Name:      "query_duration_seconds",
			Help:      "Database query duration in seconds",
			Buckets:   prometheus.DefBuckets,
		}, []string{"database", "operation"}),
		DBQueryErrors: factory.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Subsystem: "database",
			Name:      "query_errors_total",
			Help:      "Total number of database query errors",
		}, []string{"database", "operation"}),
	}
}

// Handler returns an HTTP handler for the /metrics endpoint.
func Handler(g prometheus.Gatherer) http.Handler {
	return promhttp.HandlerFor(g, promhttp.HandlerOpts{})
}

// RecordTick increments the processed tick counter.
func (m *Metrics) RecordTick(symbol string) {
	if m == nil {
		return
	}
	m.TicksProcessed.WithLabelValues(symbol).Inc()
}

// RecordRejectedTick records a tick rejected at the boundary.
func (m *Metrics) RecordRejectedTick(symbol, reason string) {
	if m == nil {
		return
	}
	m.TicksRejected.WithLabelValues(symbol, reason).Inc()
}

// SetQueueDepth updates the live input queue gauge.
func (m *Metrics) SetQueueDepth(n int) {
	if m == nil {
		return
	}
	m.QueueDepth.Set(float64(n))
}

// RecordAnomaly increments the anomaly counter for side.
func (m *Metrics) RecordAnomaly(side string) {
	if m == nil {
		return
	}
	m.AnomaliesDetected.WithLabelValues(side).Inc()
}

// RecordCandidate records a finalized absorption candidate outcome
// ("absorbed", "reacted", "fake" or "no_future").
func (m *Metrics) RecordCandidate(outcome string) {
	if m == nil {
		return
	}
	m.SignalsClassified.WithLabelValues(outcome).Inc()
}

// RecordShift records shifted and dropped signal counts.
func (m *Metrics) RecordShift(shifted, dropped int) {
	if m == nil {
		return
	}
	m.SignalsShifted.Add(float64(shifted))
	m.SignalsDropped.Add(float64(dropped))
}

// RecordTrade records a closed trade.
func (m *Metrics) RecordTrade(exitReason string, profitDollars float64) {
	if m == nil {
		return
	}
	m.TradesClosed.WithLabelValues(exitReason).Inc()
	m.RealizedPnL.Add(profitDollars)
}

// SetOpenPositions updates the open positions gauge.
func (m *Metrics) SetOpenPositions(n int) {
	if m == nil {
		return
	}
	m.OpenPositions.Set(float64(n))
}

// RecordPipelineRun records a pipeline run.
func (m *Metrics) RecordPipelineRun(mode, status string, durationSeconds float64) {
	if m == nil {
		return
	}
	m.PipelineRunsTotal.WithLabelValues(mode, status).Inc()
	m.PipelineDuration.WithLabelValues(mode).Observe(durationSeconds)
}

// RecordDBQuery records database query metrics.
func (m *Metrics) RecordDBQuery(database, operation string, seconds float64, err error) {
	if m == nil {
		return
	}
	m.DBQueryDuration.WithLabelValues(database, operation).Observe(seconds)
	if err != nil {
		m.DBQueryErrors.WithLabelValues(database, operation).Inc()
	}
}
