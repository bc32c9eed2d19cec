// Package middleware provides the cross-cutting observability of the council:
// a Prometheus MetricsCollector and an OpenTelemetry stage observer.
package middleware

import (
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"

	"github.com/ahrav/go-council/infrastructure/llm"
	"github.com/ahrav/go-council/internal/ports"
)

// Metric names recorded by the stage observer.
const (
	MetricStageDuration    = "stage"
	MetricAbstentionsTotal = "abstentions_total"
	MetricTurnCost         = "turn_cost_usd"
	MetricTurnsInFlight    = "turns_in_flight"
)

// PrometheusMetrics implements the MetricsCollector interface using Prometheus.
// It tracks provider calls, token consumption, pipeline stage latency,
// abstentions, and per-turn spend.
type PrometheusMetrics struct {
	requestLatency *prometheus.HistogramVec
	requests       *prometheus.CounterVec
	tokens         *prometheus.CounterVec
	toolCalls      *prometheus.CounterVec
	stageLatency   *prometheus.HistogramVec
	abstentions    *prometheus.CounterVec
	turnCost       prometheus.Histogram
	breakerState   *prometheus.GaugeVec
	breakerEvents  *prometheus.CounterVec

	operationCounter *prometheus.CounterVec
	systemGauges     *prometheus.GaugeVec
	histograms       *prometheus.HistogramVec
}

// NewPrometheusMetrics creates a PrometheusMetrics instance and registers
// its collectors with reg. Pass prometheus.DefaultRegisterer to expose them
// on the default /metrics handler.
func NewPrometheusMetrics(reg prometheus.Registerer) *PrometheusMetrics {
	factory := promauto.With(reg)
	return &PrometheusMetrics{
		// Provider-call metrics fed by llm.MetricsMiddleware.
		requestLatency: factory.NewHistogramVec(
			prometheus.HistogramOpts{
				Name:    "council_llm_request_duration_seconds",
				Help:    "Latency of individual model calls, including tool rounds.",
				Buckets: []float64{0.5, 1, 2.5, 5, 10, 20, 40, 80, 120},
			},
			[]string{"provider", "model", "status"},
		),
		requests: factory.NewCounterVec(
			prometheus.CounterOpts{
				Name: "council_llm_requests_total",
				Help: "Model calls by outcome.",
			},
			[]string{"provider", "model", "status"},
		),
		tokens: factory.NewCounterVec(
			prometheus.CounterOpts{
				Name: "council_llm_tokens_total",
				Help: "Tokens reported by providers.",
			},
			[]string{"provider", "model", "token_type"},
		),
		toolCalls: factory.NewCounterVec(
			prometheus.CounterOpts{
				Name: "council_llm_tool_calls_total",
				Help: "Tool invocations made while answering.",
			},
			[]string{"provider", "model"},
		),

		// Pipeline metrics fed by the stage observer.
		stageLatency: factory.NewHistogramVec(
			prometheus.HistogramOpts{
				Name:    "council_stage_duration_seconds",
				Help:    "Wall time of each pipeline stage.",
				Buckets: prometheus.ExponentialBuckets(0.25, 2, 10),
			},
			[]string{"stage"},
		),
		abstentions: factory.NewCounterVec(
			prometheus.CounterOpts{
				Name: "council_abstentions_total",
				Help: "Models that produced no usable result in a stage.",
			},
			[]string{"stage", "model"},
		),
		turnCost: factory.NewHistogram(
			prometheus.HistogramOpts{
				Name:    "council_turn_cost_usd",
				Help:    "Total spend of one completed turn.",
				Buckets: []float64{0.001, 0.005, 0.01, 0.05, 0.1, 0.25, 0.5, 1, 2.5},
			},
		),

		breakerState: factory.NewGaugeVec(
			prometheus.GaugeOpts{
				Name: "council_circuit_breaker_state",
				Help: "Circuit breaker state per provider (0 closed, 1 open, 2 half-open).",
			},
			[]string{"provider"},
		),
		breakerEvents: factory.NewCounterVec(
			prometheus.CounterOpts{
				Name: "council_circuit_breaker_events_total",
				Help: "Circuit breaker outcomes per provider.",
			},
			[]string{"provider", "event"},
		),

		// Fallbacks for metric names without a dedicated collector.
		operationCounter: factory.NewCounterVec(
			prometheus.CounterOpts{
				Name: "council_operations_total",
				Help: "Counters without a dedicated metric.",
			},
			[]string{"operation"},
		),
		systemGauges: factory.NewGaugeVec(
			prometheus.GaugeOpts{
				Name: "council_system_state",
				Help: "Current system state values.",
			},
			[]string{"metric"},
		),
		histograms: factory.NewHistogramVec(
			prometheus.HistogramOpts{
				Name:    "council_operation_values",
				Help:    "Histograms without a dedicated metric.",
				Buckets: prometheus.DefBuckets,
			},
			[]string{"metric"},
		),
	}
}

// RecordLatency implements the MetricsCollector interface by recording
// execution latency in a Prometheus histogram.
func (pm *PrometheusMetrics) RecordLatency(
	operation string,
	duration time.Duration,
	labels map[string]string,
) {
	switch operation {
	case llm.MetricProviderRequest:
		pm.requestLatency.WithLabelValues(
			labelOr(labels, "provider"),
			labelOr(labels, "model"),
			labelOr(labels, "status"),
		).Observe(duration.Seconds())
	case MetricStageDuration:
		pm.stageLatency.WithLabelValues(labelOr(labels, "stage")).Observe(duration.Seconds())
	default:
		pm.histograms.WithLabelValues(operation).Observe(duration.Seconds())
	}
}

// RecordCounter implements the MetricsCollector interface by incrementing
// Prometheus counters.
func (pm *PrometheusMetrics) RecordCounter(
	metric string, value float64, labels map[string]string,
) {
	switch metric {
	case llm.MetricRequestsTotal:
		pm.requests.WithLabelValues(
			labelOr(labels, "provider"),
			labelOr(labels, "model"),
			labelOr(labels, "status"),
		).Add(value)
	case llm.MetricTokensTotal:
		pm.tokens.WithLabelValues(
			labelOr(labels, "provider"),
			labelOr(labels, "model"),
			labelOr(labels, "token_type"),
		).Add(value)
	case llm.MetricToolCallsTotal:
		pm.toolCalls.WithLabelValues(labelOr(labels, "provider"), labelOr(labels, "model")).Add(value)
	case MetricAbstentionsTotal:
		pm.abstentions.WithLabelValues(labelOr(labels, "stage"), labelOr(labels, "model")).Add(value)
	default:
		pm.operationCounter.WithLabelValues(metric).Add(value)
	}
}

// RecordGauge implements the MetricsCollector interface by setting
// Prometheus gauge values.
func (pm *PrometheusMetrics) RecordGauge(
	metric string, value float64, _ map[string]string,
) {
	pm.systemGauges.WithLabelValues(metric).Set(value)
}

// RecordHistogram implements the MetricsCollector interface by recording
// values in a Prometheus histogram.
func (pm *PrometheusMetrics) RecordHistogram(
	metric string, value float64, _ map[string]string,
) {
	if metric == MetricTurnCost {
		pm.turnCost.Observe(value)
		return
	}
	pm.histograms.WithLabelValues(metric).Observe(value)
}

// CircuitBreakerMetrics returns an llm.CircuitBreakerMetrics that reports
// into this collector.
func (pm *PrometheusMetrics) CircuitBreakerMetrics() llm.CircuitBreakerMetrics {
	return breakerMetrics{pm: pm}
}

type breakerMetrics struct{ pm *PrometheusMetrics }

func (b breakerMetrics) RecordState(provider string, state llm.CircuitBreakerState) {
	b.pm.breakerState.WithLabelValues(provider).Set(float64(state))
}

func (b breakerMetrics) RecordTrip(provider string) {
	b.pm.breakerEvents.WithLabelValues(provider, "rejected").Inc()
}

func (b breakerMetrics) RecordSuccess(provider string) {
	b.pm.breakerEvents.WithLabelValues(provider, "success").Inc()
}

func (b breakerMetrics) RecordFailure(provider string) {
	b.pm.breakerEvents.WithLabelValues(provider, "failure").Inc()
}

func labelOr(labels map[string]string, key string) string {
	if v := labels[key]; v != "" {
		return v
	}
	return "unknown"
}

// Compile-time verification that PrometheusMetrics implements MetricsCollector.
var _ ports.MetricsCollector = (*PrometheusMetrics)(nil)
