// Package replaymetrics defines the metrics emitted by the replay reconciliation module.
package replaymetrics

import (
	"context"
	"strconv"
	"time"

	"github.com/prometheus/client_golang/prometheus"
)

// ReplayMetrics is the metrics surface of the replays module.
type ReplayMetrics interface {
	RecordOperationAttempt(ctx context.Context, operation, service string)
	RecordOperationSuccess(ctx context.Context, operation, service string)
	RecordOperationFailure(ctx context.Context, operation, service string)
	RecordOperationDuration(ctx context.Context, operation, service string, duration time.Duration)

	// RecordAPIRequest counts a replay archive call by endpoint and HTTP status.
	RecordAPIRequest(ctx context.Context, endpoint string, status int, duration time.Duration)
	// RecordCandidate counts a candidate replay by its admission outcome.
	RecordCandidate(ctx context.Context, outcome string)
	RecordDroppedParticipant(ctx context.Context)
	RecordRunOutcome(ctx context.Context, outcome string)
	RecordQueueDepth(ctx context.Context, depth int)
	RecordSeriesPublished(ctx context.Context, completeness string)
}

type prometheusMetrics struct {
	opAttempts      *prometheus.CounterVec
	opSuccesses     *prometheus.CounterVec
	opFailures      *prometheus.CounterVec
	opDuration      *prometheus.HistogramVec
	apiRequests     *prometheus.CounterVec
	apiDuration     *prometheus.HistogramVec
	candidates      *prometheus.CounterVec
	dropped         prometheus.Counter
	runOutcomes     *prometheus.CounterVec
	queueDepth      prometheus.Gauge
	seriesPublished *prometheus.CounterVec
}

// NewPrometheus registers the module's collectors on reg.
func NewPrometheus(reg prometheus.Registerer, namespace string) ReplayMetrics {
	if namespace == "" {
		namespace = "rlis"
	}
	m := &prometheusMetrics{
		opAttempts: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace, Subsystem: "replays", Name: "operation_attempts_total",
			Help: "Service operations started.",
		}, []string{"operation", "service"}),
		opSuccesses: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace, Subsystem: "replays", Name: "operation_success_total",
			Help: "Service operations that completed without an infrastructure error.",
		}, []string{"operation", "service"}),
		opFailures: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace, Subsystem: "replays", Name: "operation_failures_total",
			Help: "Service operations that returned an error or panicked.",
		}, []string{"operation", "service"}),
		opDuration: prometheus.NewHistogramVec(prometheus.HistogramOpts{
			Namespace: namespace, Subsystem: "replays", Name: "operation_duration_seconds",
			Help:    "Service operation latency.",
			Buckets: prometheus.DefBuckets,
		}, []string{"operation", "service"}),
		apiRequests: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace, Subsystem: "ballchasing", Name: "requests_total",
			Help: "Replay archive requests by endpoint and status.",
		}, []string{"endpoint", "status"}),
		apiDuration: prometheus.NewHistogramVec(prometheus.HistogramOpts{
			Namespace: namespace, Subsystem: "ballchasing", Name: "request_duration_seconds",
			Help:    "Replay archive request latency.",
			Buckets: prometheus.DefBuckets,
		}, []string{"endpoint"}),
		candidates: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace, Subsystem: "replays", Name: "candidates_total",
			Help: "Candidate replays by admission outcome.",
		}, []string{"outcome"}),
		dropped: prometheus.NewCounter(prometheus.CounterOpts{
			Namespace: namespace, Subsystem: "replays", Name: "dropped_participants_total",
			Help: "Participants skipped because no league identity matched them.",
		}),
		runOutcomes: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace, Subsystem: "replays", Name: "runs_total",
			Help: "Reconciliation runs by outcome.",
		}, []string{"outcome"}),
		queueDepth: prometheus.NewGauge(prometheus.GaugeOpts{
			Namespace: namespace, Subsystem: "replays", Name: "queue_depth",
			Help: "Pending reconciliation jobs.",
		}),
		seriesPublished: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace, Subsystem: "replays", Name: "series_published_total",
			Help: "Series summaries published by completeness.",
		}, []string{"completeness"}),
	}
	reg.MustRegister(
		m.opAttempts, m.opSuccesses, m.opFailures, m.opDuration,
		m.apiRequests, m.apiDuration,
		m.candidates, m.dropped, m.runOutcomes, m.queueDepth, m.seriesPublished,
	)
	return m
}

func (m *prometheusMetrics) RecordOperationAttempt(_ context.Context, operation, service string) {
	m.opAttempts.WithLabelValues(operation, service).Inc()
}

func (m *prometheusMetrics) RecordOperationSuccess(_ context.Context, operation, service string) {
	m.opSuccesses.WithLabelValues(operation, service).Inc()
}

func (m *prometheusMetrics) RecordOperationFailure(_ context.Context, operation, service string) {
	m.opFailures.WithLabelValues(operation, service).Inc()
}

func (m *prometheusMetrics) RecordOperationDuration(_ context.Context, operation, service string, duration time.Duration) {
	m.opDuration.WithLabelValues(operation, service).Observe(duration.Seconds())
}

func (m *prometheusMetrics) RecordAPIRequest(_ context.Context, endpoint string, status int, duration time.Duration) {
	m.apiRequests.WithLabelValues(endpoint, strconv.Itoa(status)).Inc()
	m.apiDuration.WithLabelValues(endpoint).Observe(duration.Seconds())
}

func (m *prometheusMetrics) RecordCandidate(_ context.Context, outcome string) {
	m.candidates.WithLabelValues(outcome).Inc()
}

func (m *prometheusMetrics) RecordDroppedParticipant(_ context.Context) {
	m.dropped.Inc()
}

func (m *prometheusMetrics) RecordRunOutcome(_ context.Context, outcome string) {
	m.runOutcomes.WithLabelValues(outcome).Inc()
}

func (m *prometheusMetrics) RecordQueueDepth(_ context.Context, depth int) {
	m.queueDepth.Set(float64(depth))
}

func (m *prometheusMetrics) RecordSeriesPublished(_ context.Context, completeness string) {
	m.seriesPublished.WithLabelValues(completeness).Inc()
}
