package metrics

import (
	"log/slog"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

const namespace = "folioforge"

var (
	// API metrics
	apiRequestDuration = promauto.NewHistogramVec(
		prometheus.HistogramOpts{
			Namespace: namespace,
			Name:      "api_request_duration_seconds",
			Help:      "API request duration in seconds by model and outcome",
			Buckets:   prometheus.ExponentialBuckets(0.25, 2, 10), // 0.25s to ~128s
		},
		[]string{"model", "status"},
	)

	rateLimiterWaitDuration = promauto.NewHistogramVec(
		prometheus.HistogramOpts{
			Namespace: namespace,
			Name:      "rate_limiter_wait_duration_seconds",
			Help:      "Time spent waiting on the per-model limiter or the call spacing gate",
			Buckets:   prometheus.ExponentialBuckets(0.001, 2, 16), // 1ms to ~65s
		},
		[]string{"limiter"},
	)

	// Generation metrics
	sectionsTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "sections_total",
			Help:      "Sections processed by outcome",
		},
		[]string{"status"}, // success, failed, discarded
	)

	retriesTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "generation_retries_total",
			Help:      "Generation retries by failure kind",
		},
		[]string{"kind"},
	)

	checkpointWriteDuration = promauto.NewHistogramVec(
		prometheus.HistogramOpts{
			Namespace: namespace,
			Name:      "checkpoint_write_duration_seconds",
			Help:      "Checkpoint save latency by backend and outcome",
			Buckets:   prometheus.ExponentialBuckets(0.0005, 2, 14),
		},
		[]string{"backend", "status"},
	)

	activeWorkers = promauto.NewGauge(
		prometheus.GaugeOpts{
			Namespace: namespace,
			Name:      "active_workers",
			Help:      "Generation workers currently running",
		},
	)
)

// Collector provides convenience methods for recording metrics.
// A nil *Collector is valid and records nothing.
type Collector struct {
	logger *slog.Logger
}

// NewCollector creates a new metrics collector
func NewCollector(logger *slog.Logger) *Collector {
	return &Collector{logger: logger}
}

func status(ok bool) string {
	if ok {
		return "success"
	}
	return "error"
}

// RecordAPIRequest records an API request duration
func (c *Collector) RecordAPIRequest(model string, duration time.Duration, success bool) {
	if c == nil {
		return
	}
	apiRequestDuration.WithLabelValues(model, status(success)).Observe(duration.Seconds())
}

// RecordLimiterWait records time spent blocked on a limiter ("model" or "gate")
func (c *Collector) RecordLimiterWait(limiter string, duration time.Duration) {
	if c == nil {
		return
	}
	rateLimiterWaitDuration.WithLabelValues(limiter).Observe(duration.Seconds())
}

// IncrementSection counts a section outcome
func (c *Collector) IncrementSection(outcome string) {
	if c == nil {
		return
	}
	sectionsTotal.WithLabelValues(outcome).Inc()
}

// IncrementRetry counts a retry of the given failure kind
func (c *Collector) IncrementRetry(kind string) {
	if c == nil {
		return
	}
	retriesTotal.WithLabelValues(kind).Inc()
}

// RecordCheckpointWrite records a checkpoint save
func (c *Collector) RecordCheckpointWrite(backend string, duration time.Duration, success bool) {
	if c == nil {
		return
	}
	checkpointWriteDuration.WithLabelValues(backend, status(success)).Observe(duration.Seconds())
	if !success && c.logger != nil {
		c.logger.Debug("Checkpoint write failed", "backend", backend, "duration", duration)
	}
}

// WorkerStarted increments the active worker gauge
func (c *Collector) WorkerStarted() {
	if c == nil {
		return
	}
	activeWorkers.Inc()
}

// WorkerStopped decrements the active worker gauge
func (c *Collector) WorkerStopped() {
	if c == nil {
		return
	}
	activeWorkers.Dec()
}
