package metrics

import (
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

var (
	// Tracks snapshot calculations by period and result.
	CalculationsTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "metrics_calculations_total",
			Help: "Total number of snapshot calculations (by period and result).",
		},
		[]string{"period", "result"}, // result = "ok" | "error" | "degraded"
	)

	// Measures snapshot calculation duration.
	CalculationDuration = promauto.NewHistogramVec(
		prometheus.HistogramOpts{
			Name:    "metrics_calculation_duration_seconds",
			Help:    "Duration of snapshot calculations in seconds.",
			Buckets: prometheus.ExponentialBuckets(0.001, 2, 15), // 1ms → ~16s
		},
		[]string{"period"},
	)

	// Tracks snapshot cache hits and misses.
	SnapshotCacheAccess = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "metrics_snapshot_cache_access_total",
			Help: "Number of cache hits/misses for snapshot reads.",
		},
		[]string{"result"}, // hit | miss
	)

	// Tracks refresh job runs by outcome.
	RefreshRunsTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "metrics_refresh_runs_total",
			Help: "Total number of refresh job runs (by result).",
		},
		[]string{"result"}, // ok | error | lock_contended
	)

	// Measures full refresh run duration.
	RefreshDuration = promauto.NewHistogramVec(
		prometheus.HistogramOpts{
			Name:    "metrics_refresh_duration_seconds",
			Help:    "Duration of refresh job runs in seconds.",
			Buckets: prometheus.ExponentialBuckets(0.01, 2, 14),
		},
		[]string{},
	)

	// Tracks debounce gate triggers.
	TriggersTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "metrics_refresh_triggers_total",
			Help: "Total number of refresh triggers (by outcome).",
		},
		[]string{"outcome"}, // scheduled | coalesced | invalid
	)

	// Tracks NATS messages processed by result.
	ConsumerMessages = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "metrics_consumer_messages_total",
			Help: "Total number of record events consumed.",
		},
		[]string{"result"}, // ok | malformed | error
	)

	// Tracks total errors (aggregated).
	ErrorsTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "metrics_service_errors_total",
			Help: "Count of service-level errors by component.",
		},
		[]string{"component", "reason"},
	)

	// Gauges the last successful refresh time (seconds since epoch).
	LastRefreshTimestamp = promauto.NewGaugeVec(
		prometheus.GaugeOpts{
			Name: "metrics_last_refresh_timestamp",
			Help: "Timestamp (unix seconds) of the last successful refresh per result scope.",
		},
		[]string{"component"},
	)
)

// ObserveDuration records the time taken for a function and updates the given histogram.
func ObserveDuration(v interface{}, start time.Time, labels ...string) {
	duration := time.Since(start).Seconds()

	switch metric := v.(type) {
	case *prometheus.HistogramVec:
		metric.WithLabelValues(labels...).Observe(duration)
	case *prometheus.SummaryVec:
		metric.WithLabelValues(labels...).Observe(duration)
	default:
		// silently ignore counters; they're not meant for duration tracking
	}
}

func IncCalculation(period, result string) {
	CalculationsTotal.WithLabelValues(period, result).Inc()
}

func IncCacheAccess(result string) {
	SnapshotCacheAccess.WithLabelValues(result).Inc()
}

func IncRefreshRun(result string) {
	RefreshRunsTotal.WithLabelValues(result).Inc()
}

func IncTrigger(outcome string) {
	TriggersTotal.WithLabelValues(outcome).Inc()
}

func IncConsumerMessage(result string) {
	ConsumerMessages.WithLabelValues(result).Inc()
}

func IncError(component, reason string) {
	ErrorsTotal.WithLabelValues(component, reason).Inc()
}

func SetLastRefresh(component string, t time.Time) {
	LastRefreshTimestamp.WithLabelValues(component).Set(float64(t.Unix()))
}
