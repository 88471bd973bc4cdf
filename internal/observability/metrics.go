// Package observability provides Prometheus metrics for monitoring.
package observability

import (
	"net/http"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

// Metrics holds all Prometheus metrics for the application.
type Metrics struct {
	// Detection metrics
	PollCyclesTotal    prometheus.Counter
	ActivitiesDetected *prometheus.CounterVec
	QueueCyclesSkipped *prometheus.CounterVec
	QueuesTracked      prometheus.Gauge
	TokensTracked      prometheus.Gauge

	// Gateway metrics
	FetchErrors   *prometheus.CounterVec
	FetchDuration *prometheus.HistogramVec

	// Cycle latency
	PollCycleDuration prometheus.Histogram

	// Scheduler metrics
	SchedulerTicks  *prometheus.CounterVec
	SchedulerPaused *prometheus.GaugeVec

	// Storage metrics
	HistorySize      prometheus.Gauge
	ArchiveInserts   prometheus.Counter
	CheckpointErrors prometheus.Counter

	// Health metrics
	LastSuccessfulPoll prometheus.Gauge
}

// NewMetrics creates a new Metrics instance with all metrics registered.
func NewMetrics(namespace string) *Metrics {
	if namespace == "" {
		namespace = "queue_market_watch"
	}

	return &Metrics{
		PollCyclesTotal: promauto.NewCounter(prometheus.CounterOpts{
			Namespace: namespace,
			Subsystem: "detect",
			Name:      "poll_cycles_total",
			Help:      "Total number of completed poll cycles",
		}),
		ActivitiesDetected: promauto.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Subsystem: "detect",
			Name:      "activities_detected_total",
			Help:      "Total number of activities detected by kind",
		}, []string{"kind"}),
		QueueCyclesSkipped: promauto.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Subsystem: "detect",
			Name:      "queue_cycles_skipped_total",
			Help:      "Total number of per-queue cycles skipped by reason",
		}, []string{"reason"}),
		QueuesTracked: promauto.NewGauge(prometheus.GaugeOpts{
			Namespace: namespace,
			Subsystem: "detect",
			Name:      "queues_tracked",
			Help:      "Number of queues currently being tracked",
		}),
		TokensTracked: promauto.NewGauge(prometheus.GaugeOpts{
			Namespace: namespace,
			Subsystem: "detect",
			Name:      "tokens_tracked",
			Help:      "Total number of tokens across all tracked queues",
		}),
		FetchErrors: promauto.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Subsystem: "gateway",
			Name:      "fetch_errors_total",
			Help:      "Total number of gateway fetch errors by method",
		}, []string{"method"}),
		FetchDuration: promauto.NewHistogramVec(prometheus.HistogramOpts{
			Namespace: namespace,
			Subsystem: "gateway",
			Name:      "fetch_duration_seconds",
			Help:      "Gateway fetch latency by method",
			Buckets:   prometheus.DefBuckets,
		}, []string{"method"}),
		PollCycleDuration: promauto.NewHistogram(prometheus.HistogramOpts{
			Namespace: namespace,
			Subsystem: "detect",
			Name:      "poll_cycle_duration_seconds",
			Help:      "Duration of a full poll cycle across all queues",
			Buckets:   prometheus.DefBuckets,
		}),
		SchedulerTicks: promauto.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Subsystem: "scheduler",
			Name:      "ticks_total",
			Help:      "Total number of scheduler ticks by consumer",
		}, []string{"consumer"}),
		SchedulerPaused: promauto.NewGaugeVec(prometheus.GaugeOpts{
			Namespace: namespace,
			Subsystem: "scheduler",
			Name:      "paused",
			Help:      "Whether a consumer's scheduler is paused (1) or running (0)",
		}, []string{"consumer"}),
		HistorySize: promauto.NewGauge(prometheus.GaugeOpts{
			Namespace: namespace,
			Subsystem: "storage",
			Name:      "history_size",
			Help:      "Current number of activities in the bounded history",
		}),
		ArchiveInserts: promauto.NewCounter(prometheus.CounterOpts{
			Namespace: namespace,
			Subsystem: "storage",
			Name:      "archive_inserts_total",
			Help:      "Total number of activities written to the archive",
		}),
		CheckpointErrors: promauto.NewCounter(prometheus.CounterOpts{
			Namespace: namespace,
			Subsystem: "storage",
			Name:      "checkpoint_errors_total",
			Help:      "Total number of snapshot checkpoint failures",
		}),
		LastSuccessfulPoll: promauto.NewGauge(prometheus.GaugeOpts{
			Namespace: namespace,
			Subsystem: "health",
			Name:      "last_successful_poll_timestamp_seconds",
			Help:      "Unix timestamp of the last poll cycle that completed",
		}),
	}
}

// Handler returns an HTTP handler for the /metrics endpoint.
func Handler() http.Handler {
	return promhttp.Handler()
}
