package metrics

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

// Metrics holds all application metrics
type Metrics struct {
	// Outbox / publish pipeline
	OutboxEventsPublished prometheus.Counter
	OutboxEventsFailed    prometheus.Counter
	OutboxPublishLatency  prometheus.Histogram
	OutboxRowsReconciled  prometheus.Counter

	// Background job queue
	PublishJobsEnqueued  prometheus.Counter
	PublishJobsCompleted prometheus.Counter
	PublishJobsFailed    prometheus.Counter
	PublishJobsExhausted prometheus.Counter

	// Inbound consumer
	InboundProcessed    *prometheus.CounterVec
	InboundDeadLettered *prometheus.CounterVec
	InboundRedelivered  *prometheus.CounterVec
}

// NewMetrics creates and registers all application metrics on the default
// registry. Call once per process; tests use New instead.
func NewMetrics(namespace string) *Metrics {
	return build(namespace, true)
}

// New creates unregistered metrics, safe to construct repeatedly in tests.
func New(namespace string) *Metrics {
	return build(namespace, false)
}

func build(namespace string, register bool) *Metrics {
	counter := func(opts prometheus.CounterOpts) prometheus.Counter {
		if register {
			return promauto.NewCounter(opts)
		}
		return prometheus.NewCounter(opts)
	}
	counterVec := func(opts prometheus.CounterOpts, labels []string) *prometheus.CounterVec {
		if register {
			return promauto.NewCounterVec(opts, labels)
		}
		return prometheus.NewCounterVec(opts, labels)
	}
	histogram := func(opts prometheus.HistogramOpts) prometheus.Histogram {
		if register {
			return promauto.NewHistogram(opts)
		}
		return prometheus.NewHistogram(opts)
	}

	return &Metrics{
		OutboxEventsPublished: counter(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "outbox_events_published_total",
			Help:      "Total number of outbox events confirmed delivered to the broker",
		}),
		OutboxEventsFailed: counter(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "outbox_events_failed_total",
			Help:      "Total number of outbox events whose dispatch attempt failed",
		}),
		OutboxPublishLatency: histogram(prometheus.HistogramOpts{
			Namespace: namespace,
			Name:      "outbox_publish_duration_seconds",
			Help:      "Time spent dispatching and deleting one publish job",
			Buckets:   []float64{.001, .005, .01, .025, .05, .1, .25, .5, 1, 2.5, 5, 10},
		}),
		OutboxRowsReconciled: counter(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "outbox_rows_reconciled_total",
			Help:      "Total number of stale outbox rows re-scheduled by the reconciler",
		}),
		PublishJobsEnqueued: counter(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "publish_jobs_enqueued_total",
			Help:      "Total number of publish jobs placed on the job queue",
		}),
		PublishJobsCompleted: counter(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "publish_jobs_completed_total",
			Help:      "Total number of publish jobs that completed",
		}),
		PublishJobsFailed: counter(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "publish_jobs_failed_total",
			Help:      "Total number of publish job attempts that failed",
		}),
		PublishJobsExhausted: counter(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "publish_jobs_exhausted_total",
			Help:      "Total number of publish jobs that burned their attempt budget",
		}),
		InboundProcessed: counterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "inbound_messages_processed_total",
			Help:      "Total number of inbound messages acknowledged after success",
		}, []string{"topic"}),
		InboundDeadLettered: counterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "inbound_messages_dead_lettered_total",
			Help:      "Total number of inbound messages moved to a dead-letter topic",
		}, []string{"topic"}),
		InboundRedelivered: counterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "inbound_messages_redelivered_total",
			Help:      "Total number of inbound messages left for broker redelivery",
		}, []string{"topic"}),
	}
}
