package metrics

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

// Metrics holds all Prometheus metrics for the ingestion pipeline.
type Metrics struct {
	EventsIngested  *prometheus.CounterVec
	DuplicateEvents prometheus.Counter
	Transitions     *prometheus.CounterVec
	RetriesReleased prometheus.Counter
	StuckRecovered  prometheus.Counter

	DeadLetterDepth  prometheus.Gauge
	PendingLag       prometheus.Gauge
	OldestPendingAge prometheus.Gauge

	ProcessingDuration prometheus.Histogram
	IngestLatency      prometheus.Histogram

	WebhooksRejected *prometheus.CounterVec
	OutboxPending    prometheus.Gauge
	OutboxPublished  prometheus.Counter
	OutboxFailures   prometheus.Counter
}

// New creates all metrics and registers them with the default registry.
func New() *Metrics {
	return NewWith(prometheus.DefaultRegisterer)
}

// NewWith creates all metrics against a specific registerer. Tests use this
// with a fresh registry so repeated construction does not collide.
func NewWith(reg prometheus.Registerer) *Metrics {
	factory := promauto.With(reg)
	return &Metrics{
		EventsIngested: factory.NewCounterVec(prometheus.CounterOpts{
			Name: "shopstream_events_ingested_total",
			Help: "Total number of events accepted into the ledger, labeled by event type",
		}, []string{"event_type"}),
		DuplicateEvents: factory.NewCounter(prometheus.CounterOpts{
			Name: "shopstream_duplicate_events_total",
			Help: "Total number of redeliveries short-circuited by idempotency key",
		}),
		Transitions: factory.NewCounterVec(prometheus.CounterOpts{
			Name: "shopstream_event_transitions_total",
			Help: "Total number of event status transitions, labeled by old and new status",
		}, []string{"from", "to"}),
		RetriesReleased: factory.NewCounter(prometheus.CounterOpts{
			Name: "shopstream_retries_released_total",
			Help: "Total number of failed events reset to pending after backoff",
		}),
		StuckRecovered: factory.NewCounter(prometheus.CounterOpts{
			Name: "shopstream_stuck_events_recovered_total",
			Help: "Total number of events reverted from processing after exceeding the timeout",
		}),
		DeadLetterDepth: factory.NewGauge(prometheus.GaugeOpts{
			Name: "shopstream_dead_letter_depth",
			Help: "Current number of dead-lettered events",
		}),
		PendingLag: factory.NewGauge(prometheus.GaugeOpts{
			Name: "shopstream_pending_events",
			Help: "Current number of events waiting to be processed",
		}),
		OldestPendingAge: factory.NewGauge(prometheus.GaugeOpts{
			Name: "shopstream_oldest_pending_age_seconds",
			Help: "Age of the oldest pending event in seconds",
		}),
		ProcessingDuration: factory.NewHistogram(prometheus.HistogramOpts{
			Name:    "shopstream_event_processing_duration_seconds",
			Help:    "Time from receipt to terminal processing outcome",
			Buckets: prometheus.ExponentialBuckets(0.01, 4, 10),
		}),
		IngestLatency: factory.NewHistogram(prometheus.HistogramOpts{
			Name:    "shopstream_ingest_latency_seconds",
			Help:    "Latency of the ingest path in seconds",
			Buckets: prometheus.DefBuckets,
		}),
		WebhooksRejected: factory.NewCounterVec(prometheus.CounterOpts{
			Name: "shopstream_webhooks_rejected_total",
			Help: "Total number of webhook deliveries rejected before ingestion, labeled by reason",
		}, []string{"reason"}),
		OutboxPending: factory.NewGauge(prometheus.GaugeOpts{
			Name: "shopstream_transition_outbox_pending",
			Help: "Current number of unpublished transition records",
		}),
		OutboxPublished: factory.NewCounter(prometheus.CounterOpts{
			Name: "shopstream_transition_outbox_published_total",
			Help: "Total number of transition records published",
		}),
		OutboxFailures: factory.NewCounter(prometheus.CounterOpts{
			Name: "shopstream_transition_outbox_failures_total",
			Help: "Total number of transition publish failures",
		}),
	}
}

// ObserveTransition records a status transition.
func (m *Metrics) ObserveTransition(from, to string) {
	m.Transitions.WithLabelValues(from, to).Inc()
}

// IncEventsIngested records an accepted event.
func (m *Metrics) IncEventsIngested(eventType string) {
	m.EventsIngested.WithLabelValues(eventType).Inc()
}

// IncWebhookRejected records a rejected webhook delivery.
func (m *Metrics) IncWebhookRejected(reason string) {
	m.WebhooksRejected.WithLabelValues(reason).Inc()
}
