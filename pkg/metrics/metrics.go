// Package metrics provides Prometheus metrics for the ProductSync service.
package metrics

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

var (
	// DecisionsTotal tracks committed decisions by kind and reason
	DecisionsTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: "productsync",
			Subsystem: "resolver",
			Name:      "decisions_total",
			Help:      "Total number of match decisions by kind and reason",
		},
		[]string{"kind", "reason"},
	)

	// ResolveDuration tracks end-to-end resolution time
	ResolveDuration = promauto.NewHistogramVec(
		prometheus.HistogramOpts{
			Namespace: "productsync",
			Subsystem: "resolver",
			Name:      "resolve_duration_seconds",
			Help:      "Duration of record resolution in seconds",
			Buckets:   []float64{0.001, 0.005, 0.01, 0.025, 0.05, 0.1, 0.25, 0.5, 1, 2.5},
		},
		[]string{"outcome"},
	)

	// CandidatesRetrieved tracks how many candidates reached the scorer
	CandidatesRetrieved = promauto.NewHistogramVec(
		prometheus.HistogramOpts{
			Namespace: "productsync",
			Subsystem: "retriever",
			Name:      "candidates",
			Help:      "Number of candidates returned per retrieval",
			Buckets:   []float64{0, 1, 2, 3, 5, 10, 20, 50},
		},
		[]string{"mode"},
	)

	// CommitConflictsTotal tracks optimistic commit conflicts
	CommitConflictsTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: "productsync",
			Subsystem: "store",
			Name:      "commit_conflicts_total",
			Help:      "Total number of commit conflicts",
		},
		[]string{"escalated"},
	)

	// TransientRetriesTotal tracks retries of transient store failures
	TransientRetriesTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: "productsync",
			Subsystem: "store",
			Name:      "transient_retries_total",
			Help:      "Total number of retried transient store failures",
		},
		[]string{"op"},
	)

	// RejectedRecordsTotal tracks records that could not be normalized or validated
	RejectedRecordsTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: "productsync",
			Subsystem: "resolver",
			Name:      "rejected_records_total",
			Help:      "Total number of rejected records by field",
		},
		[]string{"field"},
	)

	// IdempotentHitsTotal tracks re-deliveries answered from an existing decision
	IdempotentHitsTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: "productsync",
			Subsystem: "resolver",
			Name:      "idempotent_hits_total",
			Help:      "Total number of records short-circuited to an existing decision",
		},
		[]string{"fingerprint_changed"},
	)

	// KafkaMessagesTotal tracks messages handled by the ingest consumer
	KafkaMessagesTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: "productsync",
			Subsystem: "kafka",
			Name:      "messages_total",
			Help:      "Total number of consumed messages by status",
		},
		[]string{"topic", "status"},
	)

	// KafkaPublishTotal tracks published events
	KafkaPublishTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: "productsync",
			Subsystem: "kafka",
			Name:      "publish_total",
			Help:      "Total number of published events by status",
		},
		[]string{"topic", "status"},
	)

	// DLQTotal tracks messages dead-lettered
	DLQTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: "productsync",
			Subsystem: "kafka",
			Name:      "dlq_total",
			Help:      "Total number of messages sent to the dead letter queue",
		},
		[]string{"reason"},
	)
)

func RecordDecision(kind, reason string, durationSeconds float64) {
	DecisionsTotal.WithLabelValues(kind, reason).Inc()
	ResolveDuration.WithLabelValues(kind).Observe(durationSeconds)
}

func RecordResolveFailure(durationSeconds float64) {
	ResolveDuration.WithLabelValues("error").Observe(durationSeconds)
}

func RecordCandidates(mode string, count int) {
	CandidatesRetrieved.WithLabelValues(mode).Observe(float64(count))
}

func RecordCommitConflict(escalated bool) {
	if escalated {
		CommitConflictsTotal.WithLabelValues("true").Inc()
		return
	}
	CommitConflictsTotal.WithLabelValues("false").Inc()
}

func RecordTransientRetry(op string) {
	TransientRetriesTotal.WithLabelValues(op).Inc()
}

func RecordRejected(field string) {
	RejectedRecordsTotal.WithLabelValues(field).Inc()
}

func RecordIdempotentHit(fingerprintChanged bool) {
	if fingerprintChanged {
		IdempotentHitsTotal.WithLabelValues("true").Inc()
		return
	}
	IdempotentHitsTotal.WithLabelValues("false").Inc()
}

func RecordKafkaMessage(topic, status string) {
	KafkaMessagesTotal.WithLabelValues(topic, status).Inc()
}

func RecordKafkaPublish(topic, status string) {
	KafkaPublishTotal.WithLabelValues(topic, status).Inc()
}

func RecordDLQ(reason string) {
	DLQTotal.WithLabelValues(reason).Inc()
}
