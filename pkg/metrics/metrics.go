// Package metrics provides Prometheus metrics for the Yarrow service.
package metrics

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

var (
	// IngestionRunsTotal tracks ingestion runs by terminal status
	IngestionRunsTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: "yarrow",
			Subsystem: "ingest",
			Name:      "runs_total",
			Help:      "Total number of ingestion runs by status",
		},
		[]string{"trigger", "status"},
	)

	// IngestionRunDuration tracks full run duration in seconds
	IngestionRunDuration = promauto.NewHistogramVec(
		prometheus.HistogramOpts{
			Namespace: "yarrow",
			Subsystem: "ingest",
			Name:      "run_duration_seconds",
			Help:      "Duration of ingestion runs in seconds",
			Buckets:   []float64{1, 5, 15, 30, 60, 120, 300, 600, 1800},
		},
		[]string{"trigger"},
	)

	// SourceIngestionsTotal tracks per-source ingestion outcomes
	SourceIngestionsTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: "yarrow",
			Subsystem: "ingest",
			Name:      "sources_total",
			Help:      "Total number of per-source ingestions by outcome",
		},
		[]string{"source_agency", "status"},
	)

	// SourceIngestionDuration tracks per-source ingestion duration
	SourceIngestionDuration = promauto.NewHistogramVec(
		prometheus.HistogramOpts{
			Namespace: "yarrow",
			Subsystem: "ingest",
			Name:      "source_duration_seconds",
			Help:      "Duration of per-source ingestions in seconds",
			Buckets:   []float64{0.5, 1, 2, 5, 10, 30, 60, 120, 300},
		},
		[]string{"source_agency"},
	)

	// RecordsFetchedTotal tracks raw records fetched from sources
	RecordsFetchedTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: "yarrow",
			Subsystem: "connectors",
			Name:      "records_fetched_total",
			Help:      "Total number of raw records fetched from sources",
		},
		[]string{"source_agency"},
	)

	// RecordsNormalizedTotal tracks normalization outcomes
	RecordsNormalizedTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: "yarrow",
			Subsystem: "normalize",
			Name:      "records_total",
			Help:      "Total number of records normalized by outcome",
		},
		[]string{"source_agency", "outcome"},
	)

	// HTTPRequestsTotal tracks outbound HTTP requests
	HTTPRequestsTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: "yarrow",
			Subsystem: "http_client",
			Name:      "requests_total",
			Help:      "Total number of outbound HTTP requests",
		},
		[]string{"method", "status_code"},
	)

	// HTTPRequestDuration tracks outbound HTTP request duration
	HTTPRequestDuration = promauto.NewHistogramVec(
		prometheus.HistogramOpts{
			Namespace: "yarrow",
			Subsystem: "http_client",
			Name:      "request_duration_seconds",
			Help:      "Duration of outbound HTTP requests in seconds",
			Buckets:   []float64{0.01, 0.05, 0.1, 0.25, 0.5, 1, 2.5, 5, 10},
		},
		[]string{"method"},
	)

	// DedupMatchesTotal tracks deduplication decisions
	DedupMatchesTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: "yarrow",
			Subsystem: "dedup",
			Name:      "matches_total",
			Help:      "Total number of deduplication decisions by kind",
		},
		[]string{"kind"},
	)

	// DedupCandidateCount tracks candidate set sizes per incoming record
	DedupCandidateCount = promauto.NewHistogram(
		prometheus.HistogramOpts{
			Namespace: "yarrow",
			Subsystem: "dedup",
			Name:      "candidates_per_record",
			Help:      "Number of candidates compared per incoming record",
			Buckets:   []float64{0, 1, 2, 5, 10, 25, 50, 100, 250},
		},
	)

	// RiskScoreDistribution tracks computed risk scores
	RiskScoreDistribution = promauto.NewHistogram(
		prometheus.HistogramOpts{
			Namespace: "yarrow",
			Subsystem: "risk",
			Name:      "score",
			Help:      "Distribution of computed risk scores",
			Buckets:   []float64{10, 20, 30, 40, 50, 60, 70, 80, 90, 100},
		},
	)

	// SchedulerRunsScheduled tracks runs kicked off by the scheduler
	SchedulerRunsScheduled = promauto.NewCounter(
		prometheus.CounterOpts{
			Namespace: "yarrow",
			Subsystem: "scheduler",
			Name:      "runs_scheduled_total",
			Help:      "Total number of ingestion runs started by the scheduler",
		},
	)

	// KafkaMessagesPublished tracks Kafka messages published
	KafkaMessagesPublished = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: "yarrow",
			Subsystem: "kafka",
			Name:      "messages_published_total",
			Help:      "Total number of messages published to Kafka",
		},
		[]string{"topic", "status"},
	)

	// KafkaPublishDuration tracks Kafka publish duration
	KafkaPublishDuration = promauto.NewHistogram(
		prometheus.HistogramOpts{
			Namespace: "yarrow",
			Subsystem: "kafka",
			Name:      "publish_duration_seconds",
			Help:      "Duration of Kafka publish operations in seconds",
			Buckets:   []float64{0.001, 0.005, 0.01, 0.025, 0.05, 0.1, 0.25, 0.5},
		},
	)

	// SearchIndexUpserts tracks search index maintenance operations
	SearchIndexUpserts = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: "yarrow",
			Subsystem: "search",
			Name:      "index_upserts_total",
			Help:      "Total number of search index upserts by status",
		},
		[]string{"status"},
	)
)

// RecordIngestionRun records a completed ingestion run
func RecordIngestionRun(trigger, status string, durationSeconds float64) {
	IngestionRunsTotal.WithLabelValues(trigger, status).Inc()
	IngestionRunDuration.WithLabelValues(trigger).Observe(durationSeconds)
}

// RecordSourceIngestion records a per-source ingestion outcome
func RecordSourceIngestion(sourceAgency, status string, durationSeconds float64) {
	SourceIngestionsTotal.WithLabelValues(sourceAgency, status).Inc()
	SourceIngestionDuration.WithLabelValues(sourceAgency).Observe(durationSeconds)
}

// RecordHTTPRequest records an outbound HTTP request metric
func RecordHTTPRequest(method, statusCode string, durationSeconds float64) {
	HTTPRequestsTotal.WithLabelValues(method, statusCode).Inc()
	HTTPRequestDuration.WithLabelValues(method).Observe(durationSeconds)
}

// RecordDedupDecision records a deduplication decision
func RecordDedupDecision(kind string) {
	DedupMatchesTotal.WithLabelValues(kind).Inc()
}

// RecordKafkaPublish records a Kafka publish operation
func RecordKafkaPublish(topic, status string, durationSeconds float64) {
	KafkaMessagesPublished.WithLabelValues(topic, status).Inc()
	KafkaPublishDuration.Observe(durationSeconds)
}
