// Package kafka emits recall lifecycle events for downstream consumers.
package kafka

import (
	"context"
	"encoding/json"
	"time"

	"github.com/Gobusters/ectologger"
	"github.com/segmentio/kafka-go"

	"github.com/Ramsey-B/yarrow/pkg/metrics"
	"github.com/Ramsey-B/yarrow/pkg/models"
	"github.com/Ramsey-B/yarrow/pkg/tracing"
)

// Event types emitted on the recall topic
const (
	EventRecallCreated  = "recall.created"
	EventRecallMerged   = "recall.merged"
	EventRecallRescored = "recall.rescored"
)

// Producer handles Kafka event emission
type Producer struct {
	writer *kafka.Writer
	logger ectologger.Logger
	topic  string
}

// ProducerConfig holds Kafka producer configuration
type ProducerConfig struct {
	Brokers      []string
	Topic        string
	BatchSize    int
	BatchTimeout time.Duration
	RequiredAcks int
	Compression  string
}

// NewProducer creates a new Kafka producer
func NewProducer(cfg ProducerConfig, logger ectologger.Logger) *Producer {
	compression := kafka.Snappy
	switch cfg.Compression {
	case "gzip":
		compression = kafka.Gzip
	case "lz4":
		compression = kafka.Lz4
	case "zstd":
		compression = kafka.Zstd
	case "none":
		compression = 0
	}

	requiredAcks := kafka.RequiredAcks(cfg.RequiredAcks)

	writer := &kafka.Writer{
		Addr:                   kafka.TCP(cfg.Brokers...),
		Balancer:               &kafka.LeastBytes{},
		BatchSize:              cfg.BatchSize,
		BatchTimeout:           cfg.BatchTimeout,
		RequiredAcks:           requiredAcks,
		Compression:            compression,
		AllowAutoTopicCreation: true,
	}

	return &Producer{
		writer: writer,
		logger: logger,
		topic:  cfg.Topic,
	}
}

// Close closes the producer
func (p *Producer) Close() error {
	return p.writer.Close()
}

// RecallEvent represents a lifecycle event for a canonical recall
type RecallEvent struct {
	EventType       string         `json:"event_type"`
	RecallID        string         `json:"recall_id"`
	SourceAgency    string         `json:"source_agency"`
	Country         string         `json:"country"`
	HazardType      string         `json:"hazard_type"`
	RiskScore       int            `json:"risk_score"`
	MatchScore      float64        `json:"match_score,omitempty"`
	MergedFrom      []string       `json:"merged_from,omitempty"`
	ConsolidatedIDs []string       `json:"consolidated_ids,omitempty"`
	Recall          *models.Recall `json:"recall,omitempty"`
	RunID           string         `json:"run_id,omitempty"`
	Timestamp       time.Time      `json:"timestamp"`
}

// PublishRecallEvent publishes a recall lifecycle event
func (p *Producer) PublishRecallEvent(ctx context.Context, event *RecallEvent) error {
	ctx, span := tracing.StartSpan(ctx, "kafka.Producer.PublishRecallEvent")
	defer span.End()

	if event.Timestamp.IsZero() {
		event.Timestamp = time.Now().UTC()
	}

	data, err := json.Marshal(event)
	if err != nil {
		return err
	}

	msg := kafka.Message{
		Topic: p.topic,
		Key:   []byte(event.RecallID),
		Value: data,
		Headers: []kafka.Header{
			{Key: "event_type", Value: []byte(event.EventType)},
			{Key: "source_agency", Value: []byte(event.SourceAgency)},
			{Key: "schema_version", Value: []byte("1.0")},
		},
	}

	start := time.Now()
	if err := p.writer.WriteMessages(ctx, msg); err != nil {
		metrics.RecordKafkaPublish(p.topic, "error", time.Since(start).Seconds())
		p.logger.WithContext(ctx).WithError(err).Error("Failed to publish recall event")
		return err
	}
	metrics.RecordKafkaPublish(p.topic, "success", time.Since(start).Seconds())

	p.logger.WithContext(ctx).WithFields(map[string]any{
		"event_type": event.EventType,
		"recall_id":  event.RecallID,
	}).Debug("Published recall event")

	return nil
}

// PublishRecallEvents publishes multiple recall events in a batch
func (p *Producer) PublishRecallEvents(ctx context.Context, events []*RecallEvent) error {
	ctx, span := tracing.StartSpan(ctx, "kafka.Producer.PublishRecallEvents")
	defer span.End()

	if len(events) == 0 {
		return nil
	}

	messages := make([]kafka.Message, len(events))
	for i, event := range events {
		if event.Timestamp.IsZero() {
			event.Timestamp = time.Now().UTC()
		}

		data, err := json.Marshal(event)
		if err != nil {
			return err
		}

		messages[i] = kafka.Message{
			Topic: p.topic,
			Key:   []byte(event.RecallID),
			Value: data,
			Headers: []kafka.Header{
				{Key: "event_type", Value: []byte(event.EventType)},
				{Key: "source_agency", Value: []byte(event.SourceAgency)},
				{Key: "schema_version", Value: []byte("1.0")},
			},
		}
	}

	start := time.Now()
	if err := p.writer.WriteMessages(ctx, messages...); err != nil {
		metrics.RecordKafkaPublish(p.topic, "error", time.Since(start).Seconds())
		p.logger.WithContext(ctx).WithError(err).WithFields(map[string]any{
			"batch_size": len(events),
		}).Error("Failed to publish recall events batch")
		return err
	}
	metrics.RecordKafkaPublish(p.topic, "success", time.Since(start).Seconds())

	p.logger.WithContext(ctx).WithFields(map[string]any{
		"batch_size": len(events),
	}).Debug("Published recall events batch")

	return nil
}

// EventFromMergeResult builds the lifecycle event for one merge decision
func EventFromMergeResult(recallEvent *models.Recall, outcome string, matchScore float64, consolidatedIDs []string, runID string) *RecallEvent {
	eventType := EventRecallMerged
	if outcome == "created" {
		eventType = EventRecallCreated
	}

	return &RecallEvent{
		EventType:       eventType,
		RecallID:        recallEvent.ID,
		SourceAgency:    recallEvent.SourceAgency,
		Country:         recallEvent.Country,
		HazardType:      recallEvent.HazardType,
		RiskScore:       recallEvent.RiskScore,
		MatchScore:      matchScore,
		MergedFrom:      recallEvent.MergedFrom,
		ConsolidatedIDs: consolidatedIDs,
		Recall:          recallEvent,
		RunID:           runID,
	}
}
