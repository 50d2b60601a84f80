package risk

import (
	"context"
	"time"

	"github.com/Gobusters/ectologger"

	"github.com/Ramsey-B/yarrow/internal/repositories/recall"
	"github.com/Ramsey-B/yarrow/pkg/kafka"
	"github.com/Ramsey-B/yarrow/pkg/models"
	"github.com/Ramsey-B/yarrow/pkg/search"
	"github.com/Ramsey-B/yarrow/pkg/tracing"
)

const defaultBatchSize = 500

// Recalculator sweeps the canonical store and rewrites risk scores. Used by
// the daily scheduled rescore and the manual recalculation endpoint.
type Recalculator struct {
	logger     ectologger.Logger
	recallRepo *recall.Repository
	scorer     *Scorer
	maintainer *search.Maintainer
	producer   *kafka.Producer
	batchSize  int
}

// NewRecalculator creates a recalculator. maintainer and producer may be
// nil; index refresh and rescore events are then disabled.
func NewRecalculator(logger ectologger.Logger, recallRepo *recall.Repository, scorer *Scorer, maintainer *search.Maintainer, producer *kafka.Producer) *Recalculator {
	return &Recalculator{
		logger:     logger,
		recallRepo: recallRepo,
		scorer:     scorer,
		maintainer: maintainer,
		producer:   producer,
		batchSize:  defaultBatchSize,
	}
}

// Recalculate rescores the store in id-ordered batches. A nil changedSince
// rescores everything; otherwise only rows updated after it are touched.
// Returns a summary of how many rows were examined and changed.
func (r *Recalculator) Recalculate(ctx context.Context, changedSince *time.Time) (*models.RecalculationSummary, error) {
	ctx, span := tracing.StartSpan(ctx, "risk.Recalculator.Recalculate")
	defer span.End()

	log := r.logger.WithContext(ctx)

	scope := models.RecalculationScopeAll
	if changedSince != nil {
		scope = models.RecalculationScopeChangedSince
	}

	summary := &models.RecalculationSummary{Scope: scope, StartedAt: time.Now().UTC()}
	now := time.Now().UTC()

	afterID := ""
	for {
		if err := ctx.Err(); err != nil {
			return summary, err
		}

		batch, err := r.recallRepo.ListBatch(ctx, afterID, changedSince, r.batchSize)
		if err != nil {
			return summary, err
		}
		if len(batch) == 0 {
			break
		}

		var changed []*models.Recall
		for i := range batch {
			rec := &batch[i]
			summary.Examined++

			score := r.scorer.Score(rec, now)
			if score == rec.RiskScore {
				continue
			}

			if err := r.recallRepo.UpdateRiskScore(ctx, rec.ID, score); err != nil {
				return summary, err
			}
			rec.RiskScore = score
			changed = append(changed, rec)
			summary.Updated++
		}

		r.publishChanges(ctx, changed)
		afterID = batch[len(batch)-1].ID
	}

	summary.FinishedAt = time.Now().UTC()
	log.WithFields(map[string]any{
		"examined": summary.Examined,
		"updated":  summary.Updated,
	}).Info("Risk recalculation finished")

	return summary, nil
}

// publishChanges refreshes index entries and emits rescore events for rows
// whose score moved
func (r *Recalculator) publishChanges(ctx context.Context, changed []*models.Recall) {
	if len(changed) == 0 {
		return
	}

	if r.maintainer != nil {
		r.maintainer.Sync(ctx, changed)
	}

	if r.producer == nil {
		return
	}

	events := make([]*kafka.RecallEvent, 0, len(changed))
	for _, rec := range changed {
		events = append(events, &kafka.RecallEvent{
			EventType:    kafka.EventRecallRescored,
			RecallID:     rec.ID,
			SourceAgency: rec.SourceAgency,
			Country:      rec.Country,
			HazardType:   rec.HazardType,
			RiskScore:    rec.RiskScore,
			Recall:       rec,
			Timestamp:    time.Now().UTC(),
		})
	}

	if err := r.producer.PublishRecallEvents(ctx, events); err != nil {
		r.logger.WithContext(ctx).WithError(err).Warn("Failed to publish rescore events")
	}
}
