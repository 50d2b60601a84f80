package ingest

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/lib/pq"

	"github.com/Ramsey-B/yarrow/pkg/connectors"
	yarrowctx "github.com/Ramsey-B/yarrow/pkg/context"
	"github.com/Ramsey-B/yarrow/pkg/database"
	"github.com/Ramsey-B/yarrow/pkg/dedup"
	"github.com/Ramsey-B/yarrow/pkg/kafka"
	"github.com/Ramsey-B/yarrow/pkg/metrics"
	"github.com/Ramsey-B/yarrow/pkg/models"
	"github.com/Ramsey-B/yarrow/pkg/redis"
	"github.com/Ramsey-B/yarrow/pkg/tracing"
)

// ingestSource runs the full pipeline for one source: fetch with retries,
// normalize, merge, score, and commit. Errors are absorbed into the outcome
// so one source never fails the run.
func (o *Orchestrator) ingestSource(ctx context.Context, runID, code string, lookback time.Duration) models.SourceOutcome {
	ctx, span := tracing.StartSpan(ctx, "ingest.Orchestrator.ingestSource")
	defer span.End()

	ctx = yarrowctx.SetSourceAgency(ctx, code)
	ctx, cancel := context.WithTimeout(ctx, o.config.SourceTimeout)
	defer cancel()

	start := time.Now()
	outcome := models.SourceOutcome{SourceCode: code}

	finish := func(outcome models.SourceOutcome) models.SourceOutcome {
		outcome.DurationMS = time.Since(start).Milliseconds()
		status := "success"
		switch {
		case outcome.Skipped:
			status = "skipped"
		case outcome.Failed:
			status = "failed"
		}
		metrics.RecordSourceIngestion(code, status, time.Since(start).Seconds())
		return outcome
	}

	log := o.logger.WithContext(ctx).WithFields(map[string]any{
		"run_id":      runID,
		"source_code": code,
	})

	connector, ok := o.registry.Get(code)
	if !ok {
		outcome.Attempted = true
		outcome.Failed = true
		outcome.Error = fmt.Sprintf("no connector registered for source '%s'", code)
		return finish(outcome)
	}

	// A per-source lock keeps overlapping runs from double-fetching the same
	// feed. A held lock means another run is already on it.
	if o.locker != nil {
		lock, err := o.locker.Acquire(ctx, "source:"+code, sourceLockTTL)
		if err != nil {
			if errors.Is(err, redis.ErrLockNotAcquired) {
				log.Info("Source locked by another run, skipping")
				outcome.Skipped = true
				return finish(outcome)
			}
			outcome.Attempted = true
			outcome.Failed = true
			outcome.Error = err.Error()
			return finish(outcome)
		}
		defer func() {
			if err := lock.Release(context.WithoutCancel(ctx)); err != nil {
				log.WithError(err).Warn("Failed to release source lock")
			}
		}()
	}

	outcome.Attempted = true

	cursor := ""
	wm, err := o.watermarkRepo.Get(ctx, code)
	if err != nil {
		outcome.Failed = true
		outcome.Error = err.Error()
		return finish(outcome)
	}
	if wm != nil {
		cursor = wm.LastSuccessfulCursor
	}

	fetched, err := o.fetchWithRetry(ctx, connector, cursor, lookback)
	if err != nil {
		srcErr := connectors.AsSourceError(code, err)
		log.WithError(err).WithFields(map[string]any{"kind": srcErr.Kind}).Error("Source fetch failed")
		outcome.Failed = true
		outcome.Error = srcErr.Error()
		return finish(outcome)
	}

	outcome.RecordsFetched = len(fetched.Records)
	metrics.RecordsFetchedTotal.WithLabelValues(code).Add(float64(len(fetched.Records)))

	drafts := o.normalizeRecords(ctx, code, fetched.Records, &outcome)

	// Concurrent sources merging into the same canonical rows can collide.
	// A conflicted commit is retried whole; the watermark moves with it, so
	// no record is lost or double counted.
	var commitErr error
	for attempt := 0; attempt < commitAttempts; attempt++ {
		commitErr = o.commitBatch(ctx, runID, code, drafts, fetched.NewCursor, &outcome)
		if commitErr == nil || !isSerializationConflict(commitErr) {
			break
		}
		log.WithError(commitErr).WithFields(map[string]any{"attempt": attempt + 1}).Warn("Batch commit conflicted, retrying")
	}
	if commitErr != nil {
		log.WithError(commitErr).Error("Source batch commit failed")
		outcome.Failed = true
		outcome.Error = commitErr.Error()
		return finish(outcome)
	}

	outcome.Succeeded = true
	log.WithFields(map[string]any{
		"fetched": outcome.RecordsFetched,
		"new":     outcome.RecordsNew,
		"merged":  outcome.RecordsMerged,
	}).Info("Source ingestion finished")

	return finish(outcome)
}

// isSerializationConflict reports whether a commit failed on a Postgres
// serialization failure or deadlock, both safe to retry whole
func isSerializationConflict(err error) bool {
	var pqErr *pq.Error
	if !errors.As(err, &pqErr) {
		return false
	}
	return pqErr.Code == "40001" || pqErr.Code == "40P01"
}

// fetchWithRetry fetches from a connector, retrying transient and rate
// limited failures. Schema and auth failures fail immediately; the retry
// budget cannot fix them. Rate limits are the agency pacing us rather than
// the fetch failing, so they spend their own bounded budget instead of the
// transient one.
func (o *Orchestrator) fetchWithRetry(ctx context.Context, connector connectors.Connector, cursor string, lookback time.Duration) (*connectors.FetchResult, error) {
	code := connector.Source().Code

	var lastErr error
	attempts := 0
	rateLimitWaits := 0
	for {
		result, err := connector.Fetch(ctx, cursor, lookback)
		if err == nil {
			return result, nil
		}
		lastErr = err

		srcErr := connectors.AsSourceError(code, err)
		if !srcErr.Retryable() {
			return nil, err
		}

		if srcErr.Kind == connectors.ErrorKindRateLimited {
			rateLimitWaits++
			if rateLimitWaits > maxRateLimitWaits {
				return nil, lastErr
			}
		} else {
			attempts++
			if attempts > o.config.Retry.MaxRetries {
				return nil, lastErr
			}
		}

		delay := connectors.CalculateBackoff(&o.config.Retry, attempts+rateLimitWaits)
		if srcErr.RetryAfter > 0 {
			delay = srcErr.RetryAfter
		}

		select {
		case <-ctx.Done():
			return nil, ctx.Err()
		case <-time.After(delay):
		}
	}
}

// normalizeRecords maps raw records to drafts. Unparseable records are
// counted and dropped; they never sink the batch.
func (o *Orchestrator) normalizeRecords(ctx context.Context, code string, records []models.RawRecord, outcome *models.SourceOutcome) []models.Draft {
	drafts := make([]models.Draft, 0, len(records))
	for _, record := range records {
		draft, err := o.normalizer.Normalize(record)
		if err != nil {
			metrics.RecordsNormalizedTotal.WithLabelValues(code, "rejected").Inc()
			o.logger.WithContext(ctx).WithError(err).WithFields(map[string]any{
				"source_record_id": record.SourceRecordID,
			}).Warn("Dropped unparseable record")
			continue
		}
		metrics.RecordsNormalizedTotal.WithLabelValues(code, "accepted").Inc()
		drafts = append(drafts, *draft)
	}
	return drafts
}

// commitBatch merges drafts and advances the watermark inside one
// transaction. The cursor only moves when every draft in the batch landed,
// so a failed commit re-fetches the same window next run.
func (o *Orchestrator) commitBatch(ctx context.Context, runID, code string, drafts []models.Draft, newCursor string, outcome *models.SourceOutcome) error {
	ctx, span := tracing.StartSpan(ctx, "ingest.Orchestrator.commitBatch")
	defer span.End()

	txCtx, tx, err := database.GetTx(ctx, o.logger, o.db, nil)
	if err != nil {
		return err
	}

	results, err := o.merger.MergeBatch(txCtx, drafts)
	if err != nil {
		_ = tx.Rollback(ctx)
		return err
	}

	// Score in the same transaction so events and reads after commit always
	// carry a score consistent with the merged fields
	now := time.Now().UTC()
	for i := range results {
		recall := results[i].Recall
		score := o.scorer.Score(recall, now)
		if score != recall.RiskScore {
			if err := o.recallRepo.UpdateRiskScore(txCtx, recall.ID, score); err != nil {
				_ = tx.Rollback(ctx)
				return err
			}
			recall.RiskScore = score
		}
	}

	if newCursor != "" {
		if err := o.watermarkRepo.Advance(txCtx, code, newCursor); err != nil {
			_ = tx.Rollback(ctx)
			return err
		}
	}

	if err := tx.Commit(txCtx); err != nil {
		return err
	}

	o.afterCommit(ctx, runID, results, outcome)
	return nil
}

// afterCommit applies the side effects that must only happen once the batch
// is durable: search index maintenance and event emission
func (o *Orchestrator) afterCommit(ctx context.Context, runID string, results []dedup.Result, outcome *models.SourceOutcome) {
	recalls := make([]*models.Recall, 0, len(results))
	events := make([]*kafka.RecallEvent, 0, len(results))
	var removed []string

	for i := range results {
		result := &results[i]
		recalls = append(recalls, result.Recall)
		removed = append(removed, result.ConsolidatedIDs...)

		switch result.Outcome {
		case dedup.OutcomeCreated:
			outcome.RecordsNew++
		case dedup.OutcomeMerged:
			outcome.RecordsMerged++
		}

		if result.Outcome != dedup.OutcomeRefreshed {
			events = append(events, kafka.EventFromMergeResult(result.Recall, string(result.Outcome), result.MatchScore, result.ConsolidatedIDs, runID))
		}
	}

	if o.maintainer != nil {
		o.maintainer.Sync(ctx, recalls)
		if len(removed) > 0 {
			o.maintainer.Remove(ctx, removed)
		}
	}

	if o.producer != nil && len(events) > 0 {
		if err := o.producer.PublishRecallEvents(ctx, events); err != nil {
			o.logger.WithContext(ctx).WithError(err).Warn("Failed to publish recall events")
		}
	}
}
