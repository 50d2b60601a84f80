// Package ingest drives ingestion runs: fetching from every source agency,
// normalizing, deduplicating, scoring, and committing per-source batches.
package ingest

import (
	"context"
	"sync"
	"time"

	"github.com/Gobusters/ectologger"

	"github.com/Ramsey-B/yarrow/internal/repositories/ingestionrun"
	"github.com/Ramsey-B/yarrow/pkg/connectors"
	yarrowctx "github.com/Ramsey-B/yarrow/pkg/context"
	"github.com/Ramsey-B/yarrow/pkg/database"
	"github.com/Ramsey-B/yarrow/pkg/dedup"
	"github.com/Ramsey-B/yarrow/pkg/kafka"
	"github.com/Ramsey-B/yarrow/pkg/metrics"
	"github.com/Ramsey-B/yarrow/pkg/models"
	"github.com/Ramsey-B/yarrow/pkg/normalize"
	"github.com/Ramsey-B/yarrow/pkg/redis"
	"github.com/Ramsey-B/yarrow/pkg/risk"
	"github.com/Ramsey-B/yarrow/pkg/search"
	"github.com/Ramsey-B/yarrow/pkg/tracing"
)

const (
	// DefaultConcurrency is the number of sources ingested in parallel
	DefaultConcurrency = 3
	// DefaultSourceTimeout bounds one source's fetch-to-commit pipeline
	DefaultSourceTimeout = 10 * time.Minute
	// DefaultLookback is the fetch window for sources with no stored cursor
	DefaultLookback = 90 * 24 * time.Hour

	sourceLockTTL = 15 * time.Minute

	// commitAttempts bounds retries of a conflicted batch commit
	commitAttempts = 3

	// maxRateLimitWaits bounds honored rate limit waits per fetch
	maxRateLimitWaits = 5
)

// Config contains orchestrator tuning
type Config struct {
	Concurrency   int
	SourceTimeout time.Duration
	Lookback      time.Duration
	Retry         connectors.RetryConfig
}

// DefaultOrchestratorConfig returns default orchestrator configuration
func DefaultOrchestratorConfig() Config {
	return Config{
		Concurrency:   DefaultConcurrency,
		SourceTimeout: DefaultSourceTimeout,
		Lookback:      DefaultLookback,
		Retry:         connectors.DefaultRetryConfig(),
	}
}

// BatchMerger folds normalized drafts into the canonical store
type BatchMerger interface {
	MergeBatch(ctx context.Context, drafts []models.Draft) ([]dedup.Result, error)
}

// WatermarkStore persists per-source fetch cursors
type WatermarkStore interface {
	Get(ctx context.Context, sourceCode string) (*models.SourceWatermark, error)
	Advance(ctx context.Context, sourceCode, cursor string) error
}

// RiskScoreStore persists recomputed risk scores
type RiskScoreStore interface {
	UpdateRiskScore(ctx context.Context, id string, score int) error
}

// Orchestrator coordinates ingestion runs. Sources are ingested in parallel
// with bounded concurrency; each source commits its batch transactionally and
// one source's failure never blocks the others.
type Orchestrator struct {
	logger        ectologger.Logger
	db            database.DB
	registry      *connectors.Registry
	normalizer    *normalize.Normalizer
	merger        BatchMerger
	scorer        *risk.Scorer
	recallRepo    RiskScoreStore
	watermarkRepo WatermarkStore
	runRepo       *ingestionrun.Repository
	maintainer    *search.Maintainer
	producer      *kafka.Producer
	locker        *redis.Locker
	config        Config
}

// NewOrchestrator creates the ingestion orchestrator. producer and locker may
// be nil; events and cross-instance source locking are then disabled.
func NewOrchestrator(
	logger ectologger.Logger,
	db database.DB,
	registry *connectors.Registry,
	normalizer *normalize.Normalizer,
	merger BatchMerger,
	scorer *risk.Scorer,
	recallRepo RiskScoreStore,
	watermarkRepo WatermarkStore,
	runRepo *ingestionrun.Repository,
	maintainer *search.Maintainer,
	producer *kafka.Producer,
	locker *redis.Locker,
	config Config,
) *Orchestrator {
	if config.Concurrency <= 0 {
		config.Concurrency = DefaultConcurrency
	}
	if config.SourceTimeout <= 0 {
		config.SourceTimeout = DefaultSourceTimeout
	}
	if config.Lookback <= 0 {
		config.Lookback = DefaultLookback
	}
	return &Orchestrator{
		logger:        logger,
		db:            db,
		registry:      registry,
		normalizer:    normalizer,
		merger:        merger,
		scorer:        scorer,
		recallRepo:    recallRepo,
		watermarkRepo: watermarkRepo,
		runRepo:       runRepo,
		maintainer:    maintainer,
		producer:      producer,
		locker:        locker,
		config:        config,
	}
}

// TriggerRun creates a pending run and executes it in the background. The run
// summary is queryable immediately; execution outlives the caller's request.
// A zero lookback uses the configured fetch window.
func (o *Orchestrator) TriggerRun(ctx context.Context, trigger models.RunTrigger, sources []string, lookback time.Duration) (*models.IngestionRun, error) {
	ctx, span := tracing.StartSpan(ctx, "ingest.Orchestrator.TriggerRun")
	defer span.End()

	run, err := o.runRepo.Create(ctx, &models.IngestionRun{
		Trigger: trigger,
		Sources: o.resolveSources(sources),
	})
	if err != nil {
		return nil, err
	}

	bg := context.WithoutCancel(ctx)
	go func() {
		if err := o.Execute(bg, run, lookback); err != nil {
			o.logger.WithContext(bg).WithError(err).WithFields(map[string]any{
				"run_id": run.ID,
			}).Error("Ingestion run failed")
		}
	}()

	return run, nil
}

// Execute runs a pending ingestion run to a terminal state. The run summary
// is always persisted, even when every source fails.
func (o *Orchestrator) Execute(ctx context.Context, run *models.IngestionRun, lookback time.Duration) error {
	ctx, span := tracing.StartSpan(ctx, "ingest.Orchestrator.Execute")
	defer span.End()

	ctx = yarrowctx.SetRunID(ctx, run.ID)
	log := o.logger.WithContext(ctx).WithFields(map[string]any{
		"run_id":  run.ID,
		"trigger": run.Trigger,
	})

	if err := o.runRepo.MarkRunning(ctx, run.ID); err != nil {
		return err
	}

	if lookback <= 0 {
		lookback = o.config.Lookback
	}

	start := time.Now()
	sources := o.resolveSources(run.Sources)
	log.WithFields(map[string]any{"sources": sources}).Info("Ingestion run started")

	outcomes := o.ingestAll(ctx, run.ID, sources, lookback)

	status := summarizeOutcomes(ctx, outcomes)
	if err := o.runRepo.Finish(ctx, run.ID, status, outcomes); err != nil {
		return err
	}

	metrics.RecordIngestionRun(string(run.Trigger), string(status), time.Since(start).Seconds())
	log.WithFields(map[string]any{
		"status":   status,
		"duration": time.Since(start).String(),
	}).Info("Ingestion run finished")

	return nil
}

// ingestAll fans sources out over a bounded worker pool and collects the
// per-source outcomes
func (o *Orchestrator) ingestAll(ctx context.Context, runID string, sources []string, lookback time.Duration) map[string]models.SourceOutcome {
	concurrency := o.config.Concurrency
	if concurrency > len(sources) {
		concurrency = len(sources)
	}

	sourceChan := make(chan string, len(sources))
	resultChan := make(chan models.SourceOutcome, len(sources))

	var wg sync.WaitGroup
	for i := 0; i < concurrency; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			for code := range sourceChan {
				resultChan <- o.ingestSource(ctx, runID, code, lookback)
			}
		}()
	}

	for _, code := range sources {
		sourceChan <- code
	}
	close(sourceChan)

	go func() {
		wg.Wait()
		close(resultChan)
	}()

	outcomes := make(map[string]models.SourceOutcome, len(sources))
	for outcome := range resultChan {
		outcomes[outcome.SourceCode] = outcome

		// Persist incrementally so a crash mid-run still leaves a partial
		// record of what happened
		if err := o.runRepo.UpdateOutcome(ctx, runID, outcome); err != nil {
			o.logger.WithContext(ctx).WithError(err).WithFields(map[string]any{
				"run_id":      runID,
				"source_code": outcome.SourceCode,
			}).Warn("Failed to persist source outcome")
		}
	}

	return outcomes
}

// resolveSources returns the requested source codes, or every registered
// source when none were requested
func (o *Orchestrator) resolveSources(requested []string) []string {
	if len(requested) > 0 {
		return requested
	}
	return o.registry.Codes()
}

// summarizeOutcomes derives the terminal run status. Failed is reserved for
// runs where every attempted source failed; partial failure still completes.
func summarizeOutcomes(ctx context.Context, outcomes map[string]models.SourceOutcome) models.RunStatus {
	if ctx.Err() != nil {
		return models.RunStatusCancelled
	}

	attempted := 0
	failed := 0
	for _, outcome := range outcomes {
		if !outcome.Attempted {
			continue
		}
		attempted++
		if outcome.Failed {
			failed++
		}
	}

	switch {
	case attempted > 0 && failed == attempted:
		return models.RunStatusFailed
	case failed > 0:
		return models.RunStatusCompletedWithErrors
	default:
		return models.RunStatusCompleted
	}
}
