// Package scheduler starts ingestion runs and risk rescores on their
// configured cadence. Due-ness is derived from persisted state, so a restart
// never loses a pending cycle and never double-fires one that already ran.
package scheduler

import (
	"context"
	"errors"
	"sync"
	"time"

	"github.com/Gobusters/ectologger"

	"github.com/Ramsey-B/yarrow/pkg/metrics"
	"github.com/Ramsey-B/yarrow/pkg/models"
	"github.com/Ramsey-B/yarrow/pkg/redis"
	"github.com/Ramsey-B/yarrow/pkg/tracing"
)

var (
	// ErrSchedulerStopped is returned when the scheduler is stopped
	ErrSchedulerStopped = errors.New("scheduler stopped")

	// ErrSchedulerAlreadyRunning is returned when trying to start an already running scheduler
	ErrSchedulerAlreadyRunning = errors.New("scheduler already running")
)

const (
	// DefaultPollInterval is how often due-ness is re-evaluated
	DefaultPollInterval = time.Minute

	// DefaultIngestionInterval is the cadence of scheduled ingestion runs
	DefaultIngestionInterval = 24 * time.Hour

	// DefaultRecalcInterval is the cadence of scheduled risk rescores
	DefaultRecalcInterval = 24 * time.Hour

	// DefaultLockTTL is the TTL for the single-flight scheduler locks
	DefaultLockTTL = 5 * time.Minute

	// recalcCursor is the reserved watermark slot recording when the last
	// scheduled rescore finished
	recalcCursor = "scheduler:risk_recalc"
)

// IngestionTrigger starts ingestion runs
type IngestionTrigger interface {
	TriggerRun(ctx context.Context, trigger models.RunTrigger, sources []string, lookback time.Duration) (*models.IngestionRun, error)
}

// RiskRescorer recomputes risk scores across the canonical store
type RiskRescorer interface {
	Recalculate(ctx context.Context, changedSince *time.Time) (*models.RecalculationSummary, error)
}

// RunHistory reads persisted ingestion run records
type RunHistory interface {
	ListRecent(ctx context.Context, limit int) ([]models.IngestionRun, error)
}

// RescoreWatermarks persists the timestamp of the last scheduled rescore
type RescoreWatermarks interface {
	Get(ctx context.Context, sourceCode string) (*models.SourceWatermark, error)
	Advance(ctx context.Context, sourceCode, cursor string) error
}

// Config holds configuration for the scheduler
type Config struct {
	PollInterval      time.Duration
	IngestionInterval time.Duration
	RecalcInterval    time.Duration
	LockTTL           time.Duration
}

// DefaultConfig returns the default scheduler configuration
func DefaultConfig() Config {
	return Config{
		PollInterval:      DefaultPollInterval,
		IngestionInterval: DefaultIngestionInterval,
		RecalcInterval:    DefaultRecalcInterval,
		LockTTL:           DefaultLockTTL,
	}
}

// Scheduler fires ingestion runs and risk rescores when they come due
type Scheduler struct {
	orchestrator  IngestionTrigger
	recalculator  RiskRescorer
	runRepo       RunHistory
	watermarkRepo RescoreWatermarks
	locker        *redis.Locker
	clock         Clock
	config        Config
	logger        ectologger.Logger

	// Coordination
	stopCh   chan struct{}
	stoppedC chan struct{}
	running  bool
	mu       sync.RWMutex
}

// NewScheduler creates a new scheduler. A nil clock uses the wall clock; a
// nil locker disables cross-instance single-flighting.
func NewScheduler(
	orchestrator IngestionTrigger,
	recalculator RiskRescorer,
	runRepo RunHistory,
	watermarkRepo RescoreWatermarks,
	locker *redis.Locker,
	clock Clock,
	config Config,
	logger ectologger.Logger,
) *Scheduler {
	// Apply defaults
	if config.PollInterval <= 0 {
		config.PollInterval = DefaultPollInterval
	}
	if config.IngestionInterval <= 0 {
		config.IngestionInterval = DefaultIngestionInterval
	}
	if config.RecalcInterval <= 0 {
		config.RecalcInterval = DefaultRecalcInterval
	}
	if config.LockTTL <= 0 {
		config.LockTTL = DefaultLockTTL
	}
	if clock == nil {
		clock = NewClock()
	}

	return &Scheduler{
		orchestrator:  orchestrator,
		recalculator:  recalculator,
		runRepo:       runRepo,
		watermarkRepo: watermarkRepo,
		locker:        locker,
		clock:         clock,
		config:        config,
		logger:        logger,
		stopCh:        make(chan struct{}),
		stoppedC:      make(chan struct{}),
	}
}

// Start starts the scheduler
func (s *Scheduler) Start(ctx context.Context) error {
	s.mu.Lock()
	if s.running {
		s.mu.Unlock()
		return ErrSchedulerAlreadyRunning
	}
	s.running = true
	s.mu.Unlock()

	ctx, span := tracing.StartSpan(ctx, "scheduler.Scheduler.Start")
	defer span.End()

	s.logger.WithContext(ctx).Infof("Starting scheduler: poll_interval=%s ingestion_interval=%s recalc_interval=%s",
		s.config.PollInterval, s.config.IngestionInterval, s.config.RecalcInterval)

	go s.pollLoop(ctx)

	return nil
}

// Stop stops the scheduler gracefully
func (s *Scheduler) Stop(ctx context.Context) error {
	s.mu.Lock()
	if !s.running {
		s.mu.Unlock()
		return nil
	}
	s.running = false
	s.mu.Unlock()

	s.logger.WithContext(ctx).Info("Stopping scheduler...")

	close(s.stopCh)

	select {
	case <-s.stoppedC:
		s.logger.WithContext(ctx).Info("Scheduler stopped gracefully")
	case <-ctx.Done():
		s.logger.WithContext(ctx).Warn("Scheduler shutdown timed out")
		return ctx.Err()
	}

	return nil
}

// IsRunning returns whether the scheduler is running
func (s *Scheduler) IsRunning() bool {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.running
}

// pollLoop re-evaluates due-ness on every tick
func (s *Scheduler) pollLoop(ctx context.Context) {
	defer close(s.stoppedC)

	ticker := s.clock.NewTicker(s.config.PollInterval)
	defer ticker.Stop()

	// Evaluate immediately on start so a restart picks up a cycle that came
	// due while the process was down
	s.runCycle(ctx)

	for {
		select {
		case <-s.stopCh:
			s.logger.WithContext(ctx).Debug("Scheduler poll loop stopping")
			return
		case <-ticker.Chan():
			s.runCycle(ctx)
		}
	}
}

// runCycle fires whichever of the two jobs is due
func (s *Scheduler) runCycle(ctx context.Context) {
	ctx, span := tracing.StartSpan(ctx, "scheduler.Scheduler.runCycle")
	defer span.End()

	if due, err := s.ingestionDue(ctx); err != nil {
		s.logger.WithContext(ctx).WithError(err).Error("Failed to evaluate ingestion due-ness")
	} else if due {
		s.fireIngestion(ctx)
	}

	if due, err := s.recalcDue(ctx); err != nil {
		s.logger.WithContext(ctx).WithError(err).Error("Failed to evaluate rescore due-ness")
	} else if due {
		s.fireRecalc(ctx)
	}
}

// ingestionDue checks the persisted run history. A run in flight or one
// newer than the interval means not due.
func (s *Scheduler) ingestionDue(ctx context.Context) (bool, error) {
	runs, err := s.runRepo.ListRecent(ctx, 1)
	if err != nil {
		return false, err
	}
	if len(runs) == 0 {
		return true, nil
	}

	last := runs[0]
	if !last.IsTerminal() {
		return false, nil
	}

	reference := last.CreatedAt
	if last.StartedAt != nil {
		reference = *last.StartedAt
	}
	return s.clock.Now().Sub(reference) >= s.config.IngestionInterval, nil
}

// recalcDue checks the reserved rescore watermark
func (s *Scheduler) recalcDue(ctx context.Context) (bool, error) {
	wm, err := s.watermarkRepo.Get(ctx, recalcCursor)
	if err != nil {
		return false, err
	}
	if wm == nil {
		return true, nil
	}

	last, err := time.Parse(time.RFC3339, wm.LastSuccessfulCursor)
	if err != nil {
		// Unreadable cursor means rescore now and rewrite it
		return true, nil
	}
	return s.clock.Now().Sub(last) >= s.config.RecalcInterval, nil
}

// fireIngestion starts a scheduled ingestion run under a single-flight lock
func (s *Scheduler) fireIngestion(ctx context.Context) {
	release, ok := s.singleFlight(ctx, "scheduler:ingestion")
	if !ok {
		return
	}
	defer release()

	run, err := s.orchestrator.TriggerRun(ctx, models.RunTriggerScheduled, nil, 0)
	if err != nil {
		s.logger.WithContext(ctx).WithError(err).Error("Failed to start scheduled ingestion run")
		return
	}

	metrics.SchedulerRunsScheduled.Inc()
	s.logger.WithContext(ctx).WithFields(map[string]any{"run_id": run.ID}).Info("Scheduled ingestion run started")
}

// fireRecalc runs a full rescore and advances the rescore watermark only
// after it succeeds
func (s *Scheduler) fireRecalc(ctx context.Context) {
	release, ok := s.singleFlight(ctx, "scheduler:risk_recalc")
	if !ok {
		return
	}
	defer release()

	summary, err := s.recalculator.Recalculate(ctx, nil)
	if err != nil {
		s.logger.WithContext(ctx).WithError(err).Error("Scheduled risk rescore failed")
		return
	}

	if err := s.watermarkRepo.Advance(ctx, recalcCursor, s.clock.Now().Format(time.RFC3339)); err != nil {
		s.logger.WithContext(ctx).WithError(err).Error("Failed to advance rescore watermark")
		return
	}

	s.logger.WithContext(ctx).WithFields(map[string]any{
		"examined": summary.Examined,
		"updated":  summary.Updated,
	}).Info("Scheduled risk rescore finished")
}

// singleFlight acquires the cross-instance lock for a job. Without a locker
// the scheduler runs unguarded, which is fine for a single instance.
func (s *Scheduler) singleFlight(ctx context.Context, key string) (func(), bool) {
	if s.locker == nil {
		return func() {}, true
	}

	lock, err := s.locker.Acquire(ctx, key, s.config.LockTTL)
	if err != nil {
		if errors.Is(err, redis.ErrLockNotAcquired) {
			s.logger.WithContext(ctx).WithFields(map[string]any{"key": key}).Debug("Another instance holds the scheduler lock")
			return nil, false
		}
		s.logger.WithContext(ctx).WithError(err).Error("Failed to acquire scheduler lock")
		return nil, false
	}

	return func() {
		if err := lock.Release(ctx); err != nil {
			s.logger.WithContext(ctx).WithError(err).Warn("Failed to release scheduler lock")
		}
	}, true
}
