package scheduler

import (
	"context"
	"errors"
	"sync"
	"testing"
	"time"

	"github.com/Gobusters/ectologger"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/Ramsey-B/yarrow/pkg/models"
)

type fakeTicker struct {
	ch chan time.Time
}

func (t *fakeTicker) Chan() <-chan time.Time { return t.ch }
func (t *fakeTicker) Stop()                  {}

type fakeClock struct {
	mu   sync.Mutex
	now  time.Time
	tick chan time.Time
}

func newFakeClock(now time.Time) *fakeClock {
	return &fakeClock{now: now, tick: make(chan time.Time)}
}

func (c *fakeClock) Now() time.Time {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.now
}

func (c *fakeClock) NewTicker(_ time.Duration) Ticker {
	return &fakeTicker{ch: c.tick}
}

func (c *fakeClock) advance(d time.Duration) {
	c.mu.Lock()
	c.now = c.now.Add(d)
	c.mu.Unlock()
}

type fakeTrigger struct {
	mu    sync.Mutex
	calls int
	fired chan struct{}
}

func newFakeTrigger() *fakeTrigger {
	return &fakeTrigger{fired: make(chan struct{}, 16)}
}

func (f *fakeTrigger) TriggerRun(_ context.Context, trigger models.RunTrigger, _ []string, _ time.Duration) (*models.IngestionRun, error) {
	f.mu.Lock()
	f.calls++
	f.mu.Unlock()
	f.fired <- struct{}{}
	return &models.IngestionRun{ID: "run-1", Status: models.RunStatusPending, Trigger: trigger}, nil
}

func (f *fakeTrigger) count() int {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.calls
}

type fakeRescorer struct {
	mu    sync.Mutex
	calls int
	err   error
	fired chan struct{}
}

func newFakeRescorer() *fakeRescorer {
	return &fakeRescorer{fired: make(chan struct{}, 16)}
}

func (f *fakeRescorer) Recalculate(_ context.Context, _ *time.Time) (*models.RecalculationSummary, error) {
	f.mu.Lock()
	f.calls++
	f.mu.Unlock()
	f.fired <- struct{}{}
	if f.err != nil {
		return nil, f.err
	}
	return &models.RecalculationSummary{Scope: models.RecalculationScopeAll}, nil
}

type fakeRunHistory struct {
	runs []models.IngestionRun
	err  error
}

func (f *fakeRunHistory) ListRecent(_ context.Context, _ int) ([]models.IngestionRun, error) {
	return f.runs, f.err
}

type fakeWatermarks struct {
	mu       sync.Mutex
	cursors  map[string]string
	advanced []string
}

func newFakeWatermarks() *fakeWatermarks {
	return &fakeWatermarks{cursors: make(map[string]string)}
}

func (f *fakeWatermarks) Get(_ context.Context, sourceCode string) (*models.SourceWatermark, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	cursor, ok := f.cursors[sourceCode]
	if !ok {
		return nil, nil
	}
	return &models.SourceWatermark{SourceCode: sourceCode, LastSuccessfulCursor: cursor}, nil
}

func (f *fakeWatermarks) Advance(_ context.Context, sourceCode, cursor string) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.cursors[sourceCode] = cursor
	f.advanced = append(f.advanced, sourceCode)
	return nil
}

func testLogger() ectologger.Logger {
	return ectologger.NewEctoLogger(func(_ ectologger.EctoLogMessage) {})
}

func terminalRun(startedAt time.Time) models.IngestionRun {
	return models.IngestionRun{
		ID:        "run-0",
		Status:    models.RunStatusCompleted,
		Trigger:   models.RunTriggerScheduled,
		StartedAt: &startedAt,
		CreatedAt: startedAt,
	}
}

func newTestScheduler(clock *fakeClock, trigger IngestionTrigger, rescorer RiskRescorer, history RunHistory, watermarks RescoreWatermarks) *Scheduler {
	return NewScheduler(trigger, rescorer, history, watermarks, nil, clock, DefaultConfig(), testLogger())
}

func TestIngestionDue(t *testing.T) {
	now := time.Date(2026, 3, 10, 12, 0, 0, 0, time.UTC)
	clock := newFakeClock(now)

	t.Run("due when no runs exist", func(t *testing.T) {
		s := newTestScheduler(clock, newFakeTrigger(), newFakeRescorer(), &fakeRunHistory{}, newFakeWatermarks())

		due, err := s.ingestionDue(context.Background())
		require.NoError(t, err)
		assert.True(t, due)
	})

	t.Run("not due while a run is in flight", func(t *testing.T) {
		started := now.Add(-48 * time.Hour)
		history := &fakeRunHistory{runs: []models.IngestionRun{{
			ID:        "run-0",
			Status:    models.RunStatusRunning,
			StartedAt: &started,
		}}}
		s := newTestScheduler(clock, newFakeTrigger(), newFakeRescorer(), history, newFakeWatermarks())

		due, err := s.ingestionDue(context.Background())
		require.NoError(t, err)
		assert.False(t, due)
	})

	t.Run("not due when last run is recent", func(t *testing.T) {
		history := &fakeRunHistory{runs: []models.IngestionRun{terminalRun(now.Add(-1 * time.Hour))}}
		s := newTestScheduler(clock, newFakeTrigger(), newFakeRescorer(), history, newFakeWatermarks())

		due, err := s.ingestionDue(context.Background())
		require.NoError(t, err)
		assert.False(t, due)
	})

	t.Run("due when last run is older than the interval", func(t *testing.T) {
		history := &fakeRunHistory{runs: []models.IngestionRun{terminalRun(now.Add(-25 * time.Hour))}}
		s := newTestScheduler(clock, newFakeTrigger(), newFakeRescorer(), history, newFakeWatermarks())

		due, err := s.ingestionDue(context.Background())
		require.NoError(t, err)
		assert.True(t, due)
	})

	t.Run("propagates history errors", func(t *testing.T) {
		history := &fakeRunHistory{err: errors.New("db unavailable")}
		s := newTestScheduler(clock, newFakeTrigger(), newFakeRescorer(), history, newFakeWatermarks())

		due, err := s.ingestionDue(context.Background())
		require.Error(t, err)
		assert.False(t, due)
	})
}

func TestRecalcDue(t *testing.T) {
	now := time.Date(2026, 3, 10, 12, 0, 0, 0, time.UTC)
	clock := newFakeClock(now)

	t.Run("due when no watermark exists", func(t *testing.T) {
		s := newTestScheduler(clock, newFakeTrigger(), newFakeRescorer(), &fakeRunHistory{}, newFakeWatermarks())

		due, err := s.recalcDue(context.Background())
		require.NoError(t, err)
		assert.True(t, due)
	})

	t.Run("not due when the last rescore is fresh", func(t *testing.T) {
		watermarks := newFakeWatermarks()
		watermarks.cursors[recalcCursor] = now.Add(-2 * time.Hour).Format(time.RFC3339)
		s := newTestScheduler(clock, newFakeTrigger(), newFakeRescorer(), &fakeRunHistory{}, watermarks)

		due, err := s.recalcDue(context.Background())
		require.NoError(t, err)
		assert.False(t, due)
	})

	t.Run("due when the last rescore is stale", func(t *testing.T) {
		watermarks := newFakeWatermarks()
		watermarks.cursors[recalcCursor] = now.Add(-30 * time.Hour).Format(time.RFC3339)
		s := newTestScheduler(clock, newFakeTrigger(), newFakeRescorer(), &fakeRunHistory{}, watermarks)

		due, err := s.recalcDue(context.Background())
		require.NoError(t, err)
		assert.True(t, due)
	})

	t.Run("due when the cursor is unreadable", func(t *testing.T) {
		watermarks := newFakeWatermarks()
		watermarks.cursors[recalcCursor] = "not-a-timestamp"
		s := newTestScheduler(clock, newFakeTrigger(), newFakeRescorer(), &fakeRunHistory{}, watermarks)

		due, err := s.recalcDue(context.Background())
		require.NoError(t, err)
		assert.True(t, due)
	})
}

func TestFireRecalc(t *testing.T) {
	now := time.Date(2026, 3, 10, 12, 0, 0, 0, time.UTC)
	clock := newFakeClock(now)

	t.Run("advances watermark after success", func(t *testing.T) {
		watermarks := newFakeWatermarks()
		rescorer := newFakeRescorer()
		s := newTestScheduler(clock, newFakeTrigger(), rescorer, &fakeRunHistory{}, watermarks)

		s.fireRecalc(context.Background())

		require.Len(t, watermarks.advanced, 1)
		assert.Equal(t, recalcCursor, watermarks.advanced[0])
		assert.Equal(t, now.Format(time.RFC3339), watermarks.cursors[recalcCursor])
	})

	t.Run("leaves watermark alone on failure", func(t *testing.T) {
		watermarks := newFakeWatermarks()
		rescorer := newFakeRescorer()
		rescorer.err = errors.New("rescore failed")
		s := newTestScheduler(clock, newFakeTrigger(), rescorer, &fakeRunHistory{}, watermarks)

		s.fireRecalc(context.Background())

		assert.Empty(t, watermarks.advanced)
	})
}

func TestSchedulerLifecycle(t *testing.T) {
	now := time.Date(2026, 3, 10, 12, 0, 0, 0, time.UTC)

	t.Run("start is rejected while running", func(t *testing.T) {
		clock := newFakeClock(now)
		watermarks := newFakeWatermarks()
		watermarks.cursors[recalcCursor] = now.Format(time.RFC3339)
		history := &fakeRunHistory{runs: []models.IngestionRun{terminalRun(now)}}
		s := newTestScheduler(clock, newFakeTrigger(), newFakeRescorer(), history, watermarks)

		require.NoError(t, s.Start(context.Background()))
		assert.True(t, s.IsRunning())
		assert.ErrorIs(t, s.Start(context.Background()), ErrSchedulerAlreadyRunning)

		require.NoError(t, s.Stop(context.Background()))
		assert.False(t, s.IsRunning())
	})

	t.Run("stop is a no-op when not running", func(t *testing.T) {
		clock := newFakeClock(now)
		s := newTestScheduler(clock, newFakeTrigger(), newFakeRescorer(), &fakeRunHistory{}, newFakeWatermarks())

		require.NoError(t, s.Stop(context.Background()))
	})

	t.Run("first cycle fires immediately on start", func(t *testing.T) {
		clock := newFakeClock(now)
		trigger := newFakeTrigger()
		rescorer := newFakeRescorer()
		s := newTestScheduler(clock, trigger, rescorer, &fakeRunHistory{}, newFakeWatermarks())

		require.NoError(t, s.Start(context.Background()))
		defer s.Stop(context.Background())

		select {
		case <-trigger.fired:
		case <-time.After(2 * time.Second):
			t.Fatal("expected an ingestion run on startup")
		}
		select {
		case <-rescorer.fired:
		case <-time.After(2 * time.Second):
			t.Fatal("expected a rescore on startup")
		}
	})

	t.Run("ticks fire further cycles once due", func(t *testing.T) {
		clock := newFakeClock(now)
		trigger := newFakeTrigger()
		watermarks := newFakeWatermarks()
		watermarks.cursors[recalcCursor] = now.Format(time.RFC3339)
		history := &fakeRunHistory{runs: []models.IngestionRun{terminalRun(now.Add(-1 * time.Hour))}}
		s := newTestScheduler(clock, trigger, newFakeRescorer(), history, watermarks)

		require.NoError(t, s.Start(context.Background()))
		defer s.Stop(context.Background())

		// The immediate cycle sees a recent run and does nothing.
		clock.tick <- clock.Now()
		assert.Equal(t, 0, trigger.count())

		// A day later the next tick finds the run stale.
		clock.advance(25 * time.Hour)
		clock.tick <- clock.Now()

		select {
		case <-trigger.fired:
		case <-time.After(2 * time.Second):
			t.Fatal("expected an ingestion run after the interval elapsed")
		}
		assert.Equal(t, 1, trigger.count())
	})
}
