package ingestionrun

import (
	"context"
	"fmt"
	"net/http"
	"time"

	"github.com/Gobusters/ectoerror/httperror"
	"github.com/Gobusters/ectologger"
	"github.com/google/uuid"
	"github.com/lib/pq"

	"github.com/Ramsey-B/yarrow/pkg/database"
	"github.com/Ramsey-B/yarrow/pkg/models"
	"github.com/Ramsey-B/yarrow/pkg/tracing"
)

// Repository handles ingestion run persistence
type Repository struct {
	db     database.DB
	logger ectologger.Logger
}

// NewRepository creates a new ingestion run repository
func NewRepository(db database.DB, logger ectologger.Logger) *Repository {
	return &Repository{
		db:     db,
		logger: logger,
	}
}

type runRow struct {
	ID         string                                          `db:"id"`
	Status     string                                          `db:"status"`
	Trigger    string                                          `db:"trigger"`
	Sources    pq.StringArray                                  `db:"sources"`
	Outcomes   database.JSONB[map[string]models.SourceOutcome] `db:"outcomes"`
	StartedAt  *time.Time                                      `db:"started_at"`
	FinishedAt *time.Time                                      `db:"finished_at"`
	CreatedAt  time.Time                                       `db:"created_at"`
	UpdatedAt  time.Time                                       `db:"updated_at"`
}

func (row *runRow) toModel() *models.IngestionRun {
	return &models.IngestionRun{
		ID:         row.ID,
		Status:     models.RunStatus(row.Status),
		Trigger:    models.RunTrigger(row.Trigger),
		Sources:    row.Sources,
		Outcomes:   row.Outcomes.GetValue(),
		StartedAt:  row.StartedAt,
		FinishedAt: row.FinishedAt,
		CreatedAt:  row.CreatedAt,
		UpdatedAt:  row.UpdatedAt,
	}
}

// Create persists a new run in PENDING state
func (r *Repository) Create(ctx context.Context, run *models.IngestionRun) (*models.IngestionRun, error) {
	ctx, span := tracing.StartSpan(ctx, "ingestionrun.Repository.Create")
	defer span.End()

	if run.ID == "" {
		run.ID = uuid.New().String()
	}
	if run.Status == "" {
		run.Status = models.RunStatusPending
	}
	if run.Outcomes == nil {
		run.Outcomes = map[string]models.SourceOutcome{}
	}
	run.CreatedAt = time.Now().UTC()
	run.UpdatedAt = run.CreatedAt

	sb := database.NewInsertBuilder()
	sb.InsertInto("ingestion_runs")
	sb.Cols("id", "status", "trigger", "sources", "outcomes", "created_at", "updated_at")
	sb.Values(run.ID, string(run.Status), string(run.Trigger), pq.StringArray(run.Sources), database.JSONB[map[string]models.SourceOutcome]{Data: run.Outcomes}, run.CreatedAt, run.UpdatedAt)

	query, args := sb.Build()
	if _, err := database.Executor(ctx, r.db).ExecContext(ctx, query, args...); err != nil {
		r.logger.WithContext(ctx).WithError(err).Error("Failed to create ingestion run")
		return nil, httperror.NewHTTPError(http.StatusInternalServerError, "failed to create ingestion run")
	}

	r.logger.WithContext(ctx).WithFields(map[string]any{"run_id": run.ID, "trigger": run.Trigger}).Info("Created ingestion run")
	return run, nil
}

// Get retrieves a run by ID
func (r *Repository) Get(ctx context.Context, id string) (*models.IngestionRun, error) {
	ctx, span := tracing.StartSpan(ctx, "ingestionrun.Repository.Get")
	defer span.End()

	sb := database.NewSelectBuilder()
	sb.Select("id", "status", "trigger", "sources", "outcomes", "started_at", "finished_at", "created_at", "updated_at")
	sb.From("ingestion_runs")
	sb.Where(sb.Equal("id", id))

	query, args := sb.Build()
	var row runRow
	if err := database.Executor(ctx, r.db).GetContext(ctx, &row, query, args...); err != nil {
		if err.Error() == "sql: no rows in result set" {
			return nil, httperror.NewHTTPError(http.StatusNotFound, fmt.Sprintf("ingestion run %s not found", id))
		}
		r.logger.WithContext(ctx).WithError(err).WithField("run_id", id).Error("Failed to get ingestion run")
		return nil, httperror.NewHTTPError(http.StatusInternalServerError, "failed to get ingestion run")
	}

	return row.toModel(), nil
}

// MarkRunning transitions a run to RUNNING and stamps started_at
func (r *Repository) MarkRunning(ctx context.Context, id string) error {
	ctx, span := tracing.StartSpan(ctx, "ingestionrun.Repository.MarkRunning")
	defer span.End()

	now := time.Now().UTC()
	sb := database.NewUpdateBuilder()
	sb.Update("ingestion_runs")
	sb.Set(
		sb.Assign("status", string(models.RunStatusRunning)),
		sb.Assign("started_at", now),
		sb.Assign("updated_at", now),
	)
	sb.Where(
		sb.Equal("id", id),
		sb.Equal("status", string(models.RunStatusPending)),
	)

	query, args := sb.Build()
	if _, err := database.Executor(ctx, r.db).ExecContext(ctx, query, args...); err != nil {
		r.logger.WithContext(ctx).WithError(err).WithField("run_id", id).Error("Failed to mark run running")
		return httperror.NewHTTPError(http.StatusInternalServerError, "failed to mark run running")
	}
	return nil
}

// Finish records the terminal status and the full per-source outcome map.
// It is the one write that must succeed for a run to be inspectable, so it
// runs on the pool rather than any batch transaction.
func (r *Repository) Finish(ctx context.Context, id string, status models.RunStatus, outcomes map[string]models.SourceOutcome) error {
	ctx, span := tracing.StartSpan(ctx, "ingestionrun.Repository.Finish")
	defer span.End()

	now := time.Now().UTC()
	sb := database.NewUpdateBuilder()
	sb.Update("ingestion_runs")
	sb.Set(
		sb.Assign("status", string(status)),
		sb.Assign("outcomes", database.JSONB[map[string]models.SourceOutcome]{Data: outcomes}),
		sb.Assign("finished_at", now),
		sb.Assign("updated_at", now),
	)
	sb.Where(sb.Equal("id", id))

	query, args := sb.Build()
	result, err := r.db.ExecContext(ctx, query, args...)
	if err != nil {
		r.logger.WithContext(ctx).WithError(err).WithField("run_id", id).Error("Failed to finish ingestion run")
		return httperror.NewHTTPError(http.StatusInternalServerError, "failed to finish ingestion run")
	}

	rows, _ := result.RowsAffected()
	if rows == 0 {
		return httperror.NewHTTPError(http.StatusNotFound, fmt.Sprintf("ingestion run %s not found", id))
	}
	return nil
}

// UpdateOutcome merges one source outcome into the run's outcome map
func (r *Repository) UpdateOutcome(ctx context.Context, id string, outcome models.SourceOutcome) error {
	ctx, span := tracing.StartSpan(ctx, "ingestionrun.Repository.UpdateOutcome")
	defer span.End()

	query := `
		UPDATE ingestion_runs
		SET outcomes = outcomes || jsonb_build_object($2::text, $3::jsonb),
		    updated_at = $4
		WHERE id = $1
	`

	payload := database.JSONB[models.SourceOutcome]{Data: outcome}
	if _, err := r.db.ExecContext(ctx, query, id, outcome.SourceCode, payload, time.Now().UTC()); err != nil {
		r.logger.WithContext(ctx).WithError(err).WithFields(map[string]any{"run_id": id, "source_code": outcome.SourceCode}).Error("Failed to update source outcome")
		return httperror.NewHTTPError(http.StatusInternalServerError, "failed to update source outcome")
	}
	return nil
}

// ListRecent returns the most recently created runs
func (r *Repository) ListRecent(ctx context.Context, limit int) ([]models.IngestionRun, error) {
	ctx, span := tracing.StartSpan(ctx, "ingestionrun.Repository.ListRecent")
	defer span.End()

	if limit <= 0 {
		limit = 20
	}

	sb := database.NewSelectBuilder()
	sb.Select("id", "status", "trigger", "sources", "outcomes", "started_at", "finished_at", "created_at", "updated_at")
	sb.From("ingestion_runs")
	sb.OrderBy("created_at DESC")
	sb.Limit(limit)

	query, args := sb.Build()
	var rows []runRow
	if err := database.Executor(ctx, r.db).SelectContext(ctx, &rows, query, args...); err != nil {
		r.logger.WithContext(ctx).WithError(err).Error("Failed to list ingestion runs")
		return nil, httperror.NewHTTPError(http.StatusInternalServerError, "failed to list ingestion runs")
	}

	runs := make([]models.IngestionRun, 0, len(rows))
	for i := range rows {
		runs = append(runs, *rows[i].toModel())
	}
	return runs, nil
}
