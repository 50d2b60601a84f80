package watermark

import (
	"context"
	"net/http"
	"time"

	"github.com/Gobusters/ectoerror/httperror"
	"github.com/Gobusters/ectologger"

	"github.com/Ramsey-B/yarrow/pkg/database"
	"github.com/Ramsey-B/yarrow/pkg/models"
	"github.com/Ramsey-B/yarrow/pkg/tracing"
)

// Repository handles per-source watermark persistence
type Repository struct {
	db     database.DB
	logger ectologger.Logger
}

// NewRepository creates a new watermark repository
func NewRepository(db database.DB, logger ectologger.Logger) *Repository {
	return &Repository{
		db:     db,
		logger: logger,
	}
}

// Get returns the watermark for a source, or nil when the source has never
// committed a batch.
func (r *Repository) Get(ctx context.Context, sourceCode string) (*models.SourceWatermark, error) {
	ctx, span := tracing.StartSpan(ctx, "watermark.Repository.Get")
	defer span.End()

	sb := database.NewSelectBuilder()
	sb.Select("source_code", "last_successful_cursor", "updated_at")
	sb.From("source_watermarks")
	sb.Where(sb.Equal("source_code", sourceCode))

	query, args := sb.Build()
	var wm models.SourceWatermark
	if err := database.Executor(ctx, r.db).GetContext(ctx, &wm, query, args...); err != nil {
		if err.Error() == "sql: no rows in result set" {
			return nil, nil
		}
		r.logger.WithContext(ctx).WithError(err).WithField("source_code", sourceCode).Error("Failed to get watermark")
		return nil, httperror.NewHTTPError(http.StatusInternalServerError, "failed to get watermark")
	}
	return &wm, nil
}

// Advance upserts the watermark for a source. Callers invoke it inside the
// same transaction that committed the batch, so a failed commit never moves
// the cursor.
func (r *Repository) Advance(ctx context.Context, sourceCode, cursor string) error {
	ctx, span := tracing.StartSpan(ctx, "watermark.Repository.Advance")
	defer span.End()

	ib := database.NewInsertBuilder()
	ib.InsertInto("source_watermarks")
	ib.Cols("source_code", "last_successful_cursor", "updated_at")
	ib.Values(sourceCode, cursor, time.Now().UTC())
	ub := ib.OnConflict("source_code")
	ub.Set(
		ub.Assign("last_successful_cursor", database.Excluded("last_successful_cursor")),
		ub.Assign("updated_at", database.Excluded("updated_at")),
	)

	query, args := ib.Build()
	if _, err := database.Executor(ctx, r.db).ExecContext(ctx, query, args...); err != nil {
		r.logger.WithContext(ctx).WithError(err).WithField("source_code", sourceCode).Error("Failed to advance watermark")
		return httperror.NewHTTPError(http.StatusInternalServerError, "failed to advance watermark")
	}

	r.logger.WithContext(ctx).WithFields(map[string]any{"source_code": sourceCode, "cursor": cursor}).Debug("Advanced watermark")
	return nil
}

// List returns every stored watermark
func (r *Repository) List(ctx context.Context) ([]models.SourceWatermark, error) {
	ctx, span := tracing.StartSpan(ctx, "watermark.Repository.List")
	defer span.End()

	sb := database.NewSelectBuilder()
	sb.Select("source_code", "last_successful_cursor", "updated_at")
	sb.From("source_watermarks")
	sb.OrderBy("source_code ASC")

	query, args := sb.Build()
	var wms []models.SourceWatermark
	if err := database.Executor(ctx, r.db).SelectContext(ctx, &wms, query, args...); err != nil {
		r.logger.WithContext(ctx).WithError(err).Error("Failed to list watermarks")
		return nil, httperror.NewHTTPError(http.StatusInternalServerError, "failed to list watermarks")
	}
	return wms, nil
}
