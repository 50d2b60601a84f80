package recall

import (
	"context"
	"fmt"
	"net/http"
	"strings"
	"time"

	"github.com/Gobusters/ectoerror/httperror"
	"github.com/Gobusters/ectologger"
	"github.com/google/uuid"

	"github.com/Ramsey-B/yarrow/pkg/database"
	"github.com/Ramsey-B/yarrow/pkg/models"
	"github.com/Ramsey-B/yarrow/pkg/tracing"
)

const recallColumns = "id, source_agency, source_record_id, product_name, brand, model_numbers, identifying_codes, category, hazard_type, hazard_description, country, recall_date, risk_score, match_confidence, merged_from, created_at, updated_at"

// Repository handles canonical recall persistence
type Repository struct {
	db     database.DB
	logger ectologger.Logger
}

// NewRepository creates a new recall repository
func NewRepository(db database.DB, logger ectologger.Logger) *Repository {
	return &Repository{
		db:     db,
		logger: logger,
	}
}

// DB exposes the underlying database handle for transactional operations.
func (r *Repository) DB() database.DB {
	return r.db
}

// GetByID retrieves a canonical recall by ID
func (r *Repository) GetByID(ctx context.Context, id string) (*models.Recall, error) {
	ctx, span := tracing.StartSpan(ctx, "recall.Repository.GetByID")
	defer span.End()

	sb := database.NewSelectBuilder()
	sb.Select(recallColumns)
	sb.From("recalls")
	sb.Where(
		sb.Equal("id", id),
		sb.IsNull("deleted_at"),
	)

	query, args := sb.Build()
	var recall models.Recall
	if err := database.Executor(ctx, r.db).GetContext(ctx, &recall, query, args...); err != nil {
		if err.Error() == "sql: no rows in result set" {
			return nil, httperror.NewHTTPError(http.StatusNotFound, fmt.Sprintf("recall %s not found", id))
		}
		r.logger.WithContext(ctx).WithError(err).Error("Failed to get recall")
		return nil, httperror.NewHTTPError(http.StatusInternalServerError, "failed to get recall")
	}

	return &recall, nil
}

// GetBySourceRef resolves a raw source record to the canonical recall it
// belongs to, via the cluster membership table. Returns nil when the record
// has never been seen.
func (r *Repository) GetBySourceRef(ctx context.Context, sourceAgency, sourceRecordID string) (*models.Recall, error) {
	ctx, span := tracing.StartSpan(ctx, "recall.Repository.GetBySourceRef")
	defer span.End()

	query := fmt.Sprintf(`
		SELECT %s
		FROM recalls r
		INNER JOIN recall_sources rs ON rs.recall_id = r.id
		WHERE rs.source_agency = $1
		  AND rs.source_record_id = $2
		  AND r.deleted_at IS NULL
		LIMIT 1
	`, prefixColumns("r", recallColumns))

	var recall models.Recall
	if err := database.Executor(ctx, r.db).GetContext(ctx, &recall, query, sourceAgency, sourceRecordID); err != nil {
		if err.Error() == "sql: no rows in result set" {
			return nil, nil
		}
		r.logger.WithContext(ctx).WithError(err).WithFields(map[string]any{"source_agency": sourceAgency, "source_record_id": sourceRecordID}).Error("Failed to resolve recall by source ref")
		return nil, httperror.NewHTTPError(http.StatusInternalServerError, "failed to resolve recall by source ref")
	}

	return &recall, nil
}

// Create inserts a new canonical recall along with its leading cluster
// membership row.
func (r *Repository) Create(ctx context.Context, recall *models.Recall) (*models.Recall, error) {
	ctx, span := tracing.StartSpan(ctx, "recall.Repository.Create")
	defer span.End()

	if recall.ID == "" {
		recall.ID = uuid.New().String()
	}
	recall.CreatedAt = time.Now().UTC()
	recall.UpdatedAt = recall.CreatedAt

	sb := database.NewInsertBuilder()
	sb.InsertInto("recalls")
	sb.Cols("id", "source_agency", "source_record_id", "product_name", "brand", "model_numbers", "identifying_codes", "category", "hazard_type", "hazard_description", "country", "recall_date", "risk_score", "match_confidence", "merged_from", "created_at", "updated_at")
	sb.Values(recall.ID, recall.SourceAgency, recall.SourceRecordID, recall.ProductName, recall.Brand, recall.ModelNumbers, recall.IdentifyingCodes, recall.Category, recall.HazardType, recall.HazardDescription, recall.Country, recall.RecallDate, recall.RiskScore, recall.MatchConfidence, recall.MergedFrom, recall.CreatedAt, recall.UpdatedAt)

	query, args := sb.Build()
	if _, err := database.Executor(ctx, r.db).ExecContext(ctx, query, args...); err != nil {
		r.logger.WithContext(ctx).WithError(err).Error("Failed to create recall")
		return nil, httperror.NewHTTPError(http.StatusInternalServerError, "failed to create recall")
	}

	if err := r.AddSource(ctx, models.RecallSource{
		RecallID:       recall.ID,
		SourceAgency:   recall.SourceAgency,
		SourceRecordID: recall.SourceRecordID,
		MatchScore:     1.0,
	}); err != nil {
		return nil, err
	}

	r.logger.WithContext(ctx).WithFields(map[string]any{"id": recall.ID, "source_agency": recall.SourceAgency}).Info("Created canonical recall")
	return recall, nil
}

// Update replaces the mutable fields of a canonical recall
func (r *Repository) Update(ctx context.Context, recall *models.Recall) (*models.Recall, error) {
	ctx, span := tracing.StartSpan(ctx, "recall.Repository.Update")
	defer span.End()

	recall.UpdatedAt = time.Now().UTC()

	sb := database.NewUpdateBuilder()
	sb.Update("recalls")
	sb.Set(
		sb.Assign("product_name", recall.ProductName),
		sb.Assign("brand", recall.Brand),
		sb.Assign("model_numbers", recall.ModelNumbers),
		sb.Assign("identifying_codes", recall.IdentifyingCodes),
		sb.Assign("category", recall.Category),
		sb.Assign("hazard_type", recall.HazardType),
		sb.Assign("hazard_description", recall.HazardDescription),
		sb.Assign("country", recall.Country),
		sb.Assign("recall_date", recall.RecallDate),
		sb.Assign("risk_score", recall.RiskScore),
		sb.Assign("match_confidence", recall.MatchConfidence),
		sb.Assign("merged_from", recall.MergedFrom),
		sb.Assign("updated_at", recall.UpdatedAt),
	)
	sb.Where(
		sb.Equal("id", recall.ID),
		sb.IsNull("deleted_at"),
	)

	query, args := sb.Build()
	result, err := database.Executor(ctx, r.db).ExecContext(ctx, query, args...)
	if err != nil {
		r.logger.WithContext(ctx).WithError(err).Error("Failed to update recall")
		return nil, httperror.NewHTTPError(http.StatusInternalServerError, "failed to update recall")
	}

	rows, _ := result.RowsAffected()
	if rows == 0 {
		return nil, httperror.NewHTTPError(http.StatusNotFound, fmt.Sprintf("recall %s not found", recall.ID))
	}

	return recall, nil
}

// UpdateRiskScore writes a recomputed risk score without touching other fields
func (r *Repository) UpdateRiskScore(ctx context.Context, id string, score int) error {
	ctx, span := tracing.StartSpan(ctx, "recall.Repository.UpdateRiskScore")
	defer span.End()

	sb := database.NewUpdateBuilder()
	sb.Update("recalls")
	sb.Set(
		sb.Assign("risk_score", score),
		sb.Assign("updated_at", time.Now().UTC()),
	)
	sb.Where(
		sb.Equal("id", id),
		sb.IsNull("deleted_at"),
	)

	query, args := sb.Build()
	if _, err := database.Executor(ctx, r.db).ExecContext(ctx, query, args...); err != nil {
		r.logger.WithContext(ctx).WithError(err).WithField("id", id).Error("Failed to update risk score")
		return httperror.NewHTTPError(http.StatusInternalServerError, "failed to update risk score")
	}
	return nil
}

// SoftDelete hides a canonical row that lost a cluster consolidation. Its
// source records have already been moved to the surviving row.
func (r *Repository) SoftDelete(ctx context.Context, id string) error {
	ctx, span := tracing.StartSpan(ctx, "recall.Repository.SoftDelete")
	defer span.End()

	now := time.Now().UTC()
	sb := database.NewUpdateBuilder()
	sb.Update("recalls")
	sb.Set(
		sb.Assign("deleted_at", now),
		sb.Assign("updated_at", now),
	)
	sb.Where(
		sb.Equal("id", id),
		sb.IsNull("deleted_at"),
	)

	query, args := sb.Build()
	result, err := database.Executor(ctx, r.db).ExecContext(ctx, query, args...)
	if err != nil {
		r.logger.WithContext(ctx).WithError(err).Error("Failed to soft delete recall")
		return httperror.NewHTTPError(http.StatusInternalServerError, "failed to soft delete recall")
	}

	rows, _ := result.RowsAffected()
	if rows == 0 {
		return httperror.NewHTTPError(http.StatusNotFound, fmt.Sprintf("recall %s not found", id))
	}
	return nil
}

// AddSource pins a raw source record to a canonical recall. Re-pinning an
// already-known record moves it to the given recall, which keeps the
// one-record-one-canonical-row invariant under consolidation.
func (r *Repository) AddSource(ctx context.Context, source models.RecallSource) error {
	ctx, span := tracing.StartSpan(ctx, "recall.Repository.AddSource")
	defer span.End()

	ib := database.NewInsertBuilder()
	ib.InsertInto("recall_sources")
	ib.Cols("recall_id", "source_agency", "source_record_id", "match_score", "created_at")
	ib.Values(source.RecallID, source.SourceAgency, source.SourceRecordID, source.MatchScore, time.Now().UTC())
	ub := ib.OnConflict("source_agency", "source_record_id")
	ub.Set(
		ub.Assign("recall_id", database.Excluded("recall_id")),
		ub.Assign("match_score", database.Excluded("match_score")),
	)

	query, args := ib.Build()
	if _, err := database.Executor(ctx, r.db).ExecContext(ctx, query, args...); err != nil {
		r.logger.WithContext(ctx).WithError(err).WithFields(map[string]any{"recall_id": source.RecallID, "source_agency": source.SourceAgency}).Error("Failed to add recall source")
		return httperror.NewHTTPError(http.StatusInternalServerError, "failed to add recall source")
	}
	return nil
}

// MoveSources repoints every source record of one recall at another. Used
// when consolidating two clusters into one surviving row.
func (r *Repository) MoveSources(ctx context.Context, fromRecallID, toRecallID string) error {
	ctx, span := tracing.StartSpan(ctx, "recall.Repository.MoveSources")
	defer span.End()

	sb := database.NewUpdateBuilder()
	sb.Update("recall_sources")
	sb.Set(sb.Assign("recall_id", toRecallID))
	sb.Where(sb.Equal("recall_id", fromRecallID))

	query, args := sb.Build()
	if _, err := database.Executor(ctx, r.db).ExecContext(ctx, query, args...); err != nil {
		r.logger.WithContext(ctx).WithError(err).WithFields(map[string]any{"from": fromRecallID, "to": toRecallID}).Error("Failed to move recall sources")
		return httperror.NewHTTPError(http.StatusInternalServerError, "failed to move recall sources")
	}
	return nil
}

// GetSources lists the cluster membership rows of a canonical recall
func (r *Repository) GetSources(ctx context.Context, recallID string) ([]models.RecallSource, error) {
	ctx, span := tracing.StartSpan(ctx, "recall.Repository.GetSources")
	defer span.End()

	sb := database.NewSelectBuilder()
	sb.Select("recall_id", "source_agency", "source_record_id", "match_score", "created_at")
	sb.From("recall_sources")
	sb.Where(sb.Equal("recall_id", recallID))
	sb.OrderBy("created_at ASC")

	query, args := sb.Build()
	var sources []models.RecallSource
	if err := database.Executor(ctx, r.db).SelectContext(ctx, &sources, query, args...); err != nil {
		r.logger.WithContext(ctx).WithError(err).WithField("recall_id", recallID).Error("Failed to get recall sources")
		return nil, httperror.NewHTTPError(http.StatusInternalServerError, "failed to get recall sources")
	}
	return sources, nil
}

// CandidateMatch is one dedup candidate with its similarity score
type CandidateMatch struct {
	models.Recall
	Similarity float64 `db:"similarity"`
}

// FindCandidates returns recalls inside a blocking window, scored by trigram
// similarity over product name and brand. Only rows at or above minSimilarity
// are returned, best first.
func (r *Repository) FindCandidates(ctx context.Context, productName, brand, country string, dateFrom, dateTo time.Time, minSimilarity float64, limit int) ([]CandidateMatch, error) {
	ctx, span := tracing.StartSpan(ctx, "recall.Repository.FindCandidates")
	defer span.End()

	if limit <= 0 {
		limit = 100
	}

	var conditions []string
	var args []any
	argNum := 1

	conditions = append(conditions, "deleted_at IS NULL")

	if country != "" {
		conditions = append(conditions, fmt.Sprintf("country = $%d", argNum))
		args = append(args, country)
		argNum++
	}

	conditions = append(conditions, fmt.Sprintf("recall_date >= $%d", argNum))
	args = append(args, dateFrom)
	argNum++

	conditions = append(conditions, fmt.Sprintf("recall_date <= $%d", argNum))
	args = append(args, dateTo)
	argNum++

	scoreComponents := []string{
		fmt.Sprintf("COALESCE(similarity(product_name, $%d), 0)", argNum),
	}
	args = append(args, productName)
	argNum++

	if brand != "" {
		scoreComponents = append(scoreComponents, fmt.Sprintf("COALESCE(similarity(brand, $%d), 0)", argNum))
		args = append(args, brand)
		argNum++
	}

	scoreExpr := "(" + strings.Join(scoreComponents, " + ") + ") / " + fmt.Sprintf("%d", len(scoreComponents))

	query := fmt.Sprintf(`
		SELECT %s, %s AS similarity
		FROM recalls
		WHERE %s
		ORDER BY similarity DESC
		LIMIT %d
	`, recallColumns, scoreExpr, strings.Join(conditions, " AND "), limit)

	var candidates []CandidateMatch
	if err := database.Executor(ctx, r.db).SelectContext(ctx, &candidates, query, args...); err != nil {
		r.logger.WithContext(ctx).WithError(err).Error("Failed to find dedup candidates")
		return nil, httperror.NewHTTPError(http.StatusInternalServerError, "failed to find dedup candidates")
	}

	filtered := candidates[:0]
	for _, c := range candidates {
		if c.Similarity >= minSimilarity {
			filtered = append(filtered, c)
		}
	}
	return filtered, nil
}

// ListBatch pages through canonical recalls ordered by id. When changedSince
// is non-nil only rows updated after it are returned.
func (r *Repository) ListBatch(ctx context.Context, afterID string, changedSince *time.Time, limit int) ([]models.Recall, error) {
	ctx, span := tracing.StartSpan(ctx, "recall.Repository.ListBatch")
	defer span.End()

	if limit <= 0 {
		limit = 500
	}

	sb := database.NewSelectBuilder()
	sb.Select(recallColumns)
	sb.From("recalls")
	where := []string{
		sb.IsNull("deleted_at"),
	}
	if afterID != "" {
		where = append(where, sb.GreaterThan("id", afterID))
	}
	if changedSince != nil {
		where = append(where, sb.GreaterThan("updated_at", *changedSince))
	}
	sb.Where(where...)
	sb.OrderBy("id ASC")
	sb.Limit(limit)

	query, args := sb.Build()
	var recalls []models.Recall
	if err := database.Executor(ctx, r.db).SelectContext(ctx, &recalls, query, args...); err != nil {
		r.logger.WithContext(ctx).WithError(err).Error("Failed to list recalls")
		return nil, httperror.NewHTTPError(http.StatusInternalServerError, "failed to list recalls")
	}
	return recalls, nil
}

func prefixColumns(alias, columns string) string {
	parts := strings.Split(columns, ", ")
	for i, p := range parts {
		parts[i] = alias + "." + p
	}
	return strings.Join(parts, ", ")
}
