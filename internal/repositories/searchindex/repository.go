package searchindex

import (
	"context"
	"fmt"
	"net/http"
	"strings"
	"time"

	"github.com/Gobusters/ectoerror/httperror"
	"github.com/Gobusters/ectologger"
	"github.com/lib/pq"

	"github.com/Ramsey-B/yarrow/pkg/database"
	"github.com/Ramsey-B/yarrow/pkg/models"
	"github.com/Ramsey-B/yarrow/pkg/tracing"
)

// DefaultMinSimilarity is tuned for recall over precision; safety queries
// should surface near-misses rather than hide them.
const DefaultMinSimilarity = 0.15

// Repository maintains the trigram search index over canonical recalls
type Repository struct {
	db     database.DB
	logger ectologger.Logger
}

// NewRepository creates a new search index repository
func NewRepository(db database.DB, logger ectologger.Logger) *Repository {
	return &Repository{
		db:     db,
		logger: logger,
	}
}

// Entry is one indexed row
type Entry struct {
	RecallID   string    `db:"recall_id"`
	SearchText string    `db:"search_text"`
	UpdatedAt  time.Time `db:"updated_at"`
}

// BuildSearchText flattens the searchable fields of a recall into the text
// the trigram index covers.
func BuildSearchText(recall *models.Recall) string {
	parts := []string{
		recall.ProductName,
		recall.Brand,
		recall.HazardType,
		recall.HazardDescription,
	}
	parts = append(parts, recall.ModelNumbers...)

	joined := make([]string, 0, len(parts))
	for _, p := range parts {
		p = strings.TrimSpace(p)
		if p != "" {
			joined = append(joined, p)
		}
	}
	return strings.ToLower(strings.Join(joined, " "))
}

// Upsert refreshes the index entry for one canonical recall
func (r *Repository) Upsert(ctx context.Context, recall *models.Recall) error {
	ctx, span := tracing.StartSpan(ctx, "searchindex.Repository.Upsert")
	defer span.End()

	ib := database.NewInsertBuilder()
	ib.InsertInto("recall_search_index")
	ib.Cols("recall_id", "search_text", "updated_at")
	ib.Values(recall.ID, BuildSearchText(recall), time.Now().UTC())
	ub := ib.OnConflict("recall_id")
	ub.Set(
		ub.Assign("search_text", database.Excluded("search_text")),
		ub.Assign("updated_at", database.Excluded("updated_at")),
	)

	query, args := ib.Build()
	if _, err := database.Executor(ctx, r.db).ExecContext(ctx, query, args...); err != nil {
		r.logger.WithContext(ctx).WithError(err).WithField("recall_id", recall.ID).Error("Failed to upsert search index entry")
		return httperror.NewHTTPError(http.StatusInternalServerError, "failed to upsert search index entry")
	}
	return nil
}

// Delete removes the index entry of a recall that lost a consolidation
func (r *Repository) Delete(ctx context.Context, recallID string) error {
	ctx, span := tracing.StartSpan(ctx, "searchindex.Repository.Delete")
	defer span.End()

	sb := database.NewDeleteBuilder()
	sb.DeleteFrom("recall_search_index")
	sb.Where(sb.Equal("recall_id", recallID))

	query, args := sb.Build()
	if _, err := database.Executor(ctx, r.db).ExecContext(ctx, query, args...); err != nil {
		r.logger.WithContext(ctx).WithError(err).WithField("recall_id", recallID).Error("Failed to delete search index entry")
		return httperror.NewHTTPError(http.StatusInternalServerError, "failed to delete search index entry")
	}
	return nil
}

type searchRow struct {
	models.Recall
	Similarity float64 `db:"similarity"`
}

// Search runs a trigram similarity query against the index and returns
// ranked canonical recalls.
func (r *Repository) Search(ctx context.Context, req models.SearchRequest) (*models.SearchResponse, error) {
	ctx, span := tracing.StartSpan(ctx, "searchindex.Repository.Search")
	defer span.End()

	minSimilarity := req.MinSimilarity
	if minSimilarity <= 0 {
		minSimilarity = DefaultMinSimilarity
	}
	limit := req.Limit
	if limit <= 0 || limit > 200 {
		limit = 25
	}
	offset := req.Offset
	if offset < 0 {
		offset = 0
	}

	var conditions []string
	var args []any
	argNum := 1

	conditions = append(conditions, "r.deleted_at IS NULL")

	conditions = append(conditions, fmt.Sprintf("similarity(si.search_text, lower($%d)) >= $%d", argNum, argNum+1))
	scoreExpr := fmt.Sprintf("similarity(si.search_text, lower($%d))", argNum)
	args = append(args, req.Query, minSimilarity)
	argNum += 2

	if len(req.Countries) > 0 {
		conditions = append(conditions, fmt.Sprintf("r.country = ANY($%d)", argNum))
		args = append(args, pq.StringArray(req.Countries))
		argNum++
	}
	if len(req.Categories) > 0 {
		conditions = append(conditions, fmt.Sprintf("r.category = ANY($%d)", argNum))
		args = append(args, pq.StringArray(req.Categories))
		argNum++
	}
	if len(req.HazardTypes) > 0 {
		conditions = append(conditions, fmt.Sprintf("r.hazard_type = ANY($%d)", argNum))
		args = append(args, pq.StringArray(req.HazardTypes))
		argNum++
	}
	if req.MinRiskScore > 0 {
		conditions = append(conditions, fmt.Sprintf("r.risk_score >= $%d", argNum))
		args = append(args, req.MinRiskScore)
		argNum++
	}

	where := strings.Join(conditions, " AND ")

	countQuery := fmt.Sprintf(`
		SELECT COUNT(*)
		FROM recall_search_index si
		INNER JOIN recalls r ON r.id = si.recall_id
		WHERE %s
	`, where)

	var total int
	if err := database.Executor(ctx, r.db).GetContext(ctx, &total, countQuery, args...); err != nil {
		r.logger.WithContext(ctx).WithError(err).Error("Failed to count search results")
		return nil, httperror.NewHTTPError(http.StatusInternalServerError, "failed to search recalls")
	}

	query := fmt.Sprintf(`
		SELECT r.id, r.source_agency, r.source_record_id, r.product_name, r.brand, r.model_numbers, r.identifying_codes,
		       r.category, r.hazard_type, r.hazard_description, r.country, r.recall_date, r.risk_score, r.match_confidence,
		       r.merged_from, r.created_at, r.updated_at,
		       %s AS similarity
		FROM recall_search_index si
		INNER JOIN recalls r ON r.id = si.recall_id
		WHERE %s
		ORDER BY similarity DESC, r.risk_score DESC
		LIMIT %d OFFSET %d
	`, scoreExpr, where, limit, offset)

	var rows []searchRow
	if err := database.Executor(ctx, r.db).SelectContext(ctx, &rows, query, args...); err != nil {
		r.logger.WithContext(ctx).WithError(err).Error("Failed to search recalls")
		return nil, httperror.NewHTTPError(http.StatusInternalServerError, "failed to search recalls")
	}

	items := make([]models.SearchResult, 0, len(rows))
	for i := range rows {
		items = append(items, models.SearchResult{
			Recall:     rows[i].Recall,
			Similarity: rows[i].Similarity,
		})
	}

	return &models.SearchResponse{
		Items:      items,
		TotalCount: total,
		Limit:      limit,
		Offset:     offset,
	}, nil
}
