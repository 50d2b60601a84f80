// Package search keeps the trigram search index aligned with the canonical
// store and serves fuzzy queries against it.
package search

import (
	"context"

	"github.com/Gobusters/ectologger"

	"github.com/Ramsey-B/yarrow/internal/repositories/searchindex"
	"github.com/Ramsey-B/yarrow/pkg/metrics"
	"github.com/Ramsey-B/yarrow/pkg/models"
	"github.com/Ramsey-B/yarrow/pkg/tracing"
)

// Maintainer applies index maintenance after canonical rows change. Callers
// invoke it after the owning transaction commits; a missed upsert is repaired
// by the next write to the same row, while an upsert for a rolled-back row
// would poison the index.
type Maintainer struct {
	logger    ectologger.Logger
	indexRepo *searchindex.Repository
}

// NewMaintainer creates a search index maintainer
func NewMaintainer(logger ectologger.Logger, indexRepo *searchindex.Repository) *Maintainer {
	return &Maintainer{
		logger:    logger,
		indexRepo: indexRepo,
	}
}

// Sync upserts index entries for every given recall. Failures are logged and
// skipped; index staleness never fails an ingestion run.
func (m *Maintainer) Sync(ctx context.Context, recalls []*models.Recall) {
	ctx, span := tracing.StartSpan(ctx, "search.Maintainer.Sync")
	defer span.End()

	for _, r := range recalls {
		if r == nil {
			continue
		}
		if err := m.indexRepo.Upsert(ctx, r); err != nil {
			metrics.SearchIndexUpserts.WithLabelValues("error").Inc()
			m.logger.WithContext(ctx).WithError(err).WithFields(map[string]any{
				"recall_id": r.ID,
			}).Warn("Failed to upsert search index entry")
			continue
		}
		metrics.SearchIndexUpserts.WithLabelValues("success").Inc()
	}
}

// Remove drops index entries for soft-deleted recalls
func (m *Maintainer) Remove(ctx context.Context, recallIDs []string) {
	ctx, span := tracing.StartSpan(ctx, "search.Maintainer.Remove")
	defer span.End()

	for _, id := range recallIDs {
		if err := m.indexRepo.Delete(ctx, id); err != nil {
			m.logger.WithContext(ctx).WithError(err).WithFields(map[string]any{
				"recall_id": id,
			}).Warn("Failed to delete search index entry")
		}
	}
}

// Search runs a fuzzy query against the index
func (m *Maintainer) Search(ctx context.Context, req models.SearchRequest) (*models.SearchResponse, error) {
	ctx, span := tracing.StartSpan(ctx, "search.Maintainer.Search")
	defer span.End()

	return m.indexRepo.Search(ctx, req)
}
