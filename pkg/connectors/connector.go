// Package connectors defines the per-source fetch framework. Each regulatory
// agency feed is one small Connector implementation registered by source code.
package connectors

import (
	"context"
	"time"

	"github.com/Ramsey-B/yarrow/pkg/models"
)

// SourceInfo describes a source and its capabilities
type SourceInfo struct {
	// Code is the stable identifier of the source, e.g. "CPSC"
	Code string
	// Name is the human-readable agency name
	Name string
	// Country is the ISO country code the agency covers
	Country string
	// Authority weights into risk scoring; higher means more trusted
	Authority int
	// SupportsIncrementalFetch reports whether the source honors cursors.
	// Sources without it always fetch a fixed lookback window.
	SupportsIncrementalFetch bool
	// SupportsFetchByID reports whether single records can be re-fetched
	SupportsFetchByID bool
}

// FetchResult is the outcome of one fetch call
type FetchResult struct {
	Records []models.RawRecord
	// NewCursor is persisted as the source watermark once the batch commits
	NewCursor string
}

// Connector fetches raw records from one external source. Implementations
// are stateless between invocations; cursor state lives in the watermark
// table.
type Connector interface {
	// Source returns the static description of the source
	Source() SourceInfo

	// Fetch returns records newer than the cursor. A zero cursor means first
	// run; connectors without incremental support fetch the lookback window
	// and return the window end as the new cursor.
	Fetch(ctx context.Context, cursor string, lookback time.Duration) (*FetchResult, error)
}

// FetcherByID is implemented by connectors that can re-fetch one record
type FetcherByID interface {
	FetchByID(ctx context.Context, recordID string) (*models.RawRecord, error)
}
