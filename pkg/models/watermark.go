package models

import "time"

// SourceWatermark records the last successfully committed fetch position for
// one source. The cursor is opaque and source-defined (timestamp, page token).
// It only advances after the batch behind it is durably committed.
type SourceWatermark struct {
	SourceCode           string    `json:"source_code" db:"source_code"`
	LastSuccessfulCursor string    `json:"last_successful_cursor" db:"last_successful_cursor"`
	UpdatedAt            time.Time `json:"updated_at" db:"updated_at"`
}
