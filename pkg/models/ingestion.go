package models

import (
	"time"
)

// RunStatus is the lifecycle state of an ingestion run.
type RunStatus string

const (
	RunStatusPending             RunStatus = "PENDING"
	RunStatusRunning             RunStatus = "RUNNING"
	RunStatusCompleted           RunStatus = "COMPLETED"
	RunStatusCompletedWithErrors RunStatus = "COMPLETED_WITH_ERRORS"
	// RunStatusFailed is only used when every attempted source failed.
	RunStatusFailed    RunStatus = "FAILED"
	RunStatusCancelled RunStatus = "CANCELLED"
)

// RunTrigger identifies what started a run.
type RunTrigger string

const (
	RunTriggerScheduled RunTrigger = "scheduled"
	RunTriggerManual    RunTrigger = "manual"
)

// SourceOutcome is the per-source result recorded on an ingestion run.
type SourceOutcome struct {
	SourceCode     string `json:"source_code"`
	Attempted      bool   `json:"attempted"`
	Succeeded      bool   `json:"succeeded"`
	Failed         bool   `json:"failed"`
	Skipped        bool   `json:"skipped"`
	RecordsFetched int    `json:"records_fetched"`
	RecordsNew     int    `json:"records_new"`
	RecordsMerged  int    `json:"records_merged"`
	Error          string `json:"error,omitempty"`
	DurationMS     int64  `json:"duration_ms"`
}

// IngestionRun is the persisted summary of one ingestion cycle.
type IngestionRun struct {
	ID         string                   `json:"id" db:"id"`
	Status     RunStatus                `json:"status" db:"status"`
	Trigger    RunTrigger               `json:"trigger" db:"trigger"`
	Sources    []string                 `json:"sources" db:"-"`
	Outcomes   map[string]SourceOutcome `json:"outcomes" db:"-"`
	StartedAt  *time.Time               `json:"started_at,omitempty" db:"started_at"`
	FinishedAt *time.Time               `json:"finished_at,omitempty" db:"finished_at"`
	CreatedAt  time.Time                `json:"created_at" db:"created_at"`
	UpdatedAt  time.Time                `json:"updated_at" db:"updated_at"`
}

// IsTerminal reports whether the run has reached a final state.
func (r *IngestionRun) IsTerminal() bool {
	switch r.Status {
	case RunStatusCompleted, RunStatusCompletedWithErrors, RunStatusFailed, RunStatusCancelled:
		return true
	}
	return false
}

// TriggerIngestionRequest asks the orchestrator for a new run.
type TriggerIngestionRequest struct {
	Sources  []string `json:"sources,omitempty"`
	Lookback string   `json:"lookback,omitempty"`
}

// TriggerIngestionResponse returns the identifier of the enqueued run.
type TriggerIngestionResponse struct {
	RunID  string    `json:"run_id"`
	Status RunStatus `json:"status"`
}

// RecalculationScope selects which recalls a risk recalculation covers.
type RecalculationScope string

const (
	RecalculationScopeAll          RecalculationScope = "all"
	RecalculationScopeChangedSince RecalculationScope = "changed-since"
)

// TriggerRecalculationRequest asks for a risk recalculation pass.
type TriggerRecalculationRequest struct {
	Scope        RecalculationScope `json:"scope,omitempty"`
	ChangedSince *time.Time         `json:"changed_since,omitempty"`
}

// RecalculationSummary reports the outcome of a recalculation pass.
type RecalculationSummary struct {
	Scope      RecalculationScope `json:"scope"`
	Examined   int                `json:"examined"`
	Updated    int                `json:"updated"`
	StartedAt  time.Time          `json:"started_at"`
	FinishedAt time.Time          `json:"finished_at"`
}
