package models

import (
	"fmt"
	"strings"
	"time"

	"github.com/lib/pq"
)

// SourceRef identifies one raw record at its source agency.
type SourceRef struct {
	SourceAgency   string `json:"source_agency"`
	SourceRecordID string `json:"source_record_id"`
}

// String renders the reference as "AGENCY:record_id", the form stored in
// merged_from columns and event payloads.
func (r SourceRef) String() string {
	return fmt.Sprintf("%s:%s", r.SourceAgency, r.SourceRecordID)
}

// ParseSourceRef parses an "AGENCY:record_id" reference.
func ParseSourceRef(s string) (SourceRef, error) {
	idx := strings.Index(s, ":")
	if idx <= 0 || idx == len(s)-1 {
		return SourceRef{}, fmt.Errorf("invalid source ref %q", s)
	}
	return SourceRef{SourceAgency: s[:idx], SourceRecordID: s[idx+1:]}, nil
}

// Recall is the canonical, deduplicated representation of a product recall.
// The leading source pair identifies the raw record that created the row;
// every other contributing raw record is listed in MergedFrom.
type Recall struct {
	ID                string         `json:"id" db:"id"`
	SourceAgency      string         `json:"source_agency" db:"source_agency"`
	SourceRecordID    string         `json:"source_record_id" db:"source_record_id"`
	ProductName       string         `json:"product_name" db:"product_name"`
	Brand             string         `json:"brand" db:"brand"`
	ModelNumbers      pq.StringArray `json:"model_numbers" db:"model_numbers"`
	IdentifyingCodes  pq.StringArray `json:"identifying_codes" db:"identifying_codes"`
	Category          string         `json:"category" db:"category"`
	HazardType        string         `json:"hazard_type" db:"hazard_type"`
	HazardDescription string         `json:"hazard_description" db:"hazard_description"`
	Country           string         `json:"country" db:"country"`
	RecallDate        time.Time      `json:"recall_date" db:"recall_date"`
	RiskScore         int            `json:"risk_score" db:"risk_score"`
	MatchConfidence   float64        `json:"match_confidence" db:"match_confidence"`
	MergedFrom        pq.StringArray `json:"merged_from" db:"merged_from"`
	CreatedAt         time.Time      `json:"created_at" db:"created_at"`
	UpdatedAt         time.Time      `json:"updated_at" db:"updated_at"`
}

// Ref returns the leading source reference of the canonical row.
func (r *Recall) Ref() SourceRef {
	return SourceRef{SourceAgency: r.SourceAgency, SourceRecordID: r.SourceRecordID}
}

// AllRefs returns the leading ref plus every merged-in ref.
func (r *Recall) AllRefs() []SourceRef {
	refs := []SourceRef{r.Ref()}
	for _, s := range r.MergedFrom {
		ref, err := ParseSourceRef(s)
		if err != nil {
			continue
		}
		refs = append(refs, ref)
	}
	return refs
}

// RecallSource is one row of the cluster membership table. It pins a raw
// source record to the canonical recall it currently resolves to.
type RecallSource struct {
	RecallID       string    `json:"recall_id" db:"recall_id"`
	SourceAgency   string    `json:"source_agency" db:"source_agency"`
	SourceRecordID string    `json:"source_record_id" db:"source_record_id"`
	MatchScore     float64   `json:"match_score" db:"match_score"`
	CreatedAt      time.Time `json:"created_at" db:"created_at"`
}

// SearchRequest is a fuzzy search over the canonical dataset.
type SearchRequest struct {
	Query         string   `json:"query" validate:"required"`
	Countries     []string `json:"countries,omitempty"`
	Categories    []string `json:"categories,omitempty"`
	HazardTypes   []string `json:"hazard_types,omitempty"`
	MinRiskScore  int      `json:"min_risk_score,omitempty"`
	MinSimilarity float64  `json:"min_similarity,omitempty"`
	Limit         int      `json:"limit,omitempty"`
	Offset        int      `json:"offset,omitempty"`
}

// SearchResult is one ranked hit from the search index.
type SearchResult struct {
	Recall     Recall  `json:"recall"`
	Similarity float64 `json:"similarity"`
}

// SearchResponse is the ranked result list for a search request.
type SearchResponse struct {
	Items      []SearchResult `json:"items"`
	TotalCount int            `json:"total_count"`
	Limit      int            `json:"limit"`
	Offset     int            `json:"offset"`
}
