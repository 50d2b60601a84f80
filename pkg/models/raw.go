package models

import (
	"encoding/json"
	"time"
)

// RawRecord is a single record in source-native shape, exactly as a connector
// fetched it. Fields holds the decoded payload; nothing is assumed about its
// structure beyond being JSON-decodable.
type RawRecord struct {
	SourceAgency   string         `json:"source_agency"`
	SourceRecordID string         `json:"source_record_id"`
	Fields         map[string]any `json:"fields"`
	FetchedAt      time.Time      `json:"fetched_at"`
}

// Payload returns the raw fields re-encoded as JSON for storage.
func (r *RawRecord) Payload() (json.RawMessage, error) {
	return json.Marshal(r.Fields)
}

// Draft is a Recall-shaped normalization result that has not yet been through
// deduplication. Confidence reflects how cleanly the source payload mapped
// onto the canonical schema.
type Draft struct {
	SourceAgency      string    `json:"source_agency"`
	SourceRecordID    string    `json:"source_record_id"`
	ProductName       string    `json:"product_name"`
	Brand             string    `json:"brand"`
	ModelNumbers      []string  `json:"model_numbers"`
	IdentifyingCodes  []string  `json:"identifying_codes"`
	Category          string    `json:"category"`
	HazardType        string    `json:"hazard_type"`
	HazardDescription string    `json:"hazard_description"`
	Country           string    `json:"country"`
	RecallDate        time.Time `json:"recall_date"`
	Confidence        float64   `json:"confidence"`
}

// Ref returns the source reference of the draft.
func (d *Draft) Ref() SourceRef {
	return SourceRef{SourceAgency: d.SourceAgency, SourceRecordID: d.SourceRecordID}
}
