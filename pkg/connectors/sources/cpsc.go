package sources

import (
	"context"
	"fmt"
	"net/url"
	"time"

	"github.com/Ramsey-B/yarrow/pkg/connectors"
	"github.com/Ramsey-B/yarrow/pkg/httpclient"
	"github.com/Ramsey-B/yarrow/pkg/models"
)

const cpscDefaultBaseURL = "https://www.saferproducts.gov/RestWebServices"

// CPSC fetches recalls from the US Consumer Product Safety Commission.
// The feed supports incremental fetch by last-published date.
type CPSC struct {
	client  *httpclient.Client
	baseURL string
}

// NewCPSC creates the CPSC connector
func NewCPSC(client *httpclient.Client, baseURL string) *CPSC {
	if baseURL == "" {
		baseURL = cpscDefaultBaseURL
	}
	return &CPSC{client: client, baseURL: baseURL}
}

// Source returns the static source description
func (c *CPSC) Source() connectors.SourceInfo {
	return connectors.SourceInfo{
		Code:                     "CPSC",
		Name:                     "US Consumer Product Safety Commission",
		Country:                  "US",
		Authority:                10,
		SupportsIncrementalFetch: true,
		SupportsFetchByID:        true,
	}
}

// Fetch returns recalls published after the cursor date
func (c *CPSC) Fetch(ctx context.Context, cursor string, lookback time.Duration) (*connectors.FetchResult, error) {
	since := cursorOrLookback(cursor, lookback)

	endpoint := fmt.Sprintf("%s/Recall?format=json&RecallDateStart=%s", c.baseURL, url.QueryEscape(since.Format("2006-01-02")))

	var items []map[string]any
	if err := connectors.FetchJSON(ctx, c.client, "CPSC", endpoint, nil, &items); err != nil {
		return nil, err
	}

	now := time.Now().UTC()
	records := make([]models.RawRecord, 0, len(items))
	for _, item := range items {
		id := stringField(item, "RecallID")
		if id == "" {
			id = stringField(item, "RecallNumber")
		}
		if id == "" {
			continue
		}
		records = append(records, models.RawRecord{
			SourceAgency:   "CPSC",
			SourceRecordID: id,
			Fields:         item,
			FetchedAt:      now,
		})
	}

	return &connectors.FetchResult{
		Records:   records,
		NewCursor: now.Format(time.RFC3339),
	}, nil
}

// FetchByID re-fetches a single recall
func (c *CPSC) FetchByID(ctx context.Context, recordID string) (*models.RawRecord, error) {
	endpoint := fmt.Sprintf("%s/Recall?format=json&RecallID=%s", c.baseURL, url.QueryEscape(recordID))

	var items []map[string]any
	if err := connectors.FetchJSON(ctx, c.client, "CPSC", endpoint, nil, &items); err != nil {
		return nil, err
	}
	if len(items) == 0 {
		return nil, nil
	}

	return &models.RawRecord{
		SourceAgency:   "CPSC",
		SourceRecordID: recordID,
		Fields:         items[0],
		FetchedAt:      time.Now().UTC(),
	}, nil
}

// cursorOrLookback resolves the fetch start from the stored cursor, falling
// back to the lookback window when the cursor is missing or unparseable.
func cursorOrLookback(cursor string, lookback time.Duration) time.Time {
	if cursor != "" {
		if t, err := time.Parse(time.RFC3339, cursor); err == nil {
			return t
		}
	}
	if lookback <= 0 {
		lookback = 90 * 24 * time.Hour
	}
	return time.Now().UTC().Add(-lookback)
}
