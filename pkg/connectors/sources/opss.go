package sources

import (
	"context"
	"fmt"
	"time"

	"github.com/Ramsey-B/yarrow/pkg/connectors"
	"github.com/Ramsey-B/yarrow/pkg/httpclient"
	"github.com/Ramsey-B/yarrow/pkg/models"
)

const opssDefaultBaseURL = "https://www.gov.uk/api/content/product-safety-alerts-reports-recalls"

// OPSS fetches product safety alerts from the UK Office for Product Safety
// and Standards. The feed has no date filter, so fetches always cover the
// lookback window.
type OPSS struct {
	client  *httpclient.Client
	baseURL string
}

// NewOPSS creates the OPSS connector
func NewOPSS(client *httpclient.Client, baseURL string) *OPSS {
	if baseURL == "" {
		baseURL = opssDefaultBaseURL
	}
	return &OPSS{client: client, baseURL: baseURL}
}

// Source returns the static source description
func (c *OPSS) Source() connectors.SourceInfo {
	return connectors.SourceInfo{
		Code:                     "UK_OPSS",
		Name:                     "UK Office for Product Safety and Standards",
		Country:                  "GB",
		Authority:                8,
		SupportsIncrementalFetch: false,
		SupportsFetchByID:        false,
	}
}

type opssFeed struct {
	Results []map[string]any `json:"results"`
}

// Fetch returns every alert inside the lookback window
func (c *OPSS) Fetch(ctx context.Context, cursor string, lookback time.Duration) (*connectors.FetchResult, error) {
	if lookback <= 0 {
		lookback = 90 * 24 * time.Hour
	}
	windowStart := time.Now().UTC().Add(-lookback)

	endpoint := fmt.Sprintf("%s?count=200", c.baseURL)

	var feed opssFeed
	if err := connectors.FetchJSON(ctx, c.client, "UK_OPSS", endpoint, nil, &feed); err != nil {
		return nil, err
	}

	now := time.Now().UTC()
	records := make([]models.RawRecord, 0, len(feed.Results))
	for _, item := range feed.Results {
		id := stringField(item, "content_id")
		if id == "" {
			id = stringField(item, "base_path")
		}
		if id == "" {
			continue
		}
		if published := stringField(item, "public_updated_at"); published != "" {
			if t, err := time.Parse(time.RFC3339, published); err == nil && t.Before(windowStart) {
				continue
			}
		}
		records = append(records, models.RawRecord{
			SourceAgency:   "UK_OPSS",
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
