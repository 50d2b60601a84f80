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

const acccDefaultBaseURL = "https://www.productsafety.gov.au/api/recalls"

// ACCC fetches recalls from the Australian Competition and Consumer
// Commission product safety feed. The feed's published_after filter lags
// edits, so every fetch re-reads a fixed lookback window and dedup absorbs
// the overlap.
type ACCC struct {
	client  *httpclient.Client
	baseURL string
}

// NewACCC creates the ACCC connector
func NewACCC(client *httpclient.Client, baseURL string) *ACCC {
	if baseURL == "" {
		baseURL = acccDefaultBaseURL
	}
	return &ACCC{client: client, baseURL: baseURL}
}

// Source returns the static source description
func (c *ACCC) Source() connectors.SourceInfo {
	return connectors.SourceInfo{
		Code:                     "AU_ACCC",
		Name:                     "Australian Competition and Consumer Commission",
		Country:                  "AU",
		Authority:                8,
		SupportsIncrementalFetch: false,
		SupportsFetchByID:        false,
	}
}

type acccFeed struct {
	Items []map[string]any `json:"items"`
}

// Fetch returns recalls published inside the lookback window. The cursor is
// ignored; the window end is still returned so watermark bookkeeping can see
// when the source last committed.
func (c *ACCC) Fetch(ctx context.Context, _ string, lookback time.Duration) (*connectors.FetchResult, error) {
	if lookback <= 0 {
		lookback = 90 * 24 * time.Hour
	}
	since := time.Now().UTC().Add(-lookback)

	endpoint := fmt.Sprintf("%s?published_after=%s&per_page=200", c.baseURL, url.QueryEscape(since.Format("2006-01-02")))

	var feed acccFeed
	if err := connectors.FetchJSON(ctx, c.client, "AU_ACCC", endpoint, nil, &feed); err != nil {
		return nil, err
	}

	now := time.Now().UTC()
	records := make([]models.RawRecord, 0, len(feed.Items))
	for _, item := range feed.Items {
		id := stringField(item, "recall_number")
		if id == "" {
			id = stringField(item, "id")
		}
		if id == "" {
			continue
		}
		records = append(records, models.RawRecord{
			SourceAgency:   "AU_ACCC",
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
