package sources

import (
	"context"
	"fmt"
	"strconv"
	"time"

	"github.com/Ramsey-B/yarrow/pkg/connectors"
	"github.com/Ramsey-B/yarrow/pkg/httpclient"
	"github.com/Ramsey-B/yarrow/pkg/models"
)

const healthCanadaDefaultBaseURL = "https://healthycanadians.gc.ca/recall-alert-rappel-avis/api"

// HealthCanada fetches recalls from the Health Canada recall API. The feed
// supports incremental fetch via a unix-timestamp search parameter.
type HealthCanada struct {
	client  *httpclient.Client
	baseURL string
}

// NewHealthCanada creates the Health Canada connector
func NewHealthCanada(client *httpclient.Client, baseURL string) *HealthCanada {
	if baseURL == "" {
		baseURL = healthCanadaDefaultBaseURL
	}
	return &HealthCanada{client: client, baseURL: baseURL}
}

// Source returns the static source description
func (c *HealthCanada) Source() connectors.SourceInfo {
	return connectors.SourceInfo{
		Code:                     "HEALTH_CANADA",
		Name:                     "Health Canada",
		Country:                  "CA",
		Authority:                9,
		SupportsIncrementalFetch: true,
		SupportsFetchByID:        true,
	}
}

type healthCanadaFeed struct {
	Results struct {
		ALL []map[string]any `json:"ALL"`
	} `json:"results"`
}

// Fetch returns recalls published after the cursor timestamp
func (c *HealthCanada) Fetch(ctx context.Context, cursor string, lookback time.Duration) (*connectors.FetchResult, error) {
	since := healthCanadaCursor(cursor, lookback)

	endpoint := fmt.Sprintf("%s/search?search=&lang=en&cat=1&lim=200&off=0&since=%d", c.baseURL, since.Unix())

	var feed healthCanadaFeed
	if err := connectors.FetchJSON(ctx, c.client, "HEALTH_CANADA", endpoint, nil, &feed); err != nil {
		return nil, err
	}

	now := time.Now().UTC()
	records := make([]models.RawRecord, 0, len(feed.Results.ALL))
	for _, item := range feed.Results.ALL {
		id := stringField(item, "recallId")
		if id == "" {
			if v, ok := item["recallId"].(float64); ok {
				id = strconv.FormatInt(int64(v), 10)
			}
		}
		if id == "" {
			continue
		}
		records = append(records, models.RawRecord{
			SourceAgency:   "HEALTH_CANADA",
			SourceRecordID: id,
			Fields:         item,
			FetchedAt:      now,
		})
	}

	return &connectors.FetchResult{
		Records:   records,
		NewCursor: strconv.FormatInt(now.Unix(), 10),
	}, nil
}

// FetchByID re-fetches a single recall detail
func (c *HealthCanada) FetchByID(ctx context.Context, recordID string) (*models.RawRecord, error) {
	endpoint := fmt.Sprintf("%s/%s/en", c.baseURL, recordID)

	var item map[string]any
	if err := connectors.FetchJSON(ctx, c.client, "HEALTH_CANADA", endpoint, nil, &item); err != nil {
		return nil, err
	}

	return &models.RawRecord{
		SourceAgency:   "HEALTH_CANADA",
		SourceRecordID: recordID,
		Fields:         item,
		FetchedAt:      time.Now().UTC(),
	}, nil
}

func healthCanadaCursor(cursor string, lookback time.Duration) time.Time {
	if cursor != "" {
		if unix, err := strconv.ParseInt(cursor, 10, 64); err == nil {
			return time.Unix(unix, 0).UTC()
		}
	}
	if lookback <= 0 {
		lookback = 90 * 24 * time.Hour
	}
	return time.Now().UTC().Add(-lookback)
}
