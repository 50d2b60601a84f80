package sources

import (
	"context"
	"fmt"
	"time"

	"github.com/Ramsey-B/yarrow/pkg/connectors"
	"github.com/Ramsey-B/yarrow/pkg/httpclient"
	"github.com/Ramsey-B/yarrow/pkg/models"
)

const kccDefaultBaseURL = "https://www.consumer.go.kr/openapi/recall"

// KCC fetches recalls from the Korea Consumer Agency open data feed. The
// feed is page-based with no date filter.
type KCC struct {
	client  *httpclient.Client
	baseURL string
}

// NewKCC creates the KCC connector
func NewKCC(client *httpclient.Client, baseURL string) *KCC {
	if baseURL == "" {
		baseURL = kccDefaultBaseURL
	}
	return &KCC{client: client, baseURL: baseURL}
}

// Source returns the static source description
func (c *KCC) Source() connectors.SourceInfo {
	return connectors.SourceInfo{
		Code:                     "KR_KCA",
		Name:                     "Korea Consumer Agency",
		Country:                  "KR",
		Authority:                7,
		SupportsIncrementalFetch: false,
		SupportsFetchByID:        false,
	}
}

type kccFeed struct {
	Items      []map[string]any `json:"items"`
	TotalPages int              `json:"totalPages"`
}

// Fetch walks pages until records age out of the lookback window
func (c *KCC) Fetch(ctx context.Context, cursor string, lookback time.Duration) (*connectors.FetchResult, error) {
	if lookback <= 0 {
		lookback = 90 * 24 * time.Hour
	}
	windowStart := time.Now().UTC().Add(-lookback)

	now := time.Now().UTC()
	var records []models.RawRecord

	for page := 1; page <= 20; page++ {
		endpoint := fmt.Sprintf("%s?pageNo=%d&numOfRows=100", c.baseURL, page)

		var feed kccFeed
		if err := connectors.FetchJSON(ctx, c.client, "KR_KCA", endpoint, nil, &feed); err != nil {
			return nil, err
		}

		pastWindow := false
		for _, item := range feed.Items {
			id := stringField(item, "recallNo")
			if id == "" {
				continue
			}
			if published := stringField(item, "recallDate"); published != "" {
				if t, err := time.Parse("20060102", published); err == nil && t.Before(windowStart) {
					pastWindow = true
					continue
				}
			}
			records = append(records, models.RawRecord{
				SourceAgency:   "KR_KCA",
				SourceRecordID: id,
				Fields:         item,
				FetchedAt:      now,
			})
		}

		if pastWindow || page >= feed.TotalPages {
			break
		}
	}

	return &connectors.FetchResult{
		Records:   records,
		NewCursor: now.Format(time.RFC3339),
	}, nil
}
