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

const safetyGateDefaultBaseURL = "https://ec.europa.eu/safety-gate-alerts/public/api"

// SafetyGate fetches alerts from the EU Safety Gate (ex-RAPEX) system. The
// feed is paginated with no date filter, so every fetch walks pages until it
// falls out of the lookback window.
type SafetyGate struct {
	client  *httpclient.Client
	baseURL string
}

// NewSafetyGate creates the Safety Gate connector
func NewSafetyGate(client *httpclient.Client, baseURL string) *SafetyGate {
	if baseURL == "" {
		baseURL = safetyGateDefaultBaseURL
	}
	return &SafetyGate{client: client, baseURL: baseURL}
}

// Source returns the static source description
func (c *SafetyGate) Source() connectors.SourceInfo {
	return connectors.SourceInfo{
		Code:                     "EU_SAFETY_GATE",
		Name:                     "EU Safety Gate",
		Country:                  "EU",
		Authority:                9,
		SupportsIncrementalFetch: false,
		SupportsFetchByID:        false,
	}
}

type safetyGatePage struct {
	Content []map[string]any `json:"content"`
	Last    bool             `json:"last"`
}

// Fetch walks alert pages newest-first until records age out of the lookback
// window. The cursor is ignored; the window end is returned so the watermark
// still records the last successful fetch.
func (c *SafetyGate) Fetch(ctx context.Context, cursor string, lookback time.Duration) (*connectors.FetchResult, error) {
	if lookback <= 0 {
		lookback = 90 * 24 * time.Hour
	}
	windowStart := time.Now().UTC().Add(-lookback)

	now := time.Now().UTC()
	var records []models.RawRecord

	for page := 0; page < 50; page++ {
		endpoint := fmt.Sprintf("%s/notification/carousel/grid?language=en&page=%d", c.baseURL, page)

		var result safetyGatePage
		if err := connectors.FetchJSON(ctx, c.client, "EU_SAFETY_GATE", endpoint, nil, &result); err != nil {
			return nil, err
		}

		pastWindow := false
		for _, item := range result.Content {
			id := safetyGateID(item)
			if id == "" {
				continue
			}
			if published, ok := item["publicationDate"].(string); ok {
				if t, err := time.Parse("2006-01-02", published); err == nil && t.Before(windowStart) {
					pastWindow = true
					continue
				}
			}
			records = append(records, models.RawRecord{
				SourceAgency:   "EU_SAFETY_GATE",
				SourceRecordID: id,
				Fields:         item,
				FetchedAt:      now,
			})
		}

		if result.Last || pastWindow {
			break
		}
	}

	return &connectors.FetchResult{
		Records:   records,
		NewCursor: now.Format(time.RFC3339),
	}, nil
}

func safetyGateID(item map[string]any) string {
	if ref := stringField(item, "reference"); ref != "" {
		return ref
	}
	// Some payload revisions expose a numeric id instead of the reference
	if v, ok := item["id"].(float64); ok {
		return strconv.FormatInt(int64(v), 10)
	}
	return ""
}
