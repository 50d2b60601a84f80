package sources

import (
	"context"
	"fmt"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/Gobusters/ectologger"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/Ramsey-B/yarrow/pkg/httpclient"
)

func TestACCCFetchesFixedWindow(t *testing.T) {
	logger := ectologger.NewEctoLogger(func(_ ectologger.EctoLogMessage) {})
	client := httpclient.NewClient(httpclient.DefaultConfig(), logger)

	var publishedAfter string
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		publishedAfter = r.URL.Query().Get("published_after")
		w.Header().Set("Content-Type", "application/json")
		fmt.Fprint(w, `{"items": [{"recall_number": "PRA-100"}]}`)
	}))
	defer server.Close()

	c := NewACCC(client, server.URL)
	assert.False(t, c.Source().SupportsIncrementalFetch)

	lookback := 30 * 24 * time.Hour
	result, err := c.Fetch(context.Background(), "2020-01-01T00:00:00Z", lookback)
	require.NoError(t, err)

	// The stale cursor is ignored; the window start tracks the lookback
	windowStart, err := time.Parse("2006-01-02", publishedAfter)
	require.NoError(t, err)
	assert.WithinDuration(t, time.Now().UTC().Add(-lookback), windowStart, 25*time.Hour)

	require.Len(t, result.Records, 1)
	assert.Equal(t, "PRA-100", result.Records[0].SourceRecordID)
	assert.NotEmpty(t, result.NewCursor, "window sources still report a cursor for watermark bookkeeping")
}
