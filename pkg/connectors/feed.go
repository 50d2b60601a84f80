package connectors

import (
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"strconv"
	"time"

	"github.com/Ramsey-B/yarrow/pkg/httpclient"
)

// FetchJSON gets a URL and decodes the response into the given shape, with
// the status code classified into the connector error taxonomy. Every
// concrete connector funnels its feed requests through here so the
// classification rules live in one place.
func FetchJSON(ctx context.Context, client *httpclient.Client, sourceCode, url string, headers map[string]string, out any) error {
	resp, err := client.Get(ctx, url, headers)
	if err != nil {
		return NewTransientError(sourceCode, err)
	}

	if err := ClassifyStatus(sourceCode, resp); err != nil {
		return err
	}

	if err := json.Unmarshal(resp.Body, out); err != nil {
		// A feed that stops parsing is schema drift, not a network blip
		return NewSchemaChangedError(sourceCode, fmt.Errorf("decoding feed payload: %w", err))
	}
	return nil
}

// ClassifyStatus maps an HTTP response onto the connector error taxonomy
func ClassifyStatus(sourceCode string, resp *httpclient.Response) error {
	switch {
	case resp.StatusCode == http.StatusUnauthorized || resp.StatusCode == http.StatusForbidden:
		return NewAuthError(sourceCode, fmt.Errorf("status %d", resp.StatusCode))
	case resp.StatusCode == http.StatusTooManyRequests:
		return NewRateLimitError(sourceCode, ParseRetryAfter(resp.Headers["Retry-After"]), fmt.Errorf("status %d", resp.StatusCode))
	case resp.StatusCode >= 500:
		return NewTransientError(sourceCode, fmt.Errorf("status %d", resp.StatusCode))
	case resp.StatusCode >= 400:
		// An unexpected 4xx usually means the request shape no longer matches
		// what the source expects
		return NewSchemaChangedError(sourceCode, fmt.Errorf("status %d", resp.StatusCode))
	}
	return nil
}

// ParseRetryAfter interprets a Retry-After header, defaulting to 30s
func ParseRetryAfter(value string) time.Duration {
	if value == "" {
		return 30 * time.Second
	}
	if secs, err := strconv.Atoi(value); err == nil && secs > 0 {
		return time.Duration(secs) * time.Second
	}
	if t, err := http.ParseTime(value); err == nil {
		if d := time.Until(t); d > 0 {
			return d
		}
	}
	return 30 * time.Second
}
