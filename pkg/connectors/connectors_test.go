package connectors

import (
	"context"
	"errors"
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

func TestSourceError(t *testing.T) {
	t.Run("retryable kinds", func(t *testing.T) {
		tests := []struct {
			kind      ErrorKind
			retryable bool
		}{
			{ErrorKindTransient, true},
			{ErrorKindRateLimited, true},
			{ErrorKindSchemaChanged, false},
			{ErrorKindAuth, false},
		}

		for _, tt := range tests {
			srcErr := &SourceError{Kind: tt.kind, SourceCode: "CPSC", Err: errors.New("boom")}
			assert.Equal(t, tt.retryable, srcErr.Retryable(), string(tt.kind))
		}
	})

	t.Run("unwraps the cause", func(t *testing.T) {
		cause := errors.New("connection reset")
		srcErr := NewTransientError("CPSC", cause)

		assert.ErrorIs(t, srcErr, cause)
	})

	t.Run("as source error passes through classified errors", func(t *testing.T) {
		original := NewAuthError("CPSC", errors.New("bad token"))
		wrapped := fmt.Errorf("fetching page 2: %w", original)

		got := AsSourceError("CPSC", wrapped)
		assert.Equal(t, ErrorKindAuth, got.Kind)
	})

	t.Run("as source error defaults unclassified to transient", func(t *testing.T) {
		got := AsSourceError("CPSC", errors.New("connection refused"))
		assert.Equal(t, ErrorKindTransient, got.Kind)
		assert.True(t, got.Retryable())
	})
}

func TestCalculateBackoff(t *testing.T) {
	tests := []struct {
		name     string
		retry    *RetryConfig
		attempt  int
		expected time.Duration
	}{
		{
			name:     "nil config falls back to one second",
			retry:    nil,
			attempt:  3,
			expected: time.Second,
		},
		{
			name:     "exponential doubles each attempt",
			retry:    &RetryConfig{BackoffType: "exponential", InitialDelay: 1000, MaxDelay: 60000},
			attempt:  3,
			expected: 4 * time.Second,
		},
		{
			name:     "fibonacci follows the sequence",
			retry:    &RetryConfig{BackoffType: "fibonacci", InitialDelay: 1000, MaxDelay: 60000},
			attempt:  5,
			expected: 3 * time.Second,
		},
		{
			name:     "linear grows by the initial delay",
			retry:    &RetryConfig{BackoffType: "linear", InitialDelay: 500, MaxDelay: 60000},
			attempt:  4,
			expected: 2 * time.Second,
		},
		{
			name:     "unknown type uses exponential",
			retry:    &RetryConfig{BackoffType: "bogus", InitialDelay: 1000, MaxDelay: 60000},
			attempt:  2,
			expected: 2 * time.Second,
		},
		{
			name:     "delay is capped at max",
			retry:    &RetryConfig{BackoffType: "exponential", InitialDelay: 1000, MaxDelay: 5000},
			attempt:  10,
			expected: 5 * time.Second,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.Equal(t, tt.expected, CalculateBackoff(tt.retry, tt.attempt))
		})
	}
}

type stubConnector struct {
	info SourceInfo
}

func (s *stubConnector) Source() SourceInfo {
	return s.info
}

func (s *stubConnector) Fetch(_ context.Context, _ string, _ time.Duration) (*FetchResult, error) {
	return &FetchResult{}, nil
}

func TestRegistry(t *testing.T) {
	t.Run("register and get", func(t *testing.T) {
		registry := NewRegistry()
		require.NoError(t, registry.Register(&stubConnector{info: SourceInfo{Code: "CPSC"}}))

		c, ok := registry.Get("CPSC")
		require.True(t, ok)
		assert.Equal(t, "CPSC", c.Source().Code)

		_, ok = registry.Get("UNKNOWN")
		assert.False(t, ok)
	})

	t.Run("rejects duplicate codes", func(t *testing.T) {
		registry := NewRegistry()
		require.NoError(t, registry.Register(&stubConnector{info: SourceInfo{Code: "CPSC"}}))

		err := registry.Register(&stubConnector{info: SourceInfo{Code: "CPSC"}})
		require.Error(t, err)
	})

	t.Run("rejects empty codes", func(t *testing.T) {
		registry := NewRegistry()
		require.Error(t, registry.Register(&stubConnector{}))
	})

	t.Run("codes are sorted", func(t *testing.T) {
		registry := NewRegistry()
		for _, code := range []string{"UK_OPSS", "CPSC", "EU_SAFETY_GATE"} {
			require.NoError(t, registry.Register(&stubConnector{info: SourceInfo{Code: code}}))
		}

		assert.Equal(t, []string{"CPSC", "EU_SAFETY_GATE", "UK_OPSS"}, registry.Codes())

		all := registry.All()
		require.Len(t, all, 3)
		assert.Equal(t, "CPSC", all[0].Source().Code)
	})
}

func TestClassifyStatus(t *testing.T) {
	tests := []struct {
		name   string
		status int
		kind   ErrorKind
	}{
		{"unauthorized", http.StatusUnauthorized, ErrorKindAuth},
		{"forbidden", http.StatusForbidden, ErrorKindAuth},
		{"too many requests", http.StatusTooManyRequests, ErrorKindRateLimited},
		{"server error", http.StatusInternalServerError, ErrorKindTransient},
		{"bad gateway", http.StatusBadGateway, ErrorKindTransient},
		{"not found", http.StatusNotFound, ErrorKindSchemaChanged},
		{"bad request", http.StatusBadRequest, ErrorKindSchemaChanged},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			err := ClassifyStatus("CPSC", &httpclient.Response{StatusCode: tt.status})
			require.Error(t, err)

			var srcErr *SourceError
			require.ErrorAs(t, err, &srcErr)
			assert.Equal(t, tt.kind, srcErr.Kind)
		})
	}

	t.Run("success statuses pass", func(t *testing.T) {
		assert.NoError(t, ClassifyStatus("CPSC", &httpclient.Response{StatusCode: http.StatusOK}))
		assert.NoError(t, ClassifyStatus("CPSC", &httpclient.Response{StatusCode: http.StatusNoContent}))
	})

	t.Run("rate limit carries the retry hint", func(t *testing.T) {
		resp := &httpclient.Response{
			StatusCode: http.StatusTooManyRequests,
			Headers:    map[string]string{"Retry-After": "120"},
		}

		var srcErr *SourceError
		require.ErrorAs(t, ClassifyStatus("CPSC", resp), &srcErr)
		assert.Equal(t, 2*time.Minute, srcErr.RetryAfter)
	})
}

func TestParseRetryAfter(t *testing.T) {
	assert.Equal(t, 30*time.Second, ParseRetryAfter(""))
	assert.Equal(t, 90*time.Second, ParseRetryAfter("90"))
	assert.Equal(t, 30*time.Second, ParseRetryAfter("garbage"))

	// HTTP-date form resolves to the remaining wait
	future := time.Now().Add(10 * time.Minute).UTC().Format(http.TimeFormat)
	d := ParseRetryAfter(future)
	assert.Greater(t, d, 9*time.Minute)
	assert.LessOrEqual(t, d, 10*time.Minute)

	// A date in the past falls back to the default
	past := time.Now().Add(-time.Hour).UTC().Format(http.TimeFormat)
	assert.Equal(t, 30*time.Second, ParseRetryAfter(past))
}

func TestFetchJSON(t *testing.T) {
	logger := ectologger.NewEctoLogger(func(_ ectologger.EctoLogMessage) {})
	client := httpclient.NewClient(httpclient.DefaultConfig(), logger)

	t.Run("decodes a healthy feed", func(t *testing.T) {
		server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			assert.Equal(t, "yarrow", r.Header.Get("User-Agent"))
			w.Header().Set("Content-Type", "application/json")
			fmt.Fprint(w, `{"records": [{"id": "r-1"}]}`)
		}))
		defer server.Close()

		var payload struct {
			Records []struct {
				ID string `json:"id"`
			} `json:"records"`
		}
		err := FetchJSON(context.Background(), client, "CPSC", server.URL, map[string]string{"User-Agent": "yarrow"}, &payload)
		require.NoError(t, err)
		require.Len(t, payload.Records, 1)
		assert.Equal(t, "r-1", payload.Records[0].ID)
	})

	t.Run("malformed payload is schema drift", func(t *testing.T) {
		server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, _ *http.Request) {
			fmt.Fprint(w, `<html>maintenance page</html>`)
		}))
		defer server.Close()

		var payload map[string]any
		err := FetchJSON(context.Background(), client, "CPSC", server.URL, nil, &payload)

		var srcErr *SourceError
		require.ErrorAs(t, err, &srcErr)
		assert.Equal(t, ErrorKindSchemaChanged, srcErr.Kind)
		assert.False(t, srcErr.Retryable())
	})

	t.Run("server errors are transient", func(t *testing.T) {
		server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, _ *http.Request) {
			w.WriteHeader(http.StatusServiceUnavailable)
		}))
		defer server.Close()

		var payload map[string]any
		err := FetchJSON(context.Background(), client, "CPSC", server.URL, nil, &payload)

		var srcErr *SourceError
		require.ErrorAs(t, err, &srcErr)
		assert.Equal(t, ErrorKindTransient, srcErr.Kind)
		assert.True(t, srcErr.Retryable())
	})

	t.Run("unreachable host is transient", func(t *testing.T) {
		var payload map[string]any
		err := FetchJSON(context.Background(), client, "CPSC", "http://127.0.0.1:1/feed", nil, &payload)

		var srcErr *SourceError
		require.ErrorAs(t, err, &srcErr)
		assert.Equal(t, ErrorKindTransient, srcErr.Kind)
	})
}

var _ Connector = (*stubConnector)(nil)
