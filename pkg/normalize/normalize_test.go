package normalize

import (
	"testing"
	"time"

	"github.com/Gobusters/ectologger"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/Ramsey-B/yarrow/pkg/models"
)

func testLogger() ectologger.Logger {
	return ectologger.NewEctoLogger(func(_ ectologger.EctoLogMessage) {})
}

func TestNormalize_CPSC(t *testing.T) {
	n := New(testLogger())

	raw := models.RawRecord{
		SourceAgency:   "CPSC",
		SourceRecordID: "9182",
		FetchedAt:      time.Date(2026, 3, 1, 0, 0, 0, 0, time.UTC),
		Fields: map[string]any{
			"Title":       "Acme Recalls Strollers Due to Fall Hazard",
			"Description": "The stroller wheel can detach, posing a fall hazard.",
			"RecallDate":  "2026-02-10T00:00:00",
			"Products": []any{
				map[string]any{"Name": "Acme  Deluxe Stroller", "Model": "ax-200", "Type": "Strollers"},
			},
			"Manufacturers": []any{
				map[string]any{"Name": "Acme Corp"},
			},
			"Hazards": []any{
				map[string]any{"Name": "Fall Hazard"},
			},
		},
	}

	draft, err := n.Normalize(raw)
	require.NoError(t, err)

	assert.Equal(t, "CPSC", draft.SourceAgency)
	assert.Equal(t, "9182", draft.SourceRecordID)
	assert.Equal(t, "Acme Deluxe Stroller", draft.ProductName)
	assert.Equal(t, "Acme Corp", draft.Brand)
	assert.Equal(t, []string{"AX-200"}, draft.ModelNumbers)
	assert.Equal(t, "strollers", draft.Category)
	assert.Equal(t, "fall", draft.HazardType)
	assert.Equal(t, "US", draft.Country)
	assert.Equal(t, time.Date(2026, 2, 10, 0, 0, 0, 0, time.UTC), draft.RecallDate)
	assert.InDelta(t, 1.0, draft.Confidence, 0.01)
}

func TestNormalize_HealthCanadaUnixDate(t *testing.T) {
	n := New(testLogger())

	raw := models.RawRecord{
		SourceAgency:   "HEALTH_CANADA",
		SourceRecordID: "RA-77120",
		FetchedAt:      time.Date(2026, 3, 1, 0, 0, 0, 0, time.UTC),
		Fields: map[string]any{
			"title":         "Maple Kids Night Light",
			"category":      []any{"Consumer products"},
			"datePublished": float64(1767225600),
		},
	}

	draft, err := n.Normalize(raw)
	require.NoError(t, err)

	assert.Equal(t, "Maple Kids Night Light", draft.ProductName)
	assert.Equal(t, "consumer products", draft.Category)
	assert.Equal(t, "CA", draft.Country)
	assert.Equal(t, time.Unix(1767225600, 0).UTC(), draft.RecallDate)
	// Brand, codes, and hazard are absent, so confidence drops below full
	assert.Less(t, draft.Confidence, 1.0)
	assert.GreaterOrEqual(t, draft.Confidence, minConfidence)
}

func TestNormalize_FallbackExpressions(t *testing.T) {
	n := New(testLogger())

	raw := models.RawRecord{
		SourceAgency:   "CPSC",
		SourceRecordID: "5521",
		FetchedAt:      time.Now().UTC(),
		Fields: map[string]any{
			// No Products array, so the title fallback carries the name
			"Title":      "Widget Co Recalls Space Heaters",
			"RecallDate": "2026-01-05T00:00:00",
		},
	}

	draft, err := n.Normalize(raw)
	require.NoError(t, err)
	assert.Equal(t, "Widget Co Recalls Space Heaters", draft.ProductName)
}

func TestNormalize_UnmappedHazardFallsBackToOther(t *testing.T) {
	n := New(testLogger())

	raw := models.RawRecord{
		SourceAgency:   "CPSC",
		SourceRecordID: "3310",
		FetchedAt:      time.Now().UTC(),
		Fields: map[string]any{
			"Title":      "Gadget Recall",
			"RecallDate": "2026-01-05T00:00:00",
			"Hazards": []any{
				map[string]any{"Name": "Spontaneous Combustion Of Goodwill"},
			},
		},
	}

	draft, err := n.Normalize(raw)
	require.NoError(t, err)
	assert.Equal(t, "other", draft.HazardType)
	assert.Less(t, draft.Confidence, 1.0)
}

func TestNormalize_UnparseableDateUsesFetchTime(t *testing.T) {
	n := New(testLogger())

	fetched := time.Date(2026, 4, 2, 12, 0, 0, 0, time.UTC)
	raw := models.RawRecord{
		SourceAgency:   "CPSC",
		SourceRecordID: "8804",
		FetchedAt:      fetched,
		Fields: map[string]any{
			"Title":      "Toy Recall",
			"RecallDate": "sometime in spring",
		},
	}

	draft, err := n.Normalize(raw)
	require.NoError(t, err)
	assert.Equal(t, fetched, draft.RecallDate)
}

func TestNormalize_Errors(t *testing.T) {
	n := New(testLogger())

	t.Run("unknown source", func(t *testing.T) {
		_, err := n.Normalize(models.RawRecord{
			SourceAgency:   "UNKNOWN_AGENCY",
			SourceRecordID: "1",
			Fields:         map[string]any{"title": "x"},
		})
		assert.Error(t, err)
	})

	t.Run("missing record id", func(t *testing.T) {
		_, err := n.Normalize(models.RawRecord{
			SourceAgency: "CPSC",
			Fields:       map[string]any{"Title": "x"},
		})
		assert.Error(t, err)
	})

	t.Run("no mappable product name", func(t *testing.T) {
		_, err := n.Normalize(models.RawRecord{
			SourceAgency:   "CPSC",
			SourceRecordID: "2",
			Fields:         map[string]any{"Irrelevant": "x"},
		})
		assert.Error(t, err)
	})
}

func TestNormalize_Deterministic(t *testing.T) {
	n := New(testLogger())

	raw := models.RawRecord{
		SourceAgency:   "AU_ACCC",
		SourceRecordID: "PRA-2026-110",
		FetchedAt:      time.Date(2026, 2, 1, 0, 0, 0, 0, time.UTC),
		Fields: map[string]any{
			"product_name":   "Billabong Camp Stove",
			"supplier":       "Outback Gear Pty Ltd",
			"hazard":         "Fire Hazard",
			"date_published": "2026-01-20",
		},
	}

	first, err := n.Normalize(raw)
	require.NoError(t, err)
	second, err := n.Normalize(raw)
	require.NoError(t, err)
	assert.Equal(t, first, second)
}

func TestValidateMappingTables(t *testing.T) {
	for code, table := range DefaultMappings() {
		t.Run(code, func(t *testing.T) {
			assert.NoError(t, Validate(table))
		})
	}
}

func TestValueNormalizers(t *testing.T) {
	tests := []struct {
		name     string
		fn       ValueNormalizer
		input    string
		expected string
	}{
		{"product strips punctuation", NormalizeProductName, "Acme® Deluxe-Stroller!", "acme deluxe stroller"},
		{"product drops filler tokens", NormalizeProductName, "The New Official Widget", "widget"},
		{"brand strips legal suffix", NormalizeBrand, "Acme Corp", "acme"},
		{"country alias", NormalizeCountry, "United Kingdom", "GB"},
		{"country code passthrough", NormalizeCountry, "us", "US"},
		{"collapse whitespace", CollapseWhitespace, "  a \t b\n c ", "a b c"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.Equal(t, tt.expected, tt.fn(tt.input))
		})
	}
}
