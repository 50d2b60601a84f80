package dedup

import (
	"testing"
	"time"

	"github.com/Gobusters/ectologger"
	"github.com/stretchr/testify/assert"

	"github.com/Ramsey-B/yarrow/pkg/models"
)

func testMerger(config Config) *Merger {
	logger := ectologger.NewEctoLogger(func(_ ectologger.EctoLogMessage) {})
	return NewMerger(logger, nil, config)
}

func TestScorePair_CrossAgencyDuplicate(t *testing.T) {
	m := testMerger(Config{SourcePriorities: map[string]int{"CPSC": 10, "HEALTH_CANADA": 9}})

	date := time.Date(2026, 2, 10, 0, 0, 0, 0, time.UTC)

	draft := models.Draft{
		SourceAgency: "HEALTH_CANADA", SourceRecordID: "RA-1",
		ProductName:  "Acme Stroller Deluxe",
		Brand:        "Acme",
		ModelNumbers: []string{"AX-200"},
		Country:      "CA",
		RecallDate:   date.AddDate(0, 0, 4),
	}
	existing := &models.Recall{
		ID:           "r1",
		SourceAgency: "CPSC", SourceRecordID: "9182",
		ProductName:  "Acme Deluxe Stroller",
		Brand:        "Acme Corp",
		ModelNumbers: []string{"AX-200"},
		Country:      "US",
		RecallDate:   date,
	}

	score := m.scorePair(draft, existing)
	assert.GreaterOrEqual(t, score, m.config.MatchThreshold,
		"same product recalled by two agencies should clear the merge threshold")
}

func TestScorePair_DifferentProducts(t *testing.T) {
	m := testMerger(Config{})

	date := time.Date(2026, 2, 10, 0, 0, 0, 0, time.UTC)

	draft := models.Draft{
		ProductName: "Billabong Camp Stove",
		Brand:       "Outback Gear",
		Country:     "AU",
		RecallDate:  date,
	}
	existing := &models.Recall{
		ProductName: "Acme Deluxe Stroller",
		Brand:       "Acme Corp",
		Country:     "US",
		RecallDate:  date,
	}

	score := m.scorePair(draft, existing)
	assert.Less(t, score, m.config.MatchThreshold)
}

func TestScorePair_SharedIdentifyingCode(t *testing.T) {
	m := testMerger(Config{})

	date := time.Date(2026, 2, 10, 0, 0, 0, 0, time.UTC)

	draft := models.Draft{
		ProductName:      "Acme Stroller",
		IdentifyingCodes: []string{"0123456789012"},
		Country:          "GB",
		RecallDate:       date.AddDate(0, 0, 60),
	}
	existing := &models.Recall{
		ProductName:      "Acme Deluxe Stroller AX Series",
		IdentifyingCodes: []string{"0123456789012"},
		Country:          "US",
		RecallDate:       date,
	}

	score := m.scorePair(draft, existing)
	assert.GreaterOrEqual(t, score, 0.95, "a shared barcode with a plausible name should be near-conclusive")
}

func TestScorePair_SharedCodeDifferentName(t *testing.T) {
	m := testMerger(Config{})

	// A shared code on wildly different product names stays below the
	// conclusive boost, guarding against reused or junk codes
	draft := models.Draft{
		ProductName:      "Garden Hose",
		IdentifyingCodes: []string{"0123456789012"},
	}
	existing := &models.Recall{
		ProductName:      "Acme Deluxe Stroller",
		IdentifyingCodes: []string{"0123456789012"},
	}

	score := m.scorePair(draft, existing)
	assert.Less(t, score, 0.95)
}

func TestSurvive_SetUnionAndScalars(t *testing.T) {
	m := testMerger(Config{SourcePriorities: map[string]int{"CPSC": 10, "UK_OPSS": 8}})

	target := &models.Recall{
		SourceAgency:      "UK_OPSS",
		ProductName:       "Acme Stroller",
		Brand:             "",
		ModelNumbers:      []string{"AX-200"},
		IdentifyingCodes:  []string{"111"},
		HazardType:        "other",
		HazardDescription: "short",
		Country:           "GB",
		RecallDate:        time.Date(2026, 2, 14, 0, 0, 0, 0, time.UTC),
	}

	draft := models.Draft{
		SourceAgency:      "CPSC",
		ProductName:       "Acme Deluxe Stroller",
		Brand:             "Acme Corp",
		ModelNumbers:      []string{"AX-210"},
		IdentifyingCodes:  []string{"111", "222"},
		HazardType:        "fall",
		HazardDescription: "The stroller wheel can detach, posing a fall hazard.",
		Country:           "US",
		RecallDate:        time.Date(2026, 2, 10, 0, 0, 0, 0, time.UTC),
	}

	m.survive(target, draft)

	// Higher authority source wins conflicting scalars
	assert.Equal(t, "Acme Deluxe Stroller", target.ProductName)
	assert.Equal(t, "Acme Corp", target.Brand)
	assert.Equal(t, "US", target.Country)

	// Sets union and sort
	assert.Equal(t, []string{"AX-200", "AX-210"}, []string(target.ModelNumbers))
	assert.Equal(t, []string{"111", "222"}, []string(target.IdentifyingCodes))

	// A concrete hazard replaces the unknown placeholder
	assert.Equal(t, "fall", target.HazardType)
	assert.Equal(t, draft.HazardDescription, target.HazardDescription)

	// The earliest announcement date survives
	assert.Equal(t, draft.RecallDate, target.RecallDate)
}

func TestSurvive_LowerAuthorityKeepsTarget(t *testing.T) {
	m := testMerger(Config{SourcePriorities: map[string]int{"CPSC": 10, "KR_KCA": 7}})

	target := &models.Recall{
		SourceAgency: "CPSC",
		ProductName:  "Acme Deluxe Stroller",
		Brand:        "Acme Corp",
		Country:      "US",
		RecallDate:   time.Date(2026, 2, 10, 0, 0, 0, 0, time.UTC),
	}

	draft := models.Draft{
		SourceAgency: "KR_KCA",
		ProductName:  "Acme Stroller KR",
		Brand:        "Acme Korea",
		Country:      "KR",
		RecallDate:   time.Date(2026, 3, 1, 0, 0, 0, 0, time.UTC),
	}

	m.survive(target, draft)

	assert.Equal(t, "Acme Deluxe Stroller", target.ProductName)
	assert.Equal(t, "Acme Corp", target.Brand)
	assert.Equal(t, "US", target.Country)
}

func TestSurvive_Idempotent(t *testing.T) {
	m := testMerger(Config{SourcePriorities: map[string]int{"CPSC": 10, "UK_OPSS": 8}})

	draft := models.Draft{
		SourceAgency:     "UK_OPSS",
		ProductName:      "Acme Stroller",
		Brand:            "Acme",
		ModelNumbers:     []string{"AX-200"},
		IdentifyingCodes: []string{"111"},
		Country:          "GB",
		RecallDate:       time.Date(2026, 2, 10, 0, 0, 0, 0, time.UTC),
	}

	target := &models.Recall{
		SourceAgency: "CPSC",
		ProductName:  "Acme Deluxe Stroller",
		Brand:        "Acme Corp",
		Country:      "US",
		RecallDate:   time.Date(2026, 2, 10, 0, 0, 0, 0, time.UTC),
	}

	m.survive(target, draft)
	once := *target
	onceModels := append([]string(nil), target.ModelNumbers...)

	m.survive(target, draft)

	assert.Equal(t, once.ProductName, target.ProductName)
	assert.Equal(t, once.Brand, target.Brand)
	assert.Equal(t, onceModels, []string(target.ModelNumbers))
}

func TestAppendRef(t *testing.T) {
	refs := appendRef(nil, "CPSC:1")
	refs = appendRef(refs, "UK_OPSS:2")
	refs = appendRef(refs, "CPSC:1")

	assert.Equal(t, []string{"CPSC:1", "UK_OPSS:2"}, refs)
}

func TestNewMergerDefaults(t *testing.T) {
	m := testMerger(Config{})

	assert.Equal(t, DefaultConfig().MatchThreshold, m.config.MatchThreshold)
	assert.Equal(t, DefaultConfig().MaxCandidates, m.config.MaxCandidates)
	assert.Equal(t, DefaultConfig().MinSimilarity, m.config.MinSimilarity)
}
