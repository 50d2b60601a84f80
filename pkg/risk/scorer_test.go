package risk

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"

	"github.com/Ramsey-B/yarrow/pkg/models"
)

func testAuthorities() map[string]int {
	return map[string]int{
		"CPSC":           10,
		"EU_SAFETY_GATE": 9,
		"HEALTH_CANADA":  9,
		"UK_OPSS":        8,
		"AU_ACCC":        8,
		"KR_KCA":         7,
	}
}

func TestScore_Bounds(t *testing.T) {
	s := NewScorer(Config{SourceAuthorities: testAuthorities()})
	now := time.Date(2026, 3, 1, 0, 0, 0, 0, time.UTC)

	tests := []struct {
		name   string
		recall models.Recall
	}{
		{"empty recall", models.Recall{}},
		{"worst case", models.Recall{
			SourceAgency: "CPSC",
			HazardType:   "fire",
			Category:     "toys",
			RecallDate:   now,
		}},
		{"unknown everything", models.Recall{
			SourceAgency: "NOBODY",
			HazardType:   "telepathy",
			Category:     "miscellanea",
			RecallDate:   now.AddDate(-30, 0, 0),
		}},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			score := s.Score(&tt.recall, now)
			assert.GreaterOrEqual(t, score, MinScore)
			assert.LessOrEqual(t, score, MaxScore)
		})
	}
}

func TestScore_Deterministic(t *testing.T) {
	s := NewScorer(Config{SourceAuthorities: testAuthorities()})
	now := time.Date(2026, 3, 1, 0, 0, 0, 0, time.UTC)

	r := &models.Recall{
		SourceAgency: "CPSC",
		HazardType:   "fall",
		Category:     "strollers",
		RecallDate:   time.Date(2026, 2, 10, 0, 0, 0, 0, time.UTC),
	}

	assert.Equal(t, s.Score(r, now), s.Score(r, now))
}

func TestScore_HazardOrdering(t *testing.T) {
	s := NewScorer(Config{SourceAuthorities: testAuthorities()})
	now := time.Date(2026, 3, 1, 0, 0, 0, 0, time.UTC)

	fire := &models.Recall{SourceAgency: "CPSC", HazardType: "fire", Category: "appliances", RecallDate: now}
	injury := &models.Recall{SourceAgency: "CPSC", HazardType: "injury", Category: "appliances", RecallDate: now}

	assert.Greater(t, s.Score(fire, now), s.Score(injury, now))
}

func TestScore_RecencyDecay(t *testing.T) {
	s := NewScorer(Config{SourceAuthorities: testAuthorities(), DecayHalfLifeDays: 365})
	now := time.Date(2026, 3, 1, 0, 0, 0, 0, time.UTC)

	fresh := &models.Recall{SourceAgency: "CPSC", HazardType: "fire", Category: "toys", RecallDate: now}
	stale := &models.Recall{SourceAgency: "CPSC", HazardType: "fire", Category: "toys", RecallDate: now.AddDate(-5, 0, 0)}

	assert.Greater(t, s.Score(fresh, now), s.Score(stale, now))
}

func TestScore_ClusterAuthorityCounts(t *testing.T) {
	s := NewScorer(Config{SourceAuthorities: testAuthorities()})
	now := time.Date(2026, 3, 1, 0, 0, 0, 0, time.UTC)

	// Lead agency is low authority, but a merged-in CPSC record raises the
	// authority component
	solo := &models.Recall{
		SourceAgency: "KR_KCA",
		HazardType:   "burn",
		Category:     "heaters",
		RecallDate:   now,
	}
	clustered := &models.Recall{
		SourceAgency: "KR_KCA",
		HazardType:   "burn",
		Category:     "heaters",
		RecallDate:   now,
		MergedFrom:   []string{"CPSC:9182"},
	}

	assert.Greater(t, s.Score(clustered, now), s.Score(solo, now))
}

func TestScore_CategoryTokenFallback(t *testing.T) {
	s := NewScorer(Config{})

	tests := []struct {
		name     string
		category string
		want     float64
	}{
		{"exact key", "toys", categoryWeights["toys"]},
		{"possessive prefix token", "children's toys", categoryWeights["children"]},
		{"plural token after qualifier", "wooden toys", categoryWeights["toys"]},
		{"plural token keeps its own key", "twin strollers", categoryWeights["strollers"]},
		{"first matching token wins", "baby strollers", categoryWeights["baby"]},
		{"stray plural suffix", "cribs and bassinets", categoryWeights["cribs"]},
		{"unknown category", "miscellanea", defaultCategoryWeight},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.Equal(t, tt.want, s.categoryComponent(tt.category))
		})
	}
}
