// Package risk computes hazard severity scores for canonical recalls.
package risk

import (
	"math"
	"strings"
	"time"

	"github.com/Ramsey-B/yarrow/pkg/metrics"
	"github.com/Ramsey-B/yarrow/pkg/models"
)

// Score bounds
const (
	MinScore = 0
	MaxScore = 100
)

// hazardWeights ranks canonical hazard types by severity, on a 0 to 40 scale
var hazardWeights = map[string]float64{
	"fire":            40,
	"chemical":        38,
	"choking":         36,
	"drowning":        36,
	"electric_shock":  34,
	"burn":            32,
	"entrapment":      30,
	"microbiological": 28,
	"laceration":      24,
	"fall":            22,
	"injury":          20,
	"other":           12,
}

// categoryWeights boosts product categories where the affected population
// is more vulnerable, on a 0 to 25 scale
var categoryWeights = map[string]float64{
	"toys":              25,
	"children":          25,
	"strollers":         24,
	"nursery":           24,
	"cribs":             24,
	"baby":              24,
	"food":              20,
	"heaters":           18,
	"appliances":        16,
	"electronics":       15,
	"motor vehicles":    14,
	"furniture":         12,
	"clothing":          10,
	"sporting goods":    10,
	"consumer products": 10,
	"tools":             9,
	"garden":            8,
}

const defaultCategoryWeight = 8

// Config contains risk scoring tuning
type Config struct {
	// SourceAuthorities maps agency codes to their 0 to 10 authority rank
	SourceAuthorities map[string]int
	// DecayHalfLifeDays is the recency half-life. A recall this old carries
	// half the recency weight of one announced today.
	DecayHalfLifeDays int
}

// DefaultConfig returns default scoring configuration
func DefaultConfig() Config {
	return Config{
		DecayHalfLifeDays: 365,
	}
}

// Scorer computes risk scores. Score is a pure function of the recall and
// the reference time, so rescoring the same row at the same instant always
// yields the same value.
type Scorer struct {
	config Config
}

// NewScorer creates a risk scorer
func NewScorer(config Config) *Scorer {
	if config.DecayHalfLifeDays <= 0 {
		config.DecayHalfLifeDays = DefaultConfig().DecayHalfLifeDays
	}
	return &Scorer{config: config}
}

// Score computes the [0, 100] risk score of a recall at the given time.
//
// The score is built from four components:
//   - hazard severity (up to 40 points)
//   - product category vulnerability (up to 25 points)
//   - reporting source authority (up to 20 points)
//   - recency (up to 15 points, exponential decay by recall age)
func (s *Scorer) Score(r *models.Recall, now time.Time) int {
	score := s.hazardComponent(r.HazardType)
	score += s.categoryComponent(r.Category)
	score += s.authorityComponent(r)
	score += s.recencyComponent(r.RecallDate, now)

	if score < MinScore {
		score = MinScore
	}
	if score > MaxScore {
		score = MaxScore
	}

	result := int(math.Round(score))
	metrics.RiskScoreDistribution.Observe(float64(result))
	return result
}

func (s *Scorer) hazardComponent(hazardType string) float64 {
	if w, ok := hazardWeights[strings.ToLower(strings.TrimSpace(hazardType))]; ok {
		return w
	}
	return hazardWeights["other"]
}

func (s *Scorer) categoryComponent(category string) float64 {
	category = strings.ToLower(strings.TrimSpace(category))
	if w, ok := categoryWeights[category]; ok {
		return w
	}
	// Fall back to token lookup so "children's toys" still lands on toys.
	// Possessive and plural suffixes are only stripped when the raw token
	// misses, so "toys" and "strollers" match their own keys.
	for _, token := range strings.Fields(category) {
		if w, ok := categoryWeights[token]; ok {
			return w
		}
		if w, ok := categoryWeights[strings.TrimSuffix(token, "'s")]; ok {
			return w
		}
		if w, ok := categoryWeights[strings.TrimSuffix(token, "s")]; ok {
			return w
		}
	}
	return defaultCategoryWeight
}

// authorityComponent scales the strongest contributing agency's rank onto
// 0 to 20 points. Every agency in the cluster counts, not just the lead.
func (s *Scorer) authorityComponent(r *models.Recall) float64 {
	best := 0
	for _, ref := range r.AllRefs() {
		if a := s.config.SourceAuthorities[ref.SourceAgency]; a > best {
			best = a
		}
	}
	return float64(best) * 2.0
}

// recencyComponent decays 15 points by recall age with the configured
// half-life. Unknown dates earn nothing.
func (s *Scorer) recencyComponent(recallDate, now time.Time) float64 {
	if recallDate.IsZero() {
		return 0
	}
	// Clock skew between agencies can put announcements slightly ahead
	if recallDate.After(now) {
		return 15
	}
	ageDays := now.Sub(recallDate).Hours() / 24
	return 15 * math.Pow(0.5, ageDays/float64(s.config.DecayHalfLifeDays))
}
