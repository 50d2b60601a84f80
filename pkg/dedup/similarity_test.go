package dedup

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
)

func TestTrigram(t *testing.T) {
	s := NewScorer()

	t.Run("identical strings", func(t *testing.T) {
		assert.Equal(t, 1.0, s.Trigram("acme deluxe stroller", "acme deluxe stroller"))
	})

	t.Run("empty strings", func(t *testing.T) {
		assert.Equal(t, 0.0, s.Trigram("", ""))
		assert.Equal(t, 0.0, s.Trigram("acme", ""))
	})

	t.Run("similar strings score high", func(t *testing.T) {
		score := s.Trigram("acme deluxe stroller", "acme stroller deluxe")
		assert.Greater(t, score, 0.9)
	})

	t.Run("unrelated strings score low", func(t *testing.T) {
		score := s.Trigram("acme deluxe stroller", "widget space heater")
		assert.Less(t, score, 0.2)
	})

	t.Run("case insensitive", func(t *testing.T) {
		assert.Equal(t, 1.0, s.Trigram("Acme Stroller", "acme stroller"))
	})
}

func TestJaroWinkler(t *testing.T) {
	s := NewScorer()

	assert.Equal(t, 1.0, s.JaroWinkler("martha", "martha"))
	assert.Equal(t, 0.0, s.JaroWinkler("", "abc"))

	// Shared prefix boosts the score
	withPrefix := s.JaroWinkler("stroller", "strollers")
	assert.Greater(t, withPrefix, 0.9)

	assert.Greater(t, s.JaroWinkler("martha", "marhta"), 0.9)
}

func TestTokenOverlap(t *testing.T) {
	s := NewScorer()

	assert.Equal(t, 1.0, s.TokenOverlap([]string{"AX-200"}, []string{"ax-200"}))
	assert.Equal(t, 0.0, s.TokenOverlap([]string{"AX-200"}, []string{"BX-900"}))
	assert.Equal(t, 0.0, s.TokenOverlap(nil, []string{"AX-200"}))
	assert.InDelta(t, 1.0/3.0, s.TokenOverlap([]string{"a", "b"}, []string{"b", "c"}), 0.001)
}

func TestSharesValue(t *testing.T) {
	s := NewScorer()

	assert.True(t, s.SharesValue([]string{"0123456789"}, []string{"0123456789", "999"}))
	assert.False(t, s.SharesValue([]string{"123"}, []string{"456"}))
	assert.False(t, s.SharesValue(nil, []string{"456"}))
}

func TestDateProximity(t *testing.T) {
	s := NewScorer()
	base := time.Date(2026, 1, 15, 0, 0, 0, 0, time.UTC)

	assert.Equal(t, 1.0, s.DateProximity(base, base, 30))
	assert.Equal(t, 0.0, s.DateProximity(base, base.AddDate(0, 0, 45), 30))
	assert.Equal(t, 0.0, s.DateProximity(time.Time{}, base, 30))

	mid := s.DateProximity(base, base.AddDate(0, 0, 15), 30)
	assert.InDelta(t, 0.5, mid, 0.01)
}

func TestWeightedScore(t *testing.T) {
	s := NewScorer()

	t.Run("empty scores", func(t *testing.T) {
		assert.Equal(t, 0.0, s.WeightedScore(nil, nil))
	})

	t.Run("weights applied", func(t *testing.T) {
		scores := map[string]float64{"name": 1.0, "brand": 0.0}
		weights := map[string]float64{"name": 3.0, "brand": 1.0}
		assert.InDelta(t, 0.75, s.WeightedScore(scores, weights), 0.001)
	})

	t.Run("missing weight defaults to one", func(t *testing.T) {
		scores := map[string]float64{"name": 1.0, "brand": 0.0}
		assert.InDelta(t, 0.5, s.WeightedScore(scores, map[string]float64{}), 0.001)
	})
}
