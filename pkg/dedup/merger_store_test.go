package dedup

import (
	"context"
	"fmt"
	"sort"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/Ramsey-B/yarrow/internal/repositories/recall"
	"github.com/Ramsey-B/yarrow/pkg/models"
)

// memoryStore is an in-memory RecallStore with the same observable behavior
// as the Postgres repository: lead source registration on create, upsert
// re-pointing on AddSource, deleted rows invisible to lookups, and trigram
// candidate retrieval averaged over product name and brand.
type memoryStore struct {
	recalls map[string]*models.Recall
	order   []string
	sources map[string]string
	deleted map[string]bool
	creates int
	seq     int
	scorer  *Scorer
}

func newMemoryStore() *memoryStore {
	return &memoryStore{
		recalls: make(map[string]*models.Recall),
		sources: make(map[string]string),
		deleted: make(map[string]bool),
		scorer:  NewScorer(),
	}
}

func sourceKey(agency, recordID string) string {
	return agency + "|" + recordID
}

func cloneRecall(r *models.Recall) *models.Recall {
	out := *r
	out.ModelNumbers = append([]string(nil), r.ModelNumbers...)
	out.IdentifyingCodes = append([]string(nil), r.IdentifyingCodes...)
	out.MergedFrom = append([]string(nil), r.MergedFrom...)
	return &out
}

func (s *memoryStore) GetBySourceRef(_ context.Context, sourceAgency, sourceRecordID string) (*models.Recall, error) {
	id, ok := s.sources[sourceKey(sourceAgency, sourceRecordID)]
	if !ok || s.deleted[id] {
		return nil, nil
	}
	return cloneRecall(s.recalls[id]), nil
}

func (s *memoryStore) Create(_ context.Context, r *models.Recall) (*models.Recall, error) {
	s.seq++
	s.creates++
	stored := cloneRecall(r)
	stored.ID = fmt.Sprintf("recall-%04d", s.seq)
	s.recalls[stored.ID] = stored
	s.order = append(s.order, stored.ID)
	s.sources[sourceKey(stored.SourceAgency, stored.SourceRecordID)] = stored.ID
	return cloneRecall(stored), nil
}

func (s *memoryStore) Update(_ context.Context, r *models.Recall) (*models.Recall, error) {
	if _, ok := s.recalls[r.ID]; !ok || s.deleted[r.ID] {
		return nil, fmt.Errorf("recall %s not found", r.ID)
	}
	s.recalls[r.ID] = cloneRecall(r)
	return cloneRecall(r), nil
}

func (s *memoryStore) AddSource(_ context.Context, source models.RecallSource) error {
	s.sources[sourceKey(source.SourceAgency, source.SourceRecordID)] = source.RecallID
	return nil
}

func (s *memoryStore) MoveSources(_ context.Context, fromRecallID, toRecallID string) error {
	for key, id := range s.sources {
		if id == fromRecallID {
			s.sources[key] = toRecallID
		}
	}
	return nil
}

func (s *memoryStore) SoftDelete(_ context.Context, id string) error {
	if _, ok := s.recalls[id]; !ok || s.deleted[id] {
		return fmt.Errorf("recall %s not found", id)
	}
	s.deleted[id] = true
	return nil
}

func (s *memoryStore) FindCandidates(_ context.Context, productName, brand, _ string, dateFrom, dateTo time.Time, minSimilarity float64, limit int) ([]recall.CandidateMatch, error) {
	var out []recall.CandidateMatch
	for _, id := range s.order {
		if s.deleted[id] {
			continue
		}
		r := s.recalls[id]
		if r.RecallDate.Before(dateFrom) || r.RecallDate.After(dateTo) {
			continue
		}
		similarity := s.scorer.Trigram(productName, r.ProductName)
		if brand != "" {
			similarity = (similarity + s.scorer.Trigram(brand, r.Brand)) / 2
		}
		if similarity < minSimilarity {
			continue
		}
		out = append(out, recall.CandidateMatch{Recall: *cloneRecall(r), Similarity: similarity})
	}
	sort.SliceStable(out, func(i, j int) bool {
		return out[i].Similarity > out[j].Similarity
	})
	if len(out) > limit {
		out = out[:limit]
	}
	return out, nil
}

// activeIDs returns the ids of rows that have not been soft deleted
func (s *memoryStore) activeIDs() []string {
	var out []string
	for _, id := range s.order {
		if !s.deleted[id] {
			out = append(out, id)
		}
	}
	return out
}

// clusterSignature renders the cluster membership as a canonical string so
// two stores can be compared regardless of row ids
func (s *memoryStore) clusterSignature() []string {
	byID := make(map[string][]string)
	for key, id := range s.sources {
		byID[id] = append(byID[id], key)
	}
	var clusters []string
	for _, id := range s.activeIDs() {
		keys := byID[id]
		sort.Strings(keys)
		clusters = append(clusters, fmt.Sprintf("%v", keys))
	}
	sort.Strings(clusters)
	return clusters
}

func storeMerger(store *memoryStore, config Config) *Merger {
	m := testMerger(config)
	m.recallRepo = store
	return m
}

func strollerDrafts() []models.Draft {
	date := time.Date(2026, 2, 10, 0, 0, 0, 0, time.UTC)
	return []models.Draft{
		{
			SourceAgency: "CPSC", SourceRecordID: "9182",
			ProductName:  "Acme Deluxe Stroller",
			Brand:        "Acme Corp",
			ModelNumbers: []string{"AX-200"},
			HazardType:   "fall",
			Country:      "US",
			RecallDate:   date,
			Confidence:   0.95,
		},
		{
			SourceAgency: "HEALTH_CANADA", SourceRecordID: "RA-1",
			ProductName:  "Acme Stroller Deluxe",
			Brand:        "Acme",
			ModelNumbers: []string{"AX-200"},
			HazardType:   "fall",
			Country:      "CA",
			RecallDate:   date.AddDate(0, 0, 4),
			Confidence:   0.9,
		},
		{
			SourceAgency: "AU_ACCC", SourceRecordID: "PRA-55",
			ProductName: "Billabong Camp Stove",
			Brand:       "Outback Gear",
			HazardType:  "burn",
			Country:     "AU",
			RecallDate:  date,
			Confidence:  0.9,
		},
	}
}

func TestMergeDraft_CreatesWhenStoreEmpty(t *testing.T) {
	store := newMemoryStore()
	m := storeMerger(store, Config{})

	draft := strollerDrafts()[0]
	result, err := m.MergeDraft(context.Background(), draft)
	require.NoError(t, err)

	assert.Equal(t, OutcomeCreated, result.Outcome)
	assert.NotEmpty(t, result.Recall.ID)
	assert.Equal(t, draft.Confidence, result.Recall.MatchConfidence)
	assert.Len(t, store.activeIDs(), 1)

	// The lead source record resolves to the new canonical row
	found, err := store.GetBySourceRef(context.Background(), draft.SourceAgency, draft.SourceRecordID)
	require.NoError(t, err)
	require.NotNil(t, found)
	assert.Equal(t, result.Recall.ID, found.ID)
}

func TestMergeDraft_RefreshesSeenSourceRecord(t *testing.T) {
	store := newMemoryStore()
	m := storeMerger(store, Config{})

	draft := strollerDrafts()[0]
	first, err := m.MergeDraft(context.Background(), draft)
	require.NoError(t, err)
	require.Equal(t, OutcomeCreated, first.Outcome)

	// The upstream record was corrected between runs
	draft.HazardDescription = "Front wheel can detach while in use, posing a fall hazard to infants."
	second, err := m.MergeDraft(context.Background(), draft)
	require.NoError(t, err)

	assert.Equal(t, OutcomeRefreshed, second.Outcome)
	assert.Equal(t, first.Recall.ID, second.Recall.ID)
	assert.Equal(t, draft.HazardDescription, second.Recall.HazardDescription)
	assert.Equal(t, 1, store.creates, "refresh must not create a second canonical row")
}

func TestMergeDraft_MergesCrossAgencyDuplicate(t *testing.T) {
	store := newMemoryStore()
	m := storeMerger(store, Config{SourcePriorities: map[string]int{"CPSC": 10, "HEALTH_CANADA": 9}})

	drafts := strollerDrafts()
	created, err := m.MergeDraft(context.Background(), drafts[0])
	require.NoError(t, err)

	result, err := m.MergeDraft(context.Background(), drafts[1])
	require.NoError(t, err)

	assert.Equal(t, OutcomeMerged, result.Outcome)
	assert.Equal(t, created.Recall.ID, result.Recall.ID)
	assert.GreaterOrEqual(t, result.MatchScore, m.config.MatchThreshold)
	assert.Contains(t, []string(result.Recall.MergedFrom), drafts[1].Ref().String())
	assert.Len(t, store.activeIDs(), 1)

	// Both source records now resolve to the same canonical row
	for _, d := range drafts[:2] {
		found, err := store.GetBySourceRef(context.Background(), d.SourceAgency, d.SourceRecordID)
		require.NoError(t, err)
		require.NotNil(t, found)
		assert.Equal(t, created.Recall.ID, found.ID)
	}
}

func TestMergeDraft_AmbiguousNearMissCapsConfidence(t *testing.T) {
	store := newMemoryStore()
	m := storeMerger(store, Config{
		MatchThreshold: 0.90,
		AmbiguityBand:  0.80,
	})

	date := time.Date(2026, 2, 10, 0, 0, 0, 0, time.UTC)
	_, err := store.Create(context.Background(), &models.Recall{
		SourceAgency: "CPSC", SourceRecordID: "9182",
		ProductName: "Acme Deluxe Stroller",
		Brand:       "Acme",
		Country:     "US",
		RecallDate:  date,
	})
	require.NoError(t, err)

	// Same brand, different product and market: similar enough to surface a
	// candidate but nowhere near the merge threshold
	result, err := m.MergeDraft(context.Background(), models.Draft{
		SourceAgency: "HEALTH_CANADA", SourceRecordID: "RA-9",
		ProductName: "Acme Toddler Swing",
		Brand:       "Acme",
		Country:     "CA",
		RecallDate:  date.AddDate(0, 0, 60),
		Confidence:  0.9,
	})
	require.NoError(t, err)

	assert.Equal(t, OutcomeCreated, result.Outcome)
	assert.LessOrEqual(t, result.Recall.MatchConfidence, 0.6,
		"a near-miss create must be flagged for review via lowered confidence")
	assert.Len(t, store.activeIDs(), 2)
}

func TestMergeDraft_ConsolidatesBridgedRows(t *testing.T) {
	store := newMemoryStore()
	m := storeMerger(store, Config{SourcePriorities: map[string]int{"CPSC": 10, "UK_OPSS": 8, "AU_ACCC": 8}})

	date := time.Date(2026, 2, 10, 0, 0, 0, 0, time.UTC)
	seed := func(agency, recordID, country string) *models.Recall {
		created, err := store.Create(context.Background(), &models.Recall{
			SourceAgency: agency, SourceRecordID: recordID,
			ProductName:  "Acme Deluxe Stroller",
			Brand:        "Acme",
			ModelNumbers: []string{"AX-200"},
			Country:      country,
			RecallDate:   date,
		})
		require.NoError(t, err)
		return created
	}
	first := seed("CPSC", "9182", "US")
	second := seed("UK_OPSS", "2201-0099", "US")

	// A third agency's record matches both rows, which is the evidence that
	// they are the same real-world recall
	result, err := m.MergeDraft(context.Background(), models.Draft{
		SourceAgency: "AU_ACCC", SourceRecordID: "PRA-70",
		ProductName:  "Acme Deluxe Stroller",
		Brand:        "Acme",
		ModelNumbers: []string{"AX-200"},
		Country:      "US",
		RecallDate:   date,
		Confidence:   0.9,
	})
	require.NoError(t, err)

	assert.Equal(t, OutcomeMerged, result.Outcome)
	assert.Equal(t, []string{second.ID}, result.ConsolidatedIDs)
	assert.Equal(t, []string{first.ID}, store.activeIDs(), "the loser row must be soft deleted")

	// All three source records resolve to the surviving row
	for _, ref := range []models.SourceRef{
		{SourceAgency: "CPSC", SourceRecordID: "9182"},
		{SourceAgency: "UK_OPSS", SourceRecordID: "2201-0099"},
		{SourceAgency: "AU_ACCC", SourceRecordID: "PRA-70"},
	} {
		found, err := store.GetBySourceRef(context.Background(), ref.SourceAgency, ref.SourceRecordID)
		require.NoError(t, err)
		require.NotNil(t, found)
		assert.Equal(t, first.ID, found.ID)
	}
	assert.Contains(t, []string(store.recalls[first.ID].MergedFrom), second.Ref().String())
}

func TestMergeBatch_Idempotent(t *testing.T) {
	store := newMemoryStore()
	m := storeMerger(store, Config{SourcePriorities: map[string]int{"CPSC": 10, "HEALTH_CANADA": 9, "AU_ACCC": 8}})
	drafts := strollerDrafts()

	first, err := m.MergeBatch(context.Background(), drafts)
	require.NoError(t, err)
	require.Len(t, first, len(drafts))
	require.Len(t, store.activeIDs(), 2, "two products across three source records")
	createsAfterFirst := store.creates

	second, err := m.MergeBatch(context.Background(), drafts)
	require.NoError(t, err)
	require.Len(t, second, len(drafts))

	for _, result := range second {
		assert.Equal(t, OutcomeRefreshed, result.Outcome)
	}
	assert.Equal(t, createsAfterFirst, store.creates, "reprocessing a batch must not create new rows")
	assert.Len(t, store.activeIDs(), 2)
}

func TestMergeBatch_OrderIndependent(t *testing.T) {
	drafts := strollerDrafts()
	orders := [][]int{
		{0, 1, 2},
		{1, 0, 2},
		{2, 1, 0},
		{1, 2, 0},
	}

	var want []string
	for i, order := range orders {
		store := newMemoryStore()
		m := storeMerger(store, Config{SourcePriorities: map[string]int{"CPSC": 10, "HEALTH_CANADA": 9, "AU_ACCC": 8}})

		batch := make([]models.Draft, 0, len(order))
		for _, idx := range order {
			batch = append(batch, drafts[idx])
		}

		_, err := m.MergeBatch(context.Background(), batch)
		require.NoError(t, err)

		got := store.clusterSignature()
		if i == 0 {
			want = got
			continue
		}
		assert.Equal(t, want, got, "batch order %v produced a different clustering", order)
	}
}
