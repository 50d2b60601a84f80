// Package dedup collapses normalized drafts from multiple source agencies
// into canonical recalls.
package dedup

import (
	"context"
	"sort"
	"time"

	"github.com/Gobusters/ectologger"

	"github.com/Ramsey-B/yarrow/internal/repositories/recall"
	"github.com/Ramsey-B/yarrow/pkg/metrics"
	"github.com/Ramsey-B/yarrow/pkg/models"
	"github.com/Ramsey-B/yarrow/pkg/normalize"
	"github.com/Ramsey-B/yarrow/pkg/tracing"
)

// RecallStore is the canonical-store surface the merge engine writes through
type RecallStore interface {
	GetBySourceRef(ctx context.Context, sourceAgency, sourceRecordID string) (*models.Recall, error)
	Create(ctx context.Context, recall *models.Recall) (*models.Recall, error)
	Update(ctx context.Context, recall *models.Recall) (*models.Recall, error)
	AddSource(ctx context.Context, source models.RecallSource) error
	MoveSources(ctx context.Context, fromRecallID, toRecallID string) error
	SoftDelete(ctx context.Context, id string) error
	FindCandidates(ctx context.Context, productName, brand, country string, dateFrom, dateTo time.Time, minSimilarity float64, limit int) ([]recall.CandidateMatch, error)
}

// Outcome describes what merging one draft did to the canonical store
type Outcome string

const (
	// OutcomeCreated means the draft became a new canonical recall
	OutcomeCreated Outcome = "created"
	// OutcomeMerged means the draft was folded into an existing recall
	OutcomeMerged Outcome = "merged"
	// OutcomeRefreshed means the draft's source record was already clustered
	// and its canonical recall was updated in place
	OutcomeRefreshed Outcome = "refreshed"
)

// Result is the merge decision for one draft
type Result struct {
	Recall          *models.Recall
	Outcome         Outcome
	MatchScore      float64
	ConsolidatedIDs []string
}

// Config contains merge engine tuning
type Config struct {
	// MatchThreshold is the pair score at or above which a draft merges into
	// an existing recall
	MatchThreshold float64
	// AmbiguityBand is the width below MatchThreshold where a near-miss
	// lowers the surviving row's match confidence
	AmbiguityBand float64
	// CandidateWindowDays bounds the recall date window searched for
	// candidates
	CandidateWindowDays int
	// MaxCandidates bounds how many store candidates are pair-scored
	MaxCandidates int
	// MinSimilarity is the store-side trigram floor for candidate retrieval
	MinSimilarity float64
	// SourcePriorities ranks agencies for survivorship tie-breaks
	SourcePriorities map[string]int
}

// DefaultConfig returns default merge engine configuration
func DefaultConfig() Config {
	return Config{
		MatchThreshold:      0.80,
		AmbiguityBand:       0.08,
		CandidateWindowDays: 120,
		MaxCandidates:       50,
		MinSimilarity:       0.30,
	}
}

// Merger is the dedup engine. It decides, for each normalized draft, whether
// the draft joins an existing canonical recall or starts a new one, and keeps
// every source record attached to exactly one canonical row.
type Merger struct {
	logger     ectologger.Logger
	recallRepo RecallStore
	scorer     *Scorer
	config     Config
}

// NewMerger creates the dedup engine
func NewMerger(logger ectologger.Logger, recallRepo RecallStore, config Config) *Merger {
	if config.MatchThreshold <= 0 {
		config.MatchThreshold = DefaultConfig().MatchThreshold
	}
	if config.CandidateWindowDays <= 0 {
		config.CandidateWindowDays = DefaultConfig().CandidateWindowDays
	}
	if config.MaxCandidates <= 0 {
		config.MaxCandidates = DefaultConfig().MaxCandidates
	}
	if config.MinSimilarity <= 0 {
		config.MinSimilarity = DefaultConfig().MinSimilarity
	}
	return &Merger{
		logger:     logger,
		recallRepo: recallRepo,
		scorer:     NewScorer(),
		config:     config,
	}
}

// MergeBatch merges a batch of drafts. Drafts are first clustered batch-side
// by shared blocking keys, then each cluster is merged in deterministic
// order, so reprocessing the same batch yields the same canonical rows.
func (m *Merger) MergeBatch(ctx context.Context, drafts []models.Draft) ([]Result, error) {
	ctx, span := tracing.StartSpan(ctx, "dedup.Merger.MergeBatch")
	defer span.End()

	results := make([]Result, 0, len(drafts))
	for _, cluster := range BlockBatch(drafts) {
		for _, draft := range cluster {
			result, err := m.MergeDraft(ctx, draft)
			if err != nil {
				return nil, err
			}
			results = append(results, *result)
		}
	}
	return results, nil
}

// MergeDraft merges a single draft into the canonical store. The operation is
// idempotent: a source record that is already clustered refreshes its recall
// instead of creating a duplicate.
func (m *Merger) MergeDraft(ctx context.Context, draft models.Draft) (*Result, error) {
	ctx, span := tracing.StartSpan(ctx, "dedup.Merger.MergeDraft")
	defer span.End()

	log := m.logger.WithContext(ctx).WithFields(map[string]any{
		"source_agency":    draft.SourceAgency,
		"source_record_id": draft.SourceRecordID,
	})

	// Short circuit for source records seen in a previous run
	existing, err := m.recallRepo.GetBySourceRef(ctx, draft.SourceAgency, draft.SourceRecordID)
	if err != nil {
		return nil, err
	}
	if existing != nil {
		updated, err := m.refresh(ctx, existing, draft)
		if err != nil {
			return nil, err
		}
		metrics.RecordDedupDecision(string(OutcomeRefreshed))
		return &Result{Recall: updated, Outcome: OutcomeRefreshed}, nil
	}

	scored, err := m.findMatches(ctx, draft)
	if err != nil {
		return nil, err
	}

	if len(scored) == 0 || scored[0].score < m.config.MatchThreshold {
		ambiguous := len(scored) > 0 && scored[0].score >= m.config.MatchThreshold-m.config.AmbiguityBand
		created, err := m.create(ctx, draft, ambiguous)
		if err != nil {
			return nil, err
		}
		log.WithFields(map[string]any{"recall_id": created.ID}).Debug("Created canonical recall")
		metrics.RecordDedupDecision(string(OutcomeCreated))
		return &Result{Recall: created, Outcome: OutcomeCreated}, nil
	}

	best := scored[0]
	merged, err := m.mergeInto(ctx, best.recall, draft, best.score)
	if err != nil {
		return nil, err
	}

	result := &Result{Recall: merged, Outcome: OutcomeMerged, MatchScore: best.score}

	// Every additional candidate above threshold is the same real-world
	// recall split across canonical rows. The draft that matched them all is
	// the evidence that lets the rows consolidate.
	var losers []*models.Recall
	for _, other := range scored[1:] {
		if other.score >= m.config.MatchThreshold {
			losers = append(losers, other.recall)
		}
	}
	if len(losers) > 0 {
		consolidated, err := m.consolidate(ctx, merged, losers)
		if err != nil {
			return nil, err
		}
		result.Recall = consolidated
		for _, loser := range losers {
			result.ConsolidatedIDs = append(result.ConsolidatedIDs, loser.ID)
		}
	}

	log.WithFields(map[string]any{"recall_id": result.Recall.ID, "score": best.score}).Debug("Merged draft into canonical recall")
	metrics.RecordDedupDecision(string(OutcomeMerged))
	return result, nil
}

type scoredCandidate struct {
	recall *models.Recall
	score  float64
}

// findMatches retrieves store candidates inside the blocking window and
// pair-scores each one, best first
func (m *Merger) findMatches(ctx context.Context, draft models.Draft) ([]scoredCandidate, error) {
	dateFrom := draft.RecallDate.AddDate(0, 0, -m.config.CandidateWindowDays)
	dateTo := draft.RecallDate.AddDate(0, 0, m.config.CandidateWindowDays)

	// Country is left out of the store-side filter so the same product
	// recalled by agencies in different markets can still cluster
	candidates, err := m.recallRepo.FindCandidates(ctx, draft.ProductName, draft.Brand, "", dateFrom, dateTo, m.config.MinSimilarity, m.config.MaxCandidates)
	if err != nil {
		return nil, err
	}
	metrics.DedupCandidateCount.Observe(float64(len(candidates)))

	scored := make([]scoredCandidate, 0, len(candidates))
	for i := range candidates {
		c := &candidates[i].Recall
		scored = append(scored, scoredCandidate{recall: c, score: m.scorePair(draft, c)})
	}

	sort.SliceStable(scored, func(i, j int) bool {
		return scored[i].score > scored[j].score
	})
	return scored, nil
}

// scorePair computes the weighted pair score between a draft and a canonical
// recall. A shared identifying code is near-conclusive on its own.
func (m *Merger) scorePair(draft models.Draft, r *models.Recall) float64 {
	nameA := normalize.NormalizeProductName(draft.ProductName)
	nameB := normalize.NormalizeProductName(r.ProductName)

	scores := map[string]float64{
		"product_name": max(m.scorer.Trigram(nameA, nameB), m.scorer.JaroWinkler(nameA, nameB)),
	}
	weights := map[string]float64{
		"product_name": 0.40,
		"brand":        0.20,
		"models":       0.15,
		"date":         0.15,
		"country":      0.10,
	}

	if draft.Brand != "" && r.Brand != "" {
		brandA := normalize.NormalizeBrand(draft.Brand)
		brandB := normalize.NormalizeBrand(r.Brand)
		scores["brand"] = max(m.scorer.Trigram(brandA, brandB), m.scorer.JaroWinkler(brandA, brandB))
	}

	if len(draft.ModelNumbers) > 0 && len(r.ModelNumbers) > 0 {
		scores["models"] = m.scorer.TokenOverlap(draft.ModelNumbers, r.ModelNumbers)
	}

	scores["date"] = m.scorer.DateProximity(draft.RecallDate, r.RecallDate, m.config.CandidateWindowDays)
	scores["country"] = m.scorer.ExactMatch(draft.Country, r.Country, false)

	score := m.scorer.WeightedScore(scores, weights)

	// Trigram gates the boost so a reused or junk code on an unrelated
	// product name stays inconclusive
	if m.scorer.SharesValue(draft.IdentifyingCodes, r.IdentifyingCodes) && m.scorer.Trigram(nameA, nameB) > 0.2 {
		score = max(score, 0.95)
	}

	return score
}

// create writes a new canonical recall from a draft. A near-miss against an
// existing row caps the confidence so reviewers can find the boundary cases.
func (m *Merger) create(ctx context.Context, draft models.Draft, ambiguous bool) (*models.Recall, error) {
	confidence := draft.Confidence
	if ambiguous && confidence > 0.6 {
		confidence = 0.6
	}

	return m.recallRepo.Create(ctx, &models.Recall{
		SourceAgency:      draft.SourceAgency,
		SourceRecordID:    draft.SourceRecordID,
		ProductName:       draft.ProductName,
		Brand:             draft.Brand,
		ModelNumbers:      draft.ModelNumbers,
		IdentifyingCodes:  draft.IdentifyingCodes,
		Category:          draft.Category,
		HazardType:        draft.HazardType,
		HazardDescription: draft.HazardDescription,
		Country:           draft.Country,
		RecallDate:        draft.RecallDate,
		MatchConfidence:   confidence,
	})
}

// refresh re-applies a draft to the recall its source record already belongs
// to, picking up upstream corrections without changing cluster membership
func (m *Merger) refresh(ctx context.Context, target *models.Recall, draft models.Draft) (*models.Recall, error) {
	m.survive(target, draft)
	return m.recallRepo.Update(ctx, target)
}

// mergeInto folds a draft into an existing canonical recall
func (m *Merger) mergeInto(ctx context.Context, target *models.Recall, draft models.Draft, score float64) (*models.Recall, error) {
	m.survive(target, draft)
	target.MergedFrom = appendRef(target.MergedFrom, draft.Ref().String())
	if score < target.MatchConfidence || target.MatchConfidence == 0 {
		target.MatchConfidence = score
	}

	updated, err := m.recallRepo.Update(ctx, target)
	if err != nil {
		return nil, err
	}

	if err := m.recallRepo.AddSource(ctx, models.RecallSource{
		RecallID:       target.ID,
		SourceAgency:   draft.SourceAgency,
		SourceRecordID: draft.SourceRecordID,
		MatchScore:     score,
	}); err != nil {
		return nil, err
	}

	return updated, nil
}

// consolidate folds loser rows into the winner after a draft bridged them.
// Source memberships move to the winner and losers are soft deleted, so
// every source record still resolves to exactly one canonical row.
func (m *Merger) consolidate(ctx context.Context, winner *models.Recall, losers []*models.Recall) (*models.Recall, error) {
	ctx, span := tracing.StartSpan(ctx, "dedup.Merger.consolidate")
	defer span.End()

	for _, loser := range losers {
		m.survive(winner, models.Draft{
			SourceAgency:      loser.SourceAgency,
			SourceRecordID:    loser.SourceRecordID,
			ProductName:       loser.ProductName,
			Brand:             loser.Brand,
			ModelNumbers:      loser.ModelNumbers,
			IdentifyingCodes:  loser.IdentifyingCodes,
			Category:          loser.Category,
			HazardType:        loser.HazardType,
			HazardDescription: loser.HazardDescription,
			Country:           loser.Country,
			RecallDate:        loser.RecallDate,
		})

		winner.MergedFrom = appendRef(winner.MergedFrom, loser.Ref().String())
		for _, ref := range loser.MergedFrom {
			winner.MergedFrom = appendRef(winner.MergedFrom, ref)
		}
		if loser.MatchConfidence > 0 && loser.MatchConfidence < winner.MatchConfidence {
			winner.MatchConfidence = loser.MatchConfidence
		}

		if err := m.recallRepo.MoveSources(ctx, loser.ID, winner.ID); err != nil {
			return nil, err
		}
		if err := m.recallRepo.SoftDelete(ctx, loser.ID); err != nil {
			return nil, err
		}

		m.logger.WithContext(ctx).WithFields(map[string]any{
			"winner_id": winner.ID,
			"loser_id":  loser.ID,
		}).Info("Consolidated canonical recalls")
		metrics.RecordDedupDecision("consolidated")
	}

	return m.recallRepo.Update(ctx, winner)
}

// survive applies field-level survivorship from a draft onto the target.
// Sets union, scalars prefer the more trusted source and fall back to the
// more recent recall date.
func (m *Merger) survive(target *models.Recall, draft models.Draft) {
	draftWins := m.draftWins(target, draft)

	target.ProductName = pickString(target.ProductName, draft.ProductName, draftWins)
	target.Brand = pickString(target.Brand, draft.Brand, draftWins)
	target.Category = pickString(target.Category, draft.Category, draftWins)
	target.HazardDescription = pickLonger(target.HazardDescription, draft.HazardDescription)
	target.Country = pickString(target.Country, draft.Country, draftWins)

	if draft.HazardType != "" && (target.HazardType == "" || target.HazardType == "other") {
		target.HazardType = draft.HazardType
	}

	target.ModelNumbers = unionSet(target.ModelNumbers, draft.ModelNumbers)
	target.IdentifyingCodes = unionSet(target.IdentifyingCodes, draft.IdentifyingCodes)

	// The earliest recall date is the authoritative announcement date
	if !draft.RecallDate.IsZero() && (target.RecallDate.IsZero() || draft.RecallDate.Before(target.RecallDate)) {
		target.RecallDate = draft.RecallDate
	}
}

// draftWins decides which side supplies conflicting scalar fields. Higher
// source authority wins; equal authority falls to the newer announcement.
func (m *Merger) draftWins(target *models.Recall, draft models.Draft) bool {
	pd := m.config.SourcePriorities[draft.SourceAgency]
	pt := m.config.SourcePriorities[target.SourceAgency]
	if pd != pt {
		return pd > pt
	}
	return draft.RecallDate.After(target.RecallDate)
}

func pickString(current, incoming string, incomingWins bool) string {
	if current == "" {
		return incoming
	}
	if incoming == "" {
		return current
	}
	if incomingWins {
		return incoming
	}
	return current
}

func pickLonger(current, incoming string) string {
	if len(incoming) > len(current) {
		return incoming
	}
	return current
}

func unionSet(current []string, incoming []string) []string {
	seen := make(map[string]bool, len(current))
	out := make([]string, 0, len(current)+len(incoming))
	for _, v := range current {
		if v == "" || seen[v] {
			continue
		}
		seen[v] = true
		out = append(out, v)
	}
	for _, v := range incoming {
		if v == "" || seen[v] {
			continue
		}
		seen[v] = true
		out = append(out, v)
	}
	sort.Strings(out)
	return out
}

func appendRef(refs []string, ref string) []string {
	for _, r := range refs {
		if r == ref {
			return refs
		}
	}
	return append(refs, ref)
}
