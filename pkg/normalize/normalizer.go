package normalize

import (
	"fmt"
	"strconv"
	"strings"
	"time"

	"github.com/Gobusters/ectoerror/httperror"
	"github.com/Gobusters/ectologger"

	"github.com/Ramsey-B/yarrow/pkg/models"
)

// confidence penalties applied while mapping a record
const (
	missingOptionalPenalty = 0.05
	missingRequiredPenalty = 0.25
	unmappedValuePenalty   = 0.10
	dateFallbackPenalty    = 0.10
	minConfidence          = 0.10
)

// Normalizer converts source-native raw records into canonical drafts using
// the per-source mapping tables. Normalize is a pure function of its inputs;
// the same raw record always yields the same draft.
type Normalizer struct {
	evaluator *Evaluator
	mappings  map[string]SourceMapping
	logger    ectologger.Logger
}

func New(logger ectologger.Logger) *Normalizer {
	return &Normalizer{
		evaluator: NewEvaluator(),
		mappings:  DefaultMappings(),
		logger:    logger,
	}
}

// RegisterMapping adds or replaces the mapping table for a source.
func (n *Normalizer) RegisterMapping(m SourceMapping) {
	n.mappings[m.SourceCode] = m
}

// Normalize maps a raw record onto the canonical schema. Fields that fail to
// map lower the draft's confidence instead of failing the record. An error is
// returned only when the record cannot be represented at all, such as an
// unknown source or a payload with no mappable product name.
func (n *Normalizer) Normalize(raw models.RawRecord) (*models.Draft, error) {
	mapping, ok := n.mappings[raw.SourceAgency]
	if !ok {
		return nil, httperror.NewHTTPErrorf(422, "no mapping table registered for source '%s'", raw.SourceAgency)
	}

	if raw.SourceRecordID == "" {
		return nil, httperror.NewHTTPErrorf(422, "record from source '%s' has no source record id", raw.SourceAgency)
	}

	draft := &models.Draft{
		SourceAgency:   raw.SourceAgency,
		SourceRecordID: raw.SourceRecordID,
		Confidence:     1.0,
	}

	draft.ProductName = n.mapString(mapping, FieldProductName, raw.Fields, draft)
	draft.Brand = n.mapString(mapping, FieldBrand, raw.Fields, draft)
	draft.ModelNumbers = n.mapStrings(mapping, FieldModelNumbers, raw.Fields, draft)
	draft.IdentifyingCodes = n.mapStrings(mapping, FieldIdentifyingCodes, raw.Fields, draft)
	draft.Category = n.mapString(mapping, FieldCategory, raw.Fields, draft)
	draft.HazardType = n.mapString(mapping, FieldHazardType, raw.Fields, draft)
	draft.HazardDescription = n.mapString(mapping, FieldHazardDescription, raw.Fields, draft)
	draft.Country = n.mapString(mapping, FieldCountry, raw.Fields, draft)
	draft.RecallDate = n.mapDate(mapping, FieldRecallDate, raw, draft)

	if draft.Country == "" {
		draft.Country = mapping.DefaultCountry
	}
	if draft.HazardType == "" {
		draft.HazardType = "other"
	}

	if draft.ProductName == "" {
		return nil, httperror.NewHTTPErrorf(422, "record '%s' from source '%s' has no mappable product name", raw.SourceRecordID, raw.SourceAgency)
	}

	if draft.Confidence < minConfidence {
		draft.Confidence = minConfidence
	}

	return draft, nil
}

// mapString resolves a single-valued field, applying the normalizer chain and
// value map. Missing fields lower the draft's confidence.
func (n *Normalizer) mapString(mapping SourceMapping, field string, payload map[string]any, draft *models.Draft) string {
	fm, ok := mapping.Fields[field]
	if !ok {
		return ""
	}

	raw := n.resolve(fm, payload)
	if raw == "" {
		raw = fm.Default
	}
	if raw == "" {
		n.penalizeMissing(fm, draft)
		return ""
	}

	value := ApplyChain(raw, fm.Normalizers...)

	if len(fm.ValueMap) > 0 {
		mapped, ok := fm.ValueMap[strings.ToLower(strings.TrimSpace(value))]
		if !ok {
			draft.Confidence -= unmappedValuePenalty
			return ""
		}
		value = mapped
	}

	return value
}

// mapStrings resolves a multi-valued field. Multi-valued fields never carry a
// confidence penalty when empty; most sources simply do not publish them.
func (n *Normalizer) mapStrings(mapping SourceMapping, field string, payload map[string]any, draft *models.Draft) []string {
	fm, ok := mapping.Fields[field]
	if !ok {
		return nil
	}

	var values []string
	for _, expr := range fm.Expressions {
		found, err := n.evaluator.EvaluateStrings(expr, payload)
		if err != nil {
			n.logger.WithError(err).WithFields(map[string]any{"expression": expr, "field": field, "source": mapping.SourceCode}).Warn("Expression evaluation failed")
			continue
		}
		values = append(values, found...)
	}

	seen := make(map[string]bool, len(values))
	out := make([]string, 0, len(values))
	for _, v := range values {
		normalized := ApplyChain(v, fm.Normalizers...)
		if normalized == "" {
			continue
		}
		if seen[normalized] {
			continue
		}
		seen[normalized] = true
		out = append(out, normalized)
	}

	if len(out) == 0 {
		return nil
	}
	return out
}

// mapDate resolves the recall date, trying each configured layout. When no
// date can be parsed the fetch time stands in and confidence drops.
func (n *Normalizer) mapDate(mapping SourceMapping, field string, raw models.RawRecord, draft *models.Draft) time.Time {
	fm, ok := mapping.Fields[field]
	if !ok {
		return raw.FetchedAt
	}

	value := n.resolve(fm, raw.Fields)
	if value != "" {
		layouts := fm.DateLayouts
		if len(layouts) == 0 {
			layouts = []string{time.RFC3339, "2006-01-02"}
		}
		for _, layout := range layouts {
			if layout == LayoutUnix {
				if secs, err := strconv.ParseFloat(value, 64); err == nil && secs > 0 {
					return time.Unix(int64(secs), 0).UTC()
				}
				continue
			}
			if t, err := time.Parse(layout, value); err == nil {
				return t.UTC()
			}
		}
		n.logger.WithFields(map[string]any{"value": value, "source": mapping.SourceCode}).Warn("Unparseable recall date")
	}

	draft.Confidence -= dateFallbackPenalty
	return raw.FetchedAt
}

// resolve tries each expression in order and returns the first non-empty
// string value.
func (n *Normalizer) resolve(fm FieldMapping, payload map[string]any) string {
	for _, expr := range fm.Expressions {
		value, err := n.evaluator.EvaluateString(expr, payload)
		if err != nil {
			continue
		}
		if value = strings.TrimSpace(value); value != "" {
			return value
		}
	}
	return ""
}

func (n *Normalizer) penalizeMissing(fm FieldMapping, draft *models.Draft) {
	if fm.Required {
		draft.Confidence -= missingRequiredPenalty
	} else {
		draft.Confidence -= missingOptionalPenalty
	}
}

// Validate checks a mapping table for structural problems before it is
// registered. Used at startup to fail fast on malformed tables.
func Validate(m SourceMapping) error {
	if m.SourceCode == "" {
		return fmt.Errorf("mapping table has no source code")
	}
	if len(m.Fields) == 0 {
		return fmt.Errorf("mapping table for '%s' has no fields", m.SourceCode)
	}
	if _, ok := m.Fields[FieldProductName]; !ok {
		return fmt.Errorf("mapping table for '%s' does not map a product name", m.SourceCode)
	}
	ev := NewEvaluator()
	for field, fm := range m.Fields {
		if len(fm.Expressions) == 0 && fm.Default == "" {
			return fmt.Errorf("field '%s' on '%s' has no expressions and no default", field, m.SourceCode)
		}
		for _, expr := range fm.Expressions {
			if _, err := ev.EvaluateString(expr, map[string]any{}); err != nil {
				return fmt.Errorf("field '%s' on '%s' has an invalid expression '%s': %w", field, m.SourceCode, expr, err)
			}
		}
	}
	return nil
}
