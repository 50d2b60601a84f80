package dedup

import (
	"fmt"
	"strings"

	"github.com/Ramsey-B/yarrow/pkg/models"
	"github.com/Ramsey-B/yarrow/pkg/normalize"
)

// BlockingKeys derives the coarse grouping keys for a draft. Two records can
// only be compared within a batch when they share at least one key, which
// keeps batch clustering from devolving into an all-pairs scan.
//
// Keys emitted:
//   - one per identifying code
//   - one per model number scoped to the brand
//   - brand plus the leading product name token
//   - country plus the recall quarter plus the leading product name token
func BlockingKeys(d *models.Draft) []string {
	var keys []string
	seen := make(map[string]bool)

	add := func(key string) {
		if key == "" || seen[key] {
			return
		}
		seen[key] = true
		keys = append(keys, key)
	}

	for _, code := range d.IdentifyingCodes {
		if c := normalize.Alphanumeric(strings.ToLower(code)); c != "" {
			add("code:" + c)
		}
	}

	brand := normalize.NormalizeBrand(d.Brand)
	for _, model := range d.ModelNumbers {
		if m := normalize.Alphanumeric(strings.ToLower(model)); m != "" {
			add(fmt.Sprintf("model:%s:%s", brand, m))
		}
	}

	name := normalize.NormalizeProductName(d.ProductName)
	tokens := strings.Fields(name)
	lead := ""
	if len(tokens) > 0 {
		lead = tokens[0]
	}

	if brand != "" && lead != "" {
		add(fmt.Sprintf("brand:%s:%s", brand, lead))
	}

	if lead != "" && !d.RecallDate.IsZero() {
		quarter := (int(d.RecallDate.Month())-1)/3 + 1
		add(fmt.Sprintf("window:%s:%dq%d:%s", strings.ToLower(d.Country), d.RecallDate.Year(), quarter, lead))
	}

	return keys
}

// BlockBatch groups drafts by shared blocking keys using a disjoint-set.
// Each returned cluster is sorted by source ref so processing order is
// deterministic.
func BlockBatch(drafts []models.Draft) [][]models.Draft {
	byRef := make(map[string]models.Draft, len(drafts))
	uf := NewUnionFind()
	keyOwner := make(map[string]string)

	for _, d := range drafts {
		ref := d.Ref().String()
		if _, ok := byRef[ref]; ok {
			// Same source record twice in one batch collapses to one draft
			continue
		}
		byRef[ref] = d
		uf.Add(ref)

		for _, key := range BlockingKeys(&d) {
			if owner, ok := keyOwner[key]; ok {
				uf.Union(owner, ref)
			} else {
				keyOwner[key] = ref
			}
		}
	}

	groups := uf.Groups()
	out := make([][]models.Draft, 0, len(groups))
	for _, group := range groups {
		cluster := make([]models.Draft, 0, len(group))
		for _, ref := range group {
			cluster = append(cluster, byRef[ref])
		}
		out = append(out, cluster)
	}
	return out
}
