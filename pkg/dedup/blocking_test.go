package dedup

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"

	"github.com/Ramsey-B/yarrow/pkg/models"
)

func TestBlockingKeys(t *testing.T) {
	draft := &models.Draft{
		SourceAgency:     "CPSC",
		SourceRecordID:   "1",
		ProductName:      "Acme Deluxe Stroller",
		Brand:            "Acme Corp",
		ModelNumbers:     []string{"AX-200"},
		IdentifyingCodes: []string{"0123456789012"},
		Country:          "US",
		RecallDate:       time.Date(2026, 2, 10, 0, 0, 0, 0, time.UTC),
	}

	keys := BlockingKeys(draft)

	assert.Contains(t, keys, "code:0123456789012")
	assert.Contains(t, keys, "model:acme:ax200")
	assert.Contains(t, keys, "brand:acme:acme")
	assert.Contains(t, keys, "window:us:2026q1:acme")
}

func TestBlockingKeys_SparseDraft(t *testing.T) {
	draft := &models.Draft{
		SourceAgency:   "UK_OPSS",
		SourceRecordID: "2",
		ProductName:    "Night Light",
	}

	keys := BlockingKeys(draft)
	// No brand, codes, country, or date leaves nothing to block on
	assert.Empty(t, keys)
}

func TestBlockBatch(t *testing.T) {
	date := time.Date(2026, 2, 10, 0, 0, 0, 0, time.UTC)

	a := models.Draft{
		SourceAgency: "CPSC", SourceRecordID: "1",
		ProductName: "Acme Deluxe Stroller", Brand: "Acme Corp",
		ModelNumbers: []string{"AX-200"}, Country: "US", RecallDate: date,
	}
	b := models.Draft{
		SourceAgency: "HEALTH_CANADA", SourceRecordID: "2",
		ProductName: "Acme Stroller Deluxe", Brand: "Acme",
		ModelNumbers: []string{"AX-200"}, Country: "CA", RecallDate: date.AddDate(0, 0, 3),
	}
	c := models.Draft{
		SourceAgency: "AU_ACCC", SourceRecordID: "3",
		ProductName: "Billabong Camp Stove", Brand: "Outback Gear",
		Country: "AU", RecallDate: date,
	}

	clusters := BlockBatch([]models.Draft{a, b, c})

	assert.Len(t, clusters, 2)

	var strollers []models.Draft
	for _, cluster := range clusters {
		if len(cluster) == 2 {
			strollers = cluster
		}
	}
	assert.Len(t, strollers, 2, "records sharing a model number should block together")
}

func TestBlockBatch_DuplicateRefCollapses(t *testing.T) {
	d := models.Draft{
		SourceAgency: "CPSC", SourceRecordID: "1",
		ProductName: "Acme Stroller", Brand: "Acme",
		Country: "US", RecallDate: time.Date(2026, 2, 10, 0, 0, 0, 0, time.UTC),
	}

	clusters := BlockBatch([]models.Draft{d, d})
	assert.Len(t, clusters, 1)
	assert.Len(t, clusters[0], 1)
}
