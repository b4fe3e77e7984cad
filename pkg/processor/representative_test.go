package processor

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"

	"github.com/Ramsey-B/productsync/pkg/models"
)

func normalized(id, title string, tokens []string, vec []float64, observed time.Time) (*models.ProductRecord, *models.NormalizedRecord) {
	record := &models.ProductRecord{ID: id, Title: title, ObservedAt: observed}
	nr := &models.NormalizedRecord{
		RecordID: id,
		Form: models.ProductForm{
			Title:            title,
			Brand:            "acme",
			Attributes:       map[string]string{"color": "red"},
			Tokens:           tokens,
			Embedding:        vec,
			EmbeddingVersion: "v1",
		},
		BlockKey:   "acme",
		ObservedAt: observed,
	}
	return record, nr
}

func TestLinkRecord_CentroidAndMostRecent(t *testing.T) {
	t0 := time.Date(2024, 1, 1, 0, 0, 0, 0, time.UTC)

	r1, n1 := normalized("r1", "widget", []string{"widget"}, []float64{1, 0}, t0)
	entity := newEntity(r1, n1)

	r2, n2 := normalized("r2", "widget pro", []string{"pro", "widget"}, []float64{0, 1}, t0.Add(time.Hour))
	n2.Form.Attributes = map[string]string{"color": "blue", "size": "xl"}
	linkRecord(entity, r2, n2)

	assert.InDeltaSlice(t, []float64{0.5, 0.5}, entity.Representative.Embedding, 1e-12)
	assert.Equal(t, "widget pro", entity.Representative.Title)
	assert.Equal(t, "widget pro", entity.DisplayTitle)
	assert.Equal(t, map[string]string{"color": "blue", "size": "xl"}, entity.Representative.Attributes)

	r3, n3 := normalized("r3", "old widget", []string{"old", "widget"}, []float64{1, 1}, t0.Add(-time.Hour))
	n3.Form.Attributes = map[string]string{"color": "green", "weight": "2kg"}
	linkRecord(entity, r3, n3)

	assert.InDeltaSlice(t, []float64{2.0 / 3, 2.0 / 3}, entity.Representative.Embedding, 1e-12)
	assert.Equal(t, "widget pro", entity.Representative.Title)
	assert.Equal(t, "blue", entity.Representative.Attributes["color"])
	assert.Equal(t, "2kg", entity.Representative.Attributes["weight"])
	assert.Equal(t, []string{"old", "pro", "widget"}, entity.Representative.Tokens)
	assert.Equal(t, []string{"r1", "r2", "r3"}, entity.RecordIDs)
	assert.Equal(t, t0.Add(time.Hour), entity.LastObservedAt)
}

func TestAbsorbEntity(t *testing.T) {
	t0 := time.Date(2024, 1, 1, 0, 0, 0, 0, time.UTC)

	r1, n1 := normalized("r1", "widget", []string{"widget"}, []float64{1, 0}, t0)
	survivor := newEntity(r1, n1)
	r2, n2 := normalized("r2", "widget two", []string{"two"}, []float64{1, 0}, t0)
	linkRecord(survivor, r2, n2)

	r3, n3 := normalized("r3", "gadget", []string{"gadget"}, []float64{0, 1}, t0.Add(time.Hour))
	other := newEntity(r3, n3)
	other.DisplayTitle = "Gadget"

	absorbEntity(survivor, other)

	assert.InDeltaSlice(t, []float64{2.0 / 3, 1.0 / 3}, survivor.Representative.Embedding, 1e-12)
	assert.Equal(t, []string{"r1", "r2", "r3"}, survivor.RecordIDs)
	assert.Equal(t, "Gadget", survivor.DisplayTitle)
	assert.Equal(t, []string{"gadget", "two", "widget"}, survivor.Representative.Tokens)
}
