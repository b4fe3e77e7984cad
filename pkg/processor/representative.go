package processor

import (
	"sort"
	"time"

	"github.com/google/uuid"

	"github.com/Ramsey-B/productsync/pkg/embedding"
	"github.com/Ramsey-B/productsync/pkg/models"
)

// Representative form policy:
//   - the embedding is the running mean over linked records
//   - tokens are the union over linked records
//   - text fields and attributes are most-recent-wins by observed_at

func newEntity(record *models.ProductRecord, nr *models.NormalizedRecord) *models.CatalogEntity {
	return &models.CatalogEntity{
		ID:             uuid.New().String(),
		BlockKey:       nr.BlockKey,
		DisplayTitle:   record.Title,
		Representative: nr.Form.Clone(),
		RecordIDs:      []string{record.ID},
		LastObservedAt: nr.ObservedAt,
	}
}

// linkRecord folds one record into entity.
func linkRecord(entity *models.CatalogEntity, record *models.ProductRecord, nr *models.NormalizedRecord) {
	rep := &entity.Representative
	n := float64(len(entity.RecordIDs))

	// Kept as the raw running mean; later folds weight it by record count
	// and Cosine ignores its length.
	rep.Embedding = embedding.Centroid(rep.Embedding, n, nr.Form.Embedding, 1)
	rep.EmbeddingVersion = nr.Form.EmbeddingVersion
	rep.Tokens = unionTokens(rep.Tokens, nr.Form.Tokens)

	if !nr.ObservedAt.Before(entity.LastObservedAt) {
		overlayText(rep, &nr.Form)
		entity.DisplayTitle = record.Title
		entity.LastObservedAt = nr.ObservedAt
	} else {
		underlayText(rep, &nr.Form)
	}

	entity.RecordIDs = append(entity.RecordIDs, record.ID)
}

// absorbEntity folds superseded into survivor, weighting embeddings by record counts.
func absorbEntity(survivor, superseded *models.CatalogEntity) {
	rep := &survivor.Representative
	other := &superseded.Representative

	rep.Embedding = embedding.Centroid(rep.Embedding, float64(len(survivor.RecordIDs)), other.Embedding, float64(len(superseded.RecordIDs)))
	rep.Tokens = unionTokens(rep.Tokens, other.Tokens)

	if superseded.LastObservedAt.After(survivor.LastObservedAt) {
		overlayText(rep, other)
		survivor.DisplayTitle = superseded.DisplayTitle
		survivor.LastObservedAt = superseded.LastObservedAt
	} else {
		underlayText(rep, other)
	}

	seen := make(map[string]struct{}, len(survivor.RecordIDs))
	for _, id := range survivor.RecordIDs {
		seen[id] = struct{}{}
	}
	for _, id := range superseded.RecordIDs {
		if _, ok := seen[id]; !ok {
			survivor.RecordIDs = append(survivor.RecordIDs, id)
		}
	}
}

// overlayText lets newer's non-empty fields win.
func overlayText(rep, newer *models.ProductForm) {
	rep.Title = newer.Title
	if newer.Description != "" {
		rep.Description = newer.Description
	}
	if newer.Brand != "" {
		rep.Brand = newer.Brand
	}
	if newer.Category != "" {
		rep.Category = newer.Category
	}
	if rep.Attributes == nil {
		rep.Attributes = map[string]string{}
	}
	for k, v := range newer.Attributes {
		rep.Attributes[k] = v
	}
}

// underlayText only fills fields the representative is missing.
func underlayText(rep, older *models.ProductForm) {
	if rep.Description == "" {
		rep.Description = older.Description
	}
	if rep.Brand == "" {
		rep.Brand = older.Brand
	}
	if rep.Category == "" {
		rep.Category = older.Category
	}
	if rep.Attributes == nil {
		rep.Attributes = map[string]string{}
	}
	for k, v := range older.Attributes {
		if _, ok := rep.Attributes[k]; !ok {
			rep.Attributes[k] = v
		}
	}
}

func unionTokens(a, b []string) []string {
	set := make(map[string]struct{}, len(a)+len(b))
	for _, t := range a {
		set[t] = struct{}{}
	}
	for _, t := range b {
		set[t] = struct{}{}
	}
	out := make([]string, 0, len(set))
	for t := range set {
		out = append(out, t)
	}
	sort.Strings(out)
	return out
}

func observedAtOrNow(t time.Time, now time.Time) time.Time {
	if t.IsZero() {
		return now
	}
	return t.UTC()
}
