package models

import (
	"time"
)

// CatalogEntity is the canonical product that source records resolve to.
// Entities are never deleted; a merged-away entity points at its survivor.
type CatalogEntity struct {
	ID             string      `json:"id" db:"id"`
	BlockKey       string      `json:"block_key" db:"block_key"`
	DisplayTitle   string      `json:"display_title" db:"display_title"`
	Representative ProductForm `json:"representative" db:"representative"`
	RecordIDs      []string    `json:"record_ids" db:"-"`
	SupersededBy   *string     `json:"superseded_by,omitempty" db:"superseded_by"`
	Version        int         `json:"version" db:"version"`
	LastObservedAt time.Time   `json:"last_observed_at" db:"last_observed_at"`
	CreatedAt      time.Time   `json:"created_at" db:"created_at"`
	UpdatedAt      time.Time   `json:"updated_at" db:"updated_at"`
}

// IsSuperseded reports whether the entity was merged into another one.
func (e *CatalogEntity) IsSuperseded() bool {
	return e.SupersededBy != nil && *e.SupersededBy != ""
}

// HasRecord reports whether recordID is linked to the entity.
func (e *CatalogEntity) HasRecord(recordID string) bool {
	for _, id := range e.RecordIDs {
		if id == recordID {
			return true
		}
	}
	return false
}

// Clone returns a deep copy so callers can stage mutations.
func (e *CatalogEntity) Clone() *CatalogEntity {
	out := *e
	out.Representative = e.Representative.Clone()
	out.RecordIDs = append([]string(nil), e.RecordIDs...)
	if e.SupersededBy != nil {
		s := *e.SupersededBy
		out.SupersededBy = &s
	}
	return &out
}

// CommitGuard carries the catalog revision a resolution reasoned over.
// A commit fails with a conflict if the block moved on since.
type CommitGuard struct {
	BlockKey string
	Revision int64
}
