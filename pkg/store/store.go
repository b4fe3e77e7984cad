// Package store defines the persisted catalog the resolution pipeline reads and commits to.
package store

import (
	"context"
	"fmt"
	"net/http"

	"github.com/Gobusters/ectoerror/httperror"

	"github.com/Ramsey-B/productsync/pkg/models"
)

// DefaultReviewQueueLimit caps ListReviewQueue when no limit is given.
const DefaultReviewQueueLimit = 100

// CatalogScope is the guard key covering the whole catalog. Loads with All
// set are guarded on it, and every entity write advances it along with the
// entity's own block. Normalized block keys never contain "*".
const CatalogScope = "*"

// CandidateQuery selects entities a record could resolve to.
// With All set every live entity is returned and the other filters are ignored.
type CandidateQuery struct {
	All      bool
	BlockKey string
	Tokens   []string
	Limit    int
}

// CandidatePage is a candidate load together with the revision of the
// block it was read against, or of CatalogScope for a load with All set.
// Commits pass the revision back as a guard.
type CandidatePage struct {
	Entities []*models.CatalogEntity
	BlockKey string
	Revision int64
}

// Store is the catalog. All mutating calls made inside WithTx commit or
// roll back together. Superseded entities are never returned as candidates.
//
// CommitEntity inserts the entity when Version is 0 and otherwise updates it
// only if the stored version still equals entity.Version. On success the
// entity's Version is advanced. A non-nil guard additionally requires the
// block revision to be unchanged and bumps it. Failed checks return a
// CommitConflictError; I/O failures return a TransientStoreError.
type Store interface {
	WithTx(ctx context.Context, fn func(ctx context.Context) error) error

	CountEntities(ctx context.Context) (int, error)
	LoadCandidates(ctx context.Context, query CandidateQuery) (*CandidatePage, error)
	GetEntity(ctx context.Context, id string) (*models.CatalogEntity, error)
	CommitEntity(ctx context.Context, entity *models.CatalogEntity, guard *models.CommitGuard) error
	SupersedeEntity(ctx context.Context, entity *models.CatalogEntity, survivorID string) error

	SaveRecord(ctx context.Context, record *models.ProductRecord) error
	GetRecord(ctx context.Context, id string) (*models.ProductRecord, error)

	AppendDecision(ctx context.Context, decision *models.MatchDecision) error
	FindDecision(ctx context.Context, source, externalID string) (*models.MatchDecision, error)
	GetDecision(ctx context.Context, id string) (*models.MatchDecision, error)
	ListReviewQueue(ctx context.Context, limit int) ([]*models.MatchDecision, error)
}

// NotFound builds the error returned for missing rows.
func NotFound(kind, id string) error {
	return httperror.NewHTTPError(http.StatusNotFound, fmt.Sprintf("%s %s not found", kind, id))
}

// IsNotFound reports whether err is a missing-row error.
func IsNotFound(err error) bool {
	return httperror.IsHTTPError(err) && httperror.GetStatusCode(err) == http.StatusNotFound
}
