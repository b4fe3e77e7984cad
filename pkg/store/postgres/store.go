// Package postgres implements the catalog store on Postgres.
package postgres

import (
	"context"
	"time"

	"github.com/Gobusters/ectologger"

	"github.com/Ramsey-B/productsync/internal/repositories/catalogentity"
	"github.com/Ramsey-B/productsync/internal/repositories/matchdecision"
	"github.com/Ramsey-B/productsync/internal/repositories/productrecord"
	"github.com/Ramsey-B/productsync/pkg/database"
	pserrors "github.com/Ramsey-B/productsync/pkg/errors"
	"github.com/Ramsey-B/productsync/pkg/models"
	"github.com/Ramsey-B/productsync/pkg/store"
	"github.com/Ramsey-B/productsync/pkg/tracing"
)

// Store composes the repositories into store.Store. The transaction opened
// by WithTx travels on the context and every repository call joins it.
type Store struct {
	db        database.DB
	logger    ectologger.Logger
	entities  *catalogentity.Repository
	records   *productrecord.Repository
	decisions *matchdecision.Repository
	now       func() time.Time
}

var _ store.Store = (*Store)(nil)

func New(db database.DB, logger ectologger.Logger) *Store {
	return &Store{
		db:        db,
		logger:    logger,
		entities:  catalogentity.NewRepository(db, logger),
		records:   productrecord.NewRepository(db, logger),
		decisions: matchdecision.NewRepository(db, logger),
		now:       func() time.Time { return time.Now().UTC() },
	}
}

// WithTx joins the transaction on ctx or opens one. Begin and commit
// failures are transient.
func (s *Store) WithTx(ctx context.Context, fn func(ctx context.Context) error) error {
	if _, ok := database.TxFromContext(ctx); ok {
		return fn(ctx)
	}

	ctx, span := tracing.StartSpan(ctx, "postgres.Store.WithTx")
	defer span.End()

	txCtx, tx, err := s.db.GetTx(ctx, nil)
	if err != nil {
		return pserrors.NewTransientStoreError("transaction.begin", err)
	}
	defer tx.Rollback(ctx)

	if err := fn(txCtx); err != nil {
		if database.IsRetryable(err) && !pserrors.IsTransientStoreError(err) {
			return pserrors.NewTransientStoreError("transaction", err)
		}
		return err
	}
	if err := tx.Commit(ctx); err != nil {
		if database.IsUniqueViolation(err) {
			return pserrors.NewCommitConflictError("", "", "concurrent commit")
		}
		return pserrors.NewTransientStoreError("transaction.commit", err)
	}
	return nil
}

func (s *Store) CountEntities(ctx context.Context) (int, error) {
	return s.entities.CountLive(ctx)
}

func (s *Store) LoadCandidates(ctx context.Context, query store.CandidateQuery) (*store.CandidatePage, error) {
	ctx, span := tracing.StartSpan(ctx, "postgres.Store.LoadCandidates")
	defer span.End()

	scope := query.BlockKey
	if query.All {
		scope = store.CatalogScope
	}

	// The revision is read first so a concurrent commit between the two reads
	// makes the guard stale rather than silently accepted.
	revision, err := s.entities.BlockRevision(ctx, scope)
	if err != nil {
		return nil, err
	}

	var entities []*models.CatalogEntity
	if query.All {
		entities, err = s.entities.ListLive(ctx)
	} else {
		entities, err = s.entities.ListByIndex(ctx, query.BlockKey, query.Tokens, query.Limit)
	}
	if err != nil {
		return nil, err
	}

	return &store.CandidatePage{Entities: entities, BlockKey: scope, Revision: revision}, nil
}

func (s *Store) GetEntity(ctx context.Context, id string) (*models.CatalogEntity, error) {
	return s.entities.Get(ctx, id)
}

func (s *Store) CommitEntity(ctx context.Context, entity *models.CatalogEntity, guard *models.CommitGuard) error {
	ctx, span := tracing.StartSpan(ctx, "postgres.Store.CommitEntity")
	defer span.End()

	return s.WithTx(ctx, func(ctx context.Context) error {
		// The catalog scope row is always written first, so concurrent
		// entity writes queue on it in one order.
		if guard != nil && guard.BlockKey == store.CatalogScope {
			if err := s.entities.CompareAndBumpBlock(ctx, store.CatalogScope, guard.Revision); err != nil {
				return err
			}
		} else {
			if err := s.entities.BumpBlock(ctx, store.CatalogScope); err != nil {
				return err
			}
			if guard != nil {
				if err := s.entities.CompareAndBumpBlock(ctx, guard.BlockKey, guard.Revision); err != nil {
					return err
				}
			}
		}

		now := s.now()
		var err error
		if entity.Version == 0 {
			err = s.entities.Insert(ctx, entity, now)
		} else {
			err = s.entities.Update(ctx, entity, now)
		}
		if err != nil {
			return err
		}

		if err := s.entities.LinkRecords(ctx, entity); err != nil {
			return err
		}
		if err := s.entities.ReplaceTokens(ctx, entity); err != nil {
			return err
		}
		if guard == nil || guard.BlockKey != entity.BlockKey {
			return s.entities.BumpBlock(ctx, entity.BlockKey)
		}
		return nil
	})
}

func (s *Store) SupersedeEntity(ctx context.Context, entity *models.CatalogEntity, survivorID string) error {
	ctx, span := tracing.StartSpan(ctx, "postgres.Store.SupersedeEntity")
	defer span.End()

	if entity.ID == survivorID {
		return pserrors.NewCommitConflictError(entity.ID, "", "entity cannot supersede itself")
	}

	return s.WithTx(ctx, func(ctx context.Context) error {
		if err := s.entities.BumpBlock(ctx, store.CatalogScope); err != nil {
			return err
		}
		if err := s.entities.Supersede(ctx, entity, survivorID, s.now()); err != nil {
			return err
		}
		return s.entities.BumpBlock(ctx, entity.BlockKey)
	})
}

func (s *Store) SaveRecord(ctx context.Context, record *models.ProductRecord) error {
	if record.CreatedAt.IsZero() {
		record.CreatedAt = s.now()
	}
	return s.records.Insert(ctx, record)
}

func (s *Store) GetRecord(ctx context.Context, id string) (*models.ProductRecord, error) {
	return s.records.Get(ctx, id)
}

func (s *Store) AppendDecision(ctx context.Context, decision *models.MatchDecision) error {
	if decision.CreatedAt.IsZero() {
		decision.CreatedAt = s.now()
	}
	return s.decisions.Insert(ctx, decision)
}

func (s *Store) FindDecision(ctx context.Context, source, externalID string) (*models.MatchDecision, error) {
	return s.decisions.FindLatest(ctx, source, externalID)
}

func (s *Store) GetDecision(ctx context.Context, id string) (*models.MatchDecision, error) {
	return s.decisions.Get(ctx, id)
}

func (s *Store) ListReviewQueue(ctx context.Context, limit int) ([]*models.MatchDecision, error) {
	if limit <= 0 {
		limit = store.DefaultReviewQueueLimit
	}
	return s.decisions.ListOpenReviews(ctx, limit)
}
