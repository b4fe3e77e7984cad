package catalogentity

import (
	"context"
	"time"

	"github.com/Gobusters/ectologger"
	"github.com/lib/pq"

	"github.com/Ramsey-B/productsync/pkg/database"
	pserrors "github.com/Ramsey-B/productsync/pkg/errors"
	"github.com/Ramsey-B/productsync/pkg/models"
	"github.com/Ramsey-B/productsync/pkg/store"
	"github.com/Ramsey-B/productsync/pkg/tracing"
)

const (
	entityTable = "catalog_entities"
	recordTable = "entity_records"
	tokenTable  = "entity_tokens"
	blockTable  = "catalog_blocks"
)

var entityColumns = []string{"id", "block_key", "display_title", "representative", "superseded_by", "version", "last_observed_at", "created_at", "updated_at"}

// Repository persists catalog entities with their record links, the token
// index and block revisions.
type Repository struct {
	db     database.DB
	logger ectologger.Logger
}

func NewRepository(db database.DB, logger ectologger.Logger) *Repository {
	return &Repository{
		db:     db,
		logger: logger,
	}
}

func (r *Repository) transient(ctx context.Context, op string, err error) error {
	r.logger.WithContext(ctx).WithError(err).Errorf("Failed to %s", op)
	return pserrors.NewTransientStoreError(op, err)
}

func (r *Repository) CountLive(ctx context.Context) (int, error) {
	ctx, span := tracing.StartSpan(ctx, "catalogentity.Repository.CountLive")
	defer span.End()

	sb := database.NewSelectBuilder()
	sb.Select("COUNT(*)")
	sb.From(entityTable)
	sb.Where(sb.IsNull("superseded_by"))

	query, args := sb.Build()
	var count int
	if err := database.Conn(ctx, r.db).GetContext(ctx, &count, query, args...); err != nil {
		return 0, r.transient(ctx, "catalog_entities.count", err)
	}
	return count, nil
}

func (r *Repository) Get(ctx context.Context, id string) (*models.CatalogEntity, error) {
	ctx, span := tracing.StartSpan(ctx, "catalogentity.Repository.Get")
	defer span.End()

	sb := database.NewSelectBuilder()
	sb.Select(entityColumns...)
	sb.From(entityTable)
	sb.Where(sb.Equal("id", id))

	query, args := sb.Build()
	var entity models.CatalogEntity
	if err := database.Conn(ctx, r.db).GetContext(ctx, &entity, query, args...); err != nil {
		if database.IsNoRows(err) {
			return nil, store.NotFound("catalog entity", id)
		}
		return nil, r.transient(ctx, "catalog_entities.get", err)
	}

	entities := []*models.CatalogEntity{&entity}
	if err := r.loadRecordIDs(ctx, entities); err != nil {
		return nil, err
	}
	return &entity, nil
}

// ListLive returns every entity that was not superseded, ordered by id.
func (r *Repository) ListLive(ctx context.Context) ([]*models.CatalogEntity, error) {
	ctx, span := tracing.StartSpan(ctx, "catalogentity.Repository.ListLive")
	defer span.End()

	sb := database.NewSelectBuilder()
	sb.Select(entityColumns...)
	sb.From(entityTable)
	sb.Where(sb.IsNull("superseded_by"))
	sb.OrderBy("id")

	query, args := sb.Build()
	return r.list(ctx, "catalog_entities.list", query, args)
}

// ListByIndex returns live entities sharing the block key or any token. Block
// members rank above any token-only hit; ties break by id.
func (r *Repository) ListByIndex(ctx context.Context, blockKey string, tokens []string, limit int) ([]*models.CatalogEntity, error) {
	ctx, span := tracing.StartSpan(ctx, "catalogentity.Repository.ListByIndex")
	defer span.End()

	query, args := indexQuery(blockKey, tokens, limit)
	return r.list(ctx, "catalog_entities.list_by_index", query, args)
}

func indexQuery(blockKey string, tokens []string, limit int) (string, []any) {
	if tokens == nil {
		tokens = []string{}
	}
	return database.Buildf(`SELECT e.id, e.block_key, e.display_title, e.representative, e.superseded_by, e.version, e.last_observed_at, e.created_at, e.updated_at
FROM catalog_entities e
JOIN (
	SELECT hit.entity_id, SUM(hit.weight) AS hits
	FROM (
		SELECT id AS entity_id, %v AS weight FROM catalog_entities WHERE block_key = %v
		UNION ALL
		SELECT entity_id, 1 AS weight FROM entity_tokens WHERE token = ANY(%v)
	) hit
	GROUP BY hit.entity_id
) ranked ON ranked.entity_id = e.id
WHERE e.superseded_by IS NULL
ORDER BY ranked.hits DESC, e.id
LIMIT %v`, len(tokens)+1, blockKey, pq.Array(tokens), limit)
}

func (r *Repository) list(ctx context.Context, op, query string, args []any) ([]*models.CatalogEntity, error) {
	var entities []*models.CatalogEntity
	if err := database.Conn(ctx, r.db).SelectContext(ctx, &entities, query, args...); err != nil {
		return nil, r.transient(ctx, op, err)
	}
	if err := r.loadRecordIDs(ctx, entities); err != nil {
		return nil, err
	}
	return entities, nil
}

type recordLink struct {
	EntityID string `db:"entity_id"`
	RecordID string `db:"record_id"`
}

func (r *Repository) loadRecordIDs(ctx context.Context, entities []*models.CatalogEntity) error {
	if len(entities) == 0 {
		return nil
	}
	byID := make(map[string]*models.CatalogEntity, len(entities))
	ids := make([]string, 0, len(entities))
	for _, e := range entities {
		byID[e.ID] = e
		ids = append(ids, e.ID)
	}

	query, args := database.Buildf("SELECT entity_id, record_id FROM entity_records WHERE entity_id = ANY(%v) ORDER BY entity_id, position", pq.Array(ids))
	var links []recordLink
	if err := database.Conn(ctx, r.db).SelectContext(ctx, &links, query, args...); err != nil {
		return r.transient(ctx, "entity_records.list", err)
	}
	for _, link := range links {
		e := byID[link.EntityID]
		e.RecordIDs = append(e.RecordIDs, link.RecordID)
	}
	return nil
}

// Insert writes a new entity at version 1.
func (r *Repository) Insert(ctx context.Context, entity *models.CatalogEntity, now time.Time) error {
	ctx, span := tracing.StartSpan(ctx, "catalogentity.Repository.Insert")
	defer span.End()

	ib := database.NewInsertBuilder()
	ib.InsertInto(entityTable)
	ib.Cols(entityColumns...)
	ib.Values(entity.ID, entity.BlockKey, entity.DisplayTitle, entity.Representative, nil, 1, entity.LastObservedAt, now, now)

	query, args := ib.Build()
	if _, err := database.Conn(ctx, r.db).ExecContext(ctx, query, args...); err != nil {
		if database.IsUniqueViolation(err) {
			return pserrors.NewCommitConflictError(entity.ID, "", "entity already exists")
		}
		return r.transient(ctx, "catalog_entities.insert", err)
	}
	entity.Version = 1
	entity.CreatedAt = now
	entity.UpdatedAt = now
	return nil
}

func updateQuery(entity *models.CatalogEntity, now time.Time) (string, []any) {
	ub := database.NewUpdateBuilder()
	ub.Update(entityTable)
	ub.Set(
		ub.Assign("block_key", entity.BlockKey),
		ub.Assign("display_title", entity.DisplayTitle),
		ub.Assign("representative", entity.Representative),
		ub.Assign("last_observed_at", entity.LastObservedAt),
		ub.Assign("version", entity.Version+1),
		ub.Assign("updated_at", now),
	)
	ub.Where(
		ub.Equal("id", entity.ID),
		ub.Equal("version", entity.Version),
		ub.IsNull("superseded_by"),
	)
	return ub.Build()
}

// Update writes entity if the stored version still equals entity.Version.
func (r *Repository) Update(ctx context.Context, entity *models.CatalogEntity, now time.Time) error {
	ctx, span := tracing.StartSpan(ctx, "catalogentity.Repository.Update")
	defer span.End()

	query, args := updateQuery(entity, now)
	res, err := database.Conn(ctx, r.db).ExecContext(ctx, query, args...)
	if err != nil {
		return r.transient(ctx, "catalog_entities.update", err)
	}
	if n, err := res.RowsAffected(); err != nil {
		return r.transient(ctx, "catalog_entities.update", err)
	} else if n == 0 {
		return pserrors.NewCommitConflictError(entity.ID, "", "entity version changed or entity was superseded")
	}
	entity.Version++
	entity.UpdatedAt = now
	return nil
}

// Supersede points the entity at survivorID and drops its links and tokens.
func (r *Repository) Supersede(ctx context.Context, entity *models.CatalogEntity, survivorID string, now time.Time) error {
	ctx, span := tracing.StartSpan(ctx, "catalogentity.Repository.Supersede")
	defer span.End()

	ub := database.NewUpdateBuilder()
	ub.Update(entityTable)
	ub.Set(
		ub.Assign("superseded_by", survivorID),
		ub.Assign("version", entity.Version+1),
		ub.Assign("updated_at", now),
	)
	ub.Where(
		ub.Equal("id", entity.ID),
		ub.Equal("version", entity.Version),
		ub.IsNull("superseded_by"),
	)

	query, args := ub.Build()
	res, err := database.Conn(ctx, r.db).ExecContext(ctx, query, args...)
	if err != nil {
		return r.transient(ctx, "catalog_entities.supersede", err)
	}
	if n, err := res.RowsAffected(); err != nil {
		return r.transient(ctx, "catalog_entities.supersede", err)
	} else if n == 0 {
		return pserrors.NewCommitConflictError(entity.ID, "", "entity version changed or entity was already superseded")
	}

	for _, tbl := range []string{recordTable, tokenTable} {
		db := database.NewDeleteBuilder()
		db.DeleteFrom(tbl)
		db.Where(db.Equal("entity_id", entity.ID))
		query, args := db.Build()
		if _, err := database.Conn(ctx, r.db).ExecContext(ctx, query, args...); err != nil {
			return r.transient(ctx, tbl+".delete", err)
		}
	}

	survivor := survivorID
	entity.SupersededBy = &survivor
	entity.RecordIDs = nil
	entity.Version++
	entity.UpdatedAt = now
	return nil
}

// LinkRecords points every record of entity at it, taking records over from
// any previous entity.
func (r *Repository) LinkRecords(ctx context.Context, entity *models.CatalogEntity) error {
	if len(entity.RecordIDs) == 0 {
		return nil
	}
	ib := database.NewInsertBuilder()
	ib.InsertInto(recordTable)
	ib.Cols("record_id", "entity_id", "position")
	for i, rid := range entity.RecordIDs {
		ib.Values(rid, entity.ID, i)
	}
	ib.OnConflictUpdate([]string{"record_id"}, "entity_id", "position")

	query, args := ib.Build()
	if _, err := database.Conn(ctx, r.db).ExecContext(ctx, query, args...); err != nil {
		return r.transient(ctx, "entity_records.upsert", err)
	}
	return nil
}

// ReplaceTokens rewrites the inverted index rows of entity.
func (r *Repository) ReplaceTokens(ctx context.Context, entity *models.CatalogEntity) error {
	db := database.NewDeleteBuilder()
	db.DeleteFrom(tokenTable)
	db.Where(db.Equal("entity_id", entity.ID))
	query, args := db.Build()
	if _, err := database.Conn(ctx, r.db).ExecContext(ctx, query, args...); err != nil {
		return r.transient(ctx, "entity_tokens.delete", err)
	}

	if len(entity.Representative.Tokens) == 0 {
		return nil
	}
	ib := database.NewInsertBuilder()
	ib.InsertInto(tokenTable)
	ib.Cols("token", "entity_id")
	for _, token := range entity.Representative.Tokens {
		ib.Values(token, entity.ID)
	}
	ib.OnConflictDoNothing()

	query, args = ib.Build()
	if _, err := database.Conn(ctx, r.db).ExecContext(ctx, query, args...); err != nil {
		return r.transient(ctx, "entity_tokens.insert", err)
	}
	return nil
}

// BlockRevision returns the revision of blockKey, 0 for a block never written.
func (r *Repository) BlockRevision(ctx context.Context, blockKey string) (int64, error) {
	sb := database.NewSelectBuilder()
	sb.Select("revision")
	sb.From(blockTable)
	sb.Where(sb.Equal("block_key", blockKey))

	query, args := sb.Build()
	var revision int64
	if err := database.Conn(ctx, r.db).GetContext(ctx, &revision, query, args...); err != nil {
		if database.IsNoRows(err) {
			return 0, nil
		}
		return 0, r.transient(ctx, "catalog_blocks.get", err)
	}
	return revision, nil
}

func bumpQuery(blockKey string, expected *int64) (string, []any) {
	if expected == nil {
		return database.Buildf(`INSERT INTO catalog_blocks (block_key, revision) VALUES (%v, 1)
ON CONFLICT (block_key) DO UPDATE SET revision = catalog_blocks.revision + 1`, blockKey)
	}
	return database.Buildf(`INSERT INTO catalog_blocks (block_key, revision) VALUES (%v, %v)
ON CONFLICT (block_key) DO UPDATE SET revision = catalog_blocks.revision + 1
WHERE catalog_blocks.revision = %v`, blockKey, *expected+1, *expected)
}

// BumpBlock advances the revision of blockKey unconditionally.
func (r *Repository) BumpBlock(ctx context.Context, blockKey string) error {
	query, args := bumpQuery(blockKey, nil)
	if _, err := database.Conn(ctx, r.db).ExecContext(ctx, query, args...); err != nil {
		return r.transient(ctx, "catalog_blocks.bump", err)
	}
	return nil
}

// CompareAndBumpBlock advances the revision of blockKey only if it still
// equals expected.
func (r *Repository) CompareAndBumpBlock(ctx context.Context, blockKey string, expected int64) error {
	query, args := bumpQuery(blockKey, &expected)
	res, err := database.Conn(ctx, r.db).ExecContext(ctx, query, args...)
	if err != nil {
		if database.IsUniqueViolation(err) {
			return pserrors.NewCommitConflictError("", blockKey, "block revision changed")
		}
		return r.transient(ctx, "catalog_blocks.compare_and_bump", err)
	}
	if n, err := res.RowsAffected(); err != nil {
		return r.transient(ctx, "catalog_blocks.compare_and_bump", err)
	} else if n == 0 {
		return pserrors.NewCommitConflictError("", blockKey, "block revision changed")
	}
	return nil
}
