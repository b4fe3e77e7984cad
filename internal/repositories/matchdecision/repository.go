package matchdecision

import (
	"context"

	"github.com/Gobusters/ectologger"

	"github.com/Ramsey-B/productsync/pkg/database"
	pserrors "github.com/Ramsey-B/productsync/pkg/errors"
	"github.com/Ramsey-B/productsync/pkg/models"
	"github.com/Ramsey-B/productsync/pkg/store"
	"github.com/Ramsey-B/productsync/pkg/tracing"
)

const table = "match_decisions"

var insertColumns = []string{"id", "record_id", "source", "external_id", "entity_id", "score", "kind", "reason", "rationale", "resolves_decision_id", "superseded_entity_id", "record_fingerprint", "embedding_version", "created_at"}

// record_id is NULL on entity_merge decisions.
var selectColumns = []string{"seq", "id", "COALESCE(record_id, '') AS record_id", "source", "external_id", "entity_id", "score", "kind", "reason", "rationale", "resolves_decision_id", "superseded_entity_id", "record_fingerprint", "embedding_version", "created_at"}

// Repository is the append-only decision log.
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

func insertQuery(d *models.MatchDecision) (string, []any) {
	ib := database.NewInsertBuilder()
	ib.InsertInto(table)
	ib.Cols(insertColumns...)
	var recordID *string
	if d.RecordID != "" {
		recordID = &d.RecordID
	}
	ib.Values(d.ID, recordID, d.Source, d.ExternalID, d.EntityID, d.Score, string(d.Kind), d.Reason, d.Rationale, d.ResolvesDecisionID, d.SupersededEntityID, d.RecordFingerprint, d.EmbeddingVersion, d.CreatedAt)
	ib.Returning("seq")
	return ib.Build()
}

// Insert appends d and sets its sequence. A second primary decision for the
// record, a second resolution of a review, or a second merge of the same
// entity violates a unique index and is reported as a conflict.
func (r *Repository) Insert(ctx context.Context, d *models.MatchDecision) error {
	ctx, span := tracing.StartSpan(ctx, "matchdecision.Repository.Insert")
	defer span.End()

	query, args := insertQuery(d)
	var seq int64
	if err := database.Conn(ctx, r.db).GetContext(ctx, &seq, query, args...); err != nil {
		if database.IsUniqueViolation(err) {
			return pserrors.NewCommitConflictError(d.EntityIDValue(), "", "decision conflicts with an existing decision for record "+d.RecordID)
		}
		r.logger.WithContext(ctx).WithError(err).WithFields(map[string]any{
			"decision_id": d.ID,
			"record_id":   d.RecordID,
		}).Error("Failed to insert match decision")
		return pserrors.NewTransientStoreError("match_decisions.insert", err)
	}
	d.Sequence = seq
	return nil
}

func (r *Repository) Get(ctx context.Context, id string) (*models.MatchDecision, error) {
	ctx, span := tracing.StartSpan(ctx, "matchdecision.Repository.Get")
	defer span.End()

	sb := database.NewSelectBuilder()
	sb.Select(selectColumns...)
	sb.From(table)
	sb.Where(sb.Equal("id", id))

	query, args := sb.Build()
	var d models.MatchDecision
	if err := database.Conn(ctx, r.db).GetContext(ctx, &d, query, args...); err != nil {
		if database.IsNoRows(err) {
			return nil, store.NotFound("match decision", id)
		}
		r.logger.WithContext(ctx).WithError(err).Error("Failed to get match decision")
		return nil, pserrors.NewTransientStoreError("match_decisions.get", err)
	}
	return &d, nil
}

// FindLatest returns the newest decision for a source record, or nil.
func (r *Repository) FindLatest(ctx context.Context, source, externalID string) (*models.MatchDecision, error) {
	ctx, span := tracing.StartSpan(ctx, "matchdecision.Repository.FindLatest")
	defer span.End()

	sb := database.NewSelectBuilder()
	sb.Select(selectColumns...)
	sb.From(table)
	sb.Where(
		sb.Equal("source", source),
		sb.Equal("external_id", externalID),
	)
	sb.OrderBy("seq").Desc()
	sb.Limit(1)

	query, args := sb.Build()
	var d models.MatchDecision
	if err := database.Conn(ctx, r.db).GetContext(ctx, &d, query, args...); err != nil {
		if database.IsNoRows(err) {
			return nil, nil
		}
		r.logger.WithContext(ctx).WithError(err).Error("Failed to find match decision")
		return nil, pserrors.NewTransientStoreError("match_decisions.find", err)
	}
	return &d, nil
}

func openReviewsQuery(limit int) (string, []any) {
	return database.Buildf(`SELECT d.seq, d.id, d.record_id, d.source, d.external_id, d.entity_id, d.score, d.kind, d.reason, d.rationale, d.resolves_decision_id, d.superseded_entity_id, d.record_fingerprint, d.embedding_version, d.created_at
FROM match_decisions d
WHERE d.kind = %v
AND NOT EXISTS (SELECT 1 FROM match_decisions r WHERE r.resolves_decision_id = d.id)
ORDER BY d.seq
LIMIT %v`, string(models.DecisionKindNeedsReview), limit)
}

// ListOpenReviews returns unresolved needs_review decisions, oldest first.
func (r *Repository) ListOpenReviews(ctx context.Context, limit int) ([]*models.MatchDecision, error) {
	ctx, span := tracing.StartSpan(ctx, "matchdecision.Repository.ListOpenReviews")
	defer span.End()

	query, args := openReviewsQuery(limit)
	decisions := []*models.MatchDecision{}
	if err := database.Conn(ctx, r.db).SelectContext(ctx, &decisions, query, args...); err != nil {
		r.logger.WithContext(ctx).WithError(err).Error("Failed to list review queue")
		return nil, pserrors.NewTransientStoreError("match_decisions.list_reviews", err)
	}
	return decisions, nil
}
