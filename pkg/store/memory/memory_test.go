package memory

import (
	"context"
	"errors"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	pserrors "github.com/Ramsey-B/productsync/pkg/errors"
	"github.com/Ramsey-B/productsync/pkg/models"
	"github.com/Ramsey-B/productsync/pkg/store"
)

func newEntity(id, block string, tokens ...string) *models.CatalogEntity {
	return &models.CatalogEntity{
		ID:             id,
		BlockKey:       block,
		DisplayTitle:   id,
		Representative: models.ProductForm{Title: id, Tokens: tokens},
	}
}

func strPtr(s string) *string { return &s }

func TestCommitEntity_InsertAndUpdate(t *testing.T) {
	s := New()
	ctx := context.Background()

	e := newEntity("e1", "acme", "widget")
	e.RecordIDs = []string{"r1"}
	require.NoError(t, s.CommitEntity(ctx, e, &models.CommitGuard{BlockKey: "acme", Revision: 0}))
	assert.Equal(t, 1, e.Version)

	stored, err := s.GetEntity(ctx, "e1")
	require.NoError(t, err)
	assert.Equal(t, 1, stored.Version)
	assert.False(t, stored.CreatedAt.IsZero())

	entityID, ok := s.RecordEntity("r1")
	assert.True(t, ok)
	assert.Equal(t, "e1", entityID)

	stored.RecordIDs = append(stored.RecordIDs, "r2")
	require.NoError(t, s.CommitEntity(ctx, stored, nil))
	assert.Equal(t, 2, stored.Version)

	// stale version
	e.RecordIDs = append(e.RecordIDs, "r3")
	err = s.CommitEntity(ctx, e, nil)
	assert.True(t, pserrors.IsCommitConflictError(err))
}

func TestCommitEntity_GuardConflict(t *testing.T) {
	s := New()
	ctx := context.Background()

	page, err := s.LoadCandidates(ctx, store.CandidateQuery{BlockKey: "acme"})
	require.NoError(t, err)
	guard := &models.CommitGuard{BlockKey: "acme", Revision: page.Revision}

	require.NoError(t, s.CommitEntity(ctx, newEntity("e1", "acme"), guard))
	err = s.CommitEntity(ctx, newEntity("e2", "acme"), guard)

	require.Error(t, err)
	var conflict *pserrors.CommitConflictError
	require.ErrorAs(t, err, &conflict)
	assert.Equal(t, "acme", conflict.BlockKey)

	_, err = s.GetEntity(ctx, "e2")
	assert.True(t, store.IsNotFound(err))
}

func TestCommitEntity_CatalogScopeGuard(t *testing.T) {
	s := New()
	ctx := context.Background()

	page, err := s.LoadCandidates(ctx, store.CandidateQuery{All: true})
	require.NoError(t, err)
	assert.Equal(t, store.CatalogScope, page.BlockKey)
	guard := &models.CommitGuard{BlockKey: page.BlockKey, Revision: page.Revision}

	require.NoError(t, s.CommitEntity(ctx, newEntity("e1", "acme"), guard))

	// A write in another block still invalidates a catalog-wide read.
	err = s.CommitEntity(ctx, newEntity("e2", "globex"), guard)
	var conflict *pserrors.CommitConflictError
	require.ErrorAs(t, err, &conflict)
	assert.Equal(t, store.CatalogScope, conflict.BlockKey)

	require.NoError(t, s.CommitEntity(ctx, newEntity("e3", "globex"), nil))
	page, err = s.LoadCandidates(ctx, store.CandidateQuery{All: true})
	require.NoError(t, err)
	assert.Equal(t, int64(2), page.Revision)
	assert.Len(t, page.Entities, 2)
}

func TestLoadCandidates(t *testing.T) {
	s := New()
	ctx := context.Background()

	require.NoError(t, s.CommitEntity(ctx, newEntity("e1", "acme", "widget", "5000"), nil))
	require.NoError(t, s.CommitEntity(ctx, newEntity("e2", "globex", "widget"), nil))
	require.NoError(t, s.CommitEntity(ctx, newEntity("e3", "globex", "gadget"), nil))

	count, err := s.CountEntities(ctx)
	require.NoError(t, err)
	assert.Equal(t, 3, count)

	all, err := s.LoadCandidates(ctx, store.CandidateQuery{All: true})
	require.NoError(t, err)
	assert.Len(t, all.Entities, 3)

	indexed, err := s.LoadCandidates(ctx, store.CandidateQuery{BlockKey: "acme", Tokens: []string{"widget"}})
	require.NoError(t, err)
	require.Len(t, indexed.Entities, 2)
	assert.Equal(t, "e1", indexed.Entities[0].ID)
	assert.Equal(t, "e2", indexed.Entities[1].ID)
	assert.Equal(t, int64(1), indexed.Revision)

	limited, err := s.LoadCandidates(ctx, store.CandidateQuery{BlockKey: "acme", Tokens: []string{"widget"}, Limit: 1})
	require.NoError(t, err)
	assert.Len(t, limited.Entities, 1)
}

func TestSupersedeEntity(t *testing.T) {
	s := New()
	ctx := context.Background()

	survivor := newEntity("e1", "acme", "widget")
	survivor.RecordIDs = []string{"r1"}
	loser := newEntity("e2", "acme", "widget")
	loser.RecordIDs = []string{"r2"}
	require.NoError(t, s.CommitEntity(ctx, survivor, nil))
	require.NoError(t, s.CommitEntity(ctx, loser, nil))

	err := s.WithTx(ctx, func(ctx context.Context) error {
		if err := s.SupersedeEntity(ctx, loser, survivor.ID); err != nil {
			return err
		}
		survivor.RecordIDs = append(survivor.RecordIDs, "r2")
		return s.CommitEntity(ctx, survivor, nil)
	})
	require.NoError(t, err)

	stored, err := s.GetEntity(ctx, "e2")
	require.NoError(t, err)
	assert.True(t, stored.IsSuperseded())
	assert.Equal(t, "e1", *stored.SupersededBy)
	assert.Empty(t, stored.RecordIDs)

	entityID, _ := s.RecordEntity("r2")
	assert.Equal(t, "e1", entityID)

	page, err := s.LoadCandidates(ctx, store.CandidateQuery{BlockKey: "acme", Tokens: []string{"widget"}})
	require.NoError(t, err)
	require.Len(t, page.Entities, 1)
	assert.Equal(t, "e1", page.Entities[0].ID)

	count, _ := s.CountEntities(ctx)
	assert.Equal(t, 1, count)

	err = s.SupersedeEntity(ctx, stored, "e1")
	assert.True(t, pserrors.IsCommitConflictError(err))
}

func TestWithTx_AllOrNothing(t *testing.T) {
	s := New()
	ctx := context.Background()
	require.NoError(t, s.CommitEntity(ctx, newEntity("e1", "acme"), nil))

	stale := newEntity("e1", "acme")
	stale.Version = 7

	err := s.WithTx(ctx, func(ctx context.Context) error {
		if err := s.SaveRecord(ctx, &models.ProductRecord{ID: "r1", Source: "a", ExternalID: "1", Title: "x"}); err != nil {
			return err
		}
		if err := s.CommitEntity(ctx, stale, nil); err != nil {
			return err
		}
		return s.AppendDecision(ctx, &models.MatchDecision{ID: "d1", RecordID: "r1", Source: "a", ExternalID: "1", Kind: models.DecisionKindAutoMerge})
	})
	assert.True(t, pserrors.IsCommitConflictError(err))

	_, err = s.GetRecord(ctx, "r1")
	assert.True(t, store.IsNotFound(err))
	assert.Empty(t, s.Decisions())

	sentinel := errors.New("abort")
	err = s.WithTx(ctx, func(ctx context.Context) error {
		_ = s.SaveRecord(ctx, &models.ProductRecord{ID: "r2"})
		return sentinel
	})
	assert.ErrorIs(t, err, sentinel)
	_, err = s.GetRecord(ctx, "r2")
	assert.True(t, store.IsNotFound(err))
}

func TestDecisions(t *testing.T) {
	s := New()
	ctx := context.Background()

	review := &models.MatchDecision{ID: "d1", RecordID: "r1", Source: "a", ExternalID: "1", Kind: models.DecisionKindNeedsReview}
	require.NoError(t, s.AppendDecision(ctx, review))
	assert.Equal(t, int64(1), review.Sequence)

	dup := &models.MatchDecision{ID: "d2", RecordID: "r1", Source: "a", ExternalID: "1", Kind: models.DecisionKindNewEntity}
	assert.True(t, pserrors.IsCommitConflictError(s.AppendDecision(ctx, dup)))

	queue, err := s.ListReviewQueue(ctx, 0)
	require.NoError(t, err)
	require.Len(t, queue, 1)
	assert.Equal(t, "d1", queue[0].ID)

	outcome := &models.MatchDecision{
		ID: "d3", RecordID: "r1", Source: "a", ExternalID: "1",
		Kind: models.DecisionKindReviewNew, EntityID: strPtr("e9"), ResolvesDecisionID: strPtr("d1"),
	}
	require.NoError(t, s.AppendDecision(ctx, outcome))

	again := &models.MatchDecision{ID: "d4", RecordID: "r1", Kind: models.DecisionKindReviewNew, ResolvesDecisionID: strPtr("d1")}
	assert.True(t, pserrors.IsCommitConflictError(s.AppendDecision(ctx, again)))

	queue, err = s.ListReviewQueue(ctx, 10)
	require.NoError(t, err)
	assert.Empty(t, queue)

	latest, err := s.FindDecision(ctx, "a", "1")
	require.NoError(t, err)
	assert.Equal(t, "d3", latest.ID)
	assert.Equal(t, int64(2), latest.Sequence)

	missing, err := s.FindDecision(ctx, "a", "2")
	require.NoError(t, err)
	assert.Nil(t, missing)

	_, err = s.GetDecision(ctx, "nope")
	assert.True(t, store.IsNotFound(err))
}

func TestDecisions_EntityMerge(t *testing.T) {
	s := New()
	ctx := context.Background()

	merge := &models.MatchDecision{
		ID: "m1", Kind: models.DecisionKindEntityMerge,
		EntityID: strPtr("e1"), SupersededEntityID: strPtr("e2"),
	}
	require.NoError(t, s.AppendDecision(ctx, merge))

	stored, err := s.GetDecision(ctx, "m1")
	require.NoError(t, err)
	require.NotNil(t, stored.SupersededEntityID)
	assert.Equal(t, "e2", *stored.SupersededEntityID)
	assert.Empty(t, stored.RecordID)

	again := &models.MatchDecision{
		ID: "m2", Kind: models.DecisionKindEntityMerge,
		EntityID: strPtr("e3"), SupersededEntityID: strPtr("e2"),
	}
	assert.True(t, pserrors.IsCommitConflictError(s.AppendDecision(ctx, again)))

	queue, err := s.ListReviewQueue(ctx, 0)
	require.NoError(t, err)
	assert.Empty(t, queue)
}
