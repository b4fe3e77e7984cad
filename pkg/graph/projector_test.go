package graph

import (
	"context"
	"errors"
	"strings"
	"testing"

	"github.com/Gobusters/ectologger"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/Ramsey-B/productsync/pkg/models"
)

type recordingExecutor struct {
	batches [][]Statement
	err     error
}

func (e *recordingExecutor) ExecuteStatements(_ context.Context, stmts []Statement) error {
	if e.err != nil {
		return e.err
	}
	e.batches = append(e.batches, stmts)
	return nil
}

func newProjector(e StatementExecutor) *CatalogProjector {
	return NewCatalogProjector(e, ectologger.NewEctoLogger(func(ectologger.EctoLogMessage) {}))
}

func strPtr(s string) *string { return &s }

func TestDecisionStatements(t *testing.T) {
	tests := []struct {
		name     string
		decision *models.MatchDecision
		count    int
		contains string
	}{
		{
			name:     "auto merge links record",
			decision: &models.MatchDecision{ID: "d-1", RecordID: "r-1", Kind: models.DecisionKindAutoMerge, EntityID: strPtr("e-1"), Score: 0.92},
			count:    3,
			contains: RelLinkedTo,
		},
		{
			name:     "new entity links record",
			decision: &models.MatchDecision{ID: "d-2", RecordID: "r-2", Kind: models.DecisionKindNewEntity, EntityID: strPtr("e-2")},
			count:    3,
			contains: RelLinkedTo,
		},
		{
			name: "review adds candidate edges",
			decision: &models.MatchDecision{ID: "d-3", RecordID: "r-3", Kind: models.DecisionKindNeedsReview, Rationale: models.Rationale{
				{EntityID: "e-1", Score: 0.70},
				{EntityID: "e-2", Score: 0.69},
			}},
			count:    2,
			contains: RelCandidateOf,
		},
		{
			name:     "escalation without candidates only upserts record",
			decision: &models.MatchDecision{ID: "d-4", RecordID: "r-4", Kind: models.DecisionKindNeedsReview},
			count:    1,
			contains: LabelProductRecord,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			stmts := DecisionStatements(tt.decision)
			require.Len(t, stmts, tt.count)
			assert.Equal(t, tt.decision.RecordID, stmts[0].Params["record_id"])
			assert.Contains(t, stmts[len(stmts)-1].Cypher, tt.contains)
		})
	}
}

func TestDecisionStatements_ReviewCandidates(t *testing.T) {
	stmts := DecisionStatements(&models.MatchDecision{ID: "d-3", RecordID: "r-3", Kind: models.DecisionKindNeedsReview, Rationale: models.Rationale{
		{EntityID: "e-1", Score: 0.70},
	}})

	candidates := stmts[1].Params["candidates"].([]map[string]any)
	assert.Equal(t, []map[string]any{{"entity_id": "e-1", "score": 0.70}}, candidates)
}

func TestDecisionStatements_EntityMerge(t *testing.T) {
	stmts := DecisionStatements(&models.MatchDecision{
		ID:                 "d-5",
		Kind:               models.DecisionKindEntityMerge,
		EntityID:           strPtr("e-1"),
		SupersededEntityID: strPtr("e-2"),
	})

	require.Len(t, stmts, 2)
	assert.Contains(t, stmts[0].Cypher, RelSupersededBy)
	assert.Equal(t, "e-2", stmts[0].Params["superseded_id"])
	assert.Equal(t, "e-1", stmts[0].Params["survivor_id"])
	for _, s := range stmts {
		assert.NotContains(t, s.Params, "record_id")
	}

	assert.Empty(t, DecisionStatements(&models.MatchDecision{ID: "d-6", Kind: models.DecisionKindEntityMerge, EntityID: strPtr("e-1")}))
}

func TestCatalogProjector(t *testing.T) {
	exec := &recordingExecutor{}
	p := newProjector(exec)
	ctx := context.Background()

	require.NoError(t, p.ProjectDecision(ctx, &models.MatchDecision{ID: "d-1", RecordID: "r-1", Kind: models.DecisionKindNewEntity, EntityID: strPtr("e-1")}))
	require.NoError(t, p.ProjectSupersession(ctx, "e-2", "e-1"))

	require.Len(t, exec.batches, 2)
	supersession := exec.batches[1]
	require.Len(t, supersession, 2)
	assert.True(t, strings.Contains(supersession[0].Cypher, RelSupersededBy))
	assert.Equal(t, "e-2", supersession[0].Params["superseded_id"])
	assert.Equal(t, "e-1", supersession[0].Params["survivor_id"])

	exec.err = errors.New("bolt down")
	assert.Error(t, p.ProjectDecision(ctx, &models.MatchDecision{ID: "d-2", RecordID: "r-2"}))
	assert.Error(t, p.ProjectSupersession(ctx, "e-3", "e-1"))
}
