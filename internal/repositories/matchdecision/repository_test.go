package matchdecision

import (
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"

	"github.com/Ramsey-B/productsync/pkg/models"
)

func TestInsertQuery(t *testing.T) {
	entityID := "e-1"
	d := &models.MatchDecision{ID: "d-1", RecordID: "r-1", EntityID: &entityID, Kind: models.DecisionKindAutoMerge, Score: 0.92}

	query, args := insertQuery(d)

	assert.True(t, strings.HasPrefix(query, "INSERT INTO match_decisions (id, record_id"))
	assert.True(t, strings.HasSuffix(query, "RETURNING seq"))
	assert.Len(t, args, len(insertColumns))
	assert.Equal(t, "auto_merge", args[6])
	assert.Equal(t, "r-1", args[1])
}

func TestInsertQuery_EntityMergeHasNoRecord(t *testing.T) {
	survivor, superseded := "e-1", "e-2"
	d := &models.MatchDecision{
		ID:                 "d-2",
		EntityID:           &survivor,
		SupersededEntityID: &superseded,
		Kind:               models.DecisionKindEntityMerge,
		Reason:             models.ReasonEntityMerge,
	}

	query, args := insertQuery(d)

	assert.Contains(t, query, "superseded_entity_id")
	assert.Nil(t, args[1])
	assert.Equal(t, &superseded, args[10])
	assert.Equal(t, "entity_merge", args[6])
}

func TestOpenReviewsQuery(t *testing.T) {
	query, args := openReviewsQuery(25)

	assert.Contains(t, query, "WHERE d.kind = $1")
	assert.Contains(t, query, "NOT EXISTS")
	assert.Contains(t, query, "LIMIT $2")
	assert.Equal(t, []any{"needs_review", 25}, args)
}
