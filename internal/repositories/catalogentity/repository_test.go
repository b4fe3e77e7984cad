package catalogentity

import (
	"strings"
	"testing"
	"time"

	"github.com/lib/pq"
	"github.com/stretchr/testify/assert"

	"github.com/Ramsey-B/productsync/pkg/models"
)

func TestIndexQuery(t *testing.T) {
	query, args := indexQuery("acme|widgets", []string{"acme", "widget"}, 200)

	assert.True(t, strings.HasPrefix(query, "SELECT e.id, e.block_key"))
	assert.Contains(t, query, "WHERE block_key = $2")
	assert.Contains(t, query, "token = ANY($3)")
	assert.Contains(t, query, "WHERE e.superseded_by IS NULL")
	assert.Contains(t, query, "ORDER BY ranked.hits DESC, e.id")
	assert.Contains(t, query, "LIMIT $4")
	assert.Equal(t, []any{3, "acme|widgets", pq.Array([]string{"acme", "widget"}), 200}, args)
}

func TestIndexQuery_NoTokens(t *testing.T) {
	_, args := indexQuery("acme", nil, 10)
	assert.Equal(t, 1, args[0])
	assert.Equal(t, pq.Array([]string{}), args[2])
}

func TestUpdateQuery(t *testing.T) {
	now := time.Date(2024, 1, 1, 0, 0, 0, 0, time.UTC)
	entity := &models.CatalogEntity{ID: "e-1", BlockKey: "acme", DisplayTitle: "Acme Widget", Version: 4}

	query, args := updateQuery(entity, now)

	assert.True(t, strings.HasPrefix(query, "UPDATE catalog_entities SET"))
	assert.Contains(t, query, "WHERE id = $7 AND version = $8 AND superseded_by IS NULL")
	assert.Equal(t, 5, args[4])
	assert.Equal(t, "e-1", args[6])
	assert.Equal(t, 4, args[7])
}

func TestBumpQuery(t *testing.T) {
	query, args := bumpQuery("acme", nil)
	assert.Contains(t, query, "revision = catalog_blocks.revision + 1")
	assert.NotContains(t, query, "WHERE")
	assert.Equal(t, []any{"acme"}, args)

	expected := int64(7)
	query, args = bumpQuery("acme", &expected)
	assert.Contains(t, query, "WHERE catalog_blocks.revision = $3")
	assert.Equal(t, []any{"acme", int64(8), int64(7)}, args)
}
