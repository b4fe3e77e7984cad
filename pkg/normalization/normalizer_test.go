package normalization

import (
	"context"
	"testing"
	"time"

	"github.com/Gobusters/ectologger"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/Ramsey-B/productsync/pkg/embedding"
	pserrors "github.com/Ramsey-B/productsync/pkg/errors"
	"github.com/Ramsey-B/productsync/pkg/models"
)

func newTestNormalizer() *Normalizer {
	logger := ectologger.NewEctoLogger(func(ectologger.EctoLogMessage) {})
	return NewNormalizer(embedding.NewHashingEmbedder(64), DefaultConfig(), logger)
}

func TestNormalize(t *testing.T) {
	n := newTestNormalizer()
	observed := time.Date(2024, 5, 1, 0, 0, 0, 0, time.UTC)
	record := &models.ProductRecord{
		ID:          models.RecordID("shop-a", "sku-1"),
		Source:      "shop-a",
		ExternalID:  "sku-1",
		Title:       "  Acme Widget 5000 (New) ",
		Description: "The Widget, improved!",
		Attributes: models.Attributes{
			"Brand":       "ACME",
			"Screen Size": "12 Inches",
			"Color":       "",
		},
		ObservedAt: observed,
	}

	got, err := n.Normalize(context.Background(), record)
	require.NoError(t, err)

	assert.Equal(t, record.ID, got.RecordID)
	assert.Equal(t, "acme widget 5000 new", got.Form.Title)
	assert.Equal(t, "the widget improved", got.Form.Description)
	assert.Equal(t, "acme", got.Form.Brand)
	assert.Equal(t, map[string]string{"screen_size": "12in"}, got.Form.Attributes)
	assert.Equal(t, []string{"5000", "acme", "new", "widget"}, got.Form.Tokens)
	assert.Equal(t, "hashing-v1-64", got.Form.EmbeddingVersion)
	assert.Len(t, got.Form.Embedding, 64)
	assert.Equal(t, "acme", got.BlockKey)
	assert.Equal(t, "acme|acme wid", got.LockKey)
	assert.Equal(t, observed, got.ObservedAt)
}

func TestNormalize_ScrubsDescription(t *testing.T) {
	n := newTestNormalizer()
	record := &models.ProductRecord{
		Title:       "Acme Widget 5000",
		Description: "Mint condition.\n> can you ship today?\nEmail me at jo@example.com or call 555-123-4567",
	}

	got, err := n.Normalize(context.Background(), record)
	require.NoError(t, err)
	assert.Equal(t, "mint condition email me at or call", got.Form.Description)
	assert.Equal(t, "acme widget 5000", got.Form.Title)
}

func TestNormalize_Deterministic(t *testing.T) {
	n := newTestNormalizer()
	record := &models.ProductRecord{Title: "Café Crème 12 oz", Attributes: models.Attributes{"category": "Coffee"}}

	a, err := n.Normalize(context.Background(), record)
	require.NoError(t, err)
	b, err := n.Normalize(context.Background(), record)
	require.NoError(t, err)

	assert.Equal(t, a, b)
	assert.Equal(t, "coffee", a.BlockKey)
}

func TestNormalize_RejectsEmptyTitle(t *testing.T) {
	n := newTestNormalizer()

	tests := []struct {
		name  string
		title string
	}{
		{"empty", ""},
		{"whitespace", "   \t "},
		{"punctuation only", "!!! ---"},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, err := n.Normalize(context.Background(), &models.ProductRecord{ID: "r1", Title: tt.title})
			require.Error(t, err)
			assert.True(t, pserrors.IsNormalizationError(err))

			var normErr *pserrors.NormalizationError
			require.ErrorAs(t, err, &normErr)
			assert.Equal(t, "title", normErr.Field)
			assert.Equal(t, "r1", normErr.RecordID)
		})
	}
}

func TestBlockKey(t *testing.T) {
	assert.Equal(t, "acme", BlockKey("acme", "tools", "widget"))
	assert.Equal(t, "tools", BlockKey("", "tools", "widget"))
	assert.Equal(t, "~widget", BlockKey("", "", "widget"))
}

func TestLockKey(t *testing.T) {
	assert.Equal(t, "acme|widget 5", LockKey("acme", "widget 5000", 8))
	assert.Equal(t, "|tea", LockKey("", "tea", 8))
	assert.Equal(t, "x|caf", LockKey("x", "café", 3))
}

func TestReembed(t *testing.T) {
	n := newTestNormalizer()
	form := &models.ProductForm{Title: "acme widget", Embedding: []float64{1}, EmbeddingVersion: "old-model"}

	changed, err := n.Reembed(context.Background(), form)
	require.NoError(t, err)
	assert.True(t, changed)
	assert.Equal(t, "hashing-v1-64", form.EmbeddingVersion)
	assert.Len(t, form.Embedding, 64)

	changed, err = n.Reembed(context.Background(), form)
	require.NoError(t, err)
	assert.False(t, changed)
}

func TestNormalize_CollidingAttributeNames(t *testing.T) {
	n := newTestNormalizer()
	record := &models.ProductRecord{
		ID:    models.RecordID("shop-a", "sku-9"),
		Title: "Acme Widget",
		Attributes: models.Attributes{
			"Brand":  "Acme",
			"brand":  "Zeta",
			"Color":  "red",
			"color ": "blue",
			"SIZE":   "",
			"size":   "Large",
		},
	}

	first, err := n.Normalize(context.Background(), record)
	require.NoError(t, err)
	assert.Equal(t, "acme", first.Form.Brand)
	assert.Equal(t, "red", first.Form.Attributes["color"])
	assert.Equal(t, "large", first.Form.Attributes["size"])
	assert.Equal(t, "acme", first.BlockKey)
	assert.Equal(t, "acme|acme wid", first.LockKey)

	for i := 0; i < 100; i++ {
		got, err := n.Normalize(context.Background(), record)
		require.NoError(t, err)
		require.Equal(t, first.Form, got.Form)
		require.Equal(t, first.BlockKey, got.BlockKey)
		require.Equal(t, first.LockKey, got.LockKey)
	}
}
