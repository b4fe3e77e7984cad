package matching

import (
	"context"
	"errors"
	"fmt"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	pserrors "github.com/Ramsey-B/productsync/pkg/errors"
	"github.com/Ramsey-B/productsync/pkg/models"
	"github.com/Ramsey-B/productsync/pkg/store"
	"github.com/Ramsey-B/productsync/pkg/store/memory"
)

func seedEntity(t *testing.T, st *memory.Store, id string, nr *models.NormalizedRecord) {
	t.Helper()
	require.NoError(t, st.CommitEntity(context.Background(), &models.CatalogEntity{
		ID:             id,
		BlockKey:       nr.BlockKey,
		DisplayTitle:   nr.Form.Title,
		Representative: nr.Form,
		RecordIDs:      []string{nr.RecordID},
	}, nil))
}

func TestRetriever_ExactMode(t *testing.T) {
	st := memory.New()
	seedEntity(t, st, "e1", normalize(t, "Acme Widget 5000", map[string]string{"brand": "Acme"}))
	seedEntity(t, st, "e2", normalize(t, "Globex Widget 5000", map[string]string{"brand": "Globex"}))
	seedEntity(t, st, "e3", normalize(t, "Organic Green Tea", map[string]string{"brand": "Leafy"}))

	r := NewRetriever(st, testNormalizer(), DefaultConfig(), testLogger())
	set, err := r.Retrieve(context.Background(), normalize(t, "Acme Widget 5000 (New)", map[string]string{"brand": "Acme"}))
	require.NoError(t, err)

	assert.Equal(t, ModeExact, set.Mode)
	assert.Equal(t, 3, set.Scanned)
	require.NotEmpty(t, set.Candidates)
	assert.Equal(t, "e1", set.Candidates[0].Entity.ID)
	assert.Equal(t, store.CatalogScope, set.Guard.BlockKey)
	assert.Equal(t, int64(3), set.Guard.Revision)
	for i := 1; i < len(set.Candidates); i++ {
		assert.GreaterOrEqual(t, set.Candidates[i-1].Similarity, set.Candidates[i].Similarity)
	}
}

func TestRetriever_IndexMode(t *testing.T) {
	st := memory.New()
	seedEntity(t, st, "e1", normalize(t, "Acme Widget 5000", map[string]string{"brand": "Acme"}))
	seedEntity(t, st, "e2", normalize(t, "Globex Widget 7", map[string]string{"brand": "Globex"}))
	seedEntity(t, st, "e3", normalize(t, "Organic Green Tea", map[string]string{"brand": "Leafy"}))

	cfg := DefaultConfig()
	cfg.ExactSearchThreshold = 1
	r := NewRetriever(st, testNormalizer(), cfg, testLogger())

	set, err := r.Retrieve(context.Background(), normalize(t, "Acme Widget 5000 (New)", map[string]string{"brand": "Acme"}))
	require.NoError(t, err)

	assert.Equal(t, ModeIndex, set.Mode)
	assert.Equal(t, 2, set.Scanned)
	assert.Equal(t, "acme", set.Guard.BlockKey)
	assert.Equal(t, int64(1), set.Guard.Revision)
	for _, c := range set.Candidates {
		assert.NotEqual(t, "e3", c.Entity.ID)
	}
}

func TestRetriever_KBound(t *testing.T) {
	st := memory.New()
	for i := 0; i < 15; i++ {
		seedEntity(t, st, fmt.Sprintf("e%02d", i), normalize(t, fmt.Sprintf("Acme Widget %d", i), map[string]string{"brand": "Acme"}))
	}

	cfg := DefaultConfig()
	cfg.MaxCandidates = 4
	r := NewRetriever(st, testNormalizer(), cfg, testLogger())

	set, err := r.Retrieve(context.Background(), normalize(t, "Acme Widget", map[string]string{"brand": "Acme"}))
	require.NoError(t, err)
	assert.Len(t, set.Candidates, 4)
}

func TestRetriever_EmptyCatalog(t *testing.T) {
	r := NewRetriever(memory.New(), testNormalizer(), DefaultConfig(), testLogger())

	set, err := r.Retrieve(context.Background(), normalize(t, "Acme Widget", nil))
	require.NoError(t, err)
	assert.Empty(t, set.Candidates)
	assert.Equal(t, store.CatalogScope, set.Guard.BlockKey)
	assert.Equal(t, int64(0), set.Guard.Revision)
}

func TestRetriever_ReembedsStaleCandidates(t *testing.T) {
	st := memory.New()
	nr := normalize(t, "Acme Widget 5000", map[string]string{"brand": "Acme"})
	nr.Form.EmbeddingVersion = "legacy"
	nr.Form.Embedding = []float64{1, 0, 0}
	seedEntity(t, st, "e1", nr)

	r := NewRetriever(st, testNormalizer(), DefaultConfig(), testLogger())
	set, err := r.Retrieve(context.Background(), normalize(t, "Acme Widget 5000", map[string]string{"brand": "Acme"}))
	require.NoError(t, err)

	require.Len(t, set.Candidates, 1)
	assert.InDelta(t, 1.0, set.Candidates[0].Similarity, 1e-9)
	assert.Equal(t, "hashing-v1-256", set.Candidates[0].Entity.Representative.EmbeddingVersion)
}

func TestRetriever_DropsImplausible(t *testing.T) {
	st := memory.New()
	seedEntity(t, st, "e1", normalize(t, "Acme Widget", nil))

	cfg := DefaultConfig()
	cfg.MinSimilarity = 1
	r := NewRetriever(st, testNormalizer(), cfg, testLogger())

	set, err := r.Retrieve(context.Background(), normalize(t, "Garden Hose", nil))
	require.NoError(t, err)
	assert.Empty(t, set.Candidates)
}

type failingReembedder struct {
	err    error
	calls  int
	cancel context.CancelFunc
}

func (f *failingReembedder) EmbeddingVersion() string { return "hashing-v2-256" }

func (f *failingReembedder) Reembed(context.Context, *models.ProductForm) (bool, error) {
	f.calls++
	if f.cancel != nil {
		f.cancel()
	}
	return false, f.err
}

func TestRetriever_ReembedFailureIsTransient(t *testing.T) {
	st := memory.New()
	seedEntity(t, st, "e1", normalize(t, "Acme Widget 5000", map[string]string{"brand": "Acme"}))

	reembedder := &failingReembedder{err: errors.New("model unavailable")}
	r := NewRetriever(st, reembedder, DefaultConfig(), testLogger())

	set, err := r.Retrieve(context.Background(), normalize(t, "Acme Widget 5000", map[string]string{"brand": "Acme"}))
	require.Error(t, err)
	assert.Nil(t, set)
	assert.True(t, pserrors.IsTransientStoreError(err))
	assert.ErrorContains(t, err, "model unavailable")
	assert.Equal(t, 1, reembedder.calls)
}

func TestRetriever_ReembedCancelled(t *testing.T) {
	st := memory.New()
	seedEntity(t, st, "e1", normalize(t, "Acme Widget 5000", map[string]string{"brand": "Acme"}))
	nr := normalize(t, "Acme Widget 5000", map[string]string{"brand": "Acme"})

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()
	reembedder := &failingReembedder{err: errors.New("interrupted"), cancel: cancel}
	r := NewRetriever(st, reembedder, DefaultConfig(), testLogger())

	_, err := r.Retrieve(ctx, nr)
	assert.ErrorIs(t, err, context.Canceled)
	assert.False(t, pserrors.IsTransientStoreError(err))
	assert.Equal(t, 1, reembedder.calls)
}
