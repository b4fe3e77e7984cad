package embedding

import (
	"context"
	"errors"
	"math"
	"testing"
	"time"

	"github.com/Gobusters/ectologger"
	"github.com/redis/go-redis/v9"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func testLogger() ectologger.Logger {
	return ectologger.NewEctoLogger(func(ectologger.EctoLogMessage) {})
}

func TestHashingEmbedder_Deterministic(t *testing.T) {
	e := NewHashingEmbedder(0)
	ctx := context.Background()

	a, err := e.Embed(ctx, "acme widget 5000")
	require.NoError(t, err)
	b, err := e.Embed(ctx, "acme widget 5000")
	require.NoError(t, err)

	assert.Equal(t, a, b)
	assert.Len(t, a, DefaultDimensions)
	assert.Equal(t, "hashing-v1-256", e.Version())
	assert.InDelta(t, 1.0, math.Sqrt(dot(a, a)), 1e-9)
}

func TestHashingEmbedder_EmptyText(t *testing.T) {
	e := NewHashingEmbedder(64)

	_, err := e.Embed(context.Background(), "   ")
	assert.ErrorIs(t, err, ErrEmptyText)
}

func TestHashingEmbedder_Similarity(t *testing.T) {
	e := NewHashingEmbedder(256)
	ctx := context.Background()

	base, _ := e.Embed(ctx, "acme widget 5000")
	near, _ := e.Embed(ctx, "acme widget 5000 new")
	far, _ := e.Embed(ctx, "organic green tea 20 bags")

	assert.Greater(t, Cosine(base, near), 0.8)
	assert.Less(t, Cosine(base, far), Cosine(base, near))
}

func TestCosine(t *testing.T) {
	tests := []struct {
		name string
		a, b []float64
		want float64
	}{
		{"identical", []float64{1, 2, 3}, []float64{1, 2, 3}, 1},
		{"orthogonal", []float64{1, 0}, []float64{0, 1}, 0},
		{"scaled", []float64{1, 1}, []float64{3, 3}, 1},
		{"zero vector", []float64{0, 0}, []float64{1, 1}, 0},
		{"length mismatch", []float64{1, 0}, []float64{1, 0, 0}, 0},
		{"empty", nil, nil, 0},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.InDelta(t, tt.want, Cosine(tt.a, tt.b), 1e-12)
			assert.Equal(t, Cosine(tt.a, tt.b), Cosine(tt.b, tt.a))
		})
	}
}

func TestCentroid(t *testing.T) {
	got := Centroid([]float64{1, 0}, 3, []float64{0, 1}, 1)
	assert.InDeltaSlice(t, []float64{0.75, 0.25}, got, 1e-12)

	assert.Equal(t, []float64{0, 1}, Centroid(nil, 0, []float64{0, 1}, 1))
	assert.Equal(t, []float64{1, 0}, Centroid([]float64{1, 0}, 2, nil, 0))
}

func TestNormalize(t *testing.T) {
	v := []float64{3, 4}
	got := Normalize(v)

	assert.InDeltaSlice(t, []float64{0.6, 0.8}, got, 1e-12)
	assert.Equal(t, []float64{3, 4}, v)
	assert.Equal(t, []float64{0, 0}, Normalize([]float64{0, 0}))
}

type mapCache struct {
	data    map[string]string
	getErr  error
	sets    int
	lastTTL time.Duration
}

func (m *mapCache) Get(_ context.Context, key string) (string, error) {
	if m.getErr != nil {
		return "", m.getErr
	}
	v, ok := m.data[key]
	if !ok {
		return "", redis.Nil
	}
	return v, nil
}

func (m *mapCache) Set(_ context.Context, key string, value interface{}, ttl time.Duration) error {
	m.sets++
	m.lastTTL = ttl
	m.data[key] = string(value.([]byte))
	return nil
}

type countingEmbedder struct {
	inner Embedder
	calls int
}

func (c *countingEmbedder) Embed(ctx context.Context, text string) ([]float64, error) {
	c.calls++
	return c.inner.Embed(ctx, text)
}

func (c *countingEmbedder) Version() string { return c.inner.Version() }

func TestCachedEmbedder_ReadThrough(t *testing.T) {
	inner := &countingEmbedder{inner: NewHashingEmbedder(32)}
	cache := &mapCache{data: map[string]string{}}
	e := NewCachedEmbedder(inner, cache, time.Minute, testLogger())
	ctx := context.Background()

	first, err := e.Embed(ctx, "acme widget")
	require.NoError(t, err)
	second, err := e.Embed(ctx, "acme widget")
	require.NoError(t, err)

	assert.Equal(t, 1, inner.calls)
	assert.Equal(t, 1, cache.sets)
	assert.Equal(t, time.Minute, cache.lastTTL)
	assert.InDeltaSlice(t, first, second, 1e-15)
	assert.Contains(t, cache.data, CacheKey("hashing-v1-32", "acme widget"))
}

func TestCachedEmbedder_CacheFailureFallsBack(t *testing.T) {
	inner := &countingEmbedder{inner: NewHashingEmbedder(32)}
	cache := &mapCache{data: map[string]string{}, getErr: errors.New("connection refused")}
	e := NewCachedEmbedder(inner, cache, 0, testLogger())

	vec, err := e.Embed(context.Background(), "acme widget")
	require.NoError(t, err)

	assert.Len(t, vec, 32)
	assert.Equal(t, 1, inner.calls)
	assert.Equal(t, DefaultCacheTTL, cache.lastTTL)
}

func TestCacheKey_VersionScoped(t *testing.T) {
	assert.NotEqual(t, CacheKey("hashing-v1-256", "x"), CacheKey("hashing-v1-512", "x"))
}

func dot(a, b []float64) float64 {
	var s float64
	for i := range a {
		s += a[i] * b[i]
	}
	return s
}
