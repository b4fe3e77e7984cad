package embedding

import (
	"context"
	"crypto/sha256"
	"encoding/hex"
	"encoding/json"
	"errors"
	"time"

	"github.com/Gobusters/ectologger"
	"github.com/redis/go-redis/v9"
)

const DefaultCacheTTL = 24 * time.Hour

// Cache is the subset of the Redis client the embedding cache needs.
type Cache interface {
	Get(ctx context.Context, key string) (string, error)
	Set(ctx context.Context, key string, value interface{}, expiration time.Duration) error
}

// CachedEmbedder is a read-through cache in front of another Embedder.
// Keys include the model version so an upgrade never serves stale vectors.
// Cache failures fall back to embedding directly.
type CachedEmbedder struct {
	inner  Embedder
	cache  Cache
	ttl    time.Duration
	logger ectologger.Logger
}

func NewCachedEmbedder(inner Embedder, cache Cache, ttl time.Duration, logger ectologger.Logger) *CachedEmbedder {
	if ttl <= 0 {
		ttl = DefaultCacheTTL
	}
	return &CachedEmbedder{
		inner:  inner,
		cache:  cache,
		ttl:    ttl,
		logger: logger,
	}
}

func (c *CachedEmbedder) Version() string {
	return c.inner.Version()
}

// CacheKey returns the cache key for text under the given model version.
func CacheKey(version, text string) string {
	sum := sha256.Sum256([]byte(text))
	return "embedding:" + version + ":" + hex.EncodeToString(sum[:])
}

func (c *CachedEmbedder) Embed(ctx context.Context, text string) ([]float64, error) {
	key := CacheKey(c.inner.Version(), text)

	raw, err := c.cache.Get(ctx, key)
	switch {
	case err == nil:
		var vec []float64
		if jsonErr := json.Unmarshal([]byte(raw), &vec); jsonErr == nil && len(vec) > 0 {
			return vec, nil
		}
		c.logger.WithContext(ctx).Warnf("Discarding malformed cached embedding %s", key)
	case !errors.Is(err, redis.Nil):
		c.logger.WithContext(ctx).WithError(err).Warn("Embedding cache read failed")
	}

	vec, err := c.inner.Embed(ctx, text)
	if err != nil {
		return nil, err
	}

	data, err := json.Marshal(vec)
	if err != nil {
		return vec, nil
	}
	if err := c.cache.Set(ctx, key, data, c.ttl); err != nil {
		c.logger.WithContext(ctx).WithError(err).Warn("Embedding cache write failed")
	}
	return vec, nil
}
