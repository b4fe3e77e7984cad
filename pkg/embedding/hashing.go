package embedding

import (
	"context"
	"fmt"
	"hash/fnv"
	"strings"
)

const (
	DefaultDimensions = 256

	tokenWeight   = 1.0
	trigramWeight = 0.5
)

// HashingEmbedder is a deterministic local model. Word tokens and boundary
// padded character trigrams are hashed into a fixed number of buckets and the
// result is L2-normalized. Equal text always yields an identical vector.
type HashingEmbedder struct {
	dims int
}

func NewHashingEmbedder(dims int) *HashingEmbedder {
	if dims <= 0 {
		dims = DefaultDimensions
	}
	return &HashingEmbedder{dims: dims}
}

func (h *HashingEmbedder) Version() string {
	return fmt.Sprintf("hashing-v1-%d", h.dims)
}

func (h *HashingEmbedder) Dimensions() int {
	return h.dims
}

func (h *HashingEmbedder) Embed(ctx context.Context, text string) ([]float64, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}

	tokens := strings.Fields(text)
	if len(tokens) == 0 {
		return nil, ErrEmptyText
	}

	vec := make([]float64, h.dims)
	for _, token := range tokens {
		vec[h.bucket("w:"+token)] += tokenWeight

		padded := []rune("#" + token + "#")
		for i := 0; i+3 <= len(padded); i++ {
			vec[h.bucket("c:"+string(padded[i:i+3]))] += trigramWeight
		}
	}

	return Normalize(vec), nil
}

func (h *HashingEmbedder) bucket(feature string) int {
	hasher := fnv.New64a()
	_, _ = hasher.Write([]byte(feature))
	return int(hasher.Sum64() % uint64(h.dims))
}
