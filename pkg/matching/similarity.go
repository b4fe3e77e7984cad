package matching

import (
	"sort"

	"github.com/Ramsey-B/productsync/pkg/embedding"
	"github.com/Ramsey-B/productsync/pkg/models"
)

// SimilarityScorer combines embedding cosine with attribute agreement.
// Score is symmetric: Score(a, b) == Score(b, a) exactly.
type SimilarityScorer struct {
	cfg Config
}

func NewSimilarityScorer(cfg Config) *SimilarityScorer {
	return &SimilarityScorer{cfg: cfg}
}

// Score returns w1*cosine + w2*agreement clipped to [0,1].
func (s *SimilarityScorer) Score(a, b *models.ProductForm) float64 {
	cos := clip(embedding.Cosine(a.Embedding, b.Embedding))

	agreement, comparable := s.AttributeAgreement(a, b)
	if comparable == 0 {
		agreement = cos
	}

	return clip(s.cfg.EmbeddingWeight*cos + s.cfg.AttributeWeight*agreement)
}

// AttributeAgreement returns the share of comparable attributes that match and
// how many were comparable. Brand, category and every attribute set on both
// sides are comparable.
func (s *SimilarityScorer) AttributeAgreement(a, b *models.ProductForm) (float64, int) {
	pairs := map[string][2]string{
		"brand":    {a.Brand, b.Brand},
		"category": {a.Category, b.Category},
	}
	for key, va := range a.Attributes {
		if vb, ok := b.Attributes[key]; ok {
			pairs["attr:"+key] = [2]string{va, vb}
		}
	}

	keys := make([]string, 0, len(pairs))
	for k, p := range pairs {
		if p[0] != "" && p[1] != "" {
			keys = append(keys, k)
		}
	}
	if len(keys) == 0 {
		return 0, 0
	}
	sort.Strings(keys)

	matches := 0
	for _, k := range keys {
		if s.valuesMatch(pairs[k][0], pairs[k][1]) {
			matches++
		}
	}
	return float64(matches) / float64(len(keys)), len(keys)
}

func (s *SimilarityScorer) valuesMatch(x, y string) bool {
	if x == y {
		return true
	}
	// Order-sensitive comparisons always see the same argument order.
	if y < x {
		x, y = y, x
	}
	if match, ok := NumericMatch(x, y, s.cfg.NumericTolerance); ok {
		return match
	}
	return JaroWinkler(x, y) >= s.cfg.FuzzyThreshold
}

func clip(v float64) float64 {
	switch {
	case v < 0:
		return 0
	case v > 1:
		return 1
	}
	return v
}
