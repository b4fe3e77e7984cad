package matching

import (
	"math"

	pserrors "github.com/Ramsey-B/productsync/pkg/errors"
)

// Config holds the retrieval, scoring and decision parameters.
type Config struct {
	HighThreshold    float64 // Auto-merge at or above (default: 0.85)
	LowThreshold     float64 // New entity below (default: 0.5)
	SeparationMargin float64 // Required gap between best and runner-up (default: 0.05)

	EmbeddingWeight  float64 // Weight of embedding cosine (default: 0.7)
	AttributeWeight  float64 // Weight of attribute agreement (default: 0.3)
	NumericTolerance float64 // Relative tolerance for numeric attributes (default: 0.01)
	FuzzyThreshold   float64 // Jaro-Winkler needed for a fuzzy attribute match (default: 0.9)

	ExactSearchThreshold int     // Catalog size up to which every entity is scanned (default: 1000)
	IndexFetchLimit      int     // Entities loaded from the index in index mode (default: 200)
	MinSimilarity        float64 // Candidates below this cosine are dropped (default: 0.1)
	MaxCandidates        int     // K (default: 10)
}

// DefaultConfig returns sensible defaults.
func DefaultConfig() Config {
	return Config{
		HighThreshold:        0.85,
		LowThreshold:         0.5,
		SeparationMargin:     0.05,
		EmbeddingWeight:      0.7,
		AttributeWeight:      0.3,
		NumericTolerance:     0.01,
		FuzzyThreshold:       0.9,
		ExactSearchThreshold: 1000,
		IndexFetchLimit:      200,
		MinSimilarity:        0.1,
		MaxCandidates:        10,
	}
}

const weightEpsilon = 1e-9

// Validate returns a ConfigurationError for the first invalid setting.
func (c Config) Validate() error {
	unit := []struct {
		field string
		value float64
	}{
		{"high_threshold", c.HighThreshold},
		{"low_threshold", c.LowThreshold},
		{"separation_margin", c.SeparationMargin},
		{"embedding_weight", c.EmbeddingWeight},
		{"attribute_weight", c.AttributeWeight},
		{"numeric_tolerance", c.NumericTolerance},
		{"fuzzy_threshold", c.FuzzyThreshold},
		{"min_similarity", c.MinSimilarity},
	}
	for _, u := range unit {
		if math.IsNaN(u.value) || u.value < 0 || u.value > 1 {
			return pserrors.NewConfigurationErrorf(u.field, "must be within [0,1], got %v", u.value)
		}
	}

	if c.LowThreshold > c.HighThreshold {
		return pserrors.NewConfigurationErrorf("low_threshold", "must not exceed high_threshold (%v > %v)", c.LowThreshold, c.HighThreshold)
	}
	if math.Abs(c.EmbeddingWeight+c.AttributeWeight-1) > weightEpsilon {
		return pserrors.NewConfigurationErrorf("embedding_weight", "weights must sum to 1, got %v", c.EmbeddingWeight+c.AttributeWeight)
	}
	if c.MaxCandidates <= 0 {
		return pserrors.NewConfigurationError("max_candidates", "must be positive")
	}
	if c.IndexFetchLimit < c.MaxCandidates {
		return pserrors.NewConfigurationError("index_fetch_limit", "must be at least max_candidates")
	}
	if c.ExactSearchThreshold < 0 {
		return pserrors.NewConfigurationError("exact_search_threshold", "must not be negative")
	}
	return nil
}
