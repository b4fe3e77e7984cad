package matching

import (
	"sort"

	"github.com/Ramsey-B/productsync/pkg/models"
)

// Outcome is the resolver's verdict for one record.
type Outcome struct {
	Kind     models.DecisionKind
	EntityID string
	Score    float64
	Reason   string
}

// Resolver applies the threshold rules to scored candidates. It is pure and
// never fails on scored input.
type Resolver struct {
	cfg Config
}

func NewResolver(cfg Config) *Resolver {
	return &Resolver{cfg: cfg}
}

// SortCandidates orders by score descending, then entity id ascending.
func SortCandidates(candidates []models.ScoredCandidate) {
	sort.SliceStable(candidates, func(i, j int) bool {
		if candidates[i].Score != candidates[j].Score {
			return candidates[i].Score > candidates[j].Score
		}
		return candidates[i].EntityID < candidates[j].EntityID
	})
}

// Resolve decides between auto-merge, new entity and review. Rules apply in order:
//  1. no candidates: new entity
//  2. tied top score: review, regardless of thresholds
//  3. best >= high with enough separation from the runner-up: auto-merge
//  4. best < low: new entity
//  5. anything else: review, flagged as insufficient separation when the
//     runner-up is within the margin
func (r *Resolver) Resolve(candidates []models.ScoredCandidate) Outcome {
	if len(candidates) == 0 {
		return Outcome{Kind: models.DecisionKindNewEntity, Reason: models.ReasonNoCandidates}
	}

	sorted := append([]models.ScoredCandidate(nil), candidates...)
	SortCandidates(sorted)

	best := sorted[0]
	hasSecond := len(sorted) > 1
	var second models.ScoredCandidate
	if hasSecond {
		second = sorted[1]
	}

	switch {
	case hasSecond && second.Score == best.Score:
		return Outcome{Kind: models.DecisionKindNeedsReview, EntityID: best.EntityID, Score: best.Score, Reason: models.ReasonTiedTopScore}
	case best.Score >= r.cfg.HighThreshold && (!hasSecond || best.Score-second.Score >= r.cfg.SeparationMargin):
		return Outcome{Kind: models.DecisionKindAutoMerge, EntityID: best.EntityID, Score: best.Score, Reason: models.ReasonAboveHighThreshold}
	case best.Score < r.cfg.LowThreshold:
		return Outcome{Kind: models.DecisionKindNewEntity, Score: best.Score, Reason: models.ReasonBelowLowThreshold}
	case hasSecond && best.Score-second.Score < r.cfg.SeparationMargin:
		return Outcome{Kind: models.DecisionKindNeedsReview, EntityID: best.EntityID, Score: best.Score, Reason: models.ReasonInsufficientSeparation}
	default:
		return Outcome{Kind: models.DecisionKindNeedsReview, EntityID: best.EntityID, Score: best.Score, Reason: models.ReasonReviewBand}
	}
}
