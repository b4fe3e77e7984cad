package models

import (
	"database/sql/driver"
	"encoding/json"
	"time"
)

// DecisionKind is the outcome of resolving one record.
type DecisionKind string

const (
	DecisionKindAutoMerge   DecisionKind = "auto_merge"
	DecisionKindNewEntity   DecisionKind = "new_entity"
	DecisionKindNeedsReview DecisionKind = "needs_review"
	// Review outcomes resolve an earlier needs_review decision.
	DecisionKindReviewMerge DecisionKind = "review_merge"
	DecisionKindReviewNew   DecisionKind = "review_new"
	// DecisionKindEntityMerge records one entity folded into another. It has
	// no record; EntityID is the survivor.
	DecisionKindEntityMerge DecisionKind = "entity_merge"
)

// IsReviewOutcome reports whether the kind closes a review.
func (k DecisionKind) IsReviewOutcome() bool {
	return k == DecisionKindReviewMerge || k == DecisionKindReviewNew
}

// IsPrimary reports whether the kind is the first decision taken for a
// record. A record has at most one.
func (k DecisionKind) IsPrimary() bool {
	switch k {
	case DecisionKindAutoMerge, DecisionKindNewEntity, DecisionKindNeedsReview:
		return true
	}
	return false
}

// Reason codes recorded on decisions.
const (
	ReasonNoCandidates           = "no_candidates"
	ReasonTiedTopScore           = "tied_top_score"
	ReasonAboveHighThreshold     = "above_high_threshold"
	ReasonBelowLowThreshold      = "below_low_threshold"
	ReasonInsufficientSeparation = "insufficient_separation"
	ReasonReviewBand             = "review_band"
	ReasonCommitConflict         = "commit_conflict"
	ReasonManualReview           = "manual_review"
	ReasonEntityMerge            = "entity_merge"
)

// ScoredCandidate is one catalog entity scored against a record.
type ScoredCandidate struct {
	EntityID string  `json:"entity_id"`
	Title    string  `json:"title,omitempty"`
	Score    float64 `json:"score"`
}

// Rationale is the top-k candidate list behind a decision.
type Rationale []ScoredCandidate

func (r Rationale) Value() (driver.Value, error) {
	if r == nil {
		return []byte("[]"), nil
	}
	return json.Marshal([]ScoredCandidate(r))
}

func (r *Rationale) Scan(src any) error {
	return scanJSON(src, r)
}

// MatchDecision is the append-only audit record of one resolution.
type MatchDecision struct {
	ID                 string       `json:"id" db:"id"`
	Sequence           int64        `json:"sequence" db:"seq"`
	RecordID           string       `json:"record_id" db:"record_id"`
	Source             string       `json:"source" db:"source"`
	ExternalID         string       `json:"external_id" db:"external_id"`
	EntityID           *string      `json:"entity_id" db:"entity_id"`
	Score              float64      `json:"score" db:"score"`
	Kind               DecisionKind `json:"decision" db:"kind"`
	Reason             string       `json:"reason" db:"reason"`
	Rationale          Rationale    `json:"rationale" db:"rationale"`
	ResolvesDecisionID *string      `json:"resolves_decision_id,omitempty" db:"resolves_decision_id"`
	SupersededEntityID *string      `json:"superseded_entity_id,omitempty" db:"superseded_entity_id"`
	RecordFingerprint  string       `json:"record_fingerprint,omitempty" db:"record_fingerprint"`
	EmbeddingVersion   string       `json:"embedding_version,omitempty" db:"embedding_version"`
	CreatedAt          time.Time    `json:"created_at" db:"created_at"`
}

// EntityIDValue returns the chosen entity id or "".
func (d *MatchDecision) EntityIDValue() string {
	if d.EntityID == nil {
		return ""
	}
	return *d.EntityID
}
