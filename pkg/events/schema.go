package events

import (
	"time"

	"github.com/Ramsey-B/productsync/pkg/models"
)

// SchemaVersion is the current event schema version
const SchemaVersion = "1.0"

// EventType defines the type of event
type EventType string

const (
	EventTypeDecisionNeedsReview EventType = "decision.needs_review"
	EventTypeDecisionAutoMerged  EventType = "decision.auto_merged"
)

// eventTypeFor maps a decision kind to the event announcing it. Kinds that
// nobody downstream acts on have no event.
func eventTypeFor(kind models.DecisionKind) (EventType, bool) {
	switch kind {
	case models.DecisionKindNeedsReview:
		return EventTypeDecisionNeedsReview, true
	case models.DecisionKindAutoMerge:
		return EventTypeDecisionAutoMerged, true
	}
	return "", false
}

// BaseEvent contains common fields for all events
type BaseEvent struct {
	EventType     EventType `json:"event_type"`
	SchemaVersion string    `json:"schema_version"`
	Timestamp     time.Time `json:"timestamp"`
	CorrelationID string    `json:"correlation_id,omitempty"`
}

// DecisionEvent announces a match decision to moderation and catalog consumers.
type DecisionEvent struct {
	BaseEvent
	DecisionID string `json:"decision_id"`
	RecordID   string `json:"record_id"`
	Source     string `json:"source"`
	ExternalID string `json:"external_id"`
	// EntityID is set for auto merges.
	EntityID string `json:"entity_id,omitempty"`
	// SuggestedEntityID is the best candidate of a review decision.
	SuggestedEntityID string           `json:"suggested_entity_id,omitempty"`
	Score             float64          `json:"score"`
	Reason            string           `json:"reason"`
	Candidates        models.Rationale `json:"candidates"`
}

// Key is the entity id, or the record id for decisions without an entity.
func (e *DecisionEvent) Key() string {
	if e.EntityID != "" {
		return e.EntityID
	}
	return e.RecordID
}

// NewDecisionEvent builds the event for d. ok is false for kinds that are not published.
func NewDecisionEvent(d *models.MatchDecision, correlationID string) (event *DecisionEvent, ok bool) {
	eventType, ok := eventTypeFor(d.Kind)
	if !ok {
		return nil, false
	}

	event = &DecisionEvent{
		BaseEvent: BaseEvent{
			EventType:     eventType,
			SchemaVersion: SchemaVersion,
			Timestamp:     time.Now().UTC(),
			CorrelationID: correlationID,
		},
		DecisionID: d.ID,
		RecordID:   d.RecordID,
		Source:     d.Source,
		ExternalID: d.ExternalID,
		EntityID:   d.EntityIDValue(),
		Score:      d.Score,
		Reason:     d.Reason,
		Candidates: d.Rationale,
	}
	if event.Candidates == nil {
		event.Candidates = models.Rationale{}
	}
	if d.Kind == models.DecisionKindNeedsReview && len(d.Rationale) > 0 {
		event.SuggestedEntityID = d.Rationale[0].EntityID
	}
	return event, true
}
