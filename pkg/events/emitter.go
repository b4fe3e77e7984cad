// Package events publishes match decisions for downstream consumers
package events

import (
	"context"

	"github.com/Gobusters/ectologger"

	"github.com/Ramsey-B/productsync/pkg/kafka"
	"github.com/Ramsey-B/productsync/pkg/models"
	"github.com/Ramsey-B/productsync/pkg/tracing"
)

// Publisher writes one outgoing message. *kafka.Producer implements it.
type Publisher interface {
	Publish(ctx context.Context, msg *kafka.OutgoingMessage) error
}

// Emitter turns decisions into events
type Emitter struct {
	publisher Publisher
	logger    ectologger.Logger
}

// NewEmitter creates a new event emitter
func NewEmitter(publisher Publisher, logger ectologger.Logger) *Emitter {
	return &Emitter{
		publisher: publisher,
		logger:    logger,
	}
}

// Notify publishes needs_review and auto_merge decisions. Other kinds are ignored.
func (e *Emitter) Notify(ctx context.Context, decision *models.MatchDecision) error {
	ctx, span := tracing.StartSpan(ctx, "events.Emitter.Notify")
	defer span.End()

	event, ok := NewDecisionEvent(decision, tracing.GetTraceID(ctx))
	if !ok {
		return nil
	}

	msg := &kafka.OutgoingMessage{
		Key:   event.Key(),
		Value: event,
		Headers: map[string]string{
			kafka.HeaderEventType:     string(event.EventType),
			kafka.HeaderSchemaVersion: SchemaVersion,
		},
	}

	if err := e.publisher.Publish(ctx, msg); err != nil {
		e.logger.WithContext(ctx).WithError(err).Errorf("Failed to emit %s event", event.EventType)
		return err
	}
	return nil
}
