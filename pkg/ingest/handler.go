// Package ingest feeds product records into the processor from Kafka
// messages and batch files.
package ingest

import (
	"context"
	stderrors "errors"

	"github.com/Gobusters/ectologger"

	appctx "github.com/Ramsey-B/productsync/pkg/context"
	pserrors "github.com/Ramsey-B/productsync/pkg/errors"
	"github.com/Ramsey-B/productsync/pkg/kafka"
	"github.com/Ramsey-B/productsync/pkg/metrics"
	"github.com/Ramsey-B/productsync/pkg/models"
	"github.com/Ramsey-B/productsync/pkg/redis"
	"github.com/Ramsey-B/productsync/pkg/tracing"
)

// Resolver is the part of the processor ingest needs.
type Resolver interface {
	Resolve(ctx context.Context, record *models.ProductRecord) (*models.MatchDecision, error)
}

// DeadLetterSink parks messages that will never succeed.
// *redis.DeadLetterQueue implements it.
type DeadLetterSink interface {
	Add(ctx context.Context, entry *redis.DLQEntry) (string, error)
}

// Handler resolves one Kafka message per call.
type Handler struct {
	resolver Resolver
	dlq      DeadLetterSink
	logger   ectologger.Logger
}

func NewHandler(resolver Resolver, dlq DeadLetterSink, logger ectologger.Logger) *Handler {
	return &Handler{
		resolver: resolver,
		dlq:      dlq,
		logger:   logger,
	}
}

// Handle implements kafka.MessageHandler. It returns an error only when the
// message should be redelivered: transient store failures, cancellation, or a
// failed dead-letter write. Everything else is committed, parked first if
// it could not be resolved.
func (h *Handler) Handle(ctx context.Context, msg *kafka.IncomingMessage) error {
	ctx = tracing.WithRemoteParent(ctx, msg.TraceParent, msg.TraceState)
	ctx, span := tracing.StartSpan(ctx, "ingest.Handler.Handle")
	defer span.End()

	log := h.logger.WithContext(ctx).WithFields(map[string]any{
		"topic":     msg.Topic,
		"partition": msg.Partition,
		"offset":    msg.Offset,
	})

	record, err := msg.DecodeProductRecord()
	if err != nil {
		log.WithError(err).Warn("Failed to decode product record")
		return h.park(ctx, msg, nil, redis.DeadLetterReasonDecode, err)
	}

	ctx = appctx.SetSource(ctx, record.Source)
	ctx = appctx.SetCorrelationID(ctx, models.RecordID(record.Source, record.ExternalID))

	decision, err := h.resolver.Resolve(ctx, record)
	if err == nil {
		log.WithFields(map[string]any{
			"record_id":   decision.RecordID,
			"decision_id": decision.ID,
			"decision":    decision.Kind,
		}).Debug("Resolved ingested record")
		return nil
	}

	switch reason := classify(err); reason {
	case "":
		log.WithError(err).Warn("Resolve failed transiently, message will be redelivered")
		return err
	default:
		log.WithError(err).WithFields(map[string]any{
			"source":      record.Source,
			"external_id": record.ExternalID,
			"reason":      reason,
		}).Error("Failed to resolve ingested record")
		return h.park(ctx, msg, record, reason, err)
	}
}

// classify returns the dead-letter reason for err, or "" when the message
// should be retried.
func classify(err error) redis.DeadLetterReason {
	switch {
	case stderrors.Is(err, context.Canceled), stderrors.Is(err, context.DeadlineExceeded):
		return ""
	case pserrors.IsTransientStoreError(err):
		return ""
	case pserrors.IsNormalizationError(err):
		return redis.DeadLetterReasonRejected
	default:
		return redis.DeadLetterReasonFailed
	}
}

func (h *Handler) park(ctx context.Context, msg *kafka.IncomingMessage, record *models.ProductRecord, reason redis.DeadLetterReason, cause error) error {
	metrics.RecordDLQ(string(reason))

	if h.dlq == nil {
		h.logger.WithContext(ctx).WithError(cause).Warn("No dead-letter queue configured, dropping message")
		return nil
	}

	entry := &redis.DLQEntry{
		Topic:        msg.Topic,
		Partition:    msg.Partition,
		Offset:       msg.Offset,
		Key:          msg.Key,
		Payload:      string(msg.Value),
		Reason:       reason,
		ErrorMessage: cause.Error(),
	}
	if record != nil {
		entry.Source = record.Source
		entry.ExternalID = record.ExternalID
	}

	if _, err := h.dlq.Add(ctx, entry); err != nil {
		return err
	}
	return nil
}
