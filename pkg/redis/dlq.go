package redis

import (
	"context"
	"encoding/json"
	"fmt"
	"time"

	"github.com/Gobusters/ectologger"
	"github.com/google/uuid"
	"github.com/redis/go-redis/v9"

	"github.com/Ramsey-B/productsync/pkg/tracing"
)

const (
	DefaultDLQStream = "productsync:dlq"

	// DLQMaxLen caps the stream; the oldest entries are trimmed.
	DLQMaxLen = 10000
)

// DeadLetterReason classifies why an ingest message was parked.
type DeadLetterReason string

const (
	DeadLetterReasonDecode   DeadLetterReason = "decode_failed"
	DeadLetterReasonRejected DeadLetterReason = "rejected"
	DeadLetterReasonFailed   DeadLetterReason = "failed"
)

// DLQEntry is one parked ingest message.
type DLQEntry struct {
	ID           string           `json:"id"`
	Topic        string           `json:"topic"`
	Partition    int              `json:"partition"`
	Offset       int64            `json:"offset"`
	Key          string           `json:"key,omitempty"`
	Payload      string           `json:"payload,omitempty"`
	Source       string           `json:"source,omitempty"`
	ExternalID   string           `json:"external_id,omitempty"`
	Reason       DeadLetterReason `json:"reason"`
	ErrorMessage string           `json:"error_message"`
	CreatedAt    time.Time        `json:"created_at"`
	TraceID      string           `json:"trace_id,omitempty"`
}

// DeadLetterQueue stores failed ingest messages in a Redis stream.
type DeadLetterQueue struct {
	client     *Client
	streamName string
	logger     ectologger.Logger
}

func NewDeadLetterQueue(client *Client, streamName string, logger ectologger.Logger) *DeadLetterQueue {
	if streamName == "" {
		streamName = DefaultDLQStream
	}
	return &DeadLetterQueue{
		client:     client,
		streamName: streamName,
		logger:     logger,
	}
}

// Add appends entry to the stream and returns the stream message id.
func (d *DeadLetterQueue) Add(ctx context.Context, entry *DLQEntry) (string, error) {
	ctx, span := tracing.StartSpan(ctx, "redis.DeadLetterQueue.Add")
	defer span.End()

	values, err := entryValues(ctx, entry)
	if err != nil {
		return "", err
	}

	messageID, err := d.client.Redis().XAdd(ctx, &redis.XAddArgs{
		Stream: d.streamName,
		MaxLen: DLQMaxLen,
		Approx: true,
		Values: values,
	}).Result()
	if err != nil {
		d.logger.WithContext(ctx).WithError(err).Error("Failed to add message to DLQ")
		return "", fmt.Errorf("failed to add to DLQ: %w", err)
	}

	d.logger.WithContext(ctx).Infof("Added message to DLQ: id=%s source=%s external_id=%s reason=%s", entry.ID, entry.Source, entry.ExternalID, entry.Reason)
	return messageID, nil
}

// entryValues fills defaults on entry and builds the stream fields.
func entryValues(ctx context.Context, entry *DLQEntry) (map[string]interface{}, error) {
	if entry.ID == "" {
		entry.ID = uuid.New().String()
	}
	if entry.CreatedAt.IsZero() {
		entry.CreatedAt = time.Now().UTC()
	}
	if entry.TraceID == "" {
		entry.TraceID = tracing.GetTraceID(ctx)
	}

	data, err := json.Marshal(entry)
	if err != nil {
		return nil, fmt.Errorf("failed to marshal DLQ entry: %w", err)
	}

	return map[string]interface{}{
		"data":   string(data),
		"source": entry.Source,
		"reason": string(entry.Reason),
	}, nil
}

// List returns the newest count entries.
func (d *DeadLetterQueue) List(ctx context.Context, count int64) ([]DLQEntry, error) {
	ctx, span := tracing.StartSpan(ctx, "redis.DeadLetterQueue.List")
	defer span.End()

	if count <= 0 {
		count = 100
	}

	messages, err := d.client.Redis().XRevRangeN(ctx, d.streamName, "+", "-", count).Result()
	if err != nil {
		return nil, fmt.Errorf("failed to read DLQ: %w", err)
	}

	entries := make([]DLQEntry, 0, len(messages))
	for _, msg := range messages {
		entry, err := decodeEntry(msg.Values)
		if err != nil {
			d.logger.WithContext(ctx).WithError(err).Warnf("Skipping DLQ entry %s", msg.ID)
			continue
		}
		entries = append(entries, *entry)
	}
	return entries, nil
}

func decodeEntry(values map[string]interface{}) (*DLQEntry, error) {
	data, ok := values["data"].(string)
	if !ok {
		return nil, fmt.Errorf("invalid DLQ entry format")
	}
	var entry DLQEntry
	if err := json.Unmarshal([]byte(data), &entry); err != nil {
		return nil, fmt.Errorf("failed to unmarshal DLQ entry: %w", err)
	}
	return &entry, nil
}

// Count returns the number of entries in the DLQ
func (d *DeadLetterQueue) Count(ctx context.Context) (int64, error) {
	return d.client.Redis().XLen(ctx, d.streamName).Result()
}
