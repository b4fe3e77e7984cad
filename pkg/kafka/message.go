package kafka

import (
	"bytes"
	"encoding/json"
	"time"

	"github.com/segmentio/kafka-go"

	"github.com/Ramsey-B/productsync/pkg/models"
)

// Header keys carried on every message.
const (
	HeaderEventType     = "event_type"
	HeaderSchemaVersion = "schema_version"
	HeaderTraceParent   = "traceparent"
	HeaderTraceState    = "tracestate"
)

// IncomingMessage wraps a raw Kafka message with parsed headers
type IncomingMessage struct {
	Key       string
	Value     []byte
	Headers   map[string]string
	Partition int
	Offset    int64
	Timestamp time.Time
	Topic     string

	TraceParent string
	TraceState  string
}

func newIncomingMessage(msg kafka.Message) *IncomingMessage {
	headers := make(map[string]string, len(msg.Headers))
	for _, h := range msg.Headers {
		headers[h.Key] = string(h.Value)
	}
	return &IncomingMessage{
		Key:         string(msg.Key),
		Value:       msg.Value,
		Headers:     headers,
		Partition:   msg.Partition,
		Offset:      msg.Offset,
		Timestamp:   msg.Time,
		Topic:       msg.Topic,
		TraceParent: headers[HeaderTraceParent],
		TraceState:  headers[HeaderTraceState],
	}
}

// DecodeProductRecord parses the value as a ProductRecord. Unknown fields are
// rejected so schema drift surfaces in the dead-letter stream.
func (m *IncomingMessage) DecodeProductRecord() (*models.ProductRecord, error) {
	dec := json.NewDecoder(bytes.NewReader(m.Value))
	dec.DisallowUnknownFields()

	var record models.ProductRecord
	if err := dec.Decode(&record); err != nil {
		return nil, err
	}
	if record.ObservedAt.IsZero() && !m.Timestamp.IsZero() {
		record.ObservedAt = m.Timestamp.UTC()
	}
	return &record, nil
}

// OutgoingMessage is an event to publish. Value is JSON encoded.
type OutgoingMessage struct {
	Key     string
	Value   any
	Headers map[string]string
}
