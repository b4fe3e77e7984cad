package kafka

import (
	"context"
	"encoding/json"
	"sort"
	"time"

	"github.com/Gobusters/ectologger"
	"github.com/segmentio/kafka-go"

	"github.com/Ramsey-B/productsync/pkg/metrics"
	"github.com/Ramsey-B/productsync/pkg/tracing"
)

type messageWriter interface {
	WriteMessages(ctx context.Context, msgs ...kafka.Message) error
	Close() error
}

// Producer publishes JSON events to one topic.
type Producer struct {
	writer messageWriter
	logger ectologger.Logger
	topic  string
}

// ProducerConfig holds Kafka producer configuration
type ProducerConfig struct {
	Brokers      []string
	Topic        string
	BatchSize    int
	BatchTimeout time.Duration
	RequiredAcks int
	Compression  string
}

// NewProducer creates a new Kafka producer
func NewProducer(cfg ProducerConfig, logger ectologger.Logger) *Producer {
	var compression kafka.Compression
	switch cfg.Compression {
	case "gzip":
		compression = kafka.Gzip
	case "lz4":
		compression = kafka.Lz4
	case "zstd":
		compression = kafka.Zstd
	case "none":
	default:
		compression = kafka.Snappy
	}

	writer := &kafka.Writer{
		Addr:                   kafka.TCP(cfg.Brokers...),
		Topic:                  cfg.Topic,
		Balancer:               &kafka.Hash{},
		BatchSize:              cfg.BatchSize,
		BatchTimeout:           cfg.BatchTimeout,
		RequiredAcks:           kafka.RequiredAcks(cfg.RequiredAcks),
		Compression:            compression,
		AllowAutoTopicCreation: true,
	}

	return newProducer(writer, cfg.Topic, logger)
}

func newProducer(writer messageWriter, topic string, logger ectologger.Logger) *Producer {
	return &Producer{
		writer: writer,
		logger: logger,
		topic:  topic,
	}
}

// Close closes the producer
func (p *Producer) Close() error {
	return p.writer.Close()
}

// Publish encodes msg.Value as JSON and writes it keyed by msg.Key. The
// current trace context travels in the headers.
func (p *Producer) Publish(ctx context.Context, msg *OutgoingMessage) error {
	ctx, span := tracing.StartSpan(ctx, "kafka.Producer.Publish")
	defer span.End()

	km, err := p.buildMessage(ctx, msg)
	if err != nil {
		metrics.RecordKafkaPublish(p.topic, "error")
		return err
	}

	if err := p.writer.WriteMessages(ctx, km); err != nil {
		metrics.RecordKafkaPublish(p.topic, "error")
		p.logger.WithContext(ctx).WithError(err).Error("Failed to publish event")
		return err
	}
	metrics.RecordKafkaPublish(p.topic, "ok")

	p.logger.WithContext(ctx).WithFields(map[string]any{
		"topic":      p.topic,
		"key":        msg.Key,
		"event_type": msg.Headers[HeaderEventType],
	}).Debug("Published event")

	return nil
}

func (p *Producer) buildMessage(ctx context.Context, msg *OutgoingMessage) (kafka.Message, error) {
	data, err := json.Marshal(msg.Value)
	if err != nil {
		return kafka.Message{}, err
	}

	headers := make(map[string]string, len(msg.Headers)+2)
	for k, v := range msg.Headers {
		headers[k] = v
	}
	if tp := tracing.GetTraceParent(ctx); tp != "" {
		headers[HeaderTraceParent] = tp
	}
	if ts := tracing.GetTraceState(ctx); ts != "" {
		headers[HeaderTraceState] = ts
	}

	keys := make([]string, 0, len(headers))
	for k := range headers {
		keys = append(keys, k)
	}
	sort.Strings(keys)

	km := kafka.Message{
		Key:   []byte(msg.Key),
		Value: data,
	}
	for _, k := range keys {
		km.Headers = append(km.Headers, kafka.Header{Key: k, Value: []byte(headers[k])})
	}
	return km, nil
}
