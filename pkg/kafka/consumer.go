package kafka

import (
	"context"
	"errors"
	"io"
	"sync"
	"time"

	"github.com/Gobusters/ectologger"
	"github.com/cenkalti/backoff/v4"
	"github.com/segmentio/kafka-go"
	"golang.org/x/time/rate"

	"github.com/Ramsey-B/productsync/pkg/metrics"
	"github.com/Ramsey-B/productsync/pkg/tracing"
)

// MessageHandler processes one incoming message. A nil return commits the
// offset; an error redelivers the same message after a backoff.
type MessageHandler func(ctx context.Context, msg *IncomingMessage) error

type messageReader interface {
	FetchMessage(ctx context.Context) (kafka.Message, error)
	CommitMessages(ctx context.Context, msgs ...kafka.Message) error
	Close() error
}

// ConsumerConfig holds Kafka consumer configuration
type ConsumerConfig struct {
	Brokers       []string
	Topic         string
	ConsumerGroup string
	// RatePerSecond caps message handling. Zero means unlimited.
	RatePerSecond float64
	Burst         int
	// RetryMaxInterval caps the redelivery backoff.
	RetryMaxInterval time.Duration
}

// Consumer reads one message at a time and hands it to the handler.
type Consumer struct {
	reader   messageReader
	topic    string
	logger   ectologger.Logger
	handler  MessageHandler
	limiter  *rate.Limiter
	retryMax time.Duration
	wg       sync.WaitGroup
	cancel   context.CancelFunc
}

// NewConsumer creates a group consumer for cfg.Topic.
func NewConsumer(cfg ConsumerConfig, logger ectologger.Logger, handler MessageHandler) *Consumer {
	reader := kafka.NewReader(kafka.ReaderConfig{
		Brokers:        cfg.Brokers,
		Topic:          cfg.Topic,
		GroupID:        cfg.ConsumerGroup,
		MinBytes:       10e3, // 10KB
		MaxBytes:       10e6, // 10MB
		MaxWait:        500 * time.Millisecond,
		StartOffset:    kafka.FirstOffset,
		CommitInterval: time.Second,
	})
	return newConsumer(reader, cfg, logger, handler)
}

func newConsumer(reader messageReader, cfg ConsumerConfig, logger ectologger.Logger, handler MessageHandler) *Consumer {
	limit := rate.Inf
	burst := cfg.Burst
	if cfg.RatePerSecond > 0 {
		limit = rate.Limit(cfg.RatePerSecond)
	}
	if burst <= 0 {
		burst = 1
	}
	retryMax := cfg.RetryMaxInterval
	if retryMax <= 0 {
		retryMax = 30 * time.Second
	}

	return &Consumer{
		reader:   reader,
		topic:    cfg.Topic,
		logger:   logger,
		handler:  handler,
		limiter:  rate.NewLimiter(limit, burst),
		retryMax: retryMax,
	}
}

// Start begins consuming messages
func (c *Consumer) Start(ctx context.Context) error {
	ctx, cancel := context.WithCancel(ctx)
	c.cancel = cancel

	c.wg.Add(1)
	go c.consumeLoop(ctx)

	c.logger.WithContext(ctx).WithFields(map[string]any{
		"topic": c.topic,
	}).Info("Kafka consumer started")
	return nil
}

// Stop gracefully stops the consumer
func (c *Consumer) Stop() error {
	if c.cancel != nil {
		c.cancel()
	}
	c.wg.Wait()
	return c.reader.Close()
}

func (c *Consumer) consumeLoop(ctx context.Context) {
	defer c.wg.Done()

	for {
		if err := c.limiter.Wait(ctx); err != nil {
			c.logger.WithContext(ctx).Info("Consumer loop stopping")
			return
		}

		msg, err := c.reader.FetchMessage(ctx)
		if err != nil {
			if errors.Is(err, context.Canceled) || errors.Is(err, io.EOF) || ctx.Err() != nil {
				c.logger.WithContext(ctx).Info("Consumer loop stopping")
				return
			}
			c.logger.WithContext(ctx).WithError(err).Error("Failed to fetch message")
			continue
		}

		c.processMessage(ctx, msg)
	}
}

// processMessage handles msg until the handler succeeds or ctx ends. The
// offset is committed only after success so a later commit never skips it.
func (c *Consumer) processMessage(ctx context.Context, msg kafka.Message) {
	ctx, span := tracing.StartSpan(ctx, "kafka.Consumer.processMessage")
	defer span.End()

	log := c.logger.WithContext(ctx).WithFields(map[string]any{
		"topic":     msg.Topic,
		"partition": msg.Partition,
		"offset":    msg.Offset,
	})

	incoming := newIncomingMessage(msg)

	b := backoff.NewExponentialBackOff()
	b.MaxInterval = c.retryMax
	if b.InitialInterval > c.retryMax {
		b.InitialInterval = c.retryMax
	}
	b.MaxElapsedTime = 0

	err := backoff.RetryNotify(func() error {
		return c.handler(ctx, incoming)
	}, backoff.WithContext(b, ctx), func(err error, wait time.Duration) {
		metrics.RecordKafkaMessage(msg.Topic, "retry")
		log.WithError(err).Warnf("Failed to process message, redelivering in %s", wait)
	})
	if err != nil {
		// Only cancellation ends the retry loop; leave the offset uncommitted.
		log.WithError(err).Warn("Stopped before message was processed (not committing)")
		return
	}
	metrics.RecordKafkaMessage(msg.Topic, "processed")

	if err := c.reader.CommitMessages(ctx, msg); err != nil {
		log.WithError(err).Error("Failed to commit message")
	}
}

// Health reports whether the consume loop is running.
func (c *Consumer) Health() bool {
	return c.reader != nil && c.cancel != nil
}
