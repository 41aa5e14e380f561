package consumer

import (
	"context"
	"log/slog"
	"time"

	"github.com/md-rashed-zaman/dockslots/libs/kafkax"
	otelx "github.com/md-rashed-zaman/dockslots/libs/otel"
	"github.com/segmentio/kafka-go"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/trace"
)

type Handler func(ctx context.Context, msg kafka.Message) error

// Inbox deduplicates deliveries by event id.
type Inbox interface {
	Record(ctx context.Context, eventID, eventType string) (bool, error)
	Forget(ctx context.Context, eventID string) error
}

// MessageReader is the part of *kafka.Reader the consumer drives.
type MessageReader interface {
	FetchMessage(ctx context.Context) (kafka.Message, error)
	CommitMessages(ctx context.Context, msgs ...kafka.Message) error
	Close() error
}

const (
	minRetryBackoff = 200 * time.Millisecond
	maxRetryBackoff = 30 * time.Second
)

type Consumer struct {
	reader     MessageReader
	logger     *slog.Logger
	inbox      Inbox
	handler    Handler
	tracer     trace.Tracer
	minBackoff time.Duration
	maxBackoff time.Duration
}

type Config struct {
	Brokers string
	GroupID string
	Topics  []string
}

func New(logger *slog.Logger, inbox Inbox, cfg Config, handler Handler) *Consumer {
	reader := kafka.NewReader(kafka.ReaderConfig{
		Brokers:     kafkax.SplitBrokers(cfg.Brokers),
		GroupID:     cfg.GroupID,
		GroupTopics: cfg.Topics,
		MinBytes:    1,
		MaxBytes:    10e6,
	})
	return &Consumer{
		reader:     reader,
		logger:     logger,
		inbox:      inbox,
		handler:    handler,
		tracer:     otelx.Tracer("kafka"),
		minBackoff: minRetryBackoff,
		maxBackoff: maxRetryBackoff,
	}
}

func (c *Consumer) Run(ctx context.Context) {
	defer c.reader.Close()

	for {
		msg, err := c.reader.FetchMessage(ctx)
		if err != nil {
			if ctx.Err() != nil {
				return
			}
			c.logger.Error("kafka read error", "err", err)
			if !sleep(ctx, time.Second) {
				return
			}
			continue
		}
		if !c.processWithRetry(ctx, msg) {
			// Uncommitted: the group redelivers it after a restart.
			return
		}
		if err := c.reader.CommitMessages(ctx, msg); err != nil && ctx.Err() == nil {
			c.logger.Error("kafka commit failed", "err", err, "topic", msg.Topic, "offset", msg.Offset)
		}
	}
}

// processWithRetry retries msg with capped exponential backoff. Later offsets
// of the partition are not committed until it succeeds, so a failure is
// never skipped. It reports false only when ctx ends first.
func (c *Consumer) processWithRetry(ctx context.Context, msg kafka.Message) bool {
	backoff := c.minBackoff
	if backoff <= 0 {
		backoff = minRetryBackoff
	}
	limit := c.maxBackoff
	if limit < backoff {
		limit = maxRetryBackoff
	}
	claimed := false
	for attempt := 1; ; attempt++ {
		var done bool
		if done, claimed = c.process(ctx, msg, claimed); done {
			return true
		}
		c.logger.Warn("event processing will be retried",
			"topic", msg.Topic, "offset", msg.Offset, "attempt", attempt, "backoff", backoff.String())
		if !sleep(ctx, backoff) {
			return false
		}
		backoff *= 2
		if backoff > limit {
			backoff = limit
		}
	}
}

func sleep(ctx context.Context, d time.Duration) bool {
	t := time.NewTimer(d)
	defer t.Stop()
	select {
	case <-ctx.Done():
		return false
	case <-t.C:
		return true
	}
}

// process handles one message at most once per event id and reports whether
// the message is done. A failed handler releases the id so the retry runs it
// again; if the release fails the id stays claimed by this delivery and the
// retry skips the inbox.
func (c *Consumer) process(ctx context.Context, msg kafka.Message, claimed bool) (done, stillClaimed bool) {
	ctx = kafkax.ExtractTraceContext(ctx, msg)
	ctx, span := c.tracer.Start(ctx, "kafka.consume", trace.WithAttributes(
		attribute.String("messaging.system", "kafka"),
		attribute.String("messaging.destination", msg.Topic),
	))
	defer span.End()

	meta := kafkax.ExtractEventMeta(msg)
	if !claimed {
		ok, err := c.inbox.Record(ctx, meta.EventID, meta.EventType)
		if err != nil {
			c.logger.Error("inbox record failed", "err", err)
			_ = otelx.Fail(span, err)
			return false, false
		}
		if !ok {
			c.logger.Info("duplicate event ignored", "event_id", meta.EventID, "event_type", meta.EventType)
			return true, false
		}
	}

	if err := c.handler(ctx, msg); err != nil {
		c.logger.Error("handler error", "err", err, "event_id", meta.EventID)
		_ = otelx.Fail(span, err)
		if ferr := c.inbox.Forget(ctx, meta.EventID); ferr != nil {
			c.logger.Error("inbox forget failed", "err", ferr, "event_id", meta.EventID)
			return false, true
		}
		return false, false
	}
	return true, true
}
