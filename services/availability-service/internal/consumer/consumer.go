// Package consumer drops cached availability when another instance changes an
// owner's overrides or settings.
package consumer

import (
	"context"
	"log/slog"
	"time"

	"github.com/segmentio/kafka-go"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/trace"

	"github.com/servicehomie/platform/libs/kafkax"
	otelx "github.com/servicehomie/platform/libs/otel"
	"github.com/servicehomie/platform/services/availability-service/internal/outbox"
)

// Topics carry the events that make a cached overlay stale.
var Topics = []string{
	outbox.EventOverrideUpdated,
	outbox.EventSettingsUpdated,
}

type MessageReader interface {
	ReadMessage(ctx context.Context) (kafka.Message, error)
	Close() error
}

type Invalidator interface {
	Invalidate(ctx context.Context, ownerID string) error
}

type Config struct {
	Brokers []string
	GroupID string
}

func NewReader(cfg Config) *kafka.Reader {
	return kafka.NewReader(kafka.ReaderConfig{
		Brokers:     cfg.Brokers,
		GroupID:     cfg.GroupID,
		GroupTopics: Topics,
		MinBytes:    1,
		MaxBytes:    10e6,
	})
}

type Consumer struct {
	reader  MessageReader
	cache   Invalidator
	logger  *slog.Logger
	backoff time.Duration
}

func New(reader MessageReader, cache Invalidator, logger *slog.Logger) *Consumer {
	return &Consumer{reader: reader, cache: cache, logger: logger, backoff: time.Second}
}

// Run reads until ctx is cancelled. Failed invalidations are logged and the
// message is committed anyway; the blob TTL bounds how long it stays stale.
func (c *Consumer) Run(ctx context.Context) {
	defer c.reader.Close()

	for {
		msg, err := c.reader.ReadMessage(ctx)
		if err != nil {
			if ctx.Err() != nil {
				return
			}
			c.logger.Error("kafka read error", "err", err)
			select {
			case <-ctx.Done():
				return
			case <-time.After(c.backoff):
			}
			continue
		}
		c.Handle(ctx, msg)
	}
}

func (c *Consumer) Handle(ctx context.Context, msg kafka.Message) {
	ctx = kafkax.ExtractTraceContext(ctx, msg)
	ctx, span := otelx.Tracer("kafka").Start(ctx, "kafka.consume",
		trace.WithSpanKind(trace.SpanKindConsumer),
		trace.WithAttributes(
			attribute.String("messaging.system", "kafka"),
			attribute.String("messaging.destination", msg.Topic),
		),
	)
	defer span.End()

	meta := kafkax.ExtractEventMeta(msg)
	owner := meta.OwnerID
	if owner == "" {
		owner = string(msg.Key)
	}
	if owner == "" {
		c.logger.Warn("event without owner ignored", "event_id", meta.EventID, "topic", msg.Topic)
		return
	}

	if err := c.cache.Invalidate(ctx, owner); err != nil {
		span.RecordError(err)
		c.logger.Error("cache invalidation failed", "err", err, "owner_id", owner, "event_id", meta.EventID)
		return
	}
	c.logger.Debug("availability cache invalidated", "owner_id", owner, "event_type", meta.EventType)
}
