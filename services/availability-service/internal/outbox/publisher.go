package outbox

import (
	"context"
	"log/slog"
	"time"

	"github.com/jackc/pgx/v5"
	"github.com/segmentio/kafka-go"

	"github.com/servicehomie/platform/libs/kafkax"
	"github.com/servicehomie/platform/libs/metrics"
	otelx "github.com/servicehomie/platform/libs/otel"
)

// MessageWriter is the part of *kafka.Writer the publisher uses.
type MessageWriter interface {
	WriteMessages(ctx context.Context, msgs ...kafka.Message) error
}

// TxRunner opens the transaction a batch is claimed and marked in.
type TxRunner interface {
	WithTx(ctx context.Context, fn func(pgx.Tx) error) error
}

type Publisher struct {
	db        TxRunner
	writer    MessageWriter
	logger    *slog.Logger
	pollEvery time.Duration
	batchSize int
}

type PublisherConfig struct {
	PollEvery time.Duration
	BatchSize int
}

func NewPublisher(db TxRunner, writer MessageWriter, logger *slog.Logger, cfg PublisherConfig) *Publisher {
	if cfg.PollEvery <= 0 {
		cfg.PollEvery = 2 * time.Second
	}
	if cfg.BatchSize <= 0 {
		cfg.BatchSize = 50
	}
	return &Publisher{db: db, writer: writer, logger: logger, pollEvery: cfg.PollEvery, batchSize: cfg.BatchSize}
}

// NewKafkaWriter returns a writer that hashes on the message key. Topics are
// taken from each message.
func NewKafkaWriter(brokers []string) *kafka.Writer {
	return &kafka.Writer{
		Addr:                   kafka.TCP(brokers...),
		Balancer:               &kafka.Hash{},
		RequiredAcks:           kafka.RequireAll,
		AllowAutoTopicCreation: true,
	}
}

// Run polls until ctx is cancelled.
func (p *Publisher) Run(ctx context.Context) {
	ticker := time.NewTicker(p.pollEvery)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			n, err := p.PublishBatch(ctx)
			if err != nil {
				metrics.IncPublishFailure()
				p.logger.Error("outbox publish failed", "err", err)
				continue
			}
			if n > 0 {
				p.logger.Debug("outbox published", "count", n)
			}
		}
	}
}

// PublishBatch relays one batch and marks it published. The rows stay locked
// until Kafka acknowledges, so a failed write leaves them for the next poll.
func (p *Publisher) PublishBatch(ctx context.Context) (int, error) {
	var published int
	err := p.db.WithTx(ctx, func(tx pgx.Tx) error {
		records, err := FetchUnpublished(ctx, tx, p.batchSize)
		if err != nil || len(records) == 0 {
			return err
		}

		msgs := make([]kafka.Message, 0, len(records))
		ids := make([]int64, 0, len(records))
		for _, r := range records {
			msgs = append(msgs, Message(ctx, r))
			ids = append(ids, r.ID)
		}
		if err := p.writer.WriteMessages(ctx, msgs...); err != nil {
			return err
		}
		if err := MarkPublished(ctx, tx, ids); err != nil {
			return err
		}

		for _, r := range records {
			metrics.AddPublished(r.Event.EventType, 1)
		}
		published = len(records)
		return nil
	})
	return published, err
}

// Message converts a stored record into the Kafka message for it, restoring
// the trace context captured at insert time.
func Message(ctx context.Context, r Record) kafka.Message {
	msgCtx := otelx.ContextWithTraceContext(ctx, r.Traceparent, r.Tracestate)
	meta := kafkax.EventMeta{EventID: r.EventID, EventType: r.Event.EventType, OwnerID: r.Event.OwnerID}
	key := r.Event.OwnerID
	if key == "" {
		key = r.Event.AggregateID
	}
	return kafka.Message{
		Topic:   r.Event.EventType,
		Key:     []byte(key),
		Value:   r.Event.Payload,
		Headers: kafkax.InjectTraceHeaders(msgCtx, meta.Headers()),
	}
}
