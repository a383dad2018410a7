package events

import (
	"context"
	"fmt"
	"time"

	"github.com/example/bookshop/pkg/config"
	"github.com/example/bookshop/pkg/models"
	"github.com/segmentio/kafka-go"
	"go.uber.org/zap"
)

type Publisher interface {
	Publish(ctx context.Context, topic, key string, value []byte) error
}

type KafkaPublisher struct {
	writer  *kafka.Writer
	timeout time.Duration
}

func NewKafkaPublisher(cfg *config.KafkaConfig) *KafkaPublisher {
	return &KafkaPublisher{
		writer: &kafka.Writer{
			Addr:         kafka.TCP(cfg.Brokers...),
			Balancer:     &kafka.LeastBytes{},
			RequiredAcks: kafka.RequireAll,
		},
		timeout: cfg.WriteTimeout,
	}
}

func (p *KafkaPublisher) Publish(ctx context.Context, topic, key string, value []byte) error {
	if p.timeout > 0 {
		var cancel context.CancelFunc
		ctx, cancel = context.WithTimeout(ctx, p.timeout)
		defer cancel()
	}
	return p.writer.WriteMessages(ctx, kafka.Message{
		Topic: topic,
		Key:   []byte(key),
		Value: value,
	})
}

func (p *KafkaPublisher) Close() error {
	return p.writer.Close()
}

type OutboxStore interface {
	GetPendingOutbox(ctx context.Context, limit int) ([]models.Outbox, error)
	MarkDoneOutboxes(ctx context.Context, ids []uint64) error
}

// Relay moves pending outbox rows to the publisher in insertion order. A row
// is marked done only after it was published, so delivery is at-least-once.
type Relay struct {
	store     OutboxStore
	publisher Publisher
	logger    *zap.Logger
}

func NewRelay(store OutboxStore, publisher Publisher, logger *zap.Logger) *Relay {
	return &Relay{store: store, publisher: publisher, logger: logger}
}

// RelayOnce publishes up to limit pending rows and returns how many were
// marked done. Publishing stops at the first failure to preserve ordering.
func (r *Relay) RelayOnce(ctx context.Context, limit int) (int, error) {
	pending, err := r.store.GetPendingOutbox(ctx, limit)
	if err != nil {
		return 0, fmt.Errorf("load pending outbox: %w", err)
	}
	if len(pending) == 0 {
		return 0, nil
	}

	var done []uint64
	var pubErr error
	for _, o := range pending {
		if pubErr = r.publisher.Publish(ctx, o.Topic, o.Key, o.Content); pubErr != nil {
			r.logger.Error("Failed to publish outbox message",
				zap.Uint64("outbox_id", o.ID),
				zap.String("topic", o.Topic),
				zap.Error(pubErr))
			break
		}
		done = append(done, o.ID)
	}

	if len(done) > 0 {
		if err := r.store.MarkDoneOutboxes(ctx, done); err != nil {
			return 0, fmt.Errorf("mark outbox done: %w", err)
		}
	}
	if pubErr != nil {
		return len(done), fmt.Errorf("publish outbox message: %w", pubErr)
	}
	return len(done), nil
}

// Run calls RelayOnce every interval until ctx is cancelled.
func (r *Relay) Run(ctx context.Context, interval time.Duration, batch int) {
	ticker := time.NewTicker(interval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			n, err := r.RelayOnce(ctx, batch)
			if err != nil {
				r.logger.Warn("Outbox relay round failed", zap.Int("relayed", n), zap.Error(err))
				continue
			}
			if n > 0 {
				r.logger.Info("Outbox messages relayed", zap.Int("count", n))
			}
		}
	}
}
