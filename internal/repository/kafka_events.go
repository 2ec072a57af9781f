package repository

import (
	"context"

	"DealWatch/internal/domain/models"
	domrepo "DealWatch/internal/domain/repository"
	"DealWatch/pkg/kafka"
)

// KafkaEventPublisher emits per-deal cycle events keyed by deal id so
// downstream consumers see each deal's events in order.
type KafkaEventPublisher struct {
	producer *kafka.Producer
	topic    string
}

func NewKafkaEventPublisher(producer *kafka.Producer, topic string) *KafkaEventPublisher {
	return &KafkaEventPublisher{producer: producer, topic: topic}
}

var _ domrepo.EventPublisher = (*KafkaEventPublisher)(nil)

func (p *KafkaEventPublisher) PublishCycleEvent(ctx context.Context, ev *models.CycleEvent) error {
	return p.producer.Publish(ctx, p.topic, []byte(ev.DealID), ev)
}

func (p *KafkaEventPublisher) Close() error {
	return p.producer.Close()
}

// NoopEventPublisher is used when the events topic is not configured.
type NoopEventPublisher struct{}

func (NoopEventPublisher) PublishCycleEvent(context.Context, *models.CycleEvent) error { return nil }
func (NoopEventPublisher) Close() error                                                { return nil }
