package repository

import (
	"context"
	"fmt"

	"FXEngine/internal/domain/models"
	domrepo "FXEngine/internal/domain/repository"
	pkgkafka "FXEngine/pkg/kafka"
)

type kafkaProducer interface {
	Publish(ctx context.Context, topic string, key []byte, value interface{}) error
	PublishBatch(ctx context.Context, topic string, messages []pkgkafka.Message) error
	Close() error
}

// KafkaEventPublisher streams trade events keyed by pair so one
// instrument's events stay ordered within a partition.
type KafkaEventPublisher struct {
	producer kafkaProducer
	topic    string
}

func NewKafkaEventPublisher(producer kafkaProducer, topic string) *KafkaEventPublisher {
	return &KafkaEventPublisher{producer: producer, topic: topic}
}

func eventKey(ev models.TradeEvent) []byte {
	if ev.Pair == "" {
		return []byte(ev.Kind)
	}
	return []byte(ev.Pair)
}

func (p *KafkaEventPublisher) PublishEvent(ctx context.Context, ev models.TradeEvent) error {
	if err := p.producer.Publish(ctx, p.topic, eventKey(ev), ev); err != nil {
		return fmt.Errorf("publish %s event: %w", ev.Kind, err)
	}
	return nil
}

func (p *KafkaEventPublisher) PublishBatch(ctx context.Context, evs []models.TradeEvent) error {
	if len(evs) == 0 {
		return nil
	}
	msgs := make([]pkgkafka.Message, len(evs))
	for i, ev := range evs {
		msgs[i] = pkgkafka.Message{Key: eventKey(ev), Value: ev}
	}
	if err := p.producer.PublishBatch(ctx, p.topic, msgs); err != nil {
		return fmt.Errorf("publish %d events: %w", len(evs), err)
	}
	return nil
}

func (p *KafkaEventPublisher) Close() error {
	if p.producer != nil {
		return p.producer.Close()
	}
	return nil
}

var _ domrepo.EventPublisher = (*KafkaEventPublisher)(nil)
