package repository

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"FXEngine/internal/domain/models"
	pkgkafka "FXEngine/pkg/kafka"
)

type sentMsg struct {
	topic string
	key   string
	value interface{}
}

type fakeProducer struct {
	sent   []sentMsg
	err    error
	closed bool
}

func (p *fakeProducer) Publish(_ context.Context, topic string, key []byte, value interface{}) error {
	p.sent = append(p.sent, sentMsg{topic, string(key), value})
	return p.err
}

func (p *fakeProducer) PublishBatch(_ context.Context, topic string, msgs []pkgkafka.Message) error {
	for _, m := range msgs {
		p.sent = append(p.sent, sentMsg{topic, string(m.Key), m.Value})
	}
	return p.err
}

func (p *fakeProducer) Close() error {
	p.closed = true
	return nil
}

func TestKafkaEventPublisher(t *testing.T) {
	prod := &fakeProducer{}
	pub := NewKafkaEventPublisher(prod, "fxengine.trade-events")
	ctx := context.Background()
	at := time.Date(2024, 3, 4, 10, 0, 0, 0, time.UTC)

	opened := models.TradeEvent{ID: "1", Kind: models.EventOpened, Pair: "EURUSD", At: at}
	reset := models.TradeEvent{ID: "2", Kind: models.EventDayReset, At: at}
	require.NoError(t, pub.PublishEvent(ctx, opened))
	require.NoError(t, pub.PublishBatch(ctx, []models.TradeEvent{reset}))
	require.NoError(t, pub.PublishBatch(ctx, nil))

	require.Len(t, prod.sent, 2)
	assert.Equal(t, sentMsg{"fxengine.trade-events", "EURUSD", opened}, prod.sent[0])
	assert.Equal(t, "day_reset", prod.sent[1].key)

	require.NoError(t, pub.Close())
	assert.True(t, prod.closed)
}

func TestKafkaEventPublisher_Error(t *testing.T) {
	pub := NewKafkaEventPublisher(&fakeProducer{err: errors.New("broker down")}, "t")
	err := pub.PublishEvent(context.Background(), models.TradeEvent{Kind: models.EventShadow})
	assert.ErrorContains(t, err, "broker down")
}
