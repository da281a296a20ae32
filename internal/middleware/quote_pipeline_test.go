package middleware

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"FXEngine/internal/domain/models"
	"FXEngine/pkg/metrics"
)

type sink struct {
	got []models.Quote
	err error
}

func (s *sink) Process(_ context.Context, q *models.Quote) error {
	if s.err != nil {
		return s.err
	}
	s.got = append(s.got, *q)
	return nil
}

var at = time.Date(2024, 3, 4, 10, 0, 0, 0, time.UTC)

func TestQuotePipeline_Validates(t *testing.T) {
	p := NewQuotePipeline(&sink{}, metrics.Nop{})
	ctx := context.Background()

	assert.Error(t, p.Process(ctx, nil))
	assert.Error(t, p.Process(ctx, &models.Quote{Pair: "EUR", Bid: 1, Ask: 1, At: at}))
	assert.Error(t, p.Process(ctx, &models.Quote{Pair: "EURUSD", Bid: 1.1, Ask: 1.1}))
	assert.Error(t, p.Process(ctx, &models.Quote{Pair: "EURUSD", Bid: 0, Ask: 1.1, At: at}))
	assert.Error(t, p.Process(ctx, &models.Quote{Pair: "EURUSD", Bid: 1.2, Ask: 1.1, At: at}))
}

func TestQuotePipeline_ThrottlesPerPair(t *testing.T) {
	s := &sink{}
	now := at
	p := NewQuotePipeline(s, metrics.Nop{}, WithMaxRPS(2), WithPipelineClock(func() time.Time { return now }))
	ctx := context.Background()
	q := func(pair string) *models.Quote { return &models.Quote{Pair: pair, Bid: 1.1, Ask: 1.1001, At: now} }

	require.NoError(t, p.Process(ctx, q("eurusd")))
	require.NoError(t, p.Process(ctx, q("EURUSD")))
	require.NoError(t, p.Process(ctx, q("GBPUSD")))
	now = now.Add(500 * time.Millisecond)
	require.NoError(t, p.Process(ctx, q("EURUSD")))

	require.Len(t, s.got, 3)
	assert.Equal(t, "EURUSD", s.got[0].Pair)
	assert.Equal(t, "GBPUSD", s.got[1].Pair)
}

func TestQuotePipeline_BuffersOnDownstreamError(t *testing.T) {
	s := &sink{err: errors.New("down")}
	p := NewQuotePipeline(s, metrics.Nop{}, WithMaxRPS(0), WithBufferSize(1))
	ctx := context.Background()

	err := p.Process(ctx, &models.Quote{Pair: "EURUSD", Bid: 1.1, Ask: 1.1001, At: at})
	assert.Error(t, err)
	assert.Equal(t, 1, p.Buffered())

	// full buffer drops
	_ = p.Process(ctx, &models.Quote{Pair: "GBPUSD", Bid: 1.2, Ask: 1.2001, At: at})
	assert.Equal(t, 1, p.Buffered())
}
