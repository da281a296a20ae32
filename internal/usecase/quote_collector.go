package usecase

import (
	"context"

	"FXEngine/internal/domain/models"
	drepo "FXEngine/internal/domain/repository"
	mid "FXEngine/internal/middleware"
	"FXEngine/pkg/logger"
)

// QuoteCollector reads the live quote stream into the pipeline. It runs on its
// own goroutine and never touches risk state.
type QuoteCollector struct {
	stream  drepo.QuoteStream
	pipe    *mid.QuotePipeline
	metrics drepo.Metrics
	lgr     *logger.Logger
}

func NewQuoteCollector(stream drepo.QuoteStream, pipe *mid.QuotePipeline, metrics drepo.Metrics, lgr *logger.Logger) *QuoteCollector {
	return &QuoteCollector{stream: stream, pipe: pipe, metrics: metrics, lgr: lgr.With(logger.String("component", "quote_collector"))}
}

// IsConnected returns true if the quote stream is connected.
func (c *QuoteCollector) IsConnected() bool {
	return c.stream.IsConnected()
}

func (c *QuoteCollector) Start(ctx context.Context) error {
	if err := c.stream.Connect(ctx); err != nil {
		return err
	}
	if err := c.stream.Subscribe(ctx); err != nil {
		return err
	}
	c.pipe.Start(ctx)
	qCh, errCh := c.stream.Read(ctx)
	go c.consume(ctx, qCh, errCh)
	return nil
}

func (c *QuoteCollector) consume(ctx context.Context, qCh <-chan *models.Quote, errCh <-chan error) {
	for {
		if qCh == nil && errCh == nil {
			if qCh, errCh = c.reconnect(ctx); qCh == nil {
				return
			}
		}
		select {
		case <-ctx.Done():
			return
		case err, ok := <-errCh:
			if !ok {
				errCh = nil
				continue
			}
			c.metrics.RecordError("quote_stream")
			c.lgr.Warn("quote stream error, reconnecting", logger.Error(err))
			if qCh, errCh = c.reconnect(ctx); qCh == nil {
				return
			}
		case q, ok := <-qCh:
			if !ok {
				qCh = nil
				continue
			}
			if q == nil {
				continue
			}
			if err := c.pipe.Process(ctx, q); err != nil {
				c.lgr.Debug("quote rejected", logger.String("pair", q.Pair), logger.Error(err))
				continue
			}
			c.metrics.RecordLastPrice(q.Pair, (q.Bid+q.Ask)/2)
		}
	}
}

// reconnect retries until it gets a fresh read loop or ctx is done.
func (c *QuoteCollector) reconnect(ctx context.Context) (<-chan *models.Quote, <-chan error) {
	for ctx.Err() == nil {
		if err := c.stream.Reconnect(ctx); err != nil {
			c.metrics.RecordError("quote_reconnect")
			c.lgr.Error("quote stream reconnect failed", logger.Error(err))
			continue
		}
		return c.stream.Read(ctx)
	}
	return nil, nil
}

// Shutdown stops the pipeline and closes the stream.
func (c *QuoteCollector) Shutdown(context.Context) error {
	c.pipe.Stop()
	return c.stream.Close()
}
