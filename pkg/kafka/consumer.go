package kafka

import (
	"context"
	"errors"
	"fmt"
	"math/rand"
	"sync"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
	"github.com/segmentio/kafka-go"

	"FXEngine/pkg/logger"
)

// MessageHandler handles the payloads of one topic.
type MessageHandler interface {
	Topic() string
	Handle(context.Context, []byte) error
}

type ConsumerOption func(*ConsumerConfig)

type ConsumerConfig struct {
	Brokers     []string
	GroupID     string
	WorkerCount int
	BufferSize  int
	RetryMax    int
	BackoffMin  time.Duration
	BackoffMax  time.Duration
	DLQTopic    string
	MinBytes    int
	MaxBytes    int
	Logger      *logger.Logger
}

func WithConsumerBrokers(brokers []string) ConsumerOption {
	return func(c *ConsumerConfig) { c.Brokers = brokers }
}

func WithConsumerGroupID(groupID string) ConsumerOption {
	return func(c *ConsumerConfig) { c.GroupID = groupID }
}

// WithConsumerWorkers sets the number of handling lanes. A partition always
// maps to the same lane.
func WithConsumerWorkers(n int) ConsumerOption {
	return func(c *ConsumerConfig) {
		if n > 0 {
			c.WorkerCount = n
		}
	}
}

// WithConsumerRetry sets how many times a failed message is retried and the
// exponential backoff bounds between attempts.
func WithConsumerRetry(max int, backoffMin, backoffMax time.Duration) ConsumerOption {
	return func(c *ConsumerConfig) {
		c.RetryMax = max
		c.BackoffMin = backoffMin
		c.BackoffMax = backoffMax
	}
}

// WithConsumerDLQ parks exhausted messages on topic. Without a DLQ they are
// left uncommitted and redelivered after a rebalance.
func WithConsumerDLQ(topic string) ConsumerOption {
	return func(c *ConsumerConfig) { c.DLQTopic = topic }
}

func WithConsumerFetch(minBytes, maxBytes int) ConsumerOption {
	return func(c *ConsumerConfig) {
		c.MinBytes = minBytes
		c.MaxBytes = maxBytes
	}
}

// WithConsumerBufferSize bounds each lane's queue.
func WithConsumerBufferSize(n int) ConsumerOption {
	return func(c *ConsumerConfig) {
		if n > 0 {
			c.BufferSize = n
		}
	}
}

func WithConsumerLogger(l *logger.Logger) ConsumerOption {
	return func(c *ConsumerConfig) {
		if l != nil {
			c.Logger = l
		}
	}
}

type messageReader interface {
	FetchMessage(ctx context.Context) (kafka.Message, error)
	CommitMessages(ctx context.Context, msgs ...kafka.Message) error
	Close() error
}

type messageWriter interface {
	WriteMessages(ctx context.Context, msgs ...kafka.Message) error
	Close() error
}

// Consumer fetches registered topics under one group and hands messages to
// a fixed set of lanes. Offsets are committed only after the handler
// succeeds or the message is parked on the DLQ.
type Consumer struct {
	cfg       ConsumerConfig
	handlers  map[string]MessageHandler
	readers   map[string]messageReader
	dlq       messageWriter
	hook      ConsumerHook
	lgr       *logger.Logger
	newReader func(topic string) messageReader
	sleep     func(ctx context.Context, d time.Duration) bool

	lanes    []chan kafka.Message
	cancel   context.CancelFunc
	wg       sync.WaitGroup
	stopOnce sync.Once
}

func NewConsumer(opts ...ConsumerOption) (*Consumer, error) {
	cfg := ConsumerConfig{
		GroupID:     "fxengine",
		WorkerCount: 1,
		BufferSize:  16,
		RetryMax:    3,
		BackoffMin:  100 * time.Millisecond,
		BackoffMax:  5 * time.Second,
		MinBytes:    1,
		MaxBytes:    10 << 20,
		Logger:      logger.NewNop(),
	}
	for _, opt := range opts {
		opt(&cfg)
	}
	if len(cfg.Brokers) == 0 {
		return nil, fmt.Errorf("brokers are required")
	}

	c := &Consumer{
		cfg:      cfg,
		handlers: make(map[string]MessageHandler),
		readers:  make(map[string]messageReader),
		hook:     NoopHook{},
		lgr:      cfg.Logger.With(logger.String("component", "kafka_consumer")),
		sleep:    sleepCtx,
	}
	c.newReader = func(topic string) messageReader {
		return kafka.NewReader(kafka.ReaderConfig{
			Brokers:  cfg.Brokers,
			GroupID:  cfg.GroupID,
			Topic:    topic,
			MinBytes: cfg.MinBytes,
			MaxBytes: cfg.MaxBytes,
		})
	}
	if cfg.DLQTopic != "" {
		c.dlq = &kafka.Writer{Addr: kafka.TCP(cfg.Brokers...), Topic: cfg.DLQTopic, Balancer: &kafka.Hash{}}
	}
	registerConsumerMetrics()
	return c, nil
}

// WithConsumerHook installs lifecycle hooks. Call before Start.
func (c *Consumer) WithConsumerHook(h ConsumerHook) {
	if h != nil {
		c.hook = h
	}
}

// RegisterHandler binds a handler to its topic. The first registration wins.
func (c *Consumer) RegisterHandler(h MessageHandler) {
	if _, ok := c.handlers[h.Topic()]; ok {
		c.lgr.Warn("handler already registered", logger.String("topic", h.Topic()))
		return
	}
	c.handlers[h.Topic()] = h
}

func (c *Consumer) Start() error {
	if len(c.handlers) == 0 {
		return fmt.Errorf("no handlers registered")
	}
	ctx, cancel := context.WithCancel(context.Background())
	c.cancel = cancel

	c.lanes = make([]chan kafka.Message, c.cfg.WorkerCount)
	for i := range c.lanes {
		c.lanes[i] = make(chan kafka.Message, c.cfg.BufferSize)
		c.wg.Add(1)
		go c.work(ctx, c.lanes[i])
	}
	for topic := range c.handlers {
		r := c.newReader(topic)
		c.readers[topic] = r
		c.wg.Add(1)
		go c.fetch(ctx, topic, r)
	}
	c.lgr.Info("consumer started",
		logger.Int("workers", c.cfg.WorkerCount),
		logger.String("group_id", c.cfg.GroupID))
	return nil
}

// Stop cancels fetching and handling, waits for the goroutines and closes
// the readers. Uncommitted messages are redelivered on the next start.
func (c *Consumer) Stop(ctx context.Context) error {
	var err error
	c.stopOnce.Do(func() {
		if c.cancel != nil {
			c.cancel()
		}
		done := make(chan struct{})
		go func() {
			c.wg.Wait()
			close(done)
		}()
		select {
		case <-done:
		case <-ctx.Done():
			err = fmt.Errorf("timeout waiting for consumer to stop: %w", ctx.Err())
		}
		for topic, r := range c.readers {
			if cerr := r.Close(); cerr != nil {
				c.lgr.Warn("close reader", logger.String("topic", topic), logger.Error(cerr))
			}
		}
		if c.dlq != nil {
			if cerr := c.dlq.Close(); cerr != nil {
				c.lgr.Warn("close dlq writer", logger.Error(cerr))
			}
		}
		c.lgr.Info("consumer stopped")
	})
	return err
}

func (c *Consumer) fetch(ctx context.Context, topic string, r messageReader) {
	defer c.wg.Done()
	failures := 0
	for {
		km, err := r.FetchMessage(ctx)
		if err != nil {
			if ctx.Err() != nil {
				return
			}
			failures++
			c.lgr.Warn("fetch message", logger.String("topic", topic), logger.Error(err))
			if !c.sleep(ctx, backoffWithJitter(c.cfg.BackoffMin, c.cfg.BackoffMax, failures)) {
				return
			}
			continue
		}
		failures = 0
		lane := c.lanes[km.Partition%len(c.lanes)]
		select {
		case lane <- km:
			consumerStats.depth.WithLabelValues(topic).Set(float64(len(lane)))
		case <-ctx.Done():
			return
		}
	}
}

func (c *Consumer) work(ctx context.Context, lane <-chan kafka.Message) {
	defer c.wg.Done()
	for {
		select {
		case km := <-lane:
			c.process(ctx, km)
		case <-ctx.Done():
			return
		}
	}
}

// process runs one message to completion: handle with retries, park on the
// DLQ when exhausted, then commit.
func (c *Consumer) process(ctx context.Context, km kafka.Message) {
	h, ok := c.handlers[km.Topic]
	if !ok {
		return
	}
	start := time.Now()
	attempts, err := c.handle(ctx, h, km)
	outcome := "ok"
	switch {
	case err == nil:
	case ctx.Err() != nil:
		return
	case c.dlq != nil:
		outcome = "dlq"
		c.lgr.Error("handle message",
			logger.String("topic", km.Topic),
			logger.Int("attempts", attempts),
			logger.Int64("offset", km.Offset),
			logger.Error(err))
		if werr := c.toDLQ(ctx, km, err); werr != nil {
			c.lgr.Error("write to dlq", logger.String("dlq_topic", c.cfg.DLQTopic), logger.Error(werr))
			consumerStats.observe(km.Topic, "failed", time.Since(start))
			return
		}
	default:
		c.lgr.Error("handle message",
			logger.String("topic", km.Topic),
			logger.Int("attempts", attempts),
			logger.Int64("offset", km.Offset),
			logger.Error(err))
		consumerStats.observe(km.Topic, "failed", time.Since(start))
		return
	}
	if cerr := c.commit(ctx, km); cerr != nil {
		c.lgr.Error("commit message", logger.Int64("offset", km.Offset), logger.Error(cerr))
	}
	consumerStats.observe(km.Topic, outcome, time.Since(start))
}

func (c *Consumer) handle(ctx context.Context, h MessageHandler, km kafka.Message) (int, error) {
	for attempt := 1; ; attempt++ {
		hctx, hkm, data, err := c.hook.BeforeHandle(ctx, km.Topic, km, km.Value)
		if err != nil {
			return attempt, err
		}
		err = safeHandle(hctx, h, data)
		c.hook.AfterHandle(hctx, km.Topic, hkm, data, err)
		if err == nil {
			return attempt, nil
		}
		c.hook.OnError(hctx, km.Topic, hkm, data, err)
		if attempt > c.cfg.RetryMax {
			return attempt, err
		}
		if !c.sleep(ctx, backoffWithJitter(c.cfg.BackoffMin, c.cfg.BackoffMax, attempt)) {
			return attempt, ctx.Err()
		}
	}
}

func safeHandle(ctx context.Context, h MessageHandler, data []byte) (err error) {
	defer func() {
		if r := recover(); r != nil {
			err = fmt.Errorf("handler panic: %v", r)
		}
	}()
	return h.Handle(ctx, data)
}

func (c *Consumer) toDLQ(ctx context.Context, km kafka.Message, cause error) error {
	wctx, cancel := context.WithTimeout(ctx, 10*time.Second)
	defer cancel()
	return c.dlq.WriteMessages(wctx, kafka.Message{
		Key:   km.Key,
		Value: km.Value,
		Headers: append(km.Headers,
			kafka.Header{Key: "source_topic", Value: []byte(km.Topic)},
			kafka.Header{Key: "error", Value: []byte(cause.Error())},
		),
	})
}

// commit retries briefly; a lost commit only means one redelivery.
func (c *Consumer) commit(ctx context.Context, km kafka.Message) error {
	r, ok := c.readers[km.Topic]
	if !ok {
		return fmt.Errorf("no reader for topic %s", km.Topic)
	}
	var err error
	for attempt := 1; attempt <= 3; attempt++ {
		cctx, cancel := context.WithTimeout(ctx, 2*time.Second)
		err = r.CommitMessages(cctx, km)
		cancel()
		if err == nil || errors.Is(err, context.Canceled) {
			return err
		}
		if !c.sleep(ctx, backoffWithJitter(50*time.Millisecond, 500*time.Millisecond, attempt)) {
			return ctx.Err()
		}
	}
	return err
}

func backoffWithJitter(min, max time.Duration, attempt int) time.Duration {
	if min <= 0 {
		min = 50 * time.Millisecond
	}
	if max < min {
		max = min
	}
	if attempt > 30 {
		attempt = 30
	}
	d := min << uint(attempt-1)
	if d > max || d <= 0 {
		d = max
	}
	return d - time.Duration(rand.Int63n(int64(d)/2+1))
}

func sleepCtx(ctx context.Context, d time.Duration) bool {
	t := time.NewTimer(d)
	defer t.Stop()
	select {
	case <-t.C:
		return true
	case <-ctx.Done():
		return false
	}
}

type consumerMetrics struct {
	depth    *prometheus.GaugeVec
	messages *prometheus.CounterVec
	latency  *prometheus.HistogramVec
}

var (
	consumerStats     *consumerMetrics
	consumerStatsOnce sync.Once
)

func registerConsumerMetrics() {
	consumerStatsOnce.Do(func() {
		consumerStats = &consumerMetrics{
			depth: promauto.NewGaugeVec(prometheus.GaugeOpts{
				Name: "fxengine_kafka_consumer_lane_depth",
				Help: "Messages waiting in the lane last written by a topic.",
			}, []string{"topic"}),
			messages: promauto.NewCounterVec(prometheus.CounterOpts{
				Name: "fxengine_kafka_consumer_messages_total",
				Help: "Consumed messages by topic and outcome.",
			}, []string{"topic", "outcome"}),
			latency: promauto.NewHistogramVec(prometheus.HistogramOpts{
				Name:    "fxengine_kafka_consumer_handle_seconds",
				Help:    "Time from dequeue to commit.",
				Buckets: prometheus.DefBuckets,
			}, []string{"topic"}),
		}
	})
}

func (m *consumerMetrics) observe(topic, outcome string, took time.Duration) {
	m.messages.WithLabelValues(topic, outcome).Inc()
	m.latency.WithLabelValues(topic).Observe(took.Seconds())
}
