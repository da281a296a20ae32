package queue

import (
	"context"
	"errors"
	"fmt"
	"strconv"
	"sync"
	"time"

	"FXEngine/pkg/logger"

	"github.com/redis/go-redis/v9"
)

const (
	defaultKeyPrefix = "fxengine:queue"
	pollTimeout      = time.Second
	retryTick        = 5 * time.Second
)

var ErrNotRunning = errors.New("queue not running")

// RedisQueue is a list-backed work queue. Failed messages wait in a sorted
// set keyed by due time and end up in a dead-letter list after RetryLimit.
type RedisQueue struct {
	lgr       *logger.Logger
	config    QueueConfig
	client    *redis.Client
	keyPrefix string
	consumer  bool
	now       func() time.Time

	mu      sync.RWMutex
	jobs    map[string]Job
	running bool
	cancel  context.CancelFunc
	wg      sync.WaitGroup
}

// RedisQueueOption configures RedisQueue.
type RedisQueueOption func(*RedisQueue)

// WithKeyPrefix namespaces the queue keys.
func WithKeyPrefix(prefix string) RedisQueueOption {
	return func(r *RedisQueue) {
		if prefix != "" {
			r.keyPrefix = prefix
		}
	}
}

func newRedisQueue(lgr *logger.Logger, config *QueueConfig, client *redis.Client, consumer bool, opts ...RedisQueueOption) *RedisQueue {
	cfg := QueueConfig{}
	if config != nil {
		cfg = *config
	}
	if cfg.Workers <= 0 {
		cfg.Workers = 1
	}
	if cfg.RetryDelay <= 0 {
		cfg.RetryDelay = 10 * time.Second
	}
	r := &RedisQueue{
		lgr:       lgr.With(logger.String("component", "redis_queue")),
		config:    cfg,
		client:    client,
		keyPrefix: defaultKeyPrefix,
		consumer:  consumer,
		now:       time.Now,
		jobs:      make(map[string]Job),
	}
	for _, opt := range opts {
		opt(r)
	}
	return r
}

// NewRedisPublisher returns a started producer-only queue. A failed ping is
// logged and publishing returns ErrNotRunning until a restart.
func NewRedisPublisher(lgr *logger.Logger, client *redis.Client, opts ...RedisQueueOption) *RedisQueue {
	q := newRedisQueue(lgr, nil, client, false, opts...)
	if err := q.Start(); err != nil {
		q.lgr.Error("redis publisher start failed", logger.Error(err))
	}
	return q
}

// NewRedisConsumer returns a consumer for jobs. Call Start to run workers.
func NewRedisConsumer(lgr *logger.Logger, config *QueueConfig, client *redis.Client, jobs []Job, opts ...RedisQueueOption) *RedisQueue {
	q := newRedisQueue(lgr, config, client, true, opts...)
	for _, job := range jobs {
		if _, dup := q.jobs[job.Type()]; dup {
			q.lgr.Warn("job already registered", logger.String("job", job.Name()))
			continue
		}
		q.jobs[job.Type()] = job
	}
	return q
}

func (r *RedisQueue) Start() error {
	r.mu.Lock()
	defer r.mu.Unlock()
	if r.running {
		return fmt.Errorf("queue already running")
	}

	pingCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	if err := r.client.Ping(pingCtx).Err(); err != nil {
		return fmt.Errorf("redis ping: %w", err)
	}

	ctx, stop := context.WithCancel(context.Background())
	r.cancel = stop
	r.running = true

	if !r.consumer {
		r.lgr.Info("redis publisher started", logger.String("key", r.queueKey()))
		return nil
	}
	for i := 0; i < r.config.Workers; i++ {
		r.wg.Add(1)
		go r.worker(ctx, i)
	}
	r.wg.Add(1)
	go r.retryLoop(ctx)

	r.lgr.Info("redis queue started",
		logger.Int("workers", r.config.Workers),
		logger.Int("jobs", len(r.jobs)),
		logger.String("key", r.queueKey()))
	return nil
}

// Stop cancels the workers and waits for in-flight handlers or ctx.
func (r *RedisQueue) Stop(ctx context.Context) error {
	r.mu.Lock()
	if !r.running {
		r.mu.Unlock()
		return nil
	}
	r.running = false
	r.cancel()
	r.mu.Unlock()

	done := make(chan struct{})
	go func() {
		r.wg.Wait()
		close(done)
	}()
	select {
	case <-done:
		r.lgr.Info("redis queue stopped")
		return nil
	case <-ctx.Done():
		return fmt.Errorf("timeout waiting for queue workers: %w", ctx.Err())
	}
}

// PublishMessage implements QueueService.
func (r *RedisQueue) PublishMessage(ctx context.Context, msgType string, payload interface{}) error {
	r.mu.RLock()
	running := r.running
	r.mu.RUnlock()
	if !running {
		return ErrNotRunning
	}

	msg, err := newMessage(msgType, payload, r.now())
	if err != nil {
		return err
	}
	return r.push(ctx, r.queueKey(), msg)
}

func (r *RedisQueue) worker(ctx context.Context, id int) {
	defer r.wg.Done()
	for {
		select {
		case <-ctx.Done():
			return
		default:
		}

		res, err := r.client.BRPop(ctx, pollTimeout, r.queueKey()).Result()
		if err != nil {
			if errors.Is(err, redis.Nil) || ctx.Err() != nil {
				continue
			}
			r.lgr.Error("brpop failed", logger.Int("worker_id", id), logger.Error(err))
			select {
			case <-ctx.Done():
			case <-time.After(pollTimeout):
			}
			continue
		}
		if len(res) < 2 {
			continue
		}
		msg, err := decodeMessage(res[1])
		if err != nil {
			r.lgr.Error("dropping malformed message", logger.Error(err))
			continue
		}
		r.handle(ctx, msg)
	}
}

func (r *RedisQueue) handle(ctx context.Context, msg Message) {
	job, ok := r.jobs[msg.Type]
	if !ok {
		r.lgr.Error("no job for message", logger.String("type", msg.Type), logger.String("id", msg.ID))
		r.deadLetter(msg)
		return
	}

	err := job.Handle(ctx, msg.Payload)
	if err == nil {
		return
	}
	if errors.Is(err, context.Canceled) {
		// Shutdown mid-delivery; try again on the next start.
		r.scheduleRetry(msg, r.now())
		return
	}

	r.lgr.Error("job failed",
		logger.String("id", msg.ID),
		logger.String("job", job.Name()),
		logger.Int("attempt", msg.Attempts+1),
		logger.Error(err))

	if msg.Attempts >= r.config.RetryLimit {
		r.deadLetter(msg)
		return
	}
	msg.Attempts++
	r.scheduleRetry(msg, r.now().Add(r.config.RetryDelay))
}

func (r *RedisQueue) scheduleRetry(msg Message, at time.Time) {
	data, err := encode(msg)
	if err != nil {
		r.lgr.Error("encode retry", logger.Error(err))
		return
	}
	ctx, cancel := context.WithTimeout(context.Background(), 2*time.Second)
	defer cancel()
	if err := r.client.ZAdd(ctx, r.retryKey(), redis.Z{Score: float64(at.Unix()), Member: data}).Err(); err != nil {
		r.lgr.Error("schedule retry", logger.String("id", msg.ID), logger.Error(err))
	}
}

func (r *RedisQueue) deadLetter(msg Message) {
	ctx, cancel := context.WithTimeout(context.Background(), 2*time.Second)
	defer cancel()
	if err := r.push(ctx, r.deadLetterKey(), msg); err != nil {
		r.lgr.Error("dead letter", logger.String("id", msg.ID), logger.Error(err))
		return
	}
	r.lgr.Warn("message dead-lettered", logger.String("id", msg.ID), logger.String("type", msg.Type))
}

func (r *RedisQueue) retryLoop(ctx context.Context) {
	defer r.wg.Done()
	t := time.NewTicker(retryTick)
	defer t.Stop()
	for {
		select {
		case <-ctx.Done():
			return
		case <-t.C:
			r.requeueDue(ctx)
		}
	}
}

// requeueDue moves due retries back to the main list. ZRem decides which
// consumer owns a member, so a retry is re-queued once.
func (r *RedisQueue) requeueDue(ctx context.Context) {
	due, err := r.client.ZRangeByScore(ctx, r.retryKey(), &redis.ZRangeBy{
		Min: "-inf",
		Max: strconv.FormatInt(r.now().Unix(), 10),
	}).Result()
	if err != nil {
		if ctx.Err() == nil {
			r.lgr.Error("fetch retries", logger.Error(err))
		}
		return
	}
	for _, member := range due {
		removed, err := r.client.ZRem(ctx, r.retryKey(), member).Result()
		if err != nil || removed == 0 {
			continue
		}
		if err := r.client.LPush(ctx, r.queueKey(), member).Err(); err != nil {
			r.lgr.Error("requeue retry", logger.Error(err))
		}
	}
}

func (r *RedisQueue) push(ctx context.Context, key string, msg Message) error {
	data, err := encode(msg)
	if err != nil {
		return err
	}
	if err := r.client.LPush(ctx, key, data).Err(); err != nil {
		return fmt.Errorf("lpush %s: %w", key, err)
	}
	return nil
}

func (r *RedisQueue) queueKey() string      { return r.keyPrefix + ":messages" }
func (r *RedisQueue) retryKey() string      { return r.keyPrefix + ":retry" }
func (r *RedisQueue) deadLetterKey() string { return r.keyPrefix + ":dlq" }
