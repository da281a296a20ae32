package di

import (
	"context"
	"fmt"
	"time"

	"FXEngine/internal/domain/repository"
	domsvc "FXEngine/internal/domain/service"
	"FXEngine/internal/handler/api"
	mid "FXEngine/internal/middleware"
	internalrepo "FXEngine/internal/repository"
	"FXEngine/internal/service/broker"
	icache "FXEngine/internal/service/cache"
	"FXEngine/internal/service/marketdata"
	"FXEngine/internal/service/notify"
	"FXEngine/internal/service/quotes"
	"FXEngine/internal/service/ratelimit"
	"FXEngine/internal/services/bosfib"
	"FXEngine/internal/services/momentum"
	"FXEngine/internal/services/risk"
	"FXEngine/internal/services/structure"
	"FXEngine/internal/usecase"
	pkgcache "FXEngine/pkg/cache"
	pkgch "FXEngine/pkg/clickhouse"
	"FXEngine/pkg/config"
	xhttp "FXEngine/pkg/http"
	pkgkafka "FXEngine/pkg/kafka"
	"FXEngine/pkg/logger"
	"FXEngine/pkg/metrics"
	"FXEngine/pkg/queue"
	"FXEngine/pkg/server"

	"github.com/segmentio/kafka-go"
)

const initTimeout = 10 * time.Second

func noop() {}

// ProvideKafkaProducer creates the shared Kafka producer, or nil when Kafka is off.
func ProvideKafkaProducer(cfg *config.Config) (*pkgkafka.Producer, func(), error) {
	if !cfg.Kafka.Enabled {
		return nil, noop, nil
	}
	producer, err := pkgkafka.NewProducer(
		pkgkafka.WithBrokers(cfg.Kafka.Brokers),
		pkgkafka.WithCompression(cfg.Kafka.Compression),
		pkgkafka.WithRequiredAcks(cfg.Kafka.RequiredAcks),
		pkgkafka.WithBatchSize(cfg.Kafka.Producer.BatchSize),
		pkgkafka.WithBatchBytes(cfg.Kafka.Producer.BatchBytes),
		pkgkafka.WithBatchTimeout(cfg.Kafka.Producer.Linger),
		pkgkafka.WithTimeouts(cfg.Kafka.Producer.WriteTimeout, cfg.Kafka.Producer.ReadTimeout),
		pkgkafka.WithMaxAttempts(cfg.Kafka.Producer.MaxAttempts),
		pkgkafka.WithAsync(cfg.Kafka.Producer.Async),
		pkgkafka.WithHashByKey(true),
	)
	if err != nil {
		return nil, nil, fmt.Errorf("kafka producer: %w", err)
	}
	return producer, func() { _ = producer.Close() }, nil
}

// ProvideLogger builds the root logger. With Kafka on, repeated error logs
// are aggregated and shipped to the logs topic.
func ProvideLogger(cfg *config.Config, producer *pkgkafka.Producer) (*logger.Logger, func(), error) {
	l, err := logger.New(&logger.Config{
		Level:      cfg.Logging.Level,
		Format:     cfg.Logging.Format,
		Output:     cfg.Logging.Output,
		TimeFormat: cfg.Logging.TimeFormat,
	})
	if err != nil {
		return nil, nil, fmt.Errorf("logger: %w", err)
	}
	if producer == nil {
		return l, noop, nil
	}
	l.AddCollector(&logger.CollectionConfig{
		TimeInterval:   30 * time.Second,
		CountThreshold: 100,
		Topic:          cfg.Kafka.Topics.Logs,
		Publisher:      producer,
	})
	return l, l.RemoveCollector, nil
}

func ProvideMetrics() repository.Metrics {
	return metrics.New()
}

// ProvideRedisCache connects to redis when enabled.
func ProvideRedisCache(cfg *config.Config) (*pkgcache.RedisCache, func(), error) {
	if !cfg.Redis.Enabled {
		return nil, noop, nil
	}
	rc, err := pkgcache.NewRedisCache(
		pkgcache.WithRedisHost(cfg.Redis.Host),
		pkgcache.WithRedisPort(cfg.Redis.Port),
		pkgcache.WithRedisPassword(cfg.Redis.Password),
		pkgcache.WithRedisDB(cfg.Redis.DB),
		pkgcache.WithRedisPrefix(cfg.Redis.Prefix),
	)
	if err != nil {
		return nil, nil, fmt.Errorf("redis: %w", err)
	}
	return rc, func() { _ = rc.Close() }, nil
}

// ProvideCacheService layers memory over redis, or falls back to memory only.
func ProvideCacheService(rc *pkgcache.RedisCache) pkgcache.Service {
	if rc == nil {
		return pkgcache.NewMemoryCache()
	}
	return pkgcache.NewLayeredCache(rc)
}

// ProvideBytesCache backs the API response cache.
func ProvideBytesCache(cfg *config.Config, rc *pkgcache.RedisCache) icache.BytesCache {
	if rc == nil {
		return icache.NewTTLCache()
	}
	return icache.NewRedisBytesCache(rc.Client(), cfg.Redis.Prefix+":api")
}

// ProvideStateStore selects the RiskState persistence backend.
func ProvideStateStore(cfg *config.Config, rc *pkgcache.RedisCache) (repository.StateStore, func(), error) {
	switch cfg.State.Backend {
	case "redis":
		if rc == nil {
			return nil, nil, fmt.Errorf("state backend redis: redis is disabled")
		}
		return internalrepo.NewCacheStateStore(rc, cfg.State.Account), noop, nil
	case "sqlite", "postgres":
		driver := cfg.State.Backend
		if driver == "sqlite" {
			driver = "sqlite3"
		}
		ctx, cancel := context.WithTimeout(context.Background(), initTimeout)
		defer cancel()
		st, err := internalrepo.OpenSQLStateStore(ctx, driver, cfg.State.DSN, cfg.State.Account)
		if err != nil {
			return nil, nil, fmt.Errorf("state store: %w", err)
		}
		return st, func() { _ = st.Close() }, nil
	default:
		return internalrepo.NewFileStateStore(cfg.State.Path), noop, nil
	}
}

// ProvideClickHouseClient connects to ClickHouse when enabled.
func ProvideClickHouseClient(cfg *config.Config) (*pkgch.Client, func(), error) {
	if !cfg.ClickHouse.Enabled {
		return nil, noop, nil
	}
	client, err := pkgch.NewClient(
		pkgch.WithHost(cfg.ClickHouse.Host),
		pkgch.WithPort(cfg.ClickHouse.Port),
		pkgch.WithDatabase(cfg.ClickHouse.Database),
		pkgch.WithCredentials(cfg.ClickHouse.User, cfg.ClickHouse.Password),
		pkgch.WithMaxConnections(10, 5),
		pkgch.WithHTTP(cfg.ClickHouse.UseHTTP),
		pkgch.WithAsyncInsert(cfg.ClickHouse.AsyncInsert, cfg.ClickHouse.WaitForAsync),
		pkgch.WithTimeouts(cfg.ClickHouse.DialTimeout, cfg.ClickHouse.ReadTimeout),
		pkgch.WithMaxExecutionTime(cfg.ClickHouse.MaxExecutionTime),
	)
	if err != nil {
		return nil, nil, fmt.Errorf("clickhouse client: %w", err)
	}
	return client, func() { _ = client.Close() }, nil
}

func ProvideQuoteBook(cfg *config.Config) *internalrepo.QuoteBook {
	return internalrepo.NewQuoteBook(cfg.Quotes.MaxAge)
}

// ProvideMarketData picks the bar source: the HTTP bridge or ClickHouse candles.
func ProvideMarketData(cfg *config.Config, ch *pkgch.Client, book *internalrepo.QuoteBook, l *logger.Logger) (repository.MarketDataProvider, error) {
	if cfg.MarketData.Source == "clickhouse" {
		if ch == nil {
			return nil, fmt.Errorf("market data: clickhouse is disabled")
		}
		bars := internalrepo.NewClickHouseBars(ch.DB(), ch.Database(), cfg.MarketData.AccountCurrency, l)
		ctx, cancel := context.WithTimeout(context.Background(), initTimeout)
		defer cancel()
		if err := ch.InitSchema(ctx, []string{bars.Schema()}); err != nil {
			return nil, fmt.Errorf("clickhouse bars schema: %w", err)
		}
		return bars, nil
	}
	return marketdata.New(marketdata.Config{
		BaseURL:         cfg.MarketData.BaseURL,
		APIKey:          cfg.MarketData.APIKey,
		AccountCurrency: cfg.MarketData.AccountCurrency,
		Timeout:         cfg.MarketData.Timeout,
		RateTTL:         cfg.MarketData.RateTTL,
	}, marketdata.WithQuoteSource(book)), nil
}

func ProvideBroker(cfg *config.Config) repository.Broker {
	return broker.New(broker.Config{
		BaseURL: cfg.Broker.BaseURL,
		APIKey:  cfg.Broker.APIKey,
		Timeout: cfg.Broker.Timeout,
	})
}

func ProvideStructureAnalyzer() *structure.Analyzer {
	return structure.New(structure.DefaultConfig())
}

func ProvideBOSFibAnalyzer() *bosfib.Analyzer {
	return bosfib.New(bosfib.DefaultConfig())
}

func ProvideMomentumAnalyzer(cfg *config.Config) *momentum.Analyzer {
	mc := momentum.DefaultConfig()
	mc.RequireMACD = cfg.Strategies.Momentum.RequireMACD
	return momentum.New(mc)
}

// ProvideAnalyzers orders the strategies: structure-fib, market structure,
// then the RSI fallback. The first signal wins.
func ProvideAnalyzers(cfg *config.Config, st *structure.Analyzer, bf *bosfib.Analyzer, mo *momentum.Analyzer) []domsvc.SignalAnalyzer {
	out := make([]domsvc.SignalAnalyzer, 0, 3)
	if !cfg.Strategies.BOSFib.Disabled {
		out = append(out, bf)
	}
	if !cfg.Strategies.Structure.Disabled {
		out = append(out, st)
	}
	if !cfg.Strategies.Momentum.Disabled {
		out = append(out, mo)
	}
	return out
}

func ProvideSignalService(
	cfg *config.Config,
	provider repository.MarketDataProvider,
	analyzers []domsvc.SignalAnalyzer,
	st *structure.Analyzer,
	mirror pkgcache.Service,
	m repository.Metrics,
	l *logger.Logger,
) *usecase.SignalService {
	return usecase.NewSignalService(usecase.SignalServiceConfig{
		Timeframe:        repository.NormalizeTimeframe(cfg.Engine.Timeframe),
		Bars:             cfg.Engine.Bars,
		ThrottleInterval: cfg.Engine.ThrottleInterval,
		CacheTTL:         cfg.Engine.CacheTTL,
		CallTimeout:      cfg.Engine.CallTimeout,
		LKGTTL:           cfg.Engine.LKGTTL,
	}, provider, analyzers, st, ratelimit.NewGate(cfg.Engine.ThrottleInterval), icache.NewTTLCache(), m, l,
		usecase.WithLastKnownGoodMirror(mirror))
}

// ProvideRiskManager loads persisted counters and rolls them to today.
func ProvideRiskManager(cfg *config.Config, store repository.StateStore, provider repository.MarketDataProvider, l *logger.Logger) (*risk.Manager, error) {
	ctx, cancel := context.WithTimeout(context.Background(), initTimeout)
	defer cancel()
	return risk.NewManager(ctx, risk.Config{
		RiskPercent:         cfg.Risk.RiskPercent,
		MaxDailyTrades:      cfg.Risk.MaxDailyTrades,
		MinBalance:          cfg.Risk.MinBalance,
		MinPositionSize:     cfg.Risk.MinPositionSize,
		PairLossLimitPct:    cfg.Risk.PairLossLimitPct,
		DefaultStopLossPips: cfg.Risk.DefaultStopLossPips,
		StopLossPips:        cfg.Risk.StopLossPips,
		Timezone:            cfg.Risk.Timezone,
	}, store, provider, l.With(logger.String("component", "risk")))
}

// ProvideDirectNotifier fans out to every configured chat channel.
func ProvideDirectNotifier(cfg *config.Config) notify.Multi {
	var ns []repository.Notifier
	if cfg.Notify.Telegram.Token != "" {
		ns = append(ns, notify.NewTelegramNotifier(cfg.Notify.Telegram.Token, cfg.Notify.Telegram.ChatID, cfg.Notify.Timeout))
	}
	if cfg.Notify.Discord.WebhookURL != "" {
		ns = append(ns, notify.NewDiscordNotifier(cfg.Notify.Discord.WebhookURL, cfg.Notify.Discord.Title, cfg.Notify.Timeout))
	}
	return notify.NewMulti(ns...)
}

// ProvideNotifier returns the notifier the engine calls. In queued mode
// messages go through redis and DeliveryJob sends them.
func ProvideNotifier(cfg *config.Config, direct notify.Multi, rc *pkgcache.RedisCache, l *logger.Logger) repository.Notifier {
	if len(direct) == 0 {
		return nil
	}
	if cfg.Notify.Queued && rc != nil {
		return notify.NewQueued(queue.NewRedisPublisher(l, rc.Client()))
	}
	return direct
}

// ProvideNotificationQueue is the consumer half of queued notifications.
func ProvideNotificationQueue(cfg *config.Config, direct notify.Multi, rc *pkgcache.RedisCache, l *logger.Logger) *queue.RedisQueue {
	if !cfg.Notify.Queued || rc == nil || len(direct) == 0 {
		return nil
	}
	return queue.NewRedisConsumer(l, &queue.QueueConfig{
		Workers:    1,
		RetryLimit: 3,
		RetryDelay: 10 * time.Second,
	}, rc.Client(), []queue.Job{notify.NewDeliveryJob(direct)})
}

// ProvideJournal returns the ClickHouse trade journal, or nil without ClickHouse.
func ProvideJournal(cfg *config.Config, ch *pkgch.Client, l *logger.Logger) (repository.Journal, error) {
	if ch == nil {
		return nil, nil
	}
	j := internalrepo.NewClickHouseJournal(ch.DB(), ch.Database(), l)
	ctx, cancel := context.WithTimeout(context.Background(), initTimeout)
	defer cancel()
	if err := ch.InitSchema(ctx, j.Schema()); err != nil {
		return nil, fmt.Errorf("journal: %w", err)
	}
	return j, nil
}

func ProvideEventPublisher(cfg *config.Config, producer *pkgkafka.Producer) repository.EventPublisher {
	if producer == nil {
		return nil
	}
	return internalrepo.NewKafkaEventPublisher(producer, cfg.Kafka.Topics.TradeEvents)
}

func ProvideEventRecorder(j repository.Journal, pub repository.EventPublisher, n repository.Notifier, m repository.Metrics, l *logger.Logger) *usecase.EventRecorder {
	return usecase.NewEventRecorder(j, pub, n, m, l)
}

func ProvideNewsCalendar(cfg *config.Config) *internalrepo.NewsCalendar {
	return internalrepo.NewNewsCalendar(cfg.News.Retention)
}

func ProvideNewsHandler(cfg *config.Config, cal *internalrepo.NewsCalendar, m repository.Metrics, l *logger.Logger) *usecase.NewsEventsHandler {
	if !cfg.News.Enabled {
		return nil
	}
	return usecase.NewNewsEventsHandler(cfg.Kafka.Topics.News, cal, m, l.With(logger.String("component", "news")))
}

// ProvideKafkaConsumer consumes the news topic, or returns nil when news is off.
func ProvideKafkaConsumer(cfg *config.Config, news *usecase.NewsEventsHandler, m repository.Metrics, l *logger.Logger) (*pkgkafka.Consumer, error) {
	if news == nil {
		return nil, nil
	}
	consumer, err := pkgkafka.NewConsumer(
		pkgkafka.WithConsumerBrokers(cfg.Kafka.Brokers),
		pkgkafka.WithConsumerGroupID(cfg.Kafka.Consumer.GroupID),
		pkgkafka.WithConsumerWorkers(cfg.Kafka.Consumer.Workers),
		pkgkafka.WithConsumerBufferSize(cfg.Kafka.Consumer.BufferSize),
		pkgkafka.WithConsumerRetry(cfg.Kafka.Consumer.RetryMax, cfg.Kafka.Consumer.BackoffMin, cfg.Kafka.Consumer.BackoffMax),
		pkgkafka.WithConsumerDLQ(cfg.Kafka.Consumer.DLQTopic),
		pkgkafka.WithConsumerFetch(cfg.Kafka.Consumer.MinBytes, cfg.Kafka.Consumer.MaxBytes),
		pkgkafka.WithConsumerLogger(l),
	)
	if err != nil {
		return nil, fmt.Errorf("kafka consumer: %w", err)
	}
	consumer.WithConsumerHook(pkgkafka.NewHookChain(
		pkgkafka.TraceHook{},
		pkgkafka.HookFuncs{Err: func(_ context.Context, topic string, _ kafka.Message, _ []byte, _ error) {
			m.RecordError("consume_" + topic)
		}},
	))
	consumer.RegisterHandler(news)
	return consumer, nil
}

// ProvideQuoteCollector streams live quotes into the quote book when enabled.
func ProvideQuoteCollector(cfg *config.Config, book *internalrepo.QuoteBook, m repository.Metrics, l *logger.Logger) *usecase.QuoteCollector {
	if !cfg.Quotes.Enabled {
		return nil
	}
	stream := quotes.New(cfg.Quotes.APIKey, cfg.Quotes.WebSocketURL, cfg.Engine.Pairs,
		cfg.Quotes.ReconnectDelay, cfg.Quotes.PingInterval, l)
	pipe := mid.NewQuotePipeline(book, m, mid.WithMaxRPS(cfg.Quotes.MaxRPS))
	return usecase.NewQuoteCollector(stream, pipe, m, l)
}

func ProvideDayBoundaryWatcher(cfg *config.Config, rm *risk.Manager, l *logger.Logger) *usecase.DayBoundaryWatcher {
	return usecase.NewDayBoundaryWatcher(cfg.Engine.DayCheckInterval, rm.Location(), nil, l)
}

func ProvideOrchestrator(
	cfg *config.Config,
	signals *usecase.SignalService,
	rm *risk.Manager,
	br repository.Broker,
	events *usecase.EventRecorder,
	cal *internalrepo.NewsCalendar,
	book *internalrepo.QuoteBook,
	bf *bosfib.Analyzer,
	watcher *usecase.DayBoundaryWatcher,
	rc *pkgcache.RedisCache,
	m repository.Metrics,
	l *logger.Logger,
) *usecase.Orchestrator {
	oc := usecase.OrchestratorConfig{
		Pairs:          cfg.Engine.Pairs,
		Interval:       cfg.Engine.Interval,
		CallTimeout:    cfg.Engine.CallTimeout,
		RetryAttempts:  cfg.Engine.RetryAttempts,
		RetryBackoff:   cfg.Engine.RetryBackoff,
		MaxOpenTrades:  cfg.Engine.MaxOpenTrades,
		StopLossBuffer: cfg.Engine.StopLossBuffer,
		ShadowMode:     cfg.Engine.ShadowMode,
		Schedule: usecase.Schedule{
			OpenHour:        cfg.Engine.Schedule.OpenHour,
			CloseHour:       cfg.Engine.Schedule.CloseHour,
			FridayCloseHour: cfg.Engine.Schedule.FridayCloseHour,
		},
		Checklist: usecase.ChecklistConfig{
			MinPasses:     cfg.Engine.Checklist.MinPasses,
			MaxDrawdown:   cfg.Engine.Checklist.MaxDrawdown,
			MaxSpreadPips: cfg.Engine.Checklist.MaxSpreadPips,
			NewsWindow:    cfg.Engine.Checklist.NewsWindow,
		},
	}
	opts := []usecase.OrchestratorOption{usecase.WithDayBoundaryWatcher(watcher)}
	if cfg.News.Enabled {
		opts = append(opts, usecase.WithNewsCalendar(cal))
	}
	if cfg.Quotes.Enabled {
		opts = append(opts, usecase.WithQuoteSource(book))
	}
	if !cfg.Strategies.BOSFib.Disabled {
		opts = append(opts, usecase.WithAdvisor(bf))
	}
	if cfg.State.Backend == "redis" && rc != nil {
		// Replicas sharing the redis risk state take turns per cycle.
		opts = append(opts, usecase.WithCycleLock(rc, pkgcache.GenerateKey("cycle_lock", cfg.State.Account)))
	}
	return usecase.NewOrchestrator(oc, signals, rm, br, events, m, l, opts...)
}

func ProvideAPIHandler(
	cfg *config.Config,
	signals *usecase.SignalService,
	rm *risk.Manager,
	orch *usecase.Orchestrator,
	br repository.Broker,
	bf *bosfib.Analyzer,
	j repository.Journal,
	bc icache.BytesCache,
	ch *pkgch.Client,
	rc *pkgcache.RedisCache,
	l *logger.Logger,
) *api.Handler {
	deps := api.Deps{
		Signals: signals,
		Risk:    rm,
		Reports: orch,
		Account: br,
		Cache:   bc,
		Checks: map[string]api.HealthCheck{
			"broker": func(ctx context.Context) error {
				_, err := br.ServerTime(ctx)
				return err
			},
		},
	}
	if !cfg.Strategies.BOSFib.Disabled {
		deps.Advisor = bf
	}
	if j != nil {
		deps.Journal = j
		deps.Checks["journal"] = j.Health
	}
	if ch != nil {
		deps.Checks["clickhouse"] = ch.Health
	}
	if rc != nil {
		deps.Checks["redis"] = func(ctx context.Context) error { return rc.Client().Ping(ctx).Err() }
	}
	return api.NewHandler(l.With(logger.String("component", "api")), deps)
}

func ProvideHTTPServer(cfg *config.Config, h *api.Handler, l *logger.Logger) *xhttp.Server {
	metricsPath := ""
	if cfg.Metrics.Enabled {
		metricsPath = cfg.Metrics.Path
	}
	return xhttp.NewServer(h, l,
		xhttp.WithPort(cfg.Server.Port),
		xhttp.WithTimeouts(cfg.Server.ReadTimeout, cfg.Server.WriteTimeout, cfg.Server.ShutdownTimeout),
		xhttp.WithSlowThreshold(cfg.Server.SlowThreshold),
		xhttp.WithMetricsPath(metricsPath),
		xhttp.WithCORSOrigins(cfg.Server.CORSOrigins),
	)
}

func ProvideApp(
	cfg *config.Config,
	l *logger.Logger,
	orch *usecase.Orchestrator,
	signals *usecase.SignalService,
	collector *usecase.QuoteCollector,
	consumer *pkgkafka.Consumer,
	nq *queue.RedisQueue,
	srv *xhttp.Server,
) *server.App {
	return server.New(cfg, l, orch, signals, collector, consumer, nq, srv)
}
