package server

import (
	"context"
	"errors"
	"sync"
	"time"

	"FXEngine/internal/usecase"
	"FXEngine/pkg/config"
	xhttp "FXEngine/pkg/http"
	pkgkafka "FXEngine/pkg/kafka"
	"FXEngine/pkg/logger"
	"FXEngine/pkg/queue"
)

// App encapsulates the engine lifecycle: the orchestrator loop, the optional
// quote and news feeds, the notification worker and the operator API.
type App struct {
	cfg          *config.Config
	lgr          *logger.Logger
	orchestrator *usecase.Orchestrator
	signals      *usecase.SignalService
	collector    *usecase.QuoteCollector
	consumer     *pkgkafka.Consumer
	notifyQueue  *queue.RedisQueue
	httpServer   *xhttp.Server

	wg sync.WaitGroup
}

// New wires the runtime parts. collector, consumer and notifyQueue may be nil.
func New(
	cfg *config.Config,
	lgr *logger.Logger,
	orchestrator *usecase.Orchestrator,
	signals *usecase.SignalService,
	collector *usecase.QuoteCollector,
	consumer *pkgkafka.Consumer,
	notifyQueue *queue.RedisQueue,
	httpServer *xhttp.Server,
) *App {
	return &App{
		cfg:          cfg,
		lgr:          lgr.With(logger.String("component", "app")),
		orchestrator: orchestrator,
		signals:      signals,
		collector:    collector,
		consumer:     consumer,
		notifyQueue:  notifyQueue,
		httpServer:   httpServer,
	}
}

// Run starts every part and blocks until ctx is cancelled, then shuts down.
func (a *App) Run(ctx context.Context) error {
	a.signals.Restore(ctx)

	if a.notifyQueue != nil {
		if err := a.notifyQueue.Start(); err != nil {
			return err
		}
	}

	if a.collector != nil {
		if err := a.collector.Start(ctx); err != nil {
			// Spread checks degrade to "unknown" without live quotes.
			a.lgr.Warn("quote collector not started", logger.Error(err))
		} else {
			a.lgr.Info("quote collector started", logger.Strings("pairs", a.cfg.Engine.Pairs))
		}
	}

	if a.consumer != nil {
		if err := a.consumer.Start(); err != nil {
			return err
		}
		a.lgr.Info("news consumer started", logger.String("topic", a.cfg.Kafka.Topics.News))
	}

	if err := a.httpServer.Start(); err != nil {
		a.lgr.Error("http server start error", logger.Error(err))
		return err
	}

	a.wg.Add(1)
	go func() {
		defer a.wg.Done()
		if err := a.orchestrator.Run(ctx); err != nil {
			a.lgr.Error("orchestrator stopped with error", logger.Error(err))
		}
	}()

	a.lgr.Info("engine running",
		logger.String("env", a.cfg.Environment),
		logger.Bool("shadow_mode", a.cfg.Engine.ShadowMode),
		logger.Int("port", a.cfg.Server.Port),
	)

	<-ctx.Done()
	a.lgr.Info("shutdown signal received")
	return a.shutdown()
}

// shutdown stops feeds first so the last cycle can finish against a quiet
// system. Client connections are closed by the injector cleanup.
func (a *App) shutdown() error {
	ctx, cancel := context.WithTimeout(context.Background(), a.cfg.Server.ShutdownTimeout)
	defer cancel()

	var errs []error
	if a.collector != nil {
		if err := a.collector.Shutdown(ctx); err != nil {
			a.lgr.Warn("collector stop error", logger.Error(err))
			errs = append(errs, err)
		}
	}
	if a.consumer != nil {
		if err := a.consumer.Stop(ctx); err != nil {
			a.lgr.Warn("kafka consumer stop error", logger.Error(err))
			errs = append(errs, err)
		}
	}
	if err := a.httpServer.Stop(ctx); err != nil {
		a.lgr.Error("http shutdown error", logger.Error(err))
		errs = append(errs, err)
	}

	done := make(chan struct{})
	go func() {
		a.wg.Wait()
		close(done)
	}()
	select {
	case <-done:
	case <-ctx.Done():
		a.lgr.Warn("orchestrator did not stop in time", logger.Duration("timeout", a.cfg.Server.ShutdownTimeout))
	}

	if a.notifyQueue != nil {
		// Bounded wait for in-flight deliveries.
		qctx, qcancel := context.WithTimeout(context.Background(), 5*time.Second)
		if err := a.notifyQueue.Stop(qctx); err != nil {
			a.lgr.Warn("notification queue stop error", logger.Error(err))
		}
		qcancel()
	}

	a.lgr.Info("shutdown complete")
	return errors.Join(errs...)
}
