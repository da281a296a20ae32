package usecase

import (
	"context"
	"time"

	"github.com/oklog/ulid/v2"

	"FXEngine/internal/domain/models"
	domrepo "FXEngine/internal/domain/repository"
	"FXEngine/pkg/logger"
)

// EventRecorder fans trade events out to the journal and the event bus and
// sends operator notifications. Every sink is optional and best effort.
type EventRecorder struct {
	journal   domrepo.Journal
	publisher domrepo.EventPublisher
	notifier  domrepo.Notifier
	metrics   domrepo.Metrics
	lgr       *logger.Logger
	timeout   time.Duration
}

func NewEventRecorder(journal domrepo.Journal, publisher domrepo.EventPublisher, notifier domrepo.Notifier,
	metrics domrepo.Metrics, lgr *logger.Logger) *EventRecorder {
	return &EventRecorder{
		journal:   journal,
		publisher: publisher,
		notifier:  notifier,
		metrics:   metrics,
		lgr:       lgr.With(logger.String("component", "event_recorder")),
		timeout:   5 * time.Second,
	}
}

// Record stamps ev with an ID when missing and writes it to every sink.
func (r *EventRecorder) Record(ctx context.Context, ev models.TradeEvent) models.TradeEvent {
	if ev.ID == "" {
		ev.ID = ulid.Make().String()
	}
	if ev.At.IsZero() {
		ev.At = time.Now().UTC()
	}
	if r == nil {
		return ev
	}
	if r.journal != nil {
		cctx, cancel := context.WithTimeout(ctx, r.timeout)
		if err := r.journal.RecordEvent(cctx, ev); err != nil {
			r.fail("journal", err, ev)
		}
		cancel()
	}
	if r.publisher != nil {
		cctx, cancel := context.WithTimeout(ctx, r.timeout)
		if err := r.publisher.PublishEvent(cctx, ev); err != nil {
			r.fail("publish", err, ev)
		}
		cancel()
	}
	return ev
}

// RecordSignals journals the signals produced in one cycle.
func (r *EventRecorder) RecordSignals(ctx context.Context, cycleID string, signals []models.Signal) {
	if r == nil || r.journal == nil || len(signals) == 0 {
		return
	}
	cctx, cancel := context.WithTimeout(ctx, r.timeout)
	defer cancel()
	if err := r.journal.RecordSignals(cctx, cycleID, signals); err != nil {
		r.metrics.RecordError("journal")
		r.lgr.Warn("journal signals", logger.String("cycle_id", cycleID), logger.Error(err))
	}
}

// Notify never fails the caller.
func (r *EventRecorder) Notify(ctx context.Context, msg string) {
	if r == nil || r.notifier == nil {
		return
	}
	cctx, cancel := context.WithTimeout(ctx, r.timeout)
	defer cancel()
	if err := r.notifier.Notify(cctx, msg); err != nil {
		r.metrics.RecordError("notify")
		r.lgr.Warn("notification failed", logger.Error(err))
	}
}

func (r *EventRecorder) fail(sink string, err error, ev models.TradeEvent) {
	r.metrics.RecordError(sink)
	r.lgr.Warn("trade event sink failed",
		logger.String("sink", sink),
		logger.String("kind", string(ev.Kind)),
		logger.String("pair", ev.Pair),
		logger.Error(err),
	)
}
