package repository

import (
	"context"
	"time"

	"FXEngine/internal/domain/models"
)

// MarketDataProvider returns bars and pip values. Errors wrap ErrRateLimited, ErrNoData or ErrTransient.
type MarketDataProvider interface {
	GetBars(ctx context.Context, pair string, tf Timeframe, size int) (models.BarSeries, error)
	GetPipValue(ctx context.Context, pair string, lots float64) (float64, error)
}

type Broker interface {
	OpenPosition(ctx context.Context, intent models.TradeIntent) (models.ExecutionAck, error)
	ClosePosition(ctx context.Context, ticket string) error
	ListOpenPositions(ctx context.Context) ([]models.Position, error)
	Account(ctx context.Context) (models.Account, error)
	ServerTime(ctx context.Context) (time.Time, error)
}

// Notifier is best effort; callers log failures and carry on.
type Notifier interface {
	Notify(ctx context.Context, message string) error
}

type StateStore interface {
	Load(ctx context.Context) (*models.RiskState, error)
	Save(ctx context.Context, state *models.RiskState) error
}

type Journal interface {
	RecordEvent(ctx context.Context, ev models.TradeEvent) error
	RecordSignals(ctx context.Context, cycleID string, signals []models.Signal) error
	Events(ctx context.Context, pair string, from, to time.Time, limit int) ([]models.TradeEvent, error)
	Health(ctx context.Context) error // ping
	Close() error
}

type EventPublisher interface {
	PublishEvent(ctx context.Context, ev models.TradeEvent) error
	PublishBatch(ctx context.Context, evs []models.TradeEvent) error
	Close() error
}

type NewsCalendar interface {
	Upsert(ev models.NewsEvent)
	HighImpactNear(currency string, at time.Time, window time.Duration) []models.NewsEvent
}

type QuoteSource interface {
	Latest(pair string) (models.Quote, bool)
}

type QuoteStream interface {
	Connect(ctx context.Context) error
	Subscribe(ctx context.Context) error
	Read(ctx context.Context) (<-chan *models.Quote, <-chan error)
	Reconnect(ctx context.Context) error
	Close() error
	IsConnected() bool
}

type Metrics interface {
	RecordCycle(outcome string)
	RecordSignal(pair, strategy string)
	RecordTrade(pair, action string)
	RecordSkip(pair, reason string)
	RecordError(kind string)
	RecordDailyState(trades int, pnl float64)
	RecordLastPrice(pair string, price float64)
	RecordLatency(op string, seconds float64)
}
