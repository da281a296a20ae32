// Package risk owns the daily risk budget: trade counters, realised PnL per
// pair, position sizing and the persisted state behind them.
package risk

import (
	"context"
	"fmt"
	"strings"
	"sync"
	"time"

	"github.com/shopspring/decimal"

	"FXEngine/internal/domain/models"
	"FXEngine/internal/domain/repository"
	"FXEngine/pkg/logger"
)

type Config struct {
	RiskPercent         float64            `yaml:"risk_percent"`
	MaxDailyTrades      int                `yaml:"max_daily_trades"`
	MinBalance          float64            `yaml:"min_balance"`
	MinPositionSize     float64            `yaml:"min_position_size"`
	PairLossLimitPct    float64            `yaml:"pair_loss_limit_pct"`
	DefaultStopLossPips float64            `yaml:"default_stop_loss_pips"`
	StopLossPips        map[string]float64 `yaml:"stop_loss_pips"`
	Timezone            string             `yaml:"timezone"`
}

func DefaultConfig() Config {
	return Config{
		RiskPercent:         5,
		MaxDailyTrades:      10,
		MinBalance:          20,
		MinPositionSize:     0.01,
		PairLossLimitPct:    2,
		DefaultStopLossPips: 50,
		StopLossPips: map[string]float64{
			"GBPJPY": 80,
			"NZDUSD": 60,
			"AUDCAD": 60,
			"XAUUSD": 200,
		},
		Timezone: "UTC",
	}
}

// PipValuer is the slice of the market data provider sizing needs.
type PipValuer interface {
	GetPipValue(ctx context.Context, pair string, lots float64) (float64, error)
}

type Option func(*Manager)

// WithClock replaces time.Now.
func WithClock(now func() time.Time) Option {
	return func(m *Manager) { m.now = now }
}

// Manager is safe for concurrent use. Every public call first rolls the
// counters over when the trading date has changed.
type Manager struct {
	mu    sync.Mutex
	cfg   Config
	store repository.StateStore
	pips  PipValuer
	lgr   *logger.Logger
	now   func() time.Time
	loc   *time.Location
	state *models.RiskState
}

// NewManager loads the persisted state. A missing or unreadable blob starts
// from zeroed counters.
func NewManager(ctx context.Context, cfg Config, store repository.StateStore, pv PipValuer, lgr *logger.Logger, opts ...Option) (*Manager, error) {
	loc := time.UTC
	if cfg.Timezone != "" {
		l, err := time.LoadLocation(cfg.Timezone)
		if err != nil {
			return nil, fmt.Errorf("risk timezone %q: %w", cfg.Timezone, err)
		}
		loc = l
	}
	m := &Manager{
		cfg:   cfg,
		store: store,
		pips:  pv,
		lgr:   lgr,
		now:   time.Now,
		loc:   loc,
	}
	for _, opt := range opts {
		opt(m)
	}

	st, err := store.Load(ctx)
	switch {
	case err != nil:
		lgr.Warn("risk state unreadable, starting from zero", logger.Error(err))
		st = models.NewRiskState(m.today())
	case st == nil:
		lgr.Warn("no persisted risk state, starting from zero")
		st = models.NewRiskState(m.today())
	default:
		st.Normalize()
	}
	m.state = st

	m.mu.Lock()
	m.rolloverLocked(ctx)
	m.mu.Unlock()
	return m, nil
}

func (m *Manager) today() string {
	return m.now().In(m.loc).Format(models.DateLayout)
}

// Location is the trading-day time zone.
func (m *Manager) Location() *time.Location { return m.loc }

// rolloverLocked only moves forward so that an explicit Rollover to a broker
// date ahead of the local clock is not undone.
func (m *Manager) rolloverLocked(ctx context.Context) bool {
	today := m.today()
	if today <= m.state.LastResetDate || !m.state.Rollover(today) {
		return false
	}
	m.lgr.Info("risk counters reset", logger.String("date", m.state.LastResetDate))
	if err := m.persistLocked(ctx); err != nil {
		m.lgr.Error("persist risk state after reset", logger.Error(err))
	}
	return true
}

func (m *Manager) persistLocked(ctx context.Context) error {
	if err := m.store.Save(ctx, m.state); err != nil {
		return fmt.Errorf("%w: %v", repository.ErrPersistence, err)
	}
	return nil
}

// Rollover resets the counters to date when it differs from the stored date.
// It returns true only when a reset happened.
func (m *Manager) Rollover(ctx context.Context, date string) bool {
	m.mu.Lock()
	defer m.mu.Unlock()
	if !m.state.Rollover(date) {
		return false
	}
	m.lgr.Info("risk counters reset", logger.String("date", date))
	if err := m.persistLocked(ctx); err != nil {
		m.lgr.Error("persist risk state after reset", logger.Error(err))
	}
	return true
}

// Date returns the date of the last counter reset.
func (m *Manager) Date() string {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.state.LastResetDate
}

func (m *Manager) CanTradePairToday(ctx context.Context, pair string) bool {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.rolloverLocked(ctx)
	return !m.state.PairTraded[normalize(pair)]
}

// DailyCapReached reports whether the daily trade count hit the cap.
func (m *Manager) DailyCapReached(ctx context.Context) bool {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.rolloverLocked(ctx)
	return m.state.DailyTradeCount >= m.cfg.MaxDailyTrades
}

// PairLossLimitReached reports whether today's realised loss on pair is at or
// beyond the configured share of balance.
func (m *Manager) PairLossLimitReached(ctx context.Context, pair string, balance float64) bool {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.rolloverLocked(ctx)
	if m.cfg.PairLossLimitPct <= 0 || balance <= 0 {
		return false
	}
	pnl := m.state.PairPnL[normalize(pair)]
	return pnl < 0 && -pnl >= balance*m.cfg.PairLossLimitPct/100
}

// StopLossPips returns the configured stop distance for pair.
func (m *Manager) StopLossPips(pair string) float64 {
	if v, ok := m.cfg.StopLossPips[normalize(pair)]; ok && v > 0 {
		return v
	}
	return m.cfg.DefaultStopLossPips
}

// CalculatePositionSize returns lots for a trade on pair. Zero with a nil
// error means "do not trade"; ErrSizing means the size could not be computed.
func (m *Manager) CalculatePositionSize(ctx context.Context, balance float64, pair string) (float64, error) {
	m.mu.Lock()
	m.rolloverLocked(ctx)
	trades := m.state.DailyTradeCount
	m.mu.Unlock()

	if balance < m.cfg.MinBalance {
		m.lgr.Info("balance below floor", logger.String("pair", pair),
			logger.Float64("balance", balance), logger.Float64("min_balance", m.cfg.MinBalance))
		return 0, nil
	}
	if trades >= m.cfg.MaxDailyTrades {
		m.lgr.Info("daily trade cap reached", logger.String("pair", pair), logger.Int("trades", trades))
		return 0, nil
	}

	pipValue, err := m.pips.GetPipValue(ctx, pair, 1.0)
	if err != nil {
		return 0, fmt.Errorf("%w: pip value for %s: %v", repository.ErrSizing, pair, err)
	}
	if pipValue <= 0 {
		return 0, fmt.Errorf("%w: pip value for %s is %v", repository.ErrSizing, pair, pipValue)
	}
	slPips := m.StopLossPips(pair)
	if slPips <= 0 {
		return 0, fmt.Errorf("%w: no stop loss distance for %s", repository.ErrSizing, pair)
	}

	riskAmount := decimal.NewFromFloat(balance).
		Mul(decimal.NewFromFloat(m.cfg.RiskPercent)).
		Div(decimal.NewFromInt(100))
	perLot := decimal.NewFromFloat(slPips).Mul(decimal.NewFromFloat(pipValue))
	raw := riskAmount.Div(perLot)

	// the minimum applies to the unrounded size
	if raw.LessThan(decimal.NewFromFloat(m.cfg.MinPositionSize)) {
		m.lgr.Info("position size below minimum", logger.String("pair", pair), logger.Float64("lots", raw.InexactFloat64()))
		return 0, nil
	}
	return raw.Round(2).InexactFloat64(), nil
}

// RecordTradeOpened counts a confirmed open. The in-memory state is updated
// even when persisting fails.
func (m *Manager) RecordTradeOpened(ctx context.Context, pair string) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.rolloverLocked(ctx)
	p := normalize(pair)
	m.state.DailyTradeCount++
	m.state.PairTradeCount[p]++
	m.state.PairTraded[p] = true
	return m.persistLocked(ctx)
}

// RecordTradeClosed adds realised pnl for pair.
func (m *Manager) RecordTradeClosed(ctx context.Context, pnl float64, pair string) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.rolloverLocked(ctx)
	p := normalize(pair)
	m.state.DailyPnL += pnl
	m.state.PairPnL[p] += pnl
	return m.persistLocked(ctx)
}

// Snapshot returns a deep copy of the current counters.
func (m *Manager) Snapshot(ctx context.Context) models.RiskState {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.rolloverLocked(ctx)
	return m.state.Clone()
}

// Reset zeroes the counters for today regardless of the stored date.
func (m *Manager) Reset(ctx context.Context) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.state = models.NewRiskState(m.today())
	return m.persistLocked(ctx)
}

func normalize(pair string) string {
	return strings.ToUpper(strings.TrimSpace(pair))
}
