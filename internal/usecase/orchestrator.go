package usecase

import (
	"context"
	"errors"
	"fmt"
	"math"
	"runtime/debug"
	"strings"
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/oklog/ulid/v2"

	"FXEngine/internal/domain/models"
	domrepo "FXEngine/internal/domain/repository"
	"FXEngine/internal/services/bosfib"
	"FXEngine/internal/services/pips"
	"FXEngine/internal/services/risk"
	pkgcache "FXEngine/pkg/cache"
	"FXEngine/pkg/logger"
	"FXEngine/pkg/util"
)

const (
	OutcomeNoSignal     = "no_signal"
	OutcomeRejected     = "rejected"
	OutcomeNoSize       = "no_size"
	OutcomeSizingFailed = "sizing_failed"
	OutcomeShadow       = "shadow"
	OutcomeOpened       = "opened"
	OutcomeOpenFailed   = "open_failed"
	OutcomeMaxOpen      = "max_open_trades"
)

// SignalSource is the part of SignalService the orchestrator drives.
type SignalSource interface {
	GenerateAll(ctx context.Context, pairs []string) models.SignalSet
	Evaluate(ctx context.Context, pair string) (Evaluation, error)
	Cached(pair string) (Evaluation, bool)
}

// Advisor produces the read-only structure-fib view of the risk snapshot.
type Advisor interface {
	Advisory(state models.RiskState, balance float64, now time.Time) bosfib.Advisory
}

type OrchestratorConfig struct {
	Pairs          []string        `yaml:"pairs"`
	Interval       time.Duration   `yaml:"interval"`
	CallTimeout    time.Duration   `yaml:"call_timeout"`
	RetryAttempts  int             `yaml:"retry_attempts"`
	RetryBackoff   time.Duration   `yaml:"retry_backoff"`
	MaxOpenTrades  int             `yaml:"max_open_trades"`
	StopLossBuffer float64         `yaml:"stop_loss_buffer"`
	ShadowMode     bool            `yaml:"shadow_mode"`
	Schedule       Schedule        `yaml:"schedule"`
	Checklist      ChecklistConfig `yaml:"checklist"`
}

func DefaultOrchestratorConfig() OrchestratorConfig {
	return OrchestratorConfig{
		Interval:       time.Minute,
		CallTimeout:    10 * time.Second,
		RetryAttempts:  3,
		RetryBackoff:   time.Second,
		MaxOpenTrades:  5,
		StopLossBuffer: 0.15,
		Schedule:       DefaultSchedule(),
		Checklist:      DefaultChecklistConfig(),
	}
}

// Orchestrator is the single owner of trading decisions. Only the goroutine
// running Run (or a caller of RunCycle) mutates risk state.
type Orchestrator struct {
	cfg     OrchestratorConfig
	signals SignalSource
	risk    *risk.Manager
	broker  domrepo.Broker
	events  *EventRecorder
	news    domrepo.NewsCalendar
	quotes  domrepo.QuoteSource
	advisor Advisor
	watcher *DayBoundaryWatcher
	lock    pkgcache.Locker
	lockKey string
	metrics domrepo.Metrics
	lgr     *logger.Logger
	now     func() time.Time

	day string

	mu          sync.RWMutex
	last        *models.CycleReport
	cycleTrades []string
}

type OrchestratorOption func(*Orchestrator)

func WithNewsCalendar(n domrepo.NewsCalendar) OrchestratorOption {
	return func(o *Orchestrator) { o.news = n }
}

func WithQuoteSource(q domrepo.QuoteSource) OrchestratorOption {
	return func(o *Orchestrator) { o.quotes = q }
}

func WithAdvisor(a Advisor) OrchestratorOption {
	return func(o *Orchestrator) { o.advisor = a }
}

func WithDayBoundaryWatcher(w *DayBoundaryWatcher) OrchestratorOption {
	return func(o *Orchestrator) { o.watcher = w }
}

// WithCycleLock makes Run skip a tick unless it holds the lease at key.
// Engines sharing one risk state use it so only one of them trades.
func WithCycleLock(l pkgcache.Locker, key string) OrchestratorOption {
	return func(o *Orchestrator) { o.lock, o.lockKey = l, key }
}

// WithOrchestratorClock replaces the local clock used when the broker has no time.
func WithOrchestratorClock(now func() time.Time) OrchestratorOption {
	return func(o *Orchestrator) { o.now = now }
}

func NewOrchestrator(cfg OrchestratorConfig, signals SignalSource, rm *risk.Manager, broker domrepo.Broker,
	events *EventRecorder, metrics domrepo.Metrics, lgr *logger.Logger, opts ...OrchestratorOption) *Orchestrator {
	def := DefaultOrchestratorConfig()
	if cfg.Interval <= 0 {
		cfg.Interval = def.Interval
	}
	if cfg.CallTimeout <= 0 {
		cfg.CallTimeout = def.CallTimeout
	}
	if cfg.RetryAttempts <= 0 {
		cfg.RetryAttempts = def.RetryAttempts
	}
	if cfg.MaxOpenTrades <= 0 {
		cfg.MaxOpenTrades = def.MaxOpenTrades
	}
	if cfg.Schedule == (Schedule{}) {
		cfg.Schedule = def.Schedule
	}
	if cfg.Checklist.MinPasses <= 0 {
		cfg.Checklist.MinPasses = MinChecklistPasses
	}
	o := &Orchestrator{
		cfg:     cfg,
		signals: signals,
		risk:    rm,
		broker:  broker,
		events:  events,
		metrics: metrics,
		lgr:     lgr.With(logger.String("component", "orchestrator")),
		now:     time.Now,
		day:     rm.Date(),
	}
	for _, opt := range opts {
		opt(o)
	}
	return o
}

// Run executes a cycle every interval until ctx is cancelled.
func (o *Orchestrator) Run(ctx context.Context) error {
	var dayC <-chan struct{}
	if o.watcher != nil {
		go o.watcher.Run(ctx)
		dayC = o.watcher.C()
	}
	t := time.NewTicker(o.cfg.Interval)
	defer t.Stop()

	o.lgr.Info("orchestrator started",
		logger.Strings("pairs", o.cfg.Pairs),
		logger.Duration("interval", o.cfg.Interval),
		logger.Bool("shadow_mode", o.cfg.ShadowMode),
	)
	for {
		if o.acquireCycle(ctx) {
			rep := o.RunCycle(ctx)
			o.releaseCycle()
			o.CheckDayBoundary(ctx, rep.ServerTime)
		}
	wait:
		for {
			select {
			case <-ctx.Done():
				o.lgr.Info("orchestrator stopped")
				return nil
			case <-dayC:
				o.CheckDayBoundary(ctx, o.serverTime(ctx))
			case <-t.C:
				break wait
			}
		}
	}
}

func (o *Orchestrator) acquireCycle(ctx context.Context) bool {
	if o.lock == nil {
		return true
	}
	ok, err := o.lock.TryLock(ctx, o.lockKey, o.cfg.Interval)
	if err != nil {
		o.lgr.Warn("cycle lease unavailable, skipping", logger.Error(err))
		o.metrics.RecordError("cycle_lock")
		return false
	}
	if !ok {
		o.lgr.Debug("cycle lease held by another engine")
	}
	return ok
}

func (o *Orchestrator) releaseCycle() {
	if o.lock == nil {
		return
	}
	ctx, cancel := context.WithTimeout(context.Background(), o.cfg.CallTimeout)
	defer cancel()
	if err := o.lock.Unlock(ctx, o.lockKey); err != nil {
		o.lgr.Warn("cycle lease release failed", logger.Error(err))
	}
}

// RunCycle performs one decision pass. It never panics and never returns an
// error; problems are logged and folded into the report.
func (o *Orchestrator) RunCycle(ctx context.Context) (rep models.CycleReport) {
	rep = models.CycleReport{CycleID: uuid.NewString(), StartedAt: o.now()}
	lgr := o.lgr.With(logger.String("cycle_id", rep.CycleID))
	outcome := "ok"
	defer func() {
		if r := recover(); r != nil {
			outcome = "panic"
			rep.Warning = fmt.Sprintf("cycle panicked: %v", r)
			lgr.Error("cycle panicked", logger.Any("panic", r), logger.String("stack", string(debug.Stack())))
			o.events.Notify(ctx, fmt.Sprintf("FXEngine cycle %s panicked: %v", rep.CycleID, r))
		}
		rep.FinishedAt = o.now()
		o.metrics.RecordCycle(outcome)
		o.metrics.RecordLatency("cycle", rep.FinishedAt.Sub(rep.StartedAt).Seconds())
		o.setLast(rep)
	}()

	server := o.serverTime(ctx)
	rep.ServerTime = server
	if open, reason := o.cfg.Schedule.Open(server); !open {
		rep.Gated = reason
		outcome = "gated"
		lgr.Debug("outside trading hours", logger.String("reason", reason))
		return rep
	}

	positions, err := o.positions(ctx)
	if err != nil {
		outcome = "error"
		rep.AddError("positions", err)
		lgr.Error("list open positions", logger.Error(err))
		return rep
	}
	open := len(positions) - o.closeReversals(ctx, lgr, &rep, positions)

	acc, err := o.account(ctx)
	if err != nil {
		outcome = "error"
		rep.AddError("account", err)
		lgr.Error("read account", logger.Error(err))
		return rep
	}
	if o.advisor != nil {
		adv := o.advisor.Advisory(o.risk.Snapshot(ctx), acc.Balance, server)
		lgr.Info("structure-fib advisory",
			logger.Bool("allowed", adv.Allowed),
			logger.String("reason", adv.Reason),
			logger.Int("daily_trades", adv.DailyTrades),
		)
	}

	if o.risk.DailyCapReached(ctx) {
		rep.Warning = "daily trade cap reached"
		o.recordDailyState(ctx)
		return rep
	}
	if open >= o.cfg.MaxOpenTrades {
		rep.Warning = fmt.Sprintf("%d positions open, limit %d", open, o.cfg.MaxOpenTrades)
		o.recordDailyState(ctx)
		return rep
	}

	candidates := o.candidates(ctx, acc.Balance)
	if len(candidates) == 0 {
		lgr.Debug("no candidate pairs")
		o.recordDailyState(ctx)
		return rep
	}

	set := o.signals.GenerateAll(ctx, candidates)
	if set.Warning != "" {
		rep.Warning = set.Warning
		lgr.Warn("signal pass degraded", logger.String("warning", set.Warning))
	}
	for pair, reason := range set.Skipped {
		rep.AddError(pair, errors.New(reason))
	}
	o.events.RecordSignals(ctx, rep.CycleID, set.Signals)

	for _, pair := range candidates {
		sig, ok := set.ForPair(pair)
		if !ok {
			rep.Candidates = append(rep.Candidates, models.CandidateReport{Pair: pair, Outcome: OutcomeNoSignal})
			continue
		}
		if open >= o.cfg.MaxOpenTrades {
			rep.Candidates = append(rep.Candidates, models.CandidateReport{Pair: pair, Direction: sig.Direction,
				Strategy: sig.Strategy, Outcome: OutcomeMaxOpen})
			continue
		}
		cand := o.consider(ctx, lgr, rep.CycleID, server, acc, sig)
		if cand.Outcome == OutcomeOpened {
			open++
		}
		rep.Candidates = append(rep.Candidates, cand)
	}
	o.recordDailyState(ctx)
	return rep
}

// closeReversals closes positions whose pair no longer supports them and
// returns how many were closed.
func (o *Orchestrator) closeReversals(ctx context.Context, lgr *logger.Logger, rep *models.CycleReport, positions []models.Position) int {
	closed := 0
	for _, pos := range positions {
		ev, err := o.signals.Evaluate(ctx, pos.Pair)
		if err != nil {
			rep.AddError(pos.Pair, err)
			lgr.Warn("reversal check skipped", logger.String("pair", pos.Pair), logger.Error(err))
			if errors.Is(err, domrepo.ErrRateLimited) || ctx.Err() != nil {
				break
			}
			continue
		}
		reason := reversalReason(pos, ev)
		if reason == "" {
			continue
		}
		if o.closePosition(ctx, lgr, rep.CycleID, pos, reason) {
			rep.Closed = append(rep.Closed, pos.Ticket)
			closed++
		}
	}
	return closed
}

// reversalReason only consults market structure; other analyzers never close
// a position.
func reversalReason(pos models.Position, ev Evaluation) string {
	if ev.HasReport && ev.Report.Trend == models.TrendRanging {
		return "trend turned ranging"
	}
	if ev.HasStructure && ev.Structure.Direction == pos.Direction.Opposite() {
		return fmt.Sprintf("market structure reversed to %s", ev.Structure.Direction)
	}
	return ""
}

func (o *Orchestrator) closePosition(ctx context.Context, lgr *logger.Logger, cycleID string, pos models.Position, reason string) bool {
	err := o.retry(ctx, func(ctx context.Context) error {
		return o.broker.ClosePosition(ctx, pos.Ticket)
	})
	ev := models.TradeEvent{
		CycleID:   cycleID,
		Pair:      pos.Pair,
		Direction: pos.Direction,
		Ticket:    pos.Ticket,
		Lots:      pos.LotSize,
		Reason:    reason,
		At:        o.now(),
	}
	if err != nil {
		ev.Kind = models.EventCloseFailed
		ev.Reason = reason + ": " + err.Error()
		o.events.Record(ctx, ev)
		o.metrics.RecordError("close")
		lgr.Error("close position", logger.String("ticket", pos.Ticket), logger.String("pair", pos.Pair), logger.Error(err))
		o.events.Notify(ctx, fmt.Sprintf("Failed to close %s %s (#%s): %v", pos.Direction, pos.Pair, pos.Ticket, err))
		return false
	}

	if err := o.risk.RecordTradeClosed(ctx, pos.Profit, pos.Pair); err != nil {
		o.metrics.RecordError("persistence")
		lgr.Error("record closed trade", logger.String("pair", pos.Pair), logger.Error(err))
	}
	ev.Kind = models.EventClosed
	ev.PnL = pos.Profit
	o.events.Record(ctx, ev)
	o.metrics.RecordTrade(pos.Pair, "closed")
	lgr.Info("position closed",
		logger.String("ticket", pos.Ticket),
		logger.String("pair", pos.Pair),
		logger.Float64("pnl", pos.Profit),
		logger.String("reason", reason),
	)
	o.events.Notify(ctx, fmt.Sprintf("Closed %s %s (#%s) pnl %.2f: %s", pos.Direction, pos.Pair, pos.Ticket, pos.Profit, reason))
	return true
}

func (o *Orchestrator) candidates(ctx context.Context, balance float64) []string {
	out := make([]string, 0, len(o.cfg.Pairs))
	for _, p := range o.cfg.Pairs {
		pair := strings.ToUpper(p)
		if !o.risk.CanTradePairToday(ctx, pair) {
			continue
		}
		if o.risk.PairLossLimitReached(ctx, pair, balance) {
			o.lgr.Info("pair loss limit reached", logger.String("pair", pair))
			continue
		}
		out = append(out, pair)
	}
	return out
}

// consider runs the checklist for one signal and submits it when admitted.
func (o *Orchestrator) consider(ctx context.Context, lgr *logger.Logger, cycleID string, server time.Time,
	acc models.Account, sig models.Signal) models.CandidateReport {
	cand := models.CandidateReport{Pair: sig.Pair, Direction: sig.Direction, Strategy: sig.Strategy}

	in := ChecklistInput{
		InHours:     true,
		TradedToday: !o.risk.CanTradePairToday(ctx, sig.Pair),
		Signal:      sig,
		Account:     acc,
		News:        o.highImpactNews(sig.Pair, server),
	}
	if ev, ok := o.signals.Cached(sig.Pair); ok {
		in.Report, in.HasReport = ev.Report, ev.HasReport
	}
	in.SpreadPips, in.SpreadKnown = o.spread(sig.Pair)

	lots, sizeErr := o.risk.CalculatePositionSize(ctx, acc.Balance, sig.Pair)
	if sizeErr != nil {
		o.metrics.RecordError("sizing")
		lgr.Warn("cannot size position", logger.String("pair", sig.Pair), logger.Error(sizeErr))
		lots = 0
	}
	in.Lots = lots
	cand.Lots = lots

	cand.Conditions, cand.Passed = EvaluateChecklist(o.cfg.Checklist, in)
	cand.Admitted = cand.Passed >= o.cfg.Checklist.MinPasses
	switch {
	case !cand.Admitted:
		cand.Outcome = OutcomeRejected
		return cand
	case sizeErr != nil:
		cand.Outcome = OutcomeSizingFailed
		return cand
	case lots <= 0:
		cand.Outcome = OutcomeNoSize
		return cand
	}

	intent := o.intent(sig, lots, server)
	event := models.TradeEvent{
		ID:        intent.ID,
		CycleID:   cycleID,
		Pair:      intent.Pair,
		Direction: intent.Direction,
		Lots:      intent.LotSize,
		Price:     sig.EntryPrice,
		Reason:    sig.Strategy,
		At:        o.now(),
	}

	if o.cfg.ShadowMode {
		event.Kind = models.EventShadow
		o.events.Record(ctx, event)
		o.metrics.RecordTrade(intent.Pair, "shadow")
		lgr.Info("shadow trade", logger.String("pair", intent.Pair), logger.String("direction", string(intent.Direction)),
			logger.Float64("lots", lots), logger.Float64("sl_pips", intent.StopLossPips), logger.Float64("tp_pips", intent.TakeProfitPips))
		o.events.Notify(ctx, fmt.Sprintf("[shadow] %s %s %.2f lots SL %.1f TP %.1f pips (%s)",
			intent.Direction, intent.Pair, lots, intent.StopLossPips, intent.TakeProfitPips, sig.Strategy))
		cand.Outcome = OutcomeShadow
		return cand
	}

	cctx, cancel := context.WithTimeout(ctx, o.cfg.CallTimeout)
	ack, err := o.broker.OpenPosition(cctx, intent)
	cancel()
	if err != nil {
		err = fmt.Errorf("%w: %v", domrepo.ErrExecution, err)
		event.Kind = models.EventOpenFailed
		event.Reason = err.Error()
		o.events.Record(ctx, event)
		o.metrics.RecordError("execution")
		lgr.Error("open position", logger.String("pair", intent.Pair), logger.Error(err))
		o.events.Notify(ctx, fmt.Sprintf("Failed to open %s %s: %v", intent.Direction, intent.Pair, err))
		cand.Outcome = OutcomeOpenFailed
		return cand
	}

	if err := o.risk.RecordTradeOpened(ctx, intent.Pair); err != nil {
		o.metrics.RecordError("persistence")
		lgr.Error("record opened trade", logger.String("pair", intent.Pair), logger.Error(err))
	}
	o.mu.Lock()
	o.cycleTrades = append(o.cycleTrades, intent.Pair)
	o.mu.Unlock()
	event.Kind = models.EventOpened
	event.Ticket = ack.Ticket
	if ack.FillPrice > 0 {
		event.Price = ack.FillPrice
	}
	o.events.Record(ctx, event)
	o.metrics.RecordTrade(intent.Pair, "opened")
	lgr.Info("position opened",
		logger.String("pair", intent.Pair),
		logger.String("direction", string(intent.Direction)),
		logger.String("ticket", ack.Ticket),
		logger.Float64("lots", lots),
	)
	o.events.Notify(ctx, fmt.Sprintf("Opened %s %s %.2f lots @ %.5f (#%s) SL %.1f TP %.1f pips",
		intent.Direction, intent.Pair, lots, event.Price, ack.Ticket, intent.StopLossPips, intent.TakeProfitPips))
	cand.Outcome = OutcomeOpened
	return cand
}

// intent converts structural price levels into pip distances. The stop is
// pulled in by StopLossBuffer.
func (o *Orchestrator) intent(sig models.Signal, lots float64, at time.Time) models.TradeIntent {
	sl := pips.FromPrice(sig.Pair, math.Abs(sig.EntryPrice-sig.StopLoss)) * (1 - o.cfg.StopLossBuffer)
	tp := pips.FromPrice(sig.Pair, math.Abs(sig.TakeProfit-sig.EntryPrice))
	return models.TradeIntent{
		ID:             ulid.Make().String(),
		Pair:           sig.Pair,
		Direction:      sig.Direction,
		LotSize:        lots,
		StopLossPips:   pips.Round(sl, 1),
		TakeProfitPips: pips.Round(tp, 1),
		Strategy:       sig.Strategy,
		CreatedAt:      at,
	}
}

func (o *Orchestrator) highImpactNews(pair string, at time.Time) []models.NewsEvent {
	if o.news == nil {
		return nil
	}
	base, quote, err := pips.Split(pair)
	if err != nil {
		return nil
	}
	w := o.cfg.Checklist.NewsWindow
	return append(o.news.HighImpactNear(base, at, w), o.news.HighImpactNear(quote, at, w)...)
}

func (o *Orchestrator) spread(pair string) (float64, bool) {
	if o.quotes == nil {
		return 0, false
	}
	q, ok := o.quotes.Latest(pair)
	if !ok || q.Ask <= 0 || q.Bid <= 0 {
		return 0, false
	}
	return pips.FromPrice(pair, q.Ask-q.Bid), true
}

// CheckDayBoundary rolls risk state over when the broker date moved past the
// last seen trading date. It reports whether a boundary was handled.
func (o *Orchestrator) CheckDayBoundary(ctx context.Context, server time.Time) bool {
	if server.IsZero() {
		server = o.now().In(o.risk.Location())
	}
	// broker times keep the broker's offset; its calendar date is the trading day
	date := server.Format(models.DateLayout)
	if date <= o.day {
		return false
	}
	prev := o.day
	o.day = date
	o.risk.Rollover(ctx, date)
	o.mu.Lock()
	o.cycleTrades = nil
	o.mu.Unlock()

	o.events.Record(ctx, models.TradeEvent{Kind: models.EventDayReset, Reason: date, At: server})
	o.lgr.Info("new trading day", logger.String("from", prev), logger.String("to", date))
	o.events.Notify(ctx, fmt.Sprintf("New trading day %s: daily risk counters reset", date))
	o.recordDailyState(ctx)
	return true
}

// CycleTrades lists pairs opened since the last day boundary.
func (o *Orchestrator) CycleTrades() []string {
	o.mu.RLock()
	defer o.mu.RUnlock()
	return append([]string(nil), o.cycleTrades...)
}

// LastReport returns the most recent cycle report.
func (o *Orchestrator) LastReport() (models.CycleReport, bool) {
	o.mu.RLock()
	defer o.mu.RUnlock()
	if o.last == nil {
		return models.CycleReport{}, false
	}
	return *o.last, true
}

func (o *Orchestrator) setLast(rep models.CycleReport) {
	o.mu.Lock()
	o.last = &rep
	o.mu.Unlock()
}

func (o *Orchestrator) serverTime(ctx context.Context) time.Time {
	var t time.Time
	err := o.retry(ctx, func(ctx context.Context) error {
		var err error
		t, err = o.broker.ServerTime(ctx)
		return err
	})
	if err != nil || t.IsZero() {
		o.lgr.Warn("broker server time unavailable, using local clock", logger.Error(err))
		return o.now().In(o.risk.Location())
	}
	return t
}

func (o *Orchestrator) positions(ctx context.Context) ([]models.Position, error) {
	var out []models.Position
	err := o.retry(ctx, func(ctx context.Context) error {
		var err error
		out, err = o.broker.ListOpenPositions(ctx)
		return err
	})
	return out, err
}

func (o *Orchestrator) account(ctx context.Context) (models.Account, error) {
	var acc models.Account
	err := o.retry(ctx, func(ctx context.Context) error {
		var err error
		acc, err = o.broker.Account(ctx)
		return err
	})
	return acc, err
}

// retry is for idempotent broker calls only.
func (o *Orchestrator) retry(ctx context.Context, fn func(ctx context.Context) error) error {
	return util.Do(ctx, o.cfg.RetryAttempts, o.cfg.RetryBackoff, func(ctx context.Context) error {
		cctx, cancel := context.WithTimeout(ctx, o.cfg.CallTimeout)
		defer cancel()
		return fn(cctx)
	})
}

func (o *Orchestrator) recordDailyState(ctx context.Context) {
	st := o.risk.Snapshot(ctx)
	o.metrics.RecordDailyState(st.DailyTradeCount, st.DailyPnL)
}
