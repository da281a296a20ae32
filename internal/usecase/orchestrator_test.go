package usecase

import (
	"context"
	"errors"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"FXEngine/internal/domain/models"
	domrepo "FXEngine/internal/domain/repository"
	"FXEngine/internal/services/risk"
	pkgcache "FXEngine/pkg/cache"
	"FXEngine/pkg/logger"
	"FXEngine/pkg/metrics"
)

// Monday, inside trading hours.
var monday = time.Date(2024, 3, 4, 10, 0, 0, 0, time.UTC)

type fakeSignals struct {
	mu        sync.Mutex
	evals     map[string]Evaluation
	evalErr   map[string]error
	generated [][]string
	explode   bool
}

func (f *fakeSignals) GenerateAll(_ context.Context, pairs []string) models.SignalSet {
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.explode {
		panic("analyzer exploded")
	}
	f.generated = append(f.generated, append([]string(nil), pairs...))
	set := models.SignalSet{GeneratedAt: monday}
	for _, p := range pairs {
		if ev, ok := f.evals[p]; ok && ev.HasSignal {
			set.Signals = append(set.Signals, ev.Signal)
		}
	}
	return set
}

func (f *fakeSignals) Evaluate(_ context.Context, pair string) (Evaluation, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	if err := f.evalErr[pair]; err != nil {
		return Evaluation{}, err
	}
	return f.evals[pair], nil
}

func (f *fakeSignals) Cached(pair string) (Evaluation, bool) {
	f.mu.Lock()
	defer f.mu.Unlock()
	ev, ok := f.evals[pair]
	return ev, ok
}

type fakeBroker struct {
	mu        sync.Mutex
	server    time.Time
	serverErr error
	positions []models.Position
	posErr    error
	account   models.Account
	openErr   error
	closeErr  error
	opened    []models.TradeIntent
	closed    []string
	closeTry  int
}

func (b *fakeBroker) OpenPosition(_ context.Context, in models.TradeIntent) (models.ExecutionAck, error) {
	b.mu.Lock()
	defer b.mu.Unlock()
	if b.openErr != nil {
		return models.ExecutionAck{}, b.openErr
	}
	b.opened = append(b.opened, in)
	return models.ExecutionAck{Ticket: "T" + in.Pair, FillPrice: 1.1001}, nil
}

func (b *fakeBroker) ClosePosition(_ context.Context, ticket string) error {
	b.mu.Lock()
	defer b.mu.Unlock()
	b.closeTry++
	if b.closeErr != nil {
		return b.closeErr
	}
	b.closed = append(b.closed, ticket)
	return nil
}

func (b *fakeBroker) ListOpenPositions(context.Context) ([]models.Position, error) {
	b.mu.Lock()
	defer b.mu.Unlock()
	return append([]models.Position(nil), b.positions...), b.posErr
}

func (b *fakeBroker) Account(context.Context) (models.Account, error) {
	return b.account, nil
}

func (b *fakeBroker) ServerTime(context.Context) (time.Time, error) {
	return b.server, b.serverErr
}

type fakeJournal struct {
	mu      sync.Mutex
	events  []models.TradeEvent
	signals int
}

func (j *fakeJournal) RecordEvent(_ context.Context, ev models.TradeEvent) error {
	j.mu.Lock()
	defer j.mu.Unlock()
	j.events = append(j.events, ev)
	return nil
}

func (j *fakeJournal) RecordSignals(_ context.Context, _ string, s []models.Signal) error {
	j.mu.Lock()
	defer j.mu.Unlock()
	j.signals += len(s)
	return nil
}

func (j *fakeJournal) Events(context.Context, string, time.Time, time.Time, int) ([]models.TradeEvent, error) {
	return nil, nil
}

func (j *fakeJournal) Health(context.Context) error { return nil }
func (j *fakeJournal) Close() error                 { return nil }

func (j *fakeJournal) Kinds() []models.TradeEventKind {
	j.mu.Lock()
	defer j.mu.Unlock()
	out := make([]models.TradeEventKind, len(j.events))
	for i, ev := range j.events {
		out[i] = ev.Kind
	}
	return out
}

type fakeNotifier struct {
	mu   sync.Mutex
	msgs []string
	err  error
}

func (n *fakeNotifier) Notify(_ context.Context, msg string) error {
	n.mu.Lock()
	defer n.mu.Unlock()
	n.msgs = append(n.msgs, msg)
	return n.err
}

type memStateStore struct {
	mu    sync.Mutex
	state *models.RiskState
}

func (s *memStateStore) Load(context.Context) (*models.RiskState, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.state == nil {
		return nil, nil
	}
	c := s.state.Clone()
	return &c, nil
}

func (s *memStateStore) Save(_ context.Context, st *models.RiskState) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	c := st.Clone()
	s.state = &c
	return nil
}

type pipValue struct {
	v   float64
	err error
}

func (p pipValue) GetPipValue(context.Context, string, float64) (float64, error) { return p.v, p.err }

type staticNews []models.NewsEvent

func (n staticNews) Upsert(models.NewsEvent) {}

func (n staticNews) HighImpactNear(currency string, _ time.Time, _ time.Duration) []models.NewsEvent {
	var out []models.NewsEvent
	for _, ev := range n {
		if ev.Currency == currency {
			out = append(out, ev)
		}
	}
	return out
}

type staticQuotes map[string]models.Quote

func (q staticQuotes) Latest(pair string) (models.Quote, bool) {
	v, ok := q[pair]
	return v, ok
}

func setupEval(pair string, dir models.Direction) Evaluation {
	sig := models.Signal{
		Direction: dir, Strategy: "Market Structure Bullish", Pair: pair,
		EntryPrice: 1.1000, StopLoss: 1.0980, TakeProfit: 1.1040, Confidence: 85, Trend: models.TrendBullish,
	}
	if dir == models.Sell {
		sig.StopLoss, sig.TakeProfit, sig.Trend = 1.1020, 1.0960, models.TrendBearish
	}
	return Evaluation{
		Pair: pair, Signal: sig, HasSignal: true, Analyzer: "market_structure",
		Report: models.StructureReport{
			Trend:      sig.Trend,
			Strongest:  &models.OrderBlock{Index: 78},
			Inducement: &models.Inducement{SweepIndex: 82},
		},
		HasReport:    true,
		Structure:    sig,
		HasStructure: true,
	}
}

type harness struct {
	o        *Orchestrator
	risk     *risk.Manager
	store    *memStateStore
	broker   *fakeBroker
	signals  *fakeSignals
	journal  *fakeJournal
	notifier *fakeNotifier
	clock    *clock
}

func newHarness(t *testing.T, mutate func(*OrchestratorConfig, *risk.Config), pv pipValue, opts ...OrchestratorOption) *harness {
	t.Helper()
	h := &harness{
		store:    &memStateStore{},
		broker:   &fakeBroker{server: monday, account: models.Account{Balance: 1000, Equity: 1000}},
		signals:  &fakeSignals{evals: map[string]Evaluation{}, evalErr: map[string]error{}},
		journal:  &fakeJournal{},
		notifier: &fakeNotifier{},
		clock:    &clock{t: monday},
	}
	cfg := DefaultOrchestratorConfig()
	cfg.Pairs = []string{"EURUSD", "GBPUSD"}
	cfg.RetryBackoff = time.Millisecond
	rcfg := risk.DefaultConfig()
	if mutate != nil {
		mutate(&cfg, &rcfg)
	}
	rm, err := risk.NewManager(context.Background(), rcfg, h.store, pv, logger.NewNop(), risk.WithClock(h.clock.Now))
	require.NoError(t, err)
	h.risk = rm
	rec := NewEventRecorder(h.journal, nil, h.notifier, metrics.Nop{}, logger.NewNop())
	opts = append(opts, WithOrchestratorClock(h.clock.Now))
	h.o = NewOrchestrator(cfg, h.signals, rm, h.broker, rec, metrics.Nop{}, logger.NewNop(), opts...)
	return h
}

func TestRunCycle_OpensAdmittedSignal(t *testing.T) {
	h := newHarness(t, nil, pipValue{v: 10})
	h.signals.evals["EURUSD"] = setupEval("EURUSD", models.Buy)
	ctx := context.Background()

	rep := h.o.RunCycle(ctx)

	assert.Empty(t, rep.Gated)
	require.Len(t, h.broker.opened, 1)
	in := h.broker.opened[0]
	assert.Equal(t, "EURUSD", in.Pair)
	assert.Equal(t, models.Buy, in.Direction)
	assert.Equal(t, 0.1, in.LotSize)
	assert.Equal(t, 17.0, in.StopLossPips)
	assert.Equal(t, 40.0, in.TakeProfitPips)
	assert.NotEmpty(t, in.ID)

	require.Len(t, rep.Candidates, 2)
	assert.Equal(t, OutcomeOpened, rep.Candidates[0].Outcome)
	assert.Equal(t, 9, rep.Candidates[0].Passed)
	assert.True(t, rep.Candidates[0].Admitted)
	assert.Equal(t, OutcomeNoSignal, rep.Candidates[1].Outcome)

	assert.False(t, h.risk.CanTradePairToday(ctx, "EURUSD"))
	assert.Equal(t, 1, h.risk.Snapshot(ctx).DailyTradeCount)
	assert.Equal(t, []models.TradeEventKind{models.EventOpened}, h.journal.Kinds())
	assert.Equal(t, "TEURUSD", h.journal.events[0].Ticket)
	assert.Equal(t, 1, h.journal.signals)
	assert.Len(t, h.notifier.msgs, 1)
	assert.Equal(t, []string{"EURUSD"}, h.o.CycleTrades())

	last, ok := h.o.LastReport()
	require.True(t, ok)
	assert.Equal(t, rep.CycleID, last.CycleID)

	// the pair is no longer a candidate
	h.o.RunCycle(ctx)
	require.Len(t, h.signals.generated, 2)
	assert.Equal(t, []string{"GBPUSD"}, h.signals.generated[1])
	assert.Len(t, h.broker.opened, 1)
}

func TestRunCycle_Gated(t *testing.T) {
	h := newHarness(t, nil, pipValue{v: 10})
	h.broker.server = time.Date(2024, 3, 9, 12, 0, 0, 0, time.UTC)

	rep := h.o.RunCycle(context.Background())

	assert.Equal(t, "weekend", rep.Gated)
	assert.Empty(t, h.signals.generated)
}

func TestRunCycle_ServerTimeFallsBackToLocalClock(t *testing.T) {
	h := newHarness(t, nil, pipValue{v: 10})
	h.broker.serverErr = errors.New("terminal offline")
	h.clock.t = time.Date(2024, 3, 8, 19, 0, 0, 0, time.UTC)

	rep := h.o.RunCycle(context.Background())

	assert.Equal(t, h.clock.t, rep.ServerTime)
	assert.NotEmpty(t, rep.Gated)
}

func TestRunCycle_ExecutionFailureLeavesStateUntouched(t *testing.T) {
	h := newHarness(t, nil, pipValue{v: 10})
	h.broker.openErr = errors.New("requote")
	h.signals.evals["EURUSD"] = setupEval("EURUSD", models.Buy)
	ctx := context.Background()

	rep := h.o.RunCycle(ctx)

	assert.Equal(t, OutcomeOpenFailed, rep.Candidates[0].Outcome)
	assert.True(t, h.risk.CanTradePairToday(ctx, "EURUSD"))
	assert.Zero(t, h.risk.Snapshot(ctx).DailyTradeCount)
	require.Len(t, h.journal.events, 1)
	assert.Equal(t, models.EventOpenFailed, h.journal.events[0].Kind)
	assert.Contains(t, h.journal.events[0].Reason, domrepo.ErrExecution.Error())
	assert.Len(t, h.notifier.msgs, 1)
	assert.Empty(t, h.o.CycleTrades())
}

func TestRunCycle_ShadowMode(t *testing.T) {
	h := newHarness(t, func(c *OrchestratorConfig, _ *risk.Config) { c.ShadowMode = true }, pipValue{v: 10})
	h.signals.evals["EURUSD"] = setupEval("EURUSD", models.Buy)
	ctx := context.Background()

	rep := h.o.RunCycle(ctx)

	assert.Equal(t, OutcomeShadow, rep.Candidates[0].Outcome)
	assert.Empty(t, h.broker.opened)
	assert.Equal(t, []models.TradeEventKind{models.EventShadow}, h.journal.Kinds())
	assert.Zero(t, h.risk.Snapshot(ctx).DailyTradeCount)
	require.Len(t, h.notifier.msgs, 1)
	assert.Contains(t, h.notifier.msgs[0], "[shadow]")
}

func TestRunCycle_ChecklistRejects(t *testing.T) {
	h := newHarness(t, func(c *OrchestratorConfig, _ *risk.Config) { c.Checklist.MinPasses = 10 }, pipValue{v: 10})
	h.signals.evals["EURUSD"] = setupEval("EURUSD", models.Buy)

	rep := h.o.RunCycle(context.Background())

	cand := rep.Candidates[0]
	assert.Equal(t, OutcomeRejected, cand.Outcome)
	assert.False(t, cand.Admitted)
	assert.Equal(t, 9, cand.Passed)
	require.Len(t, cand.Conditions, 10)
	assert.Equal(t, CondSpread, cand.Conditions[9].Name)
	assert.False(t, cand.Conditions[9].Passed)
	assert.Empty(t, h.broker.opened)
}

func TestRunCycle_NewsAndSpread(t *testing.T) {
	news := staticNews{{Currency: "USD", Title: "NFP", Impact: "high", At: monday}}
	quotes := staticQuotes{"EURUSD": {Pair: "EURUSD", Bid: 1.1000, Ask: 1.1001, At: monday}}
	h := newHarness(t, nil, pipValue{v: 10}, WithNewsCalendar(news), WithQuoteSource(quotes))
	h.signals.evals["EURUSD"] = setupEval("EURUSD", models.Buy)

	rep := h.o.RunCycle(context.Background())

	byName := map[string]models.ConditionResult{}
	for _, c := range rep.Candidates[0].Conditions {
		byName[c.Name] = c
	}
	assert.False(t, byName[CondNoNews].Passed)
	assert.Contains(t, byName[CondNoNews].Detail, "NFP")
	assert.True(t, byName[CondSpread].Passed)
	assert.Equal(t, OutcomeOpened, rep.Candidates[0].Outcome)
}

func TestRunCycle_SizingFailureBlocksSubmission(t *testing.T) {
	h := newHarness(t, nil, pipValue{err: errors.New("no quote")})
	h.signals.evals["EURUSD"] = setupEval("EURUSD", models.Buy)

	rep := h.o.RunCycle(context.Background())

	assert.Equal(t, OutcomeSizingFailed, rep.Candidates[0].Outcome)
	assert.True(t, rep.Candidates[0].Admitted)
	assert.Empty(t, h.broker.opened)
}

func TestRunCycle_BalanceBelowFloor(t *testing.T) {
	h := newHarness(t, nil, pipValue{v: 10})
	h.broker.account = models.Account{Balance: 15, Equity: 15}
	h.signals.evals["EURUSD"] = setupEval("EURUSD", models.Buy)

	rep := h.o.RunCycle(context.Background())

	assert.Equal(t, OutcomeNoSize, rep.Candidates[0].Outcome)
	assert.Empty(t, h.broker.opened)
}

func TestRunCycle_ClosesReversals(t *testing.T) {
	h := newHarness(t, nil, pipValue{v: 10})
	h.broker.positions = []models.Position{
		{Ticket: "1", Pair: "EURUSD", Direction: models.Buy, LotSize: 0.1, Profit: -12.5},
		{Ticket: "2", Pair: "GBPUSD", Direction: models.Buy, LotSize: 0.1, Profit: 4},
		{Ticket: "3", Pair: "USDJPY", Direction: models.Buy, LotSize: 0.1, Profit: 1},
	}
	h.signals.evals["EURUSD"] = setupEval("EURUSD", models.Sell)
	ranging := Evaluation{Pair: "GBPUSD", Report: models.StructureReport{Trend: models.TrendRanging}, HasReport: true}
	h.signals.evals["GBPUSD"] = ranging
	h.signals.evals["USDJPY"] = setupEval("USDJPY", models.Buy)
	ctx := context.Background()

	rep := h.o.RunCycle(ctx)

	assert.Equal(t, []string{"1", "2"}, rep.Closed)
	assert.Equal(t, []string{"1", "2"}, h.broker.closed)
	snap := h.risk.Snapshot(ctx)
	assert.Equal(t, -8.5, snap.DailyPnL)
	assert.Equal(t, -12.5, snap.PairPnL["EURUSD"])
	kinds := h.journal.Kinds()
	require.GreaterOrEqual(t, len(kinds), 2)
	assert.Equal(t, models.EventClosed, kinds[0])
	assert.Equal(t, models.EventClosed, kinds[1])
}

func TestRunCycle_FallbackSignalDoesNotClose(t *testing.T) {
	h := newHarness(t, nil, pipValue{v: 10})
	h.broker.positions = []models.Position{{Ticket: "1", Pair: "EURUSD", Direction: models.Buy, LotSize: 0.1}}
	ev := setupEval("EURUSD", models.Buy)
	ev.HasStructure = false
	ev.Signal = models.Signal{Direction: models.Sell, Strategy: "RSI Fallback", Pair: "EURUSD",
		EntryPrice: 1.1000, StopLoss: 1.1020, TakeProfit: 1.0960, Confidence: 60}
	ev.Analyzer = "rsi_fallback"
	h.signals.evals["EURUSD"] = ev

	rep := h.o.RunCycle(context.Background())

	assert.Empty(t, rep.Closed)
	assert.Empty(t, h.broker.closed)
}

func TestReversalReason(t *testing.T) {
	buy := models.Position{Pair: "EURUSD", Direction: models.Buy}
	bullish := models.StructureReport{Trend: models.TrendBullish}
	structureSell := setupEval("EURUSD", models.Sell).Signal
	structureBuy := setupEval("EURUSD", models.Buy).Signal

	cases := []struct {
		name  string
		ev    Evaluation
		close bool
	}{
		{
			name: "rsi fallback sell with bullish structure",
			ev: Evaluation{Report: bullish, HasReport: true, Signal: structureSell, HasSignal: true, Analyzer: "rsi_fallback",
				Structure: structureBuy, HasStructure: true},
		},
		{
			name: "rsi fallback sell without structure signal",
			ev:   Evaluation{Report: bullish, HasReport: true, Signal: structureSell, HasSignal: true, Analyzer: "rsi_fallback"},
		},
		{
			name: "structure reversal hidden behind a fib buy",
			ev: Evaluation{Report: bullish, HasReport: true, Signal: structureBuy, HasSignal: true, Analyzer: "structure_fib",
				Structure: structureSell, HasStructure: true},
			close: true,
		},
		{
			name:  "ranging",
			ev:    Evaluation{Report: models.StructureReport{Trend: models.TrendRanging}, HasReport: true},
			close: true,
		},
		{
			name: "structure agrees",
			ev:   Evaluation{Report: bullish, HasReport: true, Structure: structureBuy, HasStructure: true},
		},
	}
	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			reason := reversalReason(buy, tc.ev)
			assert.Equal(t, tc.close, reason != "", reason)
		})
	}
}

func TestRunCycle_CloseRetriedThenReported(t *testing.T) {
	h := newHarness(t, nil, pipValue{v: 10})
	h.broker.positions = []models.Position{{Ticket: "1", Pair: "EURUSD", Direction: models.Buy}}
	h.broker.closeErr = errors.New("market closed")
	h.signals.evals["EURUSD"] = setupEval("EURUSD", models.Sell)

	rep := h.o.RunCycle(context.Background())

	assert.Empty(t, rep.Closed)
	assert.Equal(t, 3, h.broker.closeTry)
	assert.Equal(t, models.EventCloseFailed, h.journal.Kinds()[0])
}

func TestRunCycle_ReversalEvaluateErrorSkipsPosition(t *testing.T) {
	h := newHarness(t, nil, pipValue{v: 10})
	h.broker.positions = []models.Position{{Ticket: "1", Pair: "EURUSD", Direction: models.Buy}}
	h.signals.evalErr["EURUSD"] = domrepo.ErrTransient

	rep := h.o.RunCycle(context.Background())

	assert.Empty(t, h.broker.closed)
	assert.Contains(t, rep.Errors, "EURUSD")
}

func TestRunCycle_DailyCap(t *testing.T) {
	h := newHarness(t, func(_ *OrchestratorConfig, r *risk.Config) { r.MaxDailyTrades = 1 }, pipValue{v: 10})
	ctx := context.Background()
	require.NoError(t, h.risk.RecordTradeOpened(ctx, "USDJPY"))

	rep := h.o.RunCycle(ctx)

	assert.Equal(t, "daily trade cap reached", rep.Warning)
	assert.Empty(t, h.signals.generated)
}

func TestRunCycle_MaxOpenTrades(t *testing.T) {
	h := newHarness(t, nil, pipValue{v: 10})
	for _, p := range []string{"AUDUSD", "USDCAD", "USDCHF", "NZDUSD", "EURGBP"} {
		h.broker.positions = append(h.broker.positions, models.Position{Ticket: p, Pair: p, Direction: models.Buy})
	}

	rep := h.o.RunCycle(context.Background())

	assert.Contains(t, rep.Warning, "limit 5")
	assert.Empty(t, h.signals.generated)
	assert.Empty(t, h.broker.closed)
}

func TestRunCycle_PairLossLimitExcludesPair(t *testing.T) {
	h := newHarness(t, nil, pipValue{v: 10})
	ctx := context.Background()
	// 2% of 1000
	require.NoError(t, h.risk.RecordTradeClosed(ctx, -20, "GBPUSD"))

	h.o.RunCycle(ctx)

	require.Len(t, h.signals.generated, 1)
	assert.Equal(t, []string{"EURUSD"}, h.signals.generated[0])
}

func TestRunCycle_RecoversPanic(t *testing.T) {
	h := newHarness(t, nil, pipValue{v: 10})
	h.signals.explode = true

	var rep models.CycleReport
	assert.NotPanics(t, func() { rep = h.o.RunCycle(context.Background()) })
	assert.Contains(t, rep.Warning, "analyzer exploded")
	require.Len(t, h.notifier.msgs, 1)
	assert.Contains(t, h.notifier.msgs[0], "panicked")
	assert.False(t, rep.FinishedAt.IsZero())
}

func TestCheckDayBoundary(t *testing.T) {
	h := newHarness(t, nil, pipValue{v: 10})
	h.signals.evals["EURUSD"] = setupEval("EURUSD", models.Buy)
	ctx := context.Background()
	h.o.RunCycle(ctx)
	require.False(t, h.risk.CanTradePairToday(ctx, "EURUSD"))

	assert.False(t, h.o.CheckDayBoundary(ctx, monday.Add(time.Hour)))

	// the broker rolls past midnight before the local clock does
	next := time.Date(2024, 3, 5, 0, 1, 0, 0, time.UTC)
	assert.True(t, h.o.CheckDayBoundary(ctx, next))
	assert.False(t, h.o.CheckDayBoundary(ctx, next.Add(time.Minute)))

	assert.True(t, h.risk.CanTradePairToday(ctx, "EURUSD"))
	assert.Equal(t, "2024-03-05", h.risk.Date())
	assert.Empty(t, h.o.CycleTrades())

	resets := 0
	for _, k := range h.journal.Kinds() {
		if k == models.EventDayReset {
			resets++
		}
	}
	assert.Equal(t, 1, resets)
}

func TestCheckDayBoundary_UsesBrokerOffset(t *testing.T) {
	h := newHarness(t, nil, pipValue{v: 10})
	ctx := context.Background()

	// 22:00 UTC on Monday is already Tuesday on a UTC+3 broker
	broker := time.Date(2024, 3, 5, 1, 0, 0, 0, time.FixedZone("EET", 3*60*60))
	require.Equal(t, "2024-03-04", broker.UTC().Format(models.DateLayout))

	assert.True(t, h.o.CheckDayBoundary(ctx, broker))
	assert.Equal(t, "2024-03-05", h.risk.Date())
}

func TestRun_StopsOnCancel(t *testing.T) {
	h := newHarness(t, func(c *OrchestratorConfig, _ *risk.Config) { c.Interval = time.Hour }, pipValue{v: 10})
	ctx, cancel := context.WithCancel(context.Background())
	done := make(chan error, 1)
	go func() { done <- h.o.Run(ctx) }()

	require.Eventually(t, func() bool {
		_, ok := h.o.LastReport()
		return ok
	}, time.Second, 5*time.Millisecond)
	cancel()

	select {
	case err := <-done:
		assert.NoError(t, err)
	case <-time.After(time.Second):
		t.Fatal("Run did not stop")
	}
}

func TestRun_CycleLease(t *testing.T) {
	lock := pkgcache.NewMemoryCache()
	defer lock.Close()

	held, err := lock.TryLock(context.Background(), "cycle", time.Hour)
	require.NoError(t, err)
	require.True(t, held)

	h := newHarness(t, func(c *OrchestratorConfig, _ *risk.Config) { c.Interval = 20 * time.Millisecond },
		pipValue{v: 10}, WithCycleLock(lock, "cycle"))
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()
	go func() { _ = h.o.Run(ctx) }()

	assert.Never(t, func() bool {
		_, ok := h.o.LastReport()
		return ok
	}, 100*time.Millisecond, 10*time.Millisecond, "another engine holds the lease")

	require.NoError(t, lock.Unlock(context.Background(), "cycle"))
	require.Eventually(t, func() bool {
		_, ok := h.o.LastReport()
		return ok
	}, time.Second, 5*time.Millisecond)
}
