package usecase

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"sync"
	"time"

	"FXEngine/internal/domain/models"
	domrepo "FXEngine/internal/domain/repository"
	domsvc "FXEngine/internal/domain/service"
	icache "FXEngine/internal/service/cache"
	"FXEngine/internal/service/ratelimit"
	pkgcache "FXEngine/pkg/cache"
	"FXEngine/pkg/logger"
)

const (
	SkipNoData    = "no_data"
	SkipTransient = "transient"
	SkipTimeout   = "timeout"
	SkipError     = "error"
)

type SignalServiceConfig struct {
	Timeframe        domrepo.Timeframe
	Bars             int
	ThrottleInterval time.Duration
	CacheTTL         time.Duration
	CallTimeout      time.Duration
	LKGKey           string
	LKGTTL           time.Duration
}

// Evaluation is the cached per-instrument result of one provider call.
type Evaluation struct {
	Pair      string                 `json:"pair"`
	Signal    models.Signal          `json:"signal"`
	HasSignal bool                   `json:"has_signal"`
	Report    models.StructureReport `json:"report"`
	HasReport bool                   `json:"has_report"`
	Analyzer  string                 `json:"analyzer,omitempty"`
	Bars      int                    `json:"bars"`
	At        time.Time              `json:"at"`

	// Structure is the market structure signal alone, whichever analyzer
	// produced Signal. Open positions are judged against it.
	Structure    models.Signal `json:"structure"`
	HasStructure bool          `json:"has_structure"`
}

// SignalService produces signals for many instruments while keeping provider
// calls spaced out, and falls back to the last complete pass when the
// provider rate limits.
type SignalService struct {
	cfg       SignalServiceConfig
	provider  domrepo.MarketDataProvider
	analyzers []domsvc.SignalAnalyzer
	reporter  domsvc.StructureReporter
	gate      *ratelimit.Gate
	cache     *icache.TTLCache
	mirror    pkgcache.Service
	metrics   domrepo.Metrics
	lgr       *logger.Logger
	now       func() time.Time

	// passMu serialises passes; mu guards the published results only.
	passMu  sync.Mutex
	mu      sync.Mutex
	last    *models.SignalSet
	lastKey string
	lastAt  time.Time
	lkg     *models.SignalSet
}

type SignalServiceOption func(*SignalService)

// WithSignalClock replaces time.Now for result freshness.
func WithSignalClock(now func() time.Time) SignalServiceOption {
	return func(s *SignalService) { s.now = now }
}

// WithLastKnownGoodMirror persists the last complete pass so a restarted
// process can still serve it.
func WithLastKnownGoodMirror(c pkgcache.Service) SignalServiceOption {
	return func(s *SignalService) { s.mirror = c }
}

// NewSignalService runs analyzers in the given order; the first signal wins.
func NewSignalService(cfg SignalServiceConfig, provider domrepo.MarketDataProvider, analyzers []domsvc.SignalAnalyzer,
	reporter domsvc.StructureReporter, gate *ratelimit.Gate, cache *icache.TTLCache, metrics domrepo.Metrics,
	lgr *logger.Logger, opts ...SignalServiceOption) *SignalService {
	if cfg.Bars <= 0 {
		cfg.Bars = 100
	}
	if cfg.Timeframe == "" {
		cfg.Timeframe = domrepo.DefaultTimeframe()
	}
	if cfg.CallTimeout <= 0 {
		cfg.CallTimeout = 10 * time.Second
	}
	if cfg.LKGKey == "" {
		cfg.LKGKey = "signals:last_known_good"
	}
	s := &SignalService{
		cfg:       cfg,
		provider:  provider,
		analyzers: analyzers,
		reporter:  reporter,
		gate:      gate,
		cache:     cache,
		metrics:   metrics,
		lgr:       lgr.With(logger.String("component", "signal_service")),
		now:       time.Now,
	}
	for _, opt := range opts {
		opt(s)
	}
	return s
}

// Restore loads the mirrored last-known-good set, if any.
func (s *SignalService) Restore(ctx context.Context) {
	if s.mirror == nil {
		return
	}
	var set models.SignalSet
	if err := s.mirror.Get(ctx, s.cfg.LKGKey, &set); err != nil {
		if !errors.Is(err, pkgcache.ErrCacheMiss) {
			s.lgr.Warn("restore last known good signals", logger.Error(err))
		}
		return
	}
	s.mu.Lock()
	s.lkg = &set
	s.mu.Unlock()
	s.lgr.Info("restored last known good signals", logger.Int("signals", len(set.Signals)))
}

// GenerateAll evaluates pairs in order. It never returns an error: per-pair
// failures land in Skipped and a rate limit turns into a warning.
func (s *SignalService) GenerateAll(ctx context.Context, pairs []string) models.SignalSet {
	s.passMu.Lock()
	defer s.passMu.Unlock()

	key := strings.Join(pairs, ",")
	now := s.now()
	s.mu.Lock()
	if s.last != nil && s.lastKey == key && now.Sub(s.lastAt) < s.cfg.ThrottleInterval {
		out := cloneSet(*s.last)
		s.mu.Unlock()
		return out
	}
	s.mu.Unlock()

	set := models.SignalSet{GeneratedAt: now}
	complete := true
	for i, pair := range pairs {
		if ctx.Err() != nil {
			set.Warning = "signal pass cancelled"
			complete = false
			break
		}
		ev, err := s.Evaluate(ctx, pair)
		if err == nil {
			if ev.HasSignal {
				set.Signals = append(set.Signals, ev.Signal)
			}
			continue
		}
		if errors.Is(err, domrepo.ErrRateLimited) {
			s.metrics.RecordError("rate_limited")
			s.lgr.Warn("provider rate limited, serving fallback",
				logger.String("pair", pair), logger.Strings("not_attempted", pairs[i:]))
			set = s.fallback(set, pairs[i:])
			complete = false
			break
		}
		if ctx.Err() != nil {
			set.Warning = "signal pass cancelled"
			complete = false
			break
		}
		reason := skipReason(err)
		if set.Skipped == nil {
			set.Skipped = make(map[string]string)
		}
		set.Skipped[pair] = reason
		s.metrics.RecordSkip(pair, reason)
		s.lgr.Warn("pair skipped", logger.String("pair", pair), logger.String("reason", reason), logger.Error(err))
	}

	s.mu.Lock()
	s.last, s.lastKey, s.lastAt = &set, key, now
	var lkg models.SignalSet
	if complete {
		lkg = cloneSet(set)
		s.lkg = &lkg
	}
	out := cloneSet(set)
	s.mu.Unlock()

	if complete {
		s.mirrorLKG(ctx, lkg)
	}
	return out
}

// fallback keeps what this pass already produced and adds last-known-good
// signals for the pairs it never reached. The result is unavailable only when
// there is nothing to serve and no last-known-good set exists.
func (s *SignalService) fallback(set models.SignalSet, unreached []string) models.SignalSet {
	s.mu.Lock()
	lkg := s.lkg
	s.mu.Unlock()

	served := 0
	if lkg != nil {
		for _, p := range unreached {
			if sig, ok := lkg.ForPair(p); ok {
				set.Signals = append(set.Signals, sig)
				served++
			}
		}
	}
	if lkg == nil && len(set.Signals) == 0 {
		set.Unavailable = true
		set.Warning = "signals temporarily unavailable: data provider rate limited"
		return set
	}
	set.Warning = fmt.Sprintf("data provider rate limited: %d pair(s) not evaluated, %d served from last known good",
		len(unreached), served)
	return set
}

func (s *SignalService) mirrorLKG(ctx context.Context, set models.SignalSet) {
	if s.mirror == nil {
		return
	}
	if err := s.mirror.Set(ctx, s.cfg.LKGKey, set, s.cfg.LKGTTL); err != nil {
		s.lgr.Warn("mirror last known good signals", logger.Error(err))
	}
}

// Evaluate returns the cached evaluation for pair or fetches bars through the
// shared gate and runs the analyzers.
func (s *SignalService) Evaluate(ctx context.Context, pair string) (Evaluation, error) {
	if ev, ok := s.Cached(pair); ok {
		return ev, nil
	}

	var bars models.BarSeries
	err := s.gate.Do(ctx, func(ctx context.Context) error {
		cctx, cancel := context.WithTimeout(ctx, s.cfg.CallTimeout)
		defer cancel()
		start := time.Now()
		b, err := s.provider.GetBars(cctx, pair, s.cfg.Timeframe, s.cfg.Bars)
		s.metrics.RecordLatency("get_bars", time.Since(start).Seconds())
		if err != nil {
			return fmt.Errorf("get bars %s: %w", pair, err)
		}
		bars = b
		return nil
	})
	if err != nil {
		return Evaluation{}, err
	}

	ev := Evaluation{Pair: pair, Bars: len(bars), At: s.now()}
	if !bars.Sufficient() {
		s.lgr.Debug("series too short", logger.String("pair", pair), logger.Int("bars", len(bars)))
		s.cache.Set(pair, ev, s.cfg.CacheTTL)
		return ev, nil
	}
	if s.reporter != nil {
		ev.Report, ev.HasReport = s.reporter.Report(bars)
		ev.Structure, ev.HasStructure = s.reporter.Analyze(pair, bars)
	}
	for _, a := range s.analyzers {
		if sig, ok := a.Analyze(pair, bars); ok {
			ev.Signal, ev.HasSignal, ev.Analyzer = sig, true, a.Name()
			s.metrics.RecordSignal(pair, a.Name())
			break
		}
	}
	s.cache.Set(pair, ev, s.cfg.CacheTTL)
	return ev, nil
}

// Cached returns the evaluation for pair only if it is still in the cache.
func (s *SignalService) Cached(pair string) (Evaluation, bool) {
	v, ok := s.cache.Get(pair)
	if !ok {
		return Evaluation{}, false
	}
	ev, ok := v.(Evaluation)
	return ev, ok
}

// Last returns the most recent pass, or the last known good set before the first pass.
func (s *SignalService) Last() (models.SignalSet, bool) {
	s.mu.Lock()
	defer s.mu.Unlock()
	switch {
	case s.last != nil:
		return cloneSet(*s.last), true
	case s.lkg != nil:
		return cloneSet(*s.lkg), true
	default:
		return models.SignalSet{}, false
	}
}

func skipReason(err error) string {
	switch {
	case errors.Is(err, domrepo.ErrNoData):
		return SkipNoData
	case errors.Is(err, domrepo.ErrTransient):
		return SkipTransient
	case errors.Is(err, context.DeadlineExceeded):
		return SkipTimeout
	default:
		return SkipError
	}
}

func cloneSet(s models.SignalSet) models.SignalSet {
	out := s
	if s.Signals != nil {
		out.Signals = append([]models.Signal(nil), s.Signals...)
	}
	if s.Skipped != nil {
		out.Skipped = make(map[string]string, len(s.Skipped))
		for k, v := range s.Skipped {
			out.Skipped[k] = v
		}
	}
	return out
}
