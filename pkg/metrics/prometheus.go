package metrics

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

// Recorder implements domain.repository.Metrics using Prometheus.
type Recorder struct {
	cycles      *prometheus.CounterVec
	signals     *prometheus.CounterVec
	trades      *prometheus.CounterVec
	skips       *prometheus.CounterVec
	errorsTotal *prometheus.CounterVec
	dailyTrades prometheus.Gauge
	dailyPnL    prometheus.Gauge
	lastPrice   *prometheus.GaugeVec
	latency     *prometheus.HistogramVec
}

// New creates a recorder registered with the default registry.
func New() *Recorder {
	return NewWithRegistry(prometheus.DefaultRegisterer)
}

// NewWithRegistry registers the collectors with reg.
func NewWithRegistry(reg prometheus.Registerer) *Recorder {
	f := promauto.With(reg)
	return &Recorder{
		cycles: f.NewCounterVec(
			prometheus.CounterOpts{
				Name: "fxengine_cycles_total",
				Help: "Orchestrator cycles by outcome",
			},
			[]string{"outcome"},
		),
		signals: f.NewCounterVec(
			prometheus.CounterOpts{
				Name: "fxengine_signals_total",
				Help: "Signals produced by pair and analyzer",
			},
			[]string{"pair", "strategy"},
		),
		trades: f.NewCounterVec(
			prometheus.CounterOpts{
				Name: "fxengine_trades_total",
				Help: "Trade actions by pair",
			},
			[]string{"pair", "action"},
		),
		skips: f.NewCounterVec(
			prometheus.CounterOpts{
				Name: "fxengine_pair_skips_total",
				Help: "Pairs skipped in a signal pass",
			},
			[]string{"pair", "reason"},
		),
		errorsTotal: f.NewCounterVec(
			prometheus.CounterOpts{
				Name: "fxengine_errors_total",
				Help: "Total number of errors encountered",
			},
			[]string{"type"},
		),
		dailyTrades: f.NewGauge(prometheus.GaugeOpts{
			Name: "fxengine_daily_trades",
			Help: "Trades opened in the current trading day",
		}),
		dailyPnL: f.NewGauge(prometheus.GaugeOpts{
			Name: "fxengine_daily_pnl",
			Help: "Realised PnL in the current trading day",
		}),
		lastPrice: f.NewGaugeVec(
			prometheus.GaugeOpts{
				Name: "fxengine_last_price",
				Help: "Last recorded mid price for a pair",
			},
			[]string{"pair"},
		),
		latency: f.NewHistogramVec(
			prometheus.HistogramOpts{
				Name:    "fxengine_operation_duration_seconds",
				Help:    "Duration of operations in seconds",
				Buckets: prometheus.DefBuckets,
			},
			[]string{"operation"},
		),
	}
}

func (r *Recorder) RecordCycle(outcome string) {
	r.cycles.WithLabelValues(outcome).Inc()
}

func (r *Recorder) RecordSignal(pair, strategy string) {
	r.signals.WithLabelValues(pair, strategy).Inc()
}

func (r *Recorder) RecordTrade(pair, action string) {
	r.trades.WithLabelValues(pair, action).Inc()
}

func (r *Recorder) RecordSkip(pair, reason string) {
	r.skips.WithLabelValues(pair, reason).Inc()
}

// RecordError records an error occurrence.
func (r *Recorder) RecordError(kind string) {
	r.errorsTotal.WithLabelValues(kind).Inc()
}

func (r *Recorder) RecordDailyState(trades int, pnl float64) {
	r.dailyTrades.Set(float64(trades))
	r.dailyPnL.Set(pnl)
}

// RecordLastPrice records the last price for a pair.
func (r *Recorder) RecordLastPrice(pair string, price float64) {
	r.lastPrice.WithLabelValues(pair).Set(price)
}

// RecordLatency records operation latency in seconds.
func (r *Recorder) RecordLatency(op string, seconds float64) {
	r.latency.WithLabelValues(op).Observe(seconds)
}

// Nop discards everything.
type Nop struct{}

func (Nop) RecordCycle(string)             {}
func (Nop) RecordSignal(string, string)    {}
func (Nop) RecordTrade(string, string)     {}
func (Nop) RecordSkip(string, string)      {}
func (Nop) RecordError(string)             {}
func (Nop) RecordDailyState(int, float64)  {}
func (Nop) RecordLastPrice(string, float64) {}
func (Nop) RecordLatency(string, float64)  {}
