// Package bosfib detects break-of-structure setups whose order block lines up
// with a Fibonacci retracement of the preceding swing, gated by RSI.
package bosfib

import (
	"FXEngine/internal/domain/models"
	"FXEngine/internal/domain/repository"
	"FXEngine/internal/services/indicators"
	"FXEngine/internal/services/pips"
)

const Strategy = "Order Block + RSI + Fibonacci"

// Session is a UTC trading window [StartHour, EndHour).
type Session struct {
	Name      string `yaml:"name"`
	StartHour int    `yaml:"start_hour"`
	EndHour   int    `yaml:"end_hour"`
}

type Config struct {
	Lookback      int       `yaml:"lookback"`
	VolumeWindow  int       `yaml:"volume_window"`
	SwingFrom     int       `yaml:"swing_from"`
	SwingTo       int       `yaml:"swing_to"`
	FibLevels     []float64 `yaml:"fib_levels"`
	RSIPeriod     int       `yaml:"rsi_period"`
	RSIOversold   float64   `yaml:"rsi_oversold"`
	RSIOverbought float64   `yaml:"rsi_overbought"`
	ATRPeriod     int       `yaml:"atr_period"`
	StopATR       float64   `yaml:"stop_atr"`
	RewardRatio   float64   `yaml:"reward_ratio"`
	Confidence    float64   `yaml:"confidence"`
	Sessions      []Session `yaml:"sessions"`
	// Advisory limits, reported but never enforced here.
	MaxDailyTrades int     `yaml:"max_daily_trades"`
	MaxDailyLoss   float64 `yaml:"max_daily_loss"`
}

func DefaultConfig() Config {
	return Config{
		Lookback:      20,
		VolumeWindow:  10,
		SwingFrom:     30,
		SwingTo:       10,
		FibLevels:     []float64{0.382, 0.5, 0.618},
		RSIPeriod:     indicators.DefaultRSIPeriod,
		RSIOversold:   30,
		RSIOverbought: 70,
		ATRPeriod:     indicators.DefaultATRPeriod,
		StopATR:       0.5,
		RewardRatio:   2,
		Confidence:    90,
		Sessions: []Session{
			{Name: "london", StartHour: 7, EndHour: 11},
			{Name: "new_york", StartHour: 12, EndHour: 16},
		},
		MaxDailyTrades: 3,
		MaxDailyLoss:   0.10,
	}
}

type Analyzer struct {
	cfg Config
}

// New fills zero fields from DefaultConfig.
func New(cfg Config) *Analyzer {
	d := DefaultConfig()
	if cfg.Lookback <= 0 {
		cfg.Lookback = d.Lookback
	}
	if cfg.VolumeWindow <= 0 {
		cfg.VolumeWindow = d.VolumeWindow
	}
	if cfg.SwingFrom <= cfg.SwingTo || cfg.SwingTo <= 0 {
		cfg.SwingFrom, cfg.SwingTo = d.SwingFrom, d.SwingTo
	}
	if len(cfg.FibLevels) == 0 {
		cfg.FibLevels = d.FibLevels
	}
	if cfg.RSIPeriod <= 0 {
		cfg.RSIPeriod = d.RSIPeriod
	}
	if cfg.RSIOversold == 0 && cfg.RSIOverbought == 0 {
		cfg.RSIOversold, cfg.RSIOverbought = d.RSIOversold, d.RSIOverbought
	}
	if cfg.ATRPeriod <= 0 {
		cfg.ATRPeriod = d.ATRPeriod
	}
	if cfg.StopATR <= 0 {
		cfg.StopATR = d.StopATR
	}
	if cfg.RewardRatio <= 0 {
		cfg.RewardRatio = d.RewardRatio
	}
	if cfg.Confidence <= 0 {
		cfg.Confidence = d.Confidence
	}
	if len(cfg.Sessions) == 0 {
		cfg.Sessions = d.Sessions
	}
	if cfg.MaxDailyTrades <= 0 {
		cfg.MaxDailyTrades = d.MaxDailyTrades
	}
	if cfg.MaxDailyLoss <= 0 {
		cfg.MaxDailyLoss = d.MaxDailyLoss
	}
	return &Analyzer{cfg: cfg}
}

func (a *Analyzer) Name() string { return "structure_fibonacci" }

func (a *Analyzer) Timeframes() repository.Roles {
	return repository.Roles{Trend: []repository.Timeframe{repository.TF15m}, Entry: repository.TF15m}
}

// Analyze evaluates the buy setup first; a sell is only considered when no buy fires.
func (a *Analyzer) Analyze(pair string, bars models.BarSeries) (models.Signal, bool) {
	if !bars.Sufficient() {
		return models.Signal{}, false
	}
	if sig, ok := a.setup(pair, bars, models.Buy); ok {
		return sig, true
	}
	return a.setup(pair, bars, models.Sell)
}

func (a *Analyzer) setup(pair string, bars models.BarSeries, dir models.Direction) (models.Signal, bool) {
	if !a.breakOfStructure(bars, dir) {
		return models.Signal{}, false
	}
	blockIdx, ok := a.orderBlock(bars, dir)
	if !ok {
		return models.Signal{}, false
	}
	block := bars[blockIdx]

	ratio, entry, ok := a.fibAlignment(bars, block)
	if !ok {
		return models.Signal{}, false
	}

	rsi := indicators.Last(indicators.RSI(bars.Closes(), a.cfg.RSIPeriod))
	if dir == models.Buy && rsi >= a.cfg.RSIOversold {
		return models.Signal{}, false
	}
	if dir == models.Sell && rsi <= a.cfg.RSIOverbought {
		return models.Signal{}, false
	}

	atr := indicators.Last(indicators.ATR(bars, a.cfg.ATRPeriod))
	var stop, target float64
	trend := models.TrendBullish
	if dir == models.Buy {
		stop = block.Low - a.cfg.StopATR*atr
		target = entry + a.cfg.RewardRatio*(entry-stop)
	} else {
		trend = models.TrendBearish
		stop = block.High + a.cfg.StopATR*atr
		target = entry - a.cfg.RewardRatio*(stop-entry)
	}

	sig := models.Signal{
		Direction:  dir,
		Strategy:   Strategy,
		Pair:       pair,
		EntryPrice: pips.Round(entry, 5),
		StopLoss:   pips.Round(stop, 5),
		TakeProfit: pips.Round(target, 5),
		Confidence: a.cfg.Confidence,
		Trend:      trend,
		Metadata: map[string]any{
			"fibonacci_level":   ratio,
			"rsi_value":         pips.Round(rsi, 2),
			"atr":               atr,
			"order_block_index": blockIdx,
			"reward_ratio":      a.cfg.RewardRatio,
			"current_price":     bars.Last().Close,
		},
		GeneratedAt: bars.Last().Time,
	}
	if !sig.Valid() {
		return models.Signal{}, false
	}
	return sig, true
}

// breakOfStructure checks the last bar against the prior Lookback bars.
func (a *Analyzer) breakOfStructure(bars models.BarSeries, dir models.Direction) bool {
	n := len(bars)
	if n < a.cfg.Lookback+1 {
		return false
	}
	prior := bars[n-1-a.cfg.Lookback : n-1]
	last := bars[n-1]
	if dir == models.Buy {
		return last.Bullish() && last.Close > maxHigh(prior)
	}
	return last.Bearish() && last.Close < minLow(prior)
}

// orderBlock returns the most recent opposite-body candle before the break
// whose volume beats the rolling mean ending at that candle.
func (a *Analyzer) orderBlock(bars models.BarSeries, dir models.Direction) (int, bool) {
	n := len(bars)
	meanVol := indicators.RollingMean(bars.Volumes(), a.cfg.VolumeWindow)
	start := n - 1 - a.cfg.Lookback
	if start < a.cfg.VolumeWindow-1 {
		start = a.cfg.VolumeWindow - 1
	}
	for i := n - 2; i >= start; i-- {
		b := bars[i]
		opposite := b.Bearish()
		if dir == models.Sell {
			opposite = b.Bullish()
		}
		if opposite && b.Volume > meanVol[i] {
			return i, true
		}
	}
	return 0, false
}

// fibAlignment returns the first configured ratio whose retracement price of
// the swing lies inside the block.
func (a *Analyzer) fibAlignment(bars models.BarSeries, block models.Bar) (float64, float64, bool) {
	n := len(bars)
	swing := bars[n-a.cfg.SwingFrom : n-a.cfg.SwingTo]
	low, high := minLow(swing), maxHigh(swing)
	for _, r := range a.cfg.FibLevels {
		p := indicators.FibonacciPrice(low, high, r)
		if block.Low <= p && p <= block.High {
			return r, p, true
		}
	}
	return 0, 0, false
}

func maxHigh(bars models.BarSeries) float64 {
	m := bars[0].High
	for _, b := range bars[1:] {
		if b.High > m {
			m = b.High
		}
	}
	return m
}

func minLow(bars models.BarSeries) float64 {
	m := bars[0].Low
	for _, b := range bars[1:] {
		if b.Low < m {
			m = b.Low
		}
	}
	return m
}
