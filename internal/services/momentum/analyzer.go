// Package momentum is the last-resort RSI/MACD analyzer used when neither
// structure analyzer has a setup.
package momentum

import (
	"FXEngine/internal/domain/models"
	"FXEngine/internal/domain/repository"
	"FXEngine/internal/services/indicators"
	"FXEngine/internal/services/pips"
)

const Strategy = "RSI Momentum"

type Config struct {
	RSIPeriod   int     `yaml:"rsi_period"`
	Oversold    float64 `yaml:"oversold"`
	Overbought  float64 `yaml:"overbought"`
	ATRPeriod   int     `yaml:"atr_period"`
	StopATR     float64 `yaml:"stop_atr"`
	RewardRatio float64 `yaml:"reward_ratio"`
	RequireMACD bool    `yaml:"require_macd"`
	Confidence  float64 `yaml:"confidence"`
}

func DefaultConfig() Config {
	return Config{
		RSIPeriod:   indicators.DefaultRSIPeriod,
		Oversold:    30,
		Overbought:  70,
		ATRPeriod:   indicators.DefaultATRPeriod,
		StopATR:     1,
		RewardRatio: 3,
		RequireMACD: true,
		Confidence:  60,
	}
}

type Analyzer struct {
	cfg Config
}

func New(cfg Config) *Analyzer {
	d := DefaultConfig()
	if cfg.RSIPeriod <= 0 {
		cfg.RSIPeriod = d.RSIPeriod
	}
	if cfg.Oversold == 0 && cfg.Overbought == 0 {
		cfg.Oversold, cfg.Overbought = d.Oversold, d.Overbought
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
	return &Analyzer{cfg: cfg}
}

func (a *Analyzer) Name() string { return "rsi_fallback" }

func (a *Analyzer) Timeframes() repository.Roles {
	return repository.Roles{Trend: []repository.Timeframe{repository.TF15m}, Entry: repository.TF15m}
}

func (a *Analyzer) Analyze(pair string, bars models.BarSeries) (models.Signal, bool) {
	if !bars.Sufficient() {
		return models.Signal{}, false
	}
	closes := bars.Closes()
	rsi := indicators.Last(indicators.RSI(closes, a.cfg.RSIPeriod))
	macd := indicators.MACD(closes, indicators.DefaultMACDFast, indicators.DefaultMACDSlow, indicators.DefaultMACDSignal)
	line, signal := indicators.Last(macd.MACD), indicators.Last(macd.Signal)

	var dir models.Direction
	switch {
	case rsi > 0 && rsi < a.cfg.Oversold && (!a.cfg.RequireMACD || line > signal):
		dir = models.Buy
	case rsi > a.cfg.Overbought && (!a.cfg.RequireMACD || line < signal):
		dir = models.Sell
	default:
		return models.Signal{}, false
	}

	atr := indicators.Last(indicators.ATR(bars, a.cfg.ATRPeriod))
	if atr <= 0 {
		return models.Signal{}, false
	}
	entry := bars.Last().Close
	stopDist := a.cfg.StopATR * atr
	targetDist := a.cfg.RewardRatio * atr
	sig := models.Signal{
		Direction:  dir,
		Strategy:   Strategy,
		Pair:       pair,
		EntryPrice: pips.Round(entry, 5),
		Confidence: a.cfg.Confidence,
		Trend:      models.TrendRanging,
		Metadata: map[string]any{
			"rsi_value":   pips.Round(rsi, 2),
			"macd":        line,
			"macd_signal": signal,
			"atr":         atr,
		},
		GeneratedAt: bars.Last().Time,
	}
	if dir == models.Buy {
		sig.StopLoss = pips.Round(entry-stopDist, 5)
		sig.TakeProfit = pips.Round(entry+targetDist, 5)
	} else {
		sig.StopLoss = pips.Round(entry+stopDist, 5)
		sig.TakeProfit = pips.Round(entry-targetDist, 5)
	}
	if !sig.Valid() {
		return models.Signal{}, false
	}
	return sig, true
}
