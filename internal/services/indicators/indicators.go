// Package indicators holds pure technical indicator functions over price slices.
// Every function returns a slice the length of its input and never yields NaN:
// positions without a full window are 0.
package indicators

import (
	"math"

	"gonum.org/v1/gonum/floats"
	"gonum.org/v1/gonum/stat"

	"FXEngine/internal/domain/models"
)

const (
	DefaultRSIPeriod  = 14
	DefaultATRPeriod  = 14
	DefaultMACDFast   = 12
	DefaultMACDSlow   = 26
	DefaultMACDSignal = 9
)

// RSI computes the relative strength index with Wilder smoothing seeded by the
// simple mean of the first period changes. A flat window reads 0 and a window
// without losses reads 100.
func RSI(closes []float64, period int) []float64 {
	out := make([]float64, len(closes))
	if period <= 0 || len(closes) <= period {
		return out
	}

	var gain, loss float64
	for i := 1; i <= period; i++ {
		g, l := split(closes[i] - closes[i-1])
		gain += g
		loss += l
	}
	avgGain := gain / float64(period)
	avgLoss := loss / float64(period)
	out[period] = rsiValue(avgGain, avgLoss)

	p := float64(period)
	for i := period + 1; i < len(closes); i++ {
		g, l := split(closes[i] - closes[i-1])
		avgGain = (avgGain*(p-1) + g) / p
		avgLoss = (avgLoss*(p-1) + l) / p
		out[i] = rsiValue(avgGain, avgLoss)
	}
	return out
}

func split(change float64) (gain, loss float64) {
	if change > 0 {
		return change, 0
	}
	return 0, -change
}

func rsiValue(avgGain, avgLoss float64) float64 {
	switch {
	case avgGain == 0 && avgLoss == 0:
		return 0
	case avgLoss == 0:
		return 100
	default:
		rs := avgGain / avgLoss
		return 100 - 100/(1+rs)
	}
}

// EMA is an exponential moving average seeded with the first value
// (no bias adjustment).
func EMA(values []float64, span int) []float64 {
	out := make([]float64, len(values))
	if len(values) == 0 || span <= 0 {
		return out
	}
	alpha := 2 / (float64(span) + 1)
	out[0] = values[0]
	for i := 1; i < len(values); i++ {
		out[i] = alpha*values[i] + (1-alpha)*out[i-1]
	}
	return out
}

// MACDResult bundles the three MACD lines.
type MACDResult struct {
	MACD      []float64
	Signal    []float64
	Histogram []float64
}

// MACD returns fast EMA minus slow EMA, its signal EMA and the histogram.
func MACD(closes []float64, fast, slow, signal int) MACDResult {
	fastEMA := EMA(closes, fast)
	slowEMA := EMA(closes, slow)

	line := make([]float64, len(closes))
	floats.SubTo(line, fastEMA, slowEMA)
	sig := EMA(line, signal)
	hist := make([]float64, len(closes))
	floats.SubTo(hist, line, sig)

	return MACDResult{MACD: line, Signal: sig, Histogram: hist}
}

// TrueRange of bar i; the first bar uses high minus low.
func TrueRange(bars models.BarSeries) []float64 {
	out := make([]float64, len(bars))
	for i, b := range bars {
		tr := b.High - b.Low
		if i > 0 {
			prev := bars[i-1].Close
			tr = math.Max(tr, math.Max(math.Abs(b.High-prev), math.Abs(b.Low-prev)))
		}
		out[i] = tr
	}
	return out
}

// ATR is the rolling simple mean of true range.
func ATR(bars models.BarSeries, period int) []float64 {
	return RollingMean(TrueRange(bars), period)
}

// RollingMean returns the mean of the window ending at each index.
func RollingMean(values []float64, window int) []float64 {
	return rolling(values, window, func(w []float64) float64 { return stat.Mean(w, nil) })
}

// RollingMax returns the max of the window ending at each index.
func RollingMax(values []float64, window int) []float64 {
	return rolling(values, window, floats.Max)
}

// RollingMin returns the min of the window ending at each index.
func RollingMin(values []float64, window int) []float64 {
	return rolling(values, window, floats.Min)
}

func rolling(values []float64, window int, fn func([]float64) float64) []float64 {
	out := make([]float64, len(values))
	if window <= 0 {
		return out
	}
	for i := window - 1; i < len(values); i++ {
		out[i] = fn(values[i-window+1 : i+1])
	}
	return out
}

// Level is one Fibonacci retracement ratio and its price.
type Level struct {
	Ratio float64
	Price float64
}

// FibonacciRatios are the standard retracement ratios, ascending.
var FibonacciRatios = []float64{0, 0.236, 0.382, 0.5, 0.618, 0.786, 1}

// FibonacciLevels interpolates each ratio linearly from low towards high.
func FibonacciLevels(low, high float64) []Level {
	span := high - low
	out := make([]Level, len(FibonacciRatios))
	for i, r := range FibonacciRatios {
		out[i] = Level{Ratio: r, Price: low + r*span}
	}
	out[len(out)-1].Price = high
	return out
}

// FibonacciPrice returns the price at ratio between low and high.
func FibonacciPrice(low, high, ratio float64) float64 {
	return low + ratio*(high-low)
}

// Last returns the final element or 0 for an empty slice.
func Last(values []float64) float64 {
	if len(values) == 0 {
		return 0
	}
	return values[len(values)-1]
}
