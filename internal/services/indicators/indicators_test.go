package indicators

import (
	"math"
	"math/rand"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"FXEngine/internal/domain/models"
)

func TestRSI(t *testing.T) {
	t.Run("known values", func(t *testing.T) {
		got := RSI([]float64{10, 11, 12, 11, 13, 12, 14}, 3)
		want := []float64{0, 0, 0, 66.666666, 83.333333, 60.606060, 78.333333}
		require.Len(t, got, len(want))
		for i := range want {
			assert.InDelta(t, want[i], got[i], 1e-5, "index %d", i)
		}
	})

	t.Run("flat series reads zero", func(t *testing.T) {
		closes := make([]float64, 30)
		for i := range closes {
			closes[i] = 1.1
		}
		for _, v := range RSI(closes, 14) {
			assert.Equal(t, 0.0, v)
		}
	})

	t.Run("only gains reads 100", func(t *testing.T) {
		closes := make([]float64, 30)
		for i := range closes {
			closes[i] = 1 + float64(i)*0.001
		}
		got := RSI(closes, 14)
		assert.Equal(t, 0.0, got[13])
		for i := 14; i < len(got); i++ {
			assert.Equal(t, 100.0, got[i])
		}
	})

	t.Run("short input", func(t *testing.T) {
		assert.Equal(t, []float64{0, 0, 0}, RSI([]float64{1, 2, 3}, 14))
		assert.Empty(t, RSI(nil, 14))
	})
}

func TestEMA(t *testing.T) {
	got := EMA([]float64{1, 2, 3}, 3)
	assert.InDeltaSlice(t, []float64{1, 1.5, 2.25}, got, 1e-12)
}

func TestMACD(t *testing.T) {
	closes := []float64{1, 2, 3, 4, 5}
	res := MACD(closes, 2, 3, 2)
	require.Len(t, res.MACD, 5)
	assert.Equal(t, 0.0, res.MACD[0])
	assert.Equal(t, 0.0, res.Signal[0])
	for i := range closes {
		assert.InDelta(t, res.MACD[i]-res.Signal[i], res.Histogram[i], 1e-12)
	}
	// rising prices keep the fast EMA above the slow one
	for i := 1; i < len(closes); i++ {
		assert.Greater(t, res.MACD[i], 0.0)
	}
}

func TestATR(t *testing.T) {
	start := time.Date(2024, 1, 1, 0, 0, 0, 0, time.UTC)
	bars := models.BarSeries{
		{Time: start, Open: 1.0, High: 1.2, Low: 0.9, Close: 1.1},
		{Time: start.Add(time.Minute), Open: 1.1, High: 1.15, Low: 1.05, Close: 1.1},
		{Time: start.Add(2 * time.Minute), Open: 1.1, High: 1.4, Low: 1.3, Close: 1.35},
	}
	tr := TrueRange(bars)
	assert.InDeltaSlice(t, []float64{0.3, 0.1, 0.3}, tr, 1e-12)

	atr := ATR(bars, 2)
	assert.InDeltaSlice(t, []float64{0, 0.2, 0.2}, atr, 1e-12)
}

func TestRollingWindows(t *testing.T) {
	v := []float64{3, 1, 4, 1, 5}
	assert.Equal(t, []float64{0, 0, 4, 4, 5}, RollingMax(v, 3))
	assert.Equal(t, []float64{0, 0, 1, 1, 1}, RollingMin(v, 3))
	assert.InDeltaSlice(t, []float64{0, 2, 2.5, 2.5, 3}, RollingMean(v, 2), 1e-12)
	assert.Equal(t, []float64{0, 0, 0, 0, 0}, RollingMax(v, 0))
}

func TestFibonacciLevels(t *testing.T) {
	levels := FibonacciLevels(1.0, 2.0)
	require.Len(t, levels, 7)
	want := map[float64]float64{0: 1, 0.236: 1.236, 0.382: 1.382, 0.5: 1.5, 0.618: 1.618, 0.786: 1.786, 1: 2}
	for _, l := range levels {
		assert.InDelta(t, want[l.Ratio], l.Price, 1e-12)
	}
	assert.InDelta(t, 1.5, FibonacciPrice(1, 2, 0.5), 1e-12)
}

func TestNoNaN(t *testing.T) {
	r := rand.New(rand.NewSource(7))
	start := time.Date(2024, 1, 1, 0, 0, 0, 0, time.UTC)
	bars := make(models.BarSeries, 120)
	price := 1.1
	for i := range bars {
		open := price
		price += (r.Float64() - 0.5) * 0.002
		bars[i] = models.Bar{
			Time: start.Add(time.Duration(i) * time.Minute), Open: open, Close: price,
			High: math.Max(open, price) + 0.0005, Low: math.Min(open, price) - 0.0005, Volume: r.Float64() * 100,
		}
	}
	closes := bars.Closes()
	series := [][]float64{RSI(closes, 14), ATR(bars, 14), RollingMean(closes, 20)}
	m := MACD(closes, 12, 26, 9)
	series = append(series, m.MACD, m.Signal, m.Histogram)
	for _, s := range series {
		for _, v := range s {
			assert.False(t, math.IsNaN(v))
			assert.False(t, math.IsInf(v, 0))
		}
	}
}
