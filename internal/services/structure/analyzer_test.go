package structure

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"FXEngine/internal/domain/models"
)

var t0 = time.Date(2024, 3, 4, 8, 0, 0, 0, time.UTC)

func bar(i int, o, h, l, c float64) models.Bar {
	return models.Bar{Time: t0.Add(time.Duration(i) * time.Minute), Open: o, High: h, Low: l, Close: c, Volume: 100}
}

// bullishSetup: a bearish block candle at 78 confirmed by 79, a breakout at 80,
// and a sweep below the block low at 82 that closes back above it.
func bullishSetup() models.BarSeries {
	var bars models.BarSeries
	for i := 0; i < 75; i++ {
		o := 1.1000 + float64(i)*0.0001
		c := o + 0.00005
		bars = append(bars, bar(i, o, c+0.0001, o-0.0001, c))
	}
	for i := 75; i < 78; i++ {
		bars = append(bars, bar(i, 1.1070, 1.1075, 1.1040, 1.1060))
	}
	bars = append(bars,
		bar(78, 1.1065, 1.1068, 1.1050, 1.1055),
		bar(79, 1.1056, 1.1074, 1.1054, 1.1072),
		bar(80, 1.1072, 1.1102, 1.1070, 1.1100),
		bar(81, 1.1100, 1.1108, 1.1095, 1.1105),
		bar(82, 1.1060, 1.1090, 1.1045, 1.1085),
	)
	for k := 0; k < 17; k++ {
		o := 1.1085 + float64(k)*0.0005
		c := o + 0.0004
		bars = append(bars, bar(83+k, o, c+0.0002, o-0.0002, c))
	}
	return bars
}

func mirror(bars models.BarSeries, k float64) models.BarSeries {
	out := make(models.BarSeries, len(bars))
	for i, b := range bars {
		out[i] = models.Bar{Time: b.Time, Open: k - b.Open, Close: k - b.Close, High: k - b.Low, Low: k - b.High, Volume: b.Volume}
	}
	return out
}

func TestAnalyze_InsufficientBars(t *testing.T) {
	a := New(DefaultConfig())
	bars := bullishSetup()[:49]
	_, ok := a.Analyze("EURUSD", bars)
	assert.False(t, ok)

	rep, ok := a.Report(bars)
	assert.False(t, ok)
	assert.Equal(t, models.TrendUnknown, rep.Trend)
}

func TestAnalyze_BullishSetup(t *testing.T) {
	a := New(DefaultConfig())
	bars := bullishSetup()
	require.Len(t, bars, 100)

	sig, ok := a.Analyze("EURUSD", bars)
	require.True(t, ok)
	assert.Equal(t, models.Buy, sig.Direction)
	assert.Equal(t, StrategyBullish, sig.Strategy)
	assert.Equal(t, "EURUSD", sig.Pair)
	assert.InDelta(t, bars[82].Close, sig.EntryPrice, 1e-9)
	assert.InDelta(t, 1.10482, sig.StopLoss, 1e-9)
	assert.InDelta(t, 1.1091, sig.TakeProfit, 1e-9)
	assert.Equal(t, 85.0, sig.Confidence)
	assert.Equal(t, models.TrendBullish, sig.Trend)
	assert.True(t, sig.Valid())
	assert.Equal(t, 82, sig.Metadata["inducement_sweep_index"])
	assert.Equal(t, 1, sig.Metadata["order_blocks_count"])
	assert.Equal(t, bars[99].Time, sig.GeneratedAt)

	require.NotNil(t, sig.Support)
	assert.InDelta(t, 1.1095, *sig.Support, 1e-9)
	assert.Nil(t, sig.Resistance)
}

func TestAnalyze_BearishMirror(t *testing.T) {
	a := New(DefaultConfig())
	bars := mirror(bullishSetup(), 2.2)

	sig, ok := a.Analyze("EURUSD", bars)
	require.True(t, ok)
	assert.Equal(t, models.Sell, sig.Direction)
	assert.Equal(t, StrategyBearish, sig.Strategy)
	assert.InDelta(t, 2.2-1.1085, sig.EntryPrice, 1e-9)
	assert.InDelta(t, 2.2-1.10482, sig.StopLoss, 1e-9)
	assert.InDelta(t, 2.2-1.1091, sig.TakeProfit, 1e-9)
	assert.True(t, sig.Valid())
}

func TestAnalyze_Deterministic(t *testing.T) {
	a := New(DefaultConfig())
	bars := bullishSetup()
	first, ok1 := a.Analyze("EURUSD", bars)
	second, ok2 := a.Analyze("EURUSD", bars)
	assert.Equal(t, ok1, ok2)
	assert.Equal(t, first, second)
}

func TestReport(t *testing.T) {
	a := New(DefaultConfig())
	rep, ok := a.Report(bullishSetup())
	require.True(t, ok)
	assert.Equal(t, models.TrendBullish, rep.Trend)
	require.NotNil(t, rep.Strongest)
	assert.Equal(t, 78, rep.Strongest.Index)
	require.NotNil(t, rep.Inducement)
	assert.Equal(t, 82, rep.Inducement.SweepIndex)
	assert.InDelta(t, 1.1045, rep.Inducement.SweepPrice, 1e-9)
	assert.NotEmpty(t, rep.FVGs)
}

func TestTrend(t *testing.T) {
	a := New(DefaultConfig())

	t.Run("ranging when flat", func(t *testing.T) {
		var bars models.BarSeries
		for i := 0; i < 60; i++ {
			bars = append(bars, bar(i, 1.1, 1.101, 1.099, 1.1))
		}
		assert.Equal(t, models.TrendRanging, a.Trend(bars))
		assert.Empty(t, a.OrderBlocks(bars, models.TrendRanging))
		_, ok := a.Analyze("EURUSD", bars)
		assert.False(t, ok)
	})

	t.Run("bearish when falling", func(t *testing.T) {
		var bars models.BarSeries
		for i := 0; i < 60; i++ {
			o := 1.2 - float64(i)*0.001
			bars = append(bars, bar(i, o, o+0.0005, o-0.0015, o-0.001))
		}
		assert.Equal(t, models.TrendBearish, a.Trend(bars))
	})
}

func TestStrongest_FirstWinsTie(t *testing.T) {
	blocks := []models.OrderBlock{
		{Index: 3, Strength: 0.002},
		{Index: 5, Strength: 0.001},
		{Index: 9, Strength: 0.002},
	}
	best, ok := Strongest(blocks)
	require.True(t, ok)
	assert.Equal(t, 3, best.Index)

	_, ok = Strongest(nil)
	assert.False(t, ok)
}

func TestOrderBlocks_WindowIncludesConfirmingCandle(t *testing.T) {
	a := New(DefaultConfig())
	bars := bullishSetup()
	// the last possible block candle is n-2; its confirmation is the final bar
	bars[98] = bar(98, 1.1170, 1.1172, 1.1160, 1.1165)
	bars[99] = bar(99, 1.1166, 1.1180, 1.1164, 1.1178)
	blocks := a.OrderBlocks(bars, models.TrendBullish)
	require.NotEmpty(t, blocks)
	assert.Equal(t, 98, blocks[len(blocks)-1].Index)
	assert.Equal(t, 78, blocks[0].Index)
}

func TestFairValueGaps(t *testing.T) {
	bars := models.BarSeries{
		bar(0, 1.0, 1.1, 0.9, 1.05),
		bar(1, 1.05, 1.3, 1.0, 1.25),
		bar(2, 1.25, 1.4, 1.2, 1.35),
		bar(3, 1.35, 1.36, 1.0, 1.05),
		bar(4, 1.05, 1.1, 0.95, 1.0),
	}
	gaps := FairValueGaps(bars)
	require.Len(t, gaps, 2)
	assert.Equal(t, models.Bullish, gaps[0].Type)
	assert.Equal(t, 1, gaps[0].Index)
	assert.InDelta(t, 1.1, gaps[0].GapLow, 1e-12)
	assert.InDelta(t, 1.2, gaps[0].GapHigh, 1e-12)
	assert.InDelta(t, 0.1, gaps[0].Strength, 1e-12)
	assert.Equal(t, models.Bearish, gaps[1].Type)
	assert.Equal(t, 3, gaps[1].Index)
	assert.InDelta(t, 1.1, gaps[1].GapLow, 1e-12)
	assert.InDelta(t, 1.2, gaps[1].GapHigh, 1e-12)
}

func TestMostFrequent(t *testing.T) {
	got := mostFrequent([]float64{1, 2, 2, 3, 3, 4, 5}, 3)
	assert.Equal(t, []float64{2, 3, 1}, got)
}
