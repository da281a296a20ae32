package bosfib

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"FXEngine/internal/domain/models"
)

var t0 = time.Date(2024, 3, 4, 8, 0, 0, 0, time.UTC)

func bar(i int, o, h, l, c, v float64) models.Bar {
	return models.Bar{Time: t0.Add(time.Duration(i) * 15 * time.Minute), Open: o, High: h, Low: l, Close: c, Volume: v}
}

// breakoutSeries: swing 1.1000-1.1100 over bars 30..49, a high volume bearish
// block at 55 spanning the 50% level, and a bullish break on the last bar.
func breakoutSeries() models.BarSeries {
	bars := make(models.BarSeries, 60)
	for i := range bars {
		bars[i] = bar(i, 1.1050, 1.1060, 1.1040, 1.1052, 100)
	}
	bars[30].Low = 1.1000
	bars[45].High = 1.1100
	for i := 50; i < 55; i++ {
		bars[i] = bar(i, 1.1050, 1.1065, 1.1045, 1.1055, 100)
	}
	bars[55] = bar(55, 1.1060, 1.1062, 1.1040, 1.1045, 500)
	for i := 56; i < 59; i++ {
		bars[i] = bar(i, 1.1046, 1.1065, 1.1044, 1.1060, 100)
	}
	bars[59] = bar(59, 1.1060, 1.1112, 1.1058, 1.1110, 100)
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
	_, ok := a.Analyze("EURUSD", breakoutSeries()[:49])
	assert.False(t, ok)
}

func TestAnalyze_DefaultRSIGateRejects(t *testing.T) {
	// RSI after a strong up close is far above the oversold threshold
	a := New(DefaultConfig())
	_, ok := a.Analyze("EURUSD", breakoutSeries())
	assert.False(t, ok)
}

func TestAnalyze_BuyGeometry(t *testing.T) {
	cfg := DefaultConfig()
	cfg.RSIOversold = 95
	a := New(cfg)

	sig, ok := a.Analyze("EURUSD", breakoutSeries())
	require.True(t, ok)
	assert.Equal(t, models.Buy, sig.Direction)
	assert.Equal(t, Strategy, sig.Strategy)
	assert.Equal(t, 0.5, sig.Metadata["fibonacci_level"])
	assert.Equal(t, 55, sig.Metadata["order_block_index"])
	assert.InDelta(t, 1.1050, sig.EntryPrice, 1e-9)
	assert.InDelta(t, 1.10286, sig.StopLoss, 1e-5)
	assert.InDelta(t, 1.10928, sig.TakeProfit, 1e-5)
	assert.Equal(t, 90.0, sig.Confidence)
	assert.True(t, sig.Valid())
	// target is twice the risk away
	assert.InDelta(t, 2*(sig.EntryPrice-sig.StopLoss), sig.TakeProfit-sig.EntryPrice, 2e-5)
}

func TestAnalyze_SellGeometry(t *testing.T) {
	cfg := DefaultConfig()
	cfg.RSIOversold = 0
	cfg.RSIOverbought = 5
	a := New(cfg)

	sig, ok := a.Analyze("EURUSD", mirror(breakoutSeries(), 2.2))
	require.True(t, ok)
	assert.Equal(t, models.Sell, sig.Direction)
	assert.Equal(t, 0.382, sig.Metadata["fibonacci_level"])
	assert.InDelta(t, 1.09382, sig.EntryPrice, 1e-9)
	assert.InDelta(t, 1.09714, sig.StopLoss, 1e-5)
	assert.InDelta(t, 1.08718, sig.TakeProfit, 1e-5)
	assert.True(t, sig.Valid())
}

func TestAnalyze_NoBreakNoSignal(t *testing.T) {
	cfg := DefaultConfig()
	cfg.RSIOversold = 95
	a := New(cfg)
	bars := breakoutSeries()
	bars[59] = bar(59, 1.1060, 1.1070, 1.1058, 1.1065, 100)
	_, ok := a.Analyze("EURUSD", bars)
	assert.False(t, ok)
}

func TestAnalyze_LowVolumeBlockIgnored(t *testing.T) {
	cfg := DefaultConfig()
	cfg.RSIOversold = 95
	a := New(cfg)
	bars := breakoutSeries()
	bars[55].Volume = 100
	_, ok := a.Analyze("EURUSD", bars)
	assert.False(t, ok)
}

func TestInSession(t *testing.T) {
	a := New(DefaultConfig())
	cases := []struct {
		hour    int
		want    bool
		session string
	}{
		{6, false, ""},
		{7, true, "london"},
		{10, true, "london"},
		{11, false, ""},
		{12, true, "new_york"},
		{15, true, "new_york"},
		{16, false, ""},
	}
	for _, c := range cases {
		name, ok := a.InSession(time.Date(2024, 3, 4, c.hour, 30, 0, 0, time.UTC))
		assert.Equal(t, c.want, ok, "hour %d", c.hour)
		assert.Equal(t, c.session, name, "hour %d", c.hour)
	}
}

func TestAdvisory(t *testing.T) {
	a := New(DefaultConfig())
	london := time.Date(2024, 3, 4, 8, 0, 0, 0, time.UTC)

	t.Run("allowed", func(t *testing.T) {
		st := models.NewRiskState("2024-03-04")
		adv := a.Advisory(*st, 1000, london)
		assert.True(t, adv.Allowed)
		assert.True(t, adv.InSession)
	})

	t.Run("trade cap", func(t *testing.T) {
		st := models.NewRiskState("2024-03-04")
		st.DailyTradeCount = 3
		adv := a.Advisory(*st, 1000, london)
		assert.False(t, adv.Allowed)
		assert.Contains(t, adv.Reason, "trade limit")
	})

	t.Run("loss cap", func(t *testing.T) {
		st := models.NewRiskState("2024-03-04")
		st.DailyPnL = -150
		adv := a.Advisory(*st, 1000, london)
		assert.False(t, adv.Allowed)
		assert.InDelta(t, 0.15, adv.DailyLossPct, 1e-12)
	})

	t.Run("out of session", func(t *testing.T) {
		st := models.NewRiskState("2024-03-04")
		adv := a.Advisory(*st, 1000, time.Date(2024, 3, 4, 20, 0, 0, 0, time.UTC))
		assert.False(t, adv.Allowed)
		assert.Equal(t, "outside trading session", adv.Reason)
	})
}
