// Package structure classifies trend and finds order blocks, liquidity
// inducements, fair value gaps and support/resistance in a bar series.
package structure

import (
	"math"
	"sort"

	"FXEngine/internal/domain/models"
	"FXEngine/internal/domain/repository"
	"FXEngine/internal/services/indicators"
	"FXEngine/internal/services/pips"
)

const (
	StrategyBullish = "Market Structure - Bullish"
	StrategyBearish = "Market Structure - Bearish"
)

type Config struct {
	TrendWindow      int     `yaml:"trend_window"`
	TrendShift       int     `yaml:"trend_shift"`
	BlockLookback    int     `yaml:"block_lookback"`
	InducementWindow int     `yaml:"inducement_window"`
	LevelsWindow     int     `yaml:"levels_window"`
	LevelsTop        int     `yaml:"levels_top"`
	StopBuffer       float64 `yaml:"stop_buffer"`
	FallbackTarget   float64 `yaml:"fallback_target"`
	Confidence       float64 `yaml:"confidence"`
}

func DefaultConfig() Config {
	return Config{
		TrendWindow:      20,
		TrendShift:       5,
		BlockLookback:    20,
		InducementWindow: 10,
		LevelsWindow:     20,
		LevelsTop:        3,
		StopBuffer:       0.1,
		FallbackTarget:   0.005,
		Confidence:       85,
	}
}

type Analyzer struct {
	cfg Config
}

func New(cfg Config) *Analyzer {
	d := DefaultConfig()
	if cfg.TrendWindow <= 0 {
		cfg.TrendWindow = d.TrendWindow
	}
	if cfg.TrendShift <= 0 {
		cfg.TrendShift = d.TrendShift
	}
	if cfg.BlockLookback <= 0 {
		cfg.BlockLookback = d.BlockLookback
	}
	if cfg.InducementWindow <= 0 {
		cfg.InducementWindow = d.InducementWindow
	}
	if cfg.LevelsWindow <= 0 {
		cfg.LevelsWindow = d.LevelsWindow
	}
	if cfg.LevelsTop <= 0 {
		cfg.LevelsTop = d.LevelsTop
	}
	if cfg.StopBuffer <= 0 {
		cfg.StopBuffer = d.StopBuffer
	}
	if cfg.FallbackTarget <= 0 {
		cfg.FallbackTarget = d.FallbackTarget
	}
	if cfg.Confidence <= 0 {
		cfg.Confidence = d.Confidence
	}
	return &Analyzer{cfg: cfg}
}

func (a *Analyzer) Name() string { return "market_structure" }

func (a *Analyzer) Timeframes() repository.Roles {
	return repository.Roles{
		Trend: []repository.Timeframe{repository.TF15m, repository.TF60m},
		Entry: repository.TF1m,
	}
}

// Report runs trend, block, inducement, gap and level detection. It returns
// false when the series is too short.
func (a *Analyzer) Report(bars models.BarSeries) (models.StructureReport, bool) {
	if !bars.Sufficient() {
		return models.StructureReport{Trend: models.TrendUnknown}, false
	}
	rep := models.StructureReport{
		Trend:        a.Trend(bars),
		CurrentPrice: bars.Last().Close,
	}
	rep.OrderBlocks = a.OrderBlocks(bars, rep.Trend)
	if best, ok := Strongest(rep.OrderBlocks); ok {
		rep.Strongest = &best
		if ind, ok := a.Inducement(bars, best); ok {
			rep.Inducement = &ind
		}
	}
	rep.FVGs = FairValueGaps(bars)
	rep.Support, rep.Resistance = a.Levels(bars)
	return rep, true
}

// Trend compares the rolling high/low window at the last bar with the same
// window TrendShift bars earlier.
func (a *Analyzer) Trend(bars models.BarSeries) models.Trend {
	n := len(bars)
	if n < a.cfg.TrendWindow+a.cfg.TrendShift {
		return models.TrendUnknown
	}
	highs := indicators.RollingMax(bars.Highs(), a.cfg.TrendWindow)
	lows := indicators.RollingMin(bars.Lows(), a.cfg.TrendWindow)
	now, then := n-1, n-1-a.cfg.TrendShift

	switch {
	case highs[now] > highs[then] && lows[now] > lows[then]:
		return models.TrendBullish
	case highs[now] < highs[then] && lows[now] < lows[then]:
		return models.TrendBearish
	default:
		return models.TrendRanging
	}
}

// OrderBlocks scans the recent block candles whose confirming candle lies
// inside the series. Only blocks aligned with trend are returned.
func (a *Analyzer) OrderBlocks(bars models.BarSeries, trend models.Trend) []models.OrderBlock {
	if !trend.Directional() || len(bars) < 2 {
		return nil
	}
	last := len(bars) - 2
	start := last - a.cfg.BlockLookback
	if start < 0 {
		start = 0
	}

	var out []models.OrderBlock
	for i := start; i <= last; i++ {
		cur, next := bars[i], bars[i+1]
		switch {
		case trend == models.TrendBullish && cur.Bearish() && next.Bullish() && next.Close > cur.High:
			out = append(out, newBlock(models.Bullish, i, cur))
		case trend == models.TrendBearish && cur.Bullish() && next.Bearish() && next.Close < cur.Low:
			out = append(out, newBlock(models.Bearish, i, cur))
		}
	}
	return out
}

func newBlock(t models.BlockType, i int, b models.Bar) models.OrderBlock {
	var strength float64
	if b.Open != 0 {
		strength = b.Body() / b.Open
	}
	return models.OrderBlock{Type: t, Index: i, High: b.High, Low: b.Low, Strength: strength}
}

// Strongest picks the block with the largest strength; the earlier block wins ties.
func Strongest(blocks []models.OrderBlock) (models.OrderBlock, bool) {
	if len(blocks) == 0 {
		return models.OrderBlock{}, false
	}
	best := blocks[0]
	for _, b := range blocks[1:] {
		if b.Strength > best.Strength {
			best = b
		}
	}
	return best, true
}

// Inducement finds the first bar after block whose wick pierces the block
// boundary while its close recovers inside.
func (a *Analyzer) Inducement(bars models.BarSeries, block models.OrderBlock) (models.Inducement, bool) {
	end := block.Index + a.cfg.InducementWindow
	if end > len(bars)-1 {
		end = len(bars) - 1
	}
	for j := block.Index + 1; j <= end; j++ {
		b := bars[j]
		switch block.Type {
		case models.Bullish:
			if b.Low < block.Low && b.Close > block.Low {
				return models.Inducement{Type: models.Bullish, BlockIndex: block.Index, SweepIndex: j, SweepPrice: b.Low, RecoveryPrice: b.Close}, true
			}
		case models.Bearish:
			if b.High > block.High && b.Close < block.High {
				return models.Inducement{Type: models.Bearish, BlockIndex: block.Index, SweepIndex: j, SweepPrice: b.High, RecoveryPrice: b.Close}, true
			}
		}
	}
	return models.Inducement{}, false
}

// FairValueGaps runs the three-candle imbalance scan over the whole series.
func FairValueGaps(bars models.BarSeries) []models.FairValueGap {
	var out []models.FairValueGap
	for i := 1; i < len(bars)-1; i++ {
		prev, next := bars[i-1], bars[i+1]
		switch {
		case prev.High < next.Low:
			out = append(out, models.FairValueGap{Type: models.Bullish, Index: i, GapLow: prev.High, GapHigh: next.Low, Strength: next.Low - prev.High})
		case prev.Low > next.High:
			out = append(out, models.FairValueGap{Type: models.Bearish, Index: i, GapLow: next.High, GapHigh: prev.Low, Strength: prev.Low - next.High})
		}
	}
	return out
}

// Levels returns the nearest support below and resistance above the last
// close, drawn from the most frequent recent lows and highs.
func (a *Analyzer) Levels(bars models.BarSeries) (support, resistance *float64) {
	n := len(bars)
	if n < a.cfg.LevelsWindow {
		return nil, nil
	}
	window := bars[n-a.cfg.LevelsWindow:]
	price := bars.Last().Close

	for _, h := range mostFrequent(window.Highs(), a.cfg.LevelsTop) {
		if h > price && (resistance == nil || h < *resistance) {
			v := h
			resistance = &v
		}
	}
	for _, l := range mostFrequent(window.Lows(), a.cfg.LevelsTop) {
		if l < price && (support == nil || l > *support) {
			v := l
			support = &v
		}
	}
	return support, resistance
}

func mostFrequent(values []float64, top int) []float64 {
	counts := make(map[float64]int, len(values))
	var order []float64
	for _, v := range values {
		if counts[v] == 0 {
			order = append(order, v)
		}
		counts[v]++
	}
	sort.SliceStable(order, func(i, j int) bool { return counts[order[i]] > counts[order[j]] })
	if len(order) > top {
		order = order[:top]
	}
	return order
}

// Analyze emits a signal when trend, the strongest block and its inducement agree.
func (a *Analyzer) Analyze(pair string, bars models.BarSeries) (models.Signal, bool) {
	rep, ok := a.Report(bars)
	if !ok || rep.Strongest == nil || rep.Inducement == nil {
		return models.Signal{}, false
	}
	block, ind := *rep.Strongest, *rep.Inducement
	if !agrees(rep.Trend, block.Type) || ind.Type != block.Type {
		return models.Signal{}, false
	}

	entry := ind.RecoveryPrice
	buffer := block.Range() * a.cfg.StopBuffer
	var stop, target float64
	strategy := StrategyBullish
	if block.Type == models.Bullish {
		stop = block.Low - buffer
		target = entry * (1 + a.cfg.FallbackTarget)
		if t, ok := nearestGap(rep.FVGs, models.Bullish, entry); ok {
			target = t
		}
	} else {
		strategy = StrategyBearish
		stop = block.High + buffer
		target = entry * (1 - a.cfg.FallbackTarget)
		if t, ok := nearestGap(rep.FVGs, models.Bearish, entry); ok {
			target = t
		}
	}

	roles := a.Timeframes()
	sig := models.Signal{
		Direction:  block.Type.Direction(),
		Strategy:   strategy,
		Pair:       pair,
		EntryPrice: pips.Round(entry, 5),
		StopLoss:   pips.Round(stop, 5),
		TakeProfit: pips.Round(target, 5),
		Confidence: a.cfg.Confidence,
		Trend:      rep.Trend,
		Support:    rep.Support,
		Resistance: rep.Resistance,
		Metadata: map[string]any{
			"order_block_strength":   pips.Round(block.Strength, 4),
			"order_blocks_count":     len(rep.OrderBlocks),
			"fvgs_count":             len(rep.FVGs),
			"current_price":          rep.CurrentPrice,
			"inducement_sweep_index": ind.SweepIndex,
			"trend_timeframes":       roles.Trend,
			"entry_timeframe":        roles.Entry,
		},
		GeneratedAt: bars.Last().Time,
	}
	if !sig.Valid() {
		return models.Signal{}, false
	}
	return sig, true
}

func agrees(trend models.Trend, t models.BlockType) bool {
	return (trend == models.TrendBullish && t == models.Bullish) ||
		(trend == models.TrendBearish && t == models.Bearish)
}

// nearestGap returns the closest same-direction gap boundary beyond entry.
func nearestGap(gaps []models.FairValueGap, t models.BlockType, entry float64) (float64, bool) {
	best, level, found := math.Inf(1), 0.0, false
	for _, g := range gaps {
		if g.Type != t {
			continue
		}
		candidate := g.GapLow
		if t == models.Bearish {
			candidate = g.GapHigh
		}
		beyond := candidate > entry
		if t == models.Bearish {
			beyond = candidate < entry
		}
		if !beyond {
			continue
		}
		if d := math.Abs(candidate - entry); d < best {
			best, level, found = d, candidate, true
		}
	}
	return level, found
}
