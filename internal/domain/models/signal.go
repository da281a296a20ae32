package models

import "time"

type Direction string

const (
	Buy  Direction = "buy"
	Sell Direction = "sell"
)

// Opposite returns the reverse direction.
func (d Direction) Opposite() Direction {
	if d == Buy {
		return Sell
	}
	return Buy
}

type Trend string

const (
	TrendBullish Trend = "bullish"
	TrendBearish Trend = "bearish"
	TrendRanging Trend = "ranging"
	TrendUnknown Trend = "unknown"
)

// Directional reports whether the trend points somewhere.
func (t Trend) Directional() bool { return t == TrendBullish || t == TrendBearish }

// BlockType classifies order blocks, inducements and fair value gaps.
type BlockType string

const (
	Bullish BlockType = "bullish"
	Bearish BlockType = "bearish"
)

// Direction maps a bullish structure to a buy and a bearish one to a sell.
func (t BlockType) Direction() Direction {
	if t == Bullish {
		return Buy
	}
	return Sell
}

// OrderBlock is the last opposing candle before a directional break.
type OrderBlock struct {
	Type     BlockType `json:"type"`
	Index    int       `json:"index"`
	High     float64   `json:"high"`
	Low      float64   `json:"low"`
	Strength float64   `json:"strength"`
}

// Range returns high minus low.
func (b OrderBlock) Range() float64 { return b.High - b.Low }

type Inducement struct {
	Type          BlockType `json:"type"`
	BlockIndex    int       `json:"block_index"`
	SweepIndex    int       `json:"sweep_index"`
	SweepPrice    float64   `json:"sweep_price"`
	RecoveryPrice float64   `json:"recovery_price"`
}

type FairValueGap struct {
	Type     BlockType `json:"type"`
	Index    int       `json:"index"`
	GapLow   float64   `json:"gap_low"`
	GapHigh  float64   `json:"gap_high"`
	Strength float64   `json:"strength"`
}

// StructureReport is the intermediate output of the market structure analysis.
type StructureReport struct {
	Trend        Trend          `json:"trend"`
	OrderBlocks  []OrderBlock   `json:"order_blocks"`
	Strongest    *OrderBlock    `json:"strongest,omitempty"`
	Inducement   *Inducement    `json:"inducement,omitempty"`
	FVGs         []FairValueGap `json:"fvgs"`
	Support      *float64       `json:"support,omitempty"`
	Resistance   *float64       `json:"resistance,omitempty"`
	CurrentPrice float64        `json:"current_price"`
}

// Signal is produced once and never modified afterwards.
type Signal struct {
	Direction   Direction      `json:"direction"`
	Strategy    string         `json:"strategy"`
	Pair        string         `json:"pair"`
	EntryPrice  float64        `json:"entry_price"`
	StopLoss    float64        `json:"stop_loss"`
	TakeProfit  float64        `json:"take_profit"`
	Confidence  float64        `json:"confidence"`
	Trend       Trend          `json:"trend"`
	Support     *float64       `json:"support,omitempty"`
	Resistance  *float64       `json:"resistance,omitempty"`
	Metadata    map[string]any `json:"metadata,omitempty"`
	GeneratedAt time.Time      `json:"generated_at"`
}

// Valid checks that stop loss and take profit sit on the correct side of entry.
func (s Signal) Valid() bool {
	switch s.Direction {
	case Buy:
		return s.StopLoss < s.EntryPrice && s.EntryPrice < s.TakeProfit
	case Sell:
		return s.TakeProfit < s.EntryPrice && s.EntryPrice < s.StopLoss
	default:
		return false
	}
}

// SignalSet is the combined result of one signal pass over all instruments.
type SignalSet struct {
	Signals     []Signal          `json:"signals"`
	Warning     string            `json:"warning,omitempty"`
	Unavailable bool              `json:"unavailable,omitempty"`
	Skipped     map[string]string `json:"skipped,omitempty"`
	GeneratedAt time.Time         `json:"generated_at"`
}

// ForPair returns the signal for pair, if any.
func (s SignalSet) ForPair(pair string) (Signal, bool) {
	for _, sig := range s.Signals {
		if sig.Pair == pair {
			return sig, true
		}
	}
	return Signal{}, false
}
