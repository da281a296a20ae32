package models

import "time"

// TradeIntent is what the engine hands to the execution collaborator.
type TradeIntent struct {
	ID             string    `json:"id"`
	Pair           string    `json:"pair"`
	Direction      Direction `json:"direction"`
	LotSize        float64   `json:"lot_size"`
	StopLossPips   float64   `json:"stop_loss_pips"`
	TakeProfitPips float64   `json:"take_profit_pips"`
	Strategy       string    `json:"strategy,omitempty"`
	CreatedAt      time.Time `json:"created_at"`
}

// ExecutionAck confirms an opened position.
type ExecutionAck struct {
	Ticket    string  `json:"ticket"`
	FillPrice float64 `json:"fill_price"`
}

type Position struct {
	Ticket    string    `json:"ticket"`
	Pair      string    `json:"pair"`
	Direction Direction `json:"direction"`
	LotSize   float64   `json:"lot_size"`
	OpenPrice float64   `json:"open_price"`
	Profit    float64   `json:"profit"`
	OpenedAt  time.Time `json:"opened_at"`
}

type Account struct {
	Balance float64 `json:"balance"`
	Equity  float64 `json:"equity"`
}

// Drawdown returns the floating loss as a fraction of balance.
func (a Account) Drawdown() float64 {
	if a.Balance <= 0 || a.Equity >= a.Balance {
		return 0
	}
	return (a.Balance - a.Equity) / a.Balance
}

type TradeEventKind string

const (
	EventSignal      TradeEventKind = "signal"
	EventOpened      TradeEventKind = "opened"
	EventOpenFailed  TradeEventKind = "open_failed"
	EventShadow      TradeEventKind = "shadow"
	EventClosed      TradeEventKind = "closed"
	EventCloseFailed TradeEventKind = "close_failed"
	EventDayReset    TradeEventKind = "day_reset"
)

// TradeEvent is an append-only journal record of an engine decision.
type TradeEvent struct {
	ID        string         `json:"id"`
	CycleID   string         `json:"cycle_id"`
	Kind      TradeEventKind `json:"kind"`
	Pair      string         `json:"pair,omitempty"`
	Direction Direction      `json:"direction,omitempty"`
	Ticket    string         `json:"ticket,omitempty"`
	Lots      float64        `json:"lots,omitempty"`
	Price     float64        `json:"price,omitempty"`
	PnL       float64        `json:"pnl,omitempty"`
	Reason    string         `json:"reason,omitempty"`
	At        time.Time      `json:"at"`
}

// NewsEvent is a scheduled economic calendar entry.
type NewsEvent struct {
	ID       string    `json:"id"`
	Currency string    `json:"currency"`
	Title    string    `json:"title"`
	Impact   string    `json:"impact"`
	At       time.Time `json:"at"`
}

// HighImpact reports whether the event should pause trading.
func (e NewsEvent) HighImpact() bool { return e.Impact == "high" }

// Quote is the latest bid/ask for an instrument.
type Quote struct {
	Pair string    `json:"pair"`
	Bid  float64   `json:"bid"`
	Ask  float64   `json:"ask"`
	At   time.Time `json:"at"`
}
