package models

// DateLayout is the calendar date format used for trading days.
const DateLayout = "2006-01-02"

// RiskState holds the daily counters persisted between restarts.
type RiskState struct {
	DailyTradeCount int                `json:"daily_trade_count"`
	DailyPnL        float64            `json:"daily_pnl"`
	PairTradeCount  map[string]int     `json:"daily_pair_trade_count"`
	PairPnL         map[string]float64 `json:"daily_pair_pnl"`
	PairTraded      map[string]bool    `json:"daily_pair_traded"`
	LastResetDate   string             `json:"last_reset_date"`
}

// NewRiskState returns zeroed counters stamped with date.
func NewRiskState(date string) *RiskState {
	s := &RiskState{}
	s.reset(date)
	return s
}

func (s *RiskState) reset(date string) {
	s.DailyTradeCount = 0
	s.DailyPnL = 0
	s.PairTradeCount = make(map[string]int)
	s.PairPnL = make(map[string]float64)
	s.PairTraded = make(map[string]bool)
	s.LastResetDate = date
}

// Rollover zeroes the counters when date differs from the last reset date.
// It returns true only when a reset happened.
func (s *RiskState) Rollover(date string) bool {
	if s.LastResetDate == date {
		return false
	}
	s.reset(date)
	return true
}

// Normalize fills nil maps left by partial or legacy blobs.
func (s *RiskState) Normalize() {
	if s.PairTradeCount == nil {
		s.PairTradeCount = make(map[string]int)
	}
	if s.PairPnL == nil {
		s.PairPnL = make(map[string]float64)
	}
	if s.PairTraded == nil {
		s.PairTraded = make(map[string]bool)
	}
}

// PairTradeSum returns the sum of per pair trade counts.
func (s *RiskState) PairTradeSum() int {
	n := 0
	for _, c := range s.PairTradeCount {
		n += c
	}
	return n
}

// Clone returns a deep copy.
func (s *RiskState) Clone() RiskState {
	out := RiskState{
		DailyTradeCount: s.DailyTradeCount,
		DailyPnL:        s.DailyPnL,
		PairTradeCount:  make(map[string]int, len(s.PairTradeCount)),
		PairPnL:         make(map[string]float64, len(s.PairPnL)),
		PairTraded:      make(map[string]bool, len(s.PairTraded)),
		LastResetDate:   s.LastResetDate,
	}
	for k, v := range s.PairTradeCount {
		out.PairTradeCount[k] = v
	}
	for k, v := range s.PairPnL {
		out.PairPnL[k] = v
	}
	for k, v := range s.PairTraded {
		out.PairTraded[k] = v
	}
	return out
}
