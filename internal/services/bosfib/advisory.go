package bosfib

import (
	"fmt"
	"time"

	"FXEngine/internal/domain/models"
)

// Advisory is a read-only view of the risk snapshot against this strategy's
// own limits. Nothing gates on it.
type Advisory struct {
	DailyTrades    int     `json:"daily_trades"`
	MaxDailyTrades int     `json:"max_daily_trades"`
	DailyLossPct   float64 `json:"daily_loss_pct"`
	MaxDailyLoss   float64 `json:"max_daily_loss"`
	InSession      bool    `json:"in_session"`
	Session        string  `json:"session,omitempty"`
	Allowed        bool    `json:"allowed"`
	Reason         string  `json:"reason"`
}

// InSession reports whether t falls in one of the configured UTC windows.
func (a *Analyzer) InSession(t time.Time) (string, bool) {
	h := t.UTC().Hour()
	for _, s := range a.cfg.Sessions {
		if h >= s.StartHour && h < s.EndHour {
			return s.Name, true
		}
	}
	return "", false
}

func (a *Analyzer) Advisory(state models.RiskState, balance float64, now time.Time) Advisory {
	adv := Advisory{
		DailyTrades:    state.DailyTradeCount,
		MaxDailyTrades: a.cfg.MaxDailyTrades,
		MaxDailyLoss:   a.cfg.MaxDailyLoss,
	}
	if balance > 0 && state.DailyPnL < 0 {
		adv.DailyLossPct = -state.DailyPnL / balance
	}
	adv.Session, adv.InSession = a.InSession(now)

	switch {
	case adv.DailyTrades >= adv.MaxDailyTrades:
		adv.Reason = fmt.Sprintf("daily trade limit reached (%d)", adv.MaxDailyTrades)
	case adv.DailyLossPct >= adv.MaxDailyLoss:
		adv.Reason = fmt.Sprintf("daily loss limit reached (%.2f%%)", adv.DailyLossPct*100)
	case !adv.InSession:
		adv.Reason = "outside trading session"
	default:
		adv.Allowed = true
		adv.Reason = "trading allowed"
	}
	return adv
}
