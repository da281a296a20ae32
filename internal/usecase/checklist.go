package usecase

import (
	"fmt"
	"strings"
	"time"

	"FXEngine/internal/domain/models"
)

// MinChecklistPasses is the default number of conditions a candidate must
// pass to be admitted.
const MinChecklistPasses = 2

const (
	CondInHours    = "in_hours"
	CondNotTraded  = "not_traded_today"
	CondTrend      = "trend_directional"
	CondOrderBlock = "order_block"
	CondInducement = "inducement"
	CondSize       = "position_size"
	CondTakeProfit = "take_profit"
	CondNoNews     = "no_high_impact_news"
	CondDrawdown   = "drawdown"
	CondSpread     = "spread"
)

type ChecklistConfig struct {
	MinPasses     int           `yaml:"min_checklist_passes"`
	MaxDrawdown   float64       `yaml:"max_drawdown"`
	MaxSpreadPips float64       `yaml:"max_spread_pips"`
	NewsWindow    time.Duration `yaml:"news_window"`
}

func DefaultChecklistConfig() ChecklistConfig {
	return ChecklistConfig{
		MinPasses:     MinChecklistPasses,
		MaxDrawdown:   0.05,
		MaxSpreadPips: 3,
		NewsWindow:    30 * time.Minute,
	}
}

// ChecklistInput is everything known about one candidate at decision time.
type ChecklistInput struct {
	InHours     bool
	TradedToday bool
	Report      models.StructureReport
	HasReport   bool
	Signal      models.Signal
	Lots        float64
	News        []models.NewsEvent
	Account     models.Account
	SpreadPips  float64
	SpreadKnown bool
}

// EvaluateChecklist returns every condition in a fixed order together with
// the number that passed.
func EvaluateChecklist(cfg ChecklistConfig, in ChecklistInput) ([]models.ConditionResult, int) {
	trend := models.TrendUnknown
	if in.HasReport {
		trend = in.Report.Trend
	}
	res := []models.ConditionResult{
		{Name: CondInHours, Passed: in.InHours},
		{Name: CondNotTraded, Passed: !in.TradedToday},
		{Name: CondTrend, Passed: trend.Directional(), Detail: string(trend)},
		{Name: CondOrderBlock, Passed: in.HasReport && in.Report.Strongest != nil},
		{Name: CondInducement, Passed: in.HasReport && in.Report.Inducement != nil},
		{Name: CondSize, Passed: in.Lots > 0, Detail: fmt.Sprintf("%.2f lots", in.Lots)},
		{Name: CondTakeProfit, Passed: in.Signal.TakeProfit > 0},
		newsCondition(in.News),
		drawdownCondition(cfg, in.Account),
		spreadCondition(cfg, in),
	}
	passed := 0
	for _, r := range res {
		if r.Passed {
			passed++
		}
	}
	return res, passed
}

func newsCondition(events []models.NewsEvent) models.ConditionResult {
	c := models.ConditionResult{Name: CondNoNews, Passed: len(events) == 0}
	if len(events) > 0 {
		titles := make([]string, 0, len(events))
		for _, ev := range events {
			titles = append(titles, ev.Currency+" "+ev.Title)
		}
		c.Detail = strings.Join(titles, "; ")
	}
	return c
}

func drawdownCondition(cfg ChecklistConfig, acc models.Account) models.ConditionResult {
	dd := acc.Drawdown()
	return models.ConditionResult{
		Name:   CondDrawdown,
		Passed: acc.Balance > 0 && dd <= cfg.MaxDrawdown,
		Detail: fmt.Sprintf("%.2f%%", dd*100),
	}
}

func spreadCondition(cfg ChecklistConfig, in ChecklistInput) models.ConditionResult {
	if !in.SpreadKnown {
		return models.ConditionResult{Name: CondSpread, Detail: "unknown"}
	}
	return models.ConditionResult{
		Name:   CondSpread,
		Passed: in.SpreadPips <= cfg.MaxSpreadPips,
		Detail: fmt.Sprintf("%.1f pips", in.SpreadPips),
	}
}
