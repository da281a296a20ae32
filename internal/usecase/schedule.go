package usecase

import (
	"context"
	"fmt"
	"time"

	"FXEngine/internal/domain/models"
	"FXEngine/pkg/logger"
)

// Schedule is the trading window evaluated against broker server time.
type Schedule struct {
	OpenHour        int `yaml:"open_hour"`
	CloseHour       int `yaml:"close_hour"`
	FridayCloseHour int `yaml:"friday_close_hour"`
}

func DefaultSchedule() Schedule {
	return Schedule{OpenHour: 7, CloseHour: 21, FridayCloseHour: 18}
}

// Open reports whether t is inside trading hours. When it is not, the
// returned reason says why.
func (s Schedule) Open(t time.Time) (bool, string) {
	switch wd := t.Weekday(); {
	case wd == time.Saturday || wd == time.Sunday:
		return false, "weekend"
	case wd == time.Friday && t.Hour() >= s.FridayCloseHour:
		return false, fmt.Sprintf("friday after %02d:00", s.FridayCloseHour)
	}
	if h := t.Hour(); h < s.OpenHour || h >= s.CloseHour {
		return false, fmt.Sprintf("outside %02d:00-%02d:00", s.OpenHour, s.CloseHour)
	}
	return true, ""
}

// DayBoundaryWatcher wakes the orchestrator when the trading date changes
// between cycles. It never touches risk state itself.
type DayBoundaryWatcher struct {
	interval time.Duration
	now      func() time.Time
	loc      *time.Location
	lgr      *logger.Logger
	ch       chan struct{}
}

func NewDayBoundaryWatcher(interval time.Duration, loc *time.Location, now func() time.Time, lgr *logger.Logger) *DayBoundaryWatcher {
	if interval <= 0 {
		interval = time.Minute
	}
	if loc == nil {
		loc = time.UTC
	}
	if now == nil {
		now = time.Now
	}
	return &DayBoundaryWatcher{
		interval: interval,
		now:      now,
		loc:      loc,
		lgr:      lgr,
		ch:       make(chan struct{}, 1),
	}
}

// C delivers at most one pending boundary notification.
func (w *DayBoundaryWatcher) C() <-chan struct{} { return w.ch }

// Run polls until ctx is done.
func (w *DayBoundaryWatcher) Run(ctx context.Context) {
	t := time.NewTicker(w.interval)
	defer t.Stop()
	date := w.date()
	for {
		select {
		case <-ctx.Done():
			return
		case <-t.C:
			date = w.Check(date)
		}
	}
}

// Check compares the current date with prev, signals on change, and returns
// the current date.
func (w *DayBoundaryWatcher) Check(prev string) string {
	cur := w.date()
	if cur != prev {
		w.lgr.Info("trading date changed", logger.String("from", prev), logger.String("to", cur))
		w.notify()
	}
	return cur
}

func (w *DayBoundaryWatcher) notify() {
	select {
	case w.ch <- struct{}{}:
	default:
	}
}

func (w *DayBoundaryWatcher) date() string {
	return w.now().In(w.loc).Format(models.DateLayout)
}
