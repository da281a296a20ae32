package repository

import (
	"sort"
	"sync"
	"time"

	"FXEngine/internal/domain/models"
)

// NewsCalendar keeps scheduled events in memory, keyed by ID. Events older
// than the retention are dropped on insert.
type NewsCalendar struct {
	mu        sync.RWMutex
	events    map[string]models.NewsEvent
	retention time.Duration
	now       func() time.Time
}

func NewNewsCalendar(retention time.Duration) *NewsCalendar {
	if retention <= 0 {
		retention = 24 * time.Hour
	}
	return &NewsCalendar{events: make(map[string]models.NewsEvent), retention: retention, now: time.Now}
}

func (c *NewsCalendar) Upsert(ev models.NewsEvent) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.events[ev.ID] = ev
	cutoff := c.now().Add(-c.retention)
	for id, e := range c.events {
		if e.At.Before(cutoff) {
			delete(c.events, id)
		}
	}
}

// HighImpactNear returns high impact events for currency within window of at,
// earliest first.
func (c *NewsCalendar) HighImpactNear(currency string, at time.Time, window time.Duration) []models.NewsEvent {
	c.mu.RLock()
	defer c.mu.RUnlock()
	var out []models.NewsEvent
	for _, e := range c.events {
		if e.Currency != currency || !e.HighImpact() {
			continue
		}
		d := e.At.Sub(at)
		if d < 0 {
			d = -d
		}
		if d <= window {
			out = append(out, e)
		}
	}
	sort.Slice(out, func(i, j int) bool { return out[i].At.Before(out[j].At) })
	return out
}

func (c *NewsCalendar) Len() int {
	c.mu.RLock()
	defer c.mu.RUnlock()
	return len(c.events)
}
