package ratelimit

import (
	"context"
	"time"
)

// Gate serialises calls to a shared upstream and spaces their starts at
// least interval apart. It is exclusive: one holder at a time.
type Gate struct {
	interval time.Duration
	sem      chan struct{}
	last     time.Time
	now      func() time.Time
	sleep    func(ctx context.Context, d time.Duration) error
}

type GateOption func(*Gate)

// WithGateClock replaces the clock and the sleeper, so tests can advance time.
func WithGateClock(now func() time.Time, sleep func(ctx context.Context, d time.Duration) error) GateOption {
	return func(g *Gate) {
		g.now = now
		g.sleep = sleep
	}
}

func NewGate(interval time.Duration, opts ...GateOption) *Gate {
	g := &Gate{
		interval: interval,
		sem:      make(chan struct{}, 1),
		now:      time.Now,
		sleep:    Sleep,
	}
	for _, opt := range opts {
		opt(g)
	}
	return g
}

// Acquire waits for exclusivity and for the spacing interval. On success the
// caller must call Release.
func (g *Gate) Acquire(ctx context.Context) error {
	select {
	case g.sem <- struct{}{}:
	case <-ctx.Done():
		return ctx.Err()
	}
	if !g.last.IsZero() {
		if wait := g.interval - g.now().Sub(g.last); wait > 0 {
			if err := g.sleep(ctx, wait); err != nil {
				<-g.sem
				return err
			}
		}
	}
	g.last = g.now()
	return nil
}

func (g *Gate) Release() { <-g.sem }

// Do runs fn while holding the gate.
func (g *Gate) Do(ctx context.Context, fn func(ctx context.Context) error) error {
	if err := g.Acquire(ctx); err != nil {
		return err
	}
	defer g.Release()
	return fn(ctx)
}

// Sleep waits for d or until ctx is done.
func Sleep(ctx context.Context, d time.Duration) error {
	t := time.NewTimer(d)
	defer t.Stop()
	select {
	case <-t.C:
		return nil
	case <-ctx.Done():
		return ctx.Err()
	}
}
