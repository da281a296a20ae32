package cache

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type snapshot struct {
	Trades int     `json:"trades"`
	PnL    float64 `json:"pnl"`
}

type fakeClock struct{ t time.Time }

func (c *fakeClock) now() time.Time          { return c.t }
func (c *fakeClock) advance(d time.Duration) { c.t = c.t.Add(d) }

func newTestCache(t *testing.T, opts ...MemoryOption) (*MemoryCache, *fakeClock) {
	clk := &fakeClock{t: time.Date(2024, 3, 4, 9, 0, 0, 0, time.UTC)}
	mc := NewMemoryCache(append([]MemoryOption{WithMemoryClock(clk.now)}, opts...)...)
	t.Cleanup(func() { _ = mc.Close() })
	return mc, clk
}

func TestMemoryCache_StructRoundTrip(t *testing.T) {
	mc, _ := newTestCache(t)
	ctx := context.Background()

	require.NoError(t, mc.Set(ctx, "risk", snapshot{Trades: 3, PnL: -12.5}, time.Minute))

	var got snapshot
	require.NoError(t, mc.Get(ctx, "risk", &got))
	assert.Equal(t, snapshot{Trades: 3, PnL: -12.5}, got)

	var raw string
	require.NoError(t, mc.Get(ctx, "risk", &raw))
	assert.JSONEq(t, `{"trades":3,"pnl":-12.5}`, raw)
}

func TestMemoryCache_MissAndExpiry(t *testing.T) {
	mc, clk := newTestCache(t)
	ctx := context.Background()

	var s string
	assert.ErrorIs(t, mc.Get(ctx, "nope", &s), ErrCacheMiss)

	require.NoError(t, mc.Set(ctx, "short", "v", time.Second))
	require.NoError(t, mc.Get(ctx, "short", &s))
	assert.Equal(t, "v", s)

	clk.advance(time.Second)
	assert.ErrorIs(t, mc.Get(ctx, "short", &s), ErrCacheMiss)
	assert.Equal(t, 0, mc.Len())
}

func TestMemoryCache_EvictsLeastRecentlyUsed(t *testing.T) {
	mc, clk := newTestCache(t, WithMemoryMaxSize(2))
	ctx := context.Background()

	require.NoError(t, mc.Set(ctx, "a", "1", 0))
	clk.advance(time.Millisecond)
	require.NoError(t, mc.Set(ctx, "b", "2", 0))
	clk.advance(time.Millisecond)
	var s string
	require.NoError(t, mc.Get(ctx, "a", &s))
	clk.advance(time.Millisecond)
	require.NoError(t, mc.Set(ctx, "c", "3", 0))

	assert.NoError(t, mc.Get(ctx, "a", &s))
	assert.ErrorIs(t, mc.Get(ctx, "b", &s), ErrCacheMiss)
	assert.NoError(t, mc.Get(ctx, "c", &s))
}

func TestMemoryCache_Lock(t *testing.T) {
	mc, clk := newTestCache(t)
	ctx := context.Background()

	ok, err := mc.TryLock(ctx, "cycle", time.Minute)
	require.NoError(t, err)
	assert.True(t, ok)

	ok, _ = mc.TryLock(ctx, "cycle", time.Minute)
	assert.False(t, ok)

	clk.advance(time.Minute)
	ok, _ = mc.TryLock(ctx, "cycle", time.Minute)
	assert.True(t, ok, "expired lease can be retaken")

	require.NoError(t, mc.Unlock(ctx, "cycle"))
	ok, _ = mc.TryLock(ctx, "cycle", time.Minute)
	assert.True(t, ok)
}

func TestGenerateKey(t *testing.T) {
	assert.Equal(t, "risk_state", GenerateKey("risk_state"))
	assert.Equal(t, "risk_state:demo", GenerateKey("risk_state", "demo"))
	assert.Equal(t, "a:b:c", GenerateKey("a", "b", "c"))
}

func TestRedisCache_KeyPrefix(t *testing.T) {
	c := newRedisCache(nil, "fxengine")
	assert.Equal(t, "fxengine:lkg", c.key("lkg"))
	assert.Equal(t, "lkg", newRedisCache(nil, "").key("lkg"))
	assert.NoError(t, c.Unlock(context.Background(), "never-held"))
}

func TestEncodeValue(t *testing.T) {
	s := "plain"
	for _, v := range []interface{}{s, &s} {
		got, err := encodeValue(v)
		require.NoError(t, err)
		assert.Equal(t, "plain", got)
	}
	got, err := encodeValue(map[string]int{"n": 1})
	require.NoError(t, err)
	assert.JSONEq(t, `{"n":1}`, got)
}
