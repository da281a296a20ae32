// Package marketdata talks to the market data bridge that serves bars and
// conversion quotes.
package marketdata

import (
	"context"
	"fmt"
	"sort"
	"strconv"
	"strings"
	"time"

	"FXEngine/internal/domain/models"
	domrepo "FXEngine/internal/domain/repository"
	"FXEngine/internal/service/bridge"
	icache "FXEngine/internal/service/cache"
	"FXEngine/internal/services/pips"
)

type Config struct {
	BaseURL         string        `yaml:"base_url"`
	APIKey          string        `yaml:"api_key"`
	AccountCurrency string        `yaml:"account_currency"`
	Timeout         time.Duration `yaml:"timeout"`
	RateTTL         time.Duration `yaml:"rate_ttl"`
}

// Client implements MarketDataProvider over HTTP.
type Client struct {
	base    *bridge.Base
	account string
	rateTTL time.Duration
	rates   *icache.TTLCache
	quotes  domrepo.QuoteSource
}

type Option func(*Client)

// WithQuoteSource lets conversion rates come from live quotes before asking
// the bridge.
func WithQuoteSource(q domrepo.QuoteSource) Option {
	return func(c *Client) { c.quotes = q }
}

func New(cfg Config, opts ...Option) *Client {
	if cfg.AccountCurrency == "" {
		cfg.AccountCurrency = "USD"
	}
	if cfg.RateTTL <= 0 {
		cfg.RateTTL = time.Hour
	}
	c := &Client{
		base:    bridge.NewBase(cfg.BaseURL, cfg.APIKey, cfg.Timeout),
		account: strings.ToUpper(cfg.AccountCurrency),
		rateTTL: cfg.RateTTL,
		rates:   icache.NewTTLCache(),
	}
	for _, opt := range opts {
		opt(c)
	}
	return c
}

type wireBar struct {
	T int64   `json:"t"`
	O float64 `json:"o"`
	H float64 `json:"h"`
	L float64 `json:"l"`
	C float64 `json:"c"`
	V float64 `json:"v"`
}

type barsResponse struct {
	Bars []wireBar `json:"bars"`
}

// GetBars returns up to size bars, oldest first.
func (c *Client) GetBars(ctx context.Context, pair string, tf domrepo.Timeframe, size int) (models.BarSeries, error) {
	var resp barsResponse
	q := map[string][]string{
		"pair":      {strings.ToUpper(pair)},
		"timeframe": {string(tf)},
		"size":      {strconv.Itoa(size)},
	}
	if err := c.base.GetJSON(ctx, "/bars", q, &resp); err != nil {
		return nil, err
	}
	if len(resp.Bars) == 0 {
		return nil, fmt.Errorf("%w: %s %s", domrepo.ErrNoData, pair, tf)
	}
	return toSeries(resp.Bars), nil
}

// toSeries sorts by time and keeps the last bar seen for each timestamp.
func toSeries(in []wireBar) models.BarSeries {
	for i := range in {
		if in[i].T > 1e11 { // ms
			in[i].T /= 1000
		}
	}
	sort.SliceStable(in, func(i, j int) bool { return in[i].T < in[j].T })
	out := make(models.BarSeries, 0, len(in))
	for _, b := range in {
		bar := models.Bar{Time: time.Unix(b.T, 0).UTC(), Open: b.O, High: b.H, Low: b.L, Close: b.C, Volume: b.V}
		if n := len(out); n > 0 && out[n-1].Time.Equal(bar.Time) {
			out[n-1] = bar
			continue
		}
		out = append(out, bar)
	}
	return out
}

type quoteResponse struct {
	Bid float64 `json:"bid"`
	Ask float64 `json:"ask"`
}

// GetPipValue returns the account currency value of one pip for lots.
func (c *Client) GetPipValue(ctx context.Context, pair string, lots float64) (float64, error) {
	_, quote, err := pips.Split(pair)
	if err != nil {
		return 0, err
	}
	key := "rate:" + quote + ":" + c.account
	var rate float64
	if v, ok := c.rates.Get(key); ok {
		rate = v.(float64)
	} else {
		rate, err = pips.QuoteRate(pair, c.account, func(sym string) (float64, error) { return c.price(ctx, sym) })
		if err != nil {
			return 0, fmt.Errorf("pip value %s: %w", pair, err)
		}
		c.rates.Set(key, rate, c.rateTTL)
	}
	return pips.Value(pair, lots, rate), nil
}

func (c *Client) price(ctx context.Context, symbol string) (float64, error) {
	if c.quotes != nil {
		if q, ok := c.quotes.Latest(symbol); ok && q.Bid > 0 && q.Ask > 0 {
			return (q.Bid + q.Ask) / 2, nil
		}
	}
	var resp quoteResponse
	if err := c.base.GetJSON(ctx, "/quote", map[string][]string{"pair": {symbol}}, &resp); err != nil {
		return 0, err
	}
	if resp.Bid <= 0 || resp.Ask <= 0 {
		return 0, fmt.Errorf("%w: empty quote for %s", domrepo.ErrNoData, symbol)
	}
	return (resp.Bid + resp.Ask) / 2, nil
}

var _ domrepo.MarketDataProvider = (*Client)(nil)
