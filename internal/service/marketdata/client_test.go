package marketdata

import (
	"context"
	"net/http"
	"net/http/httptest"
	"sync/atomic"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"FXEngine/internal/domain/models"
	domrepo "FXEngine/internal/domain/repository"
)

func server(t *testing.T, h http.HandlerFunc) *Client {
	t.Helper()
	srv := httptest.NewServer(h)
	t.Cleanup(srv.Close)
	return New(Config{BaseURL: srv.URL, Timeout: time.Second})
}

func TestGetBars(t *testing.T) {
	c := server(t, func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, "/bars", r.URL.Path)
		assert.Equal(t, "EURUSD", r.URL.Query().Get("pair"))
		assert.Equal(t, "15m", r.URL.Query().Get("timeframe"))
		assert.Equal(t, "100", r.URL.Query().Get("size"))
		_, _ = w.Write([]byte(`{"bars":[
			{"t":1709546460,"o":1.2,"h":1.3,"l":1.1,"c":1.25,"v":10},
			{"t":1709546400000,"o":1.0,"h":1.1,"l":0.9,"c":1.05,"v":5},
			{"t":1709546460,"o":1.2,"h":1.3,"l":1.1,"c":1.26,"v":11}
		]}`))
	})

	bars, err := c.GetBars(context.Background(), "eurusd", domrepo.TF15m, 100)
	require.NoError(t, err)
	require.Len(t, bars, 2)
	assert.NoError(t, bars.Validate())
	assert.Equal(t, time.Date(2024, 3, 4, 10, 0, 0, 0, time.UTC), bars[0].Time)
	assert.Equal(t, 1.26, bars[1].Close)
}

func TestGetBars_ErrorClasses(t *testing.T) {
	tests := []struct {
		name   string
		status int
		body   string
		want   error
	}{
		{"rate limited", http.StatusTooManyRequests, `{}`, domrepo.ErrRateLimited},
		{"unknown pair", http.StatusNotFound, `{}`, domrepo.ErrNoData},
		{"empty", http.StatusOK, `{"bars":[]}`, domrepo.ErrNoData},
		{"server error", http.StatusBadGateway, `oops`, domrepo.ErrTransient},
		{"bad json", http.StatusOK, `{`, domrepo.ErrTransient},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			c := server(t, func(w http.ResponseWriter, r *http.Request) {
				w.WriteHeader(tt.status)
				_, _ = w.Write([]byte(tt.body))
			})
			_, err := c.GetBars(context.Background(), "EURUSD", domrepo.TF1m, 50)
			assert.ErrorIs(t, err, tt.want)
		})
	}
}

func TestGetPipValue(t *testing.T) {
	var calls int32
	c := server(t, func(w http.ResponseWriter, r *http.Request) {
		atomic.AddInt32(&calls, 1)
		switch r.URL.Query().Get("pair") {
		case "USDJPY":
			_, _ = w.Write([]byte(`{"bid":149.99,"ask":150.01}`))
		default:
			w.WriteHeader(http.StatusNotFound)
		}
	})
	ctx := context.Background()

	v, err := c.GetPipValue(ctx, "EURUSD", 1)
	require.NoError(t, err)
	assert.InDelta(t, 10, v, 1e-9)
	assert.Zero(t, atomic.LoadInt32(&calls))

	v, err = c.GetPipValue(ctx, "GBPJPY", 1)
	require.NoError(t, err)
	assert.InDelta(t, 1000.0/150, v, 1e-9)
	// JPYUSD misses, USDJPY hits
	assert.Equal(t, int32(2), atomic.LoadInt32(&calls))

	_, err = c.GetPipValue(ctx, "USDJPY", 0.5)
	require.NoError(t, err)
	assert.Equal(t, int32(2), atomic.LoadInt32(&calls), "rate is cached per quote currency")
}

type book map[string]models.Quote

func (b book) Latest(pair string) (models.Quote, bool) {
	q, ok := b[pair]
	return q, ok
}

func TestGetPipValue_PrefersLiveQuotes(t *testing.T) {
	c := New(Config{BaseURL: "http://127.0.0.1:0"}, WithQuoteSource(book{"CADUSD": {Bid: 0.74, Ask: 0.74}}))
	v, err := c.GetPipValue(context.Background(), "AUDCAD", 1)
	require.NoError(t, err)
	assert.InDelta(t, 7.4, v, 1e-9)
}
