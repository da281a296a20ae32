package pips

import (
	"errors"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestSize(t *testing.T) {
	cases := map[string]string{
		"EURUSD": "0.0001",
		"GBPJPY": "0.01",
		"usdjpy": "0.01",
		"XAUUSD": "0.01",
		"AUDCAD": "0.0001",
	}
	for pair, want := range cases {
		t.Run(pair, func(t *testing.T) {
			assert.Equal(t, want, Size(pair).String())
		})
	}
}

func TestFromPriceAndBack(t *testing.T) {
	assert.InDelta(t, 25.0, FromPrice("EURUSD", 0.0025), 1e-9)
	assert.InDelta(t, 25.0, FromPrice("EURUSD", -0.0025), 1e-9)
	assert.InDelta(t, 40.0, FromPrice("GBPJPY", 0.40), 1e-9)
	assert.InDelta(t, 0.0050, ToPrice("EURUSD", 50), 1e-12)
	assert.InDelta(t, 2.0, ToPrice("XAUUSD", 200), 1e-12)
}

func TestValue(t *testing.T) {
	assert.InDelta(t, 10.0, Value("EURUSD", 1, 1), 1e-9)
	assert.InDelta(t, 1.0, Value("EURUSD", 0.1, 1), 1e-9)
	assert.InDelta(t, 1.0, Value("XAUUSD", 1, 1), 1e-9)
	assert.InDelta(t, 6.5, Value("GBPJPY", 1, 0.0065), 1e-9)
}

func TestQuoteRate(t *testing.T) {
	prices := map[string]float64{"USDJPY": 150, "GBPUSD": 1.25}
	price := func(pair string) (float64, error) {
		if p, ok := prices[pair]; ok {
			return p, nil
		}
		return 0, errors.New("unknown symbol")
	}

	r, err := QuoteRate("EURUSD", "USD", price)
	require.NoError(t, err)
	assert.Equal(t, 1.0, r)

	r, err = QuoteRate("GBPJPY", "USD", price)
	require.NoError(t, err)
	assert.InDelta(t, 1/150.0, r, 1e-9)

	r, err = QuoteRate("EURGBP", "USD", price)
	require.NoError(t, err)
	assert.InDelta(t, 1.25, r, 1e-9)

	_, err = QuoteRate("AUDCAD", "USD", price)
	assert.Error(t, err)

	_, err = QuoteRate("EUR", "USD", price)
	assert.Error(t, err)
}

func TestRound(t *testing.T) {
	assert.Equal(t, 0.13, Round(0.125, 2))
	assert.Equal(t, 1.23457, Round(1.234567, 5))
}
