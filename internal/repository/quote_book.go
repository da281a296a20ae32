package repository

import (
	"context"
	"fmt"
	"strings"
	"sync"
	"time"

	"FXEngine/internal/domain/models"
)

// QuoteBook holds the latest quote per pair. Quotes older than maxAge are
// reported as missing.
type QuoteBook struct {
	mu     sync.RWMutex
	quotes map[string]models.Quote
	maxAge time.Duration
	now    func() time.Time
}

func NewQuoteBook(maxAge time.Duration) *QuoteBook {
	return &QuoteBook{quotes: make(map[string]models.Quote), maxAge: maxAge, now: time.Now}
}

// Process stores q; it satisfies the quote pipeline's downstream.
func (b *QuoteBook) Process(_ context.Context, q *models.Quote) error {
	if q == nil {
		return fmt.Errorf("quote is nil")
	}
	b.mu.Lock()
	defer b.mu.Unlock()
	key := strings.ToUpper(q.Pair)
	if cur, ok := b.quotes[key]; ok && cur.At.After(q.At) {
		return nil
	}
	b.quotes[key] = *q
	return nil
}

func (b *QuoteBook) Latest(pair string) (models.Quote, bool) {
	b.mu.RLock()
	q, ok := b.quotes[strings.ToUpper(pair)]
	b.mu.RUnlock()
	if !ok {
		return models.Quote{}, false
	}
	if b.maxAge > 0 && b.now().Sub(q.At) > b.maxAge {
		return models.Quote{}, false
	}
	return q, true
}

// Mid returns the mid price, used for quote-currency conversion.
func (b *QuoteBook) Mid(pair string) (float64, error) {
	q, ok := b.Latest(pair)
	if !ok {
		return 0, fmt.Errorf("no fresh quote for %s", pair)
	}
	return (q.Bid + q.Ask) / 2, nil
}
