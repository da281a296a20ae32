// Package bridge holds the JSON-over-HTTP plumbing shared by the market data
// and broker clients.
package bridge

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"strings"
	"time"

	domrepo "FXEngine/internal/domain/repository"
	xhttp "FXEngine/pkg/http"
)

// Base centralizes client construction, auth headers and error classification.
type Base struct {
	baseURL string
	apiKey  string
	client  *xhttp.Client
}

func NewBase(baseURL, apiKey string, timeout time.Duration, opts ...xhttp.ClientOption) *Base {
	if timeout <= 0 {
		timeout = 10 * time.Second
	}
	opts = append([]xhttp.ClientOption{xhttp.WithTimeout(timeout)}, opts...)
	return &Base{
		baseURL: strings.TrimRight(baseURL, "/"),
		apiKey:  apiKey,
		client:  xhttp.NewClient(opts...),
	}
}

// Do sends a JSON request under baseURL and decodes the response into dest.
// Errors are classified with the domain sentinels.
func (b *Base) Do(ctx context.Context, method, path string, query map[string][]string, body, dest interface{}) error {
	if b.client == nil || b.baseURL == "" {
		return fmt.Errorf("%w: bridge client not configured", domrepo.ErrTransient)
	}
	headers := map[string]string{"Accept": "application/json"}
	if body != nil {
		headers["Content-Type"] = "application/json"
	}
	if b.apiKey != "" {
		headers["X-API-Key"] = b.apiKey
	}
	if key, ok := IdempotencyKey(ctx); ok {
		headers["Idempotency-Key"] = key
	}
	err := b.client.SendAndParse(ctx, &xhttp.RequestOptions{
		Method:      method,
		URL:         b.baseURL + path,
		Headers:     headers,
		QueryParams: query,
		Body:        body,
	}, dest)
	if err != nil {
		return fmt.Errorf("%s %s: %w", method, path, Classify(err))
	}
	return nil
}

func (b *Base) GetJSON(ctx context.Context, path string, query map[string][]string, dest interface{}) error {
	return b.Do(ctx, xhttp.MethodGet, path, query, nil, dest)
}

func (b *Base) PostJSON(ctx context.Context, path string, payload, dest interface{}) error {
	return b.Do(ctx, xhttp.MethodPost, path, nil, payload, dest)
}

// Classify maps transport and status errors onto ErrRateLimited, ErrNoData
// and ErrTransient. Context errors pass through unchanged.
func Classify(err error) error {
	if err == nil {
		return nil
	}
	if errors.Is(err, context.Canceled) || errors.Is(err, context.DeadlineExceeded) {
		return err
	}
	var se *xhttp.StatusError
	if errors.As(err, &se) {
		switch {
		case se.Code == http.StatusTooManyRequests:
			return fmt.Errorf("%w: %v", domrepo.ErrRateLimited, err)
		case se.Code == http.StatusNotFound:
			return fmt.Errorf("%w: %v", domrepo.ErrNoData, err)
		}
	}
	return fmt.Errorf("%w: %v", domrepo.ErrTransient, err)
}

type idemKey struct{}

// WithIdempotencyKey attaches key to requests made with the returned context.
func WithIdempotencyKey(ctx context.Context, key string) context.Context {
	return context.WithValue(ctx, idemKey{}, key)
}

func IdempotencyKey(ctx context.Context) (string, bool) {
	v, ok := ctx.Value(idemKey{}).(string)
	return v, ok && v != ""
}
