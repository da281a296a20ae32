package bridge

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	domrepo "FXEngine/internal/domain/repository"
	xhttp "FXEngine/pkg/http"
)

func TestClassify(t *testing.T) {
	tests := []struct {
		name string
		in   error
		want error
	}{
		{"429", &xhttp.StatusError{Code: 429}, domrepo.ErrRateLimited},
		{"404", &xhttp.StatusError{Code: 404}, domrepo.ErrNoData},
		{"500", &xhttp.StatusError{Code: 500}, domrepo.ErrTransient},
		{"wrapped 429", fmt.Errorf("x: %w", &xhttp.StatusError{Code: 429}), domrepo.ErrRateLimited},
		{"network", errors.New("connection refused"), domrepo.ErrTransient},
		{"deadline", context.DeadlineExceeded, context.DeadlineExceeded},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.ErrorIs(t, Classify(tt.in), tt.want)
		})
	}
	assert.NoError(t, Classify(nil))
}

func TestBase_Headers(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, "secret", r.Header.Get("X-API-Key"))
		assert.Equal(t, "01HX", r.Header.Get("Idempotency-Key"))
		assert.Equal(t, "EURUSD", r.URL.Query().Get("pair"))
		_, _ = w.Write([]byte(`{"ok":true}`))
	}))
	defer srv.Close()

	b := NewBase(srv.URL+"/", "secret", time.Second)
	var out struct{ OK bool }
	ctx := WithIdempotencyKey(context.Background(), "01HX")
	require.NoError(t, b.GetJSON(ctx, "/ping", map[string][]string{"pair": {"EURUSD"}}, &out))
	assert.True(t, out.OK)
}

func TestBase_NotConfigured(t *testing.T) {
	b := NewBase("", "", 0)
	err := b.GetJSON(context.Background(), "/x", nil, nil)
	assert.ErrorIs(t, err, domrepo.ErrTransient)
}
