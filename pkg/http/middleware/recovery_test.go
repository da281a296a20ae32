package middleware

import (
	"net/http"
	"net/http/httptest"
	"testing"

	applogger "FXEngine/pkg/logger"

	"github.com/labstack/echo/v4"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestRecover_WritesEnvelope(t *testing.T) {
	e := echo.New()
	rec := httptest.NewRecorder()
	c := e.NewContext(httptest.NewRequest(http.MethodGet, "/api/v1/signals", nil), rec)

	h := Recover(applogger.NewNop())(func(echo.Context) error { panic("nil bars") })
	require.NoError(t, h(c))

	assert.Equal(t, http.StatusOK, rec.Code)
	assert.JSONEq(t, `{"status":500,"message":"Internal Server Error"}`, rec.Body.String())
	assert.Equal(t, http.StatusInternalServerError, EnvelopeStatus(c))
}

func TestEnvelopeStatus(t *testing.T) {
	e := echo.New()
	rec := httptest.NewRecorder()
	c := e.NewContext(httptest.NewRequest(http.MethodGet, "/", nil), rec)
	require.NoError(t, c.NoContent(http.StatusNoContent))
	assert.Equal(t, http.StatusNoContent, EnvelopeStatus(c))

	c.Set(EnvelopeStatusKey, http.StatusNotFound)
	assert.Equal(t, http.StatusNotFound, EnvelopeStatus(c))
}

func TestMetrics_PassesThrough(t *testing.T) {
	e := echo.New()
	rec := httptest.NewRecorder()
	c := e.NewContext(httptest.NewRequest(http.MethodGet, "/", nil), rec)

	h := Metrics(applogger.NewNop(), 0)(func(c echo.Context) error {
		c.Set(EnvelopeStatusKey, http.StatusServiceUnavailable)
		return c.String(http.StatusOK, "ok")
	})
	require.NoError(t, h(c))
	assert.Equal(t, "ok", rec.Body.String())
}
