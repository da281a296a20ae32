package middleware

import (
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/labstack/echo/v4"
	"github.com/stretchr/testify/assert"
)

func corsServer(origins ...string) *echo.Echo {
	e := echo.New()
	e.Use(CORS(origins))
	e.GET("/api/risk", func(c echo.Context) error { return c.String(http.StatusOK, "ok") })
	e.OPTIONS("/api/risk", func(c echo.Context) error { return c.NoContent(http.StatusMethodNotAllowed) })
	return e
}

func serve(e *echo.Echo, method, origin string) *httptest.ResponseRecorder {
	req := httptest.NewRequest(method, "/api/risk", nil)
	if origin != "" {
		req.Header.Set(echo.HeaderOrigin, origin)
	}
	rec := httptest.NewRecorder()
	e.ServeHTTP(rec, req)
	return rec
}

func TestCORS_AllowedOrigin(t *testing.T) {
	e := corsServer("https://dash.local")

	rec := serve(e, http.MethodGet, "https://dash.local")
	assert.Equal(t, http.StatusOK, rec.Code)
	assert.Equal(t, "https://dash.local", rec.Header().Get(echo.HeaderAccessControlAllowOrigin))

	rec = serve(e, http.MethodOptions, "https://dash.local")
	assert.Equal(t, http.StatusNoContent, rec.Code)
	assert.Equal(t, corsMethods, rec.Header().Get(echo.HeaderAccessControlAllowMethods))
}

func TestCORS_OtherOrigin(t *testing.T) {
	e := corsServer("https://dash.local")

	rec := serve(e, http.MethodGet, "https://evil.local")
	assert.Equal(t, http.StatusOK, rec.Code)
	assert.Empty(t, rec.Header().Get(echo.HeaderAccessControlAllowOrigin))
	assert.Equal(t, echo.HeaderOrigin, rec.Header().Get(echo.HeaderVary))

	rec = serve(e, http.MethodGet, "")
	assert.Empty(t, rec.Header().Get(echo.HeaderVary))
}

func TestCORS_Wildcard(t *testing.T) {
	rec := serve(corsServer("*"), http.MethodGet, "https://any.local")
	assert.Equal(t, "https://any.local", rec.Header().Get(echo.HeaderAccessControlAllowOrigin))
}
