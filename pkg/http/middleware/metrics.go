package middleware

import (
	"net/http"
	"strconv"
	"sync"
	"time"

	applogger "FXEngine/pkg/logger"

	"github.com/labstack/echo/v4"
	"github.com/prometheus/client_golang/prometheus"
)

// EnvelopeStatusKey is the echo context key holding the status written into
// the response body. Transport status stays 200 for handled requests.
const EnvelopeStatusKey = "envelope_status"

var (
	httpRequests = prometheus.NewCounterVec(prometheus.CounterOpts{
		Name: "fxengine_http_requests_total",
		Help: "API requests by route, method and envelope status.",
	}, []string{"route", "method", "status"})

	httpDuration = prometheus.NewHistogramVec(prometheus.HistogramOpts{
		Name:    "fxengine_http_request_duration_seconds",
		Help:    "API request latency.",
		Buckets: []float64{0.005, 0.01, 0.05, 0.1, 0.25, 0.5, 1, 2.5, 5, 15, 60},
	}, []string{"route", "method"})

	httpInFlight = prometheus.NewGauge(prometheus.GaugeOpts{
		Name: "fxengine_http_in_flight_requests",
		Help: "API requests being served.",
	})

	registerHTTPMetrics sync.Once
)

// Metrics counts requests by echo route template and by the envelope
// status, so a 200 carrying {"status":404} is counted as 404. Envelope
// 5xx are logged as errors, requests slower than slow as warnings.
func Metrics(l *applogger.Logger, slow time.Duration) echo.MiddlewareFunc {
	registerHTTPMetrics.Do(func() {
		prometheus.MustRegister(httpRequests, httpDuration, httpInFlight)
	})

	return func(next echo.HandlerFunc) echo.HandlerFunc {
		return func(c echo.Context) error {
			route := c.Path()
			if route == "" {
				route = "unmatched"
			}
			method := c.Request().Method

			httpInFlight.Inc()
			defer httpInFlight.Dec()
			start := time.Now()

			if err := next(c); err != nil {
				c.Error(err)
			}

			took := time.Since(start)
			status := EnvelopeStatus(c)
			httpRequests.WithLabelValues(route, method, strconv.Itoa(status)).Inc()
			httpDuration.WithLabelValues(route, method).Observe(took.Seconds())

			if l == nil {
				return nil
			}
			fields := []applogger.Field{
				applogger.String("route", route),
				applogger.String("method", method),
				applogger.Int("status", status),
				applogger.Duration("duration_ms", took),
			}
			switch {
			case status >= http.StatusInternalServerError:
				l.Error("api request failed", fields...)
			case slow > 0 && took >= slow:
				l.Warn("api request slow", fields...)
			}
			return nil
		}
	}
}

// EnvelopeStatus returns the body status set by the response helpers, or
// the transport status when the request never reached one.
func EnvelopeStatus(c echo.Context) int {
	if s, ok := c.Get(EnvelopeStatusKey).(int); ok {
		return s
	}
	return c.Response().Status
}
