// Package api exposes the read-only operator endpoints.
package api

import (
	"context"
	"encoding/json"
	"net/http"
	"strconv"
	"strings"
	"time"

	"FXEngine/internal/domain/models"
	icache "FXEngine/internal/service/cache"
	"FXEngine/internal/service/metrics"
	"FXEngine/internal/service/ratelimit"
	"FXEngine/internal/services/bosfib"
	xhttp "FXEngine/pkg/http"
	xlogger "FXEngine/pkg/logger"
	xutil "FXEngine/pkg/util"

	"github.com/labstack/echo/v4"
)

type SignalReader interface {
	Last() (models.SignalSet, bool)
}

type RiskReader interface {
	Snapshot(ctx context.Context) models.RiskState
}

type ReportReader interface {
	LastReport() (models.CycleReport, bool)
}

type AccountReader interface {
	Account(ctx context.Context) (models.Account, error)
}

type Advisor interface {
	Advisory(state models.RiskState, balance float64, now time.Time) bosfib.Advisory
}

type EventReader interface {
	Events(ctx context.Context, pair string, from, to time.Time, limit int) ([]models.TradeEvent, error)
}

// HealthCheck returns nil when the named dependency is usable.
type HealthCheck func(ctx context.Context) error

// Deps groups what the handler reads from. Nil readers disable the
// matching part of a response.
type Deps struct {
	Signals SignalReader
	Risk    RiskReader
	Reports ReportReader
	Account AccountReader
	Advisor Advisor
	Journal EventReader
	Cache   icache.BytesCache
	Checks  map[string]HealthCheck
}

type Handler struct {
	logger *xlogger.Logger
	deps   Deps
	rl     *ratelimit.Limiter
	now    func() time.Time
}

func NewHandler(logger *xlogger.Logger, deps Deps) *Handler {
	metrics.Register()
	return &Handler{logger: logger, deps: deps, rl: ratelimit.New(), now: time.Now}
}

func (h *Handler) RegisterRoutes(e *echo.Echo) {
	g := e.Group("/api")
	g.GET("/signals", h.limit("signals", h.Signals))
	g.GET("/risk", h.limit("risk", h.Risk))
	g.GET("/checklist/last", h.limit("checklist", h.LastChecklist))
	g.GET("/events", h.limit("events", h.Events))
	g.GET("/health", h.Health)
}

// limit applies the per-client token bucket and records endpoint latency.
func (h *Handler) limit(endpoint string, next echo.HandlerFunc) echo.HandlerFunc {
	return func(c echo.Context) error {
		start := time.Now()
		defer func() { metrics.APILatency.WithLabelValues(endpoint).Observe(time.Since(start).Seconds()) }()

		if !h.rl.Allow(c.RealIP()+":"+endpoint, 10, 2) {
			metrics.APIRateLimited.WithLabelValues(endpoint).Inc()
			h.logger.Warn("api rate limited",
				xlogger.String("endpoint", endpoint),
				xlogger.String("remote", c.RealIP()))
			return xhttp.AppErrorResponse(c, xhttp.TooManyRequestsError("rate limited"))
		}
		return next(c)
	}
}

type SignalsRequest struct {
	Pair string `query:"pair" validate:"omitempty,len=6,alpha"`
}

func (h *Handler) Signals(c echo.Context) error {
	req := &SignalsRequest{}
	if verr := xhttp.ReadAndValidateRequest(c, req); verr != nil {
		return xhttp.BadRequestResponse(c, verr)
	}
	if h.deps.Signals == nil {
		return xhttp.AppErrorResponse(c, xhttp.NotFoundError("signal service not running"))
	}
	set, ok := h.deps.Signals.Last()
	if !ok {
		return xhttp.AppErrorResponse(c, xhttp.NotFoundError("no signal pass yet"))
	}
	if req.Pair != "" {
		pair := strings.ToUpper(req.Pair)
		filtered := set
		filtered.Signals = nil
		if sig, found := set.ForPair(pair); found {
			filtered.Signals = []models.Signal{sig}
		}
		set = filtered
	}
	c.Response().Header().Set(echo.HeaderCacheControl, "private, max-age=15")
	return xhttp.SuccessResponse(c, set)
}

type RiskResponse struct {
	State    models.RiskState `json:"state"`
	Balance  *float64         `json:"balance,omitempty"`
	Advisory *bosfib.Advisory `json:"advisory,omitempty"`
}

// Risk returns the authoritative counters and, when the account is reachable,
// the structure-fibonacci advisory view computed from them.
func (h *Handler) Risk(c echo.Context) error {
	if h.deps.Risk == nil {
		return xhttp.AppErrorResponse(c, xhttp.NotFoundError("risk manager not running"))
	}
	ctx := c.Request().Context()
	resp := RiskResponse{State: h.deps.Risk.Snapshot(ctx)}

	if h.deps.Account != nil {
		actx, cancel := context.WithTimeout(ctx, 3*time.Second)
		acc, err := h.deps.Account.Account(actx)
		cancel()
		if err != nil {
			metrics.APIErrors.WithLabelValues("risk", "account").Inc()
			h.logger.Warn("api risk: account unavailable", xlogger.Error(err))
		} else {
			resp.Balance = &acc.Balance
			if h.deps.Advisor != nil {
				adv := h.deps.Advisor.Advisory(resp.State, acc.Balance, h.now())
				resp.Advisory = &adv
			}
		}
	}
	return xhttp.SuccessResponse(c, resp)
}

func (h *Handler) LastChecklist(c echo.Context) error {
	if h.deps.Reports == nil {
		return xhttp.AppErrorResponse(c, xhttp.NotFoundError("orchestrator not running"))
	}
	rep, ok := h.deps.Reports.LastReport()
	if !ok {
		return xhttp.AppErrorResponse(c, xhttp.NotFoundError("no cycle has run yet"))
	}
	return xhttp.SuccessResponse(c, rep)
}

type EventsRequest struct {
	Pair  string `query:"pair" validate:"omitempty,len=6,alpha"`
	From  string `query:"from"`
	To    string `query:"to"`
	Limit int    `query:"limit" default:"50" validate:"gte=1,lte=500"`
}

// Events lists journaled trade events, newest first. Responses are cached
// briefly because dashboards poll this endpoint.
func (h *Handler) Events(c echo.Context) error {
	req := &EventsRequest{}
	if verr := xhttp.ReadAndValidateRequest(c, req); verr != nil {
		return xhttp.BadRequestResponse(c, verr)
	}
	if h.deps.Journal == nil {
		return xhttp.AppErrorResponse(c, xhttp.NotFoundError("journal disabled"))
	}
	now := h.now().UTC()
	to := xutil.ParseTimeDefault(req.To, now)
	from := xutil.ParseTimeDefault(req.From, to.Add(-24*time.Hour))
	if !from.Before(to) {
		return xhttp.AppErrorResponse(c, xhttp.BadRequestError("from must be before to"))
	}
	pair := strings.ToUpper(req.Pair)

	cacheKey := strings.Join([]string{"events", pair, from.Format(time.RFC3339), to.Format(time.RFC3339),
		strconv.Itoa(req.Limit)}, ":")
	if h.deps.Cache != nil {
		if b, ok, err := h.deps.Cache.GetBytes(cacheKey); err != nil {
			h.logger.Warn("api events cache_get_error", xlogger.Error(err))
		} else if ok {
			var evs []models.TradeEvent
			if err := json.Unmarshal(b, &evs); err == nil {
				return xhttp.ListResponse(c, evs, int64(len(evs)))
			}
		}
	}

	evs, err := h.deps.Journal.Events(c.Request().Context(), pair, from, to, req.Limit)
	if err != nil {
		metrics.APIErrors.WithLabelValues("events", "journal").Inc()
		h.logger.Error("api events journal error", xlogger.Error(err))
		return xhttp.AppErrorResponse(c, xhttp.InternalError("journal query failed").WithError(err))
	}
	if evs == nil {
		evs = []models.TradeEvent{}
	}
	if h.deps.Cache != nil {
		if b, err := json.Marshal(evs); err == nil {
			if err := h.deps.Cache.SetBytes(cacheKey, b, 15*time.Second); err != nil {
				h.logger.Warn("api events cache_set_error", xlogger.Error(err))
			}
		}
	}
	return xhttp.ListResponse(c, evs, int64(len(evs)))
}

type HealthResponse struct {
	Status string            `json:"status"`
	Checks map[string]string `json:"checks"`
}

func (h *Handler) Health(c echo.Context) error {
	ctx, cancel := context.WithTimeout(c.Request().Context(), 2*time.Second)
	defer cancel()

	resp := HealthResponse{Status: "ok", Checks: make(map[string]string, len(h.deps.Checks))}
	for name, check := range h.deps.Checks {
		if err := check(ctx); err != nil {
			resp.Status = "degraded"
			resp.Checks[name] = err.Error()
			continue
		}
		resp.Checks[name] = "ok"
	}
	if resp.Status != "ok" {
		return xhttp.DataResponse(c, http.StatusServiceUnavailable, resp)
	}
	return xhttp.SuccessResponse(c, resp)
}
