package api

import (
	"crypto/subtle"
	"errors"
	"net/http"
	"time"

	"FinPulse/internal/domain/models"
	"FinPulse/internal/service/metrics"
	"FinPulse/internal/service/ratelimit"
	"FinPulse/internal/usecase"
	xhttp "FinPulse/pkg/http"
	xlogger "FinPulse/pkg/logger"

	"github.com/labstack/echo/v4"
)

// SourceResetter is the operator control of the ingestion loop.
type SourceResetter interface {
	ResetSource() models.SourceMode
}

const adminTokenHeader = "X-Admin-Token"

// MarketEchoHandler exposes the derived views, the query engine and the
// operator resets over HTTP.
type MarketEchoHandler struct {
	logger     *xlogger.Logger
	views      *usecase.MarketViews
	engine     *usecase.QueryEngine
	source     SourceResetter
	limiter    *ratelimit.Limiter
	adminToken string
}

func NewMarketEchoHandler(
	logger *xlogger.Logger,
	views *usecase.MarketViews,
	engine *usecase.QueryEngine,
	source SourceResetter,
	limiter *ratelimit.Limiter,
	adminToken string,
) *MarketEchoHandler {
	if logger == nil {
		logger = xlogger.Nop()
	}
	return &MarketEchoHandler{
		logger:     logger,
		views:      views,
		engine:     engine,
		source:     source,
		limiter:    limiter,
		adminToken: adminToken,
	}
}

func (h *MarketEchoHandler) RegisterRoutes(e *echo.Echo) {
	g := e.Group("/api")
	g.GET("/stocks", h.Latest)
	g.GET("/stocks/top-gainers", h.TopGainers)
	g.GET("/stocks/top-losers", h.TopLosers)
	g.GET("/stocks/:symbol", h.Instrument)
	g.GET("/alerts", h.Alerts)
	g.GET("/analytics", h.Analytics)
	g.GET("/health", h.Health)
	g.POST("/query", h.Query, h.rateLimit)

	admin := g.Group("/admin", h.requireAdmin)
	admin.POST("/source/reset", h.ResetSource)
	admin.POST("/generative/reset", h.ResetGenerative)
}

func (h *MarketEchoHandler) Latest(c echo.Context) error {
	start := time.Now()
	rows := h.views.Latest()
	metrics.Observe("stocks", start, false)
	return xhttp.ListResponse(c, rows, len(rows))
}

func (h *MarketEchoHandler) Instrument(c echo.Context) error {
	start := time.Now()
	req := &models.InstrumentRequest{}
	if verr := xhttp.ReadAndValidateRequest(c, req); verr != nil {
		metrics.Observe("stock", start, true)
		return xhttp.BadRequestResponse(c, verr)
	}

	snap, err := h.views.Instrument(req.Symbol)
	metrics.Observe("stock", start, err != nil)
	if errors.Is(err, models.ErrNotFound) {
		return xhttp.AppErrorResponse(c, xhttp.NotFoundErrorf("instrument %s is not tracked", req.Symbol).WithError(err))
	}
	if err != nil {
		return xhttp.AppErrorResponse(c, mapError(err))
	}
	return xhttp.SuccessResponse(c, snap)
}

func (h *MarketEchoHandler) TopGainers(c echo.Context) error {
	return h.top(c, "top_gainers", true)
}

func (h *MarketEchoHandler) TopLosers(c echo.Context) error {
	return h.top(c, "top_losers", false)
}

func (h *MarketEchoHandler) top(c echo.Context, endpoint string, descending bool) error {
	start := time.Now()
	req := &models.TopRequest{}
	if verr := xhttp.ReadAndValidateRequest(c, req); verr != nil {
		metrics.Observe(endpoint, start, true)
		return xhttp.BadRequestResponse(c, verr)
	}

	rows := h.views.Top(req.N, descending)
	metrics.Observe(endpoint, start, false)
	return xhttp.ListResponse(c, rows, len(rows))
}

func (h *MarketEchoHandler) Alerts(c echo.Context) error {
	start := time.Now()
	req := &models.AlertsRequest{}
	if verr := xhttp.ReadAndValidateRequest(c, req); verr != nil {
		metrics.Observe("alerts", start, true)
		return xhttp.BadRequestResponse(c, verr)
	}

	rows := h.views.Alerts(req.Limit)
	metrics.Observe("alerts", start, false)
	return xhttp.ListResponse(c, rows, len(rows))
}

func (h *MarketEchoHandler) Analytics(c echo.Context) error {
	start := time.Now()
	req := &models.AnalyticsRequest{}
	if verr := xhttp.ReadAndValidateRequest(c, req); verr != nil {
		metrics.Observe("analytics", start, true)
		return xhttp.BadRequestResponse(c, verr)
	}

	rows := h.views.Analytics(req.Window)
	metrics.Observe("analytics", start, false)
	c.Response().Header().Set(echo.HeaderCacheControl, "private, max-age=15")
	return xhttp.ListResponse(c, rows, len(rows))
}

func (h *MarketEchoHandler) Health(c echo.Context) error {
	return xhttp.SuccessResponse(c, h.views.Health())
}

func (h *MarketEchoHandler) Query(c echo.Context) error {
	start := time.Now()
	req := &models.QueryRequest{}
	if verr := xhttp.ReadAndValidateRequest(c, req); verr != nil {
		metrics.Observe("query", start, true)
		return xhttp.BadRequestResponse(c, verr)
	}

	ans, err := h.engine.Answer(c.Request().Context(), req.Question)
	metrics.Observe("query", start, err != nil)
	if err != nil {
		if !errors.Is(err, models.ErrQueryMalformed) {
			h.logger.Error("query usecase error", xlogger.Error(err))
		}
		return xhttp.AppErrorResponse(c, mapError(err))
	}
	return xhttp.SuccessResponse(c, ans)
}

type resetResponse struct {
	Mode  string `json:"mode"`
	Error string `json:"error,omitempty"`
}

func (h *MarketEchoHandler) ResetSource(c echo.Context) error {
	if h.source == nil {
		return xhttp.AppErrorResponse(c, xhttp.ServiceUnavailableError("ingestion is not running"))
	}
	mode := h.source.ResetSource()
	h.logger.Info("source reset by operator", xlogger.String("mode", string(mode)), xlogger.String("remote", c.RealIP()))
	return xhttp.SuccessResponse(c, resetResponse{Mode: string(mode)})
}

// ResetGenerative re-probes the provider. A failed probe is still a 200: the
// breaker stays open and the body carries the reason.
func (h *MarketEchoHandler) ResetGenerative(c echo.Context) error {
	mode, err := h.engine.Reset(c.Request().Context())
	resp := resetResponse{Mode: string(mode)}
	if err != nil {
		resp.Error = err.Error()
	}
	h.logger.Info("generative reset by operator", xlogger.String("mode", string(mode)), xlogger.String("remote", c.RealIP()))
	return xhttp.SuccessResponse(c, resp)
}

func (h *MarketEchoHandler) rateLimit(next echo.HandlerFunc) echo.HandlerFunc {
	return func(c echo.Context) error {
		if h.limiter != nil && !h.limiter.Allow(c.RealIP()) {
			metrics.Observe("query", time.Now(), true)
			return xhttp.AppErrorResponse(c, xhttp.TooManyRequestsError("too many questions, slow down"))
		}
		return next(c)
	}
}

func (h *MarketEchoHandler) requireAdmin(next echo.HandlerFunc) echo.HandlerFunc {
	return func(c echo.Context) error {
		if h.adminToken == "" {
			return next(c)
		}
		got := c.Request().Header.Get(adminTokenHeader)
		if subtle.ConstantTimeCompare([]byte(got), []byte(h.adminToken)) != 1 {
			return xhttp.AppErrorResponse(c, xhttp.NewAppError("ERR_UNAUTHORIZED", "", "admin token required", http.StatusUnauthorized))
		}
		return next(c)
	}
}

func mapError(err error) error {
	switch {
	case errors.Is(err, models.ErrQueryMalformed):
		return xhttp.BadRequestError("question must not be empty").WithError(err)
	case errors.Is(err, models.ErrNotFound):
		return xhttp.NotFoundError(err.Error()).WithError(err)
	default:
		return xhttp.InternalError("something went wrong").WithError(err)
	}
}
