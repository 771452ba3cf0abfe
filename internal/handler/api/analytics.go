package api

import (
	"time"

	"PairPulse/internal/domain/models"
	"PairPulse/internal/service/metrics"
	"PairPulse/internal/service/ratelimit"
	"PairPulse/internal/usecase"
	xhttp "PairPulse/pkg/http"
	applogger "PairPulse/pkg/logger"

	"github.com/labstack/echo/v4"
)

// AnalyticsHandler exposes pair analytics and the stationarity test. Every
// endpoint is rate limited per client address.
type AnalyticsHandler struct {
	logger  *applogger.Logger
	uc      *usecase.PairAnalyticsUseCase
	rl      ratelimit.Allower
	metrics *metrics.EndpointMetrics
}

// NewAnalyticsHandler wires the handler. rl and m may be nil.
func NewAnalyticsHandler(logger *applogger.Logger, uc *usecase.PairAnalyticsUseCase, rl ratelimit.Allower, m *metrics.EndpointMetrics) *AnalyticsHandler {
	return &AnalyticsHandler{logger: logger, uc: uc, rl: rl, metrics: m}
}

func (h *AnalyticsHandler) RegisterRoutes(e *echo.Echo) {
	g := e.Group("/api/analytics")
	g.GET("/pair", h.Pair)
	g.GET("/adf", h.Stationarity)
	g.GET("/batch", h.Batch)
}

func (h *AnalyticsHandler) Pair(c echo.Context) error {
	const endpoint = "pair"
	start := time.Now()
	if !h.allow(c, endpoint) {
		return xhttp.AppErrorResponse(c, xhttp.TooManyRequestsError("rate limited"))
	}
	req := &models.PairRequest{}
	if verr := xhttp.ReadAndValidateRequest(c, req); verr != nil {
		h.metrics.Observe(endpoint, start, "validation")
		return xhttp.BadRequestResponse(c, verr)
	}

	snap, err := h.uc.Analyze(c.Request().Context(), pairParams(req))
	if err != nil {
		return h.fail(c, endpoint, start, err)
	}
	h.metrics.Observe(endpoint, start, "")
	return xhttp.SuccessResponse(c, snap)
}

func (h *AnalyticsHandler) Stationarity(c echo.Context) error {
	const endpoint = "adf"
	start := time.Now()
	if !h.allow(c, endpoint) {
		return xhttp.AppErrorResponse(c, xhttp.TooManyRequestsError("rate limited"))
	}
	req := &models.PairRequest{}
	if verr := xhttp.ReadAndValidateRequest(c, req); verr != nil {
		h.metrics.Observe(endpoint, start, "validation")
		return xhttp.BadRequestResponse(c, verr)
	}

	res, err := h.uc.Stationarity(c.Request().Context(), pairParams(req))
	if err != nil {
		return h.fail(c, endpoint, start, err)
	}
	h.metrics.Observe(endpoint, start, "")
	return xhttp.SuccessResponse(c, res)
}

func (h *AnalyticsHandler) Batch(c echo.Context) error {
	const endpoint = "batch"
	start := time.Now()
	if !h.allow(c, endpoint) {
		return xhttp.AppErrorResponse(c, xhttp.TooManyRequestsError("rate limited"))
	}
	req := &models.BatchPairsRequest{}
	if verr := xhttp.ReadAndValidateRequest(c, req); verr != nil {
		h.metrics.Observe(endpoint, start, "validation")
		return xhttp.BadRequestResponse(c, verr)
	}

	res, err := h.uc.Batch(c.Request().Context(), usecase.BatchParams{
		Pairs:     xhttp.SplitCSV(req.Pairs),
		Timeframe: req.Timeframe,
		Window:    req.Window,
		Estimator: req.Estimator,
	})
	if err != nil {
		return h.fail(c, endpoint, start, err)
	}
	h.metrics.Observe(endpoint, start, "")
	return xhttp.SuccessResponse(c, res)
}

func (h *AnalyticsHandler) allow(c echo.Context, endpoint string) bool {
	if h.rl == nil || h.rl.Allow(c.RealIP()+":"+endpoint) {
		return true
	}
	h.metrics.RateLimited(endpoint)
	h.logger.Debug("analytics rate limited", applogger.String("endpoint", endpoint), applogger.String("remote", c.RealIP()))
	return false
}

func (h *AnalyticsHandler) fail(c echo.Context, endpoint string, start time.Time, err error) error {
	appErr, kind := toAppError(err)
	if kind == "" {
		h.logger.Error("analytics usecase error", applogger.String("endpoint", endpoint), applogger.Error(err))
		kind = "internal"
	}
	h.metrics.Observe(endpoint, start, kind)
	return xhttp.AppErrorResponse(c, appErr)
}

func pairParams(req *models.PairRequest) usecase.PairParams {
	return usecase.PairParams{
		Pair:      req.Pair,
		Timeframe: req.Timeframe,
		Window:    req.Window,
		Estimator: req.Estimator,
	}
}
