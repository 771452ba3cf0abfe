package api

import (
	"fmt"

	"PairPulse/internal/domain/models"
	"PairPulse/internal/services/alerts"
	xhttp "PairPulse/pkg/http"
	applogger "PairPulse/pkg/logger"

	"github.com/labstack/echo/v4"
)

// AlertsHandler manages alert rules and the triggered history.
type AlertsHandler struct {
	logger *applogger.Logger
	engine *alerts.Engine
}

func NewAlertsHandler(logger *applogger.Logger, engine *alerts.Engine) *AlertsHandler {
	return &AlertsHandler{logger: logger, engine: engine}
}

func (h *AlertsHandler) RegisterRoutes(e *echo.Echo) {
	g := e.Group("/api/alerts")
	g.POST("", h.Create)
	g.GET("", h.List)
	// Static paths win over :id in echo's router.
	g.GET("/triggered", h.Triggered)
	g.DELETE("/triggered", h.ClearTriggered)
	g.GET("/:id", h.Get)
	g.PATCH("/:id", h.Update)
	g.DELETE("/:id", h.Delete)
}

func (h *AlertsHandler) Create(c echo.Context) error {
	req := &models.CreateAlertRequest{}
	if verr := xhttp.ReadAndValidateRequest(c, req); verr != nil {
		return xhttp.BadRequestResponse(c, verr)
	}
	rule, err := h.engine.CreateRule(alerts.RuleSpec{
		Metric:    req.Metric,
		Pair:      req.Pair,
		Operator:  req.Operator,
		Threshold: *req.Threshold,
		Timeframe: req.Timeframe,
		Window:    req.Window,
		Estimator: req.Estimator,
	})
	if err != nil {
		return h.fail(c, err)
	}
	return xhttp.CreatedResponse(c, rule)
}

func (h *AlertsHandler) List(c echo.Context) error {
	rules := h.engine.Rules()
	return xhttp.ListResponse(c, rules, int64(len(rules)))
}

func (h *AlertsHandler) Get(c echo.Context) error {
	id := c.Param("id")
	rule, ok := h.engine.Rule(id)
	if !ok {
		return h.fail(c, fmt.Errorf("%w: %s", models.ErrRuleNotFound, id))
	}
	return xhttp.SuccessResponse(c, rule)
}

// Update toggles a rule on or off.
func (h *AlertsHandler) Update(c echo.Context) error {
	req := &models.UpdateAlertRequest{}
	if verr := xhttp.ReadAndValidateRequest(c, req); verr != nil {
		return xhttp.BadRequestResponse(c, verr)
	}
	rule, err := h.engine.SetActive(req.ID, *req.Active)
	if err != nil {
		return h.fail(c, err)
	}
	return xhttp.SuccessResponse(c, rule)
}

func (h *AlertsHandler) Delete(c echo.Context) error {
	if err := h.engine.DeleteRule(c.Param("id")); err != nil {
		return h.fail(c, err)
	}
	return xhttp.NoContentResponse(c)
}

func (h *AlertsHandler) Triggered(c echo.Context) error {
	req := &models.TriggeredRequest{}
	if verr := xhttp.ReadAndValidateRequest(c, req); verr != nil {
		return xhttp.BadRequestResponse(c, verr)
	}
	events := h.engine.Triggered(req.Limit)
	return xhttp.ListResponse(c, events, int64(len(events)))
}

func (h *AlertsHandler) ClearTriggered(c echo.Context) error {
	h.engine.ClearTriggered()
	return xhttp.NoContentResponse(c)
}

func (h *AlertsHandler) fail(c echo.Context, err error) error {
	appErr, kind := toAppError(err)
	if kind == "" {
		h.logger.Error("alerts error", applogger.Error(err))
	}
	return xhttp.AppErrorResponse(c, appErr)
}
