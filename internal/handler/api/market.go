package api

import (
	"time"

	"PairPulse/internal/domain/models"
	"PairPulse/internal/usecase"
	xhttp "PairPulse/pkg/http"
	applogger "PairPulse/pkg/logger"

	"github.com/labstack/echo/v4"
)

// MarketHandler serves buffered ticks, candles and buffer statistics.
type MarketHandler struct {
	logger *applogger.Logger
	uc     *usecase.MarketDataUseCase
}

func NewMarketHandler(logger *applogger.Logger, uc *usecase.MarketDataUseCase) *MarketHandler {
	return &MarketHandler{logger: logger, uc: uc}
}

func (h *MarketHandler) RegisterRoutes(e *echo.Echo) {
	g := e.Group("/api")
	g.GET("/ticks", h.Ticks)
	g.DELETE("/ticks", h.ClearTicks)
	g.GET("/candles", h.Candles)
	g.GET("/stats", h.Stats)
	g.GET("/symbols", h.Symbols)
	g.GET("/timeframes", h.Timeframes)
}

func (h *MarketHandler) Ticks(c echo.Context) error {
	req := &models.TicksRequest{}
	if verr := xhttp.ReadAndValidateRequest(c, req); verr != nil {
		return xhttp.BadRequestResponse(c, verr)
	}
	from, to, verr := parseRange(req.From, req.To)
	if verr != nil {
		return xhttp.BadRequestResponse(c, verr)
	}
	res, err := h.uc.GetTicks(usecase.GetTicksParams{Symbol: req.Symbol, From: from, To: to, Limit: req.Limit})
	if err != nil {
		return h.fail(c, "ticks", err)
	}
	return xhttp.SuccessResponse(c, res)
}

func (h *MarketHandler) ClearTicks(c echo.Context) error {
	req := &models.ClearTicksRequest{}
	if verr := xhttp.ReadAndValidateRequest(c, req); verr != nil {
		return xhttp.BadRequestResponse(c, verr)
	}
	h.uc.Clear(req.Symbol)
	h.logger.Info("ticks cleared", applogger.String("symbol", req.Symbol))
	return xhttp.NoContentResponse(c)
}

func (h *MarketHandler) Candles(c echo.Context) error {
	req := &models.CandlesRequest{}
	if verr := xhttp.ReadAndValidateRequest(c, req); verr != nil {
		return xhttp.BadRequestResponse(c, verr)
	}
	from, to, verr := parseRange(req.From, req.To)
	if verr != nil {
		return xhttp.BadRequestResponse(c, verr)
	}
	res, err := h.uc.GetCandles(usecase.GetCandlesParams{
		Symbol:     req.Symbol,
		Timeframe:  req.Timeframe,
		From:       from,
		To:         to,
		Limit:      req.Limit,
		ClosedOnly: req.ClosedOnly,
	})
	if err != nil {
		return h.fail(c, "candles", err)
	}
	return xhttp.SuccessResponse(c, res)
}

// Stats reports one symbol when ?symbol is set and every symbol otherwise.
func (h *MarketHandler) Stats(c echo.Context) error {
	req := &models.StatsRequest{}
	if verr := xhttp.ReadAndValidateRequest(c, req); verr != nil {
		return xhttp.BadRequestResponse(c, verr)
	}
	if req.Symbol == "" {
		all := h.uc.AllStats()
		return xhttp.ListResponse(c, all, int64(len(all)))
	}
	st, err := h.uc.Stats(req.Symbol)
	if err != nil {
		return h.fail(c, "stats", err)
	}
	return xhttp.SuccessResponse(c, st)
}

func (h *MarketHandler) Symbols(c echo.Context) error {
	syms := h.uc.Symbols()
	return xhttp.ListResponse(c, syms, int64(len(syms)))
}

func (h *MarketHandler) Timeframes(c echo.Context) error {
	tfs := h.uc.Timeframes()
	return xhttp.ListResponse(c, tfs, int64(len(tfs)))
}

func (h *MarketHandler) fail(c echo.Context, endpoint string, err error) error {
	appErr, kind := toAppError(err)
	if kind == "" {
		h.logger.Error("market usecase error", applogger.String("endpoint", endpoint), applogger.Error(err))
	}
	return xhttp.AppErrorResponse(c, appErr)
}

func parseRange(fromRaw, toRaw string) (time.Time, time.Time, []xhttp.ValidationError) {
	var from, to time.Time
	var errs []xhttp.ValidationError
	if fromRaw != "" {
		t, ok := xhttp.ParseTime(fromRaw)
		if !ok {
			errs = append(errs, xhttp.ValidationError{Code: "ERR_TIME", Field: "from", Message: "from must be RFC3339 or unix time"})
		}
		from = t
	}
	if toRaw != "" {
		t, ok := xhttp.ParseTime(toRaw)
		if !ok {
			errs = append(errs, xhttp.ValidationError{Code: "ERR_TIME", Field: "to", Message: "to must be RFC3339 or unix time"})
		}
		to = t
	}
	return from, to, errs
}
