package api

import (
	"errors"
	"net/http"
	"time"

	models "StockPulse/internal/domain/models"
	"StockPulse/internal/service/ratelimit"
	"StockPulse/internal/usecase"
	xhttp "StockPulse/pkg/http"
	xlogger "StockPulse/pkg/logger"
	"StockPulse/pkg/queue"

	"github.com/labstack/echo/v4"
)

// ForecastHandler implements Echo-based HTTP handlers for the forecasting API.
type ForecastHandler struct {
	logger   *xlogger.Logger
	analyzer *usecase.AnalyzerUseCase
	candles  *usecase.CandlesUseCase
	health   *HealthHandler
	queue    queue.QueueService
	limiter  *ratelimit.Limiter
}

func NewForecastHandler(
	logger *xlogger.Logger,
	analyzer *usecase.AnalyzerUseCase,
	candles *usecase.CandlesUseCase,
	health *HealthHandler,
	q queue.QueueService,
	limiter *ratelimit.Limiter,
) *ForecastHandler {
	return &ForecastHandler{
		logger:   logger,
		analyzer: analyzer,
		candles:  candles,
		health:   health,
		queue:    q,
		limiter:  limiter,
	}
}

func (h *ForecastHandler) RegisterRoutes(e *echo.Echo) {
	g := e.Group("/api")
	g.GET("/analyze", h.Analyze)
	g.POST("/analyze", h.Analyze)
	g.POST("/train", h.Train)
	g.GET("/candles", h.Candles)
	g.GET("/signals", h.Signals)
	if h.health != nil {
		e.GET("/api/health", h.health.Health)
	}
}

func (h *ForecastHandler) Analyze(c echo.Context) error {
	req := &models.AnalyzeRequest{}
	if verr := xhttp.ReadAndValidateRequest(c, req); verr != nil {
		return xhttp.BadRequestResponse(c, verr)
	}

	res, err := h.analyzer.Analyze(c.Request().Context(), *req)
	if err != nil {
		h.logger.Error("analyze usecase error", xlogger.Error(err))
		return xhttp.AppErrorResponse(c, mapDomainError(err))
	}
	c.Response().Header().Set(echo.HeaderCacheControl, "private, max-age=60")
	return xhttp.SuccessResponse(c, res)
}

// Train enqueues a background training run for the instrument. Training is
// never run on the request path.
func (h *ForecastHandler) Train(c echo.Context) error {
	req := &models.TrainRequest{}
	if verr := xhttp.ReadAndValidateRequest(c, req); verr != nil {
		return xhttp.BadRequestResponse(c, verr)
	}

	if h.queue == nil {
		return xhttp.AppErrorResponse(c,
			xhttp.NewAppError("ERR_TRAINING_UNAVAILABLE", "", "training queue is not configured", http.StatusServiceUnavailable))
	}

	key := req.Key()
	if h.limiter != nil && !h.limiter.Allow("train:"+key.String(), 3, 1.0/60) {
		return xhttp.AppErrorResponse(c,
			xhttp.NewAppError("ERR_RATE_LIMITED", "", "training requests are rate limited", http.StatusTooManyRequests))
	}

	payload := usecase.TrainJobPayload{
		Symbol:   key.Symbol,
		Exchange: key.Exchange,
		Lookback: req.Lookback,
	}
	if err := h.queue.PublishMessage(c.Request().Context(), usecase.TrainJobType, payload); err != nil {
		h.logger.Error("train enqueue error", xlogger.Error(err))
		return xhttp.AppErrorResponse(c, err)
	}

	return xhttp.SuccessResponse(c, map[string]interface{}{
		"status":   "queued",
		"symbol":   key.Symbol,
		"exchange": key.Exchange,
		"lookback": payload.Lookback,
	})
}

func (h *ForecastHandler) Candles(c echo.Context) error {
	req := &models.CandlesRequest{}
	if verr := xhttp.ReadAndValidateRequest(c, req); verr != nil {
		return xhttp.BadRequestResponse(c, verr)
	}

	now := time.Now().UTC()
	params := usecase.GetCandlesParams{
		Symbol:   req.Symbol,
		Exchange: req.Exchange,
		From:     xhttp.ParseTimeDefault(req.From, now.AddDate(-2, 0, 0)),
		To:       xhttp.ParseTimeDefault(req.To, now),
		Limit:    req.Limit,
	}

	res, err := h.candles.GetCandles(c.Request().Context(), params)
	if err != nil {
		h.logger.Error("candles usecase error", xlogger.Error(err))
		return xhttp.AppErrorResponse(c, mapDomainError(err))
	}
	return xhttp.SuccessResponse(c, res)
}

func (h *ForecastHandler) Signals(c echo.Context) error {
	req := &models.SignalsRequest{}
	if verr := xhttp.ReadAndValidateRequest(c, req); verr != nil {
		return xhttp.BadRequestResponse(c, verr)
	}

	res, err := h.analyzer.Analyze(c.Request().Context(), models.AnalyzeRequest{
		Symbol:   req.Symbol,
		Exchange: req.Exchange,
		Lookback: req.Lookback,
		Signals:  true,
	})
	if err != nil {
		h.logger.Error("signals usecase error", xlogger.Error(err))
		return xhttp.AppErrorResponse(c, mapDomainError(err))
	}
	return xhttp.SuccessResponse(c, res.Signals)
}

// mapDomainError translates domain sentinels into HTTP application errors so
// clients can distinguish data problems from server faults.
func mapDomainError(err error) error {
	switch {
	case errors.Is(err, models.ErrInsufficientData):
		return xhttp.NewAppError("ERR_INSUFFICIENT_DATA", "", err.Error(), http.StatusUnprocessableEntity).WithError(err)
	case errors.Is(err, models.ErrInvalidPrice):
		return xhttp.NewAppError("ERR_INVALID_PRICE", "", err.Error(), http.StatusUnprocessableEntity).WithError(err)
	case errors.Is(err, models.ErrConstantTarget):
		return xhttp.NewAppError("ERR_CONSTANT_TARGET", "", err.Error(), http.StatusUnprocessableEntity).WithError(err)
	case errors.Is(err, models.ErrTrainingInProgress):
		return xhttp.NewAppError("ERR_TRAINING_IN_PROGRESS", "", err.Error(), http.StatusConflict).WithError(err)
	case errors.Is(err, models.ErrArtifactNotFound):
		return xhttp.NotFoundError(err.Error()).WithError(err)
	default:
		return err
	}
}
