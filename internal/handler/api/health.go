package api

import (
	"context"
	"net/http"
	"time"

	domrepo "StockPulse/internal/domain/repository"
	"StockPulse/internal/usecase"
	xlogger "StockPulse/pkg/logger"

	"github.com/labstack/echo/v4"
)

// HealthHandler reports component health: stream connectivity, storage
// reachability and recent aggregated errors.
type HealthHandler struct {
	logger    *xlogger.Logger
	collector *usecase.BarCollector
	store     domrepo.CandleStore
	startedAt time.Time
}

func NewHealthHandler(logger *xlogger.Logger, collector *usecase.BarCollector, store domrepo.CandleStore) *HealthHandler {
	return &HealthHandler{
		logger:    logger,
		collector: collector,
		store:     store,
		startedAt: time.Now().UTC(),
	}
}

func (h *HealthHandler) Health(c echo.Context) error {
	ctx, cancel := context.WithTimeout(c.Request().Context(), 2*time.Second)
	defer cancel()

	storageOK := true
	if h.store != nil {
		if err := h.store.Health(ctx); err != nil {
			storageOK = false
		}
	}

	streamOK := h.collector == nil || h.collector.IsConnected()

	status := http.StatusOK
	state := "ok"
	if !storageOK {
		status = http.StatusServiceUnavailable
		state = "degraded"
	} else if !streamOK {
		state = "degraded"
	}

	return c.JSON(status, map[string]interface{}{
		"status":           state,
		"stream_connected": streamOK,
		"storage_ok":       storageOK,
		"uptime_seconds":   int(time.Since(h.startedAt).Seconds()),
		"recent_errors":    h.logger.RecentErrors(),
	})
}
