package handler

import (
	"net/http"

	"github.com/labstack/echo/v4"
	"go.uber.org/zap"

	"github.com/iliyamo/showtime-booking/internal/service"
)

// ShowtimeHandler serves the public, unauthenticated seat views.
type ShowtimeHandler struct {
	Engine *service.Engine
	Log    *zap.Logger
}

// NewShowtimeHandler constructs a ShowtimeHandler.
func NewShowtimeHandler(engine *service.Engine, log *zap.Logger) *ShowtimeHandler {
	if engine == nil {
		panic("nil engine passed to NewShowtimeHandler")
	}
	if log == nil {
		log = zap.NewNop()
	}
	return &ShowtimeHandler{Engine: engine, Log: log}
}

// Seats handles GET /v1/showtimes/:id/seats: the current status of every
// seat grouped by row, plus totals.
func (h *ShowtimeHandler) Seats(c echo.Context) error {
	m, err := h.Engine.Availability(c.Request().Context(), pathID(c, "id"))
	if err != nil {
		return respondError(c, h.Log, err)
	}
	return c.JSON(http.StatusOK, m)
}

// Layout handles GET /v1/showtimes/:id/layout: the static row/seat grid.
// It never changes while the inventory exists, so the route is cached.
func (h *ShowtimeHandler) Layout(c echo.Context) error {
	l, err := h.Engine.Layout(c.Request().Context(), pathID(c, "id"))
	if err != nil {
		return respondError(c, h.Log, err)
	}
	return c.JSON(http.StatusOK, l)
}
