package router // package router defines how HTTP routes are registered for the API

import (
	"github.com/labstack/echo/v4"

	"github.com/iliyamo/showtime-booking/internal/handler"
)

// RegisterRoutes registers the unauthenticated operational endpoints.
// /healthz answers while the process is up; /readyz also pings deps.
func RegisterRoutes(e *echo.Echo, deps map[string]handler.Pinger) {
	e.GET("/healthz", handler.Health)
	e.GET("/readyz", handler.Ready(deps))
}

// RegisterPublic registers the guest seat views.  Availability is rate
// limited and never cached; the static layout is served through the
// response cache.
func RegisterPublic(e *echo.Echo, h *handler.ShowtimeHandler, rateLimit, cache echo.MiddlewareFunc) {
	g := e.Group("/v1/showtimes")
	g.GET("/:id/seats", h.Seats, rateLimit)
	g.GET("/:id/layout", h.Layout, cache)
}
