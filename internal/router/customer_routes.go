package router

import (
	"github.com/labstack/echo/v4"

	"github.com/iliyamo/showtime-booking/internal/handler"
	"github.com/iliyamo/showtime-booking/internal/middleware"
)

// RegisterCustomer registers the booking endpoints under /v1.  All routes
// require a valid JWT and the CUSTOMER role; handlers scope every booking
// lookup to the caller.
func RegisterCustomer(e *echo.Echo, h *handler.BookingHandler, jwtSecret string) {
	g := e.Group(
		"/v1",
		middleware.JWTAuth(jwtSecret),
		middleware.RequireRole(middleware.RoleCustomer),
	)
	g.POST("/showtimes/:id/reservations", h.Reserve)
	g.GET("/my-bookings", h.MyBookings)
	g.GET("/bookings/:id", h.Get)
	g.GET("/bookings/:id/history", h.History)
	g.POST("/bookings/:id/checkout", h.Checkout)
	g.POST("/bookings/:id/retry", h.Retry)
	g.DELETE("/bookings/:id", h.Cancel)
}
