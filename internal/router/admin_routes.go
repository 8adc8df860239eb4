package router

import (
	"github.com/labstack/echo/v4"

	"github.com/iliyamo/showtime-booking/internal/handler"
	"github.com/iliyamo/showtime-booking/internal/middleware"
)

// RegisterAdmin registers ADMIN-scoped endpoints under /v1/admin: seat
// inventory provisioning, booking overrides and an on-demand hold sweep.
func RegisterAdmin(e *echo.Echo, h *handler.AdminHandler, jwtSecret string) {
	g := e.Group(
		"/v1/admin",
		middleware.JWTAuth(jwtSecret),
		middleware.RequireRole(middleware.RoleAdmin),
	)
	g.POST("/showtimes/:id/seats", h.InitializeSeats)
	g.DELETE("/showtimes/:id/seats", h.DeinitializeSeats)
	g.GET("/bookings/:id", h.GetBooking)
	g.DELETE("/bookings/:id", h.CancelBooking)
	g.POST("/sweep", h.Sweep)
}
