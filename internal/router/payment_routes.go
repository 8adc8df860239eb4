package router

import (
	"github.com/labstack/echo/v4"

	"github.com/iliyamo/showtime-booking/internal/handler"
	"github.com/iliyamo/showtime-booking/internal/middleware"
)

// RegisterPayments registers the payment outcome endpoints.  The Stripe
// webhook authenticates by signature, so it sits outside JWTAuth; the
// internal outcome endpoint accepts PAYMENT service tokens and admins.
func RegisterPayments(e *echo.Echo, h *handler.PaymentHandler, jwtSecret string) {
	e.POST("/v1/payments/stripe/webhook", h.StripeWebhook)

	g := e.Group(
		"/v1/payments",
		middleware.JWTAuth(jwtSecret),
		middleware.RequireRole(middleware.RolePayment, middleware.RoleAdmin),
	)
	g.POST("/:correlation_id/outcome", h.Outcome)
}
