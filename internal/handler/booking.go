package handler

import (
	"net/http"

	"github.com/labstack/echo/v4"
	"go.uber.org/zap"

	"github.com/iliyamo/showtime-booking/internal/service"
)

// BookingHandler serves the customer booking lifecycle: reserve, inspect,
// pay, retry and cancel.  All routes run behind JWTAuth and
// RequireRole(CUSTOMER); a booking owned by someone else is reported as not
// found.
type BookingHandler struct {
	Engine *service.Engine
	Log    *zap.Logger
}

// NewBookingHandler constructs a BookingHandler and panics if engine is nil.
func NewBookingHandler(engine *service.Engine, log *zap.Logger) *BookingHandler {
	if engine == nil {
		panic("nil engine passed to NewBookingHandler")
	}
	if log == nil {
		log = zap.NewNop()
	}
	return &BookingHandler{Engine: engine, Log: log}
}

type reserveRequest struct {
	Seats []string `json:"seats" validate:"required,max=100"`
}

// Reserve handles POST /v1/showtimes/:id/reservations.  The body holds the
// seat identifiers, e.g. {"seats":["A1","A2"]}.  On success the seats are
// HELD for the booking and 201 is returned with the booking, including its
// hold expiry; any unavailable seat fails the whole request with 409 and
// the conflicting seats.
func (h *BookingHandler) Reserve(c echo.Context) error {
	userID, err := getUserID(c)
	if err != nil {
		return c.JSON(http.StatusUnauthorized, echo.Map{"error": "unauthorized"})
	}
	showtimeID := pathID(c, "id")
	if showtimeID == "" {
		return badRequest(c, "invalid showtime id")
	}
	var body reserveRequest
	if ok, err := bindAndValidate(c, &body); !ok {
		return err
	}

	b, err := h.Engine.Reserve(c.Request().Context(), service.ReserveRequest{
		ShowtimeID: showtimeID,
		UserID:     userID,
		Seats:      body.Seats,
	})
	if err != nil {
		return respondError(c, h.Log, err)
	}
	return c.JSON(http.StatusCreated, echo.Map{
		"booking":         b,
		"hold_expires_at": b.UpdatedAt.Add(h.Engine.Config().HoldTTL),
	})
}

// MyBookings handles GET /v1/my-bookings, newest first.
func (h *BookingHandler) MyBookings(c echo.Context) error {
	userID, err := getUserID(c)
	if err != nil {
		return c.JSON(http.StatusUnauthorized, echo.Map{"error": "unauthorized"})
	}
	list, err := h.Engine.BookingsByUser(c.Request().Context(), userID)
	if err != nil {
		return respondError(c, h.Log, err)
	}
	return c.JSON(http.StatusOK, echo.Map{"items": list, "count": len(list)})
}

// Get handles GET /v1/bookings/:id.
func (h *BookingHandler) Get(c echo.Context) error {
	userID, err := getUserID(c)
	if err != nil {
		return c.JSON(http.StatusUnauthorized, echo.Map{"error": "unauthorized"})
	}
	b, err := h.Engine.Booking(c.Request().Context(), pathID(c, "id"), userID)
	if err != nil {
		return respondError(c, h.Log, err)
	}
	return c.JSON(http.StatusOK, b)
}

// History handles GET /v1/bookings/:id/history.
func (h *BookingHandler) History(c echo.Context) error {
	userID, err := getUserID(c)
	if err != nil {
		return c.JSON(http.StatusUnauthorized, echo.Map{"error": "unauthorized"})
	}
	history, err := h.Engine.History(c.Request().Context(), pathID(c, "id"), userID)
	if err != nil {
		return respondError(c, h.Log, err)
	}
	return c.JSON(http.StatusOK, echo.Map{"booking_id": pathID(c, "id"), "history": history})
}

// Checkout handles POST /v1/bookings/:id/checkout.  It opens a payment
// session and moves the booking to PENDING_PAYMENT; the client follows
// redirect_url to pay.  A hold that lapsed before checkout yields 410.
func (h *BookingHandler) Checkout(c echo.Context) error {
	userID, err := getUserID(c)
	if err != nil {
		return c.JSON(http.StatusUnauthorized, echo.Map{"error": "unauthorized"})
	}
	res, err := h.Engine.StartCheckout(c.Request().Context(), pathID(c, "id"), userID)
	if err != nil {
		return respondError(c, h.Log, err)
	}
	return c.JSON(http.StatusOK, res)
}

// Retry handles POST /v1/bookings/:id/retry for a PAYMENT_FAILED booking.
// The same seats are held again when all of them are still free.
func (h *BookingHandler) Retry(c echo.Context) error {
	userID, err := getUserID(c)
	if err != nil {
		return c.JSON(http.StatusUnauthorized, echo.Map{"error": "unauthorized"})
	}
	b, err := h.Engine.Retry(c.Request().Context(), pathID(c, "id"), userID, 0)
	if err != nil {
		return respondError(c, h.Log, err)
	}
	return c.JSON(http.StatusOK, b)
}

// Cancel handles DELETE /v1/bookings/:id.  Bookings that hold seats for a
// showtime starting within the cancellation cutoff are refused with 409.
func (h *BookingHandler) Cancel(c echo.Context) error {
	userID, err := getUserID(c)
	if err != nil {
		return c.JSON(http.StatusUnauthorized, echo.Map{"error": "unauthorized"})
	}
	b, err := h.Engine.Cancel(c.Request().Context(), service.CancelRequest{
		BookingID: pathID(c, "id"),
		UserID:    userID,
	})
	if err != nil {
		return respondError(c, h.Log, err)
	}
	return c.JSON(http.StatusOK, b)
}
