package handler

import (
	"context"
	"errors"
	"net/http"

	"github.com/labstack/echo/v4"
	"go.uber.org/zap"

	"github.com/iliyamo/showtime-booking/internal/model"
	"github.com/iliyamo/showtime-booking/internal/service"
)

// LayoutPurger drops cached layout responses of a showtime.
type LayoutPurger func(ctx context.Context, showtimeID string) error

// AdminHandler provisions seat inventories and manages any user's bookings.
type AdminHandler struct {
	Engine *service.Engine
	Log    *zap.Logger
	// PurgeLayout runs after an inventory is created or removed; nil skips it.
	PurgeLayout LayoutPurger
}

// NewAdminHandler constructs an AdminHandler.
func NewAdminHandler(engine *service.Engine, purge LayoutPurger, log *zap.Logger) *AdminHandler {
	if engine == nil {
		panic("nil engine passed to NewAdminHandler")
	}
	if log == nil {
		log = zap.NewNop()
	}
	return &AdminHandler{Engine: engine, Log: log, PurgeLayout: purge}
}

type initializeRequest struct {
	TotalSeats  int `json:"total_seats" validate:"max=10000"`
	SeatsPerRow int `json:"seats_per_row" validate:"max=500"`
}

// InitializeSeats handles POST /v1/admin/showtimes/:id/seats with body
// {"total_seats":120,"seats_per_row":12}.  A second call for the same
// showtime answers 409 together with the existing layout.
func (h *AdminHandler) InitializeSeats(c echo.Context) error {
	showtimeID := pathID(c, "id")
	if showtimeID == "" {
		return badRequest(c, "invalid showtime id")
	}
	var body initializeRequest
	if ok, err := bindAndValidate(c, &body); !ok {
		return err
	}

	ctx := c.Request().Context()
	inv, err := h.Engine.Initialize(ctx, showtimeID, body.TotalSeats, body.SeatsPerRow)
	if errors.Is(err, model.ErrAlreadyInitialized) {
		status, resp := errorBody(err)
		if layout, lerr := h.Engine.Layout(ctx, showtimeID); lerr == nil {
			resp["layout"] = layout
		}
		return c.JSON(status, resp)
	}
	if err != nil {
		return respondError(c, h.Log, err)
	}
	h.purge(ctx, showtimeID)

	layout, err := h.Engine.Layout(ctx, showtimeID)
	if err != nil {
		return respondError(c, h.Log, err)
	}
	return c.JSON(http.StatusCreated, echo.Map{"inventory": inv, "layout": layout})
}

// DeinitializeSeats handles DELETE /v1/admin/showtimes/:id/seats.  It is
// refused with 409 while any seat is held or booked.
func (h *AdminHandler) DeinitializeSeats(c echo.Context) error {
	showtimeID := pathID(c, "id")
	if err := h.Engine.Deinitialize(c.Request().Context(), showtimeID); err != nil {
		return respondError(c, h.Log, err)
	}
	h.purge(c.Request().Context(), showtimeID)
	return c.NoContent(http.StatusNoContent)
}

// GetBooking handles GET /v1/admin/bookings/:id for any user's booking.
func (h *AdminHandler) GetBooking(c echo.Context) error {
	b, err := h.Engine.Booking(c.Request().Context(), pathID(c, "id"), "")
	if err != nil {
		return respondError(c, h.Log, err)
	}
	return c.JSON(http.StatusOK, b)
}

// CancelBooking handles DELETE /v1/admin/bookings/:id.  Admin cancellation
// ignores ownership and the cancellation cutoff.
func (h *AdminHandler) CancelBooking(c echo.Context) error {
	b, err := h.Engine.Cancel(c.Request().Context(), service.CancelRequest{
		BookingID: pathID(c, "id"),
		Admin:     true,
	})
	if err != nil {
		return respondError(c, h.Log, err)
	}
	return c.JSON(http.StatusOK, b)
}

// Sweep handles POST /v1/admin/sweep: reclaim every expired hold now
// instead of waiting for the background sweeper.
func (h *AdminHandler) Sweep(c echo.Context) error {
	res, err := h.Engine.ExpireHolds(c.Request().Context())
	if err != nil {
		return respondError(c, h.Log, err)
	}
	return c.JSON(http.StatusOK, res)
}

func (h *AdminHandler) purge(ctx context.Context, showtimeID string) {
	if h.PurgeLayout == nil {
		return
	}
	if err := h.PurgeLayout(ctx, showtimeID); err != nil {
		h.Log.Warn("layout cache purge failed", zap.String("showtime_id", showtimeID), zap.Error(err))
	}
}
