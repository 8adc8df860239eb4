package handler

import (
	"errors"
	"net/http"

	"github.com/labstack/echo/v4"
	"go.uber.org/zap"

	"github.com/iliyamo/showtime-booking/internal/model"
)

// Error codes returned in the "code" field of error bodies.
const (
	CodeValidation               = "VALIDATION_FAILED"
	CodeMalformedSeat            = "MALFORMED_SEAT_IDENTIFIER"
	CodeUnknownSeat              = "UNKNOWN_SEAT"
	CodeEmptySelection           = "EMPTY_SELECTION"
	CodeInvalidLayout            = "INVALID_LAYOUT"
	CodeNotFound                 = "NOT_FOUND"
	CodeUnknownCorrelation       = "UNKNOWN_CORRELATION"
	CodeSeatConflict             = "SEAT_CONFLICT"
	CodeSeatsNoLongerAvailable   = "SEATS_NO_LONGER_AVAILABLE"
	CodeInvalidStateTransition   = "INVALID_STATE_TRANSITION"
	CodeAlreadyInitialized       = "ALREADY_INITIALIZED"
	CodeSeatsInUse               = "SEATS_IN_USE"
	CodeCancellationWindowClosed = "CANCELLATION_WINDOW_CLOSED"
	CodeHoldExpired              = "HOLD_EXPIRED"
	CodeLockTimeout              = "LOCK_TIMEOUT"
	CodeInternal                 = "INTERNAL"
)

// errorBody maps an engine error to its HTTP status and JSON body.
func errorBody(err error) (int, echo.Map) {
	body := echo.Map{"error": err.Error()}
	set := func(status int, code string) (int, echo.Map) {
		body["code"] = code
		return status, body
	}

	var conflict *model.SeatConflictError
	var inUse *model.SeatsInUseError
	var unknown *model.UnknownSeatError
	var transition *model.InvalidTransitionError

	switch {
	case errors.As(err, &conflict):
		body["seats"] = conflict.Seats
		if errors.Is(err, model.ErrSeatsNoLongerAvailable) {
			return set(http.StatusConflict, CodeSeatsNoLongerAvailable)
		}
		return set(http.StatusConflict, CodeSeatConflict)
	case errors.As(err, &inUse):
		body["seats"] = inUse.Seats
		return set(http.StatusConflict, CodeSeatsInUse)
	case errors.As(err, &unknown):
		body["seats"] = unknown.Seats
		return set(http.StatusBadRequest, CodeUnknownSeat)
	case errors.As(err, &transition):
		body["current"] = transition.Current
		body["requested"] = transition.Requested
		return set(http.StatusConflict, CodeInvalidStateTransition)
	case errors.Is(err, model.ErrMalformedSeatIdentifier):
		return set(http.StatusBadRequest, CodeMalformedSeat)
	case errors.Is(err, model.ErrEmptySelection):
		return set(http.StatusBadRequest, CodeEmptySelection)
	case errors.Is(err, model.ErrInvalidLayout):
		return set(http.StatusBadRequest, CodeInvalidLayout)
	case errors.Is(err, model.ErrUnknownCorrelation):
		return set(http.StatusNotFound, CodeUnknownCorrelation)
	case model.IsNotFound(err):
		return set(http.StatusNotFound, CodeNotFound)
	case errors.Is(err, model.ErrAlreadyInitialized):
		return set(http.StatusConflict, CodeAlreadyInitialized)
	case errors.Is(err, model.ErrCancellationWindowClosed):
		return set(http.StatusConflict, CodeCancellationWindowClosed)
	case errors.Is(err, model.ErrHoldExpired):
		return set(http.StatusGone, CodeHoldExpired)
	case errors.Is(err, model.ErrLockTimeout):
		return set(http.StatusServiceUnavailable, CodeLockTimeout)
	}
	body["error"] = "internal error"
	return set(http.StatusInternalServerError, CodeInternal)
}

// respondError writes the JSON error response for err.  Server errors are
// logged with the underlying cause, which is not exposed to the client.
func respondError(c echo.Context, log *zap.Logger, err error) error {
	status, body := errorBody(err)
	switch status {
	case http.StatusInternalServerError:
		log.Error("request failed",
			zap.String("method", c.Request().Method),
			zap.String("path", c.Request().URL.Path),
			zap.Error(err))
	case http.StatusServiceUnavailable:
		c.Response().Header().Set("Retry-After", "1")
	}
	return c.JSON(status, body)
}

func badRequest(c echo.Context, msg string) error {
	return c.JSON(http.StatusBadRequest, echo.Map{"error": msg, "code": CodeValidation})
}
