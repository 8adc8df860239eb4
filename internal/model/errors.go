package model

import (
	"errors"
	"fmt"
	"strings"

	"github.com/iliyamo/showtime-booking/internal/seatcode"
)

// Booking engine errors.  Callers match them with errors.Is; the typed
// errors below unwrap to one of these and carry the seats or states involved.
var (
	ErrMalformedSeatIdentifier = seatcode.ErrMalformed
	ErrInvalidLayout           = seatcode.ErrInvalidLayout
	ErrSeatConflict            = errors.New("seat conflict")
	ErrHoldExpired             = errors.New("hold expired")
	ErrSeatsNoLongerAvailable  = errors.New("seats no longer available")
	ErrInvalidStateTransition  = errors.New("invalid state transition")
	ErrUnknownCorrelation      = errors.New("unknown payment correlation")
	ErrAlreadyInitialized      = errors.New("seat inventory already initialized")
	ErrSeatsInUse              = errors.New("seats in use")

	ErrInventoryNotFound        = errors.New("seat inventory not found")
	ErrBookingNotFound          = errors.New("booking not found")
	ErrShowtimeNotFound         = errors.New("showtime not found")
	ErrUnknownSeat              = errors.New("seat not in inventory")
	ErrEmptySelection           = errors.New("no seats selected")
	ErrCancellationWindowClosed = errors.New("cancellation window closed")
	ErrLockTimeout              = errors.New("timed out waiting for showtime lock")
)

// SeatConflictError names the seats that blocked a reservation.  Cause is
// ErrSeatConflict for a fresh reservation and ErrSeatsNoLongerAvailable for a
// retry after a failed payment.
type SeatConflictError struct {
	Seats []string
	Cause error
}

func (e *SeatConflictError) Error() string {
	return fmt.Sprintf("%v: %s", e.cause(), strings.Join(e.Seats, ","))
}

func (e *SeatConflictError) Unwrap() error { return e.cause() }

func (e *SeatConflictError) cause() error {
	if e.Cause == nil {
		return ErrSeatConflict
	}
	return e.Cause
}

// SeatsInUseError lists seats that prevent deinitialization.
type SeatsInUseError struct {
	Seats []string
}

func (e *SeatsInUseError) Error() string {
	return fmt.Sprintf("%v: %s", ErrSeatsInUse, strings.Join(e.Seats, ","))
}

func (e *SeatsInUseError) Unwrap() error { return ErrSeatsInUse }

// UnknownSeatError lists requested seats that are not part of the layout.
type UnknownSeatError struct {
	Seats []string
}

func (e *UnknownSeatError) Error() string {
	return fmt.Sprintf("%v: %s", ErrUnknownSeat, strings.Join(e.Seats, ","))
}

func (e *UnknownSeatError) Unwrap() error { return ErrUnknownSeat }

// InvalidTransitionError names the current and requested booking states.
type InvalidTransitionError struct {
	Current   BookingStatus
	Requested BookingStatus
}

func (e *InvalidTransitionError) Error() string {
	return fmt.Sprintf("%v: %s -> %s", ErrInvalidStateTransition, e.Current, e.Requested)
}

func (e *InvalidTransitionError) Unwrap() error { return ErrInvalidStateTransition }

// IsNotFound reports whether err means a looked-up entity does not exist.
func IsNotFound(err error) bool {
	return errors.Is(err, ErrInventoryNotFound) ||
		errors.Is(err, ErrBookingNotFound) ||
		errors.Is(err, ErrShowtimeNotFound) ||
		errors.Is(err, ErrUnknownCorrelation)
}

// IsRetryable reports whether the caller may simply try again.
func IsRetryable(err error) bool {
	return errors.Is(err, ErrLockTimeout)
}
