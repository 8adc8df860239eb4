// Package payment talks to the external checkout provider.  The booking
// engine only needs three things from it: open a hosted checkout session for
// a booking, close a session that is no longer wanted, and refund a session
// that was paid after the booking stopped accepting payment.
package payment

import (
	"context"
	"errors"
	"time"
)

// ErrSessionNotFound is returned when the provider does not know a session id.
var ErrSessionNotFound = errors.New("checkout session not found")

// Gateway defines the interface for checkout processing.
type Gateway interface {
	// CreateCheckoutSession opens a hosted checkout for one booking.
	CreateCheckoutSession(ctx context.Context, req *CheckoutRequest) (*CheckoutSession, error)

	// ExpireCheckoutSession closes an unpaid session so it can no longer be paid.
	ExpireCheckoutSession(ctx context.Context, sessionID string) error

	// Refund returns the money collected by a paid session.
	Refund(ctx context.Context, sessionID string) error

	// Name returns the gateway name.
	Name() string
}

// CheckoutRequest represents a checkout for one booking.  UnitAmount is the
// price of one seat in the smallest currency unit and Quantity the number of
// seats.
type CheckoutRequest struct {
	BookingID   string
	UserID      string
	ShowtimeID  string
	Description string
	Currency    string
	UnitAmount  int64
	Quantity    int64
	SuccessURL  string
	CancelURL   string
}

// Total is UnitAmount times Quantity.
func (r *CheckoutRequest) Total() int64 { return r.UnitAmount * r.Quantity }

// CheckoutSession is the provider's handle for a checkout.  ID doubles as
// the payment correlation id; URL is where the customer is redirected.
type CheckoutSession struct {
	ID        string    `json:"id"`
	URL       string    `json:"url"`
	ExpiresAt time.Time `json:"expires_at"`
}
