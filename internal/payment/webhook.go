package payment

import (
	"encoding/json"
	"errors"
	"fmt"

	"github.com/stripe/stripe-go/v82"
	"github.com/stripe/stripe-go/v82/webhook"

	"github.com/iliyamo/showtime-booking/internal/model"
)

// ErrInvalidWebhook is returned for payloads that fail signature
// verification or cannot be decoded.
var ErrInvalidWebhook = errors.New("invalid webhook payload")

// WebhookEvent is a verified Stripe event reduced to what the booking engine
// needs.  Handled is false for event types that carry no payment outcome.
type WebhookEvent struct {
	ID        string
	Type      string
	SessionID string
	BookingID string
	Outcome   model.PaymentOutcome
	Handled   bool
}

// ParseWebhook verifies the Stripe-Signature header and maps checkout
// session events to payment outcomes:
//
//	checkout.session.completed (paid)         SUCCEEDED
//	checkout.session.async_payment_succeeded  SUCCEEDED
//	checkout.session.async_payment_failed     FAILED
//	checkout.session.expired                  FAILED
//
// A completed session that is still unpaid waits for the async events.
func ParseWebhook(payload []byte, signature, secret string) (*WebhookEvent, error) {
	event, err := webhook.ConstructEvent(payload, signature, secret)
	if err != nil {
		return nil, fmt.Errorf("%w: %v", ErrInvalidWebhook, err)
	}
	out := &WebhookEvent{ID: event.ID, Type: string(event.Type)}

	var outcome model.PaymentOutcome
	switch event.Type {
	case stripe.EventTypeCheckoutSessionCompleted:
		outcome = model.OutcomeSucceeded
	case stripe.EventTypeCheckoutSessionAsyncPaymentSucceeded:
		outcome = model.OutcomeSucceeded
	case stripe.EventTypeCheckoutSessionAsyncPaymentFailed, stripe.EventTypeCheckoutSessionExpired:
		outcome = model.OutcomeFailed
	default:
		return out, nil
	}
	if event.Data == nil {
		return nil, fmt.Errorf("%w: event %s has no data", ErrInvalidWebhook, event.ID)
	}

	var sess stripe.CheckoutSession
	if err := json.Unmarshal(event.Data.Raw, &sess); err != nil {
		return nil, fmt.Errorf("%w: %v", ErrInvalidWebhook, err)
	}
	out.SessionID = sess.ID
	out.BookingID = sess.Metadata["booking_id"]
	if out.BookingID == "" {
		out.BookingID = sess.ClientReferenceID
	}
	if event.Type == stripe.EventTypeCheckoutSessionCompleted &&
		sess.PaymentStatus != stripe.CheckoutSessionPaymentStatusPaid &&
		sess.PaymentStatus != stripe.CheckoutSessionPaymentStatusNoPaymentRequired {
		return out, nil
	}
	out.Outcome = outcome
	out.Handled = sess.ID != ""
	return out, nil
}
