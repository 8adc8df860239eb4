package payment

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/stripe/stripe-go/v82"
	"github.com/stripe/stripe-go/v82/checkout/session"
	"github.com/stripe/stripe-go/v82/refund"
)

// minSessionLifetime is the shortest expiry Stripe accepts for a checkout
// session.
const minSessionLifetime = 30 * time.Minute

// StripeGateway implements Gateway with Stripe Checkout.
type StripeGateway struct {
	config *StripeGatewayConfig
	now    func() time.Time
}

// StripeGatewayConfig holds configuration for the Stripe gateway.
type StripeGatewayConfig struct {
	SecretKey       string
	WebhookSecret   string
	SessionLifetime time.Duration
}

// NewStripeGateway creates a new Stripe gateway.
func NewStripeGateway(config *StripeGatewayConfig) (*StripeGateway, error) {
	if config == nil {
		return nil, fmt.Errorf("stripe config is required")
	}
	if config.SecretKey == "" {
		return nil, fmt.Errorf("stripe secret key is required")
	}
	if config.SessionLifetime < minSessionLifetime {
		config.SessionLifetime = minSessionLifetime
	}

	stripe.Key = config.SecretKey

	return &StripeGateway{config: config, now: time.Now}, nil
}

// CreateCheckoutSession opens a payment-mode Checkout Session with a single
// line item for the booked seats.
func (g *StripeGateway) CreateCheckoutSession(ctx context.Context, req *CheckoutRequest) (*CheckoutSession, error) {
	if req == nil {
		return nil, fmt.Errorf("checkout request is required")
	}
	if req.Quantity <= 0 || req.UnitAmount < 0 {
		return nil, fmt.Errorf("invalid checkout amount: %d x %d", req.Quantity, req.UnitAmount)
	}

	expiresAt := g.now().Add(g.config.SessionLifetime)
	params := &stripe.CheckoutSessionParams{
		Mode:              stripe.String(string(stripe.CheckoutSessionModePayment)),
		ClientReferenceID: stripe.String(req.BookingID),
		SuccessURL:        stripe.String(req.SuccessURL),
		CancelURL:         stripe.String(req.CancelURL),
		ExpiresAt:         stripe.Int64(expiresAt.Unix()),
		LineItems: []*stripe.CheckoutSessionLineItemParams{{
			PriceData: &stripe.CheckoutSessionLineItemPriceDataParams{
				Currency:   stripe.String(req.Currency),
				UnitAmount: stripe.Int64(req.UnitAmount),
				ProductData: &stripe.CheckoutSessionLineItemPriceDataProductDataParams{
					Name: stripe.String(req.Description),
				},
			},
			Quantity: stripe.Int64(req.Quantity),
		}},
		Metadata: map[string]string{
			"booking_id":  req.BookingID,
			"user_id":     req.UserID,
			"showtime_id": req.ShowtimeID,
		},
	}
	params.Context = ctx

	sess, err := session.New(params)
	if err != nil {
		return nil, fmt.Errorf("failed to create checkout session: %w", err)
	}
	return &CheckoutSession{ID: sess.ID, URL: sess.URL, ExpiresAt: time.Unix(sess.ExpiresAt, 0).UTC()}, nil
}

// ExpireCheckoutSession closes an open session.  Sessions that are already
// closed are treated as expired.
func (g *StripeGateway) ExpireCheckoutSession(ctx context.Context, sessionID string) error {
	if sessionID == "" {
		return fmt.Errorf("session ID is required")
	}
	params := &stripe.CheckoutSessionExpireParams{}
	params.Context = ctx
	if _, err := session.Expire(sessionID, params); err != nil {
		var serr *stripe.Error
		if errors.As(err, &serr) {
			switch serr.HTTPStatusCode {
			case 404:
				return ErrSessionNotFound
			case 400:
				// session is complete or already expired
				return nil
			}
		}
		return fmt.Errorf("failed to expire checkout session: %w", err)
	}
	return nil
}

// Refund refunds the PaymentIntent behind a paid session.
func (g *StripeGateway) Refund(ctx context.Context, sessionID string) error {
	if sessionID == "" {
		return fmt.Errorf("session ID is required")
	}
	getParams := &stripe.CheckoutSessionParams{}
	getParams.Context = ctx
	sess, err := session.Get(sessionID, getParams)
	if err != nil {
		return fmt.Errorf("failed to get checkout session: %w", err)
	}
	if sess.PaymentIntent == nil || sess.PaymentIntent.ID == "" {
		return fmt.Errorf("checkout session %s has no payment to refund", sessionID)
	}

	params := &stripe.RefundParams{
		PaymentIntent: stripe.String(sess.PaymentIntent.ID),
	}
	params.Context = ctx
	params.AddMetadata("checkout_session", sessionID)
	if _, err := refund.New(params); err != nil {
		return fmt.Errorf("failed to create refund: %w", err)
	}
	return nil
}

// Name returns the gateway name.
func (g *StripeGateway) Name() string {
	return "stripe"
}
