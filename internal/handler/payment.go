package handler

import (
	"errors"
	"io"
	"net/http"

	"github.com/labstack/echo/v4"
	"go.uber.org/zap"

	"github.com/iliyamo/showtime-booking/internal/model"
	"github.com/iliyamo/showtime-booking/internal/payment"
	"github.com/iliyamo/showtime-booking/internal/service"
)

// maxWebhookBytes bounds the Stripe payload read into memory.
const maxWebhookBytes = 64 << 10

// PaymentHandler receives payment outcomes, either as signed Stripe webhooks
// or from trusted internal callers.
type PaymentHandler struct {
	Engine        *service.Engine
	WebhookSecret string
	Log           *zap.Logger
}

// NewPaymentHandler constructs a PaymentHandler.  An empty webhookSecret
// disables the Stripe endpoint.
func NewPaymentHandler(engine *service.Engine, webhookSecret string, log *zap.Logger) *PaymentHandler {
	if engine == nil {
		panic("nil engine passed to NewPaymentHandler")
	}
	if log == nil {
		log = zap.NewNop()
	}
	return &PaymentHandler{Engine: engine, WebhookSecret: webhookSecret, Log: log.Named("payments")}
}

// StripeWebhook handles POST /v1/payments/stripe/webhook.  Stripe gets 200
// for every verified event it need not resend, including event types we do
// not act on, repeats and sessions we never issued; 400 for a bad signature;
// and 5xx only when a retry may succeed.
func (h *PaymentHandler) StripeWebhook(c echo.Context) error {
	if h.WebhookSecret == "" {
		return c.JSON(http.StatusServiceUnavailable, echo.Map{"error": "stripe webhook not configured"})
	}
	payload, err := io.ReadAll(io.LimitReader(c.Request().Body, maxWebhookBytes))
	if err != nil {
		return badRequest(c, "unreadable body")
	}
	ev, err := payment.ParseWebhook(payload, c.Request().Header.Get("Stripe-Signature"), h.WebhookSecret)
	if err != nil {
		h.Log.Warn("rejected stripe webhook", zap.Error(err))
		return c.JSON(http.StatusBadRequest, echo.Map{"error": "invalid webhook"})
	}
	if !ev.Handled {
		return c.JSON(http.StatusOK, echo.Map{"received": true, "handled": false})
	}

	res, err := h.Engine.Resolve(c.Request().Context(), ev.SessionID, ev.Outcome)
	switch {
	case err == nil:
		return c.JSON(http.StatusOK, echo.Map{"received": true, "handled": true, "applied": res.Applied})
	case errors.Is(err, model.ErrUnknownCorrelation), errors.Is(err, model.ErrInvalidStateTransition):
		h.Log.Warn("stripe event not applied",
			zap.String("event_id", ev.ID),
			zap.String("session_id", ev.SessionID),
			zap.Error(err))
		return c.JSON(http.StatusOK, echo.Map{"received": true, "handled": true, "applied": false})
	}
	return respondError(c, h.Log, err)
}

type outcomeRequest struct {
	Outcome string `json:"outcome" validate:"required,oneof=SUCCEEDED FAILED CANCELLED"`
}

// Outcome handles POST /v1/payments/:correlation_id/outcome with body
// {"outcome":"SUCCEEDED"|"FAILED"|"CANCELLED"}.  Repeating an outcome is
// answered with applied=false.
func (h *PaymentHandler) Outcome(c echo.Context) error {
	var body outcomeRequest
	if ok, err := bindAndValidate(c, &body); !ok {
		return err
	}
	res, err := h.Engine.Resolve(c.Request().Context(), pathID(c, "correlation_id"), model.PaymentOutcome(body.Outcome))
	if err != nil {
		return respondError(c, h.Log, err)
	}
	return c.JSON(http.StatusOK, res)
}
