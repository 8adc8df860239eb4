package router

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"net/http"
	"net/http/httptest"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/labstack/echo/v4"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"github.com/stripe/stripe-go/v82"
	"github.com/stripe/stripe-go/v82/webhook"

	"github.com/iliyamo/showtime-booking/internal/config"
	"github.com/iliyamo/showtime-booking/internal/handler"
	"github.com/iliyamo/showtime-booking/internal/middleware"
	"github.com/iliyamo/showtime-booking/internal/model"
	"github.com/iliyamo/showtime-booking/internal/payment"
	"github.com/iliyamo/showtime-booking/internal/repository"
	"github.com/iliyamo/showtime-booking/internal/service"
	"github.com/iliyamo/showtime-booking/internal/utils"
)

const (
	jwtSecret     = "router-test-secret"
	webhookSecret = "whsec_router_test"
)

type clock struct {
	mu sync.Mutex
	t  time.Time
}

func (c *clock) Now() time.Time {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.t
}

func (c *clock) Advance(d time.Duration) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.t = c.t.Add(d)
}

type api struct {
	e       *echo.Echo
	engine  *service.Engine
	gateway *payment.MockGateway
	clock   *clock
	purged  []string
}

func newAPI(t *testing.T) *api {
	t.Helper()
	now := time.Now().UTC()
	a := &api{clock: &clock{t: now}, gateway: payment.NewMockGateway(nil)}

	catalog := repository.NewStaticCatalog(0)
	starts := now.Add(48 * time.Hour)
	catalog.Put(model.Showtime{ID: "show-1", Title: "Dune", StartsAt: &starts, PriceCents: 25000})
	soon := now.Add(time.Hour)
	catalog.Put(model.Showtime{ID: "show-soon", Title: "Late Show", StartsAt: &soon, PriceCents: 10000})

	a.engine = service.NewEngine(repository.NewMemoryStore(), catalog, a.gateway,
		service.Config{HoldTTL: 10 * time.Minute, CancelCutoff: 2 * time.Hour},
		service.WithClock(a.clock.Now))

	e := echo.New()
	e.Validator = handler.NewValidator()
	passRL := middleware.NewTokenBucket(config.RateLimitConfig{}, nil, nil)
	passCache := middleware.NewRedisCache(config.CacheConfig{}, nil, nil)
	purge := func(_ context.Context, id string) error {
		a.purged = append(a.purged, id)
		return nil
	}

	RegisterRoutes(e, map[string]handler.Pinger{})
	RegisterPublic(e, handler.NewShowtimeHandler(a.engine, nil), passRL, passCache)
	RegisterCustomer(e, handler.NewBookingHandler(a.engine, nil), jwtSecret)
	RegisterAdmin(e, handler.NewAdminHandler(a.engine, purge, nil), jwtSecret)
	RegisterPayments(e, handler.NewPaymentHandler(a.engine, webhookSecret, nil), jwtSecret)
	a.e = e
	return a
}

func tokenFor(t *testing.T, sub, role string) string {
	t.Helper()
	tok, err := utils.NewAccessToken(jwtSecret, sub, role, time.Hour)
	require.NoError(t, err)
	return tok.Token
}

func (a *api) do(t *testing.T, method, path, token string, body interface{}) (*httptest.ResponseRecorder, map[string]interface{}) {
	t.Helper()
	var buf bytes.Buffer
	if body != nil {
		require.NoError(t, json.NewEncoder(&buf).Encode(body))
	}
	req := httptest.NewRequest(method, path, &buf)
	req.Header.Set(echo.HeaderContentType, echo.MIMEApplicationJSON)
	if token != "" {
		req.Header.Set(echo.HeaderAuthorization, "Bearer "+token)
	}
	rec := httptest.NewRecorder()
	a.e.ServeHTTP(rec, req)

	out := map[string]interface{}{}
	if rec.Body.Len() > 0 && strings.HasPrefix(rec.Header().Get(echo.HeaderContentType), echo.MIMEApplicationJSON) {
		require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &out))
	}
	return rec, out
}

func (a *api) initialize(t *testing.T, showtimeID string, total, perRow int) {
	t.Helper()
	rec, _ := a.do(t, http.MethodPost, "/v1/admin/showtimes/"+showtimeID+"/seats",
		tokenFor(t, "admin-1", middleware.RoleAdmin), echo.Map{"total_seats": total, "seats_per_row": perRow})
	require.Equal(t, http.StatusCreated, rec.Code, rec.Body.String())
}

func (a *api) reserve(t *testing.T, user, showtimeID string, seats ...string) (*httptest.ResponseRecorder, map[string]interface{}) {
	t.Helper()
	if seats == nil {
		seats = []string{}
	}
	return a.do(t, http.MethodPost, "/v1/showtimes/"+showtimeID+"/reservations",
		tokenFor(t, user, middleware.RoleCustomer), echo.Map{"seats": seats})
}

func bookingID(t *testing.T, body map[string]interface{}) string {
	t.Helper()
	b, ok := body["booking"].(map[string]interface{})
	require.True(t, ok, "response has no booking: %v", body)
	return b["id"].(string)
}

func TestHealth(t *testing.T) {
	a := newAPI(t)
	rec, _ := a.do(t, http.MethodGet, "/healthz", "", nil)
	assert.Equal(t, http.StatusOK, rec.Code)
	assert.Equal(t, "ok", rec.Body.String())

	rec, body := a.do(t, http.MethodGet, "/readyz", "", nil)
	assert.Equal(t, http.StatusOK, rec.Code)
	assert.Equal(t, "ready", body["status"])
}

func TestReadyReportsFailedDependency(t *testing.T) {
	e := echo.New()
	RegisterRoutes(e, map[string]handler.Pinger{
		"db": handler.PingFunc(func(context.Context) error { return errors.New("down") }),
	})
	rec := httptest.NewRecorder()
	e.ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/readyz", nil))
	assert.Equal(t, http.StatusServiceUnavailable, rec.Code)
	assert.Contains(t, rec.Body.String(), `"db":"down"`)
}

func TestBookingFlowOverHTTP(t *testing.T) {
	a := newAPI(t)
	a.initialize(t, "show-1", 20, 10)
	assert.Equal(t, []string{"show-1"}, a.purged)

	rec, body := a.reserve(t, "u-1", "show-1", "a1", "A2")
	require.Equal(t, http.StatusCreated, rec.Code, rec.Body.String())
	id := bookingID(t, body)
	assert.Equal(t, "CREATED", body["booking"].(map[string]interface{})["status"])
	assert.NotEmpty(t, body["hold_expires_at"])

	rec, body = a.do(t, http.MethodGet, "/v1/showtimes/show-1/seats", "", nil)
	require.Equal(t, http.StatusOK, rec.Code)
	counts := body["counts"].(map[string]interface{})
	assert.Equal(t, float64(18), counts["available"])
	assert.Equal(t, float64(2), counts["held"])

	user := tokenFor(t, "u-1", middleware.RoleCustomer)
	rec, body = a.do(t, http.MethodPost, "/v1/bookings/"+id+"/checkout", user, nil)
	require.Equal(t, http.StatusOK, rec.Code, rec.Body.String())
	corr := body["correlation_id"].(string)
	assert.NotEmpty(t, body["redirect_url"])

	payer := tokenFor(t, "payments", middleware.RolePayment)
	rec, body = a.do(t, http.MethodPost, "/v1/payments/"+corr+"/outcome", payer, echo.Map{"outcome": "SUCCEEDED"})
	require.Equal(t, http.StatusOK, rec.Code, rec.Body.String())
	assert.Equal(t, true, body["applied"])

	rec, body = a.do(t, http.MethodPost, "/v1/payments/"+corr+"/outcome", payer, echo.Map{"outcome": "SUCCEEDED"})
	require.Equal(t, http.StatusOK, rec.Code)
	assert.Equal(t, false, body["applied"])

	rec, body = a.do(t, http.MethodGet, "/v1/bookings/"+id, user, nil)
	require.Equal(t, http.StatusOK, rec.Code)
	assert.Equal(t, "CONFIRMED", body["status"])

	rec, body = a.do(t, http.MethodGet, "/v1/bookings/"+id+"/history", user, nil)
	require.Equal(t, http.StatusOK, rec.Code)
	assert.Len(t, body["history"], 3)

	rec, body = a.do(t, http.MethodGet, "/v1/my-bookings", user, nil)
	require.Equal(t, http.StatusOK, rec.Code)
	assert.Equal(t, float64(1), body["count"])

	// other customers cannot see it
	rec, body = a.do(t, http.MethodGet, "/v1/bookings/"+id, tokenFor(t, "u-2", middleware.RoleCustomer), nil)
	assert.Equal(t, http.StatusNotFound, rec.Code)
	assert.Equal(t, handler.CodeNotFound, body["code"])
}

func TestReserveErrors(t *testing.T) {
	a := newAPI(t)
	a.initialize(t, "show-1", 20, 10)

	rec, _ := a.reserve(t, "u-1", "show-1", "A1", "A2")
	require.Equal(t, http.StatusCreated, rec.Code)

	rec, body := a.reserve(t, "u-2", "show-1", "A2", "A3")
	assert.Equal(t, http.StatusConflict, rec.Code)
	assert.Equal(t, handler.CodeSeatConflict, body["code"])
	assert.Equal(t, []interface{}{"A2"}, body["seats"])

	rec, body = a.reserve(t, "u-2", "show-1", "Z99")
	assert.Equal(t, http.StatusBadRequest, rec.Code)
	assert.Equal(t, handler.CodeUnknownSeat, body["code"])

	rec, body = a.reserve(t, "u-2", "show-1", "1A")
	assert.Equal(t, http.StatusBadRequest, rec.Code)
	assert.Equal(t, handler.CodeMalformedSeat, body["code"])

	rec, body = a.reserve(t, "u-2", "show-1")
	assert.Equal(t, http.StatusBadRequest, rec.Code)
	assert.Equal(t, handler.CodeEmptySelection, body["code"])

	rec, body = a.reserve(t, "u-2", "no-such-show", "A1")
	assert.Equal(t, http.StatusNotFound, rec.Code)
	assert.Equal(t, handler.CodeNotFound, body["code"])

	rec, body = a.do(t, http.MethodPost, "/v1/showtimes/show-1/reservations",
		tokenFor(t, "u-2", middleware.RoleCustomer), echo.Map{})
	assert.Equal(t, http.StatusBadRequest, rec.Code)
	assert.Equal(t, handler.CodeValidation, body["code"])
}

func TestAuthGuards(t *testing.T) {
	a := newAPI(t)
	a.initialize(t, "show-1", 10, 5)

	rec, _ := a.do(t, http.MethodPost, "/v1/showtimes/show-1/reservations", "", echo.Map{"seats": []string{"A1"}})
	assert.Equal(t, http.StatusUnauthorized, rec.Code)

	rec, _ = a.do(t, http.MethodPost, "/v1/admin/showtimes/show-1/seats",
		tokenFor(t, "u-1", middleware.RoleCustomer), echo.Map{"total_seats": 10, "seats_per_row": 5})
	assert.Equal(t, http.StatusForbidden, rec.Code)

	rec, _ = a.do(t, http.MethodPost, "/v1/payments/cs_x/outcome",
		tokenFor(t, "u-1", middleware.RoleCustomer), echo.Map{"outcome": "SUCCEEDED"})
	assert.Equal(t, http.StatusForbidden, rec.Code)

	rec, _ = a.do(t, http.MethodGet, "/v1/showtimes/show-1/layout", "", nil)
	assert.Equal(t, http.StatusOK, rec.Code)
}

func TestAdminInventoryEndpoints(t *testing.T) {
	a := newAPI(t)
	admin := tokenFor(t, "admin-1", middleware.RoleAdmin)
	a.initialize(t, "show-1", 12, 5)

	rec, body := a.do(t, http.MethodPost, "/v1/admin/showtimes/show-1/seats", admin,
		echo.Map{"total_seats": 30, "seats_per_row": 10})
	assert.Equal(t, http.StatusConflict, rec.Code)
	assert.Equal(t, handler.CodeAlreadyInitialized, body["code"])
	layout := body["layout"].(map[string]interface{})
	assert.Equal(t, float64(12), layout["total_seats"])

	rec, body = a.do(t, http.MethodPost, "/v1/admin/showtimes/show-soon/seats", admin,
		echo.Map{"total_seats": 0, "seats_per_row": 5})
	assert.Equal(t, http.StatusBadRequest, rec.Code)
	assert.Equal(t, handler.CodeInvalidLayout, body["code"])

	rec, body = a.do(t, http.MethodGet, "/v1/showtimes/show-1/layout", "", nil)
	require.Equal(t, http.StatusOK, rec.Code)
	assert.Len(t, body["rows"], 3)

	rec, _ = a.reserve(t, "u-1", "show-1", "C2")
	require.Equal(t, http.StatusCreated, rec.Code)

	rec, body = a.do(t, http.MethodDelete, "/v1/admin/showtimes/show-1/seats", admin, nil)
	assert.Equal(t, http.StatusConflict, rec.Code)
	assert.Equal(t, handler.CodeSeatsInUse, body["code"])
	assert.Equal(t, []interface{}{"C2"}, body["seats"])

	// once the hold lapses the inventory can go
	a.clock.Advance(11 * time.Minute)
	rec, _ = a.do(t, http.MethodDelete, "/v1/admin/showtimes/show-1/seats", admin, nil)
	assert.Equal(t, http.StatusNoContent, rec.Code)
	assert.Equal(t, []string{"show-1", "show-1"}, a.purged)

	rec, body = a.do(t, http.MethodGet, "/v1/showtimes/show-1/seats", "", nil)
	assert.Equal(t, http.StatusNotFound, rec.Code)
	assert.Equal(t, handler.CodeNotFound, body["code"])
}

func TestAdminBookingOverrides(t *testing.T) {
	a := newAPI(t)
	admin := tokenFor(t, "admin-1", middleware.RoleAdmin)
	a.initialize(t, "show-soon", 10, 5)

	_, body := a.reserve(t, "u-1", "show-soon", "A1")
	id := bookingID(t, body)

	rec, body := a.do(t, http.MethodGet, "/v1/admin/bookings/"+id, admin, nil)
	require.Equal(t, http.StatusOK, rec.Code)
	assert.Equal(t, "u-1", body["user_id"])

	// the customer is inside the cancellation window once the booking is paid
	user := tokenFor(t, "u-1", middleware.RoleCustomer)
	rec, body = a.do(t, http.MethodPost, "/v1/bookings/"+id+"/checkout", user, nil)
	require.Equal(t, http.StatusOK, rec.Code)
	corr := body["correlation_id"].(string)
	rec, _ = a.do(t, http.MethodPost, "/v1/payments/"+corr+"/outcome", admin, echo.Map{"outcome": "SUCCEEDED"})
	require.Equal(t, http.StatusOK, rec.Code)

	rec, body = a.do(t, http.MethodDelete, "/v1/bookings/"+id, user, nil)
	assert.Equal(t, http.StatusConflict, rec.Code)
	assert.Equal(t, handler.CodeCancellationWindowClosed, body["code"])

	rec, body = a.do(t, http.MethodDelete, "/v1/admin/bookings/"+id, admin, nil)
	require.Equal(t, http.StatusOK, rec.Code)
	assert.Equal(t, "CANCELLED", body["status"])
	assert.Equal(t, []string{corr}, a.gateway.Refunded())

	rec, body = a.do(t, http.MethodDelete, "/v1/admin/bookings/"+id, admin, nil)
	assert.Equal(t, http.StatusConflict, rec.Code)
	assert.Equal(t, handler.CodeInvalidStateTransition, body["code"])
	assert.Equal(t, "CANCELLED", body["current"])
}

func TestSweepAndHoldExpiry(t *testing.T) {
	a := newAPI(t)
	a.initialize(t, "show-1", 10, 5)
	_, body := a.reserve(t, "u-1", "show-1", "A1", "A2")
	id := bookingID(t, body)

	a.clock.Advance(11 * time.Minute)
	user := tokenFor(t, "u-1", middleware.RoleCustomer)
	rec, body := a.do(t, http.MethodPost, "/v1/bookings/"+id+"/checkout", user, nil)
	assert.Equal(t, http.StatusGone, rec.Code)
	assert.Equal(t, handler.CodeHoldExpired, body["code"])

	a.reserve(t, "u-2", "show-1", "B1")
	a.clock.Advance(11 * time.Minute)
	rec, body = a.do(t, http.MethodPost, "/v1/admin/sweep", tokenFor(t, "admin-1", middleware.RoleAdmin), nil)
	require.Equal(t, http.StatusOK, rec.Code)
	assert.Equal(t, float64(1), body["bookings_cancelled"])
	assert.Equal(t, float64(1), body["seats_released"])
}

func TestPaymentFailureAndRetry(t *testing.T) {
	a := newAPI(t)
	a.initialize(t, "show-1", 10, 5)
	user := tokenFor(t, "u-1", middleware.RoleCustomer)
	_, body := a.reserve(t, "u-1", "show-1", "A1")
	id := bookingID(t, body)

	_, body = a.do(t, http.MethodPost, "/v1/bookings/"+id+"/checkout", user, nil)
	corr := body["correlation_id"].(string)

	payer := tokenFor(t, "payments", middleware.RolePayment)
	rec, _ := a.do(t, http.MethodPost, "/v1/payments/"+corr+"/outcome", payer, echo.Map{"outcome": "FAILED"})
	require.Equal(t, http.StatusOK, rec.Code)

	rec, body = a.do(t, http.MethodPost, "/v1/payments/"+corr+"/outcome", payer, echo.Map{"outcome": "MAYBE"})
	assert.Equal(t, http.StatusBadRequest, rec.Code)
	assert.Equal(t, handler.CodeValidation, body["code"])

	rec, body = a.do(t, http.MethodPost, "/v1/payments/cs_unknown/outcome", payer, echo.Map{"outcome": "FAILED"})
	assert.Equal(t, http.StatusNotFound, rec.Code)
	assert.Equal(t, handler.CodeUnknownCorrelation, body["code"])

	rec, body = a.do(t, http.MethodPost, "/v1/bookings/"+id+"/retry", user, nil)
	require.Equal(t, http.StatusOK, rec.Code, rec.Body.String())
	assert.Equal(t, "CREATED", body["status"])

	rec, body = a.do(t, http.MethodPost, "/v1/bookings/"+id+"/retry", user, nil)
	assert.Equal(t, http.StatusConflict, rec.Code)
	assert.Equal(t, handler.CodeInvalidStateTransition, body["code"])
}

func stripeEvent(t *testing.T, eventType, sessionID, paymentStatus string) ([]byte, string) {
	t.Helper()
	session := fmt.Sprintf(`{"id":%q,"object":"checkout.session","payment_status":%q}`, sessionID, paymentStatus)
	payload := []byte(fmt.Sprintf(`{"id":"evt_1","object":"event","api_version":%q,"type":%q,"data":{"object":%s}}`,
		stripe.APIVersion, eventType, session))
	signed := webhook.GenerateTestSignedPayload(&webhook.UnsignedPayload{
		Payload:   payload,
		Secret:    webhookSecret,
		Timestamp: time.Now(),
	})
	return signed.Payload, signed.Header
}

func (a *api) webhook(t *testing.T, payload []byte, signature string) (*httptest.ResponseRecorder, map[string]interface{}) {
	t.Helper()
	req := httptest.NewRequest(http.MethodPost, "/v1/payments/stripe/webhook", bytes.NewReader(payload))
	req.Header.Set("Stripe-Signature", signature)
	rec := httptest.NewRecorder()
	a.e.ServeHTTP(rec, req)
	out := map[string]interface{}{}
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &out))
	return rec, out
}

func TestStripeWebhook(t *testing.T) {
	a := newAPI(t)
	a.initialize(t, "show-1", 10, 5)
	user := tokenFor(t, "u-1", middleware.RoleCustomer)
	_, body := a.reserve(t, "u-1", "show-1", "A1", "A2")
	id := bookingID(t, body)
	_, body = a.do(t, http.MethodPost, "/v1/bookings/"+id+"/checkout", user, nil)
	corr := body["correlation_id"].(string)

	payload, sig := stripeEvent(t, "checkout.session.completed", corr, "paid")
	rec, body := a.webhook(t, payload, sig)
	require.Equal(t, http.StatusOK, rec.Code)
	assert.Equal(t, true, body["applied"])

	// Stripe redelivers; the second copy changes nothing
	rec, body = a.webhook(t, payload, sig)
	require.Equal(t, http.StatusOK, rec.Code)
	assert.Equal(t, false, body["applied"])

	_, body = a.do(t, http.MethodGet, "/v1/bookings/"+id, user, nil)
	assert.Equal(t, "CONFIRMED", body["status"])

	payload, sig = stripeEvent(t, "checkout.session.completed", "cs_never_issued", "paid")
	rec, body = a.webhook(t, payload, sig)
	assert.Equal(t, http.StatusOK, rec.Code)
	assert.Equal(t, false, body["applied"])

	payload, sig = stripeEvent(t, "payment_intent.created", corr, "paid")
	rec, body = a.webhook(t, payload, sig)
	assert.Equal(t, http.StatusOK, rec.Code)
	assert.Equal(t, false, body["handled"])

	rec, _ = a.webhook(t, payload, "t=1,v1=deadbeef")
	assert.Equal(t, http.StatusBadRequest, rec.Code)
}
