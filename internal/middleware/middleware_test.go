package middleware

import (
	"bytes"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/golang-jwt/jwt/v5"
	"github.com/labstack/echo/v4"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"
	"go.uber.org/zap/zapcore"
	"go.uber.org/zap/zaptest/observer"

	"github.com/iliyamo/showtime-booking/internal/config"
	"github.com/iliyamo/showtime-booking/internal/utils"
)

const secret = "test-secret"

func whoami(c echo.Context) error {
	return c.JSON(http.StatusOK, echo.Map{"user_id": UserID(c), "role": Role(c)})
}

func serve(e *echo.Echo, method, path, token string) *httptest.ResponseRecorder {
	req := httptest.NewRequest(method, path, nil)
	if token != "" {
		req.Header.Set(echo.HeaderAuthorization, "Bearer "+token)
	}
	rec := httptest.NewRecorder()
	e.ServeHTTP(rec, req)
	return rec
}

func token(t *testing.T, sub, role string) string {
	t.Helper()
	tok, err := utils.NewAccessToken(secret, sub, role, time.Hour)
	require.NoError(t, err)
	return tok.Token
}

func TestJWTAuth(t *testing.T) {
	e := echo.New()
	e.GET("/me", whoami, JWTAuth(secret))

	rec := serve(e, http.MethodGet, "/me", token(t, "u-1", RoleCustomer))
	require.Equal(t, http.StatusOK, rec.Code)
	assert.JSONEq(t, `{"user_id":"u-1","role":"CUSTOMER"}`, rec.Body.String())

	assert.Equal(t, http.StatusUnauthorized, serve(e, http.MethodGet, "/me", "").Code)
	assert.Equal(t, http.StatusUnauthorized, serve(e, http.MethodGet, "/me", "garbage").Code)

	other, err := utils.NewAccessToken("other-secret", "u-1", RoleCustomer, time.Hour)
	require.NoError(t, err)
	assert.Equal(t, http.StatusUnauthorized, serve(e, http.MethodGet, "/me", other.Token).Code)

	expired, err := utils.NewAccessToken(secret, "u-1", RoleCustomer, -time.Minute)
	require.NoError(t, err)
	assert.Equal(t, http.StatusUnauthorized, serve(e, http.MethodGet, "/me", expired.Token).Code)
}

func TestJWTAuthNumericSubject(t *testing.T) {
	e := echo.New()
	e.GET("/me", whoami, JWTAuth(secret))

	claims := jwt.MapClaims{"sub": 42, "role": RoleAdmin, "exp": time.Now().Add(time.Hour).Unix()}
	raw, err := jwt.NewWithClaims(jwt.SigningMethodHS256, claims).SignedString([]byte(secret))
	require.NoError(t, err)

	rec := serve(e, http.MethodGet, "/me", raw)
	require.Equal(t, http.StatusOK, rec.Code)
	assert.JSONEq(t, `{"user_id":"42","role":"ADMIN"}`, rec.Body.String())
}

func TestRequireRole(t *testing.T) {
	e := echo.New()
	g := e.Group("/admin", JWTAuth(secret), RequireRole(RoleAdmin))
	g.GET("/x", whoami)

	assert.Equal(t, http.StatusOK, serve(e, http.MethodGet, "/admin/x", token(t, "a-1", RoleAdmin)).Code)
	assert.Equal(t, http.StatusForbidden, serve(e, http.MethodGet, "/admin/x", token(t, "u-1", RoleCustomer)).Code)
}

func TestPassThroughWithoutRedis(t *testing.T) {
	e := echo.New()
	rl := NewTokenBucket(config.RateLimitConfig{Enabled: true, Capacity: 1}, nil, nil)
	cache := NewRedisCache(config.CacheConfig{Enabled: true, Methods: map[string]bool{"GET": true}}, nil, nil)
	e.GET("/x", whoami, rl, cache)

	for i := 0; i < 3; i++ {
		rec := serve(e, http.MethodGet, "/x", "")
		assert.Equal(t, http.StatusOK, rec.Code)
		assert.Empty(t, rec.Header().Get("X-Cache"))
	}
}

func TestCachePayloadRoundTrip(t *testing.T) {
	hdr := http.Header{"Content-Type": {"application/json"}}
	bs, err := encodePayload(http.StatusOK, hdr, []byte(`{"ok":true}`))
	require.NoError(t, err)

	status, got, body, ok := decodePayload(bs)
	require.True(t, ok)
	assert.Equal(t, http.StatusOK, status)
	assert.Equal(t, "application/json", got.Get("Content-Type"))
	assert.Equal(t, `{"ok":true}`, string(body))

	_, _, _, ok = decodePayload(bs[:5])
	assert.False(t, ok)
	_, _, _, ok = decodePayload(append([]byte{0, 0, 0, 200, 0, 0, 1, 0}, []byte("{}")...))
	assert.False(t, ok)
}

func TestCacheKeyUsesConcretePath(t *testing.T) {
	assert.Equal(t, "cache:/v1/showtimes/s1/layout?", CacheKey("cache", "/v1/showtimes/s1/layout", ""))
	assert.NotEqual(t,
		CacheKey("cache", "/v1/showtimes/s1/layout", ""),
		CacheKey("cache", "/v1/showtimes/s2/layout", ""))
}

func TestCaptureWriterLimit(t *testing.T) {
	rec := httptest.NewRecorder()
	cw := &captureWriter{ResponseWriter: rec, status: http.StatusOK, limit: 4}
	_, _ = cw.Write([]byte("abc"))
	_, _ = cw.Write([]byte("def"))
	assert.True(t, cw.truncated)
	assert.Equal(t, "abc", cw.buf.String())
	assert.Equal(t, "abcdef", rec.Body.String())
}

func TestBuildRateKey(t *testing.T) {
	e := echo.New()
	req := httptest.NewRequest(http.MethodGet, "/v1/showtimes/s1/seats", nil)
	req.Header.Set(echo.HeaderXRealIP, "10.0.0.1")
	c := e.NewContext(req, httptest.NewRecorder())
	c.SetPath("/v1/showtimes/:id/seats")

	cfg := config.RateLimitConfig{Prefix: "rl", KeyStrategy: "ip_route"}
	assert.Equal(t, "rl:ip:10.0.0.1:route:GET /v1/showtimes/:id/seats", buildRateKey(cfg, c))

	cfg.KeyStrategy = "ip"
	assert.Equal(t, "rl:ip:10.0.0.1", buildRateKey(cfg, c))

	cfg.KeyStrategy = "ip_user_route"
	assert.Equal(t, "rl:ip:10.0.0.1:user:anon:route:GET /v1/showtimes/:id/seats", buildRateKey(cfg, c))
	c.Set(ctxUserID, "u-9")
	assert.Contains(t, buildRateKey(cfg, c), ":user:u-9:")
}

func TestRequestLoggerLevels(t *testing.T) {
	core, logs := observer.New(zapcore.InfoLevel)
	e := echo.New()
	e.Use(RequestLogger(zap.New(core)))
	e.GET("/ok", func(c echo.Context) error { return c.String(http.StatusOK, "ok") })
	e.GET("/boom", func(c echo.Context) error { return echo.NewHTTPError(http.StatusInternalServerError, "boom") })

	serve(e, http.MethodGet, "/ok", "")
	serve(e, http.MethodGet, "/boom", "")
	serve(e, http.MethodGet, "/missing", "")

	entries := logs.All()
	require.Len(t, entries, 3)
	assert.Equal(t, zapcore.InfoLevel, entries[0].Level)
	assert.Equal(t, int64(http.StatusOK), entries[0].ContextMap()["status"])
	assert.Equal(t, zapcore.ErrorLevel, entries[1].Level)
	assert.Equal(t, zapcore.WarnLevel, entries[2].Level)
	assert.Equal(t, int64(http.StatusNotFound), entries[2].ContextMap()["status"])
}

func TestRequestLoggerWritesBodyOnce(t *testing.T) {
	var buf bytes.Buffer
	e := echo.New()
	e.Use(RequestLogger(zap.New(zapcore.NewCore(zapcore.NewJSONEncoder(zap.NewProductionEncoderConfig()), zapcore.AddSync(&buf), zapcore.InfoLevel))))
	e.GET("/err", func(c echo.Context) error { return echo.NewHTTPError(http.StatusBadRequest, "nope") })

	rec := serve(e, http.MethodGet, "/err", "")
	assert.Equal(t, http.StatusBadRequest, rec.Code)
	assert.JSONEq(t, `{"message":"nope"}`, rec.Body.String())
	assert.Contains(t, buf.String(), `"status":400`)
}
