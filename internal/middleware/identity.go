package middleware

// identity.go holds the context keys JWTAuth fills and the accessors handlers
// and other middleware use to read them.

import "github.com/labstack/echo/v4"

const (
	ctxUserID = "user_id"
	ctxRole   = "role"
)

// UserID returns the authenticated subject, or "" for anonymous requests.
func UserID(c echo.Context) string {
	if s, ok := c.Get(ctxUserID).(string); ok {
		return s
	}
	return ""
}

// Role returns the authenticated role, or "" for anonymous requests.
func Role(c echo.Context) string {
	if s, ok := c.Get(ctxRole).(string); ok {
		return s
	}
	return ""
}

// rateSubject identifies the caller for rate limiting; "anon" when not
// authenticated.
func rateSubject(c echo.Context) string {
	if id := UserID(c); id != "" {
		return id
	}
	return "anon"
}
