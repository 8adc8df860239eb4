package handler // handler defines http handlers

import (
	"errors"
	"strings"

	"github.com/labstack/echo/v4"

	"github.com/iliyamo/showtime-booking/internal/middleware"
)

var errNoUser = errors.New("invalid user_id in context")

// getUserID returns the authenticated user id set by middleware.JWTAuth.
func getUserID(c echo.Context) (string, error) {
	id := middleware.UserID(c)
	if id == "" {
		return "", errNoUser
	}
	return id, nil
}

// pathID returns a trimmed path parameter, or "" when it is blank.
func pathID(c echo.Context, name string) string {
	return strings.TrimSpace(c.Param(name))
}

// bindAndValidate decodes the request body into dst and runs the registered
// validator over it.  It writes the 400 response itself and reports false
// when the request must not proceed.
func bindAndValidate(c echo.Context, dst interface{}) (bool, error) {
	if err := c.Bind(dst); err != nil {
		return false, badRequest(c, "invalid request body")
	}
	if err := c.Validate(dst); err != nil {
		return false, badRequest(c, validationMessage(err))
	}
	return true, nil
}
