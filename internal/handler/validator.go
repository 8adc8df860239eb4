package handler

import (
	"errors"
	"fmt"
	"strings"

	"github.com/go-playground/validator/v10"
)

// RequestValidator adapts validator/v10 to echo.Validator so handlers can
// call c.Validate on bound request bodies.
type RequestValidator struct {
	v *validator.Validate
}

// NewValidator returns a RequestValidator with the default struct tags.
func NewValidator() *RequestValidator {
	return &RequestValidator{v: validator.New(validator.WithRequiredStructEnabled())}
}

// Validate implements echo.Validator.
func (rv *RequestValidator) Validate(i interface{}) error {
	return rv.v.Struct(i)
}

// validationMessage flattens validator errors into one line such as
// "total_seats: max=10000".
func validationMessage(err error) string {
	var ve validator.ValidationErrors
	if !errors.As(err, &ve) {
		return err.Error()
	}
	parts := make([]string, 0, len(ve))
	for _, fe := range ve {
		tag := fe.Tag()
		if fe.Param() != "" {
			tag += "=" + fe.Param()
		}
		parts = append(parts, fmt.Sprintf("%s: %s", jsonName(fe.Field()), tag))
	}
	return strings.Join(parts, "; ")
}

// jsonName converts a Go field name such as TotalSeats to total_seats.
func jsonName(field string) string {
	var b strings.Builder
	for i, r := range field {
		if r >= 'A' && r <= 'Z' {
			if i > 0 {
				b.WriteByte('_')
			}
			r += 'a' - 'A'
		}
		b.WriteRune(r)
	}
	return b.String()
}
