package handler

import (
	"github.com/labstack/echo/v4"

	"github.com/swiftportal/payments-portal/internal/pkg/validation"
)

// echoValidator adapts the shared validation module so Echo can call c.Validate(req).
type echoValidator struct {
	v *validation.Validator
}

// NewValidator returns the validator assigned to echo.Echo.Validator.
func NewValidator(v *validation.Validator) echo.Validator {
	return &echoValidator{v: v}
}

// Validate satisfies the echo.Validator interface. Failures are
// *domain.ValidationError and render as 400 with per-field messages.
func (ev *echoValidator) Validate(i any) error {
	return ev.v.Struct(i)
}
