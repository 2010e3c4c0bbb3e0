package handler

import (
	"github.com/go-playground/validator/v10"

	"github.com/sirpyerre/tenant-portal/internal/pkg/validation"
)

// echoValidator wraps go-playground/validator so Echo can call c.Validate(req).
type echoValidator struct {
	v *validator.Validate
}

// NewValidator returns an echoValidator ready to be assigned to echo.Echo.Validator.
// Failures come back as *domain.ValidationError.
func NewValidator() *echoValidator {
	return &echoValidator{v: validation.New()}
}

// Validate satisfies the echo.Validator interface.
func (ev *echoValidator) Validate(i any) error {
	return validation.Translate(ev.v.Struct(i))
}
