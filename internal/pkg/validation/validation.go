// Package validation wraps go-playground/validator with the project's custom
// rules and turns its errors into domain.ValidationError.
package validation

import (
	"errors"
	"fmt"
	"reflect"
	"strings"
	"unicode"

	"github.com/go-playground/validator/v10"

	"github.com/sirpyerre/tenant-portal/internal/core/domain"
)

// TagPassword requires at least one upper-case letter, one lower-case letter and one digit.
const TagPassword = "password"

var std = New()

// New returns a validator with the custom rules registered. Field names in
// errors come from the json tag when present.
func New() *validator.Validate {
	v := validator.New(validator.WithRequiredStructEnabled())
	v.RegisterTagNameFunc(func(f reflect.StructField) string {
		name := strings.SplitN(f.Tag.Get("json"), ",", 2)[0]
		if name == "" || name == "-" {
			return strings.ToLower(f.Name)
		}
		return name
	})
	// Registration only fails for an empty tag or nil func.
	_ = v.RegisterValidation(TagPassword, func(fl validator.FieldLevel) bool {
		return passwordComplexEnough(fl.Field().String())
	})
	return v
}

// Struct validates s with the shared validator.
func Struct(s any) error {
	return Translate(std.Struct(s))
}

// Translate converts validator errors into *domain.ValidationError. Other errors pass through.
func Translate(err error) error {
	if err == nil {
		return nil
	}
	var ve validator.ValidationErrors
	if !errors.As(err, &ve) {
		return err
	}
	out := &domain.ValidationError{}
	for _, fe := range ve {
		out.Add(fe.Field(), fieldError(fe))
	}
	return out.OrNil()
}

func passwordComplexEnough(s string) bool {
	var upper, lower, digit bool
	for _, r := range s {
		switch {
		case unicode.IsUpper(r):
			upper = true
		case unicode.IsLower(r):
			lower = true
		case unicode.IsDigit(r):
			digit = true
		}
	}
	return upper && lower && digit
}

// fieldError converts a single FieldError into a human-readable message.
func fieldError(fe validator.FieldError) string {
	field := fe.Field()
	switch fe.Tag() {
	case "required":
		return field + " is required"
	case "email":
		return field + " must be a valid email"
	case "min":
		return fmt.Sprintf("%s must be at least %s characters long", field, fe.Param())
	case "max":
		return fmt.Sprintf("%s must be at most %s characters long", field, fe.Param())
	case "oneof":
		return fmt.Sprintf("%s must be one of: %s", field, fe.Param())
	case TagPassword:
		return field + " must include uppercase, lowercase letters, and a number"
	default:
		return fmt.Sprintf("%s failed validation (%s)", field, fe.Tag())
	}
}
