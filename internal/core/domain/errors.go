package domain

import (
	"errors"
	"fmt"
	"strings"
)

// Caller-facing errors. Messages are returned to clients verbatim, so they must
// not reveal which internal check failed.
var (
	ErrValidation          = errors.New("input validation failed")
	ErrInvalidCredentials  = errors.New("invalid email or password")
	ErrAccountDeactivated  = errors.New("this account has been deactivated")
	ErrNoTenantMembership  = errors.New("user is not associated with any tenant")
	ErrInvalidRefreshToken = errors.New("invalid refresh token")
	ErrExpiredRefreshToken = errors.New("refresh token expired")
	ErrUnauthenticated     = errors.New("authentication required")
	ErrForbidden           = errors.New("access forbidden")
	ErrConflict            = errors.New("conflict")
	ErrInternal            = errors.New("internal error")

	ErrEmailTaken = fmt.Errorf("%w: this email is already registered", ErrConflict)
	ErrSlugTaken  = fmt.Errorf("%w: this tenant name is already in use, please choose another one", ErrConflict)
)

// Store-level lookups. The service layer maps these onto the errors above.
var (
	ErrUserNotFound         = errors.New("user not found")
	ErrTenantNotFound       = errors.New("tenant not found")
	ErrMembershipNotFound   = errors.New("membership not found")
	ErrRefreshTokenNotFound = errors.New("refresh token not found")
)

// FieldError describes one rejected input field.
type FieldError struct {
	Field   string `json:"field"`
	Message string `json:"message"`
}

// ValidationError collects field errors for a single request. It matches ErrValidation.
type ValidationError struct {
	Fields []FieldError
}

// NewValidationError builds a ValidationError for a single field.
func NewValidationError(field, message string) *ValidationError {
	return &ValidationError{Fields: []FieldError{{Field: field, Message: message}}}
}

// Add appends a field error.
func (e *ValidationError) Add(field, message string) {
	e.Fields = append(e.Fields, FieldError{Field: field, Message: message})
}

// OrNil returns nil when no field errors were collected.
func (e *ValidationError) OrNil() error {
	if e == nil || len(e.Fields) == 0 {
		return nil
	}
	return e
}

func (e *ValidationError) Error() string {
	msgs := make([]string, 0, len(e.Fields))
	for _, f := range e.Fields {
		msgs = append(msgs, f.Message)
	}
	return ErrValidation.Error() + ": " + strings.Join(msgs, "; ")
}

func (e *ValidationError) Unwrap() error { return ErrValidation }

// Internal wraps an unexpected failure so it matches ErrInternal while keeping the cause.
func Internal(op string, err error) error {
	return fmt.Errorf("%w: %s: %w", ErrInternal, op, err)
}
