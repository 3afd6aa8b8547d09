package auth

import (
	"errors"
	"fmt"
)

// Business failures are a closed set of typed values so callers branch on
// kind, never on message text.
var (
	ErrAccountNotFound       = errors.New("account not found")
	ErrAccountInactive       = errors.New("account not active")
	ErrAccountLocked         = errors.New("account locked")
	ErrInvalidCredentials    = errors.New("invalid credentials")
	ErrInsufficientRole      = errors.New("insufficient role")
	ErrOwnershipDenied       = errors.New("not the resource owner")
	ErrRepositoryUnavailable = errors.New("account store unavailable")
)

// Exchange failures (ErrNotConfigured, ErrUnavailable, ExchangeError) live in
// the miniprogram package that owns the provider call.

// ValidationError flags malformed input on a specific field.
type ValidationError struct {
	Field  string
	Reason string
}

func (e *ValidationError) Error() string {
	return fmt.Sprintf("invalid %s: %s", e.Field, e.Reason)
}

// DuplicateFieldError flags a uniqueness violation. When several fields
// collide at once, username takes precedence over email over phone.
type DuplicateFieldError struct {
	Field string
}

func (e *DuplicateFieldError) Error() string {
	return fmt.Sprintf("%s already exists", e.Field)
}

