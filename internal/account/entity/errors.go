package entity

import (
	"errors"
	"fmt"
)

// Fixed error taxonomy surfaced to callers. Message text is the
// taxonomy string only; internal causes stay wrapped.
var (
	ErrInvalidCredentials = errors.New("invalid credentials")
	ErrInvalidToken       = errors.New("invalid token")
	ErrTokenExpired       = errors.New("token expired")
	ErrDuplicateAccount   = errors.New("duplicate account")
	ErrNotFound           = errors.New("account not found")
)

// MissingEmailError is raised when a provider profile carries no
// email and one is required to create an account.
type MissingEmailError struct {
	Provider Provider
}

func (e *MissingEmailError) Error() string {
	return fmt.Sprintf("missing email from provider %s", e.Provider)
}

// ProviderError wraps any lookup, verification or write failure during
// a social flow that is not already classified.
type ProviderError struct {
	Provider Provider
	Detail   string
	Err      error
}

func (e *ProviderError) Error() string {
	return fmt.Sprintf("provider %s error: %s", e.Provider, e.Detail)
}

func (e *ProviderError) Unwrap() error { return e.Err }
