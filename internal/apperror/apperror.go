// Package apperror defines the typed error taxonomy shared by the auth core.
//
// Errors are plain values, never panics. Each fallible operation returns an
// *AppError wrapping one of the sentinel errors below; the HTTP layer is the
// only place that translates them into status codes. errors.Is walks the
// wrap chain, so a service can do
//
//	fmt.Errorf("service/auth: logging in: %w", apperror.InvalidCredentials())
//
// and the handler still matches the sentinel.
package apperror

import (
	"errors"
	"fmt"
)

var (
	ErrInvalidCredentials = errors.New("invalid credentials")
	ErrAlreadyExists      = errors.New("already exists")
	ErrNotFound           = errors.New("not found")
	ErrInvalidToken       = errors.New("invalid token")
	ErrTokenExpired       = errors.New("token expired")
	ErrMissingToken       = errors.New("missing token")
	ErrHashing            = errors.New("hashing failed")
	ErrPersistence        = errors.New("persistence failed")
	ErrUpstreamExchange   = errors.New("upstream exchange failed")
	ErrUpstreamProfile    = errors.New("upstream profile failed")
	ErrValidation         = errors.New("validation error")
)

// AppError carries a sentinel (for errors.Is matching) and a human-readable
// message. Messages on 4xx kinds are safe to return to clients; 5xx and 502
// messages may embed the underlying cause for server-side logging, and the
// HTTP layer substitutes an opaque message before anything reaches a client.
type AppError struct {
	Err     error  // sentinel, possibly wrapping an underlying cause
	Message string // human-readable description
}

func (e *AppError) Error() string {
	return e.Message
}

func (e *AppError) Unwrap() error {
	return e.Err
}

// InvalidCredentials deliberately does not distinguish "no such user" from
// "wrong password" — the coarse message prevents account enumeration.
func InvalidCredentials() *AppError {
	return &AppError{
		Err:     ErrInvalidCredentials,
		Message: "invalid email or password",
	}
}

func AlreadyExists(resource string) *AppError {
	return &AppError{
		Err:     ErrAlreadyExists,
		Message: fmt.Sprintf("%s already exists", resource),
	}
}

func NotFound(resource string) *AppError {
	return &AppError{
		Err:     ErrNotFound,
		Message: fmt.Sprintf("%s not found", resource),
	}
}

func InvalidToken() *AppError {
	return &AppError{
		Err:     ErrInvalidToken,
		Message: "invalid token",
	}
}

func TokenExpired() *AppError {
	return &AppError{
		Err:     ErrTokenExpired,
		Message: "token expired",
	}
}

func MissingToken() *AppError {
	return &AppError{
		Err:     ErrMissingToken,
		Message: "authorization token required",
	}
}

// Hashing wraps a password-hashing failure. The cause stays on the wrap
// chain for server-side logging.
func Hashing(cause error) *AppError {
	return &AppError{
		Err:     fmt.Errorf("%w: %w", ErrHashing, cause),
		Message: fmt.Sprintf("hashing failed: %v", cause),
	}
}

// Persistence wraps an unexpected storage failure.
func Persistence(cause error) *AppError {
	return &AppError{
		Err:     fmt.Errorf("%w: %w", ErrPersistence, cause),
		Message: fmt.Sprintf("storage failure: %v", cause),
	}
}

// UpstreamExchange wraps a failed OAuth code-for-token exchange.
func UpstreamExchange(cause error) *AppError {
	return &AppError{
		Err:     fmt.Errorf("%w: %w", ErrUpstreamExchange, cause),
		Message: fmt.Sprintf("identity provider exchange failed: %v", cause),
	}
}

// UpstreamProfile wraps a failed provider profile fetch.
func UpstreamProfile(cause error) *AppError {
	return &AppError{
		Err:     fmt.Errorf("%w: %w", ErrUpstreamProfile, cause),
		Message: fmt.Sprintf("identity provider profile fetch failed: %v", cause),
	}
}

func ValidationFailed(message string) *AppError {
	return &AppError{
		Err:     ErrValidation,
		Message: message,
	}
}
