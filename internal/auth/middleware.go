package auth

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"strings"

	"github.com/sakif/skywatch/internal/apperror"
	"github.com/sakif/skywatch/internal/model"
)

// contextKey is an unexported type for context keys in this package, so only
// this package can read or write the identity attached to a request.
type contextKey string

const identityKey contextKey = "identity"

// TokenValidator resolves a bearer token string to a full identity. It is
// satisfied by service.AuthService; the middleware depends on the small
// interface so tests can substitute a stub.
type TokenValidator interface {
	ValidateToken(ctx context.Context, token string) (*model.Identity, error)
}

// RequireIdentity is the gate in front of every protected route.
//
// It extracts the `Authorization: Bearer <token>` header, validates the
// token, resolves the identity it refers to, and attaches that identity to
// the request context. Any failure short-circuits the chain — the downstream
// handler never runs. All auth failures answer 401 with a machine-readable
// kind (missing_token, invalid_token, token_expired, user_not_found); the
// kinds are deliberately no finer than that.
func RequireIdentity(validator TokenValidator) func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			token, err := bearerToken(r)
			if err != nil {
				writeGateError(w, err)
				return
			}

			identity, err := validator.ValidateToken(r.Context(), token)
			if err != nil {
				writeGateError(w, err)
				return
			}

			ctx := context.WithValue(r.Context(), identityKey, identity)
			next.ServeHTTP(w, r.WithContext(ctx))
		})
	}
}

// IdentityFromContext retrieves the authenticated identity attached by
// RequireIdentity. Returns (nil, false) on routes the gate did not run on.
func IdentityFromContext(ctx context.Context) (*model.Identity, bool) {
	identity, ok := ctx.Value(identityKey).(*model.Identity)
	return identity, ok && identity != nil
}

// bearerToken extracts the token from the Authorization header.
// A missing header is ErrMissingToken; a header that is present but not of
// the form "Bearer <token>" is ErrInvalidToken.
func bearerToken(r *http.Request) (string, error) {
	header := r.Header.Get("Authorization")
	if header == "" {
		return "", apperror.MissingToken()
	}

	parts := strings.SplitN(header, " ", 2)
	if len(parts) != 2 || !strings.EqualFold(parts[0], "Bearer") || parts[1] == "" {
		return "", apperror.InvalidToken()
	}

	return parts[1], nil
}

// writeGateError maps an auth failure to its response without pulling in the
// handler package (which imports this one for IdentityFromContext).
func writeGateError(w http.ResponseWriter, err error) {
	status := http.StatusUnauthorized
	kind := "invalid_token"
	message := "invalid token"

	switch {
	case errors.Is(err, apperror.ErrMissingToken):
		kind, message = "missing_token", "authorization token required"
	case errors.Is(err, apperror.ErrTokenExpired):
		kind, message = "token_expired", "token expired"
	case errors.Is(err, apperror.ErrNotFound):
		kind, message = "user_not_found", "the user belonging to this token no longer exists"
	case errors.Is(err, apperror.ErrInvalidToken):
		// defaults
	default:
		// Unexpected failure (e.g. the store is down) — not an auth problem.
		status, kind, message = http.StatusInternalServerError, "internal_error", "an internal error occurred"
	}

	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(map[string]string{
		"error":   kind,
		"message": message,
	})
}
