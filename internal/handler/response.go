package handler

import (
	"encoding/json"
	"errors"
	"log/slog"
	"net/http"

	"github.com/sakif/skywatch/internal/apperror"
)

// ErrorResponse is the standard error shape returned by every endpoint:
// a machine-readable kind plus a human-readable message. Clients can always
// rely on these two fields regardless of the status code.
type ErrorResponse struct {
	Error   string `json:"error"`
	Message string `json:"message"`
}

// writeJSON sends a JSON response with the given status code. Headers and
// status must go out before the body; once Encode writes, they are sealed.
func writeJSON(w http.ResponseWriter, status int, data any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	if data != nil {
		if err := json.NewEncoder(w).Encode(data); err != nil {
			// Headers are already sent; nothing left to do but log.
			slog.Error("failed to encode JSON response", slog.String("error", err.Error()))
		}
	}
}

// writeError maps a domain error to its HTTP status and body. This is the
// single place status codes are chosen; the service layer never sees them.
//
// Token and subject problems are all 401. Login failures are a flat 400
// invalid_credentials with no finer detail (anti-enumeration). Hashing,
// storage, and unknown failures are opaque 500s — the real error text stays
// in the server logs, never in the response body.
func writeError(w http.ResponseWriter, err error) {
	status := http.StatusInternalServerError
	kind := "internal_error"
	message := "an internal error occurred"

	var appErr *apperror.AppError
	clientMessage := errors.As(err, &appErr)

	switch {
	case errors.Is(err, apperror.ErrMissingToken):
		status, kind = http.StatusUnauthorized, "missing_token"
	case errors.Is(err, apperror.ErrTokenExpired):
		status, kind = http.StatusUnauthorized, "token_expired"
	case errors.Is(err, apperror.ErrInvalidToken):
		status, kind = http.StatusUnauthorized, "invalid_token"
	case errors.Is(err, apperror.ErrNotFound):
		status, kind = http.StatusUnauthorized, "user_not_found"
	case errors.Is(err, apperror.ErrInvalidCredentials):
		status, kind = http.StatusBadRequest, "invalid_credentials"
	case errors.Is(err, apperror.ErrValidation):
		status, kind = http.StatusBadRequest, "validation_error"
	case errors.Is(err, apperror.ErrAlreadyExists):
		status, kind = http.StatusConflict, "user_already_exists"
	case errors.Is(err, apperror.ErrHashing):
		kind, clientMessage = "hashing_failed", false
	case errors.Is(err, apperror.ErrPersistence):
		kind, clientMessage = "persistence_failed", false
	case errors.Is(err, apperror.ErrUpstreamExchange):
		status, kind, clientMessage = http.StatusBadGateway, "upstream_exchange_failed", false
		message = "identity provider request failed"
	case errors.Is(err, apperror.ErrUpstreamProfile):
		status, kind, clientMessage = http.StatusBadGateway, "upstream_profile_failed", false
		message = "identity provider request failed"
	default:
		clientMessage = false
	}

	if clientMessage {
		message = appErr.Message
	}

	writeJSON(w, status, ErrorResponse{Error: kind, Message: message})
}
