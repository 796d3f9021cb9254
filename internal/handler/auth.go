package handler

import (
	"crypto/rand"
	"encoding/hex"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"net/http"
	"time"

	"github.com/sakif/skywatch/internal/apperror"
	"github.com/sakif/skywatch/internal/auth"
	"github.com/sakif/skywatch/internal/service"
)

// AuthHandler exposes the authentication endpoints.
//
//	POST /auth/register         → create a password-based account
//	POST /auth/login            → verify credentials, issue token pair
//	POST /auth/refresh          → mint a fresh pair (bearer = refresh token)
//	GET  /auth/me               → current identity's public profile
//	POST /auth/change-password  → rotate the password
//	GET  /auth/google/login     → redirect to Google's consent screen
//	GET  /auth/google           → OAuth callback: code → tokens
//
// refresh/me/change-password sit behind auth.RequireIdentity, which attaches
// the resolved identity to the request context before these handlers run.
// The handler knows nothing about hashing, signing, or SQL — it decodes
// requests, calls the service interface, and maps results to HTTP.
type AuthHandler struct {
	auth   service.AuthService
	logger *slog.Logger
}

// NewAuthHandler creates an AuthHandler. The service is an interface, so
// tests inject a stub without touching the HTTP plumbing.
func NewAuthHandler(authSvc service.AuthService, logger *slog.Logger) *AuthHandler {
	return &AuthHandler{auth: authSvc, logger: logger}
}

type credentialsRequest struct {
	Email    string `json:"email"`
	Password string `json:"password"`
}

type changePasswordRequest struct {
	CurrentPassword string `json:"current_password"`
	NewPassword     string `json:"new_password"`
}

// registerResponse is the public view of a freshly registered identity —
// deliberately narrower than the /auth/me profile.
type registerResponse struct {
	ID        string    `json:"id"`
	Email     string    `json:"email"`
	CreatedAt time.Time `json:"created_at"`
	UpdatedAt time.Time `json:"updated_at"`
}

// HandleRegister creates a new password-based account.
//
// HTTP: POST /auth/register {email, password} → 201
// A duplicate email answers 409; the winner of a concurrent duplicate
// registration is decided by the database constraint, not by this handler.
func (h *AuthHandler) HandleRegister(w http.ResponseWriter, r *http.Request) {
	var req credentialsRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeError(w, apperror.ValidationFailed("invalid JSON body"))
		return
	}

	identity, err := h.auth.Register(r.Context(), req.Email, req.Password)
	if err != nil {
		h.logError(r, "register failed", err)
		writeError(w, err)
		return
	}

	writeJSON(w, http.StatusCreated, registerResponse{
		ID:        identity.ID,
		Email:     identity.Email,
		CreatedAt: identity.CreatedAt,
		UpdatedAt: identity.UpdatedAt,
	})
}

// HandleLogin verifies credentials and returns a token pair.
//
// HTTP: POST /auth/login {email, password} → 201 {access_token, refresh_token}
// Every credential failure is the same 400 — wrong password and unknown
// email are indistinguishable on the wire.
func (h *AuthHandler) HandleLogin(w http.ResponseWriter, r *http.Request) {
	var req credentialsRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeError(w, apperror.ValidationFailed("invalid JSON body"))
		return
	}

	pair, err := h.auth.Login(r.Context(), req.Email, req.Password)
	if err != nil {
		h.logError(r, "login failed", err)
		writeError(w, err)
		return
	}

	writeJSON(w, http.StatusCreated, pair)
}

// HandleRefresh mints a fresh token pair.
//
// HTTP: POST /auth/refresh, Authorization: Bearer <refresh_token> → 201
// The gate has already validated the refresh token and resolved its subject;
// access and refresh tokens share one verify path, so the same middleware
// guards this route.
func (h *AuthHandler) HandleRefresh(w http.ResponseWriter, r *http.Request) {
	identity, ok := auth.IdentityFromContext(r.Context())
	if !ok {
		writeError(w, apperror.MissingToken())
		return
	}

	pair, err := h.auth.Refresh(r.Context(), identity.ID)
	if err != nil {
		h.logError(r, "refresh failed", err)
		writeError(w, err)
		return
	}

	writeJSON(w, http.StatusCreated, pair)
}

// HandleMe returns the authenticated identity's public profile.
//
// HTTP: GET /auth/me, Authorization: Bearer <access_token> → 200
func (h *AuthHandler) HandleMe(w http.ResponseWriter, r *http.Request) {
	identity, ok := auth.IdentityFromContext(r.Context())
	if !ok {
		// Unreachable behind RequireIdentity, but be safe.
		writeError(w, apperror.MissingToken())
		return
	}

	writeJSON(w, http.StatusOK, identity)
}

// HandleChangePassword rotates the caller's password.
//
// HTTP: POST /auth/change-password {current_password, new_password} → 204
// A wrong current password answers 400 and leaves the stored hash untouched.
func (h *AuthHandler) HandleChangePassword(w http.ResponseWriter, r *http.Request) {
	identity, ok := auth.IdentityFromContext(r.Context())
	if !ok {
		writeError(w, apperror.MissingToken())
		return
	}

	var req changePasswordRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeError(w, apperror.ValidationFailed("invalid JSON body"))
		return
	}

	if err := h.auth.ChangePassword(r.Context(), identity.ID, req.CurrentPassword, req.NewPassword); err != nil {
		h.logError(r, "change password failed", err)
		writeError(w, err)
		return
	}

	w.WriteHeader(http.StatusNoContent)
}

// HandleGoogleLogin starts the Google OAuth flow.
//
// HTTP: GET /auth/google/login → 302 to Google's consent screen
// The random state rides along to Google and comes back on the callback
// query; it keeps the two legs of the flow correlated.
func (h *AuthHandler) HandleGoogleLogin(w http.ResponseWriter, r *http.Request) {
	state, err := randomState()
	if err != nil {
		h.logError(r, "google login failed", err)
		writeError(w, err)
		return
	}

	http.Redirect(w, r, h.auth.GoogleAuthURL(state), http.StatusFound)
}

// randomState returns 16 bytes of crypto randomness, hex-encoded.
func randomState() (string, error) {
	buf := make([]byte, 16)
	if _, err := rand.Read(buf); err != nil {
		return "", fmt.Errorf("handler: generating oauth state: %w", err)
	}
	return hex.EncodeToString(buf), nil
}

// HandleGoogleCallback completes the Google OAuth flow.
//
// HTTP: GET /auth/google?code=...&state=... → 201 {access_token, refresh_token}
// Missing code is a 400; upstream exchange or profile failures are 502.
func (h *AuthHandler) HandleGoogleCallback(w http.ResponseWriter, r *http.Request) {
	code := r.URL.Query().Get("code")
	if code == "" {
		writeError(w, apperror.ValidationFailed("authorization code is required"))
		return
	}

	pair, err := h.auth.LoginWithGoogle(r.Context(), code)
	if err != nil {
		h.logError(r, "google callback failed", err)
		writeError(w, err)
		return
	}

	writeJSON(w, http.StatusCreated, pair)
}

// logError records the full error server-side; the client only ever sees
// the mapped kind and an opaque message for 5xx errors.
func (h *AuthHandler) logError(r *http.Request, msg string, err error) {
	// 4xx outcomes are expected traffic; log them at debug to keep the
	// error stream meaningful.
	level := slog.LevelError
	if isClientError(err) {
		level = slog.LevelDebug
	}
	h.logger.Log(r.Context(), level, msg,
		slog.String("path", r.URL.Path),
		slog.String("error", err.Error()),
	)
}

func isClientError(err error) bool {
	return errors.Is(err, apperror.ErrInvalidCredentials) ||
		errors.Is(err, apperror.ErrAlreadyExists) ||
		errors.Is(err, apperror.ErrValidation) ||
		errors.Is(err, apperror.ErrNotFound) ||
		errors.Is(err, apperror.ErrInvalidToken) ||
		errors.Is(err, apperror.ErrTokenExpired) ||
		errors.Is(err, apperror.ErrMissingToken)
}
