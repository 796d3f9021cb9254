// Package service — authentication business logic.
//
// AuthService sits between the HTTP handlers and the security primitives:
//
//	AuthHandler (HTTP) → AuthService (rules) → IdentityRepository (DB)
//	                   ↘ TokenService (JWT), PasswordHasher, GoogleProvider
//
// It holds no mutable in-process state: a pooled database handle, a
// read-only signing secret, and a bounded hasher, all safely shared across
// concurrent requests. Every fallible step returns a typed apperror value —
// nothing here panics on bad input, and HTTP concerns (status codes,
// headers, cookies) never appear at this layer.
package service

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"strings"
	"time"

	"github.com/sakif/skywatch/internal/apperror"
	"github.com/sakif/skywatch/internal/auth"
	"github.com/sakif/skywatch/internal/model"
	"github.com/sakif/skywatch/internal/repository"
)

// TokenPair is the result of every successful authentication: a short-lived
// access token and a long-lived refresh token, minted by the same signer.
type TokenPair struct {
	AccessToken  string `json:"access_token"`
	RefreshToken string `json:"refresh_token"`
}

// AuthService is the façade handlers depend on. It is an interface so the
// HTTP layer can be tested against a stub without a database or hasher.
type AuthService interface {
	Register(ctx context.Context, email, password string) (*model.Identity, error)
	Login(ctx context.Context, email, password string) (*TokenPair, error)
	Refresh(ctx context.Context, identityID string) (*TokenPair, error)
	ChangePassword(ctx context.Context, identityID, currentPassword, newPassword string) error
	GetIdentity(ctx context.Context, id string) (*model.Identity, error)
	ValidateToken(ctx context.Context, token string) (*model.Identity, error)
	GoogleAuthURL(state string) string
	LoginWithGoogle(ctx context.Context, code string) (*TokenPair, error)
}

// IdentityProvider is the slice of the Google client the service needs;
// tests substitute a fake so no network is involved.
type IdentityProvider interface {
	AuthURL(state string) string
	ExchangeCode(ctx context.Context, code string) (string, error)
	FetchProfile(ctx context.Context, accessToken string) (*model.ProviderProfile, error)
}

type authService struct {
	identities repository.IdentityRepository
	tokens     *auth.TokenService
	passwords  *auth.PasswordHasher
	provider   IdentityProvider
	accessTTL  time.Duration
	refreshTTL time.Duration
	logger     *slog.Logger
}

// NewAuthService wires the auth core together. accessTTL/refreshTTL default
// to 60 minutes and 30 days when zero.
func NewAuthService(
	identities repository.IdentityRepository,
	tokens *auth.TokenService,
	passwords *auth.PasswordHasher,
	provider IdentityProvider,
	accessTTL time.Duration,
	refreshTTL time.Duration,
	logger *slog.Logger,
) AuthService {
	if accessTTL <= 0 {
		accessTTL = 60 * time.Minute
	}
	if refreshTTL <= 0 {
		refreshTTL = 30 * 24 * time.Hour
	}
	return &authService{
		identities: identities,
		tokens:     tokens,
		passwords:  passwords,
		provider:   provider,
		accessTTL:  accessTTL,
		refreshTTL: refreshTTL,
		logger:     logger,
	}
}

// normalizeEmail case-folds an address so uniqueness and lookups behave the
// same regardless of how the user typed it.
func normalizeEmail(email string) string {
	return strings.ToLower(strings.TrimSpace(email))
}

// Register creates a password-based identity.
//
// A duplicate email is a hard conflict surfaced to the caller — the store
// detects it from its uniqueness constraint, so two concurrent registrations
// for the same address resolve to exactly one success.
func (s *authService) Register(ctx context.Context, email, password string) (*model.Identity, error) {
	email = normalizeEmail(email)
	if email == "" {
		return nil, fmt.Errorf("service/auth: register: %w", apperror.ValidationFailed("email is required"))
	}
	if password == "" {
		return nil, fmt.Errorf("service/auth: register: %w", apperror.ValidationFailed("password is required"))
	}

	hash, err := s.passwords.Hash(ctx, password)
	if err != nil {
		return nil, fmt.Errorf("service/auth: register: %w", apperror.Hashing(err))
	}

	identity, err := s.identities.CreateLocal(ctx, email, hash)
	if err != nil {
		return nil, fmt.Errorf("service/auth: register: %w", err)
	}

	s.logger.Info("user registered",
		slog.String("userID", identity.ID),
	)

	return identity, nil
}

// Login verifies credentials and issues a token pair.
//
// An unknown email, a provider-only account (empty hash), and a wrong
// password all produce the same ErrInvalidCredentials — the caller learns
// nothing about which part failed.
func (s *authService) Login(ctx context.Context, email, password string) (*TokenPair, error) {
	identity, err := s.identities.GetByEmail(ctx, normalizeEmail(email))
	if err != nil {
		if errors.Is(err, apperror.ErrNotFound) {
			return nil, fmt.Errorf("service/auth: login: %w", apperror.InvalidCredentials())
		}
		return nil, fmt.Errorf("service/auth: login: %w", err)
	}

	if !identity.HasPassword() || !s.passwords.Verify(ctx, password, identity.PasswordHash) {
		return nil, fmt.Errorf("service/auth: login: %w", apperror.InvalidCredentials())
	}

	pair, err := s.issuePair(identity.ID)
	if err != nil {
		return nil, err
	}

	s.logger.Info("user logged in", slog.String("userID", identity.ID))

	return pair, nil
}

// Refresh mints a fresh token pair for a subject already proven by a
// still-valid refresh token. The subject must still exist. Previously issued
// refresh tokens are NOT invalidated — there is no rotation or family
// tracking; a leaked refresh token stays valid until its natural expiry.
func (s *authService) Refresh(ctx context.Context, identityID string) (*TokenPair, error) {
	identity, err := s.identities.GetByID(ctx, identityID)
	if err != nil {
		return nil, fmt.Errorf("service/auth: refresh: %w", err)
	}

	return s.issuePair(identity.ID)
}

// ChangePassword swaps the stored hash after verifying the current password.
// A wrong current password leaves the stored hash untouched.
func (s *authService) ChangePassword(ctx context.Context, identityID, currentPassword, newPassword string) error {
	if newPassword == "" {
		return fmt.Errorf("service/auth: change password: %w", apperror.ValidationFailed("new password is required"))
	}

	identity, err := s.identities.GetByID(ctx, identityID)
	if err != nil {
		return fmt.Errorf("service/auth: change password: %w", err)
	}

	if !identity.HasPassword() || !s.passwords.Verify(ctx, currentPassword, identity.PasswordHash) {
		return fmt.Errorf("service/auth: change password: %w", apperror.InvalidCredentials())
	}

	hash, err := s.passwords.Hash(ctx, newPassword)
	if err != nil {
		return fmt.Errorf("service/auth: change password: %w", apperror.Hashing(err))
	}

	if err := s.identities.UpdatePasswordHash(ctx, identity.ID, hash); err != nil {
		return fmt.Errorf("service/auth: change password: %w", err)
	}

	s.logger.Info("password changed", slog.String("userID", identity.ID))

	return nil
}

// GetIdentity returns the identity for the given internal ID.
func (s *authService) GetIdentity(ctx context.Context, id string) (*model.Identity, error) {
	identity, err := s.identities.GetByID(ctx, id)
	if err != nil {
		return nil, fmt.Errorf("service/auth: fetching identity: %w", err)
	}
	return identity, nil
}

// ValidateToken verifies a token string and resolves the identity it refers
// to. A syntactically valid token whose subject no longer exists fails with
// ErrNotFound — the gate turns that into a 401, not a 404.
func (s *authService) ValidateToken(ctx context.Context, token string) (*model.Identity, error) {
	claims, err := s.tokens.Verify(token)
	if err != nil {
		return nil, fmt.Errorf("service/auth: %w", err)
	}

	identity, err := s.identities.GetByID(ctx, claims.Subject)
	if err != nil {
		return nil, fmt.Errorf("service/auth: resolving token subject: %w", err)
	}

	return identity, nil
}

// GoogleAuthURL returns the provider authorization URL that starts the OAuth
// flow; state is the CSRF token the provider echoes back on the callback.
func (s *authService) GoogleAuthURL(state string) string {
	return s.provider.AuthURL(state)
}

// LoginWithGoogle completes the OAuth callback: code → provider token →
// profile → identity upsert → the same token-issuance path as Login.
func (s *authService) LoginWithGoogle(ctx context.Context, code string) (*TokenPair, error) {
	accessToken, err := s.provider.ExchangeCode(ctx, code)
	if err != nil {
		return nil, fmt.Errorf("service/auth: google login: %w", err)
	}

	profile, err := s.provider.FetchProfile(ctx, accessToken)
	if err != nil {
		return nil, fmt.Errorf("service/auth: google login: %w", err)
	}
	profile.Email = normalizeEmail(profile.Email)

	identity, err := s.identities.UpsertFromProvider(ctx, profile)
	if err != nil {
		return nil, fmt.Errorf("service/auth: google login: %w", err)
	}

	pair, err := s.issuePair(identity.ID)
	if err != nil {
		return nil, err
	}

	s.logger.Info("user authenticated via google",
		slog.String("userID", identity.ID),
	)

	return pair, nil
}

// issuePair mints one access and one refresh token for a subject. The two
// are structurally identical; only the TTL differs.
func (s *authService) issuePair(identityID string) (*TokenPair, error) {
	access, err := s.tokens.Issue(identityID, s.accessTTL)
	if err != nil {
		return nil, fmt.Errorf("service/auth: issuing access token: %w", err)
	}

	refresh, err := s.tokens.Issue(identityID, s.refreshTTL)
	if err != nil {
		return nil, fmt.Errorf("service/auth: issuing refresh token: %w", err)
	}

	return &TokenPair{AccessToken: access, RefreshToken: refresh}, nil
}
