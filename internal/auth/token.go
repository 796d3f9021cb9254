// Package auth provides the security primitives of the skywatch backend:
// stateless JWT issuance/validation, Argon2id password hashing, the Google
// identity exchange, and the request-gating middleware.
//
// TOKEN MODEL:
// Tokens are stateless. Everything the server needs (subject, issued-at,
// expiry) lives inside the signed token string; nothing is persisted and
// there is no revocation list — "logout" is a client-side discard. Access
// and refresh tokens share one issue/verify path and differ only in the TTL
// the caller picks (minutes vs. days). Refresh is therefore just "mint a new
// pair for a subject proven by a still-valid long-lived token".
//
// JWT STRUCTURE (three base64-encoded parts separated by dots):
//
//	HEADER.PAYLOAD.SIGNATURE
//	- Header: algorithm + token type → {"alg":"HS256","typ":"JWT"}
//	- Payload: claims → {"sub":"<identity id>","iat":...,"exp":...}
//	- Signature: HMAC-SHA256(header+"."+payload, secretKey)
package auth

import (
	"errors"
	"fmt"
	"time"

	"github.com/golang-jwt/jwt/v5"

	"github.com/sakif/skywatch/internal/apperror"
)

const tokenIssuer = "skywatch"

// Claims is the verified payload of a skywatch token. Ephemeral — it is
// reconstructed from the token string on every verification, never stored.
type Claims struct {
	Subject   string
	IssuedAt  time.Time
	ExpiresAt time.Time
}

// TokenService signs and verifies JWTs with a single symmetric HMAC secret.
// The secret is read-only after construction, so one TokenService is safely
// shared across concurrent requests.
type TokenService struct {
	secret []byte
}

// NewTokenService creates a TokenService with the given secret.
// The secret should be at least 32 bytes of random data in production.
// Example: JWT_SECRET=$(openssl rand -hex 32)
func NewTokenService(secret string) (*TokenService, error) {
	if len(secret) < 16 {
		return nil, errors.New("auth: JWT secret must be at least 16 characters")
	}
	return &TokenService{secret: []byte(secret)}, nil
}

// tokenClaims embeds jwt.RegisteredClaims; "sub" carries the identity ID.
type tokenClaims struct {
	jwt.RegisteredClaims
}

// Issue creates and signs a token for the given subject with the given TTL.
// The caller chooses the horizon: ~minutes for access tokens, ~days for
// refresh tokens.
func (s *TokenService) Issue(subject string, ttl time.Duration) (string, error) {
	now := time.Now()

	c := tokenClaims{
		RegisteredClaims: jwt.RegisteredClaims{
			Subject:   subject,
			IssuedAt:  jwt.NewNumericDate(now),
			ExpiresAt: jwt.NewNumericDate(now.Add(ttl)),
			Issuer:    tokenIssuer,
		},
	}

	token := jwt.NewWithClaims(jwt.SigningMethodHS256, c)
	signed, err := token.SignedString(s.secret)
	if err != nil {
		return "", fmt.Errorf("auth: signing token: %w", err)
	}

	return signed, nil
}

// Verify parses and verifies a token string and returns its claims.
//
// Checks performed by the jwt library:
//   - signature is valid (constant-time HMAC compare, not hand-rolled)
//   - token is not expired (no clock-skew tolerance)
//   - issuer matches (rejects tokens minted by other apps)
//   - algorithm is HS256 (prevents algorithm-confusion attacks)
//
// Failures come back as the typed apperror kinds: ErrTokenExpired for an
// expired-but-otherwise-valid token, ErrInvalidToken for everything else.
func (s *TokenService) Verify(tokenStr string) (*Claims, error) {
	token, err := jwt.ParseWithClaims(
		tokenStr,
		&tokenClaims{},
		func(token *jwt.Token) (any, error) {
			if _, ok := token.Method.(*jwt.SigningMethodHMAC); !ok {
				return nil, fmt.Errorf("auth: unexpected signing method: %v", token.Header["alg"])
			}
			return s.secret, nil
		},
		jwt.WithValidMethods([]string{"HS256"}),
		jwt.WithIssuer(tokenIssuer),
		jwt.WithExpirationRequired(),
	)
	if err != nil {
		if errors.Is(err, jwt.ErrTokenExpired) {
			return nil, fmt.Errorf("auth: %w", apperror.TokenExpired())
		}
		return nil, fmt.Errorf("auth: %w", apperror.InvalidToken())
	}

	c, ok := token.Claims.(*tokenClaims)
	if !ok || !token.Valid || c.Subject == "" {
		return nil, fmt.Errorf("auth: %w", apperror.InvalidToken())
	}

	claims := &Claims{Subject: c.Subject}
	if c.IssuedAt != nil {
		claims.IssuedAt = c.IssuedAt.Time
	}
	if c.ExpiresAt != nil {
		claims.ExpiresAt = c.ExpiresAt.Time
	}

	return claims, nil
}
