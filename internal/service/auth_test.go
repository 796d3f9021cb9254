package service

import (
	"context"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/sakif/skywatch/internal/apperror"
	"github.com/sakif/skywatch/internal/auth"
	"github.com/sakif/skywatch/internal/model"
)

// fakeIdentityRepo is an in-memory repository with the same conflict
// semantics as the SQLite implementation.
type fakeIdentityRepo struct {
	mu     sync.Mutex
	nextID int
	byID   map[string]*model.Identity
}

func newFakeIdentityRepo() *fakeIdentityRepo {
	return &fakeIdentityRepo{byID: make(map[string]*model.Identity)}
}

func (r *fakeIdentityRepo) CreateLocal(_ context.Context, email, passwordHash string) (*model.Identity, error) {
	r.mu.Lock()
	defer r.mu.Unlock()

	for _, identity := range r.byID {
		if strings.EqualFold(identity.Email, email) {
			return nil, apperror.AlreadyExists("user")
		}
	}

	r.nextID++
	now := time.Now().UTC()
	identity := &model.Identity{
		ID:           fmt.Sprintf("id-%d", r.nextID),
		Email:        email,
		PasswordHash: passwordHash,
		Provider:     model.ProviderLocal,
		CreatedAt:    now,
		UpdatedAt:    now,
	}
	r.byID[identity.ID] = identity

	copied := *identity
	return &copied, nil
}

func (r *fakeIdentityRepo) GetByEmail(_ context.Context, email string) (*model.Identity, error) {
	r.mu.Lock()
	defer r.mu.Unlock()

	for _, identity := range r.byID {
		if strings.EqualFold(identity.Email, email) {
			copied := *identity
			return &copied, nil
		}
	}
	return nil, apperror.NotFound("user")
}

func (r *fakeIdentityRepo) GetByID(_ context.Context, id string) (*model.Identity, error) {
	r.mu.Lock()
	defer r.mu.Unlock()

	identity, ok := r.byID[id]
	if !ok {
		return nil, apperror.NotFound("user")
	}
	copied := *identity
	return &copied, nil
}

func (r *fakeIdentityRepo) UpdatePasswordHash(_ context.Context, id, passwordHash string) error {
	r.mu.Lock()
	defer r.mu.Unlock()

	identity, ok := r.byID[id]
	if !ok {
		return apperror.NotFound("user")
	}
	identity.PasswordHash = passwordHash
	return nil
}

func (r *fakeIdentityRepo) UpsertFromProvider(_ context.Context, profile *model.ProviderProfile) (*model.Identity, error) {
	r.mu.Lock()
	defer r.mu.Unlock()

	if profile == nil || profile.ProviderUserID == "" {
		return nil, apperror.ValidationFailed("provider profile must carry an account id")
	}

	for _, identity := range r.byID {
		if identity.Provider == model.ProviderGoogle && identity.ProviderID == profile.ProviderUserID {
			identity.Email = profile.Email
			identity.FirstName = profile.GivenName
			identity.LastName = profile.FamilyName
			copied := *identity
			return &copied, nil
		}
	}

	r.nextID++
	now := time.Now().UTC()
	identity := &model.Identity{
		ID:         fmt.Sprintf("id-%d", r.nextID),
		Email:      profile.Email,
		FirstName:  profile.GivenName,
		LastName:   profile.FamilyName,
		ImageURL:   profile.Picture,
		Provider:   model.ProviderGoogle,
		ProviderID: profile.ProviderUserID,
		CreatedAt:  now,
		UpdatedAt:  now,
	}
	r.byID[identity.ID] = identity

	copied := *identity
	return &copied, nil
}

// fakeProvider returns canned exchange/profile results.
type fakeProvider struct {
	exchangeErr error
	profileErr  error
	profile     *model.ProviderProfile
}

func (p *fakeProvider) AuthURL(state string) string {
	return "https://accounts.example.com/authorize?state=" + state
}

func (p *fakeProvider) ExchangeCode(_ context.Context, code string) (string, error) {
	if p.exchangeErr != nil {
		return "", p.exchangeErr
	}
	return "provider-token", nil
}

func (p *fakeProvider) FetchProfile(_ context.Context, _ string) (*model.ProviderProfile, error) {
	if p.profileErr != nil {
		return nil, p.profileErr
	}
	return p.profile, nil
}

func newTestService(t *testing.T, repo *fakeIdentityRepo, provider IdentityProvider) AuthService {
	t.Helper()
	tokens, err := auth.NewTokenService("test-secret-key-for-testing-only")
	if err != nil {
		t.Fatalf("NewTokenService() error = %v", err)
	}
	logger := slog.New(slog.NewTextHandler(io.Discard, nil))
	return NewAuthService(repo, tokens, auth.NewPasswordHasherForTest(2), provider, time.Hour, 24*time.Hour, logger)
}

func TestRegister(t *testing.T) {
	repo := newFakeIdentityRepo()
	svc := newTestService(t, repo, &fakeProvider{})
	ctx := context.Background()

	identity, err := svc.Register(ctx, "  Jane@Example.COM  ", "secret123")
	if err != nil {
		t.Fatalf("Register() error = %v", err)
	}

	if identity.Email != "jane@example.com" {
		t.Errorf("Email = %q, want normalized %q", identity.Email, "jane@example.com")
	}
	if identity.PasswordHash == "" || identity.PasswordHash == "secret123" {
		t.Errorf("PasswordHash = %q, want an Argon2id hash", identity.PasswordHash)
	}
	if !strings.HasPrefix(identity.PasswordHash, "$argon2id$") {
		t.Errorf("PasswordHash = %q, want $argon2id$ prefix", identity.PasswordHash)
	}
}

func TestRegister_DuplicateEmail(t *testing.T) {
	repo := newFakeIdentityRepo()
	svc := newTestService(t, repo, &fakeProvider{})
	ctx := context.Background()

	if _, err := svc.Register(ctx, "jane@example.com", "secret123"); err != nil {
		t.Fatalf("first Register() error = %v", err)
	}

	_, err := svc.Register(ctx, "Jane@example.com", "other-password")
	if !errors.Is(err, apperror.ErrAlreadyExists) {
		t.Errorf("duplicate Register() error = %v, want ErrAlreadyExists", err)
	}
}

func TestRegister_Validation(t *testing.T) {
	svc := newTestService(t, newFakeIdentityRepo(), &fakeProvider{})
	ctx := context.Background()

	if _, err := svc.Register(ctx, "", "secret123"); !errors.Is(err, apperror.ErrValidation) {
		t.Errorf("Register(empty email) error = %v, want ErrValidation", err)
	}
	if _, err := svc.Register(ctx, "jane@example.com", ""); !errors.Is(err, apperror.ErrValidation) {
		t.Errorf("Register(empty password) error = %v, want ErrValidation", err)
	}
}

func TestLogin(t *testing.T) {
	repo := newFakeIdentityRepo()
	svc := newTestService(t, repo, &fakeProvider{})
	ctx := context.Background()

	identity, err := svc.Register(ctx, "jane@example.com", "secret123")
	if err != nil {
		t.Fatalf("Register() error = %v", err)
	}

	pair, err := svc.Login(ctx, "JANE@example.com", "secret123")
	if err != nil {
		t.Fatalf("Login() error = %v", err)
	}
	if pair.AccessToken == "" || pair.RefreshToken == "" {
		t.Fatal("Login() returned an incomplete token pair")
	}
	if pair.AccessToken == pair.RefreshToken {
		t.Error("access and refresh tokens are identical; TTLs are not being applied")
	}

	// Both tokens resolve to the registered identity.
	for _, token := range []string{pair.AccessToken, pair.RefreshToken} {
		resolved, err := svc.ValidateToken(ctx, token)
		if err != nil {
			t.Fatalf("ValidateToken() error = %v", err)
		}
		if resolved.ID != identity.ID {
			t.Errorf("ValidateToken() resolved %q, want %q", resolved.ID, identity.ID)
		}
	}
}

func TestLogin_IndistinguishableFailures(t *testing.T) {
	repo := newFakeIdentityRepo()
	svc := newTestService(t, repo, &fakeProvider{})
	ctx := context.Background()

	if _, err := svc.Register(ctx, "jane@example.com", "secret123"); err != nil {
		t.Fatalf("Register() error = %v", err)
	}

	// Provider-only account: no password hash to verify against.
	if _, err := repo.UpsertFromProvider(ctx, &model.ProviderProfile{
		ProviderUserID: "google-sub-1",
		Email:          "googler@example.com",
	}); err != nil {
		t.Fatalf("UpsertFromProvider() error = %v", err)
	}

	tests := []struct {
		name     string
		email    string
		password string
	}{
		{"unknown email", "nobody@example.com", "secret123"},
		{"wrong password", "jane@example.com", "wrong-password"},
		{"provider-only account", "googler@example.com", "any-password"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, err := svc.Login(ctx, tt.email, tt.password)
			if !errors.Is(err, apperror.ErrInvalidCredentials) {
				t.Errorf("Login() error = %v, want ErrInvalidCredentials", err)
			}
		})
	}
}

func TestRefresh(t *testing.T) {
	repo := newFakeIdentityRepo()
	svc := newTestService(t, repo, &fakeProvider{})
	ctx := context.Background()

	identity, err := svc.Register(ctx, "jane@example.com", "secret123")
	if err != nil {
		t.Fatalf("Register() error = %v", err)
	}

	pair, err := svc.Refresh(ctx, identity.ID)
	if err != nil {
		t.Fatalf("Refresh() error = %v", err)
	}
	if pair.AccessToken == "" || pair.RefreshToken == "" {
		t.Fatal("Refresh() returned an incomplete token pair")
	}

	_, err = svc.Refresh(ctx, "deleted-user-id")
	if !errors.Is(err, apperror.ErrNotFound) {
		t.Errorf("Refresh(unknown subject) error = %v, want ErrNotFound", err)
	}
}

func TestChangePassword(t *testing.T) {
	repo := newFakeIdentityRepo()
	svc := newTestService(t, repo, &fakeProvider{})
	ctx := context.Background()

	identity, err := svc.Register(ctx, "jane@example.com", "old-password")
	if err != nil {
		t.Fatalf("Register() error = %v", err)
	}

	if err := svc.ChangePassword(ctx, identity.ID, "old-password", "new-password"); err != nil {
		t.Fatalf("ChangePassword() error = %v", err)
	}

	if _, err := svc.Login(ctx, "jane@example.com", "old-password"); !errors.Is(err, apperror.ErrInvalidCredentials) {
		t.Errorf("Login(old password) error = %v, want ErrInvalidCredentials", err)
	}
	if _, err := svc.Login(ctx, "jane@example.com", "new-password"); err != nil {
		t.Errorf("Login(new password) error = %v", err)
	}
}

func TestChangePassword_WrongCurrent(t *testing.T) {
	repo := newFakeIdentityRepo()
	svc := newTestService(t, repo, &fakeProvider{})
	ctx := context.Background()

	identity, err := svc.Register(ctx, "jane@example.com", "old-password")
	if err != nil {
		t.Fatalf("Register() error = %v", err)
	}

	err = svc.ChangePassword(ctx, identity.ID, "not-the-password", "new-password")
	if !errors.Is(err, apperror.ErrInvalidCredentials) {
		t.Fatalf("ChangePassword() error = %v, want ErrInvalidCredentials", err)
	}

	// The stored hash must be untouched.
	if _, err := svc.Login(ctx, "jane@example.com", "old-password"); err != nil {
		t.Errorf("Login(old password) after failed change: error = %v", err)
	}
}

func TestValidateToken_DeletedSubject(t *testing.T) {
	repo := newFakeIdentityRepo()
	svc := newTestService(t, repo, &fakeProvider{})
	ctx := context.Background()

	identity, err := svc.Register(ctx, "jane@example.com", "secret123")
	if err != nil {
		t.Fatalf("Register() error = %v", err)
	}
	pair, err := svc.Login(ctx, "jane@example.com", "secret123")
	if err != nil {
		t.Fatalf("Login() error = %v", err)
	}

	repo.mu.Lock()
	delete(repo.byID, identity.ID)
	repo.mu.Unlock()

	_, err = svc.ValidateToken(ctx, pair.AccessToken)
	if !errors.Is(err, apperror.ErrNotFound) {
		t.Errorf("ValidateToken(deleted subject) error = %v, want ErrNotFound", err)
	}
}

func TestValidateToken_Garbage(t *testing.T) {
	svc := newTestService(t, newFakeIdentityRepo(), &fakeProvider{})

	_, err := svc.ValidateToken(context.Background(), "not-a-jwt")
	if !errors.Is(err, apperror.ErrInvalidToken) {
		t.Errorf("ValidateToken(garbage) error = %v, want ErrInvalidToken", err)
	}
}

func TestLoginWithGoogle(t *testing.T) {
	repo := newFakeIdentityRepo()
	provider := &fakeProvider{
		profile: &model.ProviderProfile{
			ProviderUserID: "google-sub-1",
			Email:          "Jane@Example.com",
			GivenName:      "Jane",
		},
	}
	svc := newTestService(t, repo, provider)
	ctx := context.Background()

	pair, err := svc.LoginWithGoogle(ctx, "auth-code")
	if err != nil {
		t.Fatalf("LoginWithGoogle() error = %v", err)
	}

	identity, err := svc.ValidateToken(ctx, pair.AccessToken)
	if err != nil {
		t.Fatalf("ValidateToken() error = %v", err)
	}
	if identity.Email != "jane@example.com" {
		t.Errorf("Email = %q, want normalized %q", identity.Email, "jane@example.com")
	}
	if identity.Provider != model.ProviderGoogle {
		t.Errorf("Provider = %q, want %q", identity.Provider, model.ProviderGoogle)
	}

	// A second login with the same account reuses the identity.
	pair2, err := svc.LoginWithGoogle(ctx, "another-code")
	if err != nil {
		t.Fatalf("second LoginWithGoogle() error = %v", err)
	}
	identity2, err := svc.ValidateToken(ctx, pair2.AccessToken)
	if err != nil {
		t.Fatalf("ValidateToken() error = %v", err)
	}
	if identity2.ID != identity.ID {
		t.Errorf("second login resolved %q, want %q", identity2.ID, identity.ID)
	}
}

func TestGoogleAuthURL(t *testing.T) {
	svc := newTestService(t, newFakeIdentityRepo(), &fakeProvider{})

	url := svc.GoogleAuthURL("csrf-state")
	if !strings.Contains(url, "state=csrf-state") {
		t.Errorf("GoogleAuthURL() = %q, missing the state parameter", url)
	}
}

func TestLoginWithGoogle_UpstreamFailures(t *testing.T) {
	ctx := context.Background()

	svc := newTestService(t, newFakeIdentityRepo(), &fakeProvider{
		exchangeErr: apperror.UpstreamExchange(errors.New("boom")),
	})
	if _, err := svc.LoginWithGoogle(ctx, "code"); !errors.Is(err, apperror.ErrUpstreamExchange) {
		t.Errorf("LoginWithGoogle() error = %v, want ErrUpstreamExchange", err)
	}

	svc = newTestService(t, newFakeIdentityRepo(), &fakeProvider{
		profileErr: apperror.UpstreamProfile(errors.New("boom")),
	})
	if _, err := svc.LoginWithGoogle(ctx, "code"); !errors.Is(err, apperror.ErrUpstreamProfile) {
		t.Errorf("LoginWithGoogle() error = %v, want ErrUpstreamProfile", err)
	}
}
