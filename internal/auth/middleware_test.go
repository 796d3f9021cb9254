package auth

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/sakif/skywatch/internal/apperror"
	"github.com/sakif/skywatch/internal/model"
)

// stubValidator maps token strings to canned results.
type stubValidator struct {
	identities map[string]*model.Identity
	errs       map[string]error
}

func (s *stubValidator) ValidateToken(_ context.Context, token string) (*model.Identity, error) {
	if err, ok := s.errs[token]; ok {
		return nil, err
	}
	if identity, ok := s.identities[token]; ok {
		return identity, nil
	}
	return nil, apperror.InvalidToken()
}

func newGateTestServer(validator TokenValidator) http.Handler {
	next := http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		identity, ok := IdentityFromContext(r.Context())
		if !ok {
			http.Error(w, "no identity in context", http.StatusInternalServerError)
			return
		}
		w.Write([]byte(identity.ID))
	})
	return RequireIdentity(validator)(next)
}

func gateRequest(t *testing.T, handler http.Handler, authorization string) *httptest.ResponseRecorder {
	t.Helper()
	req := httptest.NewRequest(http.MethodGet, "/protected", nil)
	if authorization != "" {
		req.Header.Set("Authorization", authorization)
	}
	rec := httptest.NewRecorder()
	handler.ServeHTTP(rec, req)
	return rec
}

func decodeGateError(t *testing.T, rec *httptest.ResponseRecorder) string {
	t.Helper()
	var body map[string]string
	if err := json.NewDecoder(rec.Body).Decode(&body); err != nil {
		t.Fatalf("decoding error body: %v", err)
	}
	return body["error"]
}

func TestRequireIdentity_ValidToken(t *testing.T) {
	validator := &stubValidator{
		identities: map[string]*model.Identity{
			"good-token": {ID: "user-1", Email: "jane@example.com"},
		},
	}
	handler := newGateTestServer(validator)

	rec := gateRequest(t, handler, "Bearer good-token")
	if rec.Code != http.StatusOK {
		t.Fatalf("status = %d, want %d (body %q)", rec.Code, http.StatusOK, rec.Body.String())
	}
	if rec.Body.String() != "user-1" {
		t.Errorf("downstream saw identity %q, want %q", rec.Body.String(), "user-1")
	}
}

func TestRequireIdentity_LowercaseBearerAccepted(t *testing.T) {
	validator := &stubValidator{
		identities: map[string]*model.Identity{
			"good-token": {ID: "user-1"},
		},
	}
	handler := newGateTestServer(validator)

	rec := gateRequest(t, handler, "bearer good-token")
	if rec.Code != http.StatusOK {
		t.Errorf("status = %d, want %d", rec.Code, http.StatusOK)
	}
}

func TestRequireIdentity_Failures(t *testing.T) {
	validator := &stubValidator{
		errs: map[string]error{
			"expired-token": apperror.TokenExpired(),
			"orphan-token":  apperror.NotFound("user"),
		},
	}
	handler := newGateTestServer(validator)

	tests := []struct {
		name          string
		authorization string
		wantKind      string
	}{
		{"no header", "", "missing_token"},
		{"not bearer", "Basic dXNlcjpwYXNz", "invalid_token"},
		{"bearer without token", "Bearer ", "invalid_token"},
		{"garbage token", "Bearer garbage", "invalid_token"},
		{"expired token", "Bearer expired-token", "token_expired"},
		{"deleted subject", "Bearer orphan-token", "user_not_found"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			rec := gateRequest(t, handler, tt.authorization)
			if rec.Code != http.StatusUnauthorized {
				t.Errorf("status = %d, want %d", rec.Code, http.StatusUnauthorized)
			}
			if kind := decodeGateError(t, rec); kind != tt.wantKind {
				t.Errorf("error kind = %q, want %q", kind, tt.wantKind)
			}
		})
	}
}

func TestRequireIdentity_UnexpectedValidatorFailure(t *testing.T) {
	validator := &stubValidator{
		errs: map[string]error{
			"any-token": context.DeadlineExceeded,
		},
	}
	handler := newGateTestServer(validator)

	rec := gateRequest(t, handler, "Bearer any-token")
	if rec.Code != http.StatusInternalServerError {
		t.Errorf("status = %d, want %d", rec.Code, http.StatusInternalServerError)
	}
	if kind := decodeGateError(t, rec); kind != "internal_error" {
		t.Errorf("error kind = %q, want %q", kind, "internal_error")
	}
}

func TestIdentityFromContext_Absent(t *testing.T) {
	if _, ok := IdentityFromContext(context.Background()); ok {
		t.Error("IdentityFromContext() on bare context = true, want false")
	}
}
