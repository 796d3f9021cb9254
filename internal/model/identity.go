// Package model defines the data structures shared across the application.
package model

import "time"

// Identity providers. A locally registered account has ProviderLocal and a
// non-empty password hash; a Google account has ProviderGoogle, a provider
// user ID, and may have no password hash at all.
const (
	ProviderLocal  = "local"
	ProviderGoogle = "google"
)

// Identity is a user account as stored in the credential store.
//
// Email is globally unique under case-folding (enforced by a database
// constraint, not application checks). PasswordHash and ProviderID never
// leave the server: both are excluded from JSON.
type Identity struct {
	ID           string    `json:"id"`
	Email        string    `json:"email"`
	PasswordHash string    `json:"-"`
	FirstName    string    `json:"first_name,omitempty"`
	LastName     string    `json:"last_name,omitempty"`
	ImageURL     string    `json:"image_url,omitempty"`
	Provider     string    `json:"provider,omitempty"`
	ProviderID   string    `json:"-"`
	CreatedAt    time.Time `json:"created_at"`
	UpdatedAt    time.Time `json:"updated_at"`
}

// HasPassword reports whether local password login is possible for this
// identity. Provider-only accounts store an empty hash.
func (i *Identity) HasPassword() bool {
	return i.PasswordHash != ""
}

// ProviderProfile is the slice of an OAuth provider's userinfo response the
// auth core cares about. It is transient — fetched per request and used only
// to upsert an Identity, never persisted as-is.
type ProviderProfile struct {
	ProviderUserID string
	Email          string
	GivenName      string
	FamilyName     string
	Picture        string
}
