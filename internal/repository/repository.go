// Package repository declares the storage interfaces consumed by the service
// layer. Concrete implementations live in subpackages (sqlite).
package repository

import (
	"context"

	"github.com/sakif/skywatch/internal/model"
)

// IdentityRepository is the credential store: persistence of identity
// records plus the registration side effect (default settings row).
//
// Lookup methods return apperror.ErrNotFound when no row matches.
// CreateLocal returns apperror.ErrAlreadyExists on a duplicate email; the
// conflict is detected from the database's uniqueness constraint, never by a
// check-then-insert, so two racing registrations resolve to exactly one
// winner.
type IdentityRepository interface {
	// CreateLocal inserts a password-based identity together with its
	// default settings row as one atomic unit — both succeed or both
	// roll back. The email must already be case-folded by the caller.
	CreateLocal(ctx context.Context, email, passwordHash string) (*model.Identity, error)

	GetByEmail(ctx context.Context, email string) (*model.Identity, error)
	GetByID(ctx context.Context, id string) (*model.Identity, error)

	UpdatePasswordHash(ctx context.Context, id, passwordHash string) error

	// UpsertFromProvider inserts an identity keyed by (provider,
	// provider user ID) or, on conflict, refreshes the existing row's
	// profile fields. It never overwrites password_hash.
	UpsertFromProvider(ctx context.Context, profile *model.ProviderProfile) (*model.Identity, error)
}
