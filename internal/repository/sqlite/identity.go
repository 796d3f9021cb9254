package sqlite

import (
	"context"
	"database/sql"
	"fmt"
	"time"

	"github.com/rs/xid"

	"github.com/sakif/skywatch/internal/apperror"
	"github.com/sakif/skywatch/internal/model"
	"github.com/sakif/skywatch/internal/repository"
)

// compile-time check that *DB implements repository.IdentityRepository
var _ repository.IdentityRepository = (*DB)(nil)

const identityColumns = `id, email, password_hash, first_name, last_name,
	image_url, provider, provider_id, created_at, updated_at`

// CreateLocal inserts a password-based identity and its default settings row
// inside one transaction. A duplicate email surfaces as
// apperror.ErrAlreadyExists, translated from the UNIQUE constraint — there
// is no SELECT-then-INSERT window for two registrations to race through.
func (db *DB) CreateLocal(ctx context.Context, email, passwordHash string) (*model.Identity, error) {
	tx, err := db.conn.BeginTx(ctx, nil)
	if err != nil {
		return nil, fmt.Errorf("sqlite: beginning registration tx: %w", apperror.Persistence(err))
	}
	// Rollback is a no-op after a successful Commit.
	defer tx.Rollback()

	now := time.Now().UTC()
	identity := &model.Identity{
		ID:           xid.New().String(),
		Email:        email,
		PasswordHash: passwordHash,
		Provider:     model.ProviderLocal,
		CreatedAt:    now,
		UpdatedAt:    now,
	}

	_, err = tx.ExecContext(ctx,
		`INSERT INTO users (id, email, password_hash, provider, created_at, updated_at)
		 VALUES (?, ?, ?, ?, ?, ?)`,
		identity.ID,
		identity.Email,
		identity.PasswordHash,
		identity.Provider,
		identity.CreatedAt,
		identity.UpdatedAt,
	)
	if err != nil {
		if isUniqueViolation(err) {
			return nil, fmt.Errorf("sqlite: inserting identity: %w", apperror.AlreadyExists("user"))
		}
		return nil, fmt.Errorf("sqlite: inserting identity: %w", apperror.Persistence(err))
	}

	// Default settings row; column defaults supply the actual values.
	_, err = tx.ExecContext(ctx,
		`INSERT INTO settings (id, user_id, created_at, updated_at) VALUES (?, ?, ?, ?)`,
		xid.New().String(),
		identity.ID,
		now,
		now,
	)
	if err != nil {
		return nil, fmt.Errorf("sqlite: inserting default settings: %w", apperror.Persistence(err))
	}

	if err := tx.Commit(); err != nil {
		return nil, fmt.Errorf("sqlite: committing registration: %w", apperror.Persistence(err))
	}

	return identity, nil
}

// GetByEmail retrieves an identity by email. The email column carries
// COLLATE NOCASE, so the match is case-insensitive regardless of how the
// caller folded the input.
func (db *DB) GetByEmail(ctx context.Context, email string) (*model.Identity, error) {
	row := db.conn.QueryRowContext(ctx,
		`SELECT `+identityColumns+` FROM users WHERE email = ?`, email)

	identity, err := scanIdentity(row)
	if err != nil {
		if err == sql.ErrNoRows {
			return nil, fmt.Errorf("sqlite: identity by email: %w", apperror.NotFound("user"))
		}
		return nil, fmt.Errorf("sqlite: identity by email: %w", apperror.Persistence(err))
	}

	return identity, nil
}

// GetByID retrieves an identity by its internal ID.
func (db *DB) GetByID(ctx context.Context, id string) (*model.Identity, error) {
	row := db.conn.QueryRowContext(ctx,
		`SELECT `+identityColumns+` FROM users WHERE id = ?`, id)

	identity, err := scanIdentity(row)
	if err != nil {
		if err == sql.ErrNoRows {
			return nil, fmt.Errorf("sqlite: identity %s: %w", id, apperror.NotFound("user"))
		}
		return nil, fmt.Errorf("sqlite: identity %s: %w", id, apperror.Persistence(err))
	}

	return identity, nil
}

// UpdatePasswordHash replaces the stored hash for an identity.
func (db *DB) UpdatePasswordHash(ctx context.Context, id, passwordHash string) error {
	res, err := db.conn.ExecContext(ctx,
		`UPDATE users SET password_hash = ?, updated_at = ? WHERE id = ?`,
		passwordHash,
		time.Now().UTC(),
		id,
	)
	if err != nil {
		return fmt.Errorf("sqlite: updating password hash for %s: %w", id, apperror.Persistence(err))
	}

	affected, err := res.RowsAffected()
	if err != nil {
		return fmt.Errorf("sqlite: updating password hash for %s: %w", id, apperror.Persistence(err))
	}
	if affected == 0 {
		return fmt.Errorf("sqlite: updating password hash: %w", apperror.NotFound("user"))
	}

	return nil
}

// UpsertFromProvider inserts or refreshes the identity for a provider
// account in a single statement. ON CONFLICT keeps the operation atomic
// under concurrent callbacks for the same account, and the DO UPDATE list
// deliberately excludes password_hash — a provider login can never clobber
// a local password. RETURNING hands back the canonical row (existing ID and
// created_at on the update path).
func (db *DB) UpsertFromProvider(ctx context.Context, profile *model.ProviderProfile) (*model.Identity, error) {
	if profile == nil || profile.ProviderUserID == "" {
		return nil, fmt.Errorf("sqlite: provider upsert: %w",
			apperror.ValidationFailed("provider profile must carry an account id"))
	}

	now := time.Now().UTC()
	row := db.conn.QueryRowContext(ctx,
		`INSERT INTO users
			(id, email, password_hash, first_name, last_name, image_url,
			 provider, provider_id, created_at, updated_at)
		 VALUES (?, ?, '', ?, ?, ?, ?, ?, ?, ?)
		 ON CONFLICT(provider, provider_id) DO UPDATE SET
			email      = excluded.email,
			first_name = excluded.first_name,
			last_name  = excluded.last_name,
			image_url  = excluded.image_url,
			updated_at = excluded.updated_at
		 RETURNING `+identityColumns,
		xid.New().String(),
		profile.Email,
		profile.GivenName,
		profile.FamilyName,
		profile.Picture,
		model.ProviderGoogle,
		profile.ProviderUserID,
		now,
		now,
	)

	identity, err := scanIdentity(row)
	if err != nil {
		// Includes the case where the profile's email collides with an
		// existing local account: the email constraint wins and the
		// upsert fails rather than silently linking accounts.
		return nil, fmt.Errorf("sqlite: provider upsert: %w", apperror.Persistence(err))
	}

	return identity, nil
}

// scanIdentity reads one identity row. provider_id is the only nullable
// column; NULL scans to the empty string on the model.
func scanIdentity(row *sql.Row) (*model.Identity, error) {
	var (
		identity   model.Identity
		providerID sql.NullString
	)

	err := row.Scan(
		&identity.ID,
		&identity.Email,
		&identity.PasswordHash,
		&identity.FirstName,
		&identity.LastName,
		&identity.ImageURL,
		&identity.Provider,
		&providerID,
		&identity.CreatedAt,
		&identity.UpdatedAt,
	)
	if err != nil {
		return nil, err
	}

	identity.ProviderID = providerID.String

	return &identity, nil
}
