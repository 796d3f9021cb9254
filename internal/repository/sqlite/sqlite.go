// Package sqlite implements the repository interfaces on SQLite.
//
// SQLite is embedded — a single file, no server process. The
// modernc.org/sqlite driver is pure Go, so the binary cross-compiles without
// cgo. Importing the driver registers it with database/sql under the name
// "sqlite".
package sqlite

import (
	"database/sql"
	"errors"
	"fmt"

	sqlite "modernc.org/sqlite"
	sqlitelib "modernc.org/sqlite/lib"
)

// DB wraps a sql.DB connection pool and implements
// repository.IdentityRepository.
type DB struct {
	conn *sql.DB
}

// New opens the database, applies connection pragmas, and ensures the
// schema exists.
func New(dbPath string) (*DB, error) {
	// Pragmas go in the DSN so the driver applies them to EVERY pooled
	// connection — a bare `PRAGMA` Exec only reaches one:
	//   - WAL allows concurrent reads while a write is in progress;
	//   - busy_timeout makes a second writer wait instead of failing with
	//     SQLITE_BUSY, so a registration race resolves at the UNIQUE
	//     constraint rather than as a spurious error;
	//   - foreign keys are off by default in SQLite; settings.user_id
	//     needs them on.
	dsn := fmt.Sprintf(
		"file:%s?_pragma=journal_mode(WAL)&_pragma=busy_timeout(5000)&_pragma=foreign_keys(1)",
		dbPath,
	)

	conn, err := sql.Open("sqlite", dsn)
	if err != nil {
		return nil, fmt.Errorf("sqlite: opening database: %w", err)
	}

	if err := conn.Ping(); err != nil {
		conn.Close()
		return nil, fmt.Errorf("sqlite: pinging database: %w", err)
	}

	db := &DB{conn: conn}

	if err := db.migrate(); err != nil {
		conn.Close()
		return nil, fmt.Errorf("sqlite: running migrations: %w", err)
	}

	return db, nil
}

// Close closes the connection pool, flushing the WAL.
func (db *DB) Close() error {
	return db.conn.Close()
}

// migrate creates the schema. CREATE TABLE IF NOT EXISTS keeps it idempotent.
//
// Invariants enforced here rather than in application code:
//   - email uniqueness under case-folding (UNIQUE + COLLATE NOCASE), so a
//     race between two registrations resolves inside the database;
//   - one provider account maps to at most one identity
//     (UNIQUE(provider, provider_id); provider_id is NULL for local
//     accounts, and NULLs are distinct in SQLite);
//   - one settings row per user.
func (db *DB) migrate() error {
	_, err := db.conn.Exec(`
		CREATE TABLE IF NOT EXISTS users (
			id            TEXT PRIMARY KEY,
			email         TEXT NOT NULL UNIQUE COLLATE NOCASE,
			password_hash TEXT NOT NULL DEFAULT '',
			first_name    TEXT NOT NULL DEFAULT '',
			last_name     TEXT NOT NULL DEFAULT '',
			image_url     TEXT NOT NULL DEFAULT '',
			provider      TEXT NOT NULL DEFAULT 'local',
			provider_id   TEXT,
			created_at    DATETIME NOT NULL DEFAULT CURRENT_TIMESTAMP,
			updated_at    DATETIME NOT NULL DEFAULT CURRENT_TIMESTAMP
		);
		CREATE UNIQUE INDEX IF NOT EXISTS idx_users_provider_account
			ON users(provider, provider_id);
	`)
	if err != nil {
		return fmt.Errorf("creating users table: %w", err)
	}

	// Default per-user settings, inserted in the same transaction as the
	// user row during registration. Defaults mirror the application's
	// documented ones: dark theme, notifications on, 10 km radius.
	_, err = db.conn.Exec(`
		CREATE TABLE IF NOT EXISTS settings (
			id                    TEXT PRIMARY KEY,
			user_id               TEXT NOT NULL UNIQUE REFERENCES users(id),
			theme                 TEXT NOT NULL DEFAULT 'dark',
			notifications_enabled INTEGER NOT NULL DEFAULT 1,
			radius                INTEGER NOT NULL DEFAULT 10,
			created_at            DATETIME NOT NULL DEFAULT CURRENT_TIMESTAMP,
			updated_at            DATETIME NOT NULL DEFAULT CURRENT_TIMESTAMP
		);
	`)
	if err != nil {
		return fmt.Errorf("creating settings table: %w", err)
	}

	return nil
}

// isUniqueViolation reports whether err is a SQLite uniqueness-constraint
// failure. Registration relies on this to translate the database-level
// email constraint into apperror.ErrAlreadyExists.
func isUniqueViolation(err error) bool {
	var se *sqlite.Error
	if !errors.As(err, &se) {
		return false
	}
	code := se.Code()
	return code == sqlitelib.SQLITE_CONSTRAINT_UNIQUE ||
		code == sqlitelib.SQLITE_CONSTRAINT_PRIMARYKEY
}
