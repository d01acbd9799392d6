// ABOUTME: SQLite implementation of the system of record using modernc.org/sqlite
// ABOUTME: Provides principals, roles, CRM records and audit persistence with automatic schema creation

package store

import (
	"database/sql"
	"fmt"
	"log/slog"
	"os"
	"path/filepath"
	"slices"
	"strings"
	"time"

	_ "modernc.org/sqlite"
)

const (
	// DefaultDriver is the pure-Go SQLite driver registered by modernc.org/sqlite.
	DefaultDriver = "sqlite"
	// CgoDriver is registered by github.com/mattn/go-sqlite3 in cgo builds only.
	CgoDriver = "sqlite3"
)

// SQLiteStore implements PrincipalStore, RolePermissionStore and RecordStore using SQLite
type SQLiteStore struct {
	db     *sql.DB
	logger *slog.Logger
}

// Ensure SQLiteStore implements the store interfaces.
var (
	_ PrincipalStore      = (*SQLiteStore)(nil)
	_ RolePermissionStore = (*SQLiteStore)(nil)
	_ AuditStore          = (*SQLiteStore)(nil)
	_ RecordStore         = (*SQLiteStore)(nil)
)

// NewSQLiteStore creates a new SQLite store at the given path using the default driver.
// The schema is automatically created if it doesn't exist.
// Parent directories are created if needed.
func NewSQLiteStore(path string) (*SQLiteStore, error) {
	return NewSQLiteStoreWithDriver(DefaultDriver, path)
}

// NewSQLiteStoreWithDriver opens the store with a specific registered database/sql driver
// ("sqlite" for modernc.org/sqlite, "sqlite3" for the cgo mattn driver when linked in).
func NewSQLiteStoreWithDriver(driver, path string) (*SQLiteStore, error) {
	logger := slog.Default().With("component", "store")

	if driver == "" {
		driver = DefaultDriver
	}
	if !slices.Contains(sql.Drivers(), driver) {
		if driver == CgoDriver {
			return nil, fmt.Errorf("database driver %q is not linked into this build (it needs cgo)", driver)
		}
		return nil, fmt.Errorf("unknown database driver %q", driver)
	}

	// Ensure parent directory exists
	dir := filepath.Dir(path)
	if err := os.MkdirAll(dir, 0755); err != nil {
		return nil, fmt.Errorf("creating database directory: %w", err)
	}

	db, err := sql.Open(driver, path)
	if err != nil {
		return nil, fmt.Errorf("opening database: %w", err)
	}

	// The pragmas below are per connection, so keep exactly one.
	db.SetMaxOpenConns(1)

	// Enable WAL mode for better concurrent performance
	if _, err := db.Exec("PRAGMA journal_mode=WAL"); err != nil {
		db.Close()
		return nil, fmt.Errorf("enabling WAL mode: %w", err)
	}

	// Enable foreign keys
	if _, err := db.Exec("PRAGMA foreign_keys=ON"); err != nil {
		db.Close()
		return nil, fmt.Errorf("enabling foreign keys: %w", err)
	}

	// Two CLI processes may race a refresh; wait for the writer instead of failing fast.
	if _, err := db.Exec("PRAGMA busy_timeout=5000"); err != nil {
		db.Close()
		return nil, fmt.Errorf("setting busy timeout: %w", err)
	}

	s := newSQLiteStoreFromDB(db, logger)

	if err := s.createSchema(); err != nil {
		db.Close()
		return nil, fmt.Errorf("creating schema: %w", err)
	}

	logger.Debug("SQLite store initialized", "path", path, "driver", driver)
	return s, nil
}

func newSQLiteStoreFromDB(db *sql.DB, logger *slog.Logger) *SQLiteStore {
	return &SQLiteStore{
		db:     db,
		logger: logger,
	}
}

// createSchema creates the database tables if they don't exist
func (s *SQLiteStore) createSchema() error {
	schema := `
		CREATE TABLE IF NOT EXISTS roles (
			id   INTEGER PRIMARY KEY,
			name TEXT UNIQUE NOT NULL
		);

		INSERT OR IGNORE INTO roles (id, name) VALUES
			(1, 'management'),
			(2, 'commercial'),
			(3, 'support');

		CREATE TABLE IF NOT EXISTS role_permissions (
			role_id    INTEGER NOT NULL REFERENCES roles(id),
			permission TEXT NOT NULL,
			created_at TEXT NOT NULL,

			PRIMARY KEY (role_id, permission)
		);

		CREATE TABLE IF NOT EXISTS users (
			id                 INTEGER PRIMARY KEY AUTOINCREMENT,
			email              TEXT UNIQUE NOT NULL,
			full_name          TEXT NOT NULL,
			role_id            INTEGER NOT NULL REFERENCES roles(id),
			password_hash      TEXT NOT NULL,
			refresh_hash       TEXT NOT NULL DEFAULT '',
			refresh_expires_at TEXT,
			last_login_at      TEXT,
			created_at         TEXT NOT NULL
		);

		CREATE INDEX IF NOT EXISTS idx_users_email ON users(email);
		CREATE INDEX IF NOT EXISTS idx_users_role ON users(role_id);

		CREATE TABLE IF NOT EXISTS clients (
			id            INTEGER PRIMARY KEY AUTOINCREMENT,
			full_name     TEXT NOT NULL,
			email         TEXT NOT NULL,
			phone         TEXT NOT NULL DEFAULT '',
			company       TEXT NOT NULL DEFAULT '',
			commercial_id INTEGER NOT NULL REFERENCES users(id),
			created_at    TEXT NOT NULL,
			updated_at    TEXT NOT NULL
		);

		CREATE INDEX IF NOT EXISTS idx_clients_commercial ON clients(commercial_id);

		CREATE TABLE IF NOT EXISTS contracts (
			id            INTEGER PRIMARY KEY AUTOINCREMENT,
			client_id     INTEGER NOT NULL REFERENCES clients(id),
			commercial_id INTEGER NOT NULL REFERENCES users(id),
			amount_cents  INTEGER NOT NULL,
			due_cents     INTEGER NOT NULL,
			signed        INTEGER NOT NULL DEFAULT 0,
			created_at    TEXT NOT NULL
		);

		CREATE INDEX IF NOT EXISTS idx_contracts_client ON contracts(client_id);

		CREATE TABLE IF NOT EXISTS events (
			id          INTEGER PRIMARY KEY AUTOINCREMENT,
			contract_id INTEGER NOT NULL REFERENCES contracts(id),
			support_id  INTEGER REFERENCES users(id),
			name        TEXT NOT NULL,
			location    TEXT NOT NULL DEFAULT '',
			attendees   INTEGER NOT NULL DEFAULT 0,
			starts_at   TEXT,
			ends_at     TEXT,
			notes       TEXT NOT NULL DEFAULT '',
			created_at  TEXT NOT NULL
		);

		CREATE INDEX IF NOT EXISTS idx_events_contract ON events(contract_id);
		CREATE INDEX IF NOT EXISTS idx_events_support ON events(support_id);

		CREATE TABLE IF NOT EXISTS audit_log (
			seq                INTEGER PRIMARY KEY AUTOINCREMENT,
			audit_id           TEXT UNIQUE NOT NULL,
			actor_principal_id INTEGER NOT NULL,
			action             TEXT NOT NULL,
			target_type        TEXT NOT NULL,
			target_id          INTEGER NOT NULL DEFAULT 0,
			ts_ms              INTEGER NOT NULL,
			detail_json        TEXT
		);

		CREATE INDEX IF NOT EXISTS idx_audit_ts ON audit_log(ts_ms DESC, seq DESC);
		CREATE INDEX IF NOT EXISTS idx_audit_actor ON audit_log(actor_principal_id);
		CREATE INDEX IF NOT EXISTS idx_audit_target ON audit_log(target_type, target_id);
	`

	_, err := s.db.Exec(schema)
	return err
}

// Close closes the database connection
func (s *SQLiteStore) Close() error {
	s.logger.Debug("closing SQLite store")
	return s.db.Close()
}

// isConstraintViolation checks if the error is a SQLite UNIQUE constraint violation
func isConstraintViolation(err error) bool {
	if err == nil {
		return false
	}
	errStr := err.Error()
	return strings.Contains(errStr, "UNIQUE constraint failed") ||
		strings.Contains(errStr, "constraint failed")
}

func formatTime(t time.Time) string {
	return t.UTC().Format(time.RFC3339)
}

// formatNullableTime returns nil for a nil time so the column stays NULL.
func formatNullableTime(t *time.Time) *string {
	if t == nil {
		return nil
	}
	s := formatTime(*t)
	return &s
}

func parseNullableTime(ns sql.NullString) (*time.Time, error) {
	if !ns.Valid || ns.String == "" {
		return nil, nil
	}
	t, err := time.Parse(time.RFC3339, ns.String)
	if err != nil {
		return nil, err
	}
	return &t, nil
}
