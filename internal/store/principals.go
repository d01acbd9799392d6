// ABOUTME: Principal (user) store methods including refresh credential bookkeeping
// ABOUTME: Refresh hash writes are single transactions so a crash never half-applies a rotation

package store

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"strings"
	"time"
)

const principalColumns = `id, email, full_name, role_id, password_hash, refresh_hash, refresh_expires_at, last_login_at, created_at`

// CreatePrincipal inserts a new principal and sets p.ID.
// Emails are stored lower-cased and must be unique.
func (s *SQLiteStore) CreatePrincipal(ctx context.Context, p *Principal) error {
	if !p.Role.Valid() {
		return fmt.Errorf("unknown role %d", int(p.Role))
	}
	if p.CreatedAt.IsZero() {
		p.CreatedAt = time.Now().UTC()
	}
	p.Email = normalizeEmail(p.Email)

	query := `
		INSERT INTO users (email, full_name, role_id, password_hash, created_at)
		VALUES (?, ?, ?, ?, ?)
	`

	res, err := s.db.ExecContext(ctx, query,
		p.Email,
		p.FullName,
		int(p.Role),
		p.PasswordHash,
		formatTime(p.CreatedAt),
	)
	if err != nil {
		if isConstraintViolation(err) {
			return ErrEmailExists
		}
		return fmt.Errorf("inserting principal: %w", err)
	}

	id, err := res.LastInsertId()
	if err != nil {
		return fmt.Errorf("reading principal id: %w", err)
	}
	p.ID = id

	s.logger.Info("created principal", "id", p.ID, "role", p.Role.Name())
	return nil
}

// GetPrincipal retrieves a principal by ID.
func (s *SQLiteStore) GetPrincipal(ctx context.Context, id int64) (*Principal, error) {
	query := `SELECT ` + principalColumns + ` FROM users WHERE id = ?`

	p, err := scanPrincipal(s.db.QueryRowContext(ctx, query, id))
	if errors.Is(err, sql.ErrNoRows) {
		return nil, ErrPrincipalNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("querying principal: %w", err)
	}
	return p, nil
}

// GetPrincipalByEmail retrieves a principal by email (case-insensitive).
func (s *SQLiteStore) GetPrincipalByEmail(ctx context.Context, email string) (*Principal, error) {
	query := `SELECT ` + principalColumns + ` FROM users WHERE email = ?`

	p, err := scanPrincipal(s.db.QueryRowContext(ctx, query, normalizeEmail(email)))
	if errors.Is(err, sql.ErrNoRows) {
		return nil, ErrPrincipalNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("querying principal by email: %w", err)
	}
	return p, nil
}

// ListPrincipals returns all principals ordered by ID.
func (s *SQLiteStore) ListPrincipals(ctx context.Context) ([]*Principal, error) {
	query := `SELECT ` + principalColumns + ` FROM users ORDER BY id`

	rows, err := s.db.QueryContext(ctx, query)
	if err != nil {
		return nil, fmt.Errorf("listing principals: %w", err)
	}
	defer rows.Close()

	principals := []*Principal{}
	for rows.Next() {
		p, err := scanPrincipal(rows)
		if err != nil {
			return nil, fmt.Errorf("scanning principal: %w", err)
		}
		principals = append(principals, p)
	}

	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterating principals: %w", err)
	}
	return principals, nil
}

// CountPrincipals returns the number of principals.
func (s *SQLiteStore) CountPrincipals(ctx context.Context) (int, error) {
	var count int
	if err := s.db.QueryRowContext(ctx, `SELECT COUNT(*) FROM users`).Scan(&count); err != nil {
		return 0, fmt.Errorf("counting principals: %w", err)
	}
	return count, nil
}

// UpdatePrincipalPassword replaces the login secret hash and drops any refresh credential,
// so sessions opened with the old password cannot be refreshed.
func (s *SQLiteStore) UpdatePrincipalPassword(ctx context.Context, id int64, passwordHash string) error {
	query := `
		UPDATE users
		SET password_hash = ?, refresh_hash = '', refresh_expires_at = NULL
		WHERE id = ?
	`

	res, err := s.db.ExecContext(ctx, query, passwordHash, id)
	if err != nil {
		return fmt.Errorf("updating password: %w", err)
	}
	if n, _ := res.RowsAffected(); n == 0 {
		return ErrPrincipalNotFound
	}

	s.logger.Info("updated principal password", "id", id)
	return nil
}

// SetRefreshCredential overwrites the principal's refresh hash and expiry and records
// the authentication time. The previous refresh hash, if any, is invalidated.
func (s *SQLiteStore) SetRefreshCredential(ctx context.Context, id int64, hash string, expiresAt, authenticatedAt time.Time) error {
	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return fmt.Errorf("beginning transaction: %w", err)
	}
	defer func() { _ = tx.Rollback() }()

	query := `
		UPDATE users
		SET refresh_hash = ?, refresh_expires_at = ?, last_login_at = ?
		WHERE id = ?
	`

	res, err := tx.ExecContext(ctx, query, hash, formatTime(expiresAt), formatTime(authenticatedAt), id)
	if err != nil {
		return fmt.Errorf("storing refresh credential: %w", err)
	}
	if n, err := res.RowsAffected(); err != nil {
		return fmt.Errorf("reading affected rows: %w", err)
	} else if n == 0 {
		return ErrPrincipalNotFound
	}

	if err := tx.Commit(); err != nil {
		return fmt.Errorf("committing refresh credential: %w", err)
	}

	s.logger.Debug("stored refresh credential", "id", id, "expires_at", expiresAt.UTC())
	return nil
}

// RotateRefreshCredential swaps previousHash for hash. The update only applies while the
// stored hash still equals previousHash; otherwise ErrStaleCredential is returned and
// nothing changes.
func (s *SQLiteStore) RotateRefreshCredential(ctx context.Context, id int64, previousHash, hash string, expiresAt time.Time) error {
	if previousHash == "" {
		return ErrStaleCredential
	}

	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return fmt.Errorf("beginning transaction: %w", err)
	}
	defer func() { _ = tx.Rollback() }()

	query := `
		UPDATE users
		SET refresh_hash = ?, refresh_expires_at = ?
		WHERE id = ? AND refresh_hash = ?
	`

	res, err := tx.ExecContext(ctx, query, hash, formatTime(expiresAt), id, previousHash)
	if err != nil {
		return fmt.Errorf("rotating refresh credential: %w", err)
	}
	n, err := res.RowsAffected()
	if err != nil {
		return fmt.Errorf("reading affected rows: %w", err)
	}
	if n == 0 {
		return ErrStaleCredential
	}

	if err := tx.Commit(); err != nil {
		return fmt.Errorf("committing refresh rotation: %w", err)
	}

	s.logger.Debug("rotated refresh credential", "id", id, "expires_at", expiresAt.UTC())
	return nil
}

// ClearRefreshCredential removes the principal's refresh hash.
func (s *SQLiteStore) ClearRefreshCredential(ctx context.Context, id int64) error {
	query := `UPDATE users SET refresh_hash = '', refresh_expires_at = NULL WHERE id = ?`

	res, err := s.db.ExecContext(ctx, query, id)
	if err != nil {
		return fmt.Errorf("clearing refresh credential: %w", err)
	}
	if n, _ := res.RowsAffected(); n == 0 {
		return ErrPrincipalNotFound
	}

	s.logger.Debug("cleared refresh credential", "id", id)
	return nil
}

// scanPrincipal scans a row into a Principal.
func scanPrincipal(scanner interface{ Scan(dest ...any) error }) (*Principal, error) {
	var p Principal
	var role int
	var refreshExpires, lastLogin sql.NullString
	var createdAtStr string

	if err := scanner.Scan(
		&p.ID,
		&p.Email,
		&p.FullName,
		&role,
		&p.PasswordHash,
		&p.RefreshHash,
		&refreshExpires,
		&lastLogin,
		&createdAtStr,
	); err != nil {
		return nil, err
	}

	p.Role = RoleID(role)

	var err error
	if p.RefreshExpiresAt, err = parseNullableTime(refreshExpires); err != nil {
		return nil, fmt.Errorf("parsing refresh_expires_at: %w", err)
	}
	if p.LastLoginAt, err = parseNullableTime(lastLogin); err != nil {
		return nil, fmt.Errorf("parsing last_login_at: %w", err)
	}
	if p.CreatedAt, err = time.Parse(time.RFC3339, createdAtStr); err != nil {
		return nil, fmt.Errorf("parsing created_at: %w", err)
	}

	return &p, nil
}

func normalizeEmail(email string) string {
	return strings.ToLower(strings.TrimSpace(email))
}
