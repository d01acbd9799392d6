// ABOUTME: Role identifiers and per-role permission overrides
// ABOUTME: Roles are a closed set; role_permissions rows replace the built-in table for a role

package store

import (
	"context"
	"fmt"
	"sort"
	"strconv"
	"strings"
	"time"
)

// RoleID identifies one of the closed set of roles.
type RoleID int

const (
	RoleManagement RoleID = 1
	RoleCommercial RoleID = 2
	RoleSupport    RoleID = 3
)

// ValidRoles lists all valid roles in id order
var ValidRoles = []RoleID{
	RoleManagement,
	RoleCommercial,
	RoleSupport,
}

var roleNames = map[RoleID]string{
	RoleManagement: "management",
	RoleCommercial: "commercial",
	RoleSupport:    "support",
}

// Name returns the role's name, or "" for an unknown id.
func (r RoleID) Name() string {
	return roleNames[r]
}

// Valid reports whether r is a known role.
func (r RoleID) Valid() bool {
	_, ok := roleNames[r]
	return ok
}

func (r RoleID) String() string {
	if name := r.Name(); name != "" {
		return name
	}
	return "role(" + strconv.Itoa(int(r)) + ")"
}

// ParseRole accepts a role name or numeric id.
func ParseRole(s string) (RoleID, error) {
	s = strings.ToLower(strings.TrimSpace(s))
	if n, err := strconv.Atoi(s); err == nil {
		if r := RoleID(n); r.Valid() {
			return r, nil
		}
		return 0, fmt.Errorf("unknown role id %d", n)
	}
	for id, name := range roleNames {
		if name == s {
			return id, nil
		}
	}
	return 0, fmt.Errorf("unknown role %q", s)
}

// RolePermissions returns the permission override stored for a role, sorted.
// Returns an empty slice (not an error) if no override is stored.
func (s *SQLiteStore) RolePermissions(ctx context.Context, role RoleID) ([]string, error) {
	query := `
		SELECT permission FROM role_permissions
		WHERE role_id = ?
		ORDER BY permission
	`

	rows, err := s.db.QueryContext(ctx, query, int(role))
	if err != nil {
		return nil, fmt.Errorf("listing role permissions: %w", err)
	}
	defer rows.Close()

	perms := []string{}
	for rows.Next() {
		var p string
		if err := rows.Scan(&p); err != nil {
			return nil, fmt.Errorf("scanning role permission: %w", err)
		}
		perms = append(perms, p)
	}

	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterating role permissions: %w", err)
	}

	return perms, nil
}

// SetRolePermissions replaces the stored permission set for a role in one transaction.
// An empty perms slice removes the override so the built-in table applies again.
func (s *SQLiteStore) SetRolePermissions(ctx context.Context, role RoleID, perms []string) error {
	if !role.Valid() {
		return fmt.Errorf("unknown role %d", int(role))
	}

	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return fmt.Errorf("beginning transaction: %w", err)
	}
	defer func() { _ = tx.Rollback() }()

	if _, err := tx.ExecContext(ctx, `DELETE FROM role_permissions WHERE role_id = ?`, int(role)); err != nil {
		return fmt.Errorf("clearing role permissions: %w", err)
	}

	now := time.Now().UTC().Format(time.RFC3339)
	for _, p := range perms {
		_, err := tx.ExecContext(ctx,
			`INSERT OR IGNORE INTO role_permissions (role_id, permission, created_at) VALUES (?, ?, ?)`,
			int(role), p, now,
		)
		if err != nil {
			return fmt.Errorf("inserting role permission: %w", err)
		}
	}

	if err := tx.Commit(); err != nil {
		return fmt.Errorf("committing role permissions: %w", err)
	}

	s.logger.Debug("set role permissions", "role", role.Name(), "count", len(perms))
	return nil
}

// SeedRolePermissions stores grants for every role that has no stored permissions yet.
// Roles that already carry an override are left untouched.
func (s *SQLiteStore) SeedRolePermissions(ctx context.Context, grants map[RoleID][]string) error {
	roles := make([]RoleID, 0, len(grants))
	for r := range grants {
		roles = append(roles, r)
	}
	sort.Slice(roles, func(i, j int) bool { return roles[i] < roles[j] })

	for _, r := range roles {
		existing, err := s.RolePermissions(ctx, r)
		if err != nil {
			return err
		}
		if len(existing) > 0 {
			continue
		}
		if err := s.SetRolePermissions(ctx, r, grants[r]); err != nil {
			return fmt.Errorf("seeding %s: %w", r.Name(), err)
		}
		s.logger.Info("seeded role permissions", "role", r.Name(), "count", len(grants[r]))
	}
	return nil
}
