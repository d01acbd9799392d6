// ABOUTME: PermissionResolver implementations mapping a role to its permission set
// ABOUTME: Static table, database override, and a fallback composition of the two

package policy

import (
	"context"
	"errors"
	"fmt"
	"log/slog"

	"github.com/epicevents/crm/internal/store"
)

var (
	// ErrUnknownRole is returned for a role with no permission set.
	ErrUnknownRole = errors.New("unknown role")

	// ErrNoOverride is returned by StoreResolver when the database holds nothing for a role.
	ErrNoOverride = errors.New("no stored permissions for role")
)

// PermissionResolver returns the permission set for a role.
type PermissionResolver interface {
	Resolve(ctx context.Context, role store.RoleID) (Set, error)
}

// StaticResolver serves a fixed table.
type StaticResolver struct {
	table map[store.RoleID]Set
}

// NewStaticResolver parses table. Malformed permissions or unknown roles fail.
func NewStaticResolver(table map[store.RoleID][]string) (*StaticResolver, error) {
	if err := ValidateGrants(table); err != nil {
		return nil, err
	}
	parsed := make(map[store.RoleID]Set, len(table))
	for role, perms := range table {
		set, _ := ParseSet(perms)
		parsed[role] = set
	}
	return &StaticResolver{table: parsed}, nil
}

// DefaultResolver serves DefaultGrants.
func DefaultResolver() *StaticResolver {
	r, err := NewStaticResolver(DefaultGrants)
	if err != nil {
		panic(fmt.Sprintf("policy: built-in grants are invalid: %v", err))
	}
	return r
}

// Resolve returns the role's set or ErrUnknownRole.
func (r *StaticResolver) Resolve(ctx context.Context, role store.RoleID) (Set, error) {
	set, ok := r.table[role]
	if !ok {
		return nil, fmt.Errorf("%w: %d", ErrUnknownRole, int(role))
	}
	return set, nil
}

// StoreResolver reads per-role overrides from the system of record.
type StoreResolver struct {
	store store.RolePermissionStore
}

// NewStoreResolver returns a resolver backed by s.
func NewStoreResolver(s store.RolePermissionStore) *StoreResolver {
	return &StoreResolver{store: s}
}

// Resolve returns the stored set, ErrNoOverride when nothing is stored.
func (r *StoreResolver) Resolve(ctx context.Context, role store.RoleID) (Set, error) {
	perms, err := r.store.RolePermissions(ctx, role)
	if err != nil {
		return nil, fmt.Errorf("reading role permissions: %w", err)
	}
	if len(perms) == 0 {
		return nil, ErrNoOverride
	}
	set, err := ParseSet(perms)
	if err != nil {
		return nil, fmt.Errorf("stored permissions for %s: %w", role, err)
	}
	return set, nil
}

// FallbackResolver tries primary and uses fallback when primary has no answer or fails.
type FallbackResolver struct {
	primary  PermissionResolver
	fallback PermissionResolver
	logger   *slog.Logger
}

// NewFallbackResolver composes primary over fallback.
func NewFallbackResolver(primary, fallback PermissionResolver, logger *slog.Logger) *FallbackResolver {
	if logger == nil {
		logger = slog.Default()
	}
	return &FallbackResolver{
		primary:  primary,
		fallback: fallback,
		logger:   logger.With("component", "policy"),
	}
}

// Resolve returns primary's set, or fallback's when primary errors.
func (r *FallbackResolver) Resolve(ctx context.Context, role store.RoleID) (Set, error) {
	set, err := r.primary.Resolve(ctx, role)
	if err == nil {
		return set, nil
	}
	if errors.Is(err, ErrNoOverride) {
		r.logger.Debug("no stored permissions, using built-in table", "role", role)
	} else {
		r.logger.Warn("stored permissions unavailable, using built-in table", "role", role, "error", err)
	}
	return r.fallback.Resolve(ctx, role)
}
