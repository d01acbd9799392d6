// ABOUTME: Permission sets and the built-in role to permission table
// ABOUTME: An unscoped grant satisfies every scoped variant of the same action

package policy

import (
	"fmt"
	"sort"

	"github.com/epicevents/crm/internal/store"
)

// DefaultGrants is the built-in permission table. The role_permissions table, when
// populated for a role, replaces that role's entry.
var DefaultGrants = map[store.RoleID][]string{
	store.RoleManagement: {
		"user:create", "user:read", "user:update", "user:delete",
		"role:read",
		"client:read",
		"contract:create", "contract:read", "contract:update",
		"event:read", "event:update",
	},
	store.RoleCommercial: {
		"client:create", "client:read", "client:update:own",
		"contract:read", "contract:update:own",
		"event:create:own_client", "event:read",
	},
	store.RoleSupport: {
		"client:read",
		"contract:read",
		"event:read", "event:update:assigned",
	},
}

// Set is a role's effective permissions.
type Set map[Permission]struct{}

// NewSet returns a set holding perms.
func NewSet(perms ...Permission) Set {
	s := make(Set, len(perms))
	for _, p := range perms {
		s[p] = struct{}{}
	}
	return s
}

// ParseSet parses every string; any malformed entry fails the whole set.
func ParseSet(perms []string) (Set, error) {
	s := make(Set, len(perms))
	for _, raw := range perms {
		p, err := Parse(raw)
		if err != nil {
			return nil, err
		}
		s[p] = struct{}{}
	}
	return s, nil
}

// Has reports an exact grant.
func (s Set) Has(p Permission) bool {
	_, ok := s[p]
	return ok
}

// Allows reports whether p is granted, either exactly or through the unscoped grant.
func (s Set) Allows(p Permission) bool {
	if s.Has(p) {
		return true
	}
	return p.Scope != ScopeAny && s.Has(p.Unscoped())
}

// Strings returns the sorted permission strings.
func (s Set) Strings() []string {
	out := make([]string, 0, len(s))
	for p := range s {
		out = append(out, p.String())
	}
	sort.Strings(out)
	return out
}

// ValidateGrants checks that every role is known and every permission parses.
func ValidateGrants(table map[store.RoleID][]string) error {
	for role, perms := range table {
		if !role.Valid() {
			return fmt.Errorf("unknown role %d", int(role))
		}
		if _, err := ParseSet(perms); err != nil {
			return fmt.Errorf("role %s: %w", role, err)
		}
	}
	return nil
}
