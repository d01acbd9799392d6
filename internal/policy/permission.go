// ABOUTME: Permission strings of the form resource:action[:scope]
// ABOUTME: Parsing, canonical formatting and the human-readable rendering used in denials

package policy

import (
	"fmt"
	"strings"
)

// Resources known to the CRM.
const (
	ResourceUser     = "user"
	ResourceRole     = "role"
	ResourceClient   = "client"
	ResourceContract = "contract"
	ResourceEvent    = "event"
)

// Actions.
const (
	ActionCreate = "create"
	ActionRead   = "read"
	ActionUpdate = "update"
	ActionDelete = "delete"
)

// Scope narrows a grant to records related to the caller.
type Scope string

const (
	ScopeAny       Scope = ""
	ScopeOwn       Scope = "own"
	ScopeAssigned  Scope = "assigned"
	ScopeOwnClient Scope = "own_client"
)

// Permission is a parsed permission string.
type Permission struct {
	Resource string
	Action   string
	Scope    Scope
}

// Parse parses "resource:action" or "resource:action:scope".
func Parse(s string) (Permission, error) {
	parts := strings.Split(strings.TrimSpace(s), ":")
	if len(parts) < 2 || len(parts) > 3 {
		return Permission{}, fmt.Errorf("malformed permission %q", s)
	}
	for _, part := range parts {
		if !validToken(part) {
			return Permission{}, fmt.Errorf("malformed permission %q", s)
		}
	}

	p := Permission{Resource: parts[0], Action: parts[1]}
	if len(parts) == 3 {
		p.Scope = Scope(parts[2])
	}
	return p, nil
}

// MustParse is Parse for compile-time constants.
func MustParse(s string) Permission {
	p, err := Parse(s)
	if err != nil {
		panic(err)
	}
	return p
}

func validToken(s string) bool {
	if s == "" {
		return false
	}
	for _, r := range s {
		if (r < 'a' || r > 'z') && r != '_' && r != '-' {
			return false
		}
	}
	return true
}

// String returns the canonical permission string.
func (p Permission) String() string {
	if p.Scope == ScopeAny {
		return p.Resource + ":" + p.Action
	}
	return p.Resource + ":" + p.Action + ":" + string(p.Scope)
}

// Unscoped returns the permission without its scope.
func (p Permission) Unscoped() Permission {
	return Permission{Resource: p.Resource, Action: p.Action}
}

// WithScope returns the permission narrowed to scope.
func (p Permission) WithScope(scope Scope) Permission {
	return Permission{Resource: p.Resource, Action: p.Action, Scope: scope}
}

// Humanize renders p for people: "client:update:own" becomes "update own client".
func (p Permission) Humanize() string {
	resource := words(p.Resource)
	action := words(p.Action)

	switch p.Scope {
	case ScopeAny:
		return action + " " + resource
	case ScopeOwn, ScopeAssigned:
		return action + " " + string(p.Scope) + " " + resource
	case ScopeOwnClient:
		return action + " " + resource + " for own client"
	default:
		return action + " " + resource + " (" + words(string(p.Scope)) + ")"
	}
}

// Humanize renders a permission string for people. Strings that do not parse
// have their separators expanded to spaces.
func Humanize(s string) string {
	p, err := Parse(s)
	if err != nil {
		return strings.TrimSpace(words(strings.ReplaceAll(s, ":", " ")))
	}
	return p.Humanize()
}

func words(s string) string {
	return strings.NewReplacer("-", " ", "_", " ").Replace(s)
}
