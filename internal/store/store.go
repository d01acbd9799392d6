// ABOUTME: Store data types and error values for the epic-crm system of record
// ABOUTME: Defines Principal, CRM records, and the narrow interfaces consumed by auth and policy

package store

import (
	"context"
	"errors"
	"time"
)

// ErrNotFound is returned when a requested CRM record does not exist
var ErrNotFound = errors.New("not found")

// ErrPrincipalNotFound is returned when a principal doesn't exist.
var ErrPrincipalNotFound = errors.New("principal not found")

// ErrEmailExists is returned when trying to create a principal with an email already in use.
var ErrEmailExists = errors.New("email already exists")

// ErrStaleCredential is returned by RotateRefreshCredential when the stored refresh hash
// no longer matches the one the caller verified against (another process rotated first).
var ErrStaleCredential = errors.New("refresh credential already rotated")

// Principal is a user identity with exactly one role.
type Principal struct {
	ID               int64
	Email            string
	FullName         string
	Role             RoleID
	PasswordHash     string     // bcrypt hash of the login secret
	RefreshHash      string     // bcrypt hash of the current refresh secret, empty if none
	RefreshExpiresAt *time.Time // absolute expiry of RefreshHash
	LastLoginAt      *time.Time
	CreatedAt        time.Time
}

// HasRefreshCredential reports whether a refresh hash is stored and not expired at now.
func (p *Principal) HasRefreshCredential(now time.Time) bool {
	if p.RefreshHash == "" || p.RefreshExpiresAt == nil {
		return false
	}
	return !now.After(*p.RefreshExpiresAt)
}

// Client is a customer owned by a commercial principal.
type Client struct {
	ID           int64
	FullName     string
	Email        string
	Phone        string
	Company      string
	CommercialID int64 // owning commercial principal
	CreatedAt    time.Time
	UpdatedAt    time.Time
}

// Contract is signed between a client and the company, handled by a commercial principal.
type Contract struct {
	ID           int64
	ClientID     int64
	CommercialID int64
	AmountCents  int64
	DueCents     int64
	Signed       bool
	CreatedAt    time.Time
}

// Event is organised for a signed contract and assigned to a support principal.
type Event struct {
	ID         int64
	ContractID int64
	SupportID  *int64 // nil until management assigns a support contact
	Name       string
	Location   string
	Attendees  int
	StartsAt   *time.Time
	EndsAt     *time.Time
	Notes      string
	CreatedAt  time.Time
}

// PrincipalStore is the system-of-record surface used by the authentication flow.
type PrincipalStore interface {
	GetPrincipal(ctx context.Context, id int64) (*Principal, error)
	GetPrincipalByEmail(ctx context.Context, email string) (*Principal, error)

	// SetRefreshCredential overwrites the refresh hash and expiry and stamps last login,
	// all in one transaction.
	SetRefreshCredential(ctx context.Context, id int64, hash string, expiresAt, authenticatedAt time.Time) error

	// RotateRefreshCredential replaces previousHash with hash in one transaction.
	// Returns ErrStaleCredential if the stored hash is no longer previousHash.
	RotateRefreshCredential(ctx context.Context, id int64, previousHash, hash string, expiresAt time.Time) error

	// ClearRefreshCredential removes any stored refresh hash for the principal.
	ClearRefreshCredential(ctx context.Context, id int64) error

	AppendAuditLog(ctx context.Context, e *AuditEntry) error
}

// RolePermissionStore serves per-role permission overrides.
type RolePermissionStore interface {
	// RolePermissions returns the permission strings stored for role.
	// An empty slice means no override is stored.
	RolePermissions(ctx context.Context, role RoleID) ([]string, error)
}

// AuditStore appends to and reads the audit log.
type AuditStore interface {
	AppendAuditLog(ctx context.Context, e *AuditEntry) error
	ListAuditLog(ctx context.Context, f AuditFilter) ([]AuditEntry, error)
}

// RecordStore defines CRM record persistence used by the CLI.
type RecordStore interface {
	CreateClient(ctx context.Context, c *Client) error
	GetClient(ctx context.Context, id int64) (*Client, error)
	UpdateClient(ctx context.Context, c *Client) error
	ListClients(ctx context.Context) ([]*Client, error)

	CreateContract(ctx context.Context, c *Contract) error
	GetContract(ctx context.Context, id int64) (*Contract, error)
	UpdateContract(ctx context.Context, c *Contract) error

	CreateEvent(ctx context.Context, e *Event) error
	GetEvent(ctx context.Context, id int64) (*Event, error)
	UpdateEvent(ctx context.Context, e *Event) error
}
