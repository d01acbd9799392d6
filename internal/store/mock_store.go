// ABOUTME: Mock Store implementation for testing
// ABOUTME: Allows auth and policy tests to run without SQLite

package store

import (
	"context"
	"fmt"
	"sort"
	"sync"
	"time"
)

// MockStore is an in-memory store implementation for testing.
// It mirrors SQLiteStore semantics for principals, refresh credentials,
// role permission overrides, CRM records and the audit log.
type MockStore struct {
	mu         sync.RWMutex
	principals map[int64]*Principal
	rolePerms  map[RoleID][]string
	clients    map[int64]*Client
	contracts  map[int64]*Contract
	events     map[int64]*Event
	audit      []AuditEntry
	nextID     int64

	// RolePermissionsErr, when set, is returned by RolePermissions.
	RolePermissionsErr error
}

// Ensure MockStore implements the store interfaces.
var (
	_ PrincipalStore      = (*MockStore)(nil)
	_ RolePermissionStore = (*MockStore)(nil)
	_ AuditStore          = (*MockStore)(nil)
	_ RecordStore         = (*MockStore)(nil)
)

// NewMockStore creates a new MockStore.
func NewMockStore() *MockStore {
	return &MockStore{
		principals: make(map[int64]*Principal),
		rolePerms:  make(map[RoleID][]string),
		clients:    make(map[int64]*Client),
		contracts:  make(map[int64]*Contract),
		events:     make(map[int64]*Event),
	}
}

func (m *MockStore) allocID() int64 {
	m.nextID++
	return m.nextID
}

// AddPrincipal stores a principal. A zero ID is assigned; a non-zero ID is kept.
func (m *MockStore) AddPrincipal(p *Principal) {
	m.mu.Lock()
	defer m.mu.Unlock()

	if p.ID == 0 {
		p.ID = m.allocID()
	} else if p.ID > m.nextID {
		m.nextID = p.ID
	}
	p.Email = normalizeEmail(p.Email)
	cp := *p
	m.principals[cp.ID] = &cp
}

// GetPrincipal retrieves a principal by ID.
func (m *MockStore) GetPrincipal(ctx context.Context, id int64) (*Principal, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()

	p, ok := m.principals[id]
	if !ok {
		return nil, ErrPrincipalNotFound
	}
	result := *p
	return &result, nil
}

// GetPrincipalByEmail retrieves a principal by email (case-insensitive).
func (m *MockStore) GetPrincipalByEmail(ctx context.Context, email string) (*Principal, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()

	email = normalizeEmail(email)
	for _, p := range m.principals {
		if p.Email == email {
			result := *p
			return &result, nil
		}
	}
	return nil, ErrPrincipalNotFound
}

// SetRefreshCredential overwrites the refresh hash and stamps last login.
func (m *MockStore) SetRefreshCredential(ctx context.Context, id int64, hash string, expiresAt, authenticatedAt time.Time) error {
	m.mu.Lock()
	defer m.mu.Unlock()

	p, ok := m.principals[id]
	if !ok {
		return ErrPrincipalNotFound
	}
	exp := expiresAt.UTC()
	at := authenticatedAt.UTC()
	p.RefreshHash = hash
	p.RefreshExpiresAt = &exp
	p.LastLoginAt = &at
	return nil
}

// RotateRefreshCredential swaps previousHash for hash if it is still current.
func (m *MockStore) RotateRefreshCredential(ctx context.Context, id int64, previousHash, hash string, expiresAt time.Time) error {
	m.mu.Lock()
	defer m.mu.Unlock()

	p, ok := m.principals[id]
	if !ok || previousHash == "" || p.RefreshHash != previousHash {
		return ErrStaleCredential
	}
	exp := expiresAt.UTC()
	p.RefreshHash = hash
	p.RefreshExpiresAt = &exp
	return nil
}

// ClearRefreshCredential removes the refresh hash.
func (m *MockStore) ClearRefreshCredential(ctx context.Context, id int64) error {
	m.mu.Lock()
	defer m.mu.Unlock()

	p, ok := m.principals[id]
	if !ok {
		return ErrPrincipalNotFound
	}
	p.RefreshHash = ""
	p.RefreshExpiresAt = nil
	return nil
}

// AppendAuditLog records an audit entry in memory.
func (m *MockStore) AppendAuditLog(ctx context.Context, e *AuditEntry) error {
	m.mu.Lock()
	defer m.mu.Unlock()

	prepareAuditEntry(e)
	m.audit = append(m.audit, *e)
	return nil
}

// AuditEntries returns a copy of the recorded audit entries in insertion order.
func (m *MockStore) AuditEntries() []AuditEntry {
	m.mu.RLock()
	defer m.mu.RUnlock()

	out := make([]AuditEntry, len(m.audit))
	copy(out, m.audit)
	return out
}

// ListAuditLog returns entries matching f, newest first.
func (m *MockStore) ListAuditLog(ctx context.Context, f AuditFilter) ([]AuditEntry, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()

	out := []AuditEntry{}
	for i := len(m.audit) - 1; i >= 0; i-- {
		if f.Matches(&m.audit[i]) {
			out = append(out, m.audit[i])
		}
	}
	sort.SliceStable(out, func(i, j int) bool { return out[i].Timestamp.After(out[j].Timestamp) })
	if limit := normalizeAuditLimit(f.Limit); len(out) > limit {
		out = out[:limit]
	}
	return out, nil
}

// SetRolePermissions stores an override for role. An empty slice removes it.
func (m *MockStore) SetRolePermissions(ctx context.Context, role RoleID, perms []string) error {
	m.mu.Lock()
	defer m.mu.Unlock()

	if len(perms) == 0 {
		delete(m.rolePerms, role)
		return nil
	}
	cp := append([]string(nil), perms...)
	sort.Strings(cp)
	m.rolePerms[role] = cp
	return nil
}

// RolePermissions returns the stored override for role.
func (m *MockStore) RolePermissions(ctx context.Context, role RoleID) ([]string, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()

	if m.RolePermissionsErr != nil {
		return nil, m.RolePermissionsErr
	}
	return append([]string{}, m.rolePerms[role]...), nil
}

// CreateClient stores a new client and sets c.ID.
func (m *MockStore) CreateClient(ctx context.Context, c *Client) error {
	m.mu.Lock()
	defer m.mu.Unlock()

	if c.CreatedAt.IsZero() {
		c.CreatedAt = time.Now().UTC()
	}
	c.UpdatedAt = c.CreatedAt
	c.Email = normalizeEmail(c.Email)
	c.ID = m.allocID()
	cp := *c
	m.clients[cp.ID] = &cp
	return nil
}

// GetClient retrieves a client by ID.
func (m *MockStore) GetClient(ctx context.Context, id int64) (*Client, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()

	c, ok := m.clients[id]
	if !ok {
		return nil, ErrNotFound
	}
	result := *c
	return &result, nil
}

// UpdateClient replaces an existing client.
func (m *MockStore) UpdateClient(ctx context.Context, c *Client) error {
	m.mu.Lock()
	defer m.mu.Unlock()

	if _, ok := m.clients[c.ID]; !ok {
		return ErrNotFound
	}
	c.Email = normalizeEmail(c.Email)
	c.UpdatedAt = time.Now().UTC()
	cp := *c
	m.clients[cp.ID] = &cp
	return nil
}

// ListClients returns all clients ordered by ID.
func (m *MockStore) ListClients(ctx context.Context) ([]*Client, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()

	clients := make([]*Client, 0, len(m.clients))
	for _, c := range m.clients {
		cp := *c
		clients = append(clients, &cp)
	}
	sort.Slice(clients, func(i, j int) bool { return clients[i].ID < clients[j].ID })
	return clients, nil
}

// CreateContract stores a new contract and sets c.ID.
func (m *MockStore) CreateContract(ctx context.Context, c *Contract) error {
	m.mu.Lock()
	defer m.mu.Unlock()

	if _, ok := m.clients[c.ClientID]; !ok {
		return fmt.Errorf("inserting contract: unknown client %d", c.ClientID)
	}
	if c.CreatedAt.IsZero() {
		c.CreatedAt = time.Now().UTC()
	}
	c.ID = m.allocID()
	cp := *c
	m.contracts[cp.ID] = &cp
	return nil
}

// GetContract retrieves a contract by ID.
func (m *MockStore) GetContract(ctx context.Context, id int64) (*Contract, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()

	c, ok := m.contracts[id]
	if !ok {
		return nil, ErrNotFound
	}
	result := *c
	return &result, nil
}

// UpdateContract replaces an existing contract.
func (m *MockStore) UpdateContract(ctx context.Context, c *Contract) error {
	m.mu.Lock()
	defer m.mu.Unlock()

	if _, ok := m.contracts[c.ID]; !ok {
		return ErrNotFound
	}
	cp := *c
	m.contracts[cp.ID] = &cp
	return nil
}

// CreateEvent stores a new event and sets e.ID.
func (m *MockStore) CreateEvent(ctx context.Context, e *Event) error {
	m.mu.Lock()
	defer m.mu.Unlock()

	if _, ok := m.contracts[e.ContractID]; !ok {
		return fmt.Errorf("inserting event: unknown contract %d", e.ContractID)
	}
	if e.CreatedAt.IsZero() {
		e.CreatedAt = time.Now().UTC()
	}
	e.ID = m.allocID()
	cp := *e
	m.events[cp.ID] = &cp
	return nil
}

// GetEvent retrieves an event by ID.
func (m *MockStore) GetEvent(ctx context.Context, id int64) (*Event, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()

	e, ok := m.events[id]
	if !ok {
		return nil, ErrNotFound
	}
	result := *e
	return &result, nil
}

// UpdateEvent replaces an existing event.
func (m *MockStore) UpdateEvent(ctx context.Context, e *Event) error {
	m.mu.Lock()
	defer m.mu.Unlock()

	if _, ok := m.events[e.ID]; !ok {
		return ErrNotFound
	}
	cp := *e
	m.events[cp.ID] = &cp
	return nil
}
