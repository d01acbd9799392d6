// ABOUTME: CRM record store methods for clients, contracts and events
// ABOUTME: Only the ownership and assignment columns matter to authorization; other fields are opaque

package store

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"time"
)

// CreateClient inserts a new client and sets c.ID.
func (s *SQLiteStore) CreateClient(ctx context.Context, c *Client) error {
	now := time.Now().UTC()
	if c.CreatedAt.IsZero() {
		c.CreatedAt = now
	}
	c.UpdatedAt = c.CreatedAt

	query := `
		INSERT INTO clients (full_name, email, phone, company, commercial_id, created_at, updated_at)
		VALUES (?, ?, ?, ?, ?, ?, ?)
	`

	res, err := s.db.ExecContext(ctx, query,
		c.FullName,
		normalizeEmail(c.Email),
		c.Phone,
		c.Company,
		c.CommercialID,
		formatTime(c.CreatedAt),
		formatTime(c.UpdatedAt),
	)
	if err != nil {
		return fmt.Errorf("inserting client: %w", err)
	}

	if c.ID, err = res.LastInsertId(); err != nil {
		return fmt.Errorf("reading client id: %w", err)
	}

	s.logger.Debug("created client", "id", c.ID, "commercial_id", c.CommercialID)
	return nil
}

// GetClient retrieves a client by ID.
// Returns ErrNotFound if the client doesn't exist.
func (s *SQLiteStore) GetClient(ctx context.Context, id int64) (*Client, error) {
	query := `
		SELECT id, full_name, email, phone, company, commercial_id, created_at, updated_at
		FROM clients
		WHERE id = ?
	`

	c, err := scanClient(s.db.QueryRowContext(ctx, query, id))
	if errors.Is(err, sql.ErrNoRows) {
		return nil, ErrNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("querying client: %w", err)
	}
	return c, nil
}

// UpdateClient updates a client's mutable fields, including its owning commercial.
func (s *SQLiteStore) UpdateClient(ctx context.Context, c *Client) error {
	c.UpdatedAt = time.Now().UTC()

	query := `
		UPDATE clients
		SET full_name = ?, email = ?, phone = ?, company = ?, commercial_id = ?, updated_at = ?
		WHERE id = ?
	`

	res, err := s.db.ExecContext(ctx, query,
		c.FullName,
		normalizeEmail(c.Email),
		c.Phone,
		c.Company,
		c.CommercialID,
		formatTime(c.UpdatedAt),
		c.ID,
	)
	if err != nil {
		return fmt.Errorf("updating client: %w", err)
	}
	if n, _ := res.RowsAffected(); n == 0 {
		return ErrNotFound
	}
	return nil
}

// ListClients returns all clients ordered by ID.
func (s *SQLiteStore) ListClients(ctx context.Context) ([]*Client, error) {
	query := `
		SELECT id, full_name, email, phone, company, commercial_id, created_at, updated_at
		FROM clients
		ORDER BY id
	`

	rows, err := s.db.QueryContext(ctx, query)
	if err != nil {
		return nil, fmt.Errorf("listing clients: %w", err)
	}
	defer rows.Close()

	clients := []*Client{}
	for rows.Next() {
		c, err := scanClient(rows)
		if err != nil {
			return nil, fmt.Errorf("scanning client: %w", err)
		}
		clients = append(clients, c)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterating clients: %w", err)
	}
	return clients, nil
}

func scanClient(scanner interface{ Scan(dest ...any) error }) (*Client, error) {
	var c Client
	var createdAtStr, updatedAtStr string

	if err := scanner.Scan(
		&c.ID,
		&c.FullName,
		&c.Email,
		&c.Phone,
		&c.Company,
		&c.CommercialID,
		&createdAtStr,
		&updatedAtStr,
	); err != nil {
		return nil, err
	}

	var err error
	if c.CreatedAt, err = time.Parse(time.RFC3339, createdAtStr); err != nil {
		return nil, fmt.Errorf("parsing created_at: %w", err)
	}
	if c.UpdatedAt, err = time.Parse(time.RFC3339, updatedAtStr); err != nil {
		return nil, fmt.Errorf("parsing updated_at: %w", err)
	}
	return &c, nil
}

// CreateContract inserts a new contract and sets c.ID.
func (s *SQLiteStore) CreateContract(ctx context.Context, c *Contract) error {
	if c.CreatedAt.IsZero() {
		c.CreatedAt = time.Now().UTC()
	}

	query := `
		INSERT INTO contracts (client_id, commercial_id, amount_cents, due_cents, signed, created_at)
		VALUES (?, ?, ?, ?, ?, ?)
	`

	res, err := s.db.ExecContext(ctx, query,
		c.ClientID,
		c.CommercialID,
		c.AmountCents,
		c.DueCents,
		c.Signed,
		formatTime(c.CreatedAt),
	)
	if err != nil {
		return fmt.Errorf("inserting contract: %w", err)
	}

	if c.ID, err = res.LastInsertId(); err != nil {
		return fmt.Errorf("reading contract id: %w", err)
	}

	s.logger.Debug("created contract", "id", c.ID, "client_id", c.ClientID)
	return nil
}

// GetContract retrieves a contract by ID.
// Returns ErrNotFound if the contract doesn't exist.
func (s *SQLiteStore) GetContract(ctx context.Context, id int64) (*Contract, error) {
	query := `
		SELECT id, client_id, commercial_id, amount_cents, due_cents, signed, created_at
		FROM contracts
		WHERE id = ?
	`

	var c Contract
	var createdAtStr string
	err := s.db.QueryRowContext(ctx, query, id).Scan(
		&c.ID,
		&c.ClientID,
		&c.CommercialID,
		&c.AmountCents,
		&c.DueCents,
		&c.Signed,
		&createdAtStr,
	)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, ErrNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("querying contract: %w", err)
	}

	if c.CreatedAt, err = time.Parse(time.RFC3339, createdAtStr); err != nil {
		return nil, fmt.Errorf("parsing created_at: %w", err)
	}
	return &c, nil
}

// UpdateContract updates amounts and signature status.
func (s *SQLiteStore) UpdateContract(ctx context.Context, c *Contract) error {
	query := `
		UPDATE contracts
		SET amount_cents = ?, due_cents = ?, signed = ?, commercial_id = ?
		WHERE id = ?
	`

	res, err := s.db.ExecContext(ctx, query, c.AmountCents, c.DueCents, c.Signed, c.CommercialID, c.ID)
	if err != nil {
		return fmt.Errorf("updating contract: %w", err)
	}
	if n, _ := res.RowsAffected(); n == 0 {
		return ErrNotFound
	}
	return nil
}

// CreateEvent inserts a new event and sets e.ID.
func (s *SQLiteStore) CreateEvent(ctx context.Context, e *Event) error {
	if e.CreatedAt.IsZero() {
		e.CreatedAt = time.Now().UTC()
	}

	query := `
		INSERT INTO events (contract_id, support_id, name, location, attendees, starts_at, ends_at, notes, created_at)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?)
	`

	res, err := s.db.ExecContext(ctx, query,
		e.ContractID,
		e.SupportID,
		e.Name,
		e.Location,
		e.Attendees,
		formatNullableTime(e.StartsAt),
		formatNullableTime(e.EndsAt),
		e.Notes,
		formatTime(e.CreatedAt),
	)
	if err != nil {
		return fmt.Errorf("inserting event: %w", err)
	}

	if e.ID, err = res.LastInsertId(); err != nil {
		return fmt.Errorf("reading event id: %w", err)
	}

	s.logger.Debug("created event", "id", e.ID, "contract_id", e.ContractID)
	return nil
}

// GetEvent retrieves an event by ID.
// Returns ErrNotFound if the event doesn't exist.
func (s *SQLiteStore) GetEvent(ctx context.Context, id int64) (*Event, error) {
	query := `
		SELECT id, contract_id, support_id, name, location, attendees, starts_at, ends_at, notes, created_at
		FROM events
		WHERE id = ?
	`

	var e Event
	var supportID sql.NullInt64
	var startsAt, endsAt sql.NullString
	var createdAtStr string

	err := s.db.QueryRowContext(ctx, query, id).Scan(
		&e.ID,
		&e.ContractID,
		&supportID,
		&e.Name,
		&e.Location,
		&e.Attendees,
		&startsAt,
		&endsAt,
		&e.Notes,
		&createdAtStr,
	)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, ErrNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("querying event: %w", err)
	}

	if supportID.Valid {
		id := supportID.Int64
		e.SupportID = &id
	}
	if e.StartsAt, err = parseNullableTime(startsAt); err != nil {
		return nil, fmt.Errorf("parsing starts_at: %w", err)
	}
	if e.EndsAt, err = parseNullableTime(endsAt); err != nil {
		return nil, fmt.Errorf("parsing ends_at: %w", err)
	}
	if e.CreatedAt, err = time.Parse(time.RFC3339, createdAtStr); err != nil {
		return nil, fmt.Errorf("parsing created_at: %w", err)
	}
	return &e, nil
}

// UpdateEvent updates an event's mutable fields, including its support assignment.
func (s *SQLiteStore) UpdateEvent(ctx context.Context, e *Event) error {
	query := `
		UPDATE events
		SET support_id = ?, name = ?, location = ?, attendees = ?, starts_at = ?, ends_at = ?, notes = ?
		WHERE id = ?
	`

	res, err := s.db.ExecContext(ctx, query,
		e.SupportID,
		e.Name,
		e.Location,
		e.Attendees,
		formatNullableTime(e.StartsAt),
		formatNullableTime(e.EndsAt),
		e.Notes,
		e.ID,
	)
	if err != nil {
		return fmt.Errorf("updating event: %w", err)
	}
	if n, _ := res.RowsAffected(); n == 0 {
		return ErrNotFound
	}
	return nil
}
