// ABOUTME: Audit log of authentication, authorization and CRM record changes
// ABOUTME: Entries point at a typed CRM record; queries can follow one principal across actor and target

package store

import (
	"context"
	"encoding/json"
	"fmt"
	"slices"
	"strings"
	"time"

	"github.com/google/uuid"
)

// AuditAction represents an auditable action.
type AuditAction string

const (
	AuditLogin            AuditAction = "login"
	AuditLoginFailed      AuditAction = "login_failed"
	AuditRefresh          AuditAction = "refresh"
	AuditRefreshRejected  AuditAction = "refresh_rejected"
	AuditLogout           AuditAction = "logout"
	AuditCreatePrincipal  AuditAction = "create_principal"
	AuditChangePassword   AuditAction = "change_password"
	AuditCreateClient     AuditAction = "create_client"
	AuditUpdateClient     AuditAction = "update_client"
	AuditCreateContract   AuditAction = "create_contract"
	AuditUpdateContract   AuditAction = "update_contract"
	AuditCreateEvent      AuditAction = "create_event"
	AuditUpdateEvent      AuditAction = "update_event"
	AuditPermissionDenied AuditAction = "permission_denied"
)

// failureActions record a rejected attempt rather than a change.
var failureActions = []AuditAction{AuditLoginFailed, AuditRefreshRejected, AuditPermissionDenied}

// Failure reports whether a records a rejected attempt.
func (a AuditAction) Failure() bool {
	return slices.Contains(failureActions, a)
}

// AuditTarget is the kind of record an entry is about.
type AuditTarget string

const (
	TargetPrincipal AuditTarget = "principal"
	TargetClient    AuditTarget = "client"
	TargetContract  AuditTarget = "contract"
	TargetEvent     AuditTarget = "event"
)

// ParseAuditTarget accepts the target names used on the command line.
func ParseAuditTarget(s string) (AuditTarget, error) {
	switch t := AuditTarget(strings.ToLower(strings.TrimSpace(s))); t {
	case TargetPrincipal, TargetClient, TargetContract, TargetEvent:
		return t, nil
	case "user":
		return TargetPrincipal, nil
	default:
		return "", fmt.Errorf("unknown audit target %q", s)
	}
}

// AuditEntry is one row of the audit log.
type AuditEntry struct {
	ID               string // UUID v4
	ActorPrincipalID int64  // 0 when the caller was not authenticated
	Action           AuditAction
	TargetType       AuditTarget
	TargetID         int64 // 0 when the target is unknown, e.g. a login for an unknown email
	Timestamp        time.Time
	Detail           map[string]any // never secrets
}

// AuditFilter selects audit entries. Zero values match everything.
type AuditFilter struct {
	Since *time.Time // inclusive
	Until *time.Time // inclusive

	Actions      []AuditAction // any of
	FailuresOnly bool          // only login_failed, refresh_rejected and permission_denied

	ActorPrincipalID *int64
	// Involving matches entries where the principal acted or was the target.
	Involving *int64

	TargetType *AuditTarget
	TargetID   int64 // needs TargetType; 0 matches every record of that type

	Limit int // default 100, max 1000
}

// Matches reports whether e passes f. It is the in-memory form of the SQL
// built by auditWhere.
func (f AuditFilter) Matches(e *AuditEntry) bool {
	ts := e.Timestamp.UTC().Truncate(time.Millisecond)
	if f.Since != nil && ts.Before(f.Since.UTC().Truncate(time.Millisecond)) {
		return false
	}
	if f.Until != nil && ts.After(f.Until.UTC().Truncate(time.Millisecond)) {
		return false
	}
	if len(f.Actions) > 0 && !slices.Contains(f.Actions, e.Action) {
		return false
	}
	if f.FailuresOnly && !e.Action.Failure() {
		return false
	}
	if f.ActorPrincipalID != nil && e.ActorPrincipalID != *f.ActorPrincipalID {
		return false
	}
	if f.Involving != nil {
		id := *f.Involving
		if e.ActorPrincipalID != id && (e.TargetType != TargetPrincipal || e.TargetID != id) {
			return false
		}
	}
	if f.TargetType != nil {
		if e.TargetType != *f.TargetType {
			return false
		}
		if f.TargetID != 0 && e.TargetID != f.TargetID {
			return false
		}
	}
	return true
}

// AppendAuditLog appends e, filling ID and Timestamp when unset.
func (s *SQLiteStore) AppendAuditLog(ctx context.Context, e *AuditEntry) error {
	prepareAuditEntry(e)

	var detail *string
	if len(e.Detail) > 0 {
		data, err := json.Marshal(e.Detail)
		if err != nil {
			return fmt.Errorf("marshaling audit detail: %w", err)
		}
		str := string(data)
		detail = &str
	}

	_, err := s.db.ExecContext(ctx, `
		INSERT INTO audit_log (audit_id, actor_principal_id, action, target_type, target_id, ts_ms, detail_json)
		VALUES (?, ?, ?, ?, ?, ?, ?)
	`, e.ID, e.ActorPrincipalID, string(e.Action), string(e.TargetType), e.TargetID, e.Timestamp.UnixMilli(), detail)
	if err != nil {
		return fmt.Errorf("inserting audit entry: %w", err)
	}

	s.logger.Debug("appended audit log",
		"action", e.Action,
		"actor", e.ActorPrincipalID,
		"target", fmt.Sprintf("%s/%d", e.TargetType, e.TargetID),
	)
	return nil
}

func prepareAuditEntry(e *AuditEntry) {
	if e.ID == "" {
		e.ID = uuid.New().String()
	}
	if e.Timestamp.IsZero() {
		e.Timestamp = time.Now()
	}
	e.Timestamp = e.Timestamp.UTC().Truncate(time.Millisecond)
}

// normalizeAuditLimit applies default (100) and cap (1000) to audit limit.
func normalizeAuditLimit(limit int) int {
	switch {
	case limit <= 0:
		return 100
	case limit > 1000:
		return 1000
	default:
		return limit
	}
}

// auditWhere renders f as a WHERE clause and its arguments. Only the
// conditions f sets are emitted.
func auditWhere(f AuditFilter) (string, []any) {
	var clauses []string
	var args []any
	add := func(clause string, vals ...any) {
		clauses = append(clauses, clause)
		args = append(args, vals...)
	}
	in := func(column string, actions []AuditAction) {
		marks := strings.TrimSuffix(strings.Repeat("?, ", len(actions)), ", ")
		vals := make([]any, len(actions))
		for i, a := range actions {
			vals[i] = string(a)
		}
		add(column+" IN ("+marks+")", vals...)
	}

	if f.Since != nil {
		add("ts_ms >= ?", f.Since.UnixMilli())
	}
	if f.Until != nil {
		add("ts_ms <= ?", f.Until.UnixMilli())
	}
	if len(f.Actions) > 0 {
		in("action", f.Actions)
	}
	if f.FailuresOnly {
		in("action", failureActions)
	}
	if f.ActorPrincipalID != nil {
		add("actor_principal_id = ?", *f.ActorPrincipalID)
	}
	if f.Involving != nil {
		add("(actor_principal_id = ? OR (target_type = ? AND target_id = ?))",
			*f.Involving, string(TargetPrincipal), *f.Involving)
	}
	if f.TargetType != nil {
		add("target_type = ?", string(*f.TargetType))
		if f.TargetID != 0 {
			add("target_id = ?", f.TargetID)
		}
	}

	if len(clauses) == 0 {
		return "", nil
	}
	return "WHERE " + strings.Join(clauses, " AND "), args
}

func scanAuditEntry(scanner interface{ Scan(dest ...any) error }) (AuditEntry, error) {
	var e AuditEntry
	var action, target string
	var tsMillis int64
	var detail *string

	if err := scanner.Scan(&e.ID, &e.ActorPrincipalID, &action, &target, &e.TargetID, &tsMillis, &detail); err != nil {
		return e, fmt.Errorf("scanning audit entry: %w", err)
	}
	e.Action = AuditAction(action)
	e.TargetType = AuditTarget(target)
	e.Timestamp = time.UnixMilli(tsMillis).UTC()

	if detail != nil {
		if err := json.Unmarshal([]byte(*detail), &e.Detail); err != nil {
			return e, fmt.Errorf("unmarshaling audit detail: %w", err)
		}
	}
	return e, nil
}

// ListAuditLog returns entries matching f, newest first. Entries written in
// the same millisecond keep their insertion order reversed.
func (s *SQLiteStore) ListAuditLog(ctx context.Context, f AuditFilter) ([]AuditEntry, error) {
	where, args := auditWhere(f)
	query := `
		SELECT audit_id, actor_principal_id, action, target_type, target_id, ts_ms, detail_json
		FROM audit_log ` + where + `
		ORDER BY ts_ms DESC, seq DESC
		LIMIT ?`
	args = append(args, normalizeAuditLimit(f.Limit))

	rows, err := s.db.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, fmt.Errorf("querying audit log: %w", err)
	}
	defer func() { _ = rows.Close() }()

	entries := []AuditEntry{}
	for rows.Next() {
		e, err := scanAuditEntry(rows)
		if err != nil {
			return nil, err
		}
		entries = append(entries, e)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterating audit entries: %w", err)
	}
	return entries, nil
}
