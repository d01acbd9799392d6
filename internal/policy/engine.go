// ABOUTME: Policy engine combining role grants with ownership and assignment facts
// ABOUTME: Token failures deny; nothing here returns a verification error unwrapped

package policy

import (
	"context"
	"fmt"
	"log/slog"
	"time"

	"github.com/epicevents/crm/internal/auth"
	"github.com/epicevents/crm/internal/store"
)

// Token is a signed access token as presented by a caller.
type Token string

// Verifier verifies access tokens. *auth.TokenCodec implements it.
type Verifier interface {
	Verify(token string, now time.Time) (*auth.Claims, error)
}

// AuditAppender records denials. *store.SQLiteStore implements it.
type AuditAppender interface {
	AppendAuditLog(ctx context.Context, e *store.AuditEntry) error
}

// Engine evaluates permissions. Construct one per process.
type Engine struct {
	verifier Verifier
	resolver PermissionResolver
	audit    AuditAppender
	now      func() time.Time
	logger   *slog.Logger
}

// Option configures an Engine.
type Option func(*Engine)

// WithClock overrides the time source used for token expiry.
func WithClock(now func() time.Time) Option {
	return func(e *Engine) { e.now = now }
}

// WithLogger overrides the logger.
func WithLogger(logger *slog.Logger) Option {
	return func(e *Engine) { e.logger = logger }
}

// WithAuditLog records every denial for an authenticated caller.
func WithAuditLog(a AuditAppender) Option {
	return func(e *Engine) { e.audit = a }
}

// NewEngine returns an engine verifying tokens with v and resolving roles with r.
func NewEngine(v Verifier, r PermissionResolver, opts ...Option) *Engine {
	e := &Engine{
		verifier: v,
		resolver: r,
		now:      time.Now,
		logger:   slog.Default(),
	}
	for _, opt := range opts {
		opt(e)
	}
	e.logger = e.logger.With("component", "policy")
	return e
}

// caller verifies tok and resolves the caller's permission set.
func (e *Engine) caller(ctx context.Context, tok Token) (*auth.Claims, Set, error) {
	if tok == "" {
		return nil, nil, auth.ErrNoSession
	}
	claims, err := e.verifier.Verify(string(tok), e.now())
	if err != nil {
		return nil, nil, err
	}
	if !claims.RoleID.Valid() {
		return claims, nil, ErrUnknownRole
	}
	set, err := e.resolver.Resolve(ctx, claims.RoleID)
	if err != nil {
		return claims, nil, err
	}
	return claims, set, nil
}

// Permissions returns the caller's effective permission set.
func (e *Engine) Permissions(ctx context.Context, tok Token) (*auth.Claims, Set, error) {
	return e.caller(ctx, tok)
}

// HasPermission reports whether tok's role holds perm. Any failure, including a
// missing, expired or forged token, yields false.
func (e *Engine) HasPermission(ctx context.Context, tok Token, perm string) bool {
	p, err := Parse(perm)
	if err != nil {
		e.logger.Debug("unparsable permission", "permission", perm)
		return false
	}
	_, set, err := e.caller(ctx, tok)
	if err != nil {
		e.logger.Debug("permission check failed", "permission", perm, "error", err)
		return false
	}
	return set.Allows(p)
}

// Require returns the caller's claims if tok's role holds perm, else a *DeniedError.
func (e *Engine) Require(ctx context.Context, tok Token, perm string) (*auth.Claims, error) {
	p, err := Parse(perm)
	if err != nil {
		return nil, fmt.Errorf("%w: %v", ErrPermissionDenied, err)
	}
	claims, set, err := e.caller(ctx, tok)
	if err != nil {
		return nil, e.deny(ctx, claims, p, err)
	}
	if !set.Allows(p) {
		return nil, e.deny(ctx, claims, p, nil)
	}
	return claims, nil
}

// EnforceAnyOrOwn allows resource:action outright, or resource:action:own when
// ownerID is the caller.
func (e *Engine) EnforceAnyOrOwn(ctx context.Context, tok Token, resource, action string, ownerID int64) (*auth.Claims, error) {
	return e.enforceScoped(ctx, tok, Permission{Resource: resource, Action: action}, ScopeOwn, ownerID)
}

// EnforceAnyOrAssigned allows resource:action outright, or resource:action:assigned
// when assignedID is the caller. Zero means unassigned.
func (e *Engine) EnforceAnyOrAssigned(ctx context.Context, tok Token, resource, action string, assignedID int64) (*auth.Claims, error) {
	return e.enforceScoped(ctx, tok, Permission{Resource: resource, Action: action}, ScopeAssigned, assignedID)
}

// CanCreateEventForContract allows event:create outright, or event:create:own_client
// when the contract's commercial is the caller.
func (e *Engine) CanCreateEventForContract(ctx context.Context, tok Token, contractCommercialID int64) (*auth.Claims, error) {
	base := Permission{Resource: ResourceEvent, Action: ActionCreate}
	return e.enforceScoped(ctx, tok, base, ScopeOwnClient, contractCommercialID)
}

func (e *Engine) enforceScoped(ctx context.Context, tok Token, base Permission, scope Scope, factID int64) (*auth.Claims, error) {
	claims, set, err := e.caller(ctx, tok)
	if err != nil {
		return nil, e.deny(ctx, claims, base, err)
	}
	if set.Has(base) {
		return claims, nil
	}
	if set.Has(base.WithScope(scope)) && factID != 0 && factID == claims.SubjectID {
		return claims, nil
	}
	return nil, e.deny(ctx, claims, base, nil)
}

func (e *Engine) deny(ctx context.Context, claims *auth.Claims, p Permission, cause error) error {
	var actor int64
	if claims != nil {
		actor = claims.SubjectID
	}
	e.logger.Info("permission denied", "principal_id", actor, "permission", p.String(), "cause", cause)

	if e.audit != nil && claims != nil {
		err := e.audit.AppendAuditLog(ctx, &store.AuditEntry{
			ActorPrincipalID: actor,
			Action:           store.AuditPermissionDenied,
			TargetType:       store.TargetPrincipal,
			TargetID:         actor,
			Detail:           map[string]any{"permission": p.String()},
		})
		if err != nil {
			e.logger.Warn("failed to append audit log", "error", err)
		}
	}
	return &DeniedError{Permission: p, Cause: cause}
}
