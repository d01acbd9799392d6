// ABOUTME: Login, refresh and logout orchestration across the store, token codec and local session
// ABOUTME: Database writes commit before the local session is touched, so the database stays authoritative

package auth

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"time"

	"github.com/epicevents/crm/internal/session"
	"github.com/epicevents/crm/internal/store"
)

// DefaultRefreshTokenTTL is used when the configured refresh lifetime is zero.
const DefaultRefreshTokenTTL = 24 * time.Hour

// SessionStore persists the local session between CLI invocations.
type SessionStore interface {
	Store(r session.Record) error
	Load() (*session.Record, error)
	UpdateAccessToken(token string) error
	Clear() (bool, error)
}

// Grant is the credential pair handed back by Login, Refresh and Reissue.
type Grant struct {
	PrincipalID   int64
	RoleID        store.RoleID
	AccessToken   string
	AccessExpiry  time.Time
	RefreshToken  string // raw secret; only its hash is stored
	RefreshExpiry time.Time
}

// LogoutOutcome describes what Logout found.
type LogoutOutcome int

const (
	// LogoutCompleted means a session existed and was removed.
	LogoutCompleted LogoutOutcome = iota
	// LogoutNoSession means there was nothing to log out of.
	LogoutNoSession
)

func (o LogoutOutcome) String() string {
	switch o {
	case LogoutCompleted:
		return "logged out"
	case LogoutNoSession:
		return "no active session"
	default:
		return "unknown"
	}
}

// Authenticator runs the authentication flows. Construct one per process.
type Authenticator struct {
	principals store.PrincipalStore
	codec      *TokenCodec
	sessions   SessionStore
	hasher     *Hasher
	refreshTTL time.Duration
	now        func() time.Time
	logger     *slog.Logger
}

// Option configures an Authenticator.
type Option func(*Authenticator)

// WithClock overrides the time source.
func WithClock(now func() time.Time) Option {
	return func(a *Authenticator) { a.now = now }
}

// WithLogger overrides the logger.
func WithLogger(logger *slog.Logger) Option {
	return func(a *Authenticator) { a.logger = logger }
}

// WithHasher overrides the secret hasher.
func WithHasher(h *Hasher) Option {
	return func(a *Authenticator) { a.hasher = h }
}

// WithRefreshTTL overrides the refresh secret lifetime.
func WithRefreshTTL(ttl time.Duration) Option {
	return func(a *Authenticator) {
		if ttl > 0 {
			a.refreshTTL = ttl
		}
	}
}

// NewAuthenticator wires the flows together.
func NewAuthenticator(principals store.PrincipalStore, codec *TokenCodec, sessions SessionStore, opts ...Option) *Authenticator {
	a := &Authenticator{
		principals: principals,
		codec:      codec,
		sessions:   sessions,
		hasher:     defaultHasher,
		refreshTTL: DefaultRefreshTokenTTL,
		now:        time.Now,
		logger:     slog.Default(),
	}
	for _, opt := range opts {
		opt(a)
	}
	a.logger = a.logger.With("component", "auth")
	return a
}

// Codec returns the token codec used by the authenticator.
func (a *Authenticator) Codec() *TokenCodec {
	return a.codec
}

// Login checks identifier and secret, stores a fresh refresh hash and writes the local session.
func (a *Authenticator) Login(ctx context.Context, identifier, secret string) (*Grant, error) {
	p, err := a.principals.GetPrincipalByEmail(ctx, identifier)
	if errors.Is(err, store.ErrPrincipalNotFound) {
		a.hasher.Verify(secret, dummyHash)
		a.audit(ctx, 0, store.AuditLoginFailed, 0, map[string]any{"reason": "unknown_principal"})
		return nil, ErrUnknownPrincipal
	}
	if err != nil {
		return nil, fmt.Errorf("looking up principal: %w", err)
	}

	if !a.hasher.Verify(secret, p.PasswordHash) {
		a.audit(ctx, p.ID, store.AuditLoginFailed, p.ID, map[string]any{"reason": "bad_secret"})
		a.logger.Info("login rejected", "principal_id", p.ID)
		return nil, ErrInvalidCredential
	}

	now := a.now()
	grant, refreshHash, err := a.mint(p.ID, p.Role, now)
	if err != nil {
		return nil, err
	}

	if err := a.principals.SetRefreshCredential(ctx, p.ID, refreshHash, grant.RefreshExpiry, now); err != nil {
		return nil, fmt.Errorf("storing refresh credential: %w", err)
	}
	if err := a.persist(grant); err != nil {
		return nil, err
	}

	a.audit(ctx, p.ID, store.AuditLogin, p.ID, map[string]any{"key_id": a.codec.CurrentKeyID()})
	a.logger.Info("login succeeded", "principal_id", p.ID, "role", p.Role.Name())
	return grant, nil
}

// Refresh exchanges the session's refresh secret for a new access token and a new
// refresh secret. The old secret stops working as soon as the database commits.
func (a *Authenticator) Refresh(ctx context.Context) (*Grant, error) {
	rec, err := a.loadSession()
	if err != nil {
		return nil, err
	}

	now := a.now()
	if rec.RefreshExpired(now) {
		a.audit(ctx, rec.UserID, store.AuditRefreshRejected, rec.UserID, map[string]any{"reason": "expired"})
		return nil, ErrExpiredCredential
	}

	p, err := a.principals.GetPrincipal(ctx, rec.UserID)
	if errors.Is(err, store.ErrPrincipalNotFound) {
		return nil, ErrUnknownPrincipal
	}
	if err != nil {
		return nil, fmt.Errorf("looking up principal: %w", err)
	}

	if p.RefreshHash == "" {
		a.audit(ctx, p.ID, store.AuditRefreshRejected, p.ID, map[string]any{"reason": "no_stored_hash"})
		return nil, ErrInvalidCredential
	}
	if !p.HasRefreshCredential(now) {
		a.audit(ctx, p.ID, store.AuditRefreshRejected, p.ID, map[string]any{"reason": "stored_expired"})
		return nil, ErrExpiredCredential
	}
	if !a.hasher.Verify(rec.RefreshToken, p.RefreshHash) {
		a.audit(ctx, p.ID, store.AuditRefreshRejected, p.ID, map[string]any{"reason": "mismatch"})
		return nil, ErrInvalidCredential
	}

	grant, refreshHash, err := a.mint(p.ID, p.Role, now)
	if err != nil {
		return nil, err
	}

	err = a.principals.RotateRefreshCredential(ctx, p.ID, p.RefreshHash, refreshHash, grant.RefreshExpiry)
	if errors.Is(err, store.ErrStaleCredential) {
		a.audit(ctx, p.ID, store.AuditRefreshRejected, p.ID, map[string]any{"reason": "rotated_concurrently"})
		return nil, ErrInvalidCredential
	}
	if err != nil {
		return nil, fmt.Errorf("rotating refresh credential: %w", err)
	}

	if err := a.persist(grant); err != nil {
		return nil, err
	}

	a.audit(ctx, p.ID, store.AuditRefresh, p.ID, nil)
	a.logger.Info("refreshed session", "principal_id", p.ID)
	return grant, nil
}

// Logout clears the stored refresh hash when possible and always removes the local session.
// A missing session yields LogoutNoSession and no error.
func (a *Authenticator) Logout(ctx context.Context) (LogoutOutcome, error) {
	rec, err := a.sessions.Load()
	if errors.Is(err, session.ErrNoSession) {
		return LogoutNoSession, nil
	}
	if err != nil {
		// Unreadable state still gets removed below.
		a.logger.Warn("reading session during logout", "error", err)
	}

	if rec != nil {
		err := a.principals.ClearRefreshCredential(ctx, rec.UserID)
		switch {
		case errors.Is(err, store.ErrPrincipalNotFound):
			a.logger.Info("logout for principal that no longer exists", "principal_id", rec.UserID)
		case err != nil:
			a.logger.Warn("clearing refresh credential", "principal_id", rec.UserID, "error", err)
		default:
			a.audit(ctx, rec.UserID, store.AuditLogout, rec.UserID, nil)
		}
	}

	existed, err := a.sessions.Clear()
	if err != nil {
		return LogoutCompleted, fmt.Errorf("removing local session: %w", err)
	}
	if !existed {
		return LogoutNoSession, nil
	}

	a.logger.Info("logged out")
	return LogoutCompleted, nil
}

// Reissue re-signs the session's still-valid access token with the current signing key,
// leaving the refresh secret untouched. Used after a signing key rollover.
func (a *Authenticator) Reissue(ctx context.Context) (*Grant, error) {
	rec, err := a.loadSession()
	if err != nil {
		return nil, err
	}

	now := a.now()
	claims, err := a.codec.Verify(rec.AccessToken, now)
	if err != nil {
		return nil, err
	}
	if claims.SubjectID != rec.UserID {
		return nil, fmt.Errorf("%w: session does not match its token", ErrInvalidCredential)
	}

	token, exp, err := a.codec.Issue(claims.SubjectID, claims.RoleID, now)
	if err != nil {
		return nil, err
	}
	if err := a.sessions.UpdateAccessToken(token); err != nil {
		return nil, fmt.Errorf("updating session: %w", err)
	}

	a.logger.Info("reissued access token", "principal_id", claims.SubjectID, "from_key", claims.KeyID, "to_key", a.codec.CurrentKeyID())
	return &Grant{
		PrincipalID:   claims.SubjectID,
		RoleID:        claims.RoleID,
		AccessToken:   token,
		AccessExpiry:  exp,
		RefreshToken:  rec.RefreshToken,
		RefreshExpiry: rec.RefreshExpiry,
	}, nil
}

// Current returns the local session record.
func (a *Authenticator) Current(ctx context.Context) (*session.Record, error) {
	return a.loadSession()
}

// ActiveToken returns the session's access token, refreshing once if it has expired
// while the refresh secret is still valid.
func (a *Authenticator) ActiveToken(ctx context.Context) (string, error) {
	rec, err := a.loadSession()
	if err != nil {
		return "", err
	}

	_, err = a.codec.Verify(rec.AccessToken, a.now())
	if err == nil {
		return rec.AccessToken, nil
	}
	if !errors.Is(err, ErrExpiredCredential) {
		return "", err
	}

	a.logger.Debug("access token expired, refreshing", "principal_id", rec.UserID)
	grant, err := a.Refresh(ctx)
	if err != nil {
		return "", err
	}
	return grant.AccessToken, nil
}

func (a *Authenticator) loadSession() (*session.Record, error) {
	rec, err := a.sessions.Load()
	if errors.Is(err, session.ErrNoSession) {
		return nil, ErrNoSession
	}
	if err != nil {
		return nil, fmt.Errorf("loading session: %w", err)
	}
	return rec, nil
}

// mint issues an access token and a new refresh secret, returning the grant and
// the hash to store.
func (a *Authenticator) mint(principalID int64, role store.RoleID, now time.Time) (*Grant, string, error) {
	access, accessExp, err := a.codec.Issue(principalID, role, now)
	if err != nil {
		return nil, "", err
	}

	refresh, err := NewRefreshSecret()
	if err != nil {
		return nil, "", err
	}
	refreshHash, err := a.hasher.Hash(refresh)
	if err != nil {
		return nil, "", fmt.Errorf("hashing refresh secret: %w", err)
	}

	return &Grant{
		PrincipalID:   principalID,
		RoleID:        role,
		AccessToken:   access,
		AccessExpiry:  accessExp,
		RefreshToken:  refresh,
		RefreshExpiry: ceilSecond(now.Add(a.refreshTTL).UTC()),
	}, refreshHash, nil
}

func (a *Authenticator) persist(g *Grant) error {
	err := a.sessions.Store(session.Record{
		AccessToken:   g.AccessToken,
		RefreshToken:  g.RefreshToken,
		RefreshExpiry: g.RefreshExpiry,
		UserID:        g.PrincipalID,
		RoleID:        int(g.RoleID),
	})
	if err != nil {
		return fmt.Errorf("writing local session: %w", err)
	}
	return nil
}

// audit records an entry about principal; failures are logged and never fail the flow.
func (a *Authenticator) audit(ctx context.Context, actor int64, action store.AuditAction, principal int64, detail map[string]any) {
	entry := &store.AuditEntry{
		ActorPrincipalID: actor,
		Action:           action,
		TargetType:       store.TargetPrincipal,
		TargetID:         principal,
		Timestamp:        a.now().UTC(),
		Detail:           detail,
	}
	if err := a.principals.AppendAuditLog(ctx, entry); err != nil {
		a.logger.Warn("failed to append audit log", "action", action, "error", err)
	}
}
