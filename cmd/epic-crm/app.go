// ABOUTME: Wiring for a CLI invocation: store, token codec, authenticator and policy engine
// ABOUTME: Built once per process from the loaded config and torn down on exit

package main

import (
	"context"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"time"

	"github.com/epicevents/crm/internal/auth"
	"github.com/epicevents/crm/internal/config"
	"github.com/epicevents/crm/internal/policy"
	"github.com/epicevents/crm/internal/session"
	"github.com/epicevents/crm/internal/store"
)

type app struct {
	cfg      *config.Config
	logger   *slog.Logger
	db       *store.SQLiteStore
	codec    *auth.TokenCodec
	hasher   *auth.Hasher
	sessions *session.FileStore
	authn    *auth.Authenticator
	engine   *policy.Engine
	records  *policy.Records
	prompt   *prompter
	out      io.Writer
	now      func() time.Time
}

func newApp(ctx context.Context, cfg *config.Config, logger *slog.Logger, in io.Reader, out io.Writer) (*app, error) {
	return newAppWithClock(ctx, cfg, logger, in, out, time.Now)
}

func newAppWithClock(ctx context.Context, cfg *config.Config, logger *slog.Logger, in io.Reader, out io.Writer, now func() time.Time) (*app, error) {
	slog.SetDefault(logger)

	db, err := store.NewSQLiteStoreWithDriver(cfg.Database.Driver, cfg.Database.Path)
	if err != nil {
		return nil, fmt.Errorf("opening database: %w", err)
	}

	codec, err := auth.NewTokenCodec(cfg.SigningKeys(), cfg.Auth.AccessTokenTTL)
	if err != nil {
		db.Close()
		return nil, fmt.Errorf("creating token codec: %w", err)
	}

	hasher, err := auth.NewHasher(cfg.Auth.BcryptCost)
	if err != nil {
		db.Close()
		return nil, fmt.Errorf("creating hasher: %w", err)
	}

	var resolver policy.PermissionResolver = policy.DefaultResolver()
	if cfg.Permissions.Source == config.PermissionsDatabase {
		if err := db.SeedRolePermissions(ctx, policy.DefaultGrants); err != nil {
			db.Close()
			return nil, fmt.Errorf("seeding role permissions: %w", err)
		}
		resolver = policy.NewFallbackResolver(policy.NewStoreResolver(db), policy.DefaultResolver(), logger)
	}

	sessions := session.NewFileStore(cfg.SessionPath(),
		session.WithClock(now),
		session.WithLogger(logger),
	)

	authn := auth.NewAuthenticator(db, codec, sessions,
		auth.WithClock(now),
		auth.WithLogger(logger),
		auth.WithHasher(hasher),
		auth.WithRefreshTTL(cfg.Auth.RefreshTokenTTL),
	)

	engine := policy.NewEngine(codec, resolver,
		policy.WithClock(now),
		policy.WithLogger(logger),
		policy.WithAuditLog(db),
	)

	return &app{
		cfg:      cfg,
		logger:   logger,
		db:       db,
		codec:    codec,
		hasher:   hasher,
		sessions: sessions,
		authn:    authn,
		engine:   engine,
		records:  policy.NewRecords(engine, db),
		prompt:   newPrompter(in, out),
		out:      out,
		now:      now,
	}, nil
}

func (a *app) Close() error {
	return a.db.Close()
}

// token returns the session's access token, refreshed once if it expired.
// A missing session yields an empty token so guards report that login is required.
func (a *app) token(ctx context.Context) (policy.Token, error) {
	tok, err := a.authn.ActiveToken(ctx)
	if errors.Is(err, auth.ErrNoSession) {
		return "", nil
	}
	if err != nil {
		return "", err
	}
	return policy.Token(tok), nil
}

// guarded runs op under the session token.
func guarded[T any](ctx context.Context, a *app, op policy.Operation[T]) (T, error) {
	tok, err := a.token(ctx)
	if err != nil {
		var zero T
		return zero, err
	}
	return op(ctx, tok)
}

// record appends an audit entry for the calling principal. Failures are logged.
func (a *app) record(ctx context.Context, action store.AuditAction, target store.AuditTarget, targetID int64, detail map[string]any) {
	var actor int64
	if claims := auth.ClaimsFromContext(ctx); claims != nil {
		actor = claims.SubjectID
	}
	err := a.db.AppendAuditLog(ctx, &store.AuditEntry{
		ActorPrincipalID: actor,
		Action:           action,
		TargetType:       target,
		TargetID:         targetID,
		Detail:           detail,
	})
	if err != nil {
		a.logger.Warn("failed to append audit log", "action", action, "error", err)
	}
}
