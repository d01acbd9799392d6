// ABOUTME: Session commands: login, logout, refresh, whoami, can and token reissue
// ABOUTME: Thin wrappers over the authenticator and policy engine

package main

import (
	"context"
	"fmt"
	"strings"

	"github.com/fatih/color"

	"github.com/epicevents/crm/internal/auth"
	"github.com/epicevents/crm/internal/policy"
)

const expiryLayout = "Jan 02 15:04 MST"

func (a *app) cmdLogin(ctx context.Context, args []string) error {
	parsed, err := parseArgs(args, []string{"email"})
	if err != nil {
		return err
	}

	email, ok := parsed.get("email")
	if !ok {
		email = a.prompt.ask("Email", "")
	}
	if email == "" {
		return fmt.Errorf("email is required")
	}
	secret, err := a.prompt.secret("Password")
	if err != nil {
		return err
	}

	grant, err := a.authn.Login(ctx, email, secret)
	if err != nil {
		return err
	}

	green := color.New(color.FgGreen)
	green.Fprintf(a.out, "✓ Logged in as %s (%s)\n", email, grant.RoleID)
	fmt.Fprintf(a.out, "  Access token expires:  %s\n", grant.AccessExpiry.Local().Format(expiryLayout))
	fmt.Fprintf(a.out, "  Session expires:       %s\n", grant.RefreshExpiry.Local().Format(expiryLayout))
	return nil
}

func (a *app) cmdLogout(ctx context.Context) error {
	outcome, err := a.authn.Logout(ctx)
	if err != nil {
		return err
	}
	if outcome == auth.LogoutNoSession {
		color.New(color.FgYellow).Fprintf(a.out, "%s\n", outcome)
		return nil
	}
	color.New(color.FgGreen).Fprintf(a.out, "✓ %s\n", outcome)
	return nil
}

func (a *app) cmdRefresh(ctx context.Context) error {
	grant, err := a.authn.Refresh(ctx)
	if err != nil {
		return err
	}
	color.New(color.FgGreen).Fprintln(a.out, "✓ Session refreshed")
	fmt.Fprintf(a.out, "  Access token expires:  %s\n", grant.AccessExpiry.Local().Format(expiryLayout))
	fmt.Fprintf(a.out, "  Session expires:       %s\n", grant.RefreshExpiry.Local().Format(expiryLayout))
	return nil
}

func (a *app) cmdWhoami(ctx context.Context) error {
	whoami := policy.LoginRequired(a.engine, func(ctx context.Context, tok policy.Token) (struct{}, error) {
		claims := auth.MustClaimsFromContext(ctx)
		principal, err := a.db.GetPrincipal(ctx, claims.SubjectID)
		if err != nil {
			return struct{}{}, fmt.Errorf("loading principal: %w", err)
		}
		_, perms, err := a.engine.Permissions(ctx, tok)
		if err != nil {
			return struct{}{}, err
		}
		rec, err := a.authn.Current(ctx)
		if err != nil {
			return struct{}{}, err
		}

		cyan := color.New(color.FgCyan)
		green := color.New(color.FgGreen)

		fmt.Fprintln(a.out)
		cyan.Fprintln(a.out, "  Identity")
		cyan.Fprintln(a.out, "  --------")
		fmt.Fprintf(a.out, "  Principal ID:   %d\n", principal.ID)
		fmt.Fprintf(a.out, "  Email:          %s\n", principal.Email)
		fmt.Fprintf(a.out, "  Name:           %s\n", principal.FullName)
		green.Fprintf(a.out, "  Role:           %s\n", claims.RoleID)
		fmt.Fprintf(a.out, "  Token expires:  %s (key %s)\n", claims.ExpiresAt.Local().Format(expiryLayout), claims.KeyID)
		fmt.Fprintf(a.out, "  Session ends:   %s\n", rec.RefreshExpiry.Local().Format(expiryLayout))
		fmt.Fprintln(a.out)

		cyan.Fprintln(a.out, "  Permissions")
		cyan.Fprintln(a.out, "  -----------")
		for _, p := range perms.Strings() {
			fmt.Fprintf(a.out, "  %-26s %s\n", p, policy.MustParse(p).Humanize())
		}
		fmt.Fprintln(a.out)
		return struct{}{}, nil
	})

	_, err := guarded(ctx, a, whoami)
	return err
}

func (a *app) cmdCan(ctx context.Context, args []string) error {
	if len(args) != 1 {
		return fmt.Errorf("usage: can <resource:action[:scope]>")
	}
	perm := args[0]

	tok, err := a.token(ctx)
	if err != nil {
		return err
	}
	if tok == "" {
		return policy.ErrLoginRequired
	}

	p, err := policy.Parse(perm)
	if err != nil {
		return err
	}
	if a.engine.HasPermission(ctx, tok, perm) {
		color.New(color.FgGreen).Fprintf(a.out, "yes: you may %s\n", p.Humanize())
		return nil
	}
	color.New(color.FgRed).Fprintf(a.out, "no: you may not %s\n", p.Humanize())
	return nil
}

func (a *app) cmdToken(ctx context.Context, args []string) error {
	if len(args) == 0 || strings.ToLower(args[0]) != "reissue" {
		return fmt.Errorf("usage: token reissue")
	}
	grant, err := a.authn.Reissue(ctx)
	if err != nil {
		return err
	}
	color.New(color.FgGreen).Fprintf(a.out, "✓ Access token re-signed with key %s\n", a.codec.CurrentKeyID())
	fmt.Fprintf(a.out, "  Expires: %s\n", grant.AccessExpiry.Local().Format(expiryLayout))
	return nil
}
