// ABOUTME: Collaborator management commands and first-run bootstrap
// ABOUTME: user create and list need management grants; passwd changes the caller's own secret

package main

import (
	"context"
	"fmt"
	"strconv"
	"text/tabwriter"

	"github.com/fatih/color"

	"github.com/epicevents/crm/internal/auth"
	"github.com/epicevents/crm/internal/policy"
	"github.com/epicevents/crm/internal/store"
)

// cmdBootstrap creates the first management principal. It refuses once any principal exists.
func (a *app) cmdBootstrap(ctx context.Context, args []string) error {
	parsed, err := parseArgs(args, []string{"email", "name"})
	if err != nil {
		return err
	}

	count, err := a.db.CountPrincipals(ctx)
	if err != nil {
		return fmt.Errorf("checking principals: %w", err)
	}
	if count > 0 {
		return fmt.Errorf("bootstrap already complete: %d principal(s) exist", count)
	}

	p := &store.Principal{Role: store.RoleManagement}
	if _, err := fillFields(p, principalFields[:2], parsed, a.prompt); err != nil {
		return err
	}

	secret, err := a.prompt.newSecret("Password")
	if err != nil {
		return err
	}
	if p.PasswordHash, err = a.hasher.Hash(secret); err != nil {
		return err
	}

	if err := a.db.CreatePrincipal(ctx, p); err != nil {
		return err
	}
	a.record(ctx, store.AuditCreatePrincipal, store.TargetPrincipal, p.ID, map[string]any{"role": p.Role.Name(), "bootstrap": true})

	green := color.New(color.FgGreen)
	yellow := color.New(color.FgYellow)
	green.Fprintf(a.out, "✓ Created management account %s (id %d)\n", p.Email, p.ID)
	fmt.Fprintln(a.out)
	yellow.Fprintln(a.out, "  Ready to go:")
	fmt.Fprintf(a.out, "    epic-crm login --email %s\n", p.Email)
	return nil
}

func (a *app) cmdUser(ctx context.Context, args []string) error {
	subcmd := "list"
	if len(args) > 0 {
		subcmd = args[0]
		args = args[1:]
	}

	switch subcmd {
	case "list", "ls":
		return a.cmdUserList(ctx)
	case "create", "add":
		return a.cmdUserCreate(ctx, args)
	case "passwd", "password":
		return a.cmdUserPasswd(ctx, args)
	default:
		return fmt.Errorf("unknown user subcommand: %s (use list, create, passwd)", subcmd)
	}
}

func (a *app) cmdUserCreate(ctx context.Context, args []string) error {
	parsed, err := parseArgs(args, fieldNames(principalFields))
	if err != nil {
		return err
	}

	create := policy.RequirePermission(a.engine, "user:create", func(ctx context.Context, _ policy.Token) (*store.Principal, error) {
		p := &store.Principal{}
		if _, err := fillFields(p, principalFields, parsed, a.prompt); err != nil {
			return nil, err
		}
		secret, err := a.prompt.newSecret("Initial password")
		if err != nil {
			return nil, err
		}
		if p.PasswordHash, err = a.hasher.Hash(secret); err != nil {
			return nil, err
		}
		if err := a.db.CreatePrincipal(ctx, p); err != nil {
			return nil, err
		}
		a.record(ctx, store.AuditCreatePrincipal, store.TargetPrincipal, p.ID, map[string]any{"role": p.Role.Name()})
		return p, nil
	})

	p, err := guarded(ctx, a, create)
	if err != nil {
		return err
	}
	color.New(color.FgGreen).Fprintf(a.out, "✓ Created %s account %s (id %d)\n", p.Role, p.Email, p.ID)
	return nil
}

// cmdUserPasswd changes the caller's own password, or another principal's with user:update.
func (a *app) cmdUserPasswd(ctx context.Context, args []string) error {
	parsed, err := parseArgs(args, nil)
	if err != nil {
		return err
	}

	var passwd policy.Operation[int64]
	if len(parsed.positional) > 0 {
		targetID, err := parsed.id(0, "user")
		if err != nil {
			return err
		}
		passwd = policy.RequirePermission(a.engine, "user:update", func(ctx context.Context, _ policy.Token) (int64, error) {
			return targetID, a.setPassword(ctx, targetID, "New password")
		})
	} else {
		passwd = policy.LoginRequired(a.engine, func(ctx context.Context, _ policy.Token) (int64, error) {
			self := auth.MustClaimsFromContext(ctx).SubjectID
			principal, err := a.db.GetPrincipal(ctx, self)
			if err != nil {
				return 0, err
			}
			current, err := a.prompt.secret("Current password")
			if err != nil {
				return 0, err
			}
			if !a.hasher.Verify(current, principal.PasswordHash) {
				return 0, auth.ErrInvalidCredential
			}
			return self, a.setPassword(ctx, self, "New password")
		})
	}

	id, err := guarded(ctx, a, passwd)
	if err != nil {
		return err
	}
	color.New(color.FgGreen).Fprintf(a.out, "✓ Password changed for user %d; existing sessions must log in again\n", id)
	return nil
}

func (a *app) setPassword(ctx context.Context, id int64, question string) error {
	secret, err := a.prompt.newSecret(question)
	if err != nil {
		return err
	}
	digest, err := a.hasher.Hash(secret)
	if err != nil {
		return err
	}
	if err := a.db.UpdatePrincipalPassword(ctx, id, digest); err != nil {
		return err
	}
	a.record(ctx, store.AuditChangePassword, store.TargetPrincipal, id, nil)
	return nil
}

func (a *app) cmdUserList(ctx context.Context) error {
	list := policy.RequirePermission(a.engine, "user:read", func(ctx context.Context, _ policy.Token) ([]*store.Principal, error) {
		return a.db.ListPrincipals(ctx)
	})

	principals, err := guarded(ctx, a, list)
	if err != nil {
		return err
	}

	cyan := color.New(color.FgCyan)
	fmt.Fprintln(a.out)
	cyan.Fprintln(a.out, "  Collaborators")
	cyan.Fprintln(a.out, "  -------------")

	if len(principals) == 0 {
		fmt.Fprintln(a.out, "  (no collaborators)")
		fmt.Fprintln(a.out)
		return nil
	}

	w := tabwriter.NewWriter(a.out, 0, 0, 2, ' ', 0)
	fmt.Fprintln(w, "  ID\tEMAIL\tNAME\tROLE\tLAST LOGIN")
	fmt.Fprintln(w, "  --\t-----\t----\t----\t----------")
	for _, p := range principals {
		lastLogin := "never"
		if p.LastLoginAt != nil {
			lastLogin = p.LastLoginAt.Local().Format("Jan 02 15:04")
		}
		fmt.Fprintf(w, "  %s\t%s\t%s\t%s\t%s\n", strconv.FormatInt(p.ID, 10), p.Email, truncate(p.FullName, 24), p.Role, lastLogin)
	}
	w.Flush()
	fmt.Fprintln(a.out)
	return nil
}

// truncate shortens s to maxLen runes with an ellipsis.
func truncate(s string, maxLen int) string {
	r := []rune(s)
	if len(r) <= maxLen {
		return s
	}
	if maxLen <= 3 {
		return string(r[:maxLen])
	}
	return string(r[:maxLen-3]) + "..."
}
