// ABOUTME: Entry point for the epic-crm command line client
// ABOUTME: Dispatches subcommands and maps auth and policy failures to one-line messages

package main

import (
	"context"
	"errors"
	"fmt"
	"io"
	"os"
	"os/signal"
	"syscall"

	"github.com/fatih/color"

	"github.com/epicevents/crm/internal/auth"
	"github.com/epicevents/crm/internal/config"
	"github.com/epicevents/crm/internal/policy"
	"github.com/epicevents/crm/internal/store"
)

// version is set at build time.
var version = "dev"

const banner = `
            _
  ___ _ __ (_) ___       ___ _ __ _ __ ___
 / _ \ '_ \| |/ __|____ / __| '__| '_ ' _ \
|  __/ |_) | | (_|_____| (__| |  | | | | | |
 \___| .__/|_|\___|     \___|_|  |_| |_| |_|
     |_|
`

func main() {
	if len(os.Args) < 2 {
		printUsage(os.Stdout)
		os.Exit(1)
	}

	ctx, cancel := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer cancel()

	if err := run(ctx, os.Args[1:], os.Stdin, os.Stdout); err != nil {
		color.New(color.FgRed).Fprintf(os.Stderr, "Error: %s\n", describeError(err))
		os.Exit(1)
	}
}

// run executes one command. Commands that need no database are handled here;
// the rest go through an app built from the loaded config.
func run(ctx context.Context, args []string, stdin io.Reader, stdout io.Writer) error {
	cmd, rest := args[0], args[1:]

	switch cmd {
	case "help", "-h", "--help":
		printUsage(stdout)
		return nil
	case "version", "--version":
		fmt.Fprintf(stdout, "epic-crm %s\n", version)
		return nil
	case "init":
		return runInit(newPrompter(stdin, stdout), stdout, rest)
	}

	configPath := config.DefaultPath()
	cfg, err := config.Load(configPath)
	if err != nil {
		return fmt.Errorf("loading config %s: %w", configPath, err)
	}

	a, err := newApp(ctx, cfg, setupLogger(cfg.Logging, os.Stderr), stdin, stdout)
	if err != nil {
		return err
	}
	defer a.Close()

	return a.dispatch(ctx, cmd, rest)
}

func (a *app) dispatch(ctx context.Context, cmd string, args []string) error {
	switch cmd {
	case "login":
		return a.cmdLogin(ctx, args)
	case "logout":
		return a.cmdLogout(ctx)
	case "refresh":
		return a.cmdRefresh(ctx)
	case "whoami", "me":
		return a.cmdWhoami(ctx)
	case "can":
		return a.cmdCan(ctx, args)
	case "token":
		return a.cmdToken(ctx, args)
	case "bootstrap":
		return a.cmdBootstrap(ctx, args)
	case "user", "users":
		return a.cmdUser(ctx, args)
	case "client", "clients":
		return a.cmdClient(ctx, args)
	case "contract", "contracts":
		return a.cmdContract(ctx, args)
	case "event", "events":
		return a.cmdEvent(ctx, args)
	case "audit":
		return a.cmdAudit(ctx, args)
	default:
		printUsage(a.out)
		return fmt.Errorf("unknown command: %s", cmd)
	}
}

// describeError turns the auth and policy taxonomy into something a user can act on.
func describeError(err error) string {
	switch {
	case errors.Is(err, policy.ErrPermissionDenied):
		var denied *policy.DeniedError
		if errors.As(err, &denied) {
			if errors.Is(err, auth.ErrExpiredCredential) {
				return "session expired, run `epic-crm login`"
			}
			if errors.Is(err, auth.ErrNoSession) {
				return "not logged in, run `epic-crm login`"
			}
			return "permission denied: you may not " + denied.Permission.Humanize()
		}
		return err.Error()
	case errors.Is(err, policy.ErrLoginRequired), errors.Is(err, auth.ErrNoSession):
		return "not logged in, run `epic-crm login`"
	case errors.Is(err, auth.ErrExpiredCredential):
		return "session expired, run `epic-crm login`"
	case errors.Is(err, auth.ErrUnknownPrincipal):
		return "no account with that email"
	case errors.Is(err, auth.ErrInvalidCredential):
		return "invalid credentials"
	case errors.Is(err, store.ErrEmailExists):
		return "an account with that email already exists"
	default:
		return err.Error()
	}
}

func printUsage(w io.Writer) {
	cyan := color.New(color.FgCyan)
	yellow := color.New(color.FgYellow)

	cyan.Fprint(w, banner)
	fmt.Fprintln(w)
	fmt.Fprintln(w, "Usage: epic-crm <command> [args]")
	fmt.Fprintln(w)
	yellow.Fprintln(w, "Session:")
	fmt.Fprintln(w, "  login [--email EMAIL]          Log in and store a local session")
	fmt.Fprintln(w, "  logout                         Revoke the refresh secret and remove the session")
	fmt.Fprintln(w, "  refresh                        Rotate the refresh secret and get a new access token")
	fmt.Fprintln(w, "  whoami                         Show the logged-in principal and its permissions")
	fmt.Fprintln(w, "  can <permission>               Check a permission, e.g. client:update:own")
	fmt.Fprintln(w, "  token reissue                  Re-sign the access token with the current key")
	fmt.Fprintln(w)
	yellow.Fprintln(w, "Records:")
	fmt.Fprintln(w, "  user create|passwd|list        Manage collaborators")
	fmt.Fprintln(w, "  client create|update|list      Manage clients")
	fmt.Fprintln(w, "  contract create|update         Manage contracts")
	fmt.Fprintln(w, "  event create|update            Manage events")
	fmt.Fprintln(w, "  audit [--principal ID] [--target T/ID] [--action A,B] [--failures]")
	fmt.Fprintln(w, "                                 Show the audit log")
	fmt.Fprintln(w)
	yellow.Fprintln(w, "Setup:")
	fmt.Fprintln(w, "  init                           Create a new config file interactively")
	fmt.Fprintln(w, "  bootstrap --email E --name N   Create the first management account")
	fmt.Fprintln(w)
	yellow.Fprintln(w, "Environment:")
	fmt.Fprintln(w, "  EPIC_CRM_CONFIG                Config file (default: ~/.config/epic-crm/config.yaml)")
	fmt.Fprintln(w, "  EPIC_CRM_SESSION               Session file (default: ~/.config/epic-crm/session.json)")
	fmt.Fprintln(w)
}
