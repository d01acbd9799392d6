// ABOUTME: Interactive config writer with a freshly generated signing key
// ABOUTME: Works before any config or database exists

package main

import (
	"crypto/rand"
	"encoding/base64"
	"fmt"
	"io"
	"os"
	"path/filepath"
	"strconv"
	"strings"
	"time"

	"github.com/fatih/color"

	"github.com/epicevents/crm/internal/config"
)

// getDataPath returns the epic-crm data directory.
// Priority: XDG_DATA_HOME/epic-crm > ~/.local/share/epic-crm
func getDataPath() string {
	dataDir := os.Getenv("XDG_DATA_HOME")
	if dataDir == "" {
		homeDir, err := os.UserHomeDir()
		if err != nil {
			return "data"
		}
		dataDir = filepath.Join(homeDir, ".local", "share")
	}
	return filepath.Join(dataDir, "epic-crm")
}

func generateSigningKey() (string, error) {
	buf := make([]byte, 32)
	if _, err := rand.Read(buf); err != nil {
		return "", fmt.Errorf("generating signing key: %w", err)
	}
	return base64.RawURLEncoding.EncodeToString(buf), nil
}

func runInit(p *prompter, out io.Writer, args []string) error {
	if len(args) > 0 {
		return fmt.Errorf("init takes no arguments")
	}

	fmt.Fprintln(out, "epic-crm configuration setup")
	fmt.Fprintln(out, "============================")
	fmt.Fprintln(out)

	outputFile := p.ask("Config file path (.yaml or .toml)", config.DefaultPath())
	if _, err := os.Stat(outputFile); err == nil {
		if !p.confirm("File exists. Overwrite?") {
			fmt.Fprintln(out, "Aborted.")
			return nil
		}
	}

	fmt.Fprintln(out, "\n--- Database ---")
	dbPath := p.ask("SQLite database path", filepath.Join(getDataPath(), "crm.db"))
	driver := p.ask("Driver (sqlite/sqlite3)", config.DefaultDriver)

	fmt.Fprintln(out, "\n--- Authentication ---")
	accessTTL, err := time.ParseDuration(p.ask("Access token lifetime", config.DefaultAccessTokenTTL.String()))
	if err != nil {
		return fmt.Errorf("access token lifetime: %w", err)
	}
	refreshTTL, err := time.ParseDuration(p.ask("Session lifetime", config.DefaultRefreshTokenTTL.String()))
	if err != nil {
		return fmt.Errorf("session lifetime: %w", err)
	}
	cost, err := strconv.Atoi(p.ask("bcrypt cost", strconv.Itoa(config.DefaultBcryptCost)))
	if err != nil {
		return fmt.Errorf("bcrypt cost: %w", err)
	}

	fmt.Fprintln(out, "\n--- Permissions ---")
	source := p.ask("Permission source (database/static)", config.PermissionsDatabase)

	fmt.Fprintln(out, "\n--- Logging ---")
	level := p.ask("Log level (debug/info/warn/error)", "warn")
	format := p.ask("Log format (text/json)", "text")

	key, err := generateSigningKey()
	if err != nil {
		return err
	}

	cfg := &config.Config{
		Database: config.DatabaseConfig{Driver: driver, Path: dbPath},
		Auth: config.AuthConfig{
			SigningKey:      key,
			KeyID:           time.Now().UTC().Format("2006-01"),
			BcryptCost:      cost,
			AccessTokenTTL:  accessTTL,
			RefreshTokenTTL: refreshTTL,
		},
		Permissions: config.PermissionsConfig{Source: strings.ToLower(source)},
		Logging:     config.LoggingConfig{Level: strings.ToLower(level), Format: strings.ToLower(format)},
	}
	if err := cfg.Validate(); err != nil {
		return err
	}

	if err := config.Write(outputFile, cfg); err != nil {
		return err
	}
	if err := os.MkdirAll(filepath.Dir(dbPath), 0o700); err != nil {
		return fmt.Errorf("creating data directory: %w", err)
	}

	green := color.New(color.FgGreen)
	yellow := color.New(color.FgYellow)
	green.Fprintf(out, "\n✓ Config written to %s\n", outputFile)
	fmt.Fprintf(out, "  Signing key id: %s\n", cfg.Auth.KeyID)
	fmt.Fprintln(out)
	yellow.Fprintln(out, "  Next:")
	if outputFile != config.DefaultPath() {
		fmt.Fprintf(out, "    export EPIC_CRM_CONFIG=%s\n", outputFile)
	}
	fmt.Fprintln(out, "    epic-crm bootstrap --email you@example.com --name \"Your Name\"")
	fmt.Fprintln(out)
	return nil
}
