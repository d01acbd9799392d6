// ABOUTME: Configuration loading and parsing for epic-crm
// ABOUTME: Supports YAML or TOML files with .env loading, env var expansion, and duration parsing

package config

import (
	"bytes"
	"errors"
	"fmt"
	"io/fs"
	"os"
	"path/filepath"
	"regexp"
	"strings"
	"time"

	"github.com/BurntSushi/toml"
	"github.com/joho/godotenv"
	"golang.org/x/crypto/bcrypt"
	"gopkg.in/yaml.v3"

	"github.com/epicevents/crm/internal/auth"
	"github.com/epicevents/crm/internal/session"
	"github.com/epicevents/crm/internal/store"
)

const (
	DefaultAccessTokenTTL  = 30 * time.Minute
	DefaultRefreshTokenTTL = 24 * time.Hour
	DefaultBcryptCost      = bcrypt.DefaultCost
	DefaultDriver          = store.DefaultDriver
	DefaultKeyID           = "primary"

	// MinSigningKeyBytes is the shortest HS256 secret Validate accepts.
	MinSigningKeyBytes = 32
)

// Permission sources.
const (
	PermissionsDatabase = "database"
	PermissionsStatic   = "static"
)

// Config represents the complete epic-crm configuration
type Config struct {
	Database    DatabaseConfig    `yaml:"database" toml:"database"`
	Auth        AuthConfig        `yaml:"auth" toml:"auth"`
	Session     SessionConfig     `yaml:"session" toml:"session"`
	Permissions PermissionsConfig `yaml:"permissions" toml:"permissions"`
	Logging     LoggingConfig     `yaml:"logging" toml:"logging"`
}

// DatabaseConfig holds database configuration
type DatabaseConfig struct {
	// Driver is the database/sql driver name: sqlite (pure Go) or sqlite3 (cgo).
	Driver string `yaml:"driver" toml:"driver"`
	Path   string `yaml:"path" toml:"path"`
}

// AuthConfig holds token signing and credential lifetimes
type AuthConfig struct {
	SigningKey         string `yaml:"signing_key" toml:"signing_key"`
	KeyID              string `yaml:"key_id" toml:"key_id"`
	PreviousSigningKey string `yaml:"previous_signing_key,omitempty" toml:"previous_signing_key,omitempty"`
	PreviousKeyID      string `yaml:"previous_key_id,omitempty" toml:"previous_key_id,omitempty"`
	BcryptCost         int    `yaml:"bcrypt_cost" toml:"bcrypt_cost"`

	AccessTokenTTL  time.Duration `yaml:"-" toml:"-"`
	RefreshTokenTTL time.Duration `yaml:"-" toml:"-"`

	// Raw string values for unmarshaling
	AccessTokenTTLRaw  string `yaml:"access_token_ttl" toml:"access_token_ttl"`
	RefreshTokenTTLRaw string `yaml:"refresh_token_ttl" toml:"refresh_token_ttl"`
}

// SessionConfig holds local session file configuration
type SessionConfig struct {
	// Path overrides the session file location. Empty means session.DefaultPath().
	Path string `yaml:"path,omitempty" toml:"path,omitempty"`
}

// PermissionsConfig selects where role grants come from
type PermissionsConfig struct {
	// Source is "database" (role_permissions table, falling back to built-in grants)
	// or "static" (built-in grants only).
	Source string `yaml:"source" toml:"source"`
}

// LoggingConfig holds logging configuration
type LoggingConfig struct {
	Level  string `yaml:"level" toml:"level"`
	Format string `yaml:"format" toml:"format"`
}

// Format is the on-disk encoding of a config file.
type Format int

const (
	FormatYAML Format = iota
	FormatTOML
)

// FormatFor picks the encoding from the file extension. Anything but .toml is YAML.
func FormatFor(path string) Format {
	if strings.EqualFold(filepath.Ext(path), ".toml") {
		return FormatTOML
	}
	return FormatYAML
}

// DefaultPath returns the config file location: $EPIC_CRM_CONFIG, else
// $XDG_CONFIG_HOME/epic-crm/config.yaml, else ~/.config/epic-crm/config.yaml.
func DefaultPath() string {
	if p := os.Getenv("EPIC_CRM_CONFIG"); p != "" {
		return p
	}
	if xdg := os.Getenv("XDG_CONFIG_HOME"); xdg != "" {
		return filepath.Join(xdg, "epic-crm", "config.yaml")
	}
	home, err := os.UserHomeDir()
	if err != nil {
		return filepath.Join(".config", "epic-crm", "config.yaml")
	}
	return filepath.Join(home, ".config", "epic-crm", "config.yaml")
}

// Load reads a configuration file from the given path and returns a parsed Config.
// A .env file next to the config, then one in the working directory, is loaded first
// without overriding variables already set. Environment variables in the format
// ${VAR_NAME} are then expanded. Duration strings are parsed into time.Duration values.
func Load(path string) (*Config, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("reading config file: %w", err)
	}

	if err := loadDotEnv(filepath.Join(filepath.Dir(path), ".env")); err != nil {
		return nil, err
	}
	if err := loadDotEnv(".env"); err != nil {
		return nil, err
	}

	return Parse(data, FormatFor(path))
}

// Parse decodes, defaults, and validates raw config content.
func Parse(data []byte, format Format) (*Config, error) {
	// Expand environment variables in the raw content
	expanded := expandEnvVars(string(data))

	var cfg Config
	switch format {
	case FormatTOML:
		if _, err := toml.Decode(expanded, &cfg); err != nil {
			return nil, fmt.Errorf("parsing config file: %w", err)
		}
	default:
		if err := yaml.Unmarshal([]byte(expanded), &cfg); err != nil {
			return nil, fmt.Errorf("parsing config file: %w", err)
		}
	}

	if err := parseDurations(&cfg); err != nil {
		return nil, fmt.Errorf("parsing durations: %w", err)
	}

	cfg.applyDefaults()

	if err := cfg.Validate(); err != nil {
		return nil, fmt.Errorf("validating config: %w", err)
	}

	return &cfg, nil
}

func loadDotEnv(path string) error {
	err := godotenv.Load(path)
	if err == nil || errors.Is(err, fs.ErrNotExist) {
		return nil
	}
	return fmt.Errorf("loading %s: %w", path, err)
}

// expandEnvVars replaces ${VAR_NAME} patterns with the corresponding environment variable values.
// If the environment variable is not set, it is replaced with an empty string.
func expandEnvVars(s string) string {
	re := regexp.MustCompile(`\$\{([^}]+)\}`)

	return re.ReplaceAllStringFunc(s, func(match string) string {
		varName := re.FindStringSubmatch(match)[1]
		return os.Getenv(varName)
	})
}

func (c *Config) applyDefaults() {
	if c.Database.Driver == "" {
		c.Database.Driver = DefaultDriver
	}
	if c.Auth.KeyID == "" {
		c.Auth.KeyID = DefaultKeyID
	}
	if c.Auth.BcryptCost == 0 {
		c.Auth.BcryptCost = DefaultBcryptCost
	}
	if c.Auth.AccessTokenTTL == 0 {
		c.Auth.AccessTokenTTL = DefaultAccessTokenTTL
	}
	if c.Auth.RefreshTokenTTL == 0 {
		c.Auth.RefreshTokenTTL = DefaultRefreshTokenTTL
	}
	if c.Permissions.Source == "" {
		c.Permissions.Source = PermissionsDatabase
	}
	if c.Logging.Level == "" {
		c.Logging.Level = "info"
	}
	if c.Logging.Format == "" {
		c.Logging.Format = "text"
	}
}

// Validate checks that all required configuration fields are present and valid.
// Returns an error describing the first validation failure encountered.
func (c *Config) Validate() error {
	switch c.Database.Driver {
	case store.DefaultDriver, store.CgoDriver:
	default:
		return fmt.Errorf("database.driver must be %s or %s, got %q", store.DefaultDriver, store.CgoDriver, c.Database.Driver)
	}
	if c.Database.Path == "" {
		return fmt.Errorf("database.path is required")
	}

	if c.Auth.SigningKey == "" {
		return fmt.Errorf("auth.signing_key is required")
	}
	if len(c.Auth.SigningKey) < MinSigningKeyBytes {
		return fmt.Errorf("auth.signing_key must be at least %d bytes", MinSigningKeyBytes)
	}
	if c.Auth.PreviousSigningKey != "" {
		if c.Auth.PreviousKeyID == "" {
			return fmt.Errorf("auth.previous_key_id is required with auth.previous_signing_key")
		}
		if c.Auth.PreviousKeyID == c.Auth.KeyID {
			return fmt.Errorf("auth.previous_key_id must differ from auth.key_id")
		}
	}
	if c.Auth.BcryptCost < bcrypt.MinCost || c.Auth.BcryptCost > bcrypt.MaxCost {
		return fmt.Errorf("auth.bcrypt_cost must be between %d and %d", bcrypt.MinCost, bcrypt.MaxCost)
	}
	if c.Auth.AccessTokenTTL < 0 {
		return fmt.Errorf("auth.access_token_ttl must be positive")
	}
	if c.Auth.RefreshTokenTTL < 0 {
		return fmt.Errorf("auth.refresh_token_ttl must be positive")
	}
	if c.Auth.RefreshTokenTTL < c.Auth.AccessTokenTTL {
		return fmt.Errorf("auth.refresh_token_ttl must not be shorter than auth.access_token_ttl")
	}

	switch c.Permissions.Source {
	case PermissionsDatabase, PermissionsStatic:
	default:
		return fmt.Errorf("permissions.source must be %s or %s, got %q", PermissionsDatabase, PermissionsStatic, c.Permissions.Source)
	}

	switch strings.ToLower(c.Logging.Level) {
	case "debug", "info", "warn", "error":
	default:
		return fmt.Errorf("logging.level must be debug, info, warn or error, got %q", c.Logging.Level)
	}
	switch c.Logging.Format {
	case "text", "json":
	default:
		return fmt.Errorf("logging.format must be text or json, got %q", c.Logging.Format)
	}

	return nil
}

// SigningKeys returns the key set for the token codec.
func (c *Config) SigningKeys() auth.KeySet {
	keys := auth.KeySet{
		Current: auth.SigningKey{ID: c.Auth.KeyID, Secret: []byte(c.Auth.SigningKey)},
	}
	if c.Auth.PreviousSigningKey != "" {
		keys.Previous = &auth.SigningKey{ID: c.Auth.PreviousKeyID, Secret: []byte(c.Auth.PreviousSigningKey)}
	}
	return keys
}

// SessionPath returns the configured session file, or the default location.
func (c *Config) SessionPath() string {
	if p := os.Getenv("EPIC_CRM_SESSION"); p != "" {
		return p
	}
	if c.Session.Path != "" {
		return c.Session.Path
	}
	return session.DefaultPath()
}

// Encode renders cfg in the given format. Durations are written from their parsed values.
func Encode(cfg *Config, format Format) ([]byte, error) {
	out := *cfg
	if out.Auth.AccessTokenTTL != 0 {
		out.Auth.AccessTokenTTLRaw = out.Auth.AccessTokenTTL.String()
	}
	if out.Auth.RefreshTokenTTL != 0 {
		out.Auth.RefreshTokenTTLRaw = out.Auth.RefreshTokenTTL.String()
	}

	if format == FormatTOML {
		var buf bytes.Buffer
		if err := toml.NewEncoder(&buf).Encode(out); err != nil {
			return nil, fmt.Errorf("encoding config: %w", err)
		}
		return buf.Bytes(), nil
	}
	data, err := yaml.Marshal(out)
	if err != nil {
		return nil, fmt.Errorf("encoding config: %w", err)
	}
	return data, nil
}

// Write saves cfg to path, creating the directory. The file holds the signing key, so it is 0600.
func Write(path string, cfg *Config) error {
	data, err := Encode(cfg, FormatFor(path))
	if err != nil {
		return err
	}
	if err := os.MkdirAll(filepath.Dir(path), 0o700); err != nil {
		return fmt.Errorf("creating config directory: %w", err)
	}
	if err := os.WriteFile(path, data, 0o600); err != nil {
		return fmt.Errorf("writing config file: %w", err)
	}
	return nil
}

// parseDurations converts the raw duration strings into time.Duration values
func parseDurations(cfg *Config) error {
	var err error

	if cfg.Auth.AccessTokenTTLRaw != "" {
		cfg.Auth.AccessTokenTTL, err = time.ParseDuration(cfg.Auth.AccessTokenTTLRaw)
		if err != nil {
			return fmt.Errorf("parsing access_token_ttl %q: %w", cfg.Auth.AccessTokenTTLRaw, err)
		}
	}

	if cfg.Auth.RefreshTokenTTLRaw != "" {
		cfg.Auth.RefreshTokenTTL, err = time.ParseDuration(cfg.Auth.RefreshTokenTTLRaw)
		if err != nil {
			return fmt.Errorf("parsing refresh_token_ttl %q: %w", cfg.Auth.RefreshTokenTTLRaw, err)
		}
	}

	return nil
}
