// ABOUTME: Local session persistence for short-lived CLI processes
// ABOUTME: One owner-only JSON file holds the access/refresh pair and identity claims

package session

import (
	"encoding/json"
	"errors"
	"fmt"
	"io/fs"
	"log/slog"
	"os"
	"path/filepath"
	"time"

	"github.com/go-playground/validator/v10"
)

// ErrNoSession is returned when no usable session record exists.
var ErrNoSession = errors.New("no active session")

const (
	fileMode = 0o600
	dirMode  = 0o700
)

// Record is the persisted session. Field names are the on-disk format.
type Record struct {
	AccessToken   string    `json:"access_token" validate:"required"`
	RefreshToken  string    `json:"refresh_token" validate:"required"`
	RefreshExpiry time.Time `json:"refresh_expiry" validate:"required"`
	UserID        int64     `json:"user_id" validate:"gt=0"`
	RoleID        int       `json:"role_id" validate:"gt=0"`
	StoredAt      time.Time `json:"stored_at" validate:"required"`
}

// RefreshExpired reports whether the refresh secret has expired at now.
// The secret is still usable at the instant RefreshExpiry.
func (r *Record) RefreshExpired(now time.Time) bool {
	return now.After(r.RefreshExpiry)
}

// FileStore persists a single Record at a fixed path.
// It does not synchronize concurrent writers from different processes.
type FileStore struct {
	path     string
	now      func() time.Time
	logger   *slog.Logger
	validate *validator.Validate
}

// Option configures a FileStore.
type Option func(*FileStore)

// WithClock overrides the time source used for stored_at.
func WithClock(now func() time.Time) Option {
	return func(s *FileStore) { s.now = now }
}

// WithLogger overrides the logger.
func WithLogger(logger *slog.Logger) Option {
	return func(s *FileStore) { s.logger = logger }
}

// NewFileStore returns a store for the session file at path.
func NewFileStore(path string, opts ...Option) *FileStore {
	s := &FileStore{
		path:     path,
		now:      time.Now,
		logger:   slog.Default(),
		validate: validator.New(),
	}
	for _, opt := range opts {
		opt(s)
	}
	s.logger = s.logger.With("component", "session")
	return s
}

// Path returns the session file location.
func (s *FileStore) Path() string {
	return s.path
}

// Store writes r, stamping StoredAt, replacing any existing record.
func (s *FileStore) Store(r Record) error {
	r.StoredAt = s.now().UTC()
	r.RefreshExpiry = r.RefreshExpiry.UTC()

	if err := s.validate.Struct(r); err != nil {
		return fmt.Errorf("invalid session record: %w", err)
	}
	if err := s.write(&r); err != nil {
		return err
	}

	s.logger.Debug("stored session", "user_id", r.UserID, "role_id", r.RoleID, "refresh_expiry", r.RefreshExpiry)
	return nil
}

// Load returns the stored record. Missing, empty, unparsable or invalid content
// yields ErrNoSession; anything but a missing file is deleted so the next login
// starts clean.
func (s *FileStore) Load() (*Record, error) {
	data, err := os.ReadFile(s.path)
	if errors.Is(err, fs.ErrNotExist) {
		return nil, ErrNoSession
	}
	if err != nil {
		return nil, fmt.Errorf("reading session: %w", err)
	}

	var r Record
	if err := json.Unmarshal(data, &r); err != nil {
		s.discard("unparsable", err)
		return nil, ErrNoSession
	}
	if err := s.validate.Struct(r); err != nil {
		s.discard("invalid", err)
		return nil, ErrNoSession
	}
	return &r, nil
}

// UpdateAccessToken replaces only the access token and StoredAt.
func (s *FileStore) UpdateAccessToken(token string) error {
	if token == "" {
		return errors.New("empty access token")
	}

	r, err := s.Load()
	if err != nil {
		return err
	}
	r.AccessToken = token
	r.StoredAt = s.now().UTC()

	if err := s.write(r); err != nil {
		return err
	}

	s.logger.Debug("updated session access token", "user_id", r.UserID)
	return nil
}

// Clear deletes the record. It reports whether a record existed; a missing
// record is not an error.
func (s *FileStore) Clear() (bool, error) {
	err := os.Remove(s.path)
	if errors.Is(err, fs.ErrNotExist) {
		return false, nil
	}
	if err != nil {
		return false, fmt.Errorf("removing session: %w", err)
	}
	s.logger.Debug("cleared session")
	return true, nil
}

// write replaces the file atomically via a temp file in the same directory.
func (s *FileStore) write(r *Record) error {
	data, err := json.MarshalIndent(r, "", "  ")
	if err != nil {
		return fmt.Errorf("encoding session: %w", err)
	}

	dir := filepath.Dir(s.path)
	if err := os.MkdirAll(dir, dirMode); err != nil {
		return fmt.Errorf("creating session directory: %w", err)
	}

	tmp, err := os.CreateTemp(dir, ".session-*.tmp")
	if err != nil {
		return fmt.Errorf("creating temp session file: %w", err)
	}
	tmpName := tmp.Name()
	defer func() { _ = os.Remove(tmpName) }()

	if err := tmp.Chmod(fileMode); err != nil {
		tmp.Close()
		return fmt.Errorf("restricting session permissions: %w", err)
	}
	if _, err := tmp.Write(data); err != nil {
		tmp.Close()
		return fmt.Errorf("writing session: %w", err)
	}
	if err := tmp.Sync(); err != nil {
		tmp.Close()
		return fmt.Errorf("syncing session: %w", err)
	}
	if err := tmp.Close(); err != nil {
		return fmt.Errorf("closing session: %w", err)
	}

	if err := os.Rename(tmpName, s.path); err != nil {
		return fmt.Errorf("installing session: %w", err)
	}
	return nil
}

func (s *FileStore) discard(reason string, cause error) {
	s.logger.Warn("discarding corrupt session", "reason", reason, "error", cause)
	if err := os.Remove(s.path); err != nil && !errors.Is(err, fs.ErrNotExist) {
		s.logger.Warn("failed to remove corrupt session", "error", err)
	}
}

// DefaultPath returns the session file location.
// Priority: EPIC_CRM_SESSION env var > XDG_CONFIG_HOME/epic-crm/session.json > ~/.config/epic-crm/session.json
func DefaultPath() string {
	if envPath := os.Getenv("EPIC_CRM_SESSION"); envPath != "" {
		return envPath
	}

	configDir := os.Getenv("XDG_CONFIG_HOME")
	if configDir == "" {
		homeDir, err := os.UserHomeDir()
		if err != nil {
			return "session.json" // fallback
		}
		configDir = filepath.Join(homeDir, ".config")
	}

	return filepath.Join(configDir, "epic-crm", "session.json")
}
