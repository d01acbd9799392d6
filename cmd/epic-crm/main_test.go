// ABOUTME: End-to-end tests driving CLI commands against a temp database and session file
// ABOUTME: Each command runs through a fresh app, like separate process invocations

package main

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"os"
	"path/filepath"
	"strings"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/epicevents/crm/internal/auth"
	"github.com/epicevents/crm/internal/config"
	"github.com/epicevents/crm/internal/policy"
	"github.com/epicevents/crm/internal/session"
	"github.com/epicevents/crm/internal/store"
)

const testPassword = "correct horse"

type testEnv struct {
	t      *testing.T
	dir    string
	cfg    *config.Config
	now    time.Time
	logger *slog.Logger
}

func newTestEnv(t *testing.T) *testEnv {
	t.Helper()
	t.Setenv("EPIC_CRM_SESSION", "")

	dir := t.TempDir()
	raw := fmt.Sprintf(`
database:
  path: %q
auth:
  signing_key: "cli-test-signing-key-0123456789abcdef"
  key_id: "test"
  bcrypt_cost: 4
session:
  path: %q
logging:
  level: "error"
`, filepath.Join(dir, "crm.db"), filepath.Join(dir, "session.json"))

	cfg, err := config.Parse([]byte(raw), config.FormatYAML)
	require.NoError(t, err)

	return &testEnv{
		t:      t,
		dir:    dir,
		cfg:    cfg,
		now:    time.Date(2026, 6, 1, 9, 0, 0, 0, time.UTC),
		logger: slog.New(slog.NewTextHandler(io.Discard, nil)),
	}
}

// run executes one command with input as stdin and returns its stdout.
func (e *testEnv) run(input string, args ...string) (string, error) {
	e.t.Helper()
	var out bytes.Buffer
	a, err := newAppWithClock(context.Background(), e.cfg, e.logger, strings.NewReader(input), &out, func() time.Time { return e.now })
	require.NoError(e.t, err)
	defer a.Close()

	err = a.dispatch(context.Background(), args[0], args[1:])
	return out.String(), err
}

func (e *testEnv) mustRun(input string, args ...string) string {
	e.t.Helper()
	out, err := e.run(input, args...)
	require.NoError(e.t, err, "epic-crm %s", strings.Join(args, " "))
	return out
}

func (e *testEnv) seed(email, name string, role store.RoleID) int64 {
	e.t.Helper()
	s, err := store.NewSQLiteStore(e.cfg.Database.Path)
	require.NoError(e.t, err)
	defer s.Close()

	hasher, err := auth.NewHasher(4)
	require.NoError(e.t, err)
	digest, err := hasher.Hash(testPassword)
	require.NoError(e.t, err)

	p := &store.Principal{Email: email, FullName: name, Role: role, PasswordHash: digest}
	require.NoError(e.t, s.CreatePrincipal(context.Background(), p))
	return p.ID
}

func (e *testEnv) login(email string) {
	e.t.Helper()
	e.mustRun(testPassword+"\n", "login", "--email", email)
}

func (e *testEnv) session() *session.Record {
	e.t.Helper()
	rec, err := session.NewFileStore(e.cfg.SessionPath()).Load()
	require.NoError(e.t, err)
	return rec
}

func TestLoginWhoamiLogout(t *testing.T) {
	env := newTestEnv(t)
	bob := env.seed("bob@epic.events", "Bob Commercial", store.RoleCommercial)

	out := env.mustRun(testPassword+"\n", "login", "--email", "bob@epic.events")
	assert.Contains(t, out, "Logged in as bob@epic.events (commercial)")

	rec := env.session()
	assert.Equal(t, bob, rec.UserID)
	assert.Equal(t, int(store.RoleCommercial), rec.RoleID)

	out = env.mustRun("", "whoami")
	assert.Contains(t, out, "Bob Commercial")
	assert.Contains(t, out, "client:update:own")
	assert.Contains(t, out, "update own client")

	assert.Contains(t, env.mustRun("", "can", "client:create"), "yes: you may create client")
	assert.Contains(t, env.mustRun("", "can", "user:create"), "no: you may not create user")

	assert.Contains(t, env.mustRun("", "logout"), "logged out")
	assert.Contains(t, env.mustRun("", "logout"), "no active session")

	_, err := env.run("", "whoami")
	assert.ErrorIs(t, err, policy.ErrLoginRequired)
	assert.Equal(t, "not logged in, run `epic-crm login`", describeError(err))
}

func TestLogin_Failures(t *testing.T) {
	env := newTestEnv(t)
	env.seed("bob@epic.events", "Bob", store.RoleCommercial)

	_, err := env.run("wrong\n", "login", "--email", "bob@epic.events")
	assert.ErrorIs(t, err, auth.ErrInvalidCredential)
	assert.Equal(t, "invalid credentials", describeError(err))

	_, err = env.run(testPassword+"\n", "login", "--email", "nobody@epic.events")
	assert.ErrorIs(t, err, auth.ErrUnknownPrincipal)

	_, statErr := os.Stat(env.cfg.SessionPath())
	assert.True(t, os.IsNotExist(statErr), "failed logins must not write a session")
}

func TestExpiredAccessTokenRefreshesOnce(t *testing.T) {
	env := newTestEnv(t)
	env.seed("sam@epic.events", "Sam", store.RoleSupport)
	env.login("sam@epic.events")
	before := env.session()

	env.now = env.now.Add(45 * time.Minute)
	env.mustRun("", "whoami")

	after := env.session()
	assert.NotEqual(t, before.AccessToken, after.AccessToken)
	assert.NotEqual(t, before.RefreshToken, after.RefreshToken)

	// Past the session lifetime nothing can be refreshed.
	env.now = env.now.Add(25 * time.Hour)
	_, err := env.run("", "client", "list")
	assert.ErrorIs(t, err, auth.ErrExpiredCredential)
	assert.Equal(t, "session expired, run `epic-crm login`", describeError(err))
}

func TestRefreshAndReissue(t *testing.T) {
	env := newTestEnv(t)
	env.seed("ann@epic.events", "Ann", store.RoleManagement)

	_, err := env.run("", "refresh")
	assert.ErrorIs(t, err, auth.ErrNoSession)

	env.login("ann@epic.events")
	first := env.session()

	env.now = env.now.Add(time.Minute)
	assert.Contains(t, env.mustRun("", "refresh"), "Session refreshed")
	assert.NotEqual(t, first.RefreshToken, env.session().RefreshToken)

	env.now = env.now.Add(time.Minute)
	out := env.mustRun("", "token", "reissue")
	assert.Contains(t, out, "re-signed with key test")
}

func TestNotLoggedInIsDenied(t *testing.T) {
	env := newTestEnv(t)

	_, err := env.run("", "client", "create", "--name", "Kevin", "--email", "kevin@startup.io")
	require.Error(t, err)
	assert.ErrorIs(t, err, policy.ErrPermissionDenied)
	assert.Equal(t, "not logged in, run `epic-crm login`", describeError(err))
}

func TestClientOwnership(t *testing.T) {
	env := newTestEnv(t)
	env.seed("bob@epic.events", "Bob", store.RoleCommercial)
	env.seed("carol@epic.events", "Carol", store.RoleCommercial)
	env.seed("sam@epic.events", "Sam", store.RoleSupport)

	env.login("bob@epic.events")
	out := env.mustRun("", "client", "create", "--name", "Kevin Casey", "--email", "kevin@startup.io", "--company", "Cool Startup")
	assert.Contains(t, out, "Created client Kevin Casey (id 1)")

	env.mustRun("", "client", "update", "1", "--phone", "+678 123 456")

	env.login("carol@epic.events")
	_, err := env.run("", "client", "update", "1", "--phone", "000")
	assert.ErrorIs(t, err, policy.ErrPermissionDenied)
	assert.Equal(t, "permission denied: you may not update client", describeError(err))

	env.login("sam@epic.events")
	_, err = env.run("", "client", "create", "--name", "X", "--email", "x@example.com")
	assert.ErrorIs(t, err, policy.ErrPermissionDenied)

	out = env.mustRun("", "client", "list")
	assert.Contains(t, out, "Kevin Casey")
	assert.Contains(t, out, "Cool Startup")
}

func TestClientCreate_ValidationFailure(t *testing.T) {
	env := newTestEnv(t)
	env.seed("bob@epic.events", "Bob", store.RoleCommercial)
	env.login("bob@epic.events")

	_, err := env.run("", "client", "create", "--name", "Kevin", "--email", "not-an-email")
	require.Error(t, err)
	assert.Contains(t, err.Error(), "email")
}

func TestEventLifecycle(t *testing.T) {
	env := newTestEnv(t)
	env.seed("ann@epic.events", "Ann", store.RoleManagement)
	env.seed("bob@epic.events", "Bob", store.RoleCommercial)
	env.seed("carol@epic.events", "Carol", store.RoleCommercial)
	sam := env.seed("sam@epic.events", "Sam", store.RoleSupport)
	env.seed("sue@epic.events", "Sue", store.RoleSupport)

	env.login("bob@epic.events")
	env.mustRun("", "client", "create", "--name", "Kevin", "--email", "kevin@startup.io")

	// Only management creates contracts.
	_, err := env.run("", "contract", "create", "--client-id", "1", "--amount", "1000")
	assert.ErrorIs(t, err, policy.ErrPermissionDenied)

	env.login("ann@epic.events")
	out := env.mustRun("", "contract", "create", "--client-id", "1", "--amount", "1500.50")
	assert.Contains(t, out, "Created contract 1 for client 1 (1500.50)")

	// Unsigned contracts take no events.
	env.login("bob@epic.events")
	_, err = env.run("", "event", "create", "--contract-id", "1", "--name", "Launch")
	assert.ErrorContains(t, err, "not signed")
	env.mustRun("", "contract", "update", "1", "--signed", "yes", "--due", "500")

	out = env.mustRun("", "event", "create", "--contract-id", "1", "--name", "Launch", "--attendees", "75", "--starts", "2026-07-01 18:00", "--ends", "2026-07-01 23:00")
	assert.Contains(t, out, "Created event Launch (id 1)")

	env.login("carol@epic.events")
	_, err = env.run("", "event", "create", "--contract-id", "1", "--name", "Other")
	assert.ErrorIs(t, err, policy.ErrPermissionDenied)

	// Management assigns support.
	env.login("ann@epic.events")
	_, err = env.run("", "event", "create", "--contract-id", "1", "--name", "Nope")
	assert.ErrorIs(t, err, policy.ErrPermissionDenied)
	env.mustRun("", "event", "update", "1", "--support-id", fmt.Sprint(sam))

	env.login("sue@epic.events")
	_, err = env.run("", "event", "update", "1", "--notes", "mine now")
	assert.ErrorIs(t, err, policy.ErrPermissionDenied)

	env.login("sam@epic.events")
	out = env.mustRun("", "event", "update", "1", "--notes", "DJ confirmed")
	assert.Contains(t, out, "Updated event 1: notes")
	_, err = env.run("", "event", "update", "1", "--unassign")
	assert.ErrorIs(t, err, policy.ErrPermissionDenied)

	env.login("ann@epic.events")
	out = env.mustRun("", "audit", "--action", "update_event")
	assert.Contains(t, out, "update_event")
	assert.Contains(t, out, "event/1")

	out = env.mustRun("", "audit", "--target", "event/1")
	assert.Contains(t, out, "create_event")
	assert.NotContains(t, out, "create_client")

	out = env.mustRun("", "audit", "--principal", fmt.Sprint(sam), "--failures")
	assert.Contains(t, out, "permission_denied")
	assert.Contains(t, out, fmt.Sprintf("principal/%d", sam))
	assert.NotContains(t, out, "update_event")

	_, err = env.run("", "audit", "--target", "invoice/1")
	assert.ErrorContains(t, err, "unknown audit target")
}

func TestUserCommands(t *testing.T) {
	env := newTestEnv(t)

	out := env.mustRun("pw-1234\npw-1234\n", "bootstrap", "--email", "ann@epic.events", "--name", "Ann")
	assert.Contains(t, out, "Created management account ann@epic.events (id 1)")

	_, err := env.run("pw\npw\n", "bootstrap", "--email", "x@epic.events", "--name", "X")
	assert.ErrorContains(t, err, "bootstrap already complete")

	env.mustRun("pw-1234\n", "login", "--email", "ann@epic.events")
	out = env.mustRun("first-pass\nfirst-pass\n", "user", "create", "--email", "bob@epic.events", "--name", "Bob", "--role", "commercial")
	assert.Contains(t, out, "Created commercial account bob@epic.events (id 2)")

	_, err = env.run("a\na\n", "user", "create", "--email", "bob@epic.events", "--name", "Bob 2", "--role", "support")
	assert.ErrorIs(t, err, store.ErrEmailExists)

	out = env.mustRun("", "user", "list")
	assert.Contains(t, out, "ann@epic.events")
	assert.Contains(t, out, "bob@epic.events")
	assert.Contains(t, out, "never")

	// Bob changes his own password, then may not create users.
	env.mustRun("first-pass\n", "login", "--email", "bob@epic.events")
	_, err = env.run("wrong\n", "user", "passwd")
	assert.ErrorIs(t, err, auth.ErrInvalidCredential)
	env.mustRun("first-pass\nsecond-pass\nsecond-pass\n", "user", "passwd")

	_, err = env.run("second-pass\n", "login", "--email", "bob@epic.events")
	require.NoError(t, err)
	_, err = env.run("x\nx\n", "user", "create", "--email", "c@epic.events", "--name", "C", "--role", "support")
	assert.ErrorIs(t, err, policy.ErrPermissionDenied)
	_, err = env.run("", "user", "list")
	assert.ErrorIs(t, err, policy.ErrPermissionDenied)
}

func TestUnknownCommand(t *testing.T) {
	env := newTestEnv(t)
	out, err := env.run("", "frobnicate")
	assert.Error(t, err)
	assert.Contains(t, out, "Usage: epic-crm")
}

func TestInit_WritesLoadableConfig(t *testing.T) {
	dir := t.TempDir()
	t.Setenv("XDG_DATA_HOME", filepath.Join(dir, "data"))
	t.Setenv("EPIC_CRM_CONFIG", "")
	path := filepath.Join(dir, "conf", "config.toml")

	var out bytes.Buffer
	err := runInit(newPrompter(strings.NewReader(path+"\n"), &out), &out, nil)
	require.NoError(t, err)
	assert.Contains(t, out.String(), "Config written to "+path)
	assert.Contains(t, out.String(), "export EPIC_CRM_CONFIG="+path)

	cfg, err := config.Load(path)
	require.NoError(t, err)
	assert.Equal(t, filepath.Join(dir, "data", "epic-crm", "crm.db"), cfg.Database.Path)
	assert.Equal(t, 30*time.Minute, cfg.Auth.AccessTokenTTL)
	assert.GreaterOrEqual(t, len(cfg.Auth.SigningKey), config.MinSigningKeyBytes)

	info, err := os.Stat(filepath.Join(dir, "data", "epic-crm"))
	require.NoError(t, err)
	assert.True(t, info.IsDir())
}

func TestDescribeError(t *testing.T) {
	tests := []struct {
		err  error
		want string
	}{
		{fmt.Errorf("wrapped: %w", auth.ErrUnknownPrincipal), "no account with that email"},
		{auth.ErrExpiredCredential, "session expired, run `epic-crm login`"},
		{auth.ErrNoSession, "not logged in, run `epic-crm login`"},
		{store.ErrEmailExists, "an account with that email already exists"},
		{&policy.DeniedError{Permission: policy.MustParse("event:update:assigned")}, "permission denied: you may not update assigned event"},
		{&policy.DeniedError{Permission: policy.MustParse("client:read"), Cause: auth.ErrExpiredCredential}, "session expired, run `epic-crm login`"},
		{errors.New("disk full"), "disk full"},
	}
	for _, tt := range tests {
		assert.Equal(t, tt.want, describeError(tt.err))
	}
}
