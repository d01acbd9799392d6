package main

import (
	"bytes"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/epicevents/crm/internal/config"
	"github.com/epicevents/crm/internal/store"
)

func TestParseArgs(t *testing.T) {
	parsed, err := parseArgs([]string{"7", "--name", "Kevin", "--email=k@x.io", "--unassign"}, []string{"name", "email"}, "unassign")
	require.NoError(t, err)

	assert.Equal(t, []string{"7"}, parsed.positional)
	v, ok := parsed.get("name")
	assert.True(t, ok)
	assert.Equal(t, "Kevin", v)
	v, _ = parsed.get("email")
	assert.Equal(t, "k@x.io", v)
	assert.True(t, parsed.bool("unassign"))

	id, err := parsed.id(0, "client")
	require.NoError(t, err)
	assert.Equal(t, int64(7), id)

	_, err = parsed.id(1, "client")
	assert.EqualError(t, err, "client id is required")
}

func TestParseArgs_Errors(t *testing.T) {
	_, err := parseArgs([]string{"--bogus", "x"}, []string{"name"})
	assert.EqualError(t, err, "unknown flag: --bogus")

	_, err = parseArgs([]string{"--name"}, []string{"name"})
	assert.EqualError(t, err, "--name requires a value")

	parsed, err := parseArgs([]string{"abc"}, nil)
	require.NoError(t, err)
	_, err = parsed.id(0, "event")
	assert.EqualError(t, err, `invalid event id "abc"`)
}

func TestFieldTable_Client(t *testing.T) {
	parsed, err := parseArgs([]string{"--name", "  Kevin Casey ", "--email", "kevin@startup.io"}, fieldNames(clientFields))
	require.NoError(t, err)

	var c store.Client
	changed, err := fillFields(&c, clientFields, parsed, nil)
	require.NoError(t, err)
	assert.Equal(t, []string{"name", "email"}, changed)
	assert.Equal(t, "Kevin Casey", c.FullName)
	assert.Equal(t, "kevin@startup.io", c.Email)
	assert.Empty(t, c.Phone)
}

func TestFieldTable_PromptsForMissing(t *testing.T) {
	parsed, err := parseArgs([]string{"--name", "Kevin"}, fieldNames(clientFields))
	require.NoError(t, err)

	var out bytes.Buffer
	p := newPrompter(strings.NewReader("kevin@startup.io\n\nCool Startup\n"), &out)

	var c store.Client
	changed, err := fillFields(&c, clientFields, parsed, p)
	require.NoError(t, err)
	assert.Equal(t, []string{"name", "email", "company"}, changed)
	assert.Equal(t, "Cool Startup", c.Company)
	assert.Contains(t, out.String(), "Email: ")
	assert.NotContains(t, out.String(), "Full name")
}

func TestFieldTable_Validation(t *testing.T) {
	tests := []struct {
		name string
		args []string
		want string
	}{
		{"missing required", []string{"--name", ""}, `name: "" fails "required"`},
		{"bad email", []string{"--name", "K", "--email", "nope"}, `email: "nope" fails "email"`},
		{"too long", []string{"--name", strings.Repeat("x", 101), "--email", "k@x.io"}, `fails "max"`},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			parsed, err := parseArgs(tt.args, fieldNames(clientFields))
			require.NoError(t, err)
			var c store.Client
			_, err = fillFields(&c, clientFields, parsed, nil)
			require.Error(t, err)
			assert.Contains(t, err.Error(), tt.want)
		})
	}
}

func TestFieldTable_ContractAndEvent(t *testing.T) {
	parsed, err := parseArgs([]string{"--client-id", "3", "--amount", "1200.5", "--signed", "yes"}, fieldNames(contractFields))
	require.NoError(t, err)
	var c store.Contract
	_, err = fillFields(&c, contractFields, parsed, nil)
	require.NoError(t, err)
	assert.Equal(t, int64(3), c.ClientID)
	assert.Equal(t, int64(120050), c.AmountCents)
	assert.True(t, c.Signed)

	parsed, err = parseArgs([]string{"--signed", "maybe"}, fieldNames(contractFields))
	require.NoError(t, err)
	_, err = fillFields(&c, contractFields, parsed, nil)
	assert.ErrorContains(t, err, "oneof")

	parsed, err = parseArgs([]string{"--name", "Gala", "--starts", "2026-07-01 18:00", "--attendees", "40"}, fieldNames(eventFields))
	require.NoError(t, err)
	var e store.Event
	_, err = fillFields(&e, eventFields, parsed, nil)
	require.NoError(t, err)
	require.NotNil(t, e.StartsAt)
	assert.Equal(t, 18, e.StartsAt.Hour())
	assert.Equal(t, 40, e.Attendees)
	assert.Nil(t, e.EndsAt)

	parsed, err = parseArgs([]string{"--starts", "tomorrow"}, fieldNames(eventFields))
	require.NoError(t, err)
	_, err = fillFields(&e, eventFields, parsed, nil)
	assert.ErrorContains(t, err, "datetime")
}

func TestParseCents(t *testing.T) {
	tests := map[string]int64{"0": 0, "12": 1200, "12.5": 1250, "12.05": 1205, "1500.50": 150050}
	for in, want := range tests {
		got, err := parseCents(in)
		require.NoError(t, err, in)
		assert.Equal(t, want, got, in)
	}

	for _, bad := range []string{"1.234", "-3", "abc", "1.x"} {
		_, err := parseCents(bad)
		assert.Error(t, err, bad)
	}

	assert.Equal(t, "1500.50", formatCents(150050))
	assert.Equal(t, "0.05", formatCents(5))
}

func TestTruncate(t *testing.T) {
	assert.Equal(t, "short", truncate("short", 10))
	assert.Equal(t, "abcdefg...", truncate("abcdefghijklmnop", 10))
	assert.Equal(t, "éé", truncate("ééé", 2))
}

func TestSetupLogger_ColorHandler(t *testing.T) {
	var buf bytes.Buffer
	logger := setupLogger(config.LoggingConfig{Level: "info", Format: "text"}, &buf)

	logger.Debug("hidden")
	logger.With("component", "auth").WithGroup("req").Info("logged in", "principal_id", 5)

	out := buf.String()
	assert.NotContains(t, out, "hidden")
	assert.Contains(t, out, "INF logged in")
	assert.Contains(t, out, "component=auth")
	assert.Contains(t, out, "req.principal_id=5")
}

func TestSetupLogger_JSON(t *testing.T) {
	var buf bytes.Buffer
	logger := setupLogger(config.LoggingConfig{Level: "warn", Format: "json"}, &buf)

	logger.Info("dropped")
	logger.Warn("kept", "n", 1)

	assert.NotContains(t, buf.String(), "dropped")
	assert.Contains(t, buf.String(), `"msg":"kept"`)
}
