// ABOUTME: Tests for audit log store operations
// ABOUTME: Covers append, each filter, ordering, and agreement between SQLite and the mock

package store

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

var auditBase = time.Date(2026, 5, 1, 9, 0, 0, 0, time.UTC)

func TestAuditStore_Append(t *testing.T) {
	store := setupTestStore(t)
	ctx := context.Background()

	entry := &AuditEntry{
		ActorPrincipalID: 5,
		Action:           AuditLogin,
		TargetType:       TargetPrincipal,
		TargetID:         5,
		Timestamp:        auditBase.Add(1500 * time.Microsecond),
		Detail:           map[string]any{"key_id": "k1"},
	}
	require.NoError(t, store.AppendAuditLog(ctx, entry))
	assert.NotEmpty(t, entry.ID)
	assert.True(t, auditBase.Add(time.Millisecond).Equal(entry.Timestamp), "stored at millisecond precision")

	require.NoError(t, store.AppendAuditLog(ctx, &AuditEntry{Action: AuditLoginFailed, TargetType: TargetPrincipal}))

	entries, err := store.ListAuditLog(ctx, AuditFilter{})
	require.NoError(t, err)
	require.Len(t, entries, 2)

	var login AuditEntry
	for _, e := range entries {
		if e.Action == AuditLogin {
			login = e
		}
	}
	assert.Equal(t, entry.ID, login.ID)
	assert.Equal(t, int64(5), login.TargetID)
	assert.Equal(t, TargetPrincipal, login.TargetType)
	assert.True(t, entry.Timestamp.Equal(login.Timestamp))
	assert.Equal(t, "k1", login.Detail["key_id"])
}

func TestAuditStore_List_NewestFirst(t *testing.T) {
	store := setupTestStore(t)
	ctx := context.Background()

	// Two entries share a millisecond; the later insert comes first.
	for i, action := range []AuditAction{AuditLogin, AuditRefresh, AuditLogout} {
		ts := auditBase.Add(time.Duration(i) * time.Second)
		if i == 2 {
			ts = auditBase.Add(time.Second)
		}
		require.NoError(t, store.AppendAuditLog(ctx, &AuditEntry{
			ActorPrincipalID: 1,
			Action:           action,
			TargetType:       TargetPrincipal,
			TargetID:         1,
			Timestamp:        ts,
		}))
	}

	entries, err := store.ListAuditLog(ctx, AuditFilter{})
	require.NoError(t, err)
	require.Len(t, entries, 3)
	assert.Equal(t, AuditLogout, entries[0].Action)
	assert.Equal(t, AuditRefresh, entries[1].Action)
	assert.Equal(t, AuditLogin, entries[2].Action)
}

// seedAuditHistory writes a small day of activity:
// commercial 5 logs in and creates client 3, support 8 is denied on client 3,
// manager 1 resets principal 5's password, and an unknown email fails to log in.
func seedAuditHistory(t *testing.T, s AuditStore) {
	t.Helper()
	ctx := context.Background()
	rows := []AuditEntry{
		{ActorPrincipalID: 5, Action: AuditLogin, TargetType: TargetPrincipal, TargetID: 5},
		{ActorPrincipalID: 5, Action: AuditCreateClient, TargetType: TargetClient, TargetID: 3},
		{ActorPrincipalID: 8, Action: AuditPermissionDenied, TargetType: TargetPrincipal, TargetID: 8, Detail: map[string]any{"permission": "client:update"}},
		{ActorPrincipalID: 1, Action: AuditChangePassword, TargetType: TargetPrincipal, TargetID: 5},
		{ActorPrincipalID: 0, Action: AuditLoginFailed, TargetType: TargetPrincipal},
		{ActorPrincipalID: 1, Action: AuditUpdateClient, TargetType: TargetClient, TargetID: 5},
	}
	for i := range rows {
		rows[i].Timestamp = auditBase.Add(time.Duration(i) * 10 * time.Minute)
		require.NoError(t, s.AppendAuditLog(ctx, &rows[i]))
	}
}

func actionsOf(entries []AuditEntry) []AuditAction {
	out := make([]AuditAction, len(entries))
	for i, e := range entries {
		out[i] = e.Action
	}
	return out
}

func auditFilterCases() map[string]struct {
	filter AuditFilter
	want   []AuditAction
} {
	five := int64(5)
	one := int64(1)
	since := auditBase.Add(20 * time.Minute)
	until := auditBase.Add(30 * time.Minute)
	client := TargetClient

	return map[string]struct {
		filter AuditFilter
		want   []AuditAction
	}{
		"since and until are inclusive": {
			filter: AuditFilter{Since: &since, Until: &until},
			want:   []AuditAction{AuditChangePassword, AuditPermissionDenied},
		},
		"any of several actions": {
			filter: AuditFilter{Actions: []AuditAction{AuditLogin, AuditCreateClient}},
			want:   []AuditAction{AuditCreateClient, AuditLogin},
		},
		"failures only": {
			filter: AuditFilter{FailuresOnly: true},
			want:   []AuditAction{AuditLoginFailed, AuditPermissionDenied},
		},
		"actor": {
			filter: AuditFilter{ActorPrincipalID: &one},
			want:   []AuditAction{AuditUpdateClient, AuditChangePassword},
		},
		"involving a principal as actor or target principal": {
			filter: AuditFilter{Involving: &five},
			want:   []AuditAction{AuditChangePassword, AuditCreateClient, AuditLogin},
		},
		"target type": {
			filter: AuditFilter{TargetType: &client},
			want:   []AuditAction{AuditUpdateClient, AuditCreateClient},
		},
		"target type and id": {
			filter: AuditFilter{TargetType: &client, TargetID: 3},
			want:   []AuditAction{AuditCreateClient},
		},
		"combined with limit": {
			filter: AuditFilter{Involving: &five, Limit: 1},
			want:   []AuditAction{AuditChangePassword},
		},
	}
}

func TestAuditStore_List_Filters(t *testing.T) {
	store := setupTestStore(t)
	seedAuditHistory(t, store)

	for name, tc := range auditFilterCases() {
		t.Run(name, func(t *testing.T) {
			entries, err := store.ListAuditLog(context.Background(), tc.filter)
			require.NoError(t, err)
			assert.Equal(t, tc.want, actionsOf(entries))
		})
	}
}

func TestAuditStore_MockAgreesWithSQLite(t *testing.T) {
	sqlite := setupTestStore(t)
	mock := NewMockStore()
	seedAuditHistory(t, sqlite)
	seedAuditHistory(t, mock)

	for name, tc := range auditFilterCases() {
		t.Run(name, func(t *testing.T) {
			fromDB, err := sqlite.ListAuditLog(context.Background(), tc.filter)
			require.NoError(t, err)
			fromMock, err := mock.ListAuditLog(context.Background(), tc.filter)
			require.NoError(t, err)
			assert.Equal(t, actionsOf(fromDB), actionsOf(fromMock))
		})
	}
}

func TestAuditStore_List_Pagination(t *testing.T) {
	store := setupTestStore(t)
	ctx := context.Background()

	for i := 0; i < 5; i++ {
		require.NoError(t, store.AppendAuditLog(ctx, &AuditEntry{
			Action:     AuditLoginFailed,
			TargetType: TargetPrincipal,
			Timestamp:  auditBase.Add(time.Duration(i) * time.Second),
		}))
	}

	entries, err := store.ListAuditLog(ctx, AuditFilter{Limit: 2})
	require.NoError(t, err)
	assert.Len(t, entries, 2)
}

func TestAuditWhere_OnlySetConditions(t *testing.T) {
	where, args := auditWhere(AuditFilter{})
	assert.Empty(t, where)
	assert.Empty(t, args)

	five := int64(5)
	where, args = auditWhere(AuditFilter{Involving: &five, Actions: []AuditAction{AuditLogin, AuditLogout}})
	assert.Equal(t, "WHERE action IN (?, ?) AND (actor_principal_id = ? OR (target_type = ? AND target_id = ?))", where)
	assert.Equal(t, []any{"login", "logout", int64(5), "principal", int64(5)}, args)
}

func TestAuditAction_Failure(t *testing.T) {
	assert.True(t, AuditLoginFailed.Failure())
	assert.True(t, AuditRefreshRejected.Failure())
	assert.True(t, AuditPermissionDenied.Failure())
	assert.False(t, AuditLogin.Failure())
	assert.False(t, AuditUpdateEvent.Failure())
}

func TestParseAuditTarget(t *testing.T) {
	for in, want := range map[string]AuditTarget{
		"client":    TargetClient,
		"Contract":  TargetContract,
		" event ":   TargetEvent,
		"principal": TargetPrincipal,
		"user":      TargetPrincipal,
	} {
		got, err := ParseAuditTarget(in)
		require.NoError(t, err, in)
		assert.Equal(t, want, got, in)
	}

	_, err := ParseAuditTarget("invoice")
	assert.Error(t, err)
}

func TestNormalizeAuditLimit(t *testing.T) {
	assert.Equal(t, 100, normalizeAuditLimit(0))
	assert.Equal(t, 1000, normalizeAuditLimit(5000))
	assert.Equal(t, 7, normalizeAuditLimit(7))
}
