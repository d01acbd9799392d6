// ABOUTME: Tests for role identifiers and role permission overrides
// ABOUTME: Covers ParseRole, Set/RolePermissions and seeding behaviour

package store

import (
	"context"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestParseRole(t *testing.T) {
	tests := []struct {
		in      string
		want    RoleID
		wantErr bool
	}{
		{"management", RoleManagement, false},
		{" Commercial ", RoleCommercial, false},
		{"3", RoleSupport, false},
		{"1", RoleManagement, false},
		{"4", 0, true},
		{"admin", 0, true},
		{"", 0, true},
	}

	for _, tt := range tests {
		t.Run(tt.in, func(t *testing.T) {
			got, err := ParseRole(tt.in)
			if tt.wantErr {
				assert.Error(t, err)
				return
			}
			require.NoError(t, err)
			assert.Equal(t, tt.want, got)
		})
	}
}

func TestRoleID_String(t *testing.T) {
	assert.Equal(t, "support", RoleSupport.String())
	assert.Equal(t, "role(7)", RoleID(7).String())
	assert.False(t, RoleID(0).Valid())
}

func TestRoleStore_NoOverride(t *testing.T) {
	store := setupTestStore(t)

	perms, err := store.RolePermissions(context.Background(), RoleSupport)
	require.NoError(t, err)
	assert.NotNil(t, perms)
	assert.Empty(t, perms)
}

func TestRoleStore_SetAndReplace(t *testing.T) {
	store := setupTestStore(t)
	ctx := context.Background()

	require.NoError(t, store.SetRolePermissions(ctx, RoleSupport, []string{"event:read", "client:read"}))

	perms, err := store.RolePermissions(ctx, RoleSupport)
	require.NoError(t, err)
	assert.Equal(t, []string{"client:read", "event:read"}, perms)

	require.NoError(t, store.SetRolePermissions(ctx, RoleSupport, []string{"contract:read"}))
	perms, err = store.RolePermissions(ctx, RoleSupport)
	require.NoError(t, err)
	assert.Equal(t, []string{"contract:read"}, perms)

	// Clearing restores the no-override state.
	require.NoError(t, store.SetRolePermissions(ctx, RoleSupport, nil))
	perms, err = store.RolePermissions(ctx, RoleSupport)
	require.NoError(t, err)
	assert.Empty(t, perms)
}

func TestRoleStore_SetUnknownRole(t *testing.T) {
	store := setupTestStore(t)
	err := store.SetRolePermissions(context.Background(), RoleID(42), []string{"client:read"})
	assert.Error(t, err)
}

func TestRoleStore_SeedSkipsExisting(t *testing.T) {
	store := setupTestStore(t)
	ctx := context.Background()

	require.NoError(t, store.SetRolePermissions(ctx, RoleCommercial, []string{"client:read"}))

	grants := map[RoleID][]string{
		RoleManagement: {"user:create", "user:read"},
		RoleCommercial: {"client:create", "client:read"},
	}
	require.NoError(t, store.SeedRolePermissions(ctx, grants))

	mgmt, err := store.RolePermissions(ctx, RoleManagement)
	require.NoError(t, err)
	assert.Equal(t, []string{"user:create", "user:read"}, mgmt)

	// The existing override survives.
	com, err := store.RolePermissions(ctx, RoleCommercial)
	require.NoError(t, err)
	assert.Equal(t, []string{"client:read"}, com)
}
