//go:build cgo

package store

import (
	"context"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestNewSQLiteStoreWithDriver_Cgo(t *testing.T) {
	ctx := context.Background()
	path := filepath.Join(t.TempDir(), "crm.db")

	cgo, err := NewSQLiteStoreWithDriver(CgoDriver, path)
	require.NoError(t, err)
	createTestPrincipal(t, cgo, "mgr@example.com", RoleManagement)
	require.NoError(t, cgo.Close())

	// Both drivers read the same file format.
	pure, err := NewSQLiteStoreWithDriver(DefaultDriver, path)
	require.NoError(t, err)
	defer pure.Close()

	p, err := pure.GetPrincipalByEmail(ctx, "mgr@example.com")
	require.NoError(t, err)
	assert.Equal(t, RoleManagement, p.Role)
}
