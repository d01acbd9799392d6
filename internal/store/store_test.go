package store

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"path/filepath"
	"sync"
	"testing"
	"time"

	"github.com/DATA-DOG/go-sqlmock"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

// setupTestStore creates a temporary SQLite store for testing.
func setupTestStore(t *testing.T) *SQLiteStore {
	t.Helper()
	tmpDir := t.TempDir()
	dbPath := filepath.Join(tmpDir, "test.db")

	store, err := NewSQLiteStore(dbPath)
	require.NoError(t, err)

	t.Cleanup(func() {
		store.Close()
	})

	return store
}

// setupMockStore wires a SQLiteStore onto a sqlmock connection.
func setupMockStore(t *testing.T) (*SQLiteStore, sqlmock.Sqlmock) {
	t.Helper()
	db, mock, err := sqlmock.New()
	require.NoError(t, err)
	t.Cleanup(func() { db.Close() })

	return newSQLiteStoreFromDB(db, slog.Default()), mock
}

// createTestPrincipal inserts a principal with the given role and returns it.
func createTestPrincipal(t *testing.T, s *SQLiteStore, email string, role RoleID) *Principal {
	t.Helper()
	p := &Principal{
		Email:        email,
		FullName:     "Test " + role.Name(),
		Role:         role,
		PasswordHash: "$2a$10$placeholderplaceholderplaceholderplaceholderplacehol",
		CreatedAt:    time.Now().UTC().Truncate(time.Second),
	}
	require.NoError(t, s.CreatePrincipal(context.Background(), p))
	return p
}

func generateTestID(prefix string, i int) string {
	return fmt.Sprintf("%s-%d", prefix, i)
}

func TestStore_ReopenIsIdempotent(t *testing.T) {
	dbPath := filepath.Join(t.TempDir(), "nested", "crm.db")

	s1, err := NewSQLiteStore(dbPath)
	require.NoError(t, err)
	p := createTestPrincipal(t, s1, "alice@example.com", RoleManagement)
	require.NoError(t, s1.Close())

	s2, err := NewSQLiteStore(dbPath)
	require.NoError(t, err)
	defer s2.Close()

	got, err := s2.GetPrincipal(context.Background(), p.ID)
	require.NoError(t, err)
	assert.Equal(t, "alice@example.com", got.Email)
}

func TestNewSQLiteStoreWithDriver_Unregistered(t *testing.T) {
	_, err := NewSQLiteStoreWithDriver("postgres", filepath.Join(t.TempDir(), "crm.db"))
	require.Error(t, err)
	assert.Contains(t, err.Error(), "unknown database driver")
}

func TestStore_RotateRefreshCredential_Concurrent(t *testing.T) {
	s := setupTestStore(t)
	ctx := context.Background()
	p := createTestPrincipal(t, s, "bob@example.com", RoleCommercial)

	now := time.Now().UTC()
	require.NoError(t, s.SetRefreshCredential(ctx, p.ID, "hash-0", now.Add(time.Hour), now))

	var wg sync.WaitGroup
	results := make([]error, 2)
	for i := range results {
		wg.Add(1)
		go func(i int) {
			defer wg.Done()
			results[i] = s.RotateRefreshCredential(ctx, p.ID, "hash-0", generateTestID("hash", i+1), now.Add(2*time.Hour))
		}(i)
	}
	wg.Wait()

	var ok, stale int
	for _, err := range results {
		switch {
		case err == nil:
			ok++
		case errors.Is(err, ErrStaleCredential):
			stale++
		default:
			t.Fatalf("unexpected error: %v", err)
		}
	}
	assert.Equal(t, 1, ok)
	assert.Equal(t, 1, stale)
}

func TestStore_RotateRefreshCredential_RollsBackOnMismatch(t *testing.T) {
	s, mock := setupMockStore(t)

	mock.ExpectBegin()
	mock.ExpectExec("UPDATE users").
		WithArgs("new-hash", sqlmock.AnyArg(), int64(7), "old-hash").
		WillReturnResult(sqlmock.NewResult(0, 0))
	mock.ExpectRollback()

	err := s.RotateRefreshCredential(context.Background(), 7, "old-hash", "new-hash", time.Now().Add(time.Hour))
	assert.ErrorIs(t, err, ErrStaleCredential)
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestStore_RotateRefreshCredential_Commits(t *testing.T) {
	s, mock := setupMockStore(t)

	mock.ExpectBegin()
	mock.ExpectExec("UPDATE users").
		WithArgs("new-hash", sqlmock.AnyArg(), int64(7), "old-hash").
		WillReturnResult(sqlmock.NewResult(0, 1))
	mock.ExpectCommit()

	err := s.RotateRefreshCredential(context.Background(), 7, "old-hash", "new-hash", time.Now().Add(time.Hour))
	require.NoError(t, err)
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestStore_RotateRefreshCredential_CommitFailure(t *testing.T) {
	s, mock := setupMockStore(t)

	mock.ExpectBegin()
	mock.ExpectExec("UPDATE users").WillReturnResult(sqlmock.NewResult(0, 1))
	mock.ExpectCommit().WillReturnError(errors.New("disk I/O error"))

	err := s.RotateRefreshCredential(context.Background(), 7, "old-hash", "new-hash", time.Now().Add(time.Hour))
	require.Error(t, err)
	assert.NotErrorIs(t, err, ErrStaleCredential)
	assert.Contains(t, err.Error(), "committing refresh rotation")
}

func TestStore_RotateRefreshCredential_EmptyPreviousHash(t *testing.T) {
	s, mock := setupMockStore(t)

	err := s.RotateRefreshCredential(context.Background(), 7, "", "new-hash", time.Now().Add(time.Hour))
	assert.ErrorIs(t, err, ErrStaleCredential)

	// No statement may reach the database.
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestStore_SetRefreshCredential_UnknownPrincipal(t *testing.T) {
	s, mock := setupMockStore(t)

	mock.ExpectBegin()
	mock.ExpectExec("UPDATE users").WillReturnResult(sqlmock.NewResult(0, 0))
	mock.ExpectRollback()

	err := s.SetRefreshCredential(context.Background(), 99, "h", time.Now(), time.Now())
	assert.ErrorIs(t, err, ErrPrincipalNotFound)
	assert.NoError(t, mock.ExpectationsWereMet())
}
