// Package store provides the epic-crm system of record using SQLite.
//
// # Architecture
//
// The store exposes narrow interfaces so each consumer depends only on what it uses:
//
//   - PrincipalStore: principal lookup, refresh credential bookkeeping, audit append
//   - RolePermissionStore: per-role permission overrides
//   - RecordStore: clients, contracts and events
//
// SQLiteStore implements all of them in a single struct. MockStore is an
// in-memory equivalent for unit tests in other packages.
//
// # Refresh credentials
//
// A principal holds at most one refresh hash. Login overwrites it with
// SetRefreshCredential. Refresh swaps it with RotateRefreshCredential, which is a
// compare-and-swap inside one transaction: the UPDATE only matches while the stored
// hash still equals the one the caller verified. Two processes racing the same
// refresh secret therefore see exactly one winner; the loser gets ErrStaleCredential.
//
// # SQLite Configuration
//
//	PRAGMA journal_mode=WAL;
//	PRAGMA foreign_keys=ON;
//	PRAGMA busy_timeout=5000;
//
// The default driver is modernc.org/sqlite ("sqlite"). Builds with cgo also
// register github.com/mattn/go-sqlite3 as "sqlite3".
//
// Times are stored as RFC3339 UTC text.
package store
