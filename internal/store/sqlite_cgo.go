// ABOUTME: Registers the cgo SQLite driver as "sqlite3" when cgo is available
// ABOUTME: Selected with database.driver: sqlite3; the pure-Go "sqlite" driver stays the default

//go:build cgo

package store

import _ "github.com/mattn/go-sqlite3"
