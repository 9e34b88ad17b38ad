//go:build cgo

package store

import (
	_ "github.com/mattn/go-sqlite3"
)

// sqlDriver is the database/sql driver name used to open the promotion
// store and embedding cache. cgo builds use mattn/go-sqlite3 (faster,
// matches the teacher's choice); non-cgo builds fall back to the pure-Go
// modernc.org/sqlite driver in driver_nocgo.go.
const sqlDriver = "sqlite3"
