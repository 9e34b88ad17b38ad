//go:build sqlite_vec && cgo

package store

import (
	vec "github.com/asg017/sqlite-vec-go-bindings/cgo"
)

func init() {
	// Registers sqlite-vec as an auto-loadable extension with the
	// mattn/go-sqlite3 driver when built with -tags sqlite_vec, so Open's
	// probe detects it; no store query uses vec0 tables.
	vec.Auto()
}
