//go:build !cgo

package store

import (
	_ "modernc.org/sqlite"
)

// sqlDriver: see driver_cgo.go. Pure-Go fallback for cgo-less builds.
const sqlDriver = "sqlite"
