//go:build !sqlite3_cgo

package db

// Pure Go sqlite (wasm) so the binaries cross compile without cgo.
import (
	_ "github.com/ncruces/go-sqlite3/driver"
	_ "github.com/ncruces/go-sqlite3/embed"
)

const (
	driverID   = "ncruces/go-sqlite3"
	driverName = "sqlite3"
)
