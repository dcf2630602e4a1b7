//go:build cgo_sqlite

package sqlite

// cgo build backed by the reference SQLite C library.
//
//	CGO_ENABLED=1 go build -tags cgo_sqlite ./...

import (
	// Import the cgo SQLite driver.
	_ "github.com/mattn/go-sqlite3"
)

const (
	// DriverName is the database/sql driver name.
	DriverName = "sqlite3"
	// BuildMode describes the current build configuration.
	BuildMode = "cgo"
)
