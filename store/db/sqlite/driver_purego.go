//go:build !cgo_sqlite

package sqlite

// Default build: pure Go SQLite, no C toolchain required.
//
//	CGO_ENABLED=0 go build ./...

import (
	// Import the pure Go SQLite driver.
	_ "modernc.org/sqlite"
)

const (
	// DriverName is the database/sql driver name.
	DriverName = "sqlite"
	// BuildMode describes the current build configuration.
	BuildMode = "purego"
)
