// Package repository holds GORM-backed persistence for the one slice of
// Gateway state allowed to survive a restart: per-database routing config,
// admin console accounts, and ambient settings. Session/tunnel state never
// passes through this package.
package repository

import "errors"

// Sentinel errors returned by every repository in this package. Callers
// should use errors.Is for comparison.
var (
	// ErrNotFound is returned when no record matches the given key.
	ErrNotFound = errors.New("repository: record not found")

	// ErrConflict names a create that would violate a unique constraint
	// (e.g. a duplicate database_id or email). No repository in this package
	// returns it: Create wraps the driver's constraint error unchanged.
	ErrConflict = errors.New("repository: record already exists")
)

// ListOptions bounds a paginated List call.
type ListOptions struct {
	Limit  int
	Offset int
}
