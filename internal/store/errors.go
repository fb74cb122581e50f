package store

import "errors"

var (
	// ErrSchemaMismatch indicates the database schema version doesn't match the expected version.
	ErrSchemaMismatch = errors.New("schema version mismatch")
	// ErrStoreUnavailable is returned when the store has no open database.
	ErrStoreUnavailable = errors.New("store unavailable")
)
