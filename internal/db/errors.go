package db

import "errors"

// Sentinel errors for engine operations.
var (
	ErrKeyNotFound   = errors.New("db: key not found")
	ErrIndexNotFound = errors.New("db: index not found")
	ErrIndexExists   = errors.New("db: index already exists")
	// ErrBadQuery marks a query the engine rejected as malformed; retrying cannot help.
	ErrBadQuery = errors.New("db: bad query")
)

// Op constants name the engine command for error context.
const (
	OpCreateIndex = "FT.CREATE"
	OpDropIndex   = "FT.DROPINDEX"
	OpIndexInfo   = "FT.INFO"
	OpSearch      = "FT.SEARCH"
	OpHGetAll     = "HGETALL"
	OpHSet        = "HSET"

	OpESSearch      = "_search"
	OpESGet         = "_doc"
	OpESBulk        = "_bulk"
	OpESCreateIndex = "indices.create"
	OpESDeleteIndex = "indices.delete"
	OpESIndexExists = "indices.exists"
)

// Error wraps an underlying error with the operation name for diagnostics.
type Error struct {
	Op  string
	Err error
}

func (e *Error) Error() string { return e.Op + ": " + e.Err.Error() }
func (e *Error) Unwrap() error { return e.Err }
