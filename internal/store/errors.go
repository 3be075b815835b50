package store

import "errors"

// Sentinel errors returned by Store operations. Callers match them with
// errors.Is; the wrapped message carries the offending table/column name.
var (
	ErrTableNotFound  = errors.New("table not found")
	ErrColumnNotFound = errors.New("column not found")
	ErrArgument       = errors.New("invalid argument")
	ErrEmptyTable     = errors.New("table is empty")
)
