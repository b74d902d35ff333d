package database

import "errors"

// Errors shared by every backend. Adapters translate driver-specific errors
// into these so the persistor can classify failures without knowing the
// engine.
var (
	// ErrRecordNotFound is returned when a query doesn't find any matching records
	ErrRecordNotFound = errors.New("record not found")

	// ErrDuplicateKey is returned when an insert or update violates a unique constraint
	ErrDuplicateKey = errors.New("duplicate key violation")

	// ErrInvalidData is returned when the data being saved doesn't meet validation rules
	ErrInvalidData = errors.New("invalid data")

	// ErrDeadlock is returned when the engine aborted the statement to break a deadlock
	ErrDeadlock = errors.New("deadlock detected")

	// ErrNoDatabase is returned when no database was registered at all
	ErrNoDatabase = errors.New("You must do setDB()")

	// ErrUnknownAlias is returned when a database alias was never registered
	ErrUnknownAlias = errors.New("DB Alias not set")

	// ErrUnsupported is returned when a backend lacks an operation
	ErrUnsupported = errors.New("operation not supported by backend")
)

// IsRetryable reports whether the operation may succeed when retried.
func IsRetryable(err error) bool {
	return errors.Is(err, ErrDeadlock)
}
