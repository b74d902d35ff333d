package persistor

import (
	"errors"

	"github.com/Aleph-Alpha/persistor/v1/database"
	"github.com/Aleph-Alpha/persistor/v1/metrics"
)

var (
	// ErrConfiguration is returned for static schema and template mismatches:
	// missing schema entries, missing parents or children mappings and unknown
	// database aliases. It is never worth retrying.
	ErrConfiguration = errors.New("persistor configuration error")

	// ErrUpdateConflict is returned when a row or document was changed by
	// someone else since it was loaded, and when the database aborted the
	// transaction to break a deadlock.
	ErrUpdateConflict error = conflictError{}

	// ErrTypeDrift is returned when an existing column no longer matches the
	// declared property type. Such changes need a manual migration.
	ErrTypeDrift = errors.New("column type drift")

	// ErrUnsupportedOperator is returned when a filter uses an operator the
	// relational backend cannot translate.
	ErrUnsupportedOperator = errors.New("unsupported filter operator")

	// ErrOrphanDocument is returned when a sub-document has no reachable
	// top-level document to be saved with.
	ErrOrphanDocument = errors.New("orphan document")

	// ErrMissingTemplate is returned when a stored row carries no _template.
	ErrMissingTemplate = errors.New("missing template")
)

type conflictError struct{}

func (conflictError) Error() string { return "Update Conflict" }

// Is lets the metrics conflict counter recognise update conflicts.
func (conflictError) Is(target error) bool { return target == metrics.ErrConflict }

// IsRetryable reports whether the failed unit of work may succeed when it is
// reloaded and retried.
func IsRetryable(err error) bool {
	return errors.Is(err, ErrUpdateConflict) || database.IsRetryable(err)
}
