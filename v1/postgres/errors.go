package postgres

import (
	"errors"
	"fmt"

	"github.com/jackc/pgx/v5/pgconn"
	"gorm.io/gorm"

	"github.com/Aleph-Alpha/persistor/v1/database"
)

// PostgreSQL SQLSTATE codes mapped onto the database sentinels.
const (
	codeUniqueViolation      = "23505"
	codeDeadlockDetected     = "40P01"
	codeSerializationFailure = "40001"
	codeInvalidTextRepr      = "22P02"
)

// TranslateError converts GORM and pgx errors into the database sentinels so
// the persistor can classify failures without knowing the engine. Unknown
// errors are returned unchanged.
func TranslateError(err error) error {
	if err == nil {
		return nil
	}

	var pgErr *pgconn.PgError
	if errors.As(err, &pgErr) {
		switch pgErr.Code {
		case codeDeadlockDetected, codeSerializationFailure:
			return fmt.Errorf("%w: %s", database.ErrDeadlock, pgErr.Message)
		case codeUniqueViolation:
			return fmt.Errorf("%w: %s", database.ErrDuplicateKey, pgErr.Message)
		case codeInvalidTextRepr:
			return fmt.Errorf("%w: %s", database.ErrInvalidData, pgErr.Message)
		}
		return err
	}

	switch {
	case errors.Is(err, gorm.ErrRecordNotFound):
		return database.ErrRecordNotFound
	case errors.Is(err, gorm.ErrDuplicatedKey):
		return database.ErrDuplicateKey
	case errors.Is(err, gorm.ErrInvalidData):
		return database.ErrInvalidData
	}

	return err
}
