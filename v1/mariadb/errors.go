package mariadb

import (
	"errors"
	"fmt"

	"github.com/go-sql-driver/mysql"
	"gorm.io/gorm"

	"github.com/Aleph-Alpha/persistor/v1/database"
)

// MySQL server error numbers mapped onto the database sentinels.
const (
	errDuplicateEntry  = 1062
	errLockWaitTimeout = 1205
	errLockDeadlock    = 1213
	errTruncatedValue  = 1292
)

// TranslateError converts GORM and driver errors into the database sentinels.
func TranslateError(err error) error {
	if err == nil {
		return nil
	}

	var myErr *mysql.MySQLError
	if errors.As(err, &myErr) {
		switch myErr.Number {
		case errLockDeadlock, errLockWaitTimeout:
			return fmt.Errorf("%w: %s", database.ErrDeadlock, myErr.Message)
		case errDuplicateEntry:
			return fmt.Errorf("%w: %s", database.ErrDuplicateKey, myErr.Message)
		case errTruncatedValue:
			return fmt.Errorf("%w: %s", database.ErrInvalidData, myErr.Message)
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
