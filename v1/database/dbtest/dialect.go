package dbtest

import (
	"fmt"
	"strings"

	"github.com/Aleph-Alpha/persistor/v1/database"
)

// Dialect renders PostgreSQL-flavoured SQL for the statement log.
type Dialect struct{}

var _ database.Dialect = Dialect{}

func (Dialect) Name() string { return "memory" }

func (Dialect) Quote(identifier string) string {
	return `"` + strings.ReplaceAll(identifier, `"`, `""`) + `"`
}

func (Dialect) RegexOperator(caseInsensitive bool) string {
	if caseInsensitive {
		return "~*"
	}
	return "~"
}

func (Dialect) ColumnType(kind database.ColumnKind) string {
	switch kind {
	case database.ColumnKey, database.ColumnString:
		return "character varying"
	case database.ColumnDouble:
		return "double precision"
	case database.ColumnTimestamp:
		return "timestamp with time zone"
	case database.ColumnBoolean:
		return "boolean"
	case database.ColumnBigInt:
		return "bigint"
	case database.ColumnIncrements:
		return "integer"
	}
	return "text"
}

func (d Dialect) DropIndexSQL(_ string, index database.IndexSpec) string {
	return "DROP INDEX " + d.Quote(index.Name)
}

func (d Dialect) CommentSQL(table, column, comment string) (string, bool) {
	return fmt.Sprintf("COMMENT ON COLUMN %s.%s IS '%s'", d.Quote(table), d.Quote(column),
		strings.ReplaceAll(comment, "'", "''")), true
}
