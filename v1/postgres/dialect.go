package postgres

import (
	"fmt"

	"github.com/lib/pq"

	"github.com/Aleph-Alpha/persistor/v1/database"
)

// Dialect quotes identifiers and renders the DDL of PostgreSQL.
type Dialect struct{}

var _ database.Dialect = Dialect{}

func (Dialect) Name() string { return database.TypePostgres }

func (Dialect) Quote(identifier string) string {
	return pq.QuoteIdentifier(identifier)
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
		return "varchar(255)"
	case database.ColumnDouble:
		return "double precision"
	case database.ColumnTimestamp:
		return "timestamptz"
	case database.ColumnBoolean:
		return "boolean"
	case database.ColumnBigInt:
		return "bigint"
	case database.ColumnIncrements:
		return "serial"
	}
	return "text"
}

// DropIndexSQL drops an index; PostgreSQL index names are schema-wide.
func (d Dialect) DropIndexSQL(_ string, index database.IndexSpec) string {
	return "DROP INDEX IF EXISTS " + d.Quote(index.Name)
}

func (d Dialect) CommentSQL(table, column, comment string) (string, bool) {
	return fmt.Sprintf("COMMENT ON COLUMN %s.%s IS %s", d.Quote(table), d.Quote(column), pq.QuoteLiteral(comment)), true
}
