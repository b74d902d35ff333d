package mariadb

import (
	"strings"

	"github.com/Aleph-Alpha/persistor/v1/database"
)

// Dialect quotes identifiers and renders the DDL of MariaDB/MySQL.
type Dialect struct{}

var _ database.Dialect = Dialect{}

func (Dialect) Name() string { return database.TypeMariaDB }

func (Dialect) Quote(identifier string) string {
	return "`" + strings.ReplaceAll(identifier, "`", "``") + "`"
}

// RegexOperator relies on the case-insensitive default collation; BINARY
// forces a case-sensitive match.
func (Dialect) RegexOperator(caseInsensitive bool) string {
	if caseInsensitive {
		return "REGEXP"
	}
	return "REGEXP BINARY"
}

func (Dialect) ColumnType(kind database.ColumnKind) string {
	switch kind {
	case database.ColumnKey, database.ColumnString:
		return "varchar(255)"
	case database.ColumnDouble:
		return "double"
	case database.ColumnTimestamp:
		return "datetime(3)"
	case database.ColumnBoolean:
		return "tinyint(1)"
	case database.ColumnBigInt:
		return "bigint"
	case database.ColumnIncrements:
		return "int unsigned AUTO_INCREMENT"
	}
	return "longtext"
}

func (d Dialect) DropIndexSQL(table string, index database.IndexSpec) string {
	return "DROP INDEX " + d.Quote(index.Name) + " ON " + d.Quote(table)
}

// CommentSQL is unsupported: MySQL can only comment a column by restating
// its full definition.
func (Dialect) CommentSQL(string, string, string) (string, bool) {
	return "", false
}
