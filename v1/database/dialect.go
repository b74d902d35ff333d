package database

import (
	"fmt"
	"strings"
)

// Dialect holds what differs between engines outside of gorm's own clause
// builders: identifier quoting, the regex operator and the DDL statements.
type Dialect interface {
	Name() string
	Quote(identifier string) string
	RegexOperator(caseInsensitive bool) string
	ColumnType(kind ColumnKind) string
	DropIndexSQL(table string, index IndexSpec) string
	// CommentSQL returns the statement documenting a column, or false when the
	// engine has no column comments.
	CommentSQL(table, column, comment string) (string, bool)
}

func columnDDL(d Dialect, col ColumnDef) string {
	ddl := d.Quote(col.Name) + " " + d.ColumnType(col.Kind)
	if col.Kind == ColumnKey || col.Kind == ColumnIncrements {
		ddl += " PRIMARY KEY"
	}
	return ddl
}

// RenderCreateTable renders CREATE TABLE.
func RenderCreateTable(d Dialect, table string, columns []ColumnDef) string {
	defs := make([]string, len(columns))
	for i, col := range columns {
		defs[i] = columnDDL(d, col)
	}
	return fmt.Sprintf("CREATE TABLE %s (%s)", d.Quote(table), strings.Join(defs, ", "))
}

// RenderAddColumns renders one ALTER TABLE adding every column.
func RenderAddColumns(d Dialect, table string, columns []ColumnDef) string {
	adds := make([]string, len(columns))
	for i, col := range columns {
		adds[i] = "ADD COLUMN " + columnDDL(d, col)
	}
	return fmt.Sprintf("ALTER TABLE %s %s", d.Quote(table), strings.Join(adds, ", "))
}

// RenderCreateIndex renders CREATE [UNIQUE] INDEX.
func RenderCreateIndex(d Dialect, table string, index IndexSpec) string {
	cols := make([]string, len(index.Columns))
	for i, c := range index.Columns {
		cols[i] = d.Quote(c)
	}
	kind := "INDEX"
	if index.Unique {
		kind = "UNIQUE INDEX"
	}
	return fmt.Sprintf("CREATE %s %s ON %s (%s)", kind, d.Quote(index.Name), d.Quote(table), strings.Join(cols, ", "))
}
