package dbtest

import (
	"fmt"
	"sort"
	"strings"

	"github.com/Aleph-Alpha/persistor/v1/database"
)

// The renderers below only feed the statement log, so tests can assert on
// what a MemDB was asked to do. Nothing executes their output.

func quoteColumn(c database.Column) string {
	d := Dialect{}
	if c.Table == "" {
		return d.Quote(c.Name)
	}
	return d.Quote(c.Table) + "." + d.Quote(c.Name)
}

func writeCondition(c database.Condition, b *strings.Builder) {
	switch c.Op {
	case "":
		b.WriteString("1 = 1")
	case database.OpAnd, database.OpOr:
		for i, child := range c.Conditions {
			if i > 0 {
				b.WriteString(" " + string(c.Op) + " ")
			}
			b.WriteString("(")
			writeCondition(child, b)
			b.WriteString(")")
		}
	case database.OpIsNull, database.OpNotNull:
		b.WriteString(quoteColumn(c.Column) + " " + string(c.Op))
	case database.OpIn, database.OpNotIn:
		values, _ := c.Value.([]interface{})
		if len(values) == 0 {
			if c.Op == database.OpIn {
				b.WriteString("1 = 0")
			} else {
				b.WriteString("1 = 1")
			}
			return
		}
		marks := strings.TrimSuffix(strings.Repeat("?, ", len(values)), ", ")
		b.WriteString(quoteColumn(c.Column) + " " + string(c.Op) + " (" + marks + ")")
	case database.OpRegex, database.OpIRegex:
		b.WriteString(quoteColumn(c.Column) + " " + Dialect{}.RegexOperator(c.Op == database.OpIRegex) + " ?")
	case database.OpRaw:
		b.WriteString(c.SQL)
	default:
		b.WriteString(quoteColumn(c.Column) + " " + string(c.Op) + " ?")
	}
}

func writeTail(c database.Criteria, b *strings.Builder) {
	if !c.Where.IsZero() {
		b.WriteString(" WHERE ")
		writeCondition(c.Where, b)
	}
	if len(c.OrderBy) > 0 {
		parts := make([]string, len(c.OrderBy))
		for i, o := range c.OrderBy {
			parts[i] = quoteColumn(o.Column)
			if o.Desc {
				parts[i] += " DESC"
			} else {
				parts[i] += " ASC"
			}
		}
		b.WriteString(" ORDER BY " + strings.Join(parts, ", "))
	}
	if c.Limit > 0 {
		fmt.Fprintf(b, " LIMIT %d", c.Limit)
	}
	if c.Offset > 0 {
		fmt.Fprintf(b, " OFFSET %d", c.Offset)
	}
}

func selectStatement(s *database.SelectStatement) string {
	d := Dialect{}
	var b strings.Builder
	b.WriteString("SELECT ")
	if len(s.Columns) == 0 {
		b.WriteString("*")
	}
	for i, col := range s.Columns {
		if i > 0 {
			b.WriteString(", ")
		}
		b.WriteString(quoteColumn(database.Col(col.Table, col.Column)))
		if col.As != "" {
			b.WriteString(" AS " + d.Quote(col.As))
		}
	}
	b.WriteString(" FROM " + d.Quote(s.Table))
	for _, j := range s.Joins {
		fmt.Fprintf(&b, " LEFT OUTER JOIN %s AS %s ON %s = %s",
			d.Quote(j.Table), d.Quote(j.Alias),
			quoteColumn(database.Col(j.Alias, j.Column)),
			quoteColumn(database.Col(j.ParentTable, j.ParentColumn)))
	}
	writeTail(s.Criteria, &b)
	return b.String()
}

func countStatement(c database.Criteria) string {
	var b strings.Builder
	b.WriteString("SELECT COUNT(*) AS " + Dialect{}.Quote("count") + " FROM " + Dialect{}.Quote(c.Table))
	writeTail(database.Criteria{Where: c.Where}, &b)
	return b.String()
}

func sortedColumns(row database.Row) []string {
	keys := make([]string, 0, len(row))
	for k := range row {
		keys = append(keys, Dialect{}.Quote(k))
	}
	sort.Strings(keys)
	return keys
}

func insertStatement(table string, values database.Row) string {
	cols := sortedColumns(values)
	marks := strings.TrimSuffix(strings.Repeat("?, ", len(cols)), ", ")
	return fmt.Sprintf("INSERT INTO %s (%s) VALUES (%s)", Dialect{}.Quote(table), strings.Join(cols, ", "), marks)
}

func updateStatement(table string, values database.Row, where database.Condition) string {
	cols := sortedColumns(values)
	for i := range cols {
		cols[i] += " = ?"
	}
	var b strings.Builder
	b.WriteString("UPDATE " + Dialect{}.Quote(table) + " SET " + strings.Join(cols, ", "))
	writeTail(database.Criteria{Where: where}, &b)
	return b.String()
}

func incrementStatement(table, column string, where database.Condition) string {
	d := Dialect{}
	var b strings.Builder
	fmt.Fprintf(&b, "UPDATE %s SET %s = %s + 1", d.Quote(table), d.Quote(column), d.Quote(column))
	writeTail(database.Criteria{Where: where}, &b)
	return b.String()
}

func deleteStatement(c database.Criteria) string {
	var b strings.Builder
	b.WriteString("DELETE FROM " + Dialect{}.Quote(c.Table))
	writeTail(database.Criteria{Where: c.Where}, &b)
	return b.String()
}
