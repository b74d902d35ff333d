package database

import (
	"fmt"
	"strings"
	"time"
)

// Op is a condition operator.
type Op string

const (
	OpEq      Op = "="
	OpNe      Op = "<>"
	OpGt      Op = ">"
	OpGte     Op = ">="
	OpLt      Op = "<"
	OpLte     Op = "<="
	OpIn      Op = "IN"
	OpNotIn   Op = "NOT IN"
	OpRegex   Op = "REGEX"
	OpIRegex  Op = "IREGEX"
	OpIsNull  Op = "IS NULL"
	OpNotNull Op = "IS NOT NULL"
	OpAnd     Op = "AND"
	OpOr      Op = "OR"
	OpRaw     Op = "RAW"
)

// Column is a column qualified by its table or table alias.
type Column struct {
	Table string
	Name  string
}

// Col qualifies name with table.
func Col(table, name string) Column {
	return Column{Table: table, Name: name}
}

func (c Column) String() string {
	if c.Table == "" {
		return c.Name
	}
	return c.Table + "." + c.Name
}

// Condition is a node of a WHERE clause tree. The zero Condition matches
// everything.
type Condition struct {
	Op         Op
	Column     Column
	Value      interface{}
	Conditions []Condition

	// SQL and Args hold a raw fragment for OpRaw.
	SQL  string
	Args []interface{}
}

// IsZero reports whether c is empty.
func (c Condition) IsZero() bool {
	return c.Op == ""
}

// Compare builds a binary comparison.
func Compare(col Column, op Op, value interface{}) Condition {
	return Condition{Op: op, Column: col, Value: value}
}

// Eq builds col = value.
func Eq(col Column, value interface{}) Condition {
	return Compare(col, OpEq, value)
}

// In builds col IN (values).
func In(col Column, values []interface{}) Condition {
	return Condition{Op: OpIn, Column: col, Value: values}
}

// NotIn builds col NOT IN (values).
func NotIn(col Column, values []interface{}) Condition {
	return Condition{Op: OpNotIn, Column: col, Value: values}
}

// Regex matches col against a regular expression.
func Regex(col Column, pattern string, caseInsensitive bool) Condition {
	op := OpRegex
	if caseInsensitive {
		op = OpIRegex
	}
	return Condition{Op: op, Column: col, Value: pattern}
}

// IsNull builds col IS NULL.
func IsNull(col Column) Condition {
	return Condition{Op: OpIsNull, Column: col}
}

// NotNull builds col IS NOT NULL.
func NotNull(col Column) Condition {
	return Condition{Op: OpNotNull, Column: col}
}

// Raw embeds a SQL fragment with ? placeholders.
func Raw(sql string, args ...interface{}) Condition {
	return Condition{Op: OpRaw, SQL: sql, Args: args}
}

// And requires every non-empty condition.
func And(conds ...Condition) Condition {
	return group(OpAnd, conds)
}

// Or requires any non-empty condition.
func Or(conds ...Condition) Condition {
	return group(OpOr, conds)
}

func group(op Op, conds []Condition) Condition {
	kept := make([]Condition, 0, len(conds))
	for _, c := range conds {
		if !c.IsZero() {
			kept = append(kept, c)
		}
	}
	switch len(kept) {
	case 0:
		return Condition{}
	case 1:
		return kept[0]
	}
	return Condition{Op: op, Conditions: kept}
}

// String renders the condition with inline literals. It is meant for logs,
// keys and tests, never for execution.
func (c Condition) String() string {
	var b strings.Builder
	c.write(&b)
	return b.String()
}

func (c Condition) write(b *strings.Builder) {
	switch c.Op {
	case "":
		b.WriteString("TRUE")
	case OpAnd, OpOr:
		for i, child := range c.Conditions {
			if i > 0 {
				b.WriteString(" " + string(c.Op) + " ")
			}
			if len(child.Conditions) > 0 {
				b.WriteString("(")
				child.write(b)
				b.WriteString(")")
				continue
			}
			child.write(b)
		}
	case OpIsNull, OpNotNull:
		b.WriteString(c.Column.String() + " " + string(c.Op))
	case OpIn, OpNotIn:
		values, _ := c.Value.([]interface{})
		parts := make([]string, len(values))
		for i, v := range values {
			parts[i] = literal(v)
		}
		b.WriteString(c.Column.String() + " " + string(c.Op) + " (" + strings.Join(parts, ", ") + ")")
	case OpRaw:
		b.WriteString(c.SQL)
		if len(c.Args) > 0 {
			fmt.Fprintf(b, " %v", c.Args)
		}
	case OpRegex:
		b.WriteString(c.Column.String() + " ~ " + literal(c.Value))
	case OpIRegex:
		b.WriteString(c.Column.String() + " ~* " + literal(c.Value))
	default:
		b.WriteString(c.Column.String() + " " + string(c.Op) + " " + literal(c.Value))
	}
}

func literal(v interface{}) string {
	switch t := v.(type) {
	case nil:
		return "NULL"
	case string:
		return "'" + strings.ReplaceAll(t, "'", "''") + "'"
	case time.Time:
		return "'" + t.UTC().Format(time.RFC3339Nano) + "'"
	}
	return fmt.Sprint(v)
}
