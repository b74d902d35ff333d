package database

import "fmt"

// Order sorts by one column.
type Order struct {
	Column Column
	Desc   bool
}

// Criteria selects rows of one table.
type Criteria struct {
	Table   string
	Where   Condition
	OrderBy []Order
	Limit   int
	Offset  int
}

// SelectColumn selects Table.Column under the name As.
type SelectColumn struct {
	Table  string
	Column string
	As     string
}

// Join is a left outer join of Table, aliased Alias, on
// Alias.Column = ParentTable.ParentColumn.
type Join struct {
	Table        string
	Alias        string
	Column       string
	ParentTable  string
	ParentColumn string
}

// SelectStatement is a SELECT over one table with optional left outer joins.
type SelectStatement struct {
	Criteria
	Columns []SelectColumn
	Joins   []Join
}

// Key identifies logically identical statements.
func (s *SelectStatement) Key() string {
	return fmt.Sprintf("%#v", *s)
}
