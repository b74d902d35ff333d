package database

import (
	"fmt"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
)

type testDialect struct{}

func (testDialect) Name() string { return "test" }

func (testDialect) Quote(ident string) string { return `"` + ident + `"` }

func (testDialect) RegexOperator(ci bool) string {
	if ci {
		return "~*"
	}
	return "~"
}

func (testDialect) ColumnType(kind ColumnKind) string {
	switch kind {
	case ColumnKey, ColumnString:
		return "varchar(255)"
	case ColumnDouble:
		return "double precision"
	case ColumnIncrements:
		return "serial"
	}
	return "text"
}

func (testDialect) DropIndexSQL(_ string, index IndexSpec) string {
	return fmt.Sprintf(`DROP INDEX "%s"`, index.Name)
}

func (testDialect) CommentSQL(table, column, comment string) (string, bool) {
	return fmt.Sprintf(`COMMENT ON COLUMN "%s"."%s" IS '%s'`, table, column, strings.ReplaceAll(comment, "'", "''")), true
}

func TestConditionString(t *testing.T) {
	age := Col("person", "age")
	status := Col("person", "status")
	cond := And(
		Or(Eq(status, "active"), Eq(status, "pending")),
		And(Compare(age, OpGte, 18), Compare(age, OpLt, 65)),
	)
	assert.Equal(t,
		"(person.status = 'active' OR person.status = 'pending') AND (person.age >= 18 AND person.age < 65)",
		cond.String())
}

func TestGroupDropsEmptyConditions(t *testing.T) {
	single := Eq(Col("t", "a"), 1)
	assert.Equal(t, single, And(Condition{}, single))
	assert.True(t, Or().IsZero())
}

func TestRenderDDL(t *testing.T) {
	d := testDialect{}

	assert.Equal(t,
		`CREATE TABLE "orders" ("_id" varchar(255) PRIMARY KEY, "total" double precision)`,
		RenderCreateTable(d, "orders", []ColumnDef{{Name: "_id", Kind: ColumnKey}, {Name: "total", Kind: ColumnDouble}}))
	assert.Equal(t,
		`ALTER TABLE "orders" ADD COLUMN "note" text, ADD COLUMN "total" double precision`,
		RenderAddColumns(d, "orders", []ColumnDef{{Name: "note"}, {Name: "total", Kind: ColumnDouble}}))
	assert.Equal(t,
		`CREATE UNIQUE INDEX "idx_orders_code" ON "orders" ("code")`,
		RenderCreateIndex(d, "orders", IndexSpec{Name: "idx_orders_code", Columns: []string{"code"}, Unique: true}))
}
